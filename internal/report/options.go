package report

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	ErrUnknownOption     = errors.New("unknown config option")
	ErrMissingOption     = errors.New("missing required config option")
	ErrInvalidOptionType = errors.New("invalid config option type")
)

type OptionType string

const (
	TypeString  OptionType = "string"
	TypeNumber  OptionType = "number"
	TypeBoolean OptionType = "boolean"
)

// Option describes one setting a report accepts.
type Option struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Type        OptionType `json:"type"`
	Default     string     `json:"default,omitempty"`
	Required    bool       `json:"required"`
}

// Config holds validated option values for one report run.
type Config struct {
	options map[string]Option
	values  map[string]string
}

// NewConfig validates given against options. Checks run in order: unknown
// keys, then missing required options, then value types.
func NewConfig(options []Option, given map[string]string) (*Config, error) {
	byName := make(map[string]Option, len(options))
	for _, o := range options {
		byName[o.Name] = o
	}

	keys := make([]string, 0, len(given))
	for k := range given {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := byName[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownOption, k)
		}
	}

	for _, o := range options {
		if _, ok := given[o.Name]; o.Required && o.Default == "" && !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingOption, o.Name)
		}
	}

	for _, k := range keys {
		o := byName[k]
		if err := checkType(o, given[k]); err != nil {
			return nil, err
		}
	}

	values := make(map[string]string, len(given))
	for k, v := range given {
		values[k] = v
	}
	return &Config{options: byName, values: values}, nil
}

func checkType(o Option, v string) error {
	switch o.Type {
	case TypeString:
		return nil
	case TypeNumber:
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return fmt.Errorf("%w: %s must be of type %s, got %q", ErrInvalidOptionType, o.Name, o.Type, v)
		}
		return nil
	case TypeBoolean:
		if v != "true" && v != "false" {
			return fmt.Errorf("%w: %s must be of type %s, got %q", ErrInvalidOptionType, o.Name, o.Type, v)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s has unsupported type %q", ErrInvalidOptionType, o.Name, o.Type)
	}
}

func (c *Config) raw(name string) string {
	if v, ok := c.values[name]; ok {
		return v
	}
	return c.options[name].Default
}

func (c *Config) String(name string) string {
	return c.raw(name)
}

// Number returns the option as a float, or 0 when it has no value.
func (c *Config) Number(name string) float64 {
	f, _ := strconv.ParseFloat(c.raw(name), 64)
	return f
}

func (c *Config) Bool(name string) bool {
	return c.raw(name) == "true"
}
