// Package importer loads roll exports into the relational store.
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/andresuchdata/rollstats/internal/repository"
	"github.com/andresuchdata/rollstats/pkg/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// ImportedDice is the only die whose rolls are kept.
const ImportedDice = "12"

const (
	colName = "name"
	colDate = "date"
	colRoll = "roll"
	colDice = "dice"
)

var requiredCols = []string{colName, colDate, colRoll, colDice}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("missing required column")

// Stats summarises one import.
type Stats struct {
	Rows     int `json:"rows"`
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
	Users    int `json:"users"`
}

// Importer parses roll CSV files and merges them into the store.
type Importer struct {
	repo *repository.RollRepository
	fs   afero.Fs
	log  zerolog.Logger
}

func New(repo *repository.RollRepository, fs afero.Fs) *Importer {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Importer{
		repo: repo,
		fs:   fs,
		log:  logger.Component("importer"),
	}
}

// Import merges the CSV at path. Rows already present are left untouched.
// The file is imported in one transaction: on error nothing is written.
func (i *Importer) Import(ctx context.Context, path string) error {
	_, err := i.ImportFile(ctx, path)
	return err
}

// ImportFile is Import with a summary of what changed.
func (i *Importer) ImportFile(ctx context.Context, path string) (Stats, error) {
	i.log.Info().Str("path", path).Msg("importing data")

	f, err := i.fs.Open(path)
	if err != nil {
		return Stats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	stats, err := i.importReader(ctx, f)
	if err != nil {
		return Stats{}, fmt.Errorf("import %s: %w", path, err)
	}

	i.log.Info().
		Str("path", path).
		Int("rows", stats.Rows).
		Int("inserted", stats.Inserted).
		Int("skipped", stats.Skipped).
		Msg("import finished")
	return stats, nil
}

func (i *Importer) importReader(ctx context.Context, r io.Reader) (Stats, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return Stats{}, fmt.Errorf("failed to read CSV header: %w", err)
	}

	colMap := make(map[string]int)
	for idx, col := range header {
		colMap[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff")))] = idx
	}
	for _, col := range requiredCols {
		if _, ok := colMap[col]; !ok {
			return Stats{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var stats Stats
	users := make(map[string]int64)

	err = i.repo.InTx(ctx, func(w *repository.RollWriter) error {
		line := 1
		for {
			record, err := reader.Read()
			if err == io.EOF {
				return nil
			}
			line++
			if err != nil {
				return fmt.Errorf("failed to read CSV record: %w", err)
			}

			get := func(col string) string {
				if idx := colMap[col]; idx < len(record) {
					return strings.TrimSpace(record[idx])
				}
				return ""
			}

			name := get(colName)
			if name == "" {
				continue
			}
			stats.Rows++

			userID, ok := users[name]
			if !ok {
				userID, err = w.UpsertUser(ctx, name)
				if err != nil {
					return err
				}
				users[name] = userID
			}

			if get(colDice) != ImportedDice {
				stats.Skipped++
				continue
			}

			createdAt, err := ParseDate(get(colDate))
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			value, err := parseRoll(get(colRoll))
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}

			inserted, err := w.InsertRoll(ctx, userID, value, createdAt)
			if err != nil {
				return fmt.Errorf("line %d: %w", line, err)
			}
			if inserted {
				stats.Inserted++
			} else {
				i.log.Debug().Str("user", name).Int("roll", value).Time("date", createdAt).Msg("roll already exists")
				stats.Skipped++
			}
		}
	})
	if err != nil {
		return Stats{}, err
	}

	stats.Users = len(users)
	return stats, nil
}

// Clean deletes every imported roll and user. Cleaning an empty store is a no-op.
func (i *Importer) Clean(ctx context.Context) error {
	i.log.Info().Msg("cleaning data")
	if err := i.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clean imported data: %w", err)
	}
	return nil
}

// ParseDate parses an M/D/YYYY export date. Rolls are stamped at 01:00 UTC.
func ParseDate(s string) (time.Time, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid date %q: want M/D/YYYY", s)
	}

	nums := make([]int, 3)
	for idx, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
		}
		nums[idx] = n
	}
	month, day, year := nums[0], nums[1], nums[2]
	if month < 1 || month > 12 || day < 1 || day > 31 || year < 1 {
		return time.Time{}, fmt.Errorf("invalid date %q: out of range", s)
	}

	t := time.Date(year, time.Month(month), day, 1, 0, 0, 0, time.UTC)
	if t.Day() != day {
		return time.Time{}, fmt.Errorf("invalid date %q: no such day", s)
	}
	return t, nil
}

func parseRoll(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid roll %q: %w", s, err)
	}
	if v < 1 || v > 12 {
		return 0, fmt.Errorf("invalid roll %d: must be between 1 and 12", v)
	}
	return v, nil
}
