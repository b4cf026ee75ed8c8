// Package report turns the imported rolls into chart images.
package report

import (
	"context"
	"errors"
	"io"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/wcharczuk/go-chart/v2"
)

// ErrReportNotFound is returned when a report name is not registered.
var ErrReportNotFound = errors.New("report not found")

// RollSource is the read side of the roll store.
type RollSource interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
	ListRolls(ctx context.Context) ([]domain.Roll, error)
}

// Dataset is everything a report can draw from.
type Dataset struct {
	Users []domain.User
	Rolls []domain.Roll
}

// Canvas carries the drawing settings shared by every report.
type Canvas struct {
	Width  int
	Height int
	Footer string
}

// Renderable is satisfied by chart.Chart and chart.BarChart.
type Renderable interface {
	Render(rp chart.RendererProvider, w io.Writer) error
}

// Plot is one image produced by a report. Name is cleaned before use as a file name.
type Plot struct {
	Name  string
	Chart Renderable
}

// Report builds zero or more plots from a dataset.
type Report interface {
	Name() string
	Description() string
	Options() []Option
	Build(data Dataset, cfg *Config, canvas Canvas) ([]Plot, error)
}
