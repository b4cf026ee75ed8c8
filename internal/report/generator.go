package report

import (
	"context"
	"fmt"

	"github.com/andresuchdata/rollstats/pkg/logger"
	"github.com/rs/zerolog"
)

const attribution = "Graphs by Aumer"

// Settings controls image size and the attribution footer.
type Settings struct {
	Width   int
	Height  int
	StatsBy string
}

// Generator runs reports against the roll store and keeps their images in an ImageStore.
type Generator struct {
	source  RollSource
	store   *ImageStore
	canvas  Canvas
	reports []Report
	byName  map[string]Report
	log     zerolog.Logger
}

// NewGenerator returns a generator with the built-in reports registered.
func NewGenerator(source RollSource, store *ImageStore, s Settings) *Generator {
	if s.Width <= 0 {
		s.Width = 800
	}
	if s.Height <= 0 {
		s.Height = 600
	}
	g := &Generator{
		source: source,
		store:  store,
		canvas: Canvas{
			Width:  s.Width,
			Height: s.Height,
			Footer: fmt.Sprintf("%s - Stats by %s", attribution, s.StatsBy),
		},
		byName: make(map[string]Report),
		log:    logger.Component("report"),
	}
	for _, r := range DefaultReports() {
		g.Register(r)
	}
	return g
}

// Register adds r, replacing any report with the same name.
func (g *Generator) Register(r Report) {
	if _, exists := g.byName[r.Name()]; !exists {
		g.reports = append(g.reports, r)
	} else {
		for i, existing := range g.reports {
			if existing.Name() == r.Name() {
				g.reports[i] = r
			}
		}
	}
	g.byName[r.Name()] = r
}

// Reports lists registered reports in registration order.
func (g *Generator) Reports() []Report {
	return append([]Report(nil), g.reports...)
}

func (g *Generator) Report(name string) (Report, error) {
	r, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, name)
	}
	return r, nil
}

func (g *Generator) Store() *ImageStore { return g.store }

// Run validates options and renders one report. It returns the written image paths.
func (g *Generator) Run(ctx context.Context, name string, options map[string]string) ([]string, error) {
	r, err := g.Report(name)
	if err != nil {
		return nil, err
	}
	cfg, err := NewConfig(r.Options(), options)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", name, err)
	}
	data, err := g.load(ctx)
	if err != nil {
		return nil, err
	}
	return g.run(r, cfg, data)
}

// RegenerateAll renders every report with default options from the current store contents.
func (g *Generator) RegenerateAll(ctx context.Context) ([]string, error) {
	data, err := g.load(ctx)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, r := range g.reports {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cfg, err := NewConfig(r.Options(), nil)
		if err != nil {
			return nil, fmt.Errorf("report %s: %w", r.Name(), err)
		}
		written, err := g.run(r, cfg, data)
		if err != nil {
			return nil, err
		}
		paths = append(paths, written...)
	}
	return paths, nil
}

// Clean deletes generated images.
func (g *Generator) Clean(_ context.Context) error {
	g.log.Info().Msg("cleaning plots")
	return g.store.Clean()
}

// Images lists the images currently on disk.
func (g *Generator) Images() ([]string, error) {
	return g.store.List()
}

func (g *Generator) load(ctx context.Context) (Dataset, error) {
	users, err := g.source.ListUsers(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("load users: %w", err)
	}
	rolls, err := g.source.ListRolls(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("load rolls: %w", err)
	}
	return Dataset{Users: users, Rolls: rolls}, nil
}

func (g *Generator) run(r Report, cfg *Config, data Dataset) ([]string, error) {
	g.log.Info().Str("report", r.Name()).Msg("plotting")

	plots, err := r.Build(data, cfg, g.canvas)
	if err != nil {
		return nil, fmt.Errorf("report %s: %w", r.Name(), err)
	}

	paths := make([]string, 0, len(plots))
	used := make(map[string]bool, len(plots))
	for _, p := range plots {
		img, err := renderPNG(p.Chart)
		if err != nil {
			return nil, fmt.Errorf("report %s, plot %s: %w", r.Name(), p.Name, err)
		}
		path, err := g.store.Write(r.Name(), uniqueFileName(used, p.Name), img)
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
