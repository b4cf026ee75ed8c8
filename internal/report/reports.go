package report

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/andresuchdata/rollstats/internal/domain"
	"github.com/samber/lo"
	"github.com/wcharczuk/go-chart/v2"
)

const (
	maxFace = 12

	optUser      = "user"
	optGroupSize = "group_size"
	optMinRolls  = "min_rolls"
)

// DefaultReports returns the built-in reports in generation order.
func DefaultReports() []Report {
	return []Report{
		lineRollsUser{},
		radarRollsDistribution{},
		histogramDistributionPerMonth{},
		histogramAvgRollsGroups{},
		histogramPossibleRollsPerMonth{},
	}
}

func monthOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthLabel(m time.Time) string {
	return m.Format("January '06")
}

func sortedMonths(rolls []domain.Roll) []time.Time {
	months := lo.Uniq(lo.Map(rolls, func(r domain.Roll, _ int) time.Time { return monthOf(r.CreatedAt) }))
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })
	return months
}

func byUser(rolls []domain.Roll) ([]string, map[string][]domain.Roll) {
	grouped := lo.GroupBy(rolls, func(r domain.Roll) string { return r.UserName })
	names := lo.Keys(grouped)
	sort.Strings(names)
	for _, name := range names {
		rs := grouped[name]
		sort.SliceStable(rs, func(i, j int) bool { return rs[i].CreatedAt.Before(rs[j].CreatedAt) })
	}
	return names, grouped
}

// --- rolls per user ---

type userSeries struct {
	User   string
	Dates  []time.Time
	Values []float64
}

func rollsPerUser(rolls []domain.Roll, only string) []userSeries {
	names, grouped := byUser(rolls)
	var out []userSeries
	for _, name := range names {
		if only != "" && name != only {
			continue
		}
		rs := grouped[name]
		out = append(out, userSeries{
			User:   name,
			Dates:  lo.Map(rs, func(r domain.Roll, _ int) time.Time { return r.CreatedAt }),
			Values: lo.Map(rs, func(r domain.Roll, _ int) float64 { return float64(r.Value) }),
		})
	}
	return out
}

type lineRollsUser struct{}

func (lineRollsUser) Name() string        { return "line_rolls_user" }
func (lineRollsUser) Description() string { return "Rolls over time, one chart per user" }

func (lineRollsUser) Options() []Option {
	return []Option{
		{Name: optUser, Description: "Only plot this user", Type: TypeString},
	}
}

func (r lineRollsUser) Build(data Dataset, cfg *Config, canvas Canvas) ([]Plot, error) {
	var plots []Plot
	for _, s := range rollsPerUser(data.Rolls, cfg.String(optUser)) {
		graph := chart.Chart{
			Title:      fmt.Sprintf("Rolls for %s", s.User),
			Width:      canvas.Width,
			Height:     canvas.Height,
			Background: background(),
			XAxis: chart.XAxis{
				ValueFormatter: chart.TimeValueFormatterWithFormat("2006-01-02"),
				Range:          timeRange(s.Dates[0], s.Dates[len(s.Dates)-1]),
			},
			YAxis: chart.YAxis{Range: &chart.ContinuousRange{Min: 0, Max: maxFace + 1}},
			Series: []chart.Series{
				chart.TimeSeries{
					Name:    "Rolls",
					Style:   lineStyle(colorRolls),
					XValues: s.Dates,
					YValues: s.Values,
				},
			},
			Elements: []chart.Renderable{footer(canvas.Footer)},
		}
		plots = append(plots, Plot{Name: s.User, Chart: graph})
	}
	return plots, nil
}

// --- distribution of rolls per face ---

func faceCounts(rolls []domain.Roll) [maxFace]int {
	var counts [maxFace]int
	for _, r := range rolls {
		if r.Value >= 1 && r.Value <= maxFace {
			counts[r.Value-1]++
		}
	}
	return counts
}

type radarRollsDistribution struct{}

func (radarRollsDistribution) Name() string { return "radar_rolls_distribution" }
func (radarRollsDistribution) Description() string {
	return "Distribution of rolls per dice number"
}
func (radarRollsDistribution) Options() []Option { return nil }

func (r radarRollsDistribution) Build(data Dataset, _ *Config, canvas Canvas) ([]Plot, error) {
	if len(data.Rolls) == 0 {
		return nil, nil
	}
	counts := faceCounts(data.Rolls)

	bars := make([]chart.Value, maxFace)
	for i, n := range counts {
		c := faceColor(i + 1)
		bars[i] = chart.Value{
			Label: strconv.Itoa(i + 1),
			Value: float64(n),
			Style: chart.Style{FillColor: c, StrokeColor: c},
		}
	}

	graph := chart.BarChart{
		Title:      "Distribution of rolls per dice number",
		Width:      canvas.Width,
		Height:     canvas.Height,
		Background: background(),
		BarWidth:   40,
		BarSpacing: 16,
		YAxis:      chart.YAxis{Range: countRange(float64(lo.Max(counts[:])))},
		Bars:       bars,
		Elements:   []chart.Renderable{footer(canvas.Footer)},
	}
	return []Plot{{Name: "distribution-rolls", Chart: graph}}, nil
}

// --- distribution of rolls per month ---

func distributionPerMonth(rolls []domain.Roll) ([]time.Time, [][maxFace]int) {
	months := sortedMonths(rolls)
	index := make(map[time.Time]int, len(months))
	for i, m := range months {
		index[m] = i
	}
	counts := make([][maxFace]int, len(months))
	for _, r := range rolls {
		if r.Value >= 1 && r.Value <= maxFace {
			counts[index[monthOf(r.CreatedAt)]][r.Value-1]++
		}
	}
	return months, counts
}

type histogramDistributionPerMonth struct{}

func (histogramDistributionPerMonth) Name() string { return "histogram_distribution_per_month" }
func (histogramDistributionPerMonth) Description() string {
	return "Distribution of rolls per month, one line per dice number"
}
func (histogramDistributionPerMonth) Options() []Option { return nil }

func (r histogramDistributionPerMonth) Build(data Dataset, _ *Config, canvas Canvas) ([]Plot, error) {
	if len(data.Rolls) == 0 {
		return nil, nil
	}
	months, counts := distributionPerMonth(data.Rolls)

	var (
		series []chart.Series
		peak   int
	)
	for face := 1; face <= maxFace; face++ {
		ys := make([]float64, len(months))
		for i := range months {
			n := counts[i][face-1]
			ys[i] = float64(n)
			peak = max(peak, n)
		}
		series = append(series, chart.ContinuousSeries{
			Name:    strconv.Itoa(face),
			Style:   lineStyle(faceColor(face)),
			XValues: indexValues(len(months)),
			YValues: ys,
		})
	}

	graph := chart.Chart{
		Title:      "Distribution of rolls per month",
		Width:      canvas.Width,
		Height:     canvas.Height,
		Background: background(),
		XAxis:      indexAxis(lo.Map(months, func(m time.Time, _ int) string { return monthLabel(m) })),
		YAxis:      chart.YAxis{Range: countRange(float64(peak))},
		Series:     series,
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph), footer(canvas.Footer)}
	return []Plot{{Name: "distribution-per-month", Chart: graph}}, nil
}

// --- mean average per amount of rolls ---

type rollGroup struct {
	Low   int
	High  int
	Mean  float64
	Rolls int
	Users int
}

// meanGroups buckets users by how many rolls they have (1..size, size+1..2*size, ...)
// and reports the mean roll of each bucket.
func meanGroups(rolls []domain.Roll, size int) []rollGroup {
	if len(rolls) == 0 || size < 1 {
		return nil
	}
	perUser := lo.CountValuesBy(rolls, func(r domain.Roll) int64 { return r.UserID })
	maxRolls := lo.Max(lo.Values(perUser))

	buckets := int(math.Ceil(float64(maxRolls)/float64(size))) * size
	groups := lo.Chunk(lo.RangeFrom(1, buckets), size)

	out := make([]rollGroup, 0, len(groups))
	for _, g := range groups {
		low, high := g[0], g[len(g)-1]
		users := lo.PickBy(perUser, func(_ int64, n int) bool { return n >= low && n <= high })
		values := lo.FilterMap(rolls, func(r domain.Roll, _ int) (float64, bool) {
			_, ok := users[r.UserID]
			return float64(r.Value), ok
		})
		out = append(out, rollGroup{
			Low:   low,
			High:  high,
			Mean:  math.Round(lo.Mean(values)*100) / 100,
			Rolls: len(values),
			Users: len(users),
		})
	}
	return out
}

type histogramAvgRollsGroups struct{}

func (histogramAvgRollsGroups) Name() string { return "histogram_avg_rolls_groups" }
func (histogramAvgRollsGroups) Description() string {
	return "Mean averages per amount of rolls"
}

func (histogramAvgRollsGroups) Options() []Option {
	return []Option{
		{Name: optGroupSize, Description: "Number of roll counts per group", Type: TypeNumber, Default: "10"},
	}
}

func (r histogramAvgRollsGroups) Build(data Dataset, cfg *Config, canvas Canvas) ([]Plot, error) {
	size := int(cfg.Number(optGroupSize))
	if size < 1 {
		return nil, fmt.Errorf("%w: %s must be at least 1", ErrInvalidOptionType, optGroupSize)
	}
	groups := meanGroups(data.Rolls, size)
	if len(groups) == 0 {
		return nil, nil
	}

	xs := indexValues(len(groups))
	peak := lo.Max(lo.Map(groups, func(g rollGroup, _ int) int { return max(g.Rolls, g.Users) }))

	graph := chart.Chart{
		Title:          "Mean averages per amount of rolls",
		Width:          canvas.Width,
		Height:         canvas.Height,
		Background:     background(),
		XAxis:          indexAxis(lo.Map(groups, func(g rollGroup, _ int) string { return fmt.Sprintf("%d - %d", g.Low, g.High) })),
		YAxis:          chart.YAxis{Name: "Mean", Range: &chart.ContinuousRange{Min: 0, Max: maxFace + 1}},
		YAxisSecondary: chart.YAxis{Name: "Count", Range: countRange(float64(peak))},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "Mean average",
				Style:   lineStyle(colorMean),
				XValues: xs,
				YValues: lo.Map(groups, func(g rollGroup, _ int) float64 { return g.Mean }),
			},
			chart.ContinuousSeries{
				Name:    "Users",
				Style:   lineStyle(colorUsers),
				YAxis:   chart.YAxisSecondary,
				XValues: xs,
				YValues: lo.Map(groups, func(g rollGroup, _ int) float64 { return float64(g.Users) }),
			},
			chart.ContinuousSeries{
				Name:    "Rolls",
				Style:   lineStyle(colorRolls),
				YAxis:   chart.YAxisSecondary,
				XValues: xs,
				YValues: lo.Map(groups, func(g rollGroup, _ int) float64 { return float64(g.Rolls) }),
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph), footer(canvas.Footer)}
	return []Plot{{Name: "mean-avg", Chart: graph}}, nil
}

// --- possible vs actual sums per month per user ---

type userMonths struct {
	User     string
	Months   []time.Time
	Sums     []float64
	Possible []float64
}

// possibleRollsPerMonth sums each user's rolls per month next to the highest
// possible sum (every roll a 12). Users with fewer than minRolls rolls are skipped.
func possibleRollsPerMonth(rolls []domain.Roll, minRolls int) []userMonths {
	names, grouped := byUser(rolls)
	var out []userMonths
	for _, name := range names {
		rs := grouped[name]
		if len(rs) < minRolls {
			continue
		}
		months := sortedMonths(rs)
		perMonth := lo.GroupBy(rs, func(r domain.Roll) time.Time { return monthOf(r.CreatedAt) })
		um := userMonths{User: name, Months: months}
		for _, m := range months {
			mr := perMonth[m]
			um.Sums = append(um.Sums, float64(lo.SumBy(mr, func(r domain.Roll) int { return r.Value })))
			um.Possible = append(um.Possible, float64(len(mr)*maxFace))
		}
		out = append(out, um)
	}
	return out
}

type histogramPossibleRollsPerMonth struct{}

func (histogramPossibleRollsPerMonth) Name() string {
	return "histogram_possible_rolls_per_month_per_user"
}
func (histogramPossibleRollsPerMonth) Description() string {
	return "Sum of rolls per month against the highest possible sum, one chart per user"
}

func (histogramPossibleRollsPerMonth) Options() []Option {
	return []Option{
		{Name: optMinRolls, Description: "Skip users with fewer rolls", Type: TypeNumber, Default: "2"},
	}
}

func (r histogramPossibleRollsPerMonth) Build(data Dataset, cfg *Config, canvas Canvas) ([]Plot, error) {
	var plots []Plot
	for _, um := range possibleRollsPerMonth(data.Rolls, int(cfg.Number(optMinRolls))) {
		xs := indexValues(len(um.Months))
		graph := chart.Chart{
			Title:      fmt.Sprintf("Highest possible rolls per month for %s", um.User),
			Width:      canvas.Width,
			Height:     canvas.Height,
			Background: background(),
			XAxis:      indexAxis(lo.Map(um.Months, func(m time.Time, _ int) string { return monthLabel(m) })),
			YAxis:      chart.YAxis{Range: countRange(lo.Max(um.Possible))},
			Series: []chart.Series{
				chart.ContinuousSeries{
					Name:    "Sum of rolls",
					Style:   lineStyle(colorSum),
					XValues: xs,
					YValues: um.Sums,
				},
				chart.ContinuousSeries{
					Name:    "Maximum possible sum of rolls",
					Style:   lineStyle(colorMaximum),
					XValues: xs,
					YValues: um.Possible,
				},
			},
		}
		graph.Elements = []chart.Renderable{chart.Legend(&graph), footer(canvas.Footer)}
		plots = append(plots, Plot{Name: um.User, Chart: graph})
	}
	return plots, nil
}
