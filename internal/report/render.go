package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var faceColors = []drawing.Color{
	drawing.ColorFromHex("8E44AD"),
	drawing.ColorFromHex("27AE60"),
	drawing.ColorFromHex("2980B9"),
	drawing.ColorFromHex("F39C12"),
	drawing.ColorFromHex("E74C3C"),
	drawing.ColorFromHex("2C3E50"),
	drawing.ColorFromHex("9B59B6"),
	drawing.ColorFromHex("2ECC71"),
	drawing.ColorFromHex("3498DB"),
	drawing.ColorFromHex("BF55EC"),
	drawing.ColorFromHex("16A085"),
	drawing.ColorFromHex("34495E"),
}

var (
	colorRolls   = drawing.ColorFromHex("4BC0C0")
	colorMean    = drawing.ColorFromHex("FF0606")
	colorUsers   = drawing.ColorFromHex("0606FF")
	colorSum     = drawing.ColorFromHex("27AE60")
	colorMaximum = drawing.ColorFromHex("8E44AD")
	colorFooter  = drawing.Color{R: 0, G: 0, B: 0, A: 128}
)

func faceColor(face int) drawing.Color {
	return faceColors[(face-1)%len(faceColors)]
}

func lineStyle(c drawing.Color) chart.Style {
	return chart.Style{
		StrokeColor: c,
		StrokeWidth: 2,
		DotColor:    c,
		DotWidth:    3,
	}
}

func background() chart.Style {
	return chart.Style{Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20}}
}

// footer draws the attribution line in the top right corner of the canvas.
func footer(text string) chart.Renderable {
	return func(r chart.Renderer, box chart.Box, defaults chart.Style) {
		if text == "" {
			return
		}
		font := defaults.Font
		if font == nil {
			f, err := chart.GetDefaultFont()
			if err != nil {
				return
			}
			font = f
		}
		r.SetFont(font)
		r.SetFontSize(9)
		r.SetFontColor(colorFooter)
		tb := r.MeasureText(text)
		r.Text(text, box.Right-tb.Width()-4, box.Top+tb.Height()+4)
	}
}

// paddedRange returns a range covering [min, max] that is never empty.
func paddedRange(min, max, pad float64) *chart.ContinuousRange {
	if max <= min {
		return &chart.ContinuousRange{Min: min - pad, Max: max + pad}
	}
	return &chart.ContinuousRange{Min: min, Max: max}
}

func timeRange(first, last time.Time) *chart.ContinuousRange {
	return paddedRange(chart.TimeToFloat64(first), chart.TimeToFloat64(last), float64(24*time.Hour))
}

// countRange is a y range from zero to a little above max.
func countRange(max float64) *chart.ContinuousRange {
	if max < 1 {
		max = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: max * 1.1}
}

// indexAxis labels x positions 0..n-1.
func indexAxis(labels []string) chart.XAxis {
	ticks := make([]chart.Tick, len(labels))
	for i, l := range labels {
		ticks[i] = chart.Tick{Value: float64(i), Label: l}
	}
	return chart.XAxis{
		Ticks: ticks,
		Range: &chart.ContinuousRange{Min: -0.5, Max: float64(len(labels)) - 0.5},
	}
}

func indexValues(n int) []float64 {
	xs := make([]float64, n)
	for i := range xs {
		xs[i] = float64(i)
	}
	return xs
}

// renderPNG draws c into PNG bytes.
func renderPNG(c Renderable) ([]byte, error) {
	var buf bytes.Buffer
	if err := c.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("render chart: %w", err)
	}
	return buf.Bytes(), nil
}
