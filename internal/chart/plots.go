package chart

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Series is one named sequence of values aligned with a chart's categories.
type Series struct {
	Label  string
	Values []float64
}

// Point is one labelled scatter point.
type Point struct {
	X, Y  float64
	Label string
}

// Labels describe the title and axis captions of a chart.
type Labels struct {
	Title  string
	XLabel string
	YLabel string
}

// plotWidth approximates the data area width left after axes and padding.
const plotWidth = Width - 120

// rotateAfter is the category count above which x labels are slanted.
const rotateAfter = 8

// Bar draws one bar per category. The value axis always includes zero.
func Bar(l Labels, categories []string, values []float64) (image.Image, error) {
	return GroupedBar(l, categories, []Series{{Values: values}})
}

// GroupedBar draws the series side by side within each category slot.
// Series labels are shown in a legend when there is more than one series.
func GroupedBar(l Labels, categories []string, series []Series) (image.Image, error) {
	p, err := newPlot(l)
	if err != nil {
		return nil, err
	}

	n := max(len(categories), 1)
	group := 0.7 * plotWidth / float64(n)
	barW := vg.Points(group / float64(max(len(series), 1)))
	for j, s := range series {
		if len(s.Values) != len(categories) {
			return nil, fmt.Errorf("series %q has %d values for %d categories", s.Label, len(s.Values), len(categories))
		}
		if len(s.Values) == 0 {
			continue
		}
		bars, err := plotter.NewBarChart(plotter.Values(s.Values), barW)
		if err != nil {
			return nil, fmt.Errorf("bar series %q: %w", s.Label, err)
		}
		bars.Color = plotutil.Color(j)
		bars.LineStyle.Width = 0
		bars.Offset = barW * vg.Length(float64(j)-float64(len(series)-1)/2)
		p.Add(bars)
		if len(series) > 1 && s.Label != "" {
			p.Legend.Add(s.Label, bars)
		}
	}
	p.Y.Min = math.Min(p.Y.Min, 0)
	p.Y.Max = math.Max(p.Y.Max, 0)
	p.Add(plotter.NewGrid())
	nominalX(p, categories)
	return render(p), nil
}

// Line draws each series as a polyline with markers over shared x labels.
func Line(l Labels, xs []string, series []Series) (image.Image, error) {
	p, err := newPlot(l)
	if err != nil {
		return nil, err
	}

	for j, s := range series {
		pts := make(plotter.XYs, 0, len(s.Values))
		for i := 0; i < len(s.Values) && i < len(xs); i++ {
			pts = append(pts, plotter.XY{X: float64(i), Y: s.Values[i]})
		}
		if len(pts) == 0 {
			continue
		}
		line, points, err := plotter.NewLinePoints(pts)
		if err != nil {
			return nil, fmt.Errorf("line series %q: %w", s.Label, err)
		}
		line.Color = plotutil.Color(j)
		line.Width = vg.Points(2)
		points.Color = plotutil.Color(j)
		points.Shape = draw.CircleGlyph{}
		points.Radius = vg.Points(3)
		p.Add(line, points)
		if s.Label != "" {
			p.Legend.Add(s.Label, line, points)
		}
	}
	p.Add(plotter.NewGrid())
	nominalX(p, xs)
	return render(p), nil
}

// Scatter plots points on two numeric axes and annotates each with its label.
func Scatter(l Labels, points []Point) (image.Image, error) {
	p, err := newPlot(l)
	if err != nil {
		return nil, err
	}

	if len(points) > 0 {
		xys := make(plotter.XYs, len(points))
		names := make([]string, len(points))
		for i, pt := range points {
			xys[i] = plotter.XY{X: pt.X, Y: pt.Y}
			names[i] = pt.Label
		}

		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return nil, fmt.Errorf("scatter: %w", err)
		}
		sc.Shape = draw.CircleGlyph{}
		sc.Radius = vg.Points(5)
		sc.Color = plotutil.Color(0)

		labels, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: names})
		if err != nil {
			return nil, fmt.Errorf("scatter labels: %w", err)
		}
		labels.Offset = vg.Point{X: vg.Points(8), Y: vg.Points(4)}

		p.Add(plotter.NewGrid(), sc, labels)
		padRange(&p.X)
		padRange(&p.Y)
	}
	return render(p), nil
}

// nominalX labels integer x positions with names, slanting them when there
// are many.
func nominalX(p *plot.Plot, names []string) {
	p.NominalX(names...)
	if len(names) > rotateAfter {
		p.X.Tick.Label.Rotation = math.Pi / 4
		p.X.Tick.Label.XAlign = draw.XRight
		p.X.Tick.Label.YAlign = draw.YCenter
	}
}

// padRange widens an axis by 10% each side so markers and labels at the
// extremes stay inside the data area.
func padRange(a *plot.Axis) {
	pad := (a.Max - a.Min) * 0.1
	if pad == 0 {
		pad = 1
	}
	a.Min -= pad
	a.Max += pad
}
