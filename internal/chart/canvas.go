package chart

import (
	"fmt"
	"image"
	"sync"

	stdfont "golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/font"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Width and Height are the pixel dimensions of every chart.
const (
	Width  = 1000
	Height = 600
)

// Canvases are 72 DPI so one point is one pixel.
const dpi = 72

const goTypeface font.Typeface = "Go"

var (
	fontOnce sync.Once
	fontErr  error
)

// loadFonts registers the Go fonts with the plot font cache and makes them
// the default for every plot created afterwards.
func loadFonts() error {
	fontOnce.Do(func() {
		regular, err := opentype.Parse(goregular.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Regular: %w", err)
			return
		}
		bold, err := opentype.Parse(gobold.TTF)
		if err != nil {
			fontErr = fmt.Errorf("parse Go Bold: %w", err)
			return
		}
		font.DefaultCache.Add(font.Collection{
			{Font: font.Font{Typeface: goTypeface}, Face: regular},
			{Font: font.Font{Typeface: goTypeface, Weight: stdfont.WeightBold}, Face: bold},
		})
		plot.DefaultFont = font.Font{Typeface: goTypeface}
		plotter.DefaultFont = plot.DefaultFont
	})
	return fontErr
}

// newPlot returns a plot with the title in bold and the axis captions set.
func newPlot(l Labels) (*plot.Plot, error) {
	if err := loadFonts(); err != nil {
		return nil, err
	}
	p := plot.New()
	p.Title.Text = l.Title
	p.Title.TextStyle.Font = font.From(font.Font{Typeface: goTypeface, Weight: stdfont.WeightBold}, 16)
	p.Title.Padding = vg.Points(12)
	p.X.Label.Text = l.XLabel
	p.Y.Label.Text = l.YLabel
	p.Legend.Top = true
	return p, nil
}

// render draws p onto a Width x Height image.
func render(p *plot.Plot) image.Image {
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Points(Width), vg.Points(Height)),
		vgimg.UseDPI(dpi),
	)
	p.Draw(draw.New(c))
	return c.Image()
}
