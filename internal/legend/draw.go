package legend

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/joeblew999/plat-atlas/internal/style"
)

// Canvas size of the legend raster.
const (
	Width  = 520
	Height = 45
)

var (
	labelColor = color.NRGBA{A: 0xff}
	face       = basicfont.Face7x13
)

// Draw renders lg on a transparent Width x Height canvas.
func Draw(lg Legend) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, Width, Height))
	switch lg.Kind {
	case KindRichness:
		drawBins(img, lg.Bins)
	case KindSpecies:
		if lg.Observation != nil {
			drawObservation(img, *lg.Observation)
		}
		drawMarkers(img, lg.Markers)
	}
	return img
}

// EncodePNG draws lg and writes it as PNG.
func EncodePNG(w io.Writer, lg Legend) error {
	if err := png.Encode(w, Draw(lg)); err != nil {
		return fmt.Errorf("encoding legend: %w", err)
	}
	return nil
}

// drawBins lays five swatches out across the canvas with "start - end"
// labels to their right.
func drawBins(img *image.NRGBA, bins []Bin) {
	for k, b := range bins {
		x := 10 + k*95
		fillRect(img, image.Rect(x, 5, x+25, 30), parse(b.Color))
		drawText(img, fmt.Sprintf("%d - %d", b.Start, b.End), x+30, 23)
	}
}

func drawObservation(img *image.NRGBA, obs style.Observation) {
	r := image.Rect(5, 5, 40, 40)
	fillRect(img, r, parse(obs.Fill))
	strokeRect(img, r, int(math.Round(obs.Width)), parse(obs.Stroke))
	drawText(img, "Observation", 45, 26)
}

// drawMarkers draws the samples concentrically at (150, 23) in configured
// order, each with a leader line to its label row.
func drawMarkers(img *image.NRGBA, entries []Entry) {
	const cx, cy = 150.0, 23.0
	for i, e := range entries {
		r := e.Marker.Radius * 2
		fillCircle(img, cx, cy, r, parse(e.Marker.Fill))

		rowY := float64(i*15 + 10)
		from := [2]float64{cx + math.Cos(e.Angle)*r*0.8, cy + math.Sin(e.Angle)*r}
		strokeLine(img, from, [2]float64{175, rowY}, 1, labelColor)
		strokeLine(img, [2]float64{175, rowY}, [2]float64{184, rowY}, 1, labelColor)
		drawText(img, e.Marker.Label, 185, i*15+14)
	}
}

func parse(c style.Color) color.NRGBA {
	nc, err := c.NRGBA()
	if err != nil {
		return labelColor
	}
	return nc
}

func fillRect(img draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(img, r, image.NewUniform(c), image.Point{}, draw.Over)
}

func strokeRect(img draw.Image, r image.Rectangle, width int, c color.Color) {
	if width <= 0 {
		return
	}
	for i := 0; i < width; i++ {
		fillRect(img, image.Rect(r.Min.X+i, r.Min.Y+i, r.Max.X-i, r.Min.Y+i+1), c)
		fillRect(img, image.Rect(r.Min.X+i, r.Max.Y-i-1, r.Max.X-i, r.Max.Y-i), c)
		fillRect(img, image.Rect(r.Min.X+i, r.Min.Y+i+1, r.Min.X+i+1, r.Max.Y-i-1), c)
		fillRect(img, image.Rect(r.Max.X-i-1, r.Min.Y+i+1, r.Max.X-i, r.Max.Y-i-1), c)
	}
}

func fillCircle(img *image.NRGBA, cx, cy, r float64, c color.Color) {
	if r <= 0 {
		return
	}
	const segments = 64
	z := vector.NewRasterizer(img.Bounds().Dx(), img.Bounds().Dy())
	z.MoveTo(float32(cx+r), float32(cy))
	for i := 1; i < segments; i++ {
		a := 2 * math.Pi * float64(i) / segments
		z.LineTo(float32(cx+r*math.Cos(a)), float32(cy+r*math.Sin(a)))
	}
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
}

func strokeLine(img *image.NRGBA, from, to [2]float64, width float64, c color.Color) {
	dx, dy := to[0]-from[0], to[1]-from[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*width/2, dx/length*width/2
	z := vector.NewRasterizer(img.Bounds().Dx(), img.Bounds().Dy())
	z.MoveTo(float32(from[0]+nx), float32(from[1]+ny))
	z.LineTo(float32(to[0]+nx), float32(to[1]+ny))
	z.LineTo(float32(to[0]-nx), float32(to[1]-ny))
	z.LineTo(float32(from[0]-nx), float32(from[1]-ny))
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
}

func drawText(img draw.Image, text string, x, y int) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
