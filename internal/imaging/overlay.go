package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/golang/geo/r2"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

// Palette holds the overlay colors as hex strings ("#RRGGBB").
type Palette struct {
	Dial   string `yaml:"dial"`
	Needle string `yaml:"needle"`
	Center string `yaml:"center"`
	Low    string `yaml:"low"`  // label tint at the start of the scale
	High   string `yaml:"high"` // label tint at the end of the scale
}

// DefaultPalette returns green dial, red needle, a blue center mark, and a
// label that shifts from green to red as the reading climbs.
func DefaultPalette() Palette {
	return Palette{
		Dial:   "#00FF00",
		Needle: "#FF0000",
		Center: "#0080FF",
		Low:    "#00C000",
		High:   "#E00000",
	}
}

// Annotation describes what to draw over a processed photo.
// Zero-valued parts are skipped.
type Annotation struct {
	Center    r2.Point
	Radius    float64 // dial radius; 0 draws no dial
	Needle    [2]r2.Point
	HasNeedle bool
	Label     string
	Level     float64 // position on the scale in [0, 1], tints the label
}

// Annotate returns a copy of img with the dial, needle, center and label drawn.
func Annotate(img image.Image, a Annotation, p Palette) *image.NRGBA {
	bounds := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Src)

	thickness := math.Max(2, float64(dst.Bounds().Dy())/250)

	if a.Radius > 0 {
		fillRing(dst, a.Center, a.Radius, thickness+1, hexColor(p.Dial, color.NRGBA{0, 255, 0, 255}))
	}
	if a.HasNeedle {
		fillSegment(dst, a.Needle[0], a.Needle[1], thickness, hexColor(p.Needle, color.NRGBA{255, 0, 0, 255}))
	}
	if a.Radius > 0 {
		fillDisc(dst, a.Center, thickness+1, hexColor(p.Center, color.NRGBA{0, 128, 255, 255}))
	}
	if a.Label != "" {
		drawLabel(dst, 10, 20, a.Label, labelTint(p, a.Level))
	}
	return dst
}

// labelTint blends between the low and high palette colors in HCL space.
func labelTint(p Palette, level float64) color.Color {
	low, err := colorful.Hex(p.Low)
	if err != nil {
		low = colorful.Color{R: 0, G: 0.75, B: 0}
	}
	high, err := colorful.Hex(p.High)
	if err != nil {
		high = colorful.Color{R: 0.88, G: 0, B: 0}
	}
	level = math.Max(0, math.Min(1, level))
	return low.BlendHcl(high, level).Clamped()
}

func hexColor(s string, fallback color.Color) color.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		return fallback
	}
	return c
}

// fillRing draws a circle outline of the given stroke width.
func fillRing(dst draw.Image, c r2.Point, radius, width float64, col color.Color) {
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	outer, inner := radius+width/2, math.Max(0, radius-width/2)
	steps := int(math.Max(64, 2*math.Pi*outer/3))
	for i := 0; i <= steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		x, y := float32(c.X+outer*math.Cos(t)), float32(c.Y+outer*math.Sin(t))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
	for i := 0; i <= steps; i++ {
		t := -2 * math.Pi * float64(i) / float64(steps)
		x, y := float32(c.X+inner*math.Cos(t)), float32(c.Y+inner*math.Sin(t))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
	z.Draw(dst, b, image.NewUniform(col), image.Point{})
}

// fillDisc draws a filled circle.
func fillDisc(dst draw.Image, c r2.Point, radius float64, col color.Color) {
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	steps := 32
	for i := 0; i <= steps; i++ {
		t := 2 * math.Pi * float64(i) / float64(steps)
		x, y := float32(c.X+radius*math.Cos(t)), float32(c.Y+radius*math.Sin(t))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
	z.Draw(dst, b, image.NewUniform(col), image.Point{})
}

// fillSegment draws a straight stroke from a to b as a filled quad.
func fillSegment(dst draw.Image, a, b r2.Point, width float64, col color.Color) {
	d := b.Sub(a)
	if d.Norm() == 0 {
		fillDisc(dst, a, width/2, col)
		return
	}
	n := d.Ortho().Normalize().Mul(width / 2)
	bounds := dst.Bounds()
	z := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	p0, p1, p2, p3 := a.Add(n), b.Add(n), b.Sub(n), a.Sub(n)
	z.MoveTo(float32(p0.X), float32(p0.Y))
	z.LineTo(float32(p1.X), float32(p1.Y))
	z.LineTo(float32(p2.X), float32(p2.Y))
	z.LineTo(float32(p3.X), float32(p3.Y))
	z.ClosePath()
	z.Draw(dst, bounds, image.NewUniform(col), image.Point{})
}

// drawLabel renders text with a dark backing box so it stays legible on
// bright dial faces.
func drawLabel(dst draw.Image, x, y int, text string, col color.Color) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	w := d.MeasureString(text).Ceil()
	box := image.Rect(x-3, y-face.Ascent-2, x+w+3, y+face.Descent+2)
	draw.Draw(dst, box, image.NewUniform(color.NRGBA{0, 0, 0, 170}), image.Point{}, draw.Over)
	d.DrawString(text)
}
