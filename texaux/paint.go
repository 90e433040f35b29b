package texaux

import (
	"errors"

	math "github.com/chewxy/math32"
	"github.com/golang/freetype/raster"
	"github.com/soypat/geometry/ms2"
	"golang.org/x/image/math/fixed"

	"github.com/soypat/toonshade/grid"
)

// circleSegments is the amount of line segments a painted circle is made of.
const circleSegments = 96

var errShortPolygon = errors.New("polygon requires at least 3 vertices")

// NewSeed returns an empty single channel seed mask.
func NewSeed(name string, size int) (*grid.Texture, error) {
	return grid.NewTexture(name, size, grid.FormatR8)
}

// Painter paints filled shapes into a seed mask with anti-aliased edges.
// Coordinates are in texels, (0,0) being the top-left corner of the texture.
// Painted coverage is combined with existing texels by taking the maximum.
type Painter struct {
	tex *grid.Texture
	r   *raster.Rasterizer
}

// NewPainter returns a painter drawing into seed.
func NewPainter(seed *grid.Texture) *Painter {
	return &Painter{
		tex: seed,
		r:   raster.NewRasterizer(seed.Size, seed.Size),
	}
}

// Polygon fills the closed polygon with the given vertices.
func (p *Painter) Polygon(vertices []ms2.Vec) error {
	if len(vertices) < 3 {
		return errShortPolygon
	}
	p.r.Clear()
	p.r.Start(toFixed(vertices[0]))
	for _, v := range vertices[1:] {
		p.r.Add1(toFixed(v))
	}
	p.r.Add1(toFixed(vertices[0]))
	p.r.Rasterize(p)
	return nil
}

// Circle fills a circle of the given center and radius.
func (p *Painter) Circle(center ms2.Vec, radius float32) error {
	if radius <= 0 {
		return errors.New("circle radius must be positive")
	}
	var vertices [circleSegments]ms2.Vec
	for i := range vertices {
		s, c := math.Sincos(2 * math.Pi * float32(i) / circleSegments)
		vertices[i] = ms2.Add(center, ms2.Scale(radius, ms2.Vec{X: c, Y: s}))
	}
	return p.Polygon(vertices[:])
}

// Rect fills the axis aligned rectangle.
func (p *Painter) Rect(bb ms2.Box) error {
	return p.Polygon([]ms2.Vec{
		bb.Min,
		{X: bb.Max.X, Y: bb.Min.Y},
		bb.Max,
		{X: bb.Min.X, Y: bb.Max.Y},
	})
}

// Paint implements [raster.Painter].
func (p *Painter) Paint(spans []raster.Span, done bool) {
	for _, span := range spans {
		if span.Y < 0 || span.Y >= p.tex.Size {
			continue
		}
		alpha := float32(span.Alpha) / 0xffff
		x0, x1 := max(span.X0, 0), min(span.X1, p.tex.Size)
		for x := x0; x < x1; x++ {
			old := p.tex.Texel(x, span.Y)
			v := math.Max(old[0], alpha)
			p.tex.SetTexel(x, span.Y, [4]float32{v, v, v, 1})
		}
	}
}

func toFixed(v ms2.Vec) fixed.Point26_6 {
	return fixed.Point26_6{
		X: fixed.Int26_6(math.Round(v.X * 64)),
		Y: fixed.Int26_6(math.Round(v.Y * 64)),
	}
}
