package texaux

import (
	"errors"

	math "github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"

	"github.com/soypat/toonshade/grid"
)

// PositionFunc returns the model-space position of texture coordinate uv in
// [0,1]x[0,1] and whether the coordinate lies on the surface.
type PositionFunc func(uv ms2.Vec) (pos ms3.Vec, onSurface bool)

// Plane maps texture coordinates onto the z=0 rectangle bb.
func Plane(bb ms2.Box) PositionFunc {
	sz := bb.Size()
	return func(uv ms2.Vec) (ms3.Vec, bool) {
		return ms3.Vec{X: bb.Min.X + uv.X*sz.X, Y: bb.Min.Y + uv.Y*sz.Y}, true
	}
}

// Cylinder wraps texture coordinates around the side of a cylinder of the
// given radius and height centered on the z axis: u runs along the
// circumference and v along the height. Texels at u=0 and u=1 are neighbors
// in model space.
func Cylinder(radius, height float32) PositionFunc {
	return func(uv ms2.Vec) (ms3.Vec, bool) {
		s, c := math.Sincos(2 * math.Pi * uv.X)
		return ms3.Vec{X: radius * c, Y: radius * s, Z: (uv.Y - 0.5) * height}, true
	}
}

// Masked marks texels for which hole returns true as off the surface.
func Masked(f PositionFunc, hole func(uv ms2.Vec) bool) PositionFunc {
	return func(uv ms2.Vec) (ms3.Vec, bool) {
		if hole(uv) {
			return ms3.Vec{}, false
		}
		return f(uv)
	}
}

// NewPositionTexture samples f at every texel center into a float RGBA
// position texture: RGB holds the position, alpha is 1 on the surface and 0 off it.
func NewPositionTexture(name string, size int, f PositionFunc) (*grid.Texture, error) {
	if f == nil {
		return nil, errors.New("nil position function")
	}
	tex, err := grid.NewTexture(name, size, grid.FormatA32B32G32R32F)
	if err != nil {
		return nil, err
	}
	inv := 1 / float32(size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			uv := ms2.Vec{X: (float32(x) + 0.5) * inv, Y: (float32(y) + 0.5) * inv}
			pos, ok := f(uv)
			if !ok {
				continue
			}
			tex.SetTexel(x, y, [4]float32{pos.X, pos.Y, pos.Z, 1})
		}
	}
	return tex, nil
}
