package grid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/chewxy/math32"
	"github.com/soypat/glgl/math/ms1"
	"github.com/x448/float16"
)

var (
	errBadSize   = errors.New("texture size must be positive")
	errBadFormat = errors.New("unknown texture format")
)

var _ image.Image = (*Texture)(nil) // Interface implementation compile-time check.

// Texture is a square, densely packed 2D image of a fixed pixel [Format].
// It is the type callers hand to and receive from the pipeline: seed masks,
// model-space positions and the resolved shadow threshold map are all Textures.
// Texel (0,0) is the top-left corner.
type Texture struct {
	// Name identifies the texture in log messages.
	Name   string
	Size   int
	Format Format
	// Pix holds Size*Size texels, row major, little endian.
	Pix []byte
}

// NewTexture allocates a zeroed texture of size*size texels.
func NewTexture(name string, size int, format Format) (*Texture, error) {
	if size <= 0 {
		return nil, errBadSize
	} else if !format.IsValid() {
		return nil, errBadFormat
	}
	return &Texture{
		Name:   name,
		Size:   size,
		Format: format,
		Pix:    make([]byte, size*size*format.BytesPerTexel()),
	}, nil
}

// FromImage converts img into a texture of the given format. img must be square.
func FromImage(name string, img image.Image, format Format) (*Texture, error) {
	bb := img.Bounds()
	if bb.Dx() != bb.Dy() {
		return nil, fmt.Errorf("image %q is %dx%d, textures must be square", name, bb.Dx(), bb.Dy())
	}
	tex, err := NewTexture(name, bb.Dx(), format)
	if err != nil {
		return nil, err
	}
	for y := 0; y < tex.Size; y++ {
		for x := 0; x < tex.Size; x++ {
			c := color.NRGBA64Model.Convert(img.At(bb.Min.X+x, bb.Min.Y+y)).(color.NRGBA64)
			tex.SetTexel(x, y, [4]float32{
				float32(c.R) / 0xffff,
				float32(c.G) / 0xffff,
				float32(c.B) / 0xffff,
				float32(c.A) / 0xffff,
			})
		}
	}
	return tex, nil
}

// Clone returns a deep copy of t.
func (t *Texture) Clone() *Texture {
	cp := *t
	cp.Pix = append([]byte(nil), t.Pix...)
	return &cp
}

func (t *Texture) offset(x, y int) int {
	return (y*t.Size + x) * t.Format.BytesPerTexel()
}

// Texel decodes the texel at (x,y) into RGBA channels. Single channel formats
// replicate their value into RGB and report an alpha of 1.
func (t *Texture) Texel(x, y int) (rgba [4]float32) {
	off := t.offset(x, y)
	p := t.Pix[off : off+t.Format.BytesPerTexel()]
	switch t.Format {
	case FormatR8G8B8A8:
		for i := range rgba {
			rgba[i] = float32(p[i]) / 255
		}
	case FormatFloatRGBA:
		for i := range rgba {
			rgba[i] = float16.Frombits(binary.LittleEndian.Uint16(p[2*i:])).Float32()
		}
	case FormatA32B32G32R32F:
		for i := range rgba {
			rgba[i] = math32.Float32frombits(binary.LittleEndian.Uint32(p[4*i:]))
		}
	case FormatR8:
		v := float32(p[0]) / 255
		rgba = [4]float32{v, v, v, 1}
	case FormatR32F:
		v := math32.Float32frombits(binary.LittleEndian.Uint32(p))
		rgba = [4]float32{v, v, v, 1}
	default:
		panic("texel read of unknown format")
	}
	return rgba
}

// SetTexel encodes rgba into the texel at (x,y). Unorm formats clamp to [0,1].
// Single channel formats store the red channel only.
func (t *Texture) SetTexel(x, y int, rgba [4]float32) {
	off := t.offset(x, y)
	p := t.Pix[off : off+t.Format.BytesPerTexel()]
	switch t.Format {
	case FormatR8G8B8A8:
		for i, v := range rgba {
			p[i] = unorm8(v)
		}
	case FormatFloatRGBA:
		for i, v := range rgba {
			binary.LittleEndian.PutUint16(p[2*i:], float16.Fromfloat32(v).Bits())
		}
	case FormatA32B32G32R32F:
		for i, v := range rgba {
			binary.LittleEndian.PutUint32(p[4*i:], math32.Float32bits(v))
		}
	case FormatR8:
		p[0] = unorm8(rgba[0])
	case FormatR32F:
		binary.LittleEndian.PutUint32(p, math32.Float32bits(rgba[0]))
	default:
		panic("texel write of unknown format")
	}
}

func unorm8(v float32) uint8 {
	if math32.IsNaN(v) {
		return 0
	}
	return uint8(ms1.Clamp(v, 0, 1)*255 + 0.5)
}

// Bounds implements [image.Image].
func (t *Texture) Bounds() image.Rectangle { return image.Rect(0, 0, t.Size, t.Size) }

// ColorModel implements [image.Image].
func (t *Texture) ColorModel() color.Model { return color.NRGBA64Model }

// At implements [image.Image]. Float channels are clamped to [0,1].
func (t *Texture) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= t.Size || y >= t.Size {
		return color.NRGBA64{}
	}
	v := t.Texel(x, y)
	u16 := func(f float32) uint16 {
		if math32.IsNaN(f) {
			return 0
		}
		return uint16(ms1.Clamp(f, 0, 1)*0xffff + 0.5)
	}
	return color.NRGBA64{R: u16(v[0]), G: u16(v[1]), B: u16(v[2]), A: u16(v[3])}
}
