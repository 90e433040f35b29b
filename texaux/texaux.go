// Package texaux provides auxiliary functions to get inputs in and results
// out of the shadow threshold pipeline: PNG coding, seed mask painting,
// synthetic position surfaces, run configuration files and visualization.
// Ideally users feed textures straight from their renderer since applications
// vary widely.
package texaux

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/soypat/toonshade/grid"
)

// DecodePNG decodes a PNG image into a texture of the given format.
func DecodePNG(name string, r io.Reader, format grid.Format) (*grid.Texture, error) {
	img, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding %q: %w", name, err)
	}
	return grid.FromImage(name, img, format)
}

// LoadPNG reads a PNG file into a texture named after the file.
func LoadPNG(filename string, format grid.Format) (*grid.Texture, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	return DecodePNG(filename, fp, format)
}

// EncodePNG writes tex as a PNG. If colorConversion is non-nil it maps the
// red channel of every texel to the written color, otherwise texels are
// written as they are.
func EncodePNG(w io.Writer, tex *grid.Texture, colorConversion func(float32) color.Color) error {
	var img image.Image = tex
	if colorConversion != nil {
		img = Colorize(tex, colorConversion)
	}
	return png.Encode(w, img)
}

// WritePNGFile writes tex to a PNG file with said filename. See [EncodePNG].
func WritePNGFile(filename string, tex *grid.Texture, colorConversion func(float32) color.Color) error {
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	err = EncodePNG(fp, tex, colorConversion)
	if err != nil {
		return err
	}
	return fp.Sync()
}

// Colorize maps the red channel of every texel of tex through colorConversion.
func Colorize(tex *grid.Texture, colorConversion func(float32) color.Color) *image.RGBA {
	img := image.NewRGBA(tex.Bounds())
	for y := 0; y < tex.Size; y++ {
		for x := 0; x < tex.Size; x++ {
			img.Set(x, y, colorConversion(tex.Texel(x, y)[0]))
		}
	}
	return img
}
