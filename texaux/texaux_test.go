package texaux

import (
	"bytes"
	"image/color"
	"strings"
	"testing"

	math "github.com/chewxy/math32"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"

	"github.com/soypat/toonshade/grid"
)

func TestPainterCircle(t *testing.T) {
	const size = 64
	seed, err := NewSeed("circle", size)
	if err != nil {
		t.Fatal(err)
	}
	p := NewPainter(seed)
	err = p.Circle(ms2.Vec{X: 32, Y: 32}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if v := seed.Texel(32, 32)[0]; v != 1 {
		t.Errorf("circle center not painted, got %f", v)
	}
	if v := seed.Texel(32, 50)[0]; v != 0 {
		t.Errorf("texel outside circle painted, got %f", v)
	}
	var area float32
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			area += seed.Texel(x, y)[0]
		}
	}
	want := math.Pi * 100
	if math.Abs(area-want)/want > 0.03 {
		t.Errorf("painted area %f, want about %f", area, want)
	}
	if err := p.Circle(ms2.Vec{}, 0); err == nil {
		t.Error("expected error for zero radius")
	}
}

func TestPainterPolygon(t *testing.T) {
	seed, _ := NewSeed("poly", 32)
	p := NewPainter(seed)
	if err := p.Polygon([]ms2.Vec{{}, {X: 1}}); err == nil {
		t.Fatal("expected error for degenerate polygon")
	}
	err := p.Rect(ms2.Box{Min: ms2.Vec{X: 4, Y: 4}, Max: ms2.Vec{X: 12, Y: 8}})
	if err != nil {
		t.Fatal(err)
	}
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			inside := x >= 4 && x < 12 && y >= 4 && y < 8
			if got := seed.Texel(x, y)[0] > 0.5; got != inside {
				t.Fatalf("texel (%d,%d) painted=%v, want %v", x, y, got, inside)
			}
		}
	}
	// Painting is combined by maximum.
	err = p.Rect(ms2.Box{Min: ms2.Vec{X: 0, Y: 0}, Max: ms2.Vec{X: 6, Y: 6}})
	if err != nil {
		t.Fatal(err)
	}
	if seed.Texel(10, 6)[0] != 1 || seed.Texel(2, 2)[0] != 1 {
		t.Error("second rectangle did not combine with first")
	}
}

func TestPositionTexture(t *testing.T) {
	const size = 16
	bb := ms2.Box{Min: ms2.Vec{X: -1, Y: -1}, Max: ms2.Vec{X: 1, Y: 1}}
	hole := func(uv ms2.Vec) bool { return uv.X > 0.5 && uv.Y > 0.5 }
	pos, err := NewPositionTexture("plane", size, Masked(Plane(bb), hole))
	if err != nil {
		t.Fatal(err)
	}
	if pos.Format != grid.FormatA32B32G32R32F {
		t.Fatalf("unexpected position format %s", pos.Format)
	}
	got := pos.Texel(0, 0)
	want := [4]float32{-1 + 1.0/size, -1 + 1.0/size, 0, 1}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Fatalf("texel (0,0) got %v, want %v", got, want)
		}
	}
	if a := pos.Texel(size-1, size-1)[3]; a != 0 {
		t.Errorf("masked texel alpha got %f", a)
	}
	if _, err := NewPositionTexture("nil", size, nil); err == nil {
		t.Error("expected error for nil position function")
	}

	const radius = 3
	cyl, _ := NewPositionTexture("cylinder", size, Cylinder(radius, 4))
	first, last := cyl.Texel(0, 5), cyl.Texel(size-1, 5)
	seam := ms3.Norm(ms3.Sub(ms3.Vec{X: first[0], Y: first[1], Z: first[2]}, ms3.Vec{X: last[0], Y: last[1], Z: last[2]}))
	step := 2 * math.Pi * radius / size
	if math.Abs(seam-step) > step*0.01 {
		t.Errorf("cylinder seam texels are %f apart, want %f", seam, step)
	}
}

func TestPNGRoundtrip(t *testing.T) {
	seed, _ := NewSeed("seed", 8)
	for i := range seed.Pix {
		seed.Pix[i] = uint8(i * 3)
	}
	var buf bytes.Buffer
	err := EncodePNG(&buf, seed, nil)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodePNG("decoded", &buf, grid.FormatR8)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got.Pix, seed.Pix) {
		t.Error("PNG roundtrip changed texels")
	}
	buf.Reset()
	err = EncodePNG(&buf, seed, ColorConversionBands(3, color.Black, color.White))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecodePNG("bad", strings.NewReader("not a png"), grid.FormatR8); err == nil {
		t.Error("expected decode error")
	}
}

func TestColorConversionBands(t *testing.T) {
	conv := ColorConversionBands(4, color.Black, color.White)
	gray := func(v float32) uint8 {
		r, _, _, _ := conv(v).RGBA()
		return uint8(r >> 8)
	}
	if gray(0) != 0 || gray(1) != 255 {
		t.Errorf("endpoints got %d and %d", gray(0), gray(1))
	}
	if gray(0.3) != gray(0.26) {
		t.Error("values in the same step colored differently")
	}
	if gray(0.3) >= gray(0.6) {
		t.Error("steps not increasing")
	}
	if conv(math.NaN()) != red {
		t.Error("NaN not flagged")
	}
	if c := ColorConversionGray(0.5).(color.Gray); c.Y != 128 {
		t.Errorf("gray conversion got %d", c.Y)
	}
}

func TestRunConfig(t *testing.T) {
	const src = `
Resolution = 32
MaxRadius = 8
Format = "PF_FloatRGBA"
Output = "out.png"

[[seed]]
Name = "dark"
Layer = 1
Circles = [[8.0, 8.0, 4.0]]

[[seed]]
Name = "light"
Layer = 0
Polygons = [[[16.0, 16.0], [30.0, 16.0], [30.0, 30.0]]]
`
	cfg, err := DecodeRunConfig(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputFormat() != grid.FormatFloatRGBA || cfg.Surface != "plane" || len(cfg.Seeds) != 2 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	seeds, layers, err := cfg.LoadSeeds(cfg.Resolution)
	if err != nil {
		t.Fatal(err)
	}
	if layers[0] != 1 || layers[1] != 0 || seeds[0].Name != "dark" {
		t.Errorf("unexpected seeds %v %v", seeds[0].Name, layers)
	}
	if seeds[0].Texel(8, 8)[0] != 1 || seeds[1].Texel(28, 20)[0] != 1 {
		t.Error("seed shapes not painted")
	}
	pos, err := cfg.LoadPosition()
	if err != nil {
		t.Fatal(err)
	}
	if pos.Size != 32 {
		t.Errorf("position size %d", pos.Size)
	}

	_, err = DecodeRunConfig(strings.NewReader(src + "\nBogus = 1\n"))
	if err == nil || !strings.Contains(err.Error(), "Bogus") {
		t.Errorf("expected unknown key error, got %v", err)
	}
	_, err = DecodeRunConfig(strings.NewReader(strings.Replace(src, "PF_FloatRGBA", "PF_Nope", 1)))
	if err == nil {
		t.Error("expected unknown format error")
	}

	var buf bytes.Buffer
	def := DefaultRunConfig()
	err = WriteRunConfig(&buf, def)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeRunConfig(&buf)
	if err != nil {
		t.Fatalf("decoding default config: %v\n%s", err, buf.String())
	}
	if back.MaxRadius != def.MaxRadius || len(back.Seeds) != len(def.Seeds) || back.Seeds[1].Polygons[0][2] != def.Seeds[1].Polygons[0][2] {
		t.Errorf("default config did not roundtrip:\n%+v\n%+v", back, def)
	}
}
