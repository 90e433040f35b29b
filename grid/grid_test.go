package grid

import (
	"errors"
	"image"
	"image/color"
	"testing"
)

func TestTextureRoundtripFormats(t *testing.T) {
	var formats = []Format{FormatR8G8B8A8, FormatFloatRGBA, FormatA32B32G32R32F}
	want := [4]float32{0, 0.25, 0.5, 1}
	for _, format := range formats {
		tex, err := NewTexture("rt", 4, format)
		if err != nil {
			t.Fatal(err)
		}
		if len(tex.Pix) != 16*format.BytesPerTexel() {
			t.Fatalf("%s: got %d bytes", format, len(tex.Pix))
		}
		tex.SetTexel(3, 2, want)
		got := tex.Texel(3, 2)
		for i := range got {
			diff := got[i] - want[i]
			if diff < -1./255 || diff > 1./255 {
				t.Errorf("%s channel %d: want %v, got %v", format, i, want[i], got[i])
			}
		}
		if v := tex.Texel(0, 0); v != [4]float32{} {
			t.Errorf("%s: expected untouched texel to be zero, got %v", format, v)
		}
	}
}

func TestTextureUnormClamp(t *testing.T) {
	tex, _ := NewTexture("clamp", 1, FormatR8G8B8A8)
	tex.SetTexel(0, 0, [4]float32{-1, 2, 0.5, 1})
	if tex.Pix[0] != 0 || tex.Pix[1] != 255 || tex.Pix[2] != 128 || tex.Pix[3] != 255 {
		t.Errorf("unexpected clamped pixel %v", tex.Pix)
	}
}

func TestNewTextureErrors(t *testing.T) {
	if _, err := NewTexture("zero", 0, FormatR8G8B8A8); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := NewTexture("bad", 8, FormatUnknown); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestFromImage(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 8))
	img.SetGray(5, 6, color.Gray{Y: 255})
	tex, err := FromImage("gray", img, FormatR8G8B8A8)
	if err != nil {
		t.Fatal(err)
	}
	if v := tex.Texel(5, 6); v[0] != 1 || v[3] != 1 {
		t.Errorf("want white texel, got %v", v)
	}
	if v := tex.Texel(0, 0); v[0] != 0 {
		t.Errorf("want black texel, got %v", v)
	}
	_, err = FromImage("rect", image.NewGray(image.Rect(0, 0, 8, 4)), FormatR8G8B8A8)
	if err == nil {
		t.Error("expected error for non-square image")
	}
}

func TestParseFormat(t *testing.T) {
	for f := FormatUnknown + 1; f < numFormats; f++ {
		got, ok := ParseFormat(f.String())
		if !ok || got != f {
			t.Errorf("ParseFormat(%q) = %v, %v", f.String(), got, ok)
		}
	}
	if _, ok := ParseFormat("PF_B8G8R8A8"); ok {
		t.Error("unexpected format parsed")
	}
}

func TestPoolBudget(t *testing.T) {
	p := NewPool(1024)
	buf, err := Alloc[float32](p, SDFNormalized, 8, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(buf.Data) != 128 || len(buf.Layer(1)) != 64 {
		t.Fatalf("unexpected buffer lengths %d %d", len(buf.Data), len(buf.Layer(1)))
	}
	if p.Used() != 512 || p.Live() != 1 {
		t.Errorf("want 512 bytes in 1 buffer, got %d in %d", p.Used(), p.Live())
	}
	_, err = Alloc[float32](p, ShadowThreshold, 16, 1)
	if !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("want ErrOutOfMemory, got %v", err)
	}
	p.Release()
	if p.Used() != 0 {
		t.Error("expected release to reset usage")
	}
	_, err = Alloc[uint8](p, SeedFlags, 0, 2)
	if err == nil {
		t.Error("expected error for zero size")
	}
}

func TestLayerIndexPanics(t *testing.T) {
	buf, _ := Alloc[uint8](NewPool(0), SeedFlags, 4, 2)
	layer := buf.Layer(1)
	layer[buf.Index(3, 2)] = 9
	if buf.Data[16+2*4+3] != 9 {
		t.Error("texel index does not address row major layer storage")
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out of range layer")
		}
	}()
	buf.Layer(2)
}

func TestTrackerTransitions(t *testing.T) {
	var tr Tracker
	tr.Transition(SeedFlags, AccessUnknown, AccessUAVCompute)
	tr.MustWrite(SeedFlags)
	tr.Transition(SeedFlags, AccessUAVCompute, AccessSRV)
	tr.MustRead(SeedFlags)
	if tr.Transitions() != 2 {
		t.Errorf("want 2 transitions, got %d", tr.Transitions())
	}
	mustPanic(t, "write in SRV", func() { tr.MustWrite(SeedFlags) })
	mustPanic(t, "read in Unknown", func() { tr.MustRead(Position) })
	mustPanic(t, "wrong source state", func() { tr.Transition(SeedFlags, AccessUAVCompute, AccessSRV) })
	mustPanic(t, "to Unknown", func() { tr.Transition(SeedFlags, AccessSRV, AccessUnknown) })
	tr.Reset()
	if tr.State(SeedFlags) != AccessUnknown {
		t.Error("expected reset state")
	}
}

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}
