//go:build !tinygo && cgo

package texeval

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/toonshade/grid"
)

// errNoGPU is set when no OpenGL 4.6 context is available.
var errNoGPU = errors.New("no OpenGL context")

var gpuResult error

// GPU work must run on the main thread, which TestMain owns.
func TestMain(m *testing.M) {
	runtime.LockOSThread()
	gpuResult = testGPUMatchesCPU()
	runtime.UnlockOSThread()
	os.Exit(m.Run())
}

func TestGPUMatchesCPU(t *testing.T) {
	if errors.Is(gpuResult, errNoGPU) {
		t.Skip(gpuResult)
	}
	if gpuResult != nil {
		t.Fatal(gpuResult)
	}
}

func testGPUMatchesCPU() error {
	term, err := Init1x1GLFW()
	if err != nil {
		log.Println("skipping GPU tests:", err)
		return fmt.Errorf("%w: %v", errNoGPU, err)
	}
	defer term()
	const (
		res       = 64
		maxRadius = 9
	)
	pos, seeds, err := gpuInputs(res)
	if err != nil {
		return err
	}
	cpu, err := NewCPUDevice(ComputeConfig{})
	if err != nil {
		return err
	}
	defer cpu.Close()
	gpu, err := NewGPUDevice(ComputeConfig{})
	if err != nil {
		return err
	}
	defer gpu.Close()

	for _, format := range []grid.Format{grid.FormatR8G8B8A8, grid.FormatFloatRGBA, grid.FormatA32B32G32R32F} {
		want, _ := grid.NewTexture("cpu", res, format)
		got, _ := grid.NewTexture("gpu", res, format)
		wantMax, err := runPasses(cpu, seeds, pos, maxRadius, want)
		if err != nil {
			return fmt.Errorf("cpu %s: %w", format, err)
		}
		gotMax, err := runPasses(gpu, seeds, pos, maxRadius, got)
		if err != nil {
			return fmt.Errorf("gpu %s: %w", format, err)
		}
		if math32.Abs(wantMax-gotMax) > 1e-4*wantMax {
			return fmt.Errorf("%s: max distance cpu=%f gpu=%f", format, wantMax, gotMax)
		}
		for y := 0; y < res; y++ {
			for x := 0; x < res; x++ {
				w, g := want.Texel(x, y), got.Texel(x, y)
				for c := range w {
					// One unorm step of slack for rounding at quantization edges.
					if math32.Abs(w[c]-g[c]) > 1.01/255 {
						return fmt.Errorf("%s texel (%d,%d): cpu=%v gpu=%v", format, x, y, w, g)
					}
				}
			}
		}
	}
	return nil
}

// runPasses issues every pass of an invocation the way the pipeline does and
// returns the maximum distance.
func runPasses(d Device, seeds []*grid.Texture, pos *grid.Texture, maxRadius int, out *grid.Texture) (float32, error) {
	n := len(seeds)
	err := d.Allocate(Layout{Resolution: pos.Size, Layers: n, Output: out.Format})
	if err != nil {
		return 0, err
	}
	defer d.Release()
	d.Transition(grid.SeedFlags, grid.AccessUnknown, grid.AccessUAVCompute)
	for i, seed := range seeds {
		d.SetupSeedFlags(i, seed)
	}
	d.Transition(grid.SeedFlags, grid.AccessUAVCompute, grid.AccessSRV)
	d.Transition(grid.Position, grid.AccessUnknown, grid.AccessUAVCompute)
	d.SetupPosition(pos)
	d.Transition(grid.Position, grid.AccessUAVCompute, grid.AccessSRV)
	d.Transition(grid.MaxDistance, grid.AccessUnknown, grid.AccessUAVCompute)
	d.ClearMaxDistance()
	d.Transition(grid.SDFNormalized, grid.AccessUnknown, grid.AccessUAVCompute)
	for i := range seeds {
		from := grid.AccessSRV
		if i == 0 {
			from = grid.AccessUnknown
		}
		d.Transition(grid.SDFInner, from, grid.AccessUAVCompute)
		d.Transition(grid.SDFOuter, from, grid.AccessUAVCompute)
		d.DistanceSetup(i)
		for r := 1; r <= maxRadius; r++ {
			d.DistanceIter(i, r, r%2 == 0)
		}
		d.Transition(grid.SDFInner, grid.AccessUAVCompute, grid.AccessSRV)
		d.Transition(grid.SDFOuter, grid.AccessUAVCompute, grid.AccessSRV)
		d.SDFCalc(i, maxRadius%2 == 0)
	}
	d.Transition(grid.MaxDistance, grid.AccessUAVCompute, grid.AccessSRV)
	maxDist := d.MaxDistance()
	for i := range seeds {
		d.Normalize(i)
	}
	d.Transition(grid.SDFNormalized, grid.AccessUAVCompute, grid.AccessSRV)
	d.Transition(grid.ShadowThreshold, grid.AccessUnknown, grid.AccessUAVCompute)
	d.ClearShadowThreshold()
	for g := 0; g < n-1; g++ {
		d.Blend(g, bandEdge(g, n), bandEdge(g+1, n))
	}
	d.Transition(grid.ShadowThreshold, grid.AccessUAVCompute, grid.AccessSRV)
	d.Transition(grid.OutputThreshold, grid.AccessUnknown, grid.AccessUAVCompute)
	d.ResolveThreshold()
	d.Transition(grid.OutputThreshold, grid.AccessUAVCompute, grid.AccessCopySrc)
	return maxDist, d.CopyTo(out)
}

func gpuInputs(res int) (pos *grid.Texture, seeds []*grid.Texture, err error) {
	pos, err = grid.NewTexture("position", res, grid.FormatA32B32G32R32F)
	if err != nil {
		return nil, nil, err
	}
	hole := disc(50, 12, 5)
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			var a float32 = 1
			if hole(x, y) {
				a = 0
			}
			pos.SetTexel(x, y, [4]float32{float32(x) + .5, float32(y) + .5, 0, a})
		}
	}
	for _, inside := range []func(x, y int) bool{disc(16, 20, 10), disc(40, 40, 8), disc(20, 52, 6)} {
		seed, err := grid.NewTexture("seed", res, grid.FormatR8)
		if err != nil {
			return nil, nil, err
		}
		for y := 0; y < res; y++ {
			for x := 0; x < res; x++ {
				if inside(x, y) {
					seed.SetTexel(x, y, [4]float32{1, 1, 1, 1})
				}
			}
		}
		seeds = append(seeds, seed)
	}
	return pos, seeds, nil
}
