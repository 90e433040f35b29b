package texeval

import (
	"fmt"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/soypat/toonshade/grid"
	"github.com/soypat/toonshade/internal/parallel"
)

var _ Device = (*CPUDevice)(nil) // Interface implementation compile-time check.

// CPUDevice executes every pass on the host. Each dispatch is split into tiles
// run concurrently on a worker pool and returns once every tile finished.
type CPUDevice struct {
	cfg    ComputeConfig
	pool   *parallel.WorkerPool
	mem    *grid.Pool
	track  grid.Tracker
	layout Layout
	tiles  []parallel.Tile

	seedFlags *grid.Layered[uint8]
	position  *grid.Layered[[4]float32]
	// Jump flood candidates. Layers 0 and 1 are the ping-pong slots.
	inner, outer *grid.Layered[int32]
	maxDist      atomic.Uint32
	sdf          *grid.Layered[float32]
	shadow       *grid.Layered[float32]
	output       *grid.Texture

	dispatches int
}

// NewCPUDevice returns a ready to use CPU device. Call Close to stop its workers.
func NewCPUDevice(cfg ComputeConfig) (*CPUDevice, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &CPUDevice{
		cfg:  cfg,
		pool: parallel.NewWorkerPool(cfg.Workers),
		mem:  grid.NewPool(cfg.MemoryLimit),
	}, nil
}

// Close releases resources and stops the worker goroutines.
func (d *CPUDevice) Close() {
	d.Release()
	d.pool.Close()
}

// Allocate implements [Device].
func (d *CPUDevice) Allocate(layout Layout) (err error) {
	if err = layout.Validate(); err != nil {
		return err
	}
	d.Release()
	defer func() {
		if err != nil {
			d.Release()
		}
	}()
	res, n := layout.Resolution, layout.Layers
	d.seedFlags, err = grid.Alloc[uint8](d.mem, grid.SeedFlags, res, n)
	if err != nil {
		return err
	}
	d.position, err = grid.Alloc[[4]float32](d.mem, grid.Position, res, 1)
	if err != nil {
		return err
	}
	d.inner, err = grid.Alloc[int32](d.mem, grid.SDFInner, res, 2)
	if err != nil {
		return err
	}
	d.outer, err = grid.Alloc[int32](d.mem, grid.SDFOuter, res, 2)
	if err != nil {
		return err
	}
	err = d.mem.Reserve(grid.MaxDistance, 4)
	if err != nil {
		return err
	}
	d.sdf, err = grid.Alloc[float32](d.mem, grid.SDFNormalized, res, n)
	if err != nil {
		return err
	}
	d.shadow, err = grid.Alloc[float32](d.mem, grid.ShadowThreshold, res, 1)
	if err != nil {
		return err
	}
	err = d.mem.Reserve(grid.OutputThreshold, int64(res)*int64(res)*int64(layout.Output.BytesPerTexel()))
	if err != nil {
		return err
	}
	d.output, err = grid.NewTexture(grid.OutputThreshold.String(), res, layout.Output)
	if err != nil {
		return err
	}
	d.layout = layout
	d.tiles = parallel.Tiles(res, d.cfg.TileSize)
	return nil
}

// Release implements [Device].
func (d *CPUDevice) Release() {
	d.seedFlags = nil
	d.position = nil
	d.inner = nil
	d.outer = nil
	d.sdf = nil
	d.shadow = nil
	d.output = nil
	d.maxDist.Store(0)
	d.tiles = nil
	d.layout = Layout{}
	d.dispatches = 0
	d.mem.Release()
	d.track.Reset()
}

// MemoryUsed returns the bytes allocated for the current invocation.
func (d *CPUDevice) MemoryUsed() int64 { return d.mem.Used() }

// Dispatches implements [Device].
func (d *CPUDevice) Dispatches() int { return d.dispatches }

// Transition implements [Device]. Dispatches are full barriers on the CPU so
// transitions are only recorded.
func (d *CPUDevice) Transition(r grid.Resource, from, to grid.Access) {
	d.track.Transition(r, from, to)
}

// dispatch runs kernel once per texel of the grid.
func (d *CPUDevice) dispatch(kernel func(x, y, idx int)) {
	buf := d.position
	d.dispatches++
	d.pool.Dispatch(d.tiles, func(t parallel.Tile) {
		for y := t.Y0; y < t.Y1; y++ {
			for x := t.X0; x < t.X1; x++ {
				kernel(x, y, buf.Index(x, y))
			}
		}
	})
}

// SetupSeedFlags implements [Device].
func (d *CPUDevice) SetupSeedFlags(layer int, seed *grid.Texture) {
	d.track.MustWrite(grid.SeedFlags)
	d.mustMatch(seed)
	flags := d.seedFlags.Layer(layer)
	d.dispatch(func(x, y, idx int) {
		flags[idx] = seedFlag(seed.Texel(x, y))
	})
}

// SetupPosition implements [Device].
func (d *CPUDevice) SetupPosition(pos *grid.Texture) {
	d.track.MustWrite(grid.Position)
	d.mustMatch(pos)
	dst := d.position.Layer(0)
	d.dispatch(func(x, y, idx int) {
		dst[idx] = pos.Texel(x, y)
	})
}

// DistanceSetup implements [Device].
func (d *CPUDevice) DistanceSetup(layer int) {
	d.track.MustRead(grid.SeedFlags)
	d.track.MustRead(grid.Position)
	d.track.MustWrite(grid.SDFInner)
	d.track.MustWrite(grid.SDFOuter)
	flags := d.seedFlags.Layer(layer)
	pos := d.position.Layer(0)
	inner, outer := d.inner.Layer(0), d.outer.Layer(0)
	d.dispatch(func(x, y, idx int) {
		inner[idx] = setupCandidate(idx, flags[idx], 1, pos[idx])
		outer[idx] = setupCandidate(idx, flags[idx], 0, pos[idx])
	})
}

// DistanceIter implements [Device]. flip=false reads slot 0 and writes slot 1.
func (d *CPUDevice) DistanceIter(layer, radius int, flip bool) {
	d.track.MustRead(grid.Position)
	d.track.MustWrite(grid.SDFInner)
	d.track.MustWrite(grid.SDFOuter)
	src, dst := 0, 1
	if flip {
		src, dst = 1, 0
	}
	res := d.layout.Resolution
	pos := d.position.Layer(0)
	innerSrc, innerDst := d.inner.Layer(src), d.inner.Layer(dst)
	outerSrc, outerDst := d.outer.Layer(src), d.outer.Layer(dst)
	d.dispatch(func(x, y, idx int) {
		innerDst[idx] = jfaStep(innerSrc, pos, res, x, y, radius)
		outerDst[idx] = jfaStep(outerSrc, pos, res, x, y, radius)
	})
}

// ClearMaxDistance implements [Device].
func (d *CPUDevice) ClearMaxDistance() {
	d.track.MustWrite(grid.MaxDistance)
	d.dispatches++
	d.maxDist.Store(0)
}

// SDFCalc implements [Device]. flip=true reads slot 0.
func (d *CPUDevice) SDFCalc(layer int, flip bool) {
	d.track.MustRead(grid.SeedFlags)
	d.track.MustRead(grid.Position)
	d.track.MustRead(grid.SDFInner)
	d.track.MustRead(grid.SDFOuter)
	d.track.MustWrite(grid.MaxDistance)
	d.track.MustWrite(grid.SDFNormalized)
	slot := 1
	if flip {
		slot = 0
	}
	flags := d.seedFlags.Layer(layer)
	pos := d.position.Layer(0)
	inner, outer := d.inner.Layer(slot), d.outer.Layer(slot)
	sdf := d.sdf.Layer(layer)
	d.dispatches++
	d.pool.Dispatch(d.tiles, func(t parallel.Tile) {
		// Reduce within the tile first, as a thread group would in shared memory.
		var local float32
		for y := t.Y0; y < t.Y1; y++ {
			for x := t.X0; x < t.X1; x++ {
				idx := d.sdf.Index(x, y)
				dist, reduce := signedDistance(idx, flags[idx], inner, outer, pos)
				sdf[idx] = dist
				if reduce {
					local = math32.Max(local, math32.Abs(dist))
				}
			}
		}
		atomicMaxFloat(&d.maxDist, local)
	})
}

// MaxDistance implements [Device].
func (d *CPUDevice) MaxDistance() float32 {
	return math32.Float32frombits(d.maxDist.Load())
}

// Normalize implements [Device].
func (d *CPUDevice) Normalize(layer int) {
	d.track.MustRead(grid.MaxDistance)
	d.track.MustWrite(grid.SDFNormalized)
	maxDist := d.MaxDistance()
	sdf := d.sdf.Layer(layer)
	d.dispatch(func(x, y, idx int) {
		sdf[idx] = normalizeDistance(sdf[idx], maxDist)
	})
}

// ClearShadowThreshold implements [Device].
func (d *CPUDevice) ClearShadowThreshold() {
	d.track.MustWrite(grid.ShadowThreshold)
	shadow := d.shadow.Layer(0)
	d.dispatch(func(x, y, idx int) {
		shadow[idx] = 0
	})
}

// Blend implements [Device].
func (d *CPUDevice) Blend(gradient int, start, end float32) {
	d.track.MustRead(grid.SeedFlags)
	d.track.MustRead(grid.SDFNormalized)
	d.track.MustWrite(grid.ShadowThreshold)
	flagsA, flagsB := d.seedFlags.Layer(gradient), d.seedFlags.Layer(gradient+1)
	sdfA, sdfB := d.sdf.Layer(gradient), d.sdf.Layer(gradient+1)
	var sdfPrev []float32
	if gradient > 0 {
		sdfPrev = d.sdf.Layer(gradient - 1)
	}
	shadow := d.shadow.Layer(0)
	d.dispatch(func(x, y, idx int) {
		var prev float32
		if sdfPrev != nil {
			prev = sdfPrev[idx]
		}
		v, active := blendBand(gradient, start, end, flagsA[idx], flagsB[idx], sdfA[idx], sdfB[idx], prev)
		if active {
			shadow[idx] = v
		}
	})
}

// ResolveThreshold implements [Device].
func (d *CPUDevice) ResolveThreshold() {
	d.track.MustRead(grid.SeedFlags)
	d.track.MustRead(grid.ShadowThreshold)
	d.track.MustRead(grid.Position)
	d.track.MustWrite(grid.OutputThreshold)
	n := d.layout.Layers
	shadow := d.shadow.Layer(0)
	pos := d.position.Layer(0)
	out := d.output
	d.dispatch(func(x, y, idx int) {
		var v float32
		if onSurface(pos[idx]) {
			v = shadow[idx]
			for k := 0; k < n; k++ {
				if d.seedFlags.Layer(k)[idx] == 1 {
					v = bandEdge(k, n)
				}
			}
		}
		out.SetTexel(x, y, [4]float32{v, v, v, 1})
	})
}

// CopyTo implements [Device].
func (d *CPUDevice) CopyTo(dst *grid.Texture) error {
	if d.output == nil {
		return errNotAllocated
	} else if dst == nil {
		return errCopyNilOutput
	}
	d.track.MustRead(grid.OutputThreshold)
	if dst.Size != d.output.Size || dst.Format != d.output.Format || len(dst.Pix) != len(d.output.Pix) {
		return fmt.Errorf("%w: %q is %d %s, want %d %s", errCopyMismatch, dst.Name, dst.Size, dst.Format, d.output.Size, d.output.Format)
	}
	d.dispatches++
	copy(dst.Pix, d.output.Pix)
	return nil
}

func (d *CPUDevice) mustMatch(tex *grid.Texture) {
	if tex == nil || tex.Size != d.layout.Resolution {
		panic("texture does not match allocated layout")
	}
}
