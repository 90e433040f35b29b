// Package texeval implements the compute passes of the shadow threshold
// pipeline. A [Device] executes the passes either on the CPU, where every pass
// is dispatched tile by tile on a worker pool, or on the GPU through OpenGL
// compute shaders (requires CGo).
package texeval

import (
	"errors"
	"fmt"
	"math"

	"github.com/soypat/toonshade/grid"
	"github.com/soypat/toonshade/internal/parallel"
)

var (
	errZeroTile      = errors.New("tile size must be positive")
	errBadLayout     = errors.New("invalid layout")
	errNotAllocated  = errors.New("device resources not allocated")
	errCopyMismatch  = errors.New("copy destination does not match output threshold")
	errCopyNilOutput = errors.New("nil copy destination")
)

// Device executes the pipeline passes. Passes are recorded in dependency order
// by the caller, which is also responsible for moving resources between access
// states with Transition before a pass reads or writes them.
//
// Pass methods do not return errors: the algorithm is defined for every valid
// layout. Faults of the underlying device surface at CopyTo.
type Device interface {
	// Allocate creates every intermediate buffer for one invocation. It fails
	// with [grid.ErrOutOfMemory] if the device memory budget is exceeded.
	Allocate(layout Layout) error
	// Transition moves a resource between access states and issues whatever
	// barrier the device requires for it.
	Transition(r grid.Resource, from, to grid.Access)

	// SetupSeedFlags rasterizes the seed mask of seed into layer of SeedFlags.
	SetupSeedFlags(layer int, seed *grid.Texture)
	// SetupPosition copies pos into the Position buffer.
	SetupPosition(pos *grid.Texture)
	// DistanceSetup initializes the jump flood candidates of layer.
	DistanceSetup(layer int)
	// DistanceIter runs one jump flood propagation pass at the given radius.
	// flip selects which ping-pong slot is read.
	DistanceIter(layer, radius int, flip bool)
	ClearMaxDistance()
	// SDFCalc converts the jump flood candidates of layer to a signed distance
	// and accumulates the maximum distance magnitude.
	SDFCalc(layer int, flip bool)
	// Normalize rescales the signed distances of layer into [-1,1].
	Normalize(layer int)
	ClearShadowThreshold()
	// Blend writes the gradient band between layers gradient and gradient+1.
	Blend(gradient int, start, end float32)
	// ResolveThreshold masks the blended bands with the seed flags and encodes
	// them in the output format.
	ResolveThreshold()
	// CopyTo copies the resolved output into dst.
	CopyTo(dst *grid.Texture) error

	// MaxDistance reads back the reduced maximum distance magnitude.
	MaxDistance() float32
	// Dispatches returns the amount of passes dispatched since Allocate.
	Dispatches() int
	// Release frees every buffer created by Allocate.
	Release()
}

// Layout describes the buffers of one pipeline invocation.
type Layout struct {
	// Resolution is the side length of every texture.
	Resolution int
	// Layers is the amount of valid seed textures.
	Layers int
	// Output is the pixel format of the resolved threshold map.
	Output grid.Format
}

// Validate checks the layout can be allocated.
func (l Layout) Validate() error {
	switch {
	case l.Resolution <= 0:
		return fmt.Errorf("%w: resolution %d", errBadLayout, l.Resolution)
	case int64(l.Resolution)*int64(l.Resolution) > math.MaxInt32:
		// Jump-flood candidates are int32 texel indices.
		return fmt.Errorf("%w: resolution %d exceeds int32 texel indexing", errBadLayout, l.Resolution)
	case l.Layers < 2:
		return fmt.Errorf("%w: %d seed layers", errBadLayout, l.Layers)
	case !l.Output.IsThresholdOutput():
		return fmt.Errorf("%w: output format %s", errBadLayout, l.Output)
	}
	return nil
}

// ComputeConfig configures a [Device].
type ComputeConfig struct {
	// TileSize is the side of the square tile (compute thread group) each
	// dispatch is split into. Zero selects 32.
	TileSize int
	// Workers is the amount of CPU goroutines. Zero selects GOMAXPROCS.
	// Ignored by the GPU device.
	Workers int
	// MemoryLimit is the byte budget of one invocation's buffers. Zero disables the limit.
	MemoryLimit int64
}

func (cfg ComputeConfig) withDefaults() (ComputeConfig, error) {
	if cfg.TileSize == 0 {
		cfg.TileSize = parallel.DefaultTileSize
	}
	if cfg.TileSize < 0 {
		return cfg, errZeroTile
	}
	return cfg, nil
}
