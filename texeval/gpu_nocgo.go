//go:build tinygo || !cgo

package texeval

import (
	"errors"

	"github.com/soypat/toonshade/grid"
)

// ErrNoCGO is returned by the GPU device when built without CGo.
var ErrNoCGO = errors.New("GPU evaluation requires CGo and is not supported on TinyGo")

var _ Device = (*GPUDevice)(nil) // Interface implementation compile-time check.

// Init1x1GLFW requires CGo.
func Init1x1GLFW() (terminate func(), err error) { return nil, ErrNoCGO }

// GPUDevice requires CGo.
type GPUDevice struct{}

// NewGPUDevice requires CGo.
func NewGPUDevice(cfg ComputeConfig) (*GPUDevice, error) { return nil, ErrNoCGO }

func (d *GPUDevice) Close()                                           {}
func (d *GPUDevice) Allocate(Layout) error                            { return ErrNoCGO }
func (d *GPUDevice) Transition(r grid.Resource, from, to grid.Access) {}
func (d *GPUDevice) SetupSeedFlags(layer int, seed *grid.Texture)     {}
func (d *GPUDevice) SetupPosition(pos *grid.Texture)                  {}
func (d *GPUDevice) DistanceSetup(layer int)                          {}
func (d *GPUDevice) DistanceIter(layer, radius int, flip bool)        {}
func (d *GPUDevice) ClearMaxDistance()                                {}
func (d *GPUDevice) SDFCalc(layer int, flip bool)                     {}
func (d *GPUDevice) Normalize(layer int)                              {}
func (d *GPUDevice) ClearShadowThreshold()                            {}
func (d *GPUDevice) Blend(gradient int, start, end float32)           {}
func (d *GPUDevice) ResolveThreshold()                                {}
func (d *GPUDevice) CopyTo(dst *grid.Texture) error                   { return ErrNoCGO }
func (d *GPUDevice) MaxDistance() float32                             { return 0 }
func (d *GPUDevice) Dispatches() int                                  { return 0 }
func (d *GPUDevice) Release()                                         {}
func (d *GPUDevice) MemoryUsed() int64                                { return 0 }
