// Package toonshade builds shadow threshold maps for toon shading. Given a
// stack of painted seed masks, one per shading layer, and a texture of the
// model-space position of every texel, it computes a signed distance field per
// layer with the jump flood algorithm and blends neighboring layers into a
// single map holding, per texel, the lighting threshold at which the texel
// switches shade.
package toonshade

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/soypat/toonshade/grid"
	"github.com/soypat/toonshade/texeval"
)

// Config configures a [Pipeline].
type Config struct {
	// Device executes the compute passes. If nil the pipeline creates a
	// [texeval.CPUDevice] with the default compute configuration.
	Device texeval.Device
	// Logger overrides the package logger set with [SetLogger].
	Logger *slog.Logger
}

// Pipeline runs shadow threshold map invocations on a [texeval.Device]. Each
// invocation is independent: no state is kept between calls other than the
// device. A Pipeline must not be used concurrently.
type Pipeline struct {
	dev    texeval.Device
	owned  *texeval.CPUDevice
	log    *slog.Logger
	sm     stateMachine
	passes int
}

// NewPipeline returns a pipeline ready to run invocations. Call Close
// when done to release the device if it was created by the pipeline.
func NewPipeline(cfg Config) (*Pipeline, error) {
	p := &Pipeline{
		dev: cfg.Device,
		log: cfg.Logger,
	}
	if p.dev == nil {
		cpu, err := texeval.NewCPUDevice(texeval.ComputeConfig{})
		if err != nil {
			return nil, err
		}
		p.dev = cpu
		p.owned = cpu
	}
	return p, nil
}

// Close releases the device when it was created by NewPipeline.
func (p *Pipeline) Close() {
	if p.owned != nil {
		p.owned.Close()
		p.owned = nil
	}
}

// State returns the state of the last invocation.
func (p *Pipeline) State() State { return p.sm.state }

// Dispatches returns the amount of device passes the last invocation issued.
func (p *Pipeline) Dispatches() int { return p.passes }

func (p *Pipeline) logger() *slog.Logger {
	if p.log != nil {
		return p.log
	}
	return Logger()
}

func (p *Pipeline) to(next State) {
	p.sm.to(next)
	p.logger().Debug("pipeline state", slog.String("state", next.String()))
}

// CreateShadowThresholdMap overwrites out with the shadow threshold map of
// the seed masks. Nil seeds are ignored, the rest are assigned ascending
// layers in slice order. position holds the model-space position of every
// texel in RGB, texels with alpha <= 0 are off the surface. maxRadius is the
// largest jump flood sampling offset in texels, it bounds both accuracy and cost.
//
// Inputs are validated before any pass runs. Every failure is logged and
// returned, in which case out is left untouched. The returned error matches
// one of the package's precondition errors or [grid.ErrOutOfMemory] with [errors.Is].
func (p *Pipeline) CreateShadowThresholdMap(seeds []*grid.Texture, position *grid.Texture, maxRadius int, out *grid.Texture) error {
	start := time.Now()
	log := p.logger()
	p.sm.reset()
	p.passes = 0
	p.to(StateValidating)
	valid, res, err := validate(log, seeds, position, maxRadius, out)
	if err != nil {
		p.to(StateFailed)
		return err
	}

	p.to(StatePreparing)
	layout := texeval.Layout{Resolution: res, Layers: len(valid), Output: out.Format}
	err = p.dev.Allocate(layout)
	if err != nil {
		log.Warn("allocating pipeline resources", slog.Int("resolution", res), slog.Int("layers", len(valid)), slog.String("err", err.Error()))
		p.to(StateFailed)
		return fmt.Errorf("allocating pipeline resources: %w", err)
	}
	defer p.dev.Release()
	p.prepare(valid, position)

	p.to(StatePerLayerDistance)
	for layer := range valid {
		log.Debug("layer distance", slog.Int("layer", layer), slog.String("seed", valid[layer].Name))
		p.distance(layer, maxRadius)
	}

	p.to(StateNormalizing)
	p.normalize(len(valid))

	p.to(StateBlending)
	p.blend(len(valid))

	p.to(StateResolving)
	p.resolve()
	err = p.dev.CopyTo(out)
	p.passes = p.dev.Dispatches()
	if err != nil {
		log.Warn("copying shadow threshold map", slog.String("texture", out.Name), slog.String("err", err.Error()))
		p.to(StateFailed)
		return fmt.Errorf("copying shadow threshold map: %w", err)
	}
	p.to(StateDone)
	log.Info("CreateShadowThresholdMap", slog.Duration("elapsed", time.Since(start)),
		slog.Int("resolution", res), slog.Int("layers", len(valid)), slog.Int("maxRadius", maxRadius))
	log.Debug("CreateShadowThresholdMap passes", slog.Int("dispatches", p.passes))
	return nil
}

// prepare rasterizes every seed mask, loads positions and resets the
// maximum distance accumulator.
func (p *Pipeline) prepare(seeds []*grid.Texture, position *grid.Texture) {
	d := p.dev
	d.Transition(grid.SeedFlags, grid.AccessUnknown, grid.AccessUAVCompute)
	for layer, seed := range seeds {
		d.SetupSeedFlags(layer, seed)
	}
	d.Transition(grid.SeedFlags, grid.AccessUAVCompute, grid.AccessSRV)

	d.Transition(grid.Position, grid.AccessUnknown, grid.AccessUAVCompute)
	d.SetupPosition(position)
	d.Transition(grid.Position, grid.AccessUAVCompute, grid.AccessSRV)

	d.Transition(grid.MaxDistance, grid.AccessUnknown, grid.AccessUAVCompute)
	d.ClearMaxDistance()
	d.Transition(grid.SDFNormalized, grid.AccessUnknown, grid.AccessUAVCompute)
}

// distance runs the jump flood over layer at ascending radius and writes
// its signed distance. The ping-pong slot written last is the one read next.
func (p *Pipeline) distance(layer, maxRadius int) {
	d := p.dev
	from := grid.AccessSRV
	if layer == 0 {
		from = grid.AccessUnknown
	}
	d.Transition(grid.SDFInner, from, grid.AccessUAVCompute)
	d.Transition(grid.SDFOuter, from, grid.AccessUAVCompute)
	d.DistanceSetup(layer)
	for radius := 1; radius <= maxRadius; radius++ {
		d.DistanceIter(layer, radius, radius%2 == 0)
	}
	d.Transition(grid.SDFInner, grid.AccessUAVCompute, grid.AccessSRV)
	d.Transition(grid.SDFOuter, grid.AccessUAVCompute, grid.AccessSRV)
	d.SDFCalc(layer, maxRadius%2 == 0)
}

// normalize runs after every layer contributed to the maximum distance.
func (p *Pipeline) normalize(layers int) {
	d := p.dev
	d.Transition(grid.MaxDistance, grid.AccessUAVCompute, grid.AccessSRV)
	for layer := 0; layer < layers; layer++ {
		d.Normalize(layer)
	}
	d.Transition(grid.SDFNormalized, grid.AccessUAVCompute, grid.AccessSRV)
}

// blend writes bands in ascending order, later bands overwrite earlier ones.
func (p *Pipeline) blend(layers int) {
	d := p.dev
	d.Transition(grid.ShadowThreshold, grid.AccessUnknown, grid.AccessUAVCompute)
	d.ClearShadowThreshold()
	for _, band := range Bands(layers) {
		d.Blend(band.Gradient, band.Start, band.End)
	}
	d.Transition(grid.ShadowThreshold, grid.AccessUAVCompute, grid.AccessSRV)
}

func (p *Pipeline) resolve() {
	d := p.dev
	d.Transition(grid.OutputThreshold, grid.AccessUnknown, grid.AccessUAVCompute)
	d.ResolveThreshold()
	d.Transition(grid.OutputThreshold, grid.AccessUAVCompute, grid.AccessCopySrc)
}

var (
	defaultMu       sync.Mutex
	defaultPipeline *Pipeline
)

// CreateShadowThresholdMap runs [Pipeline.CreateShadowThresholdMap] on a
// shared CPU pipeline. It is safe for concurrent use, invocations are serialized.
func CreateShadowThresholdMap(seeds []*grid.Texture, position *grid.Texture, maxRadius int, out *grid.Texture) error {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultPipeline == nil {
		p, err := NewPipeline(Config{})
		if err != nil {
			return err
		}
		defaultPipeline = p
	}
	return defaultPipeline.CreateShadowThresholdMap(seeds, position, maxRadius, out)
}
