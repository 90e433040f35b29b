//go:build !tinygo && cgo

package texeval

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/chewxy/math32"
	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/soypat/glgl/v4.6-core/glgl"
	"github.com/soypat/toonshade/grid"
	"github.com/soypat/toonshade/internal/parallel"
)

var _ Device = (*GPUDevice)(nil) // Interface implementation compile-time check.

// Init1x1GLFW starts a 1x1 sized GLFW window so that the GPU device can run
// compute programs on its context. It returns a termination function that
// should be called once the user is done running loads on the GPU.
func Init1x1GLFW() (terminate func(), err error) {
	_, terminate, err = glgl.InitWithCurrentWindow33(glgl.WindowConfig{
		Title:   "compute",
		Version: [2]int{4, 6},
		Width:   1,
		Height:  1,
	})
	return terminate, err
}

// GPUDevice runs every pass as an OpenGL compute program. Every pipeline
// resource is a shader storage buffer. GL errors do not interrupt the
// recorded passes, the first one is kept and returned by CopyTo.
//
// GPUDevice must be used from the goroutine that owns the GL context.
type GPUDevice struct {
	cfg    ComputeConfig
	mem    *grid.Pool
	track  grid.Tracker
	layout Layout
	groups uint32

	setupSeed, setupPos, distSetup   glgl.Program
	clearMax, normalize, clearShadow glgl.Program
	blend                            glgl.Program
	// Indexed by flip.
	distIter, sdfCalc [2]glgl.Program
	// Indexed by output format define minus one.
	resolve [3]glgl.Program

	ssbos      [numBindings]uint32
	staging    []float32
	err        error
	dispatches int
}

// NewGPUDevice compiles the compute programs. A GL context of version 4.3 or
// newer must be current, see [Init1x1GLFW].
func NewGPUDevice(cfg ComputeConfig) (*GPUDevice, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	d := &GPUDevice{
		cfg: cfg,
		mem: grid.NewPool(cfg.MemoryLimit),
	}
	ts := cfg.TileSize
	for _, c := range []struct {
		dst     *glgl.Program
		body    string
		defines []string
	}{
		{dst: &d.setupSeed, body: setupSeedFlagsShader},
		{dst: &d.setupPos, body: setupPositionShader},
		{dst: &d.distSetup, body: distanceSetupShader},
		{dst: &d.distIter[0], body: distanceIterShader},
		{dst: &d.distIter[1], body: distanceIterShader, defines: []string{"FLIP"}},
		{dst: &d.clearMax, body: clearMaxDistanceShader},
		{dst: &d.sdfCalc[0], body: sdfCalcShader},
		{dst: &d.sdfCalc[1], body: sdfCalcShader, defines: []string{"FLIP"}},
		{dst: &d.normalize, body: normalizeShader},
		{dst: &d.clearShadow, body: clearShadowShader},
		{dst: &d.blend, body: blendShader},
		{dst: &d.resolve[0], body: resolveShader, defines: []string{fmt.Sprintf("FORMAT %d", formatR8G8B8A8)}},
		{dst: &d.resolve[1], body: resolveShader, defines: []string{fmt.Sprintf("FORMAT %d", formatFloatRGBA)}},
		{dst: &d.resolve[2], body: resolveShader, defines: []string{fmt.Sprintf("FORMAT %d", formatA32B32G32R32F)}},
	} {
		*c.dst, err = glgl.CompileProgram(glgl.ShaderSource{Compute: shaderSource(c.body, ts, c.defines...)})
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("compiling GL program: %w", err)
		}
	}
	return d, nil
}

// Close releases the storage buffers and deletes the compute programs.
func (d *GPUDevice) Close() {
	d.Release()
	progs := []*glgl.Program{&d.setupSeed, &d.setupPos, &d.distSetup, &d.clearMax,
		&d.normalize, &d.clearShadow, &d.blend, &d.distIter[0], &d.distIter[1],
		&d.sdfCalc[0], &d.sdfCalc[1], &d.resolve[0], &d.resolve[1], &d.resolve[2]}
	var zero glgl.Program
	for _, prog := range progs {
		if prog.ID() != 0 {
			prog.Delete()
		}
		*prog = zero
	}
}

// Allocate implements [Device].
func (d *GPUDevice) Allocate(layout Layout) (err error) {
	if err = layout.Validate(); err != nil {
		return err
	}
	d.Release()
	res := int64(layout.Resolution)
	texels := res * res
	sizes := [numBindings]int64{
		bindSeedFlags:       4 * texels * int64(layout.Layers),
		bindPosition:        16 * texels,
		bindSDFInner:        4 * texels * 2,
		bindSDFOuter:        4 * texels * 2,
		bindMaxDistance:     4,
		bindSDFNormalized:   4 * texels * int64(layout.Layers),
		bindShadowThreshold: 4 * texels,
		bindOutput:          texels * int64(layout.Output.BytesPerTexel()),
		bindStaging:         16 * texels,
	}
	resources := [numBindings]grid.Resource{
		grid.SeedFlags, grid.Position, grid.SDFInner, grid.SDFOuter, grid.MaxDistance,
		grid.SDFNormalized, grid.ShadowThreshold, grid.OutputThreshold, grid.Position,
	}
	for i, size := range sizes {
		err = d.mem.Reserve(resources[i], size)
		if err != nil {
			d.mem.Release()
			return err
		}
	}
	var p runtime.Pinner
	p.Pin(&d.ssbos[0])
	gl.GenBuffers(numBindings, &d.ssbos[0])
	p.Unpin()
	for i, size := range sizes {
		if d.ssbos[i] == 0 {
			d.Release()
			return glErrOrMessage("zero id for SSBO set by GL during allocation")
		}
		gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, d.ssbos[i])
		gl.BufferData(gl.SHADER_STORAGE_BUFFER, int(size), nil, gl.DYNAMIC_COPY)
		gl.BindBufferBase(gl.SHADER_STORAGE_BUFFER, uint32(i), d.ssbos[i])
	}
	if err = glgl.Err(); err != nil {
		d.Release()
		return fmt.Errorf("allocating storage buffers: %w", err)
	}
	d.layout = layout
	d.groups = uint32(parallel.GroupCount(layout.Resolution, d.cfg.TileSize))
	d.staging = make([]float32, 4*texels)
	return nil
}

// Release implements [Device].
func (d *GPUDevice) Release() {
	if d.ssbos[0] != 0 {
		gl.DeleteBuffers(numBindings, &d.ssbos[0])
	}
	d.ssbos = [numBindings]uint32{}
	d.staging = nil
	d.layout = Layout{}
	d.err = nil
	d.dispatches = 0
	d.mem.Release()
	d.track.Reset()
}

// MemoryUsed returns the bytes of storage buffers allocated for the current invocation.
func (d *GPUDevice) MemoryUsed() int64 { return d.mem.Used() }

// Dispatches implements [Device].
func (d *GPUDevice) Dispatches() int { return d.dispatches }

// Transition implements [Device]. Transitions into a readable state issue a
// storage barrier so compute writes are visible to the next pass.
func (d *GPUDevice) Transition(r grid.Resource, from, to grid.Access) {
	d.track.Transition(r, from, to)
	switch to {
	case grid.AccessSRV, grid.AccessUAVCompute:
		gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	case grid.AccessCopySrc:
		gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT | gl.SHADER_STORAGE_BARRIER_BIT)
	}
}

func (d *GPUDevice) keep(err error) {
	if err != nil && d.err == nil {
		d.err = err
	}
}

// run dispatches prog over the whole grid. Uniform setters are called with
// the program bound.
func (d *GPUDevice) run(prog glgl.Program, name string, uniforms ...func(glgl.Program) error) {
	prog.Bind()
	defer prog.Unbind()
	d.keep(d.setInt(prog, "Resolution\x00", d.layout.Resolution))
	for _, set := range uniforms {
		d.keep(set(prog))
	}
	gl.DispatchCompute(d.groups, d.groups, 1)
	gl.MemoryBarrier(gl.SHADER_STORAGE_BARRIER_BIT)
	d.dispatches++
	if err := glgl.Err(); err != nil {
		d.keep(fmt.Errorf("%s pass: %w", name, err))
	}
}

func (d *GPUDevice) setInt(prog glgl.Program, name string, v int) error {
	loc, err := prog.UniformLocation(name)
	if err != nil {
		return err
	}
	return prog.SetUniformi(loc, int32(v))
}

func intUniform(d *GPUDevice, name string, v int) func(glgl.Program) error {
	return func(prog glgl.Program) error { return d.setInt(prog, name, v) }
}

func floatUniform(name string, v float32) func(glgl.Program) error {
	return func(prog glgl.Program) error {
		loc, err := prog.UniformLocation(name)
		if err != nil {
			return err
		}
		return prog.SetUniformf(loc, v)
	}
}

// upload decodes tex into the staging buffer.
func (d *GPUDevice) upload(tex *grid.Texture) {
	if tex == nil || tex.Size != d.layout.Resolution {
		panic("texture does not match allocated layout")
	}
	res := tex.Size
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			texel := tex.Texel(x, y)
			copy(d.staging[4*(y*res+x):], texel[:])
		}
	}
	var p runtime.Pinner
	p.Pin(&d.staging[0])
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, d.ssbos[bindStaging])
	gl.BufferSubData(gl.SHADER_STORAGE_BUFFER, 0, 4*len(d.staging), unsafe.Pointer(&d.staging[0]))
	p.Unpin()
	gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT)
	d.keep(glgl.Err())
}

// SetupSeedFlags implements [Device].
func (d *GPUDevice) SetupSeedFlags(layer int, seed *grid.Texture) {
	d.track.MustWrite(grid.SeedFlags)
	d.upload(seed)
	d.run(d.setupSeed, "setup seed flags", intUniform(d, "LayerIndex\x00", layer))
}

// SetupPosition implements [Device].
func (d *GPUDevice) SetupPosition(pos *grid.Texture) {
	d.track.MustWrite(grid.Position)
	d.upload(pos)
	d.run(d.setupPos, "setup position")
}

// DistanceSetup implements [Device].
func (d *GPUDevice) DistanceSetup(layer int) {
	d.track.MustRead(grid.SeedFlags)
	d.track.MustRead(grid.Position)
	d.track.MustWrite(grid.SDFInner)
	d.track.MustWrite(grid.SDFOuter)
	d.run(d.distSetup, "distance setup", intUniform(d, "LayerIndex\x00", layer))
}

// DistanceIter implements [Device].
func (d *GPUDevice) DistanceIter(layer, radius int, flip bool) {
	d.track.MustRead(grid.Position)
	d.track.MustWrite(grid.SDFInner)
	d.track.MustWrite(grid.SDFOuter)
	d.run(d.distIter[b2i(flip)], "distance iteration", intUniform(d, "Radius\x00", radius))
}

// ClearMaxDistance implements [Device].
func (d *GPUDevice) ClearMaxDistance() {
	d.track.MustWrite(grid.MaxDistance)
	d.run(d.clearMax, "clear max distance")
}

// SDFCalc implements [Device].
func (d *GPUDevice) SDFCalc(layer int, flip bool) {
	d.track.MustRead(grid.SeedFlags)
	d.track.MustRead(grid.Position)
	d.track.MustRead(grid.SDFInner)
	d.track.MustRead(grid.SDFOuter)
	d.track.MustWrite(grid.MaxDistance)
	d.track.MustWrite(grid.SDFNormalized)
	d.run(d.sdfCalc[b2i(flip)], "signed distance", intUniform(d, "LayerIndex\x00", layer))
}

// Normalize implements [Device].
func (d *GPUDevice) Normalize(layer int) {
	d.track.MustRead(grid.MaxDistance)
	d.track.MustWrite(grid.SDFNormalized)
	d.run(d.normalize, "normalize", intUniform(d, "LayerIndex\x00", layer))
}

// ClearShadowThreshold implements [Device].
func (d *GPUDevice) ClearShadowThreshold() {
	d.track.MustWrite(grid.ShadowThreshold)
	d.run(d.clearShadow, "clear shadow threshold")
}

// Blend implements [Device].
func (d *GPUDevice) Blend(gradient int, start, end float32) {
	d.track.MustRead(grid.SeedFlags)
	d.track.MustRead(grid.SDFNormalized)
	d.track.MustWrite(grid.ShadowThreshold)
	d.run(d.blend, "blend", intUniform(d, "LayerIndex\x00", gradient),
		floatUniform("Start\x00", start), floatUniform("End\x00", end))
}

// ResolveThreshold implements [Device].
func (d *GPUDevice) ResolveThreshold() {
	d.track.MustRead(grid.SeedFlags)
	d.track.MustRead(grid.ShadowThreshold)
	d.track.MustRead(grid.Position)
	d.track.MustWrite(grid.OutputThreshold)
	def := outputFormatDefine(d.layout.Output)
	d.run(d.resolve[def-1], "resolve threshold", intUniform(d, "NumLayers\x00", d.layout.Layers))
}

// MaxDistance implements [Device].
func (d *GPUDevice) MaxDistance() float32 {
	var bits [1]uint32
	gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT)
	d.keep(copySSBO(bits[:], d.ssbos[bindMaxDistance]))
	return math32.Float32frombits(bits[0])
}

// CopyTo implements [Device]. It returns the first GL error of the recorded passes.
func (d *GPUDevice) CopyTo(dst *grid.Texture) error {
	if d.ssbos[0] == 0 {
		return errNotAllocated
	} else if dst == nil {
		return errCopyNilOutput
	}
	d.track.MustRead(grid.OutputThreshold)
	if d.err != nil {
		return d.err
	}
	if dst.Size != d.layout.Resolution || dst.Format != d.layout.Output ||
		len(dst.Pix) != dst.Size*dst.Size*dst.Format.BytesPerTexel() {
		return fmt.Errorf("%w: %q is %d %s, want %d %s", errCopyMismatch, dst.Name, dst.Size, dst.Format, d.layout.Resolution, d.layout.Output)
	}
	d.dispatches++
	gl.MemoryBarrier(gl.BUFFER_UPDATE_BARRIER_BIT)
	return copySSBO(dst.Pix, d.ssbos[bindOutput])
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

func copySSBO[T any](dst []T, ssbo uint32) error {
	singleSize := int(unsafe.Sizeof(dst[0]))
	bufSize := singleSize * len(dst)
	gl.BindBuffer(gl.SHADER_STORAGE_BUFFER, ssbo)
	ptr := gl.MapBufferRange(gl.SHADER_STORAGE_BUFFER, 0, bufSize, gl.MAP_READ_BIT)
	if ptr == nil {
		return glErrOrMessage("failed to map SSBO buffer during copy")
	}
	defer gl.UnmapBuffer(gl.SHADER_STORAGE_BUFFER)
	gpuBytes := unsafe.Slice((*byte)(ptr), bufSize)
	bufBytes := unsafe.Slice((*byte)(unsafe.Pointer(&dst[0])), bufSize)
	copy(bufBytes, gpuBytes)
	return nil
}

func glErrOrMessage(defaultMsg string) (err error) {
	err = glgl.Err()
	if err == nil {
		err = errors.New(defaultMsg)
	} else {
		err = fmt.Errorf("%s: %w", defaultMsg, err)
	}
	return err
}
