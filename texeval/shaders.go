package texeval

import (
	"fmt"

	"github.com/soypat/toonshade/grid"
)

// Storage buffer binding points shared by every compute program.
const (
	bindSeedFlags = iota
	bindPosition
	bindSDFInner
	bindSDFOuter
	bindMaxDistance
	bindSDFNormalized
	bindShadowThreshold
	bindOutput
	bindStaging
	numBindings
)

// Output encodings selected with the FORMAT define of the resolve program.
const (
	formatR8G8B8A8      = 1
	formatFloatRGBA     = 2
	formatA32B32G32R32F = 3
)

func outputFormatDefine(f grid.Format) int {
	switch f {
	case grid.FormatR8G8B8A8:
		return formatR8G8B8A8
	case grid.FormatFloatRGBA:
		return formatFloatRGBA
	case grid.FormatA32B32G32R32F:
		return formatA32B32G32R32F
	}
	return 0
}

// shaderHeader is formatted with the version defines and the thread group size.
const shaderHeader = `#version 430
%s
layout(local_size_x = %d, local_size_y = %d, local_size_z = 1) in;

#define NO_CANDIDATE -1
#define LARGENUM 3.402823466e+38
#define EPSTOL 6e-7
#define SEED_THRESHOLD 0.5

layout(std430, binding = 0) buffer SeedFlagsBuffer { uint seedFlags[]; };
layout(std430, binding = 1) buffer PositionBuffer { vec4 positions[]; };
layout(std430, binding = 2) buffer SDFInnerBuffer { int sdfInner[]; };
layout(std430, binding = 3) buffer SDFOuterBuffer { int sdfOuter[]; };
layout(std430, binding = 4) buffer MaxDistanceBuffer { uint maxDistance; };
layout(std430, binding = 5) buffer SDFNormalizedBuffer { float sdfNormalized[]; };
layout(std430, binding = 6) buffer ShadowThresholdBuffer { float shadowThreshold[]; };
layout(std430, binding = 7) buffer OutputBuffer { uint outputTexels[]; };
layout(std430, binding = 8) buffer StagingBuffer { vec4 staging[]; };

uniform int Resolution;

bool texelIndex(out ivec2 p, out int idx) {
	p = ivec2(gl_GlobalInvocationID.xy);
	idx = p.y*Resolution + p.x;
	return p.x < Resolution && p.y < Resolution;
}
`

const setupSeedFlagsShader = `
uniform int LayerIndex;

void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	seedFlags[LayerIndex*Resolution*Resolution + idx] = staging[idx].r >= SEED_THRESHOLD ? 1u : 0u;
}
`

const setupPositionShader = `
void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	positions[idx] = staging[idx];
}
`

const distanceSetupShader = `
uniform int LayerIndex;

void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	uint flag = seedFlags[LayerIndex*Resolution*Resolution + idx];
	bool valid = positions[idx].a > 0.0;
	sdfInner[idx] = (valid && flag == 1u) ? idx : NO_CANDIDATE;
	sdfOuter[idx] = (valid && flag == 0u) ? idx : NO_CANDIDATE;
}
`

const distanceIterShader = `
uniform int Radius;

#ifdef FLIP
const int srcSlot = 1;
const int dstSlot = 0;
#else
const int srcSlot = 0;
const int dstSlot = 1;
#endif

int candidate(bool inner, int i) {
	return inner ? sdfInner[i] : sdfOuter[i];
}

int propagate(bool inner, ivec2 p, int idx) {
	int base = srcSlot * Resolution * Resolution;
	int best = candidate(inner, base + idx);
	vec3 pos = positions[idx].xyz;
	float bestDist = LARGENUM;
	if (best != NO_CANDIDATE) {
		vec3 d = pos - positions[best].xyz;
		bestDist = dot(d, d);
	}
	for (int dy = -1; dy <= 1; dy++) {
		int sy = p.y + dy*Radius;
		if (sy < 0 || sy >= Resolution) continue;
		for (int dx = -1; dx <= 1; dx++) {
			int sx = p.x + dx*Radius;
			if (sx < 0 || sx >= Resolution) continue;
			int c = candidate(inner, base + sy*Resolution + sx);
			if (c == NO_CANDIDATE || c == best) continue;
			vec3 d = pos - positions[c].xyz;
			float dd = dot(d, d);
			if (dd < bestDist) {
				best = c;
				bestDist = dd;
			}
		}
	}
	return best;
}

void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	int N = Resolution*Resolution;
	if (positions[idx].a <= 0.0) {
		sdfInner[dstSlot*N + idx] = sdfInner[srcSlot*N + idx];
		sdfOuter[dstSlot*N + idx] = sdfOuter[srcSlot*N + idx];
		return;
	}
	int inner = propagate(true, p, idx);
	int outer = propagate(false, p, idx);
	sdfInner[dstSlot*N + idx] = inner;
	sdfOuter[dstSlot*N + idx] = outer;
}
`

const clearMaxDistanceShader = `
void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx) || idx != 0) return;
	maxDistance = 0u;
}
`

const sdfCalcShader = `
uniform int LayerIndex;

#ifdef FLIP
const int slot = 0;
#else
const int slot = 1;
#endif

void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	int N = Resolution*Resolution;
	vec4 pos = positions[idx];
	float d = 0.0;
	if (pos.a > 0.0) {
		uint flag = seedFlags[LayerIndex*N + idx];
		int c = flag == 1u ? sdfOuter[slot*N + idx] : sdfInner[slot*N + idx];
		if (c == NO_CANDIDATE) {
			d = flag == 1u ? -LARGENUM : LARGENUM;
		} else {
			d = sqrt(dot(pos.xyz - positions[c].xyz, pos.xyz - positions[c].xyz));
			atomicMax(maxDistance, floatBitsToUint(d));
			if (flag == 1u) d = -d;
		}
	}
	sdfNormalized[LayerIndex*N + idx] = d;
}
`

const normalizeShader = `
uniform int LayerIndex;

void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	int i = LayerIndex*Resolution*Resolution + idx;
	float m = max(uintBitsToFloat(maxDistance), EPSTOL);
	sdfNormalized[i] = clamp(sdfNormalized[i] / m, -1.0, 1.0);
}
`

const clearShadowShader = `
void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	shadowThreshold[idx] = 0.0;
}
`

const blendShader = `
uniform int LayerIndex;
uniform float Start;
uniform float End;

void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	int N = Resolution*Resolution;
	int ia = LayerIndex*N + idx;
	int ib = ia + N;
	if (seedFlags[ia] == 1u || seedFlags[ib] == 1u) return;
	float oa = max(sdfNormalized[ia], 0.0);
	float ob = max(sdfNormalized[ib], 0.0);
	if (LayerIndex > 0 && ob > max(sdfNormalized[ia-N], 0.0)) return;
	float t = clamp(oa / max(oa+ob, EPSTOL), 0.0, 1.0);
	shadowThreshold[idx] = mix(Start, End, t);
}
`

const resolveShader = `
uniform int NumLayers;

void main() {
	ivec2 p; int idx;
	if (!texelIndex(p, idx)) return;
	int N = Resolution*Resolution;
	float v = 0.0;
	if (positions[idx].a > 0.0) {
		v = shadowThreshold[idx];
		for (int k = 0; k < NumLayers; k++) {
			if (seedFlags[k*N + idx] == 1u) {
				v = float(k) / float(NumLayers-1);
			}
		}
	}
	vec4 texel = vec4(v, v, v, 1.0);
#if FORMAT == 1
	outputTexels[idx] = packUnorm4x8(texel);
#elif FORMAT == 2
	outputTexels[2*idx] = packHalf2x16(texel.rg);
	outputTexels[2*idx+1] = packHalf2x16(texel.ba);
#else
	outputTexels[4*idx] = floatBitsToUint(texel.r);
	outputTexels[4*idx+1] = floatBitsToUint(texel.g);
	outputTexels[4*idx+2] = floatBitsToUint(texel.b);
	outputTexels[4*idx+3] = floatBitsToUint(texel.a);
#endif
}
`

// shaderSource returns the null terminated source of a compute program.
// defines are inserted after the version directive.
func shaderSource(body string, tileSize int, defines ...string) string {
	var defs []byte
	for _, def := range defines {
		defs = fmt.Appendf(defs, "#define %s\n", def)
	}
	src := fmt.Sprintf(shaderHeader, defs, tileSize, tileSize)
	return src + body + "\x00"
}
