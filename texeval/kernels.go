package texeval

import (
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/math/ms1"
)

// Per-texel kernels shared by the CPU device. The GLSL sources in shaders.go
// implement the same arithmetic.

const (
	// noCandidate marks a jump flood texel with no nearest candidate found yet.
	noCandidate int32 = -1
	// seedThreshold is the red channel value at which a seed texture texel
	// belongs to the seed mask.
	seedThreshold = 0.5
	// epstol is the smallest denominator used for normalization and band interpolation.
	epstol = 6e-7
	// largenum is the distance of a texel whose candidate was never found.
	largenum = math32.MaxFloat32
)

func seedFlag(texel [4]float32) uint8 {
	if texel[0] >= seedThreshold {
		return 1
	}
	return 0
}

// onSurface reports whether a position texel lies on the painted surface.
func onSurface(p [4]float32) bool { return p[3] > 0 }

func vec(p [4]float32) ms3.Vec { return ms3.Vec{X: p[0], Y: p[1], Z: p[2]} }

func dist2(a, b ms3.Vec) float32 {
	d := ms3.Sub(a, b)
	return ms3.Dot(d, d)
}

// setupCandidate returns the initial jump flood candidate of texel idx: the
// texel itself when its flag matches want, noCandidate otherwise.
func setupCandidate(idx int, flag, want uint8, pos [4]float32) int32 {
	if flag == want && onSurface(pos) {
		return int32(idx)
	}
	return noCandidate
}

// jfaStep samples the 9 texels at offsets {-radius,0,radius}² around (x,y) in src
// and returns the candidate nearest to (x,y) in model space.
func jfaStep(src []int32, pos [][4]float32, res, x, y, radius int) int32 {
	idx := y*res + x
	best := src[idx]
	p := pos[idx]
	if !onSurface(p) {
		return best
	}
	pv := vec(p)
	var bestDist float32 = largenum
	if best != noCandidate {
		bestDist = dist2(pv, vec(pos[best]))
	}
	for dy := -1; dy <= 1; dy++ {
		sy := y + dy*radius
		if sy < 0 || sy >= res {
			continue
		}
		row := src[sy*res : (sy+1)*res]
		for dx := -1; dx <= 1; dx++ {
			sx := x + dx*radius
			if sx < 0 || sx >= res {
				continue
			}
			c := row[sx]
			if c == noCandidate || c == best {
				continue
			}
			d := dist2(pv, vec(pos[c]))
			if d < bestDist {
				best, bestDist = c, d
			}
		}
	}
	return best
}

// signedDistance returns the distance of texel idx to the boundary of its seed
// mask: positive outside, negative inside. reduce is false for texels that
// must not contribute to the maximum distance.
func signedDistance(idx int, flag uint8, inner, outer []int32, pos [][4]float32) (d float32, reduce bool) {
	p := pos[idx]
	if !onSurface(p) {
		return 0, false
	}
	if flag == 1 {
		c := outer[idx]
		if c == noCandidate {
			return -largenum, false
		}
		return -math32.Sqrt(dist2(vec(p), vec(pos[c]))), true
	}
	c := inner[idx]
	if c == noCandidate {
		return largenum, false
	}
	return math32.Sqrt(dist2(vec(p), vec(pos[c]))), true
}

func normalizeDistance(d, maxDist float32) float32 {
	return ms1.Clamp(d/math32.Max(maxDist, epstol), -1, 1)
}

// blendBand returns the threshold of a texel in the band between layers
// gradient and gradient+1. prev is the normalized distance of layer
// gradient-1 and is ignored for the first band.
func blendBand(gradient int, start, end float32, flagA, flagB uint8, a, b, prev float32) (v float32, active bool) {
	if flagA == 1 || flagB == 1 {
		return 0, false
	}
	oa := math32.Max(a, 0)
	ob := math32.Max(b, 0)
	if gradient > 0 && ob > math32.Max(prev, 0) {
		return 0, false
	}
	t := ms1.Clamp(oa/math32.Max(oa+ob, epstol), 0, 1)
	return ms1.Interp(start, end, t), true
}

// bandEdge returns the threshold at the lower edge of band i of n seed layers.
func bandEdge(i, n int) float32 {
	return float32(i) / float32(n-1)
}

// atomicMaxFloat stores max(*u, v) as float bits. v must be non-negative,
// for which float bit patterns order the same as unsigned integers.
func atomicMaxFloat(u *atomic.Uint32, v float32) {
	bits := math32.Float32bits(v)
	for {
		old := u.Load()
		if old >= bits || u.CompareAndSwap(old, bits) {
			return
		}
	}
}
