// Package grid manages the 2D and layered 2D buffers the shadow threshold
// pipeline reads and writes: caller-facing [Texture]s, pipeline-internal
// [Layered] scratch buffers allocated from a [Pool], and the access state of
// every pipeline resource tracked by a [Tracker].
package grid

import (
	"errors"
	"fmt"
	"math"
	"unsafe"
)

// ErrOutOfMemory is returned when an allocation exceeds the [Pool] budget.
var ErrOutOfMemory = errors.New("grid: out of memory")

// Layered is a stack of Layers square slices sharing one allocation.
// Layer l occupies Data[l*Size*Size:(l+1)*Size*Size] in row major order.
type Layered[T any] struct {
	res    Resource
	size   int
	layers int
	Data   []T
}

// Size returns the side length of a layer in texels.
func (l *Layered[T]) Size() int { return l.size }

// Layers returns the amount of layers.
func (l *Layered[T]) Layers() int { return l.layers }

// Layer returns the texels of a single layer.
func (l *Layered[T]) Layer(layer int) []T {
	if layer < 0 || layer >= l.layers {
		panic(fmt.Sprintf("layer %d out of range [0,%d) for %s", layer, l.layers, l.res))
	}
	n := l.size * l.size
	return l.Data[layer*n : (layer+1)*n : (layer+1)*n]
}

// Index returns the index of texel (x,y) within a layer.
func (l *Layered[T]) Index(x, y int) int { return y*l.size + x }

// Pool accounts the memory of every buffer allocated during one pipeline
// invocation. The zero value has no budget limit.
type Pool struct {
	limit int64
	used  int64
	live  int
}

// NewPool returns a pool that fails allocations once limit bytes are in use.
// A limit <= 0 disables the budget.
func NewPool(limit int64) *Pool {
	return &Pool{limit: limit}
}

// Reserve accounts for a buffer of the given byte size that lives out of the
// host heap, i.e: a GPU storage buffer.
func (p *Pool) Reserve(res Resource, bytes int64) error {
	if bytes < 0 {
		return fmt.Errorf("%w: %s requested %d bytes", ErrOutOfMemory, res, bytes)
	}
	if p.limit > 0 && p.used+bytes > p.limit {
		return fmt.Errorf("%w: %s requires %d bytes, %d of %d in use", ErrOutOfMemory, res, bytes, p.used, p.limit)
	}
	p.used += bytes
	p.live++
	return nil
}

// Used returns the amount of bytes in use.
func (p *Pool) Used() int64 { return p.used }

// Live returns the amount of buffers allocated since the last Release.
func (p *Pool) Live() int { return p.live }

// Release forgets every allocation. Buffers must not be used after Release.
func (p *Pool) Release() {
	p.used = 0
	p.live = 0
}

// Alloc allocates a zeroed layered buffer of layers*size*size elements for res.
func Alloc[T any](p *Pool, res Resource, size, layers int) (*Layered[T], error) {
	if size <= 0 || layers <= 0 {
		return nil, fmt.Errorf("invalid %s dimensions %dx%dx%d", res, size, size, layers)
	}
	var z T
	n, ok := texelCount(size, layers)
	if !ok || n > math.MaxInt64/int64(unsafe.Sizeof(z)) {
		return nil, fmt.Errorf("%w: %s dimensions %dx%dx%d overflow", ErrOutOfMemory, res, size, size, layers)
	}
	err := p.Reserve(res, n*int64(unsafe.Sizeof(z)))
	if err != nil {
		return nil, err
	}
	return &Layered[T]{
		res:    res,
		size:   size,
		layers: layers,
		Data:   make([]T, n),
	}, nil
}

func texelCount(size, layers int) (int64, bool) {
	n := int64(size) * int64(size)
	if n/int64(size) != int64(size) {
		return 0, false
	}
	total := n * int64(layers)
	if total/int64(layers) != n || total > math.MaxInt32*8 {
		return 0, false
	}
	return total, true
}
