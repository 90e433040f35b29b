package grid

import (
	"fmt"
	"strconv"
)

// Resource enumerates the buffers of the shadow threshold pipeline.
type Resource uint8

const (
	SeedFlags Resource = iota
	Position
	SDFInner
	SDFOuter
	MaxDistance
	SDFNormalized
	ShadowThreshold
	OutputThreshold
	numResources
)

func (r Resource) String() string {
	switch r {
	case SeedFlags:
		return "SeedFlags"
	case Position:
		return "Position"
	case SDFInner:
		return "SDFInner"
	case SDFOuter:
		return "SDFOuter"
	case MaxDistance:
		return "MaxDistance"
	case SDFNormalized:
		return "SDFNormalized"
	case ShadowThreshold:
		return "ShadowThreshold"
	case OutputThreshold:
		return "OutputThreshold"
	}
	return "Resource(" + strconv.Itoa(int(r)) + ")"
}

// Access is the state a resource is in between passes.
type Access uint8

const (
	// AccessUnknown discards whatever state the resource was in. It is valid
	// only as the source of a transition.
	AccessUnknown Access = iota
	// AccessUAVCompute allows compute passes to write (and read back) the resource.
	AccessUAVCompute
	// AccessSRV allows passes to read the resource only.
	AccessSRV
	AccessCopySrc
	AccessCopyDst
)

func (a Access) String() string {
	switch a {
	case AccessUnknown:
		return "Unknown"
	case AccessUAVCompute:
		return "UAVCompute"
	case AccessSRV:
		return "SRV"
	case AccessCopySrc:
		return "CopySrc"
	case AccessCopyDst:
		return "CopyDst"
	}
	return "Access(" + strconv.Itoa(int(a)) + ")"
}

// Tracker records the access state of every pipeline [Resource] and rejects
// out of order transitions. Misuse is a programming error and panics.
// The zero value has every resource in [AccessUnknown].
type Tracker struct {
	state       [numResources]Access
	transitions int
}

// Transition moves r from one access state to another. A from of
// [AccessUnknown] matches any current state.
func (t *Tracker) Transition(r Resource, from, to Access) {
	if r >= numResources {
		panic("transition of unknown resource " + r.String())
	} else if to == AccessUnknown {
		panic("transition of " + r.String() + " to Unknown access")
	}
	if from != AccessUnknown && t.state[r] != from {
		panic(fmt.Sprintf("transition of %s from %s but resource is in %s", r, from, t.state[r]))
	}
	t.state[r] = to
	t.transitions++
}

// State returns the current access state of r.
func (t *Tracker) State(r Resource) Access { return t.state[r] }

// MustRead panics if r may not be read by a pass.
func (t *Tracker) MustRead(r Resource) {
	if s := t.state[r]; s != AccessSRV && s != AccessCopySrc {
		panic(fmt.Sprintf("read of %s in %s state", r, s))
	}
}

// MustWrite panics if r may not be written by a compute pass.
func (t *Tracker) MustWrite(r Resource) {
	if t.state[r] != AccessUAVCompute {
		panic(fmt.Sprintf("write of %s in %s state", r, t.state[r]))
	}
}

// Transitions returns the amount of transitions recorded since the last Reset.
func (t *Tracker) Transitions() int { return t.transitions }

// Reset returns every resource to AccessUnknown.
func (t *Tracker) Reset() { *t = Tracker{} }
