package toonshade

import (
	"fmt"
	"strconv"
)

// State is the stage a [Pipeline] invocation is in.
type State uint8

const (
	StateIdle State = iota
	StateValidating
	// StatePreparing rasterizes seed flags and loads positions.
	StatePreparing
	// StatePerLayerDistance runs the jump flood and distance passes of every layer.
	StatePerLayerDistance
	StateNormalizing
	StateBlending
	StateResolving
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateValidating:
		return "Validating"
	case StatePreparing:
		return "Preparing"
	case StatePerLayerDistance:
		return "PerLayerDistance"
	case StateNormalizing:
		return "Normalizing"
	case StateBlending:
		return "Blending"
	case StateResolving:
		return "Resolving"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

// IsTerminal reports whether s ends an invocation.
func (s State) IsTerminal() bool { return s == StateDone || s == StateFailed }

// canTransition reports whether next may follow s. Invocations do not fail
// once past preparation except for a device fault surfacing at the final copy.
func (s State) canTransition(next State) bool {
	switch s {
	case StateIdle:
		return next == StateValidating
	case StateValidating:
		return next == StatePreparing || next == StateFailed
	case StatePreparing:
		return next == StatePerLayerDistance || next == StateFailed
	case StatePerLayerDistance:
		return next == StateNormalizing
	case StateNormalizing:
		return next == StateBlending
	case StateBlending:
		return next == StateResolving
	case StateResolving:
		// Device faults are sticky and surface at the copy into the output,
		// which is left untouched when it fails.
		return next == StateDone || next == StateFailed
	}
	return false
}

// stateMachine tracks the state of a single invocation.
type stateMachine struct {
	state State
}

func (m *stateMachine) to(next State) {
	if !m.state.canTransition(next) {
		panic(fmt.Sprintf("illegal pipeline transition %s -> %s", m.state, next))
	}
	m.state = next
}

// reset starts a new invocation.
func (m *stateMachine) reset() {
	if !m.state.IsTerminal() && m.state != StateIdle {
		panic("pipeline reset during " + m.state.String())
	}
	m.state = StateIdle
}
