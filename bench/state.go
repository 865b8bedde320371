package bench

import "fmt"

// State is the harness position. A harness moves forward only:
//
//	Idle -> Loading -> Measuring -> (Loading -> Measuring)... -> Reporting -> Done
type State int32

const (
	StateIdle State = iota
	StateLoading
	StateMeasuring
	StateReporting
	StateDone
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateMeasuring:
		return "measuring"
	case StateReporting:
		return "reporting"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Phase names one timed step of a backend's measurement.
type Phase string

const (
	PhaseLoad      Phase = "load"
	PhaseFirstCall Phase = "first-call"
	PhaseSteady    Phase = "steady-state"
)
