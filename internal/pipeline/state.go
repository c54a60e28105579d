package pipeline

import "fmt"

// State is a step of a run.
type State int

const (
	StateInit State = iota
	StateDimensionsKnown
	StateAccumulated
	StateBackgroundReady
	StateMaskReady
	StatePersisted
	StateDone
)

var stateNames = [...]string{
	StateInit:            "init",
	StateDimensionsKnown: "dimensions-known",
	StateAccumulated:     "accumulated",
	StateBackgroundReady: "background-ready",
	StateMaskReady:       "mask-ready",
	StatePersisted:       "persisted",
	StateDone:            "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}
