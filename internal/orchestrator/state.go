package orchestrator

import (
	"fmt"

	"github.com/conn-castle/whisper-provision/internal/messages"
)

// State is a session state.
type State string

const (
	StateInit               State = "init"
	StateDetectCapabilities State = "detect-capabilities"
	StateCLIInstall         State = "cli-install"
	StateServiceInstall     State = "service-install"
	StateSummary            State = "summary"
	StateAborting           State = "aborting"
	StateDone               State = "done"
)

// transitions lists the forward edges. Aborting is reachable from every state
// except Done and always leads to Done.
var transitions = map[State][]State{
	StateInit:               {StateDetectCapabilities},
	StateDetectCapabilities: {StateCLIInstall, StateServiceInstall},
	StateCLIInstall:         {StateServiceInstall},
	StateServiceInstall:     {StateSummary},
	StateSummary:            {StateDone},
	StateAborting:           {StateDone},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from State, to State) bool {
	if to == StateAborting {
		return from != StateDone && from != StateAborting
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (o *Orchestrator) transition(to State) {
	if !CanTransition(o.state, to) {
		// Programming error: the state machine never moves backwards.
		panic(fmt.Sprintf(messages.OrchestratorIllegalTransitionFmt, o.state, to))
	}
	o.log.Debug().Str("from", string(o.state)).Str("to", string(to)).Msg("state transition")
	o.state = to
	o.history = append(o.history, to)
}
