package lookup

import (
	"fmt"
	"log/slog"
)

// State is a phase of the lookup lane.
type State string

const (
	StateGenerating  State = "GENERATING"
	StateExecuting   State = "EXECUTING"
	StateSummarizing State = "SUMMARIZING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

// Terminal reports whether no further transition may leave the state.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

var transitions = map[State][]State{
	StateGenerating:  {StateExecuting, StateFailed},
	StateExecuting:   {StateSummarizing, StateFailed},
	StateSummarizing: {StateDone, StateFailed},
}

// Transition records one move of the state machine.
type Transition struct {
	From   State  `json:"from"`
	To     State  `json:"to"`
	Reason string `json:"reason,omitempty"`
}

type machine struct {
	log     *slog.Logger
	state   State
	history []Transition
}

func newMachine(log *slog.Logger) *machine {
	return &machine{log: log, state: StateGenerating}
}

func (m *machine) to(next State, reason string) error {
	for _, allowed := range transitions[m.state] {
		if allowed == next {
			m.log.Debug("lookup: transition", "from", m.state, "to", next, "reason", reason)
			m.history = append(m.history, Transition{From: m.state, To: next, Reason: reason})
			m.state = next
			return nil
		}
	}
	return fmt.Errorf("invalid lookup transition %s -> %s", m.state, next)
}

func (m *machine) fail(reason string) {
	if m.state.Terminal() {
		return
	}
	// FAILED is reachable from every non-terminal state.
	_ = m.to(StateFailed, reason)
}
