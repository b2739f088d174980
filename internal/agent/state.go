package agent

import "adorable/internal/client"

// State is a step of the agent loop.
type State int

const (
	// StateThink asks the model for the next turn.
	StateThink State = iota
	// StateAct runs the tool calls of the latest turn.
	StateAct
	// StateEnd is terminal.
	StateEnd
)

func (s State) String() string {
	switch s {
	case StateThink:
		return "think"
	case StateAct:
		return "act"
	case StateEnd:
		return "end"
	default:
		return "unknown"
	}
}

// next is the transition function. A turn carrying only corrections goes
// back to the model so it can reissue the calls.
func next(s State, turn *client.AssistantTurn) State {
	switch s {
	case StateThink:
		switch {
		case turn == nil:
			return StateEnd
		case len(turn.ToolCalls) > 0:
			return StateAct
		case len(turn.Corrections) > 0:
			return StateThink
		default:
			return StateEnd
		}
	case StateAct:
		return StateThink
	default:
		return StateEnd
	}
}
