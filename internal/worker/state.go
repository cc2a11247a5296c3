// Package worker runs a single strategy instance bound to one
// (symbol, timeframe, interval, window) tuple: the Bot Worker state
// machine and its per-iteration trading loop.
package worker

import "fmt"

// State is a Bot Worker's lifecycle state.
type State string

// Bot Worker states.
const (
	StateStarting      State = "starting"
	StateRunning       State = "running"
	StatePaused        State = "paused"
	StateWaitingMarket State = "waiting_market"
	StateStopped       State = "stopped"
)

// Transition describes one allowed move in the state diagram.
type Transition struct {
	From        State
	To          State
	Condition   string
	Description string
}

// ValidTransitions is the Bot Worker's complete state diagram: starting
// runs once then never returns to it; running and paused toggle on
// explicit pause/resume; running and waiting_market toggle as the market
// closes/reopens; any state can terminate to stopped.
var ValidTransitions = []Transition{
	{StateStarting, StateRunning, "started", "initial health and market checks passed"},

	{StateStarting, StatePaused, "paused", "pause requested before first health check"},
	{StateRunning, StatePaused, "paused", "pause requested"},
	{StateWaitingMarket, StatePaused, "paused", "pause requested while waiting for market"},
	{StatePaused, StateRunning, "resumed", "resume requested"},

	{StateRunning, StateWaitingMarket, "market_closed", "market-open gate failed"},
	{StateWaitingMarket, StateRunning, "market_reopened", "market-open gate passed again"},

	{StateStarting, StateStopped, "stopped", "stop requested"},
	{StateRunning, StateStopped, "stopped", "stop requested"},
	{StatePaused, StateStopped, "stopped", "stop requested"},
	{StateWaitingMarket, StateStopped, "stopped", "stop requested"},
}

var transitionLookup map[State]map[State]map[string]bool

func init() {
	transitionLookup = make(map[State]map[State]map[string]bool)
	for _, tr := range ValidTransitions {
		if transitionLookup[tr.From] == nil {
			transitionLookup[tr.From] = make(map[State]map[string]bool)
		}
		if transitionLookup[tr.From][tr.To] == nil {
			transitionLookup[tr.From][tr.To] = make(map[string]bool)
		}
		transitionLookup[tr.From][tr.To][tr.Condition] = true
	}
}

// StateMachine tracks a single worker's current/previous state and
// validates transitions against ValidTransitions in O(1).
type StateMachine struct {
	current  State
	previous State
}

// NewStateMachine constructs a StateMachine starting in StateStarting.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: StateStarting, previous: StateStarting}
}

// Current returns the current state.
func (sm *StateMachine) Current() State { return sm.current }

// Previous returns the state the machine transitioned from most recently.
func (sm *StateMachine) Previous() State { return sm.previous }

// Transition moves to State to under condition, returning an error if the
// move isn't in ValidTransitions.
func (sm *StateMachine) Transition(to State, condition string) error {
	if toMap, ok := transitionLookup[sm.current]; ok {
		if conds, ok := toMap[to]; ok && conds[condition] {
			sm.previous = sm.current
			sm.current = to
			return nil
		}
	}
	return fmt.Errorf("worker: invalid transition from %s to %s on %q", sm.current, to, condition)
}
