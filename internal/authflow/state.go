package authflow

import "fmt"

type State string

const (
	StateIdle         State = "idle"
	StateValidating   State = "validating"
	StateAuthorizing  State = "authorizing"
	StateSwitchingOrg State = "switching_org"
	StateRedirecting  State = "redirecting"
	StateLoggedOut    State = "logged_out"
	StateDone         State = "done"
)

// transitions lists, for each state, the states it may move to. Redirecting,
// LoggedOut and Done are terminal.
var transitions = map[State][]State{
	StateIdle:         {StateValidating, StateAuthorizing, StateDone},
	StateValidating:   {StateAuthorizing, StateSwitchingOrg, StateRedirecting, StateLoggedOut, StateDone},
	StateAuthorizing:  {StateValidating, StateRedirecting, StateDone},
	StateSwitchingOrg: {StateAuthorizing, StateRedirecting, StateDone},
}

func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

func canTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Outcome string

const (
	OutcomeSkipped         Outcome = "skipped"
	OutcomeSwitchPage      Outcome = "switch_page"
	OutcomeNoWorkspace     Outcome = "no_workspace"
	OutcomeAuthorized      Outcome = "authorized"
	OutcomeRedirected      Outcome = "redirected"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomePublicApp       Outcome = "public_app"
	OutcomeAppLogin        Outcome = "app_login_required"
	OutcomeSwitchFailed    Outcome = "switch_failed"
	OutcomeLoggedOut       Outcome = "logged_out"
	OutcomeUnchanged       Outcome = "unchanged"
)

// Result describes where one run of the flow ended.
type Result struct {
	State       State   `json:"state"`
	Outcome     Outcome `json:"outcome"`
	RedirectTo  string  `json:"redirect_to,omitempty"`
	Transitions []State `json:"transitions"`
	// LoopPrevented is set when a redirect was suppressed because the tab is
	// already on the destination.
	LoopPrevented bool `json:"loop_prevented,omitempty"`
}

type run struct {
	location string
	path     string
	result   Result
}

func newRun(location, path string) *run {
	return &run{
		location: location,
		path:     path,
		result:   Result{State: StateIdle, Transitions: []State{StateIdle}},
	}
}

func (r *run) moveTo(next State) error {
	if !canTransition(r.result.State, next) {
		return fmt.Errorf("illegal transition %s -> %s", r.result.State, next)
	}
	r.result.State = next
	r.result.Transitions = append(r.result.Transitions, next)
	return nil
}
