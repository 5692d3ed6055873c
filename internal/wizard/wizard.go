package wizard

import (
	"fmt"
	"log/slog"

	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/schema"
)

// Wizard states. Steps are numbered from StateStart; StateDone is the
// terminal sentinel checked by edit-hooks.
const (
	StateStart = 0
	StateDone  = 99
)

// Kind tags the operation a wizard guards, so edit-hooks can tell an
// expected active wizard from a mismatched one.
type Kind string

const (
	KindRename       Kind = "rename"
	KindInactivate   Kind = "inactivate"
	KindReactivate   Kind = "reactivate"
	KindHomeGroupDel Kind = "homegroupdel"
)

// Expectation records the exact mutation a wizard was created to approve.
// An edit-hook re-entered from a wizard's completion step compares the
// incoming call against this record; any mismatch is a protocol error.
type Expectation struct {
	Object schema.Invid
	Field  schema.FieldID
	Value  any
}

// Matches reports whether the incoming call parameters equal the recorded
// target exactly.
func (e Expectation) Matches(obj schema.Invid, fid schema.FieldID, value any) bool {
	return e.Object == obj && e.Field == fid && e.Value == value
}

// StepFunc processes one client response. params holds the values
// collected by the previous dialog's prompts, keyed by prompt label.
type StepFunc func(w *Wizard, params map[string]any) *dialog.Result

// Wizard is a per-operation interactive state machine bound 1:1 to a
// session for the duration of the interaction.
type Wizard struct {
	kind      Kind
	sessionID string
	registry  *Registry

	expect Expectation

	state    int
	stateSet bool // a step called SetNextState; suppress auto-advance

	steps  map[int]StepFunc
	cancel func(w *Wizard) *dialog.Result
}

// Config collects the pieces needed to assemble a wizard.
type Config struct {
	Kind      Kind
	SessionID string
	Expect    Expectation
	Steps     map[int]StepFunc
	// Cancel supplies the dialog returned when the user cancels. Nil gets
	// a generic "Operation Canceled".
	Cancel func(w *Wizard) *dialog.Result
}

// New assembles and registers a wizard on its session. Registration fails
// if the session already has an active wizard.
func New(reg *Registry, cfg Config) (*Wizard, error) {
	if len(cfg.Steps) == 0 {
		return nil, fmt.Errorf("wizard %s: no steps defined", cfg.Kind)
	}
	w := &Wizard{
		kind:      cfg.Kind,
		sessionID: cfg.SessionID,
		registry:  reg,
		expect:    cfg.Expect,
		state:     StateStart,
		steps:     cfg.Steps,
		cancel:    cfg.Cancel,
	}
	if !reg.register(w) {
		return nil, fmt.Errorf("wizard %s: session %s already has an active wizard", cfg.Kind, cfg.SessionID)
	}
	return w, nil
}

// Kind returns the operation tag this wizard guards.
func (w *Wizard) Kind() Kind { return w.kind }

// State returns the current state number.
func (w *Wizard) State() int { return w.state }

// Done reports whether the wizard has reached its terminal state.
func (w *Wizard) Done() bool { return w.state == StateDone }

// Expect returns the mutation this wizard was created to approve.
func (w *Wizard) Expect() Expectation { return w.expect }

// SetNextState overrides the automatic state advance for the current step.
// Used to rewind to an earlier collect step (e.g. the reactivation
// password re-prompt) or to jump to DONE before re-entering the edit-hook.
func (w *Wizard) SetNextState(state int) {
	w.state = state
	w.stateSet = true
}

// Start kicks off the wizard by running its first step with no parameters
// and returning the resulting opening dialog.
func (w *Wizard) Start() *dialog.Result {
	return w.run(map[string]any{})
}

// Respond feeds one client response into the state machine. A nil params
// map is the cancel signal.
func (w *Wizard) Respond(params map[string]any) *dialog.Result {
	if params == nil {
		res := w.runCancel()
		w.Unregister()
		return res
	}
	return w.run(params)
}

func (w *Wizard) run(params map[string]any) *dialog.Result {
	step, ok := w.steps[w.state]
	if !ok {
		w.Unregister()
		return dialog.Error("Wizard Error",
			fmt.Sprintf("no handler for wizard state %d", w.state))
	}

	w.stateSet = false
	res := step(w, params)

	// A result that does not carry a resumable callback terminates the
	// interaction, whichever way it went.
	if !res.Resumable() {
		w.Unregister()
	} else if !w.stateSet {
		w.state++
	}
	w.stateSet = false

	return res
}

func (w *Wizard) runCancel() *dialog.Result {
	if w.cancel != nil {
		return w.cancel(w)
	}
	return dialog.Failure(dialog.NewDialog("Operation Canceled", "Operation Canceled", "OK", "", "ok.gif"))
}

// ContinueOn builds the standard "not finished yet" result: a dialog plus
// this wizard as the resumable callback.
func (w *Wizard) ContinueOn(d *dialog.Dialog) *dialog.Result {
	return dialog.Defer(d, w)
}

// Fail terminates the wizard with a failure dialog.
func (w *Wizard) Fail(title, body string) *dialog.Result {
	w.Unregister()
	return dialog.Failure(dialog.NewDialog(title, body, "OK", "", "ok.gif"))
}

// Succeed terminates the wizard with a success dialog.
func (w *Wizard) Succeed(title, body string) *dialog.Result {
	w.Unregister()
	return &dialog.Result{
		Success: true,
		Dialog:  dialog.NewDialog(title, body, "OK", "", "ok.gif"),
	}
}

// Unregister detaches the wizard from its session and parks it in the
// terminal state. Idempotent; also used by edit-hooks to clean up stale
// wizards on protocol errors.
func (w *Wizard) Unregister() {
	if w.registry != nil && w.registry.unregister(w) {
		slog.Debug("wizard unregistered", "kind", w.kind, "session", w.sessionID)
	}
	w.state = StateDone
}
