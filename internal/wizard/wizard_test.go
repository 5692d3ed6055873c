package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/schema"
)

func twoStep(t *testing.T, reg *Registry) *Wizard {
	t.Helper()
	w, err := New(reg, Config{
		Kind:      KindRename,
		SessionID: "s1",
		Expect: Expectation{
			Object: schema.Invid{Type: schema.TypeUser, Num: 7},
			Field:  schema.UserUsername,
			Value:  "broccol",
		},
		Steps: map[int]StepFunc{
			StateStart: func(w *Wizard, _ map[string]any) *dialog.Result {
				d := dialog.NewDialog("Rename", "Sure?", "Yes", "No", "question.gif")
				return w.ContinueOn(d)
			},
			1: func(w *Wizard, params map[string]any) *dialog.Result {
				w.SetNextState(StateDone)
				return w.Succeed("Renamed", "done")
			},
		},
	})
	require.NoError(t, err)
	return w
}

func TestWizard_HappyPath(t *testing.T) {
	reg := NewRegistry()
	w := twoStep(t, reg)

	res := w.Start()
	require.NotNil(t, res.Dialog)
	assert.True(t, res.Resumable())
	assert.Equal(t, 1, w.State())
	assert.Same(t, w, reg.Active("s1"))

	res = w.Respond(map[string]any{"Sure?": true})
	assert.True(t, res.DidSucceed())
	assert.True(t, w.Done())
	assert.Nil(t, reg.Active("s1"))
}

func TestWizard_CancelUnregisters(t *testing.T) {
	reg := NewRegistry()
	w := twoStep(t, reg)

	w.Start()
	res := w.Respond(nil)
	require.NotNil(t, res)
	assert.False(t, res.DidSucceed())
	assert.False(t, res.Resumable())
	assert.Nil(t, reg.Active("s1"))
}

func TestWizard_OnePerSession(t *testing.T) {
	reg := NewRegistry()
	twoStep(t, reg)

	_, err := New(reg, Config{
		Kind:      KindInactivate,
		SessionID: "s1",
		Steps: map[int]StepFunc{
			StateStart: func(w *Wizard, _ map[string]any) *dialog.Result { return dialog.OK() },
		},
	})
	require.Error(t, err)

	// A different session is unaffected.
	other, err := New(reg, Config{
		Kind:      KindInactivate,
		SessionID: "s2",
		Steps: map[int]StepFunc{
			StateStart: func(w *Wizard, _ map[string]any) *dialog.Result { return dialog.OK() },
		},
	})
	require.NoError(t, err)
	assert.Same(t, other, reg.Active("s2"))
}

func TestWizard_SetNextStateRewinds(t *testing.T) {
	reg := NewRegistry()
	var visits []int
	w, err := New(reg, Config{
		Kind:      KindReactivate,
		SessionID: "s1",
		Steps: map[int]StepFunc{
			StateStart: func(w *Wizard, _ map[string]any) *dialog.Result {
				visits = append(visits, StateStart)
				return w.ContinueOn(dialog.NewDialog("Reactivate", "password?", "OK", "Cancel", "question.gif"))
			},
			1: func(w *Wizard, params map[string]any) *dialog.Result {
				visits = append(visits, 1)
				if params["password"] == nil {
					// Re-prompt: rewind so the next response lands here again.
					w.SetNextState(1)
					return w.ContinueOn(dialog.NewDialog("Reactivate", "password required", "OK", "Cancel", "question.gif"))
				}
				return w.Succeed("Reactivated", "done")
			},
		},
	})
	require.NoError(t, err)

	w.Start()
	res := w.Respond(map[string]any{})
	assert.True(t, res.Resumable())
	assert.Equal(t, 1, w.State())

	res = w.Respond(map[string]any{"password": "hunter2"})
	assert.True(t, res.DidSucceed())
	assert.Equal(t, []int{StateStart, 1, 1}, visits)
}

func TestWizard_UnknownStateFails(t *testing.T) {
	reg := NewRegistry()
	w, err := New(reg, Config{
		Kind:      KindHomeGroupDel,
		SessionID: "s1",
		Steps: map[int]StepFunc{
			StateStart: func(w *Wizard, _ map[string]any) *dialog.Result {
				w.SetNextState(42)
				return w.ContinueOn(dialog.NewDialog("x", "y", "OK", "Cancel", "question.gif"))
			},
		},
	})
	require.NoError(t, err)

	w.Start()
	res := w.Respond(map[string]any{})
	assert.False(t, res.DidSucceed())
	assert.Nil(t, reg.Active("s1"))
}

func TestExpectation_Matches(t *testing.T) {
	e := Expectation{
		Object: schema.Invid{Type: schema.TypeUser, Num: 3},
		Field:  schema.UserUsername,
		Value:  "omphale",
	}
	assert.True(t, e.Matches(schema.Invid{Type: schema.TypeUser, Num: 3}, schema.UserUsername, "omphale"))
	assert.False(t, e.Matches(schema.Invid{Type: schema.TypeUser, Num: 3}, schema.UserUsername, "other"))
	assert.False(t, e.Matches(schema.Invid{Type: schema.TypeUser, Num: 4}, schema.UserUsername, "omphale"))
}
