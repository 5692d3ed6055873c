package user

import (
	"context"
	"fmt"
	"strings"

	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/wizard"
)

// Inactivate runs the inactivation sequence directly when wizards are
// disabled or when called back from the wizard's completion step;
// otherwise it constructs the inactivation wizard and returns its
// opening dialog. The direct sequence runs under a named checkpoint:
// any step failure rolls the whole sequence back.
func (h *Hook) Inactivate(ctx context.Context, forward string, byWizard bool) *dialog.Result {
	s := h.Obj.Session()
	if s.EnableWizards && !byWizard {
		res := newInactivateWizard(ctx, h)
		return res
	}

	cp := "inactivate " + h.Obj.Label()
	es := s.EditSet()
	es.Checkpoint(cp)

	res := h.inactivateSequence(ctx, forward)
	if !res.DidSucceed() {
		es.Rollback(cp)
		return res
	}
	es.PopCheckpoint(cp)

	return dialog.OKRescan(h.Obj.Invid(),
		schema.UserRemoval,
		schema.UserLoginShell,
		schema.UserEmailTarget)
}

// inactivateSequence performs the ordered mutation steps. Order
// matters: later steps' refresh hints assume earlier steps succeeded,
// and the first failure stops the sequence.
func (h *Hook) inactivateSequence(ctx context.Context, forward string) *dialog.Result {
	// 1. clear the password
	if res := h.Obj.SetValueLocal(ctx, schema.UserPassword, nil); !res.DidSucceed() {
		return res
	}

	// 2. force the shell to the configured disabled value
	if res := h.Obj.SetValueLocal(ctx, schema.UserLoginShell, h.cfg.InactiveShell); !res.DidSucceed() {
		return res
	}

	// 3. optionally replace the email targets with one forwarding address
	if forward != "" {
		for len(h.Obj.GetValues(schema.UserEmailTarget)) > 0 {
			if res := h.Obj.DeleteElementLocal(ctx, schema.UserEmailTarget, 0); !res.DidSucceed() {
				return res
			}
		}
		if res := h.Obj.AddElementLocal(ctx, schema.UserEmailTarget, forward); !res.DidSucceed() {
			return res
		}
	}

	// 4. clear the expiration date; the account is on the removal track
	if res := h.Obj.SetValueLocal(ctx, schema.UserExpiration, nil); !res.DidSucceed() {
		return res
	}

	// 5. schedule removal
	removal := h.Obj.Session().Now().AddDate(0, h.cfg.RemovalMonths, 0)
	return h.Obj.SetValueLocal(ctx, schema.UserRemoval, removal)
}

// Reactivate is always wizard-driven when invoked as a bare user
// action.
func (h *Hook) Reactivate(ctx context.Context) *dialog.Result {
	return newReactivateWizard(ctx, h)
}

// reactivateAnswers carries the collected wizard responses into the
// completion entry point.
type reactivateAnswers struct {
	password string
	shell    string
	forward  string
}

// reactivateFromWizard is the wizard-completion entry point for
// reactivation. The sequence runs under a named checkpoint and always
// clears the removal date as its final step.
func (h *Hook) reactivateFromWizard(ctx context.Context, w *wizard.Wizard, a *reactivateAnswers) *dialog.Result {
	if w == nil {
		return dialog.Error("Reactivate Error",
			"reactivate() called without a valid user wizard")
	}

	s := h.Obj.Session()
	es := s.EditSet()
	cp := "reactivate " + h.Obj.Label()
	es.Checkpoint(cp)

	res := h.reactivateSequence(ctx, a)
	if !res.DidSucceed() {
		es.Rollback(cp)
		return res
	}
	es.PopCheckpoint(cp)

	return dialog.OKRescan(h.Obj.Invid(),
		schema.UserRemoval,
		schema.UserLoginShell,
		schema.UserEmailTarget)
}

func (h *Hook) reactivateSequence(ctx context.Context, a *reactivateAnswers) *dialog.Result {
	// The wizard re-prompts on a missing password before calling us;
	// this guard covers the protocol.
	if a.password == "" {
		return dialog.Error("Reactivate Error",
			"reactivate() called without a password selected")
	}
	if res := h.Obj.SetValueLocal(ctx, schema.UserPassword, HashPassword(a.password)); !res.DidSucceed() {
		return res
	}

	if a.shell != "" {
		if res := h.Obj.SetValue(ctx, schema.UserLoginShell, a.shell); !res.DidSucceed() {
			return res
		}
	}

	if a.forward != "" {
		for len(h.Obj.GetValues(schema.UserEmailTarget)) > 0 {
			if res := h.Obj.DeleteElementLocal(ctx, schema.UserEmailTarget, 0); !res.DidSucceed() {
				return res
			}
		}
		for _, addr := range strings.Split(a.forward, ",") {
			addr = strings.TrimSpace(addr)
			if addr == "" {
				continue
			}
			if res := h.Obj.AddElementLocal(ctx, schema.UserEmailTarget, addr); !res.DidSucceed() {
				return res
			}
		}
	}

	// always last: off the removal track
	return h.Obj.SetValueLocal(ctx, schema.UserRemoval, nil)
}

// newRenameWizard builds and starts the two-step rename wizard: an
// explanatory warning with a keep-alias prompt, then the actual rename
// re-entered through the edit-hook with the wizard parked in its
// terminal state.
func newRenameWizard(ctx context.Context, h *Hook, oldName, newName string) *dialog.Result {
	obj := h.Obj
	s := obj.Session()

	steps := map[int]wizard.StepFunc{
		wizard.StateStart: func(w *wizard.Wizard, _ map[string]any) *dialog.Result {
			d := dialog.NewDialog(
				"User Rename Dialog",
				"Warning.\n\n"+
					"Renaming a user is a serious operation, with serious potential consequences.\n\n"+
					"If you rename this user, the user's directory and mail file will need to be renamed.\n\n"+
					"Any scripts or programs that refer to this user's name will need to be changed.",
				"OK", "Never Mind", "question.gif")
			d.AddBoolean("Keep old name as an email alias?")
			return w.ContinueOn(d)
		},
		1: func(w *wizard.Wizard, params map[string]any) *dialog.Result {
			keep, _ := params["Keep old name as an email alias?"].(bool)

			// The alias shuffle and the rename stand or fall together.
			es := s.EditSet()
			cp := "rename wizard " + newName
			es.Checkpoint(cp)

			// If the proposed new name was already one of the user's
			// aliases, pull it out of the alias list first.
			if idx := obj.IndexOfValue(schema.UserAliases, newName); idx >= 0 {
				if res := obj.DeleteElementLocal(ctx, schema.UserAliases, idx); !res.DidSucceed() {
					es.Rollback(cp)
					return res
				}
			}

			// Park in the terminal state so the edit-hook sees us as
			// pre-approved when the rename passes back through it.
			w.SetNextState(wizard.StateDone)
			res := obj.SetValue(ctx, schema.UserUsername, newName)
			if !res.DidSucceed() {
				es.Rollback(cp)
				return res
			}

			if keep {
				if ares := obj.AddElementLocal(ctx, schema.UserAliases, oldName); !ares.DidSucceed() {
					es.Rollback(cp)
					return ares
				}
			}
			es.PopCheckpoint(cp)

			out := w.Succeed("User Rename Performed", "OK, user renamed.")
			out.AddRescan(obj.Invid(), schema.UserSignature, schema.UserHomeDir)
			return out.MergeRescan(res)
		},
	}

	w, err := wizard.New(s.Wizards(), wizard.Config{
		Kind:      wizard.KindRename,
		SessionID: s.ID(),
		Expect: wizard.Expectation{
			Object: obj.Invid(),
			Field:  schema.UserUsername,
			Value:  newName,
		},
		Steps: steps,
		Cancel: func(w *wizard.Wizard) *dialog.Result {
			return dialog.Failure(dialog.NewDialog(
				"User Rename Cancelled", "OK, good decision.",
				"Yeah, I guess", "", "ok.gif"))
		},
	})
	if err != nil {
		return dialog.Error("User Object Error", err.Error())
	}
	return w.Start()
}

// newInactivateWizard builds and starts the two-step inactivation
// wizard.
func newInactivateWizard(ctx context.Context, h *Hook) *dialog.Result {
	obj := h.Obj
	s := obj.Session()

	steps := map[int]wizard.StepFunc{
		wizard.StateStart: func(w *wizard.Wizard, _ map[string]any) *dialog.Result {
			d := dialog.NewDialog(
				"User Inactivation Dialog",
				fmt.Sprintf("You are about to inactivate user %s.\n\n"+
					"This will prevent the user from logging in and will schedule the "+
					"account for removal.\n\n"+
					"It is recommended that you provide a forwarding email address for this user.",
					obj.Label()),
				"OK", "Cancel", "question.gif")
			d.AddString("Forwarding Address")
			return w.ContinueOn(d)
		},
		1: func(w *wizard.Wizard, params map[string]any) *dialog.Result {
			forward, _ := params["Forwarding Address"].(string)

			w.SetNextState(wizard.StateDone)
			res := h.Inactivate(ctx, forward, true)
			if !res.DidSucceed() {
				return res
			}

			out := w.Succeed("User Inactivation Performed",
				"This user account has been scheduled for inactivation.")
			return out.MergeRescan(res)
		},
	}

	w, err := wizard.New(s.Wizards(), wizard.Config{
		Kind:      wizard.KindInactivate,
		SessionID: s.ID(),
		Expect: wizard.Expectation{
			Object: obj.Invid(),
			Field:  schema.UserRemoval,
		},
		Steps: steps,
		Cancel: func(w *wizard.Wizard) *dialog.Result {
			return dialog.Failure(dialog.NewDialog(
				"User Inactivation Canceled",
				fmt.Sprintf("User %s has not been inactivated.", obj.Label()),
				"OK", "", "ok.gif"))
		},
	})
	if err != nil {
		return dialog.Error("User Object Error", err.Error())
	}
	return w.Start()
}

// newReactivateWizard builds and starts the three-step reactivation
// wizard: intro, collection (password, shell, forwarding address), and
// completion. A missing password rewinds to the collection step with a
// resumable re-prompt instead of failing outright.
func newReactivateWizard(ctx context.Context, h *Hook) *dialog.Result {
	obj := h.Obj
	s := obj.Session()

	collect := func(w *wizard.Wizard, body string) *dialog.Result {
		d := dialog.NewDialog("Reactivate User", body, "OK", "Cancel", "question.gif")
		d.AddPassword("New Password")

		var labels []string
		if choices, err := h.ObtainChoiceList(ctx, schema.UserLoginShell); err == nil {
			for _, c := range choices {
				labels = append(labels, c.Label)
			}
		}
		current, _ := obj.GetValue(schema.UserLoginShell).(string)
		d.AddChoice("Shell", labels, current)

		var target string
		if vs := obj.GetValues(schema.UserEmailTarget); len(vs) > 0 {
			parts := make([]string, 0, len(vs))
			for _, v := range vs {
				if sv, ok := v.(string); ok {
					parts = append(parts, sv)
				}
			}
			target = strings.Join(parts, ", ")
		}
		d.AddString("Email Target")
		if target != "" {
			d.Prompts[len(d.Prompts)-1].Default = target
		}

		return w.ContinueOn(d)
	}

	steps := map[int]wizard.StepFunc{
		wizard.StateStart: func(w *wizard.Wizard, _ map[string]any) *dialog.Result {
			d := dialog.NewDialog(
				"User Reactivation Dialog",
				fmt.Sprintf("Reactivating %s\n\n"+
					"In order to reactivate this account, you need to provide a password, "+
					"a login shell, and a new address to send email for this account to.",
					obj.Label()),
				"Next", "Cancel", "question.gif")
			return w.ContinueOn(d)
		},
		1: func(w *wizard.Wizard, _ map[string]any) *dialog.Result {
			return collect(w, "")
		},
		2: func(w *wizard.Wizard, params map[string]any) *dialog.Result {
			a := &reactivateAnswers{}
			a.password, _ = params["New Password"].(string)
			a.shell, _ = params["Shell"].(string)
			a.forward, _ = params["Email Target"].(string)

			if a.password == "" {
				// try again: rewind so the next response lands here
				w.SetNextState(2)
				return collect(w, "You must set a password")
			}

			w.SetNextState(wizard.StateDone)
			res := h.reactivateFromWizard(ctx, w, a)
			if !res.DidSucceed() {
				return res
			}

			out := w.Succeed("User Reactivation Performed", "User has been reactivated")
			return out.MergeRescan(res)
		},
	}

	w, err := wizard.New(s.Wizards(), wizard.Config{
		Kind:      wizard.KindReactivate,
		SessionID: s.ID(),
		Expect: wizard.Expectation{
			Object: obj.Invid(),
			Field:  schema.UserRemoval,
		},
		Steps: steps,
		Cancel: func(w *wizard.Wizard) *dialog.Result {
			return dialog.Failure(dialog.NewDialog(
				"User Reactivation Canceled",
				fmt.Sprintf("User %s has not been reactivated.", obj.Label()),
				"OK", "", "ok.gif"))
		},
	})
	if err != nil {
		return dialog.Error("User Object Error", err.Error())
	}
	return w.Start()
}

// newHomeGroupDelWizard builds and starts the three-step home-group
// removal wizard. Removing the home group when it is the only group
// fails immediately.
func newHomeGroupDelWizard(ctx context.Context, h *Hook, idx int) *dialog.Result {
	obj := h.Obj
	s := obj.Session()

	steps := map[int]wizard.StepFunc{
		wizard.StateStart: func(w *wizard.Wizard, _ map[string]any) *dialog.Result {
			if len(obj.GetValues(schema.UserGroupList)) == 1 {
				return w.Fail("User Home Group Change Dialog",
					"You cannot remove the home group from this user without first "+
						"adding another group to choose a new home group from.")
			}
			d := dialog.NewDialog(
				"User Home Group Change Dialog",
				"You are attempting to remove this user's home group.\n\n"+
					"You will need to select a new home group from the user's remaining groups.",
				"OK", "Cancel", "question.gif")
			return w.ContinueOn(d)
		},
		1: func(w *wizard.Wizard, _ map[string]any) *dialog.Result {
			home := obj.GetValue(schema.UserHomeGroup)
			var labels []string
			for i, v := range obj.GetValues(schema.UserGroupList) {
				if i == idx || v == home {
					continue
				}
				inv, ok := v.(schema.Invid)
				if !ok {
					continue
				}
				labels = append(labels, s.ViewObjectLabel(ctx, inv))
			}
			d := dialog.NewDialog("Home Group Change",
				"Select a new home group for this user.",
				"OK", "Cancel", "question.gif")
			d.AddChoice("New Home Group", labels, "")
			return w.ContinueOn(d)
		},
		2: func(w *wizard.Wizard, params map[string]any) *dialog.Result {
			chosen, _ := params["New Home Group"].(string)

			var newHome schema.Invid
			for i, v := range obj.GetValues(schema.UserGroupList) {
				if i == idx {
					continue
				}
				inv, ok := v.(schema.Invid)
				if !ok {
					continue
				}
				if s.ViewObjectLabel(ctx, inv) == chosen {
					newHome = inv
					break
				}
			}
			if !newHome.IsValid() {
				return w.Fail("Home Group Removal Cancelled",
					fmt.Sprintf("%q is not one of this user's groups", chosen))
			}

			// The home-group move and the group removal stand or fall
			// together.
			es := s.EditSet()
			cp := "home group change " + obj.Label()
			es.Checkpoint(cp)

			if res := obj.SetValue(ctx, schema.UserHomeGroup, newHome); !res.DidSucceed() {
				es.Rollback(cp)
				return res
			}

			// With the home group moved, the deletion re-enters the
			// edit-hook on the non-sensitive path.
			w.SetNextState(wizard.StateDone)
			res := obj.DeleteElement(ctx, schema.UserGroupList, idx)
			if !res.DidSucceed() {
				es.Rollback(cp)
				return res
			}
			es.PopCheckpoint(cp)

			out := w.Succeed("Home Group Change Performed",
				"The user's home group has been changed.")
			out.AddRescan(obj.Invid(), schema.UserHomeGroup)
			return out.MergeRescan(res)
		},
	}

	w, err := wizard.New(s.Wizards(), wizard.Config{
		Kind:      wizard.KindHomeGroupDel,
		SessionID: s.ID(),
		Expect: wizard.Expectation{
			Object: obj.Invid(),
			Field:  schema.UserGroupList,
			Value:  idx,
		},
		Steps: steps,
		Cancel: func(w *wizard.Wizard) *dialog.Result {
			return dialog.Failure(dialog.NewDialog(
				"Home Group Removal Canceled",
				"No changes were made to this user's groups.",
				"OK", "", "ok.gif"))
		},
	})
	if err != nil {
		return dialog.Error("User Object Error", err.Error())
	}
	return w.Start()
}
