package engine

import (
	"context"

	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/schema"
)

// FieldOp identifies the mutation being vetted by WizardHook.
type FieldOp int

const (
	OpSetVal FieldOp = iota
	OpAddElement
	OpDelElement
)

// Perm is a permission triple returned by PermOverride.
type Perm struct {
	View   bool
	Edit   bool
	Create bool
}

// Choice is one entry of a dynamic choice list.
type Choice struct {
	Invid schema.Invid
	Label string
}

// EditHook is the per-object-type policy layer consulted by the edit
// pipeline at fixed extension points. All methods run synchronously on
// the calling session's goroutine. Expected conditions come back as
// *dialog.Result values; a nil Result means silent approval.
type EditHook interface {
	// InitializeNewObject computes defaults needing session access right
	// after a new object's fields are instantiated empty. A failure
	// result makes the caller roll back the creation.
	InitializeNewObject(ctx context.Context) *dialog.Result

	// FieldRequired reports whether the field must be populated at
	// commit. Policy may differ between active and inactivated state.
	FieldRequired(fid schema.FieldID) bool

	// CanBeInactivated reports whether the type supports inactivation
	// at all; CanInactivate vets one concrete object.
	CanBeInactivated() bool
	CanInactivate(ctx context.Context) bool

	// PermOverride lets the hook bypass the general permission model
	// for one field. ok=false defers to the default engine.
	PermOverride(fid schema.FieldID) (Perm, bool)

	// ObtainChoicesKey returns a cache key for the field's choice list.
	// ok=false marks the list non-cacheable (validity scoped to this
	// editing context).
	ObtainChoicesKey(fid schema.FieldID) (string, bool)
	ObtainChoiceList(ctx context.Context, fid schema.FieldID) ([]Choice, error)

	// MustChoose reports whether a value for the field has to come from
	// the choice list.
	MustChoose(fid schema.FieldID) bool

	// FinalizeSetValue is the last veto point before a value is applied,
	// and the place for cascading writes within the transaction.
	FinalizeSetValue(ctx context.Context, fid schema.FieldID, value any) *dialog.Result
	FinalizeAddElement(ctx context.Context, fid schema.FieldID, value any) *dialog.Result
	FinalizeDeleteElement(ctx context.Context, fid schema.FieldID, idx int) *dialog.Result

	// WizardHook interposes on sensitive mutations. nil approves
	// silently; a success Result approves with rescan hints; a failure
	// Result with a callback defers to the wizard's dialog.
	WizardHook(ctx context.Context, fid schema.FieldID, op FieldOp, param1, param2 any) *dialog.Result

	// Inactivate runs (or defers to a wizard) the inactivation sequence.
	// byWizard marks the wizard's completion callback.
	Inactivate(ctx context.Context, forward string, byWizard bool) *dialog.Result

	// Reactivate is always wizard-driven; it returns the opening dialog.
	Reactivate(ctx context.Context) *dialog.Result

	// CommitPhase1 runs pre-commit checks; CommitPhase2 runs external
	// side effects after the transaction has durably committed.
	CommitPhase1(ctx context.Context) *dialog.Result
	CommitPhase2(ctx context.Context) error
}

// HookFactory builds the hook for one checked-out object.
type HookFactory func(obj *EditObject) EditHook

// BaseHook supplies the permissive defaults; concrete hooks embed it and
// override what they care about.
type BaseHook struct {
	Obj *EditObject
}

func (h *BaseHook) InitializeNewObject(ctx context.Context) *dialog.Result { return nil }

func (h *BaseHook) FieldRequired(fid schema.FieldID) bool { return false }

func (h *BaseHook) CanBeInactivated() bool { return false }

func (h *BaseHook) CanInactivate(ctx context.Context) bool { return false }

func (h *BaseHook) PermOverride(fid schema.FieldID) (Perm, bool) { return Perm{}, false }

func (h *BaseHook) ObtainChoicesKey(fid schema.FieldID) (string, bool) {
	return "", false
}

func (h *BaseHook) ObtainChoiceList(ctx context.Context, fid schema.FieldID) ([]Choice, error) {
	return nil, nil
}

func (h *BaseHook) MustChoose(fid schema.FieldID) bool { return false }

func (h *BaseHook) FinalizeSetValue(ctx context.Context, fid schema.FieldID, value any) *dialog.Result {
	return nil
}

func (h *BaseHook) FinalizeAddElement(ctx context.Context, fid schema.FieldID, value any) *dialog.Result {
	return nil
}

func (h *BaseHook) FinalizeDeleteElement(ctx context.Context, fid schema.FieldID, idx int) *dialog.Result {
	return nil
}

func (h *BaseHook) WizardHook(ctx context.Context, fid schema.FieldID, op FieldOp, param1, param2 any) *dialog.Result {
	return nil
}

func (h *BaseHook) Inactivate(ctx context.Context, forward string, byWizard bool) *dialog.Result {
	return dialog.Error("Inactivate Error", "this object type does not support inactivation")
}

func (h *BaseHook) Reactivate(ctx context.Context) *dialog.Result {
	return dialog.Error("Reactivate Error", "this object type does not support reactivation")
}

func (h *BaseHook) CommitPhase1(ctx context.Context) *dialog.Result { return nil }

func (h *BaseHook) CommitPhase2(ctx context.Context) error { return nil }
