package engine

import (
	"context"
	"fmt"

	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/store"
)

// EditObject is a checked-out object owned by one session's EditSet.
// fields holds the pending view; original holds the committed snapshot
// it was checked out against (nil for a fresh creation).
type EditObject struct {
	session  *Session
	invid    schema.Invid
	status   schema.Status
	original *store.ObjectRec
	fields   map[schema.FieldID][]any
	hook     EditHook
	deleting bool
}

// Session returns the owning session.
func (o *EditObject) Session() *Session { return o.session }

// Invid returns the object's immutable identity.
func (o *EditObject) Invid() schema.Invid { return o.invid }

// Type returns the object's type tag.
func (o *EditObject) Type() schema.ObjectType { return o.invid.Type }

// Status returns the object's lifecycle status within the transaction.
func (o *EditObject) Status() schema.Status { return o.status }

// Hook returns the object's edit-hook.
func (o *EditObject) Hook() EditHook { return o.hook }

// IsDeleting reports whether the object is being torn down; cascading
// validation is irrelevant to a deletion in progress.
func (o *EditObject) IsDeleting() bool { return o.deleting }

// IsInactivated reports whether the object carries a scheduled removal
// date, the marker of inactivated state.
func (o *EditObject) IsInactivated() bool {
	fid, ok := schema.RemovalField(o.Type())
	if !ok {
		return false
	}
	return o.GetValue(fid) != nil
}

// WillBeRemoved is an alias for the removal-date check used by the
// expiration-clearing policy.
func (o *EditObject) WillBeRemoved() bool { return o.IsInactivated() }

// Label returns the object's pending label.
func (o *EditObject) Label() string {
	fid := schema.LabelField(o.Type())
	v := o.GetValue(fid)
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	def, _ := schema.Lookup(o.Type(), fid)
	enc, err := EncodeValue(def.Kind, v)
	if err != nil {
		return ""
	}
	return enc
}

// OriginalLabel returns the label of the committed snapshot, empty for a
// fresh creation.
func (o *EditObject) OriginalLabel() string {
	if o.original == nil {
		return ""
	}
	return o.original.Label
}

// GetValue returns the pending scalar value of a field, nil when unset.
func (o *EditObject) GetValue(fid schema.FieldID) any {
	vs := o.fields[fid]
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// GetValues returns a copy of the pending vector value of a field.
func (o *EditObject) GetValues(fid schema.FieldID) []any {
	vs := o.fields[fid]
	out := make([]any, len(vs))
	copy(out, vs)
	return out
}

// IndexOfValue returns the index of value in the field's pending vector,
// or -1.
func (o *EditObject) IndexOfValue(fid schema.FieldID, value any) int {
	for i, v := range o.fields[fid] {
		if v == value {
			return i
		}
	}
	return -1
}

// OriginalValue returns the committed scalar value the object was
// checked out against, nil when unset or freshly created.
func (o *EditObject) OriginalValue(fid schema.FieldID) any {
	vs := o.originalValues(fid)
	if len(vs) == 0 {
		return nil
	}
	return vs[0]
}

// OriginalValues returns the committed vector value the object was
// checked out against.
func (o *EditObject) OriginalValues(fid schema.FieldID) []any {
	return o.originalValues(fid)
}

func (o *EditObject) originalValues(fid schema.FieldID) []any {
	if o.original == nil {
		return nil
	}
	def, ok := schema.Lookup(o.Type(), fid)
	if !ok {
		return nil
	}
	raw := o.original.Fields[int(fid)]
	out := make([]any, 0, len(raw))
	for _, s := range raw {
		v, err := DecodeValue(def.Kind, s)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// SetValueLocal writes a scalar field bypassing wizard and finalize
// checks. Namespace-constrained fields still go through test-and-reserve;
// generated values must not collide either. A nil value clears the field.
func (o *EditObject) SetValueLocal(ctx context.Context, fid schema.FieldID, value any) *dialog.Result {
	def, ok := schema.Lookup(o.Type(), fid)
	if !ok {
		return dialog.Error("Schema Error",
			fmt.Sprintf("object type %s has no field %d", o.Type(), fid))
	}
	if def.Vector {
		return dialog.Error("Schema Error",
			fmt.Sprintf("field %s is a vector; use element operations", def.Name))
	}
	if res := checkKind(def, value); res != nil {
		return res
	}

	if def.Namespace != "" {
		if res := o.remark(ctx, def, value); res != nil {
			return res
		}
	}

	if value == nil {
		delete(o.fields, fid)
		return nil
	}
	o.fields[fid] = []any{value}
	return nil
}

// checkKind rejects a value the field's kind cannot encode, so a
// mistyped write fails at the call site instead of at commit.
func checkKind(def schema.FieldDef, value any) *dialog.Result {
	if value == nil {
		return nil
	}
	if _, err := EncodeValue(def.Kind, value); err != nil {
		return dialog.Error("Value Error",
			fmt.Sprintf("field %s: %v", def.Name, err))
	}
	return nil
}

// remark trades the field's previous namespace reservation for the new
// value's. The new value is reserved before the old one is released so a
// collision leaves the old reservation intact.
func (o *EditObject) remark(ctx context.Context, def schema.FieldDef, value any) *dialog.Result {
	alloc := o.session.server.Alloc
	es := o.session.es

	var oldEnc string
	var haveOld bool
	if old := o.GetValue(def.ID); old != nil {
		if enc, err := markValue(def, old); err == nil {
			oldEnc, haveOld = enc, true
		}
	}

	if value == nil {
		if haveOld {
			alloc.Release(es, def.Namespace, oldEnc)
		}
		return nil
	}

	enc, err := markValue(def, value)
	if err != nil {
		return dialog.Error("Value Error", err.Error())
	}
	if res := o.testmark(ctx, def, enc); res != nil {
		return res
	}
	if haveOld && oldEnc != enc {
		alloc.Release(es, def.Namespace, oldEnc)
	}
	return nil
}

func (o *EditObject) testmark(ctx context.Context, def schema.FieldDef, enc string) *dialog.Result {
	free, err := o.session.server.Alloc.Testmark(ctx, o.session.es, def.Namespace, enc, o.invid)
	if err != nil {
		return dialog.Error("Namespace Error", err.Error())
	}
	if !free {
		return dialog.Failure(dialog.NewDialog(
			"Value In Use",
			fmt.Sprintf("%q is already in use in the %s namespace", enc, def.Namespace),
			"OK", "", "error.gif"))
	}
	return nil
}

// ReserveValue test-and-reserves a namespace-constrained value for this
// object without writing it. Multi-step cascades call it up front so a
// taken value rejects the whole write before any side effect runs; the
// reservation stays with the edit set and satisfies the eventual local
// write. Fields without a namespace always succeed.
func (o *EditObject) ReserveValue(ctx context.Context, fid schema.FieldID, value any) *dialog.Result {
	def, ok := schema.Lookup(o.Type(), fid)
	if !ok {
		return dialog.Error("Schema Error",
			fmt.Sprintf("object type %s has no field %d", o.Type(), fid))
	}
	if def.Namespace == "" || value == nil {
		return nil
	}
	enc, err := markValue(def, value)
	if err != nil {
		return dialog.Error("Value Error", err.Error())
	}
	return o.testmark(ctx, def, enc)
}

// AddElementLocal appends to a vector field bypassing checks.
func (o *EditObject) AddElementLocal(ctx context.Context, fid schema.FieldID, value any) *dialog.Result {
	def, ok := schema.Lookup(o.Type(), fid)
	if !ok || !def.Vector {
		return dialog.Error("Schema Error",
			fmt.Sprintf("field %d is not a vector of %s", fid, o.Type()))
	}
	if res := checkKind(def, value); res != nil {
		return res
	}
	o.fields[fid] = append(o.fields[fid], value)
	return nil
}

// DeleteElementLocal removes the element at idx bypassing checks.
func (o *EditObject) DeleteElementLocal(ctx context.Context, fid schema.FieldID, idx int) *dialog.Result {
	vs := o.fields[fid]
	if idx < 0 || idx >= len(vs) {
		return dialog.Error("Range Error",
			fmt.Sprintf("index %d out of range for field %d", idx, fid))
	}
	o.fields[fid] = append(vs[:idx:idx], vs[idx+1:]...)
	return nil
}

// SetValue is the checked scalar write: permission override, wizard
// interposition, choice-list enforcement, then the hook's last veto, and
// only then the actual write.
func (o *EditObject) SetValue(ctx context.Context, fid schema.FieldID, value any) *dialog.Result {
	def, ok := schema.Lookup(o.Type(), fid)
	if !ok {
		return dialog.Error("Schema Error",
			fmt.Sprintf("object type %s has no field %d", o.Type(), fid))
	}
	if def.Vector {
		return dialog.Error("Schema Error",
			fmt.Sprintf("field %s is a vector; use element operations", def.Name))
	}

	if res := o.checkEdit(def); res != nil {
		return res
	}

	var rescan *dialog.Result
	if res := o.hook.WizardHook(ctx, fid, OpSetVal, value, nil); res != nil {
		if !res.Success {
			return res
		}
		rescan = res
	}

	if res := o.checkChoice(ctx, def, value); res != nil {
		return res
	}

	if res := o.hook.FinalizeSetValue(ctx, fid, value); !res.DidSucceed() {
		return res
	}

	if res := o.SetValueLocal(ctx, fid, value); !res.DidSucceed() {
		return res
	}

	return rescan
}

// AddElement is the checked vector append.
func (o *EditObject) AddElement(ctx context.Context, fid schema.FieldID, value any) *dialog.Result {
	def, ok := schema.Lookup(o.Type(), fid)
	if !ok || !def.Vector {
		return dialog.Error("Schema Error",
			fmt.Sprintf("field %d is not a vector of %s", fid, o.Type()))
	}

	if res := o.checkEdit(def); res != nil {
		return res
	}

	var rescan *dialog.Result
	if res := o.hook.WizardHook(ctx, fid, OpAddElement, value, nil); res != nil {
		if !res.Success {
			return res
		}
		rescan = res
	}

	if res := o.checkChoice(ctx, def, value); res != nil {
		return res
	}

	if res := o.hook.FinalizeAddElement(ctx, fid, value); !res.DidSucceed() {
		return res
	}

	if res := o.AddElementLocal(ctx, fid, value); !res.DidSucceed() {
		return res
	}

	return rescan
}

// DeleteElement is the checked vector removal by index.
func (o *EditObject) DeleteElement(ctx context.Context, fid schema.FieldID, idx int) *dialog.Result {
	def, ok := schema.Lookup(o.Type(), fid)
	if !ok || !def.Vector {
		return dialog.Error("Schema Error",
			fmt.Sprintf("field %d is not a vector of %s", fid, o.Type()))
	}
	vs := o.fields[fid]
	if idx < 0 || idx >= len(vs) {
		return dialog.Error("Range Error",
			fmt.Sprintf("index %d out of range for field %s", idx, def.Name))
	}

	if res := o.checkEdit(def); res != nil {
		return res
	}

	var rescan *dialog.Result
	if res := o.hook.WizardHook(ctx, fid, OpDelElement, idx, vs[idx]); res != nil {
		if !res.Success {
			return res
		}
		rescan = res
	}

	if res := o.hook.FinalizeDeleteElement(ctx, fid, idx); !res.DidSucceed() {
		return res
	}

	if res := o.DeleteElementLocal(ctx, fid, idx); !res.DidSucceed() {
		return res
	}

	return rescan
}

func (o *EditObject) checkEdit(def schema.FieldDef) *dialog.Result {
	p, ok := o.hook.PermOverride(def.ID)
	if ok && !p.Edit {
		return dialog.Failure(dialog.NewDialog(
			"Permission Denied",
			fmt.Sprintf("field %s may not be edited", def.Name),
			"OK", "", "error.gif"))
	}
	return nil
}

func (o *EditObject) checkChoice(ctx context.Context, def schema.FieldDef, value any) *dialog.Result {
	if value == nil || !o.hook.MustChoose(def.ID) {
		return nil
	}
	choices, err := o.hook.ObtainChoiceList(ctx, def.ID)
	if err != nil {
		return dialog.Error("Choice Error", err.Error())
	}
	for _, c := range choices {
		switch v := value.(type) {
		case string:
			if c.Label == v {
				return nil
			}
		case schema.Invid:
			if c.Invid == v {
				return nil
			}
		}
	}
	return dialog.Failure(dialog.NewDialog(
		"Invalid Choice",
		fmt.Sprintf("%v is not one of the legal values for field %s", value, def.Name),
		"OK", "", "error.gif"))
}

// CreateEmbedded creates an embedded child object of the type the field's
// schema definition requires and links it into the vector. A field with
// no single restricted target type is a schema configuration bug.
func (o *EditObject) CreateEmbedded(ctx context.Context, fid schema.FieldID) (*EditObject, *dialog.Result) {
	def, ok := schema.Lookup(o.Type(), fid)
	if !ok || !def.Embedded || def.TargetType == schema.TypeNone {
		panic(fmt.Sprintf("schema bug: field %d of %s is not an embedded-object field", fid, o.Type()))
	}

	child, res := o.session.createObject(ctx, def.TargetType)
	if !res.DidSucceed() {
		return nil, res
	}

	if lres := o.AddElementLocal(ctx, fid, child.Invid()); !lres.DidSucceed() {
		return nil, lres
	}
	return child, nil
}
