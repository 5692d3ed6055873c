package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/store"
)

// EditSet groups all pending object mutations for one session. Named
// checkpoints snapshot the overlay and the namespace reservations so a
// multi-step operation can be undone wholesale.
type EditSet struct {
	session *Session
	objects map[schema.Invid]*EditObject
	order   []schema.Invid

	reserved    map[markKey]schema.Invid
	checkpoints []*checkpoint
}

type objectSnapshot struct {
	status   schema.Status
	deleting bool
	fields   map[schema.FieldID][]any
}

type checkpoint struct {
	name     string
	order    []schema.Invid
	objects  map[schema.Invid]objectSnapshot
	reserved map[markKey]schema.Invid
}

func newEditSet(s *Session) *EditSet {
	return &EditSet{
		session:  s,
		objects:  make(map[schema.Invid]*EditObject),
		reserved: make(map[markKey]schema.Invid),
	}
}

// Object returns the checked-out object for invid, nil if not checked out.
func (es *EditSet) Object(invid schema.Invid) *EditObject {
	return es.objects[invid]
}

func (es *EditSet) add(o *EditObject) {
	es.objects[o.invid] = o
	es.order = append(es.order, o.invid)
}

func (es *EditSet) remove(invid schema.Invid) {
	delete(es.objects, invid)
	for i, iv := range es.order {
		if iv == invid {
			es.order = append(es.order[:i:i], es.order[i+1:]...)
			return
		}
	}
}

// Checkpoint snapshots the overlay and reservations under a name.
func (es *EditSet) Checkpoint(name string) {
	cp := &checkpoint{
		name:     name,
		order:    append([]schema.Invid(nil), es.order...),
		objects:  make(map[schema.Invid]objectSnapshot, len(es.objects)),
		reserved: make(map[markKey]schema.Invid, len(es.reserved)),
	}
	for invid, o := range es.objects {
		cp.objects[invid] = snapshotObject(o)
	}
	for key, owner := range es.reserved {
		cp.reserved[key] = owner
	}
	es.checkpoints = append(es.checkpoints, cp)
}

func snapshotObject(o *EditObject) objectSnapshot {
	fields := make(map[schema.FieldID][]any, len(o.fields))
	for fid, vs := range o.fields {
		fields[fid] = append([]any(nil), vs...)
	}
	return objectSnapshot{status: o.status, deleting: o.deleting, fields: fields}
}

// Rollback restores the named checkpoint, discarding it and every later
// one. Reports whether the checkpoint existed.
func (es *EditSet) Rollback(name string) bool {
	idx := es.findCheckpoint(name)
	if idx < 0 {
		return false
	}
	cp := es.checkpoints[idx]
	es.checkpoints = es.checkpoints[:idx]

	// Drop objects checked out after the checkpoint; restore the rest in
	// place so hook back-references stay valid.
	for invid, o := range es.objects {
		snap, existed := cp.objects[invid]
		if !existed {
			delete(es.objects, invid)
			continue
		}
		o.status = snap.status
		o.deleting = snap.deleting
		o.fields = make(map[schema.FieldID][]any, len(snap.fields))
		for fid, vs := range snap.fields {
			o.fields[fid] = append([]any(nil), vs...)
		}
	}
	es.order = append([]schema.Invid(nil), cp.order...)

	alloc := es.session.server.Alloc
	for key := range es.reserved {
		if _, kept := cp.reserved[key]; !kept {
			alloc.Release(es, key.namespace, key.value)
		}
	}
	alloc.reacquire(es, cp.reserved)

	return true
}

// PopCheckpoint discards the named checkpoint without rolling back,
// keeping all mutations made since. Reports whether it existed.
func (es *EditSet) PopCheckpoint(name string) bool {
	idx := es.findCheckpoint(name)
	if idx < 0 {
		return false
	}
	es.checkpoints = append(es.checkpoints[:idx], es.checkpoints[idx+1:]...)
	return true
}

func (es *EditSet) findCheckpoint(name string) int {
	for i := len(es.checkpoints) - 1; i >= 0; i-- {
		if es.checkpoints[i].name == name {
			return i
		}
	}
	return -1
}

// Abort discards every pending mutation and releases all reservations.
func (es *EditSet) Abort() {
	es.session.server.Alloc.ReleaseAll(es)
	es.objects = make(map[schema.Invid]*EditObject)
	es.order = nil
	es.checkpoints = nil
}

// Commit runs the two-phase commit: phase 1 validation per object, one
// SQLite transaction applying every pending mutation and promoting
// namespace marks, then phase 2 external side effects (fire-and-forget).
func (es *EditSet) Commit(ctx context.Context) *dialog.Result {
	// Phase 1: required-field policy plus each hook's pre-commit check.
	for _, invid := range es.order {
		o := es.objects[invid]
		if o.status == schema.StatusDropping {
			continue
		}
		if o.status != schema.StatusDeleting {
			if res := es.checkRequired(o); res != nil {
				return res
			}
		}
		if res := o.hook.CommitPhase1(ctx); !res.DidSucceed() {
			return res
		}
	}

	if err := es.write(ctx); err != nil {
		return dialog.Error("Commit Error", err.Error())
	}

	// Phase 2: failures are logged, never unwind the committed state.
	for _, invid := range es.order {
		o := es.objects[invid]
		if err := o.hook.CommitPhase2(ctx); err != nil {
			slog.Error("commit phase 2 side effect failed",
				"object", invid.String(), "status", o.status.String(), "err", err)
		}
	}

	es.session.server.Alloc.ReleaseAll(es)
	es.session.labels.Purge()
	es.objects = make(map[schema.Invid]*EditObject)
	es.order = nil
	es.checkpoints = nil

	return nil
}

func (es *EditSet) checkRequired(o *EditObject) *dialog.Result {
	for _, def := range schema.Fields(o.Type()) {
		if !o.hook.FieldRequired(def.ID) {
			continue
		}
		if len(o.fields[def.ID]) == 0 {
			return dialog.Failure(dialog.NewDialog(
				"Missing Required Field",
				fmt.Sprintf("object %s is missing required field %s", o.Label(), def.Name),
				"OK", "", "error.gif"))
		}
	}
	return nil
}

func (es *EditSet) write(ctx context.Context) error {
	tx, err := es.session.server.Store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	defer tx.Rollback()

	touched := make(map[schema.ObjectType]bool)
	var claims, releases []store.Mark

	for _, invid := range es.order {
		o := es.objects[invid]
		switch o.status {
		case schema.StatusDropping:
			continue
		case schema.StatusDeleting:
			if err := store.DeleteObject(ctx, tx, int(invid.Type), invid.Num); err != nil {
				return fmt.Errorf("commit: %w", err)
			}
		default:
			rec, err := encodeObject(o)
			if err != nil {
				return fmt.Errorf("commit: %w", err)
			}
			if err := store.ApplyObject(ctx, tx, rec); err != nil {
				return fmt.Errorf("commit: %w", err)
			}
			c, r, err := markDelta(o)
			if err != nil {
				return fmt.Errorf("commit: %w", err)
			}
			claims = append(claims, c...)
			releases = append(releases, r...)
		}
		touched[invid.Type] = true
	}

	if err := store.PromoteMarks(ctx, tx, claims, releases); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for typ := range touched {
		if err := store.TouchType(ctx, tx, int(typ)); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func encodeObject(o *EditObject) (*store.ObjectRec, error) {
	rec := &store.ObjectRec{
		Type:   int(o.Type()),
		Num:    o.invid.Num,
		Label:  o.Label(),
		Fields: make(map[int][]string),
	}
	for fid, vs := range o.fields {
		def, ok := schema.Lookup(o.Type(), fid)
		if !ok {
			return nil, fmt.Errorf("encode %s: unknown field %d", o.invid, fid)
		}
		for _, v := range vs {
			enc, err := EncodeValue(def.Kind, v)
			if err != nil {
				return nil, fmt.Errorf("encode %s field %s: %w", o.invid, def.Name, err)
			}
			rec.Fields[int(fid)] = append(rec.Fields[int(fid)], enc)
		}
	}
	return rec, nil
}

// markDelta derives the namespace claims and releases for one object
// from its pending state versus its committed snapshot.
func markDelta(o *EditObject) (claims, releases []store.Mark, err error) {
	for _, def := range schema.Fields(o.Type()) {
		if def.Namespace == "" {
			continue
		}

		var oldEnc string
		if o.original != nil {
			if raw := o.original.Fields[int(def.ID)]; len(raw) > 0 {
				oldEnc = raw[0]
				if def.Kind == schema.KindString {
					oldEnc = schema.FoldLabel(oldEnc)
				}
			}
		}

		var newEnc string
		if v := o.GetValue(def.ID); v != nil {
			newEnc, err = markValue(def, v)
			if err != nil {
				return nil, nil, err
			}
		}

		if oldEnc == newEnc {
			continue
		}
		if oldEnc != "" {
			releases = append(releases, store.Mark{
				Namespace: def.Namespace, Value: oldEnc,
				OwnerType: int(o.Type()), OwnerNum: o.invid.Num,
			})
		}
		if newEnc != "" {
			claims = append(claims, store.Mark{
				Namespace: def.Namespace, Value: newEnc,
				OwnerType: int(o.Type()), OwnerNum: o.invid.Num,
			})
		}
	}
	return claims, releases, nil
}
