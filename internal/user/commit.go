package user

import (
	"context"
	"sort"

	"github.com/ganymede-dms/ganymede/internal/schema"
)

// CommitPhase2 dispatches account lifecycle events once the
// transaction is durable. The edit-set overlay is still intact when
// this runs, so before/after comparisons read the overlay's original
// snapshots.
func (h *Hook) CommitPhase2(ctx context.Context) error {
	obj := h.Obj

	switch obj.Status() {
	case schema.StatusDropping:
		return nil

	case schema.StatusCreating:
		uid, _ := obj.GetValue(schema.UserUID).(int)
		homedir, _ := obj.GetValue(schema.UserHomeDir).(string)
		return h.ext.UserCreated(ctx, obj.Label(), uid, homedir, h.volumeLabels(ctx, false))

	case schema.StatusDeleting:
		return h.ext.UserDeleted(ctx, obj.OriginalLabel())

	case schema.StatusEditing:
		if obj.Label() != obj.OriginalLabel() {
			if err := h.ext.UserRenamed(ctx, obj.OriginalLabel(), obj.Label()); err != nil {
				return err
			}
		}
		return h.handleVolumeChanges(ctx)
	}

	return nil
}

// handleVolumeChanges diffs the user's volume set across the commit
// and dispatches a migration event. The event fires only when volumes
// were both added and removed; pure additions and pure removals are
// provisioned through other channels.
func (h *Hook) handleVolumeChanges(ctx context.Context) error {
	oldVols := h.volumeSet(ctx, true)
	newVols := h.volumeSet(ctx, false)

	var added, removed []string
	s := h.Obj.Session()
	for inv := range newVols {
		if !oldVols[inv] {
			added = append(added, s.ViewObjectLabel(ctx, inv))
		}
	}
	for inv := range oldVols {
		if !newVols[inv] {
			removed = append(removed, s.ViewObjectLabel(ctx, inv))
		}
	}
	if len(added) == 0 || len(removed) == 0 {
		return nil
	}
	sort.Strings(added)
	sort.Strings(removed)
	return h.ext.VolumeMigration(ctx, h.Obj.Label(), added, removed)
}

// volumeSet resolves the user's volume entries to the volumes they
// reference, before (original=true) or after the pending edits.
func (h *Hook) volumeSet(ctx context.Context, original bool) map[schema.Invid]bool {
	var entries []any
	if original {
		entries = h.Obj.OriginalValues(schema.UserVolumes)
	} else {
		entries = h.Obj.GetValues(schema.UserVolumes)
	}

	out := make(map[schema.Invid]bool, len(entries))
	for _, e := range entries {
		entry, ok := e.(schema.Invid)
		if !ok {
			continue
		}
		if vol, ok := h.entryVolume(ctx, entry, original); ok {
			out[vol] = true
		}
	}
	return out
}

// volumeLabels returns the labels of the volumes the user's entries
// point at, for the creation event.
func (h *Hook) volumeLabels(ctx context.Context, original bool) []string {
	s := h.Obj.Session()
	var labels []string
	for inv := range h.volumeSet(ctx, original) {
		labels = append(labels, s.ViewObjectLabel(ctx, inv))
	}
	sort.Strings(labels)
	return labels
}

// entryVolume resolves one automounter map entry to its volume. Entries
// open in this edit set answer from the overlay; untouched entries load
// from the store.
func (h *Hook) entryVolume(ctx context.Context, entry schema.Invid, original bool) (schema.Invid, bool) {
	s := h.Obj.Session()

	if o := s.EditSet().Object(entry); o != nil {
		var v any
		if original {
			v = o.OriginalValue(schema.MapEntryVolume)
		} else {
			v = o.GetValue(schema.MapEntryVolume)
		}
		inv, ok := v.(schema.Invid)
		return inv, ok
	}

	rec, err := s.Server().Store.LoadObject(ctx, int(entry.Type), entry.Num)
	if err != nil {
		return schema.Invid{}, false
	}
	vals := rec.Fields[int(schema.MapEntryVolume)]
	if len(vals) == 0 {
		return schema.Invid{}, false
	}
	inv, err := schema.ParseInvid(vals[0])
	if err != nil {
		return schema.Invid{}, false
	}
	return inv, true
}
