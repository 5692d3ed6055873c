package user

import (
	"github.com/ganymede-dms/ganymede/internal/engine"
	"github.com/ganymede-dms/ganymede/internal/schema"
)

// MapEntryHook guards the embedded automounter map entries hanging off
// user objects. The entry's map binding is fixed at creation; moving an
// entry between maps would silently relocate the user's home volume.
type MapEntryHook struct {
	engine.BaseHook
}

// NewMapEntryHookFactory returns the factory for map entry hooks.
func NewMapEntryHookFactory() engine.HookFactory {
	return func(o *engine.EditObject) engine.EditHook {
		return &MapEntryHook{BaseHook: engine.BaseHook{Obj: o}}
	}
}

// PermOverride locks the map binding once set, except for supergash.
func (h *MapEntryHook) PermOverride(fid schema.FieldID) (engine.Perm, bool) {
	if fid != schema.MapEntryMap {
		return engine.Perm{}, false
	}
	if h.Obj.GetValue(schema.MapEntryMap) == nil || h.Obj.Session().Supergash {
		return engine.Perm{}, false
	}
	return engine.Perm{View: true, Edit: false, Create: true}, true
}

// FieldRequired demands both sides of the binding.
func (h *MapEntryHook) FieldRequired(fid schema.FieldID) bool {
	return fid == schema.MapEntryMap || fid == schema.MapEntryVolume
}
