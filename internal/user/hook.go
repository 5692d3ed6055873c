package user

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/ganymede-dms/ganymede/internal/config"
	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/engine"
	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/wizard"
)

// uidFloor is the smallest UID handed out to new accounts; lower values
// are reserved for system use.
const uidFloor = 1001

// uidProbeLimit caps the linear probe so a pathologically full namespace
// fails instead of spinning.
const uidProbeLimit = 1 << 20

// defaultHomeMap is the automounter map every fresh account gets a
// volume entry on.
const defaultHomeMap = "auto.home.default"

// defaultCategory is the user category assigned to fresh accounts when
// it exists.
const defaultCategory = "normal"

// Hook is the user object's edit-hook.
type Hook struct {
	engine.BaseHook
	cfg *config.Config
	ext Externals
}

// NewHookFactory returns the factory wiring user hooks to the server
// configuration and the external side-effect dispatcher.
func NewHookFactory(cfg *config.Config, ext Externals) engine.HookFactory {
	return func(o *engine.EditObject) engine.EditHook {
		return &Hook{BaseHook: engine.BaseHook{Obj: o}, cfg: cfg, ext: ext}
	}
}

// HashPassword derives the stored form of a plaintext password.
func HashPassword(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// InitializeNewObject computes the generated defaults for a fresh user:
// GUID, the smallest free UID at or above the floor, the default
// category, and an embedded volume entry on the default home map. All
// writes bypass user-facing validation; these are values the end user
// must not edit directly. Skipped wholesale during bulk loads.
func (h *Hook) InitializeNewObject(ctx context.Context) *dialog.Result {
	s := h.Obj.Session()
	if !s.EnableOversight {
		return nil
	}

	if res := h.Obj.SetValueLocal(ctx, schema.UserGUID, uuid.NewString()); !res.DidSucceed() {
		return res
	}

	if res := h.allocUID(ctx); !res.DidSucceed() {
		return res
	}

	if res := h.assignDefaultCategory(ctx); !res.DidSucceed() {
		return res
	}

	return h.createDefaultVolume(ctx)
}

// allocUID linear-probes the uid namespace for the smallest free value
// at or above the floor.
func (h *Hook) allocUID(ctx context.Context) *dialog.Result {
	s := h.Obj.Session()
	alloc := s.Server().Alloc

	for uid := uidFloor; uid < uidFloor+uidProbeLimit; uid++ {
		free, err := alloc.Testmark(ctx, s.EditSet(), schema.NamespaceUID,
			strconv.Itoa(uid), h.Obj.Invid())
		if err != nil {
			return dialog.Error("UID Allocation Error", err.Error())
		}
		if free {
			return h.Obj.SetValueLocal(ctx, schema.UserUID, uid)
		}
	}
	return dialog.Error("UID Allocation Error", "uid namespace exhausted")
}

func (h *Hook) assignDefaultCategory(ctx context.Context) *dialog.Result {
	s := h.Obj.Session()
	hits, err := s.InternalQuery(ctx, engine.Query{
		Type:   schema.TypeUserCategory,
		Field:  schema.UserCategoryName,
		Equals: defaultCategory,
	})
	if err != nil {
		return dialog.Error("Category Lookup Error", err.Error())
	}
	if len(hits) != 1 {
		// No (or ambiguous) default category; the user will be prompted
		// to choose one before commit.
		return nil
	}
	return h.Obj.SetValueLocal(ctx, schema.UserCategory, hits[0])
}

// createDefaultVolume builds the embedded volume map entry every fresh
// account carries, wired to the default home automounter map when it
// exists.
func (h *Hook) createDefaultVolume(ctx context.Context) *dialog.Result {
	s := h.Obj.Session()

	entry, res := h.Obj.CreateEmbedded(ctx, schema.UserVolumes)
	if !res.DidSucceed() {
		return res
	}

	hits, err := s.InternalQuery(ctx, engine.Query{
		Type:   schema.TypeAutomounterMap,
		Field:  schema.AutomounterMapName,
		Equals: defaultHomeMap,
	})
	if err != nil {
		return dialog.Error("Map Lookup Error", err.Error())
	}
	if len(hits) == 1 {
		if lres := entry.SetValueLocal(ctx, schema.MapEntryMap, hits[0]); !lres.DidSucceed() {
			return lres
		}
	}
	return nil
}

// FieldRequired implements the commit-time required-field policy.
// Password and email target become optional once the account is
// inactivated; identity and placement fields are mandatory in both
// states.
func (h *Hook) FieldRequired(fid schema.FieldID) bool {
	switch fid {
	case schema.UserUsername,
		schema.UserUID,
		schema.UserLoginShell,
		schema.UserHomeDir,
		schema.UserVolumes,
		schema.UserCategory,
		schema.UserHomeGroup,
		schema.UserSignature:
		return true
	case schema.UserPassword, schema.UserEmailTarget:
		return !h.Obj.IsInactivated()
	}
	return false
}

func (h *Hook) CanBeInactivated() bool { return true }

func (h *Hook) CanInactivate(ctx context.Context) bool { return true }

// PermOverride locks the UID field once it holds a value: nobody but
// the super-privileged identity may edit a set UID.
func (h *Hook) PermOverride(fid schema.FieldID) (engine.Perm, bool) {
	if fid != schema.UserUID {
		return engine.Perm{}, false
	}
	if h.Obj.GetValue(schema.UserUID) == nil || h.Obj.Session().Supergash {
		return engine.Perm{}, false
	}
	return engine.Perm{View: true, Edit: false, Create: true}, true
}

// ObtainChoicesKey marks the context-dependent choice lists
// non-cacheable: their validity is scoped to this editing context.
func (h *Hook) ObtainChoicesKey(fid schema.FieldID) (string, bool) {
	switch fid {
	case schema.UserHomeGroup, schema.UserLoginShell, schema.UserSignature:
		return "", false
	}
	def, ok := schema.Lookup(schema.TypeUser, fid)
	if ok && def.Kind == schema.KindInvid && def.TargetType != schema.TypeNone {
		return def.TargetType.String(), true
	}
	return "", false
}

// ObtainChoiceList generates the legal values for fields whose choices
// depend on live state.
func (h *Hook) ObtainChoiceList(ctx context.Context, fid schema.FieldID) ([]engine.Choice, error) {
	s := h.Obj.Session()

	switch fid {
	case schema.UserLoginShell:
		return s.Server().Shells.Choices(ctx)

	case schema.UserHomeGroup:
		// The home group must come from this user's own group list.
		var out []engine.Choice
		for _, v := range h.Obj.GetValues(schema.UserGroupList) {
			inv, ok := v.(schema.Invid)
			if !ok {
				continue
			}
			out = append(out, engine.Choice{Invid: inv, Label: s.ViewObjectLabel(ctx, inv)})
		}
		return out, nil

	case schema.UserSignature:
		// The signature alias may be the username in progress or any of
		// the user's email aliases.
		var out []engine.Choice
		if name, ok := h.Obj.GetValue(schema.UserUsername).(string); ok && name != "" {
			out = append(out, engine.Choice{Label: name})
		}
		for _, v := range h.Obj.GetValues(schema.UserAliases) {
			if alias, ok := v.(string); ok {
				out = append(out, engine.Choice{Label: alias})
			}
		}
		return out, nil

	case schema.UserCategory:
		hits, err := s.InternalQuery(ctx, engine.Query{Type: schema.TypeUserCategory})
		if err != nil {
			return nil, err
		}
		out := make([]engine.Choice, 0, len(hits))
		for _, inv := range hits {
			out = append(out, engine.Choice{Invid: inv, Label: s.ViewObjectLabel(ctx, inv)})
		}
		return out, nil
	}

	return nil, nil
}

// MustChoose forces signature alias choosing: the value has to come
// from the generated choice list.
func (h *Hook) MustChoose(fid schema.FieldID) bool {
	return fid == schema.UserSignature
}

// FinalizeSetValue is the last veto point before a value lands, and the
// place where the username rename cascades into the rest of the object
// graph.
func (h *Hook) FinalizeSetValue(ctx context.Context, fid schema.FieldID, value any) *dialog.Result {
	switch fid {
	case schema.UserHomeDir:
		return h.finalizeHomeDir(value)
	case schema.UserUsername:
		return h.finalizeUsername(ctx, value)
	case schema.UserExpiration:
		return h.finalizeExpiration(value)
	}
	return nil
}

// finalizeHomeDir rejects direct home-directory writes that do not
// match the <prefix><username> convention. With no prefix configured
// the write is unchecked.
func (h *Hook) finalizeHomeDir(value any) *dialog.Result {
	if h.cfg.HomeDirPrefix == "" {
		return nil
	}
	dir, _ := value.(string)
	name, _ := h.Obj.GetValue(schema.UserUsername).(string)
	expected := h.cfg.HomeDirPrefix + name

	if dir == expected {
		return nil
	}
	return dialog.Failure(dialog.NewDialog(
		"Home Directory Convention",
		fmt.Sprintf("home directory must be %q for user %q", expected, name),
		"OK", "", "error.gif"))
}

// finalizeExpiration allows clearing the expiration date only while
// the object is being deleted or already on the removal track.
func (h *Hook) finalizeExpiration(value any) *dialog.Result {
	if value != nil {
		return nil
	}
	if h.Obj.IsDeleting() || h.Obj.WillBeRemoved() {
		return nil
	}
	return dialog.Failure(dialog.NewDialog(
		"Expiration Date",
		"the expiration date may only be cleared when the account is being removed or inactivated",
		"OK", "", "error.gif"))
}

// finalizeUsername runs the rename cascade: signature alias, home
// directory, mail target rewrite, and the linked persona renames.
func (h *Hook) finalizeUsername(ctx context.Context, value any) *dialog.Result {
	// Clearing the username during teardown needs no cascading.
	if h.Obj.IsDeleting() && value == nil {
		return nil
	}
	if value == nil {
		return dialog.Failure(dialog.NewDialog(
			"Username Required",
			"a user account cannot have its name cleared",
			"OK", "", "error.gif"))
	}

	newName, ok := value.(string)
	if !ok {
		return dialog.Error("Value Error", fmt.Sprintf("username must be a string, got %T", value))
	}
	if newName == "" {
		return dialog.Failure(dialog.NewDialog(
			"Username Required",
			"a user account cannot have its name cleared",
			"OK", "", "error.gif"))
	}

	// The whole cascade is atomic: the new name is reserved before any
	// leg runs, and a failure at any leg restores every earlier leg
	// before the failure surfaces.
	es := h.Obj.Session().EditSet()
	cp := "rename " + newName
	es.Checkpoint(cp)
	if res := h.Obj.ReserveValue(ctx, schema.UserUsername, newName); !res.DidSucceed() {
		es.Rollback(cp)
		return res
	}
	if res := h.renameCascade(ctx, newName); !res.DidSucceed() {
		es.Rollback(cp)
		return res
	}
	es.PopCheckpoint(cp)
	return nil
}

func (h *Hook) renameCascade(ctx context.Context, newName string) *dialog.Result {
	oldName, _ := h.Obj.GetValue(schema.UserUsername).(string)

	// Carry the signature alias along when it mirrored the old name, or
	// establish it when none was set.
	sig, _ := h.Obj.GetValue(schema.UserSignature).(string)
	if sig == "" || sig == oldName {
		if res := h.Obj.SetValueLocal(ctx, schema.UserSignature, newName); !res.DidSucceed() {
			return res
		}
	}

	// Whoever may rename the user may implicitly move the home
	// directory along.
	if h.cfg.HomeDirPrefix != "" {
		if res := h.Obj.SetValueLocal(ctx, schema.UserHomeDir, h.cfg.HomeDirPrefix+newName); !res.DidSucceed() {
			return res
		}
	}

	if res := h.rewriteMailTarget(ctx, oldName, newName); !res.DidSucceed() {
		return res
	}

	return h.renamePersonas(ctx, newName)
}

// rewriteMailTarget replaces <old><suffix> with <new><suffix> in the
// email target vector, or seeds a fresh address when the vector is
// empty.
func (h *Hook) rewriteMailTarget(ctx context.Context, oldName, newName string) *dialog.Result {
	if h.cfg.MailSuffix == "" {
		return nil
	}
	newMail := newName + h.cfg.MailSuffix

	if oldName != "" {
		oldMail := oldName + h.cfg.MailSuffix
		if idx := h.Obj.IndexOfValue(schema.UserEmailTarget, oldMail); idx >= 0 {
			if res := h.Obj.DeleteElementLocal(ctx, schema.UserEmailTarget, idx); !res.DidSucceed() {
				return res
			}
			return h.Obj.AddElementLocal(ctx, schema.UserEmailTarget, newMail)
		}
	}
	if len(h.Obj.GetValues(schema.UserEmailTarget)) == 0 {
		return h.Obj.AddElementLocal(ctx, schema.UserEmailTarget, newMail)
	}
	return nil
}

// renamePersonas renames every linked persona from <old>:<suffix> to
// <new>:<suffix>, atomically via checkpoint: a failure at persona k
// rolls personas 0..k-1 back to their exact original names.
func (h *Hook) renamePersonas(ctx context.Context, newName string) *dialog.Result {
	personas := h.Obj.GetValues(schema.UserPersonae)
	if len(personas) == 0 {
		return nil
	}

	s := h.Obj.Session()
	es := s.EditSet()
	cp := "persona rename " + newName
	es.Checkpoint(cp)

	for _, v := range personas {
		pinv, ok := v.(schema.Invid)
		if !ok {
			continue
		}
		pobj, res := s.EditObject(ctx, pinv)
		if !res.DidSucceed() {
			es.Rollback(cp)
			return res
		}

		oldPName, _ := pobj.GetValue(schema.PersonaName).(string)
		suffix := oldPName
		if i := strings.Index(oldPName, ":"); i >= 0 {
			suffix = oldPName[i+1:]
		}

		if res := pobj.SetValueLocal(ctx, schema.PersonaName, newName+":"+suffix); !res.DidSucceed() {
			es.Rollback(cp)
			return res
		}
	}

	es.PopCheckpoint(cp)
	return nil
}

// FinalizeDeleteElement refuses to delete the alias currently serving
// as the signature alias.
func (h *Hook) FinalizeDeleteElement(ctx context.Context, fid schema.FieldID, idx int) *dialog.Result {
	if fid != schema.UserAliases {
		return nil
	}
	vs := h.Obj.GetValues(schema.UserAliases)
	if idx < 0 || idx >= len(vs) {
		return nil
	}
	gone, _ := vs[idx].(string)
	sig, _ := h.Obj.GetValue(schema.UserSignature).(string)
	if gone == "" || gone != sig {
		return nil
	}
	return dialog.Failure(dialog.NewDialog(
		"Signature Alias In Use",
		fmt.Sprintf("%q is the current signature alias; choose another signature before deleting it", gone),
		"OK", "", "error.gif"))
}

// WizardHook interposes on sensitive mutations. Dispatch runs in
// priority order: alias edits approve with a signature rescan, group
// list edits approve unless the home group itself is being removed, and
// username renames go through the full rename wizard protocol.
func (h *Hook) WizardHook(ctx context.Context, fid schema.FieldID, op engine.FieldOp, param1, param2 any) *dialog.Result {
	if fid == schema.UserAliases {
		// The signature choice list derives from the alias list.
		return dialog.OKRescan(h.Obj.Invid(), schema.UserSignature)
	}

	if fid == schema.UserGroupList {
		return h.groupListHook(ctx, op, param1, param2)
	}

	if fid != schema.UserUsername || op != engine.OpSetVal {
		return nil
	}
	return h.usernameHook(ctx, param1)
}

func (h *Hook) groupListHook(ctx context.Context, op engine.FieldOp, param1, param2 any) *dialog.Result {
	switch op {
	case engine.OpAddElement:
		return dialog.OKRescan(h.Obj.Invid(), schema.UserHomeGroup)

	case engine.OpDelElement:
		idx, _ := param1.(int)
		home := h.Obj.GetValue(schema.UserHomeGroup)
		if home == nil || param2 != home {
			return dialog.OKRescan(h.Obj.Invid(), schema.UserHomeGroup)
		}
		if !h.Obj.Session().EnableWizards {
			return dialog.OKRescan(h.Obj.Invid(), schema.UserHomeGroup)
		}
		return h.dispatchWizard(ctx, wizard.KindHomeGroupDel, schema.UserGroupList, idx,
			func() *dialog.Result { return newHomeGroupDelWizard(ctx, h, idx) },
			dialog.OKRescan(h.Obj.Invid(), schema.UserHomeGroup))
	}
	return nil
}

func (h *Hook) usernameHook(ctx context.Context, param1 any) *dialog.Result {
	// Fresh objects get their names without interrogation, with rescan
	// hints for everything the cascade touches.
	if h.Obj.GetValue(schema.UserUsername) == nil || h.Obj.Status() == schema.StatusCreating {
		return dialog.OKRescan(h.Obj.Invid(),
			schema.UserHomeDir,
			schema.UserAliases,
			schema.UserSignature,
			schema.UserVolumes,
			schema.UserEmailTarget)
	}

	if !h.Obj.Session().EnableWizards {
		return nil
	}

	// Clearing the name during teardown bypasses the wizard entirely.
	if h.Obj.IsDeleting() && param1 == nil {
		return nil
	}

	oldName, _ := h.Obj.GetValue(schema.UserUsername).(string)
	newName, _ := param1.(string)
	return h.dispatchWizard(ctx, wizard.KindRename, schema.UserUsername, param1,
		func() *dialog.Result { return newRenameWizard(ctx, h, oldName, newName) },
		nil)
}

// dispatchWizard runs the shared wizard discipline: a matching active
// wizard in its terminal state is consumed as approval; any mismatch is
// a protocol error that forcibly unregisters the stale wizard; no
// active wizard means a fresh one is created and its opening dialog
// returned.
func (h *Hook) dispatchWizard(ctx context.Context, kind wizard.Kind, fid schema.FieldID, value any,
	create func() *dialog.Result, approved *dialog.Result) *dialog.Result {

	s := h.Obj.Session()
	if w := s.ActiveWizard(); w != nil {
		if w.Kind() == kind && w.Done() && w.Expect().Matches(h.Obj.Invid(), fid, value) {
			w.Unregister()
			return approved
		}
		w.Unregister()
		return dialog.Error("User Object Error",
			"the client is attempting to do an operation on a user object with a mismatched active wizard")
	}
	return create()
}
