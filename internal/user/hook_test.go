package user

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganymede-dms/ganymede/internal/config"
	"github.com/ganymede-dms/ganymede/internal/engine"
	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/store"
)

type createdEvent struct {
	username string
	uid      int
	homedir  string
	volumes  []string
}

type migrationEvent struct {
	username string
	added    []string
	removed  []string
}

// recordingExternals captures lifecycle events for assertions.
type recordingExternals struct {
	mu         sync.Mutex
	created    []createdEvent
	deleted    []string
	renamed    [][2]string
	migrations []migrationEvent
}

func (e *recordingExternals) UserCreated(_ context.Context, username string, uid int, homedir string, volumes []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.created = append(e.created, createdEvent{username, uid, homedir, volumes})
	return nil
}

func (e *recordingExternals) UserDeleted(_ context.Context, username string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deleted = append(e.deleted, username)
	return nil
}

func (e *recordingExternals) UserRenamed(_ context.Context, oldName, newName string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renamed = append(e.renamed, [2]string{oldName, newName})
	return nil
}

func (e *recordingExternals) VolumeMigration(_ context.Context, username string, added, removed []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.migrations = append(e.migrations, migrationEvent{username, added, removed})
	return nil
}

type fixture struct {
	srv *engine.Server
	cfg *config.Config
	ext *recordingExternals

	staff, wheel schema.Invid
	homeMap      schema.Invid
	vol1, vol2   schema.Invid
}

var testNow = time.Date(2024, 5, 17, 12, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	srv := engine.NewServer(st)
	srv.Now = func() time.Time { return testNow }

	cfg := config.Default()
	ext := &recordingExternals{}
	srv.RegisterHook(schema.TypeUser, NewHookFactory(cfg, ext))
	srv.RegisterHook(schema.TypeMapEntry, NewMapEntryHookFactory())

	f := &fixture{srv: srv, cfg: cfg, ext: ext}
	f.seed(t)
	return f
}

func (f *fixture) seed(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	s := f.srv.NewSession("seed")

	create := func(typ schema.ObjectType, fid schema.FieldID, label string) schema.Invid {
		o, res := s.CreateObject(ctx, typ)
		require.True(t, res.DidSucceed())
		require.True(t, o.SetValueLocal(ctx, fid, label).DidSucceed())
		return o.Invid()
	}

	f.staff = create(schema.TypeGroup, schema.GroupName, "staff")
	f.wheel = create(schema.TypeGroup, schema.GroupName, "wheel")
	create(schema.TypeShell, schema.ShellName, "/bin/bash")
	create(schema.TypeShell, schema.ShellName, "/bin/zsh")
	f.homeMap = create(schema.TypeAutomounterMap, schema.AutomounterMapName, "auto.home.default")
	create(schema.TypeUserCategory, schema.UserCategoryName, "normal")
	f.vol1 = create(schema.TypeVolume, schema.VolumeLabel, "vol1")
	f.vol2 = create(schema.TypeVolume, schema.VolumeLabel, "vol2")

	require.True(t, s.Commit(ctx).DidSucceed())
}

// buildUser creates a new user in a fresh session without committing.
func buildUser(t *testing.T, f *fixture, sessionID, name string) (*engine.Session, *engine.EditObject) {
	t.Helper()
	ctx := context.Background()
	s := f.srv.NewSession(sessionID)

	u, res := s.CreateObject(ctx, schema.TypeUser)
	require.True(t, res.DidSucceed())

	require.True(t, u.SetValue(ctx, schema.UserUsername, name).DidSucceed())
	require.True(t, u.SetValue(ctx, schema.UserHomeGroup, f.staff).DidSucceed())
	require.True(t, u.AddElement(ctx, schema.UserGroupList, f.staff).DidSucceed())
	require.True(t, u.SetValue(ctx, schema.UserLoginShell, "/bin/bash").DidSucceed())
	require.True(t, u.SetValueLocal(ctx, schema.UserPassword, HashPassword("hunter2")).DidSucceed())

	// Point the generated volume entry at a real volume.
	entries := u.GetValues(schema.UserVolumes)
	require.Len(t, entries, 1)
	entry := s.EditSet().Object(entries[0].(schema.Invid))
	require.NotNil(t, entry)
	require.True(t, entry.SetValueLocal(ctx, schema.MapEntryVolume, f.vol1).DidSucceed())

	return s, u
}

// seedUser commits a freshly-built user and returns its invid.
func seedUser(t *testing.T, f *fixture, name string) schema.Invid {
	t.Helper()
	ctx := context.Background()
	s, u := buildUser(t, f, "seed-user-"+name, name)
	require.True(t, s.Commit(ctx).DidSucceed())
	return u.Invid()
}

func TestCreateUser_GeneratedDefaults(t *testing.T) {
	f := newFixture(t)
	_, u := buildUser(t, f, "create", "alice")

	assert.NotEmpty(t, u.GetValue(schema.UserGUID))
	assert.Equal(t, 1001, u.GetValue(schema.UserUID))

	cat, ok := u.GetValue(schema.UserCategory).(schema.Invid)
	require.True(t, ok)
	assert.Equal(t, schema.TypeUserCategory, cat.Type)

	entries := u.GetValues(schema.UserVolumes)
	require.Len(t, entries, 1)
	entry := u.Session().EditSet().Object(entries[0].(schema.Invid))
	require.NotNil(t, entry)
	assert.Equal(t, f.homeMap, entry.GetValue(schema.MapEntryMap))

	// naming cascade seeded everything derived from the username
	assert.Equal(t, "alice", u.GetValue(schema.UserSignature))
	assert.Equal(t, "/home/alice", u.GetValue(schema.UserHomeDir))
	assert.Equal(t, []any{"alice@example.com"}, u.GetValues(schema.UserEmailTarget))
}

func TestCreateUser_UIDsDistinctAcrossSessions(t *testing.T) {
	f := newFixture(t)

	_, ua := buildUser(t, f, "a", "alice")
	_, ub := buildUser(t, f, "b", "bob")

	assert.Equal(t, 1001, ua.GetValue(schema.UserUID))
	assert.Equal(t, 1002, ub.GetValue(schema.UserUID))
}

func TestCreateUser_UIDReusesSmallestFree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedUser(t, f, "alice")

	// alice holds 1001 in committed state; the next account probes past it
	_, u := buildUser(t, f, "next", "bob")
	assert.Equal(t, 1002, u.GetValue(schema.UserUID))

	require.True(t, u.Session().Commit(ctx).DidSucceed())
}

func TestUID_LockedOnceSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	res = u.SetValue(ctx, schema.UserUID, 5000)
	require.NotNil(t, res)
	assert.False(t, res.DidSucceed())
	assert.Equal(t, 1001, u.GetValue(schema.UserUID))

	super := f.srv.NewSession("root")
	super.Supergash = true
	su, sres := super.EditObject(ctx, inv)
	require.True(t, sres.DidSucceed())
	require.True(t, su.SetValue(ctx, schema.UserUID, 5000).DidSucceed())
	assert.Equal(t, 5000, su.GetValue(schema.UserUID))
}

func TestRename_CascadeThereAndBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	s.EnableWizards = false
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	require.True(t, u.SetValue(ctx, schema.UserUsername, "beth").DidSucceed())
	assert.Equal(t, "beth", u.GetValue(schema.UserSignature))
	assert.Equal(t, "/home/beth", u.GetValue(schema.UserHomeDir))
	assert.Equal(t, []any{"beth@example.com"}, u.GetValues(schema.UserEmailTarget))

	require.True(t, u.SetValue(ctx, schema.UserUsername, "alice").DidSucceed())
	assert.Equal(t, "alice", u.GetValue(schema.UserSignature))
	assert.Equal(t, "/home/alice", u.GetValue(schema.UserHomeDir))
	assert.Equal(t, []any{"alice@example.com"}, u.GetValues(schema.UserEmailTarget))

	require.True(t, s.Commit(ctx).DidSucceed())

	// committed namespace still names alice, and beth was never claimed
	_, num, ok, err := f.srv.Store.NamespaceOwner(ctx, schema.NamespaceUsername, "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, inv.Num, num)

	_, _, ok, err = f.srv.Store.NamespaceOwner(ctx, schema.NamespaceUsername, "beth")
	require.NoError(t, err)
	assert.False(t, ok)
}

// seedPersona commits a persona linked to the given user.
func seedPersona(t *testing.T, f *fixture, userInv schema.Invid, name string) schema.Invid {
	t.Helper()
	ctx := context.Background()
	s := f.srv.NewSession("seed-persona-" + name)

	p, res := s.CreateObject(ctx, schema.TypePersona)
	require.True(t, res.DidSucceed())
	require.True(t, p.SetValueLocal(ctx, schema.PersonaName, name).DidSucceed())

	u, res := s.EditObject(ctx, userInv)
	require.True(t, res.DidSucceed())
	require.True(t, u.AddElementLocal(ctx, schema.UserPersonae, p.Invid()).DidSucceed())

	require.True(t, s.Commit(ctx).DidSucceed())
	return p.Invid()
}

func TestRename_PersonaCascade(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")
	pweb := seedPersona(t, f, inv, "alice:web")
	pops := seedPersona(t, f, inv, "alice:ops")

	s := f.srv.NewSession("editor")
	s.EnableWizards = false
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	require.True(t, u.SetValue(ctx, schema.UserUsername, "beth").DidSucceed())

	web := s.EditSet().Object(pweb)
	require.NotNil(t, web)
	assert.Equal(t, "beth:web", web.GetValue(schema.PersonaName))
	ops := s.EditSet().Object(pops)
	require.NotNil(t, ops)
	assert.Equal(t, "beth:ops", ops.GetValue(schema.PersonaName))
}

func TestRename_PersonaConflictRollsBackAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")
	pweb := seedPersona(t, f, inv, "alice:web")
	pops := seedPersona(t, f, inv, "alice:ops")

	// Another account already owns the name the second persona would take.
	blocker := f.srv.NewSession("blocker")
	bp, res := blocker.CreateObject(ctx, schema.TypePersona)
	require.True(t, res.DidSucceed())
	require.True(t, bp.SetValueLocal(ctx, schema.PersonaName, "beth:ops").DidSucceed())
	require.True(t, blocker.Commit(ctx).DidSucceed())

	s := f.srv.NewSession("editor")
	s.EnableWizards = false
	u, eres := s.EditObject(ctx, inv)
	require.True(t, eres.DidSucceed())

	// check the personas out up front so the rollback restores them
	// in place instead of dropping the working copies
	_, pres := s.EditObject(ctx, pweb)
	require.True(t, pres.DidSucceed())
	_, pres = s.EditObject(ctx, pops)
	require.True(t, pres.DidSucceed())

	rres := u.SetValue(ctx, schema.UserUsername, "beth")
	require.NotNil(t, rres)
	assert.False(t, rres.DidSucceed())

	// the username write never landed and the whole cascade came back
	assert.Equal(t, "alice", u.GetValue(schema.UserUsername))
	assert.Equal(t, "alice", u.GetValue(schema.UserSignature))
	assert.Equal(t, "/home/alice", u.GetValue(schema.UserHomeDir))
	assert.Equal(t, []any{"alice@example.com"}, u.GetValues(schema.UserEmailTarget))
	assert.Equal(t, "alice:web", s.EditSet().Object(pweb).GetValue(schema.PersonaName))
	assert.Equal(t, "alice:ops", s.EditSet().Object(pops).GetValue(schema.PersonaName))
}

func TestSignature_MustComeFromChoices(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	require.True(t, u.AddElement(ctx, schema.UserAliases, "al").DidSucceed())

	bad := u.SetValue(ctx, schema.UserSignature, "nobody")
	require.NotNil(t, bad)
	assert.False(t, bad.DidSucceed())

	require.True(t, u.SetValue(ctx, schema.UserSignature, "al").DidSucceed())
	assert.Equal(t, "al", u.GetValue(schema.UserSignature))
}

func TestAliasDelete_SignatureGuard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	require.True(t, u.AddElement(ctx, schema.UserAliases, "al").DidSucceed())
	require.True(t, u.SetValue(ctx, schema.UserSignature, "al").DidSucceed())

	idx := u.IndexOfValue(schema.UserAliases, "al")
	require.GreaterOrEqual(t, idx, 0)

	del := u.DeleteElement(ctx, schema.UserAliases, idx)
	require.NotNil(t, del)
	assert.False(t, del.DidSucceed())
	assert.Equal(t, "Signature Alias In Use", del.Dialog.Title)

	// moving the signature back to the username frees the alias
	require.True(t, u.SetValue(ctx, schema.UserSignature, "alice").DidSucceed())
	require.True(t, u.DeleteElement(ctx, schema.UserAliases, idx).DidSucceed())
}

func TestHomeDir_ConventionEnforced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	bad := u.SetValue(ctx, schema.UserHomeDir, "/somewhere/else")
	require.NotNil(t, bad)
	assert.False(t, bad.DidSucceed())

	require.True(t, u.SetValue(ctx, schema.UserHomeDir, "/home/alice").DidSucceed())
}

func TestExpiration_ClearOnlyWhenLeaving(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	require.True(t, u.SetValue(ctx, schema.UserExpiration, testNow.AddDate(1, 0, 0)).DidSucceed())

	cleared := u.SetValue(ctx, schema.UserExpiration, nil)
	require.NotNil(t, cleared)
	assert.False(t, cleared.DidSucceed())

	// once the account is on the removal track the clear is legal
	require.True(t, u.SetValueLocal(ctx, schema.UserRemoval, testNow.AddDate(0, 3, 0)).DidSucceed())
	require.True(t, u.SetValue(ctx, schema.UserExpiration, nil).DidSucceed())
}

func TestInactivate_Direct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	s.EnableWizards = false
	res := s.InactivateObject(ctx, inv, "alice@elsewhere.org")
	require.True(t, res.DidSucceed())

	u := s.EditSet().Object(inv)
	require.NotNil(t, u)
	assert.Nil(t, u.GetValue(schema.UserPassword))
	assert.Equal(t, "/bin/false", u.GetValue(schema.UserLoginShell))
	assert.Equal(t, []any{"alice@elsewhere.org"}, u.GetValues(schema.UserEmailTarget))
	assert.Nil(t, u.GetValue(schema.UserExpiration))
	assert.Equal(t, testNow.AddDate(0, 3, 0), u.GetValue(schema.UserRemoval))
	assert.True(t, u.IsInactivated())

	// password and email are no longer required once inactivated
	require.True(t, s.Commit(ctx).DidSucceed())
}

func TestInactivate_NoForwardKeepsTargets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	s.EnableWizards = false
	require.True(t, s.InactivateObject(ctx, inv, "").DidSucceed())

	u := s.EditSet().Object(inv)
	assert.Equal(t, []any{"alice@example.com"}, u.GetValues(schema.UserEmailTarget))
}

func TestCommit_MissingRequiredField(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	s, u := buildUser(t, f, "incomplete", "alice")
	require.True(t, u.SetValueLocal(ctx, schema.UserPassword, nil).DidSucceed())

	res := s.Commit(ctx)
	require.NotNil(t, res)
	assert.False(t, res.DidSucceed())
}

func TestMapEntry_MapLockedOnceSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	entryInv := u.GetValues(schema.UserVolumes)[0].(schema.Invid)
	entry, res := s.EditObject(ctx, entryInv)
	require.True(t, res.DidSucceed())

	other := entry.SetValue(ctx, schema.MapEntryMap, f.homeMap)
	require.NotNil(t, other)
	assert.False(t, other.DidSucceed())
}

func TestRename_ConflictRejectsWholeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")
	seedUser(t, f, "beth")

	s := f.srv.NewSession("editor")
	s.EnableWizards = false
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	// the taken name is rejected before any cascade leg runs
	rres := u.SetValue(ctx, schema.UserUsername, "beth")
	require.NotNil(t, rres)
	assert.False(t, rres.DidSucceed())
	assert.Equal(t, "Value In Use", rres.Dialog.Title)

	assert.Equal(t, "alice", u.GetValue(schema.UserUsername))
	assert.Equal(t, "alice", u.GetValue(schema.UserSignature))
	assert.Equal(t, "/home/alice", u.GetValue(schema.UserHomeDir))
	assert.Equal(t, []any{"alice@example.com"}, u.GetValues(schema.UserEmailTarget))
}

func TestRename_EmptyNameRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	s.EnableWizards = false
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	rres := u.SetValue(ctx, schema.UserUsername, "")
	require.NotNil(t, rres)
	assert.False(t, rres.DidSucceed())
	assert.Equal(t, "Username Required", rres.Dialog.Title)

	assert.Equal(t, "alice", u.GetValue(schema.UserUsername))
	assert.Equal(t, "/home/alice", u.GetValue(schema.UserHomeDir))
}
