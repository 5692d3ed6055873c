package user

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ganymede-dms/ganymede/internal/schema"
)

func TestRenameWizard_KeepAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	step := u.SetValue(ctx, schema.UserUsername, "beth")
	require.NotNil(t, step)
	require.True(t, step.Resumable())
	assert.Equal(t, "alice", u.GetValue(schema.UserUsername))
	require.NotNil(t, s.ActiveWizard())

	final := step.Callback.Respond(map[string]any{
		"Keep old name as an email alias?": true,
	})
	require.True(t, final.DidSucceed())
	assert.Equal(t, "User Rename Performed", final.Dialog.Title)

	assert.Equal(t, "beth", u.GetValue(schema.UserUsername))
	assert.Equal(t, "beth", u.GetValue(schema.UserSignature))
	assert.Equal(t, "/home/beth", u.GetValue(schema.UserHomeDir))
	assert.GreaterOrEqual(t, u.IndexOfValue(schema.UserAliases, "alice"), 0)
	assert.Nil(t, s.ActiveWizard())

	require.True(t, s.Commit(ctx).DidSucceed())
}

func TestRenameWizard_DropAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	step := u.SetValue(ctx, schema.UserUsername, "beth")
	require.True(t, step.Resumable())

	final := step.Callback.Respond(map[string]any{
		"Keep old name as an email alias?": false,
	})
	require.True(t, final.DidSucceed())
	assert.Equal(t, -1, u.IndexOfValue(schema.UserAliases, "alice"))
}

func TestRenameWizard_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	step := u.SetValue(ctx, schema.UserUsername, "beth")
	require.True(t, step.Resumable())

	final := step.Callback.Respond(nil)
	require.NotNil(t, final)
	assert.False(t, final.DidSucceed())
	assert.Equal(t, "User Rename Cancelled", final.Dialog.Title)

	assert.Equal(t, "alice", u.GetValue(schema.UserUsername))
	assert.Nil(t, s.ActiveWizard())
}

func TestRenameWizard_MismatchedOperation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	step := u.SetValue(ctx, schema.UserUsername, "beth")
	require.True(t, step.Resumable())

	// a different rename while the wizard is mid-flight is a protocol
	// error that evicts the stale wizard
	clash := u.SetValue(ctx, schema.UserUsername, "carol")
	require.NotNil(t, clash)
	assert.False(t, clash.DidSucceed())
	assert.Contains(t, clash.Dialog.Body, "mismatched active wizard")
	assert.Nil(t, s.ActiveWizard())
	assert.Equal(t, "alice", u.GetValue(schema.UserUsername))
}

func TestInactivateWizard_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	step := s.InactivateObject(ctx, inv, "")
	require.NotNil(t, step)
	require.True(t, step.Resumable())
	require.Len(t, step.Dialog.Prompts, 1)
	assert.Equal(t, "Forwarding Address", step.Dialog.Prompts[0].Label)

	final := step.Callback.Respond(map[string]any{
		"Forwarding Address": "alice@elsewhere.org",
	})
	require.True(t, final.DidSucceed())
	assert.Equal(t, "User Inactivation Performed", final.Dialog.Title)

	u := s.EditSet().Object(inv)
	require.NotNil(t, u)
	assert.Nil(t, u.GetValue(schema.UserPassword))
	assert.Equal(t, "/bin/false", u.GetValue(schema.UserLoginShell))
	assert.Equal(t, []any{"alice@elsewhere.org"}, u.GetValues(schema.UserEmailTarget))
	assert.Equal(t, testNow.AddDate(0, 3, 0), u.GetValue(schema.UserRemoval))
	assert.Nil(t, s.ActiveWizard())
}

func TestInactivateWizard_Cancel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	step := s.InactivateObject(ctx, inv, "")
	require.True(t, step.Resumable())

	final := step.Callback.Respond(nil)
	require.NotNil(t, final)
	assert.False(t, final.DidSucceed())
	assert.Equal(t, "User Inactivation Canceled", final.Dialog.Title)

	u := s.EditSet().Object(inv)
	assert.Nil(t, u.GetValue(schema.UserRemoval))
	assert.False(t, u.IsInactivated())
}

func TestReactivateWizard_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	prep := f.srv.NewSession("prep")
	prep.EnableWizards = false
	require.True(t, prep.InactivateObject(ctx, inv, "").DidSucceed())
	require.True(t, prep.Commit(ctx).DidSucceed())

	s := f.srv.NewSession("editor")
	intro := s.ReactivateObject(ctx, inv)
	require.NotNil(t, intro)
	require.True(t, intro.Resumable())

	collect := intro.Callback.Respond(map[string]any{})
	require.True(t, collect.Resumable())
	require.Len(t, collect.Dialog.Prompts, 3)
	assert.Contains(t, collect.Dialog.Prompts[1].Choices, "/bin/zsh")

	// step 2 without a password rewinds to the collection step
	again := collect.Callback.Respond(map[string]any{"Shell": "/bin/zsh"})
	require.True(t, again.Resumable())
	assert.Contains(t, again.Dialog.Body, "You must set a password")

	final := again.Callback.Respond(map[string]any{
		"New Password": "s3cret",
		"Shell":        "/bin/zsh",
		"Email Target": "alice@example.com",
	})
	require.True(t, final.DidSucceed())
	assert.Equal(t, "User Reactivation Performed", final.Dialog.Title)

	u := s.EditSet().Object(inv)
	require.NotNil(t, u)
	assert.Nil(t, u.GetValue(schema.UserRemoval))
	assert.Equal(t, HashPassword("s3cret"), u.GetValue(schema.UserPassword))
	assert.Equal(t, "/bin/zsh", u.GetValue(schema.UserLoginShell))
	assert.Equal(t, []any{"alice@example.com"}, u.GetValues(schema.UserEmailTarget))
	assert.False(t, u.IsInactivated())
	assert.Nil(t, s.ActiveWizard())

	require.True(t, s.Commit(ctx).DidSucceed())
}

func TestHomeGroupDelWizard_Flow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	build, u := buildUser(t, f, "builder", "alice")
	require.True(t, u.AddElement(ctx, schema.UserGroupList, f.wheel).DidSucceed())
	require.True(t, build.Commit(ctx).DidSucceed())
	inv := u.Invid()

	s := f.srv.NewSession("editor")
	eu, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	idx := eu.IndexOfValue(schema.UserGroupList, f.staff)
	require.GreaterOrEqual(t, idx, 0)

	warn := eu.DeleteElement(ctx, schema.UserGroupList, idx)
	require.NotNil(t, warn)
	require.True(t, warn.Resumable())

	choose := warn.Callback.Respond(map[string]any{})
	require.True(t, choose.Resumable())
	require.Len(t, choose.Dialog.Prompts, 1)
	assert.Equal(t, []string{"wheel"}, choose.Dialog.Prompts[0].Choices)

	final := choose.Callback.Respond(map[string]any{"New Home Group": "wheel"})
	require.True(t, final.DidSucceed())
	assert.Equal(t, "Home Group Change Performed", final.Dialog.Title)

	assert.Equal(t, f.wheel, eu.GetValue(schema.UserHomeGroup))
	assert.Equal(t, []any{f.wheel}, eu.GetValues(schema.UserGroupList))
	assert.Nil(t, s.ActiveWizard())

	require.True(t, s.Commit(ctx).DidSucceed())
}

func TestHomeGroupDelWizard_LoneGroupRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	del := u.DeleteElement(ctx, schema.UserGroupList, 0)
	require.NotNil(t, del)
	assert.False(t, del.DidSucceed())
	assert.False(t, del.Resumable())

	assert.Equal(t, []any{f.staff}, u.GetValues(schema.UserGroupList))
	assert.Nil(t, s.ActiveWizard())
}

func TestGroupList_AddNeedsNoWizard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	s := f.srv.NewSession("editor")
	u, res := s.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())

	add := u.AddElement(ctx, schema.UserGroupList, f.wheel)
	require.True(t, add.DidSucceed())
	assert.GreaterOrEqual(t, u.IndexOfValue(schema.UserGroupList, f.wheel), 0)
}

func TestGroupList_DelNonHomeNeedsNoWizard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	build, u := buildUser(t, f, "builder", "alice")
	require.True(t, u.AddElement(ctx, schema.UserGroupList, f.wheel).DidSucceed())
	require.True(t, build.Commit(ctx).DidSucceed())

	s := f.srv.NewSession("editor")
	eu, res := s.EditObject(ctx, u.Invid())
	require.True(t, res.DidSucceed())

	idx := eu.IndexOfValue(schema.UserGroupList, f.wheel)
	require.GreaterOrEqual(t, idx, 0)
	require.True(t, eu.DeleteElement(ctx, schema.UserGroupList, idx).DidSucceed())
	assert.Equal(t, -1, eu.IndexOfValue(schema.UserGroupList, f.wheel))
}

func TestRenameWizard_ConflictRestoresAlias(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")
	seedPersona(t, f, inv, "alice:ops")

	as := f.srv.NewSession("alias")
	au, res := as.EditObject(ctx, inv)
	require.True(t, res.DidSucceed())
	require.True(t, au.AddElementLocal(ctx, schema.UserAliases, "beth").DidSucceed())
	require.True(t, as.Commit(ctx).DidSucceed())

	// Another account already owns the name the persona cascade would take.
	blocker := f.srv.NewSession("blocker")
	bp, bres := blocker.CreateObject(ctx, schema.TypePersona)
	require.True(t, bres.DidSucceed())
	require.True(t, bp.SetValueLocal(ctx, schema.PersonaName, "beth:ops").DidSucceed())
	require.True(t, blocker.Commit(ctx).DidSucceed())

	s := f.srv.NewSession("editor")
	u, eres := s.EditObject(ctx, inv)
	require.True(t, eres.DidSucceed())

	step := u.SetValue(ctx, schema.UserUsername, "beth")
	require.NotNil(t, step)
	require.True(t, step.Resumable())

	final := step.Callback.Respond(map[string]any{
		"Keep old name as an email alias?": false,
	})
	require.NotNil(t, final)
	assert.False(t, final.DidSucceed())

	// The pre-rename alias shuffle came back with everything else.
	assert.GreaterOrEqual(t, u.IndexOfValue(schema.UserAliases, "beth"), 0)
	assert.Equal(t, "alice", u.GetValue(schema.UserUsername))
	assert.Equal(t, "alice", u.GetValue(schema.UserSignature))
	assert.Equal(t, "/home/alice", u.GetValue(schema.UserHomeDir))
	assert.Nil(t, s.ActiveWizard())
}

func TestHomeGroupDelWizard_FailedDeleteKeepsHomeGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := seedUser(t, f, "alice")

	gs := f.srv.NewSession("extra-group")
	og, gres := gs.CreateObject(ctx, schema.TypeGroup)
	require.True(t, gres.DidSucceed())
	require.True(t, og.SetValueLocal(ctx, schema.GroupName, "ops").DidSucceed())
	require.True(t, gs.Commit(ctx).DidSucceed())
	ops := og.Invid()

	s := f.srv.NewSession("editor")
	u, eres := s.EditObject(ctx, inv)
	require.True(t, eres.DidSucceed())
	require.True(t, u.AddElement(ctx, schema.UserGroupList, f.wheel).DidSucceed())
	require.True(t, u.AddElement(ctx, schema.UserGroupList, ops).DidSucceed())
	require.True(t, u.SetValue(ctx, schema.UserHomeGroup, ops).DidSucceed())

	step := u.DeleteElement(ctx, schema.UserGroupList, 2)
	require.NotNil(t, step)
	require.True(t, step.Resumable())

	choose := step.Callback.Respond(map[string]any{})
	require.NotNil(t, choose)
	require.True(t, choose.Resumable())

	// Yank an earlier element out from under the wizard so its parked
	// index no longer resolves.
	require.True(t, u.DeleteElementLocal(ctx, schema.UserGroupList, 0).DidSucceed())

	final := choose.Callback.Respond(map[string]any{
		"New Home Group": "wheel",
	})
	require.NotNil(t, final)
	assert.False(t, final.DidSucceed())

	// The home-group move rolled back with the failed removal.
	assert.Equal(t, ops, u.GetValue(schema.UserHomeGroup))
	assert.Equal(t, []any{f.wheel, ops}, u.GetValues(schema.UserGroupList))
	assert.Nil(t, s.ActiveWizard())
}
