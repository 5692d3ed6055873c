package user

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Externals dispatches account lifecycle events to the systems outside
// the directory: filesystem provisioning, mail routing, volume moves.
// Calls happen after the transaction is durable; failures are logged
// and reconciled out of band, never rolled back.
type Externals interface {
	UserCreated(ctx context.Context, username string, uid int, homedir string, volumes []string) error
	UserDeleted(ctx context.Context, username string) error
	UserRenamed(ctx context.Context, oldName, newName string) error
	VolumeMigration(ctx context.Context, username string, added, removed []string) error
}

// NopExternals discards all lifecycle events. Used in tests and in
// deployments that reconcile from the directory state directly.
type NopExternals struct{}

func (NopExternals) UserCreated(context.Context, string, int, string, []string) error { return nil }
func (NopExternals) UserDeleted(context.Context, string) error                        { return nil }
func (NopExternals) UserRenamed(context.Context, string, string) error                { return nil }
func (NopExternals) VolumeMigration(context.Context, string, []string, []string) error {
	return nil
}

// ScriptExternals shells out to site-local scripts in Dir, one per
// event. A missing script is not an error; sites implement only the
// events they care about.
type ScriptExternals struct {
	Dir string
}

func (e *ScriptExternals) UserCreated(ctx context.Context, username string, uid int, homedir string, volumes []string) error {
	return e.run(ctx, "user_created", username, strconv.Itoa(uid), homedir, strings.Join(volumes, ","))
}

func (e *ScriptExternals) UserDeleted(ctx context.Context, username string) error {
	return e.run(ctx, "user_deleted", username)
}

func (e *ScriptExternals) UserRenamed(ctx context.Context, oldName, newName string) error {
	return e.run(ctx, "user_renamed", oldName, newName)
}

func (e *ScriptExternals) VolumeMigration(ctx context.Context, username string, added, removed []string) error {
	return e.run(ctx, "volume_migration", username, strings.Join(added, ","), strings.Join(removed, ","))
}

func (e *ScriptExternals) run(ctx context.Context, name string, args ...string) error {
	path := filepath.Join(e.Dir, name)
	cmd := exec.CommandContext(ctx, path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if _, lookErr := exec.LookPath(path); lookErr != nil {
			slog.Debug("external script not installed", "script", name)
			return nil
		}
		return fmt.Errorf("external script %s: %w (output: %s)", name, err, strings.TrimSpace(string(out)))
	}
	slog.Info("external script ran", "script", name, "args", args)
	return nil
}
