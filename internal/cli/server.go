package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/ganymede-dms/ganymede/internal/config"
	"github.com/ganymede-dms/ganymede/internal/dialog"
	"github.com/ganymede-dms/ganymede/internal/engine"
	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/store"
	"github.com/ganymede-dms/ganymede/internal/user"
)

// openServer assembles a server from the global flags: store, config,
// and the per-type edit-hooks. The returned func closes the store.
func openServer(opts *RootOptions) (*engine.Server, *config.Config, func(), error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, nil, nil, WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	var ext user.Externals = user.NopExternals{}
	if cfg.ScriptDir != "" {
		ext = &user.ScriptExternals{Dir: cfg.ScriptDir}
	}

	srv := engine.NewServer(st)
	srv.LabelCacheSize = cfg.SessionLabelCache
	srv.RegisterHook(schema.TypeUser, user.NewHookFactory(cfg, ext))
	srv.RegisterHook(schema.TypeMapEntry, user.NewMapEntryHookFactory())

	return srv, cfg, func() { st.Close() }, nil
}

// dialogError turns a failed result into an ExitError carrying the
// dialog's message.
func dialogError(res *dialog.Result) error {
	if res == nil || res.Success {
		return nil
	}
	if res.Dialog == nil {
		return NewExitError(ExitFailure, "operation refused")
	}
	return NewExitError(ExitFailure,
		fmt.Sprintf("%s: %s", res.Dialog.Title, strings.TrimSpace(res.Dialog.Body)))
}

// lookupUser resolves a username to its invid.
func lookupUser(ctx context.Context, s *engine.Session, name string) (schema.Invid, error) {
	hits, err := s.InternalQuery(ctx, engine.Query{
		Type:   schema.TypeUser,
		Field:  schema.UserUsername,
		Equals: name,
	})
	if err != nil {
		return schema.NilInvid, WrapExitError(ExitCommandError, "query failed", err)
	}
	if len(hits) == 0 {
		return schema.NilInvid, NewExitError(ExitFailure, fmt.Sprintf("no such user %q", name))
	}
	return hits[0], nil
}
