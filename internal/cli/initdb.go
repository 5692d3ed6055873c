package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ganymede-dms/ganymede/internal/engine"
	"github.com/ganymede-dms/ganymede/internal/schema"
)

// InitOptions holds flags for the init command.
type InitOptions struct {
	*RootOptions
	Shells  []string
	Groups  []string // name=gid
	Volumes []string // label=host:path
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a database with baseline objects",
		Long: `Initialize (or top up) a database with the baseline object graph:
login shells, groups, volumes, the default home automounter map, and the
default user category. Already-present objects are left alone.

Example:
  ganymede init --db ./site.db --group staff=100 --volume vol1=nfs1:/export/vol1`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceVar(&opts.Shells, "shell", []string{"/bin/bash", "/bin/zsh"}, "login shell to register (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Groups, "group", nil, "group to register as name=gid (repeatable)")
	cmd.Flags().StringSliceVar(&opts.Volumes, "volume", nil, "volume to register as label=host:path (repeatable)")

	return cmd
}

func runInit(opts *InitOptions, out io.Writer) error {
	srv, _, closeStore, err := openServer(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	s := srv.NewSession("cli-init")
	created := 0

	seed := func(typ schema.ObjectType, labelField schema.FieldID, label string, extra map[schema.FieldID]any) (schema.Invid, error) {
		hits, qerr := s.InternalQuery(ctx, engine.Query{Type: typ, Field: labelField, Equals: label})
		if qerr != nil {
			return schema.Invid{}, WrapExitError(ExitCommandError, "query failed", qerr)
		}
		if len(hits) > 0 {
			slog.Debug("already present", "type", typ.String(), "label", label)
			return hits[0], nil
		}
		o, res := s.CreateObject(ctx, typ)
		if rerr := dialogError(res); rerr != nil {
			return schema.Invid{}, rerr
		}
		if rerr := dialogError(o.SetValueLocal(ctx, labelField, label)); rerr != nil {
			return schema.Invid{}, rerr
		}
		for fid, v := range extra {
			if rerr := dialogError(o.SetValueLocal(ctx, fid, v)); rerr != nil {
				return schema.Invid{}, rerr
			}
		}
		created++
		return o.Invid(), nil
	}

	for _, shell := range opts.Shells {
		if _, err := seed(schema.TypeShell, schema.ShellName, shell, nil); err != nil {
			return err
		}
	}

	for _, spec := range opts.Groups {
		name, gidStr, ok := strings.Cut(spec, "=")
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("bad --group %q: want name=gid", spec))
		}
		gid, perr := strconv.Atoi(gidStr)
		if perr != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("bad --group %q", spec), perr)
		}
		if _, err := seed(schema.TypeGroup, schema.GroupName, name, map[schema.FieldID]any{
			schema.GroupGID: gid,
		}); err != nil {
			return err
		}
	}

	// Volume hosts are system objects; dedupe within the run since the
	// internal query only sees committed state.
	systems := make(map[string]schema.Invid)
	for _, spec := range opts.Volumes {
		label, loc, ok := strings.Cut(spec, "=")
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("bad --volume %q: want label=host:path", spec))
		}
		host, path, ok := strings.Cut(loc, ":")
		if !ok {
			return NewExitError(ExitCommandError, fmt.Sprintf("bad --volume %q: want label=host:path", spec))
		}
		sysInv, seen := systems[host]
		if !seen {
			var err error
			sysInv, err = seed(schema.TypeSystem, schema.SystemName, host, nil)
			if err != nil {
				return err
			}
			systems[host] = sysInv
		}
		if _, err := seed(schema.TypeVolume, schema.VolumeLabel, label, map[schema.FieldID]any{
			schema.VolumeHost: sysInv,
			schema.VolumePath: path,
		}); err != nil {
			return err
		}
	}

	if _, err := seed(schema.TypeAutomounterMap, schema.AutomounterMapName, "auto.home.default", nil); err != nil {
		return err
	}
	if _, err := seed(schema.TypeUserCategory, schema.UserCategoryName, "normal", nil); err != nil {
		return err
	}

	if err := dialogError(s.Commit(ctx)); err != nil {
		return err
	}
	fmt.Fprintf(out, "initialized: %d objects created\n", created)
	return nil
}
