package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/ganymede-dms/ganymede/internal/engine"
	"github.com/ganymede-dms/ganymede/internal/schema"
	"github.com/ganymede-dms/ganymede/internal/user"
)

// CreateUserOptions holds flags for the create-user command.
type CreateUserOptions struct {
	*RootOptions
	Group    string
	Shell    string
	Volume   string
	Password string
}

// NewCreateUserCommand creates the create-user command.
func NewCreateUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CreateUserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create-user <username>",
		Short: "Create a user account",
		Long: `Create a user account with generated UID, GUID, home directory,
email target, and an embedded volume entry on the default home map.

Example:
  ganymede create-user alice --db ./site.db --group staff --volume vol1 --password s3cret`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreateUser(opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Group, "group", "", "home group name (required)")
	cmd.Flags().StringVar(&opts.Shell, "shell", "/bin/bash", "login shell")
	cmd.Flags().StringVar(&opts.Volume, "volume", "", "home volume label (required)")
	cmd.Flags().StringVar(&opts.Password, "password", "", "initial password (required)")
	_ = cmd.MarkFlagRequired("group")
	_ = cmd.MarkFlagRequired("volume")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

func runCreateUser(opts *CreateUserOptions, username string, out io.Writer) error {
	srv, _, closeStore, err := openServer(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	s := srv.NewSession("cli-create-user")

	group, err := lookupByLabel(ctx, s, schema.TypeGroup, schema.GroupName, opts.Group)
	if err != nil {
		return err
	}
	volume, err := lookupByLabel(ctx, s, schema.TypeVolume, schema.VolumeLabel, opts.Volume)
	if err != nil {
		return err
	}

	u, res := s.CreateObject(ctx, schema.TypeUser)
	if rerr := dialogError(res); rerr != nil {
		return rerr
	}
	if rerr := dialogError(u.SetValue(ctx, schema.UserUsername, username)); rerr != nil {
		return rerr
	}
	if rerr := dialogError(u.SetValue(ctx, schema.UserHomeGroup, group)); rerr != nil {
		return rerr
	}
	if rerr := dialogError(u.AddElement(ctx, schema.UserGroupList, group)); rerr != nil {
		return rerr
	}
	if rerr := dialogError(u.SetValue(ctx, schema.UserLoginShell, opts.Shell)); rerr != nil {
		return rerr
	}
	if rerr := dialogError(u.SetValueLocal(ctx, schema.UserPassword, user.HashPassword(opts.Password))); rerr != nil {
		return rerr
	}

	entries := u.GetValues(schema.UserVolumes)
	if len(entries) != 1 {
		return NewExitError(ExitCommandError, "expected exactly one generated volume entry")
	}
	entry := s.EditSet().Object(entries[0].(schema.Invid))
	if entry == nil {
		return NewExitError(ExitCommandError, "generated volume entry missing from edit set")
	}
	if rerr := dialogError(entry.SetValueLocal(ctx, schema.MapEntryVolume, volume)); rerr != nil {
		return rerr
	}

	if rerr := dialogError(s.Commit(ctx)); rerr != nil {
		return rerr
	}

	fmt.Fprintf(out, "created user %s (uid %v, home %v)\n",
		username, u.GetValue(schema.UserUID), u.GetValue(schema.UserHomeDir))
	return nil
}

// NewRenameUserCommand creates the rename-user command.
func NewRenameUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename-user <old> <new>",
		Short: "Rename a user account",
		Long: `Rename a user account, cascading into the signature alias, home
directory, email target, and any linked personas.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRenameUser(rootOpts, args[0], args[1], cmd.OutOrStdout())
		},
	}
	return cmd
}

func runRenameUser(opts *RootOptions, oldName, newName string, out io.Writer) error {
	srv, _, closeStore, err := openServer(opts)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	s := srv.NewSession("cli-rename-user")
	s.EnableWizards = false

	inv, err := lookupUser(ctx, s, oldName)
	if err != nil {
		return err
	}
	u, res := s.EditObject(ctx, inv)
	if rerr := dialogError(res); rerr != nil {
		return rerr
	}
	if rerr := dialogError(u.SetValue(ctx, schema.UserUsername, newName)); rerr != nil {
		return rerr
	}
	if rerr := dialogError(s.Commit(ctx)); rerr != nil {
		return rerr
	}
	fmt.Fprintf(out, "renamed %s to %s\n", oldName, newName)
	return nil
}

// InactivateOptions holds flags for the inactivate-user command.
type InactivateOptions struct {
	*RootOptions
	Forward string
}

// NewInactivateUserCommand creates the inactivate-user command.
func NewInactivateUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InactivateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inactivate-user <username>",
		Short: "Inactivate a user account",
		Long: `Inactivate a user account: clear the password, force the disabled
shell, optionally forward email, and schedule the account for removal.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInactivateUser(opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Forward, "forward", "", "forwarding email address")
	return cmd
}

func runInactivateUser(opts *InactivateOptions, username string, out io.Writer) error {
	srv, _, closeStore, err := openServer(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	s := srv.NewSession("cli-inactivate-user")
	s.EnableWizards = false

	inv, err := lookupUser(ctx, s, username)
	if err != nil {
		return err
	}
	if rerr := dialogError(s.InactivateObject(ctx, inv, opts.Forward)); rerr != nil {
		return rerr
	}

	removal := ""
	if u := s.EditSet().Object(inv); u != nil {
		if ts, ok := u.GetValue(schema.UserRemoval).(time.Time); ok {
			removal = ts.Format(time.DateOnly)
		}
	}
	if rerr := dialogError(s.Commit(ctx)); rerr != nil {
		return rerr
	}
	fmt.Fprintf(out, "inactivated %s (removal %s)\n", username, removal)
	return nil
}

// ReactivateOptions holds flags for the reactivate-user command.
type ReactivateOptions struct {
	*RootOptions
	Password string
	Shell    string
	Email    string
}

// NewReactivateUserCommand creates the reactivate-user command.
func NewReactivateUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReactivateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "reactivate-user <username>",
		Short: "Reactivate an inactivated user account",
		Long: `Reactivate an inactivated user account by answering its wizard:
set a fresh password, optionally a shell and email target, and clear the
scheduled removal.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReactivateUser(opts, args[0], cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Password, "password", "", "new password (required)")
	cmd.Flags().StringVar(&opts.Shell, "shell", "", "login shell (keeps current when omitted)")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email target, comma separated")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func runReactivateUser(opts *ReactivateOptions, username string, out io.Writer) error {
	srv, _, closeStore, err := openServer(opts.RootOptions)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	s := srv.NewSession("cli-reactivate-user")

	inv, err := lookupUser(ctx, s, username)
	if err != nil {
		return err
	}

	// Drive the reactivation wizard: intro, then the collection step.
	step := s.ReactivateObject(ctx, inv)
	if !step.Resumable() {
		return dialogError(step)
	}
	step = step.Callback.Respond(map[string]any{})
	if !step.Resumable() {
		return dialogError(step)
	}
	final := step.Callback.Respond(map[string]any{
		"New Password": opts.Password,
		"Shell":        opts.Shell,
		"Email Target": opts.Email,
	})
	if rerr := dialogError(final); rerr != nil {
		return rerr
	}
	if rerr := dialogError(s.Commit(ctx)); rerr != nil {
		return rerr
	}
	fmt.Fprintf(out, "reactivated %s\n", username)
	return nil
}

// userReport is the show-user output shape.
type userReport struct {
	Username    string   `json:"username"`
	UID         int      `json:"uid"`
	GUID        string   `json:"guid"`
	HomeDir     string   `json:"homedir"`
	Shell       string   `json:"shell"`
	HomeGroup   string   `json:"home_group"`
	Groups      []string `json:"groups"`
	Signature   string   `json:"signature"`
	Aliases     []string `json:"aliases,omitempty"`
	EmailTarget []string `json:"email_target,omitempty"`
	Volumes     []string `json:"volumes,omitempty"`
	Expiration  string   `json:"expiration,omitempty"`
	Removal     string   `json:"removal,omitempty"`
	Inactivated bool     `json:"inactivated"`
}

// NewShowUserCommand creates the show-user command.
func NewShowUserCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "show-user <username>",
		Short:         "Show a user account",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShowUser(rootOpts, args[0], cmd.OutOrStdout())
		},
	}
	return cmd
}

func runShowUser(opts *RootOptions, username string, out io.Writer) error {
	srv, _, closeStore, err := openServer(opts)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	s := srv.NewSession("cli-show-user")

	inv, err := lookupUser(ctx, s, username)
	if err != nil {
		return err
	}
	u, res := s.EditObject(ctx, inv)
	if rerr := dialogError(res); rerr != nil {
		return rerr
	}

	rep := userReport{
		Username:    username,
		HomeDir:     str(u.GetValue(schema.UserHomeDir)),
		Shell:       str(u.GetValue(schema.UserLoginShell)),
		GUID:        str(u.GetValue(schema.UserGUID)),
		Signature:   str(u.GetValue(schema.UserSignature)),
		Inactivated: u.IsInactivated(),
	}
	if uid, ok := u.GetValue(schema.UserUID).(int); ok {
		rep.UID = uid
	}
	if hg, ok := u.GetValue(schema.UserHomeGroup).(schema.Invid); ok {
		rep.HomeGroup = s.ViewObjectLabel(ctx, hg)
	}
	for _, v := range u.GetValues(schema.UserGroupList) {
		if g, ok := v.(schema.Invid); ok {
			rep.Groups = append(rep.Groups, s.ViewObjectLabel(ctx, g))
		}
	}
	for _, v := range u.GetValues(schema.UserAliases) {
		rep.Aliases = append(rep.Aliases, str(v))
	}
	for _, v := range u.GetValues(schema.UserEmailTarget) {
		rep.EmailTarget = append(rep.EmailTarget, str(v))
	}
	for _, v := range u.GetValues(schema.UserVolumes) {
		entryInv, ok := v.(schema.Invid)
		if !ok {
			continue
		}
		entry, eres := s.EditObject(ctx, entryInv)
		if !eres.DidSucceed() {
			continue
		}
		if vol, ok := entry.GetValue(schema.MapEntryVolume).(schema.Invid); ok {
			rep.Volumes = append(rep.Volumes, s.ViewObjectLabel(ctx, vol))
		}
	}
	if ts, ok := u.GetValue(schema.UserExpiration).(time.Time); ok {
		rep.Expiration = ts.Format(time.DateOnly)
	}
	if ts, ok := u.GetValue(schema.UserRemoval).(time.Time); ok {
		rep.Removal = ts.Format(time.DateOnly)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: out}
	return f.Emit(rep, func(w io.Writer) {
		fmt.Fprintf(w, "user %s\n", rep.Username)
		fmt.Fprintf(w, "  uid:        %d\n", rep.UID)
		fmt.Fprintf(w, "  homedir:    %s\n", rep.HomeDir)
		fmt.Fprintf(w, "  shell:      %s\n", rep.Shell)
		fmt.Fprintf(w, "  home group: %s\n", rep.HomeGroup)
		fmt.Fprintf(w, "  groups:     %v\n", rep.Groups)
		fmt.Fprintf(w, "  signature:  %s\n", rep.Signature)
		if len(rep.EmailTarget) > 0 {
			fmt.Fprintf(w, "  email:      %v\n", rep.EmailTarget)
		}
		if rep.Removal != "" {
			fmt.Fprintf(w, "  removal:    %s\n", rep.Removal)
		}
	})
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// lookupByLabel resolves a label to the single object carrying it.
func lookupByLabel(ctx context.Context, s *engine.Session, typ schema.ObjectType, fid schema.FieldID, label string) (schema.Invid, error) {
	hits, err := s.InternalQuery(ctx, engine.Query{Type: typ, Field: fid, Equals: label})
	if err != nil {
		return schema.NilInvid, WrapExitError(ExitCommandError, "query failed", err)
	}
	if len(hits) != 1 {
		return schema.NilInvid, NewExitError(ExitFailure,
			fmt.Sprintf("no unique %s labeled %q", typ, label))
	}
	return hits[0], nil
}
