package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// schemaSource constrains every setting the server reads. Validation
// runs on load so a bad deployment fails at startup, not at the first
// user operation that touches the setting.
const schemaSource = `
{
	home_dir_prefix:  string
	mail_suffix:      string & =~"^@.+"
	inactive_shell:   string & !=""
	removal_months:   int & >0 & <=24
	script_dir:       string
	session_label_cache: int & >0
}
`

// Config holds the server's site-local settings.
type Config struct {
	// HomeDirPrefix is prepended to the username to form home
	// directories. Empty disables home directory validation.
	HomeDirPrefix string `yaml:"home_dir_prefix"`

	// MailSuffix is the domain suffix appended to usernames for the
	// default email targets, e.g. "@example.com".
	MailSuffix string `yaml:"mail_suffix"`

	// InactiveShell is the login shell forced onto inactivated
	// accounts.
	InactiveShell string `yaml:"inactive_shell"`

	// RemovalMonths is how many calendar months an inactivated account
	// lingers before its scheduled removal date.
	RemovalMonths int `yaml:"removal_months"`

	// ScriptDir holds the site-local external scripts. Empty disables
	// external dispatch.
	ScriptDir string `yaml:"script_dir"`

	// SessionLabelCache bounds the per-session label lookup cache.
	SessionLabelCache int `yaml:"session_label_cache"`
}

// Default returns the built-in settings used when no config file is
// given.
func Default() *Config {
	return &Config{
		HomeDirPrefix:     "/home/",
		MailSuffix:        "@example.com",
		InactiveShell:     "/bin/false",
		RemovalMonths:     3,
		ScriptDir:         "",
		SessionLabelCache: 512,
	}
}

// Load reads, validates, and decodes a YAML config file. Settings
// omitted from the file keep their defaults.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse validates and decodes YAML config bytes.
func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}

	val := ctx.Encode(map[string]any{
		"home_dir_prefix":     cfg.HomeDirPrefix,
		"mail_suffix":         cfg.MailSuffix,
		"inactive_shell":      cfg.InactiveShell,
		"removal_months":      cfg.RemovalMonths,
		"script_dir":          cfg.ScriptDir,
		"session_label_cache": cfg.SessionLabelCache,
	})
	if err := val.Err(); err != nil {
		return fmt.Errorf("config encode: %w", err)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
