package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, validate(Default()))
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
home_dir_prefix: /export/home/
mail_suffix: "@corp.example.org"
removal_months: 6
`))
	require.NoError(t, err)

	assert.Equal(t, "/export/home/", cfg.HomeDirPrefix)
	assert.Equal(t, "@corp.example.org", cfg.MailSuffix)
	assert.Equal(t, 6, cfg.RemovalMonths)
	// untouched settings keep the defaults
	assert.Equal(t, "/bin/false", cfg.InactiveShell)
	assert.Equal(t, 512, cfg.SessionLabelCache)
}

func TestParse_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"mail suffix without @": `mail_suffix: "corp.example.org"`,
		"zero removal months":   `removal_months: 0`,
		"too many months":       `removal_months: 25`,
		"empty inactive shell":  `inactive_shell: ""`,
		"zero label cache":      `session_label_cache: 0`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("home_dir_prefix: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/ganymede.yaml")
	require.Error(t, err)
}
