package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), Filename)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(filepath.Join(t.TempDir(), Filename))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := writeConfig(t, `
languages: [c, python]
workers: 3
hints_dir: scripts
flush_after_resolve: true
log_level: debug
report: out.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "python"}, cfg.Languages)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "scripts"), cfg.HintsDir)
	assert.True(t, cfg.FlushAfterResolve)
	assert.Equal(t, "out.db", cfg.Report)

	lvl, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, lvl)
}

func TestLoadKeepsUnsetDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Load(writeConfig(t, "report: r.db\n"))
	require.NoError(t, err)
	assert.Equal(t, Default().Workers, cfg.Workers)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body string
		is   error
	}{
		{"malformed", "workers: [", nil},
		{"negative workers", "workers: -1\n", ErrInvalidConfig},
		{"bad level", "log_level: loud\n", ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestValidateLanguages(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Languages = []string{"c", "cobol"}
	require.NoError(t, cfg.Validate())
	assert.ErrorIs(t, cfg.Validate("c", "go"), ErrUnknownLanguage)
	cfg.Languages = []string{"go"}
	assert.NoError(t, cfg.Validate("c", "go"))
}
