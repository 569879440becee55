package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/verdant/internal/match"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "verdant.db", cfg.Database)
	assert.Equal(t, "notebook", cfg.Notebook)
	assert.Equal(t, "python", cfg.Language)
	assert.Equal(t, 65536, cfg.BlobThreshold)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, match.DefaultOptions(), cfg.MatchOptions())
}

func TestParseOverrides(t *testing.T) {
	src := `
verdant: {
	database: "history.db"
	language: "javascript"
	match: min_similarity: 0.75
	log_level: "debug"
}
`
	cfg, err := Parse("verdant.cue", []byte(src))
	require.NoError(t, err)

	assert.Equal(t, "history.db", cfg.Database)
	assert.Equal(t, "javascript", cfg.Language)
	assert.Equal(t, 0.75, cfg.Match.MinSimilarity)
	assert.Equal(t, 2, cfg.Match.MaxDepthDelta)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
	assert.Equal(t, "notebook", cfg.Notebook)
}

func TestParseWithoutVerdantStruct(t *testing.T) {
	cfg, err := Parse("verdant.cue", []byte(`other: 1`))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unknown language", `verdant: language: "ruby"`},
		{"unknown field", `verdant: colour: "green"`},
		{"similarity out of range", `verdant: match: min_similarity: 1.5`},
		{"negative threshold", `verdant: blob_threshold: -1`},
		{"empty notebook", `verdant: notebook: ""`},
		{"syntax error", `verdant: {`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("verdant.cue", []byte(tt.src))
			require.Error(t, err)
			var cfgErr *Error
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`verdant: blob_threshold: 32`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.BlobThreshold)
}

func TestLevel(t *testing.T) {
	for level, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		assert.Equal(t, want, Config{LogLevel: level}.Level(), level)
	}
}
