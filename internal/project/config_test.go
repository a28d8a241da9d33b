package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docgen/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), DefaultConfigName)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, "targets: [pdf]\n"))
	require.NoError(t, err)

	require.Equal(t, "docs", cfg.SourceDir)
	require.Equal(t, "build", cfg.TargetRoot)
	require.Equal(t, []string{"pdf"}, cfg.Targets)
	require.Equal(t, OnErrorAbort, cfg.OnError)
}

func TestLoadConfig_ExpandsEnvironment(t *testing.T) {
	t.Setenv("DOCGEN_TEST_SRC", "manuscript")
	cfg, err := LoadConfig(writeConfig(t, "source_dir: ${DOCGEN_TEST_SRC}\n"))
	require.NoError(t, err)
	require.Equal(t, "manuscript", cfg.SourceDir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), DefaultConfigName))
	require.Error(t, err)
	require.True(t, errors.IsCategory(err, errors.CategoryConfig))
}

func TestConfigValidate_Rejections(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown target", "targets: [docx]\n"},
		{"duplicate target", "targets: [html, html]\n"},
		{"bad on_error", "on_error: explode\n"},
		{"negative concurrency", "concurrency: -2\n"},
		{"unknown media_formats key", "media_formats:\n  docx: [.png]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.yaml))
			require.Error(t, err)
			require.True(t, errors.IsCategory(err, errors.CategoryValidation))
		})
	}
}

func TestFormatsFor_OverridesAndDefaults(t *testing.T) {
	cfg := &Config{MediaFormats: map[string][]string{"tex": {"png", ".PDF"}}}

	require.Equal(t, []string{".png", ".pdf"}, cfg.FormatsFor("tex"),
		"overrides are normalized to dotted lowercase")
	require.Equal(t, []string{".svg", ".png"}, cfg.FormatsFor("html"))
	require.Equal(t, []string{".pdf", ".png"}, cfg.FormatsFor(".pdf"))
}

func TestInitConfig_StarterRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultConfigName)
	require.NoError(t, InitConfig(path, false))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"html", "pdf"}, cfg.Targets)

	require.Error(t, InitConfig(path, false), "existing config must not be overwritten")
	require.NoError(t, InitConfig(path, true))
}
