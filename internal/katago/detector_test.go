package katago

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/katago-web/internal/config"
)

func writeFile(t *testing.T, path string, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), mode))
}

func TestDetectFindsHomeInstallation(t *testing.T) {
	home := t.TempDir()
	model := filepath.Join(home, ".katago", "models", "kata1-b18c384nbt.bin.gz")
	writeFile(t, model, 0o644)
	writeFile(t, filepath.Join(home, ".katago", "analysis.cfg"), 0o644)
	gtpCfg := filepath.Join(home, ".katago", "gtp.cfg")
	writeFile(t, gtpCfg, 0o644)
	writeFile(t, filepath.Join(home, ".katago", "notes.txt"), 0o644)

	in := Detect(home)
	assert.Equal(t, model, in.ModelPath)
	assert.Equal(t, gtpCfg, in.ConfigPath, "gtp configs are preferred")
}

func TestDetectReportsProblems(t *testing.T) {
	in := Detect(t.TempDir())
	if in.ModelPath == "" {
		assert.False(t, in.Complete())
		assert.NotEmpty(t, in.Problems)
	}
}

func TestIsExecutable(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "katago")
	plain := filepath.Join(dir, "plain")
	writeFile(t, exe, 0o755)
	writeFile(t, plain, 0o644)

	assert.True(t, isExecutable(exe))
	assert.False(t, isExecutable(plain))
	assert.False(t, isExecutable(dir))
	assert.False(t, isExecutable(filepath.Join(dir, "missing")))
}

func TestApplyDetected(t *testing.T) {
	dir := t.TempDir()
	exe := filepath.Join(dir, "katago")
	writeFile(t, exe, 0o755)
	in := &Installation{BinaryPath: "/detected/katago", ModelPath: "/detected/model.bin.gz", ConfigPath: "/detected/gtp.cfg"}

	t.Run("fills missing paths", func(t *testing.T) {
		cfg := &config.EngineConfig{BinaryPath: filepath.Join(dir, "nope")}
		ApplyDetected(cfg, in)
		assert.Equal(t, "/detected/katago", cfg.BinaryPath)
		assert.Equal(t, "/detected/model.bin.gz", cfg.ModelPath)
		assert.Equal(t, "/detected/gtp.cfg", cfg.ConfigPath)
	})

	t.Run("keeps configured paths", func(t *testing.T) {
		cfg := &config.EngineConfig{BinaryPath: exe, ModelPath: "/mine.bin.gz", ConfigPath: "/mine.cfg"}
		ApplyDetected(cfg, in)
		assert.Equal(t, exe, cfg.BinaryPath)
		assert.Equal(t, "/mine.bin.gz", cfg.ModelPath)
		assert.Equal(t, "/mine.cfg", cfg.ConfigPath)
	})
}

func TestInstallInstructions(t *testing.T) {
	text := InstallInstructions()
	assert.Contains(t, text, "katagotraining.org")
	assert.Contains(t, text, "KATAGO_MODEL_PATH")
}
