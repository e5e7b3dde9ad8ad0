package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmmcquay/katago-web/internal/config"
	"github.com/dmmcquay/katago-web/internal/health"
	"github.com/dmmcquay/katago-web/internal/katago"
	"github.com/dmmcquay/katago-web/internal/logging"
	"github.com/dmmcquay/katago-web/internal/ratelimit"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestVersionFlag(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "katago-web version "+config.Default().Server.Version)
	assert.Contains(t, out.String(), "Git commit: "+GitCommit)
}

func TestLoadConfigFlags(t *testing.T) {
	t.Setenv("KATAGO_WEB_ADDR", "")
	t.Setenv("KATAGO_WEB_STATIC_DIR", "")
	path := writeConfig(t, `{"server": {"addr": "0.0.0.0:9000", "staticDir": "/srv/www"}}`)

	t.Run("file values", func(t *testing.T) {
		cmd := newRootCmd()
		opts := &options{configPath: path}
		require.NoError(t, cmd.ParseFlags(nil))

		cfg, err := loadConfig(cmd, opts)
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9000", cfg.Server.Addr)
		assert.Equal(t, "/srv/www", cfg.Server.StaticDir)
	})

	t.Run("flags override file", func(t *testing.T) {
		cmd := newRootCmd()
		require.NoError(t, cmd.ParseFlags([]string{"--config", path, "--addr", "127.0.0.1:8123", "--static-dir", "web"}))

		// Flags are bound to the options captured by RunE, so read them back.
		opts := &options{}
		opts.configPath, _ = cmd.Flags().GetString("config")
		opts.addr, _ = cmd.Flags().GetString("addr")
		opts.staticDir, _ = cmd.Flags().GetString("static-dir")

		cfg, err := loadConfig(cmd, opts)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:8123", cfg.Server.Addr)
		assert.Equal(t, "web", cfg.Server.StaticDir)
	})

	t.Run("bad file", func(t *testing.T) {
		cmd := newRootCmd()
		_, err := loadConfig(cmd, &options{configPath: writeConfig(t, `{"server":`)})
		assert.Error(t, err)
	})
}

func TestEngineCheck(t *testing.T) {
	engine := katago.NewMockEngine()
	check := engineCheck(engine)

	assert.NoError(t, check(context.Background()))

	engine.SetState(katago.StateStarting)
	var degraded *health.DegradedError
	assert.ErrorAs(t, check(context.Background()), &degraded)

	engine.SetStartError(errors.New("model missing"))
	_ = engine.Start(context.Background())
	err := check(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine failed: model missing")

	engine.SetState(katago.StateStopped)
	assert.EqualError(t, check(context.Background()), "engine stopped")
}

func TestHealthReport(t *testing.T) {
	cfg := config.Default()
	cfg.Engine.ModelPath = "/models/kata1.bin.gz"
	engine := katago.NewMockEngine()

	report := healthReport(cfg, engine, nil)
	assert.Contains(t, report, "Model: /models/kata1.bin.gz")
	assert.Contains(t, report, "KataGo engine status: ready")
	assert.Contains(t, report, "Enabled: false")

	logger := logging.NewLoggerFromConfig(&logging.Config{Level: "error", Format: logging.FormatText})
	limiter := ratelimit.NewLimiter(&cfg.RateLimit, logger, nil)
	report = healthReport(cfg, engine, limiter)
	assert.Contains(t, report, "Enabled: true")
	assert.Contains(t, report, "Burst size: 20")
}
