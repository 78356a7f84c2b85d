package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFrom_Valid(t *testing.T) {
	p := writeConfig(t, `server:
  host: "127.0.0.1"
  port: ":9000"
render:
  engine: "oksvg"
  viewport_width: 800
  viewport_height: 600
  background: "transparent"
  timeout: 10s
chrome:
  pool_size: 2
  settle_delay: 500ms
rate_limiter:
  user_limit: 20
  interval: 1h
`)
	cfg := LoadFrom(p)
	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.Equal(t, EngineOksvg, cfg.Render.Engine)
	assert.Equal(t, 800, cfg.Render.ViewportWidth)
	assert.Equal(t, 600, cfg.Render.ViewportHeight)
	assert.Equal(t, BackgroundTransparent, cfg.Render.Background)
	assert.Equal(t, 10*time.Second, cfg.Render.Timeout)
	assert.Equal(t, 2, cfg.Chrome.PoolSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Chrome.SettleDelay)
	assert.Equal(t, 20, cfg.RateLimiter.UserLimit)
	assert.Equal(t, time.Hour, cfg.RateLimiter.Interval)
	// untouched keys get defaults
	assert.Equal(t, 5*time.Second, cfg.Chrome.NetworkIdleTimeout)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestDefault_MatchesBrowserPolicy(t *testing.T) {
	cfg := Default()
	assert.Equal(t, EngineChromium, cfg.Render.Engine)
	assert.Equal(t, 1200, cfg.Render.ViewportWidth)
	assert.Equal(t, 1200, cfg.Render.ViewportHeight)
	assert.Equal(t, BackgroundWhite, cfg.Render.Background)
	assert.Equal(t, 2*time.Second, cfg.Chrome.SettleDelay)
	assert.False(t, cfg.Chrome.FullPage)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_PanicsOnInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{name: "unknown engine", yml: "render:\n  engine: inkscape\n"},
		{name: "negative viewport", yml: "render:\n  viewport_width: -1\n"},
		{name: "bad background", yml: "render:\n  background: purple\n"},
		{name: "negative pool", yml: "chrome:\n  pool_size: -2\n"},
		{name: "negative user limit", yml: "rate_limiter:\n  user_limit: -1\n"},
		{name: "negative settle delay", yml: "chrome:\n  settle_delay: -1s\n"},
		{name: "malformed yaml", yml: "render: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := writeConfig(t, tc.yml)
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			_ = LoadFrom(p)
		})
	}
}

func TestLoadFrom_PanicsOnMissingFile(t *testing.T) {
	assert.Panics(t, func() {
		_ = LoadFrom(filepath.Join(t.TempDir(), "missing.yaml"))
	})
}

func TestLoad_UsesConfigPathEnv(t *testing.T) {
	p := writeConfig(t, "render:\n  engine: oksvg\n")
	t.Setenv("CONFIG_PATH", p)
	cfg := Load()
	if cfg.Render.Engine != EngineOksvg {
		t.Fatalf("expected CONFIG_PATH to be used, got engine %q", cfg.Render.Engine)
	}
}

func TestLoad_FallsBackToDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	chdir(t, t.TempDir())

	cfg := Load()
	assert.Equal(t, Default(), cfg)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})
}
