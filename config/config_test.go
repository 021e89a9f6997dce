package config

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/coagent/logging"
)

func noEnvFiles(o *LoadOptions) { o.EnvFiles = nil }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(noEnvFiles)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "openai", cfg.Model.Provider)
	assert.InDelta(t, 0.7, cfg.Model.Temperature, 1e-9)
	assert.Equal(t, 1024, cfg.Model.MaxTokens)
	assert.Equal(t, 30*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 10, cfg.Agent.MaxIterations)
	assert.Equal(t, 3, cfg.Agent.MaxConsecutiveErrors)
	assert.Equal(t, 100*time.Millisecond, cfg.Agent.RunInterval)
	assert.Equal(t, 64, cfg.Agent.QueueSize)
	assert.False(t, cfg.Agent.HumanFeedback)
}

func TestLoad_FileEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "coagent.yaml", `
model:
  provider: anthropic
  name: claude-test
  temperature: 0.2
agent:
  max_iterations: 4
  run_interval: 50ms
`)
	t.Setenv("COAGENT_AGENT_QUEUE_SIZE", "8")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")

	cfg, err := Load(noEnvFiles, func(o *LoadOptions) {
		o.ConfigFile = path
		o.Overrides = map[string]any{"agent.human_feedback": true}
	})
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "claude-test", cfg.Model.Name)
	assert.Equal(t, "sk-ant", cfg.Model.APIKey)
	assert.Equal(t, 4, cfg.Agent.MaxIterations)
	assert.Equal(t, 50*time.Millisecond, cfg.Agent.RunInterval)
	assert.Equal(t, 8, cfg.Agent.QueueSize)
	assert.True(t, cfg.Agent.HumanFeedback)
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	env := writeFile(t, dir, "test.env", "COAGENT_MODEL_NAME=from-dotenv\n")
	t.Cleanup(func() { os.Unsetenv("COAGENT_MODEL_NAME") })

	cfg, err := Load(func(o *LoadOptions) {
		o.EnvFiles = []string{env, filepath.Join(dir, "missing.env")}
	})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Model.Name)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]map[string]any{
		"provider":    {"model.provider": "nope"},
		"temperature": {"model.temperature": 3.5},
		"level":       {"log.level": "loud"},
		"format":      {"log.format": "xml"},
	}
	for name, overrides := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(noEnvFiles, func(o *LoadOptions) { o.Overrides = overrides })
			require.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(noEnvFiles, func(o *LoadOptions) {
		o.ConfigFile = filepath.Join(t.TempDir(), "absent.yaml")
	})
	require.Error(t, err)
}

func TestConfig_GetHas(t *testing.T) {
	cfg, err := Load(noEnvFiles, func(o *LoadOptions) {
		o.Overrides = map[string]any{"custom.flag": "on"}
	})
	require.NoError(t, err)

	assert.True(t, cfg.Has("model.provider"))
	assert.True(t, cfg.Has("custom.flag"))
	assert.False(t, cfg.Has("custom.absent"))
	assert.Equal(t, "on", cfg.Get("custom.flag", "off"))
	assert.Equal(t, "fallback", cfg.Get("custom.absent", "fallback"))

	var zero Config
	assert.False(t, zero.Has("model.provider"))
	assert.Equal(t, 1, zero.Get("x", 1))
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()
	require.NoError(t, c.Validate())
	assert.Equal(t, "openai", c.Model.Provider)
	assert.Equal(t, 64, c.Agent.QueueSize)
}

func TestConfig_NewLogger(t *testing.T) {
	cfg, err := Load(noEnvFiles, func(o *LoadOptions) {
		o.Overrides = map[string]any{"log.level": "warn", "log.format": "json"}
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	l := cfg.NewLogger(&buf)
	l.Info("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestConfig_WatchRequiresFile(t *testing.T) {
	cfg, err := Load(noEnvFiles)
	require.NoError(t, err)
	require.Error(t, cfg.Watch(func(_, _ Config) {}))
}

func TestConfig_Watch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "coagent.yaml", "model:\n  name: first\n")

	rec := logging.NewRecorder()
	cfg, err := Load(noEnvFiles, func(o *LoadOptions) {
		o.ConfigFile = path
		o.Logger = rec
	})
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		seen []string
	)
	require.NoError(t, cfg.Watch(func(old, next Config) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, old.Model.Name+"->"+next.Model.Name)
	}))
	require.NoError(t, cfg.Watch(func(_, _ Config) { panic("watcher bug") }))

	writeFile(t, dir, "coagent.yaml", "model:\n  name: second\n")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	}, 3*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"first->second"}, seen)
	mu.Unlock()
	assert.Equal(t, "first", cfg.Model.Name)
	require.Eventually(t, func() bool { return rec.Count("config.watcher.panic") == 1 }, time.Second, 10*time.Millisecond)
}
