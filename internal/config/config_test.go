package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// isolate points the state directory at a temp dir so no user config is found.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("BUGSCRIBE_STATE_DIR", dir)
	t.Setenv("OPENAI_API_KEY", "")
	return dir
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "bugscribe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	isolate(t)

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7345", cfg.Address())
	assert.True(t, cfg.Capture.Enabled)
	assert.Equal(t, 5*time.Second, cfg.Capture.Interval)
	assert.Equal(t, 30*time.Second, cfg.Persistence.SnapshotInterval)
	assert.Equal(t, 5*time.Second, cfg.Persistence.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.Persistence.Retention)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.LLM.APIKey)
	assert.Empty(t, v.ConfigFileUsed())
}

func TestFileThenEnvPrecedence(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, `
server:
  port: 9000
llm:
  model: local-model
  timeout: 30s
capture:
  interval: 2s
logging:
  level: debug
`)
	t.Setenv("BUGSCRIBE_SERVER_PORT", "9100")

	v, err := NewViper(path)
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "env beats file")
	assert.Equal(t, "local-model", cfg.LLM.Model)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Capture.Interval)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestStateDirConfigDiscovered(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "llm:\n  model: discovered\n")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "discovered", cfg.LLM.Model)
	assert.Equal(t, path, v.ConfigFileUsed())
}

func TestAPIKeyFromEitherEnv(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.LLM.APIKey)

	t.Setenv("BUGSCRIBE_LLM_API_KEY", "sk-bugscribe")
	v, err = NewViper("")
	require.NoError(t, err)
	cfg, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, "sk-bugscribe", cfg.LLM.APIKey)
}

func TestExplicitMissingFileFails(t *testing.T) {
	dir := isolate(t)
	_, err := NewViper(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	isolate(t)
	v, err := NewViper("")
	require.NoError(t, err)

	v.Set("server.port", 0)
	v.Set("llm.temperature", 3.5)
	v.Set("capture.interval", "0s")
	v.Set("logging.level", "shouty")

	_, err = Load(v)
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "server.port")
	assert.Contains(t, msg, "llm.temperature")
	assert.Contains(t, msg, "capture.interval")
	assert.Contains(t, msg, "logging.level")
}

func TestYAMLRedactsKey(t *testing.T) {
	isolate(t)
	t.Setenv("OPENAI_API_KEY", "sk-secret")

	v, err := NewViper("")
	require.NoError(t, err)
	cfg, err := Load(v)
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sk-secret")
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey, "original untouched")

	var decoded map[string]map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Equal(t, redacted, decoded["llm"]["api_key"])
	assert.Equal(t, "5s", decoded["capture"]["interval"])
}

func TestWatchAppliesLogLevel(t *testing.T) {
	dir := isolate(t)
	path := writeConfig(t, dir, "logging:\n  level: info\n")

	v, err := NewViper(path)
	require.NoError(t, err)

	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	Watch(v, zap.NewNop(), ApplyLogLevel(level))

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o600))
	require.Eventually(t, func() bool {
		return level.Level() == zapcore.DebugLevel
	}, 5*time.Second, 20*time.Millisecond)
}

func TestApplyLogLevelIgnoresBadLevel(t *testing.T) {
	t.Parallel()

	level := zap.NewAtomicLevelAt(zapcore.WarnLevel)
	ApplyLogLevel(level)(&Config{Logging: LoggingConfig{Level: "bogus"}})
	assert.Equal(t, zapcore.WarnLevel, level.Level())

	ApplyLogLevel(level)(&Config{Logging: LoggingConfig{Level: "error"}})
	assert.Equal(t, zapcore.ErrorLevel, level.Level())
}
