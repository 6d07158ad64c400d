package wsipc

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wsipc.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func clearConfigEnv(t *testing.T) {
	t.Setenv(EnvAddr, "")
	t.Setenv(EnvPath, "")
	t.Setenv(EnvLogLevel, "")
}

func TestLoadConfig(t *testing.T) {
	clearConfigEnv(t)
	path := writeConfig(t, `
name = "host"
addr = "127.0.0.1:6000"
path = "/rpc/"
invoke_timeout = "3s"
read_timeout = "1m"
write_timeout = "2s"
inbox_size = 16
max_pending = 4
max_message_size = 1024
log_level = "debug"
metrics = true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "host", cfg.Name)
	assert.Equal(t, "127.0.0.1:6000", cfg.Addr)
	assert.Equal(t, "/rpc/", cfg.Path)
	assert.Equal(t, 3*time.Second, cfg.InvokeTimeout)
	assert.Equal(t, time.Minute, cfg.Limits.ReadTimeout)
	assert.Equal(t, 2*time.Second, cfg.Limits.WriteTimeout)
	assert.Equal(t, 16, cfg.Limits.InboxSize)
	assert.Equal(t, uint32(4), cfg.Limits.MaxPending)
	assert.Equal(t, int64(1024), cfg.Limits.MaxMessageSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Metrics)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := LoadConfig(writeConfig(t, `name = "only-name"`))
	require.NoError(t, err)

	def := DefaultConfig()
	def.Name = "only-name"
	assert.Equal(t, def, cfg)
}

func TestLoadConfigErrors(t *testing.T) {
	clearConfigEnv(t)
	tests := []struct {
		name    string
		content string
		errText string
	}{
		{"unknown key", `colour = "blue"`, "unknown key"},
		{"bad duration", `invoke_timeout = "soon"`, "invoke_timeout"},
		{"bad read timeout", `read_timeout = "x"`, "read_timeout"},
		{"bad write timeout", `write_timeout = "x"`, "write_timeout"},
		{"negative write timeout", `write_timeout = "-1s"`, "write_timeout"},
		{"relative path", `path = "ipc/"`, "must start with /"},
		{"empty addr", `addr = ""`, "addr is required"},
		{"bad level", `log_level = "loud"`, "log_level"},
		{"negative timeout", `invoke_timeout = "-1s"`, "must not be negative"},
		{"syntax", `name = `, "load config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestConfigEnvOverrides(t *testing.T) {
	t.Setenv(EnvAddr, " :7000 ")
	t.Setenv(EnvPath, "/x/")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := LoadConfig(writeConfig(t, `addr = "localhost:1"`))
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr)
	assert.Equal(t, "/x/", cfg.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}
