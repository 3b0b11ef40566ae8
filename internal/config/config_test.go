package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitConfig_WritesDefault(t *testing.T) {
	viper.Reset()
	file := filepath.Join(t.TempDir(), "nested", "whiteboard.toml")

	require.NoError(t, InitConfig(file))
	written, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, defaultConfigFile, written)

	cfg := Load()
	assert.False(t, cfg.Debug)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, time.Hour, cfg.Rooms.IdleTTL)
	assert.Equal(t, time.Minute, cfg.Rooms.SweepInterval)
	assert.Equal(t, 256, cfg.Rooms.SendBuffer)
	assert.Empty(t, cfg.Relay.RedisAddr)
	assert.Equal(t, "whiteboard:rooms:", cfg.Relay.ChannelPrefix)
	assert.Equal(t, "ws://localhost:8080/ws", cfg.Client.ServerURL)
	assert.Equal(t, 50*time.Millisecond, cfg.Client.CursorInterval)
	assert.Equal(t, time.Second, cfg.Client.ReconnectDelay)
}

func TestInitConfig_FileAndEnvOverrides(t *testing.T) {
	viper.Reset()
	file := filepath.Join(t.TempDir(), "whiteboard.toml")
	require.NoError(t, os.WriteFile(file, []byte("port = 9000\n[rooms]\nidle_ttl = \"0s\"\n"), 0o600))
	t.Setenv("WHITEBOARD_RELAY_REDIS_ADDR", "localhost:6379")

	require.NoError(t, InitConfig(file))
	cfg := Load()
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, time.Duration(0), cfg.Rooms.IdleTTL)
	assert.Equal(t, time.Minute, cfg.Rooms.SweepInterval, "unset keys keep their defaults")
	assert.Equal(t, "localhost:6379", cfg.Relay.RedisAddr)
}

func TestInitConfig_Errors(t *testing.T) {
	viper.Reset()
	assert.Error(t, InitConfig(""))

	file := filepath.Join(t.TempDir(), "whiteboard.toml")
	require.NoError(t, os.WriteFile(file, []byte("port = ["), 0o600))
	assert.Error(t, InitConfig(file))
}

func TestGetConfigDir_RespectsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	assert.Equal(t, filepath.Join(dir, "whiteboard"), GetConfigDir())
	assert.Equal(t, filepath.Join(dir, "whiteboard", "whiteboard.toml"), DefaultFile())
}
