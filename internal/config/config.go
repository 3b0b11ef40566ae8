// Package config obtains the app configuration from a file or the environment.
package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	_ "embed" // used to embed the default application config file.

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

//go:embed whiteboard.toml
var defaultConfigFile []byte

const appName = "whiteboard"

// Config is the typed view of the loaded settings.
type Config struct {
	Debug bool
	Host  string
	Port  int

	Rooms  Rooms
	Relay  Relay
	Client Client
}

type Rooms struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	SendBuffer    int
}

type Relay struct {
	RedisAddr     string
	ChannelPrefix string
}

type Client struct {
	ServerURL      string
	CursorInterval time.Duration
	ReconnectDelay time.Duration
}

// Addr is the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// InitConfig reads file into viper, writing the embedded default config there first
// if it does not exist. Environment variables prefixed WHITEBOARD_ override it.
func InitConfig(file string) error {
	if file == "" {
		return fmt.Errorf("config: no config file path")
	}
	viper.SetConfigType("toml")

	// allow env vars to override config file
	viper.SetEnvPrefix(appName)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
	viper.SetConfigFile(file)

	// defaults first, so every key is known to AutomaticEnv
	if err := viper.ReadConfig(bytes.NewBuffer(defaultConfigFile)); err != nil {
		return fmt.Errorf("read embedded default config: %w", err)
	}

	if _, err := os.Stat(file); err != nil {
		slog.Info("config file not found, writing default", "file", file)
		if err := os.MkdirAll(filepath.Dir(file), 0o750); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err := os.WriteFile(file, defaultConfigFile, 0o600); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
		return nil
	}

	if err := viper.MergeInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", file, err)
	}
	return nil
}

// Load returns the current settings.
func Load() Config {
	return Config{
		Debug: viper.GetBool("debug"),
		Host:  viper.GetString("host"),
		Port:  viper.GetInt("port"),
		Rooms: Rooms{
			IdleTTL:       viper.GetDuration("rooms.idle_ttl"),
			SweepInterval: viper.GetDuration("rooms.sweep_interval"),
			SendBuffer:    viper.GetInt("rooms.send_buffer"),
		},
		Relay: Relay{
			RedisAddr:     viper.GetString("relay.redis_addr"),
			ChannelPrefix: viper.GetString("relay.channel_prefix"),
		},
		Client: Client{
			ServerURL:      viper.GetString("client.server_url"),
			CursorInterval: viper.GetDuration("client.cursor_interval"),
			ReconnectDelay: viper.GetDuration("client.reconnect_delay"),
		},
	}
}

// GetConfigDir obtains the configuration directory in a cross-platform manner,
// always respecting the XDG_CONFIG_HOME env var, but overriding to ~/.config on macOS.
func GetConfigDir() string {
	var xdgConfigHome string
	if envVar := os.Getenv("XDG_CONFIG_HOME"); envVar != "" {
		xdgConfigHome = envVar
	} else if runtime.GOOS == "darwin" {
		home, _ := os.UserHomeDir()
		xdgConfigHome = filepath.Join(home, ".config") // override for mac
	} else {
		xdgConfigHome = xdg.ConfigHome
	}
	return filepath.Join(xdgConfigHome, appName)
}

// DefaultFile is the config file used when --config is not given.
func DefaultFile() string {
	return filepath.Join(GetConfigDir(), appName+".toml")
}
