package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// keys lists every setting so each can be overridden from the environment
// as SHARER_<KEY>, with dots replaced by underscores.
var keys = []string{
	"mode", "port", "log_level", "static_path",
	"signal_url", "session_id", "link_primary", "demo_session",
	"default_conference", "auto_start", "storage_path", "ice_servers",
	"ping_period", "dial_timeout", "dispose_timeout",
	"room.width", "room.height",
	"command_rate.limit", "command_rate.interval",
}

type Config struct {
	Mode       string `mapstructure:"mode"`
	Port       int    `mapstructure:"port"`
	LogLevel   string `mapstructure:"log_level"`
	StaticPath string `mapstructure:"static_path"`

	SignalURL         string        `mapstructure:"signal_url"`
	SessionID         string        `mapstructure:"session_id"`
	LinkPrimary       string        `mapstructure:"link_primary"`
	DemoSession       string        `mapstructure:"demo_session"`
	DefaultConference string        `mapstructure:"default_conference"`
	AutoStart         bool          `mapstructure:"auto_start"`
	StoragePath       string        `mapstructure:"storage_path"`
	ICEServers        []string      `mapstructure:"ice_servers"`
	PingPeriod        time.Duration `mapstructure:"ping_period"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
	DisposeTimeout    time.Duration `mapstructure:"dispose_timeout"`

	Room        RoomConfig        `mapstructure:"room"`
	CommandRate CommandRateConfig `mapstructure:"command_rate"`
}

// RoomConfig is the size of the virtual room; its center anchors the
// initial participant ring.
type RoomConfig struct {
	Width  float64 `mapstructure:"width"`
	Height float64 `mapstructure:"height"`
}

type CommandRateConfig struct {
	Limit    int           `mapstructure:"limit"`
	Interval time.Duration `mapstructure:"interval"`
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default) over the
// built-in defaults. A missing file is not an error.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("signal_url", "ws://localhost:8081/ws")
	v.SetDefault("default_conference", "lobby")
	v.SetDefault("auto_start", false)
	v.SetDefault("storage_path", "./data/settings.db")
	v.SetDefault("ping_period", "25s")
	v.SetDefault("dial_timeout", "10s")
	v.SetDefault("dispose_timeout", "5s")
	v.SetDefault("room.width", 2000)
	v.SetDefault("room.height", 2000)
	v.SetDefault("command_rate.limit", 10)
	v.SetDefault("command_rate.interval", "1s")

	v.SetEnvPrefix("SHARER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("signal", cfg.SignalURL).Msg("config ready")
	return &cfg, nil
}
