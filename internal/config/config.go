package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`

	ServerURL     string `mapstructure:"server_url"`
	WebsocketURL  string `mapstructure:"websocket_url"`
	SessionID     string `mapstructure:"session_id"`
	ParticipantID string `mapstructure:"participant_id"`
	Role          string `mapstructure:"role"`

	DebounceInterval time.Duration `mapstructure:"debounce_interval"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	ResyncInterval   time.Duration `mapstructure:"resync_interval"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`

	DedupCapacity    int `mapstructure:"dedup_capacity"`
	MaxPushAttempts  int `mapstructure:"max_push_attempts"`
	CommandRateLimit int `mapstructure:"command_rate_limit"`

	// devserver only
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("server_url", "http://localhost:8080")
	v.SetDefault("websocket_url", "ws://localhost:8080/api/ws/meeting")
	v.SetDefault("session_id", "dev")
	v.SetDefault("participant_id", "local")
	v.SetDefault("role", "student")
	v.SetDefault("debounce_interval", "100ms")
	v.SetDefault("sweep_interval", "3s")
	v.SetDefault("resync_interval", "30s")
	v.SetDefault("poll_interval", "5s")
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("dedup_capacity", 100)
	v.SetDefault("max_push_attempts", 5)
	v.SetDefault("command_rate_limit", 30)
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "meetsync-dev-secret")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
