package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode string `mapstructure:"mode"`
	Port int    `mapstructure:"port"`

	GatewayURL  string `mapstructure:"gateway_url"`
	ResolverURL string `mapstructure:"resolver_url"`

	JoinTimeout     time.Duration `mapstructure:"join_timeout"`
	FrameInterval   time.Duration `mapstructure:"frame_interval"`
	HeartbeatPeriod time.Duration `mapstructure:"heartbeat_period"`
	ResolveTimeout  time.Duration `mapstructure:"resolve_timeout"`

	// IdleLeaveAfter disconnects a session whose queue stays empty for this
	// long. Zero keeps idle sessions alive until an explicit leave.
	IdleLeaveAfter time.Duration `mapstructure:"idle_leave_after"`

	QueuePreview int           `mapstructure:"queue_preview"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateInterval time.Duration `mapstructure:"rate_interval"`
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
	v.SetDefault("port", 8080)
	v.SetDefault("gateway_url", "ws://localhost:9000/voice")
	v.SetDefault("resolver_url", "http://localhost:9100")
	v.SetDefault("join_timeout", "20s")
	v.SetDefault("frame_interval", "20ms")
	v.SetDefault("heartbeat_period", "15s")
	v.SetDefault("resolve_timeout", "10s")
	v.SetDefault("idle_leave_after", "0s")
	v.SetDefault("queue_preview", 10)
	v.SetDefault("rate_limit", 10)
	v.SetDefault("rate_interval", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d | Gateway: %s\n", cfg.Mode, cfg.Port, cfg.GatewayURL)
	return &cfg, nil
}
