package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config carries every tunable the core depends on. Values come from an
// optional YAML file overridden by SIGNALING_* environment variables.
type Config struct {
	Listen         string   `mapstructure:"listen"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`

	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`

	RequeueOnPartnerLoss bool          `mapstructure:"requeue_on_partner_loss"`
	HeartbeatPeriod      time.Duration `mapstructure:"heartbeat_period"`

	SendBuffer  int           `mapstructure:"send_buffer"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`

	Distributed bool   `mapstructure:"distributed"`
	RedisAddr   string `mapstructure:"redis_addr"`
	QueueKey    string `mapstructure:"queue_key"`
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen", ":8080")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("rate_limit_max", 40)
	v.SetDefault("rate_limit_window", time.Second)
	v.SetDefault("requeue_on_partner_loss", true)
	v.SetDefault("heartbeat_period", 30*time.Second)
	v.SetDefault("send_buffer", 64)
	v.SetDefault("send_timeout", 500*time.Millisecond)
	v.SetDefault("distributed", false)
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("queue_key", "signaling:waiting")

	v.SetEnvPrefix("SIGNALING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		v.OnConfigChange(func(e fsnotify.Event) {
			// Values are snapshotted at startup; a change only warrants
			// an operator hint to restart.
			slog.Info("config file changed, restart to apply", "file", e.Name)
		})
		v.WatchConfig()
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
