package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode         string        `mapstructure:"mode"`
	Port         int           `mapstructure:"port"`
	Secret       string        `mapstructure:"secret"`
	ReadLimit    int64         `mapstructure:"read_limit"`
	PingPeriod   time.Duration `mapstructure:"ping_period"`
	TypingTTL    time.Duration `mapstructure:"typing_ttl"`
	HistoryCap   int           `mapstructure:"history_cap"`
	ActivityCap  int           `mapstructure:"activity_cap"`
	HistorySlice int           `mapstructure:"history_slice"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
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
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("typing_ttl", "3s")
	v.SetDefault("history_cap", 1000)
	v.SetDefault("activity_cap", 100)
	v.SetDefault("history_slice", 50)
	v.SetDefault("rate_limit", 60)
	v.SetDefault("rate_window", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
