package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Cron   CronConfig   `mapstructure:"cron"`

	Escrow        EscrowConfig        `mapstructure:"escrow"`
	Investigation InvestigationConfig `mapstructure:"investigation"`
	Leaderboard   LeaderboardConfig   `mapstructure:"leaderboard"`
	Notify        NotifyConfig        `mapstructure:"notify"`
	Stream        StreamConfig        `mapstructure:"stream"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type AuthConfig struct {
	Disabled bool `mapstructure:"disabled"`
}

type CronConfig struct {
	// Sweep closes open investigations whose deadline elapsed even when no
	// further requests arrive.
	Sweep string `mapstructure:"sweep"`
}

type EscrowConfig struct {
	// Mode selects the ledger implementation: "memory" (in-process) or
	// "gateway" (external settlement service).
	Mode          string              `mapstructure:"mode"`
	Gateway       EscrowGatewayConfig `mapstructure:"gateway"`
	RetryAttempts int                 `mapstructure:"retry_attempts"`
	RetryBackoff  time.Duration       `mapstructure:"retry_backoff"`
}

type EscrowGatewayConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type InvestigationConfig struct {
	ReviewWindow time.Duration `mapstructure:"review_window"`
	Quorum       int           `mapstructure:"quorum"`
	SweepBatch   int           `mapstructure:"sweep_batch"`
	SweepWorkers int           `mapstructure:"sweep_workers"`
}

type LeaderboardConfig struct {
	// Scoring is "correct" (raw correct-vote count) or "accuracy"
	// (correct/total).
	Scoring      string `mapstructure:"scoring"`
	DefaultLimit int    `mapstructure:"default_limit"`
}

type NotifyConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StreamConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("auth.disabled", false)
	v.SetDefault("cron.sweep", "@every 1m")

	v.SetDefault("escrow.mode", "memory")
	v.SetDefault("escrow.gateway.base_url", "")
	v.SetDefault("escrow.gateway.timeout", "15s")
	v.SetDefault("escrow.retry_attempts", 3)
	v.SetDefault("escrow.retry_backoff", "200ms")

	v.SetDefault("investigation.review_window", "24h")
	v.SetDefault("investigation.quorum", 5)
	v.SetDefault("investigation.sweep_batch", 100)
	v.SetDefault("investigation.sweep_workers", 4)

	v.SetDefault("leaderboard.scoring", "correct")
	v.SetDefault("leaderboard.default_limit", 20)

	v.SetDefault("notify.enabled", false)
	v.SetDefault("notify.base_url", "")
	v.SetDefault("notify.timeout", "5s")

	v.SetDefault("stream.enabled", true)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
