package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Reservation ReservationConfig
}

type AppConfig struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	TimeZone string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// Hold ledger backends
const (
	HoldLedgerRedis  = "redis"
	HoldLedgerMemory = "memory"
)

// ReservationConfig tunes the slot hold / booking flow.
type ReservationConfig struct {
	HoldTTL        time.Duration
	HoldGrace      time.Duration
	TombstoneTTL   time.Duration
	LockTimeout    time.Duration
	SweepInterval  time.Duration
	SweepBatchSize int
	SweepWorkers   int
	HoldLedger     string
}

func LoadConfig() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// Running from plain environment variables is fine (containers).
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_TIMEZONE", "UTC")
	viper.SetDefault("SWEEP_BATCH_SIZE", 200)
	viper.SetDefault("SWEEP_WORKERS", 4)
	viper.SetDefault("HOLD_LEDGER", HoldLedgerRedis)

	config := &Config{
		App: AppConfig{
			Port:               viper.GetString("APP_PORT"),
			Env:                viper.GetString("APP_ENV"),
			LogLevel:           viper.GetString("LOG_LEVEL"),
			CORSAllowedOrigins: splitList(viper.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			Host:     viper.GetString("DB_HOST"),
			Port:     viper.GetString("DB_PORT"),
			User:     viper.GetString("DB_USER"),
			Password: viper.GetString("DB_PASSWORD"),
			Name:     viper.GetString("DB_NAME"),
			TimeZone: viper.GetString("DB_TIMEZONE"),
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		JWT: JWTConfig{
			Secret:        viper.GetString("JWT_SECRET"),
			AccessExpiry:  durationOr("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: durationOr("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		Reservation: ReservationConfig{
			HoldTTL:        durationOr("HOLD_TTL", 10*time.Minute),
			HoldGrace:      durationOr("HOLD_GRACE", 5*time.Minute),
			TombstoneTTL:   durationOr("TOMBSTONE_TTL", time.Hour),
			LockTimeout:    durationOr("LOCK_TIMEOUT", 2*time.Second),
			SweepInterval:  durationOr("SWEEP_INTERVAL", time.Minute),
			SweepBatchSize: viper.GetInt("SWEEP_BATCH_SIZE"),
			SweepWorkers:   viper.GetInt("SWEEP_WORKERS"),
			HoldLedger:     viper.GetString("HOLD_LEDGER"),
		},
	}

	return config, nil
}

// durationOr parses key as a duration, falling back to def when unset,
// malformed or not positive.
func durationOr(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// splitList reads a comma separated value, empty entries dropped
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
