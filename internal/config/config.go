package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 永続化ドライバ名。
const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string
	StoreDriver string

	// Session
	SessionStore  string
	RedisURL      string
	SessionMaxAge int

	// Board
	AppName          string
	Timezone         string
	BoardLatestLimit int
	BoardWindowDays  int
	TagWindowDays    int
	TagLimit         int

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int
	RateLimitPosting int

	// Worker
	CleanupSchedule string
	CleanupTimeout  time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに .env があれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定、または値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{}

	cfg.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", DriverPostgres))
	cfg.SessionStore = strings.ToLower(getEnvString("SESSION_STORE", DriverPostgres))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisURL = os.Getenv("REDIS_URL")

	if err := validateDriver("STORE_DRIVER", cfg.StoreDriver, DriverPostgres, DriverMemory); err != nil {
		return nil, err
	}
	if err := validateDriver("SESSION_STORE", cfg.SessionStore, DriverPostgres, DriverRedis, DriverMemory); err != nil {
		return nil, err
	}

	// Required fields
	var missing []string

	if cfg.DatabaseURL == "" && (cfg.StoreDriver == DriverPostgres || cfg.SessionStore == DriverPostgres) {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.RedisURL == "" && cfg.SessionStore == DriverRedis {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 60*60*24*30)
	cfg.AppName = getEnvString("APP_NAME", "bbs-v2")
	cfg.Timezone = getEnvString("TIMEZONE", "Asia/Tokyo")
	cfg.BoardLatestLimit = getEnvInt("BOARD_LATEST_LIMIT", 100)
	cfg.BoardWindowDays = getEnvInt("BOARD_WINDOW_DAYS", 31)
	cfg.TagWindowDays = getEnvInt("TAG_WINDOW_DAYS", 7)
	cfg.TagLimit = getEnvInt("TAG_LIMIT", 15)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPosting = getEnvInt("RATE_LIMIT_POSTING", 10)
	cfg.CleanupSchedule = getEnvString("CLEANUP_SCHEDULE", "0 4 * * *")
	cfg.CleanupTimeout = getEnvDuration("CLEANUP_TIMEOUT", 30*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.BaseURL = getEnvString("BASE_URL", "http://localhost:"+cfg.ServerPort)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")

	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// Location は設定されたタイムゾーンを返す。Load済みのConfigでは失敗しない。
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SessionTTL はセッションの有効期間を返す。
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionMaxAge) * time.Second
}

func validateDriver(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s %q: must be one of %v", key, value, allowed)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
