// Package config は環境変数からのアプリケーション設定読み込みを提供する。
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Feeds
	FeedsFile string

	// Scan
	ScanInterval   time.Duration
	ScanMaxConcurrent int

	// Fetch
	FetchTimeout     time.Duration
	FetchMaxSize     int64
	FetchMaxAttempts int
	FetchHostDelay   time.Duration

	// Lookback
	LookbackHours int
	LookbackGrace time.Duration

	// Order detection
	OrderSampleSize int

	// Retention
	SeenRetentionDays int

	// Server
	ServerPort string

	// Logging
	LogLevel slog.Level
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、またはルックバック時間が範囲外の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.FeedsFile = os.Getenv("FEEDS_FILE")
	if cfg.FeedsFile == "" {
		missing = append(missing, "FEEDS_FILE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ScanInterval = getEnvDuration("SCAN_INTERVAL", 10*time.Minute)
	cfg.ScanMaxConcurrent = getEnvInt("SCAN_MAX_CONCURRENT", 1)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 20*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 10485760)
	cfg.FetchMaxAttempts = getEnvInt("FETCH_MAX_ATTEMPTS", 3)
	cfg.FetchHostDelay = getEnvDuration("FETCH_HOST_DELAY", 2*time.Second)
	cfg.LookbackHours = getEnvInt("LOOKBACK_HOURS", 48)
	cfg.LookbackGrace = getEnvDuration("LOOKBACK_GRACE", 15*time.Minute)
	cfg.OrderSampleSize = getEnvInt("ORDER_SAMPLE", 10)
	cfg.SeenRetentionDays = getEnvInt("SEEN_RETENTION_DAYS", 90)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.LogLevel = parseLogLevel(getEnvString("LOG_LEVEL", "info"))

	// ルックバックのグローバルデフォルトは起動時に検証する。
	// フィードごとのオーバーライドは実行時にクランプされるが、
	// デフォルト値の範囲外は設定ミスとして致命的に扱う。
	if cfg.LookbackHours < 1 || cfg.LookbackHours > 168 {
		return nil, fmt.Errorf("LOOKBACK_HOURS=%d は許容範囲[1, 168]を外れています", cfg.LookbackHours)
	}

	return cfg, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
