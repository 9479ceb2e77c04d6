package config

import (
	"fmt"
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

	// Redis（空の場合はフォロー先キャッシュなしで動作する）
	RedisURL       string
	FollowCacheTTL time.Duration

	// Session
	SessionMaxAge int

	// Store
	StoreTimeout time.Duration

	// Feed
	FeedPageSize int

	// Upload
	UploadDir string

	// Repair worker
	RepairInterval      time.Duration
	RepairMaxConcurrent int
	RepairBatchSize     int

	// Rate Limit
	RateLimitGeneral int
	RateLimitPost    int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.FollowCacheTTL = getEnvDuration("FOLLOW_CACHE_TTL", 5*time.Minute)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", 15*time.Second)
	cfg.FeedPageSize = getEnvInt("FEED_PAGE_SIZE", 10)
	cfg.UploadDir = getEnvString("UPLOAD_DIR", "./uploads")
	cfg.RepairInterval = getEnvDuration("REPAIR_INTERVAL", time.Minute)
	cfg.RepairMaxConcurrent = getEnvInt("REPAIR_MAX_CONCURRENT", 5)
	cfg.RepairBatchSize = getEnvInt("REPAIR_BATCH_SIZE", 50)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPost = getEnvInt("RATE_LIMIT_POST", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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
