// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Rate Limit（req/min）
	RateLimitGeneral int
	RateLimitLogin   int

	// Logging
	LogLevel         string
	LogFile          string
	LogRetentionDays int

	// Server
	ServerPort string
	BaseURL    string
	Debug      bool

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// Site
	SiteName        string
	SiteNameLong    string
	SiteDescription string

	// Profile
	ThumbnailSize    int
	AvatarMaxSize    int64
	DefaultLatitude  float64
	DefaultLongitude float64

	// Geocoder（URLが空の場合は住所からの地点登録を無効化する）
	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration

	// Invite / Worker
	InviteTTL       time.Duration
	CleanupInterval time.Duration
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = strings.TrimRight(os.Getenv("BASE_URL"), "/")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 1209600)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.LogFile = getEnvString("LOG_FILE", "")
	cfg.LogRetentionDays = getEnvInt("LOG_RETENTION_DAYS", 14)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.Debug = getEnvBool("DEBUG", false)
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.BaseURL)
	cfg.SiteName = getEnvString("SITE_NAME", "Emerald Directory")
	cfg.SiteNameLong = getEnvString("SITE_NAME_LONG", "Emerald Community Directory")
	cfg.SiteDescription = getEnvString("SITE_DESCRIPTION", "A directory and community oriented application.")
	cfg.ThumbnailSize = getEnvInt("THUMBNAIL_SIZE", 256)
	cfg.AvatarMaxSize = getEnvInt64("AVATAR_MAX_SIZE", 5242880)
	cfg.DefaultLatitude = getEnvFloat("DEFAULT_LATITUDE", 38.949572260845641)
	cfg.DefaultLongitude = getEnvFloat("DEFAULT_LONGITUDE", -95.26347185174219)
	cfg.GeocoderURL = getEnvString("GEOCODER_URL", "")
	cfg.GeocoderUserAgent = getEnvString("GEOCODER_USER_AGENT", "Emerald-Directory/1.0 ("+cfg.BaseURL+")")
	cfg.GeocoderTimeout = getEnvDuration("GEOCODER_TIMEOUT", 10*time.Second)
	cfg.InviteTTL = getEnvDuration("INVITE_TTL", 14*24*time.Hour)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnv はkeyの値をparseで変換する。未設定または変換できない値はdefaultValになる。
func getEnv[T any](key string, defaultVal T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parsed, err := parse(v)
	if err != nil {
		return defaultVal
	}
	return parsed
}

func getEnvInt(key string, defaultVal int) int {
	return getEnv(key, defaultVal, strconv.Atoi)
}

func getEnvInt64(key string, defaultVal int64) int64 {
	return getEnv(key, defaultVal, func(v string) (int64, error) {
		return strconv.ParseInt(v, 10, 64)
	})
}

func getEnvFloat(key string, defaultVal float64) float64 {
	return getEnv(key, defaultVal, func(v string) (float64, error) {
		return strconv.ParseFloat(v, 64)
	})
}

func getEnvBool(key string, defaultVal bool) bool {
	return getEnv(key, defaultVal, strconv.ParseBool)
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	return getEnv(key, defaultVal, time.ParseDuration)
}
