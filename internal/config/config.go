package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// STORE_DRIVERで選べるストレージ実装。
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Storage
	StoreDriver       string
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Auth
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int

	// Rate Limit (1ユーザーあたりの毎分リクエスト数)
	RateLimitGeneral int
	RateLimitApply   int

	LogLevel string

	// Server
	ServerPort      string
	ShutdownTimeout time.Duration
	// CORSAllowedOrigin はカンマ区切りで複数指定できる
	CORSAllowedOrigin string
	// 0の場合はStrict-Transport-Securityを付けない
	HSTSMaxAge time.Duration
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数の欠落と、値の範囲が決まっている項目の不正値はエラーとする。
// 数値・期間の書式不正や0以下の値はデフォルトに戻す。
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	if err := cfg.loadStorage(); err != nil {
		errs = append(errs, err)
	}
	if err := cfg.loadAuth(); err != nil {
		errs = append(errs, err)
	}
	cfg.loadServer()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadStorage() error {
	c.StoreDriver = strings.ToLower(getEnvString("STORE_DRIVER", StoreDriverPostgres))
	switch c.StoreDriver {
	case StoreDriverPostgres:
		c.DatabaseURL = os.Getenv("DATABASE_URL")
		if c.DatabaseURL == "" {
			return fmt.Errorf("required environment variable is not set: DATABASE_URL")
		}
	case StoreDriverMemory:
		// インメモリではDATABASE_URLを参照しない
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverMemory, c.StoreDriver)
	}

	c.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 10)
	c.DBMaxIdleConns = min(getEnvInt("DB_MAX_IDLE_CONNS", 5), c.DBMaxOpenConns)
	c.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	return nil
}

func (c *Config) loadAuth() error {
	var errs []error

	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		errs = append(errs, fmt.Errorf("required environment variable is not set: JWT_SECRET"))
	}
	c.TokenTTL = getEnvDuration("TOKEN_TTL", time.Hour)

	c.BcryptCost = getEnvInt("BCRYPT_COST", bcrypt.DefaultCost)
	if c.BcryptCost < bcrypt.MinCost || c.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_COST must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, c.BcryptCost))
	}

	c.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	c.RateLimitApply = getEnvInt("RATE_LIMIT_APPLY", 10)
	return errors.Join(errs...)
}

func (c *Config) loadServer() {
	c.LogLevel = getEnvString("LOG_LEVEL", "info")
	c.ServerPort = getEnvString("SERVER_PORT", "8080")
	c.ShutdownTimeout = getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	c.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")
	c.HSTSMaxAge = getEnvDuration("HSTS_MAX_AGE", 0)
}

func getEnvString(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

// getEnvInt は正の整数のみ受け付ける。
func getEnvInt(key string, defaultVal int) int {
	i, err := strconv.Atoi(getEnvString(key, ""))
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

// getEnvDuration は"90s"や"1h"のような正の期間のみ受け付ける。
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnvString(key, ""))
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
