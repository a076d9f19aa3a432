// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config はアプリケーションの設定を保持する構造体です。
// Load 後は読み取り専用として扱い、各コンストラクタへ明示的に渡します。
type Config struct {
	// セキュリティ設定
	SecretKey     string        `env:"SECRET_KEY"`                      // 資格情報とセッションCookieの署名鍵（必須）
	CredentialTTL time.Duration `env:"CREDENTIAL_TTL" envDefault:"12h"`  // 発行するトークンの有効期間
	StateTTL      time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"` // OAuth の state を保持する期間

	// Google OAuth 設定
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	OAuthRedirectURL   string `env:"OAUTH_REDIRECT_URL" envDefault:"http://localhost:8000/auth/callback"`

	// フロントエンド / CORS 設定
	FrontendOrigin       string `env:"FRONTEND_ORIGIN" envDefault:"http://localhost:5173"`
	PreviewOriginPattern string `env:"PREVIEW_ORIGIN_PATTERN" envDefault:"^https://.*\\.vercel\\.app$"`

	// サーバー設定
	Port     string `env:"PORT" envDefault:"8000"`
	GinMode  string `env:"GIN_MODE" envDefault:"debug"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// X-Forwarded-For を信頼するプロキシの IP / CIDR。未設定なら接続元アドレスだけを使う
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// 永続化設定（空の場合はインメモリ）
	RedisURL string `env:"REDIS_URL"`
}

// ConfigError は必須設定が欠けている場合のエラーです。
type ConfigError struct {
	Key string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s is not set", e.Key)
}

// Load は環境変数から設定を読み込みます。
// .env.local ファイルが存在する場合はそこから読み込みます。
func Load() (*Config, error) {
	loadEnvFile()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.FrontendOrigin = strings.TrimRight(strings.TrimSpace(cfg.FrontendOrigin), "/")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnvFile() {
	if err := godotenv.Load(".env.local"); err == nil {
		return
	}

	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	parent := filepath.Dir(cwd)
	if parent == "" || parent == cwd {
		return
	}

	_ = godotenv.Load(filepath.Join(parent, ".env.local"))
}

// Validate は設定の妥当性を検証します。
// SECRET_KEY が無い状態では起動させません。Google の認証情報は
// ログイン時に改めて確認するため、ここでは必須にしていません。
func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return &ConfigError{Key: "SECRET_KEY"}
	}
	if c.FrontendOrigin == "" {
		return &ConfigError{Key: "FRONTEND_ORIGIN"}
	}
	if c.CredentialTTL <= 0 {
		return errors.New("CREDENTIAL_TTL must be positive")
	}
	if c.StateTTL <= 0 {
		return errors.New("OAUTH_STATE_TTL must be positive")
	}
	if c.PreviewOriginPattern != "" {
		if _, err := regexp.Compile(c.PreviewOriginPattern); err != nil {
			return fmt.Errorf("PREVIEW_ORIGIN_PATTERN is invalid: %w", err)
		}
	}
	for _, proxy := range c.TrustedProxies {
		if !validProxy(proxy) {
			return fmt.Errorf("TRUSTED_PROXIES contains an invalid address: %q", proxy)
		}
	}
	return nil
}

func validProxy(proxy string) bool {
	if strings.Contains(proxy, "/") {
		_, _, err := net.ParseCIDR(proxy)
		return err == nil
	}
	return net.ParseIP(proxy) != nil
}

// GoogleConfigured は OAuth クライアント情報が揃っているかを返します。
func (c *Config) GoogleConfigured() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// IsRelease は本番モードかどうかを返します。
func (c *Config) IsRelease() bool {
	return c.GinMode == "release"
}
