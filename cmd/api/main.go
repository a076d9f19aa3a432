// Package main はAPIサーバーのエントリーポイントです。
package main

import (
	"errors"
	"os"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"

	"github.com/yourusername/practice-tracker/internal/auth"
	"github.com/yourusername/practice-tracker/internal/config"
	"github.com/yourusername/practice-tracker/internal/logger"
	"github.com/yourusername/practice-tracker/internal/server"
	"github.com/yourusername/practice-tracker/internal/users"
)

func main() {
	// 設定の読み込み（SECRET_KEY が無ければここで終了）
	cfg, err := config.Load()
	if err != nil {
		l := logger.New(os.Stderr, "info", false)
		var cfgErr *config.ConfigError
		if errors.As(err, &cfgErr) {
			l.Fatal("missing required configuration", "key", cfgErr.Key)
		}
		l.Fatal("failed to load config", "error", err)
	}

	log := logger.New(os.Stderr, cfg.LogLevel, cfg.IsRelease())
	if !cfg.GoogleConfigured() {
		log.Warn("GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET are not set; /login will fail")
	}

	gin.SetMode(cfg.GinMode)

	userStore, err := setupUserStore(cfg)
	if err != nil {
		log.Fatal("failed to set up user store", "error", err)
	}

	provider := auth.NewGoogleProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL)
	authManager := auth.NewManager(cfg, provider, userStore, log)
	router, err := server.NewRouter(cfg, authManager)
	if err != nil {
		log.Fatal("failed to set up router", "error", err)
	}

	addr := ":" + cfg.Port
	log.Info("starting API server", "addr", addr, "mode", cfg.GinMode, "frontend", cfg.FrontendOrigin)
	if err := router.Run(addr); err != nil {
		log.Fatal("failed to start server", "error", err)
	}
}

// setupUserStore は REDIS_URL があれば Redis、無ければメモリのストアを返します。
func setupUserStore(cfg *config.Config) (users.Store, error) {
	if cfg.RedisURL == "" {
		return users.NewMemoryStore(), nil
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return users.NewRedisStore(redis.NewClient(opt), 0), nil
}
