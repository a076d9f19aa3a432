// Package server は HTTP ルーターとミドルウェアの配線を行います。
package server

import (
	"fmt"
	"net/http"
	"regexp"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/practice-tracker/internal/auth"
	"github.com/yourusername/practice-tracker/internal/config"
)

// NewRouter はミドルウェアとルートを登録した gin.Engine を返します。
func NewRouter(cfg *config.Config, authManager *auth.Manager) (*gin.Engine, error) {
	router := gin.New()
	// ClientIP はコールバックの失敗回数の集計キーになる。nil なら転送ヘッダーを一切信用しない
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("set trusted proxies: %w", err)
	}
	router.Use(gin.Logger(), gin.Recovery())

	// OAuth の state 保持用セッション。Google からのトップレベル遷移で送られるよう Lax にする
	store := cookie.NewStore([]byte(cfg.SecretKey))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.StateTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.IsRelease(),
		SameSite: http.SameSiteLaxMode,
	})
	router.Use(sessions.Sessions(auth.SessionCookieName, store))

	router.Use(cors.New(corsConfig(cfg)))
	router.Use(authManager.ResolveIdentity())

	setupRoutes(router, authManager)
	return router, nil
}

func corsConfig(cfg *config.Config) cors.Config {
	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = []string{cfg.FrontendOrigin}
	if cfg.PreviewOriginPattern != "" {
		// Validate 済みなので MustCompile で問題ない
		preview := regexp.MustCompile(cfg.PreviewOriginPattern)
		corsCfg.AllowOriginFunc = func(origin string) bool {
			return origin == cfg.FrontendOrigin || preview.MatchString(origin)
		}
	}
	corsCfg.AllowCredentials = true
	corsCfg.AllowHeaders = []string{
		"Origin",
		"Content-Type",
		"Accept",
		"Authorization",
	}
	return corsCfg
}

// handleHealth はヘルスチェックエンドポイントのハンドラーです。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func setupRoutes(router *gin.Engine, authManager *auth.Manager) {
	router.GET("/login", authManager.Login)
	router.GET("/auth/callback", authManager.Callback)
	router.GET("/logout", authManager.Logout)

	api := router.Group("/api")
	{
		api.GET("/health", handleHealth)
		api.GET("/me", authManager.Me)

		// pieces / sessions / stats はこのグループにぶら下げる
		protected := api.Group("")
		protected.Use(authManager.RequireLogin())
		{
			protected.GET("/me/profile", authManager.Profile)
		}
	}
}
