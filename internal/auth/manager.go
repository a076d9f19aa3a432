// Package auth は認証・認可機能を提供します。
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"

	"github.com/yourusername/practice-tracker/internal/config"
	"github.com/yourusername/practice-tracker/internal/users"
)

const (
	// SessionCookieName は OAuth の一時状態を保持するセッションCookie名です。
	SessionCookieName = "pt_oauth"
	// CredentialCookieName は発行したトークンを保持するCookie名です。
	CredentialCookieName = "pt_token"

	sessionKeyState    = "oauth_state"
	sessionKeyVerifier = "oauth_verifier"
	sessionKeyIssuedAt = "oauth_issued_at"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

type attemptState struct {
	count        int
	firstAttempt time.Time
	lockedUntil  time.Time
}

func (s *attemptState) expired(now time.Time) bool {
	return now.Sub(s.firstAttempt) > loginWindow && !now.Before(s.lockedUntil)
}

// Manager はログインフローと認証状態の解決をまとめた構造体です。
type Manager struct {
	cfg      *config.Config
	provider Provider
	issuer   *Issuer
	users    users.Store
	logger   *log.Logger
	now      func() time.Time

	lock     sync.Mutex
	attempts map[string]*attemptState
}

// NewManager は認証マネージャーを作成します。userStore が nil の場合はユーザーを保存しません。
func NewManager(cfg *config.Config, provider Provider, userStore users.Store, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		cfg:      cfg,
		provider: provider,
		issuer:   NewIssuer(cfg.SecretKey, cfg.CredentialTTL, nil),
		users:    userStore,
		logger:   logger,
		now:      time.Now,
		attempts: make(map[string]*attemptState),
	}
}

// Issuer はトークン発行器を返します。
func (m *Manager) Issuer() *Issuer {
	return m.issuer
}

// Login は GET /login のハンドラーです。
func (m *Manager) Login(c *gin.Context) {
	if err := m.ensureCredentials(); err != nil {
		respondWithError(c, err)
		return
	}

	state, err := generateToken()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "state の生成に失敗しました",
		})
		return
	}
	verifier := oauth2.GenerateVerifier()

	session := sessions.Default(c)
	session.Set(sessionKeyState, state)
	session.Set(sessionKeyVerifier, verifier)
	session.Set(sessionKeyIssuedAt, m.now().Unix())
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SESSION_SAVE_FAILED",
			"message": "セッションの保存に失敗しました",
		})
		return
	}

	c.Redirect(http.StatusFound, m.provider.AuthCodeURL(state, verifier))
}

// Callback は GET /auth/callback のハンドラーです。
func (m *Manager) Callback(c *gin.Context) {
	ip := c.ClientIP()
	if retryAfter := m.checkLock(ip); retryAfter > 0 {
		c.Header("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"code":    "TOO_MANY_ATTEMPTS",
			"message": "一定時間後に再度お試しください",
		})
		return
	}

	if err := m.ensureCredentials(); err != nil {
		respondWithError(c, err)
		return
	}

	// state と verifier は一度きり。成否に関わらずここで消す
	session := sessions.Default(c)
	expectedState, _ := session.Get(sessionKeyState).(string)
	verifier, _ := session.Get(sessionKeyVerifier).(string)
	issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
	session.Delete(sessionKeyState)
	session.Delete(sessionKeyVerifier)
	session.Delete(sessionKeyIssuedAt)
	if err := session.Save(); err != nil {
		m.logger.Warn("failed to clear oauth session", "error", err)
	}

	if !m.validState(c.Query("state"), expectedState, verifier, issuedAt) {
		m.recordFailure(ip)
		c.JSON(http.StatusBadRequest, gin.H{
			"code":    "INVALID_STATE",
			"message": "ログイン要求が無効か期限切れです。もう一度ログインしてください",
		})
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		m.logger.Warn("oauth callback returned error",
			"error", errParam,
			"description", c.Query("error_description"),
		)
		c.Redirect(http.StatusFound, m.frontendURL(url.Values{"auth_error": {errParam}}))
		return
	}

	code := c.Query("code")
	if code == "" {
		m.recordFailure(ip)
		respondWithError(c, providerError(ProviderCodeMissingCode, nil))
		return
	}

	identity, err := m.provider.Exchange(c.Request.Context(), code, verifier)
	if err != nil {
		m.recordFailure(ip)
		m.logger.Error("oauth exchange failed", "error", err, "ip", ip)
		respondWithError(c, err)
		return
	}
	m.resetAttempts(ip)

	if m.users != nil {
		if _, err := m.users.Upsert(c.Request.Context(), users.Profile{
			Subject: identity.Subject,
			Email:   identity.Email,
			Name:    identity.Name,
			Picture: identity.Picture,
		}); err != nil {
			m.logger.Error("failed to save user", "sub", identity.Subject, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "USER_SAVE_FAILED",
				"message": "ユーザー情報の保存に失敗しました",
			})
			return
		}
	}

	credential, err := m.issuer.Issue(*identity)
	if err != nil {
		m.logger.Error("failed to issue credential", "sub", identity.Subject, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "TOKEN_GENERATION_FAILED",
			"message": "トークンの発行に失敗しました",
		})
		return
	}

	m.setCredentialCookie(c, credential.Token, int(m.issuer.TTL().Seconds()))
	m.logger.Info("login succeeded", "sub", identity.Subject, "ip", ip)
	c.Redirect(http.StatusFound, m.cfg.FrontendOrigin)
}

// Logout は GET /logout のハンドラーです。
// サーバー側に失効リストは持たないため、発行済みトークンは期限まで有効なままです。
func (m *Manager) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		m.logger.Warn("failed to clear session", "error", err)
	}
	m.setCredentialCookie(c, "", -1)
	c.Redirect(http.StatusFound, m.cfg.FrontendOrigin)
}

func (m *Manager) validState(received, expected, verifier string, issuedAt time.Time) bool {
	if received == "" || expected == "" || verifier == "" {
		return false
	}
	if issuedAt.IsZero() || m.now().Sub(issuedAt) > m.cfg.StateTTL {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}

func (m *Manager) setCredentialCookie(c *gin.Context, value string, maxAge int) {
	cookie := &http.Cookie{
		Name:     CredentialCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	// フロントエンドが別オリジンから credentials: include で送るため本番では None
	if m.cfg.IsRelease() {
		cookie.Secure = true
		cookie.SameSite = http.SameSiteNoneMode
	}
	http.SetCookie(c.Writer, cookie)
}

func (m *Manager) frontendURL(query url.Values) string {
	if len(query) == 0 {
		return m.cfg.FrontendOrigin
	}
	return m.cfg.FrontendOrigin + "/?" + query.Encode()
}

func (m *Manager) ensureCredentials() error {
	if m.cfg.GoogleClientID == "" {
		return &config.ConfigError{Key: "GOOGLE_CLIENT_ID"}
	}
	if m.cfg.GoogleClientSecret == "" {
		return &config.ConfigError{Key: "GOOGLE_CLIENT_SECRET"}
	}
	return nil
}

func (m *Manager) checkLock(ip string) time.Duration {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[ip]
	if !ok {
		return 0
	}
	now := m.now()
	if state.expired(now) {
		delete(m.attempts, ip)
		return 0
	}
	if now.After(state.lockedUntil) {
		return 0
	}
	return state.lockedUntil.Sub(now)
}

func (m *Manager) recordFailure(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	m.pruneAttempts(now)

	state, ok := m.attempts[ip]
	if !ok || now.Sub(state.firstAttempt) > loginWindow {
		state = &attemptState{firstAttempt: now}
		m.attempts[ip] = state
	}

	state.count++
	if state.count >= maxLoginAttempts {
		state.lockedUntil = now.Add(lockDuration)
		state.count = maxLoginAttempts
	}
}

// pruneAttempts はウィンドウもロックも切れたエントリを削除します。呼び出し側でロックを取ること。
func (m *Manager) pruneAttempts(now time.Time) {
	for ip, state := range m.attempts {
		if state.expired(now) {
			delete(m.attempts, ip)
		}
	}
}

func (m *Manager) resetAttempts(ip string) {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, ip)
}

// respondWithError はエラー種別に応じてステータスコードを決めます。
func respondWithError(c *gin.Context, err error) {
	var cfgErr *config.ConfigError
	if errors.As(err, &cfgErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "SERVER_MISCONFIGURATION",
			"message": cfgErr.Error(),
		})
		return
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		status := http.StatusBadGateway
		if provErr.Code == ProviderCodeMissingCode {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"code":    "PROVIDER_ERROR",
			"message": "認証プロバイダーとの通信に失敗しました (" + provErr.Code + ")",
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    "INTERNAL_ERROR",
		"message": "予期しないエラーが発生しました",
	})
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
