package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Resolve はリクエストから資格情報を読み取り、呼び出し元の Identity を返します。
// Authorization ヘッダーの Bearer トークンを先に見て、無いか無効なら Cookie を見ます。
// 資格情報が無い・無効な場合はエラーにせず Guest を返します。
func (m *Manager) Resolve(r *http.Request) Identity {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		if id, ok := m.parseCredential(token, "header"); ok {
			return id
		}
	}
	if cookie, err := r.Cookie(CredentialCookieName); err == nil && cookie.Value != "" {
		if id, ok := m.parseCredential(cookie.Value, "cookie"); ok {
			return id
		}
	}
	return Guest()
}

func (m *Manager) parseCredential(token, source string) (Identity, bool) {
	id, err := m.issuer.Parse(token)
	if err != nil {
		m.logger.Debug("credential rejected", "source", source, "error", err)
		return Guest(), false
	}
	return id, true
}

// ResolveIdentity はすべてのリクエストで Identity を解決してコンテキストに保存するミドルウェアです。
func (m *Manager) ResolveIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := m.Resolve(c.Request)
		c.Set(ContextIdentityKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireLogin は Guest を 401 で拒否するミドルウェアです。
// ResolveIdentity の後に登録してください。
func (m *Manager) RequireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentIdentity(c).IsGuest() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    "UNAUTHORIZED",
				"message": "ログインが必要です",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
