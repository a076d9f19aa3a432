package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Me は GET /api/me のハンドラーです。未ログインでも Guest として 200 を返します。
func (m *Manager) Me(c *gin.Context) {
	id := CurrentIdentity(c)
	if id.IsGuest() {
		c.JSON(http.StatusOK, gin.H{
			"authenticated": false,
			"name":          id.Name(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"sub":           id.Subject(),
		"email":         id.Email(),
		"name":          id.Name(),
	})
}

// Profile は GET /api/me/profile のハンドラーです。RequireLogin の後に登録します。
func (m *Manager) Profile(c *gin.Context) {
	if m.users == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "USER_NOT_FOUND",
			"message": "ユーザー情報が保存されていません",
		})
		return
	}

	id := CurrentIdentity(c)
	user, err := m.users.Get(c.Request.Context(), id.Subject())
	if err != nil {
		m.logger.Error("failed to load user", "sub", id.Subject(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "ユーザー情報の取得に失敗しました",
		})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "USER_NOT_FOUND",
			"message": "ユーザー情報が保存されていません",
		})
		return
	}
	c.JSON(http.StatusOK, user)
}
