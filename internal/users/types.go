// Package users はログインしたユーザーのレコードを保存します。
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidProfile は subject の無いプロフィールを保存しようとした場合のエラーです。
var ErrInvalidProfile = errors.New("profile subject is required")

// Profile はログイン時にプロバイダーから得た情報です。
type Profile struct {
	Subject string
	Email   string
	Name    string
	Picture string
}

// User は subject をキーに保存されるユーザーレコードです。
type User struct {
	ID          string    `json:"id"`
	Subject     string    `json:"sub"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Picture     string    `json:"picture,omitempty"`
	LoginCount  int       `json:"loginCount"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

// Store はユーザーレコードの永続化を担います。
// 実装はレコード単位の原子性を保証します。
type Store interface {
	// Upsert は初回ログインならレコードを作成し、以降はプロフィールとログイン情報を更新します。
	Upsert(ctx context.Context, profile Profile) (*User, error)
	// Get は subject に対応するレコードを返します。存在しない場合は nil, nil です。
	Get(ctx context.Context, subject string) (*User, error)
}

// apply は既存レコード（nil なら新規）にログイン結果を反映します。
func apply(existing *User, profile Profile, now time.Time) *User {
	user := existing
	if user == nil {
		user = &User{
			ID:        uuid.NewString(),
			Subject:   profile.Subject,
			CreatedAt: now,
		}
	}
	user.Email = profile.Email
	user.Name = profile.Name
	user.Picture = profile.Picture
	user.LoginCount++
	user.UpdatedAt = now
	user.LastLoginAt = now
	return user
}

// normalize は subject の前後の空白を取り除きます。保存キーと Get のキーを揃えるため、
// ストアは常に normalize 後のプロフィールを使います。
func normalize(profile Profile) (Profile, error) {
	profile.Subject = strings.TrimSpace(profile.Subject)
	if profile.Subject == "" {
		return Profile{}, ErrInvalidProfile
	}
	return profile, nil
}
