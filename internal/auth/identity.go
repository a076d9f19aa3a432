package auth

import (
	"context"

	"github.com/gin-gonic/gin"
)

// GuestName は未ログイン時に表示する名前です。
const GuestName = "Guest"

// ContextIdentityKey は、ハンドラー間で解決済みの Identity を共有するためのキーです。
const ContextIdentityKey = "auth.identity"

// ExternalIdentity は外部プロバイダーが返したユーザー情報です。
// ログイン時に一度だけ取得し、変更しません。
type ExternalIdentity struct {
	Subject       string // プロバイダー内で一意な ID (sub)
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Kind は Identity の種別です。
type Kind int

const (
	KindGuest Kind = iota
	KindAuthenticated
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticated:
		return "authenticated"
	default:
		return "guest"
	}
}

// Identity はリクエストごとに解決される呼び出し元の情報です。
// ゼロ値は Guest を表します。
type Identity struct {
	kind    Kind
	subject string
	email   string
	name    string
}

// Guest は未ログインのプレースホルダーを返します。
func Guest() Identity {
	return Identity{kind: KindGuest, name: GuestName}
}

// Authenticated はログイン済みの Identity を作成します。
func Authenticated(subject, email, name string) Identity {
	return Identity{
		kind:    KindAuthenticated,
		subject: subject,
		email:   email,
		name:    name,
	}
}

func (i Identity) Kind() Kind { return i.kind }

func (i Identity) IsGuest() bool { return i.kind != KindAuthenticated }

func (i Identity) Subject() string { return i.subject }

func (i Identity) Email() string { return i.email }

// Name は表示名を返します。Guest の場合は GuestName です。
func (i Identity) Name() string {
	if i.IsGuest() {
		return GuestName
	}
	return i.name
}

type identityContextKey struct{}

// WithIdentity は Identity を保持した context を返します。
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext は context から Identity を取り出します。無ければ Guest です。
func IdentityFromContext(ctx context.Context) Identity {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok {
		return Guest()
	}
	return id
}

// CurrentIdentity は gin のコンテキストに保存された Identity を返します。
func CurrentIdentity(c *gin.Context) Identity {
	if v, ok := c.Get(ContextIdentityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return IdentityFromContext(c.Request.Context())
}
