package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const credentialIssuer = "practice-tracker"

// Credential はアプリケーションが発行する署名付きトークンです。
type Credential struct {
	Token     string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type credentialClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Issuer は ExternalIdentity から Credential を発行し、検証します。
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer は Issuer を作成します。now が nil の場合は time.Now を使います。
func NewIssuer(secret string, ttl time.Duration, now func() time.Time) *Issuer {
	if now == nil {
		now = time.Now
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    now,
	}
}

// TTL はトークンの有効期間を返します。
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue は HS256 で署名したトークンを発行します。
func (i *Issuer) Issue(identity ExternalIdentity) (*Credential, error) {
	if len(i.secret) == 0 {
		return nil, errors.New("credential issuer secret is empty")
	}
	subject := strings.TrimSpace(identity.Subject)
	if subject == "" {
		return nil, errors.New("identity subject is required")
	}

	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)
	claims := credentialClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    credentialIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		Email: identity.Email,
		Name:  identity.Name,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return nil, fmt.Errorf("sign credential: %w", err)
	}
	return &Credential{
		Token:     token,
		Subject:   subject,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

// Parse はトークンの署名と有効期限を検証し、埋め込まれた Identity を返します。
// 失敗時は ErrCredentialInvalid をラップしたエラーを返します。
func (i *Issuer) Parse(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Guest(), fmt.Errorf("%w: empty token", ErrCredentialInvalid)
	}

	var claims credentialClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(credentialIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Guest(), fmt.Errorf("%w: %v", ErrCredentialInvalid, err)
	}
	if claims.Subject == "" {
		return Guest(), fmt.Errorf("%w: missing subject", ErrCredentialInvalid)
	}
	return Authenticated(claims.Subject, claims.Email, claims.Name), nil
}
