package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Provider は外部 OAuth プロバイダーとのやり取りを抽象化します。
// 実装はユーザー情報を返すだけで、ユーザー作成やセッション管理は行いません。
type Provider interface {
	// AuthCodeURL は認可エンドポイントへのリダイレクト先を返します。
	AuthCodeURL(state, verifier string) string
	// Exchange は認可コードをユーザー情報に交換します。
	Exchange(ctx context.Context, code, verifier string) (*ExternalIdentity, error)
}

// GoogleProvider は Google の認可コードフロー (PKCE 付き) を実装します。
type GoogleProvider struct {
	oauthConfig *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
}

// NewGoogleProvider は GoogleProvider を作成します。
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: googleUserInfoURL,
	}
}

// WithEndpoints は認可・トークン・userinfo のエンドポイントを差し替えます。
func (p *GoogleProvider) WithEndpoints(endpoint oauth2.Endpoint, userInfoURL string) *GoogleProvider {
	p.oauthConfig.Endpoint = endpoint
	p.userInfoURL = userInfoURL
	return p
}

// WithHTTPClient はトークン交換と userinfo 取得に使う HTTP クライアントを設定します。
func (p *GoogleProvider) WithHTTPClient(client *http.Client) *GoogleProvider {
	p.httpClient = client
	return p
}

// AuthCodeURL は state と PKCE チャレンジ付きの認可 URL を返します。
func (p *GoogleProvider) AuthCodeURL(state, verifier string) string {
	return p.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

type googleUserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange は認可コードをトークンへ交換し、userinfo からプロフィールを取得します。
func (p *GoogleProvider) Exchange(ctx context.Context, code, verifier string) (*ExternalIdentity, error) {
	if code == "" {
		return nil, providerError(ProviderCodeMissingCode, nil)
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, providerError(ProviderCodeExchangeFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, providerError(ProviderCodeProfileFailed, err)
	}
	resp, err := p.oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return nil, providerError(ProviderCodeProfileFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, providerError(ProviderCodeProfileFailed, fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, body))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, providerError(ProviderCodeProfileFailed, fmt.Errorf("decode userinfo: %w", err))
	}
	if info.Subject == "" {
		return nil, providerError(ProviderCodeProfileFailed, errors.New("userinfo missing sub"))
	}

	return &ExternalIdentity{
		Subject:       info.Subject,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		Name:          info.Name,
		Picture:       info.Picture,
	}, nil
}
