package auth

import (
	"errors"
	"fmt"
)

// ErrCredentialInvalid は署名不一致・期限切れ・形式不正のトークンを表します。
// ミドルウェアはこのエラーを Guest として扱います。
var ErrCredentialInvalid = errors.New("credential is invalid")

// プロバイダーエラーのコード
const (
	ProviderCodeDenied         = "ACCESS_DENIED"
	ProviderCodeMissingCode    = "MISSING_CODE"
	ProviderCodeExchangeFailed = "EXCHANGE_FAILED"
	ProviderCodeProfileFailed  = "PROFILE_FAILED"
)

// ProviderError は OAuth の交換処理が失敗したことを表します。
type ProviderError struct {
	Code string
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Err == nil {
		return "oauth provider: " + e.Code
	}
	return fmt.Sprintf("oauth provider: %s: %v", e.Code, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func providerError(code string, err error) error {
	return &ProviderError{Code: code, Err: err}
}
