// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"net/http"
)

// ErrorKind はクライアントに返すエラーの分類。
type ErrorKind string

// 定義済みエラー分類
const (
	KindMalformedRequest    ErrorKind = "malformed_request"
	KindValidationFailure   ErrorKind = "validation_failure"
	KindOriginNotAllowed    ErrorKind = "origin_not_allowed"
	KindVerificationFailure ErrorKind = "verification_failure"
	KindStorageFailure      ErrorKind = "storage_failure"
	KindExportUnauthorized  ErrorKind = "export_unauthorized"
	KindMethodNotAllowed    ErrorKind = "method_not_allowed"
	KindNotFound            ErrorKind = "not_found"
)

// APIError は統一エラーフォーマットを表す。
// Message はそのまま画面に表示できる短い英文とする。
type APIError struct {
	Kind    ErrorKind
	Message string
	Status  int
	Err     error // ログ用の原因。クライアントには返さない
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// NewMalformedRequestError はリクエストボディ解析失敗エラーを生成する。
func NewMalformedRequestError(err error) *APIError {
	return &APIError{
		Kind:    KindMalformedRequest,
		Message: "Invalid JSON",
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// NewMissingFieldsError は必須項目不足エラーを生成する。
func NewMissingFieldsError() *APIError {
	return &APIError{
		Kind:    KindValidationFailure,
		Message: "Missing required fields",
		Status:  http.StatusBadRequest,
	}
}

// NewInvalidEmailError はメールアドレス形式エラーを生成する。
func NewInvalidEmailError() *APIError {
	return &APIError{
		Kind:    KindValidationFailure,
		Message: "Invalid email",
		Status:  http.StatusBadRequest,
	}
}

// NewOriginNotAllowedError は許可されていないOriginからのリクエストに対するエラーを生成する。
func NewOriginNotAllowedError(origin string) *APIError {
	return &APIError{
		Kind:    KindOriginNotAllowed,
		Message: "Origin not allowed",
		Status:  http.StatusForbidden,
		Err:     fmt.Errorf("origin %q is not in the allow-list", origin),
	}
}

// NewVerificationFailedError はCAPTCHA検証失敗エラーを生成する。
func NewVerificationFailedError(err error) *APIError {
	return &APIError{
		Kind:    KindVerificationFailure,
		Message: "Captcha failed",
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// NewStorageFailedError は永続化失敗エラーを生成する。
func NewStorageFailedError(err error) *APIError {
	return &APIError{
		Kind:    KindStorageFailure,
		Message: "DB insert failed",
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

// NewInvalidCalendarPayloadError はICS再配信のペイロードが不正な場合のエラーを生成する。
func NewInvalidCalendarPayloadError(err error) *APIError {
	return &APIError{
		Kind:    KindMalformedRequest,
		Message: "Bad Request",
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

// NewExportUnauthorizedError はエクスポートのトークン不一致エラーを生成する。
func NewExportUnauthorizedError() *APIError {
	return &APIError{
		Kind:    KindExportUnauthorized,
		Message: "Forbidden",
		Status:  http.StatusForbidden,
	}
}

// NewMethodNotAllowedError は許可されていないHTTPメソッドに対するエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Kind:    KindMethodNotAllowed,
		Message: "Method not allowed",
		Status:  http.StatusMethodNotAllowed,
	}
}

// NewNotFoundError は未定義ルートに対するエラーを生成する。
func NewNotFoundError() *APIError {
	return &APIError{
		Kind:    KindNotFound,
		Message: "Not found",
		Status:  http.StatusNotFound,
	}
}
