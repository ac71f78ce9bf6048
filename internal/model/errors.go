// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
	"strings"
)

// APIError は統一エラーフォーマットを表す。
// Messageはエンドユーザーにそのまま表示される。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, authorization, not_found, auth, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// エラーカテゴリ
const (
	CategoryValidation    = "validation"
	CategoryAuthorization = "authorization"
	CategoryNotFound      = "not_found"
	CategoryAuth          = "auth"
	CategorySystem        = "system"
)

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeNotOwner            = "NOT_OWNER"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidCredentials  = "INVALID_CREDENTIALS"
	ErrCodeRequestNotFound     = "REQUEST_NOT_FOUND"
	ErrCodeApplicationNotFound = "APPLICATION_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeProfileNotFound     = "PROFILE_NOT_FOUND"
	ErrCodeProfileExists       = "PROFILE_EXISTS"
	ErrCodeMissingLastDonation = "MISSING_LAST_DONATION_DATE"
	ErrCodeNotEligible         = "NOT_ELIGIBLE"
	ErrCodeRequestNotOpen      = "REQUEST_NOT_OPEN"
	ErrCodeRequestMismatch     = "REQUEST_MISMATCH"
	ErrCodeAlreadyApplied      = "ALREADY_APPLIED"
	ErrCodeNotWithdrawable     = "NOT_WITHDRAWABLE"
	ErrCodeDisallowedField     = "DISALLOWED_FIELD"
	ErrCodeAlreadyInStatus     = "ALREADY_IN_STATUS"
	ErrCodeInvalidTransition   = "INVALID_TRANSITION"
	ErrCodeEmailInUse          = "EMAIL_IN_USE"
	ErrCodeInvalidDate         = "INVALID_DATE"
)

// NewValidationError は入力やポリシー違反を表すエラーを生成する。
func NewValidationError(code, message string) *APIError {
	return &APIError{
		Code:     code,
		Message:  message,
		Category: CategoryValidation,
		Action:   "Check the submitted values and try again.",
	}
}

// NewForbiddenError はロール不一致のエラーを生成する。
func NewForbiddenError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  message,
		Category: CategoryAuthorization,
		Action:   "Sign in with an account that has the required role.",
	}
}

// NewNotOwnerError は所有者以外による操作のエラーを生成する。
func NewNotOwnerError(resource string) *APIError {
	return &APIError{
		Code:     ErrCodeNotOwner,
		Message:  fmt.Sprintf("You do not own this %s", resource),
		Category: CategoryAuthorization,
	}
}

// NewUnauthorizedError は未認証のエラーを生成する。
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  message,
		Category: CategoryAuth,
		Action:   "Sign in again.",
	}
}

// NewInvalidCredentialsError はログイン失敗のエラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: CategoryAuth,
		Action:   "Check your email and password.",
	}
}

// NewRequestNotFoundError は依頼未検出エラーを生成する。
func NewRequestNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestNotFound,
		Message:  "Request not found",
		Category: CategoryNotFound,
	}
}

// NewApplicationNotFoundError は応募未検出エラーを生成する。
func NewApplicationNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeApplicationNotFound,
		Message:  "Application not found",
		Category: CategoryNotFound,
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: CategoryNotFound,
		Action:   "Sign in again.",
	}
}

// NewProfileNotFoundError はプロフィール未作成エラーを生成する。
// roleLabelには "Donor" または "Requester" を渡す。
func NewProfileNotFoundError(roleLabel string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("%s profile not found", roleLabel),
		Category: CategoryValidation,
		Action:   "Complete your profile first.",
	}
}

// NewProfileExistsError はプロフィールの二重作成エラーを生成する。
func NewProfileExistsError(roleLabel string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileExists,
		Message:  fmt.Sprintf("%s profile already exists", roleLabel),
		Category: CategoryValidation,
		Action:   "Update the existing profile instead.",
	}
}

// NewMissingLastDonationError は最終献血日が未設定または不正な場合のエラーを生成する。
func NewMissingLastDonationError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingLastDonation,
		Message:  "Invalid or missing lastDonationDate",
		Category: CategoryValidation,
		Action:   "Set your last donation date before applying.",
	}
}

// NewNotEligibleError はクールダウン期間中のエラーを生成する。
func NewNotEligibleError(daysRemaining int) *APIError {
	return &APIError{
		Code:     ErrCodeNotEligible,
		Message:  fmt.Sprintf("You are not eligible to donate for %d more days.", daysRemaining),
		Category: CategoryValidation,
	}
}

// NewRequestNotOpenError はOpen以外の依頼への応募エラーを生成する。
func NewRequestNotOpenError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestNotOpen,
		Message:  "Can only apply to Open requests",
		Category: CategoryValidation,
	}
}

// NewRequestMismatchError は血液型または所在地の不一致エラーを生成する。
func NewRequestMismatchError() *APIError {
	return &APIError{
		Code:     ErrCodeRequestMismatch,
		Message:  "Request does not match your blood type or location",
		Category: CategoryValidation,
	}
}

// NewAlreadyAppliedError は有効な応募が既に存在する場合のエラーを生成する。
func NewAlreadyAppliedError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyApplied,
		Message:  "You have already applied to this request",
		Category: CategoryValidation,
		Action:   "Withdraw the existing application before applying again.",
	}
}

// NewNotWithdrawableError はApplied以外の応募を取り下げようとした場合のエラーを生成する。
func NewNotWithdrawableError() *APIError {
	return &APIError{
		Code:     ErrCodeNotWithdrawable,
		Message:  "Only 'Applied' applications can be withdrawn",
		Category: CategoryValidation,
	}
}

// NewDisallowedFieldError は編集不可フィールドの指定エラーを生成する。
func NewDisallowedFieldError(allowed []string) *APIError {
	return &APIError{
		Code:     ErrCodeDisallowedField,
		Message:  "Only editable fields: " + strings.Join(allowed, ", "),
		Category: CategoryValidation,
	}
}

// NewAlreadyInStatusError は現在と同じ状態への遷移エラーを生成する。
func NewAlreadyInStatusError(status RequestStatus) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyInStatus,
		Message:  fmt.Sprintf("Request is already '%s'", status),
		Category: CategoryValidation,
	}
}

// NewInvalidTransitionError は許可されない状態遷移のエラーを生成する。
func NewInvalidTransitionError(from, to RequestStatus) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTransition,
		Message:  fmt.Sprintf("Cannot change request status from '%s' to '%s'", from, to),
		Category: CategoryValidation,
	}
}

// NewEmailInUseError はメールアドレス重複エラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "Email already in use",
		Category: CategoryValidation,
	}
}

// NewInvalidDateError は日付形式の不正エラーを生成する。
func NewInvalidDateError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDate,
		Message:  "Invalid date format",
		Category: CategoryValidation,
		Action:   "Use YYYY-MM-DD.",
	}
}

// HasCategory はerrがAPIErrorで指定カテゴリに属するかを返す。
func HasCategory(err error, category string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Category == category
	}
	return false
}

// HasCode はerrがAPIErrorで指定コードを持つかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
