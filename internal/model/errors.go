// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 原因カテゴリと対処方法を含む。Errには下位レイヤーの原因エラーを保持する。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: account, validation, auth, system
	Action   string // 利用者向け対処方法
	Err      error  // 原因エラー（任意）

	// Temporary は再試行で解消しうる一時的な失敗（直列化失敗、デッドロック、ビジー）を示す。
	Temporary bool
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is はエラーコードが一致する場合にtrueを返す。
// errors.Is(err, model.ErrAccountNotFound) の形で種別判定に使う。
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Retryable は同じ操作を再試行すれば成功しうるかを返す。
// ライブラリ自身は再試行しないため、判断は呼び出し側に委ねる。
func (e *APIError) Retryable() bool {
	return e.Temporary
}

// 定義済みエラーコード
const (
	ErrCodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInvalidPlatform     = "INVALID_PLATFORM"
	ErrCodeNoDefaultAccount    = "NO_DEFAULT_ACCOUNT"
	ErrCodeStorageFailure      = "STORAGE_FAILURE"
	ErrCodePartialSweepFailure = "PARTIAL_SWEEP_FAILURE"
)

// errors.Is 判定用の種別エラー。
var (
	ErrAccountNotFound     = &APIError{Code: ErrCodeAccountNotFound}
	ErrUserNotFound        = &APIError{Code: ErrCodeUserNotFound}
	ErrInvalidPlatform     = &APIError{Code: ErrCodeInvalidPlatform}
	ErrNoDefaultAccount    = &APIError{Code: ErrCodeNoDefaultAccount}
	ErrStorageFailure      = &APIError{Code: ErrCodeStorageFailure}
	ErrPartialSweepFailure = &APIError{Code: ErrCodePartialSweepFailure}
)

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
// 存在しない、論理削除済み、または指定グループに属さないアカウントが対象。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %s", accountID),
		Category: "account",
		Action:   "アカウントIDとプラットフォームを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewInvalidPlatformError は未対応プラットフォームのエラーを生成する。
func NewInvalidPlatformError(platform string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPlatform,
		Message:  fmt.Sprintf("未対応のプラットフォームです: %s", platform),
		Category: "validation",
		Action:   "twitter、linkedin、facebook、instagram、threads のいずれかを指定してください。",
	}
}

// NewNoDefaultAccountError はデフォルトアカウント未設定のエラーを生成する。
func NewNoDefaultAccountError(platform Platform) *APIError {
	return &APIError{
		Code:     ErrCodeNoDefaultAccount,
		Message:  fmt.Sprintf("%s のデフォルトアカウントが設定されていません。", platform),
		Category: "account",
		Action:   "アカウント設定からデフォルトアカウントを選択してください。",
	}
}

// NewStorageFailureError はトランザクションを確定できなかった場合のエラーを生成する。
// 接続断、制約違反、デッドロック、期限切れなどが原因となる。再試行の判断は呼び出し側が行う。
func NewStorageFailureError(op string, err error) *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailure,
		Message:  fmt.Sprintf("%s の処理でデータベース操作に失敗しました。", op),
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      err,
	}
}

// NewPartialSweepFailureError は一括整合処理で一部グループが失敗した場合のエラーを生成する。
// errには各グループのエラーをerrors.Joinしたものを渡す。
func NewPartialSweepFailureError(failed, total int, err error) *APIError {
	return &APIError{
		Code:     ErrCodePartialSweepFailure,
		Message:  fmt.Sprintf("%d/%d グループの整合処理に失敗しました。", failed, total),
		Category: "system",
		Action:   "失敗したグループをログで確認し、個別に再実行してください。",
		Err:      err,
	}
}
