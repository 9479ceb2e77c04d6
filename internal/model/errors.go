// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// コア層はユーザー向け文字列の整形を行わず、この構造化エラーのみを返す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, feed, mutation, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidArgument   = "INVALID_ARGUMENT"
	ErrCodeAccountNotFound   = "ACCOUNT_NOT_FOUND"
	ErrCodePostNotFound      = "POST_NOT_FOUND"
	ErrCodeFeedUnavailable   = "FEED_UNAVAILABLE"
	ErrCodeMutationFailed    = "MUTATION_FAILED"
	ErrCodeFollowPartialFail = "FOLLOW_PARTIAL_FAILURE"
	ErrCodeDuplicateEmail    = "DUPLICATE_EMAIL"
	ErrCodeDuplicateUsername = "DUPLICATE_USERNAME"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeTextTooLong       = "TEXT_TOO_LONG"
)

// NewInvalidArgumentError は呼び出し側の引数不正エラーを生成する。
// リトライ対象ではない。
func NewInvalidArgumentError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidArgument,
		Message:  fmt.Sprintf("不正な引数です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewAccountNotFoundError はアカウント未検出エラーを生成する。
func NewAccountNotFoundError(accountID string) *APIError {
	return &APIError{
		Code:     ErrCodeAccountNotFound,
		Message:  fmt.Sprintf("指定されたアカウントが見つかりません: %s", accountID),
		Category: "feed",
		Action:   "アカウントIDを確認してください。",
	}
}

// NewPostNotFoundError はポスト未検出エラーを生成する。
func NewPostNotFoundError(postID string) *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  fmt.Sprintf("指定されたポストが見つかりません: %s", postID),
		Category: "feed",
		Action:   "ポストIDを確認してください。",
	}
}

// NewFeedUnavailableError はフィード取得失敗エラーを生成する。
// バッチクエリが1つでも失敗した場合、部分結果を返さずこのエラーになる。
func NewFeedUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeFeedUnavailable,
		Message:  fmt.Sprintf("フィードを取得できませんでした: %s", reason),
		Category: "feed",
		Action:   "しばらく待ってから再読み込みしてください。",
	}
}

// NewMutationFailedError はトグルの永続書き込み失敗エラーを生成する。
// ローカル状態はロールバック済みのため、再タップで安全にリトライできる。
func NewMutationFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeMutationFailed,
		Message:  fmt.Sprintf("操作を保存できませんでした: %s", reason),
		Category: "mutation",
		Action:   "通信状態を確認して、もう一度お試しください。",
	}
}

// NewFollowPartialFailureError はフォロー関係の片側書き込み失敗エラーを生成する。
// 失敗した側は修復ジャーナルに記録され、ワーカーが再試行する。
func NewFollowPartialFailureError(followerID, targetID string) *APIError {
	return &APIError{
		Code:     ErrCodeFollowPartialFail,
		Message:  fmt.Sprintf("フォロー関係の更新が部分的に失敗しました: %s -> %s", followerID, targetID),
		Category: "mutation",
		Action:   "しばらく待つと自動的に修復されます。表示が合わない場合は再読み込みしてください。",
	}
}

// NewDuplicateEmailError は登録済みメールアドレスのエラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "このメールアドレスは既に登録されています。",
		Category: "validation",
		Action:   "別のメールアドレスを使用するか、ログインしてください。",
	}
}

// NewDuplicateUsernameError は使用済みユーザー名のエラーを生成する。
func NewDuplicateUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  "このユーザー名は使用できません。",
		Category: "validation",
		Action:   "別のユーザー名を指定してください。",
	}
}

// NewAuthFailedError は認証失敗エラーを生成する。
// メール未登録とパスワード不一致を区別しない。
func NewAuthFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthFailed,
		Message:  "メールアドレスまたはパスワードが正しくありません。",
		Category: "auth",
		Action:   "入力内容を確認して、もう一度お試しください。",
	}
}

// NewTextTooLongError は本文の文字数超過エラーを生成する。
func NewTextTooLongError(limit int) *APIError {
	return &APIError{
		Code:     ErrCodeTextTooLong,
		Message:  fmt.Sprintf("本文が長すぎます（上限%d文字）。", limit),
		Category: "validation",
		Action:   fmt.Sprintf("本文を%d文字以内に収めてください。", limit),
	}
}
