package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/chirp/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// StatusForError はAPIErrorのコードからHTTPステータスコードを決める。
// 未知のコードはカテゴリで判定し、どちらにも当てはまらなければ500になる。
func StatusForError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidArgument, model.ErrCodeTextTooLong:
		return http.StatusBadRequest
	case model.ErrCodeAuthFailed:
		return http.StatusUnauthorized
	case model.ErrCodeAccountNotFound, model.ErrCodePostNotFound:
		return http.StatusNotFound
	case model.ErrCodeDuplicateEmail, model.ErrCodeDuplicateUsername:
		return http.StatusConflict
	case model.ErrCodeFeedUnavailable:
		return http.StatusServiceUnavailable
	case model.ErrCodeMutationFailed:
		return http.StatusInternalServerError
	case model.ErrCodeFollowPartialFail:
		// ローカル状態は更新済みで、修復ワーカーが収束させる
		return http.StatusAccepted
	}

	switch apiErr.Category {
	case "validation":
		return http.StatusBadRequest
	case "auth":
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// WriteAPIError はエラーの種類に応じたステータスコードで統一エラーレスポンスを書き込む。
// APIError以外のエラーは詳細を隠して500を返す。
func WriteAPIError(w http.ResponseWriter, err error) {
	if apiErr, ok := err.(*model.APIError); ok {
		WriteErrorResponse(w, StatusForError(apiErr), apiErr)
		return
	}
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、アカウントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}
