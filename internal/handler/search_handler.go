package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/chirp/internal/middleware"
	"github.com/hitoshi/chirp/internal/model"
	"github.com/hitoshi/chirp/internal/search"
)

// SearchServiceInterface は検索ハンドラーが必要とするサービスインターフェース。
type SearchServiceInterface interface {
	SearchAccounts(ctx context.Context, query string, limit int) ([]search.AccountSummary, error)
}

// SearchHandler はアカウント検索のHTTPハンドラー。
type SearchHandler struct {
	service SearchServiceInterface
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(service SearchServiceInterface) *SearchHandler {
	return &SearchHandler{service: service}
}

// searchResultResponse はアカウント検索結果のAPIレスポンス。
type searchResultResponse struct {
	Accounts []searchAccountResponse `json:"accounts"`
}

// searchAccountResponse は検索結果1件分のAPIレスポンス。
type searchAccountResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	FullName  string `json:"full_name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// SearchAccounts はクエリに前方一致するアカウントを検索する。
// 空白のみのクエリには空の結果を返す。
// GET /api/search/accounts?q=xxx&limit=20
func (h *SearchHandler) SearchAccounts(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.AccountIDFromContext(r.Context()); err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	query := r.URL.Query().Get("q")
	limit := parseLimit(r.URL.Query().Get("limit"), 0, maxFeedPageSize)

	summaries, err := h.service.SearchAccounts(r.Context(), query, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := searchResultResponse{Accounts: make([]searchAccountResponse, len(summaries))}
	for i, s := range summaries {
		resp.Accounts[i] = searchAccountResponse{
			ID:        s.ID,
			Username:  s.Username,
			FullName:  s.FullName,
			Bio:       s.Bio,
			AvatarURL: s.AvatarRef,
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
