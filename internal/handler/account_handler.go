package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/chirp/internal/account"
	"github.com/hitoshi/chirp/internal/engagement"
	"github.com/hitoshi/chirp/internal/middleware"
	"github.com/hitoshi/chirp/internal/model"
)

// AccountServiceInterface はアカウントハンドラーが必要とするサービスインターフェース。
type AccountServiceInterface interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	UpdateProfile(ctx context.Context, accountID string, input account.UpdateProfileInput) (*model.Account, error)
	ListFollowing(ctx context.Context, accountID string, offset, limit int) ([]*model.Account, bool, error)
	ListFollowers(ctx context.Context, accountID, afterFullName string, limit int) ([]*model.Account, error)
}

// AccountPostsLister はアカウントのポスト一覧取得インターフェース。
type AccountPostsLister interface {
	ListByAuthor(ctx context.Context, authorID, cursor string, limit int) (*model.FeedPage, error)
}

// FollowCoordinatorInterface はフォロートグルの調整インターフェース。
type FollowCoordinatorInterface interface {
	Seed(kind engagement.Kind, entityID, actorID string, active bool, count int64)
	State(kind engagement.Kind, entityID, actorID string) (active bool, count int64, ok bool)
	ToggleFollow(ctx context.Context, followerID, targetID string) (bool, error)
}

// AccountHandler はアカウント管理のHTTPハンドラー。
type AccountHandler struct {
	service     AccountServiceInterface
	posts       AccountPostsLister
	coordinator FollowCoordinatorInterface
}

// NewAccountHandler はAccountHandlerを生成する。
func NewAccountHandler(service AccountServiceInterface, posts AccountPostsLister, coordinator FollowCoordinatorInterface) *AccountHandler {
	return &AccountHandler{
		service:     service,
		posts:       posts,
		coordinator: coordinator,
	}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
// アバター画像はBase64エンコードで受け取る。
type updateProfileRequest struct {
	FullName          string `json:"full_name"`
	Bio               string `json:"bio"`
	Phone             string `json:"phone"`
	AvatarBase64      string `json:"avatar_base64,omitempty"`
	AvatarContentType string `json:"avatar_content_type,omitempty"`
}

// profileResponse はプロフィール画面のAPIレスポンス。
// IsFollowingはリクエストしたアカウント視点のフォロー状態。
type profileResponse struct {
	accountResponse
	IsFollowing bool `json:"is_following"`
}

// followResponse はフォロートグルのAPIレスポンス。
// RepairPendingがtrueの場合、片側書き込みの修復が保留中で、
// フォロワー数の表示が一時的にずれる可能性がある。
type followResponse struct {
	Following     bool  `json:"following"`
	FollowerCount int64 `json:"follower_count"`
	RepairPending bool  `json:"repair_pending,omitempty"`
}

// accountListResponse はアカウント一覧のAPIレスポンス。
type accountListResponse struct {
	Accounts []accountResponse `json:"accounts"`
	HasMore  bool              `json:"has_more"`
}

// GetProfile はユーザー名でプロフィールを取得する。
// GET /api/accounts/username/{username}
func (h *AccountHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	username := chi.URLParam(r, "username")

	target, err := h.service.GetByUsername(r.Context(), username)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	viewer, err := h.service.GetByID(r.Context(), viewerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		accountResponse: toAccountResponse(target),
		IsFollowing:     viewer.IsFollowing(target.ID),
	})
}

// UpdateProfile はログインアカウントのプロフィールを更新する。
// PATCH /api/accounts/me
func (h *AccountHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	var req updateProfileRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	input := account.UpdateProfileInput{
		FullName:          req.FullName,
		Bio:               req.Bio,
		Phone:             req.Phone,
		AvatarContentType: req.AvatarContentType,
	}
	if req.AvatarBase64 != "" {
		avatar, err := base64.StdEncoding.DecodeString(req.AvatarBase64)
		if err != nil {
			handleServiceError(w, model.NewInvalidArgumentError("アバター画像のBase64デコードに失敗しました"))
			return
		}
		input.Avatar = avatar
	}

	updated, err := h.service.UpdateProfile(r.Context(), accountID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountResponse(updated))
}

// ToggleFollow は指定アカウントへのフォローをトグルする。
// 片側書き込みだけ失敗した場合はローカル状態を維持したまま202を返す
// （修復ワーカーが後で収束させる）。
// POST /api/accounts/{id}/follow
func (h *AccountHandler) ToggleFollow(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	targetID := chi.URLParam(r, "id")

	if _, _, seeded := h.coordinator.State(engagement.KindFollow, targetID, viewerID); !seeded {
		viewer, err := h.service.GetByID(r.Context(), viewerID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		target, err := h.service.GetByID(r.Context(), targetID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		h.coordinator.Seed(engagement.KindFollow, targetID, viewerID,
			viewer.IsFollowing(targetID), int64(len(target.Followers)))
	}

	following, err := h.coordinator.ToggleFollow(r.Context(), viewerID, targetID)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) && apiErr.Code == model.ErrCodeFollowPartialFail {
			_, count, _ := h.coordinator.State(engagement.KindFollow, targetID, viewerID)
			writeJSON(w, http.StatusAccepted, followResponse{
				Following:     following,
				FollowerCount: count,
				RepairPending: true,
			})
			return
		}
		handleServiceError(w, err)
		return
	}

	_, count, _ := h.coordinator.State(engagement.KindFollow, targetID, viewerID)
	writeJSON(w, http.StatusOK, followResponse{Following: following, FollowerCount: count})
}

// ListFollowing はフォロー先アカウントの一覧を返す。
// GET /api/accounts/{id}/following?offset=0&limit=20
func (h *AccountHandler) ListFollowing(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.AccountIDFromContext(r.Context()); err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	accountID := chi.URLParam(r, "id")
	offset := parseOffset(r.URL.Query().Get("offset"))
	limit := parseLimit(r.URL.Query().Get("limit"), 0, maxFeedPageSize)

	accounts, hasMore, err := h.service.ListFollowing(r.Context(), accountID, offset, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toAccountListResponse(accounts, hasMore))
}

// ListFollowers はフォロワーアカウントの一覧を表示名昇順で返す。
// afterは前ページ最後の表示名（空文字列は先頭から）。
// GET /api/accounts/{id}/followers?after=xxx&limit=20
func (h *AccountHandler) ListFollowers(w http.ResponseWriter, r *http.Request) {
	if _, err := middleware.AccountIDFromContext(r.Context()); err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	accountID := chi.URLParam(r, "id")
	after := r.URL.Query().Get("after")
	limit := parseLimit(r.URL.Query().Get("limit"), 0, maxFeedPageSize)

	followers, err := h.service.ListFollowers(r.Context(), accountID, after, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// followersのカーソルは表示名ベースなのでhasMoreは件数で近似する
	writeJSON(w, http.StatusOK, toAccountListResponse(followers, limit > 0 && len(followers) == limit))
}

// ListPosts は指定アカウントのポスト一覧を作成時刻降順で返す。
// GET /api/accounts/{id}/posts?cursor=xxx&limit=10
func (h *AccountHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	accountID := chi.URLParam(r, "id")
	cursor := r.URL.Query().Get("cursor")
	limit := parseLimit(r.URL.Query().Get("limit"), 0, maxFeedPageSize)

	page, err := h.posts.ListByAuthor(r.Context(), accountID, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFeedPageResponse(page, viewerID))
}

// toAccountListResponse はアカウントのスライスからAPIレスポンスに変換する。
func toAccountListResponse(accounts []*model.Account, hasMore bool) accountListResponse {
	resp := accountListResponse{
		Accounts: make([]accountResponse, len(accounts)),
		HasMore:  hasMore,
	}
	for i, a := range accounts {
		resp.Accounts[i] = toAccountResponse(a)
	}
	return resp
}

// parseOffset はoffsetクエリパラメータを解析する。不正値・未指定は0を返す。
func parseOffset(raw string) int {
	n := parseLimit(raw, 0, 1<<30)
	if n < 0 {
		return 0
	}
	return n
}
