package handler

import (
	"context"
	"encoding/base64"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/chirp/internal/engagement"
	"github.com/hitoshi/chirp/internal/middleware"
	"github.com/hitoshi/chirp/internal/model"
	"github.com/hitoshi/chirp/internal/post"
)

// PostServiceInterface はポストハンドラーが必要とするサービスインターフェース。
type PostServiceInterface interface {
	Create(ctx context.Context, authorID string, input post.CreatePostInput) (*model.Post, error)
	GetByID(ctx context.Context, postID string) (*model.Post, error)
	GetDetail(ctx context.Context, postID string, replyLimit int) (*model.Post, []*model.Reply, error)
	CreateReply(ctx context.Context, postID, authorID, text string) (*model.Reply, error)
}

// EngagementCoordinatorInterface はいいね・リツイートのトグル調整インターフェース。
type EngagementCoordinatorInterface interface {
	Seed(kind engagement.Kind, entityID, actorID string, active bool, count int64)
	State(kind engagement.Kind, entityID, actorID string) (active bool, count int64, ok bool)
	ToggleLike(ctx context.Context, postID, actorID string) (bool, error)
	ToggleRetweet(ctx context.Context, postID, actorID string) (bool, error)
}

// PostHandler はポスト管理のHTTPハンドラー。
type PostHandler struct {
	service     PostServiceInterface
	coordinator EngagementCoordinatorInterface
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(service PostServiceInterface, coordinator EngagementCoordinatorInterface) *PostHandler {
	return &PostHandler{
		service:     service,
		coordinator: coordinator,
	}
}

// createPostRequest はポスト作成リクエストのボディ。
// 画像はBase64エンコードで受け取る。
type createPostRequest struct {
	Text             string `json:"text"`
	ImageBase64      string `json:"image_base64,omitempty"`
	ImageContentType string `json:"image_content_type,omitempty"`
	QuotedPostID     string `json:"quoted_post_id,omitempty"`
}

// createReplyRequest はリプライ作成リクエストのボディ。
type createReplyRequest struct {
	Text string `json:"text"`
}

// postDetailResponse はポスト詳細（リプライ付き）のAPIレスポンス。
type postDetailResponse struct {
	postResponse
	Replies []replyResponse `json:"replies"`
}

// engagementResponse はいいね・リツイートトグルのAPIレスポンス。
type engagementResponse struct {
	Active bool  `json:"active"`
	Count  int64 `json:"count"`
}

// CreatePost は新しいポストを作成する。
// POST /api/posts
func (h *PostHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	var req createPostRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	input := post.CreatePostInput{
		Text:             req.Text,
		ImageContentType: req.ImageContentType,
		QuotedPostID:     req.QuotedPostID,
	}
	if req.ImageBase64 != "" {
		image, err := base64.StdEncoding.DecodeString(req.ImageBase64)
		if err != nil {
			handleServiceError(w, model.NewInvalidArgumentError("画像のBase64デコードに失敗しました"))
			return
		}
		input.Image = image
	}

	created, err := h.service.Create(r.Context(), accountID, input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(created, accountID))
}

// GetPost はポスト詳細とリプライ一覧を返す。
// GET /api/posts/{id}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	postID := chi.URLParam(r, "id")

	p, replies, err := h.service.GetDetail(r.Context(), postID, 0)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := postDetailResponse{
		postResponse: toPostResponse(p, accountID),
		Replies:      make([]replyResponse, len(replies)),
	}
	for i, reply := range replies {
		resp.Replies[i] = toReplyResponse(reply)
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateReply はポストへのリプライを作成する。
// POST /api/posts/{id}/replies
func (h *PostHandler) CreateReply(w http.ResponseWriter, r *http.Request) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	postID := chi.URLParam(r, "id")

	var req createReplyRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeInvalidRequestBody(w)
		return
	}

	reply, err := h.service.CreateReply(r.Context(), postID, accountID, req.Text)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toReplyResponse(reply))
}

// ToggleLike はポストへのいいねをトグルする。
// POST /api/posts/{id}/like
func (h *PostHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	h.toggleEngagement(w, r, engagement.KindLike)
}

// ToggleRetweet はポストのリツイートをトグルする。
// POST /api/posts/{id}/retweet
func (h *PostHandler) ToggleRetweet(w http.ResponseWriter, r *http.Request) {
	h.toggleEngagement(w, r, engagement.KindRetweet)
}

// toggleEngagement はいいね・リツイートトグルの共通手順。
// 調整役のローカル状態が未初期化の場合は、永続化済みポストから状態を
// シードしてからトグルする。
func (h *PostHandler) toggleEngagement(w http.ResponseWriter, r *http.Request, kind engagement.Kind) {
	accountID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	postID := chi.URLParam(r, "id")

	if _, _, seeded := h.coordinator.State(kind, postID, accountID); !seeded {
		p, err := h.service.GetByID(r.Context(), postID)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		switch kind {
		case engagement.KindLike:
			h.coordinator.Seed(kind, postID, accountID, p.IsLikedBy(accountID), p.LikeCount)
		case engagement.KindRetweet:
			h.coordinator.Seed(kind, postID, accountID, p.IsRetweetedBy(accountID), p.RetweetCount)
		}
	}

	var active bool
	switch kind {
	case engagement.KindLike:
		active, err = h.coordinator.ToggleLike(r.Context(), postID, accountID)
	case engagement.KindRetweet:
		active, err = h.coordinator.ToggleRetweet(r.Context(), postID, accountID)
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}

	_, count, _ := h.coordinator.State(kind, postID, accountID)
	writeJSON(w, http.StatusOK, engagementResponse{Active: active, Count: count})
}
