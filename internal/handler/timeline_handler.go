package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/chirp/internal/middleware"
	"github.com/hitoshi/chirp/internal/model"
)

// maxFeedPageSize はフィード1ページの最大件数。
const maxFeedPageSize = 50

// TimelineServiceInterface はタイムラインハンドラーが必要とするサービスインターフェース。
type TimelineServiceInterface interface {
	// GetFeed はビューアのフィード1ページを組み立てて返す。
	GetFeed(ctx context.Context, viewerID, cursor string, limit int) (*model.FeedPage, error)
}

// TimelineHandler はホームタイムラインのHTTPハンドラー。
type TimelineHandler struct {
	service  TimelineServiceInterface
	pageSize int
}

// NewTimelineHandler はTimelineHandlerを生成する。
// pageSizeはlimit未指定時のページ件数で、0以下の場合はサービス側の
// デフォルトに委ねる。
func NewTimelineHandler(service TimelineServiceInterface, pageSize int) *TimelineHandler {
	return &TimelineHandler{service: service, pageSize: pageSize}
}

// GetTimeline はログインアカウントのホームタイムラインを返す。
// GET /api/timeline?cursor=xxx&limit=10
func (h *TimelineHandler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	viewerID, err := middleware.AccountIDFromContext(r.Context())
	if err != nil {
		handleServiceError(w, model.NewAuthFailedError())
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limit := parseLimit(r.URL.Query().Get("limit"), h.pageSize, maxFeedPageSize)

	page, err := h.service.GetFeed(r.Context(), viewerID, cursor, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toFeedPageResponse(page, viewerID))
}

// parseLimit はlimitクエリパラメータを解析する。
// 不正値・未指定はfallbackを返し、maxを超える値はmaxに丸める。
func parseLimit(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	if n > max {
		return max
	}
	return n
}
