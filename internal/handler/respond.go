package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/chirp/internal/middleware"
	"github.com/hitoshi/chirp/internal/model"
)

// accountResponse はアカウント情報のAPIレスポンス。
// メールアドレス・電話番号などの非公開フィールドは含めない。
type accountResponse struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	FullName       string    `json:"full_name"`
	Bio            string    `json:"bio"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	FollowingCount int       `json:"following_count"`
	FollowersCount int       `json:"followers_count"`
	CreatedAt      time.Time `json:"created_at"`
}

// quotedPostResponse は引用ポストスナップショットのAPIレスポンス。
type quotedPostResponse struct {
	PostID         string `json:"post_id"`
	AuthorName     string `json:"author_name"`
	AuthorUsername string `json:"author_username"`
	Text           string `json:"text"`
	ImageURL       string `json:"image_url,omitempty"`
}

// postResponse はポスト情報のAPIレスポンス。
// LikedとRetweetedはリクエストしたアカウント視点の状態。
type postResponse struct {
	ID             string              `json:"id"`
	AuthorID       string              `json:"author_id"`
	AuthorName     string              `json:"author_name"`
	AuthorUsername string              `json:"author_username"`
	Text           string              `json:"text"`
	ImageURL       string              `json:"image_url,omitempty"`
	Quoted         *quotedPostResponse `json:"quoted,omitempty"`
	LikeCount      int64               `json:"like_count"`
	RetweetCount   int64               `json:"retweet_count"`
	ReplyCount     int64               `json:"reply_count"`
	Liked          bool                `json:"liked"`
	Retweeted      bool                `json:"retweeted"`
	CreatedAt      time.Time           `json:"created_at"`
}

// replyResponse はリプライ情報のAPIレスポンス。
type replyResponse struct {
	ID             string    `json:"id"`
	PostID         string    `json:"post_id"`
	AuthorID       string    `json:"author_id"`
	AuthorName     string    `json:"author_name"`
	AuthorUsername string    `json:"author_username"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// feedPageResponse はフィード1ページのAPIレスポンス。
type feedPageResponse struct {
	Posts      []postResponse `json:"posts"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// toAccountResponse はmodel.AccountからAPIレスポンスに変換する。
func toAccountResponse(a *model.Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Username:       a.Username,
		FullName:       a.FullName,
		Bio:            a.Bio,
		AvatarURL:      a.AvatarRef,
		FollowingCount: len(a.Following),
		FollowersCount: len(a.Followers),
		CreatedAt:      a.CreatedAt,
	}
}

// toPostResponse はmodel.PostからviewerID視点のAPIレスポンスに変換する。
func toPostResponse(p *model.Post, viewerID string) postResponse {
	resp := postResponse{
		ID:             p.ID,
		AuthorID:       p.AuthorID,
		AuthorName:     p.AuthorName,
		AuthorUsername: p.AuthorUsername,
		Text:           p.Text,
		ImageURL:       p.ImageRef,
		LikeCount:      p.LikeCount,
		RetweetCount:   p.RetweetCount,
		ReplyCount:     p.ReplyCount,
		Liked:          p.IsLikedBy(viewerID),
		Retweeted:      p.IsRetweetedBy(viewerID),
		CreatedAt:      p.CreatedAt,
	}
	if p.Quoted != nil {
		resp.Quoted = &quotedPostResponse{
			PostID:         p.Quoted.PostID,
			AuthorName:     p.Quoted.AuthorName,
			AuthorUsername: p.Quoted.AuthorUsername,
			Text:           p.Quoted.Text,
			ImageURL:       p.Quoted.ImageRef,
		}
	}
	return resp
}

// toReplyResponse はmodel.ReplyからAPIレスポンスに変換する。
func toReplyResponse(r *model.Reply) replyResponse {
	return replyResponse{
		ID:             r.ID,
		PostID:         r.PostID,
		AuthorID:       r.AuthorID,
		AuthorName:     r.AuthorName,
		AuthorUsername: r.AuthorUsername,
		Text:           r.Text,
		CreatedAt:      r.CreatedAt,
	}
}

// toFeedPageResponse はmodel.FeedPageからviewerID視点のAPIレスポンスに変換する。
func toFeedPageResponse(page *model.FeedPage, viewerID string) feedPageResponse {
	posts := make([]postResponse, len(page.Posts))
	for i, p := range page.Posts {
		posts[i] = toPostResponse(p, viewerID)
	}
	return feedPageResponse{
		Posts:      posts,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	}
}

// decodeJSONBody はリクエストボディをJSONとして解析する。
func decodeJSONBody(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeInvalidRequestBody はリクエストボディ解析失敗の統一レスポンスを書き込む。
func writeInvalidRequestBody(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, middleware.StatusForError(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
