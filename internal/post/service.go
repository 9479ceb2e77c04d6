// Package post はポスト・リプライの作成と閲覧のビジネスロジックを提供する。
package post

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/chirp/internal/blob"
	"github.com/hitoshi/chirp/internal/model"
	"github.com/hitoshi/chirp/internal/repository"
	"github.com/hitoshi/chirp/internal/security"
	"github.com/hitoshi/chirp/internal/timeline"
)

// AccountFinder は作者解決に必要なリポジトリ操作のインターフェース。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// CreatePostInput はポスト作成の入力。
// 本文と画像の少なくとも一方が必要。QuotedPostIDが空でない場合は
// 引用ポストとして作成する。
type CreatePostInput struct {
	Text             string
	Image            []byte
	ImageContentType string
	QuotedPostID     string
}

// Service はポストに関するビジネスロジックを提供する。
type Service struct {
	posts     repository.PostRepository
	replies   repository.ReplyRepository
	accounts  AccountFinder
	blobs     blob.Store
	sanitizer security.TextSanitizerService
}

// NewService はServiceを生成する。
func NewService(
	posts repository.PostRepository,
	replies repository.ReplyRepository,
	accounts AccountFinder,
	blobs blob.Store,
	sanitizer security.TextSanitizerService,
) *Service {
	return &Service{
		posts:     posts,
		replies:   replies,
		accounts:  accounts,
		blobs:     blobs,
		sanitizer: sanitizer,
	}
}

// resolveAuthor は作者アカウントを取得する。
// ポストには作者の表示名・ユーザー名をスナップショットとして埋め込む。
func (s *Service) resolveAuthor(ctx context.Context, authorID string) (*model.Account, error) {
	if authorID == "" {
		return nil, model.NewInvalidArgumentError("作者IDは必須です")
	}
	author, err := s.accounts.FindByID(ctx, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to find author: %w", err)
	}
	if author == nil {
		return nil, model.NewAccountNotFoundError(authorID)
	}
	return author, nil
}

// validateText は本文をサニタイズし、文字数上限を検証する。
// 文字数はバイト数ではなくコードポイント数で数える。
func (s *Service) validateText(text string) (string, error) {
	cleaned := s.sanitizer.Sanitize(text)
	if utf8.RuneCountInString(cleaned) > model.MaxPostTextLen {
		return "", model.NewTextTooLongError(model.MaxPostTextLen)
	}
	return cleaned, nil
}

// Create は新しいポストを作成する。
func (s *Service) Create(ctx context.Context, authorID string, input CreatePostInput) (*model.Post, error) {
	author, err := s.resolveAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}

	text, err := s.validateText(input.Text)
	if err != nil {
		return nil, err
	}
	if text == "" && len(input.Image) == 0 {
		return nil, model.NewInvalidArgumentError("本文か画像のいずれかが必要です")
	}

	post := &model.Post{
		ID:             uuid.NewString(),
		AuthorID:       author.ID,
		AuthorName:     author.FullName,
		AuthorUsername: author.Username,
		Text:           text,
		LikerIDs:       []string{},
		RetweeterIDs:   []string{},
		CreatedAt:      time.Now(),
	}

	if len(input.Image) > 0 {
		ref, err := s.blobs.Save(ctx, "posts", input.Image, input.ImageContentType)
		if err != nil {
			return nil, err
		}
		post.ImageRef = ref
	}

	if input.QuotedPostID != "" {
		quoted, err := s.posts.FindByID(ctx, input.QuotedPostID)
		if err != nil {
			return nil, fmt.Errorf("failed to find quoted post: %w", err)
		}
		if quoted == nil {
			return nil, model.NewPostNotFoundError(input.QuotedPostID)
		}
		// 引用はスナップショット。元ポストが後で変わっても追随しない。
		post.Quoted = &model.QuotedPost{
			PostID:         quoted.ID,
			AuthorName:     quoted.AuthorName,
			AuthorUsername: quoted.AuthorUsername,
			Text:           quoted.Text,
			ImageRef:       quoted.ImageRef,
		}
	}

	if err := s.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	return post, nil
}

// GetByID は指定IDのポストを取得する。
func (s *Service) GetByID(ctx context.Context, postID string) (*model.Post, error) {
	if postID == "" {
		return nil, model.NewInvalidArgumentError("ポストIDは必須です")
	}
	post, err := s.posts.FindByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	if post == nil {
		return nil, model.NewPostNotFoundError(postID)
	}
	return post, nil
}

// GetDetail はポストとそのリプライ一覧（古い順）を取得する。
func (s *Service) GetDetail(ctx context.Context, postID string, replyLimit int) (*model.Post, []*model.Reply, error) {
	if replyLimit < 1 {
		replyLimit = 50
	}

	post, err := s.GetByID(ctx, postID)
	if err != nil {
		return nil, nil, err
	}

	replies, err := s.replies.ListByPost(ctx, postID, replyLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load replies: %w", err)
	}
	return post, replies, nil
}

// CreateReply はリプライを作成する。
// リプライの挿入と親ポストのリプライ数加算は単一トランザクションで行われる。
func (s *Service) CreateReply(ctx context.Context, postID, authorID, text string) (*model.Reply, error) {
	if postID == "" {
		return nil, model.NewInvalidArgumentError("ポストIDは必須です")
	}

	author, err := s.resolveAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}

	cleaned, err := s.validateText(text)
	if err != nil {
		return nil, err
	}
	if cleaned == "" {
		return nil, model.NewInvalidArgumentError("リプライ本文は必須です")
	}

	reply := &model.Reply{
		ID:             uuid.NewString(),
		PostID:         postID,
		AuthorID:       author.ID,
		AuthorName:     author.FullName,
		AuthorUsername: author.Username,
		Text:           cleaned,
		CreatedAt:      time.Now(),
	}

	if err := s.replies.CreateWithCount(ctx, reply); err != nil {
		if apiErr, ok := err.(*model.APIError); ok {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to create reply: %w", err)
	}
	return reply, nil
}

// ListByAuthor は単一作者のポストを作成時刻降順・カーソル付きで取得する。
// プロフィール画面のポスト一覧用。limit+1件要求して次ページの有無を判定する。
func (s *Service) ListByAuthor(ctx context.Context, authorID, cursor string, limit int) (*model.FeedPage, error) {
	if limit < 1 {
		limit = timeline.DefaultPageSize
	}

	if _, err := s.resolveAuthor(ctx, authorID); err != nil {
		return nil, err
	}

	before, err := timeline.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	posts, err := s.posts.ListByAuthor(ctx, authorID, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit]
	}

	page := &model.FeedPage{Posts: posts, HasMore: hasMore}
	if hasMore && len(posts) > 0 {
		page.NextCursor = timeline.EncodeCursor(posts[len(posts)-1].CreatedAt)
	}
	return page, nil
}
