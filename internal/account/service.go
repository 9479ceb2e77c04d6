// Package account はアカウントの登録・プロフィール・フォロー一覧の
// ビジネスロジックを提供する。
package account

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/chirp/internal/auth"
	"github.com/hitoshi/chirp/internal/blob"
	"github.com/hitoshi/chirp/internal/model"
	"github.com/hitoshi/chirp/internal/repository"
	"github.com/hitoshi/chirp/internal/search"
	"github.com/hitoshi/chirp/internal/security"
)

var (
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9_]{3,20}$`)
)

// MinPasswordLen はパスワードの最小文字数。
const MinPasswordLen = 6

// SignupInput はアカウント登録の入力。
type SignupInput struct {
	Email    string
	Password string
	Username string
	FullName string
}

// UpdateProfileInput はプロフィール更新の入力。
// Avatarが空でない場合はアバター画像を差し替える。
type UpdateProfileInput struct {
	FullName          string
	Bio               string
	Phone             string
	Avatar            []byte
	AvatarContentType string
}

// Service はアカウントに関するビジネスロジックを提供する。
type Service struct {
	accounts  repository.AccountRepository
	blobs     blob.Store
	sanitizer security.TextSanitizerService
}

// NewService はServiceを生成する。
func NewService(accounts repository.AccountRepository, blobs blob.Store, sanitizer security.TextSanitizerService) *Service {
	return &Service{accounts: accounts, blobs: blobs, sanitizer: sanitizer}
}

// Signup は新規アカウントを作成する。
// メールアドレス・ユーザー名は小文字化して保存し、重複を拒否する。
// 検索用キーワード集合は表示名とユーザー名から生成する。
func (s *Service) Signup(ctx context.Context, input SignupInput) (*model.Account, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.ToLower(strings.TrimSpace(input.Username))
	fullName := s.sanitizer.Sanitize(input.FullName)

	if !emailPattern.MatchString(email) {
		return nil, model.NewInvalidArgumentError("メールアドレスの形式が不正です")
	}
	if len(input.Password) < MinPasswordLen {
		return nil, model.NewInvalidArgumentError(fmt.Sprintf("パスワードは%d文字以上にしてください", MinPasswordLen))
	}
	if !usernamePattern.MatchString(username) {
		return nil, model.NewInvalidArgumentError("ユーザー名は3〜20文字の英小文字・数字・アンダースコアにしてください")
	}
	if fullName == "" {
		return nil, model.NewInvalidArgumentError("表示名は必須です")
	}

	if existing, err := s.accounts.FindByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	} else if existing != nil {
		return nil, model.NewDuplicateEmailError()
	}
	if existing, err := s.accounts.FindByUsername(ctx, username); err != nil {
		return nil, fmt.Errorf("failed to check username: %w", err)
	} else if existing != nil {
		return nil, model.NewDuplicateUsernameError()
	}

	hash, err := auth.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	account := &model.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		FullName:     fullName,
		PasswordHash: hash,
		Following:    []string{},
		Followers:    []string{},
		Keywords:     search.GenerateKeywords(fullName, username),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return account, nil
}

// GetByID は指定IDのアカウントを取得する。
func (s *Service) GetByID(ctx context.Context, id string) (*model.Account, error) {
	if id == "" {
		return nil, model.NewInvalidArgumentError("アカウントIDは必須です")
	}
	account, err := s.accounts.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(id)
	}
	return account, nil
}

// GetByUsername はユーザー名でアカウントを取得する。
func (s *Service) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" {
		return nil, model.NewInvalidArgumentError("ユーザー名は必須です")
	}
	account, err := s.accounts.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAccountNotFoundError(username)
	}
	return account, nil
}

// UpdateProfile はプロフィールを更新する。
// 表示名が変わった場合は検索用キーワード集合を再生成して全置換する
// （部分更新では古いキーワードが残るため）。
func (s *Service) UpdateProfile(ctx context.Context, accountID string, input UpdateProfileInput) (*model.Account, error) {
	account, err := s.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	fullName := s.sanitizer.Sanitize(input.FullName)
	if fullName == "" {
		return nil, model.NewInvalidArgumentError("表示名は必須です")
	}

	account.FullName = fullName
	account.Bio = s.sanitizer.Sanitize(input.Bio)
	account.Phone = strings.TrimSpace(input.Phone)
	account.Keywords = search.GenerateKeywords(fullName, account.Username)
	account.UpdatedAt = time.Now()

	if len(input.Avatar) > 0 {
		ref, err := s.blobs.Save(ctx, "avatars", input.Avatar, input.AvatarContentType)
		if err != nil {
			return nil, err
		}
		if account.AvatarRef != "" {
			// 旧アバターの削除失敗は無視できる
			_ = s.blobs.Remove(ctx, account.AvatarRef)
		}
		account.AvatarRef = ref
	}

	if err := s.accounts.UpdateProfile(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return account, nil
}

// ListFollowing はフォロー先アカウントをページ単位で取得する。
// following集合のID配列をオフセットで切り出し、バッチ取得で解決する。
// 戻り値のhasMoreは次ページの有無を示す。
func (s *Service) ListFollowing(ctx context.Context, accountID string, offset, limit int) ([]*model.Account, bool, error) {
	if limit < 1 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	account, err := s.GetByID(ctx, accountID)
	if err != nil {
		return nil, false, err
	}

	ids := account.Following
	if offset >= len(ids) {
		return nil, false, nil
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := ids[offset:end]
	hasMore := end < len(ids)

	// バッチ取得はin-setクエリの幅制限に合わせて分割する
	var result []*model.Account
	for i := 0; i < len(page); i += repository.MaxAuthorsPerQuery {
		chunkEnd := i + repository.MaxAuthorsPerQuery
		if chunkEnd > len(page) {
			chunkEnd = len(page)
		}
		accounts, err := s.accounts.FindByIDs(ctx, page[i:chunkEnd])
		if err != nil {
			return nil, false, fmt.Errorf("failed to load following accounts: %w", err)
		}
		result = append(result, accounts...)
	}
	return result, hasMore, nil
}

// ListFollowers はフォロワーアカウントを表示名昇順・カーソル付きで取得する。
// afterFullNameは前ページ最後の表示名（空文字列は先頭から）。
func (s *Service) ListFollowers(ctx context.Context, accountID, afterFullName string, limit int) ([]*model.Account, error) {
	if limit < 1 {
		limit = 20
	}
	if _, err := s.GetByID(ctx, accountID); err != nil {
		return nil, err
	}

	followers, err := s.accounts.ListFollowers(ctx, accountID, afterFullName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load followers: %w", err)
	}
	return followers, nil
}
