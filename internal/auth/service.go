// Package auth はパスワード認証とセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/chirp/internal/model"
)

// AccountReader は認証に必要なアカウント検索のインターフェース。
type AccountReader interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
}

// SessionStore はセッション永続化のインターフェース。
type SessionStore interface {
	Create(ctx context.Context, session *model.Session) error
	FindByID(ctx context.Context, id string) (*model.Session, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	accountRepo AccountReader
	sessionRepo SessionStore
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(accountRepo AccountReader, sessionRepo SessionStore, config ServiceConfig) *Service {
	return &Service{
		accountRepo: accountRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// HashPassword はパスワードのbcryptハッシュを生成する。
// 平文パスワードは保存せず、ハッシュだけを永続化する。
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// Login はメールアドレスとパスワードを検証し、セッションを発行する。
// アカウント不在とパスワード不一致は区別せずAUTH_FAILEDを返す
// （登録済みメールアドレスの推測を防ぐため）。
func (s *Service) Login(ctx context.Context, email, password string) (*model.Session, *model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, nil, model.NewInvalidArgumentError("メールアドレスとパスワードは必須です")
	}

	account, err := s.accountRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, nil, model.NewAuthFailedError()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, nil, model.NewAuthFailedError()
	}

	session, err := s.CreateSession(ctx, account.ID)
	if err != nil {
		return nil, nil, err
	}

	slog.Info("account logged in",
		slog.String("account_id", account.ID),
		slog.String("username", account.Username),
	)
	return session, account, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return model.NewInvalidArgumentError("セッションIDは必須です")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("account logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentAccount はセッションから現在のアカウントを取得する。
// セッションが存在しないか期限切れの場合はAUTH_FAILEDを返す。
func (s *Service) GetCurrentAccount(ctx context.Context, sessionID string) (*model.Account, error) {
	if sessionID == "" {
		return nil, model.NewAuthFailedError()
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, model.NewAuthFailedError()
	}

	account, err := s.accountRepo.FindByID(ctx, session.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return nil, model.NewAuthFailedError()
	}

	return account, nil
}

// CreateSession はセッションを作成し永続化する。
// サインアップ直後の自動ログインでも使用する。
func (s *Service) CreateSession(ctx context.Context, accountID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		AccountID: accountID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
