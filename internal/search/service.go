package search

import (
	"context"

	"github.com/hitoshi/chirp/internal/model"
)

// AccountSearcher はアカウント検索に必要なリポジトリ操作のインターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountSearcher interface {
	SearchByKeywords(ctx context.Context, prefixes []string, limit int) ([]*model.Account, error)
}

// AccountSummary は検索結果のサマリー情報。
type AccountSummary struct {
	ID        string
	Username  string
	FullName  string
	Bio       string
	AvatarRef string
}

// Service はアカウントの前方一致検索サービス。
type Service struct {
	accounts AccountSearcher
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(accounts AccountSearcher) *Service {
	return &Service{accounts: accounts}
}

// SearchAccounts はクエリのプレフィックス集合とキーワード集合が交差する
// アカウントを返す。空白のみのクエリには空の結果を返す。
func (s *Service) SearchAccounts(ctx context.Context, query string, limit int) ([]AccountSummary, error) {
	if limit < 1 {
		limit = 20
	}

	prefixes := QueryPrefixes(query)
	if len(prefixes) == 0 {
		return nil, nil
	}

	accounts, err := s.accounts.SearchByKeywords(ctx, prefixes, limit)
	if err != nil {
		return nil, err
	}

	summaries := make([]AccountSummary, len(accounts))
	for i, a := range accounts {
		summaries[i] = AccountSummary{
			ID:        a.ID,
			Username:  a.Username,
			FullName:  a.FullName,
			Bio:       a.Bio,
			AvatarRef: a.AvatarRef,
		}
	}
	return summaries, nil
}
