// Package repository はデータ永続化のインターフェースを定義する。
//
// ストレージはドキュメントストア相当の操作（get / in-set query /
// set-add / set-remove / increment / atomic multi-write）に限定され、
// in-set queryの値集合幅はMaxAuthorsPerQueryを超えられない。
// フィードアセンブラの作者バッチ分割はこの制約に由来する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/chirp/internal/model"
)

// MaxAuthorsPerQuery はin-setクエリで一度に指定できる作者IDの最大数。
// ストレージ側の等価集合フィルタの幅制限に対応する。
const MaxAuthorsPerQuery = 10

// AccountRepository はアカウントデータの永続化インターフェース。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail は小文字化済みメールアドレスでアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// FindByUsername は小文字化済みユーザー名でアカウントを検索する。
	// 見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.Account, error)

	// FindByIDs は指定ID集合のアカウントを取得する。
	// IDはMaxAuthorsPerQuery件まで。存在しないIDは結果から抜ける。
	FindByIDs(ctx context.Context, ids []string) ([]*model.Account, error)

	// ListFollowers は指定アカウントをフォローしているアカウントを
	// 表示名昇順・カーソル（前ページ最後の表示名）付きで取得する。
	ListFollowers(ctx context.Context, accountID, afterFullName string, limit int) ([]*model.Account, error)

	// Create はアカウントを作成する。
	Create(ctx context.Context, account *model.Account) error

	// UpdateProfile は表示名・bio・電話・アバター参照・キーワード集合を更新する。
	// キーワードは部分更新せず全置換する。
	UpdateProfile(ctx context.Context, account *model.Account) error

	// AddFollowing / RemoveFollowing はフォロー関係のフォロワー側
	// （following集合）だけを更新する。集合演算のため冪等。
	AddFollowing(ctx context.Context, accountID, targetID string) error
	RemoveFollowing(ctx context.Context, accountID, targetID string) error

	// AddFollower / RemoveFollower はフォロー関係のターゲット側
	// （followers集合）だけを更新する。集合演算のため冪等。
	AddFollower(ctx context.Context, accountID, followerID string) error
	RemoveFollower(ctx context.Context, accountID, followerID string) error

	// SearchByKeywords はキーワード集合が指定プレフィックス集合と
	// 交差するアカウントを表示名昇順で返す。
	SearchByKeywords(ctx context.Context, prefixes []string, limit int) ([]*model.Account, error)
}

// PostRepository はポストデータの永続化インターフェース。
type PostRepository interface {
	// FindByID は指定IDのポストを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Post, error)

	// Create はポストを作成する。
	Create(ctx context.Context, post *model.Post) error

	// ListByAuthors は作者集合のポストをcreated_at降順で取得する。
	// 作者IDはMaxAuthorsPerQuery件まで（超過はInvalidArgument）。
	// beforeがnilでない場合はcreated_at < before のポストに限定する。
	// これがフィードアセンブラのファンアウト1バッチ分のクエリになる。
	ListByAuthors(ctx context.Context, authorIDs []string, before *time.Time, limit int) ([]*model.Post, error)

	// ListByAuthor は単一作者のポストをcreated_at降順・カーソル付きで取得する。
	// プロフィール画面のポスト一覧用。
	ListByAuthor(ctx context.Context, authorID string, before *time.Time, limit int) ([]*model.Post, error)

	// AddLiker / RemoveLiker はいいね集合とカウンタを同一文で更新する。
	// 集合に変化がない場合は書き込みを行わない（冪等）。
	// ポストが存在しない場合はmodel.APIError(POST_NOT_FOUND)を返す。
	AddLiker(ctx context.Context, postID, accountID string) error
	RemoveLiker(ctx context.Context, postID, accountID string) error

	// AddRetweeter / RemoveRetweeter はリツイート集合とカウンタを
	// 同一文で更新する。セマンティクスはAddLiker/RemoveLikerと同じ。
	AddRetweeter(ctx context.Context, postID, accountID string) error
	RemoveRetweeter(ctx context.Context, postID, accountID string) error
}

// ReplyRepository はリプライデータの永続化インターフェース。
type ReplyRepository interface {
	// CreateWithCount はリプライの挿入と親ポストのreply_count加算を
	// 単一トランザクションで行う（all-or-nothing）。
	// 親ポストが存在しない場合はmodel.APIError(POST_NOT_FOUND)を返す。
	CreateWithCount(ctx context.Context, reply *model.Reply) error

	// ListByPost は指定ポストのリプライをcreated_at昇順で取得する。
	ListByPost(ctx context.Context, postID string, limit int) ([]*model.Reply, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByAccountID は指定アカウントの全セッションを削除する。
	DeleteByAccountID(ctx context.Context, accountID string) error
}

// FollowRepair はフォロー関係のペア書き込みで片側だけ失敗した記録を表す。
// Sideは失敗した側（"following" = フォロワー側の集合、"followers" = ターゲット側の集合）。
// Actionは"follow"または"unfollow"。
type FollowRepair struct {
	ID         string
	FollowerID string
	TargetID   string
	Action     string
	Side       string
	Attempts   int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// フォロー修復レコードの定数値。
const (
	RepairActionFollow   = "follow"
	RepairActionUnfollow = "unfollow"
	RepairSideFollowing  = "following"
	RepairSideFollowers  = "followers"
)

// FollowRepairRepository はフォロー修復ジャーナルの永続化インターフェース。
type FollowRepairRepository interface {
	// Create は修復レコードを登録する。同一ペア・同一サイドの重複登録は上書きする。
	Create(ctx context.Context, repair *FollowRepair) error
	// ListPending は未解決の修復レコードを古い順に取得する。
	ListPending(ctx context.Context, limit int) ([]*FollowRepair, error)
	// MarkAttempt は試行回数を加算する。
	MarkAttempt(ctx context.Context, id string) error
	// Delete は解決済みレコードを削除する。
	Delete(ctx context.Context, id string) error
}
