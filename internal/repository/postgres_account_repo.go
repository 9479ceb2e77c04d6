package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/chirp/internal/model"
)

// PostgresAccountRepo はPostgreSQLを使用したアカウントリポジトリ。
// following / followers / keywords は text[] カラムで保持し、
// 集合演算（array_append / array_remove）で可換に更新する。
type PostgresAccountRepo struct {
	db *sql.DB
}

// NewPostgresAccountRepo はPostgresAccountRepoを生成する。
func NewPostgresAccountRepo(db *sql.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

const accountColumns = `id, username, email, full_name, bio, phone, avatar_ref,
	password_hash, following, followers, keywords, created_at, updated_at`

// scanAccount は1行をAccountに読み取る。
func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	a := &model.Account{}
	var bio, phone, avatarRef sql.NullString
	err := row.Scan(
		&a.ID, &a.Username, &a.Email, &a.FullName, &bio, &phone, &avatarRef,
		&a.PasswordHash,
		pq.Array(&a.Following), pq.Array(&a.Followers), pq.Array(&a.Keywords),
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Bio = bio.String
	a.Phone = phone.String
	a.AvatarRef = avatarRef.String
	return a, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresAccountRepo) FindByID(ctx context.Context, id string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return a, nil
}

// FindByEmail は小文字化済みメールアドレスでアカウントを検索する。
func (r *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return a, nil
}

// FindByUsername は小文字化済みユーザー名でアカウントを検索する。
func (r *PostgresAccountRepo) FindByUsername(ctx context.Context, username string) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username)
	a, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return a, nil
}

// FindByIDs は指定ID集合のアカウントを取得する。
// ID数はMaxAuthorsPerQueryまで（in-setクエリの幅制限）。
func (r *PostgresAccountRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Account, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if len(ids) > MaxAuthorsPerQuery {
		return nil, model.NewInvalidArgumentError(
			fmt.Sprintf("ID数が上限を超えています: %d > %d", len(ids), MaxAuthorsPerQuery))
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1) ORDER BY full_name ASC`,
		pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("アカウントの一括取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListFollowers は指定アカウントをフォローしているアカウントを取得する。
// following集合にaccountIDを含むアカウントを表示名昇順で返し、
// afterFullNameより後ろから読み進める（名前カーソル）。
func (r *PostgresAccountRepo) ListFollowers(ctx context.Context, accountID, afterFullName string, limit int) ([]*model.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE $1 = ANY(following) AND ($2 = '' OR full_name > $2)
		 ORDER BY full_name ASC
		 LIMIT $3`,
		accountID, afterFullName, limit)
	if err != nil {
		return nil, fmt.Errorf("フォロワー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// Create はアカウントを作成する。
func (r *PostgresAccountRepo) Create(ctx context.Context, a *model.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts
		   (id, username, email, full_name, bio, phone, avatar_ref, password_hash,
		    following, followers, keywords, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.Username, a.Email, a.FullName, a.Bio, a.Phone, a.AvatarRef,
		a.PasswordHash,
		pq.Array(a.Following), pq.Array(a.Followers), pq.Array(a.Keywords),
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateProfile は表示名・bio・電話・アバター参照・キーワード集合を更新する。
// キーワードは全置換する（差分更新しない）。
func (r *PostgresAccountRepo) UpdateProfile(ctx context.Context, a *model.Account) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts
		    SET full_name = $2, bio = $3, phone = $4, avatar_ref = $5,
		        keywords = $6, updated_at = now()
		  WHERE id = $1`,
		a.ID, a.FullName, a.Bio, a.Phone, a.AvatarRef, pq.Array(a.Keywords),
	)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("プロフィールの更新結果の確認に失敗しました: %w", err)
	}
	if n == 0 {
		return model.NewAccountNotFoundError(a.ID)
	}
	return nil
}

// AddFollowing はfollowing集合にtargetIDを追加する。既に含む場合は何もしない。
func (r *PostgresAccountRepo) AddFollowing(ctx context.Context, accountID, targetID string) error {
	return r.mutateSet(ctx, accountID, targetID, "following", true)
}

// RemoveFollowing はfollowing集合からtargetIDを除去する。
func (r *PostgresAccountRepo) RemoveFollowing(ctx context.Context, accountID, targetID string) error {
	return r.mutateSet(ctx, accountID, targetID, "following", false)
}

// AddFollower はfollowers集合にfollowerIDを追加する。既に含む場合は何もしない。
func (r *PostgresAccountRepo) AddFollower(ctx context.Context, accountID, followerID string) error {
	return r.mutateSet(ctx, accountID, followerID, "followers", true)
}

// RemoveFollower はfollowers集合からfollowerIDを除去する。
func (r *PostgresAccountRepo) RemoveFollower(ctx context.Context, accountID, followerID string) error {
	return r.mutateSet(ctx, accountID, followerID, "followers", false)
}

// mutateSet はfollowing/followersいずれかの集合カラムに対する
// 冪等な追加/除去を行う。カラム名は固定2値のみでSQL組み立てに使う。
func (r *PostgresAccountRepo) mutateSet(ctx context.Context, accountID, memberID, column string, add bool) error {
	var stmt string
	if add {
		stmt = fmt.Sprintf(
			`UPDATE accounts
			    SET %[1]s = array_append(%[1]s, $2), updated_at = now()
			  WHERE id = $1 AND NOT $2 = ANY(%[1]s)`, column)
	} else {
		stmt = fmt.Sprintf(
			`UPDATE accounts
			    SET %[1]s = array_remove(%[1]s, $2), updated_at = now()
			  WHERE id = $1 AND $2 = ANY(%[1]s)`, column)
	}

	res, err := r.db.ExecContext(ctx, stmt, accountID, memberID)
	if err != nil {
		return fmt.Errorf("フォロー関係の更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("フォロー関係の更新結果の確認に失敗しました: %w", err)
	}
	if n == 0 {
		// 集合が既に目的の状態か、アカウントが存在しないかを区別する
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("アカウントの存在確認に失敗しました: %w", err)
		}
		if !exists {
			return model.NewAccountNotFoundError(accountID)
		}
	}
	return nil
}

// SearchByKeywords はキーワード集合がプレフィックス集合と交差する
// アカウントを表示名昇順で返す。
func (r *PostgresAccountRepo) SearchByKeywords(ctx context.Context, prefixes []string, limit int) ([]*model.Account, error) {
	if len(prefixes) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE keywords && $1
		 ORDER BY full_name ASC
		 LIMIT $2`,
		pq.Array(prefixes), limit)
	if err != nil {
		return nil, fmt.Errorf("アカウント検索に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// collectAccounts は結果セットをAccountスライスに変換する。
func collectAccounts(rows *sql.Rows) ([]*model.Account, error) {
	var accounts []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("アカウント行の読み取りに失敗しました: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("アカウント結果セットの読み取りに失敗しました: %w", err)
	}
	return accounts, nil
}

// compile-time interface check
var _ AccountRepository = (*PostgresAccountRepo)(nil)
