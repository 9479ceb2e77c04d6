package repository

import (
	"context"
	"fmt"
	"time"

	"database/sql"
)

// PostgresFollowRepairRepo はPostgreSQLを使用したフォロー修復ジャーナル。
// ペア書き込みの片側失敗を記録し、修復ワーカーが解決するまで保持する。
type PostgresFollowRepairRepo struct {
	db *sql.DB
}

// NewPostgresFollowRepairRepo はPostgresFollowRepairRepoを生成する。
func NewPostgresFollowRepairRepo(db *sql.DB) *PostgresFollowRepairRepo {
	return &PostgresFollowRepairRepo{db: db}
}

// Create は修復レコードを登録する。
// 同一ペア・同一サイドの既存レコードは最新のアクションで上書きされる。
// 後から来たトグルが古い未修復レコードより優先される。
func (r *PostgresFollowRepairRepo) Create(ctx context.Context, repair *FollowRepair) error {
	// created_atはListPendingの処理順を決めるため、未設定なら現在時刻で補う。
	createdAt := repair.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO follow_repairs (id, follower_id, target_id, action, side, attempts, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
		 ON CONFLICT (follower_id, target_id, side)
		 DO UPDATE SET action = EXCLUDED.action, attempts = 0, updated_at = EXCLUDED.updated_at`,
		repair.ID, repair.FollowerID, repair.TargetID, repair.Action, repair.Side,
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("修復レコードの登録に失敗しました: %w", err)
	}
	return nil
}

// ListPending は未解決の修復レコードを古い順に取得する。
func (r *PostgresFollowRepairRepo) ListPending(ctx context.Context, limit int) ([]*FollowRepair, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, follower_id, target_id, action, side, attempts, created_at, updated_at
		 FROM follow_repairs
		 ORDER BY created_at ASC
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("修復レコード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var repairs []*FollowRepair
	for rows.Next() {
		rep := &FollowRepair{}
		if err := rows.Scan(
			&rep.ID, &rep.FollowerID, &rep.TargetID, &rep.Action, &rep.Side,
			&rep.Attempts, &rep.CreatedAt, &rep.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("修復レコード行の読み取りに失敗しました: %w", err)
		}
		repairs = append(repairs, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("修復レコード結果セットの読み取りに失敗しました: %w", err)
	}
	return repairs, nil
}

// MarkAttempt は試行回数を加算する。
func (r *PostgresFollowRepairRepo) MarkAttempt(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE follow_repairs SET attempts = attempts + 1, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("修復試行回数の更新に失敗しました: %w", err)
	}
	return nil
}

// Delete は解決済みレコードを削除する。
func (r *PostgresFollowRepairRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM follow_repairs WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("修復レコードの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FollowRepairRepository = (*PostgresFollowRepairRepo)(nil)
