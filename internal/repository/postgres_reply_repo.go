package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/chirp/internal/model"
)

// PostgresReplyRepo はPostgreSQLを使用したリプライリポジトリ。
type PostgresReplyRepo struct {
	db *sql.DB
}

// NewPostgresReplyRepo はPostgresReplyRepoを生成する。
func NewPostgresReplyRepo(db *sql.DB) *PostgresReplyRepo {
	return &PostgresReplyRepo{db: db}
}

// CreateWithCount はリプライの挿入と親ポストのreply_count加算を
// 単一トランザクションで行う。どちらかが失敗した場合は両方ロールバックされる。
func (r *PostgresReplyRepo) CreateWithCount(ctx context.Context, reply *model.Reply) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE posts SET reply_count = reply_count + 1 WHERE id = $1`,
		reply.PostID,
	)
	if err != nil {
		return fmt.Errorf("リプライ数の更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("リプライ数の更新結果の確認に失敗しました: %w", err)
	}
	if n == 0 {
		return model.NewPostNotFoundError(reply.PostID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO replies (id, post_id, author_id, author_name, author_username, text, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reply.ID, reply.PostID, reply.AuthorID, reply.AuthorName, reply.AuthorUsername,
		reply.Text, reply.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("リプライの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("リプライ作成のコミットに失敗しました: %w", err)
	}
	return nil
}

// ListByPost は指定ポストのリプライをcreated_at昇順で取得する。
func (r *PostgresReplyRepo) ListByPost(ctx context.Context, postID string, limit int) ([]*model.Reply, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, post_id, author_id, author_name, author_username, text, created_at
		 FROM replies
		 WHERE post_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2`,
		postID, limit)
	if err != nil {
		return nil, fmt.Errorf("リプライ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var replies []*model.Reply
	for rows.Next() {
		rep := &model.Reply{}
		if err := rows.Scan(
			&rep.ID, &rep.PostID, &rep.AuthorID, &rep.AuthorName, &rep.AuthorUsername,
			&rep.Text, &rep.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("リプライ行の読み取りに失敗しました: %w", err)
		}
		replies = append(replies, rep)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リプライ結果セットの読み取りに失敗しました: %w", err)
	}
	return replies, nil
}

// compile-time interface check
var _ ReplyRepository = (*PostgresReplyRepo)(nil)
