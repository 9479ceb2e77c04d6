package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/chirp/internal/model"
)

// PostgresPostRepo はPostgreSQLを使用したポストリポジトリ。
// liker_ids / retweeter_ids は text[] カラムで保持し、カウンタは
// 集合更新と同一のUPDATE文で算出する。これによりcount == len(set)の
// 不変条件が並行トグル下でも崩れない。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

const postColumns = `id, author_id, author_name, author_username, text, image_ref,
	quoted_post_id, quoted_author_name, quoted_author_username, quoted_text, quoted_image_ref,
	like_count, retweet_count, reply_count, liker_ids, retweeter_ids, created_at`

// scanPost は1行をPostに読み取る。引用カラムが全てNULLの場合、Quotedはnilになる。
func scanPost(row interface{ Scan(...any) error }) (*model.Post, error) {
	p := &model.Post{}
	var imageRef sql.NullString
	var qPostID, qAuthorName, qAuthorUsername, qText, qImageRef sql.NullString
	err := row.Scan(
		&p.ID, &p.AuthorID, &p.AuthorName, &p.AuthorUsername, &p.Text, &imageRef,
		&qPostID, &qAuthorName, &qAuthorUsername, &qText, &qImageRef,
		&p.LikeCount, &p.RetweetCount, &p.ReplyCount,
		pq.Array(&p.LikerIDs), pq.Array(&p.RetweeterIDs),
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.ImageRef = imageRef.String
	if qPostID.Valid {
		p.Quoted = &model.QuotedPost{
			PostID:         qPostID.String,
			AuthorName:     qAuthorName.String,
			AuthorUsername: qAuthorUsername.String,
			Text:           qText.String,
			ImageRef:       qImageRef.String,
		}
	}
	return p, nil
}

// FindByID は指定IDのポストを取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindByID(ctx context.Context, id string) (*model.Post, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE id = $1`, id)
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ポストの取得に失敗しました: %w", err)
	}
	return p, nil
}

// Create はポストを作成する。
func (r *PostgresPostRepo) Create(ctx context.Context, p *model.Post) error {
	var qPostID, qAuthorName, qAuthorUsername, qText, qImageRef sql.NullString
	if p.Quoted != nil {
		qPostID = sql.NullString{String: p.Quoted.PostID, Valid: true}
		qAuthorName = sql.NullString{String: p.Quoted.AuthorName, Valid: true}
		qAuthorUsername = sql.NullString{String: p.Quoted.AuthorUsername, Valid: true}
		qText = sql.NullString{String: p.Quoted.Text, Valid: true}
		qImageRef = sql.NullString{String: p.Quoted.ImageRef, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO posts
		   (id, author_id, author_name, author_username, text, image_ref,
		    quoted_post_id, quoted_author_name, quoted_author_username, quoted_text, quoted_image_ref,
		    like_count, retweet_count, reply_count, liker_ids, retweeter_ids, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.AuthorID, p.AuthorName, p.AuthorUsername, p.Text, p.ImageRef,
		qPostID, qAuthorName, qAuthorUsername, qText, qImageRef,
		p.LikeCount, p.RetweetCount, p.ReplyCount,
		pq.Array(p.LikerIDs), pq.Array(p.RetweeterIDs),
		p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ポストの作成に失敗しました: %w", err)
	}
	return nil
}

// ListByAuthors は作者集合のポストをcreated_at降順で取得する。
// フィードアセンブラのファンアウト1バッチ分に対応する。
// 作者ID数がMaxAuthorsPerQueryを超える場合はInvalidArgumentを返す。
func (r *PostgresPostRepo) ListByAuthors(ctx context.Context, authorIDs []string, before *time.Time, limit int) ([]*model.Post, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	if len(authorIDs) > MaxAuthorsPerQuery {
		return nil, model.NewInvalidArgumentError(
			fmt.Sprintf("作者ID数が上限を超えています: %d > %d", len(authorIDs), MaxAuthorsPerQuery))
	}

	var rows *sql.Rows
	var err error
	if before != nil {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM posts
			 WHERE author_id = ANY($1) AND created_at < $2
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			pq.Array(authorIDs), *before, limit)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+postColumns+` FROM posts
			 WHERE author_id = ANY($1)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $2`,
			pq.Array(authorIDs), limit)
	}
	if err != nil {
		return nil, fmt.Errorf("ポスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	return collectPosts(rows)
}

// ListByAuthor は単一作者のポストをcreated_at降順・カーソル付きで取得する。
func (r *PostgresPostRepo) ListByAuthor(ctx context.Context, authorID string, before *time.Time, limit int) ([]*model.Post, error) {
	return r.ListByAuthors(ctx, []string{authorID}, before, limit)
}

// AddLiker はいいね集合にaccountIDを追加し、カウンタを同一文で更新する。
func (r *PostgresPostRepo) AddLiker(ctx context.Context, postID, accountID string) error {
	return r.mutateSet(ctx, postID, accountID, "liker_ids", "like_count", true)
}

// RemoveLiker はいいね集合からaccountIDを除去し、カウンタを同一文で更新する。
func (r *PostgresPostRepo) RemoveLiker(ctx context.Context, postID, accountID string) error {
	return r.mutateSet(ctx, postID, accountID, "liker_ids", "like_count", false)
}

// AddRetweeter はリツイート集合にaccountIDを追加する。
func (r *PostgresPostRepo) AddRetweeter(ctx context.Context, postID, accountID string) error {
	return r.mutateSet(ctx, postID, accountID, "retweeter_ids", "retweet_count", true)
}

// RemoveRetweeter はリツイート集合からaccountIDを除去する。
func (r *PostgresPostRepo) RemoveRetweeter(ctx context.Context, postID, accountID string) error {
	return r.mutateSet(ctx, postID, accountID, "retweeter_ids", "retweet_count", false)
}

// mutateSet はID集合カラムとカウンタカラムを単一UPDATE文で更新する。
// カウンタは更新後の集合の要素数として算出するため、count == len(set)が
// 並行トグル下でも保たれる。集合に変化がない場合は0行更新で終わる（冪等）。
// カラム名は固定の2組のみでSQL組み立てに使う。
func (r *PostgresPostRepo) mutateSet(ctx context.Context, postID, accountID, setColumn, countColumn string, add bool) error {
	var stmt string
	if add {
		stmt = fmt.Sprintf(
			`UPDATE posts
			    SET %[1]s = array_append(%[1]s, $2),
			        %[2]s = cardinality(%[1]s) + 1
			  WHERE id = $1 AND NOT $2 = ANY(%[1]s)`, setColumn, countColumn)
	} else {
		stmt = fmt.Sprintf(
			`UPDATE posts
			    SET %[1]s = array_remove(%[1]s, $2),
			        %[2]s = cardinality(%[1]s) - 1
			  WHERE id = $1 AND $2 = ANY(%[1]s)`, setColumn, countColumn)
	}

	res, err := r.db.ExecContext(ctx, stmt, postID, accountID)
	if err != nil {
		return fmt.Errorf("エンゲージメントの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("エンゲージメントの更新結果の確認に失敗しました: %w", err)
	}
	if n == 0 {
		// 既に目的の状態（冪等な重複トグル）か、ポスト不在かを区別する
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM posts WHERE id = $1)`, postID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("ポストの存在確認に失敗しました: %w", err)
		}
		if !exists {
			return model.NewPostNotFoundError(postID)
		}
	}
	return nil
}

// collectPosts は結果セットをPostスライスに変換する。
func collectPosts(rows *sql.Rows) ([]*model.Post, error) {
	var posts []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("ポスト行の読み取りに失敗しました: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ポスト結果セットの読み取りに失敗しました: %w", err)
	}
	return posts, nil
}

// compile-time interface check
var _ PostRepository = (*PostgresPostRepo)(nil)
