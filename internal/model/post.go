// Package model はドメインモデルを定義する。
package model

import "time"

// MaxPostTextLen はポスト本文の最大文字数（コードポイント数）。
const MaxPostTextLen = 280

// Post は投稿を表す。
// 作者の表示名/ユーザー名は作成時点のスナップショットで、ライブ結合しない。
// カウンタと対応するIDセットは常に一致する（count == len(set)）。
// この不変条件の維持が楽観的ミューテーションの要になる。
type Post struct {
	ID             string
	AuthorID       string
	AuthorName     string // 作成時スナップショット
	AuthorUsername string // 作成時スナップショット
	Text           string
	ImageRef       string      // 任意
	Quoted         *QuotedPost // 任意、引用時点で凍結
	LikeCount      int64
	RetweetCount   int64
	ReplyCount     int64
	LikerIDs       []string
	RetweeterIDs   []string
	CreatedAt      time.Time
}

// IsLikedBy は指定アカウントがこのポストをいいね済みかを返す。
func (p *Post) IsLikedBy(accountID string) bool {
	return containsID(p.LikerIDs, accountID)
}

// IsRetweetedBy は指定アカウントがこのポストをリツイート済みかを返す。
func (p *Post) IsRetweetedBy(accountID string) bool {
	return containsID(p.RetweeterIDs, accountID)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// QuotedPost は引用ポストのスナップショットを表す。
// 引用時点の内容で凍結され、元ポストの後続変更を反映しない。
type QuotedPost struct {
	PostID         string
	AuthorName     string
	AuthorUsername string
	Text           string
	ImageRef       string
}

// Reply はポストに紐づくコメントを表す。
// 作成時は親ポストのReplyCountのインクリメントと同一トランザクションで
// 永続化される（all-or-nothing）。
type Reply struct {
	ID             string
	PostID         string
	AuthorID       string
	AuthorName     string
	AuthorUsername string
	Text           string
	CreatedAt      time.Time
}
