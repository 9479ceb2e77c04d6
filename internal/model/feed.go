// Package model はドメインモデルを定義する。
package model

// FeedPage はフィードの1ページを表す派生ビュー。
// 永続化されず、取得のたびに再計算される。
// NextCursorが空文字列の場合、これ以上のページは存在しない。
type FeedPage struct {
	Posts      []*Post
	NextCursor string
	HasMore    bool
}
