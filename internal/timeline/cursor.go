// Package timeline はホームフィードの組み立てを提供する。
//
// ビューアと全フォロー先のポストを作者バッチごとのファンアウトクエリで
// 取得し、単一の時刻降順・重複排除済みのページにマージする。
// ストレージのin-setクエリは集合幅に上限があるため、作者全集合を
// 固定幅のバッチに分割して並行に問い合わせる。
package timeline

import (
	"time"

	"github.com/hitoshi/chirp/internal/model"
)

// EncodeCursor はページ末尾ポストの作成時刻を不透明なカーソル文字列に変換する。
func EncodeCursor(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// DecodeCursor はカーソル文字列を時刻に復元する。
// 空文字列はフィード先頭を意味し、nilを返す。
// 解釈できないカーソルはInvalidArgumentになる。
func DecodeCursor(cursor string) (*time.Time, error) {
	if cursor == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339Nano, cursor)
	if err != nil {
		// RFC3339でもパースを試みる
		t, err = time.Parse(time.RFC3339, cursor)
		if err != nil {
			return nil, model.NewInvalidArgumentError("無効なカーソル値: " + cursor)
		}
	}
	return &t, nil
}
