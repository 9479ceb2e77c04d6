// Package search はアカウントの前方一致検索機能を提供する。
//
// 全文検索基盤を持たない代わりに、表示名とユーザー名の全プレフィックスを
// キーワード集合としてアカウントに冗長保存し、検索を単一の集合交差
// クエリに落とし込む。キーワード集合は名前またはユーザー名の変更時に
// 全体を再生成する（差分更新しない）。
package search

import (
	"sort"
	"strings"
)

// maxQueryPrefixLen は検索クエリ側で展開するプレフィックスの最大長。
const maxQueryPrefixLen = 10

// GenerateKeywords は表示名の各トークンとユーザー名の全プレフィックスから
// キーワード集合を生成する。全て小文字化され、重複は除去される。
// 結果は決定的になるようソートして返す。
func GenerateKeywords(fullName, username string) []string {
	set := make(map[string]struct{})

	for _, token := range strings.Fields(strings.ToLower(fullName)) {
		addPrefixes(set, token, 0)
	}
	addPrefixes(set, strings.ToLower(strings.TrimSpace(username)), 0)

	keywords := make([]string, 0, len(set))
	for kw := range set {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	return keywords
}

// QueryPrefixes は検索クエリをプレフィックス集合に展開する。
// 小文字化したクエリの長さ1からmin(10, クエリ長)までのプレフィックスを返す。
// 空白のみのクエリにはnilを返す。
func QueryPrefixes(query string) []string {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return nil
	}

	set := make(map[string]struct{})
	addPrefixes(set, q, maxQueryPrefixLen)

	prefixes := make([]string, 0, len(set))
	for p := range set {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	return prefixes
}

// addPrefixes はwordの全プレフィックス（コードポイント単位）をsetに追加する。
// maxLenが正の場合はその長さまでに制限する。
func addPrefixes(set map[string]struct{}, word string, maxLen int) {
	runes := []rune(word)
	n := len(runes)
	if maxLen > 0 && n > maxLen {
		n = maxLen
	}
	for i := 1; i <= n; i++ {
		set[string(runes[:i])] = struct{}{}
	}
}
