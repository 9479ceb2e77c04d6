// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService はポスト本文やプロフィールの自由入力テキストを
// サニタイズし、XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリの厳格ポリシーで、HTMLタグを一切通過させない。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はユーザー入力テキストのサニタイズ機能の
// インターフェースを定義する。ポスト・リプライ・bioの保存前に使用される。
type TextSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去した平文を返す。
	// scriptタグやon*イベント属性を含むマークアップは痕跡なく消える。
	// 前後の空白は取り除かれる。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// ポストは平文のみを扱うため、許可タグゼロのStrictPolicyを使用する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去した平文を返す。
// bluemondayはタグ除去後のテキストをエンティティ参照にエスケープするが、
// 保存するのは平文なので参照を文字に戻す（"&amp;" → "&"）。
func (s *textSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
