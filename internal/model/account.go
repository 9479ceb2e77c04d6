// Package model はドメインモデルを定義する。
package model

import "time"

// Account は登録ユーザーを表す。
// FollowingとFollowersは対称な関係の両側で、フォロー/アンフォロー時に
// ペア書き込みで両方が更新される。順序に意味はない。
// Keywordsは表示名とユーザー名から導出した前方一致検索用の索引で、
// 名前またはユーザー名の変更時に全体を再生成する（差分更新しない）。
type Account struct {
	ID           string
	Username     string // 一意、小文字英数字のみ
	Email        string // 一意、小文字
	FullName     string
	Bio          string
	Phone        string // 任意
	AvatarRef    string // 任意、blobストアの公開参照
	PasswordHash string // bcryptハッシュ
	Following    []string
	Followers    []string
	Keywords     []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// IsFollowing はこのアカウントが指定アカウントをフォローしているかを返す。
func (a *Account) IsFollowing(accountID string) bool {
	for _, id := range a.Following {
		if id == accountID {
			return true
		}
	}
	return false
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	AccountID string
	ExpiresAt time.Time
	CreatedAt time.Time
}
