// Package cache はRedisを使った読み取りキャッシュを提供する。
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// FollowingCache はフォロー先ID集合のRedisキャッシュ。
// フィード組み立てのたびにアカウントドキュメントを読み直すのを避ける。
// キャッシュは純粋な高速化であり、失敗時は常にストア読み取りへ
// フォールバックできるようエラーを返さない。
type FollowingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewFollowingCache はFollowingCacheの新しいインスタンスを生成する。
// ttlが0以下の場合は5分を使用する。
func NewFollowingCache(client *redis.Client, ttl time.Duration, logger *slog.Logger) *FollowingCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &FollowingCache{client: client, ttl: ttl, logger: logger}
}

func followingKey(accountID string) string {
	return fmt.Sprintf("following:%s", accountID)
}

// GetFollowing はキャッシュ済みのフォロー先ID集合を返す。
// 未キャッシュ・デコード不能・Redis障害はすべて(nil, false)として扱う。
// 空集合もキャッシュヒットになる（フォローゼロのアカウントのため）。
func (c *FollowingCache) GetFollowing(ctx context.Context, accountID string) ([]string, bool) {
	data, err := c.client.Get(ctx, followingKey(accountID)).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("フォロー先キャッシュの読み取りに失敗しました",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)
		}
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, false
	}
	return ids, true
}

// SetFollowing はフォロー先ID集合をTTL付きでキャッシュする。
func (c *FollowingCache) SetFollowing(ctx context.Context, accountID string, ids []string) {
	if ids == nil {
		ids = []string{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, followingKey(accountID), payload, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("フォロー先キャッシュの書き込みに失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
}

// InvalidateFollowing はフォロー関係の変更後にキャッシュを破棄する。
func (c *FollowingCache) InvalidateFollowing(ctx context.Context, accountID string) {
	if err := c.client.Del(ctx, followingKey(accountID)).Err(); err != nil && c.logger != nil {
		c.logger.Warn("フォロー先キャッシュの破棄に失敗しました",
			slog.String("account_id", accountID),
			slog.String("error", err.Error()),
		)
	}
}
