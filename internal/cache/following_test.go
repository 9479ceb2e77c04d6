package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCache(t *testing.T) (*FollowingCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewFollowingCache(client, time.Minute, nil), mr
}

// Set後のGetで同じID集合が返ることをテストする
func TestFollowingCache_SetAndGet(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	want := []string{"acc-2", "acc-3"}
	c.SetFollowing(ctx, "acc-1", want)

	got, ok := c.GetFollowing(ctx, "acc-1")
	if !ok {
		t.Fatal("GetFollowing ok = false, want cache hit")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ids = %v, want %v", got, want)
	}
}

// 未キャッシュのアカウントにok=falseが返ることをテストする
func TestFollowingCache_Miss(t *testing.T) {
	c, _ := newTestCache(t)

	if _, ok := c.GetFollowing(context.Background(), "ghost"); ok {
		t.Error("GetFollowing ok = true for uncached account, want false")
	}
}

// 空集合もキャッシュヒットとして扱われることをテストする
func TestFollowingCache_EmptySetIsAHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetFollowing(ctx, "acc-1", nil)

	got, ok := c.GetFollowing(ctx, "acc-1")
	if !ok {
		t.Fatal("GetFollowing ok = false, want hit for cached empty set")
	}
	if len(got) != 0 {
		t.Errorf("ids = %v, want empty", got)
	}
}

// Invalidate後にキャッシュミスになることをテストする
func TestFollowingCache_Invalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.SetFollowing(ctx, "acc-1", []string{"acc-2"})
	c.InvalidateFollowing(ctx, "acc-1")

	if _, ok := c.GetFollowing(ctx, "acc-1"); ok {
		t.Error("GetFollowing ok = true after invalidation, want false")
	}
}

// TTL経過後にキャッシュが失効することをテストする
func TestFollowingCache_Expires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	c.SetFollowing(ctx, "acc-1", []string{"acc-2"})
	mr.FastForward(2 * time.Minute)

	if _, ok := c.GetFollowing(ctx, "acc-1"); ok {
		t.Error("GetFollowing ok = true after TTL, want false")
	}
}

// Redis接続断でパニックせずミスとして扱われることをテストする
func TestFollowingCache_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewFollowingCache(client, time.Minute, nil)
	mr.Close()

	c.SetFollowing(context.Background(), "acc-1", []string{"acc-2"})
	if _, ok := c.GetFollowing(context.Background(), "acc-1"); ok {
		t.Error("GetFollowing ok = true with redis down, want false")
	}
}
