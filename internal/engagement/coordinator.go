// Package engagement は楽観的ミューテーション（いいね・リツイート・
// フォローのトグル）の調整を提供する。
//
// トグルはまずローカル状態を同期的に反転し、その後で永続書き込みを行う。
// 書き込みが失敗した場合はローカル状態をスナップショットへ正確に巻き戻す。
// 同一対象への連打は対象単位のミューテックスで直列化され、二重適用を防ぐ。
//
// ローカル状態はプロセス内メモリに保持され、エビクションしない。
// エントリは（種別・対象・アクター）ごとに小さく、寿命はプロセスと同じ。
// Seedされた値は表示時点のスナップショットであり、他プロセスの書き込みは
// 次のSeedまで反映されない。
package engagement

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/chirp/internal/model"
	"github.com/hitoshi/chirp/internal/repository"
)

// Kind はトグル対象の種別。
type Kind string

const (
	KindLike    Kind = "like"
	KindRetweet Kind = "retweet"
	KindFollow  Kind = "follow"
)

// PostEngagementStore はいいね・リツイート集合の永続化インターフェース。
type PostEngagementStore interface {
	AddLiker(ctx context.Context, postID, accountID string) error
	RemoveLiker(ctx context.Context, postID, accountID string) error
	AddRetweeter(ctx context.Context, postID, accountID string) error
	RemoveRetweeter(ctx context.Context, postID, accountID string) error
}

// FollowStore はフォロー関係のペア書き込みインターフェース。
// following側とfollowers側は独立した書き込みで、アトミックではない。
type FollowStore interface {
	AddFollowing(ctx context.Context, accountID, targetID string) error
	RemoveFollowing(ctx context.Context, accountID, targetID string) error
	AddFollower(ctx context.Context, accountID, followerID string) error
	RemoveFollower(ctx context.Context, accountID, followerID string) error
}

// RepairJournal はフォローのペア書き込み片側失敗の記録インターフェース。
type RepairJournal interface {
	Create(ctx context.Context, repair *repository.FollowRepair) error
}

// FollowingInvalidator はフォロー先キャッシュの無効化インターフェース。
// キャッシュ未使用の場合はnilを渡す。
type FollowingInvalidator interface {
	InvalidateFollowing(ctx context.Context, accountID string)
}

// entryKey は楽観的状態1件のキー。
type entryKey struct {
	kind     Kind
	entityID string
	actorID  string
}

// entry はトグル対象1件分のローカル状態。
// opはトグル全体（ローカル反転＋永続書き込み）を直列化し、
// stは状態の読み書きだけを保護する。State読み取りはopを取らないため、
// 書き込み中でも反転済みの値が即座に見える。
type entry struct {
	op sync.Mutex

	st     sync.Mutex
	seeded bool
	active bool
	count  int64
}

func (e *entry) snapshot() (active bool, count int64, seeded bool) {
	e.st.Lock()
	defer e.st.Unlock()
	return e.active, e.count, e.seeded
}

func (e *entry) set(active bool, count int64) {
	e.st.Lock()
	e.active = active
	e.count = count
	e.seeded = true
	e.st.Unlock()
}

// Coordinator は楽観的ミューテーションの調整役。
// 対象ごとのローカル状態を保持し、トグルの直列化・永続書き込み・
// 失敗時の巻き戻しを行う。
type Coordinator struct {
	posts    PostEngagementStore
	accounts FollowStore
	repairs  RepairJournal
	cache    FollowingInvalidator
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.Mutex
	entries map[entryKey]*entry
}

// NewCoordinator はCoordinatorの新しいインスタンスを生成する。
// timeoutは永続書き込み1回あたりの上限で、0以下の場合は15秒を使用する。
// cacheはnil可。
func NewCoordinator(
	posts PostEngagementStore,
	accounts FollowStore,
	repairs RepairJournal,
	cache FollowingInvalidator,
	logger *slog.Logger,
	timeout time.Duration,
) *Coordinator {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Coordinator{
		posts:    posts,
		accounts: accounts,
		repairs:  repairs,
		cache:    cache,
		logger:   logger,
		timeout:  timeout,
		entries:  make(map[entryKey]*entry),
	}
}

func (c *Coordinator) entry(key entryKey) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	return e
}

// Seed は取得済みドキュメントからローカル状態を初期化する。
// すでにトグル済みの状態を古いドキュメントで上書きしないよう、
// 呼び出し側は表示用に読んだ直後に一度だけ呼ぶこと。
func (c *Coordinator) Seed(kind Kind, entityID, actorID string, active bool, count int64) {
	c.entry(entryKey{kind, entityID, actorID}).set(active, count)
}

// State は現在のローカル状態を返す。未初期化の場合はok=falseを返す。
// 永続書き込みの完了を待たずに反転済みの値を返す。
func (c *Coordinator) State(kind Kind, entityID, actorID string) (active bool, count int64, ok bool) {
	active, count, seeded := c.entry(entryKey{kind, entityID, actorID}).snapshot()
	return active, count, seeded
}

// ToggleLike は指定ポストへのいいねをトグルする。
// 戻り値はトグル後のいいね状態。
func (c *Coordinator) ToggleLike(ctx context.Context, postID, actorID string) (bool, error) {
	return c.togglePost(ctx, KindLike, postID, actorID,
		c.posts.AddLiker, c.posts.RemoveLiker)
}

// ToggleRetweet は指定ポストのリツイートをトグルする。
// 戻り値はトグル後のリツイート状態。
func (c *Coordinator) ToggleRetweet(ctx context.Context, postID, actorID string) (bool, error) {
	return c.togglePost(ctx, KindRetweet, postID, actorID,
		c.posts.AddRetweeter, c.posts.RemoveRetweeter)
}

// togglePost はいいね・リツイート共通のトグル手順。
//
// 手順: 対象をロック → ローカル反転 → 永続書き込み → 失敗なら巻き戻し。
// 反転の方向は永続状態ではなくローカル状態から決めるため、連打は
// add/removeが交互になり冗長な永続書き込みが発生しない。
func (c *Coordinator) togglePost(
	ctx context.Context,
	kind Kind,
	postID, actorID string,
	add, remove func(ctx context.Context, postID, accountID string) error,
) (bool, error) {
	if postID == "" || actorID == "" {
		return false, model.NewInvalidArgumentError("ポストIDとアカウントIDは必須です")
	}

	e := c.entry(entryKey{kind, postID, actorID})
	e.op.Lock()
	defer e.op.Unlock()

	prevActive, prevCount, seeded := e.snapshot()
	if !seeded {
		return false, model.NewInvalidArgumentError("トグル対象の状態が初期化されていません")
	}

	nowActive := !prevActive
	newCount := prevCount
	if nowActive {
		newCount++
	} else if newCount > 0 {
		newCount--
	}
	e.set(nowActive, newCount)

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var err error
	if nowActive {
		err = add(tctx, postID, actorID)
	} else {
		err = remove(tctx, postID, actorID)
	}
	if err != nil {
		// スナップショットへ正確に巻き戻す
		e.set(prevActive, prevCount)
		if apiErr, ok := err.(*model.APIError); ok {
			return prevActive, apiErr
		}
		return prevActive, model.NewMutationFailedError(err.Error())
	}
	return nowActive, nil
}

// ToggleFollow はフォロー関係をトグルする。
// following側とfollowers側の2書き込みを並行に行い、片側だけ失敗した
// 場合は失敗側を修復ジャーナルに記録してローカル状態を維持する
// （修復ワーカーが後で収束させる）。両側失敗時のみ巻き戻す。
// 戻り値はトグル後のフォロー状態。
func (c *Coordinator) ToggleFollow(ctx context.Context, followerID, targetID string) (bool, error) {
	if followerID == "" || targetID == "" {
		return false, model.NewInvalidArgumentError("フォロワーIDとターゲットIDは必須です")
	}
	if followerID == targetID {
		return false, model.NewInvalidArgumentError("自分自身はフォローできません")
	}

	e := c.entry(entryKey{KindFollow, targetID, followerID})
	e.op.Lock()
	defer e.op.Unlock()

	prevActive, prevCount, seeded := e.snapshot()
	if !seeded {
		return false, model.NewInvalidArgumentError("トグル対象の状態が初期化されていません")
	}

	nowActive := !prevActive
	newCount := prevCount
	if nowActive {
		newCount++
	} else if newCount > 0 {
		newCount--
	}
	e.set(nowActive, newCount)

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var errFollowing, errFollowers error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if nowActive {
			errFollowing = c.accounts.AddFollowing(tctx, followerID, targetID)
		} else {
			errFollowing = c.accounts.RemoveFollowing(tctx, followerID, targetID)
		}
	}()
	go func() {
		defer wg.Done()
		if nowActive {
			errFollowers = c.accounts.AddFollower(tctx, targetID, followerID)
		} else {
			errFollowers = c.accounts.RemoveFollower(tctx, targetID, followerID)
		}
	}()
	wg.Wait()

	switch {
	case errFollowing == nil && errFollowers == nil:
		c.invalidateFollowing(ctx, followerID)
		return nowActive, nil

	case errFollowing != nil && errFollowers != nil:
		e.set(prevActive, prevCount)
		return prevActive, model.NewMutationFailedError(errFollowing.Error())

	default:
		// 片側成功。失敗側を修復ジャーナルに記録し、ローカル状態は
		// トグル後の値を維持する。
		side := repository.RepairSideFollowing
		if errFollowers != nil {
			side = repository.RepairSideFollowers
		}
		action := repository.RepairActionFollow
		if !nowActive {
			action = repository.RepairActionUnfollow
		}
		c.enqueueRepair(ctx, followerID, targetID, action, side)
		c.invalidateFollowing(ctx, followerID)
		return nowActive, model.NewFollowPartialFailureError(followerID, targetID)
	}
}

// enqueueRepair は片側失敗の修復レコードを登録する。
// 登録自体の失敗は致命ではないためログに残すだけにする。
func (c *Coordinator) enqueueRepair(ctx context.Context, followerID, targetID, action, side string) {
	repair := &repository.FollowRepair{
		ID:         uuid.NewString(),
		FollowerID: followerID,
		TargetID:   targetID,
		Action:     action,
		Side:       side,
		CreatedAt:  time.Now(),
	}

	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	if err := c.repairs.Create(tctx, repair); err != nil && c.logger != nil {
		c.logger.Error("フォロー修復レコードの登録に失敗しました",
			slog.String("follower_id", followerID),
			slog.String("target_id", targetID),
			slog.String("side", side),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) invalidateFollowing(ctx context.Context, accountID string) {
	if c.cache != nil {
		c.cache.InvalidateFollowing(ctx, accountID)
	}
}
