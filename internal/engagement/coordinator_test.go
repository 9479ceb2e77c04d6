package engagement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/hitoshi/chirp/internal/model"
	"github.com/hitoshi/chirp/internal/repository"
)

// mockPostStore はテスト用のPostEngagementStoreモック。
type mockPostStore struct {
	mu    sync.Mutex
	calls []string

	addLikerFn      func(ctx context.Context, postID, accountID string) error
	removeLikerFn   func(ctx context.Context, postID, accountID string) error
	addRetweeterFn  func(ctx context.Context, postID, accountID string) error
	removeRetweetFn func(ctx context.Context, postID, accountID string) error
}

func (m *mockPostStore) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockPostStore) AddLiker(ctx context.Context, postID, accountID string) error {
	m.record("AddLiker")
	if m.addLikerFn != nil {
		return m.addLikerFn(ctx, postID, accountID)
	}
	return nil
}

func (m *mockPostStore) RemoveLiker(ctx context.Context, postID, accountID string) error {
	m.record("RemoveLiker")
	if m.removeLikerFn != nil {
		return m.removeLikerFn(ctx, postID, accountID)
	}
	return nil
}

func (m *mockPostStore) AddRetweeter(ctx context.Context, postID, accountID string) error {
	m.record("AddRetweeter")
	if m.addRetweeterFn != nil {
		return m.addRetweeterFn(ctx, postID, accountID)
	}
	return nil
}

func (m *mockPostStore) RemoveRetweeter(ctx context.Context, postID, accountID string) error {
	m.record("RemoveRetweeter")
	if m.removeRetweetFn != nil {
		return m.removeRetweetFn(ctx, postID, accountID)
	}
	return nil
}

// mockFollowStore はテスト用のFollowStoreモック。
type mockFollowStore struct {
	addFollowingFn    func(ctx context.Context, accountID, targetID string) error
	removeFollowingFn func(ctx context.Context, accountID, targetID string) error
	addFollowerFn     func(ctx context.Context, accountID, followerID string) error
	removeFollowerFn  func(ctx context.Context, accountID, followerID string) error
}

func (m *mockFollowStore) AddFollowing(ctx context.Context, accountID, targetID string) error {
	if m.addFollowingFn != nil {
		return m.addFollowingFn(ctx, accountID, targetID)
	}
	return nil
}

func (m *mockFollowStore) RemoveFollowing(ctx context.Context, accountID, targetID string) error {
	if m.removeFollowingFn != nil {
		return m.removeFollowingFn(ctx, accountID, targetID)
	}
	return nil
}

func (m *mockFollowStore) AddFollower(ctx context.Context, accountID, followerID string) error {
	if m.addFollowerFn != nil {
		return m.addFollowerFn(ctx, accountID, followerID)
	}
	return nil
}

func (m *mockFollowStore) RemoveFollower(ctx context.Context, accountID, followerID string) error {
	if m.removeFollowerFn != nil {
		return m.removeFollowerFn(ctx, accountID, followerID)
	}
	return nil
}

// mockRepairJournal はテスト用のRepairJournalモック。
type mockRepairJournal struct {
	mu      sync.Mutex
	created []*repository.FollowRepair
}

func (m *mockRepairJournal) Create(_ context.Context, repair *repository.FollowRepair) error {
	m.mu.Lock()
	m.created = append(m.created, repair)
	m.mu.Unlock()
	return nil
}

func newTestCoordinator(posts *mockPostStore, accounts *mockFollowStore, repairs *mockRepairJournal) *Coordinator {
	if posts == nil {
		posts = &mockPostStore{}
	}
	if accounts == nil {
		accounts = &mockFollowStore{}
	}
	if repairs == nil {
		repairs = &mockRepairJournal{}
	}
	return NewCoordinator(posts, accounts, repairs, nil, nil, 0)
}

// トグルでローカル状態が即座に反転し、永続書き込みが行われることをテストする
func TestCoordinator_ToggleLike_FlipsStateAndCount(t *testing.T) {
	posts := &mockPostStore{}
	c := newTestCoordinator(posts, nil, nil)
	c.Seed(KindLike, "post-1", "acc-1", false, 3)

	nowActive, err := c.ToggleLike(context.Background(), "post-1", "acc-1")
	if err != nil {
		t.Fatalf("ToggleLike returned error: %v", err)
	}
	if !nowActive {
		t.Error("nowActive = false, want true")
	}

	active, count, ok := c.State(KindLike, "post-1", "acc-1")
	if !ok || !active || count != 4 {
		t.Errorf("state = (%v, %d, %v), want (true, 4, true)", active, count, ok)
	}
	if len(posts.calls) != 1 || posts.calls[0] != "AddLiker" {
		t.Errorf("store calls = %v, want [AddLiker]", posts.calls)
	}
}

// 2回トグルすると元の状態に戻り、add→removeの順で書き込まれることをテストする
func TestCoordinator_ToggleLike_RoundTrip(t *testing.T) {
	posts := &mockPostStore{}
	c := newTestCoordinator(posts, nil, nil)
	c.Seed(KindLike, "post-1", "acc-1", false, 3)

	if _, err := c.ToggleLike(context.Background(), "post-1", "acc-1"); err != nil {
		t.Fatalf("first toggle returned error: %v", err)
	}
	if _, err := c.ToggleLike(context.Background(), "post-1", "acc-1"); err != nil {
		t.Fatalf("second toggle returned error: %v", err)
	}

	active, count, _ := c.State(KindLike, "post-1", "acc-1")
	if active || count != 3 {
		t.Errorf("state = (%v, %d), want (false, 3)", active, count)
	}
	if len(posts.calls) != 2 || posts.calls[0] != "AddLiker" || posts.calls[1] != "RemoveLiker" {
		t.Errorf("store calls = %v, want [AddLiker RemoveLiker]", posts.calls)
	}
}

// 永続書き込み失敗時にローカル状態がスナップショットへ巻き戻ることをテストする
func TestCoordinator_ToggleLike_RollbackOnFailure(t *testing.T) {
	posts := &mockPostStore{
		addLikerFn: func(_ context.Context, _, _ string) error {
			return errors.New("write timeout")
		},
	}
	c := newTestCoordinator(posts, nil, nil)
	c.Seed(KindLike, "post-1", "acc-1", false, 3)

	nowActive, err := c.ToggleLike(context.Background(), "post-1", "acc-1")
	if err == nil {
		t.Fatal("ToggleLike should return error")
	}
	if nowActive {
		t.Error("nowActive = true, want false after rollback")
	}

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != "MUTATION_FAILED" {
		t.Errorf("error code = %s, want MUTATION_FAILED", apiErr.Code)
	}

	active, count, _ := c.State(KindLike, "post-1", "acc-1")
	if active || count != 3 {
		t.Errorf("state = (%v, %d), want rollback to (false, 3)", active, count)
	}
}

// ポスト不在エラーがそのまま伝播することをテストする
func TestCoordinator_ToggleLike_PropagatesNotFound(t *testing.T) {
	posts := &mockPostStore{
		addLikerFn: func(_ context.Context, postID, _ string) error {
			return model.NewPostNotFoundError(postID)
		},
	}
	c := newTestCoordinator(posts, nil, nil)
	c.Seed(KindLike, "ghost", "acc-1", false, 0)

	_, err := c.ToggleLike(context.Background(), "ghost", "acc-1")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != "POST_NOT_FOUND" {
		t.Errorf("error code = %s, want POST_NOT_FOUND", apiErr.Code)
	}
}

// 未初期化の対象へのトグルがINVALID_ARGUMENTになることをテストする
func TestCoordinator_Toggle_Unseeded(t *testing.T) {
	c := newTestCoordinator(nil, nil, nil)

	_, err := c.ToggleLike(context.Background(), "post-1", "acc-1")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != "INVALID_ARGUMENT" {
		t.Errorf("error code = %s, want INVALID_ARGUMENT", apiErr.Code)
	}
}

// 連打が直列化され、偶数回のトグルで状態と書き込み回数が均衡することをテストする
func TestCoordinator_ToggleLike_ConcurrentDoubleTap(t *testing.T) {
	posts := &mockPostStore{}
	c := newTestCoordinator(posts, nil, nil)
	c.Seed(KindLike, "post-1", "acc-1", false, 0)

	const taps = 10
	var wg sync.WaitGroup
	for i := 0; i < taps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ToggleLike(context.Background(), "post-1", "acc-1"); err != nil {
				t.Errorf("ToggleLike returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	active, count, _ := c.State(KindLike, "post-1", "acc-1")
	if active || count != 0 {
		t.Errorf("state = (%v, %d), want net-zero (false, 0)", active, count)
	}

	adds, removes := 0, 0
	for _, call := range posts.calls {
		switch call {
		case "AddLiker":
			adds++
		case "RemoveLiker":
			removes++
		}
	}
	if adds != taps/2 || removes != taps/2 {
		t.Errorf("adds = %d, removes = %d, want %d each", adds, removes, taps/2)
	}
}

// リツイートのトグルがリツイート集合を更新することをテストする
func TestCoordinator_ToggleRetweet(t *testing.T) {
	posts := &mockPostStore{}
	c := newTestCoordinator(posts, nil, nil)
	c.Seed(KindRetweet, "post-1", "acc-1", true, 5)

	nowActive, err := c.ToggleRetweet(context.Background(), "post-1", "acc-1")
	if err != nil {
		t.Fatalf("ToggleRetweet returned error: %v", err)
	}
	if nowActive {
		t.Error("nowActive = true, want false")
	}

	_, count, _ := c.State(KindRetweet, "post-1", "acc-1")
	if count != 4 {
		t.Errorf("count = %d, want 4", count)
	}
	if len(posts.calls) != 1 || posts.calls[0] != "RemoveRetweeter" {
		t.Errorf("store calls = %v, want [RemoveRetweeter]", posts.calls)
	}
}

// フォロートグルで両側の書き込みが成功することをテストする
func TestCoordinator_ToggleFollow_Success(t *testing.T) {
	var gotFollowing, gotFollower bool
	accounts := &mockFollowStore{
		addFollowingFn: func(_ context.Context, accountID, targetID string) error {
			if accountID == "follower" && targetID == "target" {
				gotFollowing = true
			}
			return nil
		},
		addFollowerFn: func(_ context.Context, accountID, followerID string) error {
			if accountID == "target" && followerID == "follower" {
				gotFollower = true
			}
			return nil
		},
	}
	c := newTestCoordinator(nil, accounts, nil)
	c.Seed(KindFollow, "target", "follower", false, 10)

	nowActive, err := c.ToggleFollow(context.Background(), "follower", "target")
	if err != nil {
		t.Fatalf("ToggleFollow returned error: %v", err)
	}
	if !nowActive {
		t.Error("nowActive = false, want true")
	}
	if !gotFollowing || !gotFollower {
		t.Errorf("writes = (following=%v, followers=%v), want both", gotFollowing, gotFollower)
	}

	_, count, _ := c.State(KindFollow, "target", "follower")
	if count != 11 {
		t.Errorf("follower count = %d, want 11", count)
	}
}

// 片側失敗時に失敗側が修復ジャーナルへ記録され、ローカル状態が
// トグル後の値を維持することをテストする
func TestCoordinator_ToggleFollow_PartialFailureEnqueuesRepair(t *testing.T) {
	accounts := &mockFollowStore{
		addFollowerFn: func(_ context.Context, _, _ string) error {
			return errors.New("write timeout")
		},
	}
	repairs := &mockRepairJournal{}
	c := newTestCoordinator(nil, accounts, repairs)
	c.Seed(KindFollow, "target", "follower", false, 10)

	nowActive, err := c.ToggleFollow(context.Background(), "follower", "target")

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != "FOLLOW_PARTIAL_FAILURE" {
		t.Errorf("error code = %s, want FOLLOW_PARTIAL_FAILURE", apiErr.Code)
	}
	if !nowActive {
		t.Error("nowActive = false, want true (state kept for repair)")
	}

	active, _, _ := c.State(KindFollow, "target", "follower")
	if !active {
		t.Error("local state rolled back, want kept")
	}

	if len(repairs.created) != 1 {
		t.Fatalf("repair count = %d, want 1", len(repairs.created))
	}
	repair := repairs.created[0]
	if repair.FollowerID != "follower" || repair.TargetID != "target" {
		t.Errorf("repair pair = (%s, %s), want (follower, target)", repair.FollowerID, repair.TargetID)
	}
	if repair.Action != repository.RepairActionFollow {
		t.Errorf("repair action = %s, want %s", repair.Action, repository.RepairActionFollow)
	}
	if repair.Side != repository.RepairSideFollowers {
		t.Errorf("repair side = %s, want %s", repair.Side, repository.RepairSideFollowers)
	}
	// ListPendingはcreated_at昇順で処理するため、登録時刻が必須。
	if repair.CreatedAt.IsZero() {
		t.Error("repair CreatedAt is zero, want set at enqueue time")
	}
}

// 両側失敗時にローカル状態が巻き戻り、修復レコードが作られないことをテストする
func TestCoordinator_ToggleFollow_BothFailRollsBack(t *testing.T) {
	accounts := &mockFollowStore{
		addFollowingFn: func(_ context.Context, _, _ string) error {
			return errors.New("down")
		},
		addFollowerFn: func(_ context.Context, _, _ string) error {
			return errors.New("down")
		},
	}
	repairs := &mockRepairJournal{}
	c := newTestCoordinator(nil, accounts, repairs)
	c.Seed(KindFollow, "target", "follower", false, 10)

	nowActive, err := c.ToggleFollow(context.Background(), "follower", "target")

	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != "MUTATION_FAILED" {
		t.Errorf("error code = %s, want MUTATION_FAILED", apiErr.Code)
	}
	if nowActive {
		t.Error("nowActive = true, want false after rollback")
	}

	active, count, _ := c.State(KindFollow, "target", "follower")
	if active || count != 10 {
		t.Errorf("state = (%v, %d), want rollback to (false, 10)", active, count)
	}
	if len(repairs.created) != 0 {
		t.Errorf("repair count = %d, want 0", len(repairs.created))
	}
}

// 自分自身のフォローがINVALID_ARGUMENTになることをテストする
func TestCoordinator_ToggleFollow_SelfFollow(t *testing.T) {
	c := newTestCoordinator(nil, nil, nil)

	_, err := c.ToggleFollow(context.Background(), "acc-1", "acc-1")
	apiErr, ok := err.(*model.APIError)
	if !ok {
		t.Fatalf("error type = %T, want *model.APIError", err)
	}
	if apiErr.Code != "INVALID_ARGUMENT" {
		t.Errorf("error code = %s, want INVALID_ARGUMENT", apiErr.Code)
	}
}

// アンフォロー時のカウントが0未満にならないことをテストする
func TestCoordinator_ToggleFollow_CountClampedAtZero(t *testing.T) {
	c := newTestCoordinator(nil, nil, nil)
	c.Seed(KindFollow, "target", "follower", true, 0)

	if _, err := c.ToggleFollow(context.Background(), "follower", "target"); err != nil {
		t.Fatalf("ToggleFollow returned error: %v", err)
	}

	_, count, _ := c.State(KindFollow, "target", "follower")
	if count != 0 {
		t.Errorf("count = %d, want clamped at 0", count)
	}
}

// Seedが状態を上書きし、Stateが未初期化にok=falseを返すことをテストする
func TestCoordinator_SeedAndState(t *testing.T) {
	c := newTestCoordinator(nil, nil, nil)

	if _, _, ok := c.State(KindLike, "post-1", "acc-1"); ok {
		t.Error("State ok = true for unseeded entry, want false")
	}

	c.Seed(KindLike, "post-1", "acc-1", true, 7)
	active, count, ok := c.State(KindLike, "post-1", "acc-1")
	if !ok || !active || count != 7 {
		t.Errorf("state = (%v, %d, %v), want (true, 7, true)", active, count, ok)
	}
}
