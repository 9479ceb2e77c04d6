// Package repair はフォロー関係のペア書き込みで片側だけ失敗した
// レコードを収束させるバックグラウンドワーカーを提供する。
// ティッカー駆動で修復ジャーナルを読み取り、失敗した側の書き込みを
// 再実行して解決済みレコードを削除する。
package repair

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/chirp/internal/repository"
)

// FollowStore はフォロー集合の片側書き込みインターフェース。
// 集合演算のため再実行は冪等。
type FollowStore interface {
	AddFollowing(ctx context.Context, accountID, targetID string) error
	RemoveFollowing(ctx context.Context, accountID, targetID string) error
	AddFollower(ctx context.Context, accountID, followerID string) error
	RemoveFollower(ctx context.Context, accountID, followerID string) error
}

// FollowingInvalidator はフォロー先キャッシュの無効化インターフェース。
// キャッシュ未使用の場合はnilを渡す。
type FollowingInvalidator interface {
	InvalidateFollowing(ctx context.Context, accountID string)
}

// Recorder は修復解決のメトリクス記録インターフェース。
type Recorder interface {
	RecordFollowRepairResolved()
}

// Worker はフォロー修復ジャーナルを処理するワーカー。
// ティッカーで未解決レコードを取得し、semaphoreパターンで
// 最大並列数を制御しながら失敗側の書き込みを再実行する。
type Worker struct {
	repairs        repository.FollowRepairRepository
	accounts       FollowStore
	cache          FollowingInvalidator
	metrics        Recorder
	logger         *slog.Logger
	batchSize      int
	maxConcurrency int
}

// NewWorker はWorkerの新しいインスタンスを生成する。
// batchSizeが0以下の場合は50、maxConcurrencyが0以下の場合は5を使用する。
// cacheとmetricsはnil可。
func NewWorker(
	repairs repository.FollowRepairRepository,
	accounts FollowStore,
	cache FollowingInvalidator,
	metrics Recorder,
	logger *slog.Logger,
	batchSize int,
	maxConcurrency int,
) *Worker {
	if batchSize <= 0 {
		batchSize = 50
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Worker{
		repairs:        repairs,
		accounts:       accounts,
		cache:          cache,
		metrics:        metrics,
		logger:         logger,
		batchSize:      batchSize,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでワーカーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("フォロー修復ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", w.maxConcurrency),
	)

	// 起動直後に1回実行
	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("修復サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("フォロー修復ワーカーを停止しました")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("修復サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は未解決の修復レコードを1回取得し、並列で修復を実行する。
// semaphoreパターンで最大並列数を制御する。
func (w *Worker) RunOnce(ctx context.Context) error {
	start := time.Now()

	pending, err := w.repairs.ListPending(ctx, w.batchSize)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		return nil
	}

	w.logger.Info("修復サイクルを開始します",
		slog.Int("repair_count", len(pending)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, w.maxConcurrency)
	var wg sync.WaitGroup

	for _, rec := range pending {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(r *repository.FollowRepair) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			w.resolve(ctx, r)
		}(rec)
	}

	wg.Wait()

	duration := time.Since(start)
	w.logger.Info("修復サイクルが完了しました",
		slog.Int("repair_count", len(pending)),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// resolve は修復レコード1件を処理する。
// 失敗側の書き込みに成功したらレコードを削除し、失敗したら
// 試行回数を加算して次サイクルに持ち越す。
func (w *Worker) resolve(ctx context.Context, r *repository.FollowRepair) {
	if err := w.execute(ctx, r); err != nil {
		w.logger.Error("フォロー修復の再実行に失敗しました",
			slog.String("repair_id", r.ID),
			slog.String("side", r.Side),
			slog.String("action", r.Action),
			slog.Int("attempts", r.Attempts),
			slog.String("error", err.Error()),
		)
		if markErr := w.repairs.MarkAttempt(ctx, r.ID); markErr != nil {
			w.logger.Error("試行回数の加算に失敗しました",
				slog.String("repair_id", r.ID),
				slog.String("error", markErr.Error()),
			)
		}
		return
	}

	// 書き込みは冪等なので、削除に失敗して次サイクルで
	// 再実行されても安全。
	if err := w.repairs.Delete(ctx, r.ID); err != nil {
		w.logger.Error("解決済みレコードの削除に失敗しました",
			slog.String("repair_id", r.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if r.Side == repository.RepairSideFollowing && w.cache != nil {
		w.cache.InvalidateFollowing(ctx, r.FollowerID)
	}
	if w.metrics != nil {
		w.metrics.RecordFollowRepairResolved()
	}

	w.logger.Info("フォロー修復が解決しました",
		slog.String("repair_id", r.ID),
		slog.String("follower_id", r.FollowerID),
		slog.String("target_id", r.TargetID),
		slog.String("side", r.Side),
	)
}

// execute は失敗した側の書き込みを再実行する。
func (w *Worker) execute(ctx context.Context, r *repository.FollowRepair) error {
	switch r.Side {
	case repository.RepairSideFollowing:
		if r.Action == repository.RepairActionFollow {
			return w.accounts.AddFollowing(ctx, r.FollowerID, r.TargetID)
		}
		return w.accounts.RemoveFollowing(ctx, r.FollowerID, r.TargetID)
	case repository.RepairSideFollowers:
		if r.Action == repository.RepairActionFollow {
			return w.accounts.AddFollower(ctx, r.TargetID, r.FollowerID)
		}
		return w.accounts.RemoveFollower(ctx, r.TargetID, r.FollowerID)
	default:
		return fmt.Errorf("不明な修復サイド: %s", r.Side)
	}
}
