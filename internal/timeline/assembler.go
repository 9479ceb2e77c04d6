package timeline

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/chirp/internal/model"
	"github.com/hitoshi/chirp/internal/repository"
)

// AccountFinder はビューア解決に必要なリポジトリ操作のインターフェース。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// PostBatcher はファンアウトクエリ1バッチ分の取得インターフェース。
type PostBatcher interface {
	ListByAuthors(ctx context.Context, authorIDs []string, before *time.Time, limit int) ([]*model.Post, error)
}

// FollowingCache はフォロー先ID集合のキャッシュインターフェース。
// キャッシュ未使用の場合はnilを渡す。
type FollowingCache interface {
	// GetFollowing はキャッシュ済みのフォロー先ID集合を返す。
	// 未キャッシュの場合は(nil, false)を返す。
	GetFollowing(ctx context.Context, accountID string) ([]string, bool)
	// SetFollowing はフォロー先ID集合をキャッシュする。
	SetFollowing(ctx context.Context, accountID string, ids []string)
}

// Metrics はフィード組み立てのメトリクス記録インターフェース。
// 未使用の場合はnilを渡す。
type Metrics interface {
	RecordFeedAssembly(duration time.Duration, batchCount int)
	RecordFeedFailure()
}

// DefaultPageSize はフィード1ページのデフォルト件数。
const DefaultPageSize = 10

// Assembler はビューアとフォロー先のポストから時刻降順のフィードページを
// 組み立てる。バッチクエリは並行実行され（fire all, await all）、
// 1つでも失敗した場合は部分結果を返さずFeedUnavailableになる。
type Assembler struct {
	accounts AccountFinder
	posts    PostBatcher
	cache    FollowingCache
	metrics  Metrics
	timeout  time.Duration
}

// NewAssembler はAssemblerの新しいインスタンスを生成する。
// timeoutはストレージ呼び出し1回あたりの上限で、0以下の場合は15秒を使用する。
// cacheとmetricsはnil可。
func NewAssembler(
	accounts AccountFinder,
	posts PostBatcher,
	cache FollowingCache,
	metrics Metrics,
	timeout time.Duration,
) *Assembler {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Assembler{
		accounts: accounts,
		posts:    posts,
		cache:    cache,
		metrics:  metrics,
		timeout:  timeout,
	}
}

// batchResult はファンアウトクエリ1バッチ分の結果。
// fullはバッチがlimit件ちょうど返した（＝カーソル以深にまだ残っている
// 可能性がある）ことを示す。
type batchResult struct {
	posts []*model.Post
	full  bool
	err   error
}

// GetFeed はビューアのフィード1ページを組み立てて返す。
// cursorは前ページ末尾ポストの作成時刻（空文字列はフィード先頭）。
// limitが1未満の場合はDefaultPageSizeを使用する。
func (a *Assembler) GetFeed(ctx context.Context, viewerID, cursor string, limit int) (*model.FeedPage, error) {
	if viewerID == "" {
		return nil, model.NewInvalidArgumentError("ビューアIDは必須です")
	}
	if limit < 1 {
		limit = DefaultPageSize
	}

	before, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	start := time.Now()

	// 1. ビューアの存在確認とフォロー先集合の解決
	authorIDs, err := a.resolveAuthors(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	// 2. 作者集合を固定幅のバッチに分割し、並行に問い合わせる
	batches := chunkAuthors(authorIDs, repository.MaxAuthorsPerQuery)
	results := make([]batchResult, len(batches))

	var wg sync.WaitGroup
	for i, batch := range batches {
		wg.Add(1)
		go func(idx int, ids []string) {
			defer wg.Done()
			results[idx] = a.fetchBatch(ctx, ids, before, limit)
		}(i, batch)
	}
	wg.Wait()

	// 3. 1バッチでも失敗した場合は部分結果を破棄してFeedUnavailable。
	//    フォロー先の一部だけが欠けたフィードを黙って返すのは正しさの
	//    違反であり、劣化運転ではない。
	for _, res := range results {
		if res.err != nil {
			if a.metrics != nil {
				a.metrics.RecordFeedFailure()
			}
			return nil, model.NewFeedUnavailableError(res.err.Error())
		}
	}

	// 4. マージ: ID重複を除去し、作成時刻降順・ID降順タイブレークで整列
	page := mergeBatches(results, limit)

	if a.metrics != nil {
		a.metrics.RecordFeedAssembly(time.Since(start), len(batches))
	}
	return page, nil
}

// resolveAuthors はビューア自身とフォロー先を合わせた作者ID集合を返す。
// フォロー先はキャッシュ優先で解決し、ミス時はアカウントドキュメントの
// following集合を読んでキャッシュに書き戻す。
func (a *Assembler) resolveAuthors(ctx context.Context, viewerID string) ([]string, error) {
	tctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	viewer, err := a.accounts.FindByID(tctx, viewerID)
	if err != nil {
		return nil, model.NewFeedUnavailableError(err.Error())
	}
	if viewer == nil {
		return nil, model.NewAccountNotFoundError(viewerID)
	}

	following := viewer.Following
	if a.cache != nil {
		if cached, ok := a.cache.GetFollowing(ctx, viewerID); ok {
			following = cached
		} else {
			a.cache.SetFollowing(ctx, viewerID, viewer.Following)
		}
	}

	// ビューア自身を先頭に、重複を除去する
	seen := make(map[string]struct{}, len(following)+1)
	authorIDs := make([]string, 0, len(following)+1)
	seen[viewerID] = struct{}{}
	authorIDs = append(authorIDs, viewerID)
	for _, id := range following {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		authorIDs = append(authorIDs, id)
	}
	return authorIDs, nil
}

// fetchBatch はファンアウトクエリ1バッチ分を実行する。
// 呼び出しは固定タイムアウトで打ち切られ、失敗として扱われる。
func (a *Assembler) fetchBatch(ctx context.Context, authorIDs []string, before *time.Time, limit int) batchResult {
	tctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	posts, err := a.posts.ListByAuthors(tctx, authorIDs, before, limit)
	if err != nil {
		return batchResult{err: err}
	}
	return batchResult{posts: posts, full: len(posts) >= limit}
}

// mergeBatches は全バッチの結果を単一ページに統合する。
//
// 「これ以上ない」判定はバッチ単位で行う: 切り詰め後のページ件数ではなく、
// 統合結果がlimit未満かつ全バッチがlimit未満を返した場合にのみ
// 終端とみなす。あるバッチが尽きても別のバッチに同カーソル以深の
// 古いポストが残っている可能性があるため。
func mergeBatches(results []batchResult, limit int) *model.FeedPage {
	seen := make(map[string]struct{})
	var union []*model.Post
	anyFull := false

	for _, res := range results {
		if res.full {
			anyFull = true
		}
		for _, p := range res.posts {
			if _, ok := seen[p.ID]; ok {
				// 同一レコードの再出現は無視する
				continue
			}
			seen[p.ID] = struct{}{}
			union = append(union, p)
		}
	}

	// 作成時刻降順。時刻衝突時はID降順で全順序を保証し、
	// ページ境界でのスキップ/重複を防ぐ。
	sort.Slice(union, func(i, j int) bool {
		if !union[i].CreatedAt.Equal(union[j].CreatedAt) {
			return union[i].CreatedAt.After(union[j].CreatedAt)
		}
		return union[i].ID > union[j].ID
	})

	hasMore := anyFull || len(union) >= limit

	if len(union) > limit {
		union = union[:limit]
	}

	page := &model.FeedPage{Posts: union, HasMore: hasMore}
	if hasMore && len(union) > 0 {
		page.NextCursor = EncodeCursor(union[len(union)-1].CreatedAt)
	}
	return page
}

// chunkAuthors は作者ID集合を最大width件のバッチに分割する。
// 端数は最後の部分バッチとしてそのまま扱う。
func chunkAuthors(ids []string, width int) [][]string {
	var batches [][]string
	for i := 0; i < len(ids); i += width {
		end := i + width
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}
