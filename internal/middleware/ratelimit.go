package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // API全般のレート（req/sec）。120/60 = 2 req/sec
	GeneralBurst    int           // API全般のバーストサイズ
	PostCreateRate  rate.Limit    // ポスト作成のレート（req/sec）。10/60
	PostCreateBurst int           // ポスト作成のバーストサイズ
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 要件: API全般 120 req/min/account、ポスト作成 10 req/min/account
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(120.0 / 60.0), // 2 req/sec
		GeneralBurst:    120,
		PostCreateRate:  rate.Limit(10.0 / 60.0), // ~0.167 req/sec
		PostCreateBurst: 10,
		CleanupInterval: 5 * time.Minute,
	}
}

// accountLimiter はアカウントごとのレートリミッターとアクセス時刻を保持する。
type accountLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter はアカウントごとのレート制限を管理する。
// API全般のレート制限とポスト作成のレート制限の2種類を提供する。
type RateLimiter struct {
	config RateLimiterConfig

	generalMu       sync.RWMutex
	generalLimiters map[string]*accountLimiter

	postCreateMu       sync.RWMutex
	postCreateLimiters map[string]*accountLimiter

	stopCh chan struct{}
}

// NewRateLimiter は新しいRateLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		config:             config,
		generalLimiters:    make(map[string]*accountLimiter),
		postCreateLimiters: make(map[string]*accountLimiter),
		stopCh:             make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (rl *RateLimiter) Stop() {
	close(rl.stopCh)
}

// GeneralMiddleware はAPI全般のレート制限ミドルウェアを返す。
// リクエストコンテキストにアカウントIDが含まれている必要がある（SessionMiddlewareの後に配置）。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := AccountIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreateGeneralLimiter(accountID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.GeneralRate)
				slog.Warn("rate limit exceeded",
					slog.String("account_id", accountID),
					slog.String("limit_type", "general"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PostCreateMiddleware はポスト作成専用のレート制限ミドルウェアを返す。
// API全般のレート制限とは独立に動作する。
func (rl *RateLimiter) PostCreateMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := AccountIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			limiter := rl.getOrCreatePostCreateLimiter(accountID)

			if !limiter.Allow() {
				writeRateLimitResponse(w, rl.config.PostCreateRate)
				slog.Warn("rate limit exceeded",
					slog.String("account_id", accountID),
					slog.String("limit_type", "post_create"),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は現在管理されているAPI全般リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) GeneralLimiterCount() int {
	rl.generalMu.RLock()
	defer rl.generalMu.RUnlock()
	return len(rl.generalLimiters)
}

// PostCreateLimiterCount は現在管理されているポスト作成リミッターのエントリ数を返す。
// テストおよびメトリクス用。
func (rl *RateLimiter) PostCreateLimiterCount() int {
	rl.postCreateMu.RLock()
	defer rl.postCreateMu.RUnlock()
	return len(rl.postCreateLimiters)
}

// getOrCreateGeneralLimiter はアカウントのAPI全般リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreateGeneralLimiter(accountID string) *rate.Limiter {
	rl.generalMu.RLock()
	ul, exists := rl.generalLimiters[accountID]
	rl.generalMu.RUnlock()

	if exists {
		rl.generalMu.Lock()
		ul.lastAccess = time.Now()
		rl.generalMu.Unlock()
		return ul.limiter
	}

	rl.generalMu.Lock()
	defer rl.generalMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.generalLimiters[accountID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.GeneralRate, rl.config.GeneralBurst)
	rl.generalLimiters[accountID] = &accountLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// getOrCreatePostCreateLimiter はアカウントのポスト作成リミッターを取得または作成する。
func (rl *RateLimiter) getOrCreatePostCreateLimiter(accountID string) *rate.Limiter {
	rl.postCreateMu.RLock()
	ul, exists := rl.postCreateLimiters[accountID]
	rl.postCreateMu.RUnlock()

	if exists {
		rl.postCreateMu.Lock()
		ul.lastAccess = time.Now()
		rl.postCreateMu.Unlock()
		return ul.limiter
	}

	rl.postCreateMu.Lock()
	defer rl.postCreateMu.Unlock()

	// ダブルチェック
	if ul, exists := rl.postCreateLimiters[accountID]; exists {
		ul.lastAccess = time.Now()
		return ul.limiter
	}

	limiter := rate.NewLimiter(rl.config.PostCreateRate, rl.config.PostCreateBurst)
	rl.postCreateLimiters[accountID] = &accountLimiter{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2

	now := time.Now()

	rl.generalMu.Lock()
	for accountID, ul := range rl.generalLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.generalLimiters, accountID)
		}
	}
	rl.generalMu.Unlock()

	rl.postCreateMu.Lock()
	for accountID, ul := range rl.postCreateLimiters {
		if now.Sub(ul.lastAccess) > ttl {
			delete(rl.postCreateLimiters, accountID)
		}
	}
	rl.postCreateMu.Unlock()
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーにはトークンが補充されるまでの推定秒数を設定する。
func writeRateLimitResponse(w http.ResponseWriter, r rate.Limit) {
	// Retry-Afterの算出: 1トークンが補充されるまでの秒数
	retryAfterSec := int(math.Ceil(1.0 / float64(r)))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	json.NewEncoder(w).Encode(map[string]string{
		"code":     "rate_limit_exceeded",
		"message":  "Too many requests. Please try again later.",
		"category": "system",
		"action":   "Please wait and retry after the specified time.",
	})
}
