package middleware

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/emerald/internal/model"
)

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	GeneralRate     rate.Limit    // ユーザーごとのAPIレート（req/sec）
	GeneralBurst    int           // ユーザーごとのバースト
	LoginRate       rate.Limit    // IPごとのログイン試行レート（req/sec）
	LoginBurst      int           // IPごとのログイン試行バースト
	CleanupInterval time.Duration // 未使用エントリの掃除間隔。TTLはこの2倍

	// OnLoginLimited はログイン試行が制限された際に呼ばれる。nilでもよい。
	OnLoginLimited func()
}

// DefaultRateLimiterConfig は 120 req/min/user、10 req/min/IP の設定を返す。
func DefaultRateLimiterConfig() RateLimiterConfig {
	return NewRateLimiterConfig(120, 10)
}

// NewRateLimiterConfig は1分あたりのリクエスト数からレート制限設定を生成する。
// バーストは1分ぶんとする。
func NewRateLimiterConfig(generalPerMin, loginPerMin int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(float64(generalPerMin) / 60.0),
		GeneralBurst:    generalPerMin,
		LoginRate:       rate.Limit(float64(loginPerMin) / 60.0),
		LoginBurst:      loginPerMin,
		CleanupInterval: 5 * time.Minute,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors はキー（ユーザーIDまたはクライアントIP）ごとのトークンバケット。
type visitors struct {
	mu    sync.Mutex
	byKey map[string]*visitor
	limit rate.Limit
	burst int
	now   func() time.Time
}

func newVisitors(limit rate.Limit, burst int, now func() time.Time) *visitors {
	return &visitors{byKey: make(map[string]*visitor), limit: limit, burst: burst, now: now}
}

// take はkeyのトークンを1つ消費する。
// 足りない場合は消費せず、次のトークンが補充されるまでの待ち時間を返す。
func (v *visitors) take(key string) (bool, time.Duration) {
	now := v.now()

	v.mu.Lock()
	vis, ok := v.byKey[key]
	if !ok {
		vis = &visitor{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.byKey[key] = vis
	}
	vis.lastSeen = now
	v.mu.Unlock()

	res := vis.limiter.ReserveN(now, 1)
	if !res.OK() {
		return false, time.Minute
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return false, delay
	}
	return true, 0
}

func (v *visitors) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byKey)
}

// evict はlastSeenからttlを超えたエントリを削除し、削除件数を返す。
func (v *visitors) evict(ttl time.Duration) int {
	cutoff := v.now().Add(-ttl)
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for key, vis := range v.byKey {
		if vis.lastSeen.Before(cutoff) {
			delete(v.byKey, key)
			n++
		}
	}
	return n
}

// RateLimiter はログイン済みユーザーごとのAPI制限と、クライアントIPごとのログイン試行制限を提供する。
type RateLimiter struct {
	config   RateLimiterConfig
	general  *visitors
	login    *visitors
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewRateLimiter はRateLimiterを生成し、未使用エントリの掃除を開始する。
// 使い終わったらStopを呼ぶこと。
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	return newRateLimiter(config, time.Now)
}

func newRateLimiter(config RateLimiterConfig, now func() time.Time) *RateLimiter {
	rl := &RateLimiter{
		config:  config,
		general: newVisitors(config.GeneralRate, config.GeneralBurst, now),
		login:   newVisitors(config.LoginRate, config.LoginBurst, now),
		stopCh:  make(chan struct{}),
	}
	if config.CleanupInterval > 0 {
		go rl.cleanupLoop()
	}
	return rl
}

// Stop は掃除ゴルーチンを停止する。複数回呼んでもよい。
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// GeneralMiddleware はユーザーごとのレート制限ミドルウェアを返す。
// SessionMiddlewareの後段に置く。
func (rl *RateLimiter) GeneralMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := UserIDFromContext(r.Context())
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if ok, wait := rl.general.take(userID); !ok {
				slog.Warn("rate limit exceeded",
					slog.String("limit_type", "general"),
					slog.String("user_id", userID),
					slog.Duration("retry_after", wait),
				)
				writeRateLimited(w, r, wait)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginMiddleware はクライアントIPごとのログイン試行制限ミドルウェアを返す。
// POSTのみを数え、フォームの表示は制限しない。
func (rl *RateLimiter) LoginMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			ip := ClientIP(r)
			if ok, wait := rl.login.take(ip); !ok {
				if rl.config.OnLoginLimited != nil {
					rl.config.OnLoginLimited()
				}
				slog.Warn("rate limit exceeded",
					slog.String("limit_type", "login"),
					slog.String("client_ip", ip),
					slog.Duration("retry_after", wait),
				)
				writeRateLimited(w, r, wait)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GeneralLimiterCount は保持しているユーザー別エントリ数を返す。
func (rl *RateLimiter) GeneralLimiterCount() int {
	return rl.general.len()
}

// LoginLimiterCount は保持しているIP別エントリ数を返す。
func (rl *RateLimiter) LoginLimiterCount() int {
	return rl.login.len()
}

// ClientIP はリクエスト元のIPアドレスを返す。
// chiのRealIPの後段ではX-Forwarded-For等が反映済みのRemoteAddrを使う。
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

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

func (rl *RateLimiter) cleanup() {
	ttl := rl.config.CleanupInterval * 2
	general := rl.general.evict(ttl)
	login := rl.login.evict(ttl)
	if general+login > 0 {
		slog.Debug("rate limiter entries evicted",
			slog.Int("general", general),
			slog.Int("login", login),
		)
	}
}

// writeRateLimited は429を返す。Retry-Afterは秒単位に切り上げる。
// /api 配下は統一JSONエラー、ページ（ログインフォーム）はプレーンテキストで応答する。
func writeRateLimited(w http.ResponseWriter, r *http.Request, wait time.Duration) {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(seconds))

	if strings.HasPrefix(r.URL.Path, "/api/") {
		WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
		return
	}
	http.Error(w, "too many requests", http.StatusTooManyRequests)
}
