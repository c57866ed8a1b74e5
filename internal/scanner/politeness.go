package scanner

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// hostLimiters は上流ホストごとの最小リクエスト間隔を管理する。
// 同一ホストの複数フィードを1ランで走査する際のポライトネス制御であり、
// 並列フェッチ時も同一ホストへのリクエストはこのリミッターで直列化される。
type hostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	delay    time.Duration
}

// newHostLimiters はhostLimitersを生成する。
// delayが0以下の場合は待機なしで動作する。
func newHostLimiters(delay time.Duration) *hostLimiters {
	return &hostLimiters{
		limiters: make(map[string]*rate.Limiter),
		delay:    delay,
	}
}

// Wait は指定ホストへの次のリクエストが許可されるまでブロックする。
// コンテキストのキャンセルで即座に戻る。
func (h *hostLimiters) Wait(ctx context.Context, host string) error {
	if h.delay <= 0 {
		return nil
	}

	h.mu.Lock()
	limiter, ok := h.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.delay), 1)
		h.limiters[host] = limiter
	}
	h.mu.Unlock()

	return limiter.Wait(ctx)
}
