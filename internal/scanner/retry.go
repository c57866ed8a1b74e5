package scanner

import (
	"math/rand/v2"
	"time"
)

// statusClass はHTTPステータスコードに基づくフェッチ結果の分類。
type statusClass int

const (
	// statusOK はフェッチ成功（2xx）。
	statusOK statusClass = iota
	// statusNotModified はコンテンツ未変更（304）。
	statusNotModified
	// statusTransient はリトライ対象のステータス（429/5xx）。
	statusTransient
	// statusPermanent はリトライしないステータス（その他の4xx等）。
	statusPermanent
)

const (
	// initialRetryDelay は指数バックオフの初回遅延。
	initialRetryDelay = 1 * time.Second
	// maxRetryDelay は指数バックオフの最大遅延。
	maxRetryDelay = 30 * time.Second
)

// classifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
// 304は条件付きGETの正常系として別扱いにする。
func classifyHTTPStatus(statusCode int) statusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return statusOK
	case statusCode == 304:
		return statusNotModified
	case statusCode == 429:
		return statusTransient
	case statusCode >= 500:
		return statusTransient
	default:
		return statusPermanent
	}
}

// retryDelay はリトライ回数に基づいて指数バックオフ遅延を計算する。
// 初回1秒、2倍ずつ増加、最大30秒。
func retryDelay(retries int) time.Duration {
	delay := initialRetryDelay
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay > maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

// withJitter は遅延にランダムなジッタ（最大50%加算）を与える。
// 複数フィードのリトライが同時刻に揃うのを避ける。
func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + rand.N(d/2)
}
