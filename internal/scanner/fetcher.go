package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/feedscan/internal/model"
	"github.com/hitoshi/feedscan/internal/security"
)

// FetchStatus はフェッチ結果の種別。
type FetchStatus int

const (
	// FetchOK は本文取得に成功した状態。
	FetchOK FetchStatus = iota
	// FetchNotModified は条件付きGETで304が返った状態（キャッシュヒット）。
	FetchNotModified
	// FetchFailed はフィードレベルの失敗。理由はFailureReasonに入る。
	FetchFailed
)

// FetchOutcome はフェッチの結果値。失敗も例外ではなく値として返す。
// フェッチャーは何も永続化しない。ETag等の保存はスキャナーがパース成功後に行う。
type FetchOutcome struct {
	Status        FetchStatus
	Body          []byte
	ETag          string
	LastModified  string
	ByteSize      int
	HTTPStatus    int
	FailureReason string
	Err           error
}

// Fetcher は個別フィードの条件付きHTTPフェッチを行う。
// ETag/Last-Modifiedヘッダー、応答サイズ上限、有界リトライ、
// ホストごとのポライトネス遅延を適用する。
type Fetcher struct {
	guard       security.FetchGuardService
	hosts       *hostLimiters
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	maxAttempts int
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// maxAttemptsが0以下の場合はデフォルト値3を使用する。
func NewFetcher(
	guard security.FetchGuardService,
	logger *slog.Logger,
	timeout time.Duration,
	maxBodySize int64,
	maxAttempts int,
	hostDelay time.Duration,
) *Fetcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Fetcher{
		guard:       guard,
		hosts:       newHostLimiters(hostDelay),
		logger:      logger,
		timeout:     timeout,
		maxBodySize: maxBodySize,
		maxAttempts: maxAttempts,
	}
}

// Fetch はフィードを条件付きGETでフェッチする。
// 一時的な失敗（タイムアウト、接続リセット、429/5xx）はジッタ付き指数バックオフで
// maxAttempts回までリトライし、恒久的な失敗（その他の4xx、DNS失敗）は即座に返す。
func (f *Fetcher) Fetch(ctx context.Context, feed *model.Feed, meta *model.FeedMetadata) FetchOutcome {
	if err := f.guard.ValidateURL(feed.SourceURL); err != nil {
		return FetchOutcome{
			Status:        FetchFailed,
			FailureReason: model.FailureFetchPermanent,
			Err:           fmt.Errorf("URL検証に失敗: %w", err),
		}
	}

	parsed, err := url.Parse(feed.SourceURL)
	if err != nil {
		return FetchOutcome{
			Status:        FetchFailed,
			FailureReason: model.FailureFetchPermanent,
			Err:           fmt.Errorf("URLのパースに失敗: %w", err),
		}
	}
	host := parsed.Hostname()

	client := f.guard.NewSafeClient(f.timeout)

	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := withJitter(retryDelay(attempt - 2))
			f.logger.Debug("フェッチをリトライします",
				slog.String("feed_id", feed.ID),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				return FetchOutcome{
					Status:        FetchFailed,
					FailureReason: model.FailureFetchTransient,
					Err:           ctx.Err(),
				}
			case <-time.After(delay):
			}
		}

		// ポライトネス: 同一ホストへの最小リクエスト間隔を守る
		if err := f.hosts.Wait(ctx, host); err != nil {
			return FetchOutcome{
				Status:        FetchFailed,
				FailureReason: model.FailureFetchTransient,
				Err:           err,
			}
		}

		outcome, retryable := f.doAttempt(ctx, client, feed, meta)
		if !retryable {
			return outcome
		}
		lastErr = outcome.Err
	}

	return FetchOutcome{
		Status:        FetchFailed,
		FailureReason: model.FailureFetchTransient,
		Err:           fmt.Errorf("リトライ上限（%d回）に達しました: %w", f.maxAttempts, lastErr),
	}
}

// doAttempt は1回分のHTTPリクエストを実行する。
// retryable=trueの場合、呼び出し側がバックオフ後に再試行する。
func (f *Fetcher) doAttempt(
	ctx context.Context,
	client *http.Client,
	feed *model.Feed,
	meta *model.FeedMetadata,
) (outcome FetchOutcome, retryable bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feed.SourceURL, nil)
	if err != nil {
		return FetchOutcome{
			Status:        FetchFailed,
			FailureReason: model.FailureFetchPermanent,
			Err:           fmt.Errorf("リクエスト作成に失敗: %w", err),
		}, false
	}

	req.Header.Set("User-Agent", "Feedscan/1.0 Feed Ingestion")
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	// 条件付きGET: 前回のキャッシュバリデータがあれば付与する
	if meta != nil && meta.ETag != "" {
		req.Header.Set("If-None-Match", meta.ETag)
	}
	if meta != nil && meta.LastModifiedHTTP != "" {
		req.Header.Set("If-Modified-Since", meta.LastModifiedHTTP)
	}

	resp, err := client.Do(req)
	if err != nil {
		// DNS失敗は恒久的エラー、タイムアウト・接続リセットは一時的エラーとして扱う
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return FetchOutcome{
				Status:        FetchFailed,
				FailureReason: model.FailureFetchPermanent,
				Err:           fmt.Errorf("DNS解決に失敗: %w", err),
			}, false
		}
		return FetchOutcome{
			Status:        FetchFailed,
			FailureReason: model.FailureFetchTransient,
			Err:           fmt.Errorf("HTTPリクエストに失敗: %w", err),
		}, true
	}
	defer resp.Body.Close()

	switch classifyHTTPStatus(resp.StatusCode) {
	case statusNotModified:
		return FetchOutcome{
			Status:     FetchNotModified,
			HTTPStatus: resp.StatusCode,
		}, false

	case statusTransient:
		return FetchOutcome{
			Status:        FetchFailed,
			HTTPStatus:    resp.StatusCode,
			FailureReason: model.FailureFetchTransient,
			Err:           fmt.Errorf("一時的なHTTPエラー: status=%d", resp.StatusCode),
		}, true

	case statusPermanent:
		return FetchOutcome{
			Status:        FetchFailed,
			HTTPStatus:    resp.StatusCode,
			FailureReason: model.FailureFetchPermanent,
			Err:           fmt.Errorf("恒久的なHTTPエラー: status=%d", resp.StatusCode),
		}, false
	}

	// 2xx: サイズ上限+1バイトまで読み、超過を検出する
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return FetchOutcome{
			Status:        FetchFailed,
			HTTPStatus:    resp.StatusCode,
			FailureReason: model.FailureFetchTransient,
			Err:           fmt.Errorf("レスポンスボディの読み取りに失敗: %w", err),
		}, true
	}
	if int64(len(body)) > f.maxBodySize {
		return FetchOutcome{
			Status:        FetchFailed,
			HTTPStatus:    resp.StatusCode,
			FailureReason: model.FailureOversized,
			Err:           fmt.Errorf("応答サイズが上限を超過: cap=%dバイト", f.maxBodySize),
		}, false
	}

	return FetchOutcome{
		Status:       FetchOK,
		Body:         body,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		ByteSize:     len(body),
		HTTPStatus:   resp.StatusCode,
	}, false
}
