package scanner

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/feedscan/internal/model"
	"github.com/hitoshi/feedscan/internal/repository"
)

// ScannerService は1フィードのスキャン実行インターフェース。
type ScannerService interface {
	Scan(ctx context.Context, feed *model.Feed) (*model.ScanResult, error)
}

// Runner はスキャンランのスケジューリングと並列制御を行う。
// デフォルトはフィードを逐次処理し、maxConcurrencyを上げた場合も
// semaphoreパターンで並列数を制御する。フィード間に共有可変状態はなく、
// 同一ホストへのリクエストはフェッチャーのポライトネス制御で直列化される。
type Runner struct {
	feedRepo       repository.FeedRepository
	scanner        ScannerService
	logger         *slog.Logger
	maxConcurrency int
}

// NewRunner はRunnerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合は逐次実行（1）にする。
func NewRunner(
	feedRepo repository.FeedRepository,
	scanner ScannerService,
	logger *slog.Logger,
	maxConcurrency int,
) *Runner {
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Runner{
		feedRepo:       feedRepo,
		scanner:        scanner,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスキャンランを繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
// ラン中に致命的エラー（first-seen二重書き込み等）が出た場合はそこで停止する。
func (r *Runner) Start(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("スキャンランナーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", r.maxConcurrency),
	)

	// 起動直後に1回実行
	if _, err := r.RunOnce(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("スキャンランナーを停止しました")
			return nil
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				return err
			}
		}
	}
}

// RunOnce はアクティブな全フィードを1回スキャンし、ランの集計を返す。
// 個別フィードの失敗はランを中断させず、集計に理由タグ付きで計上される。
// 返されるerrorはラン全体を中断すべき異常のみ。
func (r *Runner) RunOnce(ctx context.Context) (*model.RunSummary, error) {
	start := time.Now()
	runID := uuid.New().String()

	feeds, err := r.feedRepo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	summary := &model.RunSummary{
		RunID:       runID,
		FailReasons: make(map[string]int),
	}

	if len(feeds) == 0 {
		r.logger.Info("スキャン対象のフィードはありません",
			slog.String("run_id", runID),
		)
		return summary, nil
	}

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, r.maxConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var fatalErr error

	for _, feed := range feeds {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(f *model.Feed) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			result, scanErr := r.scanner.Scan(ctx, f)

			mu.Lock()
			defer mu.Unlock()

			if scanErr != nil {
				if errors.Is(scanErr, model.ErrDuplicateFirstSeen) {
					// 不変条件違反はランを中断させる
					if fatalErr == nil {
						fatalErr = scanErr
					}
					return
				}
				r.logger.Error("フィードスキャンに失敗しました",
					slog.String("run_id", runID),
					slog.String("feed_id", f.ID),
					slog.String("error", scanErr.Error()),
				)
				summary.FeedsFailed++
				summary.FailReasons["store_error"]++
				return
			}

			summary.FeedsScanned++
			if result.FailureReason != "" {
				summary.FeedsFailed++
				summary.FailReasons[result.FailureReason]++
				return
			}
			summary.TotalNew += len(result.NewItems)
			summary.TotalUpdated += len(result.UpdatedItems)
		}(feed)
	}

	wg.Wait()

	if fatalErr != nil {
		return nil, fatalErr
	}

	summary.Duration = time.Since(start)
	r.logger.Info("スキャンランが完了しました",
		slog.String("run_id", runID),
		slog.Int("feeds_scanned", summary.FeedsScanned),
		slog.Int("feeds_failed", summary.FeedsFailed),
		slog.Int("total_new", summary.TotalNew),
		slog.Int("total_updated", summary.TotalUpdated),
		slog.Float64("duration_ms", float64(summary.Duration.Milliseconds())),
	)

	return summary, nil
}
