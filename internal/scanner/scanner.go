// Package scanner はフィードの取り込みと重複排除のエンジンを提供する。
// 条件付きフェッチ、日付解決、並び順判定、同一性ハッシュ、
// ルックバックポリシーによる分類を1フィード単位で実行する。
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/feedscan/internal/metrics"
	"github.com/hitoshi/feedscan/internal/model"
	"github.com/hitoshi/feedscan/internal/repository"
)

// noDateWarnInterval は日付なしフィードに対する警告の抑制間隔。
const noDateWarnInterval = 24 * time.Hour

// FetcherService はフィードフェッチの実行インターフェース。
type FetcherService interface {
	// Fetch はフィードを条件付きGETでフェッチし、結果を値として返す。
	Fetch(ctx context.Context, feed *model.Feed, meta *model.FeedMetadata) FetchOutcome
}

// Scanner は1フィード単位のスキャンを司るオーケストレーター。
// フェッチ → パース → 日付解決 → 並び順判定 → エントリ分類を行い、
// フィードメタデータとitems_seenの更新を単一トランザクションで確定する。
// 同一フィードに対する並行実行は想定しない（呼び出し側が直列化する）。
type Scanner struct {
	feedRepo    repository.FeedRepository
	seenRepo    repository.ItemSeenRepository
	writer      repository.ScanWriter
	fetcher     FetcherService
	metrics     metrics.ScanMetrics
	logger      *slog.Logger
	lookback    LookbackPolicy
	orderSample int
	now         func() time.Time
}

// NewScanner はScannerの新しいインスタンスを生成する。
func NewScanner(
	feedRepo repository.FeedRepository,
	seenRepo repository.ItemSeenRepository,
	writer repository.ScanWriter,
	fetcher FetcherService,
	collector metrics.ScanMetrics,
	logger *slog.Logger,
	lookback LookbackPolicy,
	orderSample int,
) *Scanner {
	if orderSample <= 0 {
		orderSample = defaultOrderSample
	}
	return &Scanner{
		feedRepo:    feedRepo,
		seenRepo:    seenRepo,
		writer:      writer,
		fetcher:     fetcher,
		metrics:     collector,
		logger:      logger,
		lookback:    lookback,
		orderSample: orderSample,
		now:         time.Now,
	}
}

// Scan は1フィードをスキャンし、下流へ渡す候補アイテムと分類集計を返す。
// フィードレベルの失敗はScanResult.FailureReasonに入り、errorは返さない。
// 返されるerrorはラン全体を中断すべき異常（first-seen二重書き込み等）か、
// ストア読み書きの失敗のみ。
func (s *Scanner) Scan(ctx context.Context, feed *model.Feed) (*model.ScanResult, error) {
	start := s.now().UTC()

	meta, err := s.feedRepo.GetMetadata(ctx, feed.ID)
	if err != nil {
		return nil, fmt.Errorf("feed=%s: %w", feed.ID, err)
	}
	if meta == nil {
		meta = &model.FeedMetadata{FeedID: feed.ID, TypicalOrder: model.OrderUnknown}
	}

	cutoff, lookbackSource := s.lookback.Cutoff(start, meta.LookbackHoursOverride)

	result := &model.ScanResult{
		FeedID: feed.ID,
		Order:  meta.TypicalOrder,
	}

	fetchStart := s.now()
	outcome := s.fetcher.Fetch(ctx, feed, meta)
	s.metrics.RecordFetchLatency(s.now().Sub(fetchStart))
	if outcome.HTTPStatus != 0 {
		s.metrics.RecordHTTPStatus(outcome.HTTPStatus)
	}

	switch outcome.Status {
	case FetchNotModified:
		// キャッシュヒット: パースを省略し、last_checkedのみ更新する
		result.ETagHit = true
		s.metrics.RecordETagHit()
		if err := s.writer.ApplyScanWrites(ctx, &model.ScanWrites{
			FeedID:        feed.ID,
			LastCheckedAt: start,
		}); err != nil {
			return nil, err
		}
		s.finish(feed, result, start, cutoff, lookbackSource, 0)
		return result, nil

	case FetchFailed:
		result.FailureReason = outcome.FailureReason
		result.Counts.Errors = 1
		s.metrics.RecordScanFailure(outcome.FailureReason)
		s.logger.Debug("フィードフェッチに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("reason", outcome.FailureReason),
			slog.String("error", errString(outcome.Err)),
		)
		if err := s.writer.ApplyScanWrites(ctx, &model.ScanWrites{
			FeedID:        feed.ID,
			LastCheckedAt: start,
		}); err != nil {
			return nil, err
		}
		s.finish(feed, result, start, cutoff, lookbackSource, 0)
		return result, nil
	}

	parsedFeed, err := gofeed.NewParser().ParseString(string(outcome.Body))
	if err != nil {
		// パース失敗: 既存のメタデータとitems_seenには一切触れない
		result.FailureReason = model.FailureParse
		result.Counts.Errors = 1
		s.metrics.RecordScanFailure(model.FailureParse)
		s.logger.Debug("フィードのパースに失敗しました",
			slog.String("feed_id", feed.ID),
			slog.String("error", err.Error()),
		)
		if werr := s.writer.ApplyScanWrites(ctx, &model.ScanWrites{
			FeedID:        feed.ID,
			LastCheckedAt: start,
		}); werr != nil {
			return nil, werr
		}
		s.finish(feed, result, start, cutoff, lookbackSource, 0)
		return result, nil
	}

	entries := convertEntries(parsedFeed.Items)

	writes := &model.ScanWrites{
		FeedID:        feed.ID,
		LastCheckedAt: start,
	}

	datedCount, err := s.classifyEntries(ctx, feed, meta, entries, cutoff, start, result, writes)
	if err != nil {
		return nil, err
	}

	// 日付付きエントリがひとつもないフィードへの警告（24時間に1回まで）
	if len(entries) > 0 && datedCount == 0 {
		if meta.LastNoDateAt == nil || start.Sub(*meta.LastNoDateAt) >= noDateWarnInterval {
			s.logger.Warn("フィードに日付を持つエントリがありません",
				slog.String("feed_id", feed.ID),
				slog.Int("entries", len(entries)),
			)
			t := start
			meta.LastNoDateAt = &t
		}
	}

	// キャッシュバリデータはパース成功後にのみ保存する
	if outcome.ETag != "" {
		meta.ETag = outcome.ETag
	}
	if outcome.LastModified != "" {
		meta.LastModifiedHTTP = outcome.LastModified
	}
	meta.UpdatedAt = start
	writes.Metadata = meta
	result.Order = meta.TypicalOrder

	if err := s.writer.ApplyScanWrites(ctx, writes); err != nil {
		if errors.Is(err, model.ErrDuplicateFirstSeen) {
			// 分類ロジックの不変条件違反。ラン全体を停止させる。
			return nil, err
		}
		return nil, err
	}

	s.metrics.RecordCandidates(len(result.NewItems) + len(result.UpdatedItems))
	s.finish(feed, result, start, cutoff, lookbackSource, len(entries))
	return result, nil
}

// classifyEntries は各エントリをフィード提示順に分類し、result とwritesへ反映する。
// 分類の優先順位: 日付なし判定 → ルックバック境界 → 同一性ハッシュの照合。
// 戻り値は日付を解決できたエントリ数。
func (s *Scanner) classifyEntries(
	ctx context.Context,
	feed *model.Feed,
	meta *model.FeedMetadata,
	entries []model.RawEntry,
	cutoff time.Time,
	now time.Time,
	result *model.ScanResult,
	writes *model.ScanWrites,
) (datedCount int, err error) {
	// 並び順判定の標本: 提示順の先頭から日付付きのものを集める
	var orderTimes []time.Time

	// 同一文書内でのハッシュ重複を検出し、first-seenの二重書き込みを防ぐ
	runSeen := make(map[string]bool)

	storedOrder := meta.TypicalOrder

	for i := range entries {
		e := &entries[i]
		ts, dateSource := ResolveDate(e)

		if ts != nil {
			datedCount++
			if len(orderTimes) < s.orderSample {
				orderTimes = append(orderTimes, *ts)
			}
		}

		// 1. 日付なし: 初観測なら観測時刻を合成して候補に含める。
		//    既観測なら保存済みfirst_seenを実効タイムスタンプとして重複扱い。
		if ts == nil {
			hash := IdentityHash(e)
			if runSeen[hash] {
				result.Counts.Duplicate++
				continue
			}
			rec, lerr := s.seenRepo.Lookup(ctx, feed.ID, hash)
			if lerr != nil {
				return datedCount, fmt.Errorf("feed=%s: %w", feed.ID, lerr)
			}
			runSeen[hash] = true
			if rec != nil {
				result.Counts.Duplicate++
				writes.SeenAgain = append(writes.SeenAgain, model.SeenWrite{
					ItemHash:    hash,
					ContentHash: ContentHash(e),
					At:          now,
				})
				s.logEntry(feed.ID, e.Title, model.ClassDuplicate, "none", rec.FirstSeenUTC)
				continue
			}
			writes.FirstSeen = append(writes.FirstSeen, model.SeenWrite{
				ItemHash:    hash,
				ContentHash: ContentHash(e),
				At:          now,
			})
			result.NewItems = append(result.NewItems, candidateFrom(feed.ID, e, now, hash, model.ClassNoDateFirstSeen))
			result.Counts.NoDate++
			s.logEntry(feed.ID, e.Title, model.ClassNoDateFirstSeen, "none", now)
			continue
		}

		// 2. ルックバック境界: カットオフちょうどは含め、それより古いものは除外する
		if ts.Before(cutoff) {
			result.Counts.TooOld++
			s.logEntry(feed.ID, e.Title, model.ClassTooOld, dateSource, *ts)
			// 新しい順と判明しているフィードでは以降のエントリはさらに古い
			if storedOrder == model.OrderReverseChronological {
				s.logger.Debug("カットオフ超過のため残りのエントリをスキップします",
					slog.String("feed_id", feed.ID),
					slog.Int("skipped_after", len(entries)-i-1),
				)
				break
			}
			continue
		}

		// 3. 同一性ハッシュで台帳を照合する
		hash := IdentityHash(e)
		if runSeen[hash] {
			result.Counts.Duplicate++
			continue
		}
		rec, lerr := s.seenRepo.Lookup(ctx, feed.ID, hash)
		if lerr != nil {
			return datedCount, fmt.Errorf("feed=%s: %w", feed.ID, lerr)
		}
		runSeen[hash] = true

		contentHash := ContentHash(e)

		if rec == nil {
			writes.FirstSeen = append(writes.FirstSeen, model.SeenWrite{
				ItemHash:    hash,
				ContentHash: contentHash,
				At:          now,
			})
			result.NewItems = append(result.NewItems, candidateFrom(feed.ID, e, *ts, hash, model.ClassNew))
			result.Counts.New++
			s.logEntry(feed.ID, e.Title, model.ClassNew, dateSource, *ts)
			continue
		}

		writes.SeenAgain = append(writes.SeenAgain, model.SeenWrite{
			ItemHash:    hash,
			ContentHash: contentHash,
			At:          now,
		})

		if rec.ContentHash != "" && contentHash != rec.ContentHash {
			// 同一性は変わらず内容が変わった再公開。下流が再処理するかはポリシー次第。
			result.UpdatedItems = append(result.UpdatedItems, candidateFrom(feed.ID, e, *ts, hash, model.ClassUpdated))
			result.Counts.Updated++
			s.logEntry(feed.ID, e.Title, model.ClassUpdated, dateSource, *ts)
		} else {
			result.Counts.Duplicate++
			s.logEntry(feed.ID, e.Title, model.ClassDuplicate, dateSource, *ts)
		}
	}

	// 並び順の日和見的な再判定。標本が2件以上ある場合のみ保存値を更新する。
	if len(orderTimes) >= 2 {
		if detected := DetectOrder(orderTimes, s.orderSample); detected != meta.TypicalOrder {
			s.logger.Debug("フィードの並び順を再判定しました",
				slog.String("feed_id", feed.ID),
				slog.String("old_order", string(meta.TypicalOrder)),
				slog.String("new_order", string(detected)),
			)
			meta.TypicalOrder = detected
		}
	}

	return datedCount, nil
}

// finish は分類集計をメトリクスとログに反映する。
// ログ契約: フィード1回のスキャンにつきINFOはヘッダーと集計の2行のみ。
func (s *Scanner) finish(
	feed *model.Feed,
	result *model.ScanResult,
	start, cutoff time.Time,
	lookbackSource string,
	entryCount int,
) {
	result.Duration = s.now().UTC().Sub(start)

	s.metrics.RecordClassified(string(model.ClassNew), result.Counts.New)
	s.metrics.RecordClassified(string(model.ClassUpdated), result.Counts.Updated)
	s.metrics.RecordClassified(string(model.ClassDuplicate), result.Counts.Duplicate)
	s.metrics.RecordClassified(string(model.ClassTooOld), result.Counts.TooOld)
	s.metrics.RecordClassified(string(model.ClassNoDateFirstSeen), result.Counts.NoDate)
	s.metrics.RecordScanDuration(result.Duration)

	s.logger.Info("フィードをスキャンしました",
		slog.String("feed_id", feed.ID),
		slog.Int("entries", entryCount),
		slog.Time("cutoff", cutoff),
		slog.String("lookback_source", lookbackSource),
		slog.Bool("etag_hit", result.ETagHit),
		slog.String("order", string(result.Order)),
		slog.String("failure_reason", result.FailureReason),
	)
	s.logger.Info("スキャン集計",
		slog.String("feed_id", feed.ID),
		slog.Int("new", result.Counts.New),
		slog.Int("updated", result.Counts.Updated),
		slog.Int("duplicate", result.Counts.Duplicate),
		slog.Int("too_old", result.Counts.TooOld),
		slog.Int("no_date", result.Counts.NoDate),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)
}

// logEntry はエントリ単位の分類理由をDEBUGで出力する。INFOには昇格させない。
func (s *Scanner) logEntry(feedID, title string, class model.Classification, dateSource string, ts time.Time) {
	s.logger.Debug("エントリを分類しました",
		slog.String("feed_id", feedID),
		slog.String("title", title),
		slog.String("class", string(class)),
		slog.String("date_source", dateSource),
		slog.Time("timestamp", ts),
	)
}

// candidateFrom はRawEntryから下流へ渡す候補アイテムを組み立てる。
func candidateFrom(feedID string, e *model.RawEntry, ts time.Time, hash string, class model.Classification) model.CandidateItem {
	return model.CandidateItem{
		FeedID:         feedID,
		Title:          e.Title,
		Link:           e.Link,
		EnclosureURL:   e.EnclosureURL,
		PublishedUTC:   ts,
		ItemHash:       hash,
		Classification: class,
	}
}

// convertEntries はgofeedのエントリを正規化されたRawEntryに変換する。
// RSS/Atom/YouTubeの表現差はここでフィールドマッピングとして吸収する。
func convertEntries(items []*gofeed.Item) []model.RawEntry {
	entries := make([]model.RawEntry, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		e := model.RawEntry{
			GUID:            item.GUID,
			Title:           item.Title,
			Link:            item.Link,
			Summary:         item.Description,
			Published:       item.Published,
			Updated:         item.Updated,
			PublishedParsed: item.PublishedParsed,
			UpdatedParsed:   item.UpdatedParsed,
		}

		// enclosure: ポッドキャストの音声URL。最初の有効なものを採用する
		for _, enc := range item.Enclosures {
			if enc != nil && enc.URL != "" {
				e.EnclosureURL = enc.URL
				break
			}
		}

		// Dublin Core等のdateフィールド
		if item.Custom != nil {
			e.Date = item.Custom["date"]
		}

		// Descriptionが空の場合はContentで代用する
		if e.Summary == "" && item.Content != "" {
			e.Summary = item.Content
		}

		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if e.Link == "" && e.GUID != "" &&
			(strings.HasPrefix(e.GUID, "http://") || strings.HasPrefix(e.GUID, "https://")) {
			e.Link = e.GUID
		}

		entries = append(entries, e)
	}

	return entries
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
