package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/feedscan/internal/model"
)

// --- テスト用フェイク ---

// fakeFeedRepo はFeedRepositoryのテスト用フェイク。
type fakeFeedRepo struct {
	meta *model.FeedMetadata
}

func (f *fakeFeedRepo) FindByID(_ context.Context, _ string) (*model.Feed, error) {
	return nil, nil
}

func (f *fakeFeedRepo) ListActive(_ context.Context) ([]*model.Feed, error) {
	return nil, nil
}

func (f *fakeFeedRepo) Create(_ context.Context, _ *model.Feed) error { return nil }

func (f *fakeFeedRepo) Update(_ context.Context, _ *model.Feed) error { return nil }

func (f *fakeFeedRepo) Deactivate(_ context.Context, _ string) error { return nil }

func (f *fakeFeedRepo) GetMetadata(_ context.Context, _ string) (*model.FeedMetadata, error) {
	return f.meta, nil
}

func (f *fakeFeedRepo) UpdateLookbackOverride(_ context.Context, _ string, _ *int) error {
	return nil
}

// fakeSeenRepo はItemSeenRepositoryのテスト用フェイク。台帳をメモリ上に持つ。
type fakeSeenRepo struct {
	records map[string]*model.SeenRecord
	lookups int
}

func newFakeSeenRepo() *fakeSeenRepo {
	return &fakeSeenRepo{records: make(map[string]*model.SeenRecord)}
}

func seenKey(feedID, itemHash string) string {
	return feedID + "|" + itemHash
}

func (f *fakeSeenRepo) Lookup(_ context.Context, feedID, itemHash string) (*model.SeenRecord, error) {
	f.lookups++
	rec, ok := f.records[seenKey(feedID, itemHash)]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (f *fakeSeenRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	for k, rec := range f.records {
		if rec.LastSeenUTC.Before(cutoff) {
			delete(f.records, k)
			deleted++
		}
	}
	return deleted, nil
}

// fakeScanWriter はScanWriterのテスト用フェイク。
// 本物と同じくfirst-seenの二重挿入を検出し、書き込みをfakeSeenRepoの台帳へ適用する。
type fakeScanWriter struct {
	seen     *fakeSeenRepo
	applied  []*model.ScanWrites
	applyErr error
}

func (f *fakeScanWriter) ApplyScanWrites(_ context.Context, writes *model.ScanWrites) error {
	if f.applyErr != nil {
		return f.applyErr
	}
	for _, w := range writes.FirstSeen {
		key := seenKey(writes.FeedID, w.ItemHash)
		if _, exists := f.seen.records[key]; exists {
			return fmt.Errorf("feed=%s item_hash=%s: %w", writes.FeedID, w.ItemHash, model.ErrDuplicateFirstSeen)
		}
		f.seen.records[key] = &model.SeenRecord{
			FeedID:       writes.FeedID,
			ItemHash:     w.ItemHash,
			FirstSeenUTC: w.At,
			LastSeenUTC:  w.At,
			ContentHash:  w.ContentHash,
		}
	}
	for _, w := range writes.SeenAgain {
		if rec, ok := f.seen.records[seenKey(writes.FeedID, w.ItemHash)]; ok {
			rec.LastSeenUTC = w.At
			rec.ContentHash = w.ContentHash
		}
	}
	f.applied = append(f.applied, writes)
	return nil
}

func (f *fakeScanWriter) last() *model.ScanWrites {
	if len(f.applied) == 0 {
		return nil
	}
	return f.applied[len(f.applied)-1]
}

// fakeFetcher はFetcherServiceのテスト用フェイク。
type fakeFetcher struct {
	outcome FetchOutcome
}

func (f *fakeFetcher) Fetch(_ context.Context, _ *model.Feed, _ *model.FeedMetadata) FetchOutcome {
	return f.outcome
}

// nopMetrics はScanMetricsのテスト用no-op実装。
type nopMetrics struct{}

func (nopMetrics) RecordClassified(_ string, _ int)      {}
func (nopMetrics) RecordScanFailure(_ string)            {}
func (nopMetrics) RecordHTTPStatus(_ int)                {}
func (nopMetrics) RecordFetchLatency(_ time.Duration)    {}
func (nopMetrics) RecordETagHit()                        {}
func (nopMetrics) RecordScanDuration(_ time.Duration)    {}
func (nopMetrics) RecordCandidates(_ int)                {}

// --- テストハーネス ---

var scanNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type scanHarness struct {
	scanner *Scanner
	feeds   *fakeFeedRepo
	seen    *fakeSeenRepo
	writer  *fakeScanWriter
	fetcher *fakeFetcher
}

func newScanHarness(meta *model.FeedMetadata, outcome FetchOutcome) *scanHarness {
	feeds := &fakeFeedRepo{meta: meta}
	seen := newFakeSeenRepo()
	writer := &fakeScanWriter{seen: seen}
	fetcher := &fakeFetcher{outcome: outcome}

	s := NewScanner(
		feeds, seen, writer, fetcher, nopMetrics{},
		slog.New(slog.NewTextHandler(&strings.Builder{}, nil)),
		LookbackPolicy{DefaultHours: 48},
		10,
	)
	s.now = func() time.Time { return scanNow }

	return &scanHarness{scanner: s, feeds: feeds, seen: seen, writer: writer, fetcher: fetcher}
}

func rssItem(guid, title, pubDate string) string {
	var b strings.Builder
	b.WriteString("<item>")
	b.WriteString("<guid>" + guid + "</guid>")
	b.WriteString("<title>" + title + "</title>")
	b.WriteString("<link>https://example.com/" + guid + "</link>")
	b.WriteString(`<enclosure url="https://cdn.example.com/` + guid + `.mp3" type="audio/mpeg" length="1"/>`)
	if pubDate != "" {
		b.WriteString("<pubDate>" + pubDate + "</pubDate>")
	}
	b.WriteString("</item>")
	return b.String()
}

func rssDoc(items ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>テスト番組</title>` +
		strings.Join(items, "") + `</channel></rss>`
}

func rfc2822(t time.Time) string {
	return t.Format(time.RFC1123Z)
}

func okOutcome(body string) FetchOutcome {
	return FetchOutcome{
		Status:     FetchOK,
		Body:       []byte(body),
		ByteSize:   len(body),
		HTTPStatus: 200,
	}
}

// --- 分類シナリオ ---

// 6エントリのドキュメント: ウィンドウ内3件（うち1件は境界ちょうど）、
// 期限切れ2件、日付なし1件。
func mixedAgeDoc() string {
	cutoff := scanNow.Add(-48 * time.Hour)
	return rssDoc(
		rssItem("ep-6", "第6回", rfc2822(scanNow.Add(-1*time.Hour))),
		rssItem("ep-5", "第5回", rfc2822(scanNow.Add(-24*time.Hour))),
		rssItem("ep-4", "第4回", rfc2822(cutoff)), // 境界ちょうどは含める
		rssItem("ep-3", "第3回", rfc2822(cutoff.Add(-1*time.Minute))),
		rssItem("ep-2", "第2回", rfc2822(cutoff.Add(-24*time.Hour))),
		rssItem("ep-0", "番外編", ""),
	)
}

func TestScan_ClassifiesByLookbackWindow(t *testing.T) {
	h := newScanHarness(nil, okOutcome(mixedAgeDoc()))

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatalf("Scanがエラーを返すべきでない: %v", err)
	}

	if got := len(result.NewItems); got != 4 {
		t.Errorf("候補は新規3件+日付なし1件の4件のはず: got %d", got)
	}
	if result.Counts.New != 3 {
		t.Errorf("Counts.New = %d, want 3", result.Counts.New)
	}
	if result.Counts.TooOld != 2 {
		t.Errorf("Counts.TooOld = %d, want 2", result.Counts.TooOld)
	}
	if result.Counts.NoDate != 1 {
		t.Errorf("Counts.NoDate = %d, want 1", result.Counts.NoDate)
	}
	if result.Counts.Duplicate != 0 {
		t.Errorf("Counts.Duplicate = %d, want 0", result.Counts.Duplicate)
	}

	// 期限切れエントリは台帳に書かれない
	writes := h.writer.last()
	if len(writes.FirstSeen) != 4 {
		t.Errorf("first-seen書き込みは4件のはず: got %d", len(writes.FirstSeen))
	}
}

func TestScan_ExactCutoffIsIncluded(t *testing.T) {
	cutoff := scanNow.Add(-48 * time.Hour)
	doc := rssDoc(rssItem("ep-b", "境界", rfc2822(cutoff)))
	h := newScanHarness(nil, okOutcome(doc))

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Counts.New != 1 || result.Counts.TooOld != 0 {
		t.Errorf("カットオフちょうどのエントリは含まれるべき: new=%d too_old=%d",
			result.Counts.New, result.Counts.TooOld)
	}
}

func TestScan_RerunIsIdempotent(t *testing.T) {
	h := newScanHarness(nil, okOutcome(mixedAgeDoc()))
	feed := testFeed("https://example.com/feed")

	if _, err := h.scanner.Scan(context.Background(), feed); err != nil {
		t.Fatal(err)
	}

	// 同一ドキュメントで再スキャン
	result, err := h.scanner.Scan(context.Background(), feed)
	if err != nil {
		t.Fatalf("再スキャンがエラーを返すべきでない: %v", err)
	}

	if result.Counts.New != 0 {
		t.Errorf("再スキャンで新規は出ないべき: got %d", result.Counts.New)
	}
	if result.Counts.NoDate != 0 {
		t.Errorf("日付なしエントリも2回目は重複のはず: got %d", result.Counts.NoDate)
	}
	// ウィンドウ内3件 + 日付なし1件がすべて重複になる
	if result.Counts.Duplicate != 4 {
		t.Errorf("Counts.Duplicate = %d, want 4", result.Counts.Duplicate)
	}
	if len(result.NewItems) != 0 {
		t.Errorf("再スキャンで候補は出ないべき: got %d", len(result.NewItems))
	}
	if result.Counts.TooOld != 2 {
		t.Errorf("期限切れの分類は再スキャンでも変わらない: got %d", result.Counts.TooOld)
	}
}

func TestScan_DatelessEntryKeepsFirstSeenTimestamp(t *testing.T) {
	doc := rssDoc(rssItem("ep-0", "番外編", ""))
	h := newScanHarness(nil, okOutcome(doc))
	feed := testFeed("https://example.com/feed")

	result, err := h.scanner.Scan(context.Background(), feed)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.NewItems) != 1 {
		t.Fatalf("日付なしの初観測は候補に含まれるべき: got %d", len(result.NewItems))
	}
	if !result.NewItems[0].PublishedUTC.Equal(scanNow) {
		t.Errorf("合成タイムスタンプは観測時刻のはず: got %v", result.NewItems[0].PublishedUTC)
	}
	if result.NewItems[0].Classification != model.ClassNoDateFirstSeen {
		t.Errorf("Classification = %v, want %v", result.NewItems[0].Classification, model.ClassNoDateFirstSeen)
	}

	// 2回目は保存済みfirst_seenが実効タイムスタンプとなり重複扱い
	result, err = h.scanner.Scan(context.Background(), feed)
	if err != nil {
		t.Fatal(err)
	}
	if result.Counts.Duplicate != 1 || result.Counts.NoDate != 0 {
		t.Errorf("既観測の日付なしエントリは重複のはず: duplicate=%d no_date=%d",
			result.Counts.Duplicate, result.Counts.NoDate)
	}
}

func TestScan_UpdatedContentIsFlagged(t *testing.T) {
	ts := scanNow.Add(-1 * time.Hour)
	doc := rssDoc(rssItem("ep-1", "第1回", rfc2822(ts)))
	h := newScanHarness(nil, okOutcome(doc))
	feed := testFeed("https://example.com/feed")

	if _, err := h.scanner.Scan(context.Background(), feed); err != nil {
		t.Fatal(err)
	}

	// タイトルが編集された同一GUIDのエントリ
	edited := rssDoc(rssItem("ep-1", "第1回（再編集）", rfc2822(ts)))
	h.fetcher.outcome = okOutcome(edited)

	result, err := h.scanner.Scan(context.Background(), feed)
	if err != nil {
		t.Fatal(err)
	}
	if result.Counts.Updated != 1 {
		t.Errorf("内容が変わった再公開はupdatedのはず: got %d", result.Counts.Updated)
	}
	if result.Counts.New != 0 || result.Counts.Duplicate != 0 {
		t.Errorf("new=%d duplicate=%d, want 0/0", result.Counts.New, result.Counts.Duplicate)
	}
	if len(result.UpdatedItems) != 1 {
		t.Fatalf("更新候補は1件のはず: got %d", len(result.UpdatedItems))
	}
	if result.UpdatedItems[0].Classification != model.ClassUpdated {
		t.Errorf("Classification = %v, want %v", result.UpdatedItems[0].Classification, model.ClassUpdated)
	}
}

func TestScan_SameHashTwiceInOneDocument(t *testing.T) {
	ts := scanNow.Add(-1 * time.Hour)
	doc := rssDoc(
		rssItem("ep-1", "第1回", rfc2822(ts)),
		rssItem("ep-1", "第1回", rfc2822(ts)),
	)
	h := newScanHarness(nil, okOutcome(doc))

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatalf("同一文書内の重複ハッシュでエラーになるべきでない: %v", err)
	}
	if result.Counts.New != 1 || result.Counts.Duplicate != 1 {
		t.Errorf("new=%d duplicate=%d, want 1/1", result.Counts.New, result.Counts.Duplicate)
	}
	if got := len(h.writer.last().FirstSeen); got != 1 {
		t.Errorf("first-seen書き込みは1件に抑制されるべき: got %d", got)
	}
}

func TestScan_NotModifiedShortCircuits(t *testing.T) {
	meta := &model.FeedMetadata{
		FeedID:       "feed-1",
		ETag:         `"v1"`,
		TypicalOrder: model.OrderReverseChronological,
	}
	h := newScanHarness(meta, FetchOutcome{Status: FetchNotModified, HTTPStatus: 304})

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatal(err)
	}
	if !result.ETagHit {
		t.Error("304はETagHitとして報告されるべき")
	}
	if len(result.NewItems) != 0 {
		t.Error("304では候補を出さないべき")
	}

	writes := h.writer.last()
	if writes == nil {
		t.Fatal("last_checkedの更新は書き込まれるべき")
	}
	if !writes.LastCheckedAt.Equal(scanNow) {
		t.Errorf("LastCheckedAt = %v, want %v", writes.LastCheckedAt, scanNow)
	}
	if writes.Metadata != nil || len(writes.FirstSeen) != 0 || len(writes.SeenAgain) != 0 {
		t.Error("304ではメタデータと台帳に触れないべき")
	}
}

func TestScan_FetchFailureIsReportedNotFatal(t *testing.T) {
	h := newScanHarness(nil, FetchOutcome{
		Status:        FetchFailed,
		FailureReason: model.FailureFetchTransient,
		Err:           fmt.Errorf("connection refused"),
	})

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatalf("フェッチ失敗はerrorではなく結果で報告されるべき: %v", err)
	}
	if result.FailureReason != model.FailureFetchTransient {
		t.Errorf("FailureReason = %q, want %q", result.FailureReason, model.FailureFetchTransient)
	}
	if result.Counts.Errors != 1 {
		t.Errorf("Counts.Errors = %d, want 1", result.Counts.Errors)
	}
	if h.writer.last().Metadata != nil {
		t.Error("フェッチ失敗時はメタデータを更新しないべき")
	}
}

func TestScan_ParseFailureLeavesStateUntouched(t *testing.T) {
	h := newScanHarness(nil, okOutcome("これはXMLではない"))

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatalf("パース失敗はerrorではなく結果で報告されるべき: %v", err)
	}
	if result.FailureReason != model.FailureParse {
		t.Errorf("FailureReason = %q, want %q", result.FailureReason, model.FailureParse)
	}

	writes := h.writer.last()
	if writes.Metadata != nil {
		t.Error("パース失敗時は既存メタデータに触れないべき")
	}
	if len(writes.FirstSeen) != 0 || len(writes.SeenAgain) != 0 {
		t.Error("パース失敗時は台帳に書き込まないべき")
	}
	if !writes.LastCheckedAt.Equal(scanNow) {
		t.Error("last_checkedは更新されるべき")
	}
}

func TestScan_ValidatorsSavedAfterSuccessfulParse(t *testing.T) {
	outcome := okOutcome(rssDoc(rssItem("ep-1", "第1回", rfc2822(scanNow.Add(-1*time.Hour)))))
	outcome.ETag = `"v2"`
	outcome.LastModified = "Mon, 09 Mar 2026 10:00:00 GMT"
	h := newScanHarness(nil, outcome)

	if _, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed")); err != nil {
		t.Fatal(err)
	}

	meta := h.writer.last().Metadata
	if meta == nil {
		t.Fatal("パース成功後はメタデータが書き込まれるべき")
	}
	if meta.ETag != `"v2"` {
		t.Errorf("ETag = %q, want %q", meta.ETag, `"v2"`)
	}
	if meta.LastModifiedHTTP != "Mon, 09 Mar 2026 10:00:00 GMT" {
		t.Errorf("LastModifiedHTTP = %q", meta.LastModifiedHTTP)
	}
}

func TestScan_OrderDetectionUpdatesMetadata(t *testing.T) {
	doc := rssDoc(
		rssItem("ep-3", "第3回", rfc2822(scanNow.Add(-1*time.Hour))),
		rssItem("ep-2", "第2回", rfc2822(scanNow.Add(-2*time.Hour))),
		rssItem("ep-1", "第1回", rfc2822(scanNow.Add(-3*time.Hour))),
	)
	h := newScanHarness(nil, okOutcome(doc))

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatal(err)
	}

	meta := h.writer.last().Metadata
	if meta == nil || meta.TypicalOrder != model.OrderReverseChronological {
		t.Errorf("降順フィードはreverse_chronologicalと判定されるべき: got %v", meta.TypicalOrder)
	}
	if result.Order != model.OrderReverseChronological {
		t.Errorf("result.Order = %v", result.Order)
	}
}

func TestScan_ReverseChronologicalEarlyBreak(t *testing.T) {
	cutoff := scanNow.Add(-48 * time.Hour)
	meta := &model.FeedMetadata{
		FeedID:       "feed-1",
		TypicalOrder: model.OrderReverseChronological,
	}
	// 降順: ウィンドウ内1件のあと期限切れが2件続く
	doc := rssDoc(
		rssItem("ep-3", "第3回", rfc2822(scanNow.Add(-1*time.Hour))),
		rssItem("ep-2", "第2回", rfc2822(cutoff.Add(-1*time.Hour))),
		rssItem("ep-1", "第1回", rfc2822(cutoff.Add(-2*time.Hour))),
	)
	h := newScanHarness(meta, okOutcome(doc))

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Counts.TooOld != 1 {
		t.Errorf("新しい順のフィードは最初の期限切れで打ち切るべき: too_old=%d", result.Counts.TooOld)
	}
	if result.Counts.New != 1 {
		t.Errorf("Counts.New = %d, want 1", result.Counts.New)
	}
	// 打ち切られたエントリは台帳照会も行わない
	if h.seen.lookups != 1 {
		t.Errorf("台帳照会は1回のはず: got %d", h.seen.lookups)
	}
}

func TestScan_UnknownOrderScansAllEntries(t *testing.T) {
	cutoff := scanNow.Add(-48 * time.Hour)
	// 保存済み並び順がunknownなら期限切れ後も走査を続ける
	doc := rssDoc(
		rssItem("ep-3", "第3回", rfc2822(scanNow.Add(-1*time.Hour))),
		rssItem("ep-1", "第1回", rfc2822(cutoff.Add(-2*time.Hour))),
		rssItem("ep-2", "第2回", rfc2822(scanNow.Add(-2*time.Hour))),
	)
	h := newScanHarness(nil, okOutcome(doc))

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Counts.New != 2 {
		t.Errorf("unknownでは全件走査するべき: new=%d", result.Counts.New)
	}
	if result.Counts.TooOld != 1 {
		t.Errorf("Counts.TooOld = %d, want 1", result.Counts.TooOld)
	}
}

func TestScan_LookbackOverrideApplied(t *testing.T) {
	override := 24
	meta := &model.FeedMetadata{
		FeedID:                "feed-1",
		LookbackHoursOverride: &override,
	}
	// 36時間前: デフォルト48hなら含まれるが、上書き24hでは期限切れ
	doc := rssDoc(rssItem("ep-1", "第1回", rfc2822(scanNow.Add(-36*time.Hour))))
	h := newScanHarness(meta, okOutcome(doc))

	result, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err != nil {
		t.Fatal(err)
	}
	if result.Counts.TooOld != 1 || result.Counts.New != 0 {
		t.Errorf("フィードごとの上書きが適用されるべき: too_old=%d new=%d",
			result.Counts.TooOld, result.Counts.New)
	}
}

func TestScan_NoDateWarningThrottled(t *testing.T) {
	doc := rssDoc(rssItem("ep-0", "番外編", ""))

	// 初回: 警告とともにLastNoDateAtが記録される
	h := newScanHarness(nil, okOutcome(doc))
	if _, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed")); err != nil {
		t.Fatal(err)
	}
	meta := h.writer.last().Metadata
	if meta == nil || meta.LastNoDateAt == nil || !meta.LastNoDateAt.Equal(scanNow) {
		t.Fatal("日付なしフィードの初回スキャンでLastNoDateAtが記録されるべき")
	}

	// 24時間以内の再スキャン: タイムスタンプは更新されない
	recent := scanNow.Add(-1 * time.Hour)
	h = newScanHarness(&model.FeedMetadata{FeedID: "feed-1", LastNoDateAt: &recent}, okOutcome(doc))
	if _, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed")); err != nil {
		t.Fatal(err)
	}
	meta = h.writer.last().Metadata
	if meta.LastNoDateAt == nil || !meta.LastNoDateAt.Equal(recent) {
		t.Error("24時間以内は警告を抑制しタイムスタンプを維持すべき")
	}

	// 24時間経過後: 再度警告し、タイムスタンプが進む
	stale := scanNow.Add(-25 * time.Hour)
	h = newScanHarness(&model.FeedMetadata{FeedID: "feed-1", LastNoDateAt: &stale}, okOutcome(doc))
	if _, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed")); err != nil {
		t.Fatal(err)
	}
	meta = h.writer.last().Metadata
	if meta.LastNoDateAt == nil || !meta.LastNoDateAt.Equal(scanNow) {
		t.Error("24時間経過後は警告が再発し、タイムスタンプが更新されるべき")
	}
}

func TestScan_DuplicateFirstSeenAbortsScan(t *testing.T) {
	doc := rssDoc(rssItem("ep-1", "第1回", rfc2822(scanNow.Add(-1*time.Hour))))
	h := newScanHarness(nil, okOutcome(doc))

	// 一意制約違反をライターから返し、ランを止めるべきエラーとして伝播することを確認する
	h.writer.applyErr = fmt.Errorf("feed=feed-1: %w", model.ErrDuplicateFirstSeen)

	_, err := h.scanner.Scan(context.Background(), testFeed("https://example.com/feed"))
	if err == nil {
		t.Fatal("first-seenの二重書き込みはエラーとして伝播すべき")
	}
	if !errors.Is(err, model.ErrDuplicateFirstSeen) {
		t.Errorf("ErrDuplicateFirstSeenとして判別できるべき: %v", err)
	}
}
