package scanner

import (
	"testing"
	"time"

	"github.com/hitoshi/feedscan/internal/model"
)

func TestResolveDate_PublishedParsedPriority(t *testing.T) {
	published := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entry := &model.RawEntry{
		PublishedParsed: &published,
		UpdatedParsed:   &updated,
		Published:       "Sun, 1 Mar 2026 12:00:00 +0900",
	}

	got, source := ResolveDate(entry)
	if got == nil {
		t.Fatal("日時が解決されるべき")
	}
	if !got.Equal(published) {
		t.Errorf("published_parsedが最優先のはず: got %v, want %v", got, published)
	}
	if source != "published_parsed" {
		t.Errorf("source = %q, want published_parsed", source)
	}
}

func TestResolveDate_UpdatedParsedFallback(t *testing.T) {
	updated := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entry := &model.RawEntry{UpdatedParsed: &updated}

	got, source := ResolveDate(entry)
	if got == nil || !got.Equal(updated) {
		t.Errorf("updated_parsedにフォールバックすべき: got %v", got)
	}
	if source != "updated_parsed" {
		t.Errorf("source = %q, want updated_parsed", source)
	}
}

func TestResolveDate_RFC2822String(t *testing.T) {
	entry := &model.RawEntry{Published: "Mon, 2 Mar 2026 15:04:05 +0900"}

	got, source := ResolveDate(entry)
	if got == nil {
		t.Fatal("RFC-2822文字列から解決されるべき")
	}
	want := time.Date(2026, 3, 2, 6, 4, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("UTCへ正規化されるべき: got %v, want %v", got, want)
	}
	if source != "published" {
		t.Errorf("source = %q, want published", source)
	}
}

func TestResolveDate_ISO8601String(t *testing.T) {
	entry := &model.RawEntry{Updated: "2026-03-02T15:04:05Z"}

	got, source := ResolveDate(entry)
	if got == nil {
		t.Fatal("ISO-8601文字列から解決されるべき")
	}
	want := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if source != "updated" {
		t.Errorf("source = %q, want updated", source)
	}
}

func TestResolveDate_NaiveTimestampIsUTC(t *testing.T) {
	// タイムゾーンのない日時はローカル時刻ではなくUTCとみなす
	entry := &model.RawEntry{Published: "2026-03-02T15:04:05"}

	got, _ := ResolveDate(entry)
	if got == nil {
		t.Fatal("タイムゾーンなしの日時から解決されるべき")
	}
	want := time.Date(2026, 3, 2, 15, 4, 5, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("タイムゾーンなしはUTCとみなすべき: got %v, want %v", got, want)
	}
}

func TestResolveDate_DCDateFallback(t *testing.T) {
	entry := &model.RawEntry{Date: "2026-03-02"}

	got, source := ResolveDate(entry)
	if got == nil {
		t.Fatal("dc:dateから解決されるべき")
	}
	if source != "date" {
		t.Errorf("source = %q, want date", source)
	}
}

func TestResolveDate_NoDate(t *testing.T) {
	entry := &model.RawEntry{Title: "日付なしエントリ"}

	got, source := ResolveDate(entry)
	if got != nil {
		t.Errorf("日付フィールドなしはnilを返すべき: got %v", got)
	}
	if source != "none" {
		t.Errorf("source = %q, want none", source)
	}
}

func TestResolveDate_UnparseableString(t *testing.T) {
	entry := &model.RawEntry{Published: "いつか"}

	got, source := ResolveDate(entry)
	if got != nil {
		t.Errorf("解析不能な文字列はnilを返すべき: got %v", got)
	}
	if source != "none" {
		t.Errorf("source = %q, want none", source)
	}
}
