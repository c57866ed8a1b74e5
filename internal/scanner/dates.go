package scanner

import (
	"time"

	"github.com/araddon/dateparse"

	"github.com/hitoshi/feedscan/internal/model"
)

// rfc2822Layouts はRFC-2822系の日時フォーマット。RSS 2.0のpubDateはこの形式。
var rfc2822Layouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
	time.RFC822Z,
	time.RFC822,
}

// iso8601Layouts はISO-8601系の日時フォーマット。Atomのpublished/updatedはこの形式。
var iso8601Layouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ResolveDate はエントリから公開・更新日時を解決する。
// 構造化された公開日時 → 構造化された更新日時 → 文字列フィールド
// （published、updated、date）の順で試行し、文字列はRFC-2822 → ISO-8601 →
// 汎用パーサーの順で解析する。すべてUTCに正規化し、タイムゾーンのない
// 日時はUTCとみなす（ローカル時刻とはみなさない）。
// どのフィールドからも解決できない場合は(nil, "none")を返す。
// これはエラーではなく分類の有効な入力である。
func ResolveDate(e *model.RawEntry) (*time.Time, string) {
	if e.PublishedParsed != nil {
		t := e.PublishedParsed.UTC()
		return &t, "published_parsed"
	}
	if e.UpdatedParsed != nil {
		t := e.UpdatedParsed.UTC()
		return &t, "updated_parsed"
	}

	candidates := []struct {
		name  string
		value string
	}{
		{"published", e.Published},
		{"updated", e.Updated},
		{"date", e.Date},
	}

	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		if t, ok := parseDateString(c.value); ok {
			return &t, c.name
		}
	}

	return nil, "none"
}

// parseDateString は日時文字列をRFC-2822 → ISO-8601 → 汎用パーサーの順で解析する。
func parseDateString(s string) (time.Time, bool) {
	for _, layout := range rfc2822Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range iso8601Layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}

	// 上記に一致しない表記はdateparseに委ねる。タイムゾーンなしはUTCとして解釈する。
	if t, err := dateparse.ParseIn(s, time.UTC); err == nil {
		return t.UTC(), true
	}

	return time.Time{}, false
}
