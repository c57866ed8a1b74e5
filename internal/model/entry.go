package model

import "time"

// RawEntry はパース済みフィードから取り出した1エントリの正規化表現。
// RSS/Atom/YouTube間の表現差はフィールドマッピングでここに吸収し、
// 以降のコンポーネントはフィード種別を意識しない。
type RawEntry struct {
	GUID            string
	Title           string
	Link            string
	EnclosureURL    string
	Summary         string
	Published       string // 文字列のままの公開日時（構造化値がない場合の解析対象）
	Updated         string
	Date            string
	PublishedParsed *time.Time
	UpdatedParsed   *time.Time
}

// SeenRecord は重複排除台帳items_seenの1行を表す。
// (feed_id, item_hash)が一意で、first_seen_utcは一度書かれたら不変。
type SeenRecord struct {
	FeedID       string
	ItemHash     string
	FirstSeenUTC time.Time
	LastSeenUTC  time.Time
	ContentHash  string
}

// Classification はスキャナーによるエントリの分類結果を表す。
type Classification string

const (
	// ClassNew は初めて観測された新規アイテム。
	ClassNew Classification = "new"
	// ClassUpdated は同一アイテムの再公開（内容変更あり）。
	ClassUpdated Classification = "updated"
	// ClassDuplicate は既知アイテムの再出現（内容変更なし）。
	ClassDuplicate Classification = "duplicate"
	// ClassTooOld はルックバック期間より古いアイテム。
	ClassTooOld Classification = "too_old"
	// ClassNoDateFirstSeen は日付を持たないアイテムの初観測。
	// 観測時刻を合成タイムスタンプとして候補に含める。
	ClassNoDateFirstSeen Classification = "no_date_first_seen"
)

// CandidateItem はスキャナーが下流（ダウンロード・文字起こし段）へ渡す出力単位。
// このエンジンでは永続化しない。
type CandidateItem struct {
	FeedID         string
	Title          string
	Link           string
	EnclosureURL   string
	PublishedUTC   time.Time // 実日付または合成タイムスタンプ（UTC）
	ItemHash       string
	Classification Classification
}
