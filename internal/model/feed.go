// Package model はドメインモデルを定義する。
package model

import "time"

// Feed はポーリング対象の購読フィードを表す。
// feeds.ymlから同期され、削除ではなく非アクティブ化で履歴を保持する。
type Feed struct {
	ID            string
	SourceURL     string
	Kind          FeedKind
	Title         string
	Active        bool
	LastCheckedAt *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FeedKind はフィードの種別を表す。
type FeedKind string

const (
	// FeedKindRSS はRSSフィード。
	FeedKindRSS FeedKind = "rss"
	// FeedKindAtom はAtomフィード。
	FeedKindAtom FeedKind = "atom"
	// FeedKindYouTube はRSSとして公開されるYouTubeチャンネル。
	FeedKindYouTube FeedKind = "youtube"
)

// ValidFeedKind はフィード種別が定義済みの値かを返す。
func ValidFeedKind(k FeedKind) bool {
	switch k {
	case FeedKindRSS, FeedKindAtom, FeedKindYouTube:
		return true
	}
	return false
}

// FeedMetadata はフィードごとのキャッシュ・挙動状態を表す（Feedと1:1）。
// スキャナーのみが実行後に更新する。削除されることはない。
type FeedMetadata struct {
	FeedID                string
	ETag                  string
	LastModifiedHTTP      string
	TypicalOrder          TypicalOrder
	LookbackHoursOverride *int
	LastWarningAt         *time.Time
	LastNoDateAt          *time.Time
	Notes                 string
	UpdatedAt             time.Time
}

// TypicalOrder はフィードのエントリ並び順の分類を表す。
type TypicalOrder string

const (
	// OrderReverseChronological は新しい順（先頭が最新）。
	OrderReverseChronological TypicalOrder = "reverse_chronological"
	// OrderChronological は古い順（先頭が最古）。
	OrderChronological TypicalOrder = "chronological"
	// OrderUnknown は並び順を判定できない状態。
	// unknownの場合は早期打ち切り最適化を行わず全エントリを走査する。
	OrderUnknown TypicalOrder = "unknown"
)
