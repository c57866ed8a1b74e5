package model

import "time"

// ScanCounts はフィード1回のスキャンにおける分類別の件数。
type ScanCounts struct {
	New       int
	Updated   int
	Duplicate int
	TooOld    int
	NoDate    int
	Errors    int
}

// ScanResult はスキャナーの唯一の出力契約。
// 下流のダウンロード・文字起こし段がこれを消費する。
type ScanResult struct {
	FeedID        string
	NewItems      []CandidateItem
	UpdatedItems  []CandidateItem
	Counts        ScanCounts
	Duration      time.Duration
	ETagHit       bool
	Order         TypicalOrder
	FailureReason string // 空文字列なら成功
}

// フィードレベル失敗の理由タグ。ScanResult.FailureReasonに設定される。
const (
	// FailureFetchTransient はリトライ上限まで粘った一時的フェッチ失敗。
	FailureFetchTransient = "fetch_transient"
	// FailureFetchPermanent はリトライしない恒久的フェッチ失敗（4xx、DNS失敗）。
	FailureFetchPermanent = "fetch_permanent"
	// FailureOversized は応答サイズ上限超過。
	FailureOversized = "oversized_response"
	// FailureParse はフィード文書のパース失敗。
	FailureParse = "parse_error"
)

// SeenWrite はitems_seenへの書き込み1件分。
type SeenWrite struct {
	ItemHash    string
	ContentHash string
	At          time.Time
}

// ScanWrites はフィード1回のスキャンで確定した永続化内容。
// 分類完了後に単一トランザクションでまとめて適用される（部分適用を許さない）。
type ScanWrites struct {
	FeedID        string
	LastCheckedAt time.Time
	Metadata      *FeedMetadata // nilの場合メタデータは更新しない（304・失敗時）
	FirstSeen     []SeenWrite
	SeenAgain     []SeenWrite
}

// RunSummary はスキャンラン全体の集計。オペレーター向けの健全性一覧に使う。
type RunSummary struct {
	RunID        string
	FeedsScanned int
	FeedsFailed  int
	FailReasons  map[string]int
	TotalNew     int
	TotalUpdated int
	Duration     time.Duration
}
