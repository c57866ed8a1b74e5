// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/feedscan/internal/model"
)

// FeedRepository はフィードとフィードメタデータの永続化インターフェース。
type FeedRepository interface {
	// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Feed, error)

	// ListActive はアクティブなフィードの一覧をID昇順で返す。
	ListActive(ctx context.Context) ([]*model.Feed, error)

	// Create はフィードとその初期メタデータ行を同一トランザクションで作成する。
	Create(ctx context.Context, feed *model.Feed) error

	// Update はフィードのsource_url、kind、title、activeを更新する。
	Update(ctx context.Context, feed *model.Feed) error

	// Deactivate は指定IDのフィードを非アクティブ化する。行は削除しない。
	Deactivate(ctx context.Context, id string) error

	// GetMetadata は指定フィードのメタデータを取得する。見つからない場合はnilを返す。
	GetMetadata(ctx context.Context, feedID string) (*model.FeedMetadata, error)

	// UpdateLookbackOverride はフィードのルックバック時間オーバーライドを設定する。
	// nilを渡すとオーバーライドを解除しグローバルデフォルトに戻す。
	UpdateLookbackOverride(ctx context.Context, feedID string, hours *int) error
}

// ItemSeenRepository は重複排除台帳items_seenの読み取りと保守のインターフェース。
// スキャン中の書き込みはScanWriterを通じてトランザクション単位で適用される。
type ItemSeenRepository interface {
	// Lookup は(feed_id, item_hash)でレコードを検索する。見つからない場合はnilを返す。
	Lookup(ctx context.Context, feedID, itemHash string) (*model.SeenRecord, error)

	// DeleteOlderThan はlast_seen_utcがcutoffより古い行を削除し、削除行数を返す。
	// 時間制限付きの保守処理であり、エンジンの正しさの契約には含まれない。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ScanWriter はフィード1回のスキャン結果の永続化インターフェース。
// メタデータとitems_seenの更新を単一トランザクションとしてコミットし、
// ランレベルのタイムアウトが部分適用を残さないことを保証する。
type ScanWriter interface {
	// ApplyScanWrites はScanWritesの内容を1トランザクションで適用する。
	// first-seenの重複挿入を検出した場合はmodel.ErrDuplicateFirstSeenを返す。
	ApplyScanWrites(ctx context.Context, writes *model.ScanWrites) error
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
