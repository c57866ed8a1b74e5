package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/feedscan/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const uniqueViolation = "23505"

// PostgresScanWriter はフィード1回のスキャン結果をPostgreSQLへ適用する。
// メタデータとitems_seenの更新を単一トランザクションとしてコミットすることで、
// フィード単位の書き込みが部分適用された状態を残さない。
type PostgresScanWriter struct {
	db *sql.DB
}

// NewPostgresScanWriter はPostgresScanWriterを生成する。
func NewPostgresScanWriter(db *sql.DB) *PostgresScanWriter {
	return &PostgresScanWriter{db: db}
}

// ApplyScanWrites はScanWritesの内容を1トランザクションで適用する。
// first-seenはINSERTのみで行い、一意制約違反はmodel.ErrDuplicateFirstSeenとして返す。
// これは上流の分類ロジックの不変条件違反を示すため、静かに上書きしてはならない。
func (w *PostgresScanWriter) ApplyScanWrites(ctx context.Context, writes *model.ScanWrites) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for _, fs := range writes.FirstSeen {
		if err := recordFirstSeen(ctx, tx, writes.FeedID, fs); err != nil {
			return err
		}
	}

	for _, sa := range writes.SeenAgain {
		if _, err := recordSeenAgain(ctx, tx, writes.FeedID, sa); err != nil {
			return err
		}
	}

	if writes.Metadata != nil {
		if err := updateMetadata(ctx, tx, writes.Metadata); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE feeds SET last_checked_at = $2, updated_at = $2 WHERE id = $1`,
		writes.FeedID, writes.LastCheckedAt,
	)
	if err != nil {
		return fmt.Errorf("last_checked_atの更新に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("スキャン書き込みのコミットに失敗しました: %w", err)
	}
	return nil
}

// recordFirstSeen は(feed_id, item_hash)の初観測を記録する。
// first_seen_utcとlast_seen_utcは同じ観測時刻で初期化される。
func recordFirstSeen(ctx context.Context, tx *sql.Tx, feedID string, fs model.SeenWrite) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO items_seen (feed_id, item_hash, first_seen_utc, last_seen_utc, content_hash)
		 VALUES ($1, $2, $3, $3, $4)`,
		feedID, fs.ItemHash, fs.At, nullString(fs.ContentHash),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return fmt.Errorf("feed=%s item_hash=%s: %w", feedID, fs.ItemHash, model.ErrDuplicateFirstSeen)
		}
		return fmt.Errorf("first-seenの記録に失敗しました: %w", err)
	}
	return nil
}

// recordSeenAgain は既知アイテムの再出現を記録する。
// last_seen_utcは常に更新し、content_hashは変化した場合のみ更新してchanged=trueを返す。
// first_seen_utcには一切触れない。
func recordSeenAgain(ctx context.Context, tx *sql.Tx, feedID string, sa model.SeenWrite) (changed bool, err error) {
	var stored sql.NullString
	err = tx.QueryRowContext(ctx,
		`SELECT content_hash FROM items_seen WHERE feed_id = $1 AND item_hash = $2 FOR UPDATE`,
		feedID, sa.ItemHash,
	).Scan(&stored)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("seen-again対象のレコードが存在しません: feed=%s item_hash=%s", feedID, sa.ItemHash)
	}
	if err != nil {
		return false, fmt.Errorf("items_seenの読み取りに失敗しました: %w", err)
	}

	changed = sa.ContentHash != "" && stored.String != sa.ContentHash

	if changed {
		_, err = tx.ExecContext(ctx,
			`UPDATE items_seen SET last_seen_utc = $3, content_hash = $4
			 WHERE feed_id = $1 AND item_hash = $2`,
			feedID, sa.ItemHash, sa.At, sa.ContentHash,
		)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE items_seen SET last_seen_utc = $3
			 WHERE feed_id = $1 AND item_hash = $2`,
			feedID, sa.ItemHash, sa.At,
		)
	}
	if err != nil {
		return false, fmt.Errorf("seen-againの記録に失敗しました: %w", err)
	}
	return changed, nil
}

// updateMetadata はフィードメタデータ行を更新する。
func updateMetadata(ctx context.Context, tx *sql.Tx, meta *model.FeedMetadata) error {
	var override sql.NullInt64
	if meta.LookbackHoursOverride != nil {
		override = sql.NullInt64{Int64: int64(*meta.LookbackHoursOverride), Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`UPDATE feed_metadata SET
		    etag = $2, last_modified_http = $3, typical_order = $4,
		    lookback_hours_override = $5, last_warning_ts = $6, last_no_date_ts = $7,
		    notes = $8, updated_at = $9
		 WHERE feed_id = $1`,
		meta.FeedID, meta.ETag, meta.LastModifiedHTTP, meta.TypicalOrder,
		override, meta.LastWarningAt, meta.LastNoDateAt, meta.Notes, meta.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードメタデータの更新に失敗しました: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// compile-time interface check
var _ ScanWriter = (*PostgresScanWriter)(nil)
