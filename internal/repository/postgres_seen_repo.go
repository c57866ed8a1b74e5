package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/feedscan/internal/model"
)

// PostgresItemSeenRepo はPostgreSQLを使用した重複排除台帳リポジトリ。
type PostgresItemSeenRepo struct {
	db *sql.DB
}

// NewPostgresItemSeenRepo はPostgresItemSeenRepoを生成する。
func NewPostgresItemSeenRepo(db *sql.DB) *PostgresItemSeenRepo {
	return &PostgresItemSeenRepo{db: db}
}

// Lookup は(feed_id, item_hash)でレコードを検索する。見つからない場合はnilを返す。
func (r *PostgresItemSeenRepo) Lookup(ctx context.Context, feedID, itemHash string) (*model.SeenRecord, error) {
	rec := &model.SeenRecord{}
	var contentHash sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT feed_id, item_hash, first_seen_utc, last_seen_utc, content_hash
		 FROM items_seen WHERE feed_id = $1 AND item_hash = $2`,
		feedID, itemHash,
	).Scan(&rec.FeedID, &rec.ItemHash, &rec.FirstSeenUTC, &rec.LastSeenUTC, &contentHash)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("items_seenの検索に失敗しました: %w", err)
	}

	if contentHash.Valid {
		rec.ContentHash = contentHash.String
	}

	return rec, nil
}

// DeleteOlderThan はlast_seen_utcがcutoffより古い行を削除し、削除行数を返す。
func (r *PostgresItemSeenRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM items_seen WHERE last_seen_utc < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("items_seenの保持期間スイープに失敗しました: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除行数の取得に失敗しました: %w", err)
	}
	return n, nil
}

// compile-time interface check
var _ ItemSeenRepository = (*PostgresItemSeenRepo)(nil)
