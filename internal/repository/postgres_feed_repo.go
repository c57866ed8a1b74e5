package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/feedscan/internal/model"
)

// PostgresFeedRepo はPostgreSQLを使用したフィードリポジトリ。
type PostgresFeedRepo struct {
	db *sql.DB
}

// NewPostgresFeedRepo はPostgresFeedRepoを生成する。
func NewPostgresFeedRepo(db *sql.DB) *PostgresFeedRepo {
	return &PostgresFeedRepo{db: db}
}

// FindByID は指定IDのフィードを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) FindByID(ctx context.Context, id string) (*model.Feed, error) {
	feed := &model.Feed{}
	var lastChecked sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, source_url, kind, title, active, last_checked_at, created_at, updated_at
		 FROM feeds WHERE id = $1`,
		id,
	).Scan(
		&feed.ID, &feed.SourceURL, &feed.Kind, &feed.Title, &feed.Active,
		&lastChecked, &feed.CreatedAt, &feed.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}

	if lastChecked.Valid {
		feed.LastCheckedAt = &lastChecked.Time
	}

	return feed, nil
}

// ListActive はアクティブなフィードの一覧をID昇順で返す。
func (r *PostgresFeedRepo) ListActive(ctx context.Context) ([]*model.Feed, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, source_url, kind, title, active, last_checked_at, created_at, updated_at
		 FROM feeds WHERE active = TRUE ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブフィード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var feeds []*model.Feed
	for rows.Next() {
		feed := &model.Feed{}
		var lastChecked sql.NullTime

		if err := rows.Scan(
			&feed.ID, &feed.SourceURL, &feed.Kind, &feed.Title, &feed.Active,
			&lastChecked, &feed.CreatedAt, &feed.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("フィード行の読み取りに失敗しました: %w", err)
		}

		if lastChecked.Valid {
			feed.LastCheckedAt = &lastChecked.Time
		}

		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フィード一覧の走査に失敗しました: %w", err)
	}

	return feeds, nil
}

// Create はフィードとその初期メタデータ行を同一トランザクションで作成する。
func (r *PostgresFeedRepo) Create(ctx context.Context, feed *model.Feed) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feeds (id, source_url, kind, title, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		feed.ID, feed.SourceURL, feed.Kind, feed.Title, feed.Active,
		feed.CreatedAt, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの作成に失敗しました: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO feed_metadata (feed_id, typical_order, updated_at)
		 VALUES ($1, $2, $3)`,
		feed.ID, model.OrderUnknown, feed.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードメタデータの作成に失敗しました: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

// Update はフィードのsource_url、kind、title、activeを更新する。
func (r *PostgresFeedRepo) Update(ctx context.Context, feed *model.Feed) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET
		    source_url = $2, kind = $3, title = $4, active = $5, updated_at = $6
		 WHERE id = $1`,
		feed.ID, feed.SourceURL, feed.Kind, feed.Title, feed.Active, feed.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("フィードの更新に失敗しました: %w", err)
	}
	return nil
}

// Deactivate は指定IDのフィードを非アクティブ化する。行は削除しない。
func (r *PostgresFeedRepo) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE feeds SET active = FALSE, updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("フィードの非アクティブ化に失敗しました: %w", err)
	}
	return nil
}

// GetMetadata は指定フィードのメタデータを取得する。見つからない場合はnilを返す。
func (r *PostgresFeedRepo) GetMetadata(ctx context.Context, feedID string) (*model.FeedMetadata, error) {
	meta := &model.FeedMetadata{}
	var override sql.NullInt64
	var lastWarning, lastNoDate sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT feed_id, etag, last_modified_http, typical_order,
		        lookback_hours_override, last_warning_ts, last_no_date_ts, notes, updated_at
		 FROM feed_metadata WHERE feed_id = $1`,
		feedID,
	).Scan(
		&meta.FeedID, &meta.ETag, &meta.LastModifiedHTTP, &meta.TypicalOrder,
		&override, &lastWarning, &lastNoDate, &meta.Notes, &meta.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フィードメタデータの取得に失敗しました: %w", err)
	}

	if override.Valid {
		h := int(override.Int64)
		meta.LookbackHoursOverride = &h
	}
	if lastWarning.Valid {
		meta.LastWarningAt = &lastWarning.Time
	}
	if lastNoDate.Valid {
		meta.LastNoDateAt = &lastNoDate.Time
	}

	return meta, nil
}

// UpdateLookbackOverride はフィードのルックバック時間オーバーライドを設定する。
// nilを渡すとオーバーライドを解除しグローバルデフォルトに戻す。
func (r *PostgresFeedRepo) UpdateLookbackOverride(ctx context.Context, feedID string, hours *int) error {
	var val sql.NullInt64
	if hours != nil {
		val = sql.NullInt64{Int64: int64(*hours), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE feed_metadata SET lookback_hours_override = $2, updated_at = now()
		 WHERE feed_id = $1`,
		feedID, val,
	)
	if err != nil {
		return fmt.Errorf("ルックバックオーバーライドの更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ FeedRepository = (*PostgresFeedRepo)(nil)
