package feedconf

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/feedscan/internal/model"
	"github.com/hitoshi/feedscan/internal/repository"
)

// URLResolver はソースURLをポーリング可能なフィードURLへ解決するインターフェース。
type URLResolver interface {
	Resolve(ctx context.Context, sourceURL string) (string, error)
}

// Syncer はfeeds.ymlの内容をデータベースへ同期する。
// ファイルに存在しないフィードは削除ではなく非アクティブ化し、履歴を保持する。
type Syncer struct {
	feedRepo repository.FeedRepository
	resolver URLResolver
	logger   *slog.Logger
}

// NewSyncer はSyncerの新しいインスタンスを生成する。
func NewSyncer(feedRepo repository.FeedRepository, resolver URLResolver, logger *slog.Logger) *Syncer {
	return &Syncer{
		feedRepo: feedRepo,
		resolver: resolver,
		logger:   logger,
	}
}

// Sync はfeeds.ymlの内容をデータベースへ反映する。
// 新規フィードは作成、既存フィードはURL・種別・タイトル・ルックバック上書きを更新、
// ファイルから消えたアクティブフィードは非アクティブ化する。
func (s *Syncer) Sync(ctx context.Context, file *File) error {
	now := time.Now().UTC()
	inFile := make(map[string]bool, len(file.Feeds))

	for _, entry := range file.Feeds {
		inFile[entry.ID] = true

		sourceURL := entry.URL
		// YouTubeチャンネル等、フィード本体でないURLはポーリング可能なURLへ解決する
		if entry.FeedKind() == model.FeedKindYouTube {
			resolved, err := s.resolver.Resolve(ctx, entry.URL)
			if err != nil {
				return fmt.Errorf("feed=%s: フィードURLの解決に失敗しました: %w", entry.ID, err)
			}
			sourceURL = resolved
		}

		existing, err := s.feedRepo.FindByID(ctx, entry.ID)
		if err != nil {
			return fmt.Errorf("feed=%s: %w", entry.ID, err)
		}

		if existing == nil {
			feed := &model.Feed{
				ID:        entry.ID,
				SourceURL: sourceURL,
				Kind:      entry.FeedKind(),
				Title:     entry.Title,
				Active:    true,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.feedRepo.Create(ctx, feed); err != nil {
				return fmt.Errorf("feed=%s: %w", entry.ID, err)
			}
			s.logger.Info("フィードを登録しました",
				slog.String("feed_id", entry.ID),
				slog.String("source_url", sourceURL),
				slog.String("kind", string(entry.FeedKind())),
			)
		} else if existing.SourceURL != sourceURL ||
			existing.Kind != entry.FeedKind() ||
			existing.Title != entry.Title ||
			!existing.Active {
			existing.SourceURL = sourceURL
			existing.Kind = entry.FeedKind()
			existing.Title = entry.Title
			existing.Active = true
			existing.UpdatedAt = now
			if err := s.feedRepo.Update(ctx, existing); err != nil {
				return fmt.Errorf("feed=%s: %w", entry.ID, err)
			}
			s.logger.Info("フィード定義を更新しました",
				slog.String("feed_id", entry.ID),
				slog.String("source_url", sourceURL),
			)
		}

		if err := s.feedRepo.UpdateLookbackOverride(ctx, entry.ID, entry.LookbackHours); err != nil {
			return fmt.Errorf("feed=%s: %w", entry.ID, err)
		}
	}

	// ファイルから消えたフィードの非アクティブ化
	active, err := s.feedRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, feed := range active {
		if inFile[feed.ID] {
			continue
		}
		if err := s.feedRepo.Deactivate(ctx, feed.ID); err != nil {
			return fmt.Errorf("feed=%s: %w", feed.ID, err)
		}
		s.logger.Info("フィードを非アクティブ化しました",
			slog.String("feed_id", feed.ID),
		)
	}

	return nil
}
