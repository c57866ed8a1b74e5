// Package feedconf はfeeds.yml購読設定の読み込みとデータベースへの同期を提供する。
package feedconf

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hitoshi/feedscan/internal/model"
)

// File はfeeds.ymlのルート構造。
type File struct {
	Feeds []Entry `yaml:"feeds"`
}

// Entry はfeeds.ymlのフィード1件分の定義。
type Entry struct {
	ID            string `yaml:"id"`
	URL           string `yaml:"url"`
	Kind          string `yaml:"kind"`
	Title         string `yaml:"title"`
	LookbackHours *int   `yaml:"lookback_hours"`
}

// Load はfeeds.ymlを読み込み、検証して返す。
// ID重複、URL欠落、種別不正、ルックバック範囲外は設定エラーとして返す。
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("フィード設定ファイルの読み込みに失敗しました: %w", err)
	}

	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("フィード設定ファイルのパースに失敗しました: %w", err)
	}

	if err := validate(&file); err != nil {
		return nil, err
	}

	return &file, nil
}

// validate はfeeds.ymlの内容を検証する。
func validate(file *File) error {
	seen := make(map[string]bool)

	for i, entry := range file.Feeds {
		if entry.ID == "" {
			return fmt.Errorf("feeds[%d]: idが未設定です", i)
		}
		if seen[entry.ID] {
			return fmt.Errorf("feeds[%d]: id %q が重複しています", i, entry.ID)
		}
		seen[entry.ID] = true

		if entry.URL == "" {
			return fmt.Errorf("feeds[%d] (%s): urlが未設定です", i, entry.ID)
		}

		kind := entry.Kind
		if kind == "" {
			kind = string(model.FeedKindRSS)
		}
		if !model.ValidFeedKind(model.FeedKind(kind)) {
			return fmt.Errorf("feeds[%d] (%s): 未知のkind %q（rss/atom/youtubeのいずれか）", i, entry.ID, entry.Kind)
		}

		if entry.LookbackHours != nil {
			h := *entry.LookbackHours
			if h < 1 || h > 168 {
				return fmt.Errorf("feeds[%d] (%s): lookback_hours=%d は許容範囲[1, 168]を外れています", i, entry.ID, h)
			}
		}
	}

	return nil
}

// FeedKind はエントリのフィード種別を返す。未指定の場合はrssとみなす。
func (e Entry) FeedKind() model.FeedKind {
	if e.Kind == "" {
		return model.FeedKindRSS
	}
	return model.FeedKind(e.Kind)
}
