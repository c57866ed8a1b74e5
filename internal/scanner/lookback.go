package scanner

import "time"

const (
	// minLookbackHours / maxLookbackHours はルックバック時間の許容範囲。
	minLookbackHours = 1
	maxLookbackHours = 168
)

// LookbackPolicy はフィードごとの実効カットオフ時刻を計算する。
// 現在時刻とフィード設定のみの純関数であり、items_seenの読み書きは行わない。
type LookbackPolicy struct {
	// DefaultHours はグローバルデフォルトのルックバック時間。
	// 範囲外の値は起動時の設定検証で弾かれている前提。
	DefaultHours int
	// Grace はスケジューラのジッタを吸収する猶予時間。
	// ウィンドウをこの分だけ過去方向に広げ、境界直内のエントリが
	// 実行タイミングのずれで落ちるのを防ぐ。
	Grace time.Duration
}

// Cutoff は実効カットオフ時刻と適用されたルックバックの出所を返す。
// 出所は"override"（フィードごとの上書き）または"default"。
// フィードごとの上書きは[1, 168]にクランプされる。
func (p LookbackPolicy) Cutoff(now time.Time, override *int) (time.Time, string) {
	hours := clampHours(p.DefaultHours)
	source := "default"
	if override != nil {
		hours = clampHours(*override)
		source = "override"
	}

	cutoff := now.UTC().Add(-time.Duration(hours) * time.Hour).Add(-p.Grace)
	return cutoff, source
}

// clampHours はルックバック時間を許容範囲[1, 168]に収める。
func clampHours(h int) int {
	if h < minLookbackHours {
		return minLookbackHours
	}
	if h > maxLookbackHours {
		return maxLookbackHours
	}
	return h
}
