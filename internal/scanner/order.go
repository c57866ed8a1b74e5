package scanner

import (
	"time"

	"github.com/hitoshi/feedscan/internal/model"
)

// defaultOrderSample は並び順判定に使う日付付きエントリのサンプル数。
const defaultOrderSample = 10

// DetectOrder はフィードが提示した順の日付付きタイムスタンプから並び順を判定する。
// 先頭sampleSize件を標本とし、厳密に降順ならreverse_chronological、
// 厳密に昇順ならchronological、それ以外（同時刻含む）はunknownを返す。
// 日付付きエントリが2件未満の場合もunknownを返す。
func DetectOrder(times []time.Time, sampleSize int) model.TypicalOrder {
	if sampleSize <= 0 {
		sampleSize = defaultOrderSample
	}
	if len(times) > sampleSize {
		times = times[:sampleSize]
	}
	if len(times) < 2 {
		return model.OrderUnknown
	}

	descending := true
	ascending := true
	for i := 1; i < len(times); i++ {
		if !times[i].Before(times[i-1]) {
			descending = false
		}
		if !times[i].After(times[i-1]) {
			ascending = false
		}
	}

	switch {
	case descending:
		return model.OrderReverseChronological
	case ascending:
		return model.OrderChronological
	default:
		return model.OrderUnknown
	}
}
