package model

import "errors"

// ErrDuplicateFirstSeen は同一(feed, item_hash)に対する2回目のfirst-seen書き込みを示す。
// 環境要因ではなくスキャナー側の不変条件違反であり、ラン全体を中断させる。
var ErrDuplicateFirstSeen = errors.New("first-seenの二重書き込み: (feed, item_hash)は既に記録済み")

// ErrInvalidLookback はルックバック時間の設定値が許容範囲[1, 168]を外れていることを示す。
// 起動時の設定エラーとして致命的に扱う。
var ErrInvalidLookback = errors.New("ルックバック時間が許容範囲[1, 168]を外れている")
