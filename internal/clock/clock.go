// Package clock は現在時刻の取得を抽象化する。
// サービス層に注入し、テストでは固定時刻を与える。
package clock

import "time"

// Clock は現在時刻を返す。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// NewSystem はtime.Nowを使うClockを返す。返す時刻は常にUTC。
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

type fixedClock struct {
	now time.Time
}

// NewFixed は常に同じ時刻を返すClockを返す。
func NewFixed(t time.Time) Clock {
	return fixedClock{now: t.UTC()}
}

func (f fixedClock) Now() time.Time {
	return f.now
}
