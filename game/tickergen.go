package game

import "time"

type ticker struct{}

func NewTickerGen() ticker {
	return ticker{}
}

func (ticker) Create(duration time.Duration) <-chan time.Time {
	return time.NewTicker(duration).C
}
