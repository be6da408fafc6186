package game

import (
	"context"
	"time"
)

// WebsocketConnection is the transport of one participant.
type WebsocketConnection interface {
	Close()
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

// WordsGenerator offers word suggestions. It is called from inside Session
// transitions, so it must not block.
type WordsGenerator interface {
	Generate(count int) []string
}

type UniqueIdGenerator interface {
	Generate() string
}

type PeriodicTickerChannelCreator interface {
	Create(duration time.Duration) <-chan time.Time
}

// TurnArchiver stores finished turns outside of the room goroutine.
type TurnArchiver interface {
	ArchiveTurn(ctx context.Context, rec ArchivedTurn) error
}
