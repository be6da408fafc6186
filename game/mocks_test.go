package game

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"
)

// --- WebsocketConnection ---

type MockWebsocketConnection struct {
	mock.Mock
}

func (m *MockWebsocketConnection) Close() {
	m.Called()
}

func (m *MockWebsocketConnection) Write(data []byte) error {
	args := m.Called(data)
	return args.Error(0)
}

func (m *MockWebsocketConnection) Read() ([]byte, error) {
	args := m.Called()
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockWebsocketConnection) Ping() error {
	args := m.Called()
	return args.Error(0)
}

// --- WordsGenerator ---

type MockWordsGenerator struct {
	mock.Mock
}

func (m *MockWordsGenerator) Generate(count int) []string {
	args := m.Called(count)
	return args.Get(0).([]string)
}

// --- UniqueIdGenerator ---

type MockUniqueIdGenerator struct {
	mock.Mock
}

func (m *MockUniqueIdGenerator) Generate() string {
	args := m.Called()
	return args.String(0)
}

// --- PeriodicTickerChannelCreator ---

type MockPeriodicTickerChannelCreator struct {
	mock.Mock
}

func (m *MockPeriodicTickerChannelCreator) Create(duration time.Duration) <-chan time.Time {
	args := m.Called(duration)
	return args.Get(0).(chan time.Time)
}

// --- TurnArchiver ---

type MockTurnArchiver struct {
	mock.Mock
}

func (m *MockTurnArchiver) ArchiveTurn(ctx context.Context, rec ArchivedTurn) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// --- TurnHistory ---

type MockTurnHistory struct {
	mock.Mock
}

func (m *MockTurnHistory) RecentTurns(ctx context.Context, room string, limit int) ([]ArchivedTurn, error) {
	args := m.Called(ctx, room, limit)
	return args.Get(0).([]ArchivedTurn), args.Error(1)
}

// --- roomMailbox ---

type MockRoomMailbox struct {
	mock.Mock
}

func (m *MockRoomMailbox) Inbound(ctx context.Context, from ParticipantID, ev Event) error {
	args := m.Called(ctx, from, ev)
	return args.Error(0)
}

func (m *MockRoomMailbox) Leave(ctx context.Context, id ParticipantID) {
	m.Called(ctx, id)
}

// --- roomParent ---

type MockRoomParent struct {
	mock.Mock
}

func (m *MockRoomParent) RequestUpdateDescription(desc RoomDescription) {
	m.Called(desc)
}

func (m *MockRoomParent) RemoveRoom(c *Coordinator) {
	m.Called(c)
}

// fixedWords always suggests the same words.
type fixedWords []string

func (w fixedWords) Generate(count int) []string {
	return append([]string(nil), w[:min(count, len(w))]...)
}
