package game

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type received struct {
	Me      ParticipantID `json:"me"`
	Payload Snapshot      `json:"payload"`
}

func decodeReceived(t *testing.T, data []byte) received {
	t.Helper()
	var r received
	require.NoError(t, json.Unmarshal(data, &r))
	return r
}

// drain returns every snapshot queued for m without blocking.
func drain(t *testing.T, m Membership) []received {
	t.Helper()
	out := []received{}
	for {
		select {
		case data, ok := <-m.Queue:
			if !ok {
				return out
			}
			out = append(out, decodeReceived(t, data))
		default:
			return out
		}
	}
}

func last(t *testing.T, m Membership) received {
	t.Helper()
	all := drain(t, m)
	require.NotEmpty(t, all)
	return all[len(all)-1]
}

// settle waits until the coordinator handled everything sent before it.
func settle(t *testing.T, c *Coordinator) RoomDescription {
	t.Helper()
	desc, err := c.Description(context.Background())
	require.NoError(t, err)
	return desc
}

func startCoordinator(t *testing.T, cfg RoomConfig, archiver TurnArchiver) (*Coordinator, context.CancelFunc) {
	t.Helper()
	c := NewCoordinator("r1", cfg, fixedWords{"kite", "owl", "zebra"}, archiver, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})
	return c, cancel
}

func join(t *testing.T, c *Coordinator, id ParticipantID) Membership {
	t.Helper()
	m, err := c.Join(context.Background(), id)
	require.NoError(t, err)
	return m
}

func inbound(t *testing.T, c *Coordinator, from ParticipantID, ev Event) {
	t.Helper()
	require.NoError(t, c.Inbound(context.Background(), from, ev))
}

func TestCoordinatorConcurrentJoins(t *testing.T) {
	t.Parallel()
	const n = 12
	c, _ := startCoordinator(t, RoomConfig{MaxParticipants: n, QueueSize: 64}, nil)

	memberships := make([]Membership, n)
	wg := sync.WaitGroup{}
	for i := range n {
		wg.Go(func() {
			m, err := c.Join(context.Background(), ParticipantID(fmt.Sprintf("p%02d", i)))
			assert.NoError(t, err)
			memberships[i] = m
		})
	}
	wg.Wait()
	assert.Equal(t, n, settle(t, c).Participants)

	for i, m := range memberships {
		got := last(t, m)
		assert.Equal(t, ParticipantID(fmt.Sprintf("p%02d", i)), got.Me)
		assert.Len(t, got.Payload.Participants, n)
	}
}

func TestCoordinatorBroadcast(t *testing.T) {
	t.Parallel()
	c, _ := startCoordinator(t, RoomConfig{}, nil)
	a := join(t, c, "a")
	b := join(t, c, "b")
	settle(t, c)
	drain(t, a)
	drain(t, b)

	t.Run("Suggestions Reach Only The Artist", func(t *testing.T) {
		inbound(t, c, "a", SetName{ID: "a", Name: "alice"})
		settle(t, c)
		gotA, gotB := last(t, a), last(t, b)
		assert.Equal(t, []string{"kite", "owl", "zebra"}, gotA.Payload.Suggestions)
		assert.Empty(t, gotB.Payload.Suggestions)
		assert.Equal(t, gotA.Payload.Phase, gotB.Payload.Phase)
		assert.Equal(t, ParticipantID("b"), gotB.Me)
	})

	t.Run("Rejected Events Are Not Broadcast", func(t *testing.T) {
		inbound(t, c, "b", WordSelected{Word: "kite"})
		inbound(t, c, "ghost", GotGuess{Guess: "kite"})
		settle(t, c)
		assert.Empty(t, drain(t, a))
		assert.Empty(t, drain(t, b))
	})

	t.Run("Ticks Count Down", func(t *testing.T) {
		inbound(t, c, "a", WordSelected{Word: "kite"})
		c.Tick(time.Now())
		settle(t, c)
		got := last(t, b)
		require.NotNil(t, got.Payload.Phase.SecondsLeft)
		assert.Equal(t, TurnSeconds-1, *got.Payload.Phase.SecondsLeft)
	})

	t.Run("Pings", func(t *testing.T) {
		c.PingParticipants()
		settle(t, c)
		for _, m := range []Membership{a, b} {
			select {
			case <-m.Pings:
			default:
				assert.Fail(t, "ping not delivered")
			}
		}
	})
}

func TestCoordinatorEviction(t *testing.T) {
	t.Parallel()
	c, _ := startCoordinator(t, RoomConfig{QueueSize: 2}, nil)
	slow := join(t, c, "slow")
	fast := join(t, c, "fast")
	settle(t, c)
	require.Len(t, drain(t, fast), 1)

	inbound(t, c, "fast", SetName{ID: "fast", Name: "quick"})
	settle(t, c)

	got := drain(t, fast)
	require.Len(t, got, 2)
	assert.Len(t, got[0].Payload.Participants, 2)
	assert.Len(t, got[1].Payload.Participants, 1)
	assert.Equal(t, ParticipantID("fast"), got[1].Payload.Participants[0].ID)

	// the slow queue holds what fit and is then closed
	assert.Len(t, drain(t, slow), 2)
	_, open := <-slow.Queue
	assert.False(t, open)
	_, open = <-slow.Pings
	assert.False(t, open)

	// the connection's own leave arrives later and changes nothing
	c.Leave(context.Background(), "slow")
	assert.Equal(t, 1, settle(t, c).Participants)
	assert.Empty(t, drain(t, fast))
}

func TestCoordinatorCapacity(t *testing.T) {
	t.Parallel()
	c, _ := startCoordinator(t, RoomConfig{MaxParticipants: 2}, nil)
	join(t, c, "a")
	join(t, c, "b")
	_, err := c.Join(context.Background(), "c")
	assert.ErrorIs(t, err, ErrRoomFull)

	_, err = c.Join(context.Background(), "a")
	assert.ErrorIs(t, err, ErrRoomFull)

	c.Leave(context.Background(), "b")
	join(t, c, "c")
	assert.Equal(t, 2, settle(t, c).Participants)
}

func TestCoordinatorDuplicateJoin(t *testing.T) {
	t.Parallel()
	c, _ := startCoordinator(t, RoomConfig{}, nil)
	join(t, c, "a")
	_, err := c.Join(context.Background(), "a")
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCoordinatorLifecycle(t *testing.T) {
	t.Parallel()
	t.Run("Closes When Empty", func(t *testing.T) {
		t.Parallel()
		c := NewCoordinator("r1", RoomConfig{}, nil, nil, zerolog.Nop())
		removed := make(chan struct{})
		parent := &MockRoomParent{}
		parent.On("RequestUpdateDescription", mock.Anything).Return()
		parent.On("RemoveRoom", c).Return().Run(func(mock.Arguments) { close(removed) })
		c.SetParent(parent)
		go c.Run(context.Background())

		m := join(t, c, "a")
		c.Leave(context.Background(), "a")
		<-removed

		assert.True(t, c.Closed())
		_, open := <-m.Queue
		assert.False(t, open)
		parent.AssertCalled(t, "RequestUpdateDescription", RoomDescription{ID: "r1", Participants: 1, Phase: PhaseJoining})
		parent.AssertCalled(t, "RemoveRoom", c)

		_, err := c.Join(context.Background(), "b")
		assert.ErrorIs(t, err, ErrRoomClosed)
		assert.ErrorIs(t, c.Inbound(context.Background(), "a", GotGuess{Guess: "x"}), ErrRoomClosed)
		_, err = c.Description(context.Background())
		assert.ErrorIs(t, err, ErrRoomClosed)
	})

	t.Run("Ping Closes An Unused Room", func(t *testing.T) {
		t.Parallel()
		c := NewCoordinator("r1", RoomConfig{}, nil, nil, zerolog.Nop())
		go c.Run(context.Background())
		c.PingParticipants()
		<-c.Done()
	})

	t.Run("Cancel Releases Members", func(t *testing.T) {
		t.Parallel()
		c := NewCoordinator("r1", RoomConfig{}, nil, nil, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		go c.Run(ctx)
		m := join(t, c, "a")
		cancel()
		<-c.Done()
		drain(t, m)
		_, open := <-m.Queue
		assert.False(t, open)
	})

	t.Run("Canceled Context", func(t *testing.T) {
		t.Parallel()
		c := NewCoordinator("r1", RoomConfig{}, nil, nil, zerolog.Nop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.Join(ctx, "a")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCoordinatorArchive(t *testing.T) {
	t.Parallel()
	endedAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	archiver := &MockTurnArchiver{}
	archiver.On("ArchiveTurn", mock.Anything, ArchivedTurn{
		TurnRecord: TurnRecord{
			Artist:          "a",
			ArtistName:      "alice",
			Word:            "kite",
			Guesses:         1,
			CorrectGuessers: []string{"bob"},
			Reason:          ArtistLeft,
		},
		Room:    "r1",
		EndedAt: endedAt,
	}).Return(assert.AnError).Once()

	c := NewCoordinator("r1", RoomConfig{}, fixedWords{"kite"}, archiver, zerolog.Nop())
	c.now = func() time.Time { return endedAt }
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	join(t, c, "a")
	join(t, c, "b")
	inbound(t, c, "a", SetName{ID: "a", Name: "alice"})
	inbound(t, c, "b", SetName{ID: "b", Name: "bob"})
	inbound(t, c, "a", WordSelected{Word: "kite"})
	inbound(t, c, "b", GotGuess{Guess: "kite"})
	c.Leave(context.Background(), "a")
	assert.Equal(t, PhaseSelectingWord, settle(t, c).Phase)

	// shutdown waits for pending archive writes
	cancel()
	<-c.Done()
	archiver.AssertExpectations(t)
}
