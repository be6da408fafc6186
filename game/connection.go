package game

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// roomMailbox is the part of a Coordinator a connection talks to.
type roomMailbox interface {
	Inbound(ctx context.Context, from ParticipantID, ev Event) error
	Leave(ctx context.Context, id ParticipantID)
}

// Connection pumps one participant's socket. ReadPump decodes frames into the
// room mailbox, WritePump drains the membership queue. Whichever stops first
// cancels the other, and the room is told exactly once that the participant
// left.
type Connection struct {
	id          ParticipantID
	room        roomMailbox
	membership  Membership
	socket      WebsocketConnection
	rateLimiter *rate.Limiter
	ctx         context.Context
	cancelCtx   context.CancelFunc
	leaveOnce   sync.Once
	log         zerolog.Logger
}

func NewConnection(ctx context.Context, id ParticipantID, room roomMailbox, membership Membership, socket WebsocketConnection, log zerolog.Logger) *Connection {
	ctx, cancel := context.WithCancel(ctx)
	return &Connection{
		id:          id,
		room:        room,
		membership:  membership,
		socket:      socket,
		rateLimiter: rate.NewLimiter(1, 5),
		ctx:         ctx,
		cancelCtx:   cancel,
		log:         log.With().Str("participant", string(id)).Logger(),
	}
}

func (c *Connection) ID() ParticipantID {
	return c.id
}

// Serve runs both pumps and returns once the connection is fully released.
func (c *Connection) Serve() {
	var wg sync.WaitGroup
	wg.Go(c.WritePump)
	c.ReadPump()
	wg.Wait()
}

func (c *Connection) ReadPump() {
	defer c.release()

	for {
		data, err := c.socket.Read()
		if err != nil {
			if c.ctx.Err() == nil {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}

		ev, err := c.decode(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("dropping inbound frame")
			continue
		}

		if rateLimited(ev) && !c.rateLimiter.Allow() {
			c.log.Debug().Str("event", string(ev.Type())).Msg("rate limited")
			continue
		}

		if err := c.room.Inbound(c.ctx, c.id, ev); err != nil {
			if !errors.Is(err, context.Canceled) {
				c.log.Debug().Err(err).Msg("room stopped accepting events")
			}
			return
		}
	}
}

func (c *Connection) decode(data []byte) (Event, error) {
	ev, err := DecodeEvent(data)
	if err != nil {
		return nil, err
	}
	if !fromClient(ev) {
		return nil, ErrForbiddenEvent
	}
	if sn, ok := ev.(SetName); ok && sn.ID == "" {
		sn.ID = c.id
		ev = sn
	}
	return ev, nil
}

func (c *Connection) WritePump() {
	defer c.release()

	for {
		select {
		case <-c.ctx.Done():
			return
		case data, ok := <-c.membership.Queue:
			if !ok {
				// evicted or room closed
				return
			}
			if err := c.socket.Write(data); err != nil {
				c.log.Debug().Err(err).Msg("write failed")
				return
			}
		case _, ok := <-c.membership.Pings:
			if !ok {
				return
			}
			if err := c.socket.Ping(); err != nil {
				c.log.Debug().Err(err).Msg("ping failed")
				return
			}
		}
	}
}

// release stops both pumps. The first caller notifies the room and closes
// the socket, which unblocks a pending Read.
func (c *Connection) release() {
	c.leaveOnce.Do(func() {
		c.cancelCtx()
		c.room.Leave(context.Background(), c.id)
		c.socket.Close()
	})
}
