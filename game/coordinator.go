package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMaxParticipants = 16
	DefaultQueueSize       = 64
	archiveTimeout         = 5 * time.Second
	mailboxSize            = 1024
)

type RoomConfig struct {
	MaxParticipants int
	QueueSize       int
}

type RoomDescription struct {
	ID           string    `json:"id"`
	Participants int       `json:"participants"`
	Phase        PhaseKind `json:"phase"`
}

// ArchivedTurn is a TurnRecord stamped with its room and end time.
type ArchivedTurn struct {
	TurnRecord
	Room    string
	EndedAt time.Time
}

// Membership is what a joined participant drains: snapshots to send, and
// keepalive ping requests. Both channels are closed when the participant is
// removed from the room.
type Membership struct {
	Queue <-chan []byte
	Pings <-chan struct{}
}

type member struct {
	queue chan []byte
	pings chan struct{}
}

// message is anything the room's mailbox carries.
type message interface{ isMessage() }

type inboundEvent struct {
	from ParticipantID
	ev   Event
}

type joinResponse struct {
	membership Membership
	err        error
}

type joinRequest struct {
	id   ParticipantID
	resp chan joinResponse
}

type leaveRequest struct{ id ParticipantID }

type tickRequest struct{ now time.Time }

type pingRequest struct{}

type descRequest struct{ resp chan RoomDescription }

func (inboundEvent) isMessage() {}
func (joinRequest) isMessage()  {}
func (leaveRequest) isMessage() {}
func (tickRequest) isMessage()  {}
func (pingRequest) isMessage()  {}
func (descRequest) isMessage()  {}

// roomParent is told about the room's state so it can list and reap rooms.
type roomParent interface {
	RequestUpdateDescription(desc RoomDescription)
	RemoveRoom(c *Coordinator)
}

// Coordinator owns one Session. Every mutation goes through Run, one event at
// a time, and every applied event is followed by a snapshot to all members.
type Coordinator struct {
	id       string
	cfg      RoomConfig
	session  *Session
	members  map[ParticipantID]member
	archiver TurnArchiver
	parent   roomParent
	now      func() time.Time
	log      zerolog.Logger

	mailbox chan message
	archive chan ArchivedTurn
	done    chan struct{}

	archiverWg sync.WaitGroup
	closing    bool
}

func NewCoordinator(id string, cfg RoomConfig, words WordsGenerator, archiver TurnArchiver, log zerolog.Logger) *Coordinator {
	if cfg.MaxParticipants <= 0 {
		cfg.MaxParticipants = DefaultMaxParticipants
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	c := &Coordinator{
		id:       id,
		cfg:      cfg,
		session:  NewSession(words),
		members:  make(map[ParticipantID]member),
		archiver: archiver,
		now:      time.Now,
		log:      log.With().Str("room", id).Logger(),
		mailbox:  make(chan message, mailboxSize),
		archive:  make(chan ArchivedTurn, 32),
		done:     make(chan struct{}),
	}
	c.session.OnTurnEnd(c.queueArchive)
	return c
}

func (c *Coordinator) ID() string {
	return c.id
}

func (c *Coordinator) SetParent(p roomParent) {
	c.parent = p
}

// Done is closed once the room stopped processing events.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// post delivers msg in arrival order with every other message.
func (c *Coordinator) post(ctx context.Context, msg message) error {
	if c.Closed() {
		return ErrRoomClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.mailbox <- msg:
		return nil
	case <-c.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join registers id and returns the channels its writer drains.
func (c *Coordinator) Join(ctx context.Context, id ParticipantID) (Membership, error) {
	req := joinRequest{id: id, resp: make(chan joinResponse, 1)}
	if err := c.post(ctx, req); err != nil {
		return Membership{}, err
	}
	select {
	case resp := <-req.resp:
		return resp.membership, resp.err
	case <-c.done:
		return Membership{}, ErrRoomClosed
	}
}

// Leave must be called exactly once per joined participant.
func (c *Coordinator) Leave(ctx context.Context, id ParticipantID) {
	_ = c.post(ctx, leaveRequest{id: id})
}

// Inbound queues a decoded client event. It blocks while the mailbox is full.
func (c *Coordinator) Inbound(ctx context.Context, from ParticipantID, ev Event) error {
	return c.post(ctx, inboundEvent{from: from, ev: ev})
}

// Tick never blocks: a room that is behind skips ticks.
func (c *Coordinator) Tick(now time.Time) {
	select {
	case c.mailbox <- tickRequest{now: now}:
	default:
	}
}

func (c *Coordinator) PingParticipants() {
	select {
	case c.mailbox <- pingRequest{}:
	default:
	}
}

func (c *Coordinator) Description(ctx context.Context) (RoomDescription, error) {
	req := descRequest{resp: make(chan RoomDescription, 1)}
	if err := c.post(ctx, req); err != nil {
		return RoomDescription{}, err
	}
	select {
	case desc := <-req.resp:
		return desc, nil
	case <-c.done:
		return RoomDescription{}, ErrRoomClosed
	}
}

// Run processes messages until ctx is canceled or the room empties.
func (c *Coordinator) Run(ctx context.Context) {
	if c.archiver != nil {
		c.archiverWg.Add(1)
		go c.drainArchive()
	}
	defer c.shutdown()

	c.log.Info().Msg("room started")
	for !c.closing {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.mailbox:
			c.handle(msg)
		}
	}
}

func (c *Coordinator) handle(msg message) {
	switch m := msg.(type) {
	case joinRequest:
		c.handleJoin(m)
	case leaveRequest:
		c.handleLeave(m.id)
	case inboundEvent:
		c.handleInbound(m)
	case tickRequest:
		c.handleTick()
	case pingRequest:
		c.handlePing()
	case descRequest:
		m.resp <- c.description()
	}
}

func (c *Coordinator) handleJoin(req joinRequest) {
	if len(c.members) >= c.cfg.MaxParticipants {
		req.resp <- joinResponse{err: ErrRoomFull}
		return
	}
	if err := c.session.Apply(req.id, GotJoin{}); err != nil {
		req.resp <- joinResponse{err: err}
		return
	}
	m := member{
		queue: make(chan []byte, c.cfg.QueueSize),
		pings: make(chan struct{}, 1),
	}
	c.members[req.id] = m
	req.resp <- joinResponse{membership: Membership{Queue: m.queue, Pings: m.pings}}
	c.log.Info().Str("participant", string(req.id)).Int("participants", len(c.members)).Msg("participant joined")
	c.changed()
}

func (c *Coordinator) handleLeave(id ParticipantID) {
	c.drop(id)
	if err := c.session.Apply(id, GotLeave{}); err != nil {
		c.log.Debug().Err(err).Str("participant", string(id)).Msg("leave ignored")
		return
	}
	c.log.Info().Str("participant", string(id)).Int("participants", len(c.members)).Msg("participant left")
	if c.session.Len() == 0 {
		c.closing = true
		return
	}
	c.changed()
}

func (c *Coordinator) handleInbound(in inboundEvent) {
	if _, ok := c.members[in.from]; !ok {
		c.log.Debug().Str("participant", string(in.from)).Str("event", string(in.ev.Type())).Msg("event from departed participant")
		return
	}
	if err := c.session.Apply(in.from, in.ev); err != nil {
		c.log.Debug().Err(err).Str("participant", string(in.from)).Str("event", string(in.ev.Type())).Msg("event ignored")
		return
	}
	c.changed()
}

func (c *Coordinator) handleTick() {
	if err := c.session.Apply("", Tick{}); err != nil {
		return
	}
	c.changed()
}

func (c *Coordinator) handlePing() {
	if len(c.members) == 0 {
		c.closing = true
		return
	}
	for _, m := range c.members {
		select {
		case m.pings <- struct{}{}:
		default:
		}
	}
}

// changed broadcasts the session and reports the new description. Members
// whose queue is full are evicted, which changes the session again.
func (c *Coordinator) changed() {
	for {
		evicted := c.broadcast()
		if len(evicted) == 0 {
			break
		}
		for _, id := range evicted {
			c.log.Warn().Err(ErrResourceExhausted).Str("participant", string(id)).Msg("evicting slow participant")
			c.drop(id)
			if err := c.session.Apply(id, GotLeave{}); err != nil {
				c.log.Debug().Err(err).Str("participant", string(id)).Msg("eviction leave ignored")
			}
		}
		if c.session.Len() == 0 {
			c.closing = true
			return
		}
	}
	if c.parent != nil {
		c.parent.RequestUpdateDescription(c.description())
	}
}

func (c *Coordinator) broadcast() []ParticipantID {
	common, err := json.Marshal(c.session.Snapshot(c.id, ""))
	if err != nil {
		c.log.Error().Err(err).Msg("failed to marshal snapshot")
		return nil
	}
	var artist ParticipantID
	var artistView json.RawMessage
	if sel, ok := c.session.Phase().(SelectingWord); ok && len(c.session.Suggestions()) > 0 {
		artist = sel.Artist
		if artistView, err = json.Marshal(c.session.Snapshot(c.id, artist)); err != nil {
			c.log.Error().Err(err).Msg("failed to marshal artist snapshot")
			artistView = nil
		}
	}

	var evicted []ParticipantID
	for id, m := range c.members {
		payload := json.RawMessage(common)
		if artistView != nil && id == artist {
			payload = artistView
		}
		data, err := EncodeFor(id, payload)
		if err != nil {
			c.log.Error().Err(err).Str("participant", string(id)).Msg("failed to encode snapshot")
			continue
		}
		select {
		case m.queue <- data:
		default:
			evicted = append(evicted, id)
		}
	}
	return evicted
}

// drop closes the member's channels, which releases its writer.
func (c *Coordinator) drop(id ParticipantID) {
	m, ok := c.members[id]
	if !ok {
		return
	}
	delete(c.members, id)
	close(m.queue)
	close(m.pings)
}

func (c *Coordinator) description() RoomDescription {
	return RoomDescription{ID: c.id, Participants: c.session.Len(), Phase: c.session.Phase().Kind()}
}

func (c *Coordinator) queueArchive(rec TurnRecord) {
	if c.archiver == nil {
		return
	}
	select {
	case c.archive <- ArchivedTurn{TurnRecord: rec, Room: c.id, EndedAt: c.now()}:
	default:
		c.log.Warn().Str("artist", rec.ArtistName).Msg("turn archive full, dropping record")
	}
}

func (c *Coordinator) drainArchive() {
	defer c.archiverWg.Done()
	for rec := range c.archive {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		err := c.archiver.ArchiveTurn(ctx, rec)
		cancel()
		if err != nil {
			c.log.Error().Err(err).Str("artist", rec.ArtistName).Msg("failed to archive turn")
		}
	}
}

func (c *Coordinator) shutdown() {
	close(c.done)
	for id := range c.members {
		c.drop(id)
	}
	close(c.archive)
	c.archiverWg.Wait()
	if c.parent != nil {
		c.parent.RemoveRoom(c)
	}
	c.log.Info().Msg("room closed")
}

// errRoomGone reports whether err means the room can no longer take members.
func errRoomGone(err error) bool {
	return errors.Is(err, ErrRoomClosed)
}
