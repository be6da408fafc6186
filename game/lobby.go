package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRoom is the room behind the bare /ws endpoint.
const DefaultRoom = "main"

type LobbyConfig struct {
	Room         RoomConfig
	TickInterval time.Duration
	PingInterval time.Duration
}

type roomRequest struct {
	id     string
	create bool
	resp   chan roomResponse
}

type roomResponse struct {
	room *Coordinator
	err  error
}

// Lobby owns every room. It starts rooms on demand, forwards the process
// timers to them, and keeps the descriptions rooms report about themselves.
type Lobby struct {
	cfg           LobbyConfig
	rooms         map[string]*Coordinator
	descriptions  map[string]RoomDescription
	roomReqs      chan roomRequest
	removeRoom    chan *Coordinator
	descUpdates   chan RoomDescription
	pubRoomsReq   chan chan []RoomDescription
	idGenerator   UniqueIdGenerator
	tickerCreator PeriodicTickerChannelCreator
	words         WordsGenerator
	archiver      TurnArchiver
	log           zerolog.Logger
	roomsCtx      context.Context
	roomsWg       sync.WaitGroup
	done          chan struct{}
}

func NewLobby(cfg LobbyConfig, idgen UniqueIdGenerator, tickerCreator PeriodicTickerChannelCreator, words WordsGenerator, archiver TurnArchiver, log zerolog.Logger) *Lobby {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	return &Lobby{
		cfg:           cfg,
		rooms:         map[string]*Coordinator{},
		descriptions:  map[string]RoomDescription{},
		roomReqs:      make(chan roomRequest, 256),
		removeRoom:    make(chan *Coordinator, 32),
		descUpdates:   make(chan RoomDescription, 256),
		pubRoomsReq:   make(chan chan []RoomDescription, 256),
		idGenerator:   idgen,
		tickerCreator: tickerCreator,
		words:         words,
		archiver:      archiver,
		log:           log,
		done:          make(chan struct{}),
	}
}

// RequestUpdateDescription never blocks; a dropped update is superseded by
// the next one.
func (l *Lobby) RequestUpdateDescription(desc RoomDescription) {
	select {
	case l.descUpdates <- desc:
	default:
	}
}

func (l *Lobby) RemoveRoom(c *Coordinator) {
	select {
	case l.removeRoom <- c:
	case <-l.done:
	}
}

// Room returns the running room id. A missing or closed room is started when
// create is set, otherwise ErrRoomNotFound is returned.
func (l *Lobby) Room(ctx context.Context, id string, create bool) (*Coordinator, error) {
	req := roomRequest{id: id, create: create, resp: make(chan roomResponse, 1)}
	select {
	case l.roomReqs <- req:
	case <-l.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-req.resp:
		return resp.room, resp.err
	case <-l.done:
		return nil, ErrRoomClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// CreateRoom starts a room under a freshly generated id.
func (l *Lobby) CreateRoom(ctx context.Context) (*Coordinator, error) {
	return l.Room(ctx, "", true)
}

// PublicRooms lists rooms sorted by id.
func (l *Lobby) PublicRooms(ctx context.Context) []RoomDescription {
	respChan := make(chan []RoomDescription, 1)
	select {
	case l.pubRoomsReq <- respChan:
		select {
		case resp := <-respChan:
			return resp
		case <-l.done:
			return nil
		case <-ctx.Done():
			return nil
		}
	case <-l.done:
		return nil
	case <-ctx.Done():
		return nil
	}
}

// Run serves requests until ctx is canceled. Rooms share ctx, so they stop
// with the lobby; Wait blocks until they have.
func (l *Lobby) Run(ctx context.Context, started chan struct{}) {
	ticker := l.tickerCreator.Create(l.cfg.TickInterval)
	pingTicker := l.tickerCreator.Create(l.cfg.PingInterval)
	l.roomsCtx = ctx

	close(started)
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.log.Info().Int("rooms", len(l.rooms)).Msg("lobby stopping")
			return
		case now := <-ticker:
			for _, r := range l.rooms {
				r.Tick(now)
			}
		case <-pingTicker:
			for _, r := range l.rooms {
				r.PingParticipants()
			}
		case req := <-l.roomReqs:
			l.handleRoomRequest(req)
		case r := <-l.removeRoom:
			l.handleRemoveRoom(r)
		case desc := <-l.descUpdates:
			if _, ok := l.rooms[desc.ID]; ok {
				l.descriptions[desc.ID] = desc
			}
		case req := <-l.pubRoomsReq:
			l.handleGetPublicRooms(req)
		}
	}
}

func (l *Lobby) Wait() {
	l.roomsWg.Wait()
}

func (l *Lobby) handleRoomRequest(req roomRequest) {
	if req.id != "" {
		if r, ok := l.rooms[req.id]; ok && !r.Closed() {
			req.resp <- roomResponse{room: r}
			return
		}
	}
	if !req.create {
		req.resp <- roomResponse{err: ErrRoomNotFound}
		return
	}
	id := req.id
	if id == "" {
		id = l.idGenerator.Generate()
	}
	req.resp <- roomResponse{room: l.startRoom(id)}
}

func (l *Lobby) startRoom(id string) *Coordinator {
	r := NewCoordinator(id, l.cfg.Room, l.words, l.archiver, l.log)
	r.SetParent(l)
	l.rooms[id] = r
	l.descriptions[id] = RoomDescription{ID: id, Phase: PhaseJoining}

	l.roomsWg.Add(1)
	go func() {
		defer l.roomsWg.Done()
		r.Run(l.roomsCtx)
	}()
	return r
}

// handleRemoveRoom ignores rooms that were already replaced under their id.
func (l *Lobby) handleRemoveRoom(r *Coordinator) {
	if current, ok := l.rooms[r.ID()]; !ok || current != r {
		return
	}
	delete(l.rooms, r.ID())
	delete(l.descriptions, r.ID())
}

func (l *Lobby) handleGetPublicRooms(req chan []RoomDescription) {
	out := make([]RoomDescription, 0, len(l.descriptions))
	for _, desc := range l.descriptions {
		out = append(out, desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	req <- out
}
