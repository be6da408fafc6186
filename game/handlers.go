package game

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

const defaultHistoryLimit = 20

// TurnHistory reads archived turns back.
type TurnHistory interface {
	RecentTurns(ctx context.Context, room string, limit int) ([]ArchivedTurn, error)
}

type roomRegistry interface {
	Room(ctx context.Context, id string, create bool) (*Coordinator, error)
	CreateRoom(ctx context.Context) (*Coordinator, error)
	PublicRooms(ctx context.Context) []RoomDescription
}

type GameHandler struct {
	lobby    roomRegistry
	history  TurnHistory
	idGen    UniqueIdGenerator
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewGameHandler builds the room endpoints. history may be nil when turns are
// not archived.
func NewGameHandler(lobby roomRegistry, history TurnHistory, idGen UniqueIdGenerator, allowedOrigins []string, log zerolog.Logger) *GameHandler {
	return &GameHandler{
		lobby:   lobby,
		history: history,
		idGen:   idGen,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return OriginAllowed(r, allowedOrigins)
			},
		},
		log: log,
	}
}

// OriginAllowed accepts requests without an Origin, same-host origins and the
// listed ones.
func OriginAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	return slices.Contains(allowed, origin)
}

func (h *GameHandler) Register(r gin.IRouter) {
	r.GET("/ws", h.JoinDefaultRoomHandler)
	r.GET("/rooms", h.ListRoomsHandler)
	r.POST("/rooms", h.CreateRoomHandler)
	r.GET("/rooms/:roomid/ws", h.JoinRoomHandler)
	r.GET("/rooms/:roomid/turns", h.TurnHistoryHandler)
}

func (h *GameHandler) JoinDefaultRoomHandler(ctx *gin.Context) {
	h.join(ctx, DefaultRoom)
}

func (h *GameHandler) JoinRoomHandler(ctx *gin.Context) {
	roomID := ctx.Param("roomid")
	if !roomIDPattern.MatchString(roomID) {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-room-id"})
		return
	}
	h.join(ctx, roomID)
}

func (h *GameHandler) CreateRoomHandler(ctx *gin.Context) {
	room, err := h.lobby.CreateRoom(ctx.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("failed to create room")
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "unknown-error"})
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"id": room.ID()})
}

func (h *GameHandler) ListRoomsHandler(ctx *gin.Context) {
	rooms := h.lobby.PublicRooms(ctx.Request.Context())
	if rooms == nil {
		rooms = []RoomDescription{}
	}
	ctx.JSON(http.StatusOK, rooms)
}

type turnResponse struct {
	Artist          string        `json:"artist"`
	Word            string        `json:"word"`
	Guesses         int           `json:"guesses"`
	CorrectGuessers []string      `json:"correctGuessers"`
	Reason          TurnEndReason `json:"reason"`
	EndedAt         time.Time     `json:"endedAt"`
}

// TurnHistoryHandler lists the last archived turns of a room, newest first.
func (h *GameHandler) TurnHistoryHandler(ctx *gin.Context) {
	if h.history == nil {
		ctx.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "history-disabled"})
		return
	}
	roomID := ctx.Param("roomid")
	if !roomIDPattern.MatchString(roomID) {
		ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-room-id"})
		return
	}
	limit := defaultHistoryLimit
	if raw := ctx.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			ctx.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid-limit"})
			return
		}
		limit = n
	}

	turns, err := h.history.RecentTurns(ctx.Request.Context(), roomID, limit)
	if err != nil {
		h.log.Error().Err(err).Str("room", roomID).Msg("failed to read turn history")
		ctx.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "unknown-error"})
		return
	}

	out := make([]turnResponse, 0, len(turns))
	for _, t := range turns {
		out = append(out, turnResponse{
			Artist:          t.ArtistName,
			Word:            t.Word,
			Guesses:         t.Guesses,
			CorrectGuessers: t.CorrectGuessers,
			Reason:          t.Reason,
			EndedAt:         t.EndedAt,
		})
	}
	ctx.JSON(http.StatusOK, out)
}

// join reserves a seat before upgrading, so a full room is answered with a
// plain HTTP error.
func (h *GameHandler) join(ctx *gin.Context, roomID string) {
	reqCtx := ctx.Request.Context()
	id := ParticipantID(h.idGen.Generate())

	room, membership, err := h.reserve(reqCtx, roomID, id)
	switch {
	case errors.Is(err, ErrRoomFull):
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "room-full"})
		return
	case err != nil:
		h.log.Error().Err(err).Str("room", roomID).Msg("failed to join room")
		ctx.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "unknown-error"})
		return
	}

	conn, err := h.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("ip", ctx.ClientIP()).Msg("websocket upgrade failed")
		room.Leave(context.Background(), id)
		return
	}

	socket := NewWebsocketConnection(conn)
	log := h.log.With().Str("room", roomID).Logger()
	NewConnection(reqCtx, id, room, membership, socket, log).Serve()
}

// reserve joins the room, retrying once when the room closed between lookup
// and join.
func (h *GameHandler) reserve(ctx context.Context, roomID string, id ParticipantID) (*Coordinator, Membership, error) {
	var err error
	for range 2 {
		var room *Coordinator
		room, err = h.lobby.Room(ctx, roomID, true)
		if err != nil {
			return nil, Membership{}, err
		}
		var membership Membership
		membership, err = room.Join(ctx, id)
		if err == nil {
			return room, membership, nil
		}
		if !errRoomGone(err) {
			return nil, Membership{}, err
		}
	}
	return nil, Membership{}, err
}
