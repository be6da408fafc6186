package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danbruder/draw/assets"
	"github.com/danbruder/draw/config"
	"github.com/danbruder/draw/game"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockPeriodicTickerChannelCreator struct {
	mock.Mock
}

func (m *MockPeriodicTickerChannelCreator) Create(duration time.Duration) <-chan time.Time {
	args := m.Called(duration)
	return args.Get(0).(chan time.Time)
}

type fixedWords []string

func (w fixedWords) Generate(count int) []string {
	return append([]string(nil), w[:min(count, len(w))]...)
}

func TestServerSecurity(t *testing.T) {
	r := CreateServer([]string{"http://localhost:3000", "https://oussama.com"}, zerolog.Nop())
	r.GET("/testroute", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "success")
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	res := httptest.NewRecorder()
	r.ServeHTTP(res, req)
	assert.Equal(t, "healthy", res.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/testroute", nil)
	req.Header.Add("Origin", "http://evil.com")
	res = httptest.NewRecorder()
	r.ServeHTTP(res, req)
	assert.Equal(t, http.StatusForbidden, res.Code)
	assert.Equal(t, "forbidden origin", res.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/testroute", nil)
	req.Header.Add("Origin", "https://oussama.com")
	res = httptest.NewRecorder()
	r.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
	assert.Equal(t, "success", res.Body.String())
	assert.Equal(t, "https://oussama.com", res.Header().Get("Access-Control-Allow-Origin"))

	// same host pages and non-browser clients carry no foreign origin
	req = httptest.NewRequest(http.MethodGet, "/testroute", nil)
	res = httptest.NewRecorder()
	r.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)

	req = httptest.NewRequest(http.MethodGet, "/testroute", nil)
	req.Header.Add("Origin", "http://"+req.Host)
	res = httptest.NewRecorder()
	r.ServeHTTP(res, req)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestConfigFromCommand(t *testing.T) {
	t.Setenv("MAX_PARTICIPANTS", "8")
	t.Setenv("POSTGRES_URL", "postgres://draw@localhost/draw")

	var got config.Config
	app := newApp()
	app.Action = func(ctx context.Context, cmd *cli.Command) error {
		got = configFromCommand(cmd)
		return nil
	}
	err := app.Run(context.Background(), []string{"draw", "--port", "4000", "--allowed-origins", "http://a.test, https://b.test", "--tick-interval", "500ms"})
	require.NoError(t, err)

	assert.Equal(t, config.DefaultHost, got.Host)
	assert.Equal(t, 4000, got.Port)
	assert.Equal(t, []string{"http://a.test", "https://b.test"}, got.AllowedOrigins)
	assert.Equal(t, 8, got.MaxParticipants)
	assert.Equal(t, config.DefaultOutboundQueue, got.OutboundQueue)
	assert.Equal(t, 500*time.Millisecond, got.TickInterval)
	assert.Equal(t, config.DefaultPingInterval, got.PingInterval)
	assert.Equal(t, "postgres://draw@localhost/draw", got.PostgresURL)
	assert.False(t, got.Dev)
	assert.NoError(t, got.Validate())
}

type outbound struct {
	Me      game.ParticipantID `json:"me"`
	Payload game.Snapshot      `json:"payload"`
}

func readUntil(t *testing.T, conn *websocket.Conn, done func(outbound) bool) outbound {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg outbound
		require.NoError(t, json.Unmarshal(data, &msg))
		if done(msg) {
			return msg
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestGameOverWebsocket(t *testing.T) {
	ticks := make(chan time.Time)
	pings := make(chan time.Time)
	tickers := &MockPeriodicTickerChannelCreator{}
	tickers.On("Create", time.Second).Return(ticks)
	tickers.On("Create", 30*time.Second).Return(pings)

	lobby := game.NewLobby(game.LobbyConfig{}, game.NewIdGen(), tickers, fixedWords{"kite", "owl", "zebra"}, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go lobby.Run(ctx, started)
	<-started

	files, err := assets.FS("")
	require.NoError(t, err)
	r := CreateServer(nil, zerolog.Nop())
	require.NoError(t, routes(r, game.NewGameHandler(lobby, nil, game.NewIdGen(), nil, zerolog.Nop()), files))
	srv := httptest.NewServer(r)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	alice, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	first := readUntil(t, alice, func(o outbound) bool { return len(o.Payload.Participants) == 1 })
	aliceID := first.Me
	assert.Equal(t, game.DefaultRoom, first.Payload.Room)
	assert.Equal(t, game.PhaseJoining, first.Payload.Phase.Type)

	t.Cleanup(func() {
		alice.Close()
		srv.Close()
		cancel()
		lobby.Wait()
	})

	t.Run("Naming Starts Word Selection", func(t *testing.T) {
		send(t, alice, map[string]any{"type": "SetName", "id": aliceID, "name": "alice"})
		msg := readUntil(t, alice, func(o outbound) bool { return o.Payload.Phase.Type == game.PhaseSelectingWord })
		assert.Equal(t, aliceID, msg.Payload.Phase.Artist)
		assert.Equal(t, []string{"kite", "owl", "zebra"}, msg.Payload.Suggestions)
	})

	bob, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { bob.Close() })

	t.Run("Everyone Sees Both Participants", func(t *testing.T) {
		msg := readUntil(t, bob, func(o outbound) bool { return len(o.Payload.Participants) == 2 })
		assert.Empty(t, msg.Payload.Suggestions)
		readUntil(t, alice, func(o outbound) bool { return len(o.Payload.Participants) == 2 })
	})

	t.Run("Drawing", func(t *testing.T) {
		send(t, alice, map[string]any{"type": "WordSelected", "word": "kite"})
		msg := readUntil(t, bob, func(o outbound) bool { return o.Payload.Phase.Type == game.PhaseDrawing })
		require.NotNil(t, msg.Payload.Phase.SecondsLeft)
		assert.Equal(t, game.TurnSeconds, *msg.Payload.Phase.SecondsLeft)
		assert.Equal(t, []*string{nil, nil, nil, nil}, msg.Payload.Phase.Revealed)

		ticks <- time.Now()
		msg = readUntil(t, bob, func(o outbound) bool {
			return o.Payload.Phase.SecondsLeft != nil && *o.Payload.Phase.SecondsLeft == game.TurnSeconds-1
		})

		require.NoError(t, alice.WriteMessage(websocket.BinaryMessage, game.AppendCanvasFrames(nil, []byte{1, 2, 3, 4})))
		msg = readUntil(t, bob, func(o outbound) bool { return len(o.Payload.Phase.Strokes) > 0 })
		assert.Equal(t, []byte{1, 2, 3, 4}, msg.Payload.Phase.Strokes)
	})

	t.Run("Correct Guess Is Redacted", func(t *testing.T) {
		send(t, bob, map[string]any{"type": "GotGuess", "guess": "kit"})
		send(t, bob, map[string]any{"type": "GotGuess", "guess": "kite"})
		msg := readUntil(t, alice, func(o outbound) bool { return len(o.Payload.Phase.Guesses) == 2 })
		assert.Equal(t, game.SnapshotGuess{Text: "kit", Correct: false, Author: msg.Payload.Participants[1].ID}, msg.Payload.Phase.Guesses[0])
		assert.True(t, msg.Payload.Phase.Guesses[1].Correct)
		assert.Empty(t, msg.Payload.Phase.Guesses[1].Text)
	})

	t.Run("Rooms Listing", func(t *testing.T) {
		want := game.RoomDescription{ID: game.DefaultRoom, Participants: 2, Phase: game.PhaseDrawing}
		require.Eventually(t, func() bool {
			res, err := http.Get(srv.URL + "/rooms")
			if err != nil {
				return false
			}
			defer res.Body.Close()
			var rooms []game.RoomDescription
			if err := json.NewDecoder(res.Body).Decode(&rooms); err != nil {
				return false
			}
			return len(rooms) == 1 && rooms[0] == want
		}, 5*time.Second, 20*time.Millisecond)
	})

	t.Run("Artist Leaving Ends The Turn", func(t *testing.T) {
		require.NoError(t, alice.Close())
		msg := readUntil(t, bob, func(o outbound) bool { return len(o.Payload.Participants) == 1 })
		assert.Equal(t, game.PhaseJoining, msg.Payload.Phase.Type)
	})
}

func TestForbiddenOriginUpgrade(t *testing.T) {
	tickers := &MockPeriodicTickerChannelCreator{}
	tickers.On("Create", mock.Anything).Return(make(chan time.Time))
	lobby := game.NewLobby(game.LobbyConfig{}, game.NewIdGen(), tickers, fixedWords{"kite"}, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	go lobby.Run(ctx, started)
	<-started

	r := CreateServer([]string{"https://draw.example"}, zerolog.Nop())
	files, err := assets.FS("")
	require.NoError(t, err)
	require.NoError(t, routes(r, game.NewGameHandler(lobby, nil, game.NewIdGen(), []string{"https://draw.example"}, zerolog.Nop()), files))
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		srv.Close()
		cancel()
		lobby.Wait()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, res, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"http://evil.com"}})
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, http.Header{"Origin": {"https://draw.example"}})
	require.NoError(t, err)
	defer conn.Close()
	readUntil(t, conn, func(o outbound) bool { return len(o.Payload.Participants) == 1 })
}
