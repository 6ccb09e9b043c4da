package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizarena/arena/internal/config"
	"github.com/quizarena/arena/internal/duel"
	"github.com/quizarena/arena/internal/history"
	"github.com/quizarena/arena/internal/lobby"
	"github.com/quizarena/arena/internal/profile"
	"github.com/quizarena/arena/internal/questionbank"
	"github.com/quizarena/arena/internal/transport"
	"github.com/quizarena/arena/pkg/http/ws"
)

func fastDuelConfig() config.Duel {
	return config.Duel{
		Format:            1,
		QuestionsPerRound: 3,
		PrepareDelay:      5 * time.Millisecond,
		StartPulse:        2 * time.Millisecond,
		QuestionCountdown: 400 * time.Millisecond,
		RevealDelay:       2 * time.Millisecond,
		TransitionWindow:  5 * time.Millisecond,
		RoundIntroWindow:  5 * time.Millisecond,
		SetResultWindow:   5 * time.Millisecond,
		HeartbeatInterval: 10 * time.Millisecond,
	}
}

func bankQuestions(n int) []questionbank.Question {
	qs := make([]questionbank.Question, n)
	for i := range qs {
		qs[i] = questionbank.Question{
			ID:           fmt.Sprintf("q-%d", i),
			Prompt:       fmt.Sprintf("question %d", i),
			Options:      []string{"a", "b", "c", "d"},
			CorrectIndex: i % questionbank.OptionCount,
			Difficulty:   questionbank.DifficultyEasy,
		}
	}
	return qs
}

type testEnv struct {
	gw     *Gateway
	rooms  *lobby.Manager
	hist   *history.MemStore
	prof   *profile.MemStore
	server *httptest.Server
}

func newTestEnv(t *testing.T, questions []questionbank.Question) *testEnv {
	t.Helper()
	return newTestEnvWith(t, questions, transport.NewBroker(zerolog.Nop()))
}

func newTestEnvWith(t *testing.T, questions []questionbank.Question, tp transport.Transport) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	hub := ws.NewHub(logger)
	rooms := lobby.NewManager(logger)
	hist := history.NewMemStore()
	prof := profile.NewMemStore()
	source := questionbank.NewStaticSource(questions, false)

	gw := New(fastDuelConfig(), hub, rooms, source, tp, hist, prof, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/duel", gw.HandleWS)
	mux.HandleFunc("POST /api/rooms", gw.HandleCreateRoom)
	mux.HandleFunc("POST /api/rooms/{code}/bot", gw.HandleAddBot)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{gw: gw, rooms: rooms, hist: hist, prof: prof, server: server}
}

func (e *testEnv) dial(t *testing.T, userID uuid.UUID, name string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/duel?user_id=" + userID.String() + "&display_name=" + name
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendWS(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(ws.Message{Type: msgType, Payload: raw}))
}

// playClient answers every question with the scripted choice and returns
// the terminal match_over payload.
func playClient(t *testing.T, conn *websocket.Conn, choose func(q ws.QuestionPayload) int) ws.MatchOverPayload {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	for {
		var msg ws.Message
		require.NoError(t, conn.ReadJSON(&msg))

		switch msg.Type {
		case ws.TypeQuestion:
			var q ws.QuestionPayload
			require.NoError(t, json.Unmarshal(msg.Payload, &q))
			sendWS(t, conn, ws.TypeSubmitAnswer, ws.SubmitAnswerPayload{
				SessionID:     q.SessionID,
				QuestionIndex: q.QuestionIndex,
				SelectedIndex: choose(q),
			})
		case ws.TypeMatchOver:
			var over ws.MatchOverPayload
			require.NoError(t, json.Unmarshal(msg.Payload, &over))
			return over
		case ws.TypeError:
			var e ws.ErrorPayload
			require.NoError(t, json.Unmarshal(msg.Payload, &e))
			t.Fatalf("unexpected protocol error: %s %s", e.Code, e.Message)
		}
	}
}

func TestGateway_RankedDuelOverWebSocket(t *testing.T) {
	qs := bankQuestions(3)
	env := newTestEnv(t, qs)
	correctByPrompt := make(map[string]int, len(qs))
	for _, q := range qs {
		correctByPrompt[q.Prompt] = q.CorrectIndex
	}

	hostID, guestID := uuid.New(), uuid.New()
	room, err := env.rooms.Create(context.Background(), lobby.CreateRequest{
		HostID:            hostID,
		DisplayName:       "host",
		Format:            1,
		QuestionsPerRound: 3,
	})
	require.NoError(t, err)

	hostConn := env.dial(t, hostID, "host")
	guestConn := env.dial(t, guestID, "guest")

	sendWS(t, guestConn, ws.TypeJoinRoom, ws.JoinRoomPayload{RoomCode: room.Code})

	type result struct{ over ws.MatchOverPayload }
	hostCh := make(chan result, 1)
	guestCh := make(chan result, 1)

	go func() {
		hostCh <- result{playClient(t, hostConn, func(q ws.QuestionPayload) int {
			return correctByPrompt[q.Prompt]
		})}
	}()
	go func() {
		guestCh <- result{playClient(t, guestConn, func(q ws.QuestionPayload) int {
			return (correctByPrompt[q.Prompt] + 1) % len(q.Options)
		})}
	}()

	var hostOver, guestOver ws.MatchOverPayload
	select {
	case r := <-hostCh:
		hostOver = r.over
	case <-time.After(10 * time.Second):
		t.Fatal("host never saw match_over")
	}
	select {
	case r := <-guestCh:
		guestOver = r.over
	case <-time.After(10 * time.Second):
		t.Fatal("guest never saw match_over")
	}

	assert.Equal(t, history.ResultWin, hostOver.Result)
	assert.Equal(t, 1, hostOver.SelfSetScore)
	assert.Equal(t, []int{3}, hostOver.RoundScores)
	// First ranked win lands the placement rating.
	assert.Equal(t, 300, hostOver.MMRChange)
	require.NotNil(t, hostOver.NewMMR)
	assert.Equal(t, 300, *hostOver.NewMMR)
	assert.Equal(t, "Silver", hostOver.Tier)

	assert.Equal(t, history.ResultLoss, guestOver.Result)
	require.NotNil(t, guestOver.NewMMR)
	assert.Equal(t, 0, *guestOver.NewMMR)
	assert.Equal(t, "Bronze", guestOver.Tier)

	assert.Equal(t, 2, env.hist.WriteCount())
}

func TestGateway_BotDuelViaREST(t *testing.T) {
	env := newTestEnv(t, bankQuestions(3))

	hostID := uuid.New()
	room, err := env.rooms.Create(context.Background(), lobby.CreateRequest{
		HostID:            hostID,
		DisplayName:       "host",
		Format:            1,
		QuestionsPerRound: 3,
	})
	require.NoError(t, err)

	hostConn := env.dial(t, hostID, "host")

	resp, err := http.Post(env.server.URL+"/api/rooms/"+room.Code+"/bot", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	over := playClient(t, hostConn, func(q ws.QuestionPayload) int { return 0 })
	assert.Contains(t, []string{history.ResultWin, history.ResultLoss, history.ResultDraw}, over.Result)
	// Practice duels never move the rating.
	assert.Zero(t, over.MMRChange)
	assert.Nil(t, over.NewMMR)

	// Only the human row lands in history.
	assert.Equal(t, 1, env.hist.WriteCount())
	rows, err := env.hist.ListByUser(context.Background(), hostID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, history.ModeBot, rows[0].Mode)
}

func TestGateway_ClientDropForfeitsDuel(t *testing.T) {
	env := newTestEnv(t, bankQuestions(3))

	hostID, guestID := uuid.New(), uuid.New()
	room, err := env.rooms.Create(context.Background(), lobby.CreateRequest{
		HostID:            hostID,
		DisplayName:       "host",
		Format:            1,
		QuestionsPerRound: 3,
	})
	require.NoError(t, err)

	hostConn := env.dial(t, hostID, "host")
	guestConn := env.dial(t, guestID, "guest")
	sendWS(t, guestConn, ws.TypeJoinRoom, ws.JoinRoomPayload{RoomCode: room.Code})

	hostCh := make(chan ws.MatchOverPayload, 1)
	go func() {
		hostCh <- playClient(t, hostConn, func(q ws.QuestionPayload) int { return 0 })
	}()

	// The guest's socket dies as soon as it has seen the first question.
	guestConn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
	for {
		var msg ws.Message
		require.NoError(t, guestConn.ReadJSON(&msg))
		if msg.Type == ws.TypeQuestion {
			break
		}
	}
	require.NoError(t, guestConn.Close())

	var over ws.MatchOverPayload
	select {
	case over = <-hostCh:
	case <-time.After(10 * time.Second):
		t.Fatal("host never saw match_over")
	}

	// The survivor gets the walkover win, not a played-out points result.
	assert.Equal(t, history.ResultWin, over.Result)
	assert.Equal(t, duel.ReasonOpponentLeft, over.Reason)
	assert.Equal(t, 1, over.SelfSetScore)
	assert.Zero(t, over.MMRChange)
	assert.Nil(t, over.NewMMR)

	// Both rows land: the leaver's forfeit loss and the survivor's win.
	require.Eventually(t, func() bool { return env.hist.WriteCount() == 2 }, 2*time.Second, 10*time.Millisecond)
	rows, err := env.hist.ListByUser(context.Background(), guestID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, history.ResultLoss, rows[0].Result)
	assert.Zero(t, rows[0].MMRChange)
}

// flakyTransport fails the first n Join calls, then delegates.
type flakyTransport struct {
	next transport.Transport

	mu       sync.Mutex
	failures int
}

func (f *flakyTransport) Join(ctx context.Context, roomID string, participantID uuid.UUID) (transport.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return nil, fmt.Errorf("transport unavailable")
	}
	return f.next.Join(ctx, roomID, participantID)
}

func TestGateway_FailedStartReopensRoomForRetry(t *testing.T) {
	flaky := &flakyTransport{next: transport.NewBroker(zerolog.Nop()), failures: 1}
	env := newTestEnvWith(t, bankQuestions(3), flaky)

	hostID, guestID := uuid.New(), uuid.New()
	room, err := env.rooms.Create(context.Background(), lobby.CreateRequest{
		HostID:            hostID,
		DisplayName:       "host",
		Format:            1,
		QuestionsPerRound: 3,
	})
	require.NoError(t, err)

	hostConn := env.dial(t, hostID, "host")
	guestConn := env.dial(t, guestID, "guest")
	sendWS(t, guestConn, ws.TypeJoinRoom, ws.JoinRoomPayload{RoomCode: room.Code})

	waitForError := func(conn *websocket.Conn) ws.ErrorPayload {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck
		for {
			var msg ws.Message
			require.NoError(t, conn.ReadJSON(&msg))
			if msg.Type == ws.TypeError {
				var e ws.ErrorPayload
				require.NoError(t, json.Unmarshal(msg.Payload, &e))
				return e
			}
		}
	}
	assert.Equal(t, "duel_start_failed", waitForError(hostConn).Code)
	assert.Equal(t, "duel_start_failed", waitForError(guestConn).Code)

	// The failed launch reopened the room instead of leaving it stuck.
	got, err := env.rooms.Get(room.Code)
	require.NoError(t, err)
	assert.Equal(t, lobby.StatusWaiting, got.Status)
	assert.Nil(t, got.SessionID)

	// Resending the join retries the start, and this time it goes through.
	sendWS(t, guestConn, ws.TypeJoinRoom, ws.JoinRoomPayload{RoomCode: room.Code})

	hostCh := make(chan ws.MatchOverPayload, 1)
	guestCh := make(chan ws.MatchOverPayload, 1)
	go func() {
		hostCh <- playClient(t, hostConn, func(q ws.QuestionPayload) int { return 0 })
	}()
	go func() {
		guestCh <- playClient(t, guestConn, func(q ws.QuestionPayload) int { return 1 })
	}()

	for _, ch := range []chan ws.MatchOverPayload{hostCh, guestCh} {
		select {
		case over := <-ch:
			assert.Contains(t, []string{history.ResultWin, history.ResultLoss, history.ResultDraw}, over.Result)
		case <-time.After(10 * time.Second):
			t.Fatal("match never finished after retry")
		}
	}
	assert.Equal(t, 2, env.hist.WriteCount())
}

func TestGateway_JoinUnknownRoomReturnsError(t *testing.T) {
	env := newTestEnv(t, bankQuestions(3))

	userID := uuid.New()
	conn := env.dial(t, userID, "drifter")
	sendWS(t, conn, ws.TypeJoinRoom, ws.JoinRoomPayload{RoomCode: "000000"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	var msg ws.Message
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, ws.TypeError, msg.Type)

	var e ws.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &e))
	assert.Equal(t, "join_failed", e.Code)
}
