package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arena/internal/leaderboard"
	appErr "arena/pkg/errors"
)

var testSecret = []byte("test-secret")

type hubEnv struct {
	hub   *Hub
	board *leaderboard.Store
	srv   *httptest.Server
}

func newHubEnv(t *testing.T) *hubEnv {
	t.Helper()
	board := leaderboard.NewStore()
	hub, err := NewHub(HubConfig{
		Boards:    board,
		JWTSecret: testSecret,
		Heartbeat: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.Serve(w, r); err != nil {
			t.Errorf("Serve: %v", err)
		}
	}))
	t.Cleanup(srv.Close)
	return &hubEnv{hub: hub, board: board, srv: srv}
}

func (e *hubEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	recvType(t, conn, MsgConnected)
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		raw = data
	}
	if err := conn.WriteJSON(Message{Type: msgType, Payload: raw}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func recv(t *testing.T, conn *websocket.Conn) inbound {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg inbound
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func recvType(t *testing.T, conn *websocket.Conn, want string) inbound {
	t.Helper()
	msg := recv(t, conn)
	if msg.Type != want {
		t.Fatalf("message type = %s (payload %s), want %s", msg.Type, msg.Payload, want)
	}
	return msg
}

func recvErrorCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	msg := recvType(t, conn, MsgError)
	var p ErrorPayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	return p.Code
}

func authenticate(t *testing.T, conn *websocket.Conn, participantID int64, alias string) {
	t.Helper()
	token, err := IssueToken(participantID, alias, testSecret)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	send(t, conn, MsgAuthenticate, AuthenticatePayload{Token: token})
	recvType(t, conn, MsgAuthenticated)
}

func join(t *testing.T, conn *websocket.Conn, contestID int64) {
	t.Helper()
	send(t, conn, MsgJoinContest, JoinContestPayload{ContestID: contestID})
	recvType(t, conn, MsgJoined)
	recvType(t, conn, MsgParticipantCount)
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	conn := env.dial(t)

	token, err := IssueToken(42, "alice", testSecret)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	send(t, conn, MsgAuthenticate, AuthenticatePayload{Token: token})
	msg := recvType(t, conn, MsgAuthenticated)
	var p map[string]int64
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p["participant_id"] != 42 {
		t.Errorf("participant_id = %d", p["participant_id"])
	}
}

func TestServerTime(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	conn := env.dial(t)

	before := time.Now().Unix()
	send(t, conn, MsgGetServerTime, nil)
	msg := recvType(t, conn, MsgServerTime)
	var p ServerTimePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.ServerTime < before || p.ServerTime > time.Now().Unix() {
		t.Errorf("server_time = %d outside request window", p.ServerTime)
	}
}

func TestAuthenticateBadToken(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	conn := env.dial(t)

	wrong, err := IssueToken(42, "alice", []byte("other-secret"))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	send(t, conn, MsgAuthenticate, AuthenticatePayload{Token: wrong})
	if code := recvErrorCode(t, conn); code != int(appErr.AuthTokenInvalid) {
		t.Errorf("code = %d, want AuthTokenInvalid", code)
	}
}

func TestAnonymousSpectatorJoin(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	env.board.Init(1)

	spectator := env.dial(t)
	join(t, spectator, 1)
	if got := env.hub.RoomCount(1); got != 1 {
		t.Errorf("RoomCount = %d, want 1", got)
	}

	// Room broadcasts reach spectators too.
	env.hub.Broadcast(1, MsgAnnouncement, AnnouncementPayload{Message: "clarification"})
	recvType(t, spectator, MsgAnnouncement)

	// Participant-scoped frames never reach an unauthenticated connection,
	// even one whose zero participant ID happens to match.
	env.hub.NotifyParticipant(1, 0, MsgSubmissionResult, SubmissionResultPayload{SubmissionID: "s1", Verdict: "accepted"})
	spectator.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg inbound
	if err := spectator.ReadJSON(&msg); err == nil {
		t.Errorf("spectator received participant frame %q", msg.Type)
	}
}

func TestJoinAndLeave(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	conn := env.dial(t)
	authenticate(t, conn, 42, "alice")
	join(t, conn, 1)

	if got := env.hub.RoomCount(1); got != 1 {
		t.Errorf("RoomCount = %d, want 1", got)
	}

	send(t, conn, MsgLeaveContest, nil)
	recvType(t, conn, MsgLeft)
	if got := env.hub.RoomCount(1); got != 0 {
		t.Errorf("RoomCount after leave = %d, want 0", got)
	}
}

func TestUnknownMessageType(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	conn := env.dial(t)

	send(t, conn, "bogus", nil)
	if code := recvErrorCode(t, conn); code != int(appErr.UnknownMessageType) {
		t.Errorf("code = %d, want UnknownMessageType", code)
	}
}

func TestGetLeaderboardRequiresRoom(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	conn := env.dial(t)
	authenticate(t, conn, 42, "alice")

	send(t, conn, MsgGetLeaderboard, GetLeaderboardPayload{Page: 1, Size: 10})
	if code := recvErrorCode(t, conn); code != int(appErr.NotJoined) {
		t.Errorf("code = %d, want NotJoined", code)
	}
}

func TestGetLeaderboard(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	env.board.Init(1)
	env.board.Upsert(1, leaderboard.Row{ParticipantID: 7, Alias: "carol", Score: 300, Seq: 1})

	conn := env.dial(t)
	authenticate(t, conn, 42, "alice")
	join(t, conn, 1)

	send(t, conn, MsgGetLeaderboard, GetLeaderboardPayload{Page: 1, Size: 10})
	msg := recvType(t, conn, MsgLeaderboard)
	var p struct {
		ContestID int64             `json:"contest_id"`
		Total     int               `json:"total"`
		Rows      []leaderboard.Row `json:"rows"`
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Total != 1 || len(p.Rows) != 1 || p.Rows[0].ParticipantID != 7 {
		t.Errorf("payload = %+v", p)
	}
}

func TestRoomFeedPushesBoardChanges(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	env.board.Init(1)

	conn := env.dial(t)
	authenticate(t, conn, 42, "alice")
	join(t, conn, 1)

	if err := env.board.Upsert(1, leaderboard.Row{ParticipantID: 42, Alias: "alice", Score: 100, Seq: 1}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	msg := recvType(t, conn, MsgLeaderboardUpdate)
	var p struct {
		Rows []leaderboard.Row `json:"rows"`
	}
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if len(p.Rows) != 1 || p.Rows[0].Score != 100 {
		t.Errorf("pushed rows = %+v", p.Rows)
	}
}

func TestBroadcastAndNotifyParticipant(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	alice := env.dial(t)
	bob := env.dial(t)
	authenticate(t, alice, 42, "alice")
	authenticate(t, bob, 43, "bob")
	join(t, alice, 1)
	join(t, bob, 1)
	// Alice also sees Bob's join land in the room count.
	recvType(t, alice, MsgParticipantCount)

	env.hub.Broadcast(1, MsgAnnouncement, AnnouncementPayload{Message: "clarification"})
	recvType(t, alice, MsgAnnouncement)
	recvType(t, bob, MsgAnnouncement)

	env.hub.NotifyParticipant(1, 42, MsgSubmissionResult, SubmissionResultPayload{SubmissionID: "s1", Verdict: "accepted"})
	recvType(t, alice, MsgSubmissionResult)

	// Bob must not receive Alice's verdict.
	bob.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var msg inbound
	if err := bob.ReadJSON(&msg); err == nil {
		t.Errorf("bob received %s, want nothing", msg.Type)
	}
}

func TestMalformedFrame(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	conn := env.dial(t)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if code := recvErrorCode(t, conn); code != int(appErr.InvalidParams) {
		t.Errorf("code = %d, want InvalidParams", code)
	}
}

func TestRunClosesConnectionsOnCancel(t *testing.T) {
	t.Parallel()
	env := newHubEnv(t)
	conn := env.dial(t)
	authenticate(t, conn, 42, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.hub.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("connection should be closed after shutdown")
	}
}
