package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arena/internal/leaderboard"
	appErr "arena/pkg/errors"
	"arena/pkg/utils/logger"
)

const (
	defaultHeartbeat = 30 * time.Second
	defaultTopN      = 50
	wsWriteWait      = 10 * time.Second
	wsReadLimit      = 64 * 1024
)

// BoardSource serves leaderboard reads and change notifications to rooms.
type BoardSource interface {
	TopN(contestID int64, n int) ([]leaderboard.Row, error)
	Page(contestID int64, page, size int) ([]leaderboard.Row, int, error)
	Subscribe(contestID int64) (<-chan struct{}, func(), error)
}

type wsHandler func(c *wsConn, payload json.RawMessage) error

type wsConn struct {
	id      string
	sock    *websocket.Conn
	writeMu sync.Mutex

	mu            sync.Mutex
	authenticated bool
	participantID int64
	alias         string
	contestID     int64
	alive         bool
}

func (c *wsConn) snapshot() (authenticated bool, participantID, contestID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated, c.participantID, c.contestID
}

type roomSub struct {
	cancel func()
}

// HubConfig configures the websocket hub.
type HubConfig struct {
	Boards    BoardSource
	JWTSecret []byte
	Heartbeat time.Duration
	TopN      int
}

// Hub owns every websocket connection and the contest rooms they join.
// A single heartbeat ticker drives liveness for all connections; a
// connection that misses one ping interval without a pong is dropped.
type Hub struct {
	upgrader  websocket.Upgrader
	boards    BoardSource
	jwtSecret []byte
	heartbeat time.Duration
	topN      int

	mu       sync.RWMutex
	conns    map[string]*wsConn
	rooms    map[int64]map[string]*wsConn
	subs     map[int64]*roomSub
	handlers map[string]wsHandler
}

// NewHub creates a websocket hub.
func NewHub(cfg HubConfig) (*Hub, error) {
	if cfg.Boards == nil {
		return nil, fmt.Errorf("board source is required")
	}
	if len(cfg.JWTSecret) == 0 {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = defaultHeartbeat
	}
	if cfg.TopN <= 0 {
		cfg.TopN = defaultTopN
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		boards:    cfg.Boards,
		jwtSecret: cfg.JWTSecret,
		heartbeat: cfg.Heartbeat,
		topN:      cfg.TopN,
		conns:     make(map[string]*wsConn),
		rooms:     make(map[int64]map[string]*wsConn),
		subs:      make(map[int64]*roomSub),
		handlers:  make(map[string]wsHandler),
	}
	h.handlers[MsgAuthenticate] = h.handleAuthenticate
	h.handlers[MsgJoinContest] = h.handleJoin
	h.handlers[MsgLeaveContest] = h.handleLeave
	h.handlers[MsgGetLeaderboard] = h.handleGetLeaderboard
	h.handlers[MsgGetServerTime] = h.handleGetServerTime
	return h, nil
}

// Serve upgrades an HTTP request and starts the connection's read loop.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &wsConn{
		id:    uuid.NewString(),
		sock:  sock,
		alive: true,
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	sock.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.alive = true
		c.mu.Unlock()
		return nil
	})
	if err := h.send(c, Outbound{Type: MsgConnected, Payload: ConnectedPayload{
		ConnID:     c.id,
		ServerTime: time.Now().Unix(),
	}}); err != nil {
		h.drop(c)
		return err
	}
	go h.readLoop(c)
	return nil
}

// Run drives the shared heartbeat ticker until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case <-ticker.C:
			h.sweep(ctx)
		}
	}
}

func (h *Hub) sweep(ctx context.Context) {
	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		c.mu.Lock()
		alive := c.alive
		c.alive = false
		c.mu.Unlock()
		if !alive {
			logger.Debug(ctx, "dropping unresponsive connection", zap.String("conn_id", c.id))
			h.drop(c)
			continue
		}
		c.writeMu.Lock()
		err := c.sock.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
		c.writeMu.Unlock()
		if err != nil {
			h.drop(c)
		}
	}
}

func (h *Hub) readLoop(c *wsConn) {
	c.sock.SetReadLimit(wsReadLimit)
	for {
		_, raw, err := c.sock.ReadMessage()
		if err != nil {
			h.drop(c)
			return
		}
		h.dispatch(c, raw)
	}
}

func (h *Hub) dispatch(c *wsConn, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		h.sendError(c, appErr.New(appErr.InvalidParams).WithMessage("malformed message"))
		return
	}
	handler, ok := h.handlers[msg.Type]
	if !ok {
		h.sendError(c, appErr.Newf(appErr.UnknownMessageType, "unknown message type %q", msg.Type))
		return
	}
	if err := handler(c, msg.Payload); err != nil {
		h.sendError(c, err)
	}
}

func (h *Hub) handleAuthenticate(c *wsConn, payload json.RawMessage) error {
	var p AuthenticatePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.Token == "" {
		return appErr.ValidationError("token", "required")
	}
	participantID, alias, err := parseToken(p.Token, h.jwtSecret)
	if err != nil {
		return appErr.Wrap(err, appErr.AuthTokenInvalid)
	}
	c.mu.Lock()
	c.authenticated = true
	c.participantID = participantID
	c.alias = alias
	c.mu.Unlock()
	return h.send(c, Outbound{Type: MsgAuthenticated, Payload: map[string]int64{"participant_id": participantID}})
}

// handleJoin adds the connection to a contest room. Joining is open to
// unauthenticated spectators; authentication only gates participant-scoped
// delivery such as submission results.
func (h *Hub) handleJoin(c *wsConn, payload json.RawMessage) error {
	_, _, prevRoom := c.snapshot()
	var p JoinContestPayload
	if err := json.Unmarshal(payload, &p); err != nil || p.ContestID <= 0 {
		return appErr.ValidationError("contest_id", "required")
	}
	if prevRoom != 0 && prevRoom != p.ContestID {
		h.leaveRoom(c, prevRoom)
	}

	h.mu.Lock()
	room, ok := h.rooms[p.ContestID]
	if !ok {
		room = make(map[string]*wsConn)
		h.rooms[p.ContestID] = room
	}
	room[c.id] = c
	count := len(room)
	needSub := h.subs[p.ContestID] == nil
	if needSub {
		h.subs[p.ContestID] = &roomSub{}
	}
	h.mu.Unlock()

	c.mu.Lock()
	c.contestID = p.ContestID
	c.mu.Unlock()

	if needSub {
		h.startRoomFeed(p.ContestID)
	}

	joined := map[string]interface{}{"contest_id": p.ContestID, "participant_count": count}
	if rows, err := h.boards.TopN(p.ContestID, h.topN); err == nil {
		joined["rows"] = rows
	}
	if err := h.send(c, Outbound{Type: MsgJoined, Payload: joined}); err != nil {
		return err
	}
	h.Broadcast(p.ContestID, MsgParticipantCount, ParticipantCountPayload{ContestID: p.ContestID, Count: count})
	return nil
}

func (h *Hub) handleGetServerTime(c *wsConn, _ json.RawMessage) error {
	return h.send(c, Outbound{Type: MsgServerTime, Payload: ServerTimePayload{ServerTime: time.Now().Unix()}})
}

func (h *Hub) handleLeave(c *wsConn, _ json.RawMessage) error {
	_, _, room := c.snapshot()
	if room == 0 {
		return appErr.New(appErr.NotJoined).WithMessage("no contest joined")
	}
	h.leaveRoom(c, room)
	return h.send(c, Outbound{Type: MsgLeft, Payload: map[string]int64{"contest_id": room}})
}

func (h *Hub) handleGetLeaderboard(c *wsConn, payload json.RawMessage) error {
	_, _, room := c.snapshot()
	if room == 0 {
		return appErr.New(appErr.NotJoined).WithMessage("join a contest first")
	}
	var p GetLeaderboardPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			return appErr.ValidationError("payload", "malformed")
		}
	}
	rows, total, err := h.boards.Page(room, p.Page, p.Size)
	if err != nil {
		return appErr.Wrap(err, appErr.BoardNotInitialized)
	}
	return h.send(c, Outbound{Type: MsgLeaderboard, Payload: map[string]interface{}{
		"contest_id": room,
		"total":      total,
		"rows":       rows,
	}})
}

// startRoomFeed pushes top standings to a room whenever the board reports
// a change, until the room empties.
func (h *Hub) startRoomFeed(contestID int64) {
	ch, cancel, err := h.boards.Subscribe(contestID)
	if err != nil {
		h.mu.Lock()
		delete(h.subs, contestID)
		h.mu.Unlock()
		return
	}
	h.mu.Lock()
	if sub, ok := h.subs[contestID]; ok {
		sub.cancel = cancel
	}
	h.mu.Unlock()

	go func() {
		for range ch {
			rows, err := h.boards.TopN(contestID, h.topN)
			if err != nil {
				continue
			}
			h.Broadcast(contestID, MsgLeaderboardUpdate, map[string]interface{}{
				"contest_id": contestID,
				"rows":       rows,
			})
		}
	}()
}

func (h *Hub) leaveRoom(c *wsConn, contestID int64) {
	h.mu.Lock()
	var count int
	var emptied bool
	if room, ok := h.rooms[contestID]; ok {
		delete(room, c.id)
		count = len(room)
		if count == 0 {
			delete(h.rooms, contestID)
			emptied = true
		}
	}
	var cancel func()
	if emptied {
		if sub, ok := h.subs[contestID]; ok {
			cancel = sub.cancel
			delete(h.subs, contestID)
		}
	}
	h.mu.Unlock()

	c.mu.Lock()
	if c.contestID == contestID {
		c.contestID = 0
	}
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if count > 0 {
		h.Broadcast(contestID, MsgParticipantCount, ParticipantCountPayload{ContestID: contestID, Count: count})
	}
}

func (h *Hub) drop(c *wsConn) {
	h.mu.Lock()
	_, registered := h.conns[c.id]
	delete(h.conns, c.id)
	h.mu.Unlock()
	if !registered {
		return
	}
	_, _, room := c.snapshot()
	if room != 0 {
		h.leaveRoom(c, room)
	}
	_ = c.sock.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	conns := make([]*wsConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()
	for _, c := range conns {
		h.drop(c)
	}
}

// NotifyParticipant sends a message to every connection of one participant
// inside a contest room.
func (h *Hub) NotifyParticipant(contestID, participantID int64, msgType string, payload interface{}) {
	h.mu.RLock()
	var targets []*wsConn
	for _, c := range h.rooms[contestID] {
		c.mu.Lock()
		match := c.authenticated && c.participantID == participantID
		c.mu.Unlock()
		if match {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		if err := h.send(c, Outbound{Type: msgType, Payload: payload}); err != nil {
			h.drop(c)
		}
	}
}

// Broadcast sends a message to every connection in a contest room.
func (h *Hub) Broadcast(contestID int64, msgType string, payload interface{}) {
	h.mu.RLock()
	targets := make([]*wsConn, 0, len(h.rooms[contestID]))
	for _, c := range h.rooms[contestID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		if err := h.send(c, Outbound{Type: msgType, Payload: payload}); err != nil {
			h.drop(c)
		}
	}
}

// RoomCount returns the number of connections joined to a contest room.
func (h *Hub) RoomCount(contestID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[contestID])
}

func (h *Hub) send(c *wsConn, msg Outbound) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.sock.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.sock.WriteMessage(websocket.TextMessage, payload)
}

func (h *Hub) sendError(c *wsConn, err error) {
	code := appErr.GetCode(err)
	_ = h.send(c, Outbound{Type: MsgError, Payload: ErrorPayload{
		Code:    int(code),
		Message: code.Message(),
	}})
}
