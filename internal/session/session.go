package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/PstasDev/biliard-backend/internal/client"
	"github.com/PstasDev/biliard-backend/internal/engine"
	"github.com/PstasDev/biliard-backend/pkg/models"
)

// Store is the durable side of a live match. Loads return (nil, nil) when the
// match row does not exist; every write is atomic-or-failed.
type Store interface {
	LoadMatchState(ctx context.Context, matchID int64) (*models.Match, error)
	InsertEvent(ctx context.Context, frameID int64, event *models.MatchEvent) error
	DeleteEvents(ctx context.Context, frameID int64, eventIDs []int64) error
	CreateFrame(ctx context.Context, matchID int64, frame *models.Frame) error
	UpdateFrame(ctx context.Context, frame *models.Frame) error
	UpdateMatch(ctx context.Context, match *models.Match) error
}

// Guard authorizes writer capability. Checked at attach by the handlers and
// re-checked here for every submitted action, so a revoked referee loses the
// connection mid-stream.
type Guard interface {
	AuthorizeWriter(ctx context.Context, token string, matchID int64) error
}

// Publisher mirrors committed deltas to an external stream. Implementations
// must not block the caller meaningfully; failures are their own problem.
type Publisher interface {
	PublishDelta(ctx context.Context, matchID int64, delta models.Delta)
}

type attachReq struct {
	conn  *client.Conn
	token string
}

type actionReq struct {
	conn *client.Conn
	raw  []byte
}

type externalDelta struct {
	kind string
	data json.RawMessage
}

// Session owns the live state of one match. A single run loop serializes
// every mutation, so deltas form a linear history and all connections see
// them in the same order.
type Session struct {
	matchID  int64
	store    Store
	eng      *engine.Engine
	guard    Guard
	pub      Publisher
	registry *Registry
	idleTTL  time.Duration

	attachCh  chan attachReq
	detachCh  chan *client.Conn
	actionCh  chan actionReq
	publishCh chan externalDelta
	done      chan struct{}

	// Loop-owned; never touched from outside run().
	state  *models.Match
	conns  map[*client.Conn]bool
	tokens map[*client.Conn]string
	seq    uint64
	idle   *time.Timer
}

func newSession(r *Registry, matchID int64) *Session {
	return &Session{
		matchID:   matchID,
		store:     r.store,
		eng:       r.eng,
		guard:     r.guard,
		pub:       r.pub,
		registry:  r,
		idleTTL:   r.idleTTL,
		attachCh:  make(chan attachReq),
		detachCh:  make(chan *client.Conn),
		actionCh:  make(chan actionReq, 64),
		publishCh: make(chan externalDelta, 16),
		done:      make(chan struct{}),
		conns:     make(map[*client.Conn]bool),
		tokens:    make(map[*client.Conn]string),
	}
}

// MatchID returns the match this session serves.
func (s *Session) MatchID() int64 { return s.matchID }

// attach registers a connection. Returns false when the session terminated
// concurrently; the registry then retries with a fresh session.
func (s *Session) attach(conn *client.Conn, token string) bool {
	select {
	case s.attachCh <- attachReq{conn: conn, token: token}:
		return true
	case <-s.done:
		return false
	}
}

// Detach removes a connection from the fan-out set. Safe to call while a
// mutation is in flight or after the session died.
func (s *Session) Detach(conn *client.Conn) {
	select {
	case s.detachCh <- conn:
	case <-s.done:
	}
}

// SubmitAction queues a referee action. Actions are applied strictly in
// submission order, one at a time.
func (s *Session) SubmitAction(conn *client.Conn, raw []byte) {
	select {
	case s.actionCh <- actionReq{conn: conn, raw: raw}:
	case <-s.done:
	}
}

// publishExternal injects a delta produced outside the session (the referee
// REST surface). The session reloads its state from the store first, so the
// cache never drifts from out-of-band writes.
func (s *Session) publishExternal(kind string, data json.RawMessage) {
	select {
	case s.publishCh <- externalDelta{kind: kind, data: data}:
	case <-s.done:
	}
}

func (s *Session) run() {
	ctx := context.Background()

	state, err := s.store.LoadMatchState(ctx, s.matchID)
	if err != nil {
		fmt.Printf("match %d: failed to load state: %v\n", s.matchID, err)
	}
	s.state = state
	if state == nil && err == nil {
		fmt.Printf("match %d: no match data found\n", s.matchID)
	}

	s.idle = time.NewTimer(s.idleTTL)
	defer s.idle.Stop()

	for {
		select {
		case req := <-s.attachCh:
			s.handleAttach(req)

		case conn := <-s.detachCh:
			s.handleDetach(conn)

		case req := <-s.actionCh:
			s.handleAction(ctx, req)

		case d := <-s.publishCh:
			s.handleExternal(ctx, d)

		case <-s.idle.C:
			if len(s.conns) == 0 && s.registry.remove(s) {
				return
			}

		case <-s.done:
			// Registry shutdown
			for conn := range s.conns {
				conn.CloseSend()
			}
			return
		}
	}
}

func (s *Session) handleAttach(req attachReq) {
	s.idle.Stop()
	s.conns[req.conn] = true
	if req.conn.Role == client.RoleWriter {
		s.tokens[req.conn] = req.token
	}
	fmt.Printf("match %d: %s %s attached (total: %d)\n", s.matchID, req.conn.Role, req.conn.ID, len(s.conns))

	// Snapshot before any later delta. A missing match row attaches without
	// a snapshot; every action then fails NotFound.
	if s.state == nil {
		return
	}
	snapshot, err := models.MarshalEnvelope(models.TypeMatchState, s.state)
	if err != nil {
		fmt.Printf("match %d: failed to marshal snapshot: %v\n", s.matchID, err)
		return
	}
	if !req.conn.TrySend(snapshot) {
		s.drop(req.conn)
	}
}

func (s *Session) handleDetach(conn *client.Conn) {
	if !s.conns[conn] {
		return
	}
	delete(s.conns, conn)
	delete(s.tokens, conn)
	conn.CloseSend()
	fmt.Printf("match %d: %s %s detached (total: %d)\n", s.matchID, conn.Role, conn.ID, len(s.conns))

	if len(s.conns) == 0 {
		s.idle.Stop()
		s.idle.Reset(s.idleTTL)
	}
}

// drop disconnects a peer whose send buffer overflowed.
func (s *Session) drop(conn *client.Conn) {
	fmt.Printf("match %d: %s %s buffer full, disconnecting\n", s.matchID, conn.Role, conn.ID)
	s.handleDetach(conn)
}

func (s *Session) handleAction(ctx context.Context, req actionReq) {
	if req.conn.Role != client.RoleWriter || !s.conns[req.conn] {
		return
	}

	// Capability may be revoked mid-connection.
	if err := s.guard.AuthorizeWriter(ctx, s.tokens[req.conn], s.matchID); err != nil {
		fmt.Printf("match %d: writer %s no longer authorized: %v\n", s.matchID, req.conn.ID, err)
		s.handleDetach(req.conn)
		return
	}

	var action models.ActionMessage
	if err := json.Unmarshal(req.raw, &action); err != nil {
		s.sendError(req.conn, "Invalid JSON")
		return
	}

	if s.state == nil {
		s.sendError(req.conn, "Match not found")
		return
	}

	res, err := s.apply(ctx, action)
	if err != nil {
		s.sendError(req.conn, err.Error())
		return
	}

	if err := s.persist(ctx, res); err != nil {
		fmt.Printf("match %d: persist %s failed: %v\n", s.matchID, action.Action, err)
		s.sendError(req.conn, "Failed to save changes")
		return
	}

	s.commit(ctx, res, req.conn)
}

func (s *Session) apply(ctx context.Context, action models.ActionMessage) (*engine.Result, error) {
	switch action.Action {
	case models.ActionCreateEvent:
		if action.EventData == nil {
			return nil, &engine.ValidationError{Reason: "Missing event_data"}
		}
		return s.eng.CreateEvent(ctx, s.state, *action.EventData)

	case models.ActionUndoLastEvent:
		return s.eng.UndoLastEvent(ctx, s.state, action.FrameID)

	case models.ActionRemoveEvent:
		return s.eng.RemoveEvent(ctx, s.state, action.EventID)

	case models.ActionRemoveEventsFromFrame:
		return s.eng.RemoveEventsFromFrame(ctx, s.state, action.FrameID, action.EventIDs)

	case models.ActionClearFrameEvents:
		return s.eng.ClearFrameEvents(ctx, s.state, action.FrameID)

	case models.ActionStartFrame:
		spec := models.FrameSpec{}
		if action.FrameData != nil {
			spec = *action.FrameData
		}
		return s.eng.StartFrame(ctx, s.state, spec)

	case models.ActionEndFrame:
		return s.eng.EndFrame(ctx, s.state, action.FrameID, action.WinnerID)

	case models.ActionSetBallGroups:
		return s.eng.SetBallGroups(ctx, s.state, action.FrameID, action.Player1BallGroup, action.Player2BallGroup)

	case models.ActionUpdateMatch:
		if action.Updates == nil {
			return nil, &engine.ValidationError{Reason: "Missing updates"}
		}
		return s.eng.UpdateMatch(ctx, s.state, *action.Updates)

	default:
		return nil, &engine.ValidationError{Reason: fmt.Sprintf("Unknown action: %s", action.Action)}
	}
}

func (s *Session) persist(ctx context.Context, res *engine.Result) error {
	switch {
	case res.InsertedEvent != nil:
		return s.store.InsertEvent(ctx, res.InsertedFrameID, res.InsertedEvent)
	case len(res.DeletedEventIDs) > 0:
		return s.store.DeleteEvents(ctx, res.DeletedFrameID, res.DeletedEventIDs)
	case res.CreatedFrame != nil:
		return s.store.CreateFrame(ctx, s.matchID, res.CreatedFrame)
	case res.UpdatedFrame != nil:
		return s.store.UpdateFrame(ctx, res.UpdatedFrame)
	case res.UpdatedMatch:
		return s.store.UpdateMatch(ctx, res.State)
	}
	// Empty batch removal: nothing durable changed.
	return nil
}

// commit publishes one applied mutation: state swap, broadcast to every
// connection (writer included, identical bytes), stream mirror, then the
// referee confirmation to the origin only.
func (s *Session) commit(ctx context.Context, res *engine.Result, origin *client.Conn) {
	s.state = res.State
	s.seq++
	delta := models.Delta{Kind: res.Kind, Data: res.Data, Seq: s.seq}

	payload, err := json.Marshal(models.Envelope{Type: delta.Kind, Data: delta.Data})
	if err != nil {
		fmt.Printf("match %d: failed to marshal delta: %v\n", s.matchID, err)
		return
	}
	s.broadcast(payload)

	if s.pub != nil {
		s.pub.PublishDelta(ctx, s.matchID, delta)
	}

	if res.AckType != "" && s.conns[origin] {
		ack, err := json.Marshal(models.Ack{
			Type:    res.AckType,
			Success: true,
			Data:    res.Data,
			Message: res.AckMessage,
		})
		if err == nil && !origin.TrySend(ack) {
			s.drop(origin)
		}
	}
}

func (s *Session) handleExternal(ctx context.Context, d externalDelta) {
	state, err := s.store.LoadMatchState(ctx, s.matchID)
	if err != nil {
		fmt.Printf("match %d: reload after external write failed: %v\n", s.matchID, err)
	} else {
		s.state = state
	}

	s.seq++
	payload, err := json.Marshal(models.Envelope{Type: d.kind, Data: d.data})
	if err != nil {
		fmt.Printf("match %d: failed to marshal external delta: %v\n", s.matchID, err)
		return
	}
	s.broadcast(payload)

	if s.pub != nil {
		s.pub.PublishDelta(ctx, s.matchID, models.Delta{Kind: d.kind, Data: d.data, Seq: s.seq})
	}
}

func (s *Session) broadcast(payload []byte) {
	var dead []*client.Conn
	for conn := range s.conns {
		if !conn.TrySend(payload) {
			dead = append(dead, conn)
		}
	}
	for _, conn := range dead {
		s.drop(conn)
	}
}

func (s *Session) sendError(conn *client.Conn, message string) {
	msg, err := json.Marshal(models.ErrorMessage{Type: models.TypeError, Message: message})
	if err != nil {
		return
	}
	if s.conns[conn] && !conn.TrySend(msg) {
		s.drop(conn)
	}
}
