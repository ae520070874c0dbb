package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/PstasDev/biliard-backend/pkg/models"
)

// Failure taxonomy. Error text doubles as the wire error message.
var (
	ErrFrameNotFound = errors.New("Frame not found")
	ErrEventNotFound = errors.New("Event not found")
	ErrNothingToUndo = errors.New("No events to undo in this frame")
	ErrMatchDecided  = errors.New("Match is already decided - winner declared")
	ErrMatchDrawn    = errors.New("Match ended in draw")
)

// ValidationError marks a malformed or unresolvable action payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationf(format string, args ...interface{}) error {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}

// IDAllocator hands out globally unique identifiers for new rows. Backed by
// database sequences in production.
type IDAllocator interface {
	NextEventID(ctx context.Context) (int64, error)
	NextFrameID(ctx context.Context) (int64, error)
}

// ProfileResolver loads player profiles referenced by actions.
type ProfileResolver interface {
	ProfileByID(ctx context.Context, id int64) (*models.Profile, error)
}

// Result is one successfully applied mutation: the next match state, the
// broadcast payload, the referee confirmation (if the action gets one), and
// the directive describing what the caller must persist before committing.
type Result struct {
	State *models.Match

	Kind string
	Data json.RawMessage

	// AckType is empty for actions that confirm via the broadcast alone.
	AckType    string
	AckMessage string

	InsertedEvent   *models.MatchEvent
	InsertedFrameID int64
	DeletedEventIDs []int64
	DeletedFrameID  int64
	CreatedFrame    *models.Frame
	UpdatedFrame    *models.Frame
	UpdatedMatch    bool
}

// Engine applies referee actions to an in-memory match state. Every operation
// stages its change on a clone and returns the clone; the caller persists and
// commits, so a failed durable write leaves the live state untouched.
type Engine struct {
	ids      IDAllocator
	profiles ProfileResolver
	now      func() time.Time
}

// New creates an engine. The clock is injectable for tests.
func New(ids IDAllocator, profiles ProfileResolver) *Engine {
	return &Engine{ids: ids, profiles: profiles, now: time.Now}
}

// NewWithClock creates an engine with a fixed clock source.
func NewWithClock(ids IDAllocator, profiles ProfileResolver, now func() time.Time) *Engine {
	return &Engine{ids: ids, profiles: profiles, now: now}
}

// CreateEvent appends a new event to a frame of the match.
func (e *Engine) CreateEvent(ctx context.Context, state *models.Match, spec models.EventSpec) (*Result, error) {
	if !models.ValidEventType(spec.EventType) {
		return nil, validationf("Invalid event type: %s", spec.EventType)
	}

	next := state.Clone()
	frame := next.FrameByID(spec.FrameID)
	if frame == nil {
		return nil, ErrFrameNotFound
	}

	var player *models.Profile
	if spec.PlayerID != nil {
		p, err := e.profiles.ProfileByID(ctx, *spec.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("resolve player: %w", err)
		}
		if p == nil {
			return nil, validationf("Player not found")
		}
		player = p
	}

	id, err := e.ids.NextEventID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate event id: %w", err)
	}

	ballIDs := spec.BallIDs
	if ballIDs == nil {
		ballIDs = []string{}
	}
	details := spec.Details

	event := models.MatchEvent{
		ID:         id,
		EventType:  spec.EventType,
		Timestamp:  models.NewTimestamp(e.now()),
		Details:    &details,
		TurnNumber: spec.TurnNumber,
		Player:     player,
		BallIDs:    ballIDs,
	}
	frame.Events = append(frame.Events, event)

	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &Result{
		State:           next,
		Kind:            models.TypeEventCreated,
		Data:            data,
		AckType:         models.TypeEventCreated,
		InsertedEvent:   &event,
		InsertedFrameID: frame.ID,
	}, nil
}

// UndoLastEvent removes the frame's greatest event under the canonical
// (timestamp, id) ordering.
func (e *Engine) UndoLastEvent(ctx context.Context, state *models.Match, frameID int64) (*Result, error) {
	next := state.Clone()
	frame := next.FrameByID(frameID)
	if frame == nil {
		return nil, ErrFrameNotFound
	}

	last := frame.LastEvent()
	if last == nil {
		return nil, ErrNothingToUndo
	}
	removed := *last
	frame.Events = deleteEvents(frame.Events, []int64{removed.ID})

	data, err := json.Marshal(models.UndoPayload{
		EventID:   removed.ID,
		FrameID:   frameID,
		EventType: removed.EventType,
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		State:           next,
		Kind:            models.TypeEventRemoved,
		Data:            data,
		AckType:         models.TypeEventRemoved,
		AckMessage:      "Last event undone",
		DeletedEventIDs: []int64{removed.ID},
		DeletedFrameID:  frameID,
	}, nil
}

// RemoveEvent deletes a single event, located by id across the match's frames.
func (e *Engine) RemoveEvent(ctx context.Context, state *models.Match, eventID int64) (*Result, error) {
	next := state.Clone()

	var frame *models.Frame
	for i := range next.Frames {
		if next.Frames[i].HasEvent(eventID) {
			frame = &next.Frames[i]
			break
		}
	}
	if frame == nil {
		return nil, ErrEventNotFound
	}
	frame.Events = deleteEvents(frame.Events, []int64{eventID})

	data, err := json.Marshal(models.EventRemovedPayload{
		EventID:  eventID,
		FrameIDs: []int64{frame.ID},
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		State:           next,
		Kind:            models.TypeEventRemoved,
		Data:            data,
		AckType:         models.TypeEventRemoved,
		DeletedEventIDs: []int64{eventID},
		DeletedFrameID:  frame.ID,
	}, nil
}

// RemoveEventsFromFrame deletes the requested events that are currently in
// the frame. Ids not present are skipped, never an error, so client retries
// and out-of-order deliveries stay harmless.
func (e *Engine) RemoveEventsFromFrame(ctx context.Context, state *models.Match, frameID int64, eventIDs []int64) (*Result, error) {
	next := state.Clone()
	frame := next.FrameByID(frameID)
	if frame == nil {
		return nil, ErrFrameNotFound
	}

	removed := []int64{}
	for _, id := range eventIDs {
		if frame.HasEvent(id) {
			removed = append(removed, id)
		}
	}
	frame.Events = deleteEvents(frame.Events, removed)

	data, err := json.Marshal(models.EventsRemovedPayload{
		FrameID:         frameID,
		RemovedEventIDs: removed,
		Count:           len(removed),
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		State:           next,
		Kind:            models.TypeEventsRemoved,
		Data:            data,
		AckType:         models.TypeEventsRemoved,
		DeletedEventIDs: removed,
		DeletedFrameID:  frameID,
	}, nil
}

// ClearFrameEvents removes every event currently in the frame. Clearing an
// already empty frame succeeds with count 0.
func (e *Engine) ClearFrameEvents(ctx context.Context, state *models.Match, frameID int64) (*Result, error) {
	next := state.Clone()
	frame := next.FrameByID(frameID)
	if frame == nil {
		return nil, ErrFrameNotFound
	}

	cleared := []int64{}
	for i := range frame.Events {
		cleared = append(cleared, frame.Events[i].ID)
	}
	frame.Events = []models.MatchEvent{}

	data, err := json.Marshal(models.FrameEventsClearedPayload{
		FrameID:         frameID,
		ClearedEventIDs: cleared,
		Count:           len(cleared),
	})
	if err != nil {
		return nil, err
	}
	return &Result{
		State:           next,
		Kind:            models.TypeFrameEventsCleared,
		Data:            data,
		AckType:         models.TypeFrameEventsCleared,
		DeletedEventIDs: cleared,
		DeletedFrameID:  frameID,
	}, nil
}

// StartFrame opens a new frame unless the match is already decided under
// best-of-N rules.
func (e *Engine) StartFrame(ctx context.Context, state *models.Match, spec models.FrameSpec) (*Result, error) {
	needed := (state.FramesToWin + 1) / 2
	p1 := state.FrameWins(state.Player1.ID)
	p2 := state.FrameWins(state.Player2.ID)
	if p1 >= needed || p2 >= needed {
		return nil, ErrMatchDecided
	}
	if state.FramesToWin%2 == 0 && p1+p2 >= state.FramesToWin {
		return nil, ErrMatchDrawn
	}

	next := state.Clone()
	number := len(next.Frames) + 1
	if spec.FrameNumber != nil {
		number = *spec.FrameNumber
	}

	id, err := e.ids.NextFrameID(ctx)
	if err != nil {
		return nil, fmt.Errorf("allocate frame id: %w", err)
	}
	frame := models.Frame{
		ID:          id,
		FrameNumber: number,
		Events:      []models.MatchEvent{},
	}
	next.Frames = append(next.Frames, frame)

	data, err := json.Marshal(frame)
	if err != nil {
		return nil, err
	}
	return &Result{
		State:        next,
		Kind:         models.TypeFrameUpdate,
		Data:         data,
		CreatedFrame: &frame,
	}, nil
}

// EndFrame records the frame's winner. A nil winner leaves the frame
// unchanged but still re-broadcasts it.
func (e *Engine) EndFrame(ctx context.Context, state *models.Match, frameID int64, winnerID *int64) (*Result, error) {
	next := state.Clone()
	frame := next.FrameByID(frameID)
	if frame == nil {
		return nil, ErrFrameNotFound
	}

	if winnerID != nil {
		winner, err := e.profiles.ProfileByID(ctx, *winnerID)
		if err != nil {
			return nil, fmt.Errorf("resolve winner: %w", err)
		}
		if winner == nil {
			return nil, validationf("Winner not found")
		}
		frame.Winner = winner
	}

	data, err := json.Marshal(*frame)
	if err != nil {
		return nil, err
	}
	return &Result{
		State:        next,
		Kind:         models.TypeFrameUpdate,
		Data:         data,
		UpdatedFrame: frame,
	}, nil
}

// SetBallGroups assigns each player's ball group for the frame. Values
// outside {full, striped} are ignored rather than rejected.
func (e *Engine) SetBallGroups(ctx context.Context, state *models.Match, frameID int64, player1, player2 *string) (*Result, error) {
	next := state.Clone()
	frame := next.FrameByID(frameID)
	if frame == nil {
		return nil, ErrFrameNotFound
	}

	if player1 != nil && models.ValidBallGroup(*player1) {
		g := *player1
		frame.Player1BallGroup = &g
	}
	if player2 != nil && models.ValidBallGroup(*player2) {
		g := *player2
		frame.Player2BallGroup = &g
	}

	data, err := json.Marshal(*frame)
	if err != nil {
		return nil, err
	}
	return &Result{
		State:        next,
		Kind:         models.TypeFrameUpdate,
		Data:         data,
		AckType:      models.TypeBallGroupsSet,
		UpdatedFrame: frame,
	}, nil
}

// UpdateMatch applies the mutable match fields and re-broadcasts the whole
// match.
func (e *Engine) UpdateMatch(ctx context.Context, state *models.Match, updates models.MatchUpdates) (*Result, error) {
	next := state.Clone()
	if updates.MatchDate != nil {
		d := *updates.MatchDate
		next.MatchDate = &d
	}
	if updates.FramesToWin != nil {
		next.FramesToWin = *updates.FramesToWin
	}

	data, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	return &Result{
		State:        next,
		Kind:         models.TypeMatchUpdate,
		Data:         data,
		UpdatedMatch: true,
	}, nil
}

// deleteEvents filters the listed ids out of an event slice, preserving the
// order of the survivors.
func deleteEvents(events []models.MatchEvent, ids []int64) []models.MatchEvent {
	if len(ids) == 0 {
		return events
	}
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := events[:0]
	for _, ev := range events {
		if !drop[ev.ID] {
			kept = append(kept, ev)
		}
	}
	return kept
}
