package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/PstasDev/biliard-backend/internal/engine"
	"github.com/PstasDev/biliard-backend/pkg/models"
)

// fakeIDs hands out sequential ids starting from the seeds.
type fakeIDs struct {
	nextEvent int64
	nextFrame int64
}

func (f *fakeIDs) NextEventID(ctx context.Context) (int64, error) {
	f.nextEvent++
	return f.nextEvent, nil
}

func (f *fakeIDs) NextFrameID(ctx context.Context) (int64, error) {
	f.nextFrame++
	return f.nextFrame, nil
}

type fakeProfiles struct {
	profiles map[int64]*models.Profile
}

func (f *fakeProfiles) ProfileByID(ctx context.Context, id int64) (*models.Profile, error) {
	return f.profiles[id], nil
}

func strPtr(s string) *string { return &s }

func int64Ptr(n int64) *int64 { return &n }

func intPtr(n int) *int { return &n }

func testProfile(id int64, name string) *models.Profile {
	p := &models.Profile{ID: id, FirstName: &name}
	p.ComputeNames()
	return p
}

func testEvent(id int64, eventType string, at time.Time) models.MatchEvent {
	details := ""
	return models.MatchEvent{
		ID:        id,
		EventType: eventType,
		Timestamp: models.NewTimestamp(at),
		Details:   &details,
		BallIDs:   []string{},
	}
}

// testMatch builds a best-of-3 match with one open frame (id 10) containing
// three events (ids 1..3) a second apart.
func testMatch() *models.Match {
	base := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	return &models.Match{
		ID:          7,
		Phase:       1,
		Player1:     *testProfile(1, "Anna"),
		Player2:     *testProfile(2, "Bence"),
		FramesToWin: 3,
		Frames: []models.Frame{
			{
				ID:          10,
				FrameNumber: 1,
				Events: []models.MatchEvent{
					testEvent(1, models.EventBallsPotted, base),
					testEvent(2, models.EventNextPlayer, base.Add(time.Second)),
					testEvent(3, models.EventBallsPotted, base.Add(2*time.Second)),
				},
			},
		},
	}
}

func newTestEngine() (*engine.Engine, *fakeIDs) {
	ids := &fakeIDs{nextEvent: 100, nextFrame: 20}
	profiles := &fakeProfiles{profiles: map[int64]*models.Profile{
		1: testProfile(1, "Anna"),
		2: testProfile(2, "Bence"),
	}}
	now := func() time.Time { return time.Date(2025, 6, 1, 19, 0, 0, 0, time.UTC) }
	return engine.NewWithClock(ids, profiles, now), ids
}

func TestCreateEvent(t *testing.T) {
	eng, _ := newTestEngine()
	state := testMatch()

	res, err := eng.CreateEvent(context.Background(), state, models.EventSpec{
		EventType: models.EventBallsPotted,
		PlayerID:  int64Ptr(1),
		BallIDs:   []string{"4", "5"},
		FrameID:   10,
	})
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}

	if res.Kind != models.TypeEventCreated {
		t.Errorf("kind = %q, want %q", res.Kind, models.TypeEventCreated)
	}
	if res.AckType != models.TypeEventCreated {
		t.Errorf("ack type = %q, want %q", res.AckType, models.TypeEventCreated)
	}
	if res.InsertedEvent == nil || res.InsertedEvent.ID != 101 {
		t.Fatalf("inserted event = %+v, want id 101", res.InsertedEvent)
	}
	if res.InsertedFrameID != 10 {
		t.Errorf("inserted frame id = %d, want 10", res.InsertedFrameID)
	}

	frame := res.State.FrameByID(10)
	if len(frame.Events) != 4 {
		t.Errorf("next state has %d events, want 4", len(frame.Events))
	}
	if len(state.Frames[0].Events) != 3 {
		t.Errorf("input state mutated: %d events, want 3", len(state.Frames[0].Events))
	}

	var payload models.MatchEvent
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatalf("payload does not decode as an event: %v", err)
	}
	if payload.Player == nil || payload.Player.ID != 1 {
		t.Errorf("payload player = %+v, want id 1", payload.Player)
	}
}

func TestCreateEventRejections(t *testing.T) {
	eng, _ := newTestEngine()
	state := testMatch()

	tests := []struct {
		name string
		spec models.EventSpec
	}{
		{"unknown event type", models.EventSpec{EventType: "levitation", FrameID: 10}},
		{"missing frame", models.EventSpec{EventType: models.EventFrameStart, FrameID: 999}},
		{"missing player", models.EventSpec{EventType: models.EventFrameStart, FrameID: 10, PlayerID: int64Ptr(42)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := eng.CreateEvent(context.Background(), state, tt.spec); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestUndoLastEventTieBreaksByID(t *testing.T) {
	eng, _ := newTestEngine()
	state := testMatch()

	// Two extra events sharing one timestamp: the greater id is "last".
	at := time.Date(2025, 6, 1, 18, 0, 5, 0, time.UTC)
	frame := state.FrameByID(10)
	frame.Events = append(frame.Events, testEvent(5, models.EventFaul, at), testEvent(4, models.EventCueBallLeftTable, at))

	res, err := eng.UndoLastEvent(context.Background(), state, 10)
	if err != nil {
		t.Fatalf("UndoLastEvent failed: %v", err)
	}

	var payload models.UndoPayload
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.EventID != 5 {
		t.Errorf("undone event id = %d, want 5", payload.EventID)
	}
	if payload.EventType != models.EventFaul {
		t.Errorf("undone event type = %q, want %q", payload.EventType, models.EventFaul)
	}
	if res.AckMessage != "Last event undone" {
		t.Errorf("ack message = %q", res.AckMessage)
	}
	if res.State.FrameByID(10).HasEvent(5) {
		t.Error("event 5 still present after undo")
	}
}

func TestUndoLastEventEmptyFrame(t *testing.T) {
	eng, _ := newTestEngine()
	state := testMatch()
	state.Frames[0].Events = []models.MatchEvent{}

	_, err := eng.UndoLastEvent(context.Background(), state, 10)
	if !errors.Is(err, engine.ErrNothingToUndo) {
		t.Fatalf("err = %v, want ErrNothingToUndo", err)
	}
}

func TestRemoveEventSearchesAllFrames(t *testing.T) {
	eng, _ := newTestEngine()
	state := testMatch()
	state.Frames = append(state.Frames, models.Frame{
		ID:          11,
		FrameNumber: 2,
		Events: []models.MatchEvent{
			testEvent(9, models.EventFrameStart, time.Date(2025, 6, 1, 18, 10, 0, 0, time.UTC)),
		},
	})

	res, err := eng.RemoveEvent(context.Background(), state, 9)
	if err != nil {
		t.Fatalf("RemoveEvent failed: %v", err)
	}

	var payload models.EventRemovedPayload
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.EventID != 9 {
		t.Errorf("event id = %d, want 9", payload.EventID)
	}
	if len(payload.FrameIDs) != 1 || payload.FrameIDs[0] != 11 {
		t.Errorf("frame ids = %v, want [11]", payload.FrameIDs)
	}
	if res.DeletedFrameID != 11 {
		t.Errorf("deleted frame id = %d, want 11", res.DeletedFrameID)
	}
}

func TestRemoveEventNotFound(t *testing.T) {
	eng, _ := newTestEngine()

	_, err := eng.RemoveEvent(context.Background(), testMatch(), 12345)
	if !errors.Is(err, engine.ErrEventNotFound) {
		t.Fatalf("err = %v, want ErrEventNotFound", err)
	}
}

func TestRemoveEventsFromFrameSkipsMissing(t *testing.T) {
	eng, _ := newTestEngine()

	res, err := eng.RemoveEventsFromFrame(context.Background(), testMatch(), 10, []int64{1, 3, 777})
	if err != nil {
		t.Fatalf("RemoveEventsFromFrame failed: %v", err)
	}

	var payload models.EventsRemovedPayload
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Count != 2 {
		t.Errorf("count = %d, want 2", payload.Count)
	}
	if len(payload.RemovedEventIDs) != 2 {
		t.Errorf("removed ids = %v, want [1 3]", payload.RemovedEventIDs)
	}

	frame := res.State.FrameByID(10)
	if len(frame.Events) != 1 || frame.Events[0].ID != 2 {
		t.Errorf("surviving events = %+v, want only id 2", frame.Events)
	}
}

func TestRemoveEventsFromFrameAllMissing(t *testing.T) {
	eng, _ := newTestEngine()

	res, err := eng.RemoveEventsFromFrame(context.Background(), testMatch(), 10, []int64{555, 666})
	if err != nil {
		t.Fatalf("RemoveEventsFromFrame failed: %v", err)
	}
	if len(res.DeletedEventIDs) != 0 {
		t.Errorf("deleted ids = %v, want none", res.DeletedEventIDs)
	}

	var payload models.EventsRemovedPayload
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Count != 0 {
		t.Errorf("count = %d, want 0", payload.Count)
	}
}

func TestClearFrameEvents(t *testing.T) {
	eng, _ := newTestEngine()

	res, err := eng.ClearFrameEvents(context.Background(), testMatch(), 10)
	if err != nil {
		t.Fatalf("ClearFrameEvents failed: %v", err)
	}

	var payload models.FrameEventsClearedPayload
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Count != 3 {
		t.Errorf("count = %d, want 3", payload.Count)
	}
	if len(res.State.FrameByID(10).Events) != 0 {
		t.Error("frame still has events after clear")
	}

	// Clearing again is not an error and reports zero.
	res, err = eng.ClearFrameEvents(context.Background(), res.State, 10)
	if err != nil {
		t.Fatalf("second clear failed: %v", err)
	}
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Count != 0 {
		t.Errorf("second clear count = %d, want 0", payload.Count)
	}
}

func TestStartFrameDefaultsNumber(t *testing.T) {
	eng, _ := newTestEngine()

	res, err := eng.StartFrame(context.Background(), testMatch(), models.FrameSpec{})
	if err != nil {
		t.Fatalf("StartFrame failed: %v", err)
	}
	if res.CreatedFrame == nil {
		t.Fatal("no created frame directive")
	}
	if res.CreatedFrame.FrameNumber != 2 {
		t.Errorf("frame number = %d, want 2", res.CreatedFrame.FrameNumber)
	}
	if res.CreatedFrame.ID != 21 {
		t.Errorf("frame id = %d, want 21", res.CreatedFrame.ID)
	}
	if res.AckType != "" {
		t.Errorf("ack type = %q, want none", res.AckType)
	}
	if len(res.State.Frames) != 2 {
		t.Errorf("next state has %d frames, want 2", len(res.State.Frames))
	}
}

func TestStartFrameRefusesDecidedMatch(t *testing.T) {
	eng, _ := newTestEngine()
	state := testMatch()

	// Two frames won by player 1 decide a best-of-3.
	winner := testProfile(1, "Anna")
	state.Frames = []models.Frame{
		{ID: 10, FrameNumber: 1, Winner: winner, Events: []models.MatchEvent{}},
		{ID: 11, FrameNumber: 2, Winner: winner, Events: []models.MatchEvent{}},
	}

	_, err := eng.StartFrame(context.Background(), state, models.FrameSpec{})
	if !errors.Is(err, engine.ErrMatchDecided) {
		t.Fatalf("err = %v, want ErrMatchDecided", err)
	}
}

func TestStartFrameRefusesDrawnMatch(t *testing.T) {
	eng, _ := newTestEngine()
	state := testMatch()
	state.FramesToWin = 2

	p1 := testProfile(1, "Anna")
	p2 := testProfile(2, "Bence")
	state.Frames = []models.Frame{
		{ID: 10, FrameNumber: 1, Winner: p1, Events: []models.MatchEvent{}},
		{ID: 11, FrameNumber: 2, Winner: p2, Events: []models.MatchEvent{}},
	}

	_, err := eng.StartFrame(context.Background(), state, models.FrameSpec{})
	if !errors.Is(err, engine.ErrMatchDrawn) {
		t.Fatalf("err = %v, want ErrMatchDrawn", err)
	}
}

func TestEndFrame(t *testing.T) {
	eng, _ := newTestEngine()

	res, err := eng.EndFrame(context.Background(), testMatch(), 10, int64Ptr(2))
	if err != nil {
		t.Fatalf("EndFrame failed: %v", err)
	}
	if res.Kind != models.TypeFrameUpdate {
		t.Errorf("kind = %q, want %q", res.Kind, models.TypeFrameUpdate)
	}
	frame := res.State.FrameByID(10)
	if frame.Winner == nil || frame.Winner.ID != 2 {
		t.Errorf("winner = %+v, want id 2", frame.Winner)
	}

	// Unknown winner is refused.
	if _, err := eng.EndFrame(context.Background(), testMatch(), 10, int64Ptr(42)); err == nil {
		t.Fatal("expected an error for unknown winner")
	}

	// A nil winner still rebroadcasts the frame.
	res, err = eng.EndFrame(context.Background(), testMatch(), 10, nil)
	if err != nil {
		t.Fatalf("EndFrame with nil winner failed: %v", err)
	}
	if res.UpdatedFrame == nil {
		t.Error("no updated frame directive")
	}
}

func TestSetBallGroups(t *testing.T) {
	eng, _ := newTestEngine()

	res, err := eng.SetBallGroups(context.Background(), testMatch(), 10, strPtr(models.BallGroupFull), strPtr("polka-dot"))
	if err != nil {
		t.Fatalf("SetBallGroups failed: %v", err)
	}
	if res.AckType != models.TypeBallGroupsSet {
		t.Errorf("ack type = %q, want %q", res.AckType, models.TypeBallGroupsSet)
	}
	if res.Kind != models.TypeFrameUpdate {
		t.Errorf("kind = %q, want %q", res.Kind, models.TypeFrameUpdate)
	}

	frame := res.State.FrameByID(10)
	if frame.Player1BallGroup == nil || *frame.Player1BallGroup != models.BallGroupFull {
		t.Errorf("player1 ball group = %v, want %q", frame.Player1BallGroup, models.BallGroupFull)
	}
	// Invalid values are ignored, not rejected.
	if frame.Player2BallGroup != nil {
		t.Errorf("player2 ball group = %v, want nil", frame.Player2BallGroup)
	}
}

func TestUpdateMatch(t *testing.T) {
	eng, _ := newTestEngine()
	state := testMatch()

	res, err := eng.UpdateMatch(context.Background(), state, models.MatchUpdates{FramesToWin: intPtr(7)})
	if err != nil {
		t.Fatalf("UpdateMatch failed: %v", err)
	}
	if res.State.FramesToWin != 7 {
		t.Errorf("frames_to_win = %d, want 7", res.State.FramesToWin)
	}
	if state.FramesToWin != 3 {
		t.Error("input state mutated")
	}
	if !res.UpdatedMatch {
		t.Error("updated match directive not set")
	}

	var payload models.Match
	if err := json.Unmarshal(res.Data, &payload); err != nil {
		t.Fatalf("payload does not decode as a match: %v", err)
	}
	if payload.ID != state.ID {
		t.Errorf("payload match id = %d, want %d", payload.ID, state.ID)
	}
}
