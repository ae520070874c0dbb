package models

import "encoding/json"

// Message types pushed to live match connections
const (
	TypeMatchState         = "match_state"
	TypeMatchUpdate        = "match_update"
	TypeFrameUpdate        = "frame_update"
	TypeEventCreated       = "event_created"
	TypeEventRemoved       = "event_removed"
	TypeEventsRemoved      = "events_removed"
	TypeFrameEventsCleared = "frame_events_cleared"
	TypeBallGroupsSet      = "ball_groups_set"
	TypeError              = "error"
	TypePing               = "ping"
	TypePong               = "pong"
)

// Referee actions accepted on the admin channel
const (
	ActionCreateEvent           = "create_event"
	ActionStartFrame            = "start_frame"
	ActionEndFrame              = "end_frame"
	ActionUpdateMatch           = "update_match"
	ActionRemoveEvent           = "remove_event"
	ActionUndoLastEvent         = "undo_last_event"
	ActionRemoveEventsFromFrame = "remove_events_from_frame"
	ActionClearFrameEvents      = "clear_frame_events"
	ActionSetBallGroups         = "set_ball_groups"
)

// WebSocket close codes on the admin channel
const (
	CloseMissingToken = 4001
	CloseUnauthorized = 4003
)

// Delta describes one applied mutation: its broadcast type, the payload
// already marshaled to its wire shape, and the session sequence it was
// emitted at. Deltas are immutable once produced.
type Delta struct {
	Kind string
	Data json.RawMessage
	Seq  uint64
}

// Envelope is the outbound message shape shared by snapshots and deltas.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalEnvelope serializes a {type, data} message once, so every connection
// receives identical bytes.
func MarshalEnvelope(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// Ack confirms a referee action back to the connection that submitted it.
type Ack struct {
	Type    string          `json:"type"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// ErrorMessage is sent only to the connection whose request failed.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PingPong is the keepalive envelope on the spectator channel.
type PingPong struct {
	Type string `json:"type"`
}

// ActionMessage is the inbound referee envelope. Which fields are meaningful
// depends on Action.
type ActionMessage struct {
	Action    string        `json:"action"`
	EventData *EventSpec    `json:"event_data,omitempty"`
	FrameData *FrameSpec    `json:"frame_data,omitempty"`
	Updates   *MatchUpdates `json:"updates,omitempty"`
	FrameID   int64         `json:"frame_id,omitempty"`
	WinnerID  *int64        `json:"winner_id,omitempty"`
	EventID   int64         `json:"event_id,omitempty"`
	EventIDs  []int64       `json:"event_ids,omitempty"`

	Player1BallGroup *string `json:"player1_ball_group,omitempty"`
	Player2BallGroup *string `json:"player2_ball_group,omitempty"`
}

// EventSpec carries the fields of a new event.
type EventSpec struct {
	EventType  string   `json:"eventType"`
	Details    string   `json:"details"`
	TurnNumber *int     `json:"turn_number"`
	PlayerID   *int64   `json:"player_id"`
	BallIDs    []string `json:"ball_ids"`
	FrameID    int64    `json:"frame_id"`
}

// FrameSpec carries the fields of a new frame.
type FrameSpec struct {
	FrameNumber *int `json:"frame_number"`
}

// MatchUpdates carries the mutable match fields; nil means "leave unchanged".
type MatchUpdates struct {
	MatchDate   *Timestamp `json:"match_date"`
	FramesToWin *int       `json:"frames_to_win"`
}

// EventRemovedPayload is the event_removed shape for remove_event. The frame
// id list is plural for wire compatibility even though an event belongs to
// exactly one frame; it always has one element here.
type EventRemovedPayload struct {
	EventID  int64   `json:"event_id"`
	FrameIDs []int64 `json:"frame_ids"`
}

// UndoPayload is the event_removed shape for undo_last_event.
type UndoPayload struct {
	EventID   int64  `json:"event_id"`
	FrameID   int64  `json:"frame_id"`
	EventType string `json:"event_type"`
}

// EventsRemovedPayload is the events_removed shape.
type EventsRemovedPayload struct {
	FrameID         int64   `json:"frame_id"`
	RemovedEventIDs []int64 `json:"removed_event_ids"`
	Count           int     `json:"count"`
}

// FrameEventsClearedPayload is the frame_events_cleared shape.
type FrameEventsClearedPayload struct {
	FrameID         int64   `json:"frame_id"`
	ClearedEventIDs []int64 `json:"cleared_event_ids"`
	Count           int     `json:"count"`
}
