package models

import "strings"

// Game modes
const (
	GameMode8Ball   = "8ball"
	GameModeSnooker = "snooker"
)

// Phase elimination systems
const (
	PhaseGroupStage  = "group"
	PhaseElimination = "elimination"
)

// Event types recorded during a frame
const (
	EventFrameStart           = "start"
	EventFrameEnd             = "end"
	EventNextPlayer           = "next_player"
	EventScoreUpdate          = "score_update"
	EventBallsPotted          = "balls_potted"
	EventFaul                 = "faul"
	EventFaulAndNextPlayer    = "faul_and_next_player"
	EventCueBallLeftTable     = "cue_ball_left_table"
	EventCueBallGetsPositiond = "cue_ball_gets_positioned"
)

// Ball groups for 8-ball
const (
	BallGroupFull    = "full"
	BallGroupStriped = "striped"
)

var eventTypes = map[string]bool{
	EventFrameStart:           true,
	EventFrameEnd:             true,
	EventNextPlayer:           true,
	EventScoreUpdate:          true,
	EventBallsPotted:          true,
	EventFaul:                 true,
	EventFaulAndNextPlayer:    true,
	EventCueBallLeftTable:     true,
	EventCueBallGetsPositiond: true,
}

// ValidEventType reports whether s is one of the closed set of event types.
func ValidEventType(s string) bool { return eventTypes[s] }

// ValidBallGroup reports whether s is an assignable ball group.
func ValidBallGroup(s string) bool { return s == BallGroupFull || s == BallGroupStriped }

// User is the account half of a profile. Players without accounts have none.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// Profile is a player or referee identity.
type Profile struct {
	ID          int64   `json:"id"`
	User        *User   `json:"user"`
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	PfpURL      *string `json:"pfpURL"`
	IsBiro      bool    `json:"is_biro"`
	FullName    string  `json:"full_name"`
	DisplayName string  `json:"display_name"`
}

// ComputeNames fills the derived full_name and display_name fields.
func (p *Profile) ComputeNames() {
	if p.User != nil {
		full := strings.TrimSpace(p.User.LastName + " " + p.User.FirstName)
		if full == "" {
			full = p.User.Username
		}
		p.FullName = full
		p.DisplayName = p.User.Username
		return
	}
	var last, first string
	if p.LastName != nil {
		last = *p.LastName
	}
	if p.FirstName != nil {
		first = *p.FirstName
	}
	full := strings.TrimSpace(last + " " + first)
	if full == "" {
		full = "Névtelen játékos"
	}
	p.FullName = full
	p.DisplayName = full
}

// MatchEvent is a single timestamped occurrence within a frame.
type MatchEvent struct {
	ID         int64     `json:"id"`
	EventType  string    `json:"eventType"`
	Timestamp  Timestamp `json:"timestamp"`
	Details    *string   `json:"details"`
	TurnNumber *int      `json:"turn_number"`
	Player     *Profile  `json:"player"`
	BallIDs    []string  `json:"ball_ids"`
}

// Frame is one discrete round of a match with its own event log.
type Frame struct {
	ID               int64        `json:"id"`
	FrameNumber      int          `json:"frame_number"`
	Events           []MatchEvent `json:"events"`
	Winner           *Profile     `json:"winner"`
	Player1BallGroup *string      `json:"player1_ball_group"`
	Player2BallGroup *string      `json:"player2_ball_group"`
}

// Match is one contested game between two players, composed of frames.
// BroadcastURL lives on the row but is not part of the wire shape.
type Match struct {
	ID          int64      `json:"id"`
	Phase       int64      `json:"phase"`
	Group       *int64     `json:"group"`
	Player1     Profile    `json:"player1"`
	Player2     Profile    `json:"player2"`
	MatchDate   *Timestamp `json:"match_date"`
	FramesToWin int        `json:"frames_to_win"`
	Frames      []Frame    `json:"match_frames"`

	BroadcastURL *string `json:"-"`
}

// MatchSummary is the list form: a match without its frames.
type MatchSummary struct {
	ID          int64      `json:"id"`
	Phase       int64      `json:"phase"`
	Group       *int64     `json:"group"`
	Player1     Profile    `json:"player1"`
	Player2     Profile    `json:"player2"`
	MatchDate   *Timestamp `json:"match_date"`
	FramesToWin int        `json:"frames_to_win"`
}

// Summary strips the frames off a match.
func (m *Match) Summary() MatchSummary {
	return MatchSummary{
		ID:          m.ID,
		Phase:       m.Phase,
		Group:       m.Group,
		Player1:     m.Player1,
		Player2:     m.Player2,
		MatchDate:   m.MatchDate,
		FramesToWin: m.FramesToWin,
	}
}

// Group is a named pool of matches within a phase.
type Group struct {
	ID      int64          `json:"id"`
	Name    string         `json:"name"`
	Matches []MatchSummary `json:"matches"`
}

// Phase is one stage of a tournament.
type Phase struct {
	ID                int64          `json:"id"`
	Order             int            `json:"order"`
	EliminationSystem string         `json:"eliminationSystem"`
	Groups            []Group        `json:"groups"`
	Matches           []MatchSummary `json:"matches"`
}

// Tournament is the top of the competition hierarchy.
type Tournament struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
	Location  string  `json:"location"`
	GameMode  string  `json:"gameMode"`
	Phases    []Phase `json:"phases"`
}

// TournamentSummary is the list form without phases.
type TournamentSummary struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
	Location  string  `json:"location"`
	GameMode  string  `json:"gameMode"`
}

// EventLess is the canonical ordering of events within a frame: timestamp
// ascending, id ascending as the tie-break. "Last event" means the greatest
// event under this ordering.
func EventLess(a, b MatchEvent) bool {
	at, bt := a.Timestamp.Time, b.Timestamp.Time
	if at.Equal(bt) {
		return a.ID < b.ID
	}
	return at.Before(bt)
}

// FrameByID returns the frame with the given id, or nil.
func (m *Match) FrameByID(frameID int64) *Frame {
	for i := range m.Frames {
		if m.Frames[i].ID == frameID {
			return &m.Frames[i]
		}
	}
	return nil
}

// HasEvent reports whether the frame currently holds the event.
func (f *Frame) HasEvent(eventID int64) bool {
	for i := range f.Events {
		if f.Events[i].ID == eventID {
			return true
		}
	}
	return false
}

// LastEvent returns the frame's greatest event under EventLess, or nil when
// the frame is empty.
func (f *Frame) LastEvent() *MatchEvent {
	var last *MatchEvent
	for i := range f.Events {
		if last == nil || EventLess(*last, f.Events[i]) {
			last = &f.Events[i]
		}
	}
	return last
}

// FrameWins counts frames won by the given player.
func (m *Match) FrameWins(playerID int64) int {
	wins := 0
	for i := range m.Frames {
		if w := m.Frames[i].Winner; w != nil && w.ID == playerID {
			wins++
		}
	}
	return wins
}

// Decided reports whether the match can take no further frames: either a
// player reached the best-of-N threshold, or an even-N match is fully played
// out (draw).
func (m *Match) Decided() bool {
	needed := (m.FramesToWin + 1) / 2
	p1 := m.FrameWins(m.Player1.ID)
	p2 := m.FrameWins(m.Player2.ID)
	if p1 >= needed || p2 >= needed {
		return true
	}
	return m.FramesToWin%2 == 0 && p1+p2 >= m.FramesToWin
}

// Clone deep-copies the match so a mutation can be staged without touching
// the committed state.
func (m *Match) Clone() *Match {
	c := *m
	c.Frames = make([]Frame, len(m.Frames))
	for i := range m.Frames {
		c.Frames[i] = m.Frames[i]
		c.Frames[i].Events = append([]MatchEvent(nil), m.Frames[i].Events...)
	}
	return &c
}
