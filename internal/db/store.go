package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/PstasDev/biliard-backend/pkg/models"
)

// Store is the Postgres-backed durable side of the system. Lookups return
// (nil, nil) when the row does not exist.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and configures the pool.
func Open(dsn string) (*Store, error) {
	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(5)
	database.SetConnMaxLifetime(5 * time.Minute)

	return &Store{db: database}, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the raw handle for the CRUD queries in this package's tests.
func (s *Store) DB() *sql.DB { return s.db }

// NextEventID allocates a globally unique event id from the row sequence, so
// an event's identity is fixed before the insert happens.
func (s *Store) NextEventID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT nextval('match_events_id_seq')`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next event id: %w", err)
	}
	return id, nil
}

// NextFrameID allocates a frame id.
func (s *Store) NextFrameID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT nextval('frames_id_seq')`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("next frame id: %w", err)
	}
	return id, nil
}

const profileColumns = `
	p.id, p.user_id, p.first_name, p.last_name, p.pfp_url, p.is_biro,
	u.id, u.username, u.first_name, u.last_name, u.email
`

const profileJoin = `FROM profiles p LEFT JOIN users u ON u.id = p.user_id`

func scanProfile(row interface{ Scan(...interface{}) error }) (*models.Profile, error) {
	var (
		p      models.Profile
		userID sql.NullInt64
		uID    sql.NullInt64
		uName  sql.NullString
		uFirst sql.NullString
		uLast  sql.NullString
		uEmail sql.NullString
	)
	err := row.Scan(&p.ID, &userID, &p.FirstName, &p.LastName, &p.PfpURL, &p.IsBiro,
		&uID, &uName, &uFirst, &uLast, &uEmail)
	if err != nil {
		return nil, err
	}
	if uID.Valid {
		p.User = &models.User{
			ID:        uID.Int64,
			Username:  uName.String,
			FirstName: uFirst.String,
			LastName:  uLast.String,
			Email:     uEmail.String,
		}
	}
	p.ComputeNames()
	return &p, nil
}

// ProfileByID loads one profile.
func (s *Store) ProfileByID(ctx context.Context, id int64) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` `+profileJoin+` WHERE p.id = $1`, id)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return p, nil
}

// ProfileByUserID loads the profile attached to a user account.
func (s *Store) ProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` `+profileJoin+` WHERE p.user_id = $1`, userID)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query profile by user: %w", err)
	}
	return p, nil
}

// LoadMatchState loads the full live projection of a match: the match row,
// its frames ordered by frame number, and every frame's events in canonical
// (timestamp, id) order.
func (s *Store) LoadMatchState(ctx context.Context, matchID int64) (*models.Match, error) {
	match, err := s.loadMatchRow(ctx, matchID)
	if err != nil || match == nil {
		return match, err
	}

	frames, frameIndex, err := s.loadFrames(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if err := s.loadEvents(ctx, matchID, frames, frameIndex); err != nil {
		return nil, err
	}

	match.Frames = frames
	return match, nil
}

func (s *Store) loadMatchRow(ctx context.Context, matchID int64) (*models.Match, error) {
	var (
		m         models.Match
		groupID   sql.NullInt64
		matchDate sql.NullTime
		p1ID      int64
		p2ID      int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phase_id, group_id, player1_id, player2_id, match_date, frames_to_win, broadcast_url
		FROM matches WHERE id = $1
	`, matchID).Scan(&m.ID, &m.Phase, &groupID, &p1ID, &p2ID, &matchDate, &m.FramesToWin, &m.BroadcastURL)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query match: %w", err)
	}
	if groupID.Valid {
		m.Group = &groupID.Int64
	}
	if matchDate.Valid {
		ts := models.NewTimestamp(matchDate.Time)
		m.MatchDate = &ts
	}

	p1, err := s.ProfileByID(ctx, p1ID)
	if err != nil {
		return nil, err
	}
	p2, err := s.ProfileByID(ctx, p2ID)
	if err != nil {
		return nil, err
	}
	if p1 == nil || p2 == nil {
		return nil, fmt.Errorf("match %d references missing player profile", matchID)
	}
	m.Player1 = *p1
	m.Player2 = *p2
	m.Frames = []models.Frame{}
	return &m, nil
}

func (s *Store) loadFrames(ctx context.Context, matchID int64) ([]models.Frame, map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, frame_number, winner_id, player1_ball_group, player2_ball_group
		FROM frames WHERE match_id = $1 ORDER BY frame_number
	`, matchID)
	if err != nil {
		return nil, nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	frames := []models.Frame{}
	index := make(map[int64]int)
	for rows.Next() {
		var (
			f        models.Frame
			winnerID sql.NullInt64
		)
		if err := rows.Scan(&f.ID, &f.FrameNumber, &winnerID, &f.Player1BallGroup, &f.Player2BallGroup); err != nil {
			return nil, nil, fmt.Errorf("scan frame: %w", err)
		}
		f.Events = []models.MatchEvent{}
		if winnerID.Valid {
			winner, err := s.ProfileByID(ctx, winnerID.Int64)
			if err != nil {
				return nil, nil, err
			}
			f.Winner = winner
		}
		index[f.ID] = len(frames)
		frames = append(frames, f)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate frames: %w", err)
	}
	return frames, index, nil
}

func (s *Store) loadEvents(ctx context.Context, matchID int64, frames []models.Frame, frameIndex map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.frame_id, e.event_type, e.ts, e.details, e.turn_number, e.player_id, e.ball_ids
		FROM match_events e
		JOIN frames f ON f.id = e.frame_id
		WHERE f.match_id = $1
		ORDER BY e.ts, e.id
	`, matchID)
	if err != nil {
		return fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			ev       models.MatchEvent
			frameID  int64
			ts       time.Time
			playerID sql.NullInt64
			ballIDs  []byte
		)
		if err := rows.Scan(&ev.ID, &frameID, &ev.EventType, &ts, &ev.Details, &ev.TurnNumber, &playerID, &ballIDs); err != nil {
			return fmt.Errorf("scan event: %w", err)
		}
		ev.Timestamp = models.NewTimestamp(ts)
		ev.BallIDs = []string{}
		if len(ballIDs) > 0 {
			if err := json.Unmarshal(ballIDs, &ev.BallIDs); err != nil {
				return fmt.Errorf("decode ball ids for event %d: %w", ev.ID, err)
			}
		}
		if playerID.Valid {
			player, err := s.ProfileByID(ctx, playerID.Int64)
			if err != nil {
				return err
			}
			ev.Player = player
		}
		if i, ok := frameIndex[frameID]; ok {
			frames[i].Events = append(frames[i].Events, ev)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate events: %w", err)
	}
	return nil
}

// InsertEvent writes a new event row with its pre-allocated id.
func (s *Store) InsertEvent(ctx context.Context, frameID int64, event *models.MatchEvent) error {
	ballIDs, err := json.Marshal(event.BallIDs)
	if err != nil {
		return fmt.Errorf("encode ball ids: %w", err)
	}
	var playerID *int64
	if event.Player != nil {
		playerID = &event.Player.ID
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO match_events (id, frame_id, event_type, ts, details, turn_number, player_id, ball_ids)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, event.ID, frameID, event.EventType, event.Timestamp.Time, event.Details, event.TurnNumber, playerID, ballIDs)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// DeleteEvents removes event rows in one statement. Ids already gone are
// silently skipped, matching the engine's idempotent removal semantics.
func (s *Store) DeleteEvents(ctx context.Context, frameID int64, eventIDs []int64) error {
	if len(eventIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM match_events
		WHERE frame_id = $1 AND id = ANY($2)
	`, frameID, pq.Int64Array(eventIDs))
	if err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

// CreateFrame writes a new frame row with its pre-allocated id.
func (s *Store) CreateFrame(ctx context.Context, matchID int64, frame *models.Frame) error {
	var winnerID *int64
	if frame.Winner != nil {
		winnerID = &frame.Winner.ID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO frames (id, match_id, frame_number, winner_id, player1_ball_group, player2_ball_group)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, frame.ID, matchID, frame.FrameNumber, winnerID, frame.Player1BallGroup, frame.Player2BallGroup)
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

// UpdateFrame persists the frame's mutable columns.
func (s *Store) UpdateFrame(ctx context.Context, frame *models.Frame) error {
	var winnerID *int64
	if frame.Winner != nil {
		winnerID = &frame.Winner.ID
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE frames
		SET frame_number = $2, winner_id = $3, player1_ball_group = $4, player2_ball_group = $5
		WHERE id = $1
	`, frame.ID, frame.FrameNumber, winnerID, frame.Player1BallGroup, frame.Player2BallGroup)
	if err != nil {
		return fmt.Errorf("update frame: %w", err)
	}
	return nil
}

// UpdateMatch persists the match's mutable columns.
func (s *Store) UpdateMatch(ctx context.Context, match *models.Match) error {
	var matchDate *time.Time
	if match.MatchDate != nil {
		matchDate = &match.MatchDate.Time
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE matches
		SET phase_id = $2, group_id = $3, player1_id = $4, player2_id = $5,
		    match_date = $6, frames_to_win = $7, broadcast_url = $8
		WHERE id = $1
	`, match.ID, match.Phase, match.Group, match.Player1.ID, match.Player2.ID,
		matchDate, match.FramesToWin, match.BroadcastURL)
	if err != nil {
		return fmt.Errorf("update match: %w", err)
	}
	return nil
}

// DeleteFrame removes a frame and, via cascade, its events.
func (s *Store) DeleteFrame(ctx context.Context, frameID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM frames WHERE id = $1`, frameID)
	if err != nil {
		return fmt.Errorf("delete frame: %w", err)
	}
	return nil
}

// DeleteMatch removes a match and all dependent rows.
func (s *Store) DeleteMatch(ctx context.Context, matchID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM matches WHERE id = $1`, matchID)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	return nil
}
