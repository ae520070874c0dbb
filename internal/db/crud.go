package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/PstasDev/biliard-backend/pkg/models"
)

// UserAccount is a login row; the hash never leaves this package's callers.
type UserAccount struct {
	models.User
	PasswordHash string
}

// UserByUsername loads a login row, (nil, nil) when absent.
func (s *Store) UserByUsername(ctx context.Context, username string) (*UserAccount, error) {
	var u UserAccount
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, first_name, last_name, email
		FROM users WHERE username = $1
	`, username).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func scanTournamentSummary(row interface{ Scan(...interface{}) error }) (*models.TournamentSummary, error) {
	var (
		t     models.TournamentSummary
		start sql.NullTime
		end   sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.Name, &start, &end, &t.Location, &t.GameMode); err != nil {
		return nil, err
	}
	if start.Valid {
		d := start.Time.Format("2006-01-02")
		t.StartDate = &d
	}
	if end.Valid {
		d := end.Time.Format("2006-01-02")
		t.EndDate = &d
	}
	return &t, nil
}

// ListTournaments returns every tournament in list form.
func (s *Store) ListTournaments(ctx context.Context) ([]models.TournamentSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, start_date, end_date, location, game_mode FROM tournaments ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("query tournaments: %w", err)
	}
	defer rows.Close()

	out := []models.TournamentSummary{}
	for rows.Next() {
		t, err := scanTournamentSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tournament: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// GetTournament loads one tournament with its full phase/group/match tree.
func (s *Store) GetTournament(ctx context.Context, id int64) (*models.Tournament, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, start_date, end_date, location, game_mode FROM tournaments WHERE id = $1
	`, id)
	summary, err := scanTournamentSummary(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query tournament: %w", err)
	}

	phases, err := s.ListPhases(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.Tournament{
		ID:        summary.ID,
		Name:      summary.Name,
		StartDate: summary.StartDate,
		EndDate:   summary.EndDate,
		Location:  summary.Location,
		GameMode:  summary.GameMode,
		Phases:    phases,
	}, nil
}

// TournamentFields are the writable tournament columns.
type TournamentFields struct {
	Name      string
	StartDate *string
	EndDate   *string
	Location  string
	GameMode  string
}

// CreateTournament inserts a tournament and returns its list form.
func (s *Store) CreateTournament(ctx context.Context, f TournamentFields) (*models.TournamentSummary, error) {
	if f.GameMode == "" {
		f.GameMode = models.GameMode8Ball
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tournaments (name, start_date, end_date, location, game_mode)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, f.Name, f.StartDate, f.EndDate, f.Location, f.GameMode).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert tournament: %w", err)
	}
	return &models.TournamentSummary{
		ID: id, Name: f.Name, StartDate: f.StartDate, EndDate: f.EndDate,
		Location: f.Location, GameMode: f.GameMode,
	}, nil
}

// UpdateTournament overwrites the writable columns.
func (s *Store) UpdateTournament(ctx context.Context, id int64, f TournamentFields) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tournaments SET name = $2, start_date = $3, end_date = $4, location = $5, game_mode = $6
		WHERE id = $1
	`, id, f.Name, f.StartDate, f.EndDate, f.Location, f.GameMode)
	if err != nil {
		return fmt.Errorf("update tournament: %w", err)
	}
	return nil
}

// DeleteTournament removes a tournament and cascades.
func (s *Store) DeleteTournament(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tournaments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete tournament: %w", err)
	}
	return nil
}

// ListPhases loads a tournament's phases, each with groups and matches.
func (s *Store) ListPhases(ctx context.Context, tournamentID int64) ([]models.Phase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ord, elimination_system FROM phases WHERE tournament_id = $1 ORDER BY ord
	`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("query phases: %w", err)
	}
	defer rows.Close()

	phases := []models.Phase{}
	for rows.Next() {
		var p models.Phase
		if err := rows.Scan(&p.ID, &p.Order, &p.EliminationSystem); err != nil {
			return nil, fmt.Errorf("scan phase: %w", err)
		}
		phases = append(phases, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range phases {
		groups, err := s.ListGroups(ctx, phases[i].ID)
		if err != nil {
			return nil, err
		}
		phases[i].Groups = groups

		phaseID := phases[i].ID
		matches, err := s.ListMatchSummaries(ctx, MatchFilters{PhaseID: &phaseID})
		if err != nil {
			return nil, err
		}
		phases[i].Matches = matches
	}
	return phases, nil
}

// GetPhase loads one phase with groups and matches, plus its tournament id.
func (s *Store) GetPhase(ctx context.Context, id int64) (*models.Phase, int64, error) {
	var (
		p            models.Phase
		tournamentID int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tournament_id, ord, elimination_system FROM phases WHERE id = $1
	`, id).Scan(&p.ID, &tournamentID, &p.Order, &p.EliminationSystem)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query phase: %w", err)
	}

	groups, err := s.ListGroups(ctx, id)
	if err != nil {
		return nil, 0, err
	}
	p.Groups = groups
	matches, err := s.ListMatchSummaries(ctx, MatchFilters{PhaseID: &id})
	if err != nil {
		return nil, 0, err
	}
	p.Matches = matches
	return &p, tournamentID, nil
}

// CreatePhase inserts a phase under a tournament.
func (s *Store) CreatePhase(ctx context.Context, tournamentID int64, order int, eliminationSystem string) (*models.Phase, error) {
	if eliminationSystem == "" {
		eliminationSystem = models.PhaseElimination
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO phases (tournament_id, ord, elimination_system) VALUES ($1, $2, $3) RETURNING id
	`, tournamentID, order, eliminationSystem).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert phase: %w", err)
	}
	return &models.Phase{
		ID: id, Order: order, EliminationSystem: eliminationSystem,
		Groups: []models.Group{}, Matches: []models.MatchSummary{},
	}, nil
}

// UpdatePhase overwrites the writable columns.
func (s *Store) UpdatePhase(ctx context.Context, id int64, order int, eliminationSystem string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE phases SET ord = $2, elimination_system = $3 WHERE id = $1
	`, id, order, eliminationSystem)
	if err != nil {
		return fmt.Errorf("update phase: %w", err)
	}
	return nil
}

// DeletePhase removes a phase and cascades.
func (s *Store) DeletePhase(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM phases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete phase: %w", err)
	}
	return nil
}

// ListGroups loads a phase's groups, each with its match summaries.
func (s *Store) ListGroups(ctx context.Context, phaseID int64) ([]models.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM groups WHERE phase_id = $1 ORDER BY id
	`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := []models.Group{}
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		groupID := groups[i].ID
		matches, err := s.ListMatchSummaries(ctx, MatchFilters{GroupID: &groupID})
		if err != nil {
			return nil, err
		}
		groups[i].Matches = matches
	}
	return groups, nil
}

// GetGroup loads one group with matches, plus its phase id.
func (s *Store) GetGroup(ctx context.Context, id int64) (*models.Group, int64, error) {
	var (
		g       models.Group
		phaseID int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, phase_id, name FROM groups WHERE id = $1
	`, id).Scan(&g.ID, &phaseID, &g.Name)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query group: %w", err)
	}
	matches, err := s.ListMatchSummaries(ctx, MatchFilters{GroupID: &id})
	if err != nil {
		return nil, 0, err
	}
	g.Matches = matches
	return &g, phaseID, nil
}

// CreateGroup inserts a group under a phase.
func (s *Store) CreateGroup(ctx context.Context, phaseID int64, name string) (*models.Group, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO groups (phase_id, name) VALUES ($1, $2) RETURNING id
	`, phaseID, name).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	return &models.Group{ID: id, Name: name, Matches: []models.MatchSummary{}}, nil
}

// UpdateGroup renames a group.
func (s *Store) UpdateGroup(ctx context.Context, id int64, name string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE groups SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

// DeleteGroup removes a group and cascades.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete group: %w", err)
	}
	return nil
}

// MatchFilters narrows a match listing. Nil fields are ignored.
type MatchFilters struct {
	TournamentID *int64
	PhaseID      *int64
	GroupID      *int64
}

// ListMatchSummaries returns matches in list form, optionally filtered,
// newest match date first.
func (s *Store) ListMatchSummaries(ctx context.Context, filters MatchFilters) ([]models.MatchSummary, error) {
	query := `
		SELECT m.id, m.phase_id, m.group_id, m.player1_id, m.player2_id, m.match_date, m.frames_to_win
		FROM matches m WHERE 1=1`
	args := []interface{}{}
	if filters.TournamentID != nil {
		args = append(args, *filters.TournamentID)
		query += fmt.Sprintf(" AND m.phase_id IN (SELECT id FROM phases WHERE tournament_id = $%d)", len(args))
	}
	if filters.PhaseID != nil {
		args = append(args, *filters.PhaseID)
		query += fmt.Sprintf(" AND m.phase_id = $%d", len(args))
	}
	if filters.GroupID != nil {
		args = append(args, *filters.GroupID)
		query += fmt.Sprintf(" AND m.group_id = $%d", len(args))
	}
	query += " ORDER BY m.match_date DESC NULLS LAST, m.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query matches: %w", err)
	}
	defer rows.Close()

	type matchRow struct {
		summary models.MatchSummary
		p1ID    int64
		p2ID    int64
	}
	raw := []matchRow{}
	for rows.Next() {
		var (
			r         matchRow
			gID       sql.NullInt64
			matchDate sql.NullTime
		)
		if err := rows.Scan(&r.summary.ID, &r.summary.Phase, &gID, &r.p1ID, &r.p2ID, &matchDate, &r.summary.FramesToWin); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		if gID.Valid {
			r.summary.Group = &gID.Int64
		}
		if matchDate.Valid {
			ts := models.NewTimestamp(matchDate.Time)
			r.summary.MatchDate = &ts
		}
		raw = append(raw, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := []models.MatchSummary{}
	for _, r := range raw {
		p1, err := s.ProfileByID(ctx, r.p1ID)
		if err != nil {
			return nil, err
		}
		p2, err := s.ProfileByID(ctx, r.p2ID)
		if err != nil {
			return nil, err
		}
		if p1 == nil || p2 == nil {
			continue
		}
		r.summary.Player1 = *p1
		r.summary.Player2 = *p2
		out = append(out, r.summary)
	}
	return out, nil
}

// ListMatches returns matches in full form, frames and events included.
func (s *Store) ListMatches(ctx context.Context, filters MatchFilters) ([]models.Match, error) {
	summaries, err := s.ListMatchSummaries(ctx, filters)
	if err != nil {
		return nil, err
	}
	out := []models.Match{}
	for _, summary := range summaries {
		match, err := s.LoadMatchState(ctx, summary.ID)
		if err != nil {
			return nil, err
		}
		if match != nil {
			out = append(out, *match)
		}
	}
	return out, nil
}

// MatchFields are the writable match columns.
type MatchFields struct {
	PhaseID      int64
	GroupID      *int64
	Player1ID    int64
	Player2ID    int64
	MatchDate    *time.Time
	FramesToWin  int
	BroadcastURL *string
}

// CreateMatch inserts a match row and returns the full state.
func (s *Store) CreateMatch(ctx context.Context, f MatchFields) (*models.Match, error) {
	if f.FramesToWin <= 0 {
		f.FramesToWin = 5
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO matches (phase_id, group_id, player1_id, player2_id, match_date, frames_to_win, broadcast_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id
	`, f.PhaseID, f.GroupID, f.Player1ID, f.Player2ID, f.MatchDate, f.FramesToWin, f.BroadcastURL).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert match: %w", err)
	}
	return s.LoadMatchState(ctx, id)
}

// GetFrame loads one frame with its events, plus its match id.
func (s *Store) GetFrame(ctx context.Context, frameID int64) (*models.Frame, int64, error) {
	var (
		f        models.Frame
		matchID  int64
		winnerID sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, match_id, frame_number, winner_id, player1_ball_group, player2_ball_group
		FROM frames WHERE id = $1
	`, frameID).Scan(&f.ID, &matchID, &f.FrameNumber, &winnerID, &f.Player1BallGroup, &f.Player2BallGroup)
	if err == sql.ErrNoRows {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, fmt.Errorf("query frame: %w", err)
	}
	if winnerID.Valid {
		winner, err := s.ProfileByID(ctx, winnerID.Int64)
		if err != nil {
			return nil, 0, err
		}
		f.Winner = winner
	}

	f.Events = []models.MatchEvent{}
	frames := []models.Frame{f}
	if err := s.loadEvents(ctx, matchID, frames, map[int64]int{f.ID: 0}); err != nil {
		return nil, 0, err
	}
	return &frames[0], matchID, nil
}

// ListProfiles returns every profile.
func (s *Store) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` `+profileJoin+` ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	out := []models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// ProfileFields are the writable profile columns.
type ProfileFields struct {
	FirstName *string
	LastName  *string
	PfpURL    *string
	IsBiro    bool
}

// CreateProfile inserts a profile without a user account (a bare player).
func (s *Store) CreateProfile(ctx context.Context, f ProfileFields) (*models.Profile, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (first_name, last_name, pfp_url, is_biro)
		VALUES ($1, $2, $3, $4) RETURNING id
	`, f.FirstName, f.LastName, f.PfpURL, f.IsBiro).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return s.ProfileByID(ctx, id)
}

// UserByID loads a user account row, (nil, nil) when absent.
func (s *Store) UserByID(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, first_name, last_name, email
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &u.Email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// CreateProfileWithUser inserts a profile bound to an existing user account.
func (s *Store) CreateProfileWithUser(ctx context.Context, userID int64, pfpURL *string, isBiro bool) (*models.Profile, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id, pfp_url, is_biro) VALUES ($1, $2, $3) RETURNING id
	`, userID, pfpURL, isBiro).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return s.ProfileByID(ctx, id)
}

// CreateProfileForUser inserts an empty profile bound to a user account.
func (s *Store) CreateProfileForUser(ctx context.Context, userID int64) (*models.Profile, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO profiles (user_id) VALUES ($1) RETURNING id
	`, userID).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return s.ProfileByID(ctx, id)
}

// UpdateProfile overwrites the writable columns.
func (s *Store) UpdateProfile(ctx context.Context, id int64, f ProfileFields) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET first_name = $2, last_name = $3, pfp_url = $4, is_biro = $5 WHERE id = $1
	`, id, f.FirstName, f.LastName, f.PfpURL, f.IsBiro)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// DeleteProfile removes a profile.
func (s *Store) DeleteProfile(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
