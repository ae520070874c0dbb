package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/PstasDev/biliard-backend/internal/db"
	"github.com/PstasDev/biliard-backend/pkg/models"
)

// The referee administration surface. Every handler here runs behind
// RequireAuth and RequireBiro. Writes that touch a live match are mirrored to
// its session through the registry, so spectators see REST edits too.

type deletedResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ---- Tournaments ----

type tournamentRequest struct {
	Name      *string `json:"name"`
	GameMode  *string `json:"gameMode"`
	Location  *string `json:"location"`
	StartDate *string `json:"startDate"`
	EndDate   *string `json:"endDate"`
}

// BiroListTournaments returns every tournament with its full phase tree.
func (h *Handler) BiroListTournaments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	summaries, err := h.store.ListTournaments(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve tournaments", err)
		return
	}

	tournaments := []models.Tournament{}
	for _, summary := range summaries {
		t, err := h.store.GetTournament(ctx, summary.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to retrieve tournaments", err)
			return
		}
		if t != nil {
			tournaments = append(tournaments, *t)
		}
	}

	respondJSON(w, http.StatusOK, tournaments)
}

// BiroCreateTournament creates a tournament.
// POST: { "name": "...", "gameMode": "8ball", "location": "...", "startDate": "YYYY-MM-DD", "endDate": "YYYY-MM-DD" }
func (h *Handler) BiroCreateTournament(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req tournamentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	fields := db.TournamentFields{
		StartDate: req.StartDate,
		EndDate:   req.EndDate,
	}
	if req.Name != nil {
		fields.Name = *req.Name
	}
	if req.GameMode != nil {
		fields.GameMode = *req.GameMode
	}
	if req.Location != nil {
		fields.Location = *req.Location
	}

	tournament, err := h.store.CreateTournament(ctx, fields)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create tournament", err)
		return
	}

	respondJSON(w, http.StatusCreated, tournament)
}

// BiroGetTournament returns one tournament with its phase tree.
func (h *Handler) BiroGetTournament(w http.ResponseWriter, r *http.Request) {
	h.GetTournament(w, r)
}

// BiroUpdateTournament overwrites the fields present in the request body.
func (h *Handler) BiroUpdateTournament(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tournamentID, err := parseIDParam(r, "tournamentID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid tournament id", err)
		return
	}

	current, err := h.store.GetTournament(ctx, tournamentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve tournament", err)
		return
	}
	if current == nil {
		respondError(w, http.StatusNotFound, "Tournament not found", nil)
		return
	}

	var req tournamentRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	fields := db.TournamentFields{
		Name:      current.Name,
		GameMode:  current.GameMode,
		Location:  current.Location,
		StartDate: current.StartDate,
		EndDate:   current.EndDate,
	}
	if req.Name != nil {
		fields.Name = *req.Name
	}
	if req.GameMode != nil {
		fields.GameMode = *req.GameMode
	}
	if req.Location != nil {
		fields.Location = *req.Location
	}
	if req.StartDate != nil {
		fields.StartDate = req.StartDate
	}
	if req.EndDate != nil {
		fields.EndDate = req.EndDate
	}

	if err := h.store.UpdateTournament(ctx, tournamentID, fields); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update tournament", err)
		return
	}

	updated, err := h.store.GetTournament(ctx, tournamentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve tournament", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// BiroDeleteTournament deletes a tournament and everything under it.
func (h *Handler) BiroDeleteTournament(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tournamentID, err := parseIDParam(r, "tournamentID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid tournament id", err)
		return
	}

	if err := h.store.DeleteTournament(ctx, tournamentID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete tournament", err)
		return
	}

	respondJSON(w, http.StatusOK, deletedResponse{Success: true, Message: "Tournament deleted"})
}

// ---- Phases ----

type phaseRequest struct {
	Order             *int    `json:"order"`
	EliminationSystem *string `json:"eliminationSystem"`
}

// BiroListPhases lists the phases of a tournament in play order.
func (h *Handler) BiroListPhases(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tournamentID, err := parseIDParam(r, "tournamentID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid tournament id", err)
		return
	}

	existing, err := h.store.GetTournament(ctx, tournamentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve phases", err)
		return
	}
	if existing == nil {
		respondError(w, http.StatusNotFound, "Tournament not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, existing.Phases)
}

// BiroCreatePhase creates a phase under a tournament.
// POST: { "order": 1, "eliminationSystem": "group" or "elimination" }
func (h *Handler) BiroCreatePhase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tournamentID, err := parseIDParam(r, "tournamentID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid tournament id", err)
		return
	}

	existing, err := h.store.GetTournament(ctx, tournamentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create phase", err)
		return
	}
	if existing == nil {
		respondError(w, http.StatusNotFound, "Tournament not found", nil)
		return
	}

	var req phaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	order := 1
	if req.Order != nil {
		order = *req.Order
	}
	system := models.PhaseElimination
	if req.EliminationSystem != nil {
		system = *req.EliminationSystem
	}

	phase, err := h.store.CreatePhase(ctx, tournamentID, order, system)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create phase", err)
		return
	}

	respondJSON(w, http.StatusCreated, phase)
}

// BiroGetPhase returns one phase.
func (h *Handler) BiroGetPhase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	phaseID, err := parseIDParam(r, "phaseID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid phase id", err)
		return
	}

	phase, _, err := h.store.GetPhase(ctx, phaseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve phase", err)
		return
	}
	if phase == nil {
		respondError(w, http.StatusNotFound, "Phase not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, phase)
}

// BiroUpdatePhase overwrites the fields present in the request body.
func (h *Handler) BiroUpdatePhase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	phaseID, err := parseIDParam(r, "phaseID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid phase id", err)
		return
	}

	phase, _, err := h.store.GetPhase(ctx, phaseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve phase", err)
		return
	}
	if phase == nil {
		respondError(w, http.StatusNotFound, "Phase not found", nil)
		return
	}

	var req phaseRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	order := phase.Order
	if req.Order != nil {
		order = *req.Order
	}
	system := phase.EliminationSystem
	if req.EliminationSystem != nil {
		system = *req.EliminationSystem
	}

	if err := h.store.UpdatePhase(ctx, phaseID, order, system); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update phase", err)
		return
	}

	updated, _, err := h.store.GetPhase(ctx, phaseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve phase", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// BiroDeletePhase deletes a phase.
func (h *Handler) BiroDeletePhase(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	phaseID, err := parseIDParam(r, "phaseID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid phase id", err)
		return
	}

	if err := h.store.DeletePhase(ctx, phaseID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete phase", err)
		return
	}

	respondJSON(w, http.StatusOK, deletedResponse{Success: true, Message: "Phase deleted"})
}

// ---- Groups ----

type groupRequest struct {
	Name *string `json:"name"`
}

// BiroListGroups lists the groups of a phase.
func (h *Handler) BiroListGroups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	phaseID, err := parseIDParam(r, "phaseID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid phase id", err)
		return
	}

	phase, _, err := h.store.GetPhase(ctx, phaseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve groups", err)
		return
	}
	if phase == nil {
		respondError(w, http.StatusNotFound, "Phase not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, phase.Groups)
}

// BiroCreateGroup creates a group under a phase.
// POST: { "name": "Group A" }
func (h *Handler) BiroCreateGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	phaseID, err := parseIDParam(r, "phaseID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid phase id", err)
		return
	}

	phase, _, err := h.store.GetPhase(ctx, phaseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create group", err)
		return
	}
	if phase == nil {
		respondError(w, http.StatusNotFound, "Phase not found", nil)
		return
	}

	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	name := "Group"
	if req.Name != nil {
		name = *req.Name
	}

	group, err := h.store.CreateGroup(ctx, phaseID, name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create group", err)
		return
	}

	respondJSON(w, http.StatusCreated, group)
}

// BiroGetGroup returns one group.
func (h *Handler) BiroGetGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	groupID, err := parseIDParam(r, "groupID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid group id", err)
		return
	}

	group, _, err := h.store.GetGroup(ctx, groupID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve group", err)
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "Group not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, group)
}

// BiroUpdateGroup overwrites the fields present in the request body.
func (h *Handler) BiroUpdateGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	groupID, err := parseIDParam(r, "groupID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid group id", err)
		return
	}

	group, _, err := h.store.GetGroup(ctx, groupID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve group", err)
		return
	}
	if group == nil {
		respondError(w, http.StatusNotFound, "Group not found", nil)
		return
	}

	var req groupRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	name := group.Name
	if req.Name != nil {
		name = *req.Name
	}

	if err := h.store.UpdateGroup(ctx, groupID, name); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update group", err)
		return
	}

	updated, _, err := h.store.GetGroup(ctx, groupID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve group", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// BiroDeleteGroup deletes a group.
func (h *Handler) BiroDeleteGroup(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	groupID, err := parseIDParam(r, "groupID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid group id", err)
		return
	}

	if err := h.store.DeleteGroup(ctx, groupID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete group", err)
		return
	}

	respondJSON(w, http.StatusOK, deletedResponse{Success: true, Message: "Group deleted"})
}

// ---- Matches ----

type matchRequest struct {
	PhaseID      *int64            `json:"phase_id"`
	GroupID      *int64            `json:"group_id"`
	Player1ID    *int64            `json:"player1_id"`
	Player2ID    *int64            `json:"player2_id"`
	MatchDate    *models.Timestamp `json:"match_date"`
	FramesToWin  *int              `json:"frames_to_win"`
	BroadcastURL *string           `json:"broadcastURL"`
}

// BiroListMatches lists matches in full form.
// Query params: phase_id, group_id
func (h *Handler) BiroListMatches(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	filters := db.MatchFilters{
		PhaseID: parseIntQuery(r, "phase_id"),
		GroupID: parseIntQuery(r, "group_id"),
	}

	matches, err := h.store.ListMatches(ctx, filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve matches", err)
		return
	}

	respondJSON(w, http.StatusOK, matches)
}

// BiroCreateMatch creates a match.
// POST: { "phase_id": 1, "group_id": 1, "player1_id": 1, "player2_id": 2, "match_date": "...", "frames_to_win": 5 }
func (h *Handler) BiroCreateMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.PhaseID == nil || req.Player1ID == nil || req.Player2ID == nil {
		respondError(w, http.StatusBadRequest, "phase_id, player1_id and player2_id required", nil)
		return
	}

	phase, _, err := h.store.GetPhase(ctx, *req.PhaseID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create match", err)
		return
	}
	if phase == nil {
		respondError(w, http.StatusBadRequest, "Phase not found", nil)
		return
	}
	for _, playerID := range []int64{*req.Player1ID, *req.Player2ID} {
		player, err := h.store.ProfileByID(ctx, playerID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create match", err)
			return
		}
		if player == nil {
			respondError(w, http.StatusBadRequest, "Player not found", nil)
			return
		}
	}
	if req.GroupID != nil {
		group, _, err := h.store.GetGroup(ctx, *req.GroupID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create match", err)
			return
		}
		if group == nil {
			respondError(w, http.StatusBadRequest, "Group not found", nil)
			return
		}
	}

	fields := db.MatchFields{
		PhaseID:      *req.PhaseID,
		GroupID:      req.GroupID,
		Player1ID:    *req.Player1ID,
		Player2ID:    *req.Player2ID,
		FramesToWin:  5,
		BroadcastURL: req.BroadcastURL,
	}
	if req.MatchDate != nil {
		fields.MatchDate = &req.MatchDate.Time
	}
	if req.FramesToWin != nil {
		fields.FramesToWin = *req.FramesToWin
	}

	match, err := h.store.CreateMatch(ctx, fields)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create match", err)
		return
	}

	respondJSON(w, http.StatusCreated, match)
}

// BiroGetMatch returns one match with its frames and events.
func (h *Handler) BiroGetMatch(w http.ResponseWriter, r *http.Request) {
	h.GetMatch(w, r)
}

// BiroUpdateMatch overwrites the fields present in the request body and
// mirrors the change to the live session.
func (h *Handler) BiroUpdateMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid match id", err)
		return
	}

	match, err := h.store.LoadMatchState(ctx, matchID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve match", err)
		return
	}
	if match == nil {
		respondError(w, http.StatusNotFound, "Match not found", nil)
		return
	}

	var req matchRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	if req.PhaseID != nil {
		phase, _, err := h.store.GetPhase(ctx, *req.PhaseID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to update match", err)
			return
		}
		if phase == nil {
			respondError(w, http.StatusBadRequest, "Phase not found", nil)
			return
		}
		match.Phase = *req.PhaseID
	}
	if req.Player1ID != nil {
		player, err := h.store.ProfileByID(ctx, *req.Player1ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to update match", err)
			return
		}
		if player == nil {
			respondError(w, http.StatusBadRequest, "Player1 not found", nil)
			return
		}
		match.Player1 = *player
	}
	if req.Player2ID != nil {
		player, err := h.store.ProfileByID(ctx, *req.Player2ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to update match", err)
			return
		}
		if player == nil {
			respondError(w, http.StatusBadRequest, "Player2 not found", nil)
			return
		}
		match.Player2 = *player
	}
	if req.MatchDate != nil {
		match.MatchDate = req.MatchDate
	}
	if req.FramesToWin != nil {
		match.FramesToWin = *req.FramesToWin
	}
	if req.BroadcastURL != nil {
		match.BroadcastURL = req.BroadcastURL
	}

	if err := h.store.UpdateMatch(ctx, match); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update match", err)
		return
	}

	h.publish(matchID, models.TypeMatchUpdate, match)
	respondJSON(w, http.StatusOK, match)
}

// BiroDeleteMatch deletes a match and all dependent rows.
func (h *Handler) BiroDeleteMatch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid match id", err)
		return
	}

	if err := h.store.DeleteMatch(ctx, matchID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete match", err)
		return
	}

	respondJSON(w, http.StatusOK, deletedResponse{Success: true, Message: "Match deleted"})
}

// ---- Frames ----

type frameCreateRequest struct {
	FrameNumber *int   `json:"frame_number"`
	WinnerID    *int64 `json:"winner_id"`
}

type frameUpdateRequest struct {
	FrameNumber *int `json:"frame_number"`
	// winner_id distinguishes absent (unchanged) from null (cleared).
	WinnerID         json.RawMessage `json:"winner_id"`
	Player1BallGroup *string         `json:"player1_ball_group"`
	Player2BallGroup *string         `json:"player2_ball_group"`
}

// BiroListFrames lists the frames of a match in frame order.
func (h *Handler) BiroListFrames(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid match id", err)
		return
	}

	match, err := h.store.LoadMatchState(ctx, matchID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve frames", err)
		return
	}
	if match == nil {
		respondError(w, http.StatusNotFound, "Match not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, match.Frames)
}

// BiroCreateFrame starts a frame via REST. Refused once the match is decided,
// like the live start_frame action.
// POST: { "frame_number": 1, "winner_id": 1 (optional) }
func (h *Handler) BiroCreateFrame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid match id", err)
		return
	}

	match, err := h.store.LoadMatchState(ctx, matchID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve match", err)
		return
	}
	if match == nil {
		respondError(w, http.StatusNotFound, "Match not found", nil)
		return
	}

	var req frameCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	player1Wins := match.FrameWins(match.Player1.ID)
	player2Wins := match.FrameWins(match.Player2.ID)
	framesNeeded := (match.FramesToWin + 1) / 2

	if player1Wins >= framesNeeded || player2Wins >= framesNeeded {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":         "Match is already decided - winner declared",
			"player1_wins":  player1Wins,
			"player2_wins":  player2Wins,
			"frames_to_win": match.FramesToWin,
		})
		return
	}
	if match.FramesToWin%2 == 0 && player1Wins+player2Wins >= match.FramesToWin {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":         "Match ended in draw",
			"player1_wins":  player1Wins,
			"player2_wins":  player2Wins,
			"frames_to_win": match.FramesToWin,
		})
		return
	}

	var winner *models.Profile
	if req.WinnerID != nil {
		winner, err = h.store.ProfileByID(ctx, *req.WinnerID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create frame", err)
			return
		}
		if winner == nil {
			respondError(w, http.StatusBadRequest, "Winner not found", nil)
			return
		}
	}

	frameID, err := h.store.NextFrameID(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create frame", err)
		return
	}
	frameNumber := len(match.Frames) + 1
	if req.FrameNumber != nil {
		frameNumber = *req.FrameNumber
	}

	frame := models.Frame{
		ID:          frameID,
		FrameNumber: frameNumber,
		Events:      []models.MatchEvent{},
		Winner:      winner,
	}
	if err := h.store.CreateFrame(ctx, matchID, &frame); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create frame", err)
		return
	}

	h.publish(matchID, models.TypeFrameUpdate, frame)
	respondJSON(w, http.StatusCreated, frame)
}

// BiroGetFrame returns one frame with its events.
func (h *Handler) BiroGetFrame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	frameID, err := parseIDParam(r, "frameID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid frame id", err)
		return
	}

	frame, _, err := h.store.GetFrame(ctx, frameID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve frame", err)
		return
	}
	if frame == nil {
		respondError(w, http.StatusNotFound, "Frame not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, frame)
}

// BiroUpdateFrame overwrites the fields present in the request body and
// mirrors the change to the live session.
func (h *Handler) BiroUpdateFrame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	frameID, err := parseIDParam(r, "frameID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid frame id", err)
		return
	}

	frame, matchID, err := h.store.GetFrame(ctx, frameID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve frame", err)
		return
	}
	if frame == nil {
		respondError(w, http.StatusNotFound, "Frame not found", nil)
		return
	}

	var req frameUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	if req.FrameNumber != nil {
		frame.FrameNumber = *req.FrameNumber
	}
	if len(req.WinnerID) > 0 {
		if string(req.WinnerID) == "null" {
			frame.Winner = nil
		} else {
			winnerID, err := strconv.ParseInt(string(req.WinnerID), 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "Invalid winner id", err)
				return
			}
			winner, err := h.store.ProfileByID(ctx, winnerID)
			if err != nil {
				respondError(w, http.StatusInternalServerError, "failed to update frame", err)
				return
			}
			if winner == nil {
				respondError(w, http.StatusBadRequest, "Winner not found", nil)
				return
			}
			frame.Winner = winner
		}
	}
	if req.Player1BallGroup != nil {
		frame.Player1BallGroup = req.Player1BallGroup
	}
	if req.Player2BallGroup != nil {
		frame.Player2BallGroup = req.Player2BallGroup
	}

	if err := h.store.UpdateFrame(ctx, frame); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update frame", err)
		return
	}

	h.publish(matchID, models.TypeFrameUpdate, frame)
	respondJSON(w, http.StatusOK, frame)
}

// BiroDeleteFrame deletes a frame and its events.
func (h *Handler) BiroDeleteFrame(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	frameID, err := parseIDParam(r, "frameID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid frame id", err)
		return
	}

	if err := h.store.DeleteFrame(ctx, frameID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete frame", err)
		return
	}

	respondJSON(w, http.StatusOK, deletedResponse{Success: true, Message: "Frame deleted"})
}

// ---- Events ----

type eventRequest struct {
	EventType  string   `json:"eventType"`
	PlayerID   *int64   `json:"player_id"`
	BallIDs    []string `json:"ball_ids"`
	Details    string   `json:"details"`
	TurnNumber *int     `json:"turn_number"`
}

// BiroCreateEvent appends an event to a frame via REST and mirrors it to the
// live session.
// POST: { "eventType": "balls_potted", "player_id": 1, "ball_ids": ["1", "2"], "details": "...", "turn_number": 1 }
func (h *Handler) BiroCreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	frameID, err := parseIDParam(r, "frameID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid frame id", err)
		return
	}

	frame, matchID, err := h.store.GetFrame(ctx, frameID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve frame", err)
		return
	}
	if frame == nil {
		respondError(w, http.StatusNotFound, "Frame not found", nil)
		return
	}

	var req eventRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if !models.ValidEventType(req.EventType) {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid event type: %s", req.EventType), nil)
		return
	}

	var player *models.Profile
	if req.PlayerID != nil {
		player, err = h.store.ProfileByID(ctx, *req.PlayerID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create event", err)
			return
		}
		if player == nil {
			respondError(w, http.StatusBadRequest, "Player not found", nil)
			return
		}
	}

	eventID, err := h.store.NextEventID(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create event", err)
		return
	}

	ballIDs := req.BallIDs
	if ballIDs == nil {
		ballIDs = []string{}
	}
	event := models.MatchEvent{
		ID:         eventID,
		EventType:  req.EventType,
		Timestamp:  models.NewTimestamp(time.Now()),
		Details:    &req.Details,
		TurnNumber: req.TurnNumber,
		Player:     player,
		BallIDs:    ballIDs,
	}
	if err := h.store.InsertEvent(ctx, frameID, &event); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create event", err)
		return
	}

	h.publish(matchID, models.TypeEventCreated, event)
	respondJSON(w, http.StatusCreated, event)
}

// ---- Profiles ----

type profileRequest struct {
	UserID    *int64  `json:"user_id"`
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	PfpURL    *string `json:"pfpURL"`
	IsBiro    *bool   `json:"is_biro"`
}

// BiroListProfiles lists every profile.
func (h *Handler) BiroListProfiles(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	profiles, err := h.store.ListProfiles(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve profiles", err)
		return
	}

	respondJSON(w, http.StatusOK, profiles)
}

// BiroCreateProfile creates a player profile, with or without a login.
func (h *Handler) BiroCreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	isBiro := false
	if req.IsBiro != nil {
		isBiro = *req.IsBiro
	}

	if req.UserID == nil {
		profile, err := h.store.CreateProfile(ctx, db.ProfileFields{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			PfpURL:    req.PfpURL,
			IsBiro:    isBiro,
		})
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create profile", err)
			return
		}
		respondJSON(w, http.StatusCreated, profile)
		return
	}

	user, err := h.store.UserByID(ctx, *req.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create profile", err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found", nil)
		return
	}
	existing, err := h.store.ProfileByUserID(ctx, *req.UserID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create profile", err)
		return
	}
	if existing != nil {
		respondError(w, http.StatusBadRequest, "Profile already exists for this user", nil)
		return
	}

	profile, err := h.store.CreateProfileWithUser(ctx, *req.UserID, req.PfpURL, isBiro)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create profile", err)
		return
	}
	respondJSON(w, http.StatusCreated, profile)
}

// BiroGetProfile returns one profile.
func (h *Handler) BiroGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	profileID, err := parseIDParam(r, "profileID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid profile id", err)
		return
	}

	profile, err := h.store.ProfileByID(ctx, profileID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve profile", err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "Profile not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, profile)
}

// BiroUpdateProfile overwrites the fields present in the request body.
func (h *Handler) BiroUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	profileID, err := parseIDParam(r, "profileID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid profile id", err)
		return
	}

	profile, err := h.store.ProfileByID(ctx, profileID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve profile", err)
		return
	}
	if profile == nil {
		respondError(w, http.StatusNotFound, "Profile not found", nil)
		return
	}

	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}

	fields := db.ProfileFields{
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
		PfpURL:    profile.PfpURL,
		IsBiro:    profile.IsBiro,
	}
	if req.FirstName != nil {
		fields.FirstName = req.FirstName
	}
	if req.LastName != nil {
		fields.LastName = req.LastName
	}
	if req.PfpURL != nil {
		fields.PfpURL = req.PfpURL
	}
	if req.IsBiro != nil {
		fields.IsBiro = *req.IsBiro
	}

	if err := h.store.UpdateProfile(ctx, profileID, fields); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update profile", err)
		return
	}

	updated, err := h.store.ProfileByID(ctx, profileID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve profile", err)
		return
	}
	respondJSON(w, http.StatusOK, updated)
}

// BiroDeleteProfile deletes a profile.
func (h *Handler) BiroDeleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	profileID, err := parseIDParam(r, "profileID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid profile id", err)
		return
	}

	if err := h.store.DeleteProfile(ctx, profileID); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete profile", err)
		return
	}

	respondJSON(w, http.StatusOK, deletedResponse{Success: true, Message: "Profile deleted"})
}

// publish mirrors a REST write into the match's live session, if one exists.
func (h *Handler) publish(matchID int64, kind string, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		fmt.Printf("match %d: failed to marshal %s broadcast: %v\n", matchID, kind, err)
		return
	}
	h.registry.Publish(matchID, kind, raw)
}
