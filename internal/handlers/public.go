package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/PstasDev/biliard-backend/internal/db"
)

// ListTournaments returns every tournament in list form.
func (h *Handler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tournaments, err := h.store.ListTournaments(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve tournaments", err)
		return
	}

	respondJSON(w, http.StatusOK, tournaments)
}

// GetTournament returns one tournament with its phases, groups and matches.
func (h *Handler) GetTournament(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	tournamentID, err := parseIDParam(r, "tournamentID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid tournament id", err)
		return
	}

	tournament, err := h.store.GetTournament(ctx, tournamentID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve tournament", err)
		return
	}
	if tournament == nil {
		respondError(w, http.StatusNotFound, "Tournament not found", nil)
		return
	}

	respondJSON(w, http.StatusOK, tournament)
}

// ListMatches returns matches in list form.
// Query params: tournament_id
func (h *Handler) ListMatches(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	filters := db.MatchFilters{
		TournamentID: parseIntQuery(r, "tournament_id"),
	}

	matches, err := h.store.ListMatchSummaries(ctx, filters)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve matches", err)
		return
	}

	respondJSON(w, http.StatusOK, matches)
}

// GetMatch returns one match with its frames and events.
func (h *Handler) GetMatch(w http.ResponseWriter, r *http.Request) {
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

	respondJSON(w, http.StatusOK, match)
}

// MyProfile returns the authenticated caller's profile.
func (h *Handler) MyProfile(w http.ResponseWriter, r *http.Request) {
	profile := profileFrom(r)
	if profile == nil {
		respondError(w, http.StatusUnauthorized, "Authentication required", nil)
		return
	}
	respondJSON(w, http.StatusOK, profile)
}

// GetProfileByUser returns the profile bound to a user account.
func (h *Handler) GetProfileByUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, err := parseIDParam(r, "userID")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user id", err)
		return
	}

	user, err := h.store.UserByID(ctx, userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retrieve profile", err)
		return
	}
	if user == nil {
		respondError(w, http.StatusNotFound, "User not found", nil)
		return
	}

	profile, err := h.store.ProfileByUserID(ctx, userID)
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
