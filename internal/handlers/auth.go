package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/PstasDev/biliard-backend/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string      `json:"access"`
	Refresh string      `json:"refresh"`
	User    interface{} `json:"user"`
}

// Login checks credentials and returns a signed token pair together with the
// caller's profile. POST: { "username": "...", "password": "..." }
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON", err)
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password required", nil)
		return
	}

	account, err := h.store.UserByUsername(ctx, req.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "login failed", err)
		return
	}
	if account == nil {
		respondError(w, http.StatusUnauthorized, "Invalid credentials", nil)
		return
	}

	ok, err := auth.ComparePassword(req.Password, account.PasswordHash)
	if err != nil || !ok {
		respondError(w, http.StatusUnauthorized, "Invalid credentials", err)
		return
	}

	access, refresh, err := h.guard.IssueTokens(account.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "login failed", err)
		return
	}

	// A login without a profile row gets one on the fly.
	profile, err := h.store.ProfileByUserID(ctx, account.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "login failed", err)
		return
	}
	if profile == nil {
		profile, err = h.store.CreateProfileForUser(ctx, account.ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "login failed", err)
			return
		}
	}

	respondJSON(w, http.StatusOK, loginResponse{
		Access:  access,
		Refresh: refresh,
		User:    profile,
	})
}
