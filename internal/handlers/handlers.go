package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/PstasDev/biliard-backend/internal/auth"
	"github.com/PstasDev/biliard-backend/internal/db"
	"github.com/PstasDev/biliard-backend/internal/session"
	"github.com/PstasDev/biliard-backend/pkg/models"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	store    *db.Store
	guard    *auth.Guard
	registry *session.Registry
}

// NewHandler creates a new handler with dependencies
func NewHandler(store *db.Store, guard *auth.Guard, registry *session.Registry) *Handler {
	return &Handler{
		store:    store,
		guard:    guard,
		registry: registry,
	}
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "database unhealthy", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"timestamp":     time.Now().UTC(),
		"live_sessions": h.registry.Len(),
	})
}

type contextKey string

const profileKey contextKey = "profile"

// RequireAuth resolves the Bearer token to a profile and stores it on the
// request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "Missing or invalid Authorization header", nil)
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")

		profile, err := h.guard.Authenticate(r.Context(), token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid or expired token", err)
			return
		}

		ctx := context.WithValue(r.Context(), profileKey, profile)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireBiro rejects authenticated users who lack the referee flag. Must run
// after RequireAuth.
func (h *Handler) RequireBiro(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		profile := profileFrom(r)
		if profile == nil {
			respondError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		if !profile.IsBiro {
			respondError(w, http.StatusForbidden, "Biro permission required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func profileFrom(r *http.Request) *models.Profile {
	profile, _ := r.Context().Value(profileKey).(*models.Profile)
	return profile
}

// Helper functions

func parseIDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", name, raw)
	}
	return id, nil
}

func parseIntQuery(r *http.Request, name string) *int64 {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &value
}

func decodeJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		fmt.Printf("error encoding response: %v\n", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	if err != nil {
		fmt.Printf("error: %s - %v\n", message, err)
	}

	respondJSON(w, status, map[string]string{"error": message})
}
