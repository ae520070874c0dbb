package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Router assembles the full HTTP surface: the REST API, the two websocket
// endpoints and the health check.
func (h *Handler) Router(allowedOrigins []string) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	// Live match channels. No HTTP timeout middleware here; these connections
	// are long lived.
	r.Get("/ws/match/{matchID}", h.HandleMatchSocket)
	r.Get("/ws/biro/match/{matchID}", h.HandleBiroSocket)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimiddleware.Timeout(30 * time.Second))

		r.Post("/login", h.Login)

		// Public endpoints
		r.Get("/tournaments", h.ListTournaments)
		r.Get("/tournaments/{tournamentID}", h.GetTournament)
		r.Get("/matches", h.ListMatches)
		r.Get("/matches/{matchID}", h.GetMatch)

		// Profiles
		r.Group(func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Get("/profile", h.MyProfile)
			r.Get("/profile/{userID}", h.GetProfileByUser)
		})

		// Referee administration
		r.Route("/biro", func(r chi.Router) {
			r.Use(h.RequireAuth)
			r.Use(h.RequireBiro)

			r.Get("/tournaments", h.BiroListTournaments)
			r.Post("/tournaments", h.BiroCreateTournament)
			r.Get("/tournaments/{tournamentID}", h.BiroGetTournament)
			r.Put("/tournaments/{tournamentID}", h.BiroUpdateTournament)
			r.Delete("/tournaments/{tournamentID}", h.BiroDeleteTournament)

			r.Get("/tournaments/{tournamentID}/phases", h.BiroListPhases)
			r.Post("/tournaments/{tournamentID}/phases", h.BiroCreatePhase)
			r.Get("/phases/{phaseID}", h.BiroGetPhase)
			r.Put("/phases/{phaseID}", h.BiroUpdatePhase)
			r.Delete("/phases/{phaseID}", h.BiroDeletePhase)

			r.Get("/phases/{phaseID}/groups", h.BiroListGroups)
			r.Post("/phases/{phaseID}/groups", h.BiroCreateGroup)
			r.Get("/groups/{groupID}", h.BiroGetGroup)
			r.Put("/groups/{groupID}", h.BiroUpdateGroup)
			r.Delete("/groups/{groupID}", h.BiroDeleteGroup)

			r.Get("/matches", h.BiroListMatches)
			r.Post("/matches", h.BiroCreateMatch)
			r.Get("/matches/{matchID}", h.BiroGetMatch)
			r.Put("/matches/{matchID}", h.BiroUpdateMatch)
			r.Delete("/matches/{matchID}", h.BiroDeleteMatch)

			r.Get("/matches/{matchID}/frames", h.BiroListFrames)
			r.Post("/matches/{matchID}/frames", h.BiroCreateFrame)
			r.Get("/frames/{frameID}", h.BiroGetFrame)
			r.Put("/frames/{frameID}", h.BiroUpdateFrame)
			r.Delete("/frames/{frameID}", h.BiroDeleteFrame)

			r.Post("/frames/{frameID}/events", h.BiroCreateEvent)

			r.Get("/profiles", h.BiroListProfiles)
			r.Post("/profiles", h.BiroCreateProfile)
			r.Get("/profiles/{profileID}", h.BiroGetProfile)
			r.Put("/profiles/{profileID}", h.BiroUpdateProfile)
			r.Delete("/profiles/{profileID}", h.BiroDeleteProfile)
		})
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		fmt.Printf("%s %s %d %s\n", r.Method, r.URL.Path, ww.Status(), time.Since(start))
	})
}
