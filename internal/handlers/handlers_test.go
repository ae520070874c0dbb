package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/PstasDev/biliard-backend/internal/auth"
	"github.com/PstasDev/biliard-backend/internal/client"
	"github.com/PstasDev/biliard-backend/internal/engine"
	"github.com/PstasDev/biliard-backend/internal/session"
	"github.com/PstasDev/biliard-backend/pkg/models"
)

type fakeProfileLookup struct {
	byUser map[int64]*models.Profile
}

func (f *fakeProfileLookup) ProfileByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	return f.byUser[userID], nil
}

func newTestGuard() *auth.Guard {
	return auth.NewGuard("test-secret", &fakeProfileLookup{byUser: map[int64]*models.Profile{
		1: {ID: 10, IsBiro: true},
		2: {ID: 20, IsBiro: false},
	}})
}

func issueToken(t *testing.T, guard *auth.Guard, userID int64) string {
	t.Helper()
	access, _, err := guard.IssueTokens(userID)
	if err != nil {
		t.Fatalf("IssueTokens failed: %v", err)
	}
	return access
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("bad error body: %v", err)
	}
	return body["error"]
}

func TestRequireAuth(t *testing.T) {
	guard := newTestGuard()
	h := NewHandler(nil, guard, nil)

	var seen *models.Profile
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = profileFrom(r)
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantError  string
	}{
		{"no header", "", http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Missing or invalid Authorization header"},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized, "Invalid or expired token"},
		{"no profile for user", "Bearer " + issueToken(t, guard, 99), http.StatusUnauthorized, "Invalid or expired token"},
		{"valid", "Bearer " + issueToken(t, guard, 1), http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			h.RequireAuth(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				if got := decodeError(t, rec); got != tt.wantError {
					t.Errorf("error = %q, want %q", got, tt.wantError)
				}
				return
			}
			if seen == nil || seen.ID != 10 {
				t.Errorf("profile on context = %+v, want id 10", seen)
			}
		})
	}
}

func TestRequireBiro(t *testing.T) {
	h := NewHandler(nil, newTestGuard(), nil)
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		profile    *models.Profile
		wantStatus int
		wantError  string
	}{
		{"no profile", nil, http.StatusUnauthorized, "Authentication required"},
		{"not a referee", &models.Profile{ID: 20}, http.StatusForbidden, "Biro permission required"},
		{"referee", &models.Profile{ID: 10, IsBiro: true}, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/biro/matches", nil)
			if tt.profile != nil {
				req = req.WithContext(context.WithValue(req.Context(), profileKey, tt.profile))
			}
			rec := httptest.NewRecorder()

			h.RequireBiro(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				if got := decodeError(t, rec); got != tt.wantError {
					t.Errorf("error = %q, want %q", got, tt.wantError)
				}
			}
		})
	}
}

func TestParseIDParam(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    int64
		wantErr bool
	}{
		{"valid", "42", 42, false},
		{"zero", "0", 0, true},
		{"negative", "-3", 0, true},
		{"not a number", "abc", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rctx := chi.NewRouteContext()
			rctx.URLParams.Add("matchID", tt.raw)
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

			got, err := parseIDParam(req, "matchID")
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("id = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestParseIntQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/matches?tournament_id=5&bad=x", nil)

	if got := parseIntQuery(req, "tournament_id"); got == nil || *got != 5 {
		t.Errorf("tournament_id = %v, want 5", got)
	}
	if got := parseIntQuery(req, "bad"); got != nil {
		t.Errorf("bad = %v, want nil", got)
	}
	if got := parseIntQuery(req, "absent"); got != nil {
		t.Errorf("absent = %v, want nil", got)
	}
}

func TestRespondError(t *testing.T) {
	rec := httptest.NewRecorder()
	respondError(rec, http.StatusNotFound, "Match not found", nil)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %q", ct)
	}
	if got := decodeError(t, rec); got != "Match not found" {
		t.Errorf("error = %q", got)
	}
}

// wsStore serves one in-memory match to live sessions.
type wsStore struct {
	match *models.Match
}

func (s *wsStore) LoadMatchState(ctx context.Context, matchID int64) (*models.Match, error) {
	if s.match == nil || s.match.ID != matchID {
		return nil, nil
	}
	return s.match.Clone(), nil
}

func (s *wsStore) InsertEvent(ctx context.Context, frameID int64, event *models.MatchEvent) error {
	return nil
}

func (s *wsStore) DeleteEvents(ctx context.Context, frameID int64, eventIDs []int64) error {
	return nil
}

func (s *wsStore) CreateFrame(ctx context.Context, matchID int64, frame *models.Frame) error {
	return nil
}

func (s *wsStore) UpdateFrame(ctx context.Context, frame *models.Frame) error { return nil }

func (s *wsStore) UpdateMatch(ctx context.Context, match *models.Match) error { return nil }

func (s *wsStore) NextEventID(ctx context.Context) (int64, error) { return 100, nil }

func (s *wsStore) NextFrameID(ctx context.Context) (int64, error) { return 20, nil }

func (s *wsStore) ProfileByID(ctx context.Context, id int64) (*models.Profile, error) {
	return nil, nil
}

func newSocketServer(t *testing.T) (*httptest.Server, *auth.Guard) {
	t.Helper()

	store := &wsStore{match: &models.Match{
		ID:          1,
		Phase:       1,
		FramesToWin: 2,
		Frames:      []models.Frame{{ID: 10, FrameNumber: 1, Events: []models.MatchEvent{}}},
	}}
	guard := newTestGuard()
	eng := engine.New(store, store)
	registry := session.NewRegistry(store, eng, guard, nil, 5*time.Second)

	h := NewHandler(nil, guard, registry)
	r := chi.NewRouter()
	r.Get("/ws/match/{matchID}", h.HandleMatchSocket)
	r.Get("/ws/biro/match/{matchID}", h.HandleBiroSocket)

	server := httptest.NewServer(r)
	t.Cleanup(func() {
		server.Close()
		registry.Shutdown()
	})
	return server, guard
}

func dialSocket(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + path
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s failed: %v", path, err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readSocket(t *testing.T, ws *websocket.Conn) []byte {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return raw
}

func TestMatchSocketSnapshotAndKeepalive(t *testing.T) {
	server, _ := newSocketServer(t)
	ws := dialSocket(t, server, "/ws/match/1")

	var env models.Envelope
	if err := json.Unmarshal(readSocket(t, ws), &env); err != nil {
		t.Fatalf("bad snapshot: %v", err)
	}
	if env.Type != models.TypeMatchState {
		t.Fatalf("type = %q, want %q", env.Type, models.TypeMatchState)
	}

	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong models.PingPong
	if err := json.Unmarshal(readSocket(t, ws), &pong); err != nil {
		t.Fatalf("bad pong: %v", err)
	}
	if pong.Type != models.TypePong {
		t.Errorf("type = %q, want pong", pong.Type)
	}
}

func TestKeepaliveAfterDisconnect(t *testing.T) {
	conn := client.New("c1", client.RoleObserver, nil, nil, nil)
	conn.CloseSend()

	// A ping can arrive on the read pump after the session dropped the
	// connection; it must be swallowed, not crash the process.
	handleKeepalive(conn, []byte(`{"type":"ping"}`))
}

func TestMatchSocketRejectsBadID(t *testing.T) {
	server, _ := newSocketServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/match/abc"
	if _, _, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("expected dial to fail for a non-numeric match id")
	}
}

func expectCloseCode(t *testing.T, ws *websocket.Conn, want int) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := ws.ReadMessage()
	if err == nil {
		t.Fatal("expected the connection to close")
	}
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("err = %v, want a close error", err)
	}
	if closeErr.Code != want {
		t.Errorf("close code = %d, want %d", closeErr.Code, want)
	}
}

func TestBiroSocketCloseCodes(t *testing.T) {
	server, guard := newSocketServer(t)

	t.Run("missing token", func(t *testing.T) {
		ws := dialSocket(t, server, "/ws/biro/match/1")
		expectCloseCode(t, ws, models.CloseMissingToken)
	})

	t.Run("observer token", func(t *testing.T) {
		ws := dialSocket(t, server, "/ws/biro/match/1?token="+issueToken(t, guard, 2))
		expectCloseCode(t, ws, models.CloseUnauthorized)
	})

	t.Run("invalid token", func(t *testing.T) {
		ws := dialSocket(t, server, "/ws/biro/match/1?token=not.a.jwt")
		expectCloseCode(t, ws, models.CloseUnauthorized)
	})
}

func TestBiroSocketAcceptsReferee(t *testing.T) {
	server, guard := newSocketServer(t)
	ws := dialSocket(t, server, "/ws/biro/match/1?token="+issueToken(t, guard, 1))

	var env models.Envelope
	if err := json.Unmarshal(readSocket(t, ws), &env); err != nil {
		t.Fatalf("bad snapshot: %v", err)
	}
	if env.Type != models.TypeMatchState {
		t.Fatalf("type = %q, want %q", env.Type, models.TypeMatchState)
	}
}
