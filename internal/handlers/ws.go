package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/PstasDev/biliard-backend/internal/auth"
	"github.com/PstasDev/biliard-backend/internal/client"
	"github.com/PstasDev/biliard-backend/internal/session"
	"github.com/PstasDev/biliard-backend/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		// TODO: Restrict in production
		return true
	},
}

// HandleMatchSocket upgrades a spectator connection and joins it to the
// match's session. No authentication; spectators only ever receive.
func (h *Handler) HandleMatchSocket(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("websocket upgrade error: %v\n", err)
		return
	}

	var (
		conn *client.Conn
		sess *session.Session
	)
	conn = client.New(uuid.New().String(), client.RoleObserver, ws,
		func(raw []byte) {
			handleKeepalive(conn, raw)
		},
		func(c *client.Conn) {
			sess.Detach(c)
		})

	sess = h.registry.Attach(conn, matchID, "")

	go conn.WritePump()
	go conn.ReadPump()

	fmt.Printf("match %d: observer %s connected\n", matchID, conn.ID)
}

// HandleBiroSocket upgrades a referee connection. The token travels as a
// query parameter. A missing token closes with 4001 and a token without the
// referee capability closes with 4003, both after the upgrade completes so
// the client sees the code.
func (h *Handler) HandleBiroSocket(w http.ResponseWriter, r *http.Request) {
	matchID, err := parseIDParam(r, "matchID")
	if err != nil {
		http.Error(w, "invalid match id", http.StatusBadRequest)
		return
	}
	token := r.URL.Query().Get("token")

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		fmt.Printf("websocket upgrade error: %v\n", err)
		return
	}

	if token == "" {
		closeWithCode(ws, models.CloseMissingToken, "missing token")
		return
	}
	if err := h.guard.AuthorizeWriter(r.Context(), token, matchID); err != nil {
		code := models.CloseUnauthorized
		if errors.Is(err, auth.ErrMissingToken) {
			code = models.CloseMissingToken
		}
		fmt.Printf("match %d: writer rejected: %v\n", matchID, err)
		closeWithCode(ws, code, "unauthorized")
		return
	}

	var (
		conn *client.Conn
		sess *session.Session
	)
	conn = client.New(uuid.New().String(), client.RoleWriter, ws,
		func(raw []byte) {
			sess.SubmitAction(conn, raw)
		},
		func(c *client.Conn) {
			sess.Detach(c)
		})

	sess = h.registry.Attach(conn, matchID, token)

	go conn.WritePump()
	go conn.ReadPump()

	fmt.Printf("match %d: writer %s connected\n", matchID, conn.ID)
}

// handleKeepalive answers a spectator {"type": "ping"} with a pong. Anything
// else inbound on a spectator connection is ignored.
func handleKeepalive(conn *client.Conn, raw []byte) {
	var msg models.PingPong
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type != models.TypePing {
		return
	}
	pong, err := json.Marshal(models.PingPong{Type: models.TypePong})
	if err != nil {
		return
	}
	conn.TrySend(pong)
}

// closeWithCode performs an orderly close handshake with an application
// close code, then drops the socket.
func closeWithCode(ws *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	ws.Close()
}
