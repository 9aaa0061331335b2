package websocket

import (
	"net/http"
	"slices"

	"github.com/gorilla/websocket"

	"github.com/lehrershow/songsubmit/internal/auth"
	apperrors "github.com/lehrershow/songsubmit/internal/errors"
	"github.com/lehrershow/songsubmit/internal/logger"
)

// Handler upgrades authenticated staff requests to live feed connections.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	log      *logger.Logger
}

// NewHandler creates a new WebSocket handler. With no allowed origins the
// upgrader only accepts same-origin requests.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if len(allowedOrigins) > 0 {
		upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}

	return &Handler{
		hub:      hub,
		upgrader: upgrader,
		log:      hub.log,
	}
}

// ServeWS handles GET /api/v1/ws. The route is wrapped in
// auth.QueryTokenMiddleware because browsers cannot set headers on upgrades.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	id, err := auth.Require(r.Context())
	if err != nil {
		apperrors.WriteError(w, apperrors.GetRequestID(r.Context()), err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Fields{"error": err.Error()})
		return
	}

	client := NewClient(h.hub, conn, id.Subject)
	if !h.hub.Register(client) {
		conn.Close()
		return
	}

	h.log.Info(r.Context(), "live feed connected", logger.Fields{"subject": id.Subject})

	go client.WritePump()
	go client.ReadPump()
}
