package handlers

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// NotificationsSocket upgrades to a websocket that receives the caller's
// notifications as they are delivered.
func (h *Handlers) NotificationsSocket(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.requirePrincipal(w, r)
	if !ok {
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.websocketOriginAllowed,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.loggerFromContext(r.Context()).Warn("websocket upgrade failed", "error", err)
		return
	}

	h.loggerFromContext(r.Context()).Debug("notification socket connected", "user_id", actor.UserID)
	h.hub.Serve(actor.UserID, conn)
}
