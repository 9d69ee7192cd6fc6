package api

import (
	"net/http"
	"net/url"
	"strings"

	"orgmedia/internal/auth"
	"orgmedia/internal/ws"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: sameOrigin,
}

// sameOrigin accepts non-browser clients and pages served from this host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// wsHandler upgrades an admin connection and subscribes it to every
// ?channel= given.
func (d Dependencies) wsHandler(w http.ResponseWriter, r *http.Request) {
	// Check Hub before upgrading
	if d.Hub == nil {
		d.Log.Error("WebSocket hub not initialized")
		http.Error(w, "WebSocket hub not initialized", http.StatusInternalServerError)
		return
	}

	userID := auth.GetUserID(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		d.Log.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	wsConn := ws.NewConn(conn, d.Hub, userID)
	d.Hub.Register(wsConn)
	for _, channel := range r.URL.Query()["channel"] {
		if !d.Hub.Subscribe(wsConn, channel) {
			d.Log.Warn("Rejected subscription", zap.String("channel", channel), zap.String("user_id", userID))
		}
	}
	d.Log.Info("WebSocket connected", zap.String("user_id", userID), zap.Strings("channels", r.URL.Query()["channel"]))

	go wsConn.WritePump()
	go wsConn.ReadPump()
}
