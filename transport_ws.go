package hrpc

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// WebSocket returns an http.Handler that upgrades connections and serves
// each incoming text message as one dispatch cycle. The Host and Origin
// allow-lists of the server apply to the upgrade request.
func (s *Server) WebSocket() http.Handler {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.hostAllowed(r.Host) {
			s.logger.Debug().Str("host", r.Host).Msg("rejected host")
			http.Error(w, "host not allowed", http.StatusForbidden)
			return
		}

		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Debug().Err(err).Msg("websocket upgrade failed")
			return
		}
		ws.SetReadLimit(s.options.MaxBodyBytes)

		conn := newConn(ws, s, r.Context())
		go conn.writePump()
		conn.readPump()
	})
}
