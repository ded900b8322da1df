package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/boss-relay/internal/accounts"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

const viewerWriteTimeout = 5 * time.Second

// viewerMessage is one viewer frame in either direction.
type viewerMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// handleViewer serves a viewer socket. A viewer binds to an account with
// "connect", then polls "battlelog" and "log" for the lines buffered since
// its previous poll. Requests before a successful connect are ignored.
func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("viewer upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var account string
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if account != "" {
				s.logger.Debug("viewer disconnected", "account", account)
			}
			return
		}

		var msg viewerMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}

		switch msg.Event {
		case "connect":
			var req credentialsRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil || req.Username == "" {
				continue
			}
			err := s.accounts.CheckPassword(r.Context(), req.Username, req.Password)
			if errors.Is(err, accounts.ErrBadCredentials) {
				s.logger.Info("viewer rejected", "account", req.Username)
				return
			}
			account = req.Username
			s.logger.Debug("viewer connected", "account", account)
			s.reply(conn, "connect", map[string]string{"username": account})

		case "battlelog":
			if account == "" {
				continue
			}
			rows, err := s.accounts.DrainBattleRows(account)
			if err != nil {
				rows = [][]any{}
			}
			s.reply(conn, "battlelog", rows)

		case "log":
			if account == "" {
				continue
			}
			entries, _ := s.accounts.DrainLogs(account)
			lines := make([]string, 0, len(entries))
			for _, e := range entries {
				lines = append(lines, e.String())
			}
			s.reply(conn, "log", lines)
		}
	}
}

func (s *Server) reply(conn *websocket.Conn, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	conn.SetWriteDeadline(time.Now().Add(viewerWriteTimeout))
	if err := conn.WriteJSON(viewerMessage{Event: event, Data: payload}); err != nil {
		s.logger.Debug("viewer write failed", "event", event, "error", err)
	}
}
