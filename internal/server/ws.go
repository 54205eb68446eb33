package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"TaskForce/internal/core"
	"TaskForce/internal/game"
	"TaskForce/internal/logging"
	"TaskForce/internal/vars"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// serveWS attaches a replication client to a session.
//
// Query: session, name, faction (ANY observes without a player) and resume
// (last applied seq).
func (a *App) serveWS(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	faction, err := core.ParseFaction(query.Get("faction"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var resume uint64
	if raw := query.Get("resume"); raw != "" {
		if resume, err = strconv.ParseUint(raw, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	name := query.Get("name")
	if name == "" {
		name = "Anon"
	}

	s, err := a.hub.GetSession(a.sessionID(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	client := game.NewClient(name, faction, a.cfg.ClientBuffer)
	ctx, cancel := context.WithTimeout(r.Context(), apiTimeout)
	res, err := s.Attach(ctx, client, resume)
	cancel()
	if err != nil {
		_ = conn.WriteJSON(errorMsg{Type: "error", Error: err.Error()})
		return
	}
	log := a.log.With("session", s.ID).With("client", client.ID)
	defer s.Detach(client)

	hello := helloMsg{
		Type:    "hello",
		Session: s.ID,
		Client:  client.ID,
		Faction: string(faction),
		Tick:    res.Tick,
		Seq:     res.Seq,
		Resumed: res.Resumed,
	}
	if res.Player != nil {
		hello.Player = res.Player.ID
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		return
	}
	if len(res.Updates) > 0 {
		data, err := vars.EncodeBatch(res.Updates)
		if err != nil {
			log.Error("encode snapshot failed", "err", err)
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}

	go writePump(conn, client, log)
	readPump(conn, s, client, log)
}

// writePump is the only writer after the hello. It exits when the client's
// channel is closed by Detach or by the slow-client drop.
func writePump(conn *websocket.Conn, c *game.Client, log *logging.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case out, ok := <-c.Out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "detached"))
				return
			}
			var err error
			switch out.Kind {
			case game.OutBatch:
				err = conn.WriteMessage(websocket.BinaryMessage, out.Data)
			case game.OutChat:
				if out.Chat != nil {
					err = conn.WriteJSON(chatMsg{Type: "chat", ChatMessage: *out.Chat})
				}
			}
			if err != nil {
				log.Debug("write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump turns inbound commands into session mutations until the
// connection fails.
func readPump(conn *websocket.Conn, s *game.Session, c *game.Client, log *logging.Logger) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			log.Debug("unsupported message type", "type", msgType)
			continue
		}
		var in inboundMessage
		if err := json.Unmarshal(data, &in); err != nil {
			log.Debug("invalid JSON message", "err", err)
			continue
		}
		handleInbound(s, c, in, log)
	}
}

func handleInbound(s *game.Session, c *game.Client, in inboundMessage, log *logging.Logger) {
	if c.PlayerID == "" {
		log.Debug("observer command ignored", "type", in.Type)
		return
	}
	playerID := c.PlayerID
	switch in.Type {
	case "move":
		var p movePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			log.Debug("invalid move payload", "err", err)
			return
		}
		s.Submit(func(s *game.Session) {
			if err := s.MovePlayer(playerID, core.Vec2{X: p.X, Y: p.Y}); err != nil {
				log.Debug("move rejected", "err", err)
			}
		})
	case "interact":
		var p interactPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			log.Debug("invalid interact payload", "err", err)
			return
		}
		s.Submit(func(s *game.Session) {
			if err := s.Interact(playerID, p.Hold, p.Held); err != nil {
				log.Info("interact rejected", "hold", p.Hold, "err", err)
			}
		})
	default:
		log.Debug("unknown message type", "type", in.Type)
	}
}
