package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/slog"

	"github.com/nardotini/pump-dump-server/internal/game"
	"github.com/nardotini/pump-dump-server/internal/hub"
	"github.com/nardotini/pump-dump-server/internal/lib/logger/sl"
	"github.com/nardotini/pump-dump-server/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type clientMessage struct {
	Type string `json:"type"`
}

// Server upgrades observers onto the broadcast hub. A new connection gets a
// full game_state snapshot first; stale observers cannot rely on replay, they
// reconnect and snapshot again.
type Server struct {
	hub    *hub.Hub
	engine *game.Engine
	log    *slog.Logger
}

func NewServer(h *hub.Hub, engine *game.Engine, log *slog.Logger) *Server {
	return &Server{
		hub:    h,
		engine: engine,
		log:    log,
	}
}

func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	const op = "ws.handler.HandleConnection"

	log := s.log.With(slog.String("op", op))

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("failed to upgrade connection", sl.Err(err))

		return
	}

	sub := hub.NewWSSubscriber(ws)

	s.hub.Subscribe(sub)

	log.Info("observer connected", slog.Int("observers", s.hub.Count()))

	s.sendSnapshot(sub)

	defer func() {
		s.hub.Unsubscribe(sub)

		if err = sub.Close(); err != nil {
			log.Error("failed to close connection", sl.Err(err))
		}

		log.Info("observer disconnected", slog.Int("observers", s.hub.Count()))
	}()

	for {
		_, p, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var message clientMessage

		if err = json.Unmarshal(p, &message); err != nil {
			log.Warn("failed to unmarshal message", sl.Err(err))

			continue
		}

		switch message.Type {
		case "ping":
			s.send(sub, hub.Event{Type: "pong", Data: map[string]interface{}{}})
		case "get_state":
			s.sendSnapshot(sub)
		}
	}
}

func (s *Server) sendSnapshot(sub *hub.WSSubscriber) {
	const op = "ws.handler.sendSnapshot"

	info, err := s.engine.CurrentRoundInfo()
	if err != nil {
		s.log.Error("failed to read round info", slog.String("op", op), sl.Err(err))

		return
	}

	data := map[string]interface{}{
		"phase": model.StatusWaiting,
	}

	if info != nil {
		data = map[string]interface{}{
			"round_number":       info.RoundNumber,
			"phase":              info.Status,
			"time_remaining":     info.TimeRemaining,
			"total_pot":          info.TotalPot,
			"pump_pot":           info.PumpPot,
			"dump_pot":           info.DumpPot,
			"participants_count": info.Participants,
		}
	}

	s.send(sub, hub.Event{Type: "game_state", Data: data})
}

func (s *Server) send(sub *hub.WSSubscriber, event hub.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error("failed to marshal event", sl.Err(err))

		return
	}

	if err = sub.Send(data); err != nil {
		s.log.Warn("failed to send to observer", sl.Err(err))
	}
}
