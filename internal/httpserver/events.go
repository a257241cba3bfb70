// internal/httpserver/events.go
//
// Live event stream: GET /game/{id}/events upgrades to a WebSocket and
// pushes the session's render events as JSON text frames.
//
// Protocol:
//   - First frame: {"kind":"state","state":{...}} with the full snapshot.
//   - Then one frame per game event (board, card, moves, tick, complete),
//     each decorated with movesLabel and stars.
//   - The server closes the socket when the session is dropped.
//   - Client frames are read and discarded; they only keep the connection
//     alive and surface disconnects.

package httpserver

import (
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/hlog"

	"github.com/robalobadob/concentration/internal/display"
	"github.com/robalobadob/concentration/internal/game"
)

const (
	streamBuffer = 64
	writeWait    = 5 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxClientMsg = 512
)

type stateMsg struct {
	Kind  string   `json:"kind"`
	State stateRes `json:"state"`
}

type eventMsg struct {
	game.Event
	MovesLabel string `json:"movesLabel"`
	Stars      string `json:"stars"`
}

// upgrader accepts same-host requests and the configured client origin.
func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == s.cfg.Server.ClientOrigin {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// handleEvents streams a session's events until either side goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	logger := hlog.FromRequest(r).With().Str("gameId", e.Session.ID()).Logger()

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		logger.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	// Subscribe before the snapshot so nothing falls between the two.
	events, cancel := e.Hub.Subscribe(streamBuffer)
	defer cancel()

	labels := display.For(r.Header.Get("Accept-Language"))
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(stateMsg{Kind: "state", State: render(r, e.Session.Snapshot())}); err != nil {
		logger.Debug().Err(err).Msg("write snapshot")
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn.SetReadLimit(maxClientMsg)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	logger.Debug().Msg("stream open")
	for {
		select {
		case <-done:
			logger.Debug().Msg("stream closed by client")
			return
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			msg := eventMsg{Event: ev, MovesLabel: labels.Moves(ev.Moves), Stars: labels.Stars(ev.Rating)}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Msg("write event")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
