package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fii-monitor/internal/errors"
	"fii-monitor/internal/models"
	"fii-monitor/internal/render"
	"fii-monitor/internal/stream"
)

const (
	wsPingInterval = 45 * time.Second
	wsReadTimeout  = 90 * time.Second
	wsWriteTimeout = 10 * time.Second
	wsBuffer       = 16
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// controlMessage is sent by clients; "refresh" forces a monitor tick, at
// most once per RefreshLimit per connection.
type controlMessage struct {
	Action string `json:"action"`
}

// handleWS streams snapshots, monitor status and notifications. Each
// connection subscribes to the monitor for as long as it is open, so the
// monitor polls only while someone is watching.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	id := "ws:" + uuid.NewString()
	log := s.log.With().Str("conn", id).Logger()
	out := make(chan stream.Event, wsBuffer)
	done := make(chan struct{})

	push := func(ev stream.Event) {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = time.Now()
		}
		select {
		case <-done:
		case out <- ev:
		default:
			log.Debug().Str("topic", string(ev.Topic)).Msg("Dropping event for slow connection")
		}
	}

	var events <-chan stream.Event
	if s.cfg.Hub != nil {
		sub := s.cfg.Hub.Subscribe(id, stream.TopicNotifications, stream.TopicStatus)
		defer s.cfg.Hub.Unsubscribe(sub)
		events = sub.C
	}
	if s.cfg.Monitor != nil {
		push(stream.Event{Topic: stream.TopicStatus, Status: s.cfg.Monitor.Status()})
		unsubscribe := s.cfg.Monitor.Subscribe(id, func(funds []*models.FundSnapshot) error {
			push(stream.Event{Topic: stream.TopicFunds, Funds: funds})
			push(stream.Event{Topic: stream.TopicStatus, Status: s.cfg.Monitor.Status()})
			return nil
		})
		defer unsubscribe()
	}
	log.Debug().Msg("WebSocket connected")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ping := time.NewTicker(wsPingInterval)
		defer ping.Stop()
		for {
			var ev stream.Event
			select {
			case <-done:
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
					conn.Close()
					return
				}
				continue
			case ev = <-out:
			case e, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				ev = e
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug().Err(err).Msg("WebSocket write failed")
				conn.Close()
				return
			}
		}
	}()

	refresh := render.Throttle(func() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			err := s.cfg.Monitor.Refresh(ctx)
			switch {
			case errors.Is(err, errors.ErrRefreshInFlight):
				log.Debug().Msg("Refresh requested during a tick")
			case err != nil:
				log.Warn().Err(err).Msg("Requested refresh failed")
			}
		}()
	}, s.cfg.RefreshLimit, s.cfg.Clock)

	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		var ctrl controlMessage
		if err := json.Unmarshal(data, &ctrl); err != nil {
			continue
		}
		if ctrl.Action == "refresh" && s.cfg.Monitor != nil {
			if !refresh.Call() {
				log.Debug().Msg("Refresh request throttled")
			}
		}
	}

	close(done)
	wg.Wait()
	log.Debug().Msg("WebSocket disconnected")
}
