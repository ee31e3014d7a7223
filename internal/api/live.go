package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slotrace/rms/internal/monitoring"
	"github.com/slotrace/rms/internal/race"
)

const liveWriteWait = 5 * time.Second

// LiveMessage is one frame on the /api/live websocket. Snapshot frames are
// sent on connect and every live interval while a session is active; event
// frames as the active session produces them.
type LiveMessage struct {
	Type     string         `json:"type"`
	Snapshot *race.Snapshot `json:"snapshot,omitempty"`
	Event    *race.Event    `json:"event,omitempty"`
}

const (
	liveSnapshot = "snapshot"
	liveEvent    = "event"
)

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		monitoring.Logf("api: websocket upgrade: %v", err)
		return
	}
	defer c.Close()
	defer func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(liveWriteWait))
	}()

	id, events := s.manager.Subscribe()
	defer s.manager.Unsubscribe(id)

	// the client never sends anything meaningful; reading surfaces a close
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(m LiveMessage) bool {
		c.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := c.WriteJSON(m); err != nil {
			monitoring.Debugf("api: websocket write: %v", err)
			return false
		}
		return true
	}
	sendSnapshot := func() bool {
		sess := s.manager.Current()
		if sess == nil {
			return true
		}
		snap := sess.Snapshot()
		return send(LiveMessage{Type: liveSnapshot, Snapshot: &snap})
	}

	if !sendSnapshot() {
		return
	}

	t := s.clock.NewTicker(s.live)
	defer t.Stop()
	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !send(LiveMessage{Type: liveEvent, Event: &ev}) {
				return
			}
		case <-t.C():
			if !sendSnapshot() {
				return
			}
		}
	}
}
