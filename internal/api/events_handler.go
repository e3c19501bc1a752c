package api

import (
	"net/http"
	"time"

	"vigil/internal/event"
	"vigil/internal/logging"

	"github.com/gorilla/websocket"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
)

// EventsHandler streams root lifecycle events over a websocket. Clients
// may narrow the stream at any point with a subscribe message naming
// event types; until one arrives the stream carries everything. A
// client that never sends anything keeps receiving the full stream.
type EventsHandler struct {
	Bus            *event.Bus[event.RootEvent]
	Logger         *logging.Logger
	AuthToken      string
	AllowedOrigins []string
}

type eventSubscribeMessage struct {
	Subscribe []string `json:"subscribe"`
}

func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	if !validateToken(r, h.AuthToken) {
		logRequestWarn(h.Logger, r, "websocket token rejected", http.StatusUnauthorized, nil)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgradeWebSocket(w, r, h.AllowedOrigins)
	if err != nil {
		logRequestWarn(h.Logger, r, "websocket upgrade failed", http.StatusBadRequest, err)
		return
	}
	defer conn.Close()

	// one goroutine owns all reads: it notices the peer going away and
	// hands any subscribe message to the write loop
	filters := make(chan []string, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var message eventSubscribeMessage
			if err := conn.ReadJSON(&message); err != nil {
				return
			}
			if types := validEventTypes(message.Subscribe); len(types) > 0 {
				select {
				case filters <- types:
				default:
				}
			}
		}
	}()

	events, cancel := h.Bus.Subscribe()
	defer cancel()

	var allowed map[string]struct{}
	for {
		// apply a pending filter before delivering the next event
		select {
		case types := <-filters:
			allowed = typeSet(types)
			continue
		default:
		}

		select {
		case types := <-filters:
			allowed = typeSet(types)
		case received, ok := <-events:
			if !ok {
				return
			}
			if allowed != nil {
				if _, matched := allowed[received.EventType]; !matched {
					continue
				}
			}
			if err := conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
			if err := conn.WriteJSON(received); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func validEventTypes(requested []string) []string {
	var valid []string
	for _, eventType := range requested {
		switch eventType {
		case event.TypeRootWatched, event.TypeRootReaped, event.TypeRootRemoved, event.TypeWatchError:
			valid = append(valid, eventType)
		}
	}
	return valid
}

func typeSet(types []string) map[string]struct{} {
	set := make(map[string]struct{}, len(types))
	for _, eventType := range types {
		set[eventType] = struct{}{}
	}
	return set
}

func upgradeWebSocket(w http.ResponseWriter, r *http.Request, allowedOrigins []string) (*websocket.Conn, error) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, allowedOrigins)
		},
	}
	return upgrader.Upgrade(w, r, nil)
}
