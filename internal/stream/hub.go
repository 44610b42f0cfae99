package stream

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"wagercourt/internal/service"
)

const subscriberBuffer = 32

// Hub fans dispute and investigation events out to connected websocket
// clients. Publish never blocks: a subscriber that cannot keep up loses
// events rather than stalling the state machine.
type Hub struct {
	logger *zap.Logger

	mu          sync.Mutex
	subscribers map[chan service.Event]struct{}
	closed      bool
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[chan service.Event]struct{}),
	}
}

// Publish implements service.Publisher.
func (h *Hub) Publish(event service.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) subscribe() chan service.Event {
	ch := make(chan service.Event, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan service.Event) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
}

// Close detaches every subscriber; their serve loops exit on the next write
// attempt.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// ServeHTTP upgrades the request and streams events until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain reads so pings are answered and client close is noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case event, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, writeCancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			writeCancel()
			if err != nil {
				return
			}
		}
	}
}
