package api

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/session"
)

// Ensure PeerStreamHub implements the session.Observer interface
var _ session.Observer = (*PeerStreamHub)(nil)

// PeerStreamHub pushes peer snapshots to WebSocket subscribers. It is
// registered as a session observer and rate limits snapshots to one per
// interval. Slow subscribers miss frames instead of stalling the tick.
type PeerStreamHub struct {
	logger   customlog.Logger
	interval time.Duration
	view     atomic.Pointer[viewHolder]

	mu       sync.Mutex
	subs     map[chan []byte]struct{}
	lastSent time.Time
}

type viewHolder struct {
	view SessionView
}

// NewPeerStreamHub creates a hub that sends at most one snapshot per interval.
func NewPeerStreamHub(interval time.Duration, logger customlog.Logger) *PeerStreamHub {
	if logger == nil {
		logger = customlog.NewNopLogger()
	}
	return &PeerStreamHub{
		logger:   logger,
		interval: interval,
		subs:     make(map[chan []byte]struct{}),
	}
}

// Bind sets the session snapshots are taken from. The hub must be created
// before the session so it can be passed as an observer.
func (h *PeerStreamHub) Bind(view SessionView) {
	h.view.Store(&viewHolder{view: view})
}

// Subscribers returns the number of connected streams.
func (h *PeerStreamHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// PeerDiscovered forwards a discovery event to every subscriber.
func (h *PeerStreamHub) PeerDiscovered(role session.Role, peerID string) {
	if h.Subscribers() == 0 {
		return
	}
	h.broadcast(StreamFrame{Type: FramePeerDiscovered, PeerID: peerID}, false)
}

// TickCompleted sends a snapshot when the interval has elapsed.
func (h *PeerStreamHub) TickCompleted(report session.TickReport) {
	if h.Subscribers() == 0 {
		return
	}
	holder := h.view.Load()
	if holder == nil {
		return
	}
	h.broadcast(StreamFrame{Type: FrameSnapshot, Tick: report.Tick, Peers: holder.view.Peers()}, true)
}

func (h *PeerStreamHub) broadcast(frame StreamFrame, throttled bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	if throttled {
		if now.Sub(h.lastSent) < h.interval {
			return
		}
		h.lastSent = now
	}

	data, err := json.Marshal(frame)
	if err != nil {
		h.logger.Errorf("Failed to marshal stream frame: %v", err)
		return
	}
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
			// Subscriber is behind, drop this frame for it
		}
	}
}

func (h *PeerStreamHub) subscribe() chan []byte {
	ch := make(chan []byte, 8)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *PeerStreamHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

// RegisterStreamRoutes mounts /ws/peers on the Fiber app.
func RegisterStreamRoutes(app *fiber.App, hub *PeerStreamHub, logger customlog.Logger) {
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/peers", websocket.New(func(conn *websocket.Conn) {
		PeerStreamHandler(conn, hub, logger)
	}))
	logger.Infof("Registered peer stream at /ws/peers")
}

// PeerStreamHandler serves one /ws/peers connection: an initial snapshot,
// then whatever the hub pushes until the client goes away.
func PeerStreamHandler(conn *websocket.Conn, hub *PeerStreamHub, logger customlog.Logger) {
	logger.Infof("Peer stream connected: %s", conn.RemoteAddr())

	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	initial := StreamFrame{Type: FrameSnapshot}
	if holder := hub.view.Load(); holder != nil {
		initial.Peers = holder.view.Peers()
		initial.Tick = holder.view.Stats().Ticks
	}
	if err := conn.WriteJSON(initial); err != nil {
		logger.Warnf("Peer stream write error: %v", err)
		return
	}

	// The client never sends anything we use; reading detects the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
					!errors.Is(err, syscall.ECONNRESET) {
					logger.Warnf("Peer stream read error: %v", err)
				}
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			logger.Infof("Peer stream disconnected: %s", conn.RemoteAddr())
			return
		case data := <-ch:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				if !errors.Is(err, syscall.EPIPE) && err != websocket.ErrCloseSent {
					logger.Warnf("Peer stream write error: %v", err)
				}
				return
			}
		}
	}
}
