package api

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	gorilla "github.com/gorilla/websocket"

	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/position"
	"github.com/posync/posync/pkg/session"
)

func startStreamServer(t *testing.T, hub *PeerStreamHub) string {
	t.Helper()
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterStreamRoutes(app, hub, customlog.NewNopLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })

	return "ws://" + ln.Addr().String() + "/ws/peers"
}

func readFrame(t *testing.T, conn *gorilla.Conn) StreamFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	var frame StreamFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("Invalid frame %s: %v", data, err)
	}
	return frame
}

func TestPeerStream(t *testing.T) {
	view := &fakeView{
		role:  session.RoleServer,
		peers: []session.PeerView{{ID: "alpha", Position: position.New(1, 2, 3)}},
		stats: session.Stats{Ticks: 3},
	}
	hub := NewPeerStreamHub(0, nil)
	hub.Bind(view)

	url := startStreamServer(t, hub)
	conn, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	initial := readFrame(t, conn)
	if initial.Type != FrameSnapshot || initial.Tick != 3 || len(initial.Peers) != 1 {
		t.Fatalf("Unexpected initial frame %+v", initial)
	}

	// The handler subscribes before writing the initial frame
	view.peers = append(view.peers, session.PeerView{ID: "beta", Position: position.New(4, 5, 6)})
	hub.PeerDiscovered(session.RoleServer, "beta")
	hub.TickCompleted(session.TickReport{Tick: 4})

	discovered := readFrame(t, conn)
	if discovered.Type != FramePeerDiscovered || discovered.PeerID != "beta" {
		t.Errorf("Unexpected discovery frame %+v", discovered)
	}
	snapshot := readFrame(t, conn)
	if snapshot.Type != FrameSnapshot || snapshot.Tick != 4 || len(snapshot.Peers) != 2 {
		t.Errorf("Unexpected snapshot frame %+v", snapshot)
	}
}

func TestPeerStreamRequiresUpgrade(t *testing.T) {
	hub := NewPeerStreamHub(0, nil)
	app := fiber.New()
	RegisterStreamRoutes(app, hub, customlog.NewNopLogger())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/peers", nil))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusUpgradeRequired {
		t.Errorf("Expected 426, got %d", resp.StatusCode)
	}
}

func TestHubThrottlesSnapshots(t *testing.T) {
	hub := NewPeerStreamHub(time.Hour, nil)
	hub.Bind(&fakeView{role: session.RoleServer})

	ch := hub.subscribe()
	defer hub.unsubscribe(ch)

	hub.TickCompleted(session.TickReport{Tick: 1})
	hub.TickCompleted(session.TickReport{Tick: 2})

	if got := len(ch); got != 1 {
		t.Errorf("Expected 1 snapshot within the interval, got %d", got)
	}
}
