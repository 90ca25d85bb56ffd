package session

import (
	"errors"
	"math"
	"testing"

	"github.com/posync/posync/pkg/codec"
	"github.com/posync/posync/pkg/position"
	"github.com/posync/posync/pkg/transport"
)

func newTestClient(t *testing.T, source position.Source) (*Client, *transport.MemoryTransport, *transport.MemoryTransport) {
	t.Helper()
	network := transport.NewMemoryNetwork()
	host, err := network.Listen(hostEndpoint, transport.Options{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	tr, err := network.Listen(transport.MustParseEndpoint("10.0.0.2:5000"), transport.Options{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	return NewClient(tr, codec.NewJSONCodec(), hostEndpoint, "player-a", source, nil, nil, nil), tr, host
}

func TestClientReportsExactlyOneDatagram(t *testing.T) {
	client, tr, host := newTestClient(t, position.Static(position.New(4.5, -1.0, 0.0)))

	report := client.Tick()
	if report.Sends != 1 || report.SendFailures != 0 {
		t.Fatalf("Unexpected report %+v", report)
	}

	sent := tr.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected exactly 1 datagram, got %d", len(sent))
	}
	if sent[0].To != hostEndpoint {
		t.Errorf("Expected datagram to %s, got %s", hostEndpoint, sent[0].To)
	}

	got := host.TryReceive()
	if len(got) != 1 {
		t.Fatalf("Expected server to receive 1 datagram, got %d", len(got))
	}
	msg, err := codec.NewJSONCodec().Decode(got[0].Payload)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if msg.Position != position.New(4.5, -1.0, 0.0) {
		t.Errorf("Expected (4.5, -1, 0), got %v", msg.Position)
	}
	if msg.PeerID != "player-a" {
		t.Errorf("Expected declared peer id player-a, got %q", msg.PeerID)
	}
}

func TestClientAppliesRelayedPositions(t *testing.T) {
	client, tr, host := newTestClient(t, nil)

	relay := encode(t, codec.Message{PeerID: "10.0.0.3:5000", Position: position.New(1, 2, 3)})
	if err := host.Send(tr.LocalEndpoint(), relay); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	report := client.Tick()
	if report.Discovered != 1 || report.Decoded != 1 {
		t.Fatalf("Unexpected report %+v", report)
	}
	pos, ok := client.Peers().Position("10.0.0.3:5000")
	if !ok {
		t.Fatalf("Expected relayed peer to be registered by payload peer id")
	}
	if pos != position.New(1, 2, 3) {
		t.Errorf("Expected (1, 2, 3), got %v", pos)
	}
	if _, ok := client.Peers().Get(hostEndpoint.String()); ok {
		t.Errorf("Server endpoint must not be registered as a peer")
	}
}

func TestClientDropsMessageWithoutPeerID(t *testing.T) {
	client, tr, host := newTestClient(t, nil)

	host.Send(tr.LocalEndpoint(), encode(t, codec.Message{Position: position.New(1, 2, 3)}))
	report := client.Receive()
	if report.Dropped != 1 || client.Peers().Len() != 0 {
		t.Errorf("Expected payload without peer id to be dropped, report %+v", report)
	}

	if _, err := client.decode(transport.Datagram{From: hostEndpoint, Payload: encode(t, codec.Message{})}); !errors.Is(err, ErrMissingPeerID) {
		t.Errorf("Expected ErrMissingPeerID, got %v", err)
	}
}

func TestClientDropsUnknownSource(t *testing.T) {
	client, tr, _ := newTestClient(t, nil)

	stranger := transport.MustParseEndpoint("10.0.0.66:5000")
	payload := encode(t, codec.Message{PeerID: "spoofed", Position: position.New(1, 2, 3)})
	tr.Inject(stranger, payload)

	report := client.Receive()
	if report.Dropped != 1 || client.Peers().Len() != 0 {
		t.Errorf("Expected datagram from %s to be dropped, report %+v", stranger, report)
	}
	if _, err := client.decode(transport.Datagram{From: stranger, Payload: payload}); !errors.Is(err, ErrUnknownPeerSource) {
		t.Errorf("Expected ErrUnknownPeerSource, got %v", err)
	}
}

func TestClientSendFailureDoesNotAbortTick(t *testing.T) {
	network := transport.NewMemoryNetwork()
	tr, _ := network.Listen(transport.Endpoint{}, transport.Options{})
	// No server attached: every report is unreachable
	client := NewClient(tr, codec.NewJSONCodec(), hostEndpoint, "player-a", nil, nil, nil, nil)

	tr.Inject(hostEndpoint, encode(t, codec.Message{PeerID: "10.0.0.3:5000", Position: position.New(1, 1, 1)}))
	report := client.Tick()
	if report.SendFailures != 1 {
		t.Errorf("Expected 1 send failure, got %d", report.SendFailures)
	}
	if report.Decoded != 1 || client.Peers().Len() != 1 {
		t.Errorf("Expected receive to proceed after failed report, report %+v", report)
	}
}

func TestClientReportRejectsNonFinite(t *testing.T) {
	source := position.SourceFunc(func() position.Position {
		return position.New(0, 0, math.NaN())
	})
	client, tr, _ := newTestClient(t, source)

	if err := client.Report(); !errors.Is(err, codec.ErrNonFinitePosition) {
		t.Errorf("Expected ErrNonFinitePosition, got %v", err)
	}
	if len(tr.Sent()) != 0 {
		t.Errorf("Expected nothing to be sent")
	}
}
