package transport

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

func TestMemoryNetworkDelivery(t *testing.T) {
	network := NewMemoryNetwork()
	a, err := network.Listen(MustParseEndpoint("10.0.0.1:44445"), Options{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	b, err := network.Listen(Endpoint{}, Options{})
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	if err := b.Send(a.LocalEndpoint(), []byte("hello")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	got := a.TryReceive()
	if len(got) != 1 {
		t.Fatalf("Expected 1 datagram, got %d", len(got))
	}
	if got[0].From != b.LocalEndpoint() || string(got[0].Payload) != "hello" {
		t.Errorf("Unexpected datagram %+v", got[0])
	}
	if again := a.TryReceive(); again != nil {
		t.Errorf("Expected queue to be drained, got %d", len(again))
	}
}

func TestMemorySendUnreachable(t *testing.T) {
	network := NewMemoryNetwork()
	a, _ := network.Listen(Endpoint{}, Options{})

	err := a.Send(MustParseEndpoint("10.9.9.9:1"), []byte("x"))
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Expected ErrUnreachable, got %v", err)
	}
	sent := a.Sent()
	if len(sent) != 1 || sent[0].Err == nil {
		t.Errorf("Expected failed attempt to be recorded, got %+v", sent)
	}
}

func TestMemoryInjectedFailure(t *testing.T) {
	network := NewMemoryNetwork()
	a, _ := network.Listen(Endpoint{}, Options{})
	b, _ := network.Listen(Endpoint{}, Options{})

	refused := errors.New("connection refused")
	network.FailSendsTo(b.LocalEndpoint(), refused)
	if err := a.Send(b.LocalEndpoint(), []byte("x")); !errors.Is(err, refused) {
		t.Fatalf("Expected injected error, got %v", err)
	}

	network.ClearFailures()
	if err := a.Send(b.LocalEndpoint(), []byte("x")); err != nil {
		t.Fatalf("Expected send to succeed after clearing failures, got %v", err)
	}
}

func TestMemoryListenConflict(t *testing.T) {
	network := NewMemoryNetwork()
	ep := MustParseEndpoint("127.0.0.1:44445")
	if _, err := network.Listen(ep, Options{}); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if _, err := network.Listen(ep, Options{}); err == nil {
		t.Fatalf("Expected address-in-use error")
	}
}

func TestMemoryCloseDetaches(t *testing.T) {
	network := NewMemoryNetwork()
	a, _ := network.Listen(Endpoint{}, Options{})
	b, _ := network.Listen(Endpoint{}, Options{})

	b.Close()
	if err := a.Send(b.LocalEndpoint(), []byte("x")); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable after close, got %v", err)
	}
	if err := b.Send(a.LocalEndpoint(), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed from closed transport, got %v", err)
	}
}

func TestEndpointNormalization(t *testing.T) {
	mapped := MustParseEndpoint("[::ffff:192.168.1.72]:44445")
	plain := MustParseEndpoint("192.168.1.72:44445")
	if mapped != plain {
		t.Errorf("Expected mapped and plain endpoints to be equal: %s vs %s", mapped, plain)
	}
}

func TestResolveEndpointLiteral(t *testing.T) {
	ep, err := ResolveEndpoint(context.Background(), "127.0.0.1", 44445)
	if err != nil {
		t.Fatalf("ResolveEndpoint failed: %v", err)
	}
	if ep.String() != "127.0.0.1:44445" {
		t.Errorf("Expected 127.0.0.1:44445, got %s", ep)
	}

	ep, err = ResolveEndpoint(context.Background(), "127.0.0.1:5000", 44445)
	if err != nil {
		t.Fatalf("ResolveEndpoint failed: %v", err)
	}
	if ep.Port() != 5000 {
		t.Errorf("Expected explicit port to win, got %d", ep.Port())
	}

	if _, err := ResolveEndpoint(context.Background(), "", 44445); err == nil {
		t.Errorf("Expected error for empty host")
	}

	for _, addr := range []string{"10.0.0.1:0", "10.0.0.1:99999", "10.0.0.1:-1"} {
		if ep, err := ResolveEndpoint(context.Background(), addr, 44445); err == nil {
			t.Errorf("Expected error for %q, got %s", addr, ep)
		}
	}
}

func TestMemoryMappedDestination(t *testing.T) {
	network := NewMemoryNetwork()
	a, _ := network.Listen(Endpoint{}, Options{})
	b, _ := network.Listen(MustParseEndpoint("127.0.0.1:44445"), Options{})

	mapped := netip.AddrPortFrom(netip.MustParseAddr("::ffff:127.0.0.1"), 44445)
	if err := a.Send(mapped, []byte("x")); err != nil {
		t.Fatalf("Expected mapped destination to reach listener, got %v", err)
	}
	if got := b.TryReceive(); len(got) != 1 {
		t.Fatalf("Expected 1 datagram, got %d", len(got))
	}

	refused := errors.New("connection refused")
	network.FailSendsTo(mapped, refused)
	if err := a.Send(b.LocalEndpoint(), []byte("x")); !errors.Is(err, refused) {
		t.Errorf("Expected failure registered on mapped address to apply, got %v", err)
	}
}
