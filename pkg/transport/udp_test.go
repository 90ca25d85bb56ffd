package transport

import (
	"errors"
	"testing"
	"time"
)

func listenLoopback(t *testing.T, opts Options) *UDPTransport {
	t.Helper()
	tr, err := ListenUDP("127.0.0.1:0", opts)
	if err != nil {
		t.Fatalf("ListenUDP failed: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr
}

// waitForDatagrams polls TryReceive until want datagrams arrived or the
// deadline passes.
func waitForDatagrams(t *testing.T, tr Transport, want int) []Datagram {
	t.Helper()
	var got []Datagram
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got = append(got, tr.TryReceive()...)
		if len(got) >= want {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Expected %d datagrams, got %d", want, len(got))
	return nil
}

func TestUDPLoopbackSendAndDrain(t *testing.T) {
	server := listenLoopback(t, Options{})
	client := listenLoopback(t, Options{})

	for _, msg := range []string{"one", "two", "three"} {
		if err := client.Send(server.LocalEndpoint(), []byte(msg)); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	got := waitForDatagrams(t, server, 3)
	for _, d := range got {
		if d.From != client.LocalEndpoint() {
			t.Errorf("Expected source %s, got %s", client.LocalEndpoint(), d.From)
		}
	}
	if string(got[0].Payload) != "one" {
		t.Errorf("Expected first payload 'one', got %q", got[0].Payload)
	}
}

func TestUDPTryReceiveEmptyDoesNotBlock(t *testing.T) {
	tr := listenLoopback(t, Options{})

	start := time.Now()
	if got := tr.TryReceive(); got != nil {
		t.Errorf("Expected nil from empty inbox, got %d datagrams", len(got))
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("TryReceive blocked for %v", elapsed)
	}
}

func TestUDPSendOversized(t *testing.T) {
	tr := listenLoopback(t, Options{MaxDatagramSize: 16})

	err := tr.Send(tr.LocalEndpoint(), make([]byte, 17))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "send" {
		t.Errorf("Expected *TransportError with op send, got %#v", err)
	}
}

func TestUDPInboxOverflowDrops(t *testing.T) {
	server := listenLoopback(t, Options{InboxSize: 2})
	client := listenLoopback(t, Options{})

	for i := 0; i < 10; i++ {
		if err := client.Send(server.LocalEndpoint(), []byte{byte(i)}); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for server.Dropped() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if server.Dropped() == 0 {
		t.Fatalf("Expected some datagrams to be dropped with a full inbox")
	}
	if got := server.TryReceive(); len(got) > 2 {
		t.Errorf("Expected at most 2 queued datagrams, got %d", len(got))
	}
}

func TestUDPSendAfterClose(t *testing.T) {
	tr, err := ListenUDP("127.0.0.1:0", Options{})
	if err != nil {
		t.Fatalf("ListenUDP failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
	if err := tr.Send(MustParseEndpoint("127.0.0.1:9"), []byte("x")); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestUDPBindConflict(t *testing.T) {
	tr := listenLoopback(t, Options{})

	_, err := ListenUDP(tr.LocalEndpoint().String(), Options{})
	if err == nil {
		t.Fatalf("Expected bind failure on a port already in use")
	}
	var terr *TransportError
	if !errors.As(err, &terr) || terr.Op != "listen" {
		t.Errorf("Expected listen *TransportError, got %v", err)
	}
}
