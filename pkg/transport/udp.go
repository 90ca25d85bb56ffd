package transport

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	customlog "github.com/posync/posync/pkg/log"
)

// Largest payload a UDP datagram can carry over IPv4.
const maxUDPPayload = 65507

// Ensure UDPTransport implements the Transport interface
var _ Transport = (*UDPTransport)(nil)

// UDPTransport is a UDP socket with a single reader goroutine. The reader
// hands datagrams to the tick through a bounded inbox so the tick itself
// never waits on the network.
type UDPTransport struct {
	conn    *net.UDPConn
	local   Endpoint
	inbox   chan Datagram
	opts    Options
	logger  customlog.Logger
	dropped atomic.Uint64
	closed  atomic.Bool
	wg      sync.WaitGroup
}

// ListenUDP binds addr (e.g. ":44445", "127.0.0.1:0") and starts the reader.
// A bind failure is returned as *TransportError.
func ListenUDP(addr string, opts Options) (*UDPTransport, error) {
	opts = opts.withDefaults()

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &TransportError{Op: "resolve", Err: err}
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Err: err}
	}

	t := &UDPTransport{
		conn:   conn,
		local:  NormalizeEndpoint(conn.LocalAddr().(*net.UDPAddr).AddrPort()),
		inbox:  make(chan Datagram, opts.InboxSize),
		opts:   opts,
		logger: opts.Logger.WithField("local", conn.LocalAddr().String()),
	}

	t.wg.Add(1)
	go t.readLoop()

	t.logger.Infof("UDP transport listening (inbox=%d, max_datagram=%d)", opts.InboxSize, opts.MaxDatagramSize)
	return t, nil
}

func (t *UDPTransport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, maxUDPPayload)
	for {
		n, from, err := t.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			// ICMP errors from earlier sends surface here on some platforms.
			t.logger.Warnf("Error receiving datagram: %v", err)
			continue
		}
		if n > t.opts.MaxDatagramSize {
			t.dropped.Add(1)
			t.logger.Warnf("Dropping oversized datagram from %s (%d bytes)", from, n)
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])

		select {
		case t.inbox <- Datagram{From: NormalizeEndpoint(from), Payload: payload}:
		default:
			t.dropped.Add(1)
			t.logger.Warnf("Inbox full, dropping datagram from %s", from)
		}
	}
}

// Send writes one datagram. It never retries.
func (t *UDPTransport) Send(to Endpoint, payload []byte) error {
	if t.closed.Load() {
		return &TransportError{Op: "send", Endpoint: to, Err: ErrClosed}
	}
	if !to.IsValid() || to.Port() == 0 {
		return &TransportError{Op: "send", Endpoint: to, Err: ErrUnreachable}
	}
	if len(payload) > t.opts.MaxDatagramSize {
		return &TransportError{Op: "send", Endpoint: to, Err: ErrPayloadTooLarge}
	}

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout)); err != nil {
		return &TransportError{Op: "send", Endpoint: to, Err: err}
	}
	if _, err := t.conn.WriteToUDPAddrPort(payload, to); err != nil {
		return &TransportError{Op: "send", Endpoint: to, Err: err}
	}
	return nil
}

// TryReceive drains what is queued right now; datagrams arriving while it
// runs are left for the next call.
func (t *UDPTransport) TryReceive() []Datagram {
	n := len(t.inbox)
	if n == 0 {
		return nil
	}
	out := make([]Datagram, 0, n)
	for i := 0; i < n; i++ {
		select {
		case d := <-t.inbox:
			out = append(out, d)
		default:
			return out
		}
	}
	return out
}

// LocalEndpoint returns the bound address.
func (t *UDPTransport) LocalEndpoint() Endpoint {
	return t.local
}

// Dropped returns how many inbound datagrams were discarded because the
// inbox was full or they were oversized.
func (t *UDPTransport) Dropped() uint64 {
	return t.dropped.Load()
}

// Close stops the reader and closes the socket.
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := t.conn.Close()
	t.wg.Wait()
	t.logger.Infof("UDP transport closed")
	if err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}
