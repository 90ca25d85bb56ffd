package transport

import (
	"fmt"
	"net/netip"
	"sync"
)

// Ensure MemoryTransport implements the Transport interface
var _ Transport = (*MemoryTransport)(nil)

// MemoryNetwork connects MemoryTransports inside one process. Delivery is
// immediate and lossless unless a failure is injected.
type MemoryNetwork struct {
	mu       sync.Mutex
	nodes    map[Endpoint]*MemoryTransport
	failures map[Endpoint]error
	nextPort uint16
}

// NewMemoryNetwork creates an empty network.
func NewMemoryNetwork() *MemoryNetwork {
	return &MemoryNetwork{
		nodes:    make(map[Endpoint]*MemoryTransport),
		failures: make(map[Endpoint]error),
		nextPort: 40000,
	}
}

// Listen attaches a transport at ep. An invalid ep picks a free loopback port.
func (n *MemoryNetwork) Listen(ep Endpoint, opts Options) (*MemoryTransport, error) {
	opts = opts.withDefaults()

	n.mu.Lock()
	defer n.mu.Unlock()

	if !ep.IsValid() {
		for {
			n.nextPort++
			candidate := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), n.nextPort)
			if _, used := n.nodes[candidate]; !used {
				ep = candidate
				break
			}
		}
	}
	ep = NormalizeEndpoint(ep)
	if _, used := n.nodes[ep]; used {
		return nil, &TransportError{Op: "listen", Endpoint: ep, Err: fmt.Errorf("address already in use")}
	}

	t := &MemoryTransport{
		network: n,
		local:   ep,
		maxSize: opts.MaxDatagramSize,
	}
	n.nodes[ep] = t
	return t, nil
}

// FailSendsTo makes every send to ep fail with err until cleared.
func (n *MemoryNetwork) FailSendsTo(ep Endpoint, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[NormalizeEndpoint(ep)] = err
}

// ClearFailures removes all injected failures.
func (n *MemoryNetwork) ClearFailures() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = make(map[Endpoint]error)
}

func (n *MemoryNetwork) deliver(from, to Endpoint, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	to = NormalizeEndpoint(to)
	if err, ok := n.failures[to]; ok {
		return err
	}
	node, ok := n.nodes[to]
	if !ok {
		return ErrUnreachable
	}
	node.enqueue(from, payload)
	return nil
}

func (n *MemoryNetwork) detach(ep Endpoint) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.nodes, ep)
}

// SendRecord is one outbound attempt seen by a MemoryTransport.
type SendRecord struct {
	To      Endpoint
	Payload []byte
	Err     error
}

// MemoryTransport is a Transport on a MemoryNetwork. It records every send
// attempt so tests can assert on fan-out.
type MemoryTransport struct {
	network *MemoryNetwork
	local   Endpoint
	maxSize int

	mu     sync.Mutex
	queue  []Datagram
	sent   []SendRecord
	closed bool
}

func (t *MemoryTransport) enqueue(from Endpoint, payload []byte) {
	cp := make([]byte, len(payload))
	copy(cp, payload)

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.queue = append(t.queue, Datagram{From: from, Payload: cp})
}

// Inject queues a datagram as if it had arrived from from. The sender does
// not need to be attached to the network.
func (t *MemoryTransport) Inject(from Endpoint, payload []byte) {
	t.enqueue(NormalizeEndpoint(from), payload)
}

// Send delivers payload to the transport listening at to.
func (t *MemoryTransport) Send(to Endpoint, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()

	var err error
	switch {
	case closed:
		err = ErrClosed
	case len(payload) > t.maxSize:
		err = ErrPayloadTooLarge
	default:
		err = t.network.deliver(t.local, to, payload)
	}

	cp := make([]byte, len(payload))
	copy(cp, payload)

	var sendErr error
	if err != nil {
		sendErr = &TransportError{Op: "send", Endpoint: to, Err: err}
	}

	t.mu.Lock()
	t.sent = append(t.sent, SendRecord{To: to, Payload: cp, Err: sendErr})
	t.mu.Unlock()

	return sendErr
}

// TryReceive returns the queued datagrams and empties the queue.
func (t *MemoryTransport) TryReceive() []Datagram {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.queue) == 0 {
		return nil
	}
	out := t.queue
	t.queue = nil
	return out
}

// LocalEndpoint returns the attached address.
func (t *MemoryTransport) LocalEndpoint() Endpoint {
	return t.local
}

// Sent returns a copy of every send attempt so far.
func (t *MemoryTransport) Sent() []SendRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SendRecord, len(t.sent))
	copy(out, t.sent)
	return out
}

// ResetSent forgets recorded send attempts.
func (t *MemoryTransport) ResetSent() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = nil
}

// Close detaches the transport from its network.
func (t *MemoryTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.queue = nil
	t.mu.Unlock()

	t.network.detach(t.local)
	return nil
}
