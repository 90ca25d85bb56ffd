// Package registry tracks the peers of a session keyed by whatever identifies
// them on the wire: the source endpoint on the host, the relayed peer ID on a
// joining client.
package registry

import (
	"iter"
	"sync"
	"time"

	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/position"
)

// Handle is the caller-side representation of a peer, typically a visual.
type Handle interface {
	SetPosition(p position.Position)
}

// Factory creates the Handle for a newly discovered peer. It runs under the
// registry lock and must not call back into the registry. It may return nil.
type Factory[K comparable] func(key K) Handle

// Peer is one tracked participant. The pointer returned for a key never
// changes for the lifetime of the registry.
type Peer[K comparable] struct {
	Key       K
	Handle    Handle
	FirstSeen time.Time

	position position.Position
	label    string
	lastSeen time.Time
	updates  uint64
}

// PeerInfo is a copy of a peer's state.
type PeerInfo[K comparable] struct {
	Key       K
	Label     string
	Position  position.Position
	FirstSeen time.Time
	LastSeen  time.Time
	Updates   uint64
}

// Registry maps keys to peers. Entries are never removed.
type Registry[K comparable] struct {
	logger  customlog.Logger
	factory Factory[K]
	now     func() time.Time
	peers   map[K]*Peer[K]
	order   []K
	mu      sync.RWMutex
}

// New creates an empty registry. factory may be nil.
func New[K comparable](factory Factory[K], logger customlog.Logger) *Registry[K] {
	if logger == nil {
		logger = customlog.NewNopLogger()
	}
	return &Registry[K]{
		logger:  logger,
		factory: factory,
		now:     time.Now,
		peers:   make(map[K]*Peer[K]),
	}
}

// Ensure returns the peer for key, creating it at the zero position if it
// does not exist yet. created is true only for the call that created it.
func (r *Registry[K]) Ensure(key K) (peer *Peer[K], created bool) {
	r.mu.RLock()
	peer, exists := r.peers[key]
	r.mu.RUnlock()
	if exists {
		return peer, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have created it between the locks
	if peer, exists = r.peers[key]; exists {
		return peer, false
	}

	now := r.now()
	peer = &Peer[K]{
		Key:       key,
		FirstSeen: now,
		lastSeen:  now,
		position:  position.Zero,
	}
	if r.factory != nil {
		peer.Handle = r.factory(key)
	}
	r.peers[key] = peer
	r.order = append(r.order, key)

	r.logger.Debugf("Registered peer %v (%d tracked)", key, len(r.peers))
	return peer, true
}

// SetPosition records p as the latest position of key and forwards it to the
// peer's handle. The peer is created first if needed.
func (r *Registry[K]) SetPosition(key K, p position.Position) *Peer[K] {
	peer, _ := r.Ensure(key)

	r.mu.Lock()
	peer.position = p
	peer.lastSeen = r.now()
	peer.updates++
	handle := peer.Handle
	r.mu.Unlock()

	if handle != nil {
		handle.SetPosition(p)
	}
	return peer
}

// Label attaches a display label to an existing peer. Unknown keys are ignored.
func (r *Registry[K]) Label(key K, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if peer, exists := r.peers[key]; exists {
		peer.label = label
	}
}

// Get returns a copy of the state of key.
func (r *Registry[K]) Get(key K) (PeerInfo[K], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, exists := r.peers[key]
	if !exists {
		return PeerInfo[K]{}, false
	}
	return peer.info(), true
}

// Position returns the latest known position of key.
func (r *Registry[K]) Position(key K) (position.Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	peer, exists := r.peers[key]
	if !exists {
		return position.Position{}, false
	}
	return peer.position, true
}

// Len returns the number of tracked peers.
func (r *Registry[K]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot copies the registry in discovery order.
func (r *Registry[K]) Snapshot() Snapshot[K] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]PeerInfo[K], 0, len(r.order))
	for _, key := range r.order {
		entries = append(entries, r.peers[key].info())
	}
	return Snapshot[K]{entries: entries}
}

func (p *Peer[K]) info() PeerInfo[K] {
	return PeerInfo[K]{
		Key:       p.Key,
		Label:     p.label,
		Position:  p.position,
		FirstSeen: p.FirstSeen,
		LastSeen:  p.lastSeen,
		Updates:   p.updates,
	}
}

// Snapshot is an immutable point-in-time view of a registry.
type Snapshot[K comparable] struct {
	entries []PeerInfo[K]
}

// All yields every key with its position. It can be ranged over any number
// of times.
func (s Snapshot[K]) All() iter.Seq2[K, position.Position] {
	return func(yield func(K, position.Position) bool) {
		for _, e := range s.entries {
			if !yield(e.Key, e.Position) {
				return
			}
		}
	}
}

// Len returns the number of peers in the snapshot.
func (s Snapshot[K]) Len() int {
	return len(s.entries)
}

// Entries returns a copy of the full per-peer state.
func (s Snapshot[K]) Entries() []PeerInfo[K] {
	out := make([]PeerInfo[K], len(s.entries))
	copy(out, s.entries)
	return out
}
