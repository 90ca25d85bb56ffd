// Package session runs the position sync loop. A host starts a Server
// session on the well-known port; players join with a Client session pointed
// at the host. Either way the caller drives it with Tick or Run.
package session

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/posync/posync/pkg/codec"
	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/position"
	"github.com/posync/posync/pkg/transport"
)

// DefaultPort is the well-known port a host listens on.
const DefaultPort = 44445

// Common errors
var (
	ErrSessionClosed  = errors.New("session is closed")
	ErrAlreadyRunning = errors.New("session is already running")
	ErrInvalidTick    = errors.New("tick interval must be positive")
)

// Options configures StartAsServer and StartAsClient. The zero value is usable.
type Options struct {
	Logger customlog.Logger
	// Codec defaults to JSON.
	Codec codec.Codec
	// Source supplies the local player's position.
	Source position.Source
	// PeerFactory is called once for each newly discovered peer.
	PeerFactory PeerFactory
	Observers   []Observer

	// Transport replaces the UDP socket; it is closed with the session.
	Transport transport.Transport
	// BindAddress is the local interface to listen on; empty means all.
	BindAddress string
	// Port is the host's listen port, and for clients the server port used
	// when the server address carries none.
	Port            int
	InboxSize       int
	MaxDatagramSize int

	// PeerID is the identifier a client declares. Generated when empty.
	PeerID string
	// HostPlayer makes the host relay its own Source as peer "host".
	HostPlayer bool
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = customlog.NewNopLogger()
	}
	if o.Codec == nil {
		o.Codec = codec.NewJSONCodec()
	}
	if o.Source == nil {
		o.Source = position.Static(position.Zero)
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	return o
}

func (o Options) transportOptions() transport.Options {
	return transport.Options{
		InboxSize:       o.InboxSize,
		MaxDatagramSize: o.MaxDatagramSize,
		Logger:          o.Logger,
	}
}

// PeerView is a peer as shown to status readers.
type PeerView struct {
	ID        string            `json:"id"`
	Label     string            `json:"label,omitempty"`
	Position  position.Position `json:"position"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
	Updates   uint64            `json:"updates"`
}

// Session is one running participant, either host or player.
type Session struct {
	role      Role
	transport transport.Transport
	server    *Server
	client    *Client
	logger    customlog.Logger

	mu      sync.Mutex
	running bool
	closed  bool
}

// StartAsServer binds the host port and returns a server session.
func StartAsServer(ctx context.Context, opts Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	logger := opts.Logger.WithField("role", RoleServer)

	t := opts.Transport
	if t == nil {
		addr := net.JoinHostPort(opts.BindAddress, strconv.Itoa(opts.Port))
		udp, err := transport.ListenUDP(addr, opts.transportOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to start server session: %w", err)
		}
		t = udp
	}

	var host position.Source
	if opts.HostPlayer {
		host = opts.Source
	}

	s := &Session{
		role:      RoleServer,
		transport: t,
		server:    NewServer(t, opts.Codec, host, opts.PeerFactory, opts.Observers, logger),
		logger:    logger,
	}

	logger.Infof("Hosting on %s (codec=%s, host_player=%t)", t.LocalEndpoint(), opts.Codec.Name(), opts.HostPlayer)
	if ips, err := transport.LocalIPs(); err != nil {
		logger.Warnf("Could not list local addresses: %v", err)
	} else {
		for _, ip := range ips {
			logger.Infof("Players can join at %s", net.JoinHostPort(ip.String(), strconv.Itoa(int(t.LocalEndpoint().Port()))))
		}
	}
	return s, nil
}

// StartAsClient resolves serverAddress ("host" or "host:port"), binds an
// ephemeral port and returns a client session.
func StartAsClient(ctx context.Context, serverAddress string, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	server, err := transport.ResolveEndpoint(ctx, serverAddress, opts.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to start client session: %w", err)
	}

	peerID := opts.PeerID
	if peerID == "" {
		peerID = uuid.NewString()
	}
	logger := opts.Logger.WithField("role", RoleClient).WithField("peer_id", peerID)

	t := opts.Transport
	if t == nil {
		addr := net.JoinHostPort(opts.BindAddress, "0")
		udp, err := transport.ListenUDP(addr, opts.transportOptions())
		if err != nil {
			return nil, fmt.Errorf("failed to start client session: %w", err)
		}
		t = udp
	}

	s := &Session{
		role:      RoleClient,
		transport: t,
		client:    NewClient(t, opts.Codec, server, peerID, opts.Source, opts.PeerFactory, opts.Observers, logger),
		logger:    logger,
	}

	logger.Infof("Joined %s from %s (codec=%s)", server, t.LocalEndpoint(), opts.Codec.Name())
	return s, nil
}

// Role returns whether this session hosts or joins.
func (s *Session) Role() Role {
	return s.role
}

// Server returns the server engine, or nil for a client session.
func (s *Session) Server() *Server {
	return s.server
}

// Client returns the client engine, or nil for a server session.
func (s *Session) Client() *Client {
	return s.client
}

// LocalEndpoint returns the bound address.
func (s *Session) LocalEndpoint() transport.Endpoint {
	return s.transport.LocalEndpoint()
}

// Phase returns the current tick phase.
func (s *Session) Phase() Phase {
	if s.server != nil {
		return s.server.Phase()
	}
	return s.client.Phase()
}

// Tick runs one tick of the session's role.
func (s *Session) Tick() TickReport {
	if s.server != nil {
		return s.server.Tick()
	}
	return s.client.Tick()
}

// Run ticks every interval until ctx is done or the session is closed.
func (s *Session) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidTick
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Infof("Session ticking every %v", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Infof("Session tick loop stopped")
			return nil
		case <-ticker.C:
			if s.isClosed() {
				return ErrSessionClosed
			}
			s.Tick()
		}
	}
}

// Peers returns the tracked peers in discovery order.
func (s *Session) Peers() []PeerView {
	if s.server != nil {
		entries := s.server.Peers().Snapshot().Entries()
		out := make([]PeerView, 0, len(entries))
		for _, e := range entries {
			out = append(out, PeerView{
				ID:        e.Key.String(),
				Label:     e.Label,
				Position:  e.Position,
				FirstSeen: e.FirstSeen,
				LastSeen:  e.LastSeen,
				Updates:   e.Updates,
			})
		}
		return out
	}

	entries := s.client.Peers().Snapshot().Entries()
	out := make([]PeerView, 0, len(entries))
	for _, e := range entries {
		out = append(out, PeerView{
			ID:        e.Key,
			Label:     e.Label,
			Position:  e.Position,
			FirstSeen: e.FirstSeen,
			LastSeen:  e.LastSeen,
			Updates:   e.Updates,
		})
	}
	return out
}

// Stats returns the cumulative counters.
func (s *Session) Stats() Stats {
	if s.server != nil {
		return s.server.Stats()
	}
	return s.client.Stats()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close releases the transport. Run returns on its next tick.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Infof("Closing session")
	return s.transport.Close()
}
