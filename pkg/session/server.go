package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/posync/posync/pkg/codec"
	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/position"
	"github.com/posync/posync/pkg/registry"
	"github.com/posync/posync/pkg/transport"
)

// HostPeerID identifies the host's own player in relayed messages.
const HostPeerID = "host"

// Server is the authoritative side of a session. Every tick it ingests the
// reports queued since the previous tick and relays each tracked peer's
// latest position to every other tracked peer.
type Server struct {
	transport transport.Transport
	codec     codec.Codec
	peers     *registry.Registry[transport.Endpoint]
	host      position.Source
	logger    customlog.Logger
	observers observers

	phase atomic.Int32
	tick  uint64

	statsMu sync.Mutex
	stats   Stats
}

// NewServer creates a server on an already bound transport. When host is
// non-nil the host's own position is relayed as peer HostPeerID.
func NewServer(t transport.Transport, c codec.Codec, host position.Source, factory PeerFactory, obs []Observer, logger customlog.Logger) *Server {
	if logger == nil {
		logger = customlog.NewNopLogger()
	}
	var regFactory registry.Factory[transport.Endpoint]
	if factory != nil {
		regFactory = func(ep transport.Endpoint) registry.Handle {
			return factory(ep.String())
		}
	}
	return &Server{
		transport: t,
		codec:     c,
		peers:     registry.New(regFactory, logger),
		host:      host,
		logger:    logger,
		observers: obs,
	}
}

// Phase returns the current tick phase.
func (s *Server) Phase() Phase {
	return Phase(s.phase.Load())
}

// Peers exposes the registry for read access.
func (s *Server) Peers() *registry.Registry[transport.Endpoint] {
	return s.peers
}

// Stats returns the cumulative counters.
func (s *Server) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	out := s.stats
	out.Peers = s.peers.Len()
	return out
}

// Tick runs one ingest followed by one broadcast.
func (s *Server) Tick() TickReport {
	start := time.Now()
	s.tick++
	report := TickReport{Role: RoleServer, Tick: s.tick}

	s.ingest(&report)
	s.broadcast(&report)
	s.phase.Store(int32(PhaseIdle))

	report.Duration = time.Since(start)
	s.statsMu.Lock()
	s.stats.add(report)
	s.statsMu.Unlock()

	s.observers.tickCompleted(report)
	return report
}

// Ingest drains the transport and applies every valid report.
func (s *Server) Ingest() TickReport {
	report := TickReport{Role: RoleServer}
	s.ingest(&report)
	s.phase.Store(int32(PhaseIdle))
	return report
}

// Broadcast relays the current registry contents.
func (s *Server) Broadcast() TickReport {
	report := TickReport{Role: RoleServer}
	s.broadcast(&report)
	s.phase.Store(int32(PhaseIdle))
	return report
}

func (s *Server) ingest(report *TickReport) {
	s.phase.Store(int32(PhaseIngesting))

	datagrams := s.transport.TryReceive()
	report.Received += len(datagrams)

	for _, d := range datagrams {
		msg, err := s.codec.Decode(d.Payload)
		if err != nil {
			report.Dropped++
			s.logger.Warnf("Dropping datagram from %s: %v", d.From, err)
			continue
		}
		report.Decoded++

		_, created := s.peers.Ensure(d.From)
		if created {
			report.Discovered++
			s.logger.Infof("Peer joined: %s", d.From)
			s.observers.peerDiscovered(RoleServer, d.From.String())
		}
		if msg.PeerID != "" {
			s.peers.Label(d.From, msg.PeerID)
		}
		s.peers.SetPosition(d.From, msg.Position)
		s.logger.Debugf("Position from %s: %v", d.From, msg.Position)
	}
}

func (s *Server) broadcast(report *TickReport) {
	s.phase.Store(int32(PhaseBroadcasting))

	entries := s.peers.Snapshot().Entries()
	if len(entries) == 0 {
		return
	}

	for _, from := range entries {
		payload, err := s.codec.Encode(codec.Message{PeerID: from.Key.String(), Position: from.Position})
		if err != nil {
			s.logger.Errorf("Failed to encode position of %s: %v", from.Key, err)
			continue
		}
		for _, to := range entries {
			if to.Key == from.Key {
				continue
			}
			s.send(report, to.Key, payload)
		}
	}

	if s.host == nil {
		return
	}
	payload, err := s.codec.Encode(codec.Message{PeerID: HostPeerID, Position: s.host.Position()})
	if err != nil {
		s.logger.Errorf("Failed to encode host position: %v", err)
		return
	}
	for _, to := range entries {
		s.send(report, to.Key, payload)
	}
}

func (s *Server) send(report *TickReport, to transport.Endpoint, payload []byte) {
	report.Sends++
	if err := s.transport.Send(to, payload); err != nil {
		report.SendFailures++
		s.logger.Warnf("Send failed: %v", err)
	}
}
