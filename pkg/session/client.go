package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/posync/posync/pkg/codec"
	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/position"
	"github.com/posync/posync/pkg/registry"
	"github.com/posync/posync/pkg/transport"
)

// Client errors
var (
	ErrMissingPeerID     = errors.New("relayed message has no peer id")
	ErrUnknownPeerSource = errors.New("datagram not from session server")
)

// Client is the joining side of a session. Every tick it reports its own
// position to the server and applies whatever the server relayed.
type Client struct {
	transport transport.Transport
	codec     codec.Codec
	server    transport.Endpoint
	peerID    string
	source    position.Source
	peers     *registry.Registry[string]
	logger    customlog.Logger
	observers observers

	phase atomic.Int32
	tick  uint64

	statsMu sync.Mutex
	stats   Stats
}

// NewClient creates a client that reports to server over t.
func NewClient(t transport.Transport, c codec.Codec, server transport.Endpoint, peerID string, source position.Source, factory PeerFactory, obs []Observer, logger customlog.Logger) *Client {
	if logger == nil {
		logger = customlog.NewNopLogger()
	}
	if source == nil {
		source = position.Static(position.Zero)
	}
	var regFactory registry.Factory[string]
	if factory != nil {
		regFactory = registry.Factory[string](factory)
	}
	return &Client{
		transport: t,
		codec:     c,
		server:    transport.NormalizeEndpoint(server),
		peerID:    peerID,
		source:    source,
		peers:     registry.New(regFactory, logger),
		logger:    logger,
		observers: obs,
	}
}

// PeerID returns the identifier this client declares in its reports.
func (c *Client) PeerID() string {
	return c.peerID
}

// ServerEndpoint returns the endpoint reports are sent to.
func (c *Client) ServerEndpoint() transport.Endpoint {
	return c.server
}

// Phase returns the current tick phase.
func (c *Client) Phase() Phase {
	return Phase(c.phase.Load())
}

// Peers exposes the registry of remote peers for read access.
func (c *Client) Peers() *registry.Registry[string] {
	return c.peers
}

// Stats returns the cumulative counters.
func (c *Client) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	out := c.stats
	out.Peers = c.peers.Len()
	return out
}

// Tick reports the local position and then applies relayed positions.
func (c *Client) Tick() TickReport {
	start := time.Now()
	c.tick++
	report := TickReport{Role: RoleClient, Tick: c.tick}

	report.Sends = 1
	if err := c.report(); err != nil {
		report.SendFailures = 1
		c.logger.Warnf("Position report failed: %v", err)
	}
	c.apply(&report)
	c.phase.Store(int32(PhaseIdle))

	report.Duration = time.Since(start)
	c.statsMu.Lock()
	c.stats.add(report)
	c.statsMu.Unlock()

	c.observers.tickCompleted(report)
	return report
}

// Report sends exactly one datagram with the local position to the server.
func (c *Client) Report() error {
	defer c.phase.Store(int32(PhaseIdle))
	return c.report()
}

// Receive drains the transport and applies every relayed position.
func (c *Client) Receive() TickReport {
	report := TickReport{Role: RoleClient}
	c.apply(&report)
	c.phase.Store(int32(PhaseIdle))
	return report
}

func (c *Client) report() error {
	c.phase.Store(int32(PhaseReporting))

	payload, err := c.codec.Encode(codec.Message{PeerID: c.peerID, Position: c.source.Position()})
	if err != nil {
		return fmt.Errorf("encode local position: %w", err)
	}
	return c.transport.Send(c.server, payload)
}

func (c *Client) apply(report *TickReport) {
	c.phase.Store(int32(PhaseApplying))

	datagrams := c.transport.TryReceive()
	report.Received += len(datagrams)

	for _, d := range datagrams {
		msg, err := c.decode(d)
		if err != nil {
			report.Dropped++
			c.logger.Warnf("Dropping datagram from %s: %v", d.From, err)
			continue
		}
		report.Decoded++

		if _, created := c.peers.Ensure(msg.PeerID); created {
			report.Discovered++
			c.logger.Infof("Peer appeared: %s", msg.PeerID)
			c.observers.peerDiscovered(RoleClient, msg.PeerID)
		}
		c.peers.SetPosition(msg.PeerID, msg.Position)
		c.logger.Debugf("Position of %s: %v", msg.PeerID, msg.Position)
	}
}

func (c *Client) decode(d transport.Datagram) (codec.Message, error) {
	if d.From != c.server {
		return codec.Message{}, ErrUnknownPeerSource
	}
	msg, err := c.codec.Decode(d.Payload)
	if err != nil {
		return codec.Message{}, err
	}
	if msg.PeerID == "" {
		return codec.Message{}, ErrMissingPeerID
	}
	return msg, nil
}
