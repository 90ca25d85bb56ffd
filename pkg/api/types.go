package api

import (
	"github.com/posync/posync/pkg/session"
	"github.com/posync/posync/pkg/transport"
)

// SessionView is the read-only part of a session the API exposes.
// *session.Session implements it.
type SessionView interface {
	Role() session.Role
	LocalEndpoint() transport.Endpoint
	Phase() session.Phase
	Peers() []session.PeerView
	Stats() session.Stats
}

// Info carries the static settings reported by /api/v1/session.
type Info struct {
	Codec          string `json:"codec"`
	TickHz         int    `json:"tick_hz"`
	PeerID         string `json:"peer_id,omitempty"`
	ServerEndpoint string `json:"server_endpoint,omitempty"`
	HostPlayer     bool   `json:"host_player"`
}

// SessionResponse is the body of GET /api/v1/session.
type SessionResponse struct {
	Info
	Role          session.Role  `json:"role"`
	LocalEndpoint string        `json:"local_endpoint"`
	Phase         string        `json:"phase"`
	Stats         session.Stats `json:"stats"`
}

// PeersResponse is the body of GET /api/v1/peers.
type PeersResponse struct {
	Count int                `json:"count"`
	Peers []session.PeerView `json:"peers"`
}

// Stream frame types
const (
	FrameSnapshot       = "snapshot"
	FramePeerDiscovered = "peer_discovered"
)

// StreamFrame is one message on /ws/peers.
type StreamFrame struct {
	Type   string             `json:"type"`
	Tick   uint64             `json:"tick,omitempty"`
	PeerID string             `json:"peer_id,omitempty"`
	Peers  []session.PeerView `json:"peers,omitempty"`
}
