package session

import (
	"time"

	"github.com/posync/posync/pkg/registry"
)

// Role is the part a process plays in a session.
type Role string

const (
	RoleServer Role = "server"
	RoleClient Role = "client"
)

// Phase is where a tick currently is.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseIngesting
	PhaseBroadcasting
	PhaseReporting
	PhaseApplying
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseIngesting:
		return "ingesting"
	case PhaseBroadcasting:
		return "broadcasting"
	case PhaseReporting:
		return "reporting"
	case PhaseApplying:
		return "applying"
	default:
		return "unknown"
	}
}

// PeerFactory is called once per newly discovered peer with the identifier
// the session knows it by. The returned handle receives every position
// update for that peer. It may return nil.
type PeerFactory func(peerID string) registry.Handle

// TickReport summarizes one tick.
type TickReport struct {
	Role         Role          `json:"role"`
	Tick         uint64        `json:"tick"`
	Received     int           `json:"received"`
	Decoded      int           `json:"decoded"`
	Dropped      int           `json:"dropped"`
	Discovered   int           `json:"discovered"`
	Sends        int           `json:"sends"`
	SendFailures int           `json:"send_failures"`
	Duration     time.Duration `json:"duration_ns"`
}

// Stats accumulates TickReports.
type Stats struct {
	Ticks        uint64 `json:"ticks"`
	Received     uint64 `json:"received"`
	Decoded      uint64 `json:"decoded"`
	Dropped      uint64 `json:"dropped"`
	Discovered   uint64 `json:"discovered"`
	Sends        uint64 `json:"sends"`
	SendFailures uint64 `json:"send_failures"`
	Peers        int    `json:"peers"`
}

func (s *Stats) add(r TickReport) {
	s.Ticks++
	s.Received += uint64(r.Received)
	s.Decoded += uint64(r.Decoded)
	s.Dropped += uint64(r.Dropped)
	s.Discovered += uint64(r.Discovered)
	s.Sends += uint64(r.Sends)
	s.SendFailures += uint64(r.SendFailures)
}

// Observer is notified of session events. Calls happen on the ticking
// goroutine, so implementations must return quickly.
type Observer interface {
	PeerDiscovered(role Role, peerID string)
	TickCompleted(report TickReport)
}

type observers []Observer

func (o observers) peerDiscovered(role Role, peerID string) {
	for _, obs := range o {
		obs.PeerDiscovered(role, peerID)
	}
}

func (o observers) tickCompleted(r TickReport) {
	for _, obs := range o {
		obs.TickCompleted(r)
	}
}
