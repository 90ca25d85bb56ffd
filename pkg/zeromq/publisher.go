package zeromq

import (
	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/session"
)

// Ensure EventPublisher implements the session.Observer interface
var _ session.Observer = (*EventPublisher)(nil)

// PeerDiscoveredEvent is the data of a PEER_DISCOVERED message
type PeerDiscoveredEvent struct {
	Role   session.Role `json:"role"`
	PeerID string       `json:"peer_id"`
}

// EventPublisher turns session events into ZeroMQ messages. Tick reports
// are published every tickEvery ticks; discoveries always.
type EventPublisher struct {
	service   *ZeroMQService
	tickEvery uint64
	logger    customlog.Logger
}

// NewEventPublisher creates a publisher on a started service. tickEvery of 0
// disables tick reports.
func NewEventPublisher(service *ZeroMQService, tickEvery uint64, logger customlog.Logger) *EventPublisher {
	if logger == nil {
		logger = customlog.NewNopLogger()
	}
	return &EventPublisher{
		service:   service,
		tickEvery: tickEvery,
		logger:    logger,
	}
}

// PeerDiscovered publishes on TopicPeerDiscovered.
func (p *EventPublisher) PeerDiscovered(role session.Role, peerID string) {
	event := PeerDiscoveredEvent{Role: role, PeerID: peerID}
	if err := p.service.PublishJSON(TopicPeerDiscovered, MsgTypePeerDiscovered, event); err != nil {
		p.logger.Warnf("Failed to queue discovery of %s: %v", peerID, err)
	}
}

// TickCompleted publishes on TopicTick.
func (p *EventPublisher) TickCompleted(report session.TickReport) {
	if p.tickEvery == 0 || report.Tick%p.tickEvery != 0 {
		return
	}
	if err := p.service.PublishJSON(TopicTick, MsgTypeTickReport, report); err != nil {
		p.logger.Debugf("Failed to queue tick report %d: %v", report.Tick, err)
	}
}
