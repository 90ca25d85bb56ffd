package main

import (
	customlog "github.com/posync/posync/pkg/log"
	"github.com/posync/posync/pkg/position"
)

// Minimum movement worth a log line
const moveLogThreshold = 1.0

// loggingHandle stands in for a rendered avatar: it logs when a peer has
// moved noticeably since the last line.
type loggingHandle struct {
	logger customlog.Logger
	last   position.Position
	seen   bool
}

func newLoggingHandle(peerID string, logger customlog.Logger) *loggingHandle {
	logger = logger.WithField("peer", peerID)
	logger.Infof("Spawned avatar")
	return &loggingHandle{logger: logger}
}

func (h *loggingHandle) SetPosition(p position.Position) {
	if h.seen && p.Distance(h.last) < moveLogThreshold {
		return
	}
	h.seen = true
	h.last = p
	h.logger.Debugf("Avatar at %v", p)
}
