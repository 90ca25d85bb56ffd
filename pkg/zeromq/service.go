// Package zeromq publishes session events on a ZeroMQ PUB socket so external
// tools (recorders, dashboards, bots) can follow a session without joining it.
package zeromq

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pebbe/zmq4"

	customlog "github.com/posync/posync/pkg/log"
)

// Common errors
var (
	ErrServiceClosed = errors.New("zeromq service is closed")
	ErrQueueFull     = errors.New("zeromq publish queue is full")
)

// Message types
const (
	MsgTypePeerDiscovered = "PEER_DISCOVERED"
	MsgTypeTickReport     = "TICK_REPORT"
)

// Topics
const (
	TopicPeerDiscovered = "session.peer_discovered"
	TopicTick           = "session.tick"
)

// ZeroMQMessage is the JSON envelope of every published frame
type ZeroMQMessage struct {
	Type      string      `json:"type"`
	Timestamp float64     `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

type outbound struct {
	topic   string
	payload []byte
}

// MessageSender owns the PUB socket. Publishing is serialized by mu since
// ZeroMQ sockets are not thread safe.
type MessageSender struct {
	socket  *zmq4.Socket
	address string
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
}

// newMessageSender creates a PUB socket bound to address
func newMessageSender(ctx *zmq4.Context, address string, logger customlog.Logger) (*MessageSender, error) {
	socket, err := ctx.NewSocket(zmq4.PUB)
	if err != nil {
		return nil, fmt.Errorf("failed to create PUB socket: %w", err)
	}

	if err := socket.SetLinger(0); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set linger option: %w", err)
	}

	// Keep a stalled subscriber from blocking shutdown
	if err := socket.SetSndtimeo(time.Second); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to set send timeout: %w", err)
	}

	if err := socket.Bind(address); err != nil {
		socket.Close()
		return nil, fmt.Errorf("failed to bind to %s: %w", address, err)
	}

	// Resolves wildcard ports like tcp://127.0.0.1:*
	bound, err := socket.GetLastEndpoint()
	if err != nil {
		bound = address
	}

	logger.Infof("MessageSender initialized on %s", bound)

	return &MessageSender{
		socket:  socket,
		address: bound,
		logger:  logger,
		running: true,
	}, nil
}

// PublishMessage sends a message with the given topic
func (s *MessageSender) PublishMessage(topic string, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}

	// Send two messages in sequence (topic first, then message)
	if _, err := s.socket.Send(topic, zmq4.SNDMORE); err != nil {
		return fmt.Errorf("failed to send topic: %w", err)
	}
	if _, err := s.socket.SendBytes(message, 0); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Close cleans up resources
func (s *MessageSender) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.running = false
	if s.socket != nil {
		s.socket.Close()
		s.socket = nil
	}
}

// ZeroMQService runs the PUB socket and a single publishing goroutine fed
// by a bounded queue, so callers never wait on the network.
type ZeroMQService struct {
	ctx     *zmq4.Context
	sender  *MessageSender
	address string
	queue   chan outbound
	logger  customlog.Logger
	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup
	dropped uint64
}

// NewZeroMQService binds a PUB socket on address (e.g. "tcp://*:5556").
func NewZeroMQService(address string, queueSize int, logger customlog.Logger) (*ZeroMQService, error) {
	if logger == nil {
		logger = customlog.NewNopLogger()
	}
	if queueSize <= 0 {
		queueSize = 256
	}

	ctx, err := zmq4.NewContext()
	if err != nil {
		return nil, fmt.Errorf("failed to create ZMQ context: %w", err)
	}

	sender, err := newMessageSender(ctx, address, logger)
	if err != nil {
		ctx.Term()
		return nil, err
	}

	return &ZeroMQService{
		ctx:     ctx,
		sender:  sender,
		address: sender.address,
		queue:   make(chan outbound, queueSize),
		logger:  logger,
	}, nil
}

// Address returns the bound endpoint.
func (s *ZeroMQService) Address() string {
	return s.address
}

// Start begins the publishing loop
func (s *ZeroMQService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.sender == nil {
		return ErrServiceClosed
	}

	s.running = true
	s.logger.Infof("Starting ZeroMQ service")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for msg := range s.queue {
			if err := s.sender.PublishMessage(msg.topic, msg.payload); err != nil {
				s.logger.Warnf("Failed to publish on %s: %v", msg.topic, err)
			}
		}
	}()
	return nil
}

// PublishJSON wraps data in a ZeroMQMessage and queues it for topic.
func (s *ZeroMQService) PublishJSON(topic string, msgType string, data interface{}) error {
	payload, err := json.Marshal(ZeroMQMessage{
		Type:      msgType,
		Timestamp: float64(time.Now().UnixNano()) / 1e9,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s message: %w", msgType, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrServiceClosed
	}
	select {
	case s.queue <- outbound{topic: topic, payload: payload}:
		return nil
	default:
		s.dropped++
		return ErrQueueFull
	}
}

// Dropped returns how many messages were discarded because the queue was full.
func (s *ZeroMQService) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Stop drains the queue, closes the socket and terminates the context.
func (s *ZeroMQService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.closeSocket()
		return
	}
	s.running = false
	close(s.queue)
	s.mu.Unlock()

	s.logger.Infof("Stopping ZeroMQ service")
	s.wg.Wait()
	s.closeSocket()
}

func (s *ZeroMQService) closeSocket() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sender == nil {
		return
	}
	s.sender.Close()
	s.sender = nil
	if err := s.ctx.Term(); err != nil {
		s.logger.Warnf("Failed to terminate ZMQ context: %v", err)
	}
}
