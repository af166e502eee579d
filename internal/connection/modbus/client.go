// internal/connection/modbus/client.go
package modbus

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"
)

// Session is a single Modbus TCP connection to one device endpoint.
// It serializes requests because it mutates SlaveId per read.
type Session struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
	closed  atomic.Bool
}

// Config is minimal transport config.
type Config struct {
	Address string

	// Timeout bounds dial and each request round trip.
	Timeout time.Duration
}

// Dial opens a connected session.
func Dial(cfg Config) (*Session, error) {
	if cfg.Address == "" {
		return nil, errors.New("modbus session: address required")
	}

	h := modbus.NewTCPClientHandler(cfg.Address)
	h.Timeout = cfg.Timeout
	// Idle teardown belongs to the connection manager. A handler-side close
	// would be silently re-dialed on the next request.
	h.IdleTimeout = 0

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &Session{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// ReadHoldingRegisters issues FC3 and returns the raw register bytes (big-endian).
func (s *Session) ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return nil, net.ErrClosed
	}

	s.handler.SlaveId = unitID
	res, err := s.client.ReadHoldingRegisters(addr, qty)

	// The handler re-dials on demand; a Close racing this read must not leave
	// that connection behind.
	if s.closed.Load() {
		_ = s.handler.Close()
		if err == nil {
			err = net.ErrClosed
		}
	}
	return res, err
}

// Close closes the TCP connection. It waits for an in-flight request to
// reach its deadline.
func (s *Session) Close() error {
	if s == nil || s.handler == nil {
		return nil
	}
	s.closed.Store(true)
	return s.handler.Close()
}
