// internal/connection/manager.go
package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"k8s.io/klog/v2"

	mbsession "github.com/tamzrod/telemetry-gateway/internal/connection/modbus"
)

const (
	DefaultReconnectDelay = 5 * time.Second
	DefaultIdleTimeout    = 10 * time.Second
)

// Session is one open device session.
type Session interface {
	ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]byte, error)
	Close() error
}

// DialFunc opens a session. timeout bounds the dial and every request.
type DialFunc func(address string, timeout time.Duration) (Session, error)

// DialModbus opens a Modbus TCP session.
func DialModbus(address string, timeout time.Duration) (Session, error) {
	s, err := mbsession.Dial(mbsession.Config{Address: address, Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Config is the per-device connection config.
type Config struct {
	Name string
	Host string
	Port int

	ReconnectDelay time.Duration
	IdleTimeout    time.Duration

	// Dial defaults to DialModbus.
	Dial DialFunc

	// OnTransition, if set, is called from the manager goroutine after every state change.
	OnTransition func(Transition)
}

type eventKind int

const (
	evDialed eventKind = iota
	evReadFailed
)

type event struct {
	kind    eventKind
	session Session
	err     error
}

// Manager owns one device session and its state machine.
//
// All state transitions happen on the goroutine running Run. Reads run on
// the caller's goroutine against the current session and report fatal
// failures back as events.
type Manager struct {
	cfg     Config
	address string

	mu      sync.RWMutex
	state   State
	since   time.Time
	session Session

	lastActivity atomic.Int64 // unix nanos

	connectReq chan struct{}
	events     chan event
	done       chan struct{}
	running    atomic.Bool
}

// New validates cfg and returns a Disconnected manager. Call Run to start it.
func New(cfg Config) (*Manager, error) {
	if cfg.Name == "" {
		return nil, errors.New("connection: name required")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("connection %q: host required", cfg.Name)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("connection %q: port %d out of range", cfg.Name, cfg.Port)
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Dial == nil {
		cfg.Dial = DialModbus
	}

	return &Manager{
		cfg:        cfg,
		address:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		state:      Disconnected,
		since:      time.Now(),
		connectReq: make(chan struct{}, 1),
		events:     make(chan event),
		done:       make(chan struct{}),
	}, nil
}

func (m *Manager) Name() string    { return m.cfg.Name }
func (m *Manager) Address() string { return m.address }

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot returns the connectivity view for status reporting.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Name:      m.cfg.Name,
		Address:   m.address,
		State:     m.state,
		Since:     m.since,
		Connected: m.state == Connected,
	}
}

// Connect requests a connection attempt. It is safe to call in any state:
// while Connecting or Connected it has no effect, while Disconnected it dials
// immediately instead of waiting for the scheduled reconnect.
func (m *Manager) Connect() {
	select {
	case m.connectReq <- struct{}{}:
	default:
	}
}

// ReadHoldingRegisters reads qty registers from startAddr on unitID.
// A peer close is detected here, as EOF on the next read; between polls the
// idle timer is the upper bound.
// It fails immediately with ErrNotConnected unless the session is Connected.
// Other failures wrap ErrTimeout or ErrProtocol.
func (m *Manager) ReadHoldingRegisters(startAddr, qty uint16, unitID uint8) ([]byte, error) {
	m.mu.RLock()
	s, st := m.session, m.state
	m.mu.RUnlock()

	if st != Connected || s == nil {
		return nil, ErrNotConnected
	}

	m.touch()
	b, err := s.ReadHoldingRegisters(unitID, startAddr, qty)
	if err != nil {
		wrapped, fatal := classify(err)
		if fatal {
			m.report(event{kind: evReadFailed, session: s, err: wrapped})
		}
		return nil, wrapped
	}
	m.touch()

	return b, nil
}

// Run drives the state machine until ctx is done. It dials once on start.
func (m *Manager) Run(ctx context.Context) {
	if !m.running.CompareAndSwap(false, true) {
		klog.Warningf("[%s] connection manager already running", m.cfg.Name)
		return
	}
	defer close(m.done)

	reconnect := stoppedTimer()
	idle := stoppedTimer()
	defer reconnect.Stop()
	defer idle.Stop()

	scheduleReconnect := func() {
		klog.Warningf("[%s] reconnecting to %s in %s", m.cfg.Name, m.address, m.cfg.ReconnectDelay)
		reconnect.Reset(m.cfg.ReconnectDelay)
	}

	m.dial()

	for {
		select {
		case <-ctx.Done():
			m.teardown("shutdown")
			return

		case <-m.connectReq:
			if m.State() == Disconnected {
				reconnect.Stop()
				m.dial()
			}

		case <-reconnect.C:
			if m.State() == Disconnected {
				m.dial()
			}

		case ev := <-m.events:
			switch ev.kind {
			case evDialed:
				if ev.err != nil {
					m.setState(Disconnected, "connect failed: "+ev.err.Error())
					scheduleReconnect()
					continue
				}
				m.mu.Lock()
				m.session = ev.session
				m.mu.Unlock()
				m.touch()
				m.setState(Connected, "connected to "+m.address)
				idle.Reset(m.cfg.IdleTimeout)

			case evReadFailed:
				if !m.isCurrent(ev.session) {
					continue
				}
				idle.Stop()
				m.teardown(ev.err.Error())
				scheduleReconnect()
			}

		case <-idle.C:
			if m.State() != Connected {
				continue
			}
			elapsed := time.Since(time.Unix(0, m.lastActivity.Load()))
			if elapsed < m.cfg.IdleTimeout {
				idle.Reset(m.cfg.IdleTimeout - elapsed)
				continue
			}
			m.teardown(fmt.Sprintf("idle timeout (%s without traffic)", m.cfg.IdleTimeout))
			scheduleReconnect()
		}
	}
}

// dial moves to Connecting and dials off the manager goroutine.
func (m *Manager) dial() {
	m.setState(Connecting, "dialing "+m.address)

	go func() {
		s, err := m.cfg.Dial(m.address, m.cfg.IdleTimeout)
		select {
		case m.events <- event{kind: evDialed, session: s, err: err}:
		case <-m.done:
			if s != nil {
				_ = s.Close()
			}
		}
	}()
}

// teardown drops the current session and moves to Disconnected.
func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s != nil {
		// Close may wait for a stalled request to hit its deadline.
		go func() {
			if err := s.Close(); err != nil {
				klog.V(4).Infof("[%s] close: %v", m.cfg.Name, err)
			}
		}()
	}

	m.setState(Disconnected, reason)
}

func (m *Manager) setState(to State, reason string) {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	now := time.Now()
	m.state = to
	m.since = now
	m.mu.Unlock()

	tr := Transition{Device: m.cfg.Name, From: from, To: to, At: now, Reason: reason}

	switch to {
	case Disconnected:
		klog.Warningf("[%s] %s -> %s at %s: %s", m.cfg.Name, from, to, now.Format(time.RFC3339Nano), reason)
	default:
		klog.Infof("[%s] %s -> %s at %s: %s", m.cfg.Name, from, to, now.Format(time.RFC3339Nano), reason)
	}

	if m.cfg.OnTransition != nil {
		m.cfg.OnTransition(tr)
	}
}

func (m *Manager) isCurrent(s Session) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session != nil && m.session == s
}

func (m *Manager) touch() {
	m.lastActivity.Store(time.Now().UnixNano())
}

// report hands an event to the manager goroutine, or drops it once Run has exited.
func (m *Manager) report(ev event) {
	if !m.running.Load() {
		return
	}
	select {
	case m.events <- ev:
	case <-m.done:
	}
}

func stoppedTimer() *time.Timer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}
