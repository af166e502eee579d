// internal/connection/manager_test.go
package connection

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goburrow/modbus"
)

// ---- fakes ----

type fakeSession struct {
	mu     sync.Mutex
	read   func(unitID uint8, addr, qty uint16) ([]byte, error)
	units  []uint8
	closed atomic.Bool
}

func (f *fakeSession) ReadHoldingRegisters(unitID uint8, addr, qty uint16) ([]byte, error) {
	f.mu.Lock()
	f.units = append(f.units, unitID)
	read := f.read
	f.mu.Unlock()
	if read == nil {
		return make([]byte, int(qty)*2), nil
	}
	return read(unitID, addr, qty)
}

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu       sync.Mutex
	dials    int
	failures int // first N dials fail
	sessions []*fakeSession
	newSess  func() *fakeSession
}

func (d *fakeDialer) Dial(address string, timeout time.Duration) (Session, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, errors.New("connection refused")
	}
	s := &fakeSession{}
	if d.newSess != nil {
		s = d.newSess()
	}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) session(i int) *fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sessions[i]
}

// ---- helpers ----

func newTestManager(t *testing.T, d *fakeDialer, idle, reconnect time.Duration) (*Manager, chan Transition) {
	t.Helper()
	trs := make(chan Transition, 64)
	m, err := New(Config{
		Name:           "PM-DG8",
		Host:           "127.0.0.1",
		Port:           502,
		IdleTimeout:    idle,
		ReconnectDelay: reconnect,
		Dial:           d.Dial,
		OnTransition: func(tr Transition) {
			select {
			case trs <- tr:
			default:
			}
		},
	})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	return m, trs
}

func start(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-m.done
	})
}

func waitFor(t *testing.T, trs <-chan Transition, to State, within time.Duration) Transition {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case tr := <-trs:
			if tr.To == to {
				return tr
			}
		case <-deadline:
			t.Fatalf("no transition to %s within %s", to, within)
		}
	}
}

// ---- tests ----

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Host: "h", Port: 502}); err == nil {
		t.Fatalf("expected error for missing name")
	}
	if _, err := New(Config{Name: "d", Port: 502}); err == nil {
		t.Fatalf("expected error for missing host")
	}
	if _, err := New(Config{Name: "d", Host: "h", Port: 70000}); err == nil {
		t.Fatalf("expected error for bad port")
	}

	m, err := New(Config{Name: "d", Host: "10.0.0.5", Port: 502})
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if m.cfg.IdleTimeout != DefaultIdleTimeout || m.cfg.ReconnectDelay != DefaultReconnectDelay {
		t.Fatalf("defaults not applied: %+v", m.cfg)
	}
	if m.Address() != "10.0.0.5:502" {
		t.Fatalf("address=%s", m.Address())
	}
	if m.State() != Disconnected {
		t.Fatalf("initial state=%s", m.State())
	}
}

func TestManager_ReadWhileDisconnected(t *testing.T) {
	m, _ := newTestManager(t, &fakeDialer{}, time.Second, time.Second)

	_, err := m.ReadHoldingRegisters(0, 10, 1)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestManager_ConnectAndRead(t *testing.T) {
	d := &fakeDialer{}
	m, trs := newTestManager(t, d, time.Second, time.Second)
	start(t, m)

	waitFor(t, trs, Connecting, time.Second)
	waitFor(t, trs, Connected, time.Second)

	b, err := m.ReadHoldingRegisters(3000, 4, 7)
	if err != nil {
		t.Fatalf("read err=%v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
	if got := d.session(0).units; len(got) != 1 || got[0] != 7 {
		t.Fatalf("unit ids sent=%v", got)
	}

	snap := m.Snapshot()
	if !snap.Connected || snap.State != Connected || snap.Name != "PM-DG8" {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestManager_ConnectIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	m, trs := newTestManager(t, d, time.Second, time.Second)
	start(t, m)
	waitFor(t, trs, Connected, time.Second)

	for i := 0; i < 5; i++ {
		m.Connect()
	}
	time.Sleep(50 * time.Millisecond)

	if n := d.count(); n != 1 {
		t.Fatalf("expected 1 dial, got %d", n)
	}
	if m.State() != Connected {
		t.Fatalf("state=%s", m.State())
	}
}

func TestManager_IdleTimeoutReconnects(t *testing.T) {
	const (
		idle      = 60 * time.Millisecond
		reconnect = 120 * time.Millisecond
	)
	d := &fakeDialer{}
	m, trs := newTestManager(t, d, idle, reconnect)
	start(t, m)

	waitFor(t, trs, Connected, time.Second)

	down := waitFor(t, trs, Disconnected, time.Second)
	if !strings.Contains(down.Reason, "idle timeout") {
		t.Fatalf("reason=%q", down.Reason)
	}
	if !d.session(0).closed.Load() {
		// Close runs asynchronously.
		time.Sleep(20 * time.Millisecond)
		if !d.session(0).closed.Load() {
			t.Fatalf("session not closed after idle timeout")
		}
	}

	again := waitFor(t, trs, Connecting, time.Second)
	if gap := again.At.Sub(down.At); gap < reconnect-10*time.Millisecond {
		t.Fatalf("reconnect after %s, want >= %s", gap, reconnect)
	}
	waitFor(t, trs, Connected, time.Second)
	if n := d.count(); n != 2 {
		t.Fatalf("expected 2 dials, got %d", n)
	}
}

func TestManager_TrafficKeepsSessionAlive(t *testing.T) {
	const idle = 80 * time.Millisecond
	d := &fakeDialer{}
	m, trs := newTestManager(t, d, idle, time.Hour)
	start(t, m)
	waitFor(t, trs, Connected, time.Second)

	for i := 0; i < 6; i++ {
		time.Sleep(idle / 3)
		if _, err := m.ReadHoldingRegisters(0, 1, 1); err != nil {
			t.Fatalf("read %d err=%v", i, err)
		}
	}
	if m.State() != Connected {
		t.Fatalf("state=%s, traffic should reset idle timer", m.State())
	}
}

func TestManager_ReadTimeoutTearsDown(t *testing.T) {
	d := &fakeDialer{newSess: func() *fakeSession {
		return &fakeSession{read: func(uint8, uint16, uint16) ([]byte, error) {
			return nil, os.ErrDeadlineExceeded
		}}
	}}
	m, trs := newTestManager(t, d, time.Second, time.Hour)
	start(t, m)
	waitFor(t, trs, Connected, time.Second)

	_, err := m.ReadHoldingRegisters(0, 10, 1)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	waitFor(t, trs, Disconnected, time.Second)

	if _, err := m.ReadHoldingRegisters(0, 10, 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected after teardown, got %v", err)
	}
}

func TestManager_ExceptionKeepsSession(t *testing.T) {
	d := &fakeDialer{newSess: func() *fakeSession {
		return &fakeSession{read: func(uint8, uint16, uint16) ([]byte, error) {
			return nil, &modbus.ModbusError{FunctionCode: 0x83, ExceptionCode: modbus.ExceptionCodeIllegalDataAddress}
		}}
	}}
	m, trs := newTestManager(t, d, time.Second, time.Hour)
	start(t, m)
	waitFor(t, trs, Connected, time.Second)

	_, err := m.ReadHoldingRegisters(9999, 10, 1)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("expected ErrProtocol, got %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if m.State() != Connected {
		t.Fatalf("exception response must not drop the session, state=%s", m.State())
	}
}

func TestManager_DialFailureSchedulesReconnect(t *testing.T) {
	const reconnect = 50 * time.Millisecond
	d := &fakeDialer{failures: 1}
	m, trs := newTestManager(t, d, time.Second, reconnect)
	start(t, m)

	down := waitFor(t, trs, Disconnected, time.Second)
	if !strings.Contains(down.Reason, "connect failed") {
		t.Fatalf("reason=%q", down.Reason)
	}
	waitFor(t, trs, Connected, time.Second)
	if n := d.count(); n != 2 {
		t.Fatalf("expected 2 dials, got %d", n)
	}
}

func TestManager_ConnectSkipsReconnectDelay(t *testing.T) {
	d := &fakeDialer{failures: 1}
	m, trs := newTestManager(t, d, time.Second, time.Hour)
	start(t, m)

	waitFor(t, trs, Disconnected, time.Second)
	m.Connect()
	waitFor(t, trs, Connected, time.Second)
}

func TestManager_ShutdownDisconnects(t *testing.T) {
	d := &fakeDialer{}
	m, trs := newTestManager(t, d, time.Second, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)
	waitFor(t, trs, Connected, time.Second)

	cancel()
	<-m.done

	if m.State() != Disconnected {
		t.Fatalf("state=%s after shutdown", m.State())
	}
}

func TestManager_PeerCloseDetectedOnNextRead(t *testing.T) {
	var closedByPeer atomic.Bool
	d := &fakeDialer{newSess: func() *fakeSession {
		return &fakeSession{read: func(_ uint8, _, qty uint16) ([]byte, error) {
			if closedByPeer.Load() {
				return nil, io.EOF
			}
			return make([]byte, int(qty)*2), nil
		}}
	}}
	m, trs := newTestManager(t, d, time.Second, 50*time.Millisecond)
	start(t, m)
	waitFor(t, trs, Connected, time.Second)

	closedByPeer.Store(true)
	if !m.Snapshot().Connected {
		t.Fatalf("peer close is not observable before the next read")
	}

	if _, err := m.ReadHoldingRegisters(0, 10, 1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	tr := waitFor(t, trs, Disconnected, time.Second)
	if !strings.Contains(tr.Reason, "EOF") {
		t.Fatalf("reason=%q", tr.Reason)
	}
	if !d.session(0).closed.Load() {
		time.Sleep(20 * time.Millisecond)
		if !d.session(0).closed.Load() {
			t.Fatalf("dead session not closed")
		}
	}

	// reconnect delay counts from detection
	waitFor(t, trs, Connected, time.Second)
	if n := d.count(); n != 2 {
		t.Fatalf("dials=%d want 2", n)
	}
}
