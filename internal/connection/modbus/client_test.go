// internal/connection/modbus/client_test.go
package modbus

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/goburrow/modbus"
)

// fakeDevice is a minimal Modbus TCP slave answering FC3 from a register image.
// Unit ids listed in reject answer with exception 0x02 (illegal data address).
type fakeDevice struct {
	ln     net.Listener
	regs   map[uint8][]uint16
	reject map[uint8]bool
	units  chan uint8
}

func startFakeDevice(t *testing.T, regs map[uint8][]uint16, reject map[uint8]bool) *fakeDevice {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	d := &fakeDevice{ln: ln, regs: regs, reject: reject, units: make(chan uint8, 16)}
	t.Cleanup(func() { _ = ln.Close() })
	go d.serve()
	return d
}

func (d *fakeDevice) serve() {
	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return
		}
		go d.handle(conn)
	}
}

func (d *fakeDevice) handle(conn net.Conn) {
	defer conn.Close()

	for {
		req := make([]byte, 12) // MBAP(7) + FC + addr + qty
		if _, err := io.ReadFull(conn, req); err != nil {
			return
		}
		tid := binary.BigEndian.Uint16(req[0:2])
		unit := req[6]
		addr := binary.BigEndian.Uint16(req[8:10])
		qty := binary.BigEndian.Uint16(req[10:12])
		d.units <- unit

		var pdu []byte
		if d.reject[unit] {
			pdu = []byte{0x83, 0x02}
		} else {
			pdu = make([]byte, 2+2*int(qty))
			pdu[0] = 0x03
			pdu[1] = byte(2 * qty)
			image := d.regs[unit]
			for i := 0; i < int(qty); i++ {
				var v uint16
				if int(addr)+i < len(image) {
					v = image[int(addr)+i]
				}
				binary.BigEndian.PutUint16(pdu[2+2*i:], v)
			}
		}

		resp := make([]byte, 7+len(pdu))
		binary.BigEndian.PutUint16(resp[0:2], tid)
		binary.BigEndian.PutUint16(resp[4:6], uint16(1+len(pdu)))
		resp[6] = unit
		copy(resp[7:], pdu)
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func TestSession_ReadHoldingRegisters(t *testing.T) {
	d := startFakeDevice(t, map[uint8][]uint16{
		1: {0x0001, 0x0002, 0x0003},
		2: {0xBEEF},
	}, nil)

	s, err := Dial(Config{Address: d.ln.Addr().String(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("Dial err=%v", err)
	}
	defer s.Close()

	b, err := s.ReadHoldingRegisters(1, 1, 2)
	if err != nil {
		t.Fatalf("read unit 1 err=%v", err)
	}
	if len(b) != 4 || binary.BigEndian.Uint16(b[0:]) != 2 || binary.BigEndian.Uint16(b[2:]) != 3 {
		t.Fatalf("unexpected payload % x", b)
	}
	if u := <-d.units; u != 1 {
		t.Fatalf("unit=%d want 1", u)
	}

	// unit id is switched per request on the same connection
	b, err = s.ReadHoldingRegisters(2, 0, 1)
	if err != nil {
		t.Fatalf("read unit 2 err=%v", err)
	}
	if binary.BigEndian.Uint16(b) != 0xBEEF {
		t.Fatalf("unexpected payload % x", b)
	}
	if u := <-d.units; u != 2 {
		t.Fatalf("unit=%d want 2", u)
	}
}

func TestSession_ExceptionResponse(t *testing.T) {
	d := startFakeDevice(t, nil, map[uint8]bool{7: true})

	s, err := Dial(Config{Address: d.ln.Addr().String(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("Dial err=%v", err)
	}
	defer s.Close()

	_, err = s.ReadHoldingRegisters(7, 0, 1)
	var mbErr *modbus.ModbusError
	if !errors.As(err, &mbErr) {
		t.Fatalf("expected ModbusError, got %v", err)
	}
	if mbErr.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Fatalf("exception=%d", mbErr.ExceptionCode)
	}
}

func TestSession_ReadAfterClose(t *testing.T) {
	d := startFakeDevice(t, map[uint8][]uint16{1: {1}}, nil)

	s, err := Dial(Config{Address: d.ln.Addr().String(), Timeout: time.Second})
	if err != nil {
		t.Fatalf("Dial err=%v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close err=%v", err)
	}

	if _, err := s.ReadHoldingRegisters(1, 0, 1); !errors.Is(err, net.ErrClosed) {
		t.Fatalf("expected net.ErrClosed, got %v", err)
	}
}

func TestDial_Errors(t *testing.T) {
	if _, err := Dial(Config{}); err == nil {
		t.Fatalf("expected error for empty address")
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	if _, err := Dial(Config{Address: addr, Timeout: 200 * time.Millisecond}); err == nil {
		t.Fatalf("expected dial error for closed port")
	}
}
