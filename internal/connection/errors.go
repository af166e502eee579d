// internal/connection/errors.go
package connection

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/goburrow/modbus"
)

var (
	// ErrNotConnected is returned when a read is attempted outside the Connected state
	// or the session drops during the read.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrTimeout is returned when the device did not answer within the idle timeout.
	ErrTimeout = errors.New("connection: timeout")

	// ErrProtocol is returned for exception responses and malformed frames.
	ErrProtocol = errors.New("connection: protocol error")
)

// classify maps a transport error onto the read error taxonomy.
// fatal reports whether the session can no longer be trusted.
func classify(err error) (wrapped error, fatal bool) {
	if err == nil {
		return nil, false
	}

	var mbErr *modbus.ModbusError
	if errors.As(err, &mbErr) {
		return fmt.Errorf("%w: %v", ErrProtocol, err), false
	}

	var netErr net.Error
	if errors.Is(err, os.ErrDeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err), true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", ErrNotConnected, err), true
	}

	// Anything else is a framing or validation failure from the modbus layer;
	// the stream may be out of sync.
	return fmt.Errorf("%w: %v", ErrProtocol, err), true
}
