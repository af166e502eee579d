// internal/sink/types.go
package sink

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"github.com/tamzrod/telemetry-gateway/internal/decoder"
)

// ErrConnectPending is returned by Connect when the backend keeps connecting
// in the background and will accept writes once it succeeds.
var ErrConnectPending = errors.New("connect pending")

// Backend is one storage or publish target.
type Backend interface {
	Name() string
	Connect(ctx context.Context) error
	InsertReading(ctx context.Context, deviceID string, r decoder.Reading) error
	Close() error
}

type column struct {
	Name    string
	Channel decoder.Channel
}

// columns maps channels to storage column / field names, in insert order.
var columns = buildColumns(decoder.Channels)

func buildColumns(chs []decoder.Channel) []column {
	out := make([]column, 0, len(chs))
	for _, ch := range chs {
		out = append(out, column{Name: columnName(ch), Channel: ch})
	}
	return out
}

// columnName converts a channel name to snake_case: voltageL1L2 -> voltage_l1_l2.
func columnName(ch decoder.Channel) string {
	var b strings.Builder
	for _, r := range string(ch) {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
