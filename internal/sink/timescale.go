// internal/sink/timescale.go
package sink

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	_ "github.com/lib/pq"
	"k8s.io/klog/v2"

	"github.com/tamzrod/telemetry-gateway/internal/decoder"
)

// TimescaleConfig configures the TimescaleDB (PostgreSQL) backend.
type TimescaleConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	ConnectAttempts uint
	ConnectDelay    time.Duration
}

// DSN renders a lib/pq connection URL.
func (c TimescaleConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		u.User = url.UserPassword(c.User, c.Password)
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	u.RawQuery = url.Values{"sslmode": {sslmode}}.Encode()
	return u.String()
}

var insertSQL = buildInsertSQL()

func buildInsertSQL() string {
	names := make([]string, 0, len(columns))
	params := make([]string, 0, len(columns))
	for i, c := range columns {
		names = append(names, c.Name)
		params = append(params, "$"+strconv.Itoa(i+2))
	}
	return fmt.Sprintf(
		"INSERT INTO telemetry_logs (time, device_id, %s) VALUES (NOW(), $1, %s)",
		strings.Join(names, ", "),
		strings.Join(params, ", "),
	)
}

// insertArgs binds deviceID and one nullable value per column.
// Missing and null channels bind as NULL.
func insertArgs(deviceID string, r decoder.Reading) []any {
	args := make([]any, 0, len(columns)+1)
	args = append(args, deviceID)
	for _, c := range columns {
		args = append(args, r.Get(c.Channel))
	}
	return args
}

// Timescale writes one row per reading into telemetry_logs through a shared pool.
type Timescale struct {
	cfg TimescaleConfig
	db  *sql.DB
}

func NewTimescale(cfg TimescaleConfig) *Timescale {
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 3
	}
	if cfg.ConnectDelay <= 0 {
		cfg.ConnectDelay = 2 * time.Second
	}
	return &Timescale{cfg: cfg}
}

func (t *Timescale) Name() string { return "timescale" }

// Connect opens the pool and pings it. The pool is kept on ping failure;
// database/sql re-dials on the next insert.
func (t *Timescale) Connect(ctx context.Context) error {
	db, err := sql.Open("postgres", t.cfg.DSN())
	if err != nil {
		return fmt.Errorf("timescale: open: %w", err)
	}
	if t.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(t.cfg.MaxOpenConns)
		db.SetMaxIdleConns(t.cfg.MaxOpenConns)
	}
	t.db = db

	err = retry.Do(
		func() error { return db.PingContext(ctx) },
		retry.Context(ctx),
		retry.Attempts(t.cfg.ConnectAttempts),
		retry.Delay(t.cfg.ConnectDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			klog.Warningf("timescale: ping %s:%d attempt %d failed: %v", t.cfg.Host, t.cfg.Port, n+1, err)
		}),
	)
	if err != nil {
		return fmt.Errorf("timescale: ping: %w", err)
	}
	return nil
}

func (t *Timescale) InsertReading(ctx context.Context, deviceID string, r decoder.Reading) error {
	if t.db == nil {
		return errors.New("timescale: not connected")
	}
	if _, err := t.db.ExecContext(ctx, insertSQL, insertArgs(deviceID, r)...); err != nil {
		return fmt.Errorf("timescale: insert: %w", err)
	}
	return nil
}

func (t *Timescale) Close() error {
	if t.db == nil {
		return nil
	}
	return t.db.Close()
}
