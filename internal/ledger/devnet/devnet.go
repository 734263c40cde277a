// Package devnet is a single-node development ledger backed by SQLite.
//
// It implements the medical records chaincode functions so the system can run
// and be tested without a real ledger network. It is registered as the
// "devnet" driver; point a network profile's path at its database file.
package devnet

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/medledger/internal/ledger"
)

//go:embed schema.sql
var schemaSQL string

// DriverName is the network profile driver name.
const DriverName = "devnet"

func init() {
	ledger.Register(DriverName, Dial)
}

// Ledger is an open development ledger database. It doubles as the Gateway.
type Ledger struct {
	db      *sql.DB
	creator string
	now     func() time.Time
	newTxID func() string

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the commit timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithTxIDs overrides transaction id generation.
func WithTxIDs(gen func() string) Option {
	return func(l *Ledger) {
		l.newTxID = gen
	}
}

// WithCreator sets the MSP recorded as transaction creator.
func WithCreator(msp string) Option {
	return func(l *Ledger) {
		l.creator = msp
	}
}

// Open creates or opens a development ledger at path.
func Open(path string, opts ...Option) (*Ledger, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open devnet: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect devnet: %w", err)
	}

	// Single connection: every transaction is ordered by this one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("devnet %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("devnet schema: %w", err)
	}

	l := &Ledger{
		db:      db,
		creator: "DevMSP",
		now:     time.Now,
		newTxID: func() string { return uuid.Must(uuid.NewV7()).String() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Dial is the ledger.Dialer for the "devnet" driver.
func Dial(ctx context.Context, network ledger.Network, id ledger.Identity) (ledger.Gateway, error) {
	if network.Path == "" {
		return nil, errors.New("devnet: network profile path is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Open(network.Path, WithCreator(id.MSPID))
}

// Contract implements ledger.Gateway.
func (l *Ledger) Contract(channel, chaincode string) (ledger.Contract, error) {
	if channel == "" || chaincode == "" {
		return nil, errors.New("devnet: channel and chaincode are required")
	}
	return &contract{ledger: l, channel: channel, chaincode: chaincode}, nil
}

// Close implements ledger.Gateway. Idempotent.
func (l *Ledger) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.db.Close()
	})
	return l.closeErr
}
