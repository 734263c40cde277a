package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Default timeouts.
const (
	DefaultCallTimeout    = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// ErrNotInitialized is wrapped by every call made while the client is degraded.
var ErrNotInitialized = errors.New("ledger connection not initialized")

// Config selects the network, identity and chaincode a Client connects to.
type Config struct {
	NetworkConfigPath string
	WalletPath        string
	Channel           string
	Chaincode         string
	MSPID             string
	Identity          string
	CallTimeout       time.Duration
	ConnectTimeout    time.Duration
}

// Client owns the process's connection to the ledger.
//
// Thread-safety model:
//   - Start/Stop take the write side of mu, so they never overlap in-flight calls
//   - Submit/Query take the read side and run concurrently
//   - Connected is a lock-free atomic read
//
// A client that failed to connect is degraded: every call fails immediately
// with NOT_INITIALIZED instead of waiting on a dead network.
type Client struct {
	cfg    Config
	dialer Dialer
	logger *slog.Logger

	mu       sync.RWMutex
	gateway  Gateway
	contract Contract

	connected atomic.Bool
	reason    atomic.Value // string: why the client is degraded
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithDialer bypasses driver lookup from the network profile.
func WithDialer(d Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// NewClient creates a degraded client. Call Start to connect.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
	}
	c.reason.Store("not started")
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start establishes the connection. It never leaves the client unusable:
// on failure the client stays degraded and the returned error says why.
// Calling Start on a connected client is a no-op.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected.Load() {
		return nil
	}

	c.logger.Info("connecting to ledger",
		"network", c.cfg.NetworkConfigPath,
		"channel", c.cfg.Channel,
		"chaincode", c.cfg.Chaincode,
		"identity", c.cfg.Identity,
	)

	gw, contract, err := c.connect(ctx)
	if err != nil {
		c.reason.Store(err.Error())
		c.logger.Warn("ledger unavailable, running degraded", "error", err)
		return &Error{Code: ErrCodeNotInitialized, Function: "connect", Err: err}
	}

	c.gateway = gw
	c.contract = contract
	c.connected.Store(true)
	c.reason.Store("")
	c.logger.Info("connected to ledger")
	return nil
}

func (c *Client) connect(ctx context.Context) (Gateway, Contract, error) {
	id, err := NewWallet(c.cfg.WalletPath).Get(c.cfg.Identity)
	if err != nil {
		return nil, nil, fmt.Errorf("enrollment required: %w", err)
	}
	if c.cfg.MSPID != "" && id.MSPID != c.cfg.MSPID {
		return nil, nil, fmt.Errorf("identity %q belongs to %s, want %s", id.Label, id.MSPID, c.cfg.MSPID)
	}

	network, err := LoadNetwork(c.cfg.NetworkConfigPath)
	if err != nil {
		return nil, nil, err
	}
	if !network.AllowsChannel(c.cfg.Channel) {
		return nil, nil, fmt.Errorf("network %q does not serve channel %q", network.Name, c.cfg.Channel)
	}

	dial := c.dialer
	if dial == nil {
		if dial, err = lookupDriver(network.Driver); err != nil {
			return nil, nil, err
		}
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	gw, err := dial(dialCtx, network, id)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", network.Name, err)
	}

	contract, err := gw.Contract(c.cfg.Channel, c.cfg.Chaincode)
	if err != nil {
		if closeErr := gw.Close(); closeErr != nil {
			c.logger.Error("error closing gateway", "error", closeErr)
		}
		return nil, nil, fmt.Errorf("resolve chaincode %s/%s: %w", c.cfg.Channel, c.cfg.Chaincode, err)
	}
	return gw, contract, nil
}

// Stop releases the connection and returns the client to degraded mode.
// Waits for in-flight calls. Idempotent.
func (c *Client) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.gateway == nil {
		return nil
	}
	err := c.gateway.Close()
	c.gateway = nil
	c.contract = nil
	c.connected.Store(false)
	c.reason.Store("stopped")
	c.logger.Info("ledger gateway closed")
	if err != nil {
		return fmt.Errorf("close gateway: %w", err)
	}
	return nil
}

// Connected reports the last known connection state without a network round-trip.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// DegradedReason explains why the client is not connected; empty when connected.
func (c *Client) DegradedReason() string {
	s, _ := c.reason.Load().(string)
	return s
}

// CallTimeout is the default per-call deadline.
func (c *Client) CallTimeout() time.Duration {
	return c.cfg.CallTimeout
}

// Submit orders a transaction through the ledger.
func (c *Client) Submit(ctx context.Context, fn string, args ...string) Result {
	return c.invoke(ctx, fn, args, true)
}

// Query evaluates a read-only transaction.
func (c *Client) Query(ctx context.Context, fn string, args ...string) Result {
	return c.invoke(ctx, fn, args, false)
}

type timeoutKey struct{}

// WithTimeout returns a context that overrides the client's call timeout for
// calls made with it.
func WithTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, timeoutKey{}, d)
}

func (c *Client) timeoutFor(ctx context.Context) time.Duration {
	if d, ok := ctx.Value(timeoutKey{}).(time.Duration); ok && d > 0 {
		return d
	}
	return c.cfg.CallTimeout
}

type callResult struct {
	payload []byte
	err     error
}

func (c *Client) invoke(ctx context.Context, fn string, args []string, submit bool) Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.contract == nil {
		return failed(&Error{Code: ErrCodeNotInitialized, Function: fn, Err: ErrNotInitialized})
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeoutFor(ctx))
	defer cancel()

	// The contract runs in its own goroutine so a peer that ignores ctx
	// cannot hold the caller past its deadline.
	done := make(chan callResult, 1)
	contract := c.contract
	go func() {
		var r callResult
		if submit {
			r.payload, r.err = contract.SubmitTransaction(callCtx, fn, args...)
		} else {
			r.payload, r.err = contract.EvaluateTransaction(callCtx, fn, args...)
		}
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return c.fail(fn, classify(fn, r.err, callCtx.Err()))
		}
		return ok(r.payload)
	case <-callCtx.Done():
		return c.fail(fn, classify(fn, callCtx.Err(), callCtx.Err()))
	}
}

func (c *Client) fail(fn string, err *Error) Result {
	c.logger.Debug("ledger call failed", "function", fn, "code", err.Code, "error", err.Err)
	return failed(err)
}
