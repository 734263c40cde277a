package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/ledger/devnet"
	"github.com/roach88/medledger/internal/record"
	"github.com/roach88/medledger/internal/store"
	"github.com/roach88/medledger/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var t0 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

type fault int

const (
	faultConnection fault = iota + 1
	faultRejected
	// faultLandThenHang commits on the ledger, then never answers.
	faultLandThenHang
	// faultHang never reaches the ledger and never answers.
	faultHang
)

// faultyContract wraps the devnet contract and injects queued faults into
// createMedicalRecord submissions.
type faultyContract struct {
	inner ledger.Contract

	mu       sync.Mutex
	faults   []fault
	onSubmit func()
	creates  int
}

func (f *faultyContract) inject(faults ...fault) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, faults...)
}

func (f *faultyContract) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *faultyContract) next() (fault, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if len(f.faults) == 0 {
		return 0, f.onSubmit
	}
	next := f.faults[0]
	f.faults = f.faults[1:]
	return next, f.onSubmit
}

func (f *faultyContract) SubmitTransaction(ctx context.Context, name string, args ...string) ([]byte, error) {
	if name != ledger.FnCreateMedicalRecord {
		return f.inner.SubmitTransaction(ctx, name, args...)
	}

	flt, hook := f.next()
	if hook != nil {
		hook()
	}
	switch flt {
	case faultConnection:
		return nil, errors.New("connection reset by peer")
	case faultRejected:
		return nil, fmt.Errorf("%w: endorsement policy failure", ledger.ErrRejected)
	case faultLandThenHang:
		if _, err := f.inner.SubmitTransaction(ctx, name, args...); err != nil {
			return nil, err
		}
		<-ctx.Done()
		return nil, ctx.Err()
	case faultHang:
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return f.inner.SubmitTransaction(ctx, name, args...)
}

func (f *faultyContract) EvaluateTransaction(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f.inner.EvaluateTransaction(ctx, name, args...)
}

type faultyGateway struct {
	dev      *devnet.Ledger
	contract *faultyContract
}

func (g *faultyGateway) Contract(channel, chaincode string) (ledger.Contract, error) {
	inner, err := g.dev.Contract(channel, chaincode)
	if err != nil {
		return nil, err
	}
	g.contract.inner = inner
	return g.contract, nil
}

func (g *faultyGateway) Close() error {
	return g.dev.Close()
}

type harness struct {
	store    *store.Store
	client   *ledger.Client
	orch     *Orchestrator
	faults   *faultyContract
	registry *prometheus.Registry
	author   int64

	mu       sync.Mutex
	tampered []TamperEvent
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	noStart bool
	opts    []Option
}

// degraded leaves the ledger client unstarted.
func degraded() harnessOption {
	return func(c *harnessConfig) { c.noStart = true }
}

func withOptions(opts ...Option) harnessOption {
	return func(c *harnessConfig) { c.opts = append(c.opts, opts...) }
}

func newHarness(t *testing.T, hopts ...harnessOption) *harness {
	t.Helper()
	var hc harnessConfig
	for _, opt := range hopts {
		opt(&hc)
	}

	dir := t.TempDir()
	clock := testutil.NewDeterministicClock(t0.Add(24*time.Hour), time.Second)

	st, err := store.Open(filepath.Join(dir, "records.db"), store.WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	dev, err := devnet.Open(filepath.Join(dir, "ledger.db"),
		devnet.WithTxIDs(testutil.NewSequentialIDs("tx").Next),
		devnet.WithClock(clock.Now),
	)
	require.NoError(t, err)

	require.NoError(t, ledger.NewWallet(filepath.Join(dir, "wallet")).Put(ledger.Identity{Label: "admin", MSPID: "HospitalMSP"}))
	profile := filepath.Join(dir, "network-config.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("name: test\ndriver: devnet\npath: ledger.db\n"), 0o644))

	faults := &faultyContract{}
	gw := &faultyGateway{dev: dev, contract: faults}
	client := ledger.NewClient(ledger.Config{
		NetworkConfigPath: profile,
		WalletPath:        filepath.Join(dir, "wallet"),
		Channel:           "healthcare-channel",
		Chaincode:         "medical-records",
		MSPID:             "HospitalMSP",
		Identity:          "admin",
		CallTimeout:       200 * time.Millisecond,
	}, ledger.WithDialer(func(ctx context.Context, n ledger.Network, id ledger.Identity) (ledger.Gateway, error) {
		return gw, nil
	}))
	if hc.noStart {
		t.Cleanup(func() { dev.Close() })
	} else {
		require.NoError(t, client.Start(context.Background()))
		t.Cleanup(func() { client.Stop() })
	}

	h := &harness{
		store:    st,
		client:   client,
		faults:   faults,
		registry: prometheus.NewRegistry(),
	}
	opts := append([]Option{
		WithClock(clock.Now),
		WithRegisterer(h.registry),
		WithTamperHandler(func(e TamperEvent) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.tampered = append(h.tampered, e)
		}),
	}, hc.opts...)
	h.orch = New(st, client, opts...)

	author := &record.Author{Username: "house", FirstName: "Gregory", LastName: "House", Role: "DOCTOR"}
	require.NoError(t, st.CreateAuthor(context.Background(), author))
	h.author = author.ID
	return h
}

func (h *harness) tamperEvents() []TamperEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TamperEvent(nil), h.tampered...)
}

func (h *harness) subject(t *testing.T) int64 {
	t.Helper()
	s := &record.Subject{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1985, 12, 10, 0, 0, 0, 0, time.UTC),
		BloodType:   "O+",
		Gender:      "FEMALE",
	}
	require.NoError(t, h.store.CreateSubject(context.Background(), s))
	return s.ID
}

func (h *harness) record(t *testing.T, subjectID int64, at time.Time, diagnosis, treatment string) int64 {
	t.Helper()
	r := &record.Record{
		SubjectID:  subjectID,
		AuthorID:   h.author,
		Diagnosis:  diagnosis,
		Treatment:  treatment,
		Category:   record.CategoryDiagnosis,
		RecordedAt: at,
		CreatedBy:  "house",
	}
	require.NoError(t, h.store.CreateRecord(context.Background(), r))
	return r.ID
}

func (h *harness) simpleRecord(t *testing.T, subjectID int64, at time.Time) int64 {
	t.Helper()
	return h.record(t, subjectID, at, "Seasonal influenza", "Rest and fluids")
}

func (h *harness) load(t *testing.T, id int64) *record.Record {
	t.Helper()
	r, err := h.store.FindRecord(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (h *harness) submit(t *testing.T, id int64) *record.Record {
	t.Helper()
	r, err := h.orch.SubmitRecord(context.Background(), id)
	require.NoError(t, err)
	return r
}

func (h *harness) exec(t *testing.T, query string, args ...any) {
	t.Helper()
	_, err := h.store.DB().Exec(query, args...)
	require.NoError(t, err)
}
