package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Transaction function names exposed by the medical records chaincode.
const (
	FnCreateMedicalRecord = "createMedicalRecord"
	FnQueryMedicalRecord  = "queryMedicalRecord"
	FnGetRecordHistory    = "getRecordHistory"
	FnLogAccess           = "logAccess"
	FnGetPatientRecords   = "getPatientRecords"
	FnGetStats            = "getStats"
)

// Contract is a chaincode endpoint on an established gateway connection.
//
// Implementations must be safe for concurrent use, honor ctx cancellation,
// and wrap ErrRejected / ErrNotFound for deterministic failures so the
// Client can classify them.
type Contract interface {
	// SubmitTransaction orders and commits a transaction, returning its payload.
	SubmitTransaction(ctx context.Context, name string, args ...string) ([]byte, error)

	// EvaluateTransaction runs a read-only query against ledger state.
	EvaluateTransaction(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Gateway is a connection to a ledger network.
type Gateway interface {
	// Contract resolves the chaincode on a channel.
	Contract(channel, chaincode string) (Contract, error)

	// Close releases the connection. Must be idempotent.
	Close() error
}

// Dialer opens a Gateway for the given network profile and identity.
type Dialer func(ctx context.Context, network Network, id Identity) (Gateway, error)

var (
	driversMu sync.RWMutex
	drivers   = make(map[string]Dialer)
)

// Register makes a gateway driver available by name, for use in network
// profiles. Panics on duplicate or nil registration.
func Register(name string, d Dialer) {
	driversMu.Lock()
	defer driversMu.Unlock()
	if d == nil {
		panic("ledger: Register dialer is nil")
	}
	if _, dup := drivers[name]; dup {
		panic("ledger: Register called twice for driver " + name)
	}
	drivers[name] = d
}

// Drivers returns the registered driver names, sorted.
func Drivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupDriver(name string) (Dialer, error) {
	driversMu.RLock()
	d, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ledger driver %q (registered: %v)", name, Drivers())
	}
	return d, nil
}
