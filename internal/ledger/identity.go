package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrIdentityNotFound is returned when the wallet holds no identity by that name.
var ErrIdentityNotFound = errors.New("identity not found in wallet")

// Identity is an enrolled X.509 identity as stored in a filesystem wallet.
type Identity struct {
	Label       string      `json:"-"`
	Version     int         `json:"version"`
	MSPID       string      `json:"mspId"`
	Type        string      `json:"type"`
	Credentials Credentials `json:"credentials"`
}

// Credentials holds the PEM material of an identity.
type Credentials struct {
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
}

// Wallet is a directory of "<label>.id" identity files.
type Wallet struct {
	dir string
}

// NewWallet returns a wallet rooted at dir. The directory need not exist yet.
func NewWallet(dir string) *Wallet {
	return &Wallet{dir: dir}
}

func (w *Wallet) path(label string) string {
	return filepath.Join(w.dir, label+".id")
}

// Get loads the identity stored under label.
func (w *Wallet) Get(label string) (Identity, error) {
	data, err := os.ReadFile(w.path(label))
	if errors.Is(err, os.ErrNotExist) {
		return Identity{}, fmt.Errorf("%w: %q in %s", ErrIdentityNotFound, label, w.dir)
	}
	if err != nil {
		return Identity{}, fmt.Errorf("read identity %q: %w", label, err)
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return Identity{}, fmt.Errorf("parse identity %q: %w", label, err)
	}
	if id.MSPID == "" {
		return Identity{}, fmt.Errorf("identity %q: missing mspId", label)
	}
	id.Label = label
	return id, nil
}

// Exists reports whether an identity file is present for label.
func (w *Wallet) Exists(label string) bool {
	_, err := os.Stat(w.path(label))
	return err == nil
}

// Put writes id under its label, creating the wallet directory if needed.
// Identity files hold private keys and are written 0600.
func (w *Wallet) Put(id Identity) error {
	if id.Label == "" {
		return errors.New("put identity: empty label")
	}
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("create wallet: %w", err)
	}
	if id.Version == 0 {
		id.Version = 1
	}
	if id.Type == "" {
		id.Type = "X.509"
	}
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := os.WriteFile(w.path(id.Label), data, 0o600); err != nil {
		return fmt.Errorf("write identity: %w", err)
	}
	return nil
}
