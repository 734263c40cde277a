package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Network is a ledger network connection profile.
type Network struct {
	// Name identifies the network in logs.
	Name string `yaml:"name"`

	// Driver selects a registered gateway driver (e.g. "devnet").
	Driver string `yaml:"driver"`

	// Path is driver specific. Relative paths resolve against the profile's directory.
	Path string `yaml:"path"`

	// Channels lists the channels the profile may join. Empty means any.
	Channels []string `yaml:"channels,omitempty"`
}

// LoadNetwork reads a YAML connection profile.
func LoadNetwork(path string) (Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Network{}, fmt.Errorf("read network profile: %w", err)
	}

	var n Network
	if err := yaml.Unmarshal(data, &n); err != nil {
		return Network{}, fmt.Errorf("parse network profile %s: %w", path, err)
	}
	if n.Driver == "" {
		return Network{}, fmt.Errorf("network profile %s: driver is required", path)
	}
	if n.Path != "" && !filepath.IsAbs(n.Path) {
		n.Path = filepath.Join(filepath.Dir(path), n.Path)
	}
	return n, nil
}

// AllowsChannel reports whether the profile permits joining channel.
func (n Network) AllowsChannel(channel string) bool {
	return len(n.Channels) == 0 || slices.Contains(n.Channels, channel)
}
