package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/ledger/devnet"
)

// DevnetSetup reports the files written by the devnet command.
type DevnetSetup struct {
	NetworkProfile string `json:"network_profile"`
	LedgerPath     string `json:"ledger_path"`
	Identity       string `json:"identity"`
	MSPID          string `json:"msp_id"`
}

func (d DevnetSetup) String() string {
	return fmt.Sprintf("devnet ready: profile %s, ledger %s, identity %s (%s)",
		d.NetworkProfile, d.LedgerPath, d.Identity, d.MSPID)
}

// NewDevnetCommand creates the devnet command.
func NewDevnetCommand(rootOpts *RootOptions) *cobra.Command {
	var ledgerFile string
	var force bool

	cmd := &cobra.Command{
		Use:   "devnet",
		Short: "Set up a local development ledger",
		Long: `Write a network profile for the built-in single-node development ledger,
create its database, and place a development identity in the wallet, all at
the paths named by the configuration. Existing files are kept unless --force.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.Config()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load config", err)
			}

			wallet := ledger.NewWallet(cfg.WalletPath)
			if !force {
				if _, err := os.Stat(cfg.NetworkConfigPath); err == nil {
					return NewExitError(ExitCommandError, fmt.Sprintf("%s exists (use --force)", cfg.NetworkConfigPath))
				}
				if wallet.Exists(cfg.Identity) {
					return NewExitError(ExitCommandError, fmt.Sprintf("identity %q exists (use --force)", cfg.Identity))
				}
			}

			profile := ledger.Network{
				Name:     "devnet",
				Driver:   devnet.DriverName,
				Path:     ledgerFile,
				Channels: []string{cfg.Channel},
			}
			data, err := yaml.Marshal(profile)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode network profile", err)
			}
			if dir := filepath.Dir(cfg.NetworkConfigPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return WrapExitError(ExitCommandError, "failed to create profile directory", err)
				}
			}
			if err := os.WriteFile(cfg.NetworkConfigPath, data, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write network profile", err)
			}

			// Resolve the ledger path the same way the client will.
			network, err := ledger.LoadNetwork(cfg.NetworkConfigPath)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read network profile", err)
			}
			l, err := devnet.Open(network.Path)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to create devnet ledger", err)
			}
			if err := l.Close(); err != nil {
				return WrapExitError(ExitCommandError, "failed to create devnet ledger", err)
			}

			if err := wallet.Put(ledger.Identity{
				Label: cfg.Identity,
				MSPID: cfg.MSPID,
				Credentials: ledger.Credentials{
					Certificate: "devnet",
					PrivateKey:  "devnet",
				},
			}); err != nil {
				return WrapExitError(ExitCommandError, "failed to write identity", err)
			}

			return rootOpts.formatter(cmd.OutOrStdout()).Success(DevnetSetup{
				NetworkProfile: cfg.NetworkConfigPath,
				LedgerPath:     network.Path,
				Identity:       cfg.Identity,
				MSPID:          cfg.MSPID,
			})
		},
	}

	cmd.Flags().StringVar(&ledgerFile, "ledger", "devnet-ledger.db", "ledger database, relative to the network profile")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing profile and identity")

	return cmd
}
