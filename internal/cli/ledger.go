package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/medledger/internal/orchestrator"
	"github.com/roach88/medledger/internal/record"
)

// ledgerPayload is a chaincode response passed through unchanged.
type ledgerPayload json.RawMessage

// MarshalJSON embeds the payload as-is.
func (p ledgerPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// RenderText implements textRenderer by indenting the payload.
func (p ledgerPayload) RenderText(w io.Writer) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, p, "", "  "); err != nil {
		fmt.Fprintln(w, string(p))
		return
	}
	fmt.Fprintln(w, buf.String())
}

// NewAuditCommand creates the audit command.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "audit <record-id>",
		Short: "Show the ledger's audit trail for a record",
		Long: `Print the ledger's transaction history for a record: its creation and
every logged access, oldest first. The local record is not modified.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "record id")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := rootOpts.formatter(cmd.OutOrStdout())
			raw, err := a.orch.GetAuditTrail(ctx, id)
			if err != nil {
				return out.Fail("audit trail unavailable", err)
			}
			return out.Success(ledgerPayload(raw))
		},
	}
}

// AccessLogged is the result of log-access.
type AccessLogged struct {
	RecordID int64  `json:"record_id"`
	UserID   string `json:"user_id"`
	Action   string `json:"action"`
	TxID     string `json:"tx_id"`
}

func (a AccessLogged) String() string {
	return fmt.Sprintf("logged %s of record %d by %s (tx %s)", a.Action, a.RecordID, a.UserID, a.TxID)
}

// NewLogAccessCommand creates the log-access command.
func NewLogAccessCommand(rootOpts *RootOptions) *cobra.Command {
	var user, action string

	cmd := &cobra.Command{
		Use:   "log-access <record-id>",
		Short: "Append an access event to a record's audit trail",
		Long: `Record that a user read, updated or exported a record. The event is
written to the ledger only; the local record is not modified.

Example:
  medledger log-access 12 --user dr.house --action EXPORT`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "record id")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if user == "" {
				user = a.cfg.AccessUser
			}

			out := rootOpts.formatter(cmd.OutOrStdout())
			txID, err := a.orch.LogAccess(ctx, id, user, action)
			if err != nil {
				return out.Fail("access not logged", err)
			}
			return out.Success(AccessLogged{RecordID: id, UserID: user, Action: action, TxID: txID})
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user performing the access (default from config)")
	cmd.Flags().StringVar(&action, "action", orchestrator.ActionRead, "access action (READ, UPDATE, EXPORT)")

	return cmd
}

// NewPatientCommand creates the patient command.
func NewPatientCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "patient <subject-id>",
		Short:         "List a subject's records as held by the ledger",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			subjectID, err := parseID(args[0], "subject id")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := rootOpts.formatter(cmd.OutOrStdout())
			raw, err := a.orch.PatientLedgerRecords(ctx, subjectID)
			if err != nil {
				return out.Fail("ledger records unavailable", err)
			}
			return out.Success(ledgerPayload(raw))
		},
	}
}

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "stats",
		Short:         "Show ledger network statistics",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			out := rootOpts.formatter(cmd.OutOrStdout())
			raw, err := a.orch.NetworkStats(ctx)
			if err != nil {
				return out.Fail("network stats unavailable", err)
			}
			return out.Success(ledgerPayload(raw))
		},
	}
}

// StatusView summarizes the connection and the local store.
type StatusView struct {
	Connected      bool                 `json:"connected"`
	DegradedReason string               `json:"degraded_reason,omitempty"`
	Channel        string               `json:"channel"`
	Chaincode      string               `json:"chaincode"`
	Identity       string               `json:"identity"`
	Database       string               `json:"database"`
	Records        map[record.State]int `json:"records"`
}

// RenderText implements textRenderer.
func (s StatusView) RenderText(w io.Writer) {
	if s.Connected {
		fmt.Fprintf(w, "Ledger:    connected (%s/%s as %s)\n", s.Channel, s.Chaincode, s.Identity)
	} else {
		fmt.Fprintf(w, "Ledger:    degraded (%s)\n", s.DegradedReason)
	}
	fmt.Fprintf(w, "Database:  %s\n", s.Database)

	states := make([]record.State, 0, len(s.Records))
	for st := range s.Records {
		states = append(states, st)
	}
	slices.Sort(states)
	for _, st := range states {
		fmt.Fprintf(w, "  %-10s %d\n", st, s.Records[st])
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ledger connectivity and local record counts",
		Long: `Try to connect to the ledger and report whether the system is connected
or degraded, along with the number of local records in each state.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, rootOpts, true)
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := a.store.CountByState(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count records", err)
			}
			return rootOpts.formatter(cmd.OutOrStdout()).Success(StatusView{
				Connected:      a.orch.IsConnected(),
				DegradedReason: a.client.DegradedReason(),
				Channel:        a.cfg.Channel,
				Chaincode:      a.cfg.Chaincode,
				Identity:       a.cfg.Identity,
				Database:       a.cfg.DatabasePath,
				Records:        counts,
			})
		},
	}
}
