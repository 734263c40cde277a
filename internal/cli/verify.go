package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/medledger/internal/orchestrator"
	"github.com/roach88/medledger/internal/record"
	"github.com/roach88/medledger/internal/store"
)

// VerifyOutcome is the verification result for one record.
type VerifyOutcome struct {
	RecordID int64        `json:"record_id"`
	Verified bool         `json:"verified"`
	Status   record.State `json:"status,omitempty"`
	Error    *CLIError    `json:"error,omitempty"`
}

// VerifyReport holds the outcomes of a verify run.
type VerifyReport struct {
	Records  []VerifyOutcome `json:"records"`
	Verified int             `json:"verified"`
	Failed   int             `json:"failed"`
}

// RenderText implements textRenderer.
func (r VerifyReport) RenderText(w io.Writer) {
	for _, o := range r.Records {
		switch {
		case o.Error != nil:
			fmt.Fprintf(w, "record %d: ERROR [%s] %s\n", o.RecordID, o.Error.Code, o.Error.Message)
		case o.Verified:
			fmt.Fprintf(w, "record %d: OK (%s)\n", o.RecordID, o.Status)
		default:
			fmt.Fprintf(w, "record %d: NOT VERIFIED (%s)\n", o.RecordID, o.Status)
		}
	}
	fmt.Fprintf(w, "%d verified, %d not verified\n", r.Verified, r.Failed)
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "verify [record-id...]",
		Short: "Compare records against the ledger",
		Long: `Recompute each record's digest and compare it with the ledger's copy.

A committed record whose content no longer matches is marked DIVERGED and
reported; it is never corrected automatically. Verification of a PENDING
record resolves an earlier timed out submission.

Exit codes:
  0 - Every record verified
  1 - At least one record did not verify or could not be checked
  2 - Command error

Examples:
  medledger verify 12 13
  medledger verify --all --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) > 0) {
				return NewExitError(ExitCommandError, "give record ids or --all, not both")
			}
			ids, err := parseIDs(args, "record id")
			if err != nil {
				return err
			}
			return runVerify(rootOpts, cmd, ids)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "verify every committed, pending or diverged record")

	return cmd
}

func runVerify(opts *RootOptions, cmd *cobra.Command, ids []int64) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(ids) == 0 {
		if ids, err = linkedRecordIDs(ctx, a.store); err != nil {
			return WrapExitError(ExitCommandError, "failed to list records", err)
		}
	}

	report := verifyAll(ctx, a.orch, a.store, ids)
	out := opts.formatter(cmd.OutOrStdout())
	if err := out.Success(report); err != nil {
		return err
	}
	if report.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d record(s) did not verify", report.Failed))
	}
	return nil
}

func verifyAll(ctx context.Context, orch *orchestrator.Orchestrator, st *store.Store, ids []int64) VerifyReport {
	report := VerifyReport{Records: make([]VerifyOutcome, 0, len(ids))}
	for _, id := range ids {
		o := VerifyOutcome{RecordID: id}
		ok, err := orch.VerifyRecord(ctx, id)
		if err != nil {
			o.Error = describe(err)
		}
		o.Verified = ok
		if r, ferr := st.FindRecord(ctx, id); ferr == nil {
			o.Status = r.Status()
		}
		if o.Verified {
			report.Verified++
		} else {
			report.Failed++
		}
		report.Records = append(report.Records, o)
	}
	return report
}

// linkedRecordIDs lists every non-deleted record that carries a digest.
func linkedRecordIDs(ctx context.Context, st *store.Store) ([]int64, error) {
	var ids []int64
	for _, state := range []record.State{record.StateCommitted, record.StatePending, record.StateDiverged} {
		records, err := st.FindByState(ctx, state)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			ids = append(ids, r.ID)
		}
	}
	return ids, nil
}

// ChainView wraps a chain report for text output.
type ChainView struct {
	record.ChainReport
}

// RenderText implements textRenderer.
func (c ChainView) RenderText(w io.Writer) {
	fmt.Fprintf(w, "Subject %d chain: ", c.SubjectID)
	if c.Intact {
		fmt.Fprintln(w, "INTACT")
	} else {
		fmt.Fprintln(w, "BROKEN")
	}
	for _, l := range c.Links {
		status := "ok"
		if !l.OK {
			status = "BROKEN: " + l.Reason
		}
		fmt.Fprintf(w, "  record %d  prev=%s  %s\n", l.RecordID, shortDigest(l.Actual), status)
	}
	for _, id := range c.Unlinked {
		fmt.Fprintf(w, "  record %d  not submitted\n", id)
	}
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

// NewChainCommand creates the chain command.
func NewChainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chain <subject-id>",
		Short: "Check a subject's digest chain locally",
		Long: `Walk a subject's records in chain order and check that every digest links
to its predecessor and still matches its content. No ledger call is made.

Exit codes:
  0 - Chain intact
  1 - Chain broken
  2 - Command error`,
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

			a, err := openApp(ctx, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			out := rootOpts.formatter(cmd.OutOrStdout())
			report, err := a.orch.VerifyChain(ctx, subjectID)
			if err != nil {
				return out.Fail("chain check failed", err)
			}
			if err := out.Success(ChainView{report}); err != nil {
				return err
			}
			if !report.Intact {
				return NewExitError(ExitFailure, fmt.Sprintf("chain of subject %d is broken", subjectID))
			}
			return nil
		},
	}
}
