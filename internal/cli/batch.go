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

// BatchFailureView is one failed batch item.
type BatchFailureView struct {
	RecordID int64     `json:"record_id"`
	Error    *CLIError `json:"error"`
}

// BatchView itemizes a batch submission.
type BatchView struct {
	Submitted int                `json:"submitted"`
	Succeeded []int64            `json:"succeeded"`
	Failed    []BatchFailureView `json:"failed"`
}

func newBatchView(n int, res orchestrator.BatchResult) BatchView {
	v := BatchView{
		Submitted: n,
		Succeeded: res.Succeeded,
		Failed:    make([]BatchFailureView, 0, len(res.Failed)),
	}
	if v.Succeeded == nil {
		v.Succeeded = []int64{}
	}
	for _, f := range res.Failed {
		v.Failed = append(v.Failed, BatchFailureView{RecordID: f.RecordID, Error: describe(f.Err)})
	}
	return v
}

// RenderText implements textRenderer.
func (v BatchView) RenderText(w io.Writer) {
	fmt.Fprintf(w, "%d of %d record(s) committed\n", len(v.Succeeded), v.Submitted)
	for _, f := range v.Failed {
		retry := ""
		if f.Error.Retryable {
			retry = " (retryable)"
		}
		fmt.Fprintf(w, "  record %d: [%s] %s%s\n", f.RecordID, f.Error.Code, f.Error.Message, retry)
	}
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	var pending bool

	cmd := &cobra.Command{
		Use:   "batch [record-id...]",
		Short: "Commit many records, reporting each outcome",
		Long: `Submit several records. Records of different subjects are committed in
parallel; records of one subject go in chain order. One failure never aborts
the rest: every record is reported as committed or failed.

With --pending, every LOCAL or PENDING record is submitted.

Exit codes:
  0 - Every record committed
  1 - At least one record failed
  2 - Command error`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pending == (len(args) > 0) {
				return NewExitError(ExitCommandError, "give record ids or --pending, not both")
			}
			ids, err := parseIDs(args, "record id")
			if err != nil {
				return err
			}
			return runBatch(rootOpts, cmd, ids)
		},
	}

	cmd.Flags().BoolVar(&pending, "pending", false, "submit every record not yet committed")

	return cmd
}

func runBatch(opts *RootOptions, cmd *cobra.Command, ids []int64) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if len(ids) == 0 {
		if ids, err = unsubmittedRecordIDs(ctx, a.store); err != nil {
			return WrapExitError(ExitCommandError, "failed to list records", err)
		}
	}

	res := a.orch.BatchSubmit(ctx, ids)
	out := opts.formatter(cmd.OutOrStdout())
	if err := out.Success(newBatchView(len(ids), res)); err != nil {
		return err
	}
	if len(res.Failed) > 0 {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d record(s) failed", len(res.Failed)), res.Err())
	}
	return nil
}

func unsubmittedRecordIDs(ctx context.Context, st *store.Store) ([]int64, error) {
	var ids []int64
	for _, state := range []record.State{record.StateLocal, record.StatePending} {
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
