package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/medledger/internal/record"
)

// RecordView is the printable form of a record with its display status.
type RecordView struct {
	*record.Record
	DisplayStatus record.State `json:"status"`
	SubjectName   string       `json:"subject_name,omitempty"`
	AuthorName    string       `json:"author_name,omitempty"`
}

func newRecordView(r *record.Record) RecordView {
	return RecordView{Record: r, DisplayStatus: r.Status()}
}

// RenderText implements textRenderer.
func (v RecordView) RenderText(w io.Writer) {
	fmt.Fprintf(w, "Record %d\n", v.ID)
	if v.SubjectName != "" {
		fmt.Fprintf(w, "  Subject:      %s (%d)\n", v.SubjectName, v.SubjectID)
	} else {
		fmt.Fprintf(w, "  Subject:      %d\n", v.SubjectID)
	}
	if v.AuthorName != "" {
		fmt.Fprintf(w, "  Author:       %s\n", v.AuthorName)
	}
	fmt.Fprintf(w, "  Recorded:     %s\n", v.RecordedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Category:     %s\n", v.Category)
	fmt.Fprintf(w, "  Diagnosis:    %s\n", v.Diagnosis)
	fmt.Fprintf(w, "  Treatment:    %s\n", v.Treatment)
	if v.Prescription != "" {
		fmt.Fprintf(w, "  Prescription: %s\n", v.Prescription)
	}
	if v.Notes != "" {
		fmt.Fprintf(w, "  Notes:        %s\n", v.Notes)
	}
	fmt.Fprintf(w, "  Status:       %s\n", v.DisplayStatus)
	if v.Digest != "" {
		fmt.Fprintf(w, "  Digest:       %s\n", v.Digest)
		fmt.Fprintf(w, "  Previous:     %s\n", v.LedgerPrevious())
	}
	if v.TxID != "" {
		fmt.Fprintf(w, "  Transaction:  %s\n", v.TxID)
	}
	if v.CommittedAt != nil {
		fmt.Fprintf(w, "  Committed at: %s\n", v.CommittedAt.Format(time.RFC3339))
	}
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit <record-id>",
		Short: "Commit one record to the ledger",
		Long: `Compute the record's digest, link it to the subject's chain head and
commit it to the ledger.

A timed out submission leaves the record PENDING; submitting it again first
asks the ledger whether the earlier attempt landed, so it is never committed
twice.

Exit codes:
  0 - Record committed
  1 - Submission refused or failed (see error code; retryable errors say so)
  2 - Command error`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "record id")
			if err != nil {
				return err
			}
			return runSubmit(rootOpts, cmd, id, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "ledger call timeout (default from config)")

	return cmd
}

func runSubmit(opts *RootOptions, cmd *cobra.Command, id int64, timeout time.Duration) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	a, err := openApp(ctx, opts, true)
	if err != nil {
		return err
	}
	defer a.Close()

	out := opts.formatter(cmd.OutOrStdout())
	r, err := a.orch.SubmitRecord(withCallTimeout(ctx, timeout), id)
	if err != nil {
		return out.Fail("submission failed", err)
	}
	return out.Success(newRecordView(r))
}

// NewResyncCommand creates the resync command.
func NewResyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resync <record-id>",
		Short: "Adopt the ledger's linkage for a record",
		Long: `Overwrite the record's local digest and transaction id with the ledger's
copy and mark it COMMITTED. Content is not repaired: a record whose content
was altered fails its next verification again.`,
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
			r, err := a.orch.ResyncRecord(ctx, id)
			if err != nil {
				return out.Fail("resync failed", err)
			}
			return out.Success(newRecordView(r))
		},
	}
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	var user string
	var offline bool

	cmd := &cobra.Command{
		Use:   "show <record-id>",
		Short: "Display a record and log the read to the ledger",
		Long: `Display a record. The read is logged to the ledger's access trail as the
configured access user (or --user); a ledger failure does not prevent the
read. Use --offline to skip the ledger entirely.`,
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

			a, err := openApp(ctx, rootOpts, !offline)
			if err != nil {
				return err
			}
			defer a.Close()

			if user == "" {
				user = a.cfg.AccessUser
			}

			out := rootOpts.formatter(cmd.OutOrStdout())
			var r *record.Record
			if offline {
				r, err = a.store.FindRecord(ctx, id)
			} else {
				r, err = a.orch.ReadRecord(ctx, id, user)
			}
			if err != nil {
				return out.Fail("read failed", err)
			}

			view := newRecordView(r)
			if s, err := a.store.FindSubject(ctx, r.SubjectID); err == nil {
				view.SubjectName = record.SubjectName(s)
			}
			if au, err := a.store.FindAuthor(ctx, r.AuthorID); err == nil {
				view.AuthorName = record.AuthorName(au)
			}
			return out.Success(view)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "user recorded in the access trail (default from config)")
	cmd.Flags().BoolVar(&offline, "offline", false, "read from the local store without logging access")

	return cmd
}

// parseID parses a positive integer identifier argument.
func parseID(s, what string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, NewExitError(ExitCommandError, fmt.Sprintf("invalid %s %q", what, s))
	}
	return id, nil
}

func parseIDs(args []string, what string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseID(arg, what)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
