package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/medledger/internal/ledger"
	"github.com/roach88/medledger/internal/record"
)

// BatchFailure is one failed item of a batch.
type BatchFailure struct {
	RecordID int64
	Err      error
}

// BatchResult itemizes a batch. Both lists follow input order.
type BatchResult struct {
	Succeeded []int64
	Failed    []BatchFailure
}

// Err joins every item failure, or returns nil when all succeeded.
func (b BatchResult) Err() error {
	if len(b.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(b.Failed))
	for i, f := range b.Failed {
		errs[i] = fmt.Errorf("record %d: %w", f.RecordID, f.Err)
	}
	return errors.Join(errs...)
}

type batchItem struct {
	idx int
	rec *record.Record
}

// BatchSubmit submits every record, continuing past failures.
//
// Records are grouped by subject. A subject's records are submitted one after
// another in chain order; different subjects run concurrently up to the batch
// concurrency. Nothing already committed is rolled back.
//
// Cancelling ctx stops items that have not been dispatched yet; they are
// reported as INTERRUPTED. A dispatched item runs to completion on a context
// detached from the caller's cancellation. Duplicate ids are submitted once.
func (o *Orchestrator) BatchSubmit(ctx context.Context, ids []int64) BatchResult {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	errs := make([]error, len(unique))
	var order []int64
	groups := make(map[int64][]batchItem)
	for i, id := range unique {
		if err := ctx.Err(); err != nil {
			errs[i] = interrupted(id, err)
			continue
		}
		r, err := o.load(ctx, id)
		if err != nil {
			errs[i] = err
			continue
		}
		if _, ok := groups[r.SubjectID]; !ok {
			order = append(order, r.SubjectID)
		}
		groups[r.SubjectID] = append(groups[r.SubjectID], batchItem{idx: i, rec: r})
	}

	var g errgroup.Group
	g.SetLimit(o.batchN)
	for _, subjectID := range order {
		items := groups[subjectID]
		slices.SortStableFunc(items, func(a, b batchItem) int {
			switch {
			case record.Precedes(a.rec, b.rec):
				return -1
			case record.Precedes(b.rec, a.rec):
				return 1
			default:
				return 0
			}
		})

		g.Go(func() error {
			for _, it := range items {
				if err := ctx.Err(); err != nil {
					errs[it.idx] = interrupted(it.rec.ID, err)
					continue
				}
				_, errs[it.idx] = o.SubmitRecord(context.WithoutCancel(ctx), it.rec.ID)
			}
			return nil
		})
	}
	_ = g.Wait()

	var result BatchResult
	for i, id := range unique {
		if errs[i] == nil {
			result.Succeeded = append(result.Succeeded, id)
			o.metrics.batchItems.WithLabelValues("succeeded").Inc()
			continue
		}
		result.Failed = append(result.Failed, BatchFailure{RecordID: id, Err: errs[i]})
		o.metrics.batchItems.WithLabelValues("failed").Inc()
	}

	o.logger.Info("batch submitted",
		"records", len(unique),
		"subjects", len(order),
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
	)
	return result
}

func interrupted(id int64, cause error) error {
	return newError(ErrCodeLedger, id,
		&ledger.Error{Code: ledger.ErrCodeInterrupted, Function: ledger.FnCreateMedicalRecord, Err: cause},
		"batch cancelled before dispatch")
}
