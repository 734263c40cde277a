package record

import (
	"fmt"
	"slices"

	"github.com/roach88/medledger/internal/digest"
)

// ChainError reports a previous-digest linkage that cannot be satisfied.
type ChainError struct {
	RecordID int64
	Reason   string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("record %d: chain broken: %s", e.RecordID, e.Reason)
}

// Precedes orders records within a subject's chain: event timestamp first,
// then id so records with equal timestamps still have a total order.
func Precedes(a, b *Record) bool {
	if !a.RecordedAt.Equal(b.RecordedAt) {
		return a.RecordedAt.Before(b.RecordedAt)
	}
	return a.ID < b.ID
}

// SortChain sorts records into chain order in place.
func SortChain(records []Record) {
	slices.SortStableFunc(records, func(a, b Record) int {
		switch {
		case Precedes(&a, &b):
			return -1
		case Precedes(&b, &a):
			return 1
		default:
			return 0
		}
	})
}

// ResolvePredecessor returns the previous digest r must link to, given every
// record of r's subject. Deleted records are skipped.
//
// Fails with *ChainError when the preceding record has no committed digest yet
// or when a later record is already committed (r would fork the chain).
// The caller must hold the subject's submission lock so the result stays valid.
func ResolvePredecessor(siblings []Record, r *Record) (string, error) {
	var pred *Record
	for i := range siblings {
		s := &siblings[i]
		if s.ID == r.ID || s.Deleted {
			continue
		}
		if Precedes(s, r) {
			if pred == nil || Precedes(pred, s) {
				pred = s
			}
			continue
		}
		if s.Committed {
			return "", &ChainError{
				RecordID: r.ID,
				Reason:   fmt.Sprintf("later record %d is already committed", s.ID),
			}
		}
	}

	if pred == nil {
		return digest.Sentinel, nil
	}
	if !pred.Committed || pred.Digest == "" {
		return "", &ChainError{
			RecordID: r.ID,
			Reason:   fmt.Sprintf("preceding record %d is not committed", pred.ID),
		}
	}
	return pred.Digest, nil
}

// Link is one checked step of a subject's chain.
type Link struct {
	RecordID int64  `json:"record_id"`
	Expected string `json:"expected_previous"`
	Actual   string `json:"actual_previous"`
	OK       bool   `json:"ok"`
	Reason   string `json:"reason,omitempty"`
}

// ChainReport is the outcome of VerifyChain.
type ChainReport struct {
	SubjectID int64   `json:"subject_id"`
	Intact    bool    `json:"intact"`
	Links     []Link  `json:"links"`
	Unlinked  []int64 `json:"unlinked,omitempty"`
}

// BrokenAt returns the first failing link, if any.
func (c ChainReport) BrokenAt() (Link, bool) {
	for _, l := range c.Links {
		if !l.OK {
			return l, true
		}
	}
	return Link{}, false
}

// VerifyChain checks the chain property over a subject's records:
// ordered by Precedes with deleted records skipped, every record carrying a
// digest must link to the digest of the linked record before it, the first
// to "0", and its own digest must match its content.
//
// Records without a digest (never submitted) are listed as Unlinked. An
// unlinked record followed by a linked one breaks the chain.
func VerifyChain(subjectID int64, records []Record) ChainReport {
	ordered := make([]Record, 0, len(records))
	// Committed entries stay on the ledger after a soft delete, so later
	// records may still link through them.
	deleted := make(map[string]string)
	for _, r := range records {
		switch {
		case !r.Deleted:
			ordered = append(ordered, r)
		case r.Committed && r.Digest != "":
			deleted[r.Digest] = r.LedgerPrevious()
		}
	}
	SortChain(ordered)

	report := ChainReport{SubjectID: subjectID, Intact: true, Links: []Link{}}
	expected := digest.Sentinel
	gap := int64(0)

	for i := range ordered {
		r := &ordered[i]
		if r.Digest == "" {
			report.Unlinked = append(report.Unlinked, r.ID)
			if gap == 0 {
				gap = r.ID
			}
			continue
		}

		link := Link{RecordID: r.ID, Expected: expected, Actual: r.LedgerPrevious(), OK: true}
		switch {
		case gap != 0:
			link.OK = false
			link.Reason = fmt.Sprintf("unlinked record %d precedes it", gap)
		case link.Actual != link.Expected && !linksThrough(deleted, link.Actual, link.Expected):
			link.OK = false
			link.Reason = "previous digest mismatch"
		case !r.VerifyDigest():
			link.OK = false
			link.Reason = "digest does not match content"
		}
		if !link.OK {
			report.Intact = false
		}
		report.Links = append(report.Links, link)
		expected = r.Digest
	}

	return report
}

// linksThrough reports whether from reaches to by following deleted
// records' previous digests.
func linksThrough(deleted map[string]string, from, to string) bool {
	for steps := 0; steps < len(deleted); steps++ {
		prev, ok := deleted[from]
		if !ok {
			return false
		}
		if prev == to {
			return true
		}
		from = prev
	}
	return false
}
