package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Sentinel is the previous digest of the first record in a subject's chain.
const Sentinel = "0"

// Size is the length of a rendered digest in hex characters.
const Size = sha256.Size * 2

// Fields are the record values covered by the digest.
// Notes, category and audit fields are intentionally not part of it.
type Fields struct {
	SubjectID      int64
	RecordedAt     time.Time
	Diagnosis      string
	Treatment      string
	Prescription   string
	PreviousDigest string
}

// Canonical returns the exact pre-image that Compute hashes.
// Exposed so any party holding the record fields can reverify independently.
func Canonical(f Fields) string {
	prev := f.PreviousDigest
	if prev == "" {
		prev = Sentinel
	}
	return fmt.Sprintf("%d|%s|%s|%s|%s|%s",
		f.SubjectID,
		FormatTimestamp(f.RecordedAt),
		f.Diagnosis,
		f.Treatment,
		f.Prescription,
		prev,
	)
}

// Compute returns the lowercase hex SHA-256 of the canonical pre-image.
// Deterministic: identical fields always produce the identical digest.
func Compute(f Fields) string {
	sum := sha256.Sum256([]byte(Canonical(f)))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the digest of f and compares it with stored.
// An empty stored digest never verifies.
func Verify(stored string, f Fields) bool {
	if stored == "" {
		return false
	}
	return stored == Compute(f)
}

// Valid reports whether s has the shape of a digest: 64 lowercase hex chars.
func Valid(s string) bool {
	if len(s) != Size {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
