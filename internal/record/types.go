package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/medledger/internal/digest"
)

// Category classifies the clinical event a record describes.
type Category string

const (
	CategoryGeneral      Category = "GENERAL"
	CategoryDiagnosis    Category = "DIAGNOSIS"
	CategoryPrescription Category = "PRESCRIPTION"
	CategoryLabResult    Category = "LAB_RESULT"
	CategorySurgery      Category = "SURGERY"
	CategoryConsultation Category = "CONSULTATION"
	CategoryVaccination  Category = "VACCINATION"
	CategoryEmergency    Category = "EMERGENCY"
)

// ValidCategories defines the fixed category enumeration.
var ValidCategories = map[Category]bool{
	CategoryGeneral:      true,
	CategoryDiagnosis:    true,
	CategoryPrescription: true,
	CategoryLabResult:    true,
	CategorySurgery:      true,
	CategoryConsultation: true,
	CategoryVaccination:  true,
	CategoryEmergency:    true,
}

// ParseCategory accepts the enumeration names case-insensitively, with either
// '-' or '_' as the word separator ("lab-result" == "LAB_RESULT").
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryGeneral, nil
	}
	c := Category(strings.ToUpper(strings.ReplaceAll(s, "-", "_")))
	if !ValidCategories[c] {
		return "", fmt.Errorf("unknown record category %q", s)
	}
	return c, nil
}

// Record is one clinical event for a subject.
// Once committed its covered content and digest are immutable.
type Record struct {
	ID           int64    `json:"id"`
	SubjectID    int64    `json:"subject_id"`
	AuthorID     int64    `json:"author_id"`
	Diagnosis    string   `json:"diagnosis"`
	Treatment    string   `json:"treatment"`
	Prescription string   `json:"prescription,omitempty"`
	Notes        string   `json:"notes,omitempty"`
	Category     Category `json:"category"`

	// RecordedAt is the event timestamp; it orders the subject's chain.
	RecordedAt time.Time `json:"recorded_at"`

	// Ledger linkage.
	State          State      `json:"state"`
	Digest         string     `json:"digest,omitempty"`
	PreviousDigest string     `json:"previous_digest,omitempty"`
	TxID           string     `json:"tx_id,omitempty"`
	Committed      bool       `json:"committed"`
	CommittedAt    *time.Time `json:"committed_at,omitempty"`

	// Audit.
	CreatedBy  string    `json:"created_by,omitempty"`
	ModifiedBy string    `json:"modified_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Deleted    bool      `json:"deleted"`
	Version    int64     `json:"version"`
}

// Fields returns the digest-covered values using previous as the chain link.
func (r *Record) Fields(previous string) digest.Fields {
	return digest.Fields{
		SubjectID:      r.SubjectID,
		RecordedAt:     r.RecordedAt,
		Diagnosis:      r.Diagnosis,
		Treatment:      r.Treatment,
		Prescription:   r.Prescription,
		PreviousDigest: previous,
	}
}

// ComputeDigest recomputes the digest from current content and the stored
// previous digest.
func (r *Record) ComputeDigest() string {
	return digest.Compute(r.Fields(r.PreviousDigest))
}

// VerifyDigest reports whether the stored digest still matches the content.
// False when no digest has been computed yet.
func (r *Record) VerifyDigest() bool {
	return digest.Verify(r.Digest, r.Fields(r.PreviousDigest))
}

// LedgerPrevious returns the previous digest as sent to the ledger.
func (r *Record) LedgerPrevious() string {
	if r.PreviousDigest == "" {
		return digest.Sentinel
	}
	return r.PreviousDigest
}

// Subject is a patient. It exclusively owns its records.
type Subject struct {
	ID          int64     `json:"id"`
	FirstName   string    `json:"first_name"`
	MiddleName  string    `json:"middle_name,omitempty"`
	LastName    string    `json:"last_name"`
	DateOfBirth time.Time `json:"date_of_birth"`
	BloodType   string    `json:"blood_type"`
	Gender      string    `json:"gender"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// FullName joins the name parts, collapsing missing middle names.
func (s *Subject) FullName() string {
	return strings.Join(strings.Fields(s.FirstName+" "+s.MiddleName+" "+s.LastName), " ")
}

// Age returns completed years between the date of birth and now.
func (s *Subject) Age(now time.Time) int {
	years := now.Year() - s.DateOfBirth.Year()
	if now.Month() < s.DateOfBirth.Month() ||
		(now.Month() == s.DateOfBirth.Month() && now.Day() < s.DateOfBirth.Day()) {
		years--
	}
	return years
}

// Author is the clinician or user a record is attributed to.
type Author struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// FullName returns "First Last", or the username when both are empty.
func (a *Author) FullName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// SubjectName returns the subject's full name, or "Unknown" for nil.
func SubjectName(s *Subject) string {
	if s == nil {
		return "Unknown"
	}
	return s.FullName()
}

// AuthorName returns the author's full name, or "Unknown" for nil.
func AuthorName(a *Author) string {
	if a == nil {
		return "Unknown"
	}
	return a.FullName()
}
