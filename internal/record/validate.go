package record

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Content size bounds, in code points.
const (
	MinDiagnosisLen    = 5
	MaxDiagnosisLen    = 1000
	MinTreatmentLen    = 5
	MaxTreatmentLen    = 2000
	MaxPrescriptionLen = 1000
	MaxNotesLen        = 2000
)

var (
	bloodTypePattern = regexp.MustCompile(`^(A|B|AB|O)[+-]$`)
	genderPattern    = regexp.MustCompile(`^(MALE|FEMALE|OTHER)$`)
	phonePattern     = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
)

// ValidationError represents a validation error with field path and message.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every failed rule.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

// Err returns nil when there are no errors.
func (errs ValidationErrors) Err() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkLen(errs ValidationErrors, field, value string, min, max int) ValidationErrors {
	n := utf8.RuneCountInString(value)
	if min > 0 && strings.TrimSpace(value) == "" {
		return append(errs, ValidationError{Field: field, Message: "is required"})
	}
	if n < min || n > max {
		if min > 0 {
			return append(errs, ValidationError{
				Field:   field,
				Message: fmt.Sprintf("length %d outside %d..%d", n, min, max),
			})
		}
		return append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("length %d exceeds %d", n, max),
		})
	}
	return errs
}

// Validate checks the record's content and references.
// Returns all errors (not fail-fast).
func (r *Record) Validate() error {
	var errs ValidationErrors
	if r.SubjectID <= 0 {
		errs = append(errs, ValidationError{Field: "subject_id", Message: "is required"})
	}
	if r.AuthorID <= 0 {
		errs = append(errs, ValidationError{Field: "author_id", Message: "is required"})
	}
	errs = checkLen(errs, "diagnosis", r.Diagnosis, MinDiagnosisLen, MaxDiagnosisLen)
	errs = checkLen(errs, "treatment", r.Treatment, MinTreatmentLen, MaxTreatmentLen)
	errs = checkLen(errs, "prescription", r.Prescription, 0, MaxPrescriptionLen)
	errs = checkLen(errs, "notes", r.Notes, 0, MaxNotesLen)
	if r.RecordedAt.IsZero() {
		errs = append(errs, ValidationError{Field: "recorded_at", Message: "is required"})
	}
	if !ValidCategories[r.Category] {
		errs = append(errs, ValidationError{
			Field:   "category",
			Message: fmt.Sprintf("unknown category %q", r.Category),
		})
	}
	return errs.Err()
}

// Validate checks the subject's demographic fields against now.
func (s *Subject) Validate(now time.Time) error {
	var errs ValidationErrors
	errs = checkLen(errs, "first_name", s.FirstName, 2, 50)
	errs = checkLen(errs, "middle_name", s.MiddleName, 0, 50)
	errs = checkLen(errs, "last_name", s.LastName, 2, 50)
	errs = checkLen(errs, "address", s.Address, 0, 200)
	if s.DateOfBirth.IsZero() || !s.DateOfBirth.Before(now) {
		errs = append(errs, ValidationError{Field: "date_of_birth", Message: "must be in the past"})
	}
	if !bloodTypePattern.MatchString(s.BloodType) {
		errs = append(errs, ValidationError{Field: "blood_type", Message: fmt.Sprintf("invalid blood type %q", s.BloodType)})
	}
	if !genderPattern.MatchString(s.Gender) {
		errs = append(errs, ValidationError{Field: "gender", Message: fmt.Sprintf("invalid gender %q", s.Gender)})
	}
	if s.Email != "" {
		if _, err := mail.ParseAddress(s.Email); err != nil {
			errs = append(errs, ValidationError{Field: "email", Message: "invalid address"})
		}
	}
	if s.Phone != "" && !phonePattern.MatchString(s.Phone) {
		errs = append(errs, ValidationError{Field: "phone", Message: "invalid phone number"})
	}
	return errs.Err()
}
