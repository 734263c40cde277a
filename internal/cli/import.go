package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/roach88/medledger/internal/record"
	"github.com/roach88/medledger/internal/store"
)

// ImportFile is the YAML document accepted by the import command.
// Records refer to subjects by key and to authors by username.
type ImportFile struct {
	Authors  []ImportAuthor  `yaml:"authors"`
	Subjects []ImportSubject `yaml:"subjects"`
	Records  []ImportRecord  `yaml:"records"`
}

// ImportAuthor creates an author unless the username already exists.
type ImportAuthor struct {
	Username  string `yaml:"username"`
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
	Role      string `yaml:"role"`
}

// ImportSubject creates a subject.
type ImportSubject struct {
	Key         string `yaml:"key"`
	FirstName   string `yaml:"first_name"`
	MiddleName  string `yaml:"middle_name"`
	LastName    string `yaml:"last_name"`
	DateOfBirth string `yaml:"date_of_birth"`
	BloodType   string `yaml:"blood_type"`
	Gender      string `yaml:"gender"`
	Email       string `yaml:"email"`
	Phone       string `yaml:"phone"`
	Address     string `yaml:"address"`
}

// ImportRecord creates a LOCAL record.
type ImportRecord struct {
	Subject      string `yaml:"subject"`
	SubjectID    int64  `yaml:"subject_id"`
	Author       string `yaml:"author"`
	RecordedAt   string `yaml:"recorded_at"`
	Category     string `yaml:"category"`
	Diagnosis    string `yaml:"diagnosis"`
	Treatment    string `yaml:"treatment"`
	Prescription string `yaml:"prescription"`
	Notes        string `yaml:"notes"`
}

// ImportSummary lists what an import created.
type ImportSummary struct {
	Authors  map[string]int64 `json:"authors"`
	Subjects map[string]int64 `json:"subjects"`
	Records  []int64          `json:"records"`
}

func (s ImportSummary) String() string {
	return fmt.Sprintf("imported %d author(s), %d subject(s), %d record(s)",
		len(s.Authors), len(s.Subjects), len(s.Records))
}

// Layouts accepted for recorded_at; all are read as wall-clock time.
var recordedAtLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Load authors, subjects and records into the local store",
		Long: `Import a YAML document of authors, subjects and records. Everything is
validated before anything is written. Text is normalized to Unicode NFC so a
record's digest does not depend on how its input was encoded.

Imported records start LOCAL; commit them with "submit" or "batch".

Example file:
  authors:
    - {username: dr.house, first_name: Gregory, last_name: House, role: DOCTOR}
  subjects:
    - {key: jdoe, first_name: John, last_name: Doe, date_of_birth: 1980-05-17,
       blood_type: O+, gender: MALE}
  records:
    - subject: jdoe
      author: dr.house
      recorded_at: 2024-03-01T09:30:00
      category: diagnosis
      diagnosis: Fractured tibia
      treatment: Cast applied, 6 week follow-up`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readImportFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid import file", err)
			}

			ctx, cancel := commandContext(cmd)
			defer cancel()

			a, err := openApp(ctx, rootOpts, false)
			if err != nil {
				return err
			}
			defer a.Close()

			summary, err := importDocument(ctx, a.store, doc, time.Now())
			if err != nil {
				return WrapExitError(ExitFailure, "import failed", err)
			}
			return rootOpts.formatter(cmd.OutOrStdout()).Success(summary)
		},
	}

	return cmd
}

func readImportFile(path string) (*ImportFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc ImportFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &doc, nil
}

// nfc trims and NFC-normalizes free text.
func nfc(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

type plannedRecord struct {
	rec     record.Record
	subject string // key of a subject created by this import, or ""
	author  string
}

// importDocument validates the whole document, then writes it.
func importDocument(ctx context.Context, st *store.Store, doc *ImportFile, now time.Time) (ImportSummary, error) {
	var errs []error

	subjects := make([]record.Subject, len(doc.Subjects))
	keys := make(map[string]bool)
	for i, in := range doc.Subjects {
		key := strings.TrimSpace(in.Key)
		if key == "" || keys[key] {
			errs = append(errs, fmt.Errorf("subjects[%d]: key missing or duplicated", i))
		}
		keys[key] = true

		s := record.Subject{
			FirstName:  nfc(in.FirstName),
			MiddleName: nfc(in.MiddleName),
			LastName:   nfc(in.LastName),
			BloodType:  strings.ToUpper(strings.TrimSpace(in.BloodType)),
			Gender:     strings.ToUpper(strings.TrimSpace(in.Gender)),
			Email:      strings.TrimSpace(in.Email),
			Phone:      strings.TrimSpace(in.Phone),
			Address:    nfc(in.Address),
		}
		dob, err := time.Parse("2006-01-02", strings.TrimSpace(in.DateOfBirth))
		if err != nil {
			errs = append(errs, fmt.Errorf("subjects[%d]: date_of_birth: %w", i, err))
		}
		s.DateOfBirth = dob
		if err := s.Validate(now); err != nil {
			errs = append(errs, fmt.Errorf("subjects[%d]: %w", i, err))
		}
		subjects[i] = s
	}

	usernames := make(map[string]bool)
	for i, in := range doc.Authors {
		u := strings.TrimSpace(in.Username)
		if u == "" {
			errs = append(errs, fmt.Errorf("authors[%d]: username is required", i))
		}
		usernames[u] = true
	}

	planned := make([]plannedRecord, len(doc.Records))
	for i, in := range doc.Records {
		p := plannedRecord{subject: strings.TrimSpace(in.Subject), author: strings.TrimSpace(in.Author)}
		switch {
		case p.subject != "" && !keys[p.subject]:
			errs = append(errs, fmt.Errorf("records[%d]: unknown subject key %q", i, p.subject))
		case p.subject == "" && in.SubjectID <= 0:
			errs = append(errs, fmt.Errorf("records[%d]: subject or subject_id is required", i))
		}
		if p.author == "" {
			errs = append(errs, fmt.Errorf("records[%d]: author is required", i))
		}

		at, err := parseRecordedAt(in.RecordedAt)
		if err != nil {
			errs = append(errs, fmt.Errorf("records[%d]: %w", i, err))
		}
		category, err := record.ParseCategory(strings.TrimSpace(in.Category))
		if err != nil {
			errs = append(errs, fmt.Errorf("records[%d]: %w", i, err))
		}

		p.rec = record.Record{
			SubjectID:    in.SubjectID,
			Diagnosis:    nfc(in.Diagnosis),
			Treatment:    nfc(in.Treatment),
			Prescription: nfc(in.Prescription),
			Notes:        nfc(in.Notes),
			Category:     category,
			RecordedAt:   at,
			CreatedBy:    p.author,
		}

		// References are resolved at write time; validate content now.
		probe := p.rec
		probe.SubjectID, probe.AuthorID = 1, 1
		if category == "" {
			probe.Category = record.CategoryGeneral
		}
		if err := probe.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("records[%d]: %w", i, err))
		}
		planned[i] = p
	}
	if len(errs) > 0 {
		return ImportSummary{}, errors.Join(errs...)
	}

	summary := ImportSummary{
		Authors:  make(map[string]int64),
		Subjects: make(map[string]int64),
		Records:  []int64{},
	}

	for _, in := range doc.Authors {
		id, err := ensureAuthor(ctx, st, record.Author{
			Username:  strings.TrimSpace(in.Username),
			FirstName: nfc(in.FirstName),
			LastName:  nfc(in.LastName),
			Role:      strings.ToUpper(strings.TrimSpace(in.Role)),
		})
		if err != nil {
			return summary, err
		}
		summary.Authors[strings.TrimSpace(in.Username)] = id
	}

	for i := range subjects {
		if err := st.CreateSubject(ctx, &subjects[i]); err != nil {
			return summary, err
		}
		summary.Subjects[strings.TrimSpace(doc.Subjects[i].Key)] = subjects[i].ID
	}

	for i := range planned {
		p := &planned[i]
		if p.subject != "" {
			p.rec.SubjectID = summary.Subjects[p.subject]
		} else if _, err := st.FindSubject(ctx, p.rec.SubjectID); err != nil {
			return summary, fmt.Errorf("records[%d]: subject %d: %w", i, p.rec.SubjectID, err)
		}

		authorID, ok := summary.Authors[p.author]
		if !ok {
			a, err := st.FindAuthorByUsername(ctx, p.author)
			if err != nil {
				return summary, fmt.Errorf("records[%d]: author %q: %w", i, p.author, err)
			}
			authorID = a.ID
			summary.Authors[p.author] = authorID
		}
		p.rec.AuthorID = authorID

		if err := st.CreateRecord(ctx, &p.rec); err != nil {
			return summary, fmt.Errorf("records[%d]: %w", i, err)
		}
		summary.Records = append(summary.Records, p.rec.ID)
	}

	return summary, nil
}

func ensureAuthor(ctx context.Context, st *store.Store, a record.Author) (int64, error) {
	existing, err := st.FindAuthorByUsername(ctx, a.Username)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}
	if err := st.CreateAuthor(ctx, &a); err != nil {
		return 0, err
	}
	return a.ID, nil
}

func parseRecordedAt(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.New("recorded_at is required")
	}
	for _, layout := range recordedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("recorded_at %q: want YYYY-MM-DDTHH:MM:SS", s)
}
