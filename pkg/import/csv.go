package importpkg

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// DefaultSource is stored on imported rows without a Source column value.
const DefaultSource = "csv_import"

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("missing required column")

// ErrNoHeader is returned when the input has no readable header row.
var ErrNoHeader = errors.New("CSV file has no header row")

// CSVImportService handles bulk import of leads from CSV
type CSVImportService struct {
	db  *database.Client
	log logger.Logger
	now func() time.Time
}

// NewCSVImportService creates a new CSV import service
func NewCSVImportService(db *database.Client, log logger.Logger) *CSVImportService {
	return &CSVImportService{db: db, log: log, now: time.Now}
}

// ImportResult holds the result of a CSV import operation
type ImportResult struct {
	TotalRows     int           `json:"total_rows"`
	ImportedCount int           `json:"imported_count"`
	SkippedCount  int           `json:"skipped_count"`
	Truncated     bool          `json:"truncated,omitempty"`
	Errors        []ImportError `json:"errors"`
	Duration      string        `json:"duration"`
}

// ImportError explains why a row was skipped.
type ImportError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// CSVConfig holds configuration for CSV import
type CSVConfig struct {
	MaxRows   int // 0 = unlimited
	BatchSize int // rows per transaction
}

// DefaultCSVConfig returns default configuration
func DefaultCSVConfig() CSVConfig {
	return CSVConfig{
		MaxRows:   10000,
		BatchSize: 100,
	}
}

// Columns are the recognised headers, matched case-insensitively.
var Columns = []string{"Name", "Email", "Phone", "Source", "Lead Score", "Notes"}

// RequiredColumns must be present in the header.
var RequiredColumns = []string{"name", "email"}

type row struct {
	num   int
	name  string
	email string
	phone string
	src   string
	score models.LeadScore
	notes string
}

// ImportFromCSV imports leads from r. Skipped rows are reported in the
// result; only unreadable input or a missing column fails the import.
func (s *CSVImportService) ImportFromCSV(ctx context.Context, r io.Reader, actorID int, config CSVConfig) (*ImportResult, error) {
	start := s.now()
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultCSVConfig().BatchSize
	}

	result := &ImportResult{Errors: []ImportError{}}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoHeader, err)
	}
	columns := headerIndex(headers)
	for _, name := range RequiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	seen := map[string]int{}
	batch := make([]row, 0, config.BatchSize)
	rowNum := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			result.TotalRows++
			result.skip(ImportError{Row: rowNum, Message: fmt.Sprintf("CSV read error: %v", err)})
			continue
		}
		if blank(record) {
			continue
		}
		result.TotalRows++

		// Rows past the limit are read and reported, never imported.
		if config.MaxRows > 0 && result.TotalRows > config.MaxRows {
			if !result.Truncated {
				s.log.Warn("csv import row limit reached", "max_rows", config.MaxRows)
			}
			result.Truncated = true
			result.skip(ImportError{Row: rowNum, Message: fmt.Sprintf("row limit of %d reached", config.MaxRows)})
			continue
		}

		parsed, rowErr := parseRow(record, columns, rowNum)
		if rowErr != nil {
			result.skip(*rowErr)
			continue
		}
		key := strings.ToLower(parsed.email)
		if first, dup := seen[key]; dup {
			result.skip(ImportError{Row: rowNum, Field: "email", Value: parsed.email,
				Message: fmt.Sprintf("duplicate email, already on row %d", first)})
			continue
		}
		seen[key] = rowNum

		batch = append(batch, parsed)
		if len(batch) >= config.BatchSize {
			s.flush(ctx, batch, actorID, result)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		s.flush(ctx, batch, actorID, result)
	}

	result.Duration = s.now().Sub(start).String()
	s.log.Info("csv import completed",
		"total_rows", result.TotalRows,
		"imported", result.ImportedCount,
		"skipped", result.SkippedCount,
		"duration", result.Duration,
	)
	return result, nil
}

// flush inserts a batch in one transaction. Rows whose email already exists
// are skipped; a storage failure skips the whole batch.
func (s *CSVImportService) flush(ctx context.Context, batch []row, actorID int, result *ImportResult) {
	now := s.now().UTC()
	var (
		imported int
		skipped  []ImportError
	)
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		imported, skipped = 0, nil
		for _, r := range batch {
			exists, err := leads.EmailExists(ctx, s.db, tx, r.email)
			if err != nil {
				return err
			}
			if exists {
				skipped = append(skipped, ImportError{Row: r.num, Field: "email", Value: r.email, Message: "email already exists"})
				continue
			}

			insert := s.db.Builder().Insert("leads").
				Columns("name", "email", "phone", "source", "lead_score", "status", "notes", "created_at", "updated_at").
				Values(r.name, r.email, r.phone, r.src, string(r.score), string(models.StatusActive), r.notes, now, now)
			id, err := s.db.InsertID(ctx, tx, insert)
			if err != nil {
				return fmt.Errorf("failed to insert row %d: %w", r.num, err)
			}
			if err := activity.Write(ctx, s.db, tx, activity.Entry{
				LeadID:       id,
				ActorID:      actorID,
				ActivityType: activity.TypeImport,
				Description:  fmt.Sprintf("Imported from CSV (row %d)", r.num),
			}, now); err != nil {
				return err
			}
			imported++
		}
		return nil
	})
	if err != nil {
		s.log.Error("csv import batch failed", "first_row", batch[0].num, "rows", len(batch), "error", err)
		for _, r := range batch {
			result.skip(ImportError{Row: r.num, Message: "batch could not be saved"})
		}
		return
	}

	result.ImportedCount += imported
	for _, e := range skipped {
		result.skip(e)
	}
}

func (r *ImportResult) skip(e ImportError) {
	r.SkippedCount++
	r.Errors = append(r.Errors, e)
}

func headerIndex(headers []string) map[string]int {
	idx := make(map[string]int, len(headers))
	for i, h := range headers {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, "_", " ")
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func blank(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func parseRow(record []string, columns map[string]int, rowNum int) (row, *ImportError) {
	field := func(name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	r := row{
		num:   rowNum,
		name:  field("name"),
		email: field("email"),
		phone: field("phone"),
		src:   field("source"),
		notes: field("notes"),
		score: models.ScoreCold,
	}
	if r.name == "" {
		return r, &ImportError{Row: rowNum, Field: "name", Message: "name is required"}
	}
	if r.email == "" {
		return r, &ImportError{Row: rowNum, Field: "email", Message: "email is required"}
	}
	if !leads.ValidEmail(r.email) {
		return r, &ImportError{Row: rowNum, Field: "email", Value: r.email, Message: "invalid email"}
	}
	if raw := field("lead score"); raw != "" {
		score, ok := models.ParseLeadScore(raw)
		if !ok {
			return r, &ImportError{Row: rowNum, Field: "lead_score", Value: raw, Message: "lead score must be HOT, WARM or COLD"}
		}
		r.score = score
	}
	if r.src == "" {
		r.src = DefaultSource
	}
	return r, nil
}
