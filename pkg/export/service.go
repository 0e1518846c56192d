// Package export writes filtered lead lists as CSV or Excel files.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/xuri/excelize/v2"
)

// Format is the output format of an export.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
)

// MaxRows caps the number of leads in one export.
const MaxRows = 10000

// Header is the column row shared by both formats.
var Header = []string{
	"ID", "Name", "Email", "Phone", "Source", "Lead Score", "Status",
	"Assigned To", "Referral Code", "Follow-up Date", "Notes", "Created At",
}

const (
	createdLayout = "2006-01-02 15:04:05"
	sheetName     = "Leads"
)

// Result describes a written export.
type Result struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Rows        int    `json:"rows"`
	Truncated   bool   `json:"truncated,omitempty"`
	ArchiveKey  string `json:"archive_key,omitempty"`
}

// Service handles export business logic
type Service struct {
	db       *database.Client
	archiver Archiver
	log      logger.Logger
	now      func() time.Time
	maxRows  int
}

// NewService creates a new export service. archiver may be nil.
func NewService(db *database.Client, archiver Archiver, log logger.Logger) *Service {
	return &Service{db: db, archiver: archiver, log: log, now: time.Now, maxRows: MaxRows}
}

// ParseFormat accepts csv, excel and xlsx.
func ParseFormat(s string) (Format, bool) {
	switch s {
	case "", "csv":
		return FormatCSV, true
	case "excel", "xlsx":
		return FormatExcel, true
	}
	return "", false
}

// Leads loads the leads matching f, newest first, ignoring paging. At most
// MaxRows leads are returned.
func (s *Service) Leads(ctx context.Context, f leads.Filter) ([]models.Lead, error) {
	list, _, err := s.load(ctx, f)
	return list, err
}

// load reads one row past the cap to tell a full result from a cut one.
func (s *Service) load(ctx context.Context, f leads.Filter) ([]models.Lead, bool, error) {
	if err := f.Validate(); err != nil {
		return nil, false, err
	}
	sel, l := leads.Select(s.db.Builder())
	if preds := f.Predicates(l); len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	query, args := sel.
		OrderBy(entsql.Desc(l.C("created_at")), entsql.Desc(l.C("id"))).
		Limit(s.maxRows + 1).
		Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load leads: %w", err)
	}
	list, err := leads.ScanRows(rows)
	if err != nil {
		return nil, false, err
	}
	if len(list) > s.maxRows {
		s.log.Warn("export truncated", "max_rows", s.maxRows)
		return list[:s.maxRows], true, nil
	}
	return list, false, nil
}

// Export writes the leads matching f to w and archives a copy when an
// archiver is configured. Archive failures are logged, not returned.
func (s *Service) Export(ctx context.Context, w io.Writer, format Format, f leads.Filter) (*Result, error) {
	list, truncated, err := s.load(ctx, f)
	if err != nil {
		return nil, err
	}

	stamp := s.now().UTC().Format("20060102-150405")
	res := &Result{Rows: len(list), Truncated: truncated}

	var buf bytes.Buffer
	switch format {
	case FormatExcel:
		res.Filename = "leads-" + stamp + ".xlsx"
		res.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
		err = writeExcel(&buf, list)
	default:
		res.Filename = "leads-" + stamp + ".csv"
		res.ContentType = "text/csv"
		err = writeCSV(&buf, list)
	}
	if err != nil {
		return nil, err
	}

	if s.archiver != nil {
		key := "exports/" + s.now().UTC().Format("2006/01/02") + "/" + res.Filename
		if err := s.archiver.Put(ctx, key, res.ContentType, buf.Bytes()); err != nil {
			s.log.Warn("failed to archive export", "key", key, "error", err)
		} else {
			res.ArchiveKey = key
		}
	}

	if _, err := w.Write(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write export: %w", err)
	}
	return res, nil
}

// WriteCSV writes the leads matching f as CSV.
func (s *Service) WriteCSV(ctx context.Context, w io.Writer, f leads.Filter) (int, error) {
	list, err := s.Leads(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(list), writeCSV(w, list)
}

// WriteExcel writes the leads matching f as an xlsx workbook.
func (s *Service) WriteExcel(ctx context.Context, w io.Writer, f leads.Filter) (int, error) {
	list, err := s.Leads(ctx, f)
	if err != nil {
		return 0, err
	}
	return len(list), writeExcel(w, list)
}

func record(lead models.Lead) []string {
	followUp := ""
	if lead.FollowUpDate != nil {
		followUp = lead.FollowUpDate.UTC().Format(models.DateLayout)
	}
	return []string{
		strconv.Itoa(lead.ID),
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.Source,
		string(lead.LeadScore),
		string(lead.Status),
		lead.AssignedToName,
		lead.ReferralCode,
		followUp,
		lead.Notes,
		lead.CreatedAt.UTC().Format(createdLayout),
	}
}

func writeCSV(w io.Writer, list []models.Lead) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, lead := range list {
		if err := writer.Write(record(lead)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeExcel(w io.Writer, list []models.Lead) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	header := make([]any, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	last, _ := excelize.CoordinatesToCellName(len(Header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}

	for i, lead := range list {
		values := record(lead)
		row := make([]any, len(values))
		for j, v := range values {
			row[j] = v
		}
		row[0] = lead.ID
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(Header))
	if err := f.SetColWidth(sheetName, "A", lastCol, 18); err != nil {
		return fmt.Errorf("failed to size columns: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
