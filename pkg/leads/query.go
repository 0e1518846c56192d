package leads

import (
	"database/sql"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

var validate = validator.New()

// ValidEmail reports whether s is a syntactically valid address.
func ValidEmail(s string) bool {
	return validate.Var(s, "required,email") == nil
}

// Filter is the typed lead query. Zero values are ignored.
type Filter struct {
	Search        string
	Status        models.LeadStatus
	LeadScore     models.LeadScore
	Source        string
	AssignedTo    int
	Unassigned    bool
	DateFrom      *time.Time
	DateTo        *time.Time
	FollowUpDueBy *time.Time
	Page          int
	Limit         int
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

// Validate rejects enum values outside the lead model.
func (f Filter) Validate() error {
	if f.Status != "" && !f.Status.Valid() {
		return domain.NewValidationError("invalid status: " + string(f.Status))
	}
	if f.LeadScore != "" && !f.LeadScore.Valid() {
		return domain.NewValidationError("invalid lead_score: " + string(f.LeadScore))
	}
	if f.AssignedTo > 0 && f.Unassigned {
		return domain.NewValidationError("assigned_to and unassigned are mutually exclusive")
	}
	if f.DateFrom != nil && f.DateTo != nil && f.DateTo.Before(*f.DateFrom) {
		return domain.NewValidationError("date_to must not be before date_from")
	}
	return nil
}

// Normalize clamps paging to sane bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f
}

// Predicates compiles the filter against the leads table t. A fresh slice is
// built on every call so the result can be attached to one selector only.
func (f Filter) Predicates(t *entsql.SelectTable) []*entsql.Predicate {
	var preds []*entsql.Predicate
	if s := strings.TrimSpace(f.Search); s != "" {
		preds = append(preds, entsql.Or(
			entsql.ContainsFold(t.C("name"), s),
			entsql.ContainsFold(t.C("email"), s),
			entsql.Contains(t.C("phone"), s),
		))
	}
	if f.Status != "" {
		preds = append(preds, entsql.EQ(t.C("status"), string(f.Status)))
	}
	if f.LeadScore != "" {
		preds = append(preds, entsql.EQ(t.C("lead_score"), string(f.LeadScore)))
	}
	if f.Source != "" {
		preds = append(preds, entsql.EQ(t.C("source"), f.Source))
	}
	if f.AssignedTo > 0 {
		preds = append(preds, entsql.EQ(t.C("assigned_to"), f.AssignedTo))
	}
	if f.Unassigned {
		preds = append(preds, entsql.IsNull(t.C("assigned_to")))
	}
	if f.DateFrom != nil {
		preds = append(preds, entsql.GTE(t.C("created_at"), f.DateFrom.UTC()))
	}
	if f.DateTo != nil {
		preds = append(preds, entsql.LT(t.C("created_at"), f.DateTo.UTC().AddDate(0, 0, 1)))
	}
	if f.FollowUpDueBy != nil {
		preds = append(preds,
			entsql.NotNull(t.C("follow_up_date")),
			entsql.LTE(t.C("follow_up_date"), f.FollowUpDueBy.UTC()),
			entsql.NotIn(t.C("status"), string(models.StatusConverted), string(models.StatusLost)),
		)
	}
	return preds
}

// Select returns a selector over leads (aliased "l") joined with the assignee
// name, in the column order expected by ScanRows.
func Select(b *entsql.DialectBuilder) (*entsql.Selector, *entsql.SelectTable) {
	l := b.Table("leads").As("l")
	u := b.Table("users").As("u")
	sel := b.Select(
		l.C("id"), l.C("name"), l.C("email"), l.C("phone"), l.C("source"),
		l.C("lead_score"), l.C("status"), l.C("assigned_to"), l.C("referral_code"),
		l.C("follow_up_date"), l.C("notes"), l.C("created_at"), l.C("updated_at"),
		u.C("name"),
	).
		From(l).
		LeftJoin(u).On(l.C("assigned_to"), u.C("id"))
	return sel, l
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLead(sc scanner) (models.Lead, error) {
	var (
		lead         models.Lead
		score        string
		status       string
		assignedTo   sql.NullInt64
		followUp     sql.NullTime
		assigneeName sql.NullString
	)
	err := sc.Scan(
		&lead.ID, &lead.Name, &lead.Email, &lead.Phone, &lead.Source,
		&score, &status, &assignedTo, &lead.ReferralCode,
		&followUp, &lead.Notes, &lead.CreatedAt, &lead.UpdatedAt,
		&assigneeName,
	)
	if err != nil {
		return lead, err
	}
	lead.LeadScore = models.LeadScore(score)
	lead.Status = models.LeadStatus(status)
	lead.AssignedTo = database.IntPtr(assignedTo)
	lead.AssignedToName = assigneeName.String
	lead.FollowUpDate = database.TimePtr(followUp)
	lead.CreatedAt = lead.CreatedAt.UTC()
	lead.UpdatedAt = lead.UpdatedAt.UTC()
	return lead, nil
}

// ScanRows reads every row produced by a Select query.
func ScanRows(rows *sql.Rows) ([]models.Lead, error) {
	defer rows.Close()

	leads := []models.Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}
	return leads, rows.Err()
}
