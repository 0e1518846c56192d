// Package activity is the append-only lead activity log.
package activity

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
)

// Activity types written by the back-office.
const (
	TypeCreated          = "created"
	TypeUpdated          = "updated"
	TypeAssigned         = "assigned"
	TypeUnassigned       = "unassigned"
	TypeStatusChange     = "status_change"
	TypeScoreChange      = "score_change"
	TypeCategoryChange   = "category_change"
	TypeFollowUp         = "follow_up_scheduled"
	TypeBulkAction       = "bulk_action"
	TypeMerge            = "merge"
	TypeNotDuplicate     = "not_duplicate"
	TypeImport           = "import"
	TypeNote             = "note"
	TypeRuleApplied      = "rule_applied"
	TypeWhatsAppSent     = "whatsapp_sent"
	TypeWhatsAppFailed   = "whatsapp_failed"
	TypeEmailSent        = "email_sent"
	TypeEmailFailed      = "email_failed"
	TypeFollowUpReminder = "follow_up_reminder"
)

// Activity is one immutable log entry.
type Activity struct {
	ID           int       `json:"id"`
	LeadID       int       `json:"lead_id"`
	LeadName     string    `json:"lead_name,omitempty"`
	UserID       *int      `json:"user_id,omitempty"`
	UserName     string    `json:"user_name,omitempty"`
	ActivityType string    `json:"activity_type"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
}

// Entry is the input of a new log line. ActorID 0 means the system.
type Entry struct {
	LeadID       int
	ActorID      int
	ActivityType string
	Description  string
}

// Filter narrows the activity report. Zero values are ignored.
type Filter struct {
	LeadID       int
	UserID       int
	ActivityType string
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
}

const (
	defaultLimit = 100
	maxLimit     = 500
)

// Service reads and appends lead activities.
type Service struct {
	db  *database.Client
	now func() time.Time
}

// NewService creates a new activity service
func NewService(db *database.Client) *Service {
	return &Service{db: db, now: time.Now}
}

// Write appends an entry using ex, which may be a transaction.
func Write(ctx context.Context, db *database.Client, ex database.Executor, e Entry, at time.Time) error {
	var actor any
	if e.ActorID > 0 {
		actor = e.ActorID
	}
	insert := db.Builder().Insert("lead_activities").
		Columns("lead_id", "user_id", "activity_type", "description", "created_at").
		Values(e.LeadID, actor, e.ActivityType, e.Description, at.UTC())
	if _, err := database.Exec(ctx, ex, insert); err != nil {
		return fmt.Errorf("failed to log %s activity for lead %d: %w", e.ActivityType, e.LeadID, err)
	}
	return nil
}

// WriteMany appends the same entry for every lead id.
func WriteMany(ctx context.Context, db *database.Client, ex database.Executor, leadIDs []int, actorID int, activityType, description string, at time.Time) error {
	for _, id := range leadIDs {
		e := Entry{LeadID: id, ActorID: actorID, ActivityType: activityType, Description: description}
		if err := Write(ctx, db, ex, e, at); err != nil {
			return err
		}
	}
	return nil
}

// Log appends a single entry outside of any transaction.
func (s *Service) Log(ctx context.Context, e Entry) error {
	if e.LeadID <= 0 {
		return domain.NewValidationError("lead_id is required")
	}
	if e.ActivityType == "" {
		return domain.NewValidationError("activity_type is required")
	}
	return Write(ctx, s.db, s.db.DB, e, s.now())
}

func (s *Service) predicates(t *entsql.SelectTable, f Filter) []*entsql.Predicate {
	var preds []*entsql.Predicate
	if f.LeadID > 0 {
		preds = append(preds, entsql.EQ(t.C("lead_id"), f.LeadID))
	}
	if f.UserID > 0 {
		preds = append(preds, entsql.EQ(t.C("user_id"), f.UserID))
	}
	if f.ActivityType != "" {
		preds = append(preds, entsql.EQ(t.C("activity_type"), f.ActivityType))
	}
	if f.DateFrom != nil {
		preds = append(preds, entsql.GTE(t.C("created_at"), f.DateFrom.UTC()))
	}
	if f.DateTo != nil {
		// date_to is inclusive of the whole day
		preds = append(preds, entsql.LT(t.C("created_at"), f.DateTo.UTC().AddDate(0, 0, 1)))
	}
	return preds
}

// List returns activities newest first with lead and user names resolved.
func (s *Service) List(ctx context.Context, f Filter) ([]Activity, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	b := s.db.Builder()
	a := b.Table("lead_activities").As("a")
	l := b.Table("leads").As("l")
	u := b.Table("users").As("u")

	sel := b.Select(
		a.C("id"), a.C("lead_id"), a.C("user_id"), a.C("activity_type"),
		a.C("description"), a.C("created_at"), l.C("name"), u.C("name"),
	).
		From(a).
		LeftJoin(l).On(a.C("lead_id"), l.C("id")).
		LeftJoin(u).On(a.C("user_id"), u.C("id")).
		OrderBy(entsql.Desc(a.C("created_at")), entsql.Desc(a.C("id"))).
		Limit(limit)
	if preds := s.predicates(a, f); len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}

	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := []Activity{}
	for rows.Next() {
		var (
			act      Activity
			userID   sql.NullInt64
			leadName sql.NullString
			userName sql.NullString
		)
		if err := rows.Scan(&act.ID, &act.LeadID, &userID, &act.ActivityType, &act.Description, &act.CreatedAt, &leadName, &userName); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		act.UserID = database.IntPtr(userID)
		act.LeadName = leadName.String
		act.UserName = userName.String
		act.CreatedAt = act.CreatedAt.UTC()
		activities = append(activities, act)
	}
	return activities, rows.Err()
}

// CountByType groups the filtered activities by type.
func (s *Service) CountByType(ctx context.Context, f Filter) (map[string]int, error) {
	b := s.db.Builder()
	a := b.Table("lead_activities")
	sel := b.Select(a.C("activity_type"), entsql.Count("*")).
		From(a).
		GroupBy(a.C("activity_type"))
	if preds := s.predicates(a, f); len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}

	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count activities: %w", err)
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var (
			typ string
			n   int
		)
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// Delete removes one entry. Entries are never edited.
func (s *Service) Delete(ctx context.Context, id int) error {
	del := s.db.Builder().Delete("lead_activities").Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, del)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("activity")
	}
	return nil
}
