package leadassignment

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Service handles lead assignment operations.
type Service struct {
	db   *database.Client
	now  func() time.Time
	intn func(n int) int
}

// NewService creates a new lead assignment service.
func NewService(db *database.Client) *Service {
	return &Service{
		db:   db,
		now:  time.Now,
		intn: rand.Intn,
	}
}

// AssignmentResponse represents a lead assignment.
type AssignmentResponse struct {
	LeadID         int       `json:"lead_id"`
	LeadName       string    `json:"lead_name"`
	UserID         int       `json:"user_id"`
	UserName       string    `json:"user_name"`
	AssignmentType string    `json:"assignment_type"` // "manual" or "auto"
	Reason         string    `json:"reason,omitempty"`
	AssignedAt     time.Time `json:"assigned_at"`
}

// AssignLeadRequest represents a manual assignment request.
type AssignLeadRequest struct {
	LeadID int    `json:"lead_id" validate:"required"`
	UserID int    `json:"user_id" validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// AssignLead manually assigns a lead to a user.
func (s *Service) AssignLead(ctx context.Context, req AssignLeadRequest, assignedBy int) (*AssignmentResponse, error) {
	if req.LeadID <= 0 || req.UserID <= 0 {
		return nil, domain.NewValidationError("lead_id and user_id are required")
	}

	reason := req.Reason
	if reason == "" {
		reason = "manual"
	}

	now := s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return leads.SetAssignee(ctx, s.db, tx, req.LeadID, &req.UserID, assignedBy, reason, now)
	})
	if err != nil {
		return nil, err
	}

	return s.response(ctx, req.LeadID, "manual", reason, now)
}

// AutoAssignLead assigns a lead to the active team member with the fewest open leads.
func (s *Service) AutoAssignLead(ctx context.Context, leadID, actorID int) (*AssignmentResponse, error) {
	now := s.now().UTC()
	var reason string
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		picker, err := s.NewPicker(ctx, tx, MethodLeastLeads, nil, nil)
		if err != nil {
			return err
		}
		userID, err := picker.Next()
		if err != nil {
			return err
		}
		reason = fmt.Sprintf("least leads (member had %d open leads)", picker.openLeads[userID]-1)
		return leads.SetAssignee(ctx, s.db, tx, leadID, &userID, actorID, reason, now)
	})
	if err != nil {
		return nil, err
	}

	return s.response(ctx, leadID, "auto", reason, now)
}

func (s *Service) response(ctx context.Context, leadID int, kind, reason string, at time.Time) (*AssignmentResponse, error) {
	lead, err := leads.Load(ctx, s.db, s.db.DB, leadID)
	if err != nil {
		return nil, err
	}
	resp := &AssignmentResponse{
		LeadID:         lead.ID,
		LeadName:       lead.Name,
		UserName:       lead.AssignedToName,
		AssignmentType: kind,
		Reason:         reason,
		AssignedAt:     at,
	}
	if lead.AssignedTo != nil {
		resp.UserID = *lead.AssignedTo
	}
	return resp, nil
}

// GetUserLeads retrieves the open leads assigned to a user, newest first.
func (s *Service) GetUserLeads(ctx context.Context, userID int, limit int) ([]models.Lead, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	sel, l := leads.Select(s.db.Builder())
	sel.Where(entsql.And(
		entsql.EQ(l.C("assigned_to"), userID),
		entsql.In(l.C("status"), string(models.StatusActive), string(models.StatusFollowUp)),
	)).
		OrderBy(entsql.Desc(l.C("created_at")), entsql.Desc(l.C("id"))).
		Limit(limit)

	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assigned leads: %w", err)
	}
	return leads.ScanRows(rows)
}

// GetLeadAssignmentHistory retrieves the assignment log of a lead, newest first.
func (s *Service) GetLeadAssignmentHistory(ctx context.Context, leadID int) ([]activity.Activity, error) {
	if _, err := leads.Load(ctx, s.db, s.db.DB, leadID); err != nil {
		return nil, err
	}

	all, err := activity.NewService(s.db).List(ctx, activity.Filter{LeadID: leadID, Limit: 500})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignment history: %w", err)
	}

	history := []activity.Activity{}
	for _, a := range all {
		switch a.ActivityType {
		case activity.TypeAssigned, activity.TypeUnassigned, activity.TypeRuleApplied:
			history = append(history, a)
		}
	}
	return history, nil
}

// activeMembers lists active team members by id.
func activeMembers(ctx context.Context, db *database.Client, ex database.Executor) ([]int, error) {
	b := db.Builder()
	t := b.Table("users")
	query, args := b.Select(t.C("id")).From(t).
		Where(entsql.And(
			entsql.EQ(t.C("status"), string(models.UserActive)),
			entsql.EQ(t.C("role"), string(models.RoleTeam)),
		)).
		OrderBy(t.C("id")).
		Query()

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch team members: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// openLeadCounts counts active and follow-up leads per assignee.
func openLeadCounts(ctx context.Context, db *database.Client, ex database.Executor) (map[int]int, error) {
	b := db.Builder()
	t := b.Table("leads")
	query, args := b.Select(t.C("assigned_to"), entsql.Count("*")).From(t).
		Where(entsql.And(
			entsql.NotNull(t.C("assigned_to")),
			entsql.In(t.C("status"), string(models.StatusActive), string(models.StatusFollowUp)),
		)).
		GroupBy(t.C("assigned_to")).
		Query()

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count open leads: %w", err)
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var id, n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
