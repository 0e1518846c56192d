// Package bulk applies one action to a caller-selected set of leads.
package bulk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Supported actions.
const (
	ActionAssignTeam     = "assign_team"
	ActionUpdateStatus   = "update_status"
	ActionUpdateScore    = "update_score"
	ActionAssignCategory = "assign_category"
	ActionSetFollowUp    = "set_follow_up"
	ActionDeleteLeads    = "delete_leads"
)

// Actions lists every supported action.
var Actions = []string{
	ActionAssignTeam, ActionUpdateStatus, ActionUpdateScore,
	ActionAssignCategory, ActionSetFollowUp, ActionDeleteLeads,
}

// Request is a bulk action over LeadIDs. Only the parameters of the chosen
// action are read.
type Request struct {
	Action       string `json:"action" form:"action"`
	LeadIDs      IDList `json:"lead_ids" form:"lead_ids"`
	UserID       *int   `json:"user_id,omitempty" form:"user_id"`
	Status       string `json:"status,omitempty" form:"status"`
	LeadScore    string `json:"lead_score,omitempty" form:"lead_score"`
	CategoryID   int    `json:"category_id,omitempty" form:"category_id"`
	FollowUpDate string `json:"follow_up_date,omitempty" form:"follow_up_date"`
}

// Result reports what happened. Requested is the number of distinct valid
// ids submitted; Affected is the number of those that existed and changed.
type Result struct {
	Action    string `json:"action"`
	Requested int    `json:"requested"`
	Affected  int    `json:"affected"`
	LeadIDs   []int  `json:"lead_ids"`
	Message   string `json:"message"`
}

// Service executes bulk actions.
type Service struct {
	db  *database.Client
	now func() time.Time
}

// NewService creates a new bulk action service
func NewService(db *database.Client) *Service {
	return &Service{db: db, now: time.Now}
}

// plan is a validated request.
type plan struct {
	action      string
	ids         []int
	assignee    *int
	status      models.LeadStatus
	score       models.LeadScore
	categoryID  int
	followUp    time.Time
	description string
}

func (s *Service) validate(req Request) (*plan, error) {
	p := &plan{action: req.Action}
	for _, id := range req.LeadIDs {
		if id > 0 {
			p.ids = append(p.ids, id)
		}
	}
	p.ids = dedupe(p.ids)
	if len(p.ids) == 0 {
		return nil, domain.NewValidationError("no leads selected")
	}

	switch req.Action {
	case ActionAssignTeam:
		if req.UserID == nil {
			return nil, domain.NewValidationError("user_id is required")
		}
		if *req.UserID > 0 {
			p.assignee = req.UserID
		}
	case ActionUpdateStatus:
		status := models.LeadStatus(strings.TrimSpace(req.Status))
		if !status.Valid() {
			return nil, domain.NewValidationError("invalid status: " + req.Status)
		}
		p.status = status
		p.description = "Bulk update: status set to " + string(status)
	case ActionUpdateScore:
		score, ok := models.ParseLeadScore(req.LeadScore)
		if !ok {
			return nil, domain.NewValidationError("invalid lead_score: " + req.LeadScore)
		}
		p.score = score
		p.description = "Bulk update: lead score set to " + string(score)
	case ActionAssignCategory:
		if req.CategoryID <= 0 {
			return nil, domain.NewValidationError("category_id is required")
		}
		p.categoryID = req.CategoryID
	case ActionSetFollowUp:
		date, err := models.ParseDate(req.FollowUpDate)
		if err != nil {
			return nil, domain.NewValidationError("follow_up_date must be YYYY-MM-DD")
		}
		p.followUp = date
		p.description = "Bulk update: follow-up scheduled for " + date.Format(models.DateLayout)
	case ActionDeleteLeads:
	case "":
		return nil, domain.NewValidationError("action is required")
	default:
		return nil, domain.NewValidationError("unknown action: " + req.Action)
	}
	return p, nil
}

// Execute validates the request and applies it in one transaction. Ids that
// no longer exist are skipped and show up as Requested > Affected.
func (s *Service) Execute(ctx context.Context, req Request, actorID int) (*Result, error) {
	p, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var affected []int
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		found, err := existingIDs(ctx, s.db, tx, p.ids)
		if err != nil {
			return err
		}
		affected = found
		if len(affected) == 0 {
			return nil
		}

		if err := s.apply(ctx, tx, p, affected, now); err != nil {
			return err
		}

		if p.action == ActionDeleteLeads {
			return nil
		}
		return activity.WriteMany(ctx, s.db, tx, affected, actorID, activity.TypeBulkAction, p.description, now)
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Action:    p.action,
		Requested: len(p.ids),
		Affected:  len(affected),
		LeadIDs:   affected,
		Message:   message(p.action, len(affected), len(p.ids)),
	}, nil
}

func (s *Service) apply(ctx context.Context, tx *sql.Tx, p *plan, ids []int, now time.Time) error {
	b := s.db.Builder()
	switch p.action {
	case ActionAssignTeam:
		upd := b.Update("leads").Set("updated_at", now).Where(entsql.InInts("id", ids...))
		if p.assignee == nil {
			upd.SetNull("assigned_to")
			p.description = "Bulk update: lead unassigned"
		} else {
			if err := leads.RequireActiveMember(ctx, s.db, tx, *p.assignee); err != nil {
				return err
			}
			upd.Set("assigned_to", *p.assignee)
			p.description = fmt.Sprintf("Bulk update: assigned to team member #%d", *p.assignee)
		}
		return exec(ctx, tx, upd, "assign leads")

	case ActionUpdateStatus:
		upd := b.Update("leads").
			Set("status", string(p.status)).
			Set("updated_at", now).
			Where(entsql.InInts("id", ids...))
		return exec(ctx, tx, upd, "update status")

	case ActionUpdateScore:
		upd := b.Update("leads").
			Set("lead_score", string(p.score)).
			Set("updated_at", now).
			Where(entsql.InInts("id", ids...))
		return exec(ctx, tx, upd, "update lead score")

	case ActionSetFollowUp:
		upd := b.Update("leads").
			Set("follow_up_date", p.followUp).
			Set("status", string(models.StatusFollowUp)).
			Set("updated_at", now).
			Where(entsql.InInts("id", ids...))
		return exec(ctx, tx, upd, "set follow-up")

	case ActionAssignCategory:
		name, err := categoryName(ctx, s.db, tx, p.categoryID)
		if err != nil {
			return err
		}
		p.description = "Bulk update: category set to " + name

		del := b.Delete("lead_category_assignments").Where(entsql.InInts("lead_id", ids...))
		if err := exec(ctx, tx, del, "clear categories"); err != nil {
			return err
		}
		for _, id := range ids {
			insert := b.Insert("lead_category_assignments").
				Columns("lead_id", "category_id", "assigned_at").
				Values(id, p.categoryID, now)
			if err := exec(ctx, tx, insert, "assign category"); err != nil {
				return err
			}
		}
		return nil

	case ActionDeleteLeads:
		del := b.Delete("leads").Where(entsql.InInts("id", ids...))
		return exec(ctx, tx, del, "delete leads")
	}
	return domain.NewValidationError("unknown action: " + p.action)
}

func exec(ctx context.Context, ex database.Executor, q entsql.Querier, what string) error {
	if _, err := database.Exec(ctx, ex, q); err != nil {
		return fmt.Errorf("failed to %s: %w", what, err)
	}
	return nil
}

// existingIDs returns the subset of ids still present, ascending.
func existingIDs(ctx context.Context, db *database.Client, ex database.Executor, ids []int) ([]int, error) {
	b := db.Builder()
	t := b.Table("leads")
	query, args := b.Select(t.C("id")).From(t).
		Where(entsql.InInts(t.C("id"), ids...)).
		OrderBy(t.C("id")).
		Query()

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load selected leads: %w", err)
	}
	defer rows.Close()

	found := make([]int, 0, len(ids))
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found = append(found, id)
	}
	return found, rows.Err()
}

func categoryName(ctx context.Context, db *database.Client, ex database.Executor, id int) (string, error) {
	b := db.Builder()
	t := b.Table("lead_categories")
	query, args := b.Select(t.C("name")).From(t).Where(entsql.EQ(t.C("id"), id)).Query()

	var name string
	err := ex.QueryRowContext(ctx, query, args...).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NewValidationError(fmt.Sprintf("category %d does not exist", id))
	}
	if err != nil {
		return "", fmt.Errorf("failed to load category: %w", err)
	}
	return name, nil
}

func dedupe(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func message(action string, affected, requested int) string {
	verb := "Updated"
	if action == ActionDeleteLeads {
		verb = "Deleted"
	}
	return fmt.Sprintf("%s %d of %d selected leads", verb, affected, requested)
}
