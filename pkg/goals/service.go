// Package goals tracks monthly lead and conversion targets per team member.
package goals

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// PeriodLayout is the format of a goal period.
const PeriodLayout = "2006-01"

// Goal is the target of one member for one month.
type Goal struct {
	ID                int       `json:"id"`
	UserID            int       `json:"user_id"`
	Period            string    `json:"period"`
	TargetLeads       int       `json:"target_leads"`
	TargetConversions int       `json:"target_conversions"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// SetGoalRequest creates or replaces the goal of a member for a period.
type SetGoalRequest struct {
	UserID            int    `json:"user_id" validate:"required,gt=0"`
	Period            string `json:"period" validate:"required,len=7"`
	TargetLeads       int    `json:"target_leads" validate:"gte=0"`
	TargetConversions int    `json:"target_conversions" validate:"gte=0"`
}

// Progress compares a member's targets with leads created in the period
// and assigned to them.
type Progress struct {
	UserID            int     `json:"user_id"`
	UserName          string  `json:"user_name"`
	TargetLeads       int     `json:"target_leads"`
	TargetConversions int     `json:"target_conversions"`
	AssignedLeads     int     `json:"assigned_leads"`
	Conversions       int     `json:"conversions"`
	LeadsPercent      float64 `json:"leads_percent"`
	ConversionPercent float64 `json:"conversion_percent"`
}

// Service manages goals.
type Service struct {
	db       *database.Client
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a new goal service.
func NewService(db *database.Client) *Service {
	return &Service{db: db, validate: validator.New(), now: time.Now}
}

// ParsePeriod returns the first instant of a YYYY-MM period and of the
// following month, both in UTC.
func ParsePeriod(period string) (time.Time, time.Time, error) {
	start, err := time.ParseInLocation(PeriodLayout, period, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, domain.NewValidationError("period must be formatted as YYYY-MM")
	}
	return start, start.AddDate(0, 1, 0), nil
}

// CurrentPeriod is the period containing now.
func (s *Service) CurrentPeriod() string {
	return s.now().UTC().Format(PeriodLayout)
}

// Set upserts the goal of (user, period).
func (s *Service) Set(ctx context.Context, req SetGoalRequest) (*Goal, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if _, _, err := ParsePeriod(req.Period); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		b := s.db.Builder()
		u := b.Table("users")
		n, err := database.Count(ctx, tx, b.Select(entsql.Count("*")).From(u).Where(entsql.EQ(u.C("id"), req.UserID)))
		if err != nil {
			return fmt.Errorf("failed to check user: %w", err)
		}
		if n == 0 {
			return domain.NewNotFoundError("user")
		}

		upd := b.Update("goals").
			Set("target_leads", req.TargetLeads).
			Set("target_conversions", req.TargetConversions).
			Set("updated_at", now).
			Where(entsql.And(entsql.EQ("user_id", req.UserID), entsql.EQ("period", req.Period)))
		affected, err := database.Exec(ctx, tx, upd)
		if err != nil {
			return fmt.Errorf("failed to update goal: %w", err)
		}
		if affected > 0 {
			return nil
		}

		insert := b.Insert("goals").
			Columns("user_id", "period", "target_leads", "target_conversions", "created_at", "updated_at").
			Values(req.UserID, req.Period, req.TargetLeads, req.TargetConversions, now, now)
		if _, err := database.Exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("failed to create goal: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	list, err := s.list(ctx, req.Period, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.NewNotFoundError("goal")
	}
	return &list[0], nil
}

// List returns the goals of a period.
func (s *Service) List(ctx context.Context, period string) ([]Goal, error) {
	if _, _, err := ParsePeriod(period); err != nil {
		return nil, err
	}
	return s.list(ctx, period, 0)
}

func (s *Service) list(ctx context.Context, period string, userID int) ([]Goal, error) {
	b := s.db.Builder()
	g := b.Table("goals")
	preds := []*entsql.Predicate{entsql.EQ(g.C("period"), period)}
	if userID > 0 {
		preds = append(preds, entsql.EQ(g.C("user_id"), userID))
	}
	query, args := b.Select(g.C("id"), g.C("user_id"), g.C("period"), g.C("target_leads"),
		g.C("target_conversions"), g.C("created_at"), g.C("updated_at")).
		From(g).
		Where(entsql.And(preds...)).
		OrderBy(g.C("user_id")).
		Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list goals: %w", err)
	}
	defer rows.Close()

	out := []Goal{}
	for rows.Next() {
		var goal Goal
		if err := rows.Scan(&goal.ID, &goal.UserID, &goal.Period, &goal.TargetLeads,
			&goal.TargetConversions, &goal.CreatedAt, &goal.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan goal: %w", err)
		}
		goal.CreatedAt = goal.CreatedAt.UTC()
		goal.UpdatedAt = goal.UpdatedAt.UTC()
		out = append(out, goal)
	}
	return out, rows.Err()
}

// Progress reports every active team member for period, with zero targets
// for members without a goal.
func (s *Service) Progress(ctx context.Context, period string) ([]Progress, error) {
	start, end, err := ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	goals, err := s.list(ctx, period, 0)
	if err != nil {
		return nil, err
	}
	byUser := make(map[int]Goal, len(goals))
	for _, g := range goals {
		byUser[g.UserID] = g
	}

	assigned, err := s.countByAssignee(ctx, start, end, "")
	if err != nil {
		return nil, err
	}
	converted, err := s.countByAssignee(ctx, start, end, models.StatusConverted)
	if err != nil {
		return nil, err
	}

	b := s.db.Builder()
	u := b.Table("users")
	query, args := b.Select(u.C("id"), u.C("name")).
		From(u).
		Where(entsql.And(
			entsql.EQ(u.C("role"), string(models.RoleTeam)),
			entsql.EQ(u.C("status"), string(models.UserActive)),
		)).
		OrderBy(u.C("name"), u.C("id")).
		Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load team members: %w", err)
	}
	defer rows.Close()

	out := []Progress{}
	for rows.Next() {
		var p Progress
		if err := rows.Scan(&p.UserID, &p.UserName); err != nil {
			return nil, fmt.Errorf("failed to scan team member: %w", err)
		}
		g := byUser[p.UserID]
		p.TargetLeads = g.TargetLeads
		p.TargetConversions = g.TargetConversions
		p.AssignedLeads = assigned[p.UserID]
		p.Conversions = converted[p.UserID]
		p.LeadsPercent = percent(p.AssignedLeads, p.TargetLeads)
		p.ConversionPercent = percent(p.Conversions, p.TargetConversions)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Service) countByAssignee(ctx context.Context, start, end time.Time, status models.LeadStatus) (map[int]int, error) {
	b := s.db.Builder()
	l := b.Table("leads")
	preds := []*entsql.Predicate{
		entsql.NotNull(l.C("assigned_to")),
		entsql.GTE(l.C("created_at"), start),
		entsql.LT(l.C("created_at"), end),
	}
	if status != "" {
		preds = append(preds, entsql.EQ(l.C("status"), string(status)))
	}
	query, args := b.Select(l.C("assigned_to"), entsql.Count("*")).
		From(l).
		Where(entsql.And(preds...)).
		GroupBy(l.C("assigned_to")).
		Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
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

func percent(n, target int) float64 {
	if target <= 0 {
		return 0
	}
	return float64(int(float64(n)/float64(target)*1000+0.5)) / 10
}
