// Package rules stores assignment rules and evaluates their conditions
// against the lead store.
package rules

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leadassignment"
	"github.com/jordanlanch/leaddesk/pkg/leads"
)

// RuleType is the routing category a rule belongs to.
type RuleType string

const (
	TypeSource    RuleType = "source"
	TypeLocation  RuleType = "location"
	TypeTimeBased RuleType = "time_based"
	TypeWorkload  RuleType = "workload"
	TypeExpertise RuleType = "expertise"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	switch t {
	case TypeSource, TypeLocation, TypeTimeBased, TypeWorkload, TypeExpertise:
		return true
	}
	return false
}

// Rule is a stored assignment rule.
type Rule struct {
	ID                 int                   `json:"id"`
	Name               string                `json:"name"`
	RuleType           RuleType              `json:"rule_type"`
	Conditions         []Condition           `json:"conditions"`
	AssignmentMethod   leadassignment.Method `json:"assignment_method"`
	TargetUserID       *int                  `json:"target_user_id,omitempty"`
	TargetUserName     string                `json:"target_user_name,omitempty"`
	LastAssignedUserID *int                  `json:"last_assigned_user_id,omitempty"`
	Priority           int                   `json:"priority"`
	IsActive           bool                  `json:"is_active"`
	CreatedBy          *int                  `json:"created_by,omitempty"`
	CreatedAt          time.Time             `json:"created_at"`
	UpdatedAt          time.Time             `json:"updated_at"`
}

// CreateRuleRequest is the payload of a new rule.
type CreateRuleRequest struct {
	Name             string                `json:"name" validate:"required,max=255"`
	RuleType         RuleType              `json:"rule_type" validate:"required"`
	Conditions       []Condition           `json:"conditions"`
	AssignmentMethod leadassignment.Method `json:"assignment_method" validate:"required"`
	TargetUserID     *int                  `json:"target_user_id,omitempty"`
	Priority         int                   `json:"priority" validate:"gte=0,lte=1000"`
	IsActive         bool                  `json:"is_active"`
}

// UpdateRuleRequest is a partial update; nil fields are left untouched.
type UpdateRuleRequest struct {
	Name             *string                `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	RuleType         *RuleType              `json:"rule_type,omitempty"`
	Conditions       *[]Condition           `json:"conditions,omitempty"`
	AssignmentMethod *leadassignment.Method `json:"assignment_method,omitempty"`
	TargetUserID     *int                   `json:"target_user_id,omitempty"`
	Priority         *int                   `json:"priority,omitempty" validate:"omitempty,gte=0,lte=1000"`
}

// TestResult is the diagnostic outcome of evaluating rule conditions.
type TestResult struct {
	MatchingLeads   int `json:"matching_leads"`
	UnassignedLeads int `json:"unassigned_leads"`
}

// Assignment is one lead routed by Apply.
type Assignment struct {
	LeadID int `json:"lead_id"`
	UserID int `json:"user_id"`
}

// ApplyResult reports what Apply changed.
type ApplyResult struct {
	RuleID      int          `json:"rule_id"`
	Matched     int          `json:"matched"`
	Assigned    int          `json:"assigned"`
	Assignments []Assignment `json:"assignments"`
}

// Service manages assignment rules.
type Service struct {
	db       *database.Client
	assigner *leadassignment.Service
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a new rule service.
func NewService(db *database.Client, assigner *leadassignment.Service) *Service {
	return &Service{
		db:       db,
		assigner: assigner,
		validate: validator.New(),
		now:      time.Now,
	}
}

func (s *Service) checkTarget(ctx context.Context, ex database.Executor, method leadassignment.Method, target *int) error {
	if !method.Valid() {
		return domain.NewValidationError("invalid assignment_method: " + string(method))
	}
	if method != leadassignment.MethodSpecificUser {
		return nil
	}
	if target == nil || *target <= 0 {
		return domain.NewValidationError("target_user_id is required for specific_user rules")
	}
	return leads.RequireActiveMember(ctx, s.db, ex, *target)
}

// Create validates and stores a rule.
func (s *Service) Create(ctx context.Context, req CreateRuleRequest, actorID int) (*Rule, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if !req.RuleType.Valid() {
		return nil, domain.NewValidationError("invalid rule_type: " + string(req.RuleType))
	}
	conds, err := ValidateConditions(req.Conditions)
	if err != nil {
		return nil, err
	}
	if err := s.checkTarget(ctx, s.db.DB, req.AssignmentMethod, req.TargetUserID); err != nil {
		return nil, err
	}
	raw, err := encodeConditions(conds)
	if err != nil {
		return nil, err
	}

	target := req.TargetUserID
	if req.AssignmentMethod != leadassignment.MethodSpecificUser {
		target = nil
	}
	actor := &actorID

	now := s.now().UTC()
	insert := s.db.Builder().Insert("assignment_rules").
		Columns("name", "rule_type", "conditions", "assignment_method", "target_user_id",
			"priority", "is_active", "created_by", "created_at", "updated_at").
		Values(req.Name, string(req.RuleType), raw, string(req.AssignmentMethod), database.NullableInt(target),
			req.Priority, req.IsActive, database.NullableInt(actor), now, now)
	id, err := s.db.InsertID(ctx, s.db.DB, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	return s.Get(ctx, id)
}

func selectRules(b *entsql.DialectBuilder) (*entsql.Selector, *entsql.SelectTable) {
	r := b.Table("assignment_rules").As("r")
	u := b.Table("users").As("u")
	sel := b.Select(
		r.C("id"), r.C("name"), r.C("rule_type"), r.C("conditions"), r.C("assignment_method"),
		r.C("target_user_id"), r.C("last_assigned_user_id"), r.C("priority"), r.C("is_active"),
		r.C("created_by"), r.C("created_at"), r.C("updated_at"), u.C("name"),
	).
		From(r).
		LeftJoin(u).On(r.C("target_user_id"), u.C("id"))
	return sel, r
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(sc scanner) (*Rule, error) {
	var (
		rule       Rule
		ruleType   string
		method     string
		conditions string
		target     sql.NullInt64
		last       sql.NullInt64
		createdBy  sql.NullInt64
		targetName sql.NullString
	)
	err := sc.Scan(
		&rule.ID, &rule.Name, &ruleType, &conditions, &method,
		&target, &last, &rule.Priority, &rule.IsActive,
		&createdBy, &rule.CreatedAt, &rule.UpdatedAt, &targetName,
	)
	if err != nil {
		return nil, err
	}
	rule.RuleType = RuleType(ruleType)
	rule.AssignmentMethod = leadassignment.Method(method)
	rule.TargetUserID = database.IntPtr(target)
	rule.TargetUserName = targetName.String
	rule.LastAssignedUserID = database.IntPtr(last)
	rule.CreatedBy = database.IntPtr(createdBy)
	rule.CreatedAt = rule.CreatedAt.UTC()
	rule.UpdatedAt = rule.UpdatedAt.UTC()

	conds, err := ParseConditions(conditions)
	if err != nil {
		return nil, fmt.Errorf("rule %d has corrupt conditions: %w", rule.ID, err)
	}
	rule.Conditions = conds
	return &rule, nil
}

// Get loads a rule.
func (s *Service) Get(ctx context.Context, id int) (*Rule, error) {
	return s.load(ctx, s.db.DB, id)
}

func (s *Service) load(ctx context.Context, ex database.Executor, id int) (*Rule, error) {
	sel, r := selectRules(s.db.Builder())
	sel.Where(entsql.EQ(r.C("id"), id))
	query, args := sel.Query()

	rule, err := scanRule(ex.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("assignment rule")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load rule: %w", err)
	}
	return rule, nil
}

// List returns rules by priority (highest first), optionally only active ones.
func (s *Service) List(ctx context.Context, activeOnly bool) ([]Rule, error) {
	sel, r := selectRules(s.db.Builder())
	if activeOnly {
		sel.Where(entsql.EQ(r.C("is_active"), true))
	}
	sel.OrderBy(entsql.Desc(r.C("priority")), r.C("id"))
	query, args := sel.Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

// Update applies a partial update to a rule.
func (s *Service) Update(ctx context.Context, id int, req UpdateRuleRequest) (*Rule, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if req.RuleType != nil && !req.RuleType.Valid() {
		return nil, domain.NewValidationError("invalid rule_type: " + string(*req.RuleType))
	}

	var conds []Condition
	if req.Conditions != nil {
		var err error
		if conds, err = ValidateConditions(*req.Conditions); err != nil {
			return nil, err
		}
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}

		method := current.AssignmentMethod
		if req.AssignmentMethod != nil {
			method = *req.AssignmentMethod
		}
		target := current.TargetUserID
		if req.TargetUserID != nil {
			target = req.TargetUserID
		}
		if err := s.checkTarget(ctx, tx, method, target); err != nil {
			return err
		}
		if method != leadassignment.MethodSpecificUser {
			target = nil
		}

		upd := s.db.Builder().Update("assignment_rules").
			Set("updated_at", s.now().UTC()).
			Set("assignment_method", string(method))
		if target == nil {
			upd.SetNull("target_user_id")
		} else {
			upd.Set("target_user_id", *target)
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return domain.NewValidationError("name cannot be empty")
			}
			upd.Set("name", name)
		}
		if req.RuleType != nil {
			upd.Set("rule_type", string(*req.RuleType))
		}
		if req.Priority != nil {
			upd.Set("priority", *req.Priority)
		}
		if req.Conditions != nil {
			raw, err := encodeConditions(conds)
			if err != nil {
				return err
			}
			upd.Set("conditions", raw)
		}

		upd.Where(entsql.EQ("id", id))
		if _, err := database.Exec(ctx, tx, upd); err != nil {
			return fmt.Errorf("failed to update rule: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// Delete removes a rule permanently.
func (s *Service) Delete(ctx context.Context, id int) error {
	del := s.db.Builder().Delete("assignment_rules").Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, del)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("assignment rule")
	}
	return nil
}

// SetActive moves a rule to the active or inactive state.
func (s *Service) SetActive(ctx context.Context, id int, active bool) (*Rule, error) {
	upd := s.db.Builder().Update("assignment_rules").
		Set("is_active", active).
		Set("updated_at", s.now().UTC()).
		Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update rule state: %w", err)
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("assignment rule")
	}
	return s.Get(ctx, id)
}

// Toggle flips the active flag of a rule.
func (s *Service) Toggle(ctx context.Context, id int) (*Rule, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SetActive(ctx, id, !rule.IsActive)
}

// Test evaluates a stored rule's conditions without changing anything.
func (s *Service) Test(ctx context.Context, id int) (*TestResult, error) {
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.TestConditions(ctx, rule.Conditions)
}

// TestConditions counts the leads matching conds, and how many of those are
// unassigned.
func (s *Service) TestConditions(ctx context.Context, conds []Condition) (*TestResult, error) {
	match, err := Compile(conds, s.now())
	if err != nil {
		return nil, err
	}

	matching, err := s.count(ctx, match, false)
	if err != nil {
		return nil, err
	}
	unassigned, err := s.count(ctx, match, true)
	if err != nil {
		return nil, err
	}
	return &TestResult{MatchingLeads: matching, UnassignedLeads: unassigned}, nil
}

func (s *Service) count(ctx context.Context, match Matcher, unassignedOnly bool) (int, error) {
	b := s.db.Builder()
	t := b.Table("leads")
	preds := match(t)
	if unassignedOnly {
		preds = append(preds, entsql.IsNull(t.C("assigned_to")))
	}
	sel := b.Select(entsql.Count("*")).From(t)
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	n, err := database.Count(ctx, s.db.DB, sel)
	if err != nil {
		return 0, fmt.Errorf("failed to evaluate rule: %w", err)
	}
	return n, nil
}

// Apply routes every unassigned lead matching an active rule to a team
// member chosen by the rule's assignment method, oldest leads first. All
// assignments commit together. The last picked member is stored on the rule
// so the next round-robin run continues from there.
func (s *Service) Apply(ctx context.Context, id, actorID int) (*ApplyResult, error) {
	result := &ApplyResult{RuleID: id, Assignments: []Assignment{}}
	now := s.now().UTC()

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		rule, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !rule.IsActive {
			return domain.NewValidationError("rule is inactive")
		}
		match, err := Compile(rule.Conditions, now)
		if err != nil {
			return err
		}

		leadIDs, err := s.unassignedMatches(ctx, tx, match)
		if err != nil {
			return err
		}
		result.Matched = len(leadIDs)
		if len(leadIDs) == 0 {
			return nil
		}

		picker, err := s.assigner.NewPicker(ctx, tx, rule.AssignmentMethod, rule.TargetUserID, rule.LastAssignedUserID)
		if err != nil {
			return err
		}

		reason := "rule: " + rule.Name
		var last int
		for _, leadID := range leadIDs {
			userID, err := picker.Next()
			if err != nil {
				return err
			}
			if err := leads.SetAssignee(ctx, s.db, tx, leadID, &userID, actorID, reason, now); err != nil {
				return err
			}
			result.Assignments = append(result.Assignments, Assignment{LeadID: leadID, UserID: userID})
			last = userID
		}

		desc := fmt.Sprintf("Matched assignment rule %q (%s)", rule.Name, rule.AssignmentMethod)
		if err := activity.WriteMany(ctx, s.db, tx, leadIDs, actorID, activity.TypeRuleApplied, desc, now); err != nil {
			return err
		}

		upd := s.db.Builder().Update("assignment_rules").
			Set("last_assigned_user_id", last).
			Set("updated_at", now).
			Where(entsql.EQ("id", id))
		if _, err := database.Exec(ctx, tx, upd); err != nil {
			return fmt.Errorf("failed to record rule cursor: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Assigned = len(result.Assignments)
	return result, nil
}

func (s *Service) unassignedMatches(ctx context.Context, ex database.Executor, match Matcher) ([]int, error) {
	b := s.db.Builder()
	t := b.Table("leads")
	preds := append(match(t), entsql.IsNull(t.C("assigned_to")))
	query, args := b.Select(t.C("id")).From(t).
		Where(entsql.And(preds...)).
		OrderBy(t.C("created_at"), t.C("id")).
		Query()

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select matching leads: %w", err)
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
