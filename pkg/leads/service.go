// Package leads is the lead store: the single source of truth for contact
// records, scoring, status, assignment and follow-up metadata.
package leads

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
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// CreateInput holds the fields of a new lead.
type CreateInput struct {
	Name         string
	Email        string
	Phone        string
	Source       string
	LeadScore    models.LeadScore
	Status       models.LeadStatus
	AssignedTo   *int
	ReferralCode string
	FollowUpDate *time.Time
	Notes        string
}

// UpdateInput is a partial update; nil fields are left untouched.
type UpdateInput struct {
	Name          *string
	Email         *string
	Phone         *string
	Source        *string
	LeadScore     *models.LeadScore
	Status        *models.LeadStatus
	ReferralCode  *string
	FollowUpDate  *time.Time
	ClearFollowUp bool
	Notes         *string
}

// Service handles lead persistence.
type Service struct {
	db  *database.Client
	now func() time.Time
}

// NewService creates a new lead service
func NewService(db *database.Client) *Service {
	return &Service{db: db, now: time.Now}
}

// Create validates and stores a lead, logging a "created" activity.
func (s *Service) Create(ctx context.Context, in CreateInput, actorID int) (*models.Lead, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
	if in.Name == "" {
		return nil, domain.NewValidationError("name is required")
	}
	if in.Email != "" && !ValidEmail(in.Email) {
		return nil, domain.NewValidationError("invalid email: " + in.Email)
	}
	if in.LeadScore == "" {
		in.LeadScore = models.ScoreCold
	}
	if !in.LeadScore.Valid() {
		return nil, domain.NewValidationError("invalid lead_score: " + string(in.LeadScore))
	}
	if in.Status == "" {
		in.Status = models.StatusActive
	}
	if !in.Status.Valid() {
		return nil, domain.NewValidationError("invalid status: " + string(in.Status))
	}

	now := s.now().UTC()
	var id int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if in.AssignedTo != nil && *in.AssignedTo > 0 {
			if err := RequireActiveMember(ctx, s.db, tx, *in.AssignedTo); err != nil {
				return err
			}
		}

		insert := s.db.Builder().Insert("leads").
			Columns("name", "email", "phone", "source", "lead_score", "status", "assigned_to",
				"referral_code", "follow_up_date", "notes", "created_at", "updated_at").
			Values(in.Name, in.Email, in.Phone, in.Source, string(in.LeadScore), string(in.Status),
				database.NullableInt(in.AssignedTo), in.ReferralCode, database.NullableTime(in.FollowUpDate),
				in.Notes, now, now)
		var err error
		id, err = s.db.InsertID(ctx, tx, insert)
		if err != nil {
			return fmt.Errorf("failed to create lead: %w", err)
		}

		return activity.Write(ctx, s.db, tx, activity.Entry{
			LeadID:       id,
			ActorID:      actorID,
			ActivityType: activity.TypeCreated,
			Description:  fmt.Sprintf("Lead created (source: %s)", sourceLabel(in.Source)),
		}, now)
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Get loads a lead with its assignee name.
func (s *Service) Get(ctx context.Context, id int) (*models.Lead, error) {
	return Load(ctx, s.db, s.db.DB, id)
}

// Load reads one lead through ex, which may be a transaction.
func Load(ctx context.Context, db *database.Client, ex database.Executor, id int) (*models.Lead, error) {
	sel, l := Select(db.Builder())
	sel.Where(entsql.EQ(l.C("id"), id))

	query, args := sel.Query()
	lead, err := scanLead(ex.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("lead")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load lead %d: %w", id, err)
	}
	return &lead, nil
}

// GetMany loads the given leads keyed by id. Missing ids are absent from the map.
func (s *Service) GetMany(ctx context.Context, ids []int) (map[int]models.Lead, error) {
	out := make(map[int]models.Lead, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	sel, l := Select(s.db.Builder())
	sel.Where(entsql.InInts(l.C("id"), ids...))

	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load leads: %w", err)
	}
	leads, err := ScanRows(rows)
	if err != nil {
		return nil, err
	}
	for _, lead := range leads {
		out[lead.ID] = lead
	}
	return out, nil
}

// List returns one page of leads, newest first.
func (s *Service) List(ctx context.Context, f Filter) (*models.LeadListResponse, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	f = f.Normalize()

	b := s.db.Builder()
	countTable := b.Table("leads").As("l")
	count := b.Select(entsql.Count("*")).From(countTable)
	if preds := f.Predicates(countTable); len(preds) > 0 {
		count.Where(entsql.And(preds...))
	}
	total, err := database.Count(ctx, s.db.DB, count)
	if err != nil {
		return nil, fmt.Errorf("failed to count leads: %w", err)
	}

	sel, l := Select(b)
	if preds := f.Predicates(l); len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(entsql.Desc(l.C("created_at")), entsql.Desc(l.C("id"))).
		Limit(f.Limit).
		Offset((f.Page - 1) * f.Limit)

	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list leads: %w", err)
	}
	leads, err := ScanRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan leads: %w", err)
	}

	return &models.LeadListResponse{
		Data:       leads,
		Pagination: models.NewPagination(f.Page, f.Limit, total),
	}, nil
}

// Update applies a partial update and logs what changed.
func (s *Service) Update(ctx context.Context, id int, in UpdateInput, actorID int) (*models.Lead, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, domain.NewValidationError("name cannot be empty")
		}
		in.Name = &name
	}
	if in.Email != nil {
		email := strings.TrimSpace(*in.Email)
		if email != "" && !ValidEmail(email) {
			return nil, domain.NewValidationError("invalid email: " + email)
		}
		in.Email = &email
	}
	if in.LeadScore != nil && !in.LeadScore.Valid() {
		return nil, domain.NewValidationError("invalid lead_score: " + string(*in.LeadScore))
	}
	if in.Status != nil && !in.Status.Valid() {
		return nil, domain.NewValidationError("invalid status: " + string(*in.Status))
	}

	now := s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		current, err := Load(ctx, s.db, tx, id)
		if err != nil {
			return err
		}

		upd := s.db.Builder().Update("leads").Set("updated_at", now)
		var changes []activity.Entry
		if in.Name != nil {
			upd.Set("name", *in.Name)
		}
		if in.Email != nil {
			upd.Set("email", *in.Email)
		}
		if in.Phone != nil {
			upd.Set("phone", strings.TrimSpace(*in.Phone))
		}
		if in.Source != nil {
			upd.Set("source", *in.Source)
		}
		if in.ReferralCode != nil {
			upd.Set("referral_code", *in.ReferralCode)
		}
		if in.Notes != nil {
			upd.Set("notes", *in.Notes)
		}
		if in.LeadScore != nil && *in.LeadScore != current.LeadScore {
			upd.Set("lead_score", string(*in.LeadScore))
			changes = append(changes, activity.Entry{
				ActivityType: activity.TypeScoreChange,
				Description:  fmt.Sprintf("Lead score changed from %s to %s", current.LeadScore, *in.LeadScore),
			})
		}
		if in.Status != nil && *in.Status != current.Status {
			upd.Set("status", string(*in.Status))
			changes = append(changes, activity.Entry{
				ActivityType: activity.TypeStatusChange,
				Description:  fmt.Sprintf("Status changed from %s to %s", current.Status, *in.Status),
			})
		}
		switch {
		case in.ClearFollowUp:
			upd.SetNull("follow_up_date")
		case in.FollowUpDate != nil:
			upd.Set("follow_up_date", in.FollowUpDate.UTC())
			changes = append(changes, activity.Entry{
				ActivityType: activity.TypeFollowUp,
				Description:  "Follow-up scheduled for " + in.FollowUpDate.Format(models.DateLayout),
			})
		}
		if len(changes) == 0 {
			changes = append(changes, activity.Entry{ActivityType: activity.TypeUpdated, Description: "Lead details updated"})
		}

		upd.Where(entsql.EQ("id", id))
		if _, err := database.Exec(ctx, tx, upd); err != nil {
			return fmt.Errorf("failed to update lead: %w", err)
		}

		for _, c := range changes {
			c.LeadID = id
			c.ActorID = actorID
			if err := activity.Write(ctx, s.db, tx, c, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Delete removes a lead. Activities and category links cascade.
func (s *Service) Delete(ctx context.Context, id int) error {
	del := s.db.Builder().Delete("leads").Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, del)
	if err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("lead")
	}
	return nil
}

// EmailExists reports whether any lead already uses email, ignoring case.
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	return EmailExists(ctx, s.db, s.db.DB, email)
}

// EmailExists is the executor-level form used inside import transactions.
func EmailExists(ctx context.Context, db *database.Client, ex database.Executor, email string) (bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, nil
	}
	b := db.Builder()
	t := b.Table("leads")
	count := b.Select(entsql.Count("*")).From(t).Where(entsql.EqualFold(t.C("email"), email))
	n, err := database.Count(ctx, ex, count)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return n > 0, nil
}

// Assign sets or clears (userID nil or 0) the assignee of a lead.
func (s *Service) Assign(ctx context.Context, leadID int, userID *int, actorID int) (*models.Lead, error) {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		return SetAssignee(ctx, s.db, tx, leadID, userID, actorID, "", s.now())
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, leadID)
}

// SetAssignee updates assigned_to inside ex and logs the change. reason, when
// set, is appended to the activity description.
func SetAssignee(ctx context.Context, db *database.Client, ex database.Executor, leadID int, userID *int, actorID int, reason string, at time.Time) error {
	at = at.UTC()
	upd := db.Builder().Update("leads").Set("updated_at", at)

	entry := activity.Entry{LeadID: leadID, ActorID: actorID}
	if userID == nil || *userID <= 0 {
		upd.SetNull("assigned_to")
		entry.ActivityType = activity.TypeUnassigned
		entry.Description = "Lead unassigned"
	} else {
		name, err := activeMemberName(ctx, db, ex, *userID)
		if err != nil {
			return err
		}
		upd.Set("assigned_to", *userID)
		entry.ActivityType = activity.TypeAssigned
		entry.Description = "Lead assigned to " + name
	}
	if reason != "" {
		entry.Description += " (" + reason + ")"
	}

	upd.Where(entsql.EQ("id", leadID))
	n, err := database.Exec(ctx, ex, upd)
	if err != nil {
		return fmt.Errorf("failed to assign lead: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("lead")
	}
	return activity.Write(ctx, db, ex, entry, at)
}

// RequireActiveMember fails with a validation error unless userID is an active user.
func RequireActiveMember(ctx context.Context, db *database.Client, ex database.Executor, userID int) error {
	_, err := activeMemberName(ctx, db, ex, userID)
	return err
}

func activeMemberName(ctx context.Context, db *database.Client, ex database.Executor, userID int) (string, error) {
	b := db.Builder()
	t := b.Table("users")
	query, args := b.Select(t.C("name"), t.C("status")).From(t).Where(entsql.EQ(t.C("id"), userID)).Query()

	var name, status string
	err := ex.QueryRowContext(ctx, query, args...).Scan(&name, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", domain.NewValidationError(fmt.Sprintf("team member %d does not exist", userID))
	}
	if err != nil {
		return "", fmt.Errorf("failed to load team member: %w", err)
	}
	if models.UserStatus(status) != models.UserActive {
		return "", domain.NewValidationError(fmt.Sprintf("team member %d is inactive", userID))
	}
	return name, nil
}

func sourceLabel(source string) string {
	if source == "" {
		return "unknown"
	}
	return source
}
