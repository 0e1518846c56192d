// Package team manages back-office users: admins and the team members leads
// are assigned to.
package team

import (
	"context"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jordanlanch/leaddesk/pkg/auth"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// CreateMemberRequest is the admin form for a new user.
type CreateMemberRequest struct {
	Name     string      `json:"name" validate:"required,max=255"`
	Email    string      `json:"email" validate:"required,email"`
	Phone    string      `json:"phone" validate:"max=50"`
	Password string      `json:"password" validate:"required,min=8"`
	Role     models.Role `json:"role" validate:"omitempty,oneof=admin team"`
	Level    int         `json:"level" validate:"gte=0,lte=10"`
}

// UpdateMemberRequest is a partial update; nil fields are left untouched.
type UpdateMemberRequest struct {
	Name  *string      `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Phone *string      `json:"phone,omitempty" validate:"omitempty,max=50"`
	Level *int         `json:"level,omitempty" validate:"omitempty,gte=1,lte=10"`
	Role  *models.Role `json:"role,omitempty" validate:"omitempty,oneof=admin team"`
}

// ListFilter narrows List. Zero values are ignored.
type ListFilter struct {
	Status models.UserStatus
	Role   models.Role
}

// Service manages users.
type Service struct {
	db       *database.Client
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a new team service.
func NewService(db *database.Client) *Service {
	return &Service{db: db, validate: validator.New(), now: time.Now}
}

// Create stores a user with a bcrypt password hash and a fresh referral token.
func (s *Service) Create(ctx context.Context, req CreateMemberRequest) (*models.User, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if req.Role == "" {
		req.Role = models.RoleTeam
	}
	if req.Level == 0 {
		req.Level = 1
	}

	taken, err := s.emailTaken(ctx, req.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.NewConflictError("email already registered")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now().UTC()
	insert := s.db.Builder().Insert("users").
		Columns("name", "email", "phone", "password_hash", "role", "status", "level", "referral_token", "created_at", "updated_at").
		Values(req.Name, req.Email, strings.TrimSpace(req.Phone), hash, string(req.Role), string(models.UserActive),
			req.Level, uuid.NewString(), now, now)
	id, err := s.db.InsertID(ctx, s.db.DB, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) emailTaken(ctx context.Context, email string) (bool, error) {
	b := s.db.Builder()
	t := b.Table("users")
	n, err := database.Count(ctx, s.db.DB, b.Select(entsql.Count("*")).From(t).Where(entsql.EqualFold(t.C("email"), email)))
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return n > 0, nil
}

func selectUsers(b *entsql.DialectBuilder) (*entsql.Selector, *entsql.SelectTable) {
	u := b.Table("users").As("u")
	l := b.Table("leads").As("l")
	sel := b.Select(
		u.C("id"), u.C("name"), u.C("email"), u.C("phone"), u.C("password_hash"), u.C("role"),
		u.C("status"), u.C("level"), u.C("referral_token"), u.C("created_at"), u.C("updated_at"),
		entsql.Count(l.C("id")),
	).
		From(u).
		LeftJoin(l).On(u.C("id"), l.C("assigned_to")).
		GroupBy(
			u.C("id"), u.C("name"), u.C("email"), u.C("phone"), u.C("password_hash"), u.C("role"),
			u.C("status"), u.C("level"), u.C("referral_token"), u.C("created_at"), u.C("updated_at"),
		)
	return sel, u
}

func (s *Service) query(ctx context.Context, sel *entsql.Selector) ([]models.User, error) {
	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		var (
			u      models.User
			role   string
			status string
		)
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &role,
			&status, &u.Level, &u.ReferralToken, &u.CreatedAt, &u.UpdatedAt, &u.LeadCount); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Role = models.Role(role)
		u.Status = models.UserStatus(status)
		u.CreatedAt = u.CreatedAt.UTC()
		u.UpdatedAt = u.UpdatedAt.UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *Service) one(ctx context.Context, pred func(*entsql.SelectTable) *entsql.Predicate) (*models.User, error) {
	sel, u := selectUsers(s.db.Builder())
	sel.Where(pred(u))
	users, err := s.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, domain.NewNotFoundError("user")
	}
	return &users[0], nil
}

// Get loads a user with the number of leads assigned to them.
func (s *Service) Get(ctx context.Context, id int) (*models.User, error) {
	return s.one(ctx, func(u *entsql.SelectTable) *entsql.Predicate { return entsql.EQ(u.C("id"), id) })
}

// GetByReferralToken resolves the public referral token of a member.
func (s *Service) GetByReferralToken(ctx context.Context, token string) (*models.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.NewNotFoundError("user")
	}
	return s.one(ctx, func(u *entsql.SelectTable) *entsql.Predicate { return entsql.EQ(u.C("referral_token"), token) })
}

// List returns users by name with their lead counts.
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.User, error) {
	sel, u := selectUsers(s.db.Builder())
	var preds []*entsql.Predicate
	if f.Status != "" {
		preds = append(preds, entsql.EQ(u.C("status"), string(f.Status)))
	}
	if f.Role != "" {
		preds = append(preds, entsql.EQ(u.C("role"), string(f.Role)))
	}
	if len(preds) > 0 {
		sel.Where(entsql.And(preds...))
	}
	sel.OrderBy(u.C("name"), u.C("id"))
	return s.query(ctx, sel)
}

// Update changes profile fields of a user.
func (s *Service) Update(ctx context.Context, id int, req UpdateMemberRequest) (*models.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	upd := s.db.Builder().Update("users").Set("updated_at", s.now().UTC())
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.NewValidationError("name cannot be empty")
		}
		upd.Set("name", name)
	}
	if req.Phone != nil {
		upd.Set("phone", strings.TrimSpace(*req.Phone))
	}
	if req.Level != nil {
		upd.Set("level", *req.Level)
	}
	if req.Role != nil {
		upd.Set("role", string(*req.Role))
	}
	upd.Where(entsql.EQ("id", id))

	n, err := database.Exec(ctx, s.db.DB, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("user")
	}
	return s.Get(ctx, id)
}

// SetStatus enables or soft-disables a user. Users are never hard-deleted
// because leads and activities keep referencing them.
func (s *Service) SetStatus(ctx context.Context, id int, status models.UserStatus) (*models.User, error) {
	if status != models.UserActive && status != models.UserInactive {
		return nil, domain.NewValidationError("invalid status: " + string(status))
	}
	upd := s.db.Builder().Update("users").
		Set("status", string(status)).
		Set("updated_at", s.now().UTC()).
		Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update user status: %w", err)
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("user")
	}
	return s.Get(ctx, id)
}

// ChangePassword replaces the password of a user.
func (s *Service) ChangePassword(ctx context.Context, id int, password string) error {
	if len(password) < auth.MinPasswordLength {
		return domain.NewValidationError(fmt.Sprintf("password must be at least %d characters", auth.MinPasswordLength))
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	upd := s.db.Builder().Update("users").
		Set("password_hash", hash).
		Set("updated_at", s.now().UTC()).
		Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, upd)
	if err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("user")
	}
	return nil
}

// Authenticate checks credentials. Unknown emails, wrong passwords and
// inactive accounts all yield the same unauthorized error.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.one(ctx, func(u *entsql.SelectTable) *entsql.Predicate { return entsql.EqualFold(u.C("email"), email) })
	if domain.IsNotFound(err) {
		return nil, domain.NewUnauthorizedError()
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(user.PasswordHash, password) || !user.IsActive() {
		return nil, domain.NewUnauthorizedError()
	}
	return user, nil
}
