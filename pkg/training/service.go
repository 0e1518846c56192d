// Package training holds the material library shown to team members and the
// certificates issued to them.
package training

import (
	"context"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
)

// Material is a training resource.
type Material struct {
	ID          int       `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Category    string    `json:"category"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
}

// MaterialRequest creates or replaces a material.
type MaterialRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description"`
	URL         string `json:"url" validate:"required,url"`
	Category    string `json:"category" validate:"max=100"`
	IsPublished *bool  `json:"is_published,omitempty"`
}

// Certificate records a qualification issued to a member.
type Certificate struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	Title     string    `json:"title"`
	FileURL   string    `json:"file_url,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	CreatedAt time.Time `json:"created_at"`
}

// IssueRequest issues a certificate. A zero IssuedAt means now.
type IssueRequest struct {
	UserID   int       `json:"user_id" validate:"required,gt=0"`
	Title    string    `json:"title" validate:"required,max=255"`
	FileURL  string    `json:"file_url" validate:"omitempty,url"`
	IssuedAt time.Time `json:"issued_at"`
}

// Service manages materials and certificates.
type Service struct {
	db       *database.Client
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a new training service.
func NewService(db *database.Client) *Service {
	return &Service{db: db, validate: validator.New(), now: time.Now}
}

func (s *Service) checkMaterial(req *MaterialRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.URL = strings.TrimSpace(req.URL)
	req.Category = strings.TrimSpace(req.Category)
	if err := s.validate.Struct(req); err != nil {
		return domain.NewValidationError(err.Error())
	}
	return nil
}

// CreateMaterial stores a material. Materials are published unless told otherwise.
func (s *Service) CreateMaterial(ctx context.Context, req MaterialRequest) (*Material, error) {
	if err := s.checkMaterial(&req); err != nil {
		return nil, err
	}
	published := req.IsPublished == nil || *req.IsPublished

	insert := s.db.Builder().Insert("training_materials").
		Columns("title", "description", "url", "category", "is_published", "created_at").
		Values(req.Title, req.Description, req.URL, req.Category, published, s.now().UTC())
	id, err := s.db.InsertID(ctx, s.db.DB, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to create material: %w", err)
	}
	return s.GetMaterial(ctx, id)
}

// UpdateMaterial replaces a material.
func (s *Service) UpdateMaterial(ctx context.Context, id int, req MaterialRequest) (*Material, error) {
	if err := s.checkMaterial(&req); err != nil {
		return nil, err
	}
	upd := s.db.Builder().Update("training_materials").
		Set("title", req.Title).
		Set("description", req.Description).
		Set("url", req.URL).
		Set("category", req.Category)
	if req.IsPublished != nil {
		upd.Set("is_published", *req.IsPublished)
	}
	upd.Where(entsql.EQ("id", id))

	n, err := database.Exec(ctx, s.db.DB, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update material: %w", err)
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("training material")
	}
	return s.GetMaterial(ctx, id)
}

// DeleteMaterial removes a material.
func (s *Service) DeleteMaterial(ctx context.Context, id int) error {
	n, err := database.Exec(ctx, s.db.DB, s.db.Builder().Delete("training_materials").Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to delete material: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("training material")
	}
	return nil
}

// GetMaterial loads a material by id.
func (s *Service) GetMaterial(ctx context.Context, id int) (*Material, error) {
	list, err := s.materials(ctx, func(t *entsql.SelectTable) *entsql.Predicate { return entsql.EQ(t.C("id"), id) })
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.NewNotFoundError("training material")
	}
	return &list[0], nil
}

// ListMaterials returns materials by category then title. Members only see
// published ones.
func (s *Service) ListMaterials(ctx context.Context, publishedOnly bool) ([]Material, error) {
	if !publishedOnly {
		return s.materials(ctx, nil)
	}
	return s.materials(ctx, func(t *entsql.SelectTable) *entsql.Predicate { return entsql.EQ(t.C("is_published"), true) })
}

func (s *Service) materials(ctx context.Context, pred func(*entsql.SelectTable) *entsql.Predicate) ([]Material, error) {
	b := s.db.Builder()
	t := b.Table("training_materials")
	sel := b.Select(t.C("id"), t.C("title"), t.C("description"), t.C("url"), t.C("category"), t.C("is_published"), t.C("created_at")).
		From(t).
		OrderBy(t.C("category"), t.C("title"))
	if pred != nil {
		sel.Where(pred(t))
	}
	query, args := sel.Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list materials: %w", err)
	}
	defer rows.Close()

	out := []Material{}
	for rows.Next() {
		var m Material
		if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.URL, &m.Category, &m.IsPublished, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan material: %w", err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// Issue records a certificate for a member.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Certificate, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.FileURL = strings.TrimSpace(req.FileURL)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	b := s.db.Builder()
	u := b.Table("users")
	n, err := database.Count(ctx, s.db.DB, b.Select(entsql.Count("*")).From(u).Where(entsql.EQ(u.C("id"), req.UserID)))
	if err != nil {
		return nil, fmt.Errorf("failed to check user: %w", err)
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("user")
	}

	now := s.now().UTC()
	issued := req.IssuedAt.UTC()
	if req.IssuedAt.IsZero() {
		issued = now
	}
	insert := b.Insert("certificates").
		Columns("user_id", "title", "file_url", "issued_at", "created_at").
		Values(req.UserID, req.Title, req.FileURL, issued, now)
	id, err := s.db.InsertID(ctx, s.db.DB, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to issue certificate: %w", err)
	}
	return &Certificate{ID: id, UserID: req.UserID, Title: req.Title, FileURL: req.FileURL, IssuedAt: issued, CreatedAt: now}, nil
}

// Certificates lists the certificates of a member, most recent first.
func (s *Service) Certificates(ctx context.Context, userID int) ([]Certificate, error) {
	b := s.db.Builder()
	c := b.Table("certificates")
	query, args := b.Select(c.C("id"), c.C("user_id"), c.C("title"), c.C("file_url"), c.C("issued_at"), c.C("created_at")).
		From(c).
		Where(entsql.EQ(c.C("user_id"), userID)).
		OrderBy(entsql.Desc(c.C("issued_at")), entsql.Desc(c.C("id"))).
		Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	defer rows.Close()

	out := []Certificate{}
	for rows.Next() {
		var cert Certificate
		if err := rows.Scan(&cert.ID, &cert.UserID, &cert.Title, &cert.FileURL, &cert.IssuedAt, &cert.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan certificate: %w", err)
		}
		cert.IssuedAt = cert.IssuedAt.UTC()
		cert.CreatedAt = cert.CreatedAt.UTC()
		out = append(out, cert)
	}
	return out, rows.Err()
}

// Revoke deletes a certificate.
func (s *Service) Revoke(ctx context.Context, id int) error {
	n, err := database.Exec(ctx, s.db.DB, s.db.Builder().Delete("certificates").Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to revoke certificate: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("certificate")
	}
	return nil
}
