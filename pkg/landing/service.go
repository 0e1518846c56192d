// Package landing stores the landing pages team members share with prospects.
package landing

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlug     = regexp.MustCompile(`[^a-z0-9]+`)
)

// Page is a landing page configuration.
type Page struct {
	ID          int       `json:"id"`
	UserID      *int      `json:"user_id,omitempty"`
	OwnerName   string    `json:"owner_name,omitempty"`
	Slug        string    `json:"slug"`
	Title       string    `json:"title"`
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	VideoURL    string    `json:"video_url,omitempty"`
	IsActive    bool      `json:"is_active"`
	Views       int       `json:"views"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PageRequest creates or replaces a page. An empty slug is derived from the title.
type PageRequest struct {
	UserID      *int   `json:"user_id,omitempty"`
	Slug        string `json:"slug" validate:"max=100"`
	Title       string `json:"title" validate:"required,max=255"`
	Headline    string `json:"headline" validate:"max=255"`
	Description string `json:"description"`
	VideoURL    string `json:"video_url" validate:"omitempty,url"`
	IsActive    *bool  `json:"is_active,omitempty"`
}

// Service manages landing pages.
type Service struct {
	db       *database.Client
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a new landing page service.
func NewService(db *database.Client) *Service {
	return &Service{db: db, validate: validator.New(), now: time.Now}
}

// Slugify folds accents and reduces s to lower-case words joined by hyphens.
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(folded), "-"), "-")
}

func (s *Service) check(req *PageRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	req.Slug = strings.TrimSpace(req.Slug)
	req.VideoURL = strings.TrimSpace(req.VideoURL)
	if err := s.validate.Struct(req); err != nil {
		return domain.NewValidationError(err.Error())
	}
	if req.Slug == "" {
		req.Slug = Slugify(req.Title)
	}
	if !slugPattern.MatchString(req.Slug) {
		return domain.NewValidationError("slug may only contain lower-case letters, digits and hyphens")
	}
	return nil
}

func (s *Service) ensureSlugFree(ctx context.Context, slug string, exceptID int) error {
	b := s.db.Builder()
	t := b.Table("landing_pages")
	preds := []*entsql.Predicate{entsql.EQ(t.C("slug"), slug)}
	if exceptID > 0 {
		preds = append(preds, entsql.NEQ(t.C("id"), exceptID))
	}
	n, err := database.Count(ctx, s.db.DB, b.Select(entsql.Count("*")).From(t).Where(entsql.And(preds...)))
	if err != nil {
		return fmt.Errorf("failed to check slug: %w", err)
	}
	if n > 0 {
		return domain.NewConflictError("slug " + slug + " is already in use")
	}
	return nil
}

// Create stores a page. Pages are active unless IsActive is false.
func (s *Service) Create(ctx context.Context, req PageRequest) (*Page, error) {
	if err := s.check(&req); err != nil {
		return nil, err
	}
	if err := s.ensureSlugFree(ctx, req.Slug, 0); err != nil {
		return nil, err
	}
	active := req.IsActive == nil || *req.IsActive

	now := s.now().UTC()
	insert := s.db.Builder().Insert("landing_pages").
		Columns("user_id", "slug", "title", "headline", "description", "video_url", "is_active", "views", "created_at", "updated_at").
		Values(database.NullableInt(req.UserID), req.Slug, req.Title, req.Headline, req.Description, req.VideoURL, active, 0, now, now)
	id, err := s.db.InsertID(ctx, s.db.DB, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to create landing page: %w", err)
	}
	return s.Get(ctx, id)
}

// Update replaces the content of a page. Views are kept.
func (s *Service) Update(ctx context.Context, id int, req PageRequest) (*Page, error) {
	if err := s.check(&req); err != nil {
		return nil, err
	}
	if err := s.ensureSlugFree(ctx, req.Slug, id); err != nil {
		return nil, err
	}

	upd := s.db.Builder().Update("landing_pages").
		Set("slug", req.Slug).
		Set("title", req.Title).
		Set("headline", req.Headline).
		Set("description", req.Description).
		Set("video_url", req.VideoURL).
		Set("updated_at", s.now().UTC())
	if req.UserID != nil {
		if *req.UserID > 0 {
			upd.Set("user_id", *req.UserID)
		} else {
			upd.SetNull("user_id")
		}
	}
	if req.IsActive != nil {
		upd.Set("is_active", *req.IsActive)
	}
	upd.Where(entsql.EQ("id", id))

	n, err := database.Exec(ctx, s.db.DB, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update landing page: %w", err)
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("landing page")
	}
	return s.Get(ctx, id)
}

// Delete removes a page.
func (s *Service) Delete(ctx context.Context, id int) error {
	n, err := database.Exec(ctx, s.db.DB, s.db.Builder().Delete("landing_pages").Where(entsql.EQ("id", id)))
	if err != nil {
		return fmt.Errorf("failed to delete landing page: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("landing page")
	}
	return nil
}

func selectPages(b *entsql.DialectBuilder) (*entsql.Selector, *entsql.SelectTable) {
	p := b.Table("landing_pages").As("p")
	u := b.Table("users").As("u")
	sel := b.Select(
		p.C("id"), p.C("user_id"), p.C("slug"), p.C("title"), p.C("headline"), p.C("description"),
		p.C("video_url"), p.C("is_active"), p.C("views"), p.C("created_at"), p.C("updated_at"), u.C("name"),
	).
		From(p).
		LeftJoin(u).On(p.C("user_id"), u.C("id"))
	return sel, p
}

func (s *Service) query(ctx context.Context, ex database.Executor, sel *entsql.Selector) ([]Page, error) {
	query, args := sel.Query()
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load landing pages: %w", err)
	}
	defer rows.Close()

	pages := []Page{}
	for rows.Next() {
		var (
			p     Page
			user  sql.NullInt64
			owner sql.NullString
		)
		if err := rows.Scan(&p.ID, &user, &p.Slug, &p.Title, &p.Headline, &p.Description,
			&p.VideoURL, &p.IsActive, &p.Views, &p.CreatedAt, &p.UpdatedAt, &owner); err != nil {
			return nil, fmt.Errorf("failed to scan landing page: %w", err)
		}
		p.UserID = database.IntPtr(user)
		p.OwnerName = owner.String
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// Get loads a page by id.
func (s *Service) Get(ctx context.Context, id int) (*Page, error) {
	sel, p := selectPages(s.db.Builder())
	sel.Where(entsql.EQ(p.C("id"), id))
	pages, err := s.query(ctx, s.db.DB, sel)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		return nil, domain.NewNotFoundError("landing page")
	}
	return &pages[0], nil
}

// List returns pages by slug, optionally only those owned by userID.
func (s *Service) List(ctx context.Context, userID int) ([]Page, error) {
	sel, p := selectPages(s.db.Builder())
	if userID > 0 {
		sel.Where(entsql.EQ(p.C("user_id"), userID))
	}
	sel.OrderBy(p.C("slug"))
	return s.query(ctx, s.db.DB, sel)
}

// BySlug serves a public page and counts the view. Inactive pages are not found.
func (s *Service) BySlug(ctx context.Context, slug string) (*Page, error) {
	var page *Page
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		upd := s.db.Builder().Update("landing_pages").
			Add("views", 1).
			Where(entsql.And(entsql.EQ("slug", slug), entsql.EQ("is_active", true)))
		n, err := database.Exec(ctx, tx, upd)
		if err != nil {
			return fmt.Errorf("failed to count view: %w", err)
		}
		if n == 0 {
			return domain.NewNotFoundError("landing page")
		}

		sel, p := selectPages(s.db.Builder())
		sel.Where(entsql.EQ(p.C("slug"), slug))
		pages, err := s.query(ctx, tx, sel)
		if err != nil {
			return err
		}
		page = &pages[0]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}
