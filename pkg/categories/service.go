// Package categories manages lead categories and their many-to-many link
// with leads.
package categories

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leads"
)

// DefaultColor is used when a category is created without one.
const DefaultColor = "#6c757d"

// Category is a lead label.
type Category struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Description string    `json:"description,omitempty"`
	LeadCount   int       `json:"lead_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryRequest is the payload for creating or replacing a category.
type CategoryRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Description string `json:"description" validate:"max=1000"`
}

// Service manages categories.
type Service struct {
	db       *database.Client
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a new category service.
func NewService(db *database.Client) *Service {
	return &Service{db: db, validate: validator.New(), now: time.Now}
}

func (s *Service) check(req *CategoryRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Color = strings.TrimSpace(req.Color)
	if err := s.validate.Struct(req); err != nil {
		return domain.NewValidationError(err.Error())
	}
	if req.Color == "" {
		req.Color = DefaultColor
	}
	return nil
}

// Create stores a category. Names are unique.
func (s *Service) Create(ctx context.Context, req CategoryRequest) (*Category, error) {
	if err := s.check(&req); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, req.Name, 0); err != nil {
		return nil, err
	}

	insert := s.db.Builder().Insert("lead_categories").
		Columns("name", "color", "description", "created_at").
		Values(req.Name, req.Color, req.Description, s.now().UTC())
	id, err := s.db.InsertID(ctx, s.db.DB, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *Service) ensureNameFree(ctx context.Context, name string, exceptID int) error {
	b := s.db.Builder()
	t := b.Table("lead_categories")
	preds := []*entsql.Predicate{entsql.EqualFold(t.C("name"), name)}
	if exceptID > 0 {
		preds = append(preds, entsql.NEQ(t.C("id"), exceptID))
	}
	n, err := database.Count(ctx, s.db.DB, b.Select(entsql.Count("*")).From(t).Where(entsql.And(preds...)))
	if err != nil {
		return fmt.Errorf("failed to check category name: %w", err)
	}
	if n > 0 {
		return domain.NewConflictError("a category named " + name + " already exists")
	}
	return nil
}

func selectCategories(b *entsql.DialectBuilder) (*entsql.Selector, *entsql.SelectTable) {
	c := b.Table("lead_categories").As("c")
	a := b.Table("lead_category_assignments").As("a")
	sel := b.Select(c.C("id"), c.C("name"), c.C("color"), c.C("description"), c.C("created_at"), entsql.Count(a.C("id"))).
		From(c).
		LeftJoin(a).On(c.C("id"), a.C("category_id")).
		GroupBy(c.C("id"), c.C("name"), c.C("color"), c.C("description"), c.C("created_at"))
	return sel, c
}

func scanCategories(rows *sql.Rows) ([]Category, error) {
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &c.Description, &c.CreatedAt, &c.LeadCount); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

// Get loads a category with its lead count.
func (s *Service) Get(ctx context.Context, id int) (*Category, error) {
	sel, c := selectCategories(s.db.Builder())
	sel.Where(entsql.EQ(c.C("id"), id))
	query, args := sel.Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load category: %w", err)
	}
	list, err := scanCategories(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.NewNotFoundError("category")
	}
	return &list[0], nil
}

// List returns every category by name with lead counts.
func (s *Service) List(ctx context.Context) ([]Category, error) {
	sel, c := selectCategories(s.db.Builder())
	sel.OrderBy(c.C("name"))
	query, args := sel.Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return scanCategories(rows)
}

// Update replaces the name, color and description of a category.
func (s *Service) Update(ctx context.Context, id int, req CategoryRequest) (*Category, error) {
	if err := s.check(&req); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, req.Name, id); err != nil {
		return nil, err
	}

	upd := s.db.Builder().Update("lead_categories").
		Set("name", req.Name).
		Set("color", req.Color).
		Set("description", req.Description).
		Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, upd)
	if err != nil {
		return nil, fmt.Errorf("failed to update category: %w", err)
	}
	if n == 0 {
		return nil, domain.NewNotFoundError("category")
	}
	return s.Get(ctx, id)
}

// Delete removes a category; its lead links cascade.
func (s *Service) Delete(ctx context.Context, id int) error {
	del := s.db.Builder().Delete("lead_categories").Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, del)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("category")
	}
	return nil
}

// ForLead lists the categories linked to a lead, by name.
func (s *Service) ForLead(ctx context.Context, leadID int) ([]Category, error) {
	b := s.db.Builder()
	c := b.Table("lead_categories").As("c")
	a := b.Table("lead_category_assignments").As("a")
	query, args := b.Select(c.C("id"), c.C("name"), c.C("color"), c.C("description"), c.C("created_at")).
		From(c).
		Join(a).On(c.C("id"), a.C("category_id")).
		Where(entsql.EQ(a.C("lead_id"), leadID)).
		OrderBy(c.C("name")).
		Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load lead categories: %w", err)
	}
	defer rows.Close()

	out := []Category{}
	for rows.Next() {
		var cat Category
		if err := rows.Scan(&cat.ID, &cat.Name, &cat.Color, &cat.Description, &cat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		cat.CreatedAt = cat.CreatedAt.UTC()
		out = append(out, cat)
	}
	return out, rows.Err()
}

// SetLeadCategories replaces the category set of a lead. The delete and the
// inserts commit together.
func (s *Service) SetLeadCategories(ctx context.Context, leadID int, categoryIDs []int, actorID int) ([]Category, error) {
	ids := uniquePositive(categoryIDs)
	now := s.now().UTC()

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := leads.Load(ctx, s.db, tx, leadID); err != nil {
			return err
		}

		names, err := s.names(ctx, tx, ids)
		if err != nil {
			return err
		}

		b := s.db.Builder()
		if _, err := database.Exec(ctx, tx, b.Delete("lead_category_assignments").Where(entsql.EQ("lead_id", leadID))); err != nil {
			return fmt.Errorf("failed to clear lead categories: %w", err)
		}
		for _, id := range ids {
			insert := b.Insert("lead_category_assignments").
				Columns("lead_id", "category_id", "assigned_at").
				Values(leadID, id, now)
			if _, err := database.Exec(ctx, tx, insert); err != nil {
				return fmt.Errorf("failed to link category %d: %w", id, err)
			}
		}

		desc := "Categories cleared"
		if len(names) > 0 {
			desc = "Categories set to " + strings.Join(names, ", ")
		}
		return activity.Write(ctx, s.db, tx, activity.Entry{
			LeadID:       leadID,
			ActorID:      actorID,
			ActivityType: activity.TypeCategoryChange,
			Description:  desc,
		}, now)
	})
	if err != nil {
		return nil, err
	}
	return s.ForLead(ctx, leadID)
}

// names resolves category ids, failing when any of them does not exist.
func (s *Service) names(ctx context.Context, ex database.Executor, ids []int) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b := s.db.Builder()
	t := b.Table("lead_categories")
	query, args := b.Select(t.C("id"), t.C("name")).From(t).Where(entsql.InInts(t.C("id"), ids...)).Query()

	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load categories: %w", err)
	}
	defer rows.Close()

	found := map[int]string{}
	for rows.Next() {
		var (
			id   int
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		found[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := found[id]
		if !ok {
			return nil, domain.NewValidationError(fmt.Sprintf("category %d does not exist", id))
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func uniquePositive(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id > 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
