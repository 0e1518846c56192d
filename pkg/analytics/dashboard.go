// Package analytics computes the admin dashboard statistics.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/cache"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"golang.org/x/sync/errgroup"
)

// CacheKey is the Redis key of the cached dashboard.
const CacheKey = "dashboard:stats"

const topSourceCount = 5

// SourceCount is the number of leads from one intake source.
type SourceCount struct {
	Source string `json:"source"`
	Count  int    `json:"count"`
}

// MemberPerformance summarises the leads assigned to one team member.
type MemberPerformance struct {
	UserID         int     `json:"user_id"`
	Name           string  `json:"name"`
	Assigned       int     `json:"assigned"`
	Hot            int     `json:"hot"`
	Converted      int     `json:"converted"`
	ConversionRate float64 `json:"conversion_rate"`
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalLeads     int                 `json:"total_leads"`
	ByScore        map[string]int      `json:"by_score"`
	ByStatus       map[string]int      `json:"by_status"`
	Unassigned     int                 `json:"unassigned"`
	FollowUpsDue   int                 `json:"follow_ups_due"`
	NewToday       int                 `json:"new_today"`
	NewThisWeek    int                 `json:"new_this_week"`
	ConversionRate float64             `json:"conversion_rate"`
	ActiveMembers  int                 `json:"active_members"`
	TopSources     []SourceCount       `json:"top_sources"`
	Members        []MemberPerformance `json:"members"`
	GeneratedAt    time.Time           `json:"generated_at"`
	Degraded       bool                `json:"degraded,omitempty"`
}

// Service builds dashboards.
type Service struct {
	db    *database.Client
	cache *cache.Client
	ttl   time.Duration
	log   logger.Logger
	now   func() time.Time
}

// NewService creates a dashboard service. cache may be nil, which disables caching.
func NewService(db *database.Client, c *cache.Client, ttl time.Duration, log logger.Logger) *Service {
	return &Service{db: db, cache: c, ttl: ttl, log: log, now: time.Now}
}

// Empty is the zeroed dashboard served when storage fails.
func Empty(at time.Time) *Dashboard {
	d := &Dashboard{
		ByScore:     map[string]int{},
		ByStatus:    map[string]int{},
		TopSources:  []SourceCount{},
		Members:     []MemberPerformance{},
		GeneratedAt: at,
	}
	for _, s := range models.LeadScores {
		d.ByScore[string(s)] = 0
	}
	for _, s := range models.LeadStatuses {
		d.ByStatus[string(s)] = 0
	}
	return d
}

// Dashboard returns the cached dashboard or computes a fresh one. A storage
// error yields zeroed stats flagged as degraded; degraded results are not cached.
func (s *Service) Dashboard(ctx context.Context) *Dashboard {
	if s.cache != nil && s.ttl > 0 {
		var cached Dashboard
		err := s.cache.GetJSON(ctx, CacheKey, &cached)
		if err == nil {
			return &cached
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("dashboard cache read failed", "error", err)
		}
	}

	d, err := s.Compute(ctx)
	if err != nil {
		s.log.Error("failed to compute dashboard", "error", err)
		d = Empty(s.now().UTC())
		d.Degraded = true
		return d
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.SetJSON(ctx, CacheKey, d, s.ttl); err != nil {
			s.log.Warn("dashboard cache write failed", "error", err)
		}
	}
	return d
}

// Invalidate drops the cached dashboard after a mutation.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, CacheKey); err != nil {
		s.log.Warn("dashboard cache invalidation failed", "error", err)
	}
}

// Compute runs the dashboard queries concurrently.
func (s *Service) Compute(ctx context.Context) (*Dashboard, error) {
	now := s.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))

	d := Empty(now)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	g.Go(func() error {
		counts, err := s.groupCount(gctx, "lead_score")
		if err != nil {
			return fmt.Errorf("leads by score: %w", err)
		}
		for k, v := range counts {
			d.ByScore[k] = v
		}
		return nil
	})
	g.Go(func() error {
		counts, err := s.groupCount(gctx, "status")
		if err != nil {
			return fmt.Errorf("leads by status: %w", err)
		}
		for k, v := range counts {
			d.ByStatus[k] = v
		}
		return nil
	})
	g.Go(func() error {
		var err error
		d.Unassigned, err = s.countLeads(gctx, func(l *entsql.SelectTable) *entsql.Predicate {
			return entsql.IsNull(l.C("assigned_to"))
		})
		return err
	})
	g.Go(func() error {
		var err error
		d.FollowUpsDue, err = s.countLeads(gctx, func(l *entsql.SelectTable) *entsql.Predicate {
			return entsql.And(
				entsql.NotNull(l.C("follow_up_date")),
				entsql.LT(l.C("follow_up_date"), today.AddDate(0, 0, 1)),
				entsql.NotIn(l.C("status"), string(models.StatusConverted), string(models.StatusLost)),
			)
		})
		return err
	})
	g.Go(func() error {
		var err error
		d.NewToday, err = s.countLeads(gctx, func(l *entsql.SelectTable) *entsql.Predicate {
			return entsql.GTE(l.C("created_at"), today)
		})
		return err
	})
	g.Go(func() error {
		var err error
		d.NewThisWeek, err = s.countLeads(gctx, func(l *entsql.SelectTable) *entsql.Predicate {
			return entsql.GTE(l.C("created_at"), weekStart)
		})
		return err
	})
	g.Go(func() error {
		b := s.db.Builder()
		u := b.Table("users")
		n, err := database.Count(gctx, s.db.DB, b.Select(entsql.Count("*")).From(u).Where(entsql.And(
			entsql.EQ(u.C("role"), string(models.RoleTeam)),
			entsql.EQ(u.C("status"), string(models.UserActive)),
		)))
		if err != nil {
			return fmt.Errorf("active members: %w", err)
		}
		d.ActiveMembers = n
		return nil
	})
	g.Go(func() error {
		var err error
		d.TopSources, err = s.topSources(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Members, err = s.members(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, n := range d.ByStatus {
		d.TotalLeads += n
	}
	d.ConversionRate = rate(d.ByStatus[string(models.StatusConverted)], d.TotalLeads)
	return d, nil
}

func (s *Service) groupCount(ctx context.Context, column string) (map[string]int, error) {
	b := s.db.Builder()
	l := b.Table("leads")
	query, args := b.Select(l.C(column), entsql.Count("*")).From(l).GroupBy(l.C(column)).Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, err
		}
		out[key] = n
	}
	return out, rows.Err()
}

func (s *Service) countLeads(ctx context.Context, pred func(*entsql.SelectTable) *entsql.Predicate) (int, error) {
	b := s.db.Builder()
	l := b.Table("leads")
	n, err := database.Count(ctx, s.db.DB, b.Select(entsql.Count("*")).From(l).Where(pred(l)))
	if err != nil {
		return 0, fmt.Errorf("count leads: %w", err)
	}
	return n, nil
}

func (s *Service) topSources(ctx context.Context) ([]SourceCount, error) {
	b := s.db.Builder()
	l := b.Table("leads")
	query, args := b.Select(l.C("source"), entsql.Count("*")).
		From(l).
		Where(entsql.NEQ(l.C("source"), "")).
		GroupBy(l.C("source")).
		Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("top sources: %w", err)
	}
	defer rows.Close()

	out := []SourceCount{}
	for rows.Next() {
		var sc SourceCount
		if err := rows.Scan(&sc.Source, &sc.Count); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Source < out[j].Source
	})
	if len(out) > topSourceCount {
		out = out[:topSourceCount]
	}
	return out, nil
}

func (s *Service) members(ctx context.Context) ([]MemberPerformance, error) {
	b := s.db.Builder()
	u := b.Table("users").As("u")
	l := b.Table("leads").As("l")
	query, args := b.Select(u.C("id"), u.C("name"), l.C("lead_score"), l.C("status"), entsql.Count(l.C("id"))).
		From(u).
		Join(l).On(u.C("id"), l.C("assigned_to")).
		Where(entsql.EQ(u.C("role"), string(models.RoleTeam))).
		GroupBy(u.C("id"), u.C("name"), l.C("lead_score"), l.C("status")).
		Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("member performance: %w", err)
	}
	defer rows.Close()

	byID := map[int]*MemberPerformance{}
	for rows.Next() {
		var (
			id            int
			name          string
			score, status string
			n             int
		)
		if err := rows.Scan(&id, &name, &score, &status, &n); err != nil {
			return nil, err
		}
		m, ok := byID[id]
		if !ok {
			m = &MemberPerformance{UserID: id, Name: name}
			byID[id] = m
		}
		m.Assigned += n
		if score == string(models.ScoreHot) {
			m.Hot += n
		}
		if status == string(models.StatusConverted) {
			m.Converted += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]MemberPerformance, 0, len(byID))
	for _, m := range byID {
		m.ConversionRate = rate(m.Converted, m.Assigned)
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Assigned != out[j].Assigned {
			return out[i].Assigned > out[j].Assigned
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

// rate is n/total as a percentage rounded to one decimal.
func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}
