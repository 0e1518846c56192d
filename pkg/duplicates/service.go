// Package duplicates finds leads that likely refer to the same contact and
// folds them together.
package duplicates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/phone"
)

// Checks that can flag a name pair.
const (
	MatchPhonetic     = "phonetic"
	MatchEditDistance = "edit_distance"
)

// DefaultPairCap bounds the O(n²) name scan.
const DefaultPairCap = 50

// Group is a set of leads sharing an exact key, oldest first.
type Group struct {
	Key       string        `json:"key"`
	Count     int           `json:"count"`
	LeadIDs   []int         `json:"lead_ids"`
	Leads     []models.Lead `json:"leads"`
	PrimaryID int           `json:"primary_id"`
}

// Pair is two leads with similar names. LeadA is the older one and the primary.
type Pair struct {
	LeadA     models.Lead `json:"lead_a"`
	LeadB     models.Lead `json:"lead_b"`
	PrimaryID int         `json:"primary_id"`
	MatchedBy []string    `json:"matched_by"`
	Distance  int         `json:"distance"`
}

// Report is the result of a scan. Degraded is set when storage failed and
// the lists are empty for that reason.
type Report struct {
	EmailGroups []Group   `json:"email_groups"`
	PhoneGroups []Group   `json:"phone_groups"`
	NamePairs   []Pair    `json:"name_pairs"`
	ScannedAt   time.Time `json:"scanned_at"`
	Degraded    bool      `json:"degraded,omitempty"`
}

// Total counts every candidate group and pair.
func (r *Report) Total() int {
	return len(r.EmailGroups) + len(r.PhoneGroups) + len(r.NamePairs)
}

// Options tune the matching engine.
type Options struct {
	PairCap     int
	PhoneRegion string
}

// Service runs duplicate scans, merges and suppressions.
type Service struct {
	db   *database.Client
	log  logger.Logger
	opts Options
	now  func() time.Time
}

// NewService creates a new duplicates service
func NewService(db *database.Client, log logger.Logger, opts Options) *Service {
	if opts.PairCap <= 0 {
		opts.PairCap = DefaultPairCap
	}
	if opts.PhoneRegion == "" {
		opts.PhoneRegion = phone.DefaultRegion
	}
	return &Service{db: db, log: log, opts: opts, now: time.Now}
}

type pairKey [2]int

func newPairKey(a, b int) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Scan groups all leads by email, by phone and by name similarity. It never
// fails: a storage error is logged and yields an empty, degraded report.
func (s *Service) Scan(ctx context.Context) *Report {
	report := &Report{
		EmailGroups: []Group{},
		PhoneGroups: []Group{},
		NamePairs:   []Pair{},
		ScannedAt:   s.now().UTC(),
	}

	all, err := s.loadLeads(ctx)
	if err != nil {
		s.log.Error("duplicate scan failed loading leads", "error", err)
		report.Degraded = true
		return report
	}
	suppressed, err := s.loadSuppressions(ctx)
	if err != nil {
		s.log.Error("duplicate scan failed loading suppressions", "error", err)
		report.Degraded = true
		return report
	}

	report.EmailGroups = exactGroups(all, suppressed, func(l models.Lead) string {
		return strings.ToLower(strings.TrimSpace(l.Email))
	})
	report.PhoneGroups = exactGroups(all, suppressed, func(l models.Lead) string {
		return phone.MatchKey(l.Phone, s.opts.PhoneRegion)
	})
	report.NamePairs = namePairs(all, suppressed, s.opts.PairCap)

	return report
}

// loadLeads returns every lead in creation order.
func (s *Service) loadLeads(ctx context.Context) ([]models.Lead, error) {
	sel, l := leads.Select(s.db.Builder())
	sel.OrderBy(l.C("created_at"), l.C("id"))

	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return leads.ScanRows(rows)
}

func (s *Service) loadSuppressions(ctx context.Context) (map[pairKey]bool, error) {
	b := s.db.Builder()
	t := b.Table("duplicate_suppressions")
	query, args := b.Select(t.C("lead_a_id"), t.C("lead_b_id")).From(t).Query()

	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[pairKey]bool{}
	for rows.Next() {
		var a, b int
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		out[newPairKey(a, b)] = true
	}
	return out, rows.Err()
}

// exactGroups buckets leads (already in creation order) by key. Empty keys
// never group. A group is dropped only when all of its pairs are suppressed.
func exactGroups(all []models.Lead, suppressed map[pairKey]bool, key func(models.Lead) string) []Group {
	buckets := map[string][]models.Lead{}
	var order []string
	for _, l := range all {
		k := key(l)
		if k == "" {
			continue
		}
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], l)
	}

	groups := []Group{}
	for _, k := range order {
		members := buckets[k]
		if len(members) < 2 || allSuppressed(members, suppressed) {
			continue
		}
		ids := make([]int, len(members))
		for i, m := range members {
			ids[i] = m.ID
		}
		groups = append(groups, Group{
			Key:       k,
			Count:     len(members),
			LeadIDs:   ids,
			Leads:     members,
			PrimaryID: members[0].ID,
		})
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Count > groups[j].Count
	})
	return groups
}

func allSuppressed(members []models.Lead, suppressed map[pairKey]bool) bool {
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			if !suppressed[newPairKey(members[i].ID, members[j].ID)] {
				return false
			}
		}
	}
	return true
}

// namePairs compares every lead with every later lead until limit pairs are found.
func namePairs(all []models.Lead, suppressed map[pairKey]bool, limit int) []Pair {
	infos := make([]nameInfo, len(all))
	for i, l := range all {
		infos[i] = newNameInfo(l.Name)
	}

	pairs := []Pair{}
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if suppressed[newPairKey(all[i].ID, all[j].ID)] {
				continue
			}
			matchedBy, distance, ok := nameMatch(infos[i], infos[j])
			if !ok {
				continue
			}
			pairs = append(pairs, Pair{
				LeadA:     all[i],
				LeadB:     all[j],
				PrimaryID: all[i].ID,
				MatchedBy: matchedBy,
				Distance:  distance,
			})
			if len(pairs) >= limit {
				return pairs
			}
		}
	}
	return pairs
}

func (s *Service) suppressionExists(ctx context.Context, ex database.Executor, key pairKey) (bool, error) {
	b := s.db.Builder()
	t := b.Table("duplicate_suppressions")
	count := b.Select(entsql.Count("*")).From(t).Where(entsql.And(
		entsql.EQ(t.C("lead_a_id"), key[0]),
		entsql.EQ(t.C("lead_b_id"), key[1]),
	))
	n, err := database.Count(ctx, ex, count)
	if err != nil {
		return false, fmt.Errorf("failed to check suppression: %w", err)
	}
	return n > 0, nil
}
