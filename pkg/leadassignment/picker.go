package leadassignment

import (
	"context"
	"fmt"
	"sort"

	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leads"
)

// Method is how a rule distributes leads among team members.
type Method string

const (
	MethodSpecificUser Method = "specific_user"
	MethodRoundRobin   Method = "round_robin"
	MethodLeastLeads   Method = "least_leads"
	MethodRandom       Method = "random"
)

// Methods lists every assignment method.
var Methods = []Method{MethodSpecificUser, MethodRoundRobin, MethodLeastLeads, MethodRandom}

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	switch m {
	case MethodSpecificUser, MethodRoundRobin, MethodLeastLeads, MethodRandom:
		return true
	}
	return false
}

// Picker hands out assignees for one batch of leads. It keeps its own
// view of workloads and the round-robin position so consecutive picks
// within a batch stay fair.
type Picker struct {
	method    Method
	target    int
	members   []int
	openLeads map[int]int
	cursor    int
	intn      func(n int) int
}

// NewPicker snapshots the team through ex. target is required for
// specific_user; cursor is the last user that received a round-robin lead.
func (s *Service) NewPicker(ctx context.Context, ex database.Executor, method Method, target, cursor *int) (*Picker, error) {
	if !method.Valid() {
		return nil, domain.NewValidationError("unknown assignment method: " + string(method))
	}

	p := &Picker{method: method, intn: s.intn}
	if method == MethodSpecificUser {
		if target == nil || *target <= 0 {
			return nil, domain.NewValidationError("specific_user requires a target user")
		}
		if err := leads.RequireActiveMember(ctx, s.db, ex, *target); err != nil {
			return nil, err
		}
		p.target = *target
		return p, nil
	}

	members, err := activeMembers(ctx, s.db, ex)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, domain.NewValidationError("no active team members to assign to")
	}
	p.members = members

	if cursor != nil {
		p.cursor = *cursor
	}

	if method == MethodLeastLeads {
		counts, err := openLeadCounts(ctx, s.db, ex)
		if err != nil {
			return nil, err
		}
		p.openLeads = make(map[int]int, len(members))
		for _, id := range members {
			p.openLeads[id] = counts[id]
		}
	}
	return p, nil
}

// Next returns the user for the next lead.
func (p *Picker) Next() (int, error) {
	switch p.method {
	case MethodSpecificUser:
		return p.target, nil

	case MethodRoundRobin:
		// first member with an id above the cursor, wrapping around
		i := sort.SearchInts(p.members, p.cursor+1)
		if i == len(p.members) {
			i = 0
		}
		p.cursor = p.members[i]
		return p.cursor, nil

	case MethodLeastLeads:
		best := 0
		for _, id := range sortedKeys(p.openLeads) {
			if best == 0 || p.openLeads[id] < p.openLeads[best] {
				best = id
			}
		}
		p.openLeads[best]++
		return best, nil

	case MethodRandom:
		return p.members[p.intn(len(p.members))], nil
	}
	return 0, fmt.Errorf("unsupported assignment method %q", p.method)
}

// Cursor is the last user handed out by round-robin.
func (p *Picker) Cursor() int {
	return p.cursor
}
