package models

import (
	"strings"
	"time"
)

// LeadScore is the coarse sales temperature of a lead.
type LeadScore string

const (
	ScoreHot  LeadScore = "HOT"
	ScoreWarm LeadScore = "WARM"
	ScoreCold LeadScore = "COLD"
)

// LeadScores lists every valid score, hottest first.
var LeadScores = []LeadScore{ScoreHot, ScoreWarm, ScoreCold}

// Valid reports whether s is one of HOT, WARM, COLD.
func (s LeadScore) Valid() bool {
	switch s {
	case ScoreHot, ScoreWarm, ScoreCold:
		return true
	}
	return false
}

// ParseLeadScore accepts any casing ("hot", "Hot", "HOT").
func ParseLeadScore(s string) (LeadScore, bool) {
	score := LeadScore(strings.ToUpper(strings.TrimSpace(s)))
	return score, score.Valid()
}

// LeadStatus is the funnel position of a lead.
type LeadStatus string

const (
	StatusActive    LeadStatus = "active"
	StatusConverted LeadStatus = "converted"
	StatusLost      LeadStatus = "lost"
	StatusFollowUp  LeadStatus = "follow_up"
)

// LeadStatuses lists every valid status.
var LeadStatuses = []LeadStatus{StatusActive, StatusConverted, StatusLost, StatusFollowUp}

// Valid reports whether s is a known status.
func (s LeadStatus) Valid() bool {
	switch s {
	case StatusActive, StatusConverted, StatusLost, StatusFollowUp:
		return true
	}
	return false
}

// Lead is a contact record tracked through the sales funnel.
type Lead struct {
	ID             int        `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	Source         string     `json:"source"`
	LeadScore      LeadScore  `json:"lead_score"`
	Status         LeadStatus `json:"status"`
	AssignedTo     *int       `json:"assigned_to,omitempty"`
	AssignedToName string     `json:"assigned_to_name,omitempty"`
	ReferralCode   string     `json:"referral_code,omitempty"`
	FollowUpDate   *time.Time `json:"follow_up_date,omitempty"`
	Notes          string     `json:"notes"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// LeadListResponse represents a paginated list of leads
type LeadListResponse struct {
	Data       []Lead         `json:"data"`
	Pagination PaginationInfo `json:"pagination"`
	Degraded   bool           `json:"degraded,omitempty"`
}

// PaginationInfo contains pagination metadata
type PaginationInfo struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewPagination fills in the derived pagination fields.
func NewPagination(page, limit, total int) PaginationInfo {
	totalPages := 0
	if limit > 0 {
		totalPages = (total + limit - 1) / limit
	}
	return PaginationInfo{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// DateLayout is the wire format of calendar dates (follow-up dates, filters).
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD date at midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}
