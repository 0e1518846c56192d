package testdata

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// LeadGeneratorConfig configures lead generation parameters
type LeadGeneratorConfig struct {
	Count       int
	Sources     []string
	HotChance   float64 // 0.0-1.0
	WarmChance  float64 // 0.0-1.0, applied when the lead is not HOT
	EmailChance float64 // 0.0-1.0 (probability of having email)
	PhoneChance float64
	NotesChance float64
	MaxAgeDays  int // created_at is spread over the last MaxAgeDays days
}

// DefaultSources are the intake channels seen in production data.
var DefaultSources = []string{"Website", "Facebook", "Instagram", "Referral", "WhatsApp", "Event"}

// DefaultLeadConfig mirrors a typical monthly intake mix.
func DefaultLeadConfig(count int) LeadGeneratorConfig {
	return LeadGeneratorConfig{
		Count:       count,
		Sources:     DefaultSources,
		HotChance:   0.2,
		WarmChance:  0.4,
		EmailChance: 0.85,
		PhoneChance: 0.9,
		NotesChance: 0.3,
		MaxAgeDays:  30,
	}
}

// GenerateLead creates a single lead with realistic data
func GenerateLead(config LeadGeneratorConfig) models.Lead {
	first := gofakeit.FirstName()
	last := gofakeit.LastName()

	lead := models.Lead{
		Name:      first + " " + last,
		LeadScore: models.ScoreCold,
		Status:    models.StatusActive,
	}

	if rand.Float64() < config.EmailChance {
		lead.Email = strings.ToLower(fmt.Sprintf("%s.%s.%d@%s", first, last, rand.Intn(1000), gofakeit.DomainName()))
	}
	if rand.Float64() < config.PhoneChance {
		lead.Phone = gofakeit.Phone()
	}
	if len(config.Sources) > 0 {
		lead.Source = config.Sources[rand.Intn(len(config.Sources))]
	}
	if rand.Float64() < config.NotesChance {
		lead.Notes = gofakeit.Sentence(8)
	}

	switch r := rand.Float64(); {
	case r < config.HotChance:
		lead.LeadScore = models.ScoreHot
	case r < config.HotChance+(1-config.HotChance)*config.WarmChance:
		lead.LeadScore = models.ScoreWarm
	}

	created := time.Now().UTC()
	if config.MaxAgeDays > 0 {
		created = created.Add(-time.Duration(rand.Intn(config.MaxAgeDays*24)) * time.Hour)
	}
	lead.CreatedAt = created
	lead.UpdatedAt = created

	return lead
}

// GenerateLeads creates multiple leads with the given config
func GenerateLeads(config LeadGeneratorConfig) []models.Lead {
	leads := make([]models.Lead, config.Count)
	for i := 0; i < config.Count; i++ {
		leads[i] = GenerateLead(config)
	}
	return leads
}

// GenerateUser creates a team member with a fake identity. The password hash
// is left empty; callers that need logins go through the team service.
func GenerateUser(role models.Role) models.User {
	now := time.Now().UTC()
	return models.User{
		Name:          gofakeit.Name(),
		Email:         strings.ToLower(gofakeit.Email()),
		Phone:         gofakeit.Phone(),
		Role:          role,
		Status:        models.UserActive,
		Level:         1 + rand.Intn(5),
		ReferralToken: gofakeit.UUID(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// InsertLead stores lead as-is and returns its id. Zero timestamps become now.
func InsertLead(ctx context.Context, db *database.Client, lead models.Lead) (int, error) {
	now := time.Now().UTC()
	if lead.CreatedAt.IsZero() {
		lead.CreatedAt = now
	}
	if lead.UpdatedAt.IsZero() {
		lead.UpdatedAt = lead.CreatedAt
	}
	if lead.LeadScore == "" {
		lead.LeadScore = models.ScoreCold
	}
	if lead.Status == "" {
		lead.Status = models.StatusActive
	}

	insert := db.Builder().Insert("leads").
		Columns("name", "email", "phone", "source", "lead_score", "status", "assigned_to",
			"referral_code", "follow_up_date", "notes", "created_at", "updated_at").
		Values(lead.Name, lead.Email, lead.Phone, lead.Source, string(lead.LeadScore), string(lead.Status),
			database.NullableInt(lead.AssignedTo), lead.ReferralCode, database.NullableTime(lead.FollowUpDate),
			lead.Notes, lead.CreatedAt.UTC(), lead.UpdatedAt.UTC())
	return db.InsertID(ctx, db.DB, insert)
}

// InsertUser stores user as-is and returns its id.
func InsertUser(ctx context.Context, db *database.Client, user models.User) (int, error) {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
		user.UpdatedAt = now
	}
	if user.Role == "" {
		user.Role = models.RoleTeam
	}
	if user.Status == "" {
		user.Status = models.UserActive
	}
	if user.ReferralToken == "" {
		user.ReferralToken = gofakeit.UUID()
	}
	if user.Level == 0 {
		user.Level = 1
	}

	insert := db.Builder().Insert("users").
		Columns("name", "email", "phone", "password_hash", "role", "status", "level", "referral_token", "created_at", "updated_at").
		Values(user.Name, user.Email, user.Phone, user.PasswordHash, string(user.Role), string(user.Status),
			user.Level, user.ReferralToken, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	return db.InsertID(ctx, db.DB, insert)
}

// BulkInsertLeads inserts leads in batches, one multi-row statement per batch.
func BulkInsertLeads(ctx context.Context, db *database.Client, leads []models.Lead, batchSize int) error {
	if batchSize <= 0 {
		batchSize = 100
	}
	for i := 0; i < len(leads); i += batchSize {
		end := i + batchSize
		if end > len(leads) {
			end = len(leads)
		}

		insert := db.Builder().Insert("leads").
			Columns("name", "email", "phone", "source", "lead_score", "status", "assigned_to",
				"referral_code", "follow_up_date", "notes", "created_at", "updated_at")
		for _, lead := range leads[i:end] {
			insert.Values(lead.Name, lead.Email, lead.Phone, lead.Source, string(lead.LeadScore), string(lead.Status),
				database.NullableInt(lead.AssignedTo), lead.ReferralCode, database.NullableTime(lead.FollowUpDate),
				lead.Notes, lead.CreatedAt.UTC(), lead.UpdatedAt.UTC())
		}
		if _, err := database.Exec(ctx, db.DB, insert); err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}
