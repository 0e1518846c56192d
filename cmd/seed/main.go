// Command seed fills a development database with an admin, a few team
// members and fake leads spread over the last month.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/leaddesk/config"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/team"
	"github.com/jordanlanch/leaddesk/pkg/testdata"
)

func main() {
	count := flag.Int("leads", 500, "Number of leads to generate")
	members := flag.Int("members", 4, "Number of team members to create")
	reset := flag.Bool("reset", false, "Delete all existing leads before seeding")
	batchSize := flag.Int("batch-size", 100, "Number of leads to insert per batch")
	adminEmail := flag.String("admin-email", "admin@leaddesk.local", "Email of the seeded admin")
	adminPassword := flag.String("admin-password", "change-me-please", "Password of the seeded admin")
	memberPassword := flag.String("member-password", "team-member-pass", "Password shared by seeded members")
	flag.Parse()

	if err := run(*count, *members, *reset, *batchSize, *adminEmail, *adminPassword, *memberPassword); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run(count, members int, reset bool, batchSize int, adminEmail, adminPassword, memberPassword string) error {
	cfg := config.Load()
	log, err := logger.New("info", "console", "leaddesk-seed")
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, database.DefaultPoolConfig(), nil, log)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx, log); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if reset {
		n, err := database.Exec(ctx, db.DB, db.Builder().Delete("leads"))
		if err != nil {
			return fmt.Errorf("failed to reset leads: %w", err)
		}
		log.Info("deleted existing leads", "count", n)
	}

	svc := team.NewService(db)
	if _, err := createMember(ctx, svc, team.CreateMemberRequest{
		Name:     "Admin",
		Email:    adminEmail,
		Password: adminPassword,
		Role:     models.RoleAdmin,
	}); err != nil {
		return err
	}

	var memberIDs []int
	for i := 0; i < members; i++ {
		fake := testdata.GenerateUser(models.RoleTeam)
		u, err := createMember(ctx, svc, team.CreateMemberRequest{
			Name:     fake.Name,
			Email:    fake.Email,
			Phone:    fake.Phone,
			Password: memberPassword,
			Level:    fake.Level,
		})
		if err != nil {
			return err
		}
		if u != nil {
			memberIDs = append(memberIDs, u.ID)
		}
	}

	leads := testdata.GenerateLeads(testdata.DefaultLeadConfig(count))
	for i := range leads {
		// Roughly two out of three leads are already owned by someone.
		if len(memberIDs) > 0 && rand.Intn(3) > 0 {
			id := memberIDs[rand.Intn(len(memberIDs))]
			leads[i].AssignedTo = &id
		}
		if leads[i].LeadScore == models.ScoreHot && rand.Intn(2) == 0 {
			due := gofakeit.DateRange(time.Now().AddDate(0, 0, -3), time.Now().AddDate(0, 0, 7)).UTC()
			leads[i].FollowUpDate = &due
			leads[i].Status = models.StatusFollowUp
		}
	}
	if err := testdata.BulkInsertLeads(ctx, db, leads, batchSize); err != nil {
		return err
	}

	log.Info("seed complete", "leads", len(leads), "members", len(memberIDs), "admin", adminEmail)
	return nil
}

// createMember skips accounts that already exist so the seed can be rerun.
func createMember(ctx context.Context, svc *team.Service, req team.CreateMemberRequest) (*models.User, error) {
	u, err := svc.Create(ctx, req)
	if domain.IsConflict(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", req.Email, err)
	}
	return u, nil
}
