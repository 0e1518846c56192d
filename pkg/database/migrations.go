package database

import (
	"context"
	"fmt"
	"time"

	"entgo.io/ent/dialect/sql/schema"
	"github.com/jordanlanch/leaddesk/pkg/logger"
)

// Migration is one versioned schema step.
type Migration struct {
	Version int
	Name    string
	Tables  []*schema.Table
}

// Migrations is the ordered migration set. Versions are never renumbered.
var Migrations = []Migration{
	{Version: 1, Name: "core", Tables: []*schema.Table{UsersTable, LeadsTable, LeadActivitiesTable}},
	{Version: 2, Name: "categories_and_rules", Tables: []*schema.Table{LeadCategoriesTable, LeadCategoryAssignmentsTable, AssignmentRulesTable}},
	{Version: 3, Name: "team_messaging", Tables: []*schema.Table{TeamMessagesTable, TeamAnnouncementsTable}},
	{Version: 4, Name: "content", Tables: []*schema.Table{LandingPagesTable, CertificatesTable, GoalsTable, TrainingMaterialsTable}},
	{Version: 5, Name: "integrations_and_suppressions", Tables: []*schema.Table{IntegrationSettingsTable, DuplicateSuppressionsTable}},
}

const createSchemaMigrations = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version INTEGER PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMP NOT NULL
)`

// Migrate applies every pending migration in version order and records it
// in schema_migrations. Each step is planned against all tables up to and
// including its version so foreign keys always resolve.
func (c *Client) Migrate(ctx context.Context, log logger.Logger) error {
	if _, err := c.DB.ExecContext(ctx, createSchemaMigrations); err != nil {
		return fmt.Errorf("failed creating schema_migrations: %w", err)
	}

	applied, err := c.appliedVersions(ctx)
	if err != nil {
		return err
	}

	migrate, err := schema.NewMigrate(c.Driver)
	if err != nil {
		return fmt.Errorf("failed preparing migrations: %w", err)
	}

	var tables []*schema.Table
	for _, m := range Migrations {
		tables = append(tables, m.Tables...)
		if applied[m.Version] {
			continue
		}

		if err := migrate.Create(ctx, tables...); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Name, err)
		}

		insert := c.Builder().Insert("schema_migrations").
			Columns("version", "name", "applied_at").
			Values(m.Version, m.Name, time.Now().UTC())
		if _, err := Exec(ctx, c.DB, insert); err != nil {
			return fmt.Errorf("failed recording migration %d: %w", m.Version, err)
		}

		log.Info("migration applied", "version", m.Version, "name", m.Name)
	}

	return nil
}

// AppliedVersions lists the recorded migration versions in ascending order.
func (c *Client) AppliedVersions(ctx context.Context) ([]int, error) {
	query, args := c.Builder().Select("version").From(c.Builder().Table("schema_migrations")).OrderBy("version").Query()
	rows, err := c.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed reading schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func (c *Client) appliedVersions(ctx context.Context) (map[int]bool, error) {
	versions, err := c.AppliedVersions(ctx)
	if err != nil {
		return nil, err
	}
	applied := make(map[int]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}
