package duplicates

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"entgo.io/ent/dialect"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setupTest(t *testing.T) (*database.Client, *Service) {
	t.Helper()
	db := dbtest.Open(t)
	return db, NewService(db, logger.Nop(), Options{PhoneRegion: "US"})
}

// insertLeads stores the fixtures one minute apart, in order.
func insertLeads(t *testing.T, db *database.Client, fixtures ...models.Lead) []int {
	t.Helper()
	ids := make([]int, len(fixtures))
	for i, l := range fixtures {
		l.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		id, err := testdata.InsertLead(context.Background(), db, l)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestScan_EmailGroups(t *testing.T) {
	db, svc := setupTest(t)

	ids := insertLeads(t, db,
		models.Lead{Name: "Alpha One", Email: "shared@example.com"},
		models.Lead{Name: "Bravo Two", Email: "other@example.com"},
		models.Lead{Name: "Charlie Three", Email: "Shared@Example.com"},
		models.Lead{Name: "Delta Four", Email: ""},
		models.Lead{Name: "Echo Five", Email: ""},
		models.Lead{Name: "Foxtrot Six", Email: "shared@example.com"},
		models.Lead{Name: "Golf Seven", Email: "pair@example.com"},
		models.Lead{Name: "Hotel Eight", Email: "pair@example.com"},
	)

	report := svc.Scan(context.Background())
	require.False(t, report.Degraded)
	require.Len(t, report.EmailGroups, 2)

	largest := report.EmailGroups[0]
	assert.Equal(t, "shared@example.com", largest.Key)
	assert.Equal(t, []int{ids[0], ids[2], ids[5]}, largest.LeadIDs)
	assert.Equal(t, len(largest.LeadIDs), largest.Count)
	assert.Len(t, largest.Leads, largest.Count)
	assert.Equal(t, ids[0], largest.PrimaryID)

	pair := report.EmailGroups[1]
	assert.Equal(t, []int{ids[6], ids[7]}, pair.LeadIDs)
	assert.Equal(t, 2, pair.Count)
}

func TestScan_EveryEmailInExactlyOneGroup(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	emails := []string{"a@x.io", "b@x.io", "c@x.io"}
	var fixtures []models.Lead
	for i := 0; i < 12; i++ {
		fixtures = append(fixtures, models.Lead{Name: fmt.Sprintf("Lead Number %d", i), Email: emails[i%len(emails)]})
	}
	insertLeads(t, db, fixtures...)

	report := svc.Scan(ctx)
	seen := map[int]int{}
	for _, g := range report.EmailGroups {
		assert.Equal(t, len(g.LeadIDs), g.Count)
		for _, id := range g.LeadIDs {
			seen[id]++
		}
	}
	assert.Len(t, seen, 12)
	for id, n := range seen {
		assert.Equal(t, 1, n, "lead %d appears in %d groups", id, n)
	}
}

func TestScan_PhoneGroupsNormalize(t *testing.T) {
	db, svc := setupTest(t)

	ids := insertLeads(t, db,
		models.Lead{Name: "Alpha One", Phone: "(202) 555-0173"},
		models.Lead{Name: "Bravo Two", Phone: "+1 202 555 0173"},
		models.Lead{Name: "Charlie Three", Phone: "202.555.0199"},
	)

	report := svc.Scan(context.Background())
	require.Len(t, report.PhoneGroups, 1)
	assert.Equal(t, "+12025550173", report.PhoneGroups[0].Key)
	assert.Equal(t, []int{ids[0], ids[1]}, report.PhoneGroups[0].LeadIDs)
}

func TestScan_NamePairs(t *testing.T) {
	db, svc := setupTest(t)

	ids := insertLeads(t, db,
		models.Lead{Name: "Jon Smith"},
		models.Lead{Name: "Maria Lopez"},
		models.Lead{Name: "John Smyth"},
		models.Lead{Name: "María López"},
	)

	report := svc.Scan(context.Background())
	require.Len(t, report.NamePairs, 2)

	assert.Equal(t, ids[0], report.NamePairs[0].LeadA.ID)
	assert.Equal(t, ids[2], report.NamePairs[0].LeadB.ID)
	assert.Equal(t, ids[0], report.NamePairs[0].PrimaryID)
	assert.Equal(t, ids[1], report.NamePairs[1].LeadA.ID)
	assert.Equal(t, ids[3], report.NamePairs[1].LeadB.ID)
	assert.Equal(t, 0, report.NamePairs[1].Distance)
}

func TestScan_NamePairsCapped(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db, logger.Nop(), Options{PairCap: 3})

	var fixtures []models.Lead
	for i := 0; i < 6; i++ {
		fixtures = append(fixtures, models.Lead{Name: "Same Person"})
	}
	insertLeads(t, db, fixtures...)

	report := svc.Scan(context.Background())
	assert.Len(t, report.NamePairs, 3)
}

func TestScan_FailsOpen(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	svc := NewService(database.NewFromDB(sqlDB, dialect.Postgres), logger.Nop(), Options{})
	mock.ExpectQuery("SELECT (.+) FROM \"leads\"").WillReturnError(errors.New("connection refused"))

	report := svc.Scan(context.Background())
	assert.True(t, report.Degraded)
	assert.Empty(t, report.EmailGroups)
	assert.Empty(t, report.PhoneGroups)
	assert.Empty(t, report.NamePairs)
	assert.Equal(t, 0, report.Total())
}

func TestMerge(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()
	acts := activity.NewService(db)

	follow := base.AddDate(0, 1, 0)
	ids := insertLeads(t, db,
		models.Lead{Name: "Primary Person", Email: "p@example.com", Phone: "555-0100", Source: "Website",
			LeadScore: models.ScoreHot, FollowUpDate: &follow, Notes: "called twice"},
		models.Lead{Name: "Primary Persn", Email: "p@example.com", Source: "Facebook", Notes: "prefers WhatsApp"},
	)
	primaryID, dupID := ids[0], ids[1]
	require.NoError(t, acts.Log(ctx, activity.Entry{LeadID: dupID, ActivityType: activity.TypeNote, Description: "dup note"}))

	before, err := leads.Load(ctx, db, db.DB, primaryID)
	require.NoError(t, err)

	merged, err := svc.Merge(ctx, primaryID, dupID, 0)
	require.NoError(t, err)

	_, err = leads.Load(ctx, db, db.DB, dupID)
	assert.True(t, domain.IsNotFound(err))

	assert.Contains(t, merged.Notes, before.Notes)
	assert.Contains(t, merged.Notes, "prefers WhatsApp")
	assert.Contains(t, merged.Notes, fmt.Sprintf("Merged from lead #%d", dupID))

	assert.Equal(t, before.Name, merged.Name)
	assert.Equal(t, before.Email, merged.Email)
	assert.Equal(t, before.Phone, merged.Phone)
	assert.Equal(t, before.Source, merged.Source)
	assert.Equal(t, before.LeadScore, merged.LeadScore)
	assert.Equal(t, before.Status, merged.Status)
	assert.Equal(t, before.AssignedTo, merged.AssignedTo)
	require.NotNil(t, merged.FollowUpDate)
	assert.True(t, before.FollowUpDate.Equal(*merged.FollowUpDate))
	assert.True(t, before.CreatedAt.Equal(merged.CreatedAt))

	counts, err := acts.CountByType(ctx, activity.Filter{LeadID: primaryID})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[activity.TypeNote])
	assert.Equal(t, 1, counts[activity.TypeMerge])
}

func TestMerge_Validation(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()
	ids := insertLeads(t, db, models.Lead{Name: "Only One"})

	_, err := svc.Merge(ctx, ids[0], ids[0], 0)
	assert.True(t, domain.IsValidation(err))

	_, err = svc.Merge(ctx, 0, ids[0], 0)
	assert.True(t, domain.IsValidation(err))

	_, err = svc.Merge(ctx, ids[0], 999, 0)
	assert.True(t, domain.IsNotFound(err))

	lead, err := leads.Load(ctx, db, db.DB, ids[0])
	require.NoError(t, err)
	assert.Empty(t, lead.Notes)
}

func TestMerge_RollsBackWhenDeleteFails(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	svc := NewService(database.NewFromDB(sqlDB, dialect.Postgres), logger.Nop(), Options{})
	columns := []string{"id", "name", "email", "phone", "source", "lead_score", "status", "assigned_to",
		"referral_code", "follow_up_date", "notes", "created_at", "updated_at", "name"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM \"leads\"").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(1, "Primary", "p@example.com", "", "", "HOT", "active", nil, "", nil, "old", base, base, nil))
	mock.ExpectQuery("SELECT (.+) FROM \"leads\"").
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow(2, "Dup", "p@example.com", "", "", "COLD", "active", nil, "", nil, "new", base, base, nil))
	mock.ExpectExec("UPDATE \"leads\" SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE \"lead_activities\" SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO \"lead_activities\"").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM \"leads\"").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err = svc.Merge(context.Background(), 1, 2, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotDuplicate(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	ids := insertLeads(t, db,
		models.Lead{Name: "Sam Taylor", Email: "family@example.com", Notes: "father"},
		models.Lead{Name: "Sam Taylor", Email: "family@example.com"},
	)

	before := svc.Scan(ctx)
	require.Len(t, before.EmailGroups, 1)
	require.Len(t, before.NamePairs, 1)

	require.NoError(t, svc.MarkNotDuplicate(ctx, ids[1], ids[0], 0))

	after := svc.Scan(ctx)
	assert.Empty(t, after.EmailGroups)
	assert.Empty(t, after.NamePairs)

	a, err := leads.Load(ctx, db, db.DB, ids[0])
	require.NoError(t, err)
	assert.Contains(t, a.Notes, "father")
	assert.Contains(t, a.Notes, fmt.Sprintf("not a duplicate of lead #%d", ids[1]))

	b, err := leads.Load(ctx, db, db.DB, ids[1])
	require.NoError(t, err)
	assert.Contains(t, b.Notes, fmt.Sprintf("not a duplicate of lead #%d", ids[0]))

	// a second mark changes nothing
	require.NoError(t, svc.MarkNotDuplicate(ctx, ids[0], ids[1], 0))
	again, err := leads.Load(ctx, db, db.DB, ids[0])
	require.NoError(t, err)
	assert.Equal(t, a.Notes, again.Notes)
}

func TestMarkNotDuplicate_GroupStaysWhileAnyPairOpen(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	ids := insertLeads(t, db,
		models.Lead{Name: "Alpha One", Email: "trio@example.com"},
		models.Lead{Name: "Bravo Two", Email: "trio@example.com"},
		models.Lead{Name: "Charlie Three", Email: "trio@example.com"},
	)
	require.NoError(t, svc.MarkNotDuplicate(ctx, ids[0], ids[1], 0))

	report := svc.Scan(ctx)
	require.Len(t, report.EmailGroups, 1)
	assert.Equal(t, 3, report.EmailGroups[0].Count)
}

func TestMarkNotDuplicate_Validation(t *testing.T) {
	_, svc := setupTest(t)

	assert.True(t, domain.IsValidation(svc.MarkNotDuplicate(context.Background(), 1, 1, 0)))
	assert.True(t, domain.IsNotFound(svc.MarkNotDuplicate(context.Background(), 1, 2, 0)))
}
