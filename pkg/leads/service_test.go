package leads

import (
	"context"
	"testing"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) (*database.Client, *Service) {
	t.Helper()
	db := dbtest.Open(t)
	return db, NewService(db)
}

func createMember(t *testing.T, db *database.Client, status models.UserStatus) int {
	t.Helper()
	u := testdata.GenerateUser(models.RoleTeam)
	u.Status = status
	id, err := testdata.InsertUser(context.Background(), db, u)
	require.NoError(t, err)
	return id
}

func TestService_Create(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	lead, err := svc.Create(ctx, CreateInput{
		Name:   "  Ana Lopez ",
		Email:  "ana@example.com",
		Phone:  "+1 555 0100",
		Source: "Website",
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, "Ana Lopez", lead.Name)
	assert.Equal(t, models.ScoreCold, lead.LeadScore)
	assert.Equal(t, models.StatusActive, lead.Status)
	assert.Nil(t, lead.AssignedTo)

	acts, err := activity.NewService(db).List(ctx, activity.Filter{LeadID: lead.ID})
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, activity.TypeCreated, acts[0].ActivityType)
}

func TestService_Create_Validation(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()
	inactive := createMember(t, db, models.UserInactive)

	tests := []struct {
		name  string
		input CreateInput
	}{
		{"missing name", CreateInput{Name: "   "}},
		{"invalid email", CreateInput{Name: "Bob", Email: "not-an-email"}},
		{"invalid score", CreateInput{Name: "Bob", LeadScore: "BOILING"}},
		{"invalid status", CreateInput{Name: "Bob", Status: "archived"}},
		{"inactive assignee", CreateInput{Name: "Bob", AssignedTo: &inactive}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.input, 0)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err), "got %v", err)
		})
	}

	res, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Pagination.Total)
}

func TestService_Get_NotFound(t *testing.T) {
	_, svc := setupTest(t)

	_, err := svc.Get(context.Background(), 999)
	assert.True(t, domain.IsNotFound(err))
}

func TestService_List_Filters(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()
	member := createMember(t, db, models.UserActive)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fixtures := []models.Lead{
		{Name: "Hot Website", Email: "hw@example.com", Source: "Website", LeadScore: models.ScoreHot, CreatedAt: base},
		{Name: "Cold Website", Source: "Website", LeadScore: models.ScoreCold, CreatedAt: base.Add(time.Hour)},
		{Name: "Warm Referral", Source: "Referral", LeadScore: models.ScoreWarm, AssignedTo: &member, CreatedAt: base.Add(2 * time.Hour)},
		{Name: "Converted Event", Source: "Event", Status: models.StatusConverted, CreatedAt: base.AddDate(0, 0, 3)},
	}
	for _, l := range fixtures {
		_, err := testdata.InsertLead(ctx, db, l)
		require.NoError(t, err)
	}

	day := base.Truncate(24 * time.Hour)
	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all newest first", Filter{}, []string{"Converted Event", "Warm Referral", "Cold Website", "Hot Website"}},
		{"by score", Filter{LeadScore: models.ScoreHot}, []string{"Hot Website"}},
		{"by status", Filter{Status: models.StatusConverted}, []string{"Converted Event"}},
		{"by source", Filter{Source: "Website"}, []string{"Cold Website", "Hot Website"}},
		{"search is case-insensitive", Filter{Search: "website"}, []string{"Cold Website", "Hot Website"}},
		{"search matches email", Filter{Search: "HW@EXAMPLE"}, []string{"Hot Website"}},
		{"assigned to", Filter{AssignedTo: member}, []string{"Warm Referral"}},
		{"unassigned", Filter{Unassigned: true, Source: "Referral"}, nil},
		{"date range is inclusive", Filter{DateFrom: &day, DateTo: &day}, []string{"Warm Referral", "Cold Website", "Hot Website"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.List(ctx, tt.filter)
			require.NoError(t, err)

			var names []string
			for _, l := range res.Data {
				names = append(names, l.Name)
			}
			assert.Equal(t, tt.want, names)
			assert.Equal(t, len(tt.want), res.Pagination.Total)
		})
	}
}

func TestService_List_AssigneeName(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	u := testdata.GenerateUser(models.RoleTeam)
	u.Name = "Maria Team"
	memberID, err := testdata.InsertUser(ctx, db, u)
	require.NoError(t, err)
	_, err = testdata.InsertLead(ctx, db, models.Lead{Name: "Owned", AssignedTo: &memberID})
	require.NoError(t, err)

	res, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "Maria Team", res.Data[0].AssignedToName)
}

func TestService_List_Pagination(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	require.NoError(t, testdata.BulkInsertLeads(ctx, db, testdata.GenerateLeads(testdata.DefaultLeadConfig(25)), 10))

	res, err := svc.List(ctx, Filter{Page: 3, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, res.Data, 5)
	assert.Equal(t, 25, res.Pagination.Total)
	assert.Equal(t, 3, res.Pagination.TotalPages)
	assert.False(t, res.Pagination.HasNext)
	assert.True(t, res.Pagination.HasPrev)
}

func TestService_List_InvalidFilter(t *testing.T) {
	_, svc := setupTest(t)

	_, err := svc.List(context.Background(), Filter{LeadScore: "hot"})
	assert.True(t, domain.IsValidation(err))
}

func TestService_Update_Partial(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Carlos", Email: "c@example.com", Source: "Facebook", Notes: "first call"}, 0)
	require.NoError(t, err)

	status := models.StatusConverted
	score := models.ScoreHot
	updated, err := svc.Update(ctx, created.ID, UpdateInput{Status: &status, LeadScore: &score}, 0)
	require.NoError(t, err)

	assert.Equal(t, models.StatusConverted, updated.Status)
	assert.Equal(t, models.ScoreHot, updated.LeadScore)
	assert.Equal(t, "Carlos", updated.Name)
	assert.Equal(t, "c@example.com", updated.Email)
	assert.Equal(t, "first call", updated.Notes)

	counts, err := activity.NewService(db).CountByType(ctx, activity.Filter{LeadID: created.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, counts[activity.TypeStatusChange])
	assert.Equal(t, 1, counts[activity.TypeScoreChange])
}

func TestService_Update_FollowUp(t *testing.T) {
	_, svc := setupTest(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Dana"}, 0)
	require.NoError(t, err)

	date := time.Date(2026, 11, 2, 0, 0, 0, 0, time.UTC)
	updated, err := svc.Update(ctx, created.ID, UpdateInput{FollowUpDate: &date}, 0)
	require.NoError(t, err)
	require.NotNil(t, updated.FollowUpDate)
	assert.True(t, date.Equal(*updated.FollowUpDate))

	cleared, err := svc.Update(ctx, created.ID, UpdateInput{ClearFollowUp: true}, 0)
	require.NoError(t, err)
	assert.Nil(t, cleared.FollowUpDate)
}

func TestService_Update_NotFound(t *testing.T) {
	_, svc := setupTest(t)
	name := "x"

	_, err := svc.Update(context.Background(), 404, UpdateInput{Name: &name}, 0)
	assert.True(t, domain.IsNotFound(err))
}

func TestService_Delete(t *testing.T) {
	_, svc := setupTest(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreateInput{Name: "Eve"}, 0)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	assert.True(t, domain.IsNotFound(err))

	assert.True(t, domain.IsNotFound(svc.Delete(ctx, created.ID)))
}

func TestService_EmailExists(t *testing.T) {
	_, svc := setupTest(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "Fay", Email: "Fay@Example.com"}, 0)
	require.NoError(t, err)

	exists, err := svc.EmailExists(ctx, "fay@example.COM")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = svc.EmailExists(ctx, "other@example.com")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = svc.EmailExists(ctx, "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestService_Assign(t *testing.T) {
	db, svc := setupTest(t)
	ctx := context.Background()
	member := createMember(t, db, models.UserActive)
	inactive := createMember(t, db, models.UserInactive)

	created, err := svc.Create(ctx, CreateInput{Name: "Gus"}, 0)
	require.NoError(t, err)

	lead, err := svc.Assign(ctx, created.ID, &member, 0)
	require.NoError(t, err)
	require.NotNil(t, lead.AssignedTo)
	assert.Equal(t, member, *lead.AssignedTo)

	_, err = svc.Assign(ctx, created.ID, &inactive, 0)
	assert.True(t, domain.IsValidation(err))

	lead, err = svc.Assign(ctx, created.ID, nil, 0)
	require.NoError(t, err)
	assert.Nil(t, lead.AssignedTo)

	_, err = svc.Assign(ctx, 9999, &member, 0)
	assert.True(t, domain.IsNotFound(err))
}
