package activity

import (
	"context"
	"testing"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_Validation(t *testing.T) {
	svc := NewService(dbtest.Open(t))
	ctx := context.Background()

	err := svc.Log(ctx, Entry{ActivityType: TypeNote})
	assert.True(t, domain.IsValidation(err))

	err = svc.Log(ctx, Entry{LeadID: 1})
	assert.True(t, domain.IsValidation(err))
}

func TestListAndCount(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db)
	ctx := context.Background()

	userID, err := testdata.InsertUser(ctx, db, models.User{Name: "Dana Ortiz", Email: "dana@example.com"})
	require.NoError(t, err)
	leadA, err := testdata.InsertLead(ctx, db, models.Lead{Name: "Acme Gym", Email: "gym@acme.test"})
	require.NoError(t, err)
	leadB, err := testdata.InsertLead(ctx, db, models.Lead{Name: "Blue Spa", Email: "hello@bluespa.test"})
	require.NoError(t, err)

	day := func(d int) time.Time { return time.Date(2026, 10, d, 9, 30, 0, 0, time.UTC) }
	entries := []struct {
		at time.Time
		e  Entry
	}{
		{day(1), Entry{LeadID: leadA, ActivityType: TypeCreated, Description: "Lead created"}},
		{day(2), Entry{LeadID: leadA, ActorID: userID, ActivityType: TypeAssigned, Description: "Assigned to Dana Ortiz"}},
		{day(3), Entry{LeadID: leadB, ActivityType: TypeCreated, Description: "Lead created"}},
		{day(5), Entry{LeadID: leadB, ActorID: userID, ActivityType: TypeNote, Description: "Called back"}},
	}
	for _, e := range entries {
		at := e.at
		svc.now = func() time.Time { return at }
		require.NoError(t, svc.Log(ctx, e.e))
	}

	t.Run("newest first with names", func(t *testing.T) {
		list, err := svc.List(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, list, 4)
		assert.Equal(t, TypeNote, list[0].ActivityType)
		assert.Equal(t, "Blue Spa", list[0].LeadName)
		assert.Equal(t, "Dana Ortiz", list[0].UserName)
		require.NotNil(t, list[0].UserID)
		assert.Equal(t, userID, *list[0].UserID)

		system := list[3]
		assert.Equal(t, "Acme Gym", system.LeadName)
		assert.Nil(t, system.UserID)
		assert.Empty(t, system.UserName)
	})

	t.Run("filters", func(t *testing.T) {
		list, err := svc.List(ctx, Filter{LeadID: leadA})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = svc.List(ctx, Filter{UserID: userID})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		list, err = svc.List(ctx, Filter{ActivityType: TypeCreated})
		require.NoError(t, err)
		assert.Len(t, list, 2)

		from := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)
		list, err = svc.List(ctx, Filter{DateFrom: &from, DateTo: &to})
		require.NoError(t, err)
		require.Len(t, list, 2, "date_to includes the whole day")
		assert.Equal(t, leadB, list[0].LeadID)
		assert.Equal(t, leadA, list[1].LeadID)

		list, err = svc.List(ctx, Filter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("count by type", func(t *testing.T) {
		counts, err := svc.CountByType(ctx, Filter{})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{TypeCreated: 2, TypeAssigned: 1, TypeNote: 1}, counts)

		counts, err = svc.CountByType(ctx, Filter{LeadID: leadB})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{TypeCreated: 1, TypeNote: 1}, counts)
	})

	t.Run("delete", func(t *testing.T) {
		list, err := svc.List(ctx, Filter{ActivityType: TypeNote})
		require.NoError(t, err)
		require.Len(t, list, 1)

		require.NoError(t, svc.Delete(ctx, list[0].ID))
		assert.True(t, domain.IsNotFound(svc.Delete(ctx, list[0].ID)))

		list, err = svc.List(ctx, Filter{ActivityType: TypeNote})
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestWriteMany(t *testing.T) {
	db := dbtest.Open(t)
	svc := NewService(db)
	ctx := context.Background()

	var ids []int
	for _, name := range []string{"One", "Two", "Three"} {
		id, err := testdata.InsertLead(ctx, db, models.Lead{Name: name})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	at := time.Date(2026, 10, 12, 15, 0, 0, 0, time.UTC)
	require.NoError(t, WriteMany(ctx, db, db.DB, ids, 0, TypeBulkAction, "Status set to lost", at))

	list, err := svc.List(ctx, Filter{ActivityType: TypeBulkAction})
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, a := range list {
		assert.Equal(t, "Status set to lost", a.Description)
		assert.True(t, at.Equal(a.CreatedAt))
	}
}
