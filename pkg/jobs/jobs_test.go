package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/duplicates"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/messaging"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/slack"
	"github.com/jordanlanch/leaddesk/pkg/testdata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)

func insertMember(t *testing.T, db *database.Client, name string, status models.UserStatus) int {
	t.Helper()
	u := testdata.GenerateUser(models.RoleTeam)
	u.Name = name
	u.Status = status
	id, err := testdata.InsertUser(context.Background(), db, u)
	require.NoError(t, err)
	return id
}

func insertLead(t *testing.T, db *database.Client, name string, assignee int, due time.Time, status models.LeadStatus) int {
	t.Helper()
	l := testdata.GenerateLead(testdata.DefaultLeadConfig(1))
	l.Name = name
	l.Email = ""
	l.Status = status
	if assignee > 0 {
		l.AssignedTo = &assignee
	}
	if !due.IsZero() {
		l.FollowUpDate = &due
	}
	id, err := testdata.InsertLead(context.Background(), db, l)
	require.NoError(t, err)
	return id
}

func TestFollowUpReminder_Run(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	msgs := messaging.NewService(db, nil, logger.Nop())
	r := NewFollowUpReminder(db, msgs, logger.Nop())
	r.now = func() time.Time { return today }

	ana := insertMember(t, db, "Ana", models.UserActive)
	ben := insertMember(t, db, "Ben", models.UserActive)
	gone := insertMember(t, db, "Gone", models.UserInactive)

	overdue := insertLead(t, db, "Overdue Lead", ana, today.AddDate(0, 0, -3), models.StatusFollowUp)
	dueToday := insertLead(t, db, "Due Today", ana, today.Add(6*time.Hour), models.StatusActive)
	bens := insertLead(t, db, "Ben Lead", ben, today.Add(-time.Hour), models.StatusFollowUp)
	insertLead(t, db, "Tomorrow", ana, today.AddDate(0, 0, 1), models.StatusFollowUp)
	insertLead(t, db, "Converted", ana, today.AddDate(0, 0, -1), models.StatusConverted)
	insertLead(t, db, "Unassigned", 0, today.AddDate(0, 0, -1), models.StatusFollowUp)
	insertLead(t, db, "Inactive Owner", gone, today.AddDate(0, 0, -1), models.StatusFollowUp)
	insertLead(t, db, "No Date", ana, time.Time{}, models.StatusActive)

	n, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	inbox, err := msgs.Inbox(ctx, ana, false)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "2 follow-ups due", inbox[0].Subject)
	assert.Nil(t, inbox[0].SenderID)
	assert.Contains(t, inbox[0].Body, "Overdue Lead")
	assert.Contains(t, inbox[0].Body, "Due Today")
	assert.NotContains(t, inbox[0].Body, "Tomorrow")

	inbox, err = msgs.Inbox(ctx, ben, false)
	require.NoError(t, err)
	require.Len(t, inbox, 1)
	assert.Equal(t, "Follow-up due: Ben Lead", inbox[0].Subject)

	inbox, err = msgs.Inbox(ctx, gone, false)
	require.NoError(t, err)
	assert.Empty(t, inbox)

	acts := activity.NewService(db)
	for _, id := range []int{overdue, dueToday, bens} {
		list, err := acts.List(ctx, activity.Filter{LeadID: id})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, activity.TypeFollowUpReminder, list[0].ActivityType)
	}

	t.Run("second run on the same day is a no-op", func(t *testing.T) {
		r.now = func() time.Time { return today.Add(2 * time.Hour) }
		n, err := r.Run(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		inbox, err := msgs.Inbox(ctx, ana, false)
		require.NoError(t, err)
		assert.Len(t, inbox, 1)
	})
}

func TestCronManager_Jobs(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	m := metrics.New(prometheus.NewRegistry())
	dups := duplicates.NewService(db, logger.Nop(), duplicates.Options{PhoneRegion: "US"})
	cm := NewCronManager(db, messaging.NewService(db, nil, logger.Nop()), dups, m, logger.Nop())

	for _, l := range []models.Lead{
		{Name: "Alpha One", Email: "same@example.com"},
		{Name: "Bravo Two", Email: "same@example.com"},
	} {
		_, err := testdata.InsertLead(ctx, db, l)
		require.NoError(t, err)
	}

	cm.run(ctx, JobDuplicateScan, cm.RefreshDuplicateGauge)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateGroups.WithLabelValues("email")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DuplicateGroups.WithLabelValues("phone")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(JobDuplicateScan, "success")))

	cm.run(ctx, JobDBStats, cm.RecordDBStats)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.DBConnections), 1.0)

	require.NoError(t, db.Close())
	cm.run(ctx, JobDuplicateScan, cm.RefreshDuplicateGauge)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobRuns.WithLabelValues(JobDuplicateScan, "failed")))
}

type recordingSlack struct{ texts []string }

func (r *recordingSlack) SendMessage(_ context.Context, msg slack.Message) error {
	r.texts = append(r.texts, msg.Text)
	return nil
}

func TestCronManager_DuplicateNotification(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	dups := duplicates.NewService(db, logger.Nop(), duplicates.Options{PhoneRegion: "US"})
	cm := NewCronManager(db, nil, dups, nil, logger.Nop())
	rec := &recordingSlack{}
	cm.SetSlack(slack.NewService(rec))

	require.NoError(t, cm.RefreshDuplicateGauge(ctx))
	assert.Empty(t, rec.texts, "nothing to report")

	for _, l := range []models.Lead{
		{Name: "Alpha One", Email: "same@example.com"},
		{Name: "Bravo Two", Email: "same@example.com"},
	} {
		_, err := testdata.InsertLead(ctx, db, l)
		require.NoError(t, err)
	}
	require.NoError(t, cm.RefreshDuplicateGauge(ctx))
	require.NoError(t, cm.RefreshDuplicateGauge(ctx))
	assert.Len(t, rec.texts, 1, "unchanged counts are posted once")
}

func TestCronManager_SetupJobs(t *testing.T) {
	db := dbtest.Open(t)
	cm := NewCronManager(db, messaging.NewService(db, nil, logger.Nop()), nil, nil, nil)

	require.NoError(t, cm.SetupJobs(Schedules{}))
	assert.Len(t, cm.cron.Entries(), 3)

	bad := NewCronManager(db, nil, nil, nil, nil)
	err := bad.SetupJobs(Schedules{FollowUpReminders: "every morning"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), JobFollowUpReminders)

	cm.Start()
	<-cm.Stop().Done()
}
