package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/messaging"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// FollowUpReminder tells assignees about leads whose follow-up date has come.
type FollowUpReminder struct {
	db       *database.Client
	messages *messaging.Service
	log      logger.Logger
	now      func() time.Time
}

// NewFollowUpReminder creates the reminder job.
func NewFollowUpReminder(db *database.Client, messages *messaging.Service, log logger.Logger) *FollowUpReminder {
	return &FollowUpReminder{db: db, messages: messages, log: log, now: time.Now}
}

// Run sends one system message per active assignee listing their due leads
// and logs a reminder activity on each lead. A lead is reminded at most once
// per UTC day. It returns the number of leads reminded.
func (r *FollowUpReminder) Run(ctx context.Context) (int, error) {
	now := r.now().UTC()
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	endOfDay := startOfDay.Add(24*time.Hour - time.Nanosecond)

	due, err := r.dueLeads(ctx, endOfDay)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}
	reminded, err := r.remindedSince(ctx, startOfDay)
	if err != nil {
		return 0, err
	}

	byAssignee := map[int][]models.Lead{}
	for _, lead := range due {
		if reminded[lead.ID] {
			continue
		}
		byAssignee[*lead.AssignedTo] = append(byAssignee[*lead.AssignedTo], lead)
	}
	assignees := make([]int, 0, len(byAssignee))
	for id := range byAssignee {
		assignees = append(assignees, id)
	}
	sort.Ints(assignees)

	total := 0
	for _, userID := range assignees {
		list := byAssignee[userID]
		_, err := r.messages.Send(ctx, messaging.SendRequest{
			RecipientID: userID,
			Subject:     reminderSubject(list),
			Body:        reminderBody(list),
		}, 0)
		if err != nil {
			r.log.Error("failed to send follow-up reminder", "user_id", userID, "error", err)
			continue
		}

		err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
			for _, lead := range list {
				entry := activity.Entry{
					LeadID:       lead.ID,
					ActivityType: activity.TypeFollowUpReminder,
					Description:  "Follow-up reminder sent to " + lead.AssignedToName,
				}
				if err := activity.Write(ctx, r.db, tx, entry, now); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			r.log.Error("failed to record follow-up reminders", "user_id", userID, "error", err)
			continue
		}
		total += len(list)
	}
	return total, nil
}

// dueLeads returns open leads with a follow-up on or before by that are
// assigned to an active user, oldest follow-up first.
func (r *FollowUpReminder) dueLeads(ctx context.Context, by time.Time) ([]models.Lead, error) {
	b := r.db.Builder()
	users := b.Table("users")
	active := b.Select(users.C("id")).From(users).Where(entsql.EQ(users.C("status"), string(models.UserActive)))

	sel, l := leads.Select(b)
	sel.Where(entsql.And(
		entsql.NotNull(l.C("follow_up_date")),
		entsql.LTE(l.C("follow_up_date"), by),
		entsql.In(l.C("assigned_to"), active),
		entsql.NotIn(l.C("status"), string(models.StatusConverted), string(models.StatusLost)),
	)).OrderBy(l.C("follow_up_date"), l.C("id"))

	query, args := sel.Query()
	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load due follow-ups: %w", err)
	}
	return leads.ScanRows(rows)
}

func (r *FollowUpReminder) remindedSince(ctx context.Context, since time.Time) (map[int]bool, error) {
	b := r.db.Builder()
	t := b.Table("lead_activities")
	query, args := b.Select(t.C("lead_id")).
		From(t).
		Where(entsql.And(
			entsql.EQ(t.C("activity_type"), activity.TypeFollowUpReminder),
			entsql.GTE(t.C("created_at"), since),
		)).
		Query()
	rows, err := r.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent reminders: %w", err)
	}
	defer rows.Close()

	out := map[int]bool{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func reminderSubject(list []models.Lead) string {
	if len(list) == 1 {
		return "Follow-up due: " + list[0].Name
	}
	return fmt.Sprintf("%d follow-ups due", len(list))
}

func reminderBody(list []models.Lead) string {
	var sb strings.Builder
	sb.WriteString("These leads are waiting for a follow-up:\n")
	for _, lead := range list {
		contact := lead.Email
		if contact == "" {
			contact = lead.Phone
		}
		fmt.Fprintf(&sb, "\n- %s", lead.Name)
		if contact != "" {
			fmt.Fprintf(&sb, " (%s)", contact)
		}
		fmt.Fprintf(&sb, ", due %s", lead.FollowUpDate.Format(models.DateLayout))
	}
	return sb.String()
}
