// Package messaging covers direct team messages and broadcast announcements.
package messaging

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/slack"
)

// Priority of an announcement.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

func (p Priority) rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	}
	return 0
}

// Message is a direct message between users. SenderID is nil for system messages.
type Message struct {
	ID          int        `json:"id"`
	SenderID    *int       `json:"sender_id,omitempty"`
	SenderName  string     `json:"sender_name,omitempty"`
	RecipientID int        `json:"recipient_id"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	IsUrgent    bool       `json:"is_urgent"`
	IsRead      bool       `json:"is_read"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Announcement is a broadcast to the whole team.
type Announcement struct {
	ID         int        `json:"id"`
	AuthorID   *int       `json:"author_id,omitempty"`
	AuthorName string     `json:"author_name,omitempty"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	Priority   Priority   `json:"priority"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// SendRequest is the payload of a direct message.
type SendRequest struct {
	RecipientID int    `json:"recipient_id" validate:"required,gt=0"`
	Subject     string `json:"subject" validate:"required,max=255"`
	Body        string `json:"body" validate:"required"`
	IsUrgent    bool   `json:"is_urgent"`
}

// AnnounceRequest is the payload of an announcement.
type AnnounceRequest struct {
	Title     string     `json:"title" validate:"required,max=255"`
	Body      string     `json:"body" validate:"required"`
	Priority  Priority   `json:"priority" validate:"omitempty,oneof=low normal high"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Service stores messages and announcements.
type Service struct {
	db       *database.Client
	slack    *slack.Service
	log      logger.Logger
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates a new messaging service. slack may be nil.
func NewService(db *database.Client, slack *slack.Service, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: db, slack: slack, log: log, validate: validator.New(), now: time.Now}
}

// Send delivers a message from senderID (0 for the system) to a user.
func (s *Service) Send(ctx context.Context, req SendRequest, senderID int) (*Message, error) {
	req.Subject = strings.TrimSpace(req.Subject)
	req.Body = strings.TrimSpace(req.Body)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if err := s.requireUser(ctx, req.RecipientID); err != nil {
		return nil, err
	}

	sender := &senderID
	insert := s.db.Builder().Insert("team_messages").
		Columns("sender_id", "recipient_id", "subject", "body", "is_urgent", "is_read", "created_at").
		Values(database.NullableInt(sender), req.RecipientID, req.Subject, req.Body, req.IsUrgent, false, s.now().UTC())
	id, err := s.db.InsertID(ctx, s.db.DB, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}
	return s.get(ctx, id)
}

func (s *Service) requireUser(ctx context.Context, id int) error {
	b := s.db.Builder()
	t := b.Table("users")
	n, err := database.Count(ctx, s.db.DB, b.Select(entsql.Count("*")).From(t).Where(entsql.EQ(t.C("id"), id)))
	if err != nil {
		return fmt.Errorf("failed to check recipient: %w", err)
	}
	if n == 0 {
		return domain.NewValidationError(fmt.Sprintf("user %d does not exist", id))
	}
	return nil
}

func selectMessages(b *entsql.DialectBuilder) (*entsql.Selector, *entsql.SelectTable) {
	m := b.Table("team_messages").As("m")
	u := b.Table("users").As("u")
	sel := b.Select(
		m.C("id"), m.C("sender_id"), m.C("recipient_id"), m.C("subject"), m.C("body"),
		m.C("is_urgent"), m.C("is_read"), m.C("read_at"), m.C("created_at"), u.C("name"),
	).
		From(m).
		LeftJoin(u).On(m.C("sender_id"), u.C("id"))
	return sel, m
}

func (s *Service) queryMessages(ctx context.Context, sel *entsql.Selector) ([]Message, error) {
	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	out := []Message{}
	for rows.Next() {
		var (
			msg        Message
			sender     sql.NullInt64
			readAt     sql.NullTime
			senderName sql.NullString
		)
		if err := rows.Scan(&msg.ID, &sender, &msg.RecipientID, &msg.Subject, &msg.Body,
			&msg.IsUrgent, &msg.IsRead, &readAt, &msg.CreatedAt, &senderName); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.SenderID = database.IntPtr(sender)
		msg.SenderName = senderName.String
		msg.ReadAt = database.TimePtr(readAt)
		msg.CreatedAt = msg.CreatedAt.UTC()
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *Service) get(ctx context.Context, id int) (*Message, error) {
	sel, m := selectMessages(s.db.Builder())
	sel.Where(entsql.EQ(m.C("id"), id))
	list, err := s.queryMessages(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.NewNotFoundError("message")
	}
	return &list[0], nil
}

// Inbox lists the messages received by userID: urgent first, then newest.
func (s *Service) Inbox(ctx context.Context, userID int, unreadOnly bool) ([]Message, error) {
	sel, m := selectMessages(s.db.Builder())
	preds := []*entsql.Predicate{entsql.EQ(m.C("recipient_id"), userID)}
	if unreadOnly {
		preds = append(preds, entsql.EQ(m.C("is_read"), false))
	}
	sel.Where(entsql.And(preds...)).
		OrderBy(entsql.Desc(m.C("is_urgent")), entsql.Desc(m.C("created_at")), entsql.Desc(m.C("id")))
	return s.queryMessages(ctx, sel)
}

// UnreadCount counts unread messages of userID.
func (s *Service) UnreadCount(ctx context.Context, userID int) (int, error) {
	b := s.db.Builder()
	t := b.Table("team_messages")
	sel := b.Select(entsql.Count("*")).From(t).Where(entsql.And(
		entsql.EQ(t.C("recipient_id"), userID),
		entsql.EQ(t.C("is_read"), false),
	))
	n, err := database.Count(ctx, s.db.DB, sel)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread messages: %w", err)
	}
	return n, nil
}

// MarkRead marks a message of userID as read. Marking twice keeps the first read time.
func (s *Service) MarkRead(ctx context.Context, id, userID int) error {
	msg, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if msg.RecipientID != userID {
		return domain.NewNotFoundError("message")
	}
	if msg.IsRead {
		return nil
	}

	upd := s.db.Builder().Update("team_messages").
		Set("is_read", true).
		Set("read_at", s.now().UTC()).
		Where(entsql.EQ("id", id))
	if _, err := database.Exec(ctx, s.db.DB, upd); err != nil {
		return fmt.Errorf("failed to mark message read: %w", err)
	}
	return nil
}

// Delete removes a message sent or received by userID.
func (s *Service) Delete(ctx context.Context, id, userID int) error {
	del := s.db.Builder().Delete("team_messages").Where(entsql.And(
		entsql.EQ("id", id),
		entsql.Or(entsql.EQ("recipient_id", userID), entsql.EQ("sender_id", userID)),
	))
	n, err := database.Exec(ctx, s.db.DB, del)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("message")
	}
	return nil
}

// Announce stores an announcement. High-priority announcements are also
// relayed to Slack once; a Slack failure is logged and does not fail the call.
func (s *Service) Announce(ctx context.Context, req AnnounceRequest, authorID int) (*Announcement, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Body = strings.TrimSpace(req.Body)
	if err := s.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}
	if req.Priority == "" {
		req.Priority = PriorityNormal
	}
	now := s.now().UTC()
	if req.ExpiresAt != nil && !req.ExpiresAt.After(now) {
		return nil, domain.NewValidationError("expires_at must be in the future")
	}

	author := &authorID
	insert := s.db.Builder().Insert("team_announcements").
		Columns("author_id", "title", "body", "priority", "expires_at", "created_at").
		Values(database.NullableInt(author), req.Title, req.Body, string(req.Priority), database.NullableTime(req.ExpiresAt), now)
	id, err := s.db.InsertID(ctx, s.db.DB, insert)
	if err != nil {
		return nil, fmt.Errorf("failed to create announcement: %w", err)
	}

	ann, err := s.getAnnouncement(ctx, id)
	if err != nil {
		return nil, err
	}

	if ann.Priority == PriorityHigh && s.slack.IsEnabled() {
		name := ann.AuthorName
		if name == "" {
			name = "LeadDesk"
		}
		if err := s.slack.NotifyAnnouncement(ctx, name, ann.Title, ann.Body); err != nil {
			s.log.Warn("failed to relay announcement to slack", "announcement_id", ann.ID, "error", err)
		}
	}
	return ann, nil
}

func selectAnnouncements(b *entsql.DialectBuilder) (*entsql.Selector, *entsql.SelectTable) {
	a := b.Table("team_announcements").As("a")
	u := b.Table("users").As("u")
	sel := b.Select(
		a.C("id"), a.C("author_id"), a.C("title"), a.C("body"), a.C("priority"),
		a.C("expires_at"), a.C("created_at"), u.C("name"),
	).
		From(a).
		LeftJoin(u).On(a.C("author_id"), u.C("id"))
	return sel, a
}

func (s *Service) queryAnnouncements(ctx context.Context, sel *entsql.Selector) ([]Announcement, error) {
	query, args := sel.Query()
	rows, err := s.db.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load announcements: %w", err)
	}
	defer rows.Close()

	out := []Announcement{}
	for rows.Next() {
		var (
			ann        Announcement
			author     sql.NullInt64
			priority   string
			expiresAt  sql.NullTime
			authorName sql.NullString
		)
		if err := rows.Scan(&ann.ID, &author, &ann.Title, &ann.Body, &priority, &expiresAt, &ann.CreatedAt, &authorName); err != nil {
			return nil, fmt.Errorf("failed to scan announcement: %w", err)
		}
		ann.AuthorID = database.IntPtr(author)
		ann.AuthorName = authorName.String
		ann.Priority = Priority(priority)
		ann.ExpiresAt = database.TimePtr(expiresAt)
		ann.CreatedAt = ann.CreatedAt.UTC()
		out = append(out, ann)
	}
	return out, rows.Err()
}

func (s *Service) getAnnouncement(ctx context.Context, id int) (*Announcement, error) {
	sel, a := selectAnnouncements(s.db.Builder())
	sel.Where(entsql.EQ(a.C("id"), id))
	list, err := s.queryAnnouncements(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, domain.NewNotFoundError("announcement")
	}
	return &list[0], nil
}

// Active lists unexpired announcements, highest priority first, then newest.
func (s *Service) Active(ctx context.Context) ([]Announcement, error) {
	sel, a := selectAnnouncements(s.db.Builder())
	sel.Where(entsql.Or(
		entsql.IsNull(a.C("expires_at")),
		entsql.GT(a.C("expires_at"), s.now().UTC()),
	)).
		OrderBy(entsql.Desc(a.C("created_at")), entsql.Desc(a.C("id")))

	list, err := s.queryAnnouncements(ctx, sel)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Priority.rank() > list[j].Priority.rank()
	})
	return list, nil
}

// DeleteAnnouncement removes an announcement.
func (s *Service) DeleteAnnouncement(ctx context.Context, id int) error {
	del := s.db.Builder().Delete("team_announcements").Where(entsql.EQ("id", id))
	n, err := database.Exec(ctx, s.db.DB, del)
	if err != nil {
		return fmt.Errorf("failed to delete announcement: %w", err)
	}
	if n == 0 {
		return domain.NewNotFoundError("announcement")
	}
	return nil
}
