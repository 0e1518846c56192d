package integrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/metrics"
	"github.com/jordanlanch/leaddesk/pkg/phone"
)

// Channels a lead can be contacted through.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelEmail    = "email"
)

// WhatsAppSender sends a text message.
type WhatsAppSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// EmailSender sends a message to a lead.
type EmailSender interface {
	SendLeadMessage(ctx context.Context, toEmail, toName, subject, message string) error
}

// ContactRequest is the admin form for messaging a lead.
type ContactRequest struct {
	LeadID  int    `json:"lead_id" validate:"required,gt=0"`
	Channel string `json:"channel" validate:"required,oneof=whatsapp email"`
	Subject string `json:"subject" validate:"max=255"`
	Message string `json:"message" validate:"required,max=4096"`
}

// ContactResult reports one send attempt.
type ContactResult struct {
	LeadID    int    `json:"lead_id"`
	Channel   string `json:"channel"`
	Sent      bool   `json:"sent"`
	MessageID string `json:"message_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Dispatcher contacts leads. Each call sends at most once; failures are
// recorded as activities and never retried.
type Dispatcher struct {
	db       *database.Client
	store    *Store
	whatsapp WhatsAppSender
	email    EmailSender
	metrics  *metrics.Metrics
	region   string
	validate *validator.Validate
	log      logger.Logger
	now      func() time.Time
}

// NewDispatcher wires the channels. Any sender or m may be nil.
func NewDispatcher(db *database.Client, store *Store, wa WhatsAppSender, mail EmailSender, m *metrics.Metrics, region string, log logger.Logger) *Dispatcher {
	return &Dispatcher{
		db:       db,
		store:    store,
		whatsapp: wa,
		email:    mail,
		metrics:  m,
		region:   region,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// ContactLead sends req.Message to the lead on req.Channel. Validation and
// configuration problems are returned as errors before anything is sent; a
// delivery failure is reported in the result.
func (d *Dispatcher) ContactLead(ctx context.Context, req ContactRequest, actorID int) (*ContactResult, error) {
	req.Channel = strings.ToLower(strings.TrimSpace(req.Channel))
	req.Message = strings.TrimSpace(req.Message)
	if err := d.validate.Struct(req); err != nil {
		return nil, domain.NewValidationError(err.Error())
	}

	lead, err := leads.Load(ctx, d.db, d.db.DB, req.LeadID)
	if err != nil {
		return nil, err
	}

	if err := d.ensureEnabled(ctx, req.Channel); err != nil {
		return nil, err
	}

	res := &ContactResult{LeadID: lead.ID, Channel: req.Channel}
	var (
		sendErr   error
		okType    string
		failType  string
		recipient string
	)
	switch req.Channel {
	case ChannelWhatsApp:
		okType, failType = activity.TypeWhatsAppSent, activity.TypeWhatsAppFailed
		if lead.Phone == "" {
			return nil, domain.NewValidationError("lead has no phone number")
		}
		to, err := phone.WhatsAppID(lead.Phone, d.region)
		if err != nil {
			return nil, domain.NewValidationError("lead phone is not a valid number: " + lead.Phone)
		}
		recipient = "+" + to
		res.MessageID, sendErr = d.whatsapp.SendText(ctx, to, req.Message)
	case ChannelEmail:
		okType, failType = activity.TypeEmailSent, activity.TypeEmailFailed
		if lead.Email == "" {
			return nil, domain.NewValidationError("lead has no email address")
		}
		recipient = lead.Email
		sendErr = d.email.SendLeadMessage(ctx, lead.Email, lead.Name, req.Subject, req.Message)
	}

	entry := activity.Entry{LeadID: lead.ID, ActorID: actorID}
	if sendErr != nil {
		d.log.Warn("lead contact failed", "lead_id", lead.ID, "channel", req.Channel, "error", sendErr)
		res.Error = sendErr.Error()
		entry.ActivityType = failType
		entry.Description = fmt.Sprintf("Message to %s failed: %s", recipient, sendErr)
	} else {
		res.Sent = true
		entry.ActivityType = okType
		entry.Description = fmt.Sprintf("Message sent to %s: %s", recipient, excerpt(req.Message, 120))
	}
	if d.metrics != nil {
		d.metrics.RecordContact(req.Channel, res.Sent)
	}

	err = d.db.WithTx(ctx, func(tx *sql.Tx) error {
		return activity.Write(ctx, d.db, tx, entry, d.now().UTC())
	})
	if err != nil {
		d.log.Error("failed to record contact activity", "lead_id", lead.ID, "error", err)
	}
	return res, nil
}

// ensureEnabled refuses channels that are switched off in the settings or
// have no sender configured.
func (d *Dispatcher) ensureEnabled(ctx context.Context, channel string) error {
	setting, err := d.store.Get(ctx, channel)
	if err != nil {
		return err
	}
	if setting.UpdatedAt != nil && !setting.Enabled {
		return domain.NewValidationError(channel + " integration is disabled")
	}
	switch channel {
	case ChannelWhatsApp:
		if d.whatsapp == nil {
			return domain.NewValidationError("whatsapp is not configured")
		}
	case ChannelEmail:
		if d.email == nil {
			return domain.NewValidationError("email is not configured")
		}
	}
	return nil
}

func excerpt(s string, n int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "…"
}
