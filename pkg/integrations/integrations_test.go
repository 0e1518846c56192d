package integrations

import (
	"context"
	"errors"
	"testing"

	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/database/dbtest"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/jordanlanch/leaddesk/pkg/models"
	"github.com/jordanlanch/leaddesk/pkg/testdata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWhatsApp struct {
	calls []string
	err   error
}

func (f *fakeWhatsApp) SendText(_ context.Context, to, _ string) (string, error) {
	f.calls = append(f.calls, to)
	if f.err != nil {
		return "", f.err
	}
	return "wamid.1", nil
}

type fakeEmail struct {
	calls []string
	err   error
}

func (f *fakeEmail) SendLeadMessage(_ context.Context, to, _, _, _ string) error {
	f.calls = append(f.calls, to)
	return f.err
}

func TestStore(t *testing.T) {
	db := dbtest.Open(t)
	store := NewStore(db)
	ctx := context.Background()

	t.Run("unsaved provider is disabled", func(t *testing.T) {
		got, err := store.Get(ctx, "WhatsApp")
		require.NoError(t, err)
		assert.Equal(t, ProviderWhatsApp, got.Provider)
		assert.False(t, got.Enabled)
		assert.Nil(t, got.UpdatedAt)
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := store.Get(ctx, "telegram")
		assert.True(t, domain.IsNotFound(err))
		_, err = store.Save(ctx, "telegram", SaveRequest{})
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("save upserts", func(t *testing.T) {
		_, err := store.Save(ctx, ProviderSlack, SaveRequest{Enabled: true, Config: map[string]string{"webhook_url": "https://hooks.slack.com/services/T/B/abcd1234"}})
		require.NoError(t, err)
		got, err := store.Save(ctx, ProviderSlack, SaveRequest{Enabled: false, Config: map[string]string{"channel": " #leads "}})
		require.NoError(t, err)
		assert.False(t, got.Enabled)
		assert.Equal(t, map[string]string{"channel": "#leads"}, got.Config)
		require.NotNil(t, got.UpdatedAt)

		all, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, ProviderWhatsApp, all[0].Provider)
		assert.Equal(t, ProviderSlack, all[2].Provider)
	})

	t.Run("empty config key", func(t *testing.T) {
		_, err := store.Save(ctx, ProviderEmail, SaveRequest{Config: map[string]string{" ": "x"}})
		assert.True(t, domain.IsValidation(err))
	})
}

func TestSetting_Redacted(t *testing.T) {
	s := Setting{Config: map[string]string{"token": "EAAG-secret-9876", "channel": "#leads", "api_key": "abc"}}
	r := s.Redacted()
	assert.Equal(t, "••••9876", r.Config["token"])
	assert.Equal(t, "••••", r.Config["api_key"])
	assert.Equal(t, "#leads", r.Config["channel"])
	assert.Equal(t, "EAAG-secret-9876", s.Config["token"])
}

func seedLead(t *testing.T, db *database.Client, email, phone string) int {
	t.Helper()
	lead := testdata.GenerateLead(testdata.DefaultLeadConfig(1))
	lead.Name = "Ana Gomez"
	lead.Email = email
	lead.Phone = phone
	id, err := testdata.InsertLead(context.Background(), db, lead)
	require.NoError(t, err)
	return id
}

func activities(t *testing.T, db *database.Client, leadID int) []activity.Activity {
	t.Helper()
	list, err := activity.NewService(db).List(context.Background(), activity.Filter{LeadID: leadID})
	require.NoError(t, err)
	return list
}

func TestContactLead_WhatsApp(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	wa := &fakeWhatsApp{}
	d := NewDispatcher(db, NewStore(db), wa, nil, nil, "US", logger.Nop())

	userID, err := testdata.InsertUser(ctx, db, testdata.GenerateUser(models.RoleAdmin))
	require.NoError(t, err)
	leadID := seedLead(t, db, "", "(650) 253-0000")

	res, err := d.ContactLead(ctx, ContactRequest{LeadID: leadID, Channel: "WhatsApp", Message: "Hola Ana"}, userID)
	require.NoError(t, err)
	assert.True(t, res.Sent)
	assert.Equal(t, "wamid.1", res.MessageID)
	assert.Equal(t, []string{"16502530000"}, wa.calls)

	acts := activities(t, db, leadID)
	require.Len(t, acts, 1)
	assert.Equal(t, activity.TypeWhatsAppSent, acts[0].ActivityType)
	assert.Contains(t, acts[0].Description, "+16502530000")
}

func TestContactLead_FailureIsLoggedOnce(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	mail := &fakeEmail{err: errors.New("smtp down")}
	d := NewDispatcher(db, NewStore(db), nil, mail, nil, "US", logger.Nop())

	leadID := seedLead(t, db, "ana@example.com", "")

	res, err := d.ContactLead(ctx, ContactRequest{LeadID: leadID, Channel: ChannelEmail, Message: "Hello"}, 0)
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Equal(t, "smtp down", res.Error)
	assert.Len(t, mail.calls, 1)

	acts := activities(t, db, leadID)
	require.Len(t, acts, 1)
	assert.Equal(t, activity.TypeEmailFailed, acts[0].ActivityType)
}

func TestContactLead_Refusals(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	wa := &fakeWhatsApp{}
	store := NewStore(db)
	d := NewDispatcher(db, store, wa, nil, nil, "US", logger.Nop())

	noPhone := seedLead(t, db, "ana@example.com", "")
	withPhone := seedLead(t, db, "ben@example.com", "+1 650 253 0001")

	tests := []struct {
		name  string
		req   ContactRequest
		check func(error) bool
	}{
		{"unknown channel", ContactRequest{LeadID: withPhone, Channel: "sms", Message: "x"}, domain.IsValidation},
		{"empty message", ContactRequest{LeadID: withPhone, Channel: ChannelWhatsApp, Message: "  "}, domain.IsValidation},
		{"missing lead", ContactRequest{LeadID: 999, Channel: ChannelWhatsApp, Message: "x"}, domain.IsNotFound},
		{"lead without phone", ContactRequest{LeadID: noPhone, Channel: ChannelWhatsApp, Message: "x"}, domain.IsValidation},
		{"email sender missing", ContactRequest{LeadID: noPhone, Channel: ChannelEmail, Message: "x"}, domain.IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.ContactLead(ctx, tt.req, 0)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	t.Run("disabled in settings", func(t *testing.T) {
		_, err := store.Save(ctx, ProviderWhatsApp, SaveRequest{Enabled: false})
		require.NoError(t, err)
		_, err = d.ContactLead(ctx, ContactRequest{LeadID: withPhone, Channel: ChannelWhatsApp, Message: "x"}, 0)
		assert.True(t, domain.IsValidation(err))
	})

	assert.Empty(t, wa.calls)
	assert.Empty(t, activities(t, db, withPhone))
}
