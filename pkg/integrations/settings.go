// Package integrations stores provider settings and contacts leads through
// the outbound channels.
package integrations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
)

// Providers with a settings row.
const (
	ProviderWhatsApp = "whatsapp"
	ProviderEmail    = "email"
	ProviderSlack    = "slack"
)

// Providers lists every known provider.
var Providers = []string{ProviderWhatsApp, ProviderEmail, ProviderSlack}

// secretKeys are masked when settings leave the server.
var secretKeys = map[string]bool{"token": true, "api_key": true, "webhook_url": true, "secret": true}

// Setting is the stored configuration of one provider.
type Setting struct {
	Provider  string            `json:"provider"`
	Enabled   bool              `json:"enabled"`
	Config    map[string]string `json:"config"`
	UpdatedAt *time.Time        `json:"updated_at,omitempty"`
}

// Redacted returns a copy with secret values masked.
func (s Setting) Redacted() Setting {
	out := s
	out.Config = make(map[string]string, len(s.Config))
	for k, v := range s.Config {
		if secretKeys[k] && v != "" {
			v = "••••" + last4(v)
		}
		out.Config[k] = v
	}
	return out
}

func last4(v string) string {
	r := []rune(v)
	if len(r) <= 4 {
		return ""
	}
	return string(r[len(r)-4:])
}

// SaveRequest replaces the settings of a provider.
type SaveRequest struct {
	Enabled bool              `json:"enabled"`
	Config  map[string]string `json:"config"`
}

// Store reads and writes integration_settings.
type Store struct {
	db  *database.Client
	now func() time.Time
}

// NewStore creates a settings store.
func NewStore(db *database.Client) *Store {
	return &Store{db: db, now: time.Now}
}

func knownProvider(p string) bool {
	for _, known := range Providers {
		if p == known {
			return true
		}
	}
	return false
}

// Get returns the setting of provider. A provider never saved is disabled
// with an empty config.
func (s *Store) Get(ctx context.Context, provider string) (*Setting, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !knownProvider(provider) {
		return nil, domain.NewNotFoundError("integration " + provider)
	}

	b := s.db.Builder()
	t := b.Table("integration_settings")
	query, args := b.Select(t.C("enabled"), t.C("config"), t.C("updated_at")).
		From(t).
		Where(entsql.EQ(t.C("provider"), provider)).
		Query()

	var (
		enabled bool
		raw     string
		updated time.Time
	)
	err := s.db.DB.QueryRowContext(ctx, query, args...).Scan(&enabled, &raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return &Setting{Provider: provider, Config: map[string]string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load %s settings: %w", provider, err)
	}

	setting := &Setting{Provider: provider, Enabled: enabled, Config: map[string]string{}}
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &setting.Config); err != nil {
			return nil, fmt.Errorf("failed to decode %s settings: %w", provider, err)
		}
	}
	updated = updated.UTC()
	setting.UpdatedAt = &updated
	return setting, nil
}

// List returns every provider in a fixed order.
func (s *Store) List(ctx context.Context) ([]Setting, error) {
	out := make([]Setting, 0, len(Providers))
	for _, p := range Providers {
		setting, err := s.Get(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *setting)
	}
	return out, nil
}

// Save upserts the settings of provider.
func (s *Store) Save(ctx context.Context, provider string, req SaveRequest) (*Setting, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !knownProvider(provider) {
		return nil, domain.NewNotFoundError("integration " + provider)
	}
	cfg := map[string]string{}
	for k, v := range req.Config {
		k = strings.TrimSpace(k)
		if k == "" {
			return nil, domain.NewValidationError("config keys cannot be empty")
		}
		cfg[k] = strings.TrimSpace(v)
	}
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode settings: %w", err)
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		b := s.db.Builder()
		upd := b.Update("integration_settings").
			Set("enabled", req.Enabled).
			Set("config", string(raw)).
			Set("updated_at", now).
			Where(entsql.EQ("provider", provider))
		n, err := database.Exec(ctx, tx, upd)
		if err != nil {
			return fmt.Errorf("failed to update %s settings: %w", provider, err)
		}
		if n > 0 {
			return nil
		}
		insert := b.Insert("integration_settings").
			Columns("provider", "enabled", "config", "updated_at").
			Values(provider, req.Enabled, string(raw), now)
		if _, err := database.Exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("failed to create %s settings: %w", provider, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, provider)
}
