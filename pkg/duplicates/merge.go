package duplicates

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/jordanlanch/leaddesk/pkg/activity"
	"github.com/jordanlanch/leaddesk/pkg/database"
	"github.com/jordanlanch/leaddesk/pkg/domain"
	"github.com/jordanlanch/leaddesk/pkg/leads"
	"github.com/jordanlanch/leaddesk/pkg/models"
)

// Merge folds duplicateID into primaryID: the duplicate's notes are appended
// to the primary's, its activities move to the primary and the duplicate row
// is deleted. Every other field of the primary is left as it was. All of it
// happens in one transaction.
func (s *Service) Merge(ctx context.Context, primaryID, duplicateID, actorID int) (*models.Lead, error) {
	if primaryID <= 0 || duplicateID <= 0 {
		return nil, domain.NewValidationError("primary_id and duplicate_id are required")
	}
	if primaryID == duplicateID {
		return nil, domain.NewValidationError("cannot merge a lead into itself")
	}

	now := s.now().UTC()
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		primary, err := leads.Load(ctx, s.db, tx, primaryID)
		if err != nil {
			return err
		}
		dup, err := leads.Load(ctx, s.db, tx, duplicateID)
		if err != nil {
			return err
		}

		upd := s.db.Builder().Update("leads").
			Set("notes", mergedNotes(primary.Notes, *dup, now)).
			Set("updated_at", now).
			Where(entsql.EQ("id", primaryID))
		if _, err := database.Exec(ctx, tx, upd); err != nil {
			return fmt.Errorf("failed to update primary notes: %w", err)
		}

		move := s.db.Builder().Update("lead_activities").
			Set("lead_id", primaryID).
			Where(entsql.EQ("lead_id", duplicateID))
		if _, err := database.Exec(ctx, tx, move); err != nil {
			return fmt.Errorf("failed to move activities: %w", err)
		}

		if err := activity.Write(ctx, s.db, tx, activity.Entry{
			LeadID:       primaryID,
			ActorID:      actorID,
			ActivityType: activity.TypeMerge,
			Description:  fmt.Sprintf("Merged duplicate lead #%d (%s)", dup.ID, dup.Name),
		}, now); err != nil {
			return err
		}

		del := s.db.Builder().Delete("leads").Where(entsql.EQ("id", duplicateID))
		if _, err := database.Exec(ctx, tx, del); err != nil {
			return fmt.Errorf("failed to delete duplicate: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("leads merged", "primary_id", primaryID, "duplicate_id", duplicateID, "actor_id", actorID)
	return leads.Load(ctx, s.db, s.db.DB, primaryID)
}

func mergedNotes(primaryNotes string, dup models.Lead, at time.Time) string {
	notes := primaryNotes
	if notes != "" {
		notes += "\n\n"
	}
	notes += fmt.Sprintf("--- Merged from lead #%d (%s) on %s ---", dup.ID, dup.Name, at.Format(models.DateLayout))
	if dup.Notes != "" {
		notes += "\n" + dup.Notes
	}
	return notes
}

// MarkNotDuplicate records that two leads are distinct contacts. The pair is
// excluded from later scans and a note is added to both leads. Marking an
// already suppressed pair is a no-op.
func (s *Service) MarkNotDuplicate(ctx context.Context, leadA, leadB, actorID int) error {
	if leadA <= 0 || leadB <= 0 {
		return domain.NewValidationError("both lead ids are required")
	}
	if leadA == leadB {
		return domain.NewValidationError("a lead cannot be compared with itself")
	}

	key := newPairKey(leadA, leadB)
	now := s.now().UTC()
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		a, err := leads.Load(ctx, s.db, tx, key[0])
		if err != nil {
			return err
		}
		b, err := leads.Load(ctx, s.db, tx, key[1])
		if err != nil {
			return err
		}

		exists, err := s.suppressionExists(ctx, tx, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		var creator any
		if actorID > 0 {
			creator = actorID
		}
		insert := s.db.Builder().Insert("duplicate_suppressions").
			Columns("lead_a_id", "lead_b_id", "created_by", "created_at").
			Values(key[0], key[1], creator, now)
		if _, err := database.Exec(ctx, tx, insert); err != nil {
			return fmt.Errorf("failed to record suppression: %w", err)
		}

		for _, side := range []struct{ self, other *models.Lead }{{a, b}, {b, a}} {
			line := fmt.Sprintf("Marked as not a duplicate of lead #%d (%s) on %s",
				side.other.ID, side.other.Name, now.Format(models.DateLayout))
			notes := line
			if side.self.Notes != "" {
				notes = side.self.Notes + "\n" + line
			}
			upd := s.db.Builder().Update("leads").
				Set("notes", notes).
				Set("updated_at", now).
				Where(entsql.EQ("id", side.self.ID))
			if _, err := database.Exec(ctx, tx, upd); err != nil {
				return fmt.Errorf("failed to annotate lead %d: %w", side.self.ID, err)
			}
			if err := activity.Write(ctx, s.db, tx, activity.Entry{
				LeadID:       side.self.ID,
				ActorID:      actorID,
				ActivityType: activity.TypeNotDuplicate,
				Description:  line,
			}, now); err != nil {
				return err
			}
		}
		return nil
	})
}
