// Package draftsync runs the two-phase import of externally sourced bookings: rows land as
// drafts in a sandbox and replace the live schedule only on an explicit publish.
package draftsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spadesk/internal/bizclock"
	"spadesk/internal/catalog"
	"spadesk/internal/db"
	"spadesk/internal/events"
	"spadesk/internal/metrics"
	"spadesk/internal/model"
	"spadesk/internal/schedule"

	"github.com/rs/zerolog"
)

// Policy decides what publish does when the scope has no cutoff marker.
type Policy string

const (
	// PolicyMonthStart replaces everything from the start of the month.
	PolicyMonthStart Policy = "month_start"
	// PolicyAbort refuses to publish.
	PolicyAbort Policy = "abort"
)

// Store is the persistence the state machine needs. *db.DB implements it.
type Store interface {
	WithTx(ctx context.Context, fn func(tx *db.Tx) error) error
	GetSyncMeta(ctx context.Context, scope string) (*model.SyncMeta, error)
	ListDrafts(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	CountDrafts(ctx context.Context, from, to time.Time) (total, locked int, err error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	PublishJSON(eventType string, payload any) error
}

// Options tune the service. Zero values pick the defaults.
type Options struct {
	Policy        Policy
	RetryAttempts int
	Locker        Locker
	Now           func() time.Time
}

// Service is the draft/publish state machine.
type Service struct {
	store    Store
	catalog  *catalog.Catalog
	assigner *schedule.Assigner
	events   EventPublisher
	locker   Locker
	policy   Policy
	attempts int
	now      func() time.Time
	logger   *zerolog.Logger

	// mu serializes state transitions inside this process; locker covers other processes.
	mu sync.Mutex
}

func NewService(store Store, c *catalog.Catalog, eventBus EventPublisher, opts Options, logger *zerolog.Logger) *Service {
	if opts.Policy == "" {
		opts.Policy = PolicyMonthStart
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = db.DefaultRetryAttempts
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:    store,
		catalog:  c,
		assigner: schedule.NewAssigner(c),
		events:   eventBus,
		locker:   opts.Locker,
		policy:   opts.Policy,
		attempts: opts.RetryAttempts,
		now:      opts.Now,
		logger:   logger,
	}
}

// StatusReport describes one scope.
type StatusReport struct {
	Scope   string          `json:"scope"`
	State   model.SyncState `json:"state"`
	Cutoff  *time.Time      `json:"cutoff,omitempty"`
	BatchID string          `json:"batch_id,omitempty"`
	Drafts  int             `json:"drafts"`
	Locked  int             `json:"locked"`
}

// Status reports whether scope is Idle or Drafting.
func (s *Service) Status(ctx context.Context, scopeKey string) (StatusReport, error) {
	scope, err := bizclock.ParseScope(scopeKey)
	if err != nil {
		return StatusReport{}, err
	}
	report := StatusReport{Scope: scope.Key(), State: model.SyncIdle}

	meta, err := s.store.GetSyncMeta(ctx, scope.Key())
	switch {
	case err == nil:
		cutoff := meta.Cutoff
		report.Cutoff = &cutoff
		report.BatchID = meta.BatchID
	case !errors.Is(err, model.ErrNotFound):
		return StatusReport{}, err
	}

	report.Drafts, report.Locked, err = s.store.CountDrafts(ctx, scope.Start(), scope.End())
	if err != nil {
		return StatusReport{}, err
	}
	if meta != nil || report.Drafts > 0 {
		report.State = model.SyncDrafting
	}
	return report, nil
}

// ListDrafts returns the pending drafts of a scope.
func (s *Service) ListDrafts(ctx context.Context, scopeKey string) ([]model.Booking, error) {
	scope, err := bizclock.ParseScope(scopeKey)
	if err != nil {
		return nil, err
	}
	return s.store.ListDrafts(ctx, scope.Start(), scope.End())
}

// PublishResult summarizes a publish.
type PublishResult struct {
	Scope       string    `json:"scope"`
	Cutoff      time.Time `json:"cutoff"`
	MetaMissing bool      `json:"meta_missing"`
	Deleted     int64     `json:"deleted"`
	Promoted    int64     `json:"promoted"`
	KeptCombos  []string  `json:"kept_combos,omitempty"`
}

// Publish replaces the live bookings of [cutoff, scope end) with the scope's drafts in one
// transaction. Without a cutoff marker the policy decides: month_start falls back to the
// first instant of the month, abort returns model.ErrSyncMetaMissing.
// With a marker the live window is cleared even when no draft survived the import.
// Without one, a scope without drafts leaves the live schedule alone.
// Combos with a leg before the cutoff are kept whole and listed in KeptCombos; a draft
// overlapping one of their legs fails the publish with model.ErrResourceUnavailable.
func (s *Service) Publish(ctx context.Context, scopeKey string) (PublishResult, error) {
	scope, err := bizclock.ParseScope(scopeKey)
	if err != nil {
		return PublishResult{}, err
	}
	release, err := s.lock(ctx, scope)
	if err != nil {
		return PublishResult{}, err
	}
	defer release()

	started := time.Now()
	var result PublishResult
	err = s.withRetry(ctx, "publish", func(tx *db.Tx) error {
		result = PublishResult{Scope: scope.Key()}

		meta, err := tx.GetSyncMeta(ctx, scope.Key())
		switch {
		case err == nil:
			result.Cutoff = meta.Cutoff
		case errors.Is(err, model.ErrNotFound):
			if s.policy == PolicyAbort {
				return fmt.Errorf("scope %s: %w", scope, model.ErrSyncMetaMissing)
			}
			result.MetaMissing = true
			result.Cutoff = scope.Start()
		default:
			return err
		}

		drafts, _, err := tx.CountDrafts(ctx, result.Cutoff, scope.End())
		if err != nil {
			return err
		}
		if meta != nil || drafts > 0 {
			kept, err := tx.ListStraddlingCombos(ctx, result.Cutoff, scope.End())
			if err != nil {
				return err
			}
			for _, leg := range kept {
				clash, err := tx.ListOverlapping(ctx, leg.ResourceID, leg.StartAt, leg.EndAt, true)
				if err != nil {
					return err
				}
				if len(clash) > 0 {
					return fmt.Errorf("draft on %s at %s overlaps kept combo %s: %w", leg.ResourceID,
						leg.StartAt.Format(time.RFC3339), leg.ComboLinkID, model.ErrResourceUnavailable)
				}
				result.KeptCombos = append(result.KeptCombos, leg.ComboLinkID)
			}
			if result.Deleted, err = tx.DeleteLiveInWindow(ctx, result.Cutoff, scope.End()); err != nil {
				return err
			}
			if result.Promoted, err = tx.PromoteDrafts(ctx, result.Cutoff, scope.End()); err != nil {
				return err
			}
		}

		if meta != nil {
			n, err := tx.DeleteSyncMeta(ctx, scope.Key())
			if err != nil {
				return err
			}
			// another publish consumed the marker between our read and delete
			if n != 1 {
				return fmt.Errorf("sync meta %s already consumed: %w", scope, model.ErrConcurrentModification)
			}
		}
		return nil
	})
	if err != nil {
		metrics.ObservePublish("error", time.Since(started))
		s.logger.Error().Err(err).Str("scope", scope.Key()).Msg("Publish failed, drafts left untouched")
		return PublishResult{}, err
	}

	metrics.ObservePublish("ok", time.Since(started))
	metrics.AddDraftsPromoted(result.Promoted)
	if result.MetaMissing {
		s.logger.Warn().Err(model.ErrSyncMetaMissing).Str("scope", scope.Key()).Time("cutoff", result.Cutoff).
			Msg("No cutoff marker, published from start of month")
	}
	if len(result.KeptCombos) > 0 {
		s.logger.Warn().Str("scope", scope.Key()).Strs("combos", result.KeptCombos).
			Msg("Combos starting before the cutoff were kept")
	}
	s.logger.Info().Str("scope", scope.Key()).Int64("deleted", result.Deleted).Int64("promoted", result.Promoted).
		Msg("Drafts published")
	s.publish(events.DraftsPublished, result)
	return result, nil
}

// DiscardResult summarizes a discard.
type DiscardResult struct {
	Scope   string `json:"scope"`
	Deleted int64  `json:"deleted"`
}

// Discard drops every draft of scope, locked or not, and its cutoff marker.
func (s *Service) Discard(ctx context.Context, scopeKey string) (DiscardResult, error) {
	scope, err := bizclock.ParseScope(scopeKey)
	if err != nil {
		return DiscardResult{}, err
	}
	release, err := s.lock(ctx, scope)
	if err != nil {
		return DiscardResult{}, err
	}
	defer release()

	result := DiscardResult{Scope: scope.Key()}
	err = s.withRetry(ctx, "discard", func(tx *db.Tx) error {
		n, err := tx.DeleteDraftsInWindow(ctx, scope.Start(), scope.End())
		if err != nil {
			return err
		}
		if _, err := tx.DeleteSyncMeta(ctx, scope.Key()); err != nil {
			return err
		}
		result.Deleted = n
		return nil
	})
	if err != nil {
		return DiscardResult{}, err
	}

	s.logger.Info().Str("scope", scope.Key()).Int64("deleted", result.Deleted).Msg("Drafts discarded")
	s.publish(events.DraftsDiscarded, result)
	return result, nil
}

// DraftPatch is a manual correction of a draft. Nil fields are left alone.
type DraftPatch struct {
	StartAt    *time.Time `json:"start_at,omitempty"`
	ResourceID *string    `json:"resource_id,omitempty"`
	StaffID    *int64     `json:"staff_id,omitempty"`
	ClientName *string    `json:"client_name,omitempty"`
}

// UpdateDraft edits a draft and locks it against re-import. Moving one leg of a combo
// moves the pair. Non-draft rows are refused with model.ErrDraftEditForbidden.
func (s *Service) UpdateDraft(ctx context.Context, id int64, patch DraftPatch) ([]model.Booking, error) {
	var out []model.Booking
	err := s.withRetry(ctx, "update_draft", func(tx *db.Tx) error {
		out = nil
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsDraft() {
			return fmt.Errorf("booking %d has status %s: %w", id, b.Status, model.ErrDraftEditForbidden)
		}

		legs := []*model.Booking{b}
		if b.IsCombo() {
			pair, err := tx.GetComboPair(ctx, b.ComboLinkID)
			if err != nil {
				return err
			}
			legs = pair.Legs()
			if patch.StartAt != nil {
				plan := schedule.ReplanPair(pair, patch.StartAt.UTC(), s.categoryOf(pair.Primary))
				pair.Primary.StartAt, pair.Primary.EndAt = plan.Primary.Start, plan.Primary.End
				pair.Addon.StartAt, pair.Addon.EndAt = plan.Addon.Start, plan.Addon.End
			}
			// edits other than time apply to the leg that was addressed
			for _, leg := range legs {
				if leg.ID == id {
					b = leg
				}
			}
		} else if patch.StartAt != nil {
			d := b.Duration()
			b.StartAt = patch.StartAt.UTC()
			b.EndAt = b.StartAt.Add(d)
		}

		if patch.ResourceID != nil {
			res, ok := s.catalog.Resource(*patch.ResourceID)
			if !ok || res.Category != s.categoryOf(b) {
				return fmt.Errorf("%w: resource %q cannot host this booking", model.ErrInvalidInput, *patch.ResourceID)
			}
			b.ResourceID = res.ID
		}
		if patch.StaffID != nil {
			if _, err := tx.GetStaff(ctx, *patch.StaffID); err != nil {
				return err
			}
			staffID := *patch.StaffID
			b.StaffID = &staffID
		}
		if patch.ClientName != nil {
			for _, leg := range legs {
				leg.ClientName = *patch.ClientName
			}
		}

		exclude := make([]int64, 0, len(legs))
		for _, leg := range legs {
			exclude = append(exclude, leg.ID)
		}
		for _, leg := range legs {
			pinned := patch.ResourceID != nil && leg.ID == id
			if err := s.ensurePlaced(ctx, tx, leg, pinned, exclude); err != nil {
				return err
			}
		}
		for _, leg := range legs {
			leg.IsLocked = true
			if err := tx.UpdateBooking(ctx, leg); err != nil {
				return err
			}
			out = append(out, *leg)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("booking_id", id).Int("rows", len(out)).Msg("Draft updated and locked")
	return out, nil
}

// DeleteDraft removes a draft; a combo leg takes its sibling with it.
func (s *Service) DeleteDraft(ctx context.Context, id int64) (int64, error) {
	var deleted int64
	err := s.withRetry(ctx, "delete_draft", func(tx *db.Tx) error {
		b, err := tx.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if !b.IsDraft() {
			return fmt.Errorf("booking %d has status %s: %w", id, b.Status, model.ErrDraftEditForbidden)
		}
		if b.IsCombo() {
			deleted, err = tx.DeleteComboLegs(ctx, b.ComboLinkID)
			return err
		}
		deleted = 1
		return tx.DeleteBooking(ctx, id)
	})
	return deleted, err
}

// ensurePlaced keeps a leg on its resource when free in the draft sandbox, else moves it to
// another resource of the same category. A pinned leg is never moved.
func (s *Service) ensurePlaced(ctx context.Context, tx *db.Tx, b *model.Booking, pinned bool, exclude []int64) error {
	category := s.categoryOf(b)
	free, err := s.assigner.IsFree(ctx, tx, schedule.LayerDraft, b.ResourceID, b.StartAt, b.EndAt, exclude...)
	if err != nil {
		return err
	}
	if free {
		return nil
	}
	if pinned {
		return fmt.Errorf("resource %s: %w", b.ResourceID, model.ErrResourceUnavailable)
	}
	res, ok, err := s.assigner.FindResource(ctx, tx, schedule.LayerDraft, category, b.StartAt, b.EndAt, exclude...)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s %s-%s: %w", category, bizclock.FormatClock(b.StartAt), bizclock.FormatClock(b.EndAt),
			model.ErrResourceUnavailable)
	}
	b.ResourceID = res.ID
	return nil
}

func (s *Service) categoryOf(b *model.Booking) catalog.Category {
	if res, ok := s.catalog.Resource(b.ResourceID); ok {
		return res.Category
	}
	if b.Leg() == model.LegHeadSpaAddon {
		return catalog.CategoryHeadSpa
	}
	if svc, ok := s.catalog.Service(b.ServiceID); ok {
		if svc.IsCombo() {
			primary, _ := catalog.ComboCategories(svc)
			return primary
		}
		return catalog.CategoryFor(svc)
	}
	return catalog.CategoryMassageSeat
}

// lock takes the process-local mutex and, when configured, the cross-process lock.
func (s *Service) lock(ctx context.Context, scope bizclock.Scope) (func(), error) {
	s.mu.Lock()
	if s.locker == nil {
		return s.mu.Unlock, nil
	}
	release, err := s.locker.Acquire(ctx, "sync:"+scope.Key())
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Str("scope", scope.Key()).Msg("Failed to release sync lock")
		}
		s.mu.Unlock()
	}, nil
}

func (s *Service) withRetry(ctx context.Context, op string, fn func(tx *db.Tx) error) error {
	return db.Retry(ctx, s.attempts, func() error {
		err := s.store.WithTx(ctx, fn)
		if errors.Is(err, model.ErrConcurrentModification) {
			metrics.IncConcurrentModification(op)
			s.logger.Warn().Err(err).Str("operation", op).Msg("Serialization conflict, retrying")
		}
		return err
	})
}

func (s *Service) publish(eventType string, payload any) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("Failed to publish event")
	}
}
