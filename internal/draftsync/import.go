package draftsync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"spadesk/internal/bizclock"
	"spadesk/internal/catalog"
	"spadesk/internal/db"
	"spadesk/internal/events"
	"spadesk/internal/metrics"
	"spadesk/internal/model"
	"spadesk/internal/schedule"

	"github.com/google/uuid"
)

// Row is one booking line from an import source. A row with two services, where the second
// is a head-spa treatment, or with a single combo service, becomes a linked pair.
type Row struct {
	Line         int       `json:"line"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	ClientName   string    `json:"client_name"`
	Services     [2]string `json:"services"`
	Durations    [2]int    `json:"durations"`
	Staff        [2]string `json:"staff"`
	HeadSpaFirst bool      `json:"head_spa_first"`
}

// SkippedRow is a row that could not become a draft.
type SkippedRow struct {
	Line   int    `json:"line"`
	Reason string `json:"reason"`
}

// ImportResult summarizes an import.
type ImportResult struct {
	Scope       string       `json:"scope"`
	BatchID     string       `json:"batch_id"`
	Cutoff      time.Time    `json:"cutoff"`
	Cleared     int64        `json:"cleared"`
	Drafted     int          `json:"drafted"`
	Combos      int          `json:"combos"`
	Skipped     []SkippedRow `json:"skipped"`
	SeededStaff []string     `json:"seeded_staff,omitempty"`
}

// errSkip marks a row-level problem: the row is reported, the import goes on.
type errSkip struct{ reason string }

func (e errSkip) Error() string { return e.reason }

func skipf(format string, args ...any) error {
	return errSkip{reason: fmt.Sprintf(format, args...)}
}

// BeginImport moves scope into Drafting: in one transaction it clears the previous import's
// unlocked drafts, writes rows as drafts placed within the draft sandbox, and records the
// cutoff marker. An existing marker keeps its cutoff so locked drafts stay publishable.
// Rows starting before the cutoff are skipped; publish would never promote them.
func (s *Service) BeginImport(ctx context.Context, scopeKey string, rows []Row) (ImportResult, error) {
	scope, err := bizclock.ParseScope(scopeKey)
	if err != nil {
		return ImportResult{}, err
	}
	release, err := s.lock(ctx, scope)
	if err != nil {
		return ImportResult{}, err
	}
	defer release()

	startedAt := s.now().UTC()
	var result ImportResult
	err = s.withRetry(ctx, "import", func(tx *db.Tx) error {
		result = ImportResult{Scope: scope.Key(), BatchID: uuid.NewString(), Cutoff: startedAt, Skipped: []SkippedRow{}}

		existing, err := tx.GetSyncMeta(ctx, scope.Key())
		switch {
		case err == nil:
			if existing.Cutoff.Before(result.Cutoff) {
				result.Cutoff = existing.Cutoff
			}
		case !errors.Is(err, model.ErrNotFound):
			return err
		}

		if result.Cleared, err = tx.DeleteUnlockedDrafts(ctx, scope.Start(), scope.End()); err != nil {
			return err
		}

		seeded := map[string]bool{}
		for _, row := range rows {
			var combo bool
			rowSeeded := map[string]bool{}
			err := tx.Savepoint(ctx, "import_row", func() error {
				var err error
				combo, err = s.draftRow(ctx, tx, scope, result.Cutoff, row, rowSeeded)
				return err
			})
			var skip errSkip
			if errors.As(err, &skip) {
				result.Skipped = append(result.Skipped, SkippedRow{Line: row.Line, Reason: skip.reason})
				continue
			}
			if err != nil {
				return fmt.Errorf("line %d: %w", row.Line, err)
			}
			for name := range rowSeeded {
				seeded[name] = true
			}
			result.Drafted++
			if combo {
				result.Combos++
			}
		}
		for name := range seeded {
			result.SeededStaff = append(result.SeededStaff, name)
		}
		sort.Strings(result.SeededStaff)

		return tx.UpsertSyncMeta(ctx, &model.SyncMeta{Scope: scope.Key(), Cutoff: result.Cutoff, BatchID: result.BatchID})
	})
	if err != nil {
		return ImportResult{}, err
	}

	metrics.AddImportRows("drafted", result.Drafted)
	metrics.AddImportRows("skipped", len(result.Skipped))
	s.logger.Info().Str("scope", scope.Key()).Str("batch_id", result.BatchID).Int("drafted", result.Drafted).
		Int("skipped", len(result.Skipped)).Int64("cleared", result.Cleared).Msg("Import drafted")
	if len(result.SeededStaff) > 0 {
		s.logger.Warn().Strs("staff", result.SeededStaff).Msg("Unknown staff names seeded from import")
	}
	s.publish(events.ImportStarted, result)
	return result, nil
}

// draftRow writes one row. It reports whether the row became a combo pair.
func (s *Service) draftRow(ctx context.Context, tx *db.Tx, scope bizclock.Scope, cutoff time.Time, row Row, seeded map[string]bool) (bool, error) {
	start, err := bizclock.At(row.Date, row.Time)
	if err != nil {
		return false, skipf("%v", err)
	}
	if !scope.Contains(start) {
		return false, skipf("%s is outside %s", row.Date, scope)
	}
	if start.Before(cutoff) {
		return false, skipf("%s %s starts before the import cutoff", row.Date, row.Time)
	}

	primarySvc, ok := s.catalog.ServiceByName(row.Services[0])
	if !ok {
		return false, skipf("unknown service %q", row.Services[0])
	}

	staff := [2]*int64{}
	for i, name := range row.Staff {
		if strings.TrimSpace(name) == "" {
			continue
		}
		member, created, err := tx.EnsureStaff(ctx, name)
		if err != nil {
			return false, err
		}
		if created {
			seeded[member.Name] = true
		}
		id := member.ID
		staff[i] = &id
	}
	if staff[1] == nil {
		staff[1] = staff[0]
	}

	base := &model.Booking{
		ServiceID:   primarySvc.ID,
		ServiceName: primarySvc.Name,
		StaffID:     staff[0],
		Status:      model.StatusSyncDraft,
		ClientName:  strings.TrimSpace(row.ClientName),
		ImportScope: scope.Key(),
	}

	if primarySvc.IsCombo() {
		svc := primarySvc
		if row.Durations[0] > 0 && row.Durations[1] > 0 {
			svc.MassageMinutes, svc.HeadSpaMinutes = row.Durations[0], row.Durations[1]
		}
		plan, err := schedule.SplitCombo(svc, start, row.HeadSpaFirst)
		if err != nil {
			return false, skipf("%v", err)
		}
		addon := *base
		addon.StaffID = staff[1]
		return true, s.placePair(ctx, tx, plan, base, &addon)
	}

	if strings.TrimSpace(row.Services[1]) != "" {
		addonSvc, ok := s.catalog.ServiceByName(row.Services[1])
		if !ok {
			return false, skipf("unknown service %q", row.Services[1])
		}
		if catalog.CategoryFor(addonSvc) == catalog.CategoryHeadSpa {
			plan := pairPlan(primarySvc, addonSvc, start, row)
			addon := *base
			addon.ServiceID, addon.ServiceName, addon.StaffID = addonSvc.ID, addonSvc.Name, staff[1]
			return true, s.placePair(ctx, tx, plan, base, &addon)
		}

		// two unrelated treatments back to back
		first := legDuration(primarySvc, row.Durations[0])
		if err := s.placeSingle(ctx, tx, base, catalog.CategoryFor(primarySvc), start, start.Add(first)); err != nil {
			return false, err
		}
		second := *base
		second.ID = 0
		second.ServiceID, second.ServiceName, second.StaffID = addonSvc.ID, addonSvc.Name, staff[1]
		secondStart := start.Add(first)
		return false, s.placeSingle(ctx, tx, &second, catalog.CategoryFor(addonSvc), secondStart,
			secondStart.Add(legDuration(addonSvc, row.Durations[1])))
	}

	return false, s.placeSingle(ctx, tx, base, catalog.CategoryFor(primarySvc), start,
		start.Add(legDuration(primarySvc, row.Durations[0])))
}

func (s *Service) placeSingle(ctx context.Context, tx *db.Tx, b *model.Booking, category catalog.Category, start, end time.Time) error {
	res, ok, err := s.assigner.FindResource(ctx, tx, schedule.LayerDraft, category, start, end)
	if err != nil {
		return err
	}
	if !ok {
		return skipf("no free %s at %s-%s", category, bizclock.FormatClock(start), bizclock.FormatClock(end))
	}
	b.ResourceID, b.StartAt, b.EndAt = res.ID, start, end
	return tx.InsertBooking(ctx, b)
}

func (s *Service) placePair(ctx context.Context, tx *db.Tx, plan schedule.ComboPlan, primary, addon *model.Booking) error {
	primaryRes, ok, err := s.assigner.FindResource(ctx, tx, schedule.LayerDraft, plan.Primary.Category, plan.Primary.Start, plan.Primary.End)
	if err != nil {
		return err
	}
	if !ok {
		return skipf("no free %s at %s", plan.Primary.Category, bizclock.FormatClock(plan.Primary.Start))
	}
	addonRes, ok, err := s.assigner.FindResource(ctx, tx, schedule.LayerDraft, plan.Addon.Category, plan.Addon.Start, plan.Addon.End)
	if err != nil {
		return err
	}
	if !ok {
		return skipf("no free %s at %s for the combo add-on", plan.Addon.Category, bizclock.FormatClock(plan.Addon.Start))
	}

	linkID := uuid.NewString()
	primary.ResourceID, primary.StartAt, primary.EndAt = primaryRes.ID, plan.Primary.Start, plan.Primary.End
	primary.ComboLinkID, primary.IsComboMain = linkID, true
	addon.ResourceID, addon.StartAt, addon.EndAt = addonRes.ID, plan.Addon.Start, plan.Addon.End
	addon.ComboLinkID, addon.IsComboMain = linkID, false

	if err := tx.InsertBooking(ctx, primary); err != nil {
		return err
	}
	return tx.InsertBooking(ctx, addon)
}

// pairPlan builds combo legs from two single services.
func pairPlan(primary, addon catalog.Service, start time.Time, row Row) schedule.ComboPlan {
	first := legDuration(primary, row.Durations[0])
	second := legDuration(addon, row.Durations[1])

	plan := schedule.ComboPlan{
		Primary:      schedule.LegPlan{Leg: model.LegPrimary, Category: catalog.CategoryFor(primary)},
		Addon:        schedule.LegPlan{Leg: model.LegHeadSpaAddon, Category: catalog.CategoryHeadSpa},
		HeadSpaFirst: row.HeadSpaFirst,
	}
	if plan.Primary.Category == catalog.CategoryHeadSpa {
		plan.Primary.Category = catalog.CategoryMassageSeat
	}
	if row.HeadSpaFirst {
		plan.Addon.Start, plan.Addon.End = start, start.Add(second)
		plan.Primary.Start, plan.Primary.End = plan.Addon.End, plan.Addon.End.Add(first)
	} else {
		plan.Primary.Start, plan.Primary.End = start, start.Add(first)
		plan.Addon.Start, plan.Addon.End = plan.Primary.End, plan.Primary.End.Add(second)
	}
	return plan
}

func legDuration(svc catalog.Service, override int) time.Duration {
	if override > 0 {
		return time.Duration(override) * time.Minute
	}
	return time.Duration(svc.DurationMinutes) * time.Minute
}
