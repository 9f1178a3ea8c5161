// Package schedule places bookings on physical resources without double-booking them.
package schedule

import (
	"context"
	"fmt"
	"time"

	"spadesk/internal/catalog"
	"spadesk/internal/model"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching endpoints do not conflict.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Layer selects which bookings a conflict check sees. Drafts live in their own sandbox:
// they only conflict with other drafts, live bookings only with live bookings.
type Layer int

const (
	LayerLive Layer = iota
	LayerDraft
)

func (l Layer) String() string {
	if l == LayerDraft {
		return "draft"
	}
	return "live"
}

// Occupancy lists the bookings blocking a resource in an interval. *db.Tx implements it.
type Occupancy interface {
	ListOverlapping(ctx context.Context, resourceID string, start, end time.Time, drafts bool, excludeIDs ...int64) ([]model.Booking, error)
}

// Assigner picks a free resource of a category for an interval.
type Assigner struct {
	catalog *catalog.Catalog
}

func NewAssigner(c *catalog.Catalog) *Assigner {
	return &Assigner{catalog: c}
}

// FindResource returns the first resource of category, in registry order, with no booking
// overlapping [start, end) other than excludeIDs. ok is false when every resource is taken;
// that is a business outcome, not an error.
func (a *Assigner) FindResource(ctx context.Context, occ Occupancy, layer Layer, category catalog.Category, start, end time.Time, excludeIDs ...int64) (res catalog.Resource, ok bool, err error) {
	if !start.Before(end) {
		return catalog.Resource{}, false, model.ErrInvalidInterval
	}

	for _, r := range a.catalog.ResourcesIn(category) {
		busy, err := a.isBusy(ctx, occ, layer, r.ID, start, end, excludeIDs)
		if err != nil {
			return catalog.Resource{}, false, fmt.Errorf("check %s: %w", r.ID, err)
		}
		if !busy {
			return r, true, nil
		}
	}
	return catalog.Resource{}, false, nil
}

// IsFree reports whether resourceID can take [start, end).
func (a *Assigner) IsFree(ctx context.Context, occ Occupancy, layer Layer, resourceID string, start, end time.Time, excludeIDs ...int64) (bool, error) {
	if !start.Before(end) {
		return false, model.ErrInvalidInterval
	}
	busy, err := a.isBusy(ctx, occ, layer, resourceID, start, end, excludeIDs)
	return !busy, err
}

func (a *Assigner) isBusy(ctx context.Context, occ Occupancy, layer Layer, resourceID string, start, end time.Time, excludeIDs []int64) (bool, error) {
	rows, err := occ.ListOverlapping(ctx, resourceID, start, end, layer == LayerDraft, excludeIDs...)
	if err != nil {
		return false, err
	}
	for i := range rows {
		if rows[i].OccupiesResource() && Overlaps(start, end, rows[i].StartAt, rows[i].EndAt) {
			return true, nil
		}
	}
	return false, nil
}
