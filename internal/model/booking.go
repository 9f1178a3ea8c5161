package model

import "time"

// BookingStatus is the lifecycle state of a booking row.
type BookingStatus string

const (
	StatusHold      BookingStatus = "HOLD"
	StatusSyncDraft BookingStatus = "SYNC_DRAFT"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusActive    BookingStatus = "ACTIVE"
	StatusCompleted BookingStatus = "COMPLETED"
	StatusCancelled BookingStatus = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusHold, StatusSyncDraft, StatusConfirmed, StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ComboLeg tags one half of a combo pair.
type ComboLeg string

const (
	LegNone         ComboLeg = ""
	LegPrimary      ComboLeg = "primary"
	LegHeadSpaAddon ComboLeg = "head_spa_addon"
)

// Booking is one reserved interval on one resource. StartAt/EndAt are UTC instants, end exclusive.
type Booking struct {
	ID          int64         `json:"id"`
	ServiceID   int64         `json:"service_id"`
	ServiceName string        `json:"service_name"`
	StaffID     *int64        `json:"staff_id,omitempty"`
	ResourceID  string        `json:"resource_id"`
	StartAt     time.Time     `json:"start_at"`
	EndAt       time.Time     `json:"end_at"`
	Status      BookingStatus `json:"status"`
	ComboLinkID string        `json:"combo_link_id,omitempty"`
	IsComboMain bool          `json:"is_combo_main"`
	IsLocked    bool          `json:"is_locked"`
	ClientName  string        `json:"client_name"`
	ImportScope string        `json:"import_scope,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Duration returns the booked length.
func (b *Booking) Duration() time.Duration {
	return b.EndAt.Sub(b.StartAt)
}

// IsDraft reports whether the row is still in the import sandbox.
func (b *Booking) IsDraft() bool {
	return b.Status == StatusSyncDraft
}

// IsCombo reports whether the row is one leg of a combo pair.
func (b *Booking) IsCombo() bool {
	return b.ComboLinkID != ""
}

// Leg returns the combo leg tag, or LegNone for single bookings.
func (b *Booking) Leg() ComboLeg {
	if !b.IsCombo() {
		return LegNone
	}
	if b.IsComboMain {
		return LegPrimary
	}
	return LegHeadSpaAddon
}

// OccupiesResource reports whether the row blocks its resource for conflict checks.
func (b *Booking) OccupiesResource() bool {
	return b.Status != StatusCancelled
}

// OverlapsWith uses half-open [start, end) semantics; touching endpoints do not overlap.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.StartAt.Before(other.EndAt) && other.StartAt.Before(b.EndAt)
}

// ComboPair is the two legs of a combo, always loaded and mutated together.
type ComboPair struct {
	Primary *Booking `json:"primary"`
	Addon   *Booking `json:"addon"`
}

// HeadSpaFirst reports the stored leg order.
func (p ComboPair) HeadSpaFirst() bool {
	return p.Addon.StartAt.Before(p.Primary.StartAt)
}

// Start is the earliest start of the pair.
func (p ComboPair) Start() time.Time {
	if p.HeadSpaFirst() {
		return p.Addon.StartAt
	}
	return p.Primary.StartAt
}

// Legs returns both rows, primary first.
func (p ComboPair) Legs() []*Booking {
	return []*Booking{p.Primary, p.Addon}
}

// NewComboPair validates that rows form exactly one main and one add-on leg of the same link.
func NewComboPair(rows []Booking) (ComboPair, error) {
	if len(rows) != 2 {
		return ComboPair{}, ErrBrokenCombo
	}
	a, b := rows[0], rows[1]
	if a.ComboLinkID == "" || a.ComboLinkID != b.ComboLinkID || a.IsComboMain == b.IsComboMain {
		return ComboPair{}, ErrBrokenCombo
	}
	if a.IsComboMain {
		return ComboPair{Primary: &a, Addon: &b}, nil
	}
	return ComboPair{Primary: &b, Addon: &a}, nil
}
