package model

import "errors"

var (
	// ErrResourceUnavailable means every resource of the required category is taken. It is a business
	// outcome shown to the operator as "fully booked".
	ErrResourceUnavailable = errors.New("resource unavailable")
	// ErrComboLegConflict means one combo leg could not be placed; nothing was persisted.
	ErrComboLegConflict = errors.New("combo leg conflict")
	// ErrDraftEditForbidden is returned by draft-only operations on non-draft rows.
	ErrDraftEditForbidden = errors.New("draft edit forbidden")
	// ErrSyncMetaMissing means publish found no cutoff marker for the scope.
	ErrSyncMetaMissing = errors.New("sync meta missing")
	// ErrConcurrentModification is a serialization conflict; callers retry a bounded number of times.
	ErrConcurrentModification = errors.New("concurrent modification")
	// ErrStorageFailure wraps persistence faults.
	ErrStorageFailure = errors.New("storage failure")

	ErrNotFound          = errors.New("not found")
	ErrInvalidInterval   = errors.New("start must be before end")
	ErrBrokenCombo       = errors.New("combo link must have exactly one main and one add-on leg")
	ErrUnknownService    = errors.New("unknown service")
	ErrStaffNotAllowed   = errors.New("staff not allowed for service")
	ErrNotCombo          = errors.New("service is not a combo")
	ErrComboService      = errors.New("combo services are booked as a pair")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidInput      = errors.New("invalid input")
)
