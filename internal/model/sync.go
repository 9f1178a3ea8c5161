package model

import "time"

// SyncMeta marks an import scope (a month) as Drafting and records the cutoff instant.
type SyncMeta struct {
	Scope     string    `json:"scope"`
	Cutoff    time.Time `json:"cutoff"`
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SyncState is the lifecycle of a scope.
type SyncState string

const (
	SyncIdle     SyncState = "idle"
	SyncDrafting SyncState = "drafting"
)
