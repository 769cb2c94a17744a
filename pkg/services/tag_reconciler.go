package services

import (
	"fmt"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/models"
)

// ReconcileTagUpdate merges one inbound tag update into the stored record
// state and returns the new state. It is a pure function: it never touches
// storage and assumes the caller holds the per-resource write lock.
//
// Rules:
//   - A system sync writes only the system copy of each field present in
//     the update; a user edit writes only the user copy. A field is never
//     silently overwritten by the other source.
//   - System syncs are guarded against out-of-order delivery: an event
//     timestamp at or before the stored last_system_sync returns
//     apperrors.ErrStaleUpdate and the record is unchanged.
//   - User edits carry authoritative human intent and apply unconditionally,
//     whatever their timestamp. This asymmetry is deliberate.
//   - An update with no fields still advances the source timestamp and the
//     updated_by provenance.
func ReconcileTagUpdate(existing *models.ResourceTagRecord, update models.TagUpdate) (*models.ResourceTagRecord, error) {
	if update.ResourceID == "" {
		return nil, fmt.Errorf("tag update missing resource id: %w", apperrors.ErrInvalidInput)
	}
	if !update.Source.Valid() {
		return nil, fmt.Errorf("tag update has unknown source %q: %w", update.Source, apperrors.ErrInvalidInput)
	}
	if update.Timestamp.IsZero() {
		return nil, fmt.Errorf("tag update missing event timestamp: %w", apperrors.ErrInvalidInput)
	}

	var record models.ResourceTagRecord
	if existing != nil {
		record = *existing
	} else {
		record.ResourceID = update.ResourceID
	}

	if update.Source.IsUser() {
		record.ApplyFields(update.Source, update.Fields)
		ts := update.Timestamp
		record.LastUserUpdate = &ts
		record.UpdatedBy = update.Source
		return &record, nil
	}

	// last_system_sync only advances forward; equal timestamps make redelivery
	// of the same event idempotent.
	if record.LastSystemSync != nil && !update.Timestamp.After(*record.LastSystemSync) {
		return nil, apperrors.ErrStaleUpdate
	}

	record.ApplyFields(models.TagSourceSystemSync, update.Fields)
	ts := update.Timestamp
	record.LastSystemSync = &ts
	record.UpdatedBy = models.TagSourceSystemSync
	return &record, nil
}
