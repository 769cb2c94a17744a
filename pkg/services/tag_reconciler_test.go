package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trucost-labs/trucost-engine/pkg/apperrors"
	"github.com/trucost-labs/trucost-engine/pkg/models"
)

func strptr(s string) *string { return &s }

func TestReconcileTagUpdate_NewResourceFromSync(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	record, err := ReconcileTagUpdate(nil, models.TagUpdate{
		ResourceID: "i-0abc123",
		Source:     models.TagSourceSystemSync,
		Fields: models.TagFields{
			App:   strptr("checkout"),
			Owner: strptr("platform-team"),
		},
		Timestamp: ts,
	})

	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, "i-0abc123", record.ResourceID)
	assert.Equal(t, "checkout", *record.SystemTags.App)
	assert.Equal(t, "platform-team", *record.SystemTags.Owner)
	assert.Nil(t, record.SystemTags.Environment)
	assert.True(t, record.UserTags.IsEmpty())
	require.NotNil(t, record.LastSystemSync)
	assert.True(t, record.LastSystemSync.Equal(ts))
	assert.Nil(t, record.LastUserUpdate)
	assert.Equal(t, models.TagSourceSystemSync, record.UpdatedBy)
}

func TestReconcileTagUpdate_StaleSyncDiscarded(t *testing.T) {
	t1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	existing := &models.ResourceTagRecord{
		ResourceID:     "i-0abc123",
		SystemTags:     models.TagFields{App: strptr("checkout")},
		LastSystemSync: &t1,
		UpdatedBy:      models.TagSourceSystemSync,
	}

	tests := []struct {
		name string
		ts   time.Time
	}{
		{name: "older than last sync", ts: t1.Add(-time.Hour)},
		{name: "equal to last sync", ts: t1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ReconcileTagUpdate(existing, models.TagUpdate{
				ResourceID: "i-0abc123",
				Source:     models.TagSourceSystemSync,
				Fields:     models.TagFields{App: strptr("legacy-app")},
				Timestamp:  tt.ts,
			})

			assert.Nil(t, record)
			assert.ErrorIs(t, err, apperrors.ErrStaleUpdate)
			// The input record is untouched.
			assert.Equal(t, "checkout", *existing.SystemTags.App)
			assert.True(t, existing.LastSystemSync.Equal(t1))
		})
	}
}

func TestReconcileTagUpdate_NewerSyncAdvances(t *testing.T) {
	t1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(6 * time.Hour)
	existing := &models.ResourceTagRecord{
		ResourceID:     "i-0abc123",
		SystemTags:     models.TagFields{App: strptr("checkout"), Environment: strptr("staging")},
		LastSystemSync: &t1,
		UpdatedBy:      models.TagSourceSystemSync,
	}

	record, err := ReconcileTagUpdate(existing, models.TagUpdate{
		ResourceID: "i-0abc123",
		Source:     models.TagSourceSystemSync,
		Fields:     models.TagFields{Environment: strptr("production")},
		Timestamp:  t2,
	})

	require.NoError(t, err)
	assert.Equal(t, "production", *record.SystemTags.Environment)
	// Fields absent from the update keep their previous system value.
	assert.Equal(t, "checkout", *record.SystemTags.App)
	assert.True(t, record.LastSystemSync.Equal(t2))
}

func TestReconcileTagUpdate_UserEditAppliesRegardlessOfTimestamp(t *testing.T) {
	// The sync baseline is well ahead of the user edit's timestamp; human
	// intent still wins.
	syncTime := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	editTime := syncTime.Add(-48 * time.Hour)
	existing := &models.ResourceTagRecord{
		ResourceID:     "i-0abc123",
		SystemTags:     models.TagFields{Owner: strptr("unassigned")},
		LastSystemSync: &syncTime,
		UpdatedBy:      models.TagSourceSystemSync,
	}

	record, err := ReconcileTagUpdate(existing, models.TagUpdate{
		ResourceID: "i-0abc123",
		Source:     models.TagSourceUser,
		Fields:     models.TagFields{Owner: strptr("data-eng")},
		Timestamp:  editTime,
	})

	require.NoError(t, err)
	assert.Equal(t, "data-eng", *record.UserTags.Owner)
	// System copy is preserved alongside, not overwritten.
	assert.Equal(t, "unassigned", *record.SystemTags.Owner)
	require.NotNil(t, record.LastUserUpdate)
	assert.True(t, record.LastUserUpdate.Equal(editTime))
	// The sync baseline is not reset by a user edit.
	assert.True(t, record.LastSystemSync.Equal(syncTime))
	assert.Equal(t, models.TagSourceUser, record.UpdatedBy)
}

func TestReconcileTagUpdate_UserValueSurvivesLaterSync(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	t2 := t1.Add(time.Hour)

	record, err := ReconcileTagUpdate(nil, models.TagUpdate{
		ResourceID: "vol-9",
		Source:     models.TagSourceSystemSync,
		Fields:     models.TagFields{App: strptr("derived-app")},
		Timestamp:  t0,
	})
	require.NoError(t, err)

	record, err = ReconcileTagUpdate(record, models.TagUpdate{
		ResourceID: "vol-9",
		Source:     models.TagSourceUser,
		Fields:     models.TagFields{App: strptr("corrected-app")},
		Timestamp:  t1,
	})
	require.NoError(t, err)

	record, err = ReconcileTagUpdate(record, models.TagUpdate{
		ResourceID: "vol-9",
		Source:     models.TagSourceSystemSync,
		Fields:     models.TagFields{App: strptr("derived-app-v2")},
		Timestamp:  t2,
	})
	require.NoError(t, err)

	// The sync refreshed its own copy but the reader still sees the human
	// correction.
	assert.Equal(t, "derived-app-v2", *record.SystemTags.App)
	assert.Equal(t, "corrected-app", *record.UserTags.App)
	assert.Equal(t, "corrected-app", record.EffectiveTags()[models.TagFieldApp])
}

func TestReconcileTagUpdate_EmptyUpdateAdvancesProvenance(t *testing.T) {
	t1 := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	existing := &models.ResourceTagRecord{
		ResourceID:     "i-7",
		SystemTags:     models.TagFields{App: strptr("api")},
		LastSystemSync: &t1,
		UpdatedBy:      models.TagSourceSystemSync,
	}

	record, err := ReconcileTagUpdate(existing, models.TagUpdate{
		ResourceID: "i-7",
		Source:     models.TagSourceSystemSync,
		Timestamp:  t2,
	})

	require.NoError(t, err)
	assert.Equal(t, "api", *record.SystemTags.App)
	assert.True(t, record.LastSystemSync.Equal(t2))
}

func TestReconcileTagUpdate_APISourceTreatedAsUserIntent(t *testing.T) {
	syncTime := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	existing := &models.ResourceTagRecord{
		ResourceID:     "i-7",
		LastSystemSync: &syncTime,
		UpdatedBy:      models.TagSourceSystemSync,
	}

	// Same timestamp as the last sync would be stale for a sync event.
	record, err := ReconcileTagUpdate(existing, models.TagUpdate{
		ResourceID: "i-7",
		Source:     models.TagSourceAPI,
		Fields:     models.TagFields{BusinessUnit: strptr("fintech")},
		Timestamp:  syncTime,
	})

	require.NoError(t, err)
	assert.Equal(t, "fintech", *record.UserTags.BusinessUnit)
	assert.Equal(t, models.TagSourceAPI, record.UpdatedBy)
}

func TestReconcileTagUpdate_Validation(t *testing.T) {
	ts := time.Now()

	tests := []struct {
		name   string
		update models.TagUpdate
	}{
		{
			name:   "missing resource id",
			update: models.TagUpdate{Source: models.TagSourceUser, Timestamp: ts},
		},
		{
			name:   "unknown source",
			update: models.TagUpdate{ResourceID: "i-1", Source: "crawler", Timestamp: ts},
		},
		{
			name:   "zero timestamp",
			update: models.TagUpdate{ResourceID: "i-1", Source: models.TagSourceUser},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := ReconcileTagUpdate(nil, tt.update)
			assert.Nil(t, record)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
		})
	}
}
