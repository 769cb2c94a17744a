package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestTrail_Record(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	trail := NewTrail(zap.New(core))

	trail.Record(Event{
		EventType:  EventTagUpdateApplied,
		ResourceID: "i-0abc123",
		Actor:      "user",
		Details:    map[string]string{"owner": "data-eng"},
	})

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "tag_update_applied", entries[0].Message)

	fields := entries[0].ContextMap()
	assert.Equal(t, "i-0abc123", fields["resource_id"])
	assert.Equal(t, "user", fields["actor"])

	var event Event
	require.NoError(t, json.Unmarshal([]byte(fields["event_json"].(string)), &event))
	assert.Equal(t, EventTagUpdateApplied, event.EventType)
	assert.False(t, event.Timestamp.IsZero())
}

func TestTrail_NamespacesLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	trail := NewTrail(zap.New(core))

	trail.Record(Event{EventType: EventAccountRegistered, UsageAccountID: "123456789012"})

	require.Len(t, logs.All(), 1)
	assert.Equal(t, "governance_audit", logs.All()[0].LoggerName)
}
