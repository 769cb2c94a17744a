// Package audit provides a governance audit trail in structured JSON form.
// Tag provenance and savings figures feed chargeback reports, so every
// mutation is logged with enough context to reconstruct who changed what
// and when.
package audit

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// EventType categorizes governance events for filtering and reporting.
type EventType string

const (
	// EventTagUpdateApplied is logged when a tag update is written.
	EventTagUpdateApplied EventType = "tag_update_applied"
	// EventStaleSyncDiscarded is logged when an out-of-order system sync is
	// dropped without touching stored state.
	EventStaleSyncDiscarded EventType = "stale_sync_discarded"
	// EventTagRecordDeleted is logged when a resource's tag record is
	// decommissioned.
	EventTagRecordDeleted EventType = "tag_record_deleted"
	// EventAccountRegistered is logged when the tenant directory gains or
	// refreshes an account.
	EventAccountRegistered EventType = "account_registered"
	// EventAchievedSavingsRecorded is logged when an operator records a
	// realized savings figure.
	EventAchievedSavingsRecorded EventType = "achieved_savings_recorded"
)

// Event is one auditable governance action.
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	EventType      EventType `json:"event_type"`
	ResourceID     string    `json:"resource_id,omitempty"`
	UsageAccountID string    `json:"usage_account_id,omitempty"`
	Actor          string    `json:"actor,omitempty"` // tag source or API caller role
	Details        any       `json:"details,omitempty"`
}

// Trail writes governance events to a dedicated logger namespace so they
// can be routed separately from operational logs.
type Trail struct {
	logger *zap.Logger
}

// NewTrail creates an audit trail writing under the "governance_audit"
// namespace.
func NewTrail(logger *zap.Logger) *Trail {
	return &Trail{logger: logger.Named("governance_audit")}
}

// Record logs one event. The full event is serialized into a single field
// so downstream collectors can parse it without reassembling zap fields.
func (t *Trail) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	t.logger.Info(string(event.EventType),
		zap.String("event_json", string(eventJSON)),
		zap.String("event_type", string(event.EventType)),
		zap.String("resource_id", event.ResourceID),
		zap.String("usage_account_id", event.UsageAccountID),
		zap.String("actor", event.Actor),
	)
}
