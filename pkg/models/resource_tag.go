package models

import "time"

// TagSource identifies the writer of a tag update.
type TagSource string

const (
	// TagSourceSystemSync marks values derived from automated billing/usage
	// analysis.
	TagSourceSystemSync TagSource = "system_sync"
	// TagSourceUser marks values entered or corrected by a human operator.
	TagSourceUser TagSource = "user"
	// TagSourceAPI marks bulk assignments made through the API on behalf of
	// a user. Reconciliation treats it as user intent.
	TagSourceAPI TagSource = "api"
)

// IsUser reports whether the source represents human intent. User intent is
// never subject to the monotonic sync guard.
func (s TagSource) IsUser() bool {
	return s == TagSourceUser || s == TagSourceAPI
}

// Valid reports whether the source is one of the known writers.
func (s TagSource) Valid() bool {
	return s == TagSourceSystemSync || s == TagSourceUser || s == TagSourceAPI
}

// Tag field names as exposed in effective tag views and filters.
const (
	TagFieldApp          = "app"
	TagFieldBusinessUnit = "business_unit"
	TagFieldEnvironment  = "environment"
	TagFieldOwner        = "owner"
	TagFieldName         = "name"
)

// TagFields holds the managed tag attributes for one source. Every field is
// optional; nil means the source has no value for that attribute, which is
// distinct from an empty string.
type TagFields struct {
	App          *string `json:"app,omitempty"`
	BusinessUnit *string `json:"business_unit,omitempty"`
	Environment  *string `json:"environment,omitempty"`
	Owner        *string `json:"owner,omitempty"`
	Name         *string `json:"name,omitempty"`
}

// IsEmpty reports whether no field is set.
func (f TagFields) IsEmpty() bool {
	return f.App == nil && f.BusinessUnit == nil && f.Environment == nil &&
		f.Owner == nil && f.Name == nil
}

// merge overlays the set fields of in onto f, leaving unset fields alone.
func (f TagFields) merge(in TagFields) TagFields {
	if in.App != nil {
		f.App = in.App
	}
	if in.BusinessUnit != nil {
		f.BusinessUnit = in.BusinessUnit
	}
	if in.Environment != nil {
		f.Environment = in.Environment
	}
	if in.Owner != nil {
		f.Owner = in.Owner
	}
	if in.Name != nil {
		f.Name = in.Name
	}
	return f
}

// ResourceTagRecord is the authoritative tag state for one cloud resource.
// System-derived and user-entered values are kept in parallel and are never
// collapsed; precedence is resolved at read time by EffectiveTags.
type ResourceTagRecord struct {
	ResourceID     string     `json:"resource_id"`
	SystemTags     TagFields  `json:"system_tags"`
	UserTags       TagFields  `json:"user_tags"`
	LastSystemSync *time.Time `json:"last_system_sync,omitempty"`
	LastUserUpdate *time.Time `json:"last_user_update,omitempty"`
	UpdatedBy      TagSource  `json:"updated_by"`
}

// EffectiveTags returns the merged view exposed to readers: the user value
// when present, else the system value. Attributes absent from both sources
// are omitted.
func (r *ResourceTagRecord) EffectiveTags() map[string]string {
	effective := make(map[string]string, 5)
	pick := func(field string, user, system *string) {
		switch {
		case user != nil:
			effective[field] = *user
		case system != nil:
			effective[field] = *system
		}
	}
	pick(TagFieldApp, r.UserTags.App, r.SystemTags.App)
	pick(TagFieldBusinessUnit, r.UserTags.BusinessUnit, r.SystemTags.BusinessUnit)
	pick(TagFieldEnvironment, r.UserTags.Environment, r.SystemTags.Environment)
	pick(TagFieldOwner, r.UserTags.Owner, r.SystemTags.Owner)
	pick(TagFieldName, r.UserTags.Name, r.SystemTags.Name)
	return effective
}

// ApplyFields overwrites the tag copy owned by source with the fields set in
// in. The opposite source's copy is never touched.
func (r *ResourceTagRecord) ApplyFields(source TagSource, in TagFields) {
	if source.IsUser() {
		r.UserTags = r.UserTags.merge(in)
		return
	}
	r.SystemTags = r.SystemTags.merge(in)
}

// TagUpdate is one inbound tag change event from either the billing sync or
// a user edit. Fields carries only the attributes the event changes.
type TagUpdate struct {
	ResourceID string    `json:"resource_id"`
	Source     TagSource `json:"source"`
	Fields     TagFields `json:"fields"`
	Timestamp  time.Time `json:"timestamp"`
}
