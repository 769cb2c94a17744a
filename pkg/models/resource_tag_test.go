package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strptr(s string) *string { return &s }

func TestEffectiveTags_UserOverridesSystemPerField(t *testing.T) {
	record := ResourceTagRecord{
		ResourceID: "i-1",
		SystemTags: TagFields{
			App:         strptr("derived-app"),
			Environment: strptr("prod"),
			Owner:       strptr("unassigned"),
		},
		UserTags: TagFields{
			Owner: strptr("data-eng"),
			Name:  strptr("etl-primary"),
		},
	}

	assert.Equal(t, map[string]string{
		TagFieldApp:         "derived-app",
		TagFieldEnvironment: "prod",
		TagFieldOwner:       "data-eng",
		TagFieldName:        "etl-primary",
	}, record.EffectiveTags())
}

func TestEffectiveTags_EmptyStringUserValueStillWins(t *testing.T) {
	// An explicit empty string is a value, not an absence.
	record := ResourceTagRecord{
		SystemTags: TagFields{Owner: strptr("ops")},
		UserTags:   TagFields{Owner: strptr("")},
	}

	assert.Equal(t, map[string]string{TagFieldOwner: ""}, record.EffectiveTags())
}

func TestEffectiveTags_OmitsFieldsAbsentFromBothSources(t *testing.T) {
	record := ResourceTagRecord{}
	assert.Empty(t, record.EffectiveTags())
}

func TestApplyFields_SourceIsolation(t *testing.T) {
	record := ResourceTagRecord{
		SystemTags: TagFields{App: strptr("sys-app")},
		UserTags:   TagFields{App: strptr("user-app")},
	}

	record.ApplyFields(TagSourceSystemSync, TagFields{App: strptr("sys-app-v2")})
	assert.Equal(t, "sys-app-v2", *record.SystemTags.App)
	assert.Equal(t, "user-app", *record.UserTags.App)

	record.ApplyFields(TagSourceAPI, TagFields{App: strptr("user-app-v2")})
	assert.Equal(t, "sys-app-v2", *record.SystemTags.App)
	assert.Equal(t, "user-app-v2", *record.UserTags.App)
}

func TestApplyFields_UnsetFieldsLeftAlone(t *testing.T) {
	record := ResourceTagRecord{
		UserTags: TagFields{App: strptr("app"), Owner: strptr("owner")},
	}

	record.ApplyFields(TagSourceUser, TagFields{Owner: strptr("new-owner")})

	assert.Equal(t, "app", *record.UserTags.App)
	assert.Equal(t, "new-owner", *record.UserTags.Owner)
}

func TestTagSource(t *testing.T) {
	assert.True(t, TagSourceUser.IsUser())
	assert.True(t, TagSourceAPI.IsUser())
	assert.False(t, TagSourceSystemSync.IsUser())

	assert.True(t, TagSourceSystemSync.Valid())
	assert.False(t, TagSource("crawler").Valid())
}
