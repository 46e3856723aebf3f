package outbox

import "example.com/focusquest/internal/events"

const profileChangedSchema = `{
  "type": "object",
  "title": "ProfileChanged",
  "properties": {
    "user_id": {"type": "string"},
    "username": {"type": "string"},
    "total_xp": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "username", "total_xp", "occurred_at"],
  "additionalProperties": false
}`

const focusSessionRecordedSchema = `{
  "type": "object",
  "title": "FocusSessionRecorded",
  "properties": {
    "session_id": {"type": "string"},
    "user_id": {"type": "string"},
    "minutes": {"type": "integer", "minimum": 1},
    "xp_earned": {"type": "integer", "minimum": 0},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["session_id", "user_id", "minutes", "xp_earned", "occurred_at"],
  "additionalProperties": false
}`

const xpReconcileRequestedSchema = `{
  "type": "object",
  "title": "XPReconcileRequested",
  "properties": {
    "user_id": {"type": "string"},
    "reason": {"type": "string"},
    "requested_at": {"type": "string", "format": "date-time"}
  },
  "required": ["user_id", "reason", "requested_at"],
  "additionalProperties": false
}`

// SchemaCatalogEntry maps event type to schema definition.
type SchemaCatalogEntry struct {
	Schema string
}

var schemaCatalog = map[string]SchemaCatalogEntry{
	events.TypeProfileChanged:       {Schema: profileChangedSchema},
	events.TypeFocusSessionRecorded: {Schema: focusSessionRecordedSchema},
	events.TypeXPReconcileRequested: {Schema: xpReconcileRequestedSchema},
}
