package activity

import (
	"strings"
	"time"
)

const (
	// ObjectTypeKey is the object type of every settings key event.
	ObjectTypeKey = "settings.key"

	VerbKeyUpdated  = "settings.key.updated"
	VerbKeyRejected = "settings.key.rejected"
)

// KeyEventInput describes the common fields for settings key events.
type KeyEventInput struct {
	ActorID        string
	UserID         string
	TenantID       string
	SchemaID       string
	Key            string
	Signature      string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	OldValue       any
	NewValue       any
	Reason         string
	OccurredAt     time.Time
}

// BuildKeyUpdatedEvent constructs a normalized activity event for a write
// that was persisted and synced.
func BuildKeyUpdatedEvent(input KeyEventInput) Event {
	return buildKeyEvent(VerbKeyUpdated, input)
}

// BuildKeyRejectedEvent constructs an activity event for a write the backend
// refused. Reason carries the refusal message.
func BuildKeyRejectedEvent(input KeyEventInput) Event {
	return buildKeyEvent(VerbKeyRejected, input)
}

func buildKeyEvent(verb string, input KeyEventInput) Event {
	schemaID := strings.TrimSpace(input.SchemaID)
	key := strings.TrimSpace(input.Key)

	metadata := cloneMap(input.Metadata)
	if schemaID != "" {
		metadata = ensureMetadata(metadata)
		metadata["schema_id"] = schemaID
	}
	if key != "" {
		metadata = ensureMetadata(metadata)
		metadata["key"] = key
	}
	if input.Signature != "" {
		metadata = ensureMetadata(metadata)
		metadata["signature"] = input.Signature
	}
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}
	if input.Reason != "" {
		metadata = ensureMetadata(metadata)
		metadata["reason"] = input.Reason
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	return Event{
		Verb:           verb,
		SchemaID:       schemaID,
		Key:            key,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     ObjectTypeKey,
		ObjectID:       keyObjectID(schemaID, key),
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

// keyObjectID is "<schema>/<key>", degrading to whichever part is present.
func keyObjectID(schemaID, key string) string {
	switch {
	case schemaID != "" && key != "":
		return schemaID + "/" + key
	case schemaID != "":
		return schemaID
	case key != "":
		return key
	default:
		return ObjectTypeKey
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
