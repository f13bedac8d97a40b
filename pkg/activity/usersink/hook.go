package usersink

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/goliatone/go-settings/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// Hook forwards settings activity events to a go-users ActivitySink.
//
// Settings writes usually come from a service rather than a signed-in user,
// so ServiceActorID is recorded as the actor when an event carries none.
// When Verbs is non-empty only those verbs are forwarded.
type Hook struct {
	Sink           usertypes.ActivitySink
	ServiceActorID uuid.UUID
	Verbs          []string
}

// Notify maps the event into an ActivityRecord and forwards it to the sink.
func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}

	normalized := activity.NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" || normalized.ObjectID == "" {
		return nil
	}
	if len(h.Verbs) > 0 && !slices.Contains(h.Verbs, normalized.Verb) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	actorID := parseUUID(normalized.ActorID)
	if actorID == uuid.Nil {
		actorID = h.ServiceActorID
	}

	record := usertypes.ActivityRecord{
		ActorID:    actorID,
		UserID:     parseUUID(normalized.UserID),
		TenantID:   parseUUID(normalized.TenantID),
		Verb:       normalized.Verb,
		ObjectType: normalized.ObjectType,
		ObjectID:   normalized.ObjectID,
		Channel:    normalized.Channel,
		Data:       recordData(normalized),
		OccurredAt: normalized.OccurredAt,
	}
	if record.OccurredAt.IsZero() {
		record.OccurredAt = time.Now()
	}
	return h.Sink.Log(ctx, record)
}

func recordData(event activity.Event) map[string]any {
	data := make(map[string]any, len(event.Metadata)+4)
	for key, value := range event.Metadata {
		data[key] = value
	}
	if _, ok := data["schema_id"]; !ok && event.SchemaID != "" {
		data["schema_id"] = event.SchemaID
	}
	if _, ok := data["key"]; !ok && event.Key != "" {
		data["key"] = event.Key
	}
	if event.DefinitionCode != "" {
		data["definition_code"] = event.DefinitionCode
	}
	if len(event.Recipients) > 0 {
		data["recipients"] = append([]string{}, event.Recipients...)
	}
	if len(data) == 0 {
		return nil
	}
	return data
}

func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
