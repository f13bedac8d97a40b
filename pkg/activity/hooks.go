package activity

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Event is one settings activity occurrence. SchemaID and Key name the
// setting it is about; when they are set and ObjectType/ObjectID are not,
// normalization fills in ObjectTypeKey and "<schema>/<key>". Identity fields
// are plain strings so callers need not share a UUID type.
type Event struct {
	Verb           string
	SchemaID       string
	Key            string
	ActorID        string
	UserID         string
	TenantID       string
	ObjectType     string
	ObjectID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	OccurredAt     time.Time
}

// Target returns "<schema>/<key>" for key events, "" otherwise.
func (e Event) Target() string {
	if e.SchemaID == "" && e.Key == "" {
		return ""
	}
	return keyObjectID(e.SchemaID, e.Key)
}

func (e Event) routable() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// ActivityHook receives normalized events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

// Notify calls fn; a nil func ignores the event.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks is an ordered fan-out of hooks.
type Hooks []ActivityHook

// Enabled reports whether there is any hook to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Compact returns a copy of h without nil hooks, or nil when none remain.
func (h Hooks) Compact() Hooks {
	var out Hooks
	for _, hook := range h {
		if hook != nil {
			out = append(out, hook)
		}
	}
	return out
}

// Notify normalizes event and hands it to every hook in order. Events
// without a verb or an object are dropped. A failing hook does not stop the
// others; failures come back joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	event = NormalizeEvent(event)
	if !event.routable() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("activity: %s %s: %w", event.Verb, event.ObjectID, err))
		}
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims string fields, derives the object of key events,
// copies Metadata and Recipients and stamps a missing OccurredAt with
// time.Now.
func NormalizeEvent(event Event) Event {
	out := event
	out.Verb = strings.TrimSpace(event.Verb)
	out.SchemaID = strings.TrimSpace(event.SchemaID)
	out.Key = strings.TrimSpace(event.Key)
	out.ActorID = strings.TrimSpace(event.ActorID)
	out.UserID = strings.TrimSpace(event.UserID)
	out.TenantID = strings.TrimSpace(event.TenantID)
	out.ObjectType = strings.TrimSpace(event.ObjectType)
	out.ObjectID = strings.TrimSpace(event.ObjectID)
	out.Channel = strings.TrimSpace(event.Channel)
	out.DefinitionCode = strings.TrimSpace(event.DefinitionCode)

	if target := out.Target(); target != "" {
		if out.ObjectType == "" {
			out.ObjectType = ObjectTypeKey
		}
		if out.ObjectID == "" && out.ObjectType == ObjectTypeKey {
			out.ObjectID = target
		}
	}

	out.Metadata = cloneMap(event.Metadata)
	if len(event.Recipients) > 0 {
		out.Recipients = slices.Clone(event.Recipients)
	} else {
		out.Recipients = nil
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now()
	}
	return out
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
