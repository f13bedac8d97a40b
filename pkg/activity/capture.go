package activity

import (
	"context"
	"sync"
)

// CaptureHook records every event it receives. When Err is set Notify still
// records the event and then returns Err.
type CaptureHook struct {
	Events []Event
	Err    error
	mu     sync.Mutex
}

// Notify implements ActivityHook.
func (h *CaptureHook) Notify(_ context.Context, event Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Events = append(h.Events, NormalizeEvent(event))
	return h.Err
}

// Verbs returns the recorded verbs in arrival order.
func (h *CaptureHook) Verbs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	verbs := make([]string, len(h.Events))
	for i, event := range h.Events {
		verbs[i] = event.Verb
	}
	return verbs
}

// ForKey returns the recorded events about one setting.
func (h *CaptureHook) ForKey(schemaID, key string) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Event
	for _, event := range h.Events {
		if event.SchemaID == schemaID && event.Key == key {
			out = append(out, event)
		}
	}
	return out
}
