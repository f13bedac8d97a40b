package activity

import (
	"context"
	"strings"
	"time"
)

// DefaultChannel is the channel of events that do not name one.
const DefaultChannel = "settings"

// Config controls emission. An empty Channel means DefaultChannel and a nil
// Clock means time.Now; Clock stamps events that carry no OccurredAt.
type Config struct {
	Enabled bool
	Channel string
	Clock   func() time.Time
}

// Emitter applies Config defaults to events and fans them out to hooks.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
	clock   func() time.Time
}

// NewEmitter builds an emitter. It is disabled when cfg.Enabled is false or
// no non-nil hook is given.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	kept := hooks.Compact()
	return &Emitter{
		hooks:   kept,
		enabled: cfg.Enabled && len(kept) > 0,
		channel: channel,
		clock:   clock,
	}
}

// Enabled reports whether Emit reaches any hook.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Emit fills in the channel and time and notifies the hooks.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.clock()
	}
	return e.hooks.Notify(ctx, event)
}
