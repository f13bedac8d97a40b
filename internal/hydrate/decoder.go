package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Context identifies the schema a payload was read from.
type Context struct {
	SchemaID string
}

// PreHook lets callers mutate or normalise the payload before decoding.
type PreHook func(Context, map[string]any) (map[string]any, error)

// PostHook lets callers adjust or validate the hydrated struct after decoding.
type PostHook[T any] func(Context, *T) error

// CustomDecoder replaces the default JSON decoding when provided.
type CustomDecoder[T any] func(Context, map[string]any) (T, error)

// DecoderOption configures a Decoder instance.
type DecoderOption[T any] func(*Decoder[T])

// Decoder converts decoded settings (key name to dynamic value) into
// strongly typed structs. Struct fields map to keys through json tags.
type Decoder[T any] struct {
	preHooks     []PreHook
	postHooks    []PostHook[T]
	configureDec []func(*json.Decoder)
	custom       CustomDecoder[T]
}

// WithPreHook applies hook prior to decoding.
func WithPreHook[T any](hook PreHook) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.preHooks = append(d.preHooks, hook)
	}
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithUseNumber enables json.Decoder.UseNumber during decoding.
func WithUseNumber[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.UseNumber()
		})
	}
}

// WithDisallowUnknownFields rejects keys the target struct does not declare.
func WithDisallowUnknownFields[T any]() DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.DisallowUnknownFields()
		})
	}
}

// WithCustomDecoder replaces the default JSON decoding path.
func WithCustomDecoder[T any](decoder CustomDecoder[T]) DecoderOption[T] {
	return func(d *Decoder[T]) {
		d.custom = decoder
	}
}

func NewDecoder[T any](opts ...DecoderOption[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts payload into the target struct T applying configured hooks.
// The payload is cloned first; hooks never see the caller's map.
func (d *Decoder[T]) Decode(ctx Context, payload map[string]any) (T, error) {
	var zero T

	if payload == nil {
		return zero, fmt.Errorf("hydrate: payload is nil for schema %q", ctx.SchemaID)
	}

	current, err := clonePayload(payload)
	if err != nil {
		return zero, fmt.Errorf("hydrate: clone payload for schema %q: %w", ctx.SchemaID, err)
	}

	for _, hook := range d.preHooks {
		if hook == nil {
			continue
		}
		next, err := hook(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: pre-hook for schema %q failed: %w", ctx.SchemaID, err)
		}
		if next != nil {
			current = next
		}
	}

	var result T
	if d.custom != nil {
		result, err = d.custom(ctx, current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: custom decoder for schema %q failed: %w", ctx.SchemaID, err)
		}
	} else {
		buffer, err := json.Marshal(current)
		if err != nil {
			return zero, fmt.Errorf("hydrate: marshal payload for schema %q: %w", ctx.SchemaID, err)
		}
		decoder := json.NewDecoder(bytes.NewReader(buffer))
		for _, configure := range d.configureDec {
			if configure != nil {
				configure(decoder)
			}
		}
		if err := decoder.Decode(&result); err != nil {
			return zero, fmt.Errorf("hydrate: decode schema %q: %w", ctx.SchemaID, err)
		}
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, &result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook for schema %q failed: %w", ctx.SchemaID, err)
		}
	}

	return result, nil
}

// PairsAsObject is a PreHook that rewrites string pair array values
// ([]any of []any{first, second}) stored under keys into objects, so they can
// hydrate map[string]string fields. Later pairs win on duplicate names.
func PairsAsObject(keys ...string) PreHook {
	return func(_ Context, payload map[string]any) (map[string]any, error) {
		for _, key := range keys {
			raw, ok := payload[key]
			if !ok || raw == nil {
				continue
			}
			items, ok := raw.([]any)
			if !ok {
				return nil, fmt.Errorf("key %q is not a pair array", key)
			}
			object := make(map[string]any, len(items))
			for i, item := range items {
				pair, ok := item.([]any)
				if !ok || len(pair) != 2 {
					return nil, fmt.Errorf("key %q element %d is not a pair", key, i)
				}
				name, ok := pair[0].(string)
				if !ok {
					return nil, fmt.Errorf("key %q element %d has a non-string name", key, i)
				}
				object[name] = pair[1]
			}
			payload[key] = object
		}
		return payload, nil
	}
}

func clonePayload(payload map[string]any) (map[string]any, error) {
	buffer, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(buffer, &out); err != nil {
		return nil, err
	}
	return out, nil
}
