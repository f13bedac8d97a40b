package settings

import (
	"context"
	"reflect"

	"github.com/goliatone/go-settings/internal/hydrate"
)

// Snapshot reads every key of the session's schema into T. Fields map to
// keys through json tags. When T (or *T) has a Validate() error method it is
// called on the result.
func Snapshot[T any](ctx context.Context, session *Session, opts ...hydrate.DecoderOption[T]) (T, error) {
	var zero T
	values, err := session.GetAll(ctx)
	if err != nil {
		return zero, err
	}
	result, err := hydrate.NewDecoder(opts...).Decode(hydrate.Context{SchemaID: session.SchemaID()}, values)
	if err != nil {
		return zero, err
	}
	if err := validateValue(&result); err != nil {
		return zero, err
	}
	return result, nil
}

func validateValue[T any](value *T) error {
	if v, ok := any(*value).(interface{ Validate() error }); ok {
		return v.Validate()
	}
	if rv := reflect.ValueOf(value); rv.Kind() == reflect.Pointer && !rv.IsNil() {
		if v, ok := rv.Interface().(interface{ Validate() error }); ok {
			return v.Validate()
		}
	}
	return nil
}
