package settings

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an Error. Every kind is recoverable: the store is left
// unmodified whenever one is returned.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindSchemaSourceUnavailable means the schema catalog or the backend
	// could not be reached. It is an environment failure, not a usage error.
	KindSchemaSourceUnavailable
	KindSchemaNotFound
	KindKeyNotFound
	KindUnsupportedType
	KindTypeMismatch
	KindArrayElementTypeMismatch
	KindConstraintViolation
	// KindWriteRejected means the backend refused the write or its sync.
	KindWriteRejected
	// KindInvalidArgument covers malformed identifiers and undefined values.
	KindInvalidArgument
)

func (k Kind) String() string {
	switch k {
	case KindSchemaSourceUnavailable:
		return "schema source unavailable"
	case KindSchemaNotFound:
		return "schema not found"
	case KindKeyNotFound:
		return "key not found"
	case KindUnsupportedType:
		return "unsupported type"
	case KindTypeMismatch:
		return "type mismatch"
	case KindArrayElementTypeMismatch:
		return "array element type mismatch"
	case KindConstraintViolation:
		return "constraint violation"
	case KindWriteRejected:
		return "write rejected"
	case KindInvalidArgument:
		return "invalid argument"
	default:
		return "unknown error"
	}
}

var (
	ErrSchemaSourceUnavailable  = errors.New("settings: schema source unavailable")
	ErrSchemaNotFound           = errors.New("settings: schema not found")
	ErrKeyNotFound              = errors.New("settings: key not found")
	ErrUnsupportedType          = errors.New("settings: unsupported type")
	ErrTypeMismatch             = errors.New("settings: type mismatch")
	ErrArrayElementTypeMismatch = errors.New("settings: array element type mismatch")
	ErrConstraintViolation      = errors.New("settings: constraint violation")
	ErrWriteRejected            = errors.New("settings: write rejected")
	ErrInvalidArgument          = errors.New("settings: invalid argument")
	errUnknownKind              = errors.New("settings: unknown error")
)

// ErrKeyLocked is returned by backends that refuse a write because a policy
// layer below the bridge locked the key.
var ErrKeyLocked = errors.New("settings: key is locked")

func (k Kind) sentinel() error {
	switch k {
	case KindSchemaSourceUnavailable:
		return ErrSchemaSourceUnavailable
	case KindSchemaNotFound:
		return ErrSchemaNotFound
	case KindKeyNotFound:
		return ErrKeyNotFound
	case KindUnsupportedType:
		return ErrUnsupportedType
	case KindTypeMismatch:
		return ErrTypeMismatch
	case KindArrayElementTypeMismatch:
		return ErrArrayElementTypeMismatch
	case KindConstraintViolation:
		return ErrConstraintViolation
	case KindWriteRejected:
		return ErrWriteRejected
	case KindInvalidArgument:
		return ErrInvalidArgument
	default:
		return errUnknownKind
	}
}

// Error is the error value crossing the bridge boundary. Kind drives
// caller-side handling; the remaining fields carry diagnostic context.
type Error struct {
	Kind     Kind
	SchemaID string
	Key      string
	// Expected and Received describe the shapes involved in type errors.
	Expected string
	Received string
	// Index is the offending element for KindArrayElementTypeMismatch.
	Index  int
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	b.WriteString("settings: ")
	b.WriteString(e.Kind.String())
	if e.SchemaID != "" {
		fmt.Fprintf(&b, " schema=%q", e.SchemaID)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " key=%q", e.Key)
	}
	if e.Expected != "" || e.Received != "" {
		fmt.Fprintf(&b, ": expected %s, received %s", orUnknown(e.Expected), orUnknown(e.Received))
		if e.Kind == KindArrayElementTypeMismatch {
			fmt.Fprintf(&b, " at index %d", e.Index)
		}
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches the sentinel of the error kind, so errors.Is(err,
// ErrTypeMismatch) works without unwrapping to *Error first.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	return target == e.Kind.sentinel()
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var settingsErr *Error
	if errors.As(err, &settingsErr) {
		return settingsErr.Kind
	}
	return KindUnknown
}

func orUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

func newError(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Err: cause}
}

func unsupportedType(tag string) *Error {
	return &Error{Kind: KindUnsupportedType, Detail: tag}
}

func typeMismatch(expected Type, candidate any, detail string) *Error {
	return &Error{
		Kind:     KindTypeMismatch,
		Expected: expected.String(),
		Received: describeShape(candidate),
		Detail:   detail,
	}
}

func elementMismatch(expected string, index int, element any) *Error {
	return &Error{
		Kind:     KindArrayElementTypeMismatch,
		Expected: expected,
		Received: describeShape(element),
		Index:    index,
	}
}

// withTarget fills the schema id and key on err when it is an *Error that
// does not carry them yet; other errors are returned as they are.
func withTarget(err error, schemaID, key string) error {
	if err == nil {
		return nil
	}
	var settingsErr *Error
	if !errors.As(err, &settingsErr) {
		return err
	}
	if settingsErr.SchemaID == "" {
		settingsErr.SchemaID = schemaID
	}
	if settingsErr.Key == "" {
		settingsErr.Key = key
	}
	return err
}
