// Package settings bridges schema-described key/value settings to plain Go
// values.
//
// A schema declares keys with one of seven wire types (see Type) and an
// optional Constraint. Reads decode the stored Variant into a dynamic value;
// writes convert a dynamic value into the declared type, check it and hand it
// to a Backend, returning only after the backend synced. Any failure leaves
// the stored value untouched and is reported as an *Error whose Kind callers
// can match with errors.Is against the Err* sentinels.
//
//	manager := settings.New(source, backend)
//	if err := manager.Write(ctx, "org.example.desktop", "font-size", 14); err != nil {
//		// settings.KindOf(err) tells a type mismatch from a locked key
//	}
//
// Schemas come from an explicit SchemaSource (StaticSource, or the HCL
// catalog in pkg/schemasource/hclschema). Backends live under pkg/backend.
package settings
