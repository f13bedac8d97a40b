// Package cli parses settingsctl arguments, wires the schema catalog and
// backend they name into a settings.Manager and runs one command against it.
package cli
