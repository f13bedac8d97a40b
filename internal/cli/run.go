package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/backend/dynamo"
	"github.com/goliatone/go-settings/pkg/backend/hclfile"
	"github.com/goliatone/go-settings/pkg/schemasource/hclschema"
	"github.com/goliatone/go-settings/schema/openapi"
)

// Run parses args, opens the configured catalog and backend and executes
// the command. Command output goes to stdout, diagnostics to stderr.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, shouldExit, err := Parse(args, stdout)
	if err != nil || shouldExit {
		return err
	}
	logger := NewLogger(cfg.LogLevel, cfg.LogFormat, stderr)
	manager, err := NewManager(ctx, cfg, logger)
	if err != nil {
		return err
	}
	return Execute(ctx, manager, cfg.Command, cfg.Args, stdout)
}

// NewManager builds a manager over the HCL catalog and the configured
// backend.
func NewManager(ctx context.Context, cfg *Config, logger *slog.Logger) (*settings.Manager, error) {
	source := hclschema.New(cfg.SchemaPaths,
		hclschema.WithLogger(logger),
		hclschema.WithEvaluatorLogger(settings.NewSlogLogger(logger)),
	)
	backend, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return settings.New(source, backend,
		settings.WithLogger(logger),
		settings.WithOperationLogger(settings.NewSlogLogger(logger)),
	), nil
}

func openBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (settings.Backend, error) {
	switch cfg.Backend {
	case "dynamo":
		client, err := dynamo.NewClient(ctx)
		if err != nil {
			return nil, err
		}
		config := dynamo.DefaultConfig()
		config.Table = cfg.Table
		return dynamo.New(client, config, dynamo.WithLogger(logger)), nil
	default:
		store, err := hclfile.Open(cfg.StorePath, hclfile.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

// Execute runs one command against manager. Arity has been checked by
// Parse.
func Execute(ctx context.Context, manager *settings.Manager, command string, args []string, out io.Writer) error {
	switch command {
	case "schemas":
		ids, err := manager.ListSchemas(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(out, id)
		}
		return nil
	case "exists":
		exists, err := manager.SchemaExists(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(out, exists)
		if !exists {
			return &ExitError{Code: 1, Message: fmt.Sprintf("schema %q is not installed", args[0])}
		}
		return nil
	case "keys":
		keys, err := manager.ListKeys(ctx, args[0])
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Fprintln(out, key)
		}
		return nil
	case "get":
		value, err := manager.Read(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		return writeJSON(out, value)
	case "set":
		return setValue(ctx, manager, args[0], args[1], args[2])
	case "dump":
		session, err := manager.Open(ctx, args[0])
		if err != nil {
			return err
		}
		data, err := session.Serialize(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "describe":
		session, err := manager.Open(ctx, args[0])
		if err != nil {
			return err
		}
		return writeDescriptors(out, session.Describe())
	case "openapi":
		schema, err := manager.Resolver().ResolveSchema(ctx, args[0])
		if err != nil {
			return err
		}
		document, err := openapi.Generate(schema)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(document, "", "  ")
		if err != nil {
			return fmt.Errorf("encode document: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", command)}
	}
}

// setValue passes string keys the raw argument and decodes everything else
// as JSON, falling back to the raw string when it is not valid JSON.
func setValue(ctx context.Context, manager *settings.Manager, schemaID, key, raw string) error {
	session, err := manager.Open(ctx, schemaID)
	if err != nil {
		return err
	}
	var value any = raw
	if signatureOf(session, key) != settings.TypeString.Signature() {
		var decoded any
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			value = decoded
		}
	}
	return session.Set(ctx, key, value)
}

func signatureOf(session *settings.Session, key string) string {
	for _, field := range session.Describe() {
		if field.Key == key {
			return field.Signature
		}
	}
	return ""
}

func writeJSON(out io.Writer, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func writeDescriptors(out io.Writer, fields []settings.FieldDescriptor) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tTYPE\tDEFAULT\tCONSTRAINT\tSUMMARY")
	for _, field := range fields {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			field.Key, field.Signature, orDash(field.Default), orDash(field.Constraint), field.Summary)
	}
	return w.Flush()
}

func orDash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
