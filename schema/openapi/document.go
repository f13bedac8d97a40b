package openapi

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	settings "github.com/goliatone/go-settings"
)

// Generate renders schema as an OpenAPI document with a single operation
// whose request body is the schema object: one property per supported key,
// carrying its type, default and constraints. Keys with unsupported types
// are listed under x-unsupported-keys instead.
func Generate(schema *settings.Schema, opts ...GeneratorOption) (map[string]any, error) {
	if schema == nil {
		return nil, fmt.Errorf("openapi: schema cannot be nil")
	}
	cfg := defaultGeneratorConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	cfg = cfg.forSchema(schema.ID())

	root, err := objectSchema(schema)
	if err != nil {
		return nil, err
	}
	return newDocumentBuilder(cfg, root).build()
}

func (cfg generatorConfig) forSchema(id string) generatorConfig {
	if cfg.info.Title == "" {
		cfg.info.Title = id
	}
	if cfg.operation.Path == "" {
		cfg.operation.Path = "/settings/" + id
	}
	if cfg.operation.Method == "" {
		cfg.operation.Method = "put"
	}
	if cfg.operation.OperationID == "" {
		cfg.operation.OperationID = cfg.operation.Method + ":" + cfg.operation.Path
	}
	if cfg.rootComponent == "" {
		cfg.rootComponent = componentName(id)
	}
	return cfg
}

type documentBuilder struct {
	config generatorConfig
	root   map[string]any
}

func newDocumentBuilder(config generatorConfig, root map[string]any) *documentBuilder {
	return &documentBuilder{config: config, root: root}
}

func (b *documentBuilder) build() (map[string]any, error) {
	document := map[string]any{
		"openapi": b.config.openAPIVersion,
		"info":    b.buildInfo(),
		"paths":   b.buildPaths(),
		"components": map[string]any{
			"schemas": map[string]any{
				b.config.rootComponent: b.root,
			},
		},
	}
	if err := validateDocument(document); err != nil {
		return nil, err
	}
	return document, nil
}

func (b *documentBuilder) buildInfo() map[string]any {
	info := map[string]any{
		"title":   b.config.info.Title,
		"version": b.config.info.Version,
	}
	if b.config.info.Description != "" {
		info["description"] = b.config.info.Description
	}
	return info
}

func (b *documentBuilder) buildPaths() map[string]any {
	responses := make(map[string]any, len(b.config.responses))
	statuses := make([]string, 0, len(b.config.responses))
	for status := range b.config.responses {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		responses[status] = map[string]any{
			"description": b.config.responses[status].Description,
		}
	}

	operation := map[string]any{
		"operationId": b.config.operation.OperationID,
		"requestBody": map[string]any{
			"required": true,
			"content": map[string]any{
				b.config.contentType: map[string]any{
					"schema": map[string]any{
						"$ref": "#/components/schemas/" + b.config.rootComponent,
					},
				},
			},
		},
		"responses": responses,
	}
	if summary := strings.TrimSpace(b.config.operation.Summary); summary != "" {
		operation["summary"] = summary
	}

	return map[string]any{
		b.config.operation.Path: map[string]any{
			b.config.operation.Method: operation,
		},
	}
}

// componentName turns a dotted schema id into a PascalCase component name:
// org.example.desktop becomes OrgExampleDesktop.
func componentName(id string) string {
	var sb strings.Builder
	upper := true
	for _, r := range id {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	name := sb.String()
	if name == "" {
		return "Settings"
	}
	if unicode.IsDigit(rune(name[0])) {
		name = "_" + name
	}
	return name
}

func validateDocument(document map[string]any) error {
	if document == nil {
		return fmt.Errorf("openapi: document cannot be nil")
	}
	openapi, _ := document["openapi"].(string)
	if openapi == "" {
		return fmt.Errorf("openapi: document missing version string")
	}
	info, _ := document["info"].(map[string]any)
	if info == nil {
		return fmt.Errorf("openapi: document missing info section")
	}
	if title, _ := info["title"].(string); title == "" {
		return fmt.Errorf("openapi: info.title must be set")
	}
	if version, _ := info["version"].(string); version == "" {
		return fmt.Errorf("openapi: info.version must be set")
	}
	paths, _ := document["paths"].(map[string]any)
	if len(paths) == 0 {
		return fmt.Errorf("openapi: document must define at least one path")
	}
	for pathKey, pathValue := range paths {
		pathItem, _ := pathValue.(map[string]any)
		if len(pathItem) == 0 {
			return fmt.Errorf("openapi: path %q missing operations", pathKey)
		}
		for method, operationValue := range pathItem {
			operation, _ := operationValue.(map[string]any)
			if operation == nil {
				return fmt.Errorf("openapi: operation %s %s invalid payload", method, pathKey)
			}
			if id, _ := operation["operationId"].(string); id == "" {
				return fmt.Errorf("openapi: operation %s %s missing operationId", method, pathKey)
			}
			if responses, _ := operation["responses"].(map[string]any); len(responses) == 0 {
				return fmt.Errorf("openapi: operation %s %s missing responses", method, pathKey)
			}
		}
	}
	return nil
}
