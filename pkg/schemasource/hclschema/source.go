// Package hclschema loads installed settings schemas from HCL files.
//
// A catalog file declares one or more schemas:
//
//	schema "org.example.desktop" {
//	  key "font-size" {
//	    type    = "u"
//	    default = 12
//	    range {
//	      min = 6
//	      max = 72
//	    }
//	  }
//	}
//
// Types are GVariant signatures or names. Keys with a signature outside the
// supported set are kept and reported as unsupported by the bridge.
package hclschema

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/internal/ctyconv"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

type catalogFile struct {
	Schemas []*schemaBlock `hcl:"schema,block"`
}

type schemaBlock struct {
	ID   string      `hcl:"id,label"`
	Keys []*keyBlock `hcl:"key,block"`
}

type keyBlock struct {
	Name        string      `hcl:"name,label"`
	Type        string      `hcl:"type"`
	Default     *cty.Value  `hcl:"default,optional"`
	Summary     string      `hcl:"summary,optional"`
	Description string      `hcl:"description,optional"`
	Range       *rangeBlock `hcl:"range,block"`
	Choices     []string    `hcl:"choices,optional"`
	Pattern     string      `hcl:"pattern,optional"`
	Rule        string      `hcl:"rule,optional"`
	RuleEngine  string      `hcl:"rule_engine,optional"`
}

type rangeBlock struct {
	Min float64 `hcl:"min"`
	Max float64 `hcl:"max"`
}

// Source is a settings.SchemaSource over HCL catalog files. By default the
// catalog is read on every Lookup and List; with WithCache it is read on
// first use and kept until Reload.
type Source struct {
	paths []string
	cfg   config

	mu      sync.RWMutex
	schemas map[string]*settings.Schema
	loaded  bool
}

// New returns a source reading every *.hcl file under paths. Paths may be
// files or directories; directories are walked recursively.
func New(paths []string, opts ...Option) *Source {
	return &Source{
		paths: slices.Clone(paths),
		cfg:   applyOptions(opts),
	}
}

// Lookup implements settings.SchemaSource.
func (s *Source) Lookup(ctx context.Context, id string) (*settings.Schema, bool, error) {
	schemas, err := s.catalog(ctx)
	if err != nil {
		return nil, false, err
	}
	schema, ok := schemas[id]
	return schema, ok, nil
}

// List returns the schema ids sorted alphabetically.
func (s *Source) List(ctx context.Context) ([]string, error) {
	schemas, err := s.catalog(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(schemas))
	for id := range schemas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Reload re-reads the catalog and reports whether it is valid. A cached source
// swaps in the new catalog; on failure the previous one is dropped so later
// lookups retry the read.
func (s *Source) Reload(ctx context.Context) error {
	if !s.cfg.cached {
		_, err := s.load(ctx)
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	schemas, err := s.load(ctx)
	if err != nil {
		s.schemas, s.loaded = nil, false
		return err
	}
	s.schemas, s.loaded = schemas, true
	return nil
}

func (s *Source) catalog(ctx context.Context) (map[string]*settings.Schema, error) {
	if !s.cfg.cached {
		return s.load(ctx)
	}
	s.mu.RLock()
	if s.loaded {
		schemas := s.schemas
		s.mu.RUnlock()
		return schemas, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.schemas, nil
	}
	schemas, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	s.schemas, s.loaded = schemas, true
	return schemas, nil
}

func (s *Source) load(ctx context.Context) (map[string]*settings.Schema, error) {
	files, err := findCatalogFiles(s.paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		s.cfg.logger.WarnContext(ctx, "no schema files found", "paths", s.paths)
	}

	parser := hclparse.NewParser()
	schemas := make(map[string]*settings.Schema)
	origin := make(map[string]string)
	for _, path := range files {
		blocks, err := decodeFile(parser, path)
		if err != nil {
			return nil, err
		}
		for _, block := range blocks {
			if previous, dup := origin[block.ID]; dup {
				return nil, fmt.Errorf("hclschema: schema %q declared in %s and %s", block.ID, previous, path)
			}
			schema, err := s.buildSchema(block)
			if err != nil {
				return nil, fmt.Errorf("hclschema: %s: %w", path, err)
			}
			schemas[block.ID] = schema
			origin[block.ID] = path
		}
	}
	s.cfg.logger.DebugContext(ctx, "schema catalog loaded", "files", len(files), "schemas", len(schemas))
	return schemas, nil
}

func decodeFile(parser *hclparse.Parser, path string) ([]*schemaBlock, error) {
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclschema: parse %s: %w", path, diags)
	}
	var catalog catalogFile
	if diags := gohcl.DecodeBody(file.Body, nil, &catalog); diags.HasErrors() {
		return nil, fmt.Errorf("hclschema: decode %s: %w", path, diags)
	}
	return catalog.Schemas, nil
}

func (s *Source) buildSchema(block *schemaBlock) (*settings.Schema, error) {
	specs := make([]settings.KeySpec, 0, len(block.Keys))
	for _, key := range block.Keys {
		spec, err := s.buildKey(block.ID, key)
		if err != nil {
			return nil, fmt.Errorf("schema %q key %q: %w", block.ID, key.Name, err)
		}
		specs = append(specs, spec)
	}
	return settings.NewSchema(block.ID, specs...)
}

func (s *Source) buildKey(schemaID string, key *keyBlock) (settings.KeySpec, error) {
	spec := settings.KeySpec{
		Name:        key.Name,
		Summary:     key.Summary,
		Description: key.Description,
	}
	typ, ok := settings.ParseType(key.Type)
	if !ok {
		spec.Signature = strings.TrimSpace(key.Type)
		return spec, nil
	}
	spec.Type = typ

	if key.Default != nil && !key.Default.IsNull() {
		def, err := ctyconv.ToVariant(typ, *key.Default)
		if err != nil {
			return spec, fmt.Errorf("default: %w", err)
		}
		spec.Default = def
	}

	constraint, err := s.buildConstraint(schemaID, key)
	if err != nil {
		return spec, err
	}
	spec.Constraint = constraint
	return spec, nil
}

func (s *Source) buildConstraint(schemaID string, key *keyBlock) (settings.Constraint, error) {
	var constraints []settings.Constraint
	if key.Range != nil {
		r, err := settings.NewRangeConstraint(key.Range.Min, key.Range.Max)
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, r)
	}
	if len(key.Choices) > 0 {
		constraints = append(constraints, settings.NewChoicesConstraint(key.Choices...))
	}
	if key.Pattern != "" {
		p, err := settings.NewPatternConstraint(key.Pattern)
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, p)
	}
	if strings.TrimSpace(key.Rule) != "" {
		evaluator, err := settings.NewEvaluator(key.RuleEngine, s.cfg.cache, s.cfg.registry)
		if err != nil {
			return nil, err
		}
		rule, err := settings.NewRuleConstraint(evaluator, key.Rule,
			settings.RuleWithTarget(schemaID, key.Name),
			settings.RuleWithEvaluatorLogger(s.cfg.evaluatorLogger),
		)
		if err != nil {
			return nil, err
		}
		constraints = append(constraints, rule)
	}
	return settings.AllOf(constraints...), nil
}

func findCatalogFiles(paths []string) ([]string, error) {
	var files []string
	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(d.Name(), ".hcl") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("hclschema: scan %s: %w", root, err)
		}
	}
	slices.Sort(files)
	return files, nil
}
