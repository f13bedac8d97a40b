// Package hclfile persists settings in a single HCL file of setting blocks:
//
//	setting "org.example.desktop" "font-size" {
//	  type  = "u"
//	  value = 14
//	}
//
// A block with locked = true makes the key read-only. The file is rewritten
// atomically on Sync and SyncKey.
package hclfile

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"sync"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/internal/ctyconv"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
)

type storeFile struct {
	Settings []*settingBlock `hcl:"setting,block"`
}

type settingBlock struct {
	SchemaID string     `hcl:"schema_id,label"`
	Key      string     `hcl:"key,label"`
	Type     string     `hcl:"type,optional"`
	Value    *cty.Value `hcl:"value,optional"`
	Locked   bool       `hcl:"locked,optional"`
}

type ref struct {
	schemaID string
	key      string
}

type entry struct {
	value  settings.Variant
	locked bool
}

// Store is a settings.Backend over one HCL file.
type Store struct {
	path   string
	logger *slog.Logger

	mu        sync.RWMutex
	committed map[ref]entry
	staged    map[ref]settings.Variant
	failed    map[ref]error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the diagnostics logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open reads path. A missing file is an empty store; it is created on the
// first Sync.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("hclfile: path is required")
	}
	s := &Store{
		path:   path,
		logger: slog.New(slog.DiscardHandler),
		staged: map[ref]settings.Variant{},
		failed: map[ref]error{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file.
func (s *Store) Path() string { return s.path }

// Reload re-reads the file, discarding staged values.
func (s *Store) Reload() error {
	committed, err := readFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.committed = committed
	clear(s.staged)
	clear(s.failed)
	s.mu.Unlock()
	s.logger.Debug("settings file loaded", "path", s.path, "entries", len(committed))
	return nil
}

func readFile(path string) (map[ref]entry, error) {
	committed := map[ref]entry{}
	src, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return committed, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hclfile: read %s: %w", path, err)
	}

	file, diags := hclparse.NewParser().ParseHCL(src, path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("hclfile: parse %s: %w", path, diags)
	}
	var decoded storeFile
	if diags := gohcl.DecodeBody(file.Body, nil, &decoded); diags.HasErrors() {
		return nil, fmt.Errorf("hclfile: decode %s: %w", path, diags)
	}

	for _, block := range decoded.Settings {
		r := ref{block.SchemaID, block.Key}
		if _, dup := committed[r]; dup {
			return nil, fmt.Errorf("hclfile: %s: setting %s/%s declared twice", path, r.schemaID, r.key)
		}
		e := entry{locked: block.Locked}
		if block.Value != nil && !block.Value.IsNull() {
			typ, ok := settings.ParseType(block.Type)
			if !ok {
				return nil, fmt.Errorf("hclfile: %s: setting %s/%s has unsupported type %q", path, r.schemaID, r.key, block.Type)
			}
			value, err := ctyconv.ToVariant(typ, *block.Value)
			if err != nil {
				return nil, fmt.Errorf("hclfile: %s: setting %s/%s: %w", path, r.schemaID, r.key, err)
			}
			e.value = value
		}
		committed[r] = e
	}
	return committed, nil
}

func (s *Store) Get(_ context.Context, schemaID, key string) (settings.Variant, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.committed[ref{schemaID, key}]
	if !ok || e.value == nil {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *Store) Set(_ context.Context, schemaID, key string, value settings.Variant) error {
	if value == nil {
		return fmt.Errorf("hclfile: nil value for %s/%s", schemaID, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r := ref{schemaID, key}
	if s.committed[r].locked {
		return settings.ErrKeyLocked
	}
	s.staged[r] = value
	return nil
}

// Writable implements settings.WritableChecker.
func (s *Store) Writable(_ context.Context, schemaID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.committed[ref{schemaID, key}].locked, nil
}

// Sync writes committed and staged values to the file. The staged values are
// dropped whether or not the write succeeds.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.staged) == 0 {
		return nil
	}
	return s.flush(ctx, slices.Collect(maps.Keys(s.staged)))
}

// SyncKey implements settings.KeySyncer. Only the value staged for key is
// written; values staged for other keys stay staged. With nothing staged it
// returns the outcome of the flush that took the key's last value.
func (s *Store) SyncKey(ctx context.Context, schemaID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := ref{schemaID, key}
	if _, ok := s.staged[r]; !ok {
		return s.failed[r]
	}
	return s.flush(ctx, []ref{r})
}

func (s *Store) flush(ctx context.Context, refs []ref) error {
	next := maps.Clone(s.committed)
	for _, r := range refs {
		e := next[r]
		e.value = s.staged[r]
		next[r] = e
		delete(s.staged, r)
	}

	err := ctx.Err()
	if err == nil {
		err = writeFile(s.path, next)
	}
	for _, r := range refs {
		if err != nil {
			s.failed[r] = err
		} else {
			delete(s.failed, r)
		}
	}
	if err != nil {
		s.logger.Warn("settings file sync failed", "path", s.path, "keys", len(refs), "error", err)
		return err
	}
	s.committed = next
	return nil
}

// Lock marks key read-only and persists the flag.
func (s *Store) Lock(schemaID, key string) error {
	return s.setLocked(schemaID, key, true)
}

// Unlock clears the read-only flag and persists it.
func (s *Store) Unlock(schemaID, key string) error {
	return s.setLocked(schemaID, key, false)
}

func (s *Store) setLocked(schemaID, key string, locked bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(s.committed)
	r := ref{schemaID, key}
	e := next[r]
	e.locked = locked
	if e.value == nil && !locked {
		delete(next, r)
	} else {
		next[r] = e
	}
	if err := writeFile(s.path, next); err != nil {
		return err
	}
	s.committed = next
	return nil
}

func render(entries map[ref]entry) ([]byte, error) {
	refs := make([]ref, 0, len(entries))
	for r := range entries {
		refs = append(refs, r)
	}
	slices.SortFunc(refs, func(a, b ref) int {
		return cmp.Or(cmp.Compare(a.schemaID, b.schemaID), cmp.Compare(a.key, b.key))
	})

	file := hclwrite.NewEmptyFile()
	body := file.Body()
	for i, r := range refs {
		if i > 0 {
			body.AppendNewline()
		}
		e := entries[r]
		block := body.AppendNewBlock("setting", []string{r.schemaID, r.key}).Body()
		if e.value != nil {
			value, err := ctyconv.FromVariant(e.value)
			if err != nil {
				return nil, fmt.Errorf("hclfile: encode %s/%s: %w", r.schemaID, r.key, err)
			}
			block.SetAttributeValue("type", cty.StringVal(e.value.Type().Signature()))
			block.SetAttributeValue("value", value)
		}
		if e.locked {
			block.SetAttributeValue("locked", cty.True)
		}
	}
	return hclwrite.Format(file.Bytes()), nil
}

func writeFile(path string, entries map[ref]entry) error {
	data, err := render(entries)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("hclfile: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("hclfile: write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("hclfile: close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("hclfile: replace %s: %w", path, err)
	}
	return nil
}
