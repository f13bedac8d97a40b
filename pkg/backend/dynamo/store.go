// Package dynamo stores settings in a DynamoDB table, one item per key:
//
//	schema_id (S, partition key) | key (S, sort key) | type (S) | value | locked (BOOL) | updated_at (S)
//
// Set stages values in memory; Sync and SyncKey flush them with
// TransactWriteItems. Items with locked = true refuse writes through a
// condition expression.
package dynamo

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	settings "github.com/goliatone/go-settings"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// NewClient loads the default AWS configuration and returns a DynamoDB
// client.
func NewClient(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (*dynamodb.Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg), nil
}

const notLockedCondition = "attribute_not_exists(#locked) OR #locked = :false"

type ref struct {
	schemaID string
	key      string
}

func compareRefs(a, b ref) int {
	return cmp.Or(cmp.Compare(a.schemaID, b.schemaID), cmp.Compare(a.key, b.key))
}

// flush is one in-flight transaction. Every ref it took points at it until a
// later flush takes the ref again.
type flush struct {
	done chan struct{}
	err  error
}

func (f *flush) finish(err error) {
	f.err = err
	close(f.done)
}

func (f *flush) wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Store is a settings.Backend over a DynamoDB table.
type Store struct {
	client Client
	config Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	staged  map[ref]settings.Variant
	flushes map[ref]*flush
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

// WithClock replaces the time source for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store.
func New(client Client, config Config, opts ...Option) *Store {
	config.validate()
	s := &Store{
		client: client,
		config: config,
		logger: slog.New(slog.DiscardHandler),
		now:     time.Now,
		staged:  map[ref]settings.Variant{},
		flushes: map[ref]*flush{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func itemKey(schemaID, key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"schema_id": &types.AttributeValueMemberS{Value: schemaID},
		"key":       &types.AttributeValueMemberS{Value: key},
	}
}

func (s *Store) getItem(ctx context.Context, schemaID, key string) (map[string]types.AttributeValue, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.config.Table),
		Key:            itemKey(schemaID, key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: get %s/%s: %w", schemaID, key, err)
	}
	return out.Item, nil
}

// Get reads the committed value with a consistent read. Items without a
// value attribute (lock-only items) are unset.
func (s *Store) Get(ctx context.Context, schemaID, key string) (settings.Variant, bool, error) {
	item, err := s.getItem(ctx, schemaID, key)
	if err != nil || item == nil {
		return nil, false, err
	}
	av, ok := item["value"]
	if !ok {
		return nil, false, nil
	}
	signature, ok := item["type"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, false, fmt.Errorf("dynamo: %s/%s has no type attribute", schemaID, key)
	}
	value, err := decodeValue(signature.Value, av)
	if err != nil {
		return nil, false, fmt.Errorf("dynamo: %s/%s: %w", schemaID, key, err)
	}
	return value, true, nil
}

// Writable implements settings.WritableChecker.
func (s *Store) Writable(ctx context.Context, schemaID, key string) (bool, error) {
	item, err := s.getItem(ctx, schemaID, key)
	if err != nil {
		return false, err
	}
	return !isLocked(item), nil
}

func isLocked(item map[string]types.AttributeValue) bool {
	locked, ok := item["locked"].(*types.AttributeValueMemberBOOL)
	return ok && locked.Value
}

// Set stages value until the next Sync.
func (s *Store) Set(_ context.Context, schemaID, key string, value settings.Variant) error {
	if value == nil {
		return fmt.Errorf("dynamo: nil value for %s/%s", schemaID, key)
	}
	s.mu.Lock()
	s.staged[ref{schemaID, key}] = value
	s.mu.Unlock()
	return nil
}

// Sync flushes staged values in transactions of at most Config.MaxBatch
// writes. Staged values are dropped whether or not the flush succeeds. A
// transaction cancelled by a locked item fails with settings.ErrKeyLocked;
// transactions that completed before it stay committed and the ones after it
// are not attempted.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	staged := s.staged
	s.staged = map[ref]settings.Variant{}
	refs := slices.SortedFunc(maps.Keys(staged), compareRefs)
	var batches [][]ref
	var pending []*flush
	for batch := range slices.Chunk(refs, s.config.MaxBatch) {
		batches = append(batches, batch)
		pending = append(pending, s.startFlush(batch))
	}
	s.mu.Unlock()

	var err error
	for i, batch := range batches {
		if err == nil {
			err = s.transact(ctx, batch, staged)
		}
		pending[i].finish(err)
	}
	return err
}

// SyncKey implements settings.KeySyncer. It flushes only the value staged for
// key in a single-item transaction. With nothing staged it waits for the
// flush that took the key's last value and returns its outcome.
func (s *Store) SyncKey(ctx context.Context, schemaID, key string) error {
	r := ref{schemaID, key}
	s.mu.Lock()
	value, ok := s.staged[r]
	if !ok {
		f := s.flushes[r]
		s.mu.Unlock()
		if f == nil {
			return nil
		}
		return f.wait(ctx)
	}
	delete(s.staged, r)
	f := s.startFlush([]ref{r})
	s.mu.Unlock()

	err := s.transact(ctx, []ref{r}, map[ref]settings.Variant{r: value})
	f.finish(err)
	return err
}

// startFlush must be called with s.mu held.
func (s *Store) startFlush(refs []ref) *flush {
	f := &flush{done: make(chan struct{})}
	for _, r := range refs {
		s.flushes[r] = f
	}
	return f
}

func (s *Store) transact(ctx context.Context, batch []ref, values map[ref]settings.Variant) error {
	now := s.now().UTC().Format(time.RFC3339)
	items := make([]types.TransactWriteItem, 0, len(batch))
	for _, r := range batch {
		update, err := s.updateFor(r, values[r], now)
		if err != nil {
			return err
		}
		items = append(items, types.TransactWriteItem{Update: update})
	}
	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		err = mapTransactionError(err, batch)
		s.logger.WarnContext(ctx, "settings sync failed", "table", s.config.Table, "keys", len(batch), "error", err)
		return err
	}
	return nil
}

func (s *Store) updateFor(r ref, value settings.Variant, now string) (*types.Update, error) {
	av, err := encodeValue(value)
	if err != nil {
		return nil, fmt.Errorf("dynamo: encode %s/%s: %w", r.schemaID, r.key, err)
	}
	return &types.Update{
		TableName:           aws.String(s.config.Table),
		Key:                 itemKey(r.schemaID, r.key),
		UpdateExpression:    aws.String("SET #type = :type, #value = :value, #updated_at = :now"),
		ConditionExpression: aws.String(notLockedCondition),
		ExpressionAttributeNames: map[string]string{
			"#type":       "type",
			"#value":      "value",
			"#updated_at": "updated_at",
			"#locked":     "locked",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":type":  &types.AttributeValueMemberS{Value: value.Type().Signature()},
			":value": av,
			":now":   &types.AttributeValueMemberS{Value: now},
			":false": &types.AttributeValueMemberBOOL{Value: false},
		},
	}, nil
}

// mapTransactionError maps a condition failure on item i of batch to
// settings.ErrKeyLocked naming the key.
func mapTransactionError(err error, batch []ref) error {
	var txErr *types.TransactionCanceledException
	if errors.As(err, &txErr) {
		for i, reason := range txErr.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" && i < len(batch) {
				return fmt.Errorf("dynamo: %s/%s: %w", batch[i].schemaID, batch[i].key, settings.ErrKeyLocked)
			}
		}
	}
	return fmt.Errorf("dynamo: transact write: %w", err)
}

// Lock marks key read-only. The item is created when missing.
func (s *Store) Lock(ctx context.Context, schemaID, key string) error {
	return s.setLocked(ctx, schemaID, key, true)
}

// Unlock clears the read-only flag.
func (s *Store) Unlock(ctx context.Context, schemaID, key string) error {
	return s.setLocked(ctx, schemaID, key, false)
}

func (s *Store) setLocked(ctx context.Context, schemaID, key string, locked bool) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                aws.String(s.config.Table),
		Key:                      itemKey(schemaID, key),
		UpdateExpression:         aws.String("SET #locked = :locked"),
		ExpressionAttributeNames: map[string]string{"#locked": "locked"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":locked": &types.AttributeValueMemberBOOL{Value: locked},
		},
	})
	if err != nil {
		return fmt.Errorf("dynamo: lock %s/%s: %w", schemaID, key, err)
	}
	return nil
}
