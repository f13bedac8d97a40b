package dynamo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	settings "github.com/goliatone/go-settings"
)

var _ settings.Backend = (*Store)(nil)
var _ settings.WritableChecker = (*Store)(nil)
var _ settings.KeySyncer = (*Store)(nil)
var _ Client = (*dynamodb.Client)(nil)

type fakeClient struct {
	mu           sync.Mutex
	items        map[ref]map[string]types.AttributeValue
	transactions [][]types.TransactWriteItem
	getInputs    []*dynamodb.GetItemInput
	getErr       error

	// When set, TransactWriteItems signals started and blocks until release
	// is closed.
	started chan struct{}
	release chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{items: map[ref]map[string]types.AttributeValue{}}
}

func refOf(key map[string]types.AttributeValue) ref {
	return ref{
		schemaID: key["schema_id"].(*types.AttributeValueMemberS).Value,
		key:      key["key"].(*types.AttributeValueMemberS).Value,
	}
}

func (c *fakeClient) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.getInputs = append(c.getInputs, in)
	if c.getErr != nil {
		return nil, c.getErr
	}
	return &dynamodb.GetItemOutput{Item: c.items[refOf(in.Key)]}, nil
}

func (c *fakeClient) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := refOf(in.Key)
	item := c.itemFor(r)
	item["locked"] = in.ExpressionAttributeValues[":locked"]
	return &dynamodb.UpdateItemOutput{}, nil
}

func (c *fakeClient) TransactWriteItems(_ context.Context, in *dynamodb.TransactWriteItemsInput, _ ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	if c.release != nil {
		c.started <- struct{}{}
		<-c.release
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transactions = append(c.transactions, in.TransactItems)

	reasons := make([]types.CancellationReason, len(in.TransactItems))
	cancelled := false
	for i, item := range in.TransactItems {
		reasons[i].Code = aws.String("None")
		if isLocked(c.items[refOf(item.Update.Key)]) {
			reasons[i].Code = aws.String("ConditionalCheckFailed")
			cancelled = true
		}
	}
	if cancelled {
		return nil, &types.TransactionCanceledException{CancellationReasons: reasons}
	}
	for _, item := range in.TransactItems {
		stored := c.itemFor(refOf(item.Update.Key))
		stored["type"] = item.Update.ExpressionAttributeValues[":type"]
		stored["value"] = item.Update.ExpressionAttributeValues[":value"]
		stored["updated_at"] = item.Update.ExpressionAttributeValues[":now"]
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (c *fakeClient) itemFor(r ref) map[string]types.AttributeValue {
	item, ok := c.items[r]
	if !ok {
		item = itemKey(r.schemaID, r.key)
		c.items[r] = item
	}
	return item
}

func TestStoreRoundTripsEveryType(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := New(client, DefaultConfig())

	values := map[string]settings.Variant{
		"flag":   settings.Boolean(true),
		"offset": settings.Int32(-2147483648),
		"size":   settings.UInt32(4294967295),
		"scale":  settings.Double(0.1),
		"theme":  settings.String("dark"),
		"hosts":  settings.NewStringArray("b", "a"),
		"none":   settings.NewStringArray(),
		"env":    settings.NewStringPairArray(settings.StringPair{First: "LANG", Second: "C"}, settings.StringPair{First: "TZ", Second: "UTC"}),
	}
	for key, value := range values {
		if err := store.Set(ctx, "org.example.app", key, value); err != nil {
			t.Fatalf("set %s: %v", key, err)
		}
	}
	if _, ok, _ := store.Get(ctx, "org.example.app", "flag"); ok {
		t.Fatalf("expected staged value to be invisible before sync")
	}
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	for key, want := range values {
		got, ok, err := store.Get(ctx, "org.example.app", key)
		if err != nil || !ok {
			t.Fatalf("get %s: ok=%v err=%v", key, ok, err)
		}
		if !settings.Equal(want, got) {
			t.Fatalf("%s: want %s got %s", key, settings.Format(want), settings.Format(got))
		}
	}
	if got := client.getInputs[0]; got.ConsistentRead == nil || !*got.ConsistentRead {
		t.Fatalf("expected consistent reads")
	}
	if aws.ToString(client.getInputs[0].TableName) != "settings" {
		t.Fatalf("expected default table, got %q", aws.ToString(client.getInputs[0].TableName))
	}
}

func TestStoreSyncChunksTransactions(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := New(client, Config{Table: "prefs", MaxBatch: 2})

	for i := 0; i < 5; i++ {
		if err := store.Set(ctx, "org.example.app", fmt.Sprintf("k%d", i), settings.Int32(int32(i))); err != nil {
			t.Fatalf("set: %v", err)
		}
	}
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if len(client.transactions) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(client.transactions))
	}
	first := client.transactions[0][0].Update
	if aws.ToString(first.TableName) != "prefs" {
		t.Fatalf("expected table prefs, got %q", aws.ToString(first.TableName))
	}
	if aws.ToString(first.ConditionExpression) != notLockedCondition {
		t.Fatalf("expected lock condition, got %q", aws.ToString(first.ConditionExpression))
	}
	if err := store.Sync(ctx); err != nil || len(client.transactions) != 3 {
		t.Fatalf("expected empty sync to be a no-op, err=%v transactions=%d", err, len(client.transactions))
	}
}

func TestStoreLockedKeyCancelsSync(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := New(client, DefaultConfig())

	if err := store.Lock(ctx, "org.example.app", "theme"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	writable, err := store.Writable(ctx, "org.example.app", "theme")
	if err != nil || writable {
		t.Fatalf("expected locked key, writable=%v err=%v", writable, err)
	}
	if _, ok, _ := store.Get(ctx, "org.example.app", "theme"); ok {
		t.Fatalf("expected lock-only item to be unset")
	}

	if err := store.Set(ctx, "org.example.app", "theme", settings.String("dark")); err != nil {
		t.Fatalf("set: %v", err)
	}
	err = store.Sync(ctx)
	if !errors.Is(err, settings.ErrKeyLocked) {
		t.Fatalf("expected ErrKeyLocked, got %v", err)
	}

	if err := store.Unlock(ctx, "org.example.app", "theme"); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("expected staged value dropped after failed sync, got %v", err)
	}
	if _, ok, _ := store.Get(ctx, "org.example.app", "theme"); ok {
		t.Fatalf("expected value from the failed sync to be discarded")
	}
}

func TestStoreStampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	store := New(client, DefaultConfig(), WithClock(func() time.Time { return fixed }))

	_ = store.Set(ctx, "org.example.app", "flag", settings.Boolean(false))
	if err := store.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}
	stamp := client.items[ref{"org.example.app", "flag"}]["updated_at"].(*types.AttributeValueMemberS)
	if stamp.Value != "2025-03-01T09:30:00Z" {
		t.Fatalf("unexpected updated_at %q", stamp.Value)
	}
}

func TestStoreGetErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := New(client, DefaultConfig())

	client.items[ref{"org.example.app", "broken"}] = map[string]types.AttributeValue{
		"type":  &types.AttributeValueMemberS{Value: "i"},
		"value": &types.AttributeValueMemberS{Value: "not a number"},
	}
	if _, _, err := store.Get(ctx, "org.example.app", "broken"); err == nil {
		t.Fatalf("expected decode error for corrupt item")
	}

	boom := errors.New("throttled")
	client.getErr = boom
	if _, _, err := store.Get(ctx, "org.example.app", "flag"); !errors.Is(err, boom) {
		t.Fatalf("expected client error, got %v", err)
	}
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := Config{MaxBatch: 1000}
	cfg.validate()
	if cfg.Table != "settings" || cfg.MaxBatch != maxTransactItems {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestStoreSyncKeyIsolatesInterleavedWriters(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := New(client, DefaultConfig())

	if err := store.Lock(ctx, "org.example.app", "theme"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := store.Set(ctx, "org.example.app", "theme", settings.String("dark")); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if err := store.Set(ctx, "org.example.app", "volume", settings.Int32(4)); err != nil {
		t.Fatalf("set volume: %v", err)
	}

	if err := store.SyncKey(ctx, "org.example.app", "theme"); !errors.Is(err, settings.ErrKeyLocked) {
		t.Fatalf("expected ErrKeyLocked for the locked writer, got %v", err)
	}
	if err := store.SyncKey(ctx, "org.example.app", "volume"); err != nil {
		t.Fatalf("expected the other writer to commit, got %v", err)
	}
	got, ok, err := store.Get(ctx, "org.example.app", "volume")
	if err != nil || !ok || got != settings.Int32(4) {
		t.Fatalf("expected volume to be persisted, got %v ok=%v err=%v", got, ok, err)
	}
	for _, tx := range client.transactions {
		if len(tx) != 1 {
			t.Fatalf("expected single-item transactions, got %d items", len(tx))
		}
	}
}

func TestStoreSyncKeyReportsFailedSharedFlush(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := New(client, DefaultConfig())

	if err := store.Lock(ctx, "org.example.app", "theme"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	if err := store.Set(ctx, "org.example.app", "theme", settings.String("dark")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Set(ctx, "org.example.app", "volume", settings.Int32(4)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Sync(ctx); !errors.Is(err, settings.ErrKeyLocked) {
		t.Fatalf("expected ErrKeyLocked, got %v", err)
	}

	for _, key := range []string{"theme", "volume"} {
		if err := store.SyncKey(ctx, "org.example.app", key); !errors.Is(err, settings.ErrKeyLocked) {
			t.Fatalf("%s: expected the writer to see the failed flush, got %v", key, err)
		}
	}
	if _, ok, _ := store.Get(ctx, "org.example.app", "volume"); ok {
		t.Fatalf("expected volume to stay unset after the cancelled transaction")
	}
}

func TestStoreSyncKeyWaitsForInFlightFlush(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	client.started = make(chan struct{}, 1)
	client.release = make(chan struct{})
	store := New(client, DefaultConfig())

	if err := store.Set(ctx, "org.example.app", "volume", settings.Int32(4)); err != nil {
		t.Fatalf("set: %v", err)
	}
	syncErr := make(chan error, 1)
	go func() { syncErr <- store.Sync(ctx) }()
	<-client.started

	keyErr := make(chan error, 1)
	go func() { keyErr <- store.SyncKey(ctx, "org.example.app", "volume") }()

	select {
	case err := <-keyErr:
		t.Fatalf("expected SyncKey to wait for the in-flight flush, got %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	close(client.release)
	if err := <-syncErr; err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := <-keyErr; err != nil {
		t.Fatalf("sync key: %v", err)
	}
	got, ok, err := store.Get(ctx, "org.example.app", "volume")
	if err != nil || !ok || got != settings.Int32(4) {
		t.Fatalf("expected volume to be persisted, got %v ok=%v err=%v", got, ok, err)
	}
}

func TestStoreRejectsNonFiniteDoubles(t *testing.T) {
	ctx := context.Background()
	client := newFakeClient()
	store := New(client, DefaultConfig())

	for i, f := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		key := fmt.Sprintf("scale%d", i)
		if err := store.Set(ctx, "org.example.app", key, settings.Double(f)); err != nil {
			t.Fatalf("set: %v", err)
		}
		if err := store.SyncKey(ctx, "org.example.app", key); err == nil {
			t.Fatalf("expected %v to be rejected", f)
		}
	}
	if len(client.transactions) != 0 {
		t.Fatalf("expected no transaction for rejected values, got %d", len(client.transactions))
	}
}
