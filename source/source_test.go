package source_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/source"
	"github.com/jacentio/canopy/store"
)

// --- Fake DynamoDB ---

// fakeQuery serves items by partition key in pages of pageSize, using the
// page offset as the pagination token.
type fakeQuery struct {
	mu       sync.Mutex
	byPK     map[string][]map[string]types.AttributeValue
	pageSize int
	inputs   []*dynamodb.QueryInput
	err      error
}

func newFakeQuery(pageSize int) *fakeQuery {
	return &fakeQuery{byPK: make(map[string][]map[string]types.AttributeValue), pageSize: pageSize}
}

func (f *fakeQuery) Query(ctx context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}

	pk := in.ExpressionAttributeValues[":pk"].(*types.AttributeValueMemberS).Value
	items := f.byPK[pk]
	start := 0
	if in.ExclusiveStartKey != nil {
		start, _ = strconv.Atoi(in.ExclusiveStartKey["offset"].(*types.AttributeValueMemberN).Value)
	}
	end := min(start+f.pageSize, len(items))
	out := &dynamodb.QueryOutput{Items: items[start:end]}
	if end < len(items) {
		out.LastEvaluatedKey = map[string]types.AttributeValue{
			"offset": &types.AttributeValueMemberN{Value: strconv.Itoa(end)},
		}
	}
	return out, nil
}

func (f *fakeQuery) put(t *testing.T, src *source.DynamoSource, partitionAttr string, rows ...store.Row) {
	t.Helper()
	for _, r := range rows {
		item, err := src.ItemFromRow(r)
		if err != nil {
			t.Fatalf("item from row: %v", err)
		}
		pk := item[partitionAttr].(*types.AttributeValueMemberS).Value
		f.byPK[pk] = append(f.byPK[pk], item)
	}
}

// --- Config Tests ---

func TestDefaultConfig(t *testing.T) {
	cfg := source.DefaultConfig()

	if cfg.TableName != "canopy_nodes" {
		t.Errorf("expected TableName 'canopy_nodes', got %q", cfg.TableName)
	}
	if cfg.IndexName != "by_parent" {
		t.Errorf("expected IndexName 'by_parent', got %q", cfg.IndexName)
	}
	if cfg.PartitionAttr != "parent_pk" {
		t.Errorf("expected PartitionAttr 'parent_pk', got %q", cfg.PartitionAttr)
	}
	if cfg.NumShards != 1 {
		t.Errorf("expected NumShards 1, got %d", cfg.NumShards)
	}
}

func TestNew_NilLogger(t *testing.T) {
	if source.New(newFakeQuery(10), source.Config{}, nil) == nil {
		t.Fatal("expected non-nil DynamoSource")
	}
}

// --- FetchChildren Tests ---

func TestFetchChildren_SingleShardPaginates(t *testing.T) {
	fq := newFakeQuery(2)
	src := source.New(fq, source.DefaultConfig(), nil)
	fq.put(t, src, "parent_pk",
		store.Row{"primaryKey": 10, "parent": 1, "folder": false},
		store.Row{"primaryKey": 11, "parent": 1, "folder": true},
		store.Row{"primaryKey": 12, "parent": 1, "folder": false},
		store.Row{"primaryKey": 20, "parent": 2, "folder": false},
	)

	rows, err := src.FetchChildren(context.Background(), "1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	for i, want := range []store.Key{"10", "11", "12"} {
		if k := store.MustKey(rows[i]["primaryKey"]); k != want {
			t.Errorf("row %d: expected key %q, got %q", i, want, k)
		}
		if _, ok := rows[i]["parent_pk"]; ok {
			t.Errorf("row %d: expected partition attribute stripped", i)
		}
	}
	if len(fq.inputs) != 2 {
		t.Errorf("expected 2 pages, got %d queries", len(fq.inputs))
	}

	in := fq.inputs[0]
	if *in.TableName != "canopy_nodes" || *in.IndexName != "by_parent" {
		t.Errorf("unexpected table/index: %s/%s", *in.TableName, *in.IndexName)
	}
	if *in.FilterExpression != source.TTLFilterExpr() {
		t.Errorf("expected TTL filter, got %q", *in.FilterExpression)
	}
}

func TestFetchChildren_NumbersDecodeAsJSONNumber(t *testing.T) {
	fq := newFakeQuery(10)
	src := source.New(fq, source.DefaultConfig(), nil)
	fq.put(t, src, "parent_pk", store.Row{"primaryKey": 9007199254740993, "parent": 1})

	rows, err := src.FetchChildren(context.Background(), "1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	n, ok := rows[0]["primaryKey"].(json.Number)
	if !ok {
		t.Fatalf("expected json.Number, got %T", rows[0]["primaryKey"])
	}
	if n.String() != "9007199254740993" {
		t.Errorf("expected exact large key, got %s", n)
	}
}

func TestFetchChildren_MultiShard(t *testing.T) {
	fq := newFakeQuery(3)
	cfg := source.DefaultConfig()
	cfg.NumShards = 8
	src := source.New(fq, cfg, nil)

	var rows []store.Row
	for i := 0; i < 40; i++ {
		rows = append(rows, store.Row{"primaryKey": fmt.Sprintf("c%d", i), "parent": "root"})
	}
	fq.put(t, src, "parent_pk", rows...)

	got, err := src.FetchChildren(context.Background(), "root")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(got) != 40 {
		t.Errorf("expected 40 rows, got %d", len(got))
	}

	seen := make(map[store.Key]bool)
	for _, r := range got {
		seen[store.MustKey(r["primaryKey"])] = true
	}
	if len(seen) != 40 {
		t.Errorf("expected 40 distinct rows, got %d", len(seen))
	}

	again, _ := src.FetchChildren(context.Background(), "root")
	for i := range got {
		if store.MustKey(got[i]["primaryKey"]) != store.MustKey(again[i]["primaryKey"]) {
			t.Fatal("expected stable shard-ordered results")
		}
	}
}

func TestFetchChildren_SkipsExpired(t *testing.T) {
	fq := newFakeQuery(10)
	src := source.New(fq, source.DefaultConfig(), nil)
	fq.put(t, src, "parent_pk",
		store.Row{"primaryKey": 10, "parent": 1},
		store.Row{"primaryKey": 11, "parent": 1, "ttl": 1000000000},
		store.Row{"primaryKey": 12, "parent": 1, "ttl": time.Now().Unix() + 3600},
	)

	rows, err := src.FetchChildren(context.Background(), "1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 active rows, got %d", len(rows))
	}
	for _, r := range rows {
		if _, ok := r["ttl"]; ok {
			t.Error("expected ttl attribute stripped")
		}
	}
}

func TestFetchChildren_Error(t *testing.T) {
	fq := newFakeQuery(10)
	fq.err = errors.New("throttled")
	cfg := source.DefaultConfig()
	cfg.NumShards = 4
	src := source.New(fq, cfg, nil)

	_, err := src.FetchChildren(context.Background(), "1")
	if !errors.Is(err, fq.err) {
		t.Errorf("expected wrapped query error, got %v", err)
	}
}

func TestFetchChildren_NoIndex(t *testing.T) {
	fq := newFakeQuery(10)
	cfg := source.DefaultConfig()
	cfg.IndexName = ""
	cfg.PageSize = 5
	src := source.New(fq, cfg, nil)

	if _, err := src.FetchChildren(context.Background(), "1"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if fq.inputs[0].IndexName != nil {
		t.Error("expected base-table query without IndexName")
	}
	if fq.inputs[0].Limit == nil || *fq.inputs[0].Limit != 5 {
		t.Error("expected page size limit 5")
	}
}

// --- Item Encoding Tests ---

func TestItemFromRow(t *testing.T) {
	src := source.New(newFakeQuery(1), source.DefaultConfig(), nil)

	item, err := src.ItemFromRow(store.Row{"primaryKey": 10, "parent": "1", "name": "docs"})
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if v := item["parent_pk"].(*types.AttributeValueMemberS).Value; v != "1#00" {
		t.Errorf("expected partition '1#00', got %q", v)
	}
	if v := item["primaryKey"].(*types.AttributeValueMemberN).Value; v != "10" {
		t.Errorf("expected primaryKey N 10, got %q", v)
	}

	root, err := src.ItemFromRow(store.Row{"primaryKey": 1, "parent": -1})
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if v := root["parent_pk"].(*types.AttributeValueMemberS).Value; v != "-1#00" {
		t.Errorf("expected roots indexed under '-1#00', got %q", v)
	}

	if _, err := src.ItemFromRow(store.Row{"parent": 1}); !errors.Is(err, store.ErrMissingPrimaryKey) {
		t.Errorf("expected ErrMissingPrimaryKey, got %v", err)
	}
}

func TestItemFromRow_JSONNumberRoundTrip(t *testing.T) {
	src := source.New(newFakeQuery(1), source.DefaultConfig(), nil)
	item, err := src.ItemFromRow(store.Row{"primaryKey": json.Number("42"), "parent": -1})
	if err != nil {
		t.Fatalf("item: %v", err)
	}
	if _, ok := item["primaryKey"].(*types.AttributeValueMemberN); !ok {
		t.Errorf("expected json.Number to encode as N, got %T", item["primaryKey"])
	}
}

// --- TTL Tests ---

func TestIsExpired(t *testing.T) {
	tests := []struct {
		name     string
		item     map[string]types.AttributeValue
		expected bool
	}{
		{
			name:     "no TTL attribute",
			item:     map[string]types.AttributeValue{},
			expected: false,
		},
		{
			name: "TTL in past",
			item: map[string]types.AttributeValue{
				"ttl": &types.AttributeValueMemberN{Value: "1000000000"}, // 2001
			},
			expected: true,
		},
		{
			name: "TTL in future",
			item: map[string]types.AttributeValue{
				"ttl": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().Unix()+3600)},
			},
			expected: false,
		},
		{
			name: "TTL wrong type",
			item: map[string]types.AttributeValue{
				"ttl": &types.AttributeValueMemberS{Value: "1000000000"},
			},
			expected: false,
		},
		{
			name: "TTL unparseable",
			item: map[string]types.AttributeValue{
				"ttl": &types.AttributeValueMemberN{Value: "soon"},
			},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := source.IsExpired(tt.item); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}
