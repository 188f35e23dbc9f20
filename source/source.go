// Package source fetches tree rows from DynamoDB for progressive loading.
//
// Every item in the nodes table carries a partition attribute derived from
// its parent's key (see internal/shard). A GSI on that attribute lets a
// parent's children be read with one Query per shard, without scanning.
//
//	src := source.New(dynamodb.NewFromConfig(awsCfg), source.DefaultConfig(), logger)
//	loader := progressive.New(s, adapter, src, progressive.DefaultConfig(), logger)
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/sync/errgroup"

	"github.com/jacentio/canopy/internal/shard"
	"github.com/jacentio/canopy/store"
)

// DynamoSource reads a parent's children from DynamoDB. It implements
// progressive.Fetcher.
type DynamoSource struct {
	client dynamodb.QueryAPIClient
	config Config
	logger *slog.Logger
}

// New creates a new DynamoSource.
func New(client dynamodb.QueryAPIClient, config Config, logger *slog.Logger) *DynamoSource {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	return &DynamoSource{
		client: client,
		config: config,
		logger: logger,
	}
}

// NewFromDefaultConfig builds a DynamoSource from the default AWS credential
// chain (environment, shared config, instance role).
func NewFromDefaultConfig(ctx context.Context, cfg Config, logger *slog.Logger, optFns ...func(*config.LoadOptions) error) (*DynamoSource, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(awsCfg), cfg, logger), nil
}

// FetchChildren returns the active children of parent, shard by shard.
func (d *DynamoSource) FetchChildren(ctx context.Context, parent store.Key) ([]store.Row, error) {
	pks := shard.ParentPKs(string(parent), d.config.NumShards)
	now := time.Now()

	// Fast path for single shard (default)
	if len(pks) == 1 {
		return d.queryShard(ctx, pks[0], now)
	}

	// Multi-shard fan-out; results are concatenated in shard order.
	perShard := make([][]store.Row, len(pks))
	g, gctx := errgroup.WithContext(ctx)
	for i, pk := range pks {
		g.Go(func() error {
			rows, err := d.queryShard(gctx, pk, now)
			if err != nil {
				return fmt.Errorf("shard %02x: %w", i, err)
			}
			perShard[i] = rows
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []store.Row
	for _, rows := range perShard {
		out = append(out, rows...)
	}

	d.logger.Debug("fetched children",
		"parent", parent,
		"shards", len(pks),
		"rowCount", len(out),
	)
	return out, nil
}

func (d *DynamoSource) queryShard(ctx context.Context, pk string, now time.Time) ([]store.Row, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.config.TableName),
		KeyConditionExpression: aws.String("#pk = :pk"),
		FilterExpression:       aws.String(TTLFilterExpr()),
		ExpressionAttributeNames: map[string]string{
			"#pk":  d.config.PartitionAttr,
			"#ttl": "ttl",
		},
		ExpressionAttributeValues: mergeValues(
			map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
			},
			ttlFilterValues(now),
		),
	}
	if d.config.IndexName != "" {
		input.IndexName = aws.String(d.config.IndexName)
	}
	if d.config.PageSize > 0 {
		input.Limit = aws.Int32(d.config.PageSize)
	}

	var rows []store.Row
	paginator := dynamodb.NewQueryPaginator(d.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			// The filter is evaluated server-side; this guards items that
			// expired between pages.
			if IsExpired(item) {
				continue
			}
			row, err := d.RowFromItem(item)
			if err != nil {
				return nil, err
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// RowFromItem decodes a DynamoDB item into a store.Row, dropping the
// partition and ttl bookkeeping attributes.
func (d *DynamoSource) RowFromItem(item map[string]types.AttributeValue) (store.Row, error) {
	return DecodeItem(item, d.config.PartitionAttr, "ttl")
}

// DecodeItem decodes a DynamoDB item into a store.Row, omitting the named
// attributes. Numbers are kept as json.Number so large integer keys survive
// intact.
func DecodeItem(item map[string]types.AttributeValue, omit ...string) (store.Row, error) {
	var raw map[string]any
	err := attributevalue.UnmarshalMapWithOptions(item, &raw, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	for _, k := range omit {
		delete(raw, k)
	}

	row := make(store.Row, len(raw))
	for k, v := range raw {
		if n, ok := v.(attributevalue.Number); ok {
			v = json.Number(n)
		}
		row[k] = v
	}
	return row, nil
}

// ItemFromRow encodes a row for writing, adding the partition attribute
// computed from its parent and primary key.
func (d *DynamoSource) ItemFromRow(row store.Row) (map[string]types.AttributeValue, error) {
	pk, ok := store.KeyOf(row[d.config.PrimaryKeyColumn])
	if !ok {
		return nil, store.ErrMissingPrimaryKey
	}
	values := make(map[string]any, len(row))
	for k, v := range row {
		if n, ok := v.(json.Number); ok {
			v = attributevalue.Number(n)
		}
		values[k] = v
	}
	item, err := attributevalue.MarshalMap(values)
	if err != nil {
		return nil, fmt.Errorf("marshal row %q: %w", pk, err)
	}
	if parent, ok := store.KeyOf(row[d.config.ParentColumn]); ok {
		item[d.config.PartitionAttr] = &types.AttributeValueMemberS{
			Value: shard.ParentPK(string(parent), string(pk), d.config.NumShards),
		}
	}
	return item, nil
}

// mergeValues merges multiple expression attribute value maps.
func mergeValues(maps ...map[string]types.AttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}
