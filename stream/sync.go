// Package stream keeps an in-memory store in sync with its DynamoDB table by
// applying DynamoDB Streams records.
//
// Rows only enter the store when they belong there: roots are always
// appended, but a child is only inserted when its parent is loaded and the
// parent's children were already fetched. Otherwise the row is skipped and
// will arrive with the parent's next progressive fetch.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/canopy/source"
	"github.com/jacentio/canopy/store"
	"github.com/jacentio/canopy/tree"
)

// FetchTracker reports which parents have had their children loaded.
// *progressive.Loader satisfies it.
type FetchTracker interface {
	Fetched(key store.Key) bool
	Forget(key store.Key)
}

// Stats counts what a batch of records did to the store.
type Stats struct {
	Inserted int
	Updated  int
	Removed  int
	Skipped  int
}

// Handler applies DynamoDB stream events to a store.
type Handler struct {
	store   *store.Store
	adapter tree.Adapter
	tracker FetchTracker
	config  Config
	root    store.Key
	logger  *slog.Logger
}

// NewHandler creates a new stream handler. tracker may be nil, in which case
// every loaded parent is treated as fetched.
func NewHandler(s *store.Store, adapter tree.Adapter, tracker FetchTracker, config Config, logger *slog.Logger) *Handler {
	config.validate()
	if logger == nil {
		logger = slog.Default()
	}
	root, _ := store.KeyOf(config.RootSentinel)
	return &Handler{
		store:   s,
		adapter: adapter,
		tracker: tracker,
		config:  config,
		root:    root,
		logger:  logger,
	}
}

// HandleStream processes a batch of stream records. It has the shape of an
// AWS Lambda handler; returning an error makes the batch retry.
func (h *Handler) HandleStream(ctx context.Context, event events.DynamoDBEvent) error {
	_, err := h.Apply(ctx, event)
	return err
}

// Apply processes a batch of stream records in order and reports what changed.
func (h *Handler) Apply(ctx context.Context, event events.DynamoDBEvent) (Stats, error) {
	var stats Stats
	for _, record := range event.Records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := h.processRecord(record, &stats); err != nil {
			h.logger.Error("failed to process record",
				"eventID", record.EventID,
				"error", err,
			)
			return stats, err
		}
	}

	h.logger.Debug("stream batch applied",
		"records", len(event.Records),
		"inserted", stats.Inserted,
		"updated", stats.Updated,
		"removed", stats.Removed,
		"skipped", stats.Skipped,
	)
	return stats, nil
}

// processRecord applies a single DynamoDB stream record.
func (h *Handler) processRecord(record events.DynamoDBEventRecord, stats *Stats) error {
	switch record.EventName {
	case "INSERT", "MODIFY":
		// Any image carrying a ttl is soft-deleted, however it got there.
		if getNumberAttr(record.Change.NewImage, "ttl") != 0 {
			key, ok, err := h.keyOf(record.Change.NewImage, record.Change.Keys)
			if err != nil || !ok {
				return err
			}
			h.remove(key, stats)
			return nil
		}
		row, err := h.decode(record.Change.NewImage)
		if err != nil {
			return err
		}
		return h.upsert(row, stats)

	case "REMOVE":
		key, ok, err := h.keyOf(record.Change.OldImage, record.Change.Keys)
		if err != nil || !ok {
			return err
		}
		h.remove(key, stats)
	}
	return nil
}

// upsert updates a loaded row in place, or inserts a new one where it belongs.
func (h *Handler) upsert(row store.Row, stats *Stats) error {
	key, ok := store.KeyOf(row[h.store.PrimaryKeyColumn()])
	if !ok {
		return store.ErrMissingPrimaryKey
	}

	parent, hasParent := store.KeyOf(row[h.config.ParentColumn])
	isRoot := !hasParent || parent == h.root

	if current, exists := h.store.Lookup(key); exists {
		// A row moved under a parent whose children are not loaded would make
		// that parent look partially fetched; drop it and let the fetch bring it.
		if !isRoot && !h.sameParent(current, parent) && !h.childrenLoaded(parent) {
			h.remove(key, stats)
			return nil
		}
		if err := h.store.Update(key, row); err != nil {
			return fmt.Errorf("update %q: %w", key, err)
		}
		stats.Updated++
		return nil
	}

	if isRoot {
		if err := h.store.Append(row); err != nil {
			return fmt.Errorf("append root %q: %w", key, err)
		}
		stats.Inserted++
		return nil
	}

	if !h.childrenLoaded(parent) {
		stats.Skipped++
		return nil
	}

	_, err := h.store.InsertAfter(parent, row)
	switch {
	case errors.Is(err, store.ErrNotFound):
		stats.Skipped++
		return nil
	case err != nil:
		return fmt.Errorf("insert %q: %w", key, err)
	}
	stats.Inserted++
	return nil
}

func (h *Handler) sameParent(current store.Row, parent store.Key) bool {
	k, ok := store.KeyOf(current[h.config.ParentColumn])
	return ok && k == parent
}

// childrenLoaded reports whether a new child of parent belongs in the store.
func (h *Handler) childrenLoaded(parent store.Key) bool {
	if _, ok := h.store.IndexOf(parent); !ok {
		return false
	}
	return h.tracker == nil || h.tracker.Fetched(parent)
}

// remove deletes key and its loaded descendants.
func (h *Handler) remove(key store.Key, stats *Stats) {
	i, ok := h.store.IndexOf(key)
	if !ok {
		stats.Skipped++
		return
	}

	keys := h.subtreeKeys(i)
	n := h.store.Remove(keys...)
	stats.Removed += n
	if h.tracker != nil {
		for _, k := range keys {
			h.tracker.Forget(k)
		}
	}

	h.logger.Info("removed subtree",
		"key", key,
		"rowCount", n,
	)
}

// subtreeKeys collects the keys of the row at index and every loaded
// descendant. Indices are only used within this read-only walk.
func (h *Handler) subtreeKeys(index int) []store.Key {
	var keys []store.Key
	queue := []int{index}
	seen := make(map[int]struct{})
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if _, dup := seen[i]; dup {
			continue
		}
		seen[i] = struct{}{}

		k, err := h.store.KeyAt(i)
		if err != nil {
			continue
		}
		keys = append(keys, k)

		kids, err := h.adapter.Children(i)
		if err != nil {
			continue
		}
		queue = append(queue, kids...)
	}
	return keys
}

func (h *Handler) decode(image map[string]events.DynamoDBAttributeValue) (store.Row, error) {
	return source.DecodeItem(ConvertImage(image), h.config.PartitionAttr, "ttl")
}

// keyOf extracts the primary key from an image, falling back to the record
// keys for KEYS_ONLY streams.
func (h *Handler) keyOf(image, keys map[string]events.DynamoDBAttributeValue) (store.Key, bool, error) {
	col := h.store.PrimaryKeyColumn()
	for _, src := range []map[string]events.DynamoDBAttributeValue{image, keys} {
		if _, present := src[col]; !present {
			continue
		}
		row, err := h.decode(src)
		if err != nil {
			return "", false, err
		}
		if k, ok := store.KeyOf(row[col]); ok {
			return k, true, nil
		}
	}
	h.logger.Warn("stream record has no primary key", "column", col)
	return "", false, nil
}

// getNumberAttr extracts a number attribute from a DynamoDB stream image.
func getNumberAttr(image map[string]events.DynamoDBAttributeValue, key string) int64 {
	v, ok := image[key]
	if !ok || v.DataType() != events.DataTypeNumber {
		return 0
	}
	n, err := v.Int64()
	if err != nil {
		return 0
	}
	return n
}

// ConvertImage converts a DynamoDB stream image into SDK attribute values.
func ConvertImage(image map[string]events.DynamoDBAttributeValue) map[string]types.AttributeValue {
	result := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		if av := convertValue(v); av != nil {
			result[k] = av
		}
	}
	return result
}

func convertValue(v events.DynamoDBAttributeValue) types.AttributeValue {
	switch v.DataType() {
	case events.DataTypeString:
		return &types.AttributeValueMemberS{Value: v.String()}
	case events.DataTypeNumber:
		return &types.AttributeValueMemberN{Value: v.Number()}
	case events.DataTypeBinary:
		return &types.AttributeValueMemberB{Value: v.Binary()}
	case events.DataTypeBoolean:
		return &types.AttributeValueMemberBOOL{Value: v.Boolean()}
	case events.DataTypeNull:
		return &types.AttributeValueMemberNULL{Value: true}
	case events.DataTypeStringSet:
		return &types.AttributeValueMemberSS{Value: v.StringSet()}
	case events.DataTypeNumberSet:
		return &types.AttributeValueMemberNS{Value: v.NumberSet()}
	case events.DataTypeBinarySet:
		return &types.AttributeValueMemberBS{Value: v.BinarySet()}
	case events.DataTypeList:
		list := v.List()
		out := make([]types.AttributeValue, 0, len(list))
		for _, item := range list {
			if av := convertValue(item); av != nil {
				out = append(out, av)
			}
		}
		return &types.AttributeValueMemberL{Value: out}
	case events.DataTypeMap:
		return &types.AttributeValueMemberM{Value: ConvertImage(v.Map())}
	}
	return nil
}
