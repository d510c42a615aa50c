// Package dynamo implements store.Store on DynamoDB. Each cell is one item
// keyed (row, col); the write timestamp is carried in a numeric attribute
// and conflict resolution uses conditional writes, so concurrent writers
// converge on the newest cell without read-modify-write races. Tombstones
// are materialized items flagged deleted, preserving the timestamp ordering
// the delete path depends on.
//
// Table schema:
//   - Partition key: row (string)
//   - Sort key: col (string)
//
// Create with:
//
//	aws dynamodb create-table \
//	  --table-name shardex \
//	  --attribute-definitions AttributeName=row,AttributeType=S AttributeName=col,AttributeType=S \
//	  --key-schema AttributeName=row,KeyType=HASH AttributeName=col,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"golang.org/x/time/rate"

	"github.com/hupe1980/shardex/store"
)

const (
	attrRow = "row"
	attrCol = "col"
	attrVal = "val"
	attrTS  = "ts"
	attrDel = "del"
)

// Client is the subset of the DynamoDB API the store uses.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Options configures a Store.
type Options struct {
	// WriteRateLimit caps mutation writes per second. Zero means unlimited.
	// Invalidation flushes and repair sweeps go through the same store as
	// foreground writes; the cap keeps them from consuming provisioned
	// throughput.
	WriteRateLimit int

	// Now supplies timestamps for CompareAndSet writes. Defaults to
	// time.Now.
	Now func() time.Time
}

// Store is a DynamoDB-backed wide-column store.
type Store struct {
	client  Client
	table   string
	limiter *rate.Limiter
	now     func() time.Time
}

var _ store.Store = (*Store)(nil)

// New creates a Store on an existing client and table.
func New(client Client, table string, optFns ...func(*Options)) *Store {
	opts := Options{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}

	var limiter *rate.Limiter
	if opts.WriteRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.WriteRateLimit), opts.WriteRateLimit)
	}

	return &Store{
		client:  client,
		table:   table,
		limiter: limiter,
		now:     opts.Now,
	}
}

// NewFromDefaultConfig creates a Store using the ambient AWS configuration
// (environment, shared config files, instance metadata).
func NewFromDefaultConfig(ctx context.Context, table string, optFns ...func(*Options)) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("dynamo: load aws config: %w", err)
	}
	return New(dynamodb.NewFromConfig(cfg), table, optFns...), nil
}

// Read returns the live values of the requested columns.
func (s *Store) Read(ctx context.Context, row string, columns []string, cl store.ConsistencyLevel) (map[string][]byte, error) {
	result := make(map[string][]byte, len(columns))
	for _, col := range columns {
		resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName: aws.String(s.table),
			Key: map[string]types.AttributeValue{
				attrRow: &types.AttributeValueMemberS{Value: row},
				attrCol: &types.AttributeValueMemberS{Value: col},
			},
			ConsistentRead: aws.Bool(consistentRead(cl)),
		})
		if err != nil {
			return nil, fmt.Errorf("dynamo: get %q/%q: %w", row, col, err)
		}
		if resp.Item == nil {
			continue
		}
		if value, live := liveValue(resp.Item); live {
			result[col] = value
		}
	}
	return result, nil
}

// ReadRow returns all live columns of a row.
func (s *Store) ReadRow(ctx context.Context, row string, cl store.ConsistencyLevel) (map[string][]byte, error) {
	result := make(map[string][]byte)
	var startKey map[string]types.AttributeValue
	for {
		resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.table),
			KeyConditionExpression: aws.String("#r = :row"),
			ExpressionAttributeNames: map[string]string{
				"#r": attrRow,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":row": &types.AttributeValueMemberS{Value: row},
			},
			ConsistentRead:    aws.Bool(consistentRead(cl)),
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("dynamo: query row %q: %w", row, err)
		}

		for _, item := range resp.Items {
			colAttr, ok := item[attrCol].(*types.AttributeValueMemberS)
			if !ok {
				return nil, fmt.Errorf("dynamo: row %q: malformed col attribute", row)
			}
			if value, live := liveValue(item); live {
				result[colAttr.Value] = value
			}
		}

		if resp.LastEvaluatedKey == nil {
			break
		}
		startKey = resp.LastEvaluatedKey
	}
	return result, nil
}

// Apply submits a batch of mutations. Each mutation is written with a
// condition ensuring an older write never overwrites a newer cell; losing
// a conflict is silent, matching the store contract.
func (s *Store) Apply(ctx context.Context, cl store.ConsistencyLevel, muts ...store.Mutation) error {
	for _, mut := range muts {
		if err := s.wait(ctx); err != nil {
			return err
		}

		item := map[string]types.AttributeValue{
			attrRow: &types.AttributeValueMemberS{Value: mut.Row},
			attrCol: &types.AttributeValueMemberS{Value: mut.Column},
			attrTS:  &types.AttributeValueMemberN{Value: strconv.FormatInt(mut.Timestamp, 10)},
			attrDel: &types.AttributeValueMemberBOOL{Value: mut.Tombstone},
		}
		if !mut.Tombstone {
			item[attrVal] = &types.AttributeValueMemberB{Value: mut.Value}
		}

		// Tombstones win timestamp ties, inserts do not.
		condition := "attribute_not_exists(#ts) OR #ts < :ts"
		if mut.Tombstone {
			condition = "attribute_not_exists(#ts) OR #ts <= :ts"
		}

		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                item,
			ConditionExpression: aws.String(condition),
			ExpressionAttributeNames: map[string]string{
				"#ts": attrTS,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":ts": &types.AttributeValueMemberN{Value: strconv.FormatInt(mut.Timestamp, 10)},
			},
		})
		if err != nil {
			var condErr *types.ConditionalCheckFailedException
			if errors.As(err, &condErr) {
				continue // stale write loses
			}
			return fmt.Errorf("dynamo: put %q/%q: %w", mut.Row, mut.Column, err)
		}
	}
	return nil
}

// CompareAndSet atomically swaps the cell value if it matches expect.
func (s *Store) CompareAndSet(ctx context.Context, row, column string, expect, value []byte) (bool, error) {
	if err := s.wait(ctx); err != nil {
		return false, err
	}

	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			attrRow: &types.AttributeValueMemberS{Value: row},
			attrCol: &types.AttributeValueMemberS{Value: column},
			attrVal: &types.AttributeValueMemberB{Value: value},
			attrTS:  &types.AttributeValueMemberN{Value: strconv.FormatInt(s.now().UnixMicro(), 10)},
			attrDel: &types.AttributeValueMemberBOOL{Value: false},
		},
	}

	if expect == nil {
		// A tombstoned item still occupies the cell but reads as absent,
		// so it must not block the swap.
		input.ConditionExpression = aws.String("attribute_not_exists(#r) OR #d = :true")
		input.ExpressionAttributeNames = map[string]string{"#r": attrRow, "#d": attrDel}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":true": &types.AttributeValueMemberBOOL{Value: true},
		}
	} else {
		input.ConditionExpression = aws.String("#v = :expect AND #d = :false")
		input.ExpressionAttributeNames = map[string]string{"#v": attrVal, "#d": attrDel}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expect": &types.AttributeValueMemberB{Value: expect},
			":false":  &types.AttributeValueMemberBOOL{Value: false},
		}
	}

	_, err := s.client.PutItem(ctx, input)
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return false, nil
		}
		return false, fmt.Errorf("dynamo: compare-and-set %q/%q: %w", row, column, err)
	}
	return true, nil
}

func (s *Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func liveValue(item map[string]types.AttributeValue) ([]byte, bool) {
	if del, ok := item[attrDel].(*types.AttributeValueMemberBOOL); ok && del.Value {
		return nil, false
	}
	val, ok := item[attrVal].(*types.AttributeValueMemberB)
	if !ok {
		return nil, false
	}
	return val.Value, true
}

func consistentRead(cl store.ConsistencyLevel) bool {
	return cl >= store.Quorum
}
