package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// dynamoRecord is one cache entry. ExpiresAt is epoch seconds so the table's
// TTL attribute can reap it; 0 means no expiry.
type dynamoRecord struct {
	Key       string `dynamodbav:"pk"`
	Value     []byte `dynamodbav:"value"`
	ExpiresAt int64  `dynamodbav:"expires_at"`
}

// DynamoStore is a Store over a DynamoDB table keyed by the string
// attribute "pk". DynamoDB deletes expired items lazily, so reads check
// expires_at themselves.
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoStore creates a store on table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

// NewDynamoStoreFromConfig builds the client from an AWS config.
func NewDynamoStoreFromConfig(cfg aws.Config, table string) *DynamoStore {
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), table)
}

func (d *DynamoStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := d.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(d.table),
		Key:            map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: key}},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dynamodb get: %v", ErrStoreUnavailable, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var record dynamoRecord
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	if record.ExpiresAt != 0 && d.now().Unix() >= record.ExpiresAt {
		return nil, ErrNotFound
	}

	return record.Value, nil
}

func (d *DynamoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	record := dynamoRecord{Key: key, Value: value}
	if ttl > 0 {
		// round up so sub-second TTLs do not expire immediately
		record.ExpiresAt = d.now().Add(ttl + time.Second - 1).Unix()
	}

	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	_, err = d.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("%w: dynamodb put: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (d *DynamoStore) Delete(ctx context.Context, key string) error {
	_, err := d.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(d.table),
		Key:       map[string]types.AttributeValue{"pk": &types.AttributeValueMemberS{Value: key}},
	})
	if err != nil {
		return fmt.Errorf("%w: dynamodb delete: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no connection to release.
func (d *DynamoStore) Close() error {
	return nil
}
