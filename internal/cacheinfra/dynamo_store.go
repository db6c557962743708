package cacheinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoConfig configures the DynamoDB persistent tier. The table must have a
// string partition key named "pk"; enabling DynamoDB TTL on "expires_at"
// lets the service reclaim expired rows.
type DynamoConfig struct {
	Table    string `json:"table" yaml:"table"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type dynamoItem struct {
	PK        string `dynamodbav:"pk"`
	Value     []byte `dynamodbav:"value"`
	ExpiresAt int64  `dynamodbav:"expires_at,omitempty"`
}

// DynamoStore is a byte store on a DynamoDB table. DynamoDB TTL deletion is
// lazy, so Get also checks expires_at itself.
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoStore wraps a DynamoDB client for the configured table.
func NewDynamoStore(client DynamoAPI, cfg DynamoConfig) (*DynamoStore, error) {
	if client == nil {
		return nil, &ConfigError{Field: "Dynamo.Client", Message: "cannot be nil"}
	}
	if cfg.Table == "" {
		return nil, &ConfigError{Field: "Dynamo.Table", Message: "cannot be empty"}
	}
	return &DynamoStore{client: client, table: cfg.Table, now: time.Now}, nil
}

func (s *DynamoStore) keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: key},
	}
}

// Get returns the stored bytes, ErrMiss for absent or expired rows.
func (s *DynamoStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: dynamodb get %q: %v", ErrUnavailable, key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrMiss
	}

	var item dynamoItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode dynamodb item %q: %w", key, err)
	}
	if item.ExpiresAt > 0 && s.now().Unix() >= item.ExpiresAt {
		return nil, ErrMiss
	}
	return item.Value, nil
}

// Set writes value with an expires_at derived from ttl; ttl <= 0 never expires.
func (s *DynamoStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	item := dynamoItem{PK: key, Value: value}
	if ttl > 0 {
		item.ExpiresAt = s.now().Add(ttl).Unix()
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("encode dynamodb item %q: %w", key, err)
	}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item:      av,
	}); err != nil {
		return fmt.Errorf("%w: dynamodb put %q: %v", ErrUnavailable, key, err)
	}
	return nil
}

// Delete removes key.
func (s *DynamoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.keyOf(key),
	}); err != nil {
		return fmt.Errorf("%w: dynamodb delete %q: %v", ErrUnavailable, key, err)
	}
	return nil
}
