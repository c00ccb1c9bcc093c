package store

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cockroachdb/errors"
	"github.com/widlabs/widgen/wid"
)

const (
	dynamoKeyAttr  = "k"
	dynamoTickAttr = "tick"
	dynamoSeqAttr  = "seq"
)

// DynamoAPI is the subset of the DynamoDB client the store uses. Tests
// substitute an in-memory fake.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// dynamoStore is the table-backed durable StateStore: one item per row with
// a string hash key and two numeric state attributes. Seed relies on an
// attribute_not_exists condition and CompareAndSave on an equality
// condition over both state attributes, so DynamoDB itself enforces the CAS
// predicate.
type dynamoStore struct {
	client DynamoAPI
	table  string
	prefix string
	log    *slog.Logger
}

// NewDynamoStore creates a store writing to the given table, which must
// have a string hash key named "k".
func NewDynamoStore(client DynamoAPI, table, prefix string) CASStore {
	return &dynamoStore{
		client: client,
		table:  table,
		prefix: prefix,
		log: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn,
		})),
	}
}

var _ CASStore = (*dynamoStore)(nil)

func (s *dynamoStore) keyOf(key string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		dynamoKeyAttr: &types.AttributeValueMemberS{Value: fullKey(s.prefix, key)},
	}
}

func numAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func parseNumAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	attr, ok := item[name]
	if !ok {
		return 0, errors.WithStack(ErrCorruptState)
	}
	n, ok := attr.(*types.AttributeValueMemberN)
	if !ok {
		return 0, errors.WithStack(ErrCorruptState)
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, errors.WithStack(ErrCorruptState)
	}
	return v, nil
}

func (s *dynamoStore) Load(ctx context.Context, key string) (wid.State, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.keyOf(key),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return wid.State{}, errors.WithStack(err)
	}
	if out.Item == nil {
		return wid.State{}, errors.WithStack(wid.ErrStateNotFound)
	}
	tick, err := parseNumAttr(out.Item, dynamoTickAttr)
	if err != nil {
		return wid.State{}, err
	}
	seq, err := parseNumAttr(out.Item, dynamoSeqAttr)
	if err != nil {
		return wid.State{}, err
	}
	return wid.State{Tick: tick, Seq: seq}, nil
}

func (s *dynamoStore) Save(ctx context.Context, key string, st wid.State) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			dynamoKeyAttr:  &types.AttributeValueMemberS{Value: fullKey(s.prefix, key)},
			dynamoTickAttr: numAttr(st.Tick),
			dynamoSeqAttr:  numAttr(st.Seq),
		},
	})
	return errors.WithStack(err)
}

func (s *dynamoStore) Seed(ctx context.Context, key string, st wid.State) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			dynamoKeyAttr:  &types.AttributeValueMemberS{Value: fullKey(s.prefix, key)},
			dynamoTickAttr: numAttr(st.Tick),
			dynamoSeqAttr:  numAttr(st.Seq),
		},
		ConditionExpression: aws.String("attribute_not_exists(#k)"),
		ExpressionAttributeNames: map[string]string{
			"#k": dynamoKeyAttr,
		},
	})
	if isConditionalCheckFailed(err) {
		// another caller seeded the row first, which is fine
		return nil
	}
	return errors.WithStack(err)
}

func (s *dynamoStore) CompareAndSave(ctx context.Context, key string, prev, next wid.State) (bool, error) {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(s.table),
		Key:                 s.keyOf(key),
		UpdateExpression:    aws.String("SET #t = :nt, #s = :ns"),
		ConditionExpression: aws.String("#t = :ot AND #s = :os"),
		ExpressionAttributeNames: map[string]string{
			"#t": dynamoTickAttr,
			"#s": dynamoSeqAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":nt": numAttr(next.Tick),
			":ns": numAttr(next.Seq),
			":ot": numAttr(prev.Tick),
			":os": numAttr(prev.Seq),
		},
	})
	if isConditionalCheckFailed(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithStack(err)
	}
	return true, nil
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func (s *dynamoStore) Name() string {
	return "dynamodb"
}

func (s *dynamoStore) Close() error {
	return nil
}
