package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	batchGetLimit   = 100
	batchMaxRetries = 11
)

// batchBackoff is the base delay before retrying unprocessed keys.
var batchBackoff = 10 * time.Millisecond

// Key is a primary key value. Range is ignored by models without a range key.
type Key struct {
	Hash  any
	Range any
}

// BatchGetOptions tune BatchGetItems.
type BatchGetOptions struct {
	ConsistentRead bool
	Attributes     []string
}

// BatchGetItems fetches keys in requests of at most 100 keys, retrying
// unprocessed keys with exponential backoff. Result order is whatever the
// store returned.
func (t *Table) BatchGetItems(ctx context.Context, keys []Key, opts *BatchGetOptions) ([]*Item, error) {
	if opts == nil {
		opts = &BatchGetOptions{}
	}
	if len(keys) == 0 {
		return nil, nil
	}
	wireKeys := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		key, err := t.schema.ToWireKey(k.Hash, k.Range)
		if err != nil {
			return nil, err
		}
		wireKeys[i] = key
	}
	client, err := t.Client(ctx)
	if err != nil {
		return nil, err
	}

	tableName := t.TableName()
	var items []*Item
	for start := 0; start < len(wireKeys); start += batchGetLimit {
		end := min(start+batchGetLimit, len(wireKeys))
		ka := types.KeysAndAttributes{
			Keys:           wireKeys[start:end],
			ConsistentRead: aws.Bool(opts.ConsistentRead),
		}
		if len(opts.Attributes) > 0 {
			expr, err := expression.NewBuilder().WithProjection(projection(opts.Attributes)).Build()
			if err != nil {
				return nil, err
			}
			ka.ProjectionExpression = expr.Projection()
			ka.ExpressionAttributeNames = expr.Names()
		}
		request := map[string]types.KeysAndAttributes{tableName: ka}

		for retries := 0; len(request) > 0; retries++ {
			if retries > batchMaxRetries {
				return nil, NewError(fmt.Sprintf("too many unprocessed keys %s", fmtCtx(map[string]any{
					"table": tableName, "remaining": len(request[tableName].Keys),
				})), WithCode(CodeStorage), WithContext(map[string]any{"table": tableName}))
			}
			if retries > 0 {
				if err := sleep(ctx, batchDelay(retries)); err != nil {
					return nil, err
				}
			}
			t.log.Trace("batch get", map[string]any{"table": tableName, "keys": len(request[tableName].Keys), "retry": retries})
			out, err := client.BatchGetItem(ctx, &ddb.BatchGetItemInput{RequestItems: request})
			if err != nil {
				return nil, t.storageFailure("BatchGetItem", err)
			}
			for _, raw := range out.Responses[tableName] {
				it, err := t.decodeItem(raw)
				if err != nil {
					return nil, err
				}
				items = append(items, it)
			}
			request = out.UnprocessedKeys
		}
	}
	return items, nil
}

// batchDelay is the wait before retry n (n >= 1): batchBackoff, then doubling.
func batchDelay(n int) time.Duration {
	return batchBackoff * time.Duration(1<<(n-1))
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
