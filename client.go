/*
Package dynamo – storage client binding.

Tables never hold a client directly. They hold a *ClientRef, which a
Registry shares across every model it defines, so rebinding the registry's
client is seen by every Table at once.
*/
package dynamo

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Client is the subset of *dynamodb.Client used by the mapper. Test doubles
// and local stubs implement it too.
type Client interface {
	GetItem(ctx context.Context, params *ddb.GetItemInput, optFns ...func(*ddb.Options)) (*ddb.GetItemOutput, error)
	PutItem(ctx context.Context, params *ddb.PutItemInput, optFns ...func(*ddb.Options)) (*ddb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *ddb.DeleteItemInput, optFns ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *ddb.UpdateItemInput, optFns ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error)
	Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error)
	Scan(ctx context.Context, params *ddb.ScanInput, optFns ...func(*ddb.Options)) (*ddb.ScanOutput, error)
	BatchGetItem(ctx context.Context, params *ddb.BatchGetItemInput, optFns ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error)

	CreateTable(ctx context.Context, params *ddb.CreateTableInput, optFns ...func(*ddb.Options)) (*ddb.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *ddb.DeleteTableInput, optFns ...func(*ddb.Options)) (*ddb.DeleteTableOutput, error)
	UpdateTable(ctx context.Context, params *ddb.UpdateTableInput, optFns ...func(*ddb.Options)) (*ddb.UpdateTableOutput, error)
	DescribeTable(ctx context.Context, params *ddb.DescribeTableInput, optFns ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error)
}

var _ Client = (*ddb.Client)(nil)

// ClientLoader builds a client on first use.
type ClientLoader func(ctx context.Context) (Client, error)

// LoadDefaultClient builds a DynamoDB client from the default AWS config
// chain (environment, shared config files, instance role).
func LoadDefaultClient(ctx context.Context) (Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return ddb.NewFromConfig(cfg), nil
}

// ClientRef is a rebindable, lazily initialised client slot.
type ClientRef struct {
	mu     sync.Mutex
	client Client
	load   ClientLoader
}

// NewClientRef returns a ref bound to c. A nil c is loaded on first use with
// load, or LoadDefaultClient when load is nil.
func NewClientRef(c Client, load ClientLoader) *ClientRef {
	if load == nil {
		load = LoadDefaultClient
	}
	return &ClientRef{client: c, load: load}
}

// Get returns the bound client, loading the default one if none is bound.
func (r *ClientRef) Get(ctx context.Context) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		return r.client, nil
	}
	c, err := r.load(ctx)
	if err != nil {
		return nil, NewError("cannot load default DynamoDB client",
			WithCode(CodeConfiguration), WithCause(err))
	}
	r.client = c
	return c, nil
}

// Set rebinds the ref.
func (r *ClientRef) Set(c Client) {
	r.mu.Lock()
	r.client = c
	r.mu.Unlock()
}
