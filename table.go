/*
Package dynamo – Table type.

A Table is the bound handle of one model: compiled schema, client binding,
hooks and the CRUD, query and table-admin operations.
*/
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Operation names the hookable operations.
type Operation string

const (
	OpCreate  Operation = "create"
	OpUpdate  Operation = "update"
	OpDestroy Operation = "destroy"
)

// BeforeHook may replace the attributes of a pending operation. Returning an
// error aborts the operation before anything is written.
type BeforeHook func(ctx context.Context, attrs Attrs) (Attrs, error)

// AfterHook observes a completed operation. item is nil when the store
// returned no attributes (update with ReturnValues NONE, destroy by default).
type AfterHook func(ctx context.Context, item *Item)

// GetOptions tune Get.
type GetOptions struct {
	ConsistentRead bool
	Attributes     []string
}

// CreateOptions tune Create.
type CreateOptions struct {
	// Overwrite set to false makes the put conditional on the hash key not existing.
	Overwrite *bool
	// Expected adds equality conditions; a nil value requires the attribute to be absent.
	Expected     map[string]any
	ReturnValues types.ReturnValue
}

// UpdateOptions tune Update. ReturnValues defaults to ALL_NEW.
type UpdateOptions struct {
	Expected     map[string]any
	ReturnValues types.ReturnValue
}

// DestroyOptions tune Destroy.
type DestroyOptions struct {
	Expected     map[string]any
	ReturnValues types.ReturnValue
}

// Table is the compiled, client-bound handle of a model.
type Table struct {
	name   string
	schema *Schema
	log    Logger
	now    func() time.Time

	ref atomic.Pointer[ClientRef]

	mu        sync.RWMutex
	tableName string
	before    map[Operation][]BeforeHook
	after     map[Operation][]AfterHook
}

// NewTable compiles cfg into a Table bound to ref. A nil ref lazily loads the
// default AWS client; a nil log uses the default logger.
func NewTable(name string, cfg ModelConfig, ref *ClientRef, log Logger) (*Table, error) {
	if name == "" {
		return nil, configError("model name is required")
	}
	schema, err := Compile(cfg)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		ref = NewClientRef(nil, nil)
	}
	if log == nil {
		log = defaultLogger()
	}
	t := &Table{
		name:   name,
		schema: schema,
		log:    log.With(map[string]any{"model": name}),
		now:    func() time.Time { return time.Now().UTC() },
		before: map[Operation][]BeforeHook{},
		after:  map[Operation][]AfterHook{},
	}
	t.ref.Store(ref)
	return t, nil
}

// Name returns the model name.
func (t *Table) Name() string { return t.name }

// Schema returns the compiled schema.
func (t *Table) Schema() *Schema { return t.schema }

// Log returns the model's logger.
func (t *Table) Log() Logger { return t.log }

// TableName resolves the physical table name: an explicit override, then the
// configured name function or literal, then the lower-cased model name plus "s".
func (t *Table) TableName() string {
	t.mu.RLock()
	override := t.tableName
	t.mu.RUnlock()
	switch {
	case override != "":
		return override
	case t.schema.tableNameFunc != nil:
		return t.schema.tableNameFunc()
	case t.schema.tableName != "":
		return t.schema.tableName
	}
	return strings.ToLower(t.name) + "s"
}

// SetTableName overrides the physical table name.
func (t *Table) SetTableName(name string) *Table {
	t.mu.Lock()
	t.tableName = name
	t.mu.Unlock()
	return t
}

// SetClient detaches the table from its shared binding and binds it to c.
// A later Registry.SetClient rebinds it to the shared binding again.
func (t *Table) SetClient(c Client) *Table {
	t.ref.Store(NewClientRef(c, nil))
	return t
}

// Client returns the currently bound client.
func (t *Table) Client(ctx context.Context) (Client, error) {
	return t.ref.Load().Get(ctx)
}

func (t *Table) bind(ref *ClientRef) { t.ref.Store(ref) }

// ─── Hooks ────────────────────────────────────────────────────────────────────

// Before registers a hook run before op, in registration order.
func (t *Table) Before(op Operation, h BeforeHook) *Table {
	t.mu.Lock()
	t.before[op] = append(t.before[op], h)
	t.mu.Unlock()
	return t
}

// After registers a hook run after op succeeds, in registration order.
func (t *Table) After(op Operation, h AfterHook) *Table {
	t.mu.Lock()
	t.after[op] = append(t.after[op], h)
	t.mu.Unlock()
	return t
}

func (t *Table) runBefore(ctx context.Context, op Operation, attrs Attrs) (Attrs, error) {
	t.mu.RLock()
	hooks := slices.Clone(t.before[op])
	t.mu.RUnlock()
	for _, h := range hooks {
		out, err := h(ctx, attrs)
		if err != nil {
			return nil, NewError(fmt.Sprintf("before %s hook rejected the item", op),
				WithCode(CodeValidation), WithCause(err))
		}
		if out != nil {
			attrs = out
		}
	}
	return attrs, nil
}

func (t *Table) runAfter(ctx context.Context, op Operation, item *Item) {
	t.mu.RLock()
	hooks := slices.Clone(t.after[op])
	t.mu.RUnlock()
	for _, h := range hooks {
		h(ctx, item)
	}
}

// ─── CRUD ─────────────────────────────────────────────────────────────────────

// Get fetches one item by primary key. A missing item yields nil, nil.
func (t *Table) Get(ctx context.Context, hash, rng any, opts *GetOptions) (*Item, error) {
	if opts == nil {
		opts = &GetOptions{}
	}
	key, err := t.schema.ToWireKey(hash, rng)
	if err != nil {
		return nil, err
	}
	input := &ddb.GetItemInput{
		TableName:      aws.String(t.TableName()),
		Key:            key,
		ConsistentRead: aws.Bool(opts.ConsistentRead),
	}
	if len(opts.Attributes) > 0 {
		expr, err := expression.NewBuilder().WithProjection(projection(opts.Attributes)).Build()
		if err != nil {
			return nil, err
		}
		input.ProjectionExpression = expr.Projection()
		input.ExpressionAttributeNames = expr.Names()
	}

	client, err := t.Client(ctx)
	if err != nil {
		return nil, err
	}
	t.log.Trace("get item", map[string]any{"table": *input.TableName})
	out, err := client.GetItem(ctx, input)
	if err != nil {
		return nil, t.storageFailure("GetItem", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	return t.decodeItem(out.Item)
}

// Create validates attrs, fills defaults and timestamps, and puts the item.
// The returned Item carries the written attributes merged with any
// attributes the store returned.
func (t *Table) Create(ctx context.Context, attrs Attrs, opts *CreateOptions) (*Item, error) {
	if opts == nil {
		opts = &CreateOptions{}
	}
	data, err := t.runBefore(ctx, OpCreate, copyAttrs(attrs))
	if err != nil {
		return nil, err
	}
	if t.schema.CreatedAt != "" {
		data[t.schema.CreatedAt] = t.now()
	}
	data, err = t.schema.Validate(data, ValidateOptions{ApplyDefaults: true})
	if err != nil {
		t.log.Info("create rejected", map[string]any{"err": err.Error()})
		return nil, err
	}
	if issues := t.schema.keyIssues(data); len(issues) > 0 {
		return nil, validationError("invalid key", issues)
	}
	item, err := ToWireItem(data, t.schema.wire)
	if err != nil {
		return nil, err
	}

	input := &ddb.PutItemInput{
		TableName:    aws.String(t.TableName()),
		Item:         item,
		ReturnValues: opts.ReturnValues,
	}
	cond, hasCond, err := t.expectedCondition(opts.Expected)
	if err != nil {
		return nil, err
	}
	if opts.Overwrite != nil && !*opts.Overwrite {
		cond = joinCondition(cond, hasCond, expression.AttributeNotExists(expression.Name(t.schema.HashKey)))
		hasCond = true
	}
	if hasCond {
		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return nil, err
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	client, err := t.Client(ctx)
	if err != nil {
		return nil, err
	}
	t.log.Trace("put item", map[string]any{"table": *input.TableName})
	out, err := client.PutItem(ctx, input)
	if err != nil {
		return nil, t.storageFailure("PutItem", err)
	}
	if out != nil && len(out.Attributes) > 0 && opts.ReturnValues != types.ReturnValueAllOld {
		returned, err := FromWireItem(out.Attributes, t.schema.wire)
		if err != nil {
			return nil, err
		}
		for k, v := range returned {
			data[k] = v
		}
	}

	it := newItem(t, data)
	t.runAfter(ctx, OpCreate, it)
	return it, nil
}

// Update writes only the supplied attributes. A nil value removes the
// attribute; Add and DeleteFromSet wrap ADD and DELETE actions. When the store
// returns no attributes the result is nil, nil.
func (t *Table) Update(ctx context.Context, attrs Attrs, opts *UpdateOptions) (*Item, error) {
	if opts == nil {
		opts = &UpdateOptions{}
	}
	data, err := t.runBefore(ctx, OpUpdate, copyAttrs(attrs))
	if err != nil {
		return nil, err
	}
	if issues := t.schema.keyIssues(data); len(issues) > 0 {
		return nil, validationError("invalid key", issues)
	}
	if t.schema.UpdatedAt != "" {
		data[t.schema.UpdatedAt] = t.now()
	}
	data, err = t.schema.Validate(data, ValidateOptions{Partial: true})
	if err != nil {
		t.log.Info("update rejected", map[string]any{"err": err.Error()})
		return nil, err
	}
	key, err := t.schema.ToWireKey(data[t.schema.HashKey], data[t.schema.RangeKey])
	if err != nil {
		return nil, err
	}
	fields := make(Attrs, len(data))
	for k, v := range data {
		if k != t.schema.HashKey && k != t.schema.RangeKey {
			fields[k] = v
		}
	}

	rv := opts.ReturnValues
	if rv == "" {
		rv = types.ReturnValueAllNew
	}
	input := &ddb.UpdateItemInput{
		TableName:    aws.String(t.TableName()),
		Key:          key,
		ReturnValues: rv,
	}
	update, hasUpdate, err := t.updateExpression(fields)
	if err != nil {
		return nil, err
	}
	cond, hasCond, err := t.expectedCondition(opts.Expected)
	if err != nil {
		return nil, err
	}
	if hasUpdate || hasCond {
		b := expression.NewBuilder()
		if hasUpdate {
			b = b.WithUpdate(update)
		}
		if hasCond {
			b = b.WithCondition(cond)
		}
		expr, err := b.Build()
		if err != nil {
			return nil, err
		}
		input.UpdateExpression = expr.Update()
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	client, err := t.Client(ctx)
	if err != nil {
		return nil, err
	}
	t.log.Trace("update item", map[string]any{"table": *input.TableName})
	out, err := client.UpdateItem(ctx, input)
	if err != nil {
		return nil, t.storageFailure("UpdateItem", err)
	}
	var it *Item
	if out != nil && len(out.Attributes) > 0 {
		if it, err = t.decodeItem(out.Attributes); err != nil {
			return nil, err
		}
	}
	t.runAfter(ctx, OpUpdate, it)
	return it, nil
}

// Destroy deletes by primary key. Deleting a missing item is not an error.
// The old item is returned only when ReturnValues is ALL_OLD and it existed.
func (t *Table) Destroy(ctx context.Context, hash, rng any, opts *DestroyOptions) (*Item, error) {
	if opts == nil {
		opts = &DestroyOptions{}
	}
	keyAttrs := Attrs{t.schema.HashKey: hash}
	if t.schema.RangeKey != "" {
		keyAttrs[t.schema.RangeKey] = rng
	}
	keyAttrs, err := t.runBefore(ctx, OpDestroy, keyAttrs)
	if err != nil {
		return nil, err
	}
	key, err := t.schema.ToWireKey(keyAttrs[t.schema.HashKey], keyAttrs[t.schema.RangeKey])
	if err != nil {
		return nil, err
	}
	input := &ddb.DeleteItemInput{
		TableName:    aws.String(t.TableName()),
		Key:          key,
		ReturnValues: opts.ReturnValues,
	}
	cond, hasCond, err := t.expectedCondition(opts.Expected)
	if err != nil {
		return nil, err
	}
	if hasCond {
		expr, err := expression.NewBuilder().WithCondition(cond).Build()
		if err != nil {
			return nil, err
		}
		input.ConditionExpression = expr.Condition()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}

	client, err := t.Client(ctx)
	if err != nil {
		return nil, err
	}
	t.log.Trace("delete item", map[string]any{"table": *input.TableName})
	out, err := client.DeleteItem(ctx, input)
	if err != nil {
		return nil, t.storageFailure("DeleteItem", err)
	}
	var it *Item
	if out != nil && len(out.Attributes) > 0 {
		if it, err = t.decodeItem(out.Attributes); err != nil {
			return nil, err
		}
	}
	t.runAfter(ctx, OpDestroy, it)
	return it, nil
}

func (t *Table) decodeItem(raw map[string]types.AttributeValue) (*Item, error) {
	attrs, err := FromWireItem(raw, t.schema.wire)
	if err != nil {
		return nil, err
	}
	return newItem(t, attrs), nil
}

func (t *Table) storageFailure(op string, err error) error {
	serr := storageError(op, t.TableName(), err)
	t.log.Error(serr.Message, map[string]any{"err": err.Error()})
	return serr
}

// ─── DDL ──────────────────────────────────────────────────────────────────────

// CreateTable creates the table with its key schema and secondary indexes.
func (t *Table) CreateTable(ctx context.Context, opts *TableOptions) error {
	client, err := t.Client(ctx)
	if err != nil {
		return err
	}
	input := t.createTableInput(opts)
	t.log.Info("create table", map[string]any{"table": *input.TableName})
	if _, err := client.CreateTable(ctx, input); err != nil {
		return t.storageFailure("CreateTable", err)
	}
	return nil
}

// UpdateTable brings an existing table in line with the model: provisioned
// throughput when opts asks for different capacity, and the first global
// index missing remotely. No request is made when nothing differs.
func (t *Table) UpdateTable(ctx context.Context, opts *TableOptions) error {
	if opts == nil {
		opts = &TableOptions{}
	}
	desc, err := t.DescribeTable(ctx)
	if err != nil {
		return err
	}
	if desc == nil {
		return NewError(fmt.Sprintf(`table "%s" does not exist`, t.TableName()), WithCode(CodeStorage))
	}

	input := &ddb.UpdateTableInput{TableName: aws.String(t.TableName())}
	changed := false
	if !opts.OnDemand && (opts.ReadCapacity > 0 || opts.WriteCapacity > 0) && desc.ProvisionedThroughput != nil {
		want := throughput(opts.ReadCapacity, opts.WriteCapacity)
		cur := desc.ProvisionedThroughput
		if aws.ToInt64(cur.ReadCapacityUnits) != *want.ReadCapacityUnits ||
			aws.ToInt64(cur.WriteCapacityUnits) != *want.WriteCapacityUnits {
			input.ProvisionedThroughput = want
			changed = true
		}
	}

	existing := map[string]bool{}
	for _, g := range desc.GlobalSecondaryIndexes {
		existing[aws.ToString(g.IndexName)] = true
	}
	onDemand := desc.BillingModeSummary != nil && desc.BillingModeSummary.BillingMode == types.BillingModePayPerRequest
	for _, idx := range t.schema.indexes {
		if idx.Type != IndexGlobal || existing[idx.Name] {
			continue
		}
		gsi := t.globalIndex(idx, &TableOptions{OnDemand: onDemand})
		input.AttributeDefinitions = t.attributeDefinitions(idx.HashKey, idx.RangeKey)
		input.GlobalSecondaryIndexUpdates = []types.GlobalSecondaryIndexUpdate{{
			Create: &types.CreateGlobalSecondaryIndexAction{
				IndexName:             gsi.IndexName,
				KeySchema:             gsi.KeySchema,
				Projection:            gsi.Projection,
				ProvisionedThroughput: gsi.ProvisionedThroughput,
			},
		}}
		changed = true
		// DynamoDB accepts one index creation per UpdateTable call.
		break
	}
	if !changed {
		t.log.Trace("table up to date", map[string]any{"table": *input.TableName})
		return nil
	}

	client, err := t.Client(ctx)
	if err != nil {
		return err
	}
	t.log.Info("update table", map[string]any{"table": *input.TableName})
	if _, err := client.UpdateTable(ctx, input); err != nil {
		return t.storageFailure("UpdateTable", err)
	}
	return nil
}

// DescribeTable returns the remote table description, or nil, nil when the
// table does not exist.
func (t *Table) DescribeTable(ctx context.Context) (*types.TableDescription, error) {
	client, err := t.Client(ctx)
	if err != nil {
		return nil, err
	}
	out, err := client.DescribeTable(ctx, &ddb.DescribeTableInput{TableName: aws.String(t.TableName())})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, t.storageFailure("DescribeTable", err)
	}
	return out.Table, nil
}

// DeleteTable permanently deletes the table.
func (t *Table) DeleteTable(ctx context.Context) error {
	client, err := t.Client(ctx)
	if err != nil {
		return err
	}
	t.log.Info("delete table", map[string]any{"table": t.TableName()})
	if _, err := client.DeleteTable(ctx, &ddb.DeleteTableInput{TableName: aws.String(t.TableName())}); err != nil {
		return t.storageFailure("DeleteTable", err)
	}
	return nil
}

func (t *Table) createTableInput(opts *TableOptions) *ddb.CreateTableInput {
	if opts == nil {
		opts = &TableOptions{}
	}
	s := t.schema
	input := &ddb.CreateTableInput{
		TableName: aws.String(t.TableName()),
		KeySchema: keySchema(s.HashKey, s.RangeKey),
	}
	keys := []string{s.HashKey, s.RangeKey}
	if opts.OnDemand {
		input.BillingMode = types.BillingModePayPerRequest
	} else {
		input.BillingMode = types.BillingModeProvisioned
		input.ProvisionedThroughput = throughput(opts.ReadCapacity, opts.WriteCapacity)
	}
	for _, idx := range s.indexes {
		switch idx.Type {
		case IndexLocal:
			keys = append(keys, idx.RangeKey)
			input.LocalSecondaryIndexes = append(input.LocalSecondaryIndexes, types.LocalSecondaryIndex{
				IndexName:  aws.String(idx.Name),
				KeySchema:  keySchema(s.HashKey, idx.RangeKey),
				Projection: projectionOf(idx.Projection),
			})
		case IndexGlobal:
			keys = append(keys, idx.HashKey, idx.RangeKey)
			input.GlobalSecondaryIndexes = append(input.GlobalSecondaryIndexes, t.globalIndex(idx, opts))
		}
	}
	input.AttributeDefinitions = t.attributeDefinitions(keys...)
	return input
}

func (t *Table) globalIndex(idx IndexConfig, opts *TableOptions) types.GlobalSecondaryIndex {
	gsi := types.GlobalSecondaryIndex{
		IndexName:  aws.String(idx.Name),
		KeySchema:  keySchema(idx.HashKey, idx.RangeKey),
		Projection: projectionOf(idx.Projection),
	}
	if !opts.OnDemand {
		gsi.ProvisionedThroughput = throughput(idx.ReadCapacity, idx.WriteCapacity)
	}
	return gsi
}

// attributeDefinitions declares each distinct non-empty key attribute once.
func (t *Table) attributeDefinitions(names ...string) []types.AttributeDefinition {
	seen := map[string]bool{}
	var defs []types.AttributeDefinition
	for _, name := range names {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		defs = append(defs, types.AttributeDefinition{
			AttributeName: aws.String(name),
			AttributeType: t.attributeType(name),
		})
	}
	return defs
}

func (t *Table) attributeType(name string) types.ScalarAttributeType {
	if n := t.schema.wire[name]; n != nil {
		switch n.Type {
		case WireNumber:
			return types.ScalarAttributeTypeN
		case WireBinary:
			return types.ScalarAttributeTypeB
		}
	}
	return types.ScalarAttributeTypeS
}

func keySchema(hash, rng string) []types.KeySchemaElement {
	keys := []types.KeySchemaElement{{AttributeName: aws.String(hash), KeyType: types.KeyTypeHash}}
	if rng != "" {
		keys = append(keys, types.KeySchemaElement{AttributeName: aws.String(rng), KeyType: types.KeyTypeRange})
	}
	return keys
}

func projectionOf(p *Projection) *types.Projection {
	proj := &types.Projection{ProjectionType: types.ProjectionTypeAll}
	if p == nil {
		return proj
	}
	switch p.Type {
	case string(types.ProjectionTypeKeysOnly):
		proj.ProjectionType = types.ProjectionTypeKeysOnly
	case string(types.ProjectionTypeInclude):
		proj.ProjectionType = types.ProjectionTypeInclude
		proj.NonKeyAttributes = p.NonKeyAttributes
	}
	return proj
}

// throughput defaults missing capacity to one unit.
func throughput(read, write int64) *types.ProvisionedThroughput {
	if read <= 0 {
		read = 1
	}
	if write <= 0 {
		write = 1
	}
	return &types.ProvisionedThroughput{
		ReadCapacityUnits:  aws.Int64(read),
		WriteCapacityUnits: aws.Int64(write),
	}
}
