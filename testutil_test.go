package dynamo

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ─── fakeClient ───────────────────────────────────────────────────────────────

// fakeClient is a thread-safe in-memory DynamoDB substitute. Tables must be
// created (CreateTable or addTable) before items are written to them.
type fakeClient struct {
	mu     sync.Mutex
	tables map[string]*fakeTable
	calls  map[string]int
	inputs map[string][]any

	// pending is the number of non-ACTIVE describes a new table reports.
	pending int
	// unprocessed caps the keys BatchGetItem serves per call; 0 serves all.
	unprocessed int

	failures map[string]func(n int) error
	// putEcho, when set, replaces the attributes PutItem returns.
	putEcho func(item map[string]types.AttributeValue) map[string]types.AttributeValue
}

type fakeTable struct {
	hash, rng string
	status    []types.TableStatus
	gsis      []string
	billing   types.BillingMode
	read      int64
	write     int64
	items     map[string]map[string]types.AttributeValue
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		tables:   map[string]*fakeTable{},
		calls:    map[string]int{},
		inputs:   map[string][]any{},
		failures: map[string]func(int) error{},
	}
}

// addTable registers an ACTIVE table.
func (f *fakeClient) addTable(name, hash, rng string) *fakeTable {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTable{hash: hash, rng: rng, items: map[string]map[string]types.AttributeValue{}}
	f.tables[name] = t
	return t
}

// failOn makes op fail whenever fn returns an error for the op's n-th call (1-based).
func (f *fakeClient) failOn(op string, fn func(n int) error) {
	f.mu.Lock()
	f.failures[op] = fn
	f.mu.Unlock()
}

func (f *fakeClient) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeClient) lastInput(op string) any {
	f.mu.Lock()
	defer f.mu.Unlock()
	in := f.inputs[op]
	if len(in) == 0 {
		return nil
	}
	return in[len(in)-1]
}

// record counts the call and returns the injected failure, if any. Callers hold mu.
func (f *fakeClient) record(op string, in any) error {
	f.calls[op]++
	f.inputs[op] = append(f.inputs[op], in)
	if fn := f.failures[op]; fn != nil {
		return fn(f.calls[op])
	}
	return nil
}

func (f *fakeClient) table(name *string) (*fakeTable, error) {
	t := f.tables[aws.ToString(name)]
	if t == nil {
		return nil, &types.ResourceNotFoundException{Message: aws.String("Requested resource not found: " + aws.ToString(name))}
	}
	return t, nil
}

func (t *fakeTable) key(item map[string]types.AttributeValue) string {
	return avStr(item[t.hash]) + "||" + avStr(item[t.rng])
}

func (t *fakeTable) sortedItems() []map[string]types.AttributeValue {
	keys := slices.Sorted(maps.Keys(t.items))
	out := make([]map[string]types.AttributeValue, len(keys))
	for i, k := range keys {
		out[i] = t.items[k]
	}
	return out
}

func (f *fakeClient) GetItem(_ context.Context, p *ddb.GetItemInput, _ ...func(*ddb.Options)) (*ddb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetItem", p); err != nil {
		return nil, err
	}
	t, err := f.table(p.TableName)
	if err != nil {
		return nil, err
	}
	return &ddb.GetItemOutput{Item: t.items[t.key(p.Key)]}, nil
}

func (f *fakeClient) PutItem(_ context.Context, p *ddb.PutItemInput, _ ...func(*ddb.Options)) (*ddb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("PutItem", p); err != nil {
		return nil, err
	}
	t, err := f.table(p.TableName)
	if err != nil {
		return nil, err
	}
	k := t.key(p.Item)
	prior := t.items[k]
	if !conditionPasses(prior, aws.ToString(p.ConditionExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	t.items[k] = p.Item
	out := &ddb.PutItemOutput{}
	if f.putEcho != nil {
		out.Attributes = f.putEcho(p.Item)
	} else if p.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = prior
	}
	return out, nil
}

func (f *fakeClient) DeleteItem(_ context.Context, p *ddb.DeleteItemInput, _ ...func(*ddb.Options)) (*ddb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteItem", p); err != nil {
		return nil, err
	}
	t, err := f.table(p.TableName)
	if err != nil {
		return nil, err
	}
	k := t.key(p.Key)
	prior := t.items[k]
	if !conditionPasses(prior, aws.ToString(p.ConditionExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	delete(t.items, k)
	out := &ddb.DeleteItemOutput{}
	if p.ReturnValues == types.ReturnValueAllOld {
		out.Attributes = prior
	}
	return out, nil
}

func (f *fakeClient) UpdateItem(_ context.Context, p *ddb.UpdateItemInput, _ ...func(*ddb.Options)) (*ddb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateItem", p); err != nil {
		return nil, err
	}
	t, err := f.table(p.TableName)
	if err != nil {
		return nil, err
	}
	k := t.key(p.Key)
	prior := t.items[k]
	if !conditionPasses(prior, aws.ToString(p.ConditionExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
		return nil, &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
	}
	item := map[string]types.AttributeValue{}
	for a, v := range prior {
		item[a] = v
	}
	for a, v := range p.Key {
		item[a] = v
	}
	applyUpdateExpression(item, aws.ToString(p.UpdateExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues)
	t.items[k] = item

	out := &ddb.UpdateItemOutput{}
	switch p.ReturnValues {
	case types.ReturnValueAllNew:
		out.Attributes = item
	case types.ReturnValueAllOld:
		out.Attributes = prior
	}
	return out, nil
}

func (f *fakeClient) Query(_ context.Context, p *ddb.QueryInput, _ ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Query", p); err != nil {
		return nil, err
	}
	t, err := f.table(p.TableName)
	if err != nil {
		return nil, err
	}
	var matched []map[string]types.AttributeValue
	for _, item := range t.sortedItems() {
		if evalFilter(item, aws.ToString(p.KeyConditionExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues) {
			matched = append(matched, item)
		}
	}
	if p.ScanIndexForward != nil && !*p.ScanIndexForward {
		slices.Reverse(matched)
	}
	page, lek, scanned := paginate(t, matched, p.ExclusiveStartKey, p.Limit)
	page = filterItems(page, aws.ToString(p.FilterExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues)
	return &ddb.QueryOutput{Items: page, Count: int32(len(page)), ScannedCount: int32(scanned), LastEvaluatedKey: lek}, nil
}

func (f *fakeClient) Scan(_ context.Context, p *ddb.ScanInput, _ ...func(*ddb.Options)) (*ddb.ScanOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Scan", p); err != nil {
		return nil, err
	}
	t, err := f.table(p.TableName)
	if err != nil {
		return nil, err
	}
	var segment []map[string]types.AttributeValue
	for i, item := range t.sortedItems() {
		if p.TotalSegments == nil || int32(i)%*p.TotalSegments == aws.ToInt32(p.Segment) {
			segment = append(segment, item)
		}
	}
	page, lek, scanned := paginate(t, segment, p.ExclusiveStartKey, p.Limit)
	page = filterItems(page, aws.ToString(p.FilterExpression), p.ExpressionAttributeNames, p.ExpressionAttributeValues)
	return &ddb.ScanOutput{Items: page, Count: int32(len(page)), ScannedCount: int32(scanned), LastEvaluatedKey: lek}, nil
}

// paginate returns the page after start, honouring limit, and its continuation key.
func paginate(t *fakeTable, items []map[string]types.AttributeValue, start map[string]types.AttributeValue, limit *int32) ([]map[string]types.AttributeValue, map[string]types.AttributeValue, int) {
	if len(start) > 0 {
		k := t.key(start)
		for i, item := range items {
			if t.key(item) == k {
				items = items[i+1:]
				break
			}
		}
	}
	if limit == nil || int(*limit) >= len(items) {
		return items, nil, len(items)
	}
	page := items[:*limit]
	last := page[len(page)-1]
	lek := map[string]types.AttributeValue{t.hash: last[t.hash]}
	if t.rng != "" {
		lek[t.rng] = last[t.rng]
	}
	return page, lek, len(page)
}

func (f *fakeClient) BatchGetItem(_ context.Context, p *ddb.BatchGetItemInput, _ ...func(*ddb.Options)) (*ddb.BatchGetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("BatchGetItem", p); err != nil {
		return nil, err
	}
	out := &ddb.BatchGetItemOutput{
		Responses:       map[string][]map[string]types.AttributeValue{},
		UnprocessedKeys: map[string]types.KeysAndAttributes{},
	}
	for name, ka := range p.RequestItems {
		t, err := f.table(aws.String(name))
		if err != nil {
			return nil, err
		}
		keys := ka.Keys
		if f.unprocessed > 0 && len(keys) > f.unprocessed {
			rest := ka
			rest.Keys = keys[f.unprocessed:]
			out.UnprocessedKeys[name] = rest
			keys = keys[:f.unprocessed]
		}
		for _, k := range keys {
			if item := t.items[t.key(k)]; item != nil {
				out.Responses[name] = append(out.Responses[name], item)
			}
		}
	}
	return out, nil
}

func (f *fakeClient) CreateTable(_ context.Context, p *ddb.CreateTableInput, _ ...func(*ddb.Options)) (*ddb.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateTable", p); err != nil {
		return nil, err
	}
	name := aws.ToString(p.TableName)
	if f.tables[name] != nil {
		return nil, &types.ResourceInUseException{Message: aws.String("Table already exists: " + name)}
	}
	t := &fakeTable{items: map[string]map[string]types.AttributeValue{}, billing: p.BillingMode}
	for _, ks := range p.KeySchema {
		if ks.KeyType == types.KeyTypeHash {
			t.hash = aws.ToString(ks.AttributeName)
		} else {
			t.rng = aws.ToString(ks.AttributeName)
		}
	}
	for _, g := range p.GlobalSecondaryIndexes {
		t.gsis = append(t.gsis, aws.ToString(g.IndexName))
	}
	if p.ProvisionedThroughput != nil {
		t.read = aws.ToInt64(p.ProvisionedThroughput.ReadCapacityUnits)
		t.write = aws.ToInt64(p.ProvisionedThroughput.WriteCapacityUnits)
	}
	for range f.pending {
		t.status = append(t.status, types.TableStatusCreating)
	}
	f.tables[name] = t
	return &ddb.CreateTableOutput{}, nil
}

func (f *fakeClient) UpdateTable(_ context.Context, p *ddb.UpdateTableInput, _ ...func(*ddb.Options)) (*ddb.UpdateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateTable", p); err != nil {
		return nil, err
	}
	t, err := f.table(p.TableName)
	if err != nil {
		return nil, err
	}
	if p.ProvisionedThroughput != nil {
		t.read = aws.ToInt64(p.ProvisionedThroughput.ReadCapacityUnits)
		t.write = aws.ToInt64(p.ProvisionedThroughput.WriteCapacityUnits)
	}
	for _, u := range p.GlobalSecondaryIndexUpdates {
		if u.Create != nil {
			t.gsis = append(t.gsis, aws.ToString(u.Create.IndexName))
		}
	}
	for range f.pending {
		t.status = append(t.status, types.TableStatusUpdating)
	}
	return &ddb.UpdateTableOutput{}, nil
}

func (f *fakeClient) DescribeTable(_ context.Context, p *ddb.DescribeTableInput, _ ...func(*ddb.Options)) (*ddb.DescribeTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DescribeTable", p); err != nil {
		return nil, err
	}
	t, err := f.table(p.TableName)
	if err != nil {
		return nil, err
	}
	status := types.TableStatusActive
	if len(t.status) > 0 {
		status, t.status = t.status[0], t.status[1:]
	}
	desc := &types.TableDescription{
		TableName:   p.TableName,
		TableStatus: status,
		ProvisionedThroughput: &types.ProvisionedThroughputDescription{
			ReadCapacityUnits:  aws.Int64(t.read),
			WriteCapacityUnits: aws.Int64(t.write),
		},
	}
	if t.billing != "" {
		desc.BillingModeSummary = &types.BillingModeSummary{BillingMode: t.billing}
	}
	for _, g := range t.gsis {
		desc.GlobalSecondaryIndexes = append(desc.GlobalSecondaryIndexes, types.GlobalSecondaryIndexDescription{IndexName: aws.String(g)})
	}
	return &ddb.DescribeTableOutput{Table: desc}, nil
}

func (f *fakeClient) DeleteTable(_ context.Context, p *ddb.DeleteTableInput, _ ...func(*ddb.Options)) (*ddb.DeleteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteTable", p); err != nil {
		return nil, err
	}
	if _, err := f.table(p.TableName); err != nil {
		return nil, err
	}
	delete(f.tables, aws.ToString(p.TableName))
	return &ddb.DeleteTableOutput{}, nil
}

// ─── expression evaluation ────────────────────────────────────────────────────

var exprFuncs = []string{"attribute_not_exists", "attribute_exists", "begins_with", "contains"}

// normalizeExpr removes the space the expression builder puts between a
// function name and its parenthesis.
func normalizeExpr(expr string) string {
	for _, fn := range exprFuncs {
		expr = strings.ReplaceAll(expr, fn+" (", fn+"(")
	}
	return expr
}

// applyUpdateExpression naively applies "SET #a = :a\nREMOVE #b\nADD #c :c\nDELETE #d :d".
// No nested paths and no arithmetic beyond numeric ADD.
func applyUpdateExpression(item map[string]types.AttributeValue, expr string, names map[string]string, vals map[string]types.AttributeValue) {
	resolveName := func(tok string) string {
		tok = strings.TrimSpace(tok)
		if v, ok := names[tok]; ok {
			return v
		}
		return tok
	}
	for _, line := range strings.Split(expr, "\n") {
		line = strings.TrimSpace(line)
		kw, rest, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		for _, part := range strings.Split(rest, ",") {
			part = strings.TrimSpace(part)
			switch strings.ToUpper(kw) {
			case "SET":
				lhs, rhs, ok := strings.Cut(part, "=")
				if ok {
					item[resolveName(lhs)] = vals[strings.TrimSpace(rhs)]
				}
			case "REMOVE":
				delete(item, resolveName(part))
			case "ADD":
				fields := strings.Fields(part)
				if len(fields) == 2 {
					attr := resolveName(fields[0])
					item[attr] = addValues(item[attr], vals[fields[1]])
				}
			case "DELETE":
				fields := strings.Fields(part)
				if len(fields) == 2 {
					attr := resolveName(fields[0])
					item[attr] = deleteValues(item[attr], vals[fields[1]])
				}
			}
		}
	}
}

func addValues(cur, delta types.AttributeValue) types.AttributeValue {
	switch d := delta.(type) {
	case *types.AttributeValueMemberN:
		a, _ := strconv.ParseFloat(avStr(cur), 64)
		b, _ := strconv.ParseFloat(d.Value, 64)
		return &types.AttributeValueMemberN{Value: strconv.FormatFloat(a+b, 'f', -1, 64)}
	case *types.AttributeValueMemberSS:
		var out []string
		if c, ok := cur.(*types.AttributeValueMemberSS); ok {
			out = slices.Clone(c.Value)
		}
		for _, v := range d.Value {
			if !slices.Contains(out, v) {
				out = append(out, v)
			}
		}
		return &types.AttributeValueMemberSS{Value: out}
	}
	return delta
}

func deleteValues(cur, remove types.AttributeValue) types.AttributeValue {
	c, ok := cur.(*types.AttributeValueMemberSS)
	r, ok2 := remove.(*types.AttributeValueMemberSS)
	if !ok || !ok2 {
		return cur
	}
	out := slices.DeleteFunc(slices.Clone(c.Value), func(v string) bool { return slices.Contains(r.Value, v) })
	return &types.AttributeValueMemberSS{Value: out}
}

func filterItems(items []map[string]types.AttributeValue, expr string, names map[string]string, vals map[string]types.AttributeValue) []map[string]types.AttributeValue {
	if expr == "" {
		return items
	}
	var out []map[string]types.AttributeValue
	for _, item := range items {
		if evalFilter(item, expr, names, vals) {
			out = append(out, item)
		}
	}
	return out
}

func conditionPasses(item map[string]types.AttributeValue, expr string, names map[string]string, vals map[string]types.AttributeValue) bool {
	if expr == "" {
		return true
	}
	if item == nil {
		item = map[string]types.AttributeValue{}
	}
	return evalFilter(item, expr, names, vals)
}

// evalFilter evaluates the subset of condition syntax the builders emit:
// comparisons, BETWEEN, IN, attribute_exists, attribute_not_exists,
// begins_with, contains, NOT, AND, OR and parentheses.
func evalFilter(item map[string]types.AttributeValue, expr string, names map[string]string, vals map[string]types.AttributeValue) bool {
	expr = strings.TrimSpace(normalizeExpr(expr))
	if expr == "" {
		return true
	}
	if strings.HasPrefix(expr, "(") && strings.HasSuffix(expr, ")") && balanced(expr[1:len(expr)-1]) {
		return evalFilter(item, expr[1:len(expr)-1], names, vals)
	}
	if strings.Contains(expr, " BETWEEN ") && !strings.Contains(expr, "(") {
		return evalBetween(item, expr, names, vals)
	}
	if parts := splitTopLevel(expr, " OR "); len(parts) > 1 {
		for _, p := range parts {
			if evalFilter(item, p, names, vals) {
				return true
			}
		}
		return false
	}
	if parts := splitTopLevel(expr, " AND "); len(parts) > 1 {
		for _, p := range parts {
			if !evalFilter(item, p, names, vals) {
				return false
			}
		}
		return true
	}
	if rest, ok := strings.CutPrefix(expr, "NOT "); ok {
		return !evalFilter(item, rest, names, vals)
	}

	resolveName := func(tok string) string {
		tok = strings.TrimSpace(tok)
		if v, ok := names[tok]; ok {
			return v
		}
		return tok
	}
	resolveVal := func(tok string) types.AttributeValue { return vals[strings.TrimSpace(tok)] }
	args := func(call string) []string {
		_, inner, _ := strings.Cut(call, "(")
		return strings.Split(strings.TrimSuffix(inner, ")"), ",")
	}

	switch {
	case strings.HasPrefix(expr, "attribute_not_exists("):
		_, exists := item[resolveName(args(expr)[0])]
		return !exists
	case strings.HasPrefix(expr, "attribute_exists("):
		_, exists := item[resolveName(args(expr)[0])]
		return exists
	case strings.HasPrefix(expr, "begins_with("):
		a := args(expr)
		return strings.HasPrefix(avStr(item[resolveName(a[0])]), avStr(resolveVal(a[1])))
	case strings.HasPrefix(expr, "contains("):
		a := args(expr)
		needle := avStr(resolveVal(a[1]))
		if ss, ok := item[resolveName(a[0])].(*types.AttributeValueMemberSS); ok {
			return slices.Contains(ss.Value, needle)
		}
		return strings.Contains(avStr(item[resolveName(a[0])]), needle)
	}
	if lhs, list, ok := strings.Cut(expr, " IN ("); ok {
		v, exists := item[resolveName(lhs)]
		if !exists {
			return false
		}
		for _, tok := range strings.Split(strings.TrimSuffix(list, ")"), ",") {
			if compareAV(v, resolveVal(tok)) == 0 {
				return true
			}
		}
		return false
	}

	for _, op := range []string{"<>", "<=", ">=", "<", ">", "="} {
		lhs, rhs, ok := strings.Cut(expr, " "+op+" ")
		if !ok {
			continue
		}
		v, ok := item[resolveName(lhs)]
		if !ok {
			return false
		}
		c := compareAV(v, resolveVal(rhs))
		switch op {
		case "=":
			return c == 0
		case "<>":
			return c != 0
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		case ">=":
			return c >= 0
		}
	}
	return true
}

func evalBetween(item map[string]types.AttributeValue, expr string, names map[string]string, vals map[string]types.AttributeValue) bool {
	lhs, rest, _ := strings.Cut(expr, " BETWEEN ")
	lo, hi, _ := strings.Cut(rest, " AND ")
	v, ok := item[names[strings.TrimSpace(lhs)]]
	if !ok {
		return false
	}
	return compareAV(v, vals[strings.TrimSpace(lo)]) >= 0 && compareAV(v, vals[strings.TrimSpace(hi)]) <= 0
}

func compareAV(a, b types.AttributeValue) int {
	if an, ok := a.(*types.AttributeValueMemberN); ok {
		if bn, ok := b.(*types.AttributeValueMemberN); ok {
			xi, errX := strconv.ParseInt(an.Value, 10, 64)
			yi, errY := strconv.ParseInt(bn.Value, 10, 64)
			if errX == nil && errY == nil {
				return cmp.Compare(xi, yi)
			}
			x, _ := strconv.ParseFloat(an.Value, 64)
			y, _ := strconv.ParseFloat(bn.Value, 64)
			switch {
			case x < y:
				return -1
			case x > y:
				return 1
			}
			return 0
		}
	}
	return strings.Compare(avStr(a), avStr(b))
}

func balanced(s string) bool {
	depth := 0
	for _, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0
}

// splitTopLevel splits expr on sep only outside parentheses.
func splitTopLevel(expr, sep string) []string {
	var parts []string
	depth, last := 0, 0
	for i := 0; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
		if depth == 0 && strings.HasPrefix(expr[i:], sep) {
			parts = append(parts, strings.TrimSpace(expr[last:i]))
			last = i + len(sep)
			i += len(sep) - 1
		}
	}
	return append(parts, strings.TrimSpace(expr[last:]))
}

func avStr(av types.AttributeValue) string {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return v.Value
	case *types.AttributeValueMemberN:
		return v.Value
	case *types.AttributeValueMemberB:
		return string(v.Value)
	case *types.AttributeValueMemberBOOL:
		return strconv.FormatBool(v.Value)
	}
	return ""
}

// ─── fixtures ─────────────────────────────────────────────────────────────────

func bg() context.Context { return context.Background() }

func newTestRegistry(fc *fakeClient, opts ...Option) *Registry {
	base := []Option{WithClient(fc), WithLogger(NopLogger()), WithPollInterval(time.Millisecond)}
	return New(append(base, opts...)...)
}

// defineUsers defines a "User" model on an existing "users" table.
func defineUsers(t *testing.T, fc *fakeClient, cfg ModelConfig) *Table {
	t.Helper()
	fc.addTable("users", cfg.HashKey, cfg.RangeKey)
	tbl, err := newTestRegistry(fc).Define("User", cfg)
	if err != nil {
		t.Fatalf("define: %v", err)
	}
	return tbl
}

func sAV(s string) types.AttributeValue { return &types.AttributeValueMemberS{Value: s} }
func nAV(n int) types.AttributeValue    { return &types.AttributeValueMemberN{Value: strconv.Itoa(n)} }

func namesOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
