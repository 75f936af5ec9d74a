/*
Package dynamo – query and scan builders.

Builders only accumulate configuration; nothing touches the network until
Exec. Clauses are compiled into expression builders at Exec time, so the
order of Where, UsingIndex and the modifiers does not matter.
*/
package dynamo

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type compareOp string

const (
	opEquals     compareOp = "equals"
	opNe         compareOp = "ne"
	opLt         compareOp = "lt"
	opLte        compareOp = "lte"
	opGt         compareOp = "gt"
	opGte        compareOp = "gte"
	opBetween    compareOp = "between"
	opBeginsWith compareOp = "beginsWith"
	opContains   compareOp = "contains"
	opNotContain compareOp = "notContains"
	opIn         compareOp = "in"
	opExists     compareOp = "exists"
	opNotExists  compareOp = "notExists"
)

type clause struct {
	field string
	op    compareOp
	args  []any
}

// Condition is the comparator step of a Where or Filter clause. Every
// comparator returns the builder it came from.
type Condition[B any] struct {
	builder B
	field   string
	add     func(clause)
}

func (c Condition[B]) push(op compareOp, args ...any) B {
	c.add(clause{field: c.field, op: op, args: args})
	return c.builder
}

func (c Condition[B]) Equals(v any) B       { return c.push(opEquals, v) }
func (c Condition[B]) Ne(v any) B           { return c.push(opNe, v) }
func (c Condition[B]) Lt(v any) B           { return c.push(opLt, v) }
func (c Condition[B]) Lte(v any) B          { return c.push(opLte, v) }
func (c Condition[B]) Gt(v any) B           { return c.push(opGt, v) }
func (c Condition[B]) Gte(v any) B          { return c.push(opGte, v) }
func (c Condition[B]) Between(lo, hi any) B { return c.push(opBetween, lo, hi) }
func (c Condition[B]) BeginsWith(prefix string) B {
	return c.push(opBeginsWith, prefix)
}
func (c Condition[B]) Contains(v string) B    { return c.push(opContains, v) }
func (c Condition[B]) NotContains(v string) B { return c.push(opNotContain, v) }

// In matches any of vals. At least one value is required.
func (c Condition[B]) In(vals ...any) B { return c.push(opIn, vals...) }
func (c Condition[B]) Exists() B        { return c.push(opExists) }
func (c Condition[B]) NotExists() B     { return c.push(opNotExists) }

// Result is the outcome of an executed query or scan.
type Result struct {
	Items []*Item
	// LastEvaluatedKey is the continuation key, nil when the result set is exhausted.
	LastEvaluatedKey Attrs
	Count            int
	ScannedCount     int
}

// request holds the settings shared by queries and scans.
type request struct {
	t          *Table
	index      string
	limit      int32
	loadAll    bool
	startKey   Attrs
	attrs      []string
	consistent bool
	sel        types.Select
	filters    []clause
}

func (r *request) addFilter(c clause) { r.filters = append(r.filters, c) }

// condition compiles one filter clause.
func (r *request) condition(c clause) (expression.ConditionBuilder, error) {
	name := expression.Name(c.field)
	operands := func() ([]expression.OperandBuilder, error) {
		out := make([]expression.OperandBuilder, len(c.args))
		for i, a := range c.args {
			op, err := r.t.operand(c.field, a)
			if err != nil {
				return nil, err
			}
			out[i] = op
		}
		return out, nil
	}

	switch c.op {
	case opExists:
		return name.AttributeExists(), nil
	case opNotExists:
		return name.AttributeNotExists(), nil
	case opBeginsWith:
		return name.BeginsWith(c.args[0].(string)), nil
	case opContains:
		return name.Contains(c.args[0].(string)), nil
	case opNotContain:
		return expression.Not(name.Contains(c.args[0].(string))), nil
	}

	ops, err := operands()
	if err != nil {
		return expression.ConditionBuilder{}, err
	}
	switch c.op {
	case opEquals:
		return name.Equal(ops[0]), nil
	case opNe:
		return name.NotEqual(ops[0]), nil
	case opLt:
		return name.LessThan(ops[0]), nil
	case opLte:
		return name.LessThanEqual(ops[0]), nil
	case opGt:
		return name.GreaterThan(ops[0]), nil
	case opGte:
		return name.GreaterThanEqual(ops[0]), nil
	case opBetween:
		return name.Between(ops[0], ops[1]), nil
	case opIn:
		if len(ops) == 0 {
			return expression.ConditionBuilder{}, clauseError(c, "requires at least one value")
		}
		return name.In(ops[0], ops[1:]...), nil
	}
	return expression.ConditionBuilder{}, clauseError(c, "unsupported comparator")
}

func (r *request) filterCondition() (expression.ConditionBuilder, bool, error) {
	var cond expression.ConditionBuilder
	for i, c := range r.filters {
		next, err := r.condition(c)
		if err != nil {
			return cond, false, err
		}
		cond = joinCondition(cond, i > 0, next)
	}
	return cond, len(r.filters) > 0, nil
}

func (r *request) encodedStartKey() (map[string]types.AttributeValue, error) {
	if len(r.startKey) == 0 {
		return nil, nil
	}
	return ToWireItem(r.startKey, r.t.schema.wire)
}

func (r *request) collect(res *Result, items []map[string]types.AttributeValue, count, scanned int32, lek map[string]types.AttributeValue) error {
	for _, raw := range items {
		it, err := r.t.decodeItem(raw)
		if err != nil {
			return err
		}
		res.Items = append(res.Items, it)
	}
	res.Count += int(count)
	res.ScannedCount += int(scanned)
	res.LastEvaluatedKey = nil
	if len(lek) > 0 {
		key, err := FromWireItem(lek, r.t.schema.wire)
		if err != nil {
			return err
		}
		res.LastEvaluatedKey = key
	}
	return nil
}

func clauseError(c clause, msg string) error {
	return validationError("invalid condition", []Issue{{Path: c.field, Code: string(c.op), Message: msg}})
}

// ─── Query ────────────────────────────────────────────────────────────────────

// Query reads the items sharing one hash key value, on the table or an index.
type Query struct {
	request
	hash      any
	keyConds  []clause
	ascending *bool
}

// Query starts a query for hash.
func (t *Table) Query(hash any) *Query {
	return &Query{request: request{t: t}, hash: hash}
}

// Where adds a key condition on the range key of the table or of the index in use.
func (q *Query) Where(field string) Condition[*Query] {
	return Condition[*Query]{builder: q, field: field, add: func(c clause) { q.keyConds = append(q.keyConds, c) }}
}

// Filter adds a filter condition on a non-key attribute.
func (q *Query) Filter(field string) Condition[*Query] {
	return Condition[*Query]{builder: q, field: field, add: q.addFilter}
}

func (q *Query) Limit(n int32) *Query          { q.limit = n; return q }
func (q *Query) StartKey(key Attrs) *Query     { q.startKey = key; return q }
func (q *Query) LoadAll() *Query               { q.loadAll = true; return q }
func (q *Query) UsingIndex(name string) *Query { q.index = name; return q }
func (q *Query) Attributes(a ...string) *Query { q.attrs = a; return q }
func (q *Query) ConsistentRead() *Query        { q.consistent = true; return q }
func (q *Query) Select(s types.Select) *Query  { q.sel = s; return q }
func (q *Query) Ascending() *Query             { q.ascending = aws.Bool(true); return q }
func (q *Query) Descending() *Query            { q.ascending = aws.Bool(false); return q }

// keyNames returns the hash and range attribute of the table or index queried.
func (q *Query) keyNames() (string, string, error) {
	s := q.t.schema
	if q.index == "" {
		return s.HashKey, s.RangeKey, nil
	}
	if idx, ok := s.GlobalIndexes[q.index]; ok {
		return idx.HashKey, idx.RangeKey, nil
	}
	if idx, ok := s.LocalIndexes[q.index]; ok {
		return idx.HashKey, idx.RangeKey, nil
	}
	return "", "", NewError(fmt.Sprintf("unknown index %q", q.index), WithCode(CodeConfiguration))
}

func (q *Query) keyCondition() (expression.KeyConditionBuilder, error) {
	hashName, rangeName, err := q.keyNames()
	if err != nil {
		return expression.KeyConditionBuilder{}, err
	}
	if q.hash == nil {
		return expression.KeyConditionBuilder{}, validationError("invalid query", []Issue{{
			Path: hashName, Code: "required", Message: "hash key value is required",
		}})
	}
	hashVal, err := q.t.operand(hashName, q.hash)
	if err != nil {
		return expression.KeyConditionBuilder{}, err
	}
	kc := expression.Key(hashName).Equal(hashVal)

	if len(q.keyConds) > 1 {
		return kc, clauseError(q.keyConds[1], "only one range key condition is allowed")
	}
	for _, c := range q.keyConds {
		if c.field != rangeName {
			return kc, clauseError(c, fmt.Sprintf("key conditions apply to the range key %q only", rangeName))
		}
		key := expression.Key(c.field)
		if c.op == opBeginsWith {
			return kc.And(key.BeginsWith(c.args[0].(string))), nil
		}
		ops := make([]expression.ValueBuilder, len(c.args))
		for i, a := range c.args {
			if ops[i], err = q.t.operand(c.field, a); err != nil {
				return kc, err
			}
		}
		switch c.op {
		case opEquals:
			kc = kc.And(key.Equal(ops[0]))
		case opLt:
			kc = kc.And(key.LessThan(ops[0]))
		case opLte:
			kc = kc.And(key.LessThanEqual(ops[0]))
		case opGt:
			kc = kc.And(key.GreaterThan(ops[0]))
		case opGte:
			kc = kc.And(key.GreaterThanEqual(ops[0]))
		case opBetween:
			kc = kc.And(key.Between(ops[0], ops[1]))
		default:
			return kc, clauseError(c, "comparator not allowed in a key condition")
		}
	}
	return kc, nil
}

func (q *Query) input() (*ddb.QueryInput, error) {
	kc, err := q.keyCondition()
	if err != nil {
		return nil, err
	}
	b := expression.NewBuilder().WithKeyCondition(kc)
	filter, hasFilter, err := q.filterCondition()
	if err != nil {
		return nil, err
	}
	if hasFilter {
		b = b.WithFilter(filter)
	}
	if len(q.attrs) > 0 {
		b = b.WithProjection(projection(q.attrs))
	}
	expr, err := b.Build()
	if err != nil {
		return nil, err
	}
	startKey, err := q.encodedStartKey()
	if err != nil {
		return nil, err
	}

	input := &ddb.QueryInput{
		TableName:                 aws.String(q.t.TableName()),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ProjectionExpression:      expr.Projection(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ExclusiveStartKey:         startKey,
		ScanIndexForward:          q.ascending,
		Select:                    q.sel,
	}
	if q.index != "" {
		input.IndexName = aws.String(q.index)
	}
	if q.limit > 0 {
		input.Limit = aws.Int32(q.limit)
	}
	if q.consistent {
		input.ConsistentRead = aws.Bool(true)
	}
	return input, nil
}

// Exec runs the query, following continuation keys when LoadAll is set.
func (q *Query) Exec(ctx context.Context) (*Result, error) {
	input, err := q.input()
	if err != nil {
		return nil, err
	}
	client, err := q.t.Client(ctx)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	for {
		q.t.log.Trace("query", map[string]any{"table": *input.TableName, "index": q.index})
		out, err := client.Query(ctx, input)
		if err != nil {
			return nil, q.t.storageFailure("Query", err)
		}
		if err := q.collect(res, out.Items, out.Count, out.ScannedCount, out.LastEvaluatedKey); err != nil {
			return nil, err
		}
		if !q.loadAll || len(out.LastEvaluatedKey) == 0 {
			return res, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// ExecAsync runs Exec through the callback xor future adapter.
func (q *Query) ExecAsync(ctx context.Context, cb Callback[*Result]) *Future[*Result] {
	return dispatch(ctx, cb, q.Exec)
}

// ─── Scan ─────────────────────────────────────────────────────────────────────

// Scan reads the whole table or index, optionally split into parallel segments.
type Scan struct {
	request
	segments int32
}

// Scan starts a full table scan.
func (t *Table) Scan() *Scan {
	return &Scan{request: request{t: t}}
}

// ParallelScan starts a scan split into segments workers run concurrently.
// Every worker reads its segment to the end.
func (t *Table) ParallelScan(segments int) *Scan {
	return t.Scan().Segments(segments)
}

// Where adds a filter condition.
func (s *Scan) Where(field string) Condition[*Scan] {
	return Condition[*Scan]{builder: s, field: field, add: s.addFilter}
}

func (s *Scan) Limit(n int32) *Scan          { s.limit = n; return s }
func (s *Scan) StartKey(key Attrs) *Scan     { s.startKey = key; return s }
func (s *Scan) LoadAll() *Scan               { s.loadAll = true; return s }
func (s *Scan) UsingIndex(name string) *Scan { s.index = name; return s }
func (s *Scan) Attributes(a ...string) *Scan { s.attrs = a; return s }
func (s *Scan) ConsistentRead() *Scan        { s.consistent = true; return s }
func (s *Scan) Select(sel types.Select) *Scan {
	s.sel = sel
	return s
}

// Segments splits the scan into n concurrent workers. n <= 1 scans sequentially.
// A segmented scan rejects StartKey.
func (s *Scan) Segments(n int) *Scan {
	s.segments = int32(n)
	return s
}

func (s *Scan) input() (*ddb.ScanInput, error) {
	input := &ddb.ScanInput{TableName: aws.String(s.t.TableName()), Select: s.sel}
	filter, hasFilter, err := s.filterCondition()
	if err != nil {
		return nil, err
	}
	if hasFilter || len(s.attrs) > 0 {
		b := expression.NewBuilder()
		if hasFilter {
			b = b.WithFilter(filter)
		}
		if len(s.attrs) > 0 {
			b = b.WithProjection(projection(s.attrs))
		}
		expr, err := b.Build()
		if err != nil {
			return nil, err
		}
		input.FilterExpression = expr.Filter()
		input.ProjectionExpression = expr.Projection()
		input.ExpressionAttributeNames = expr.Names()
		input.ExpressionAttributeValues = expr.Values()
	}
	if s.segments > 1 && len(s.startKey) > 0 {
		return nil, validationError("invalid scan", []Issue{{
			Path: "startKey", Code: "start_key", Message: "a start key cannot be shared by parallel segments",
		}})
	}
	if input.ExclusiveStartKey, err = s.encodedStartKey(); err != nil {
		return nil, err
	}
	if s.index != "" {
		input.IndexName = aws.String(s.index)
	}
	if s.limit > 0 {
		input.Limit = aws.Int32(s.limit)
	}
	if s.consistent {
		input.ConsistentRead = aws.Bool(true)
	}
	return input, nil
}

// Exec runs the scan. Parallel scans join every segment before returning and
// report the first segment failure received.
func (s *Scan) Exec(ctx context.Context) (*Result, error) {
	input, err := s.input()
	if err != nil {
		return nil, err
	}
	client, err := s.t.Client(ctx)
	if err != nil {
		return nil, err
	}
	if s.segments <= 1 {
		return s.run(ctx, client, input, s.loadAll)
	}

	var (
		wg      sync.WaitGroup
		results = make([]*Result, s.segments)
		errs    = make(chan error, s.segments)
	)
	for seg := range s.segments {
		segInput := *input
		segInput.Segment = aws.Int32(seg)
		segInput.TotalSegments = aws.Int32(s.segments)
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.run(ctx, client, &segInput, true)
			if err != nil {
				errs <- err
				return
			}
			results[seg] = res
		}()
	}
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return nil, err
	}

	merged := &Result{}
	for _, r := range results {
		merged.Items = append(merged.Items, r.Items...)
		merged.Count += r.Count
		merged.ScannedCount += r.ScannedCount
	}
	return merged, nil
}

// ExecAsync runs Exec through the callback xor future adapter.
func (s *Scan) ExecAsync(ctx context.Context, cb Callback[*Result]) *Future[*Result] {
	return dispatch(ctx, cb, s.Exec)
}

func (s *Scan) run(ctx context.Context, client Client, input *ddb.ScanInput, all bool) (*Result, error) {
	res := &Result{}
	for {
		s.t.log.Trace("scan", map[string]any{"table": *input.TableName, "segment": aws.ToInt32(input.Segment)})
		out, err := client.Scan(ctx, input)
		if err != nil {
			return nil, s.t.storageFailure("Scan", err)
		}
		if err := s.collect(res, out.Items, out.Count, out.ScannedCount, out.LastEvaluatedKey); err != nil {
			return nil, err
		}
		if !all || len(out.LastEvaluatedKey) == 0 {
			return res, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}
