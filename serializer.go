/*
Package dynamo – serialization boundary.

Attribute maps are converted to DynamoDB items using the WireTypeMap. Fields
the map says nothing about fall back to attributevalue's type inference.
*/
package dynamo

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ToWireItem encodes attrs. Empty sets are dropped since DynamoDB rejects them.
func ToWireItem(attrs Attrs, wire WireTypeMap) (map[string]types.AttributeValue, error) {
	item := make(map[string]types.AttributeValue, len(attrs))
	for k, v := range attrs {
		av, err := encodeValue(v, wire[k], k)
		if err != nil {
			return nil, err
		}
		if av != nil {
			item[k] = av
		}
	}
	return item, nil
}

// FromWireItem decodes a DynamoDB item. DATE fields come back as time.Time.
func FromWireItem(item map[string]types.AttributeValue, wire WireTypeMap) (Attrs, error) {
	attrs := make(Attrs, len(item))
	for k, av := range item {
		v, err := decodeValue(av, wire[k])
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", k, err)
		}
		attrs[k] = v
	}
	return attrs, nil
}

// ToWireKey encodes a primary key. The range value is required when the
// model has a range key and ignored otherwise.
func (s *Schema) ToWireKey(hash, rng any) (map[string]types.AttributeValue, error) {
	attrs := Attrs{s.HashKey: hash}
	if s.RangeKey != "" {
		attrs[s.RangeKey] = rng
	}
	if issues := s.keyIssues(attrs); len(issues) > 0 {
		return nil, validationError("invalid key", issues)
	}
	return ToWireItem(attrs, s.wire)
}

func mismatch(path string, want WireType, v any) error {
	return validationError("type mismatch", []Issue{{
		Path:    path,
		Code:    "wire_type",
		Message: fmt.Sprintf("expected %s, got %T", want, v),
	}})
}

// encodeValue returns a nil AttributeValue for values that must be omitted.
func encodeValue(v any, n *WireNode, path string) (types.AttributeValue, error) {
	if v == nil {
		return &types.AttributeValueMemberNULL{Value: true}, nil
	}
	if set, ok := v.(Set); ok {
		return encodeSet(set.Values, set.Type, path)
	}
	if n == nil || n.Type == WireUntyped {
		return attributevalue.Marshal(v)
	}

	switch n.Type {
	case WireString:
		if s, ok := v.(string); ok {
			return &types.AttributeValueMemberS{Value: s}, nil
		}
	case WireNumber:
		if s, ok := numberString(v); ok {
			return &types.AttributeValueMemberN{Value: s}, nil
		}
	case WireBool:
		if b, ok := v.(bool); ok {
			return &types.AttributeValueMemberBOOL{Value: b}, nil
		}
	case WireBinary:
		if b, ok := v.([]byte); ok {
			return &types.AttributeValueMemberB{Value: b}, nil
		}
	case WireDate:
		switch t := v.(type) {
		case time.Time:
			return &types.AttributeValueMemberS{Value: t.Format(time.RFC3339Nano)}, nil
		case string:
			return &types.AttributeValueMemberS{Value: t}, nil
		}
	case WireStringSet, WireNumberSet, WireBinarySet:
		elems, ok := sliceValues(v)
		if !ok {
			return nil, mismatch(path, n.Type, v)
		}
		return encodeSet(elems, n.Type, path)
	case WireList:
		return encodeList(v, n, path)
	case WireMap:
		return encodeMap(v, n, path)
	}
	return nil, mismatch(path, n.Type, v)
}

func encodeSet(elems []any, t WireType, path string) (types.AttributeValue, error) {
	if len(elems) == 0 {
		return nil, nil
	}
	switch t {
	case WireStringSet:
		out := make([]string, len(elems))
		for i, e := range elems {
			s, ok := e.(string)
			if !ok {
				return nil, mismatch(fmt.Sprintf("%s[%d]", path, i), WireString, e)
			}
			out[i] = s
		}
		return &types.AttributeValueMemberSS{Value: out}, nil
	case WireNumberSet:
		out := make([]string, len(elems))
		for i, e := range elems {
			s, ok := numberString(e)
			if !ok {
				return nil, mismatch(fmt.Sprintf("%s[%d]", path, i), WireNumber, e)
			}
			out[i] = s
		}
		return &types.AttributeValueMemberNS{Value: out}, nil
	case WireBinarySet:
		out := make([][]byte, len(elems))
		for i, e := range elems {
			switch b := e.(type) {
			case []byte:
				out[i] = b
			case string:
				out[i] = []byte(b)
			default:
				return nil, mismatch(fmt.Sprintf("%s[%d]", path, i), WireBinary, e)
			}
		}
		return &types.AttributeValueMemberBS{Value: out}, nil
	}
	return nil, mismatch(path, t, elems)
}

func encodeList(v any, n *WireNode, path string) (types.AttributeValue, error) {
	elems, ok := sliceValues(v)
	if !ok {
		return nil, mismatch(path, WireList, v)
	}
	out := make([]types.AttributeValue, 0, len(elems))
	for i, e := range elems {
		av, err := encodeElement(e, n.Items, fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		if av != nil {
			out = append(out, av)
		}
	}
	return &types.AttributeValueMemberL{Value: out}, nil
}

// encodeElement uses the first item node that accepts e.
func encodeElement(e any, items []*WireNode, path string) (types.AttributeValue, error) {
	if len(items) == 0 {
		return encodeValue(e, nil, path)
	}
	var firstErr error
	for _, item := range items {
		av, err := encodeValue(e, item, path)
		if err == nil {
			return av, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}

func encodeMap(v any, n *WireNode, path string) (types.AttributeValue, error) {
	m, ok := v.(map[string]any)
	if !ok {
		if n.Fields == nil && reflect.ValueOf(v).Kind() != reflect.Slice {
			return attributevalue.Marshal(v)
		}
		return nil, mismatch(path, WireMap, v)
	}
	out := make(map[string]types.AttributeValue, len(m))
	for k, e := range m {
		av, err := encodeValue(e, n.Fields[k], joinPath(path, k))
		if err != nil {
			return nil, err
		}
		if av != nil {
			out[k] = av
		}
	}
	return &types.AttributeValueMemberM{Value: out}, nil
}

func numberString(v any) (string, bool) {
	switch n := v.(type) {
	case int:
		return strconv.Itoa(n), true
	case int8:
		return strconv.FormatInt(int64(n), 10), true
	case int16:
		return strconv.FormatInt(int64(n), 10), true
	case int32:
		return strconv.FormatInt(int64(n), 10), true
	case int64:
		return strconv.FormatInt(n, 10), true
	case uint:
		return strconv.FormatUint(uint64(n), 10), true
	case uint8:
		return strconv.FormatUint(uint64(n), 10), true
	case uint16:
		return strconv.FormatUint(uint64(n), 10), true
	case uint32:
		return strconv.FormatUint(uint64(n), 10), true
	case uint64:
		return strconv.FormatUint(n, 10), true
	case float32:
		return strconv.FormatFloat(float64(n), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(n, 'f', -1, 64), true
	case attributevalue.Number:
		return string(n), true
	}
	return "", false
}

func decodeValue(av types.AttributeValue, n *WireNode) (any, error) {
	if n != nil {
		switch n.Type {
		case WireDate:
			if s, ok := av.(*types.AttributeValueMemberS); ok {
				if t, ok := parseTime(s.Value); ok {
					return t, nil
				}
				return s.Value, nil
			}
		case WireMap:
			if m, ok := av.(*types.AttributeValueMemberM); ok && n.Fields != nil {
				return FromWireItem(m.Value, n.Fields)
			}
		case WireList:
			if l, ok := av.(*types.AttributeValueMemberL); ok && len(n.Items) == 1 {
				out := make([]any, len(l.Value))
				for i, e := range l.Value {
					v, err := decodeValue(e, n.Items[0])
					if err != nil {
						return nil, err
					}
					out[i] = v
				}
				return out, nil
			}
		}
	}
	var v any
	if err := attributevalue.UnmarshalWithOptions(av, &v, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	}); err != nil {
		return nil, err
	}
	return exactNumbers(v), nil
}

// exactNumbers replaces decoded numbers with int64 when integral and float64
// otherwise. Integers beyond int64 stay attributevalue.Number.
func exactNumbers(v any) any {
	switch x := v.(type) {
	case attributevalue.Number:
		return parseNumber(string(x))
	case []attributevalue.Number:
		ints := make([]int64, len(x))
		for i, n := range x {
			k, err := strconv.ParseInt(string(n), 10, 64)
			if err != nil {
				return numberSet(x)
			}
			ints[i] = k
		}
		return ints
	case []any:
		for i, e := range x {
			x[i] = exactNumbers(e)
		}
	case map[string]any:
		for k, e := range x {
			x[k] = exactNumbers(e)
		}
	}
	return v
}

func parseNumber(s string) any {
	k, err := strconv.ParseInt(s, 10, 64)
	switch {
	case err == nil:
		return k
	case errors.Is(err, strconv.ErrRange):
		return attributevalue.Number(s)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return attributevalue.Number(s)
}

func numberSet(ns []attributevalue.Number) any {
	floats := make([]float64, len(ns))
	for i, n := range ns {
		f, err := n.Float64()
		if err != nil {
			return ns
		}
		floats[i] = f
	}
	return floats
}
