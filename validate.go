/*
Package dynamo – rule interpreter.

Validate walks the rule tree against an attribute map, collecting every
issue instead of stopping at the first one, and returns the converted value
(date strings become time.Time, binary strings become []byte).
*/
package dynamo

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/go-playground/validator/v10"

	"github.com/baseprime/dynamodb/internal/uid"
)

// Attrs is an in-memory attribute map.
type Attrs = map[string]any

var formatValidate = validator.New()

// ValidateOptions tune a validation pass.
type ValidateOptions struct {
	// Partial skips required checks and accepts nil values (attribute removal).
	Partial bool
	// ApplyDefaults fills missing attributes before validating.
	ApplyDefaults bool
}

type validation struct {
	opts   ValidateOptions
	issues []Issue
}

func (v *validation) issue(path, code, format string, args ...any) {
	v.issues = append(v.issues, Issue{Path: path, Code: code, Message: fmt.Sprintf(format, args...)})
}

// Validate checks attrs against the compiled rule tree.
func (s *Schema) Validate(attrs Attrs, opts ValidateOptions) (Attrs, error) {
	if opts.ApplyDefaults {
		attrs = s.ApplyDefaults(attrs)
	}
	v := &validation{opts: opts}
	out := v.object(s.root, attrs, "")
	if len(v.issues) > 0 {
		return out, validationError("attributes failed validation", v.issues)
	}
	return out, nil
}

// ApplyDefaults returns a copy of data with every missing attribute that has
// a default filled in. Generators run once per missing attribute per call.
// Supplied attributes, including explicit nils, are never overwritten.
func (s *Schema) ApplyDefaults(data Attrs) Attrs {
	return applyDefaults(s.root, data)
}

func applyDefaults(r *Rule, in map[string]any) map[string]any {
	out := make(map[string]any, len(in)+len(r.Keys))
	for k, val := range in {
		if rule, ok := r.Keys[k]; ok && rule.Kind == KindObject {
			if m, ok := val.(map[string]any); ok {
				val = applyDefaults(rule, m)
			}
		}
		out[k] = val
	}
	for k, rule := range r.Keys {
		if _, ok := out[k]; !ok && rule.Default != nil {
			out[k] = rule.Default()
		}
	}
	return out
}

func (v *validation) object(r *Rule, in map[string]any, path string) map[string]any {
	out := make(map[string]any, len(in))
	for _, k := range sortedKeys(in) {
		p := joinPath(path, k)
		rule, ok := r.Keys[k]
		if !ok {
			if !r.open {
				v.issue(p, "unknown_key", "is not allowed")
				continue
			}
			out[k] = in[k]
			continue
		}
		out[k] = v.value(rule, in[k], p)
	}

	keys := sortedKeys(r.Keys)
	if !v.opts.Partial {
		for _, k := range keys {
			if _, ok := in[k]; !ok && r.Keys[k].IsRequired() {
				v.issue(joinPath(path, k), "required", "is required")
			}
		}
	}
	for _, k := range keys {
		val, ok := out[k]
		if !ok {
			continue
		}
		for _, c := range r.Keys[k].Constraints {
			if c.Kind == ConstraintRef && !equalValues(val, out[c.Ref]) {
				v.issue(joinPath(path, k), "ref", "must match %q", c.Ref)
			}
		}
	}
	return out
}

func (v *validation) value(r *Rule, val any, path string) any {
	if a, ok := val.(UpdateAction); ok {
		if _, isSlice := sliceValues(a.Value); r.Kind == KindArray && !isSlice {
			a.Value = []any{a.Value}
		}
		a.Value = v.value(r, a.Value, path)
		return a
	}
	if val == nil {
		if v.opts.Partial || r.Kind == KindAny || r.Kind == "" || r.has(ConstraintAllowNull) {
			return nil
		}
		v.issue(path, "invalid_type", "must not be null")
		return nil
	}
	out, ok := v.convert(r, val, path)
	if !ok {
		return val
	}
	v.constraints(r, out, path)
	return out
}

func (v *validation) convert(r *Rule, val any, path string) (any, bool) {
	switch r.Kind {
	case KindAny, "":
		return val, true
	case KindString:
		if s, ok := val.(string); ok {
			return s, true
		}
	case KindNumber:
		if _, ok := toFloat(val); ok {
			return val, true
		}
	case KindBoolean:
		if b, ok := val.(bool); ok {
			return b, true
		}
	case KindBinary:
		switch b := val.(type) {
		case []byte:
			return b, true
		case string:
			return []byte(b), true
		}
	case KindDate:
		if t, ok := toTime(val); ok {
			return t, true
		}
	case KindArray:
		return v.array(r, val, path)
	case KindObject:
		if m, ok := val.(map[string]any); ok {
			return v.object(r, m, path), true
		}
	}
	v.issue(path, "invalid_type", "must be a %s", r.Kind)
	return nil, false
}

func (v *validation) array(r *Rule, val any, path string) (any, bool) {
	elems, ok := sliceValues(val)
	if !ok {
		v.issue(path, "invalid_type", "must be an array")
		return nil, false
	}
	if len(r.Items) == 0 {
		return val, true
	}
	converted := make([]any, len(elems))
	for i, e := range elems {
		got, _ := v.element(r.Items, e, fmt.Sprintf("%s[%d]", path, i))
		converted[i] = got
	}
	if set, ok := val.(Set); ok {
		return Set{Type: set.Type, Values: converted}, true
	}
	for _, item := range r.Items {
		switch item.Kind {
		case KindDate, KindBinary, KindObject, KindArray:
			return converted, true
		}
	}
	return val, true
}

// element matches e against the first alternative that accepts it.
func (v *validation) element(alts []*Rule, e any, path string) (any, bool) {
	if len(alts) == 1 {
		before := len(v.issues)
		got := v.value(alts[0], e, path)
		return got, len(v.issues) == before
	}
	for _, alt := range alts {
		sub := &validation{opts: v.opts}
		got := sub.value(alt, e, path)
		if len(sub.issues) == 0 {
			return got, true
		}
	}
	v.issue(path, "no_match", "does not match any allowed type")
	return e, false
}

func (v *validation) constraints(r *Rule, val any, path string) {
	for _, c := range r.Constraints {
		switch c.Kind {
		case ConstraintRange:
			n, ok := measure(r.Kind, val)
			if !ok {
				continue
			}
			if c.Min != nil && n < *c.Min {
				v.issue(path, "out_of_range", "must be at least %v", *c.Min)
			}
			if c.Max != nil && n > *c.Max {
				v.issue(path, "out_of_range", "must be at most %v", *c.Max)
			}
		case ConstraintPattern:
			if s, ok := val.(string); ok && !c.Pattern.MatchString(s) {
				v.issue(path, "pattern", "must match %s", c.Pattern.String())
			}
		case ConstraintEnum:
			if !slices.ContainsFunc(c.Values, func(x any) bool { return equalValues(x, val) }) {
				v.issue(path, "enum", "must be one of %v", c.Values)
			}
		case ConstraintFormat:
			if s, ok := val.(string); ok {
				if err := checkFormat(c.Format, s); err != nil {
					v.issue(path, "format", "%s", err.Error())
				}
			}
		}
	}
}

func checkFormat(format, s string) (err error) {
	switch format {
	case FormatUUIDv1:
		if !uid.IsUUID(s, 1) {
			return fmt.Errorf("must be a valid v1 uuid")
		}
		return nil
	case FormatULID:
		if !uid.IsULID(s) {
			return fmt.Errorf("must be a valid ulid")
		}
		return nil
	}
	// validator panics on tags it does not know.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unknown format %q", format)
		}
	}()
	if formatValidate.Var(s, format) != nil {
		return fmt.Errorf("must be a valid %s", format)
	}
	return nil
}

func measure(k Kind, val any) (float64, bool) {
	switch k {
	case KindNumber:
		return toFloat(val)
	case KindString:
		s, ok := val.(string)
		return float64(utf8.RuneCountInString(s)), ok
	case KindBinary:
		b, ok := val.([]byte)
		return float64(len(b)), ok
	case KindArray:
		elems, ok := sliceValues(val)
		return float64(len(elems)), ok
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case attributevalue.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	case string:
		return parseTime(t)
	case int64:
		return time.UnixMilli(t), true
	case int:
		return time.UnixMilli(int64(t)), true
	case float64:
		return time.UnixMilli(int64(t)), true
	}
	return time.Time{}, false
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// sliceValues returns the elements of any slice except []byte.
func sliceValues(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case Set:
		return s.Values, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func equalValues(a, b any) bool {
	if ia, ok := toInt(a); ok {
		if ib, ok := toInt(b); ok {
			return ia == ib
		}
	}
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return strings.Join([]string{parent, key}, ".")
}
