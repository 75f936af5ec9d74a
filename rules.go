/*
Package dynamo – field rules.

A field rule is a declarative tree: a Kind, a list of tagged Constraints,
nested Keys (objects) or Items (arrays), an optional wire type annotation and
an optional default Generator. The builder methods below only append to that
tree; validate.go interprets it.
*/
package dynamo

import (
	"regexp"
)

// Kind is the in-memory type a rule accepts.
type Kind string

const (
	KindAny     Kind = "any"
	KindString  Kind = "string"
	KindNumber  Kind = "number"
	KindBoolean Kind = "boolean"
	KindBinary  Kind = "binary"
	KindDate    Kind = "date"
	KindArray   Kind = "array"
	KindObject  Kind = "object"
)

// ConstraintKind tags a Constraint variant.
type ConstraintKind string

const (
	ConstraintRequired  ConstraintKind = "required"
	ConstraintAllowNull ConstraintKind = "allowNull"
	ConstraintRange     ConstraintKind = "range"
	ConstraintPattern   ConstraintKind = "pattern"
	ConstraintEnum      ConstraintKind = "enum"
	ConstraintFormat    ConstraintKind = "format"
	ConstraintRef       ConstraintKind = "ref"
)

// Well-known formats. Any other value is looked up as a validator tag.
const (
	FormatEmail  = "email"
	FormatUUIDv4 = "uuid4"
	FormatUUIDv1 = "uuid1"
	FormatULID   = "ulid"
)

// Constraint is one tagged rule variant. Only the fields relevant to Kind are set.
//
// Range bounds apply to the numeric value for numbers, to the rune count for
// strings and to the length for arrays.
type Constraint struct {
	Kind    ConstraintKind
	Min     *float64
	Max     *float64
	Pattern *regexp.Regexp
	Values  []any
	Format  string
	Ref     string
}

// Generator produces a default value. Identifier and timestamp generators are
// impure: every call may return a different value.
type Generator func() any

// Fields maps attribute names to rules.
type Fields map[string]*Rule

// Rule describes the accepted shape of one attribute.
type Rule struct {
	Kind        Kind
	Constraints []Constraint
	Keys        Fields
	Items       []*Rule
	WireType    WireType
	Default     Generator

	// open objects accept keys not listed in Keys.
	open bool
}

func String() *Rule  { return &Rule{Kind: KindString} }
func Number() *Rule  { return &Rule{Kind: KindNumber} }
func Boolean() *Rule { return &Rule{Kind: KindBoolean} }
func Binary() *Rule  { return &Rule{Kind: KindBinary} }
func Date() *Rule    { return &Rule{Kind: KindDate} }
func Any() *Rule     { return &Rule{Kind: KindAny} }

// Array accepts slices. Each element must match at least one of items; with
// no items any element is accepted.
func Array(items ...*Rule) *Rule { return &Rule{Kind: KindArray, Items: items} }

// Object accepts nested maps. An object without keys accepts any keys.
func Object(keys Fields) *Rule {
	return &Rule{Kind: KindObject, Keys: keys, open: len(keys) == 0}
}

func (r *Rule) add(c Constraint) *Rule {
	r.Constraints = append(r.Constraints, c)
	return r
}

func (r *Rule) Required() *Rule  { return r.add(Constraint{Kind: ConstraintRequired}) }
func (r *Rule) AllowNull() *Rule { return r.add(Constraint{Kind: ConstraintAllowNull}) }

func (r *Rule) Min(n float64) *Rule { return r.add(Constraint{Kind: ConstraintRange, Min: &n}) }
func (r *Rule) Max(n float64) *Rule { return r.add(Constraint{Kind: ConstraintRange, Max: &n}) }

func (r *Rule) Range(lo, hi float64) *Rule {
	return r.add(Constraint{Kind: ConstraintRange, Min: &lo, Max: &hi})
}

// Pattern panics if expr does not compile, like regexp.MustCompile.
func (r *Rule) Pattern(expr string) *Rule {
	return r.add(Constraint{Kind: ConstraintPattern, Pattern: regexp.MustCompile(expr)})
}

func (r *Rule) Valid(values ...any) *Rule {
	return r.add(Constraint{Kind: ConstraintEnum, Values: values})
}

func (r *Rule) Format(format string) *Rule {
	return r.add(Constraint{Kind: ConstraintFormat, Format: format})
}

func (r *Rule) Email() *Rule { return r.Format(FormatEmail) }

// Ref requires the value to equal the sibling attribute named field.
func (r *Rule) Ref(field string) *Rule {
	return r.add(Constraint{Kind: ConstraintRef, Ref: field})
}

// Wire annotates the rule with an explicit wire type, overriding inference.
func (r *Rule) Wire(t WireType) *Rule {
	r.WireType = t
	return r
}

// DefaultValue sets a literal default.
func (r *Rule) DefaultValue(v any) *Rule {
	r.Default = func() any { return copyValue(v) }
	return r
}

// DefaultFunc sets a default generator, called once per missing value.
func (r *Rule) DefaultFunc(fn Generator) *Rule {
	r.Default = fn
	return r
}

func (r *Rule) has(kind ConstraintKind) bool {
	for _, c := range r.Constraints {
		if c.Kind == kind {
			return true
		}
	}
	return false
}

// IsRequired reports whether the rule carries a required constraint.
func (r *Rule) IsRequired() bool { return r.has(ConstraintRequired) }
