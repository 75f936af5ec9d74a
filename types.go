/*
Package dynamo – built-in field types.

Set rules carry an explicit wire annotation so arrays are written as typed
sets. Identifier rules carry a format check and a default generator.
*/
package dynamo

import "github.com/baseprime/dynamodb/internal/uid"

// StringSet is an array of strings stored as SS.
func StringSet() *Rule { return Array(String()).Wire(WireStringSet) }

// NumberSet is an array of numbers stored as NS.
func NumberSet() *Rule { return Array(Number()).Wire(WireNumberSet) }

// BinarySet is an array of binary values stored as BS. Strings are accepted
// and converted to bytes.
func BinarySet() *Rule { return Array(Binary(), String()).Wire(WireBinarySet) }

// UUID is a v4 UUID string that defaults to a fresh random UUID.
func UUID() *Rule {
	return String().Format(FormatUUIDv4).DefaultFunc(func() any { return uid.UUIDv4() })
}

// TimeUUID is a v1 UUID string that defaults to a fresh time-based UUID.
func TimeUUID() *Rule {
	return String().Format(FormatUUIDv1).DefaultFunc(func() any { return uid.UUIDv1() })
}

// ULID is a sortable identifier that defaults to a fresh ULID.
func ULID() *Rule {
	return String().Format(FormatULID).DefaultFunc(func() any { return uid.ULID() })
}

// Set is an explicitly typed set value. It is written with its own wire type
// regardless of the field's rule, which makes sets usable on untyped fields.
type Set struct {
	Type   WireType
	Values []any
}

func NewStringSet(values ...string) Set {
	s := Set{Type: WireStringSet, Values: make([]any, len(values))}
	for i, v := range values {
		s.Values[i] = v
	}
	return s
}

func NewNumberSet(values ...float64) Set {
	s := Set{Type: WireNumberSet, Values: make([]any, len(values))}
	for i, v := range values {
		s.Values[i] = v
	}
	return s
}

func NewBinarySet(values ...[]byte) Set {
	s := Set{Type: WireBinarySet, Values: make([]any, len(values))}
	for i, v := range values {
		s.Values[i] = v
	}
	return s
}
