/*
Package dynamo – wire type mapping.

A WireTypeMap records, per attribute path, which DynamoDB type a value must
be written as. It exists mostly to tell lists and sets apart: both are slices
in memory but SS/NS/BS and L on the wire.
*/
package dynamo

// WireType is the storage-level type tag of an attribute.
type WireType string

const (
	WireUntyped   WireType = ""
	WireString    WireType = "S"
	WireNumber    WireType = "N"
	WireBool      WireType = "BOOL"
	WireBinary    WireType = "B"
	WireList      WireType = "L"
	WireMap       WireType = "M"
	WireStringSet WireType = "SS"
	WireNumberSet WireType = "NS"
	WireBinarySet WireType = "BS"
	// WireDate is stored as an RFC 3339 string and decoded back to time.Time.
	WireDate WireType = "DATE"
)

// IsSet reports whether w is one of the three set types.
func (w WireType) IsSet() bool {
	return w == WireStringSet || w == WireNumberSet || w == WireBinarySet
}

// WireNode is one node of a WireTypeMap. Fields is set for objects with
// declared keys, Items for arrays with item rules (one node per alternative).
type WireNode struct {
	Type   WireType
	Fields map[string]*WireNode
	Items  []*WireNode
}

// WireTypeMap maps top-level attribute names to their wire nodes.
type WireTypeMap map[string]*WireNode

// Lookup walks a path of attribute names through nested maps.
func (m WireTypeMap) Lookup(path ...string) *WireNode {
	fields := map[string]*WireNode(m)
	var node *WireNode
	for _, p := range path {
		if fields == nil {
			return nil
		}
		node = fields[p]
		if node == nil {
			return nil
		}
		fields = node.Fields
	}
	return node
}

// structuralWireType is the inference table used when a rule carries no
// explicit annotation.
func structuralWireType(k Kind) WireType {
	switch k {
	case KindString:
		return WireString
	case KindNumber:
		return WireNumber
	case KindBoolean:
		return WireBool
	case KindBinary:
		return WireBinary
	case KindArray:
		return WireList
	case KindDate:
		return WireDate
	case KindObject:
		return WireMap
	default:
		return WireUntyped
	}
}

// wireNodeOf maps a single rule to its wire node.
func wireNodeOf(r *Rule) *WireNode {
	if r == nil {
		return &WireNode{}
	}
	if r.WireType != WireUntyped {
		return &WireNode{Type: r.WireType}
	}
	switch r.Kind {
	case KindObject:
		n := &WireNode{Type: WireMap}
		if len(r.Keys) > 0 {
			n.Fields = buildWireTypeMap(r.Keys)
		}
		return n
	case KindArray:
		n := &WireNode{Type: WireList}
		for _, item := range r.Items {
			n.Items = append(n.Items, wireNodeOf(item))
		}
		return n
	}
	return &WireNode{Type: structuralWireType(r.Kind)}
}

func buildWireTypeMap(fields Fields) WireTypeMap {
	m := make(WireTypeMap, len(fields))
	for name, r := range fields {
		m[name] = wireNodeOf(r)
	}
	return m
}
