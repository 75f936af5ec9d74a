package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type actionOp string

const (
	actionAdd    actionOp = "ADD"
	actionDelete actionOp = "DELETE"
)

// UpdateAction marks an Update attribute as an ADD or DELETE action instead
// of a plain SET.
type UpdateAction struct {
	Op    actionOp
	Value any
}

// Add increments a number attribute or adds elements to a set attribute.
func Add(v any) UpdateAction { return UpdateAction{Op: actionAdd, Value: v} }

// DeleteFromSet removes elements from a set attribute.
func DeleteFromSet(v any) UpdateAction { return UpdateAction{Op: actionDelete, Value: v} }

// wireValue hands an already encoded AttributeValue to the expression
// builder, which would otherwise re-marshal it by reflection.
type wireValue struct{ av types.AttributeValue }

func (w wireValue) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return w.av, nil
}

// encodeField encodes v for the attribute at a dotted path using the schema's
// wire types. A nil result means an empty set.
func (t *Table) encodeField(path string, v any) (types.AttributeValue, error) {
	node := t.schema.wire.Lookup(strings.Split(path, ".")...)
	return encodeValue(v, node, path)
}

// operand encodes v as an expression value for path.
func (t *Table) operand(path string, v any) (expression.ValueBuilder, error) {
	av, err := t.encodeField(path, v)
	if err != nil {
		return expression.ValueBuilder{}, err
	}
	if av == nil {
		return expression.ValueBuilder{}, validationError("invalid operand", []Issue{{
			Path: path, Code: "empty_set", Message: "empty sets cannot be compared",
		}})
	}
	return expression.Value(wireValue{av}), nil
}

// updateExpression builds SET, REMOVE, ADD and DELETE clauses from fields.
// Setting an attribute to an empty set removes it.
func (t *Table) updateExpression(fields Attrs) (expression.UpdateBuilder, bool, error) {
	var ub expression.UpdateBuilder
	if len(fields) == 0 {
		return ub, false, nil
	}
	for _, k := range sortedKeys(fields) {
		name := expression.Name(k)
		switch v := fields[k].(type) {
		case nil:
			ub = ub.Remove(name)
		case UpdateAction:
			op, err := t.operand(k, v.Value)
			if err != nil {
				return ub, false, err
			}
			switch v.Op {
			case actionAdd:
				ub = ub.Add(name, op)
			case actionDelete:
				ub = ub.Delete(name, op)
			default:
				return ub, false, fmt.Errorf("unknown update action %q", v.Op)
			}
		default:
			av, err := t.encodeField(k, v)
			if err != nil {
				return ub, false, err
			}
			if av == nil {
				ub = ub.Remove(name)
				continue
			}
			ub = ub.Set(name, expression.Value(wireValue{av}))
		}
	}
	return ub, true, nil
}

// expectedCondition turns an Expected map into an AND of equality checks.
// A nil expected value requires the attribute to be absent.
func (t *Table) expectedCondition(expected map[string]any) (expression.ConditionBuilder, bool, error) {
	var cond expression.ConditionBuilder
	has := false
	for _, k := range sortedKeys(expected) {
		var c expression.ConditionBuilder
		if expected[k] == nil {
			c = expression.AttributeNotExists(expression.Name(k))
		} else {
			op, err := t.operand(k, expected[k])
			if err != nil {
				return cond, false, err
			}
			c = expression.Name(k).Equal(op)
		}
		cond = joinCondition(cond, has, c)
		has = true
	}
	return cond, has, nil
}

func joinCondition(acc expression.ConditionBuilder, has bool, c expression.ConditionBuilder) expression.ConditionBuilder {
	if !has {
		return c
	}
	return acc.And(c)
}

// projection builds a projection over the named attributes.
func projection(attrs []string) expression.ProjectionBuilder {
	names := make([]expression.NameBuilder, len(attrs))
	for i, a := range attrs {
		names[i] = expression.Name(a)
	}
	return expression.NamesList(names[0], names[1:]...)
}
