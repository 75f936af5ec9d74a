/*
Package dynamo – YAML model definitions.

	models:
	  User:
	    hashKey: email
	    timestamps: true
	    updatedAt: modified
	    schema:
	      email: { type: string, required: true, format: email }
	      id: uuid
	      roles: stringSet
	      address:
	        city: string
	        zip: { type: string, pattern: "^[0-9]{5}$" }

A field rule is either a type name or a mapping. A mapping with a "type"
key is a rule document; any other mapping is an object whose keys are fields.
*/
package dynamo

import (
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Definition is one named model read from YAML.
type Definition struct {
	Name   string
	Config ModelConfig
}

// ParseDefinitions reads the models mapping, keeping document order.
// Definitions are decoded but not compiled.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var doc struct {
		Models yaml.Node `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, configError("cannot parse model definitions", WithCause(err))
	}
	if doc.Models.Kind != yaml.MappingNode {
		return nil, configError("model definitions need a top-level models mapping")
	}
	content := doc.Models.Content
	defs := make([]Definition, 0, len(content)/2)
	for i := 0; i+1 < len(content); i += 2 {
		name := content[i].Value
		var cfg ModelConfig
		if err := content[i+1].Decode(&cfg); err != nil {
			return nil, configError(fmt.Sprintf("cannot parse model %q", name), WithCause(err))
		}
		defs = append(defs, Definition{Name: name, Config: cfg})
	}
	return defs, nil
}

var ruleTypes = map[string]func() *Rule{
	"any":       Any,
	"string":    String,
	"number":    Number,
	"boolean":   Boolean,
	"binary":    Binary,
	"date":      Date,
	"array":     func() *Rule { return Array() },
	"object":    func() *Rule { return Object(nil) },
	"stringSet": StringSet,
	"numberSet": NumberSet,
	"binarySet": BinarySet,
	"uuid":      UUID,
	"timeUUID":  TimeUUID,
	"ulid":      ULID,
}

func ruleOfType(name string) (*Rule, error) {
	mk, ok := ruleTypes[name]
	if !ok {
		return nil, fmt.Errorf("unknown field type %q", name)
	}
	return mk(), nil
}

type ruleDoc struct {
	Type      string   `yaml:"type"`
	Required  bool     `yaml:"required"`
	AllowNull bool     `yaml:"allowNull"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	Pattern   string   `yaml:"pattern"`
	Enum      []any    `yaml:"enum"`
	Format    string   `yaml:"format"`
	Ref       string   `yaml:"ref"`
	Default   any      `yaml:"default"`
	Keys      Fields   `yaml:"keys"`
	Items     []*Rule  `yaml:"items"`
}

func (s ruleDoc) rule() (*Rule, error) {
	var r *Rule
	switch s.Type {
	case "array":
		r = Array(s.Items...)
	case "object":
		r = Object(s.Keys)
	default:
		var err error
		if r, err = ruleOfType(s.Type); err != nil {
			return nil, err
		}
	}
	if s.Required {
		r.Required()
	}
	if s.AllowNull {
		r.AllowNull()
	}
	switch {
	case s.Min != nil && s.Max != nil:
		r.Range(*s.Min, *s.Max)
	case s.Min != nil:
		r.Min(*s.Min)
	case s.Max != nil:
		r.Max(*s.Max)
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return nil, fmt.Errorf("pattern: %w", err)
		}
		r.add(Constraint{Kind: ConstraintPattern, Pattern: re})
	}
	if len(s.Enum) > 0 {
		r.Valid(s.Enum...)
	}
	if s.Format != "" {
		r.Format(s.Format)
	}
	if s.Ref != "" {
		r.Ref(s.Ref)
	}
	if s.Default != nil {
		r.DefaultValue(s.Default)
	}
	return r, nil
}

// UnmarshalYAML decodes a type name, a rule document or a nested object.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		base, err := ruleOfType(strings.TrimSpace(node.Value))
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = *base
		return nil
	case yaml.MappingNode:
		if !hasKey(node, "type") {
			var keys Fields
			if err := node.Decode(&keys); err != nil {
				return err
			}
			*r = *Object(keys)
			return nil
		}
		var doc ruleDoc
		if err := node.Decode(&doc); err != nil {
			return err
		}
		built, err := doc.rule()
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		*r = *built
		return nil
	}
	return fmt.Errorf("line %d: field rule must be a type name or a mapping", node.Line)
}

func hasKey(node *yaml.Node, key string) bool {
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return true
		}
	}
	return false
}
