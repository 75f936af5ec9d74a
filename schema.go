/*
Package dynamo – model configuration and schema compilation.

Compile checks a ModelConfig against the meta-schema (struct tags evaluated
by go-playground/validator, then the cross-field index rules), builds the
field rule tree including timestamp fields and derives the WireTypeMap.
*/
package dynamo

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	defaultCreatedAt = "createdAt"
	defaultUpdatedAt = "updatedAt"
)

// IndexType is "local" or "global".
type IndexType string

const (
	IndexLocal  IndexType = "local"
	IndexGlobal IndexType = "global"
)

// Projection selects the attributes copied into a secondary index.
// An empty Type means ALL.
type Projection struct {
	Type             string   `yaml:"type" validate:"omitempty,oneof=ALL KEYS_ONLY INCLUDE"`
	NonKeyAttributes []string `yaml:"nonKeyAttributes"`
}

// IndexConfig declares a secondary index.
type IndexConfig struct {
	Name          string      `yaml:"name" validate:"required"`
	Type          IndexType   `yaml:"type" validate:"required,oneof=local global"`
	HashKey       string      `yaml:"hashKey" validate:"required_if=Type global"`
	RangeKey      string      `yaml:"rangeKey" validate:"required_if=Type local"`
	Projection    *Projection `yaml:"projection"`
	ReadCapacity  int64       `yaml:"readCapacity" validate:"gte=0"`
	WriteCapacity int64       `yaml:"writeCapacity" validate:"gte=0"`
}

// TimestampField renames or disables one of the timestamp attributes.
// The zero value keeps the default name.
type TimestampField struct {
	Name     string
	Disabled bool
}

// Rename uses name for the timestamp attribute.
func Rename(name string) TimestampField { return TimestampField{Name: name} }

// Disabled turns the timestamp attribute off.
var Disabled = TimestampField{Disabled: true}

func (f TimestampField) resolve(def string) string {
	switch {
	case f.Disabled:
		return ""
	case f.Name != "":
		return f.Name
	}
	return def
}

// UnmarshalYAML accepts a bool (false disables) or a string (rename).
func (f *TimestampField) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp field must be a bool or a string", node.Line)
	}
	if node.Tag == "!!bool" {
		var b bool
		if err := node.Decode(&b); err != nil {
			return err
		}
		*f = TimestampField{Disabled: !b}
		return nil
	}
	*f = TimestampField{Name: node.Value}
	return nil
}

// ModelConfig is the declarative definition of a model.
type ModelConfig struct {
	HashKey  string `yaml:"hashKey" validate:"required"`
	RangeKey string `yaml:"rangeKey"`

	// TableName overrides the default table name; TableNameFunc, when set,
	// is evaluated on every call instead.
	TableName     string        `yaml:"tableName"`
	TableNameFunc func() string `yaml:"-"`

	Timestamps bool           `yaml:"timestamps"`
	CreatedAt  TimestampField `yaml:"createdAt"`
	UpdatedAt  TimestampField `yaml:"updatedAt"`

	Indexes []IndexConfig `yaml:"indexes" validate:"dive"`
	Schema  Fields        `yaml:"schema"`
}

// Schema is a compiled ModelConfig. It is immutable after Compile.
type Schema struct {
	HashKey    string
	RangeKey   string
	Timestamps bool
	// CreatedAt and UpdatedAt are the resolved attribute names, empty when
	// timestamps are off or the field is disabled.
	CreatedAt string
	UpdatedAt string

	GlobalIndexes map[string]IndexConfig
	LocalIndexes  map[string]IndexConfig

	tableName     string
	tableNameFunc func() string
	indexes       []IndexConfig
	root          *Rule
	wire          WireTypeMap
}

var metaValidate = newMetaValidator()

func newMetaValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Compile validates cfg and builds its Schema.
func Compile(cfg ModelConfig) (*Schema, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	fields := make(Fields, len(cfg.Schema)+4)
	for name, r := range cfg.Schema {
		if r == nil {
			return nil, configError(fmt.Sprintf("invalid table schema: field %q has no rule", name))
		}
		fields[name] = r
	}
	if _, ok := fields[cfg.HashKey]; !ok {
		fields[cfg.HashKey] = Any()
	}
	if cfg.RangeKey != "" {
		if _, ok := fields[cfg.RangeKey]; !ok {
			fields[cfg.RangeKey] = Any()
		}
	}

	s := &Schema{
		HashKey:       cfg.HashKey,
		RangeKey:      cfg.RangeKey,
		Timestamps:    cfg.Timestamps,
		GlobalIndexes: map[string]IndexConfig{},
		LocalIndexes:  map[string]IndexConfig{},
		tableName:     cfg.TableName,
		tableNameFunc: cfg.TableNameFunc,
		indexes:       append([]IndexConfig(nil), cfg.Indexes...),
	}
	if cfg.Timestamps {
		s.CreatedAt = cfg.CreatedAt.resolve(defaultCreatedAt)
		s.UpdatedAt = cfg.UpdatedAt.resolve(defaultUpdatedAt)
		if s.CreatedAt != "" {
			fields[s.CreatedAt] = Date()
		}
		if s.UpdatedAt != "" {
			fields[s.UpdatedAt] = Date()
		}
	}
	for _, idx := range cfg.Indexes {
		if idx.Type == IndexGlobal {
			s.GlobalIndexes[idx.Name] = idx
		} else {
			if idx.HashKey == "" {
				idx.HashKey = cfg.HashKey
			}
			s.LocalIndexes[idx.Name] = idx
		}
	}

	s.root = &Rule{Kind: KindObject, Keys: fields, open: len(cfg.Schema) == 0}
	s.wire = buildWireTypeMap(fields)
	return s, nil
}

func validateConfig(cfg ModelConfig) error {
	if err := metaValidate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return configError("invalid table schema, check your config", WithCause(err))
		}
		issues := make([]Issue, 0, len(verrs))
		for _, e := range verrs {
			issues = append(issues, Issue{
				Path:    e.Namespace(),
				Code:    e.Tag(),
				Message: fmt.Sprintf("failed on the '%s' rule", e.Tag()),
			})
		}
		return configError("invalid table schema, check your config", WithIssues(issues), WithCause(err))
	}

	var issues []Issue
	seen := map[string]bool{}
	for i, idx := range cfg.Indexes {
		path := fmt.Sprintf("ModelConfig.indexes[%d]", i)
		if seen[idx.Name] {
			issues = append(issues, Issue{Path: path + ".name", Code: "unique", Message: fmt.Sprintf("duplicate index name %q", idx.Name)})
		}
		seen[idx.Name] = true
		if idx.Type != IndexLocal {
			continue
		}
		if idx.HashKey != "" && idx.HashKey != cfg.HashKey {
			issues = append(issues, Issue{Path: path + ".hashKey", Code: "ref",
				Message: fmt.Sprintf("local index hash key must be %q", cfg.HashKey)})
		}
		if idx.ReadCapacity != 0 || idx.WriteCapacity != 0 {
			issues = append(issues, Issue{Path: path, Code: "forbidden",
				Message: "only global indexes may declare read/write capacity"})
		}
	}
	if len(issues) > 0 {
		return configError("invalid table schema, check your config", WithIssues(issues))
	}
	return nil
}

// WireTypes returns the compiled wire type map.
func (s *Schema) WireTypes() WireTypeMap { return s.wire }

// Fields returns the compiled top-level rules, timestamps and implicit key
// fields included.
func (s *Schema) Fields() Fields { return s.root.Keys }

// Indexes returns the secondary indexes in declaration order.
func (s *Schema) Indexes() []IndexConfig { return s.indexes }

// keyIssues reports missing primary key attributes.
func (s *Schema) keyIssues(attrs Attrs) []Issue {
	var issues []Issue
	if attrs[s.HashKey] == nil {
		issues = append(issues, Issue{Path: s.HashKey, Code: "required", Message: "hash key is required"})
	}
	if s.RangeKey != "" && attrs[s.RangeKey] == nil {
		issues = append(issues, Issue{Path: s.RangeKey, Code: "required", Message: "range key is required"})
	}
	return issues
}
