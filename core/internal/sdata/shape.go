// Package sdata describes the shape of the documents stored in a collection:
// every addressable field, its full property path and the field that
// encloses it.
package sdata

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dosco/pipejin/core/internal/qerr"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

type FieldType string

const (
	// FieldNested marks an array of subdocuments. Its members can only be
	// addressed after an unwind.
	FieldNested FieldType = "nested"

	// FieldScalar covers every other marker found in a shape description.
	FieldScalar FieldType = "scalar"
)

// FieldDescriptor is one addressable field of the document shape.
type FieldDescriptor struct {
	Name         string    `mapstructure:"name" yaml:"name"`
	PropertyPath string    `mapstructure:"this_property_path" yaml:"this_property_path"`
	ParentPath   string    `mapstructure:"parent_path" yaml:"parent_path,omitempty"`
	Type         FieldType `mapstructure:"type" yaml:"type"`
}

// IsNested reports whether the field is an array of subdocuments.
func (f FieldDescriptor) IsNested() bool {
	return f.Type == FieldNested
}

// HasParent reports whether the field is enclosed by another field.
func (f FieldDescriptor) HasParent() bool {
	return f.ParentPath != ""
}

// Shape is the read-only document shape description. It is keyed by field
// name and indexed by full property path.
type Shape struct {
	fields map[string]FieldDescriptor
	paths  map[string]string
	hash   uint64
}

// New builds a shape from descriptors keyed by field name. Missing names
// and property paths are filled in from the key. New does not check the
// parent invariants, use Validate for that.
func New(fields map[string]FieldDescriptor) *Shape {
	s := &Shape{
		fields: make(map[string]FieldDescriptor, len(fields)),
		paths:  make(map[string]string, len(fields)),
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		f := fields[k]
		if f.Name == "" {
			f.Name = k
		}
		if f.PropertyPath == "" {
			f.PropertyPath = k
		}
		if f.Type != FieldNested {
			f.Type = FieldScalar
		}
		s.fields[k] = f
		if _, ok := s.paths[f.PropertyPath]; !ok {
			s.paths[f.PropertyPath] = k
		}
	}

	h, err := hashstructure.Hash(s.fields, hashstructure.FormatV2, nil)
	if err == nil {
		s.hash = h
	}
	return s
}

// Parse decodes a JSON or YAML shape description of the form
// {<name>: {type, parent_path, this_property_path, name}}.
func Parse(data []byte) (*Shape, error) {
	var raw map[string]interface{}
	var err error

	if b := bytes.TrimSpace(data); len(b) != 0 && b[0] == '{' {
		err = json.Unmarshal(b, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return nil, qerr.Shape("", "decoding shape: %s", err)
	}
	if len(raw) == 0 {
		return nil, qerr.Shape("", "shape has no fields")
	}

	fields := make(map[string]FieldDescriptor, len(raw))

	for k, v := range raw {
		var f FieldDescriptor

		dc := &mapstructure.DecoderConfig{
			Result:           &f,
			WeaklyTypedInput: true,
		}
		dec, err := mapstructure.NewDecoder(dc)
		if err != nil {
			return nil, err
		}
		if err := dec.Decode(v); err != nil {
			return nil, qerr.Shape(k, "decoding field: %s", err)
		}
		fields[k] = f
	}

	s := New(fields)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Describe resolves a field by its full property path and falls back to
// its name.
func (s *Shape) Describe(path string) (FieldDescriptor, error) {
	if k, ok := s.paths[path]; ok {
		return s.fields[k], nil
	}
	if f, ok := s.fields[path]; ok {
		return f, nil
	}
	return FieldDescriptor{}, qerr.Unknown(path)
}

// Field returns the descriptor stored under name.
func (s *Shape) Field(name string) (FieldDescriptor, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Parent returns the descriptor of the field enclosing f.
func (s *Shape) Parent(f FieldDescriptor) (FieldDescriptor, bool, error) {
	if !f.HasParent() {
		return FieldDescriptor{}, false, nil
	}
	p, ok := s.fields[f.ParentPath]
	if !ok {
		return FieldDescriptor{}, false, qerr.Shape(f.PropertyPath,
			"parent '%s' is not described", f.ParentPath)
	}
	return p, true, nil
}

// Ancestors returns the enclosing fields of f starting with its immediate
// parent and ending at a root field. The walk is bounded by the number of
// fields in the shape and fails on the first revisited field.
func (s *Shape) Ancestors(f FieldDescriptor) ([]FieldDescriptor, error) {
	var list []FieldDescriptor

	seen := map[string]struct{}{f.PropertyPath: {}}
	cur := f

	for i := 0; i <= len(s.fields); i++ {
		p, ok, err := s.Parent(cur)
		if err != nil {
			return nil, err
		}
		if !ok {
			return list, nil
		}
		if _, dup := seen[p.PropertyPath]; dup {
			return nil, qerr.Cyclic(f.PropertyPath)
		}
		seen[p.PropertyPath] = struct{}{}
		list = append(list, p)
		cur = p
	}
	return nil, qerr.Cyclic(f.PropertyPath)
}

// Validate checks that property paths are unique, that every parent is
// described and that no field is its own ancestor.
func (s *Shape) Validate() error {
	names := s.Names()

	for _, k := range names {
		f := s.fields[k]
		if owner := s.paths[f.PropertyPath]; owner != k {
			return qerr.Shape(f.PropertyPath,
				"duplicate this_property_path, used by '%s' and '%s'", owner, k)
		}
	}

	for _, k := range names {
		if _, err := s.Ancestors(s.fields[k]); err != nil {
			return err
		}
	}
	return nil
}

// Names returns the field names in sorted order.
func (s *Shape) Names() []string {
	names := make([]string, 0, len(s.fields))
	for k := range s.fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of described fields.
func (s *Shape) Len() int {
	return len(s.fields)
}

// Hash fingerprints the shape. Two shapes with the same descriptors have the
// same hash.
func (s *Shape) Hash() uint64 {
	return s.hash
}

// MarshalYAML renders the shape in the same form Parse reads.
func (s *Shape) MarshalYAML() (interface{}, error) {
	return s.fields, nil
}

func (s *Shape) String() string {
	var sb strings.Builder
	for _, k := range s.Names() {
		f := s.fields[k]
		fmt.Fprintf(&sb, "%s %s (%s)", k, f.PropertyPath, f.Type)
		if f.HasParent() {
			fmt.Fprintf(&sb, " <- %s", f.ParentPath)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
