package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// ValueKind tags the variant of an ExtractedValue.
type ValueKind int

const (
	ValueNull ValueKind = iota
	ValueScalar
	ValueList
)

func (k ValueKind) String() string {
	switch k {
	case ValueScalar:
		return "scalar"
	case ValueList:
		return "list"
	}
	return "null"
}

// ExtractedValue is the result of one selector: null when nothing matched,
// a scalar string for exactly one match, or an ordered list for several.
// The zero value is Null.
type ExtractedValue struct {
	kind   ValueKind
	scalar string
	list   []string
}

func Null() ExtractedValue { return ExtractedValue{} }

func Scalar(s string) ExtractedValue {
	return ExtractedValue{kind: ValueScalar, scalar: s}
}

func List(items []string) ExtractedValue {
	return ExtractedValue{kind: ValueList, list: slices.Clone(items)}
}

// FromTexts applies the cardinality rule to the texts of every match.
func FromTexts(texts []string) ExtractedValue {
	switch len(texts) {
	case 0:
		return Null()
	case 1:
		return Scalar(texts[0])
	}
	return List(texts)
}

func (v ExtractedValue) Kind() ValueKind { return v.kind }
func (v ExtractedValue) IsNull() bool    { return v.kind == ValueNull }

// Scalar returns the string of a scalar value.
func (v ExtractedValue) Scalar() (string, bool) {
	return v.scalar, v.kind == ValueScalar
}

// List returns a copy of the items of a list value.
func (v ExtractedValue) List() ([]string, bool) {
	if v.kind != ValueList {
		return nil, false
	}
	return slices.Clone(v.list), true
}

// Texts flattens the value: none, one or many strings.
func (v ExtractedValue) Texts() []string {
	switch v.kind {
	case ValueScalar:
		return []string{v.scalar}
	case ValueList:
		return slices.Clone(v.list)
	}
	return nil
}

// Equal reports whether v and o hold the same variant and content.
func (v ExtractedValue) Equal(o ExtractedValue) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueScalar:
		return v.scalar == o.scalar
	case ValueList:
		return slices.Equal(v.list, o.list)
	}
	return true
}

func (v ExtractedValue) String() string {
	switch v.kind {
	case ValueScalar:
		return fmt.Sprintf("%q", v.scalar)
	case ValueList:
		return fmt.Sprintf("%q", v.list)
	}
	return "null"
}

func (v ExtractedValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueScalar:
		return json.Marshal(v.scalar)
	case ValueList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	}
	return []byte("null"), nil
}

func (v *ExtractedValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*v = Null()
		return nil
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Scalar(s)
		return nil
	case len(b) > 0 && b[0] == '[':
		var items []string
		if err := json.Unmarshal(b, &items); err != nil {
			return err
		}
		if items == nil {
			items = []string{}
		}
		*v = ExtractedValue{kind: ValueList, list: items}
		return nil
	}
	return fmt.Errorf("extracted value must be null, a string or a string array, got %s", b)
}

// ExtractedData maps every configured field name to its value.
type ExtractedData map[string]ExtractedValue
