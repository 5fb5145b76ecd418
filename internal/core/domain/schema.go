package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrUnknownTable  = errors.New("unknown table")
)

// SDType is the declared semantic type of a column.
type SDType string

const (
	SDTypeNumerical   SDType = "numerical"
	SDTypeCategorical SDType = "categorical"
	SDTypeBoolean     SDType = "boolean"
	SDTypeDatetime    SDType = "datetime"
	SDTypeID          SDType = "id"
	SDTypeEmail       SDType = "email"
	SDTypeName        SDType = "name"
)

// IsNumeric reports whether values of the column compare as numbers.
func (t SDType) IsNumeric() bool {
	return t == SDTypeNumerical || t == SDTypeID
}

const (
	DefaultDatetimeFormat = "%Y-%m-%d %H:%M:%S"
	DefaultIDRegex        = "[0-9]+"
)

// ColumnSpec describes one column. Attributes other than SDType only apply to
// the sdtype that declares them.
type ColumnSpec struct {
	SDType                 SDType `json:"sdtype"`
	ComputerRepresentation string `json:"computer_representation,omitempty"`
	DatetimeFormat         string `json:"datetime_format,omitempty"`
	RegexFormat            string `json:"regex_format,omitempty"`
	PII                    *bool  `json:"pii,omitempty"`
}

// Format returns the strftime format used to parse datetime values.
func (c ColumnSpec) Format() string {
	if c.DatetimeFormat == "" {
		return DefaultDatetimeFormat
	}
	return c.DatetimeFormat
}

// Regex returns the id pattern, falling back to digits only.
func (c ColumnSpec) Regex() string {
	if c.RegexFormat == "" {
		return DefaultIDRegex
	}
	return c.RegexFormat
}

// IsIntegral reports whether the numerical representation forbids fractions.
func (c ColumnSpec) IsIntegral() bool {
	return c.SDType == SDTypeNumerical && strings.HasPrefix(c.ComputerRepresentation, "Int")
}

// Schema is an ordered column name -> ColumnSpec mapping. The zero value is an
// empty schema.
type Schema struct {
	order   []string
	columns map[string]ColumnSpec
}

func NewSchema() *Schema {
	return &Schema{columns: make(map[string]ColumnSpec)}
}

// Set adds or replaces a column, keeping its original position when replaced.
func (s *Schema) Set(name string, spec ColumnSpec) *Schema {
	if s.columns == nil {
		s.columns = make(map[string]ColumnSpec)
	}
	if _, ok := s.columns[name]; !ok {
		s.order = append(s.order, name)
	}
	s.columns[name] = spec
	return s
}

func (s *Schema) Get(column string) (ColumnSpec, error) {
	if s == nil {
		return ColumnSpec{}, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	spec, ok := s.columns[column]
	if !ok {
		return ColumnSpec{}, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
	}
	return spec, nil
}

func (s *Schema) SDTypeOf(column string) (SDType, error) {
	spec, err := s.Get(column)
	if err != nil {
		return "", err
	}
	return spec.SDType, nil
}

func (s *Schema) Has(column string) bool {
	_, err := s.Get(column)
	return err == nil
}

// Columns returns column names in declaration order.
func (s *Schema) Columns() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Schema) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(s.columns[name])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object keeping the key order of the document.
func (s *Schema) UnmarshalJSON(data []byte) error {
	out := NewSchema()
	err := decodeOrderedObject(data, func(key string, raw json.RawMessage) error {
		var spec ColumnSpec
		if err := json.Unmarshal(raw, &spec); err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		out.Set(key, spec)
		return nil
	})
	if err != nil {
		return err
	}
	*s = *out
	return nil
}

// decodeOrderedObject walks the members of a JSON object in document order.
func decodeOrderedObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.New("expected json object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return errors.New("expected object key")
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
