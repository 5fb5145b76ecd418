package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidMetadata = errors.New("invalid metadata")

// ErrMetadataViolation is returned when a metadata document does not have the
// expected shape. Errors holds one entry per offending location.
type ErrMetadataViolation struct {
	Errors []string
}

func (e *ErrMetadataViolation) Error() string {
	return fmt.Sprintf("metadata validation failed: %s", strings.Join(e.Errors, "; "))
}

// Unwrap lets callers match shape failures with errors.Is(err, ErrInvalidMetadata).
func (e *ErrMetadataViolation) Unwrap() error {
	return ErrInvalidMetadata
}

// TableMetadata is the per-table section of a metadata document.
type TableMetadata struct {
	Columns     *Schema          `json:"columns"`
	PrimaryKey  string           `json:"primary_key,omitempty"`
	Constraints []ConstraintSpec `json:"constraints,omitempty"`
	SpecVersion string           `json:"METADATA_SPEC_VERSION,omitempty"`
}

// MetadataDocument is the persisted schema file: tables, relationships and
// constraints. Tables keep their document order.
type MetadataDocument struct {
	Tables        []NamedTable      `json:"-"`
	Relationships []json.RawMessage `json:"relationships,omitempty"`
	DtypeFormat   string            `json:"dtype_format,omitempty"`
	Constraints   []ConstraintSpec  `json:"constraints,omitempty"`
}

type NamedTable struct {
	Name string
	TableMetadata
}

type metadataWire struct {
	Tables        json.RawMessage   `json:"tables"`
	Relationships []json.RawMessage `json:"relationships,omitempty"`
	DtypeFormat   string            `json:"dtype_format,omitempty"`
	Constraints   []ConstraintSpec  `json:"constraints,omitempty"`
}

func ParseMetadata(data []byte) (MetadataDocument, error) {
	var doc MetadataDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return MetadataDocument{}, fmt.Errorf("%w: %v", ErrInvalidMetadata, err)
	}
	return doc, nil
}

func (d *MetadataDocument) UnmarshalJSON(data []byte) error {
	var wire metadataWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := MetadataDocument{
		Relationships: wire.Relationships,
		DtypeFormat:   wire.DtypeFormat,
		Constraints:   wire.Constraints,
	}
	if len(wire.Tables) > 0 && !bytes.Equal(bytes.TrimSpace(wire.Tables), []byte("null")) {
		err := decodeOrderedObject(wire.Tables, func(key string, raw json.RawMessage) error {
			var tm TableMetadata
			if err := json.Unmarshal(raw, &tm); err != nil {
				return fmt.Errorf("table %q: %w", key, err)
			}
			if tm.Columns == nil {
				tm.Columns = NewSchema()
			}
			out.Tables = append(out.Tables, NamedTable{Name: key, TableMetadata: tm})
			return nil
		})
		if err != nil {
			return err
		}
	}
	*d = out
	return nil
}

func (d MetadataDocument) MarshalJSON() ([]byte, error) {
	var tables bytes.Buffer
	tables.WriteByte('{')
	for i, t := range d.Tables {
		if i > 0 {
			tables.WriteByte(',')
		}
		key, err := json.Marshal(t.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(t.TableMetadata)
		if err != nil {
			return nil, err
		}
		tables.Write(key)
		tables.WriteByte(':')
		tables.Write(val)
	}
	tables.WriteByte('}')
	return json.Marshal(metadataWire{
		Tables:        tables.Bytes(),
		Relationships: d.Relationships,
		DtypeFormat:   d.DtypeFormat,
		Constraints:   d.Constraints,
	})
}

// Table returns the named table, or the first table when name is empty.
func (d MetadataDocument) Table(name string) (NamedTable, error) {
	if len(d.Tables) == 0 {
		return NamedTable{}, fmt.Errorf("%w: document has no tables", ErrUnknownTable)
	}
	if name == "" {
		return d.Tables[0], nil
	}
	for _, t := range d.Tables {
		if t.Name == name {
			return t, nil
		}
	}
	return NamedTable{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
}

// ConstraintsFor returns the constraint specs that apply to the table: the
// table's own list followed by top-level constraints tagged with its name, or
// untagged when it is the first table.
func (d MetadataDocument) ConstraintsFor(table string) []ConstraintSpec {
	var out []ConstraintSpec
	first := ""
	if len(d.Tables) > 0 {
		first = d.Tables[0].Name
	}
	for _, t := range d.Tables {
		if t.Name == table {
			out = append(out, t.Constraints...)
		}
	}
	for _, c := range d.Constraints {
		if c.TableName == table || (c.TableName == "" && table == first) {
			out = append(out, c)
		}
	}
	return out
}
