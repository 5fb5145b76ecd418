// Package tabular decodes stored data files into datasets.
package tabular

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decoder reads CSV files with a header row and JSON arrays of flat objects.
type Decoder struct{}

func NewDecoder() *Decoder {
	return &Decoder{}
}

func (d *Decoder) Decode(format string, content []byte) (domain.Dataset, error) {
	var (
		ds  domain.Dataset
		err error
	)
	switch format {
	case "csv":
		ds, err = DecodeCSV(content)
	case "json":
		ds, err = DecodeJSON(content)
	default:
		return domain.Dataset{}, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, format)
	}
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("%w: %v", domain.ErrInvalidDataset, err)
	}
	return ds, nil
}

// DecodeCSV keeps every cell as a string. Empty cells become nil.
func DecodeCSV(content []byte) (domain.Dataset, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, utf8BOM)))

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return domain.NewDataset(nil, []domain.Row{}), nil
	}
	if err != nil {
		return domain.Dataset{}, fmt.Errorf("read csv header: %w", err)
	}
	seen := make(map[string]struct{}, len(header))
	for _, name := range header {
		if _, dup := seen[name]; dup {
			return domain.Dataset{}, fmt.Errorf("csv header: duplicate column %q", name)
		}
		seen[name] = struct{}{}
	}

	rows := []domain.Row{}
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("read csv row %d: %w", len(rows), err)
		}
		row := make(domain.Row, len(header))
		for i, name := range header {
			if record[i] == "" {
				row[name] = nil
				continue
			}
			row[name] = record[i]
		}
		rows = append(rows, row)
	}
	return domain.NewDataset(header, rows), nil
}

// DecodeJSON accepts an array of objects whose values are scalars. The column
// header is the union of object keys in first-seen order.
func DecodeJSON(content []byte) (domain.Dataset, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(content, &raw); err != nil {
		return domain.Dataset{}, fmt.Errorf("decode json rows: %w", err)
	}

	rows := make([]domain.Row, 0, len(raw))
	var header []string
	seen := make(map[string]struct{})
	for i, item := range raw {
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			return domain.Dataset{}, fmt.Errorf("row %d: expected an object: %w", i, err)
		}
		if obj == nil {
			return domain.Dataset{}, fmt.Errorf("row %d: expected an object, got null", i)
		}
		row, err := ToRow(obj)
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("row %d: %w", i, err)
		}
		rows = append(rows, row)

		keys, err := objectKeys(item)
		if err != nil {
			return domain.Dataset{}, fmt.Errorf("row %d: %w", i, err)
		}
		for _, k := range keys {
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				header = append(header, k)
			}
		}
	}
	return domain.NewDataset(header, rows), nil
}

// ToRow checks that every value of obj is a scalar cell.
func ToRow(obj map[string]any) (domain.Row, error) {
	row := make(domain.Row, len(obj))
	for k, v := range obj {
		switch v.(type) {
		case nil, string, float64, bool:
			row[k] = v
		default:
			return nil, fmt.Errorf("column %q: nested values are not supported", k)
		}
	}
	return row, nil
}

func objectKeys(obj json.RawMessage) ([]string, error) {
	dec := json.NewDecoder(bytes.NewReader(obj))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	var keys []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		keys = append(keys, key)
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
