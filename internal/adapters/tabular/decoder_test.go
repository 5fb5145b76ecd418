package tabular

import (
	"errors"
	"strings"
	"testing"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

func TestDecodeCSV(t *testing.T) {
	content := "\xEF\xBB\xBFid,amount,note\n1,10.5,\"a, b\"\n2,,x\n"
	ds, err := NewDecoder().Decode("csv", []byte(content))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(ds.Columns, ",") != "id,amount,note" {
		t.Fatalf("unexpected header %v", ds.Columns)
	}
	if ds.Len() != 2 {
		t.Fatalf("expected 2 rows, got %d", ds.Len())
	}
	if ds.Rows[0]["note"] != "a, b" || ds.Rows[0]["amount"] != "10.5" {
		t.Fatalf("unexpected first row %v", ds.Rows[0])
	}
	if v, ok := ds.Rows[1]["amount"]; !ok || v != nil {
		t.Fatalf("empty cell should be nil, got %v (present=%v)", v, ok)
	}
}

func TestDecodeCSVHeaderOnlyAndEmpty(t *testing.T) {
	ds, err := DecodeCSV([]byte("a,b\n"))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ds.Len() != 0 || len(ds.Columns) != 2 {
		t.Fatalf("unexpected dataset %+v", ds)
	}

	ds, err = DecodeCSV(nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if ds.Len() != 0 || ds.Rows == nil {
		t.Fatalf("empty input should give an empty non-nil row list, got %+v", ds)
	}
}

func TestDecodeCSVRejectsRaggedRowsAndDuplicateHeader(t *testing.T) {
	if _, err := DecodeCSV([]byte("a,b\n1\n")); err == nil {
		t.Fatal("expected error for a short row")
	}
	if _, err := DecodeCSV([]byte("a,a\n1,2\n")); err == nil {
		t.Fatal("expected error for duplicate column")
	}
}

func TestDecodeJSON(t *testing.T) {
	ds, err := NewDecoder().Decode("json", []byte(`[{"z": 1, "a": "x", "flag": true}, {"z": null, "a": "y"}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(ds.Columns, ",") != "z,a,flag" {
		t.Fatalf("header should keep key order, got %v", ds.Columns)
	}
	if ds.Rows[0]["z"] != 1.0 || ds.Rows[0]["flag"] != true {
		t.Fatalf("unexpected first row %v", ds.Rows[0])
	}
	if ds.Rows[1]["z"] != nil {
		t.Fatalf("expected nil cell, got %v", ds.Rows[1]["z"])
	}
}

func TestDecodeJSONHeaderCoversLaterRows(t *testing.T) {
	ds, err := DecodeJSON([]byte(`[{"id": 1}, {"id": 2, "amount": 5}, {"note": "x", "id": 3}]`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(ds.Columns, ",") != "id,amount,note" {
		t.Fatalf("header should union keys in first-seen order, got %v", ds.Columns)
	}
	if !ds.HasColumn("amount") {
		t.Fatal("amount should be a dataset column")
	}
	if _, ok := ds.Rows[0]["amount"]; ok {
		t.Fatalf("first row should not gain a cell, got %v", ds.Rows[0])
	}
}

func TestDecodeJSONRejectsNestedValues(t *testing.T) {
	if _, err := DecodeJSON([]byte(`[{"a": {"b": 1}}]`)); err == nil {
		t.Fatal("expected error for nested object")
	}
	if _, err := DecodeJSON([]byte(`[1, 2]`)); err == nil {
		t.Fatal("expected error for non-object rows")
	}
	if _, err := DecodeJSON([]byte(`{"a": 1}`)); err == nil {
		t.Fatal("expected error for a non-array document")
	}
}

func TestDecodeUnsupportedFormat(t *testing.T) {
	_, err := NewDecoder().Decode("pkl", []byte("x"))
	if !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestDecodeMarksMalformedInput(t *testing.T) {
	_, err := NewDecoder().Decode("json", []byte(`[{"a": [1]}]`))
	if !errors.Is(err, domain.ErrInvalidDataset) {
		t.Fatalf("expected invalid dataset, got %v", err)
	}
}
