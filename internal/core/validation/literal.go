// Package validation checks tabular datasets against declared column types and
// constraint sets. Every function in this package is pure: inputs are never
// mutated and no state is shared between calls.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

// ParseError reports a raw value that cannot be read under a column type.
type ParseError struct {
	Value  any
	Want   string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot parse %v as %s: %s", e.Value, e.Want, e.Reason)
	}
	return fmt.Sprintf("cannot parse %v as %s", e.Value, e.Want)
}

// Value is a parsed scalar: a number or an instant.
type Value struct {
	num      float64
	at       time.Time
	temporal bool
}

func NumberValue(f float64) Value { return Value{num: f} }
func TimeValue(t time.Time) Value { return Value{at: t, temporal: true} }

func (v Value) Temporal() bool  { return v.temporal }
func (v Value) Float() float64  { return v.num }
func (v Value) Time() time.Time { return v.at }

func (v Value) SameFamily(o Value) bool {
	return v.temporal == o.temporal
}

// Compare returns -1, 0 or +1. Values of different families must not be
// compared; callers check SameFamily first.
func (v Value) Compare(o Value) int {
	if v.temporal {
		return v.at.Compare(o.at)
	}
	switch {
	case v.num < o.num:
		return -1
	case v.num > o.num:
		return 1
	}
	return 0
}

// Parser reads raw cells and literals under one column's declared type. The
// constraint set validator and the row evaluator share it so they agree on
// what is parseable.
type Parser struct {
	spec domain.ColumnSpec
}

func ParserFor(spec domain.ColumnSpec) Parser {
	return Parser{spec: spec}
}

// Temporal reports whether the column compares chronologically.
func (p Parser) Temporal() bool {
	return p.spec.SDType == domain.SDTypeDatetime
}

func (p Parser) Parse(raw any) (Value, error) {
	if p.Temporal() {
		t, err := ParseDatetime(raw, p.spec.Format())
		if err != nil {
			return Value{}, err
		}
		return TimeValue(t), nil
	}
	f, err := ParseNumber(raw)
	if err != nil {
		return Value{}, err
	}
	return NumberValue(f), nil
}

// ParseLiteral reads a constraint parameter rather than a cell. Datetime
// columns take the same text form as their cells; numeric columns take only
// finite JSON numbers.
func (p Parser) ParseLiteral(raw any) (Value, error) {
	if p.Temporal() {
		return p.Parse(raw)
	}
	f, err := ParseNumericLiteral(raw)
	if err != nil {
		return Value{}, err
	}
	return NumberValue(f), nil
}

// ParseNumericLiteral accepts a finite number given as a number. Text and
// booleans are rejected even when they would coerce.
func ParseNumericLiteral(raw any) (float64, error) {
	switch raw.(type) {
	case string:
		return 0, &ParseError{Value: raw, Want: "number", Reason: "text literal"}
	case bool:
		return 0, &ParseError{Value: raw, Want: "number", Reason: "boolean literal"}
	}
	f, err := ParseNumber(raw)
	if err != nil {
		return 0, err
	}
	if math.IsInf(f, 0) {
		return 0, &ParseError{Value: raw, Want: "number", Reason: "not finite"}
	}
	return f, nil
}

// ParseNumber coerces a cell to float64. Missing values and NaN are errors.
func ParseNumber(raw any) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case nil:
		return 0, &ParseError{Value: raw, Want: "number", Reason: "missing value"}
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, &ParseError{Value: raw, Want: "number"}
		}
		f = parsed
	case bool:
		if v {
			f = 1
		}
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0, &ParseError{Value: raw, Want: "number", Reason: "missing value"}
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, &ParseError{Value: raw, Want: "number"}
		}
		f = parsed
	default:
		return 0, &ParseError{Value: raw, Want: "number", Reason: fmt.Sprintf("unsupported type %T", raw)}
	}
	if math.IsNaN(f) {
		return 0, &ParseError{Value: raw, Want: "number", Reason: "NaN"}
	}
	return f, nil
}

// ParseDatetime parses a cell with a strftime format such as "%Y-%m-%d".
func ParseDatetime(raw any, format string) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return time.Time{}, &ParseError{Value: raw, Want: "datetime " + format, Reason: "missing value"}
		}
		t, err := strftime.Parse(format, s)
		if err != nil {
			return time.Time{}, &ParseError{Value: raw, Want: "datetime " + format, Reason: err.Error()}
		}
		return t, nil
	case nil:
		return time.Time{}, &ParseError{Value: raw, Want: "datetime " + format, Reason: "missing value"}
	default:
		return time.Time{}, &ParseError{Value: raw, Want: "datetime " + format, Reason: fmt.Sprintf("unsupported type %T", raw)}
	}
}

// ParseBoolean accepts JSON booleans and their common text forms.
func ParseBoolean(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
	}
	return false, &ParseError{Value: raw, Want: "boolean"}
}

// text renders a raw cell as the string a CSV writer would produce.
func text(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}

// canonical builds a comparison token for tuple membership. Numeric and
// boolean columns compare by numeric value, datetime columns by instant,
// everything else by text.
func canonical(spec domain.ColumnSpec, raw any) string {
	if raw == nil {
		return "\x00"
	}
	switch spec.SDType {
	case domain.SDTypeNumerical, domain.SDTypeID, domain.SDTypeBoolean:
		if b, err := ParseBoolean(raw); err == nil && spec.SDType == domain.SDTypeBoolean {
			if b {
				return "n:1"
			}
			return "n:0"
		}
		if f, err := ParseNumber(raw); err == nil {
			return "n:" + strconv.FormatFloat(f, 'g', -1, 64)
		}
	case domain.SDTypeDatetime:
		if t, err := ParseDatetime(raw, spec.Format()); err == nil {
			return "t:" + t.UTC().Format(time.RFC3339Nano)
		}
	}
	return "s:" + text(raw)
}
