package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Kind names a constraint variant. The string value is the constraint_class
// used in metadata documents.
type Kind string

const (
	KindScalarRange       Kind = "ScalarRange"
	KindBetween           Kind = "Between"
	KindPositive          Kind = "Positive"
	KindNegative          Kind = "Negative"
	KindInequality        Kind = "Inequality"
	KindRange             Kind = "Range"
	KindScalarInequality  Kind = "ScalarInequality"
	KindOneHotEncoding    Kind = "OneHotEncoding"
	KindFixedIncrements   Kind = "FixedIncrements"
	KindFixedCombinations Kind = "FixedCombinations"

	// legacy name still found in saved documents
	kindUniqueCombinations Kind = "UniqueCombinations"
)

// Kinds lists every supported constraint kind.
var Kinds = []Kind{
	KindScalarRange, KindBetween, KindPositive, KindNegative, KindInequality,
	KindRange, KindScalarInequality, KindOneHotEncoding, KindFixedIncrements,
	KindFixedCombinations,
}

// Relation is the comparison operator of a ScalarInequality.
type Relation string

const (
	RelationGreater      Relation = ">"
	RelationGreaterEqual Relation = ">="
	RelationLess         Relation = "<"
	RelationLessEqual    Relation = "<="
)

func (r Relation) Valid() bool {
	switch r {
	case RelationGreater, RelationGreaterEqual, RelationLess, RelationLessEqual:
		return true
	}
	return false
}

// Holds reports whether cmp (the sign of value compared with the literal)
// satisfies the relation.
func (r Relation) Holds(cmp int) bool {
	switch r {
	case RelationGreater:
		return cmp > 0
	case RelationGreaterEqual:
		return cmp >= 0
	case RelationLess:
		return cmp < 0
	case RelationLessEqual:
		return cmp <= 0
	}
	return false
}

// Constraint is a closed sum type: only the variants in this file implement it.
type Constraint interface {
	Kind() Kind
	// Columns returns the referenced columns in parameter order.
	Columns() []string
	constraint()
}

// Literal values (bounds, comparison values) keep the raw JSON scalar: a
// string, float64, bool or nil when the parameter was absent.

type ScalarRange struct {
	Column string
	Low    any
	High   any
	Strict bool
}

type Between struct {
	Column string
	Low    any
	High   any
}

type Positive struct {
	Column string
	Strict bool
}

type Negative struct {
	Column string
	Strict bool
}

type Inequality struct {
	LowColumn  string
	HighColumn string
}

type Range struct {
	LowColumn  string
	MidColumn  string
	HighColumn string
}

type ScalarInequality struct {
	Column   string
	Relation Relation
	Value    any
}

type OneHotEncoding struct {
	ColumnNames []string
}

type FixedIncrements struct {
	Column    string
	Increment any
}

// FixedCombinations with a nil Allowed list accepts every combination that
// occurs in the dataset being checked.
type FixedCombinations struct {
	ColumnNames []string
	Allowed     [][]any
}

func (ScalarRange) Kind() Kind       { return KindScalarRange }
func (Between) Kind() Kind           { return KindBetween }
func (Positive) Kind() Kind          { return KindPositive }
func (Negative) Kind() Kind          { return KindNegative }
func (Inequality) Kind() Kind        { return KindInequality }
func (Range) Kind() Kind             { return KindRange }
func (ScalarInequality) Kind() Kind  { return KindScalarInequality }
func (OneHotEncoding) Kind() Kind    { return KindOneHotEncoding }
func (FixedIncrements) Kind() Kind   { return KindFixedIncrements }
func (FixedCombinations) Kind() Kind { return KindFixedCombinations }

func (c ScalarRange) Columns() []string      { return nonEmpty(c.Column) }
func (c Between) Columns() []string          { return nonEmpty(c.Column) }
func (c Positive) Columns() []string         { return nonEmpty(c.Column) }
func (c Negative) Columns() []string         { return nonEmpty(c.Column) }
func (c Inequality) Columns() []string       { return nonEmpty(c.LowColumn, c.HighColumn) }
func (c Range) Columns() []string            { return nonEmpty(c.LowColumn, c.MidColumn, c.HighColumn) }
func (c ScalarInequality) Columns() []string { return nonEmpty(c.Column) }
func (c OneHotEncoding) Columns() []string   { return nonEmpty(c.ColumnNames...) }
func (c FixedIncrements) Columns() []string  { return nonEmpty(c.Column) }
func (c FixedCombinations) Columns() []string {
	return nonEmpty(c.ColumnNames...)
}

func (ScalarRange) constraint()       {}
func (Between) constraint()           {}
func (Positive) constraint()          {}
func (Negative) constraint()          {}
func (Inequality) constraint()        {}
func (Range) constraint()             {}
func (ScalarInequality) constraint()  {}
func (OneHotEncoding) constraint()    {}
func (FixedIncrements) constraint()   {}
func (FixedCombinations) constraint() {}

func nonEmpty(names ...string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// ConstraintSpec is the document form of a constraint.
type ConstraintSpec struct {
	Class      string         `json:"constraint_class"`
	TableName  string         `json:"table_name,omitempty"`
	Parameters map[string]any `json:"constraint_parameters"`
}

// ConstraintError describes a malformed constraint definition. It is a normal,
// reportable outcome of checking a constraint set.
type ConstraintError struct {
	Index  int
	Kind   string
	Param  string
	Reason string
}

func (e *ConstraintError) Error() string {
	prefix := fmt.Sprintf("constraint #%d (%s)", e.Index+1, e.Kind)
	if e.Param != "" {
		return fmt.Sprintf("%s: parameter '%s' %s", prefix, e.Param, e.Reason)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Reason)
}

// MissingParameter builds the error for an absent required parameter.
func MissingParameter(index int, kind Kind, param string) *ConstraintError {
	return &ConstraintError{Index: index, Kind: string(kind), Param: param, Reason: "is required"}
}

// DecodeConstraint turns a document constraint into its typed variant. Absent
// parameters are left as zero values so the constraint set validator can
// report them; a parameter of the wrong JSON type is an error.
func DecodeConstraint(index int, spec ConstraintSpec) (Constraint, error) {
	p := paramReader{index: index, kind: spec.Class, params: spec.Parameters}
	var c Constraint
	switch Kind(spec.Class) {
	case KindScalarRange:
		c = ScalarRange{
			Column: p.str("column_name"),
			Low:    p.scalar("low_value"),
			High:   p.scalar("high_value"),
			Strict: p.boolean("strict_boundaries"),
		}
	case KindBetween:
		c = Between{
			Column: p.str("column_name"),
			Low:    p.scalar("low_value"),
			High:   p.scalar("high_value"),
		}
	case KindPositive:
		c = Positive{Column: p.str("column_name"), Strict: p.boolean("strict")}
	case KindNegative:
		c = Negative{Column: p.str("column_name"), Strict: p.boolean("strict")}
	case KindInequality:
		c = Inequality{
			LowColumn:  p.str("low_column_name"),
			HighColumn: p.str("high_column_name"),
		}
	case KindRange:
		c = Range{
			LowColumn:  p.str("low_column_name"),
			MidColumn:  p.str("middle_column_name"),
			HighColumn: p.str("high_column_name"),
		}
	case KindScalarInequality:
		c = ScalarInequality{
			Column:   p.str("column_name"),
			Relation: Relation(p.str("relation")),
			Value:    p.scalar("value"),
		}
	case KindOneHotEncoding:
		c = OneHotEncoding{ColumnNames: p.strList("column_names")}
	case KindFixedIncrements:
		inc := p.scalar("increment")
		if inc == nil {
			inc = p.scalar("increment_value")
		}
		c = FixedIncrements{Column: p.str("column_name"), Increment: inc}
	case KindFixedCombinations, kindUniqueCombinations:
		c = FixedCombinations{
			ColumnNames: p.strList("column_names"),
			Allowed:     p.tuples("allowed_combinations"),
		}
	default:
		return nil, &ConstraintError{Index: index, Kind: spec.Class, Reason: fmt.Sprintf("unknown constraint class %q", spec.Class)}
	}
	if p.err != nil {
		return nil, p.err
	}
	return c, nil
}

// EncodeConstraint renders a typed constraint back into document form.
func EncodeConstraint(c Constraint) ConstraintSpec {
	params := map[string]any{}
	switch v := c.(type) {
	case ScalarRange:
		params["column_name"] = v.Column
		params["low_value"] = v.Low
		params["high_value"] = v.High
		params["strict_boundaries"] = v.Strict
	case Between:
		params["column_name"] = v.Column
		params["low_value"] = v.Low
		params["high_value"] = v.High
	case Positive:
		params["column_name"] = v.Column
		params["strict"] = v.Strict
	case Negative:
		params["column_name"] = v.Column
		params["strict"] = v.Strict
	case Inequality:
		params["low_column_name"] = v.LowColumn
		params["high_column_name"] = v.HighColumn
	case Range:
		params["low_column_name"] = v.LowColumn
		params["middle_column_name"] = v.MidColumn
		params["high_column_name"] = v.HighColumn
	case ScalarInequality:
		params["column_name"] = v.Column
		params["relation"] = string(v.Relation)
		params["value"] = v.Value
	case OneHotEncoding:
		params["column_names"] = v.ColumnNames
	case FixedIncrements:
		params["column_name"] = v.Column
		params["increment"] = v.Increment
	case FixedCombinations:
		params["column_names"] = v.ColumnNames
		if v.Allowed != nil {
			params["allowed_combinations"] = v.Allowed
		}
	}
	return ConstraintSpec{Class: string(c.Kind()), Parameters: params}
}

// paramReader collects the first type error while reading parameters.
type paramReader struct {
	index  int
	kind   string
	params map[string]any
	err    error
}

func (p *paramReader) fail(name, reason string) {
	if p.err == nil {
		p.err = &ConstraintError{Index: p.index, Kind: p.kind, Param: name, Reason: reason}
	}
}

func (p *paramReader) str(name string) string {
	v, ok := p.params[name]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		p.fail(name, "must be a string")
		return ""
	}
	return s
}

func (p *paramReader) boolean(name string) bool {
	v, ok := p.params[name]
	if !ok || v == nil {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		p.fail(name, "must be a boolean")
		return false
	}
	return b
}

func (p *paramReader) scalar(name string) any {
	v, ok := p.params[name]
	if !ok {
		return nil
	}
	switch s := v.(type) {
	case nil, string, bool, float64:
		return v
	case json.Number:
		f, err := s.Float64()
		if err != nil {
			p.fail(name, "must be a number or string")
			return nil
		}
		return f
	case int:
		return float64(s)
	case int64:
		return float64(s)
	default:
		p.fail(name, "must be a number or string")
		return nil
	}
}

func (p *paramReader) strList(name string) []string {
	v, ok := p.params[name]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				p.fail(name, "must be a list of column names")
				return nil
			}
			out = append(out, s)
		}
		return out
	default:
		p.fail(name, "must be a list of column names")
		return nil
	}
}

func (p *paramReader) tuples(name string) [][]any {
	v, ok := p.params[name]
	if !ok || v == nil {
		return nil
	}
	switch list := v.(type) {
	case [][]any:
		return list
	case []any:
		out := make([][]any, 0, len(list))
		for _, item := range list {
			tuple, ok := item.([]any)
			if !ok {
				p.fail(name, "must be a list of value lists")
				return nil
			}
			out = append(out, tuple)
		}
		return out
	default:
		p.fail(name, "must be a list of value lists")
		return nil
	}
}

// IsWholeNumber reports whether f has no fractional part.
func IsWholeNumber(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0) && f == math.Trunc(f)
}
