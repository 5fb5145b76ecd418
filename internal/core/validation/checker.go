package validation

import (
	"fmt"
	"slices"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

// CheckConstraints validates a constraint list against the schema without
// looking at any data. It returns one message per problem, in constraint
// order; an empty result means every constraint can be evaluated.
func CheckConstraints(schema *domain.Schema, constraints []domain.Constraint) []string {
	return messages(checkConstraints(schema, constraints))
}

// CheckSpecs decodes document constraints and checks them. Specs that cannot
// be decoded are reported and left out of the returned list.
func CheckSpecs(schema *domain.Schema, specs []domain.ConstraintSpec) ([]domain.Constraint, []string) {
	var errs []*domain.ConstraintError
	constraints := make([]domain.Constraint, 0, len(specs))
	indexes := make([]int, 0, len(specs))
	for i, spec := range specs {
		c, err := domain.DecodeConstraint(i, spec)
		if err != nil {
			errs = append(errs, asConstraintError(i, spec.Class, err))
			continue
		}
		constraints = append(constraints, c)
		indexes = append(indexes, i)
	}
	for j, c := range constraints {
		errs = append(errs, checkConstraint(indexes[j], schema, c)...)
	}
	sortByIndex(errs)
	return constraints, messages(errs)
}

// CheckPrimaryKey verifies that a declared primary key names an id column.
func CheckPrimaryKey(schema *domain.Schema, primaryKey string) []string {
	if primaryKey == "" {
		return nil
	}
	spec, err := schema.Get(primaryKey)
	if err != nil {
		return []string{fmt.Sprintf("primary key '%s' is not a column of the table", primaryKey)}
	}
	if spec.SDType != domain.SDTypeID {
		return []string{fmt.Sprintf("primary key '%s' must be an id column, got %s", primaryKey, spec.SDType)}
	}
	return nil
}

func checkConstraints(schema *domain.Schema, constraints []domain.Constraint) []*domain.ConstraintError {
	var errs []*domain.ConstraintError
	for i, c := range constraints {
		errs = append(errs, checkConstraint(i, schema, c)...)
	}
	return errs
}

// checkConstraint runs the structural, column, type, ordering and cardinality
// checks in that order and stops at the first step that fails.
func checkConstraint(index int, schema *domain.Schema, c domain.Constraint) []*domain.ConstraintError {
	if c == nil {
		return []*domain.ConstraintError{{Index: index, Kind: "unknown", Reason: "constraint is empty"}}
	}
	ck := checker{index: index, kind: c.Kind(), schema: schema}
	steps := []func(domain.Constraint) bool{
		ck.structure,
		ck.columns,
		ck.types,
		ck.ordering,
		ck.cardinality,
	}
	for _, step := range steps {
		if !step(c) {
			break
		}
	}
	return ck.errs
}

type checker struct {
	index  int
	kind   domain.Kind
	schema *domain.Schema
	errs   []*domain.ConstraintError
}

func (ck *checker) fail(format string, args ...any) bool {
	ck.errs = append(ck.errs, &domain.ConstraintError{Index: ck.index, Kind: string(ck.kind), Reason: fmt.Sprintf(format, args...)})
	return false
}

func (ck *checker) missing(param string) {
	ck.errs = append(ck.errs, domain.MissingParameter(ck.index, ck.kind, param))
}

func (ck *checker) require(param string, present bool) {
	if !present {
		ck.missing(param)
	}
}

func (ck *checker) structure(c domain.Constraint) bool {
	before := len(ck.errs)
	switch v := c.(type) {
	case domain.ScalarRange:
		ck.require("column_name", v.Column != "")
		ck.require("low_value", v.Low != nil)
		ck.require("high_value", v.High != nil)
	case domain.Between:
		ck.require("column_name", v.Column != "")
		ck.require("low_value", v.Low != nil)
		ck.require("high_value", v.High != nil)
	case domain.Positive:
		ck.require("column_name", v.Column != "")
	case domain.Negative:
		ck.require("column_name", v.Column != "")
	case domain.Inequality:
		ck.require("low_column_name", v.LowColumn != "")
		ck.require("high_column_name", v.HighColumn != "")
	case domain.Range:
		ck.require("low_column_name", v.LowColumn != "")
		ck.require("middle_column_name", v.MidColumn != "")
		ck.require("high_column_name", v.HighColumn != "")
	case domain.ScalarInequality:
		ck.require("column_name", v.Column != "")
		ck.require("relation", v.Relation != "")
		ck.require("value", v.Value != nil)
		if v.Relation != "" && !v.Relation.Valid() {
			ck.fail("relation must be one of >, >=, <, <=; got %q", v.Relation)
		}
	case domain.OneHotEncoding:
		ck.require("column_names", v.ColumnNames != nil)
		ck.noBlankNames(v.ColumnNames)
	case domain.FixedIncrements:
		ck.require("column_name", v.Column != "")
		ck.require("increment", v.Increment != nil)
	case domain.FixedCombinations:
		ck.require("column_names", v.ColumnNames != nil)
		ck.noBlankNames(v.ColumnNames)
	default:
		ck.fail("unsupported constraint kind %q", c.Kind())
	}
	return len(ck.errs) == before
}

func (ck *checker) noBlankNames(names []string) {
	for _, n := range names {
		if n == "" {
			ck.fail("column_names must not contain empty names")
			return
		}
	}
}

func (ck *checker) columns(c domain.Constraint) bool {
	ok := true
	for _, col := range c.Columns() {
		if !ck.schema.Has(col) {
			ck.fail("column '%s' not found", col)
			ok = false
		}
	}
	return ok
}

func (ck *checker) spec(column string) domain.ColumnSpec {
	spec, _ := ck.schema.Get(column)
	return spec
}

func (ck *checker) types(c domain.Constraint) bool {
	switch v := c.(type) {
	case domain.ScalarRange:
		return ck.boundTypes(v.Column, v.Low, v.High)
	case domain.Between:
		return ck.boundTypes(v.Column, v.Low, v.High)
	case domain.Positive:
		return ck.numericColumn(v.Column)
	case domain.Negative:
		return ck.numericColumn(v.Column)
	case domain.FixedIncrements:
		if !ck.numericColumn(v.Column) {
			return false
		}
		inc, err := ParseNumericLiteral(v.Increment)
		if err != nil || !domain.IsWholeNumber(inc) || inc <= 0 {
			return ck.fail("increment must be a positive integer, got %v", v.Increment)
		}
	case domain.Inequality:
		return ck.sameFamily(v.LowColumn, v.HighColumn)
	case domain.Range:
		return ck.sameFamily(v.LowColumn, v.MidColumn, v.HighColumn)
	case domain.ScalarInequality:
		spec := ck.spec(v.Column)
		if spec.SDType != domain.SDTypeDatetime && !spec.SDType.IsNumeric() {
			return ck.fail("column '%s' must be numerical, id or datetime, got %s", v.Column, spec.SDType)
		}
		if _, err := ParserFor(spec).ParseLiteral(v.Value); err != nil {
			if spec.SDType == domain.SDTypeDatetime {
				return ck.fail("value must be in format '%s' for column '%s'", spec.Format(), v.Column)
			}
			return ck.fail("value must be numeric for column '%s', got %v", v.Column, v.Value)
		}
	case domain.FixedCombinations:
		for i, tuple := range v.Allowed {
			if len(tuple) != len(v.ColumnNames) {
				return ck.fail("allowed combination #%d has %d values, want %d", i+1, len(tuple), len(v.ColumnNames))
			}
		}
	}
	return true
}

// boundTypes parses low/high literals under the column type.
func (ck *checker) boundTypes(column string, low, high any) bool {
	spec := ck.spec(column)
	switch {
	case spec.SDType == domain.SDTypeDatetime:
		_, lowErr := ParseDatetime(low, spec.Format())
		_, highErr := ParseDatetime(high, spec.Format())
		if lowErr != nil || highErr != nil {
			return ck.fail("'low_value' and 'high_value' must be in format '%s' for column '%s'", spec.Format(), column)
		}
	case spec.SDType.IsNumeric():
		if !numericLiteral(low) || !numericLiteral(high) {
			return ck.fail("'low_value' and 'high_value' must be numeric for column '%s'", column)
		}
	default:
		return ck.fail("column '%s' must be numerical, id or datetime, got %s", column, spec.SDType)
	}
	return true
}

func numericLiteral(raw any) bool {
	_, err := ParseNumericLiteral(raw)
	return err == nil
}

func (ck *checker) numericColumn(column string) bool {
	spec := ck.spec(column)
	if !spec.SDType.IsNumeric() {
		return ck.fail("column '%s' must be numerical, got %s", column, spec.SDType)
	}
	return true
}

func (ck *checker) sameFamily(columns ...string) bool {
	temporal, numeric := 0, 0
	for _, col := range columns {
		spec := ck.spec(col)
		switch {
		case spec.SDType == domain.SDTypeDatetime:
			temporal++
		case spec.SDType.IsNumeric():
			numeric++
		default:
			return ck.fail("column '%s' must be numerical or datetime, got %s", col, spec.SDType)
		}
	}
	if temporal > 0 && numeric > 0 {
		return ck.fail("columns %v mix datetime and numerical types", columns)
	}
	return true
}

func (ck *checker) ordering(c domain.Constraint) bool {
	var column string
	var low, high any
	switch v := c.(type) {
	case domain.ScalarRange:
		column, low, high = v.Column, v.Low, v.High
	case domain.Between:
		column, low, high = v.Column, v.Low, v.High
	default:
		return true
	}
	spec := ck.spec(column)
	parser := ParserFor(spec)
	lo, err := parser.ParseLiteral(low)
	if err != nil {
		return ck.fail("invalid low_value for column '%s': %v", column, err)
	}
	hi, err := parser.ParseLiteral(high)
	if err != nil {
		return ck.fail("invalid high_value for column '%s': %v", column, err)
	}
	if lo.Compare(hi) >= 0 {
		if parser.Temporal() {
			return ck.fail("low value must be earlier than high value for column '%s'", column)
		}
		return ck.fail("low value must be less than high value for column '%s'", column)
	}
	return true
}

func (ck *checker) cardinality(c domain.Constraint) bool {
	var names []string
	switch v := c.(type) {
	case domain.OneHotEncoding:
		names = v.ColumnNames
	case domain.FixedCombinations:
		names = v.ColumnNames
	default:
		return true
	}
	if len(names) < 2 {
		return ck.fail("requires at least 2 columns, got %d", len(names))
	}
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, dup := seen[n]; dup {
			return ck.fail("column '%s' is listed more than once", n)
		}
		seen[n] = struct{}{}
	}
	return true
}

func asConstraintError(index int, class string, err error) *domain.ConstraintError {
	if ce, ok := err.(*domain.ConstraintError); ok {
		return ce
	}
	return &domain.ConstraintError{Index: index, Kind: class, Reason: err.Error()}
}

// sortByIndex keeps the per-constraint order of messages.
func sortByIndex(errs []*domain.ConstraintError) {
	slices.SortStableFunc(errs, func(a, b *domain.ConstraintError) int {
		return a.Index - b.Index
	})
}

func messages(errs []*domain.ConstraintError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Error())
	}
	return out
}
