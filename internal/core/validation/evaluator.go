package validation

import (
	"fmt"
	"math"
	"strings"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

// predicate reports whether a row violates a constraint.
type predicate func(row domain.Row) bool

// Evaluate finds the rows of ds that violate c. The constraint must already
// have passed CheckConstraints for the schema; cells that cannot be parsed
// count as violations. The returned report has ConstraintIndex zero; the
// orchestrator sets it.
func Evaluate(schema *domain.Schema, c domain.Constraint, ds domain.Dataset) (domain.ViolationReport, error) {
	if c == nil {
		return domain.ViolationReport{}, fmt.Errorf("evaluate: nil constraint")
	}
	columns := c.Columns()
	specs := make(map[string]domain.ColumnSpec, len(columns))
	for _, col := range columns {
		spec, err := schema.Get(col)
		if err != nil {
			return domain.ViolationReport{}, fmt.Errorf("evaluate %s: %w", c.Kind(), err)
		}
		specs[col] = spec
	}

	violates, message, err := build(c, specs, ds)
	if err != nil {
		return domain.ViolationReport{}, fmt.Errorf("evaluate %s: %w", c.Kind(), err)
	}

	report := domain.ViolationReport{
		ConstraintKind: c.Kind(),
		Columns:        columns,
		Message:        message,
		Rows:           []int{},
		SampleValues:   []map[string]any{},
	}
	for i, row := range ds.Rows {
		if !violates(row) {
			continue
		}
		report.Rows = append(report.Rows, i)
		sample := make(map[string]any, len(columns))
		for _, col := range columns {
			sample[col] = row[col]
		}
		report.SampleValues = append(report.SampleValues, sample)
	}
	return report, nil
}

func build(c domain.Constraint, specs map[string]domain.ColumnSpec, ds domain.Dataset) (predicate, string, error) {
	switch v := c.(type) {
	case domain.ScalarRange:
		return boundsPredicate(v.Kind(), v.Column, specs[v.Column], v.Low, v.High, v.Strict)
	case domain.Between:
		return boundsPredicate(v.Kind(), v.Column, specs[v.Column], v.Low, v.High, false)
	case domain.Positive:
		msg := fmt.Sprintf("Positive constraint violated: '%s' should be %s 0", v.Column, comparison(">", v.Strict))
		return signPredicate(v.Column, 1, v.Strict), msg, nil
	case domain.Negative:
		msg := fmt.Sprintf("Negative constraint violated: '%s' should be %s 0", v.Column, comparison("<", v.Strict))
		return signPredicate(v.Column, -1, v.Strict), msg, nil
	case domain.Inequality:
		low, high := ParserFor(specs[v.LowColumn]), ParserFor(specs[v.HighColumn])
		msg := fmt.Sprintf("Inequality constraint violated: '%s' should be less than '%s'", v.LowColumn, v.HighColumn)
		return func(row domain.Row) bool {
			return !ascending(row, cell{v.LowColumn, low}, cell{v.HighColumn, high})
		}, msg, nil
	case domain.Range:
		low, mid, high := ParserFor(specs[v.LowColumn]), ParserFor(specs[v.MidColumn]), ParserFor(specs[v.HighColumn])
		msg := fmt.Sprintf("Range constraint violated: '%s' should be between '%s' and '%s'", v.MidColumn, v.LowColumn, v.HighColumn)
		return func(row domain.Row) bool {
			return !ascending(row, cell{v.LowColumn, low}, cell{v.MidColumn, mid}, cell{v.HighColumn, high})
		}, msg, nil
	case domain.ScalarInequality:
		return inequalityPredicate(v, specs[v.Column])
	case domain.OneHotEncoding:
		msg := fmt.Sprintf("OneHotEncoding constraint violated: exactly one of [%s] should be 1", strings.Join(v.ColumnNames, ", "))
		return oneHotPredicate(v.ColumnNames), msg, nil
	case domain.FixedIncrements:
		return incrementPredicate(v)
	case domain.FixedCombinations:
		return combinationPredicate(v, specs, ds)
	default:
		return nil, "", fmt.Errorf("unsupported constraint kind %q", c.Kind())
	}
}

func comparison(op string, strict bool) string {
	word := "greater than"
	if op == "<" {
		word = "less than"
	}
	if strict {
		return word
	}
	return word + " or equal to"
}

func boundsPredicate(kind domain.Kind, column string, spec domain.ColumnSpec, lowRaw, highRaw any, strict bool) (predicate, string, error) {
	parser := ParserFor(spec)
	low, err := parser.ParseLiteral(lowRaw)
	if err != nil {
		return nil, "", fmt.Errorf("low_value: %w", err)
	}
	high, err := parser.ParseLiteral(highRaw)
	if err != nil {
		return nil, "", fmt.Errorf("high_value: %w", err)
	}
	between := "between"
	if strict {
		between = "strictly between"
	}
	msg := fmt.Sprintf("%s constraint violated: '%s' should be %s %v and %v", kind, column, between, lowRaw, highRaw)
	return func(row domain.Row) bool {
		v, err := parser.Parse(row[column])
		if err != nil {
			return true
		}
		if strict {
			return v.Compare(low) <= 0 || v.Compare(high) >= 0
		}
		return v.Compare(low) < 0 || v.Compare(high) > 0
	}, msg, nil
}

// signPredicate checks Positive (sign 1) and Negative (sign -1). Zero only
// passes in non-strict mode.
func signPredicate(column string, sign float64, strict bool) predicate {
	return func(row domain.Row) bool {
		f, err := ParseNumber(row[column])
		if err != nil {
			return true
		}
		f *= sign
		if strict {
			return f <= 0
		}
		return f < 0
	}
}

type cell struct {
	column string
	parser Parser
}

// ascending reports whether the row's cells are strictly increasing.
func ascending(row domain.Row, cells ...cell) bool {
	var prev Value
	for i, c := range cells {
		v, err := c.parser.Parse(row[c.column])
		if err != nil {
			return false
		}
		if i > 0 && (!prev.SameFamily(v) || prev.Compare(v) >= 0) {
			return false
		}
		prev = v
	}
	return true
}

func inequalityPredicate(c domain.ScalarInequality, spec domain.ColumnSpec) (predicate, string, error) {
	parser := ParserFor(spec)
	literal, err := parser.ParseLiteral(c.Value)
	if err != nil {
		return nil, "", fmt.Errorf("value: %w", err)
	}
	if spec.IsIntegral() {
		literal = NumberValue(math.Trunc(literal.Float()))
	}
	if !c.Relation.Valid() {
		return nil, "", fmt.Errorf("unsupported relation %q", c.Relation)
	}
	msg := fmt.Sprintf("ScalarInequality constraint violated: '%s' should be %s %v", c.Column, c.Relation, c.Value)
	return func(row domain.Row) bool {
		v, err := parser.Parse(row[c.Column])
		if err != nil {
			return true
		}
		return !c.Relation.Holds(v.Compare(literal))
	}, msg, nil
}

func oneHotPredicate(columns []string) predicate {
	return func(row domain.Row) bool {
		sum := 0.0
		for _, col := range columns {
			f, err := ParseNumber(row[col])
			if err != nil {
				return true
			}
			sum += f
		}
		return sum != 1
	}
}

func incrementPredicate(c domain.FixedIncrements) (predicate, string, error) {
	inc, err := ParseNumericLiteral(c.Increment)
	if err != nil {
		return nil, "", fmt.Errorf("increment: %w", err)
	}
	if inc <= 0 {
		return nil, "", fmt.Errorf("increment must be positive, got %v", c.Increment)
	}
	msg := fmt.Sprintf("FixedIncrements constraint violated: '%s' should be a multiple of %v", c.Column, c.Increment)
	return func(row domain.Row) bool {
		f, err := ParseNumber(row[c.Column])
		if err != nil || math.IsInf(f, 0) {
			return true
		}
		return math.Mod(f, inc) != 0
	}, msg, nil
}

func combinationPredicate(c domain.FixedCombinations, specs map[string]domain.ColumnSpec, ds domain.Dataset) (predicate, string, error) {
	key := func(values func(i int, col string) any) string {
		var b strings.Builder
		for i, col := range c.ColumnNames {
			if i > 0 {
				b.WriteByte('\x1f')
			}
			b.WriteString(canonical(specs[col], values(i, col)))
		}
		return b.String()
	}

	allowed := make(map[string]struct{})
	if c.Allowed == nil {
		for _, row := range ds.Rows {
			allowed[key(func(_ int, col string) any { return row[col] })] = struct{}{}
		}
	} else {
		for n, tuple := range c.Allowed {
			if len(tuple) != len(c.ColumnNames) {
				return nil, "", fmt.Errorf("allowed combination #%d has %d values, want %d", n+1, len(tuple), len(c.ColumnNames))
			}
			allowed[key(func(i int, _ string) any { return tuple[i] })] = struct{}{}
		}
	}

	msg := fmt.Sprintf("FixedCombinations constraint violated: values of [%s] should be one of the allowed combinations", strings.Join(c.ColumnNames, ", "))
	return func(row domain.Row) bool {
		_, ok := allowed[key(func(_ int, col string) any { return row[col] })]
		return !ok
	}, msg, nil
}
