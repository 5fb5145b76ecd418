package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

func salesSchema() *domain.Schema {
	return domain.NewSchema().
		Set("id", domain.ColumnSpec{SDType: domain.SDTypeID}).
		Set("amount", domain.ColumnSpec{SDType: domain.SDTypeNumerical, ComputerRepresentation: "Float"}).
		Set("qty", domain.ColumnSpec{SDType: domain.SDTypeNumerical, ComputerRepresentation: "Int64"}).
		Set("start", domain.ColumnSpec{SDType: domain.SDTypeNumerical}).
		Set("end", domain.ColumnSpec{SDType: domain.SDTypeNumerical}).
		Set("created", domain.ColumnSpec{SDType: domain.SDTypeDatetime, DatetimeFormat: "%Y-%m-%d"}).
		Set("region", domain.ColumnSpec{SDType: domain.SDTypeCategorical}).
		Set("a", domain.ColumnSpec{SDType: domain.SDTypeNumerical}).
		Set("b", domain.ColumnSpec{SDType: domain.SDTypeNumerical}).
		Set("c", domain.ColumnSpec{SDType: domain.SDTypeNumerical})
}

func TestCheckConstraintsAcceptsWellFormedSet(t *testing.T) {
	errs := CheckConstraints(salesSchema(), []domain.Constraint{
		domain.ScalarRange{Column: "amount", Low: 10.0, High: 100.0},
		domain.Between{Column: "created", Low: "2024-01-01", High: "2024-12-31"},
		domain.Positive{Column: "qty", Strict: true},
		domain.Negative{Column: "amount"},
		domain.Inequality{LowColumn: "start", HighColumn: "end"},
		domain.Range{LowColumn: "a", MidColumn: "b", HighColumn: "c"},
		domain.ScalarInequality{Column: "created", Relation: domain.RelationGreaterEqual, Value: "2020-01-01"},
		domain.OneHotEncoding{ColumnNames: []string{"a", "b", "c"}},
		domain.FixedIncrements{Column: "qty", Increment: 5.0},
		domain.FixedCombinations{ColumnNames: []string{"region", "qty"}},
	})
	require.Empty(t, errs)
}

func TestCheckConstraintsMissingParameters(t *testing.T) {
	errs := CheckConstraints(salesSchema(), []domain.Constraint{domain.ScalarRange{}})
	require.Equal(t, []string{
		"constraint #1 (ScalarRange): parameter 'column_name' is required",
		"constraint #1 (ScalarRange): parameter 'low_value' is required",
		"constraint #1 (ScalarRange): parameter 'high_value' is required",
	}, errs)
}

func TestCheckConstraintsInvertedBounds(t *testing.T) {
	errs := CheckConstraints(salesSchema(), []domain.Constraint{
		domain.ScalarRange{Column: "amount", Low: 100.0, High: 10.0},
	})
	require.Len(t, errs, 1)
	require.Contains(t, errs[0], "'amount'")
	require.Contains(t, errs[0], "less than")
}

func TestCheckConstraintsEqualBoundsRejectedEvenWhenStrict(t *testing.T) {
	for _, strict := range []bool{true, false} {
		errs := CheckConstraints(salesSchema(), []domain.Constraint{
			domain.ScalarRange{Column: "amount", Low: 10.0, High: 10.0, Strict: strict},
		})
		require.Len(t, errs, 1, "strict=%v", strict)
	}
}

func TestCheckConstraintsDatetimeBounds(t *testing.T) {
	errs := CheckConstraints(salesSchema(), []domain.Constraint{
		domain.Between{Column: "created", Low: "01/02/2024", High: "2024-12-31"},
		domain.Between{Column: "created", Low: "2024-12-31", High: "2024-01-01"},
	})
	require.Len(t, errs, 2)
	require.Contains(t, errs[0], "format '%Y-%m-%d'")
	require.Contains(t, errs[1], "earlier than")
}

func TestCheckConstraintsNumericBounds(t *testing.T) {
	errs := CheckConstraints(salesSchema(), []domain.Constraint{
		domain.ScalarRange{Column: "amount", Low: "ten", High: 100.0},
		domain.ScalarRange{Column: "amount", Low: true, High: 100.0},
		domain.ScalarRange{Column: "amount", Low: "10", High: "100"},
		domain.Between{Column: "id", Low: "1", High: 100.0},
	})
	require.Len(t, errs, 4)
	for i, msg := range errs {
		require.Contains(t, msg, fmt.Sprintf("constraint #%d", i+1))
		require.Contains(t, msg, "must be numeric")
	}
}

func TestCheckConstraintsRejectsNonFiniteLiterals(t *testing.T) {
	errs := CheckConstraints(salesSchema(), []domain.Constraint{
		domain.ScalarRange{Column: "amount", Low: math.Inf(-1), High: math.Inf(1)},
		domain.ScalarRange{Column: "amount", Low: "-inf", High: "inf"},
		domain.ScalarInequality{Column: "amount", Relation: domain.RelationLess, Value: math.Inf(1)},
		domain.FixedIncrements{Column: "qty", Increment: math.Inf(1)},
	})
	require.Len(t, errs, 4)
	require.Contains(t, errs[0], "must be numeric")
	require.Contains(t, errs[2], "value must be numeric")
	require.Contains(t, errs[3], "positive integer")
}

func TestCheckConstraintsScalarInequalityLiteralMatchesBounds(t *testing.T) {
	for _, value := range []any{true, "5"} {
		errs := CheckConstraints(salesSchema(), []domain.Constraint{
			domain.ScalarInequality{Column: "amount", Relation: domain.RelationGreater, Value: value},
		})
		require.Len(t, errs, 1, "value=%v", value)
		require.Contains(t, errs[0], "value must be numeric for column 'amount'")
	}
	require.Empty(t, CheckConstraints(salesSchema(), []domain.Constraint{
		domain.ScalarInequality{Column: "amount", Relation: domain.RelationGreater, Value: json.Number("5")},
	}))
}

func TestCheckConstraintsUnknownColumnStopsFurtherChecks(t *testing.T) {
	errs := CheckConstraints(salesSchema(), []domain.Constraint{
		domain.ScalarRange{Column: "nope", Low: 100.0, High: 1.0},
		domain.Inequality{LowColumn: "x", HighColumn: "y"},
	})
	require.Equal(t, []string{
		"constraint #1 (ScalarRange): column 'nope' not found",
		"constraint #2 (Inequality): column 'x' not found",
		"constraint #2 (Inequality): column 'y' not found",
	}, errs)
}

func TestCheckConstraintsTypeRules(t *testing.T) {
	cases := []struct {
		name string
		c    domain.Constraint
		want string
	}{
		{"range on categorical", domain.ScalarRange{Column: "region", Low: 1.0, High: 2.0}, "must be numerical, id or datetime"},
		{"positive on datetime", domain.Positive{Column: "created"}, "must be numerical"},
		{"mixed inequality", domain.Inequality{LowColumn: "created", HighColumn: "end"}, "mix datetime and numerical"},
		{"bad relation", domain.ScalarInequality{Column: "amount", Relation: "!=", Value: 1.0}, "relation must be one of"},
		{"unparseable value", domain.ScalarInequality{Column: "created", Relation: ">", Value: "soon"}, "format '%Y-%m-%d'"},
		{"fractional increment", domain.FixedIncrements{Column: "qty", Increment: 2.5}, "positive integer"},
		{"zero increment", domain.FixedIncrements{Column: "qty", Increment: 0.0}, "positive integer"},
		{"text increment", domain.FixedIncrements{Column: "qty", Increment: "5"}, "positive integer"},
		{"short tuple", domain.FixedCombinations{ColumnNames: []string{"region", "qty"}, Allowed: [][]any{{"EU"}}}, "has 1 values, want 2"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			errs := CheckConstraints(salesSchema(), []domain.Constraint{tc.c})
			require.Len(t, errs, 1)
			require.Contains(t, errs[0], tc.want)
		})
	}
}

func TestCheckConstraintsCardinality(t *testing.T) {
	errs := CheckConstraints(salesSchema(), []domain.Constraint{
		domain.OneHotEncoding{ColumnNames: []string{"a"}},
		domain.FixedCombinations{ColumnNames: []string{"a", "a"}},
		domain.OneHotEncoding{},
	})
	require.Len(t, errs, 3)
	require.Contains(t, errs[0], "at least 2 columns")
	require.Contains(t, errs[1], "more than once")
	require.Contains(t, errs[2], "'column_names' is required")
}

func TestCheckSpecsReportsDecodeErrorsInOrder(t *testing.T) {
	constraints, errs := CheckSpecs(salesSchema(), []domain.ConstraintSpec{
		{Class: "ScalarRange", Parameters: map[string]any{"column_name": "amount", "low_value": 100.0, "high_value": 1.0}},
		{Class: "Frobnicate", Parameters: map[string]any{}},
		{Class: "Positive", Parameters: map[string]any{"column_name": 7.0}},
		{Class: "UniqueCombinations", Parameters: map[string]any{"column_names": []any{"region", "qty"}}},
	})
	require.Len(t, constraints, 2)
	require.Equal(t, domain.KindFixedCombinations, constraints[1].Kind())
	require.Len(t, errs, 3)
	require.Contains(t, errs[0], "constraint #1 (ScalarRange)")
	require.Contains(t, errs[1], `unknown constraint class "Frobnicate"`)
	require.Equal(t, "constraint #3 (Positive): parameter 'column_name' must be a string", errs[2])
}

func TestCheckConstraintsOrdersMessagesByConstraint(t *testing.T) {
	// decode errors are collected before check errors
	_, errs := CheckSpecs(salesSchema(), []domain.ConstraintSpec{
		{Class: "Positive", Parameters: map[string]any{"column_name": "region"}},
		{Class: "Nope", Parameters: map[string]any{}},
		{Class: "Negative", Parameters: map[string]any{"column_name": "created"}},
		{Class: "Nope", Parameters: map[string]any{}},
	})
	require.Len(t, errs, 4)
	for i, msg := range errs {
		require.Contains(t, msg, fmt.Sprintf("constraint #%d ", i+1))
	}
}

func TestCheckPrimaryKey(t *testing.T) {
	s := salesSchema()
	require.Empty(t, CheckPrimaryKey(s, ""))
	require.Empty(t, CheckPrimaryKey(s, "id"))
	require.Len(t, CheckPrimaryKey(s, "amount"), 1)
	require.Len(t, CheckPrimaryKey(s, "missing"), 1)
}
