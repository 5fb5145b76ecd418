package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

// ColumnReport is the outcome of comparing a dataset against its schema.
type ColumnReport struct {
	// Missing lists schema columns absent from the dataset, in schema order.
	Missing []string
	// Warnings holds at most one type mismatch message per column.
	Warnings []string
}

// MissingMessage is the error text for a schema column absent from the data.
func MissingMessage(column string) string {
	return fmt.Sprintf("Column '%s' is missing in the dataset", column)
}

// CheckColumns verifies that every schema column is present in ds and that
// present columns hold values of their declared sdtype. Empty cells are not
// type mismatches.
func CheckColumns(schema *domain.Schema, ds domain.Dataset) ColumnReport {
	var report ColumnReport
	present := make(map[string]struct{})
	for _, col := range ds.ColumnSet() {
		present[col] = struct{}{}
	}
	for _, col := range schema.Columns() {
		if _, ok := present[col]; !ok {
			report.Missing = append(report.Missing, col)
			continue
		}
		spec, _ := schema.Get(col)
		if msg := typeMismatch(col, spec, ds); msg != "" {
			report.Warnings = append(report.Warnings, msg)
		}
	}
	return report
}

func typeMismatch(column string, spec domain.ColumnSpec, ds domain.Dataset) string {
	switch spec.SDType {
	case domain.SDTypeNumerical:
		fractional := false
		for _, row := range ds.Rows {
			raw := row[column]
			if blank(raw) {
				continue
			}
			f, err := ParseNumber(raw)
			if err != nil {
				return fmt.Sprintf("Column '%s' is declared numerical but contains non-numeric values", column)
			}
			if spec.IsIntegral() && !domain.IsWholeNumber(f) {
				fractional = true
			}
		}
		if fractional {
			return fmt.Sprintf("Column '%s' is declared %s but contains fractional values", column, spec.ComputerRepresentation)
		}
	case domain.SDTypeDatetime:
		for _, row := range ds.Rows {
			raw := row[column]
			if blank(raw) {
				continue
			}
			if _, err := ParseDatetime(raw, spec.Format()); err != nil {
				return fmt.Sprintf("Column '%s' contains values not matching the datetime format '%s'", column, spec.Format())
			}
		}
	case domain.SDTypeBoolean:
		for _, row := range ds.Rows {
			raw := row[column]
			if blank(raw) {
				continue
			}
			if _, err := ParseBoolean(raw); err != nil {
				return fmt.Sprintf("Column '%s' is declared boolean but contains non-boolean values", column)
			}
		}
	case domain.SDTypeID:
		re, err := regexp.Compile("^(?:" + spec.Regex() + ")")
		if err != nil {
			return fmt.Sprintf("Column '%s' has an invalid regex_format '%s'", column, spec.Regex())
		}
		for _, row := range ds.Rows {
			raw := row[column]
			if blank(raw) {
				continue
			}
			if !re.MatchString(text(raw)) {
				return fmt.Sprintf("Column '%s' contains ids not matching the pattern '%s'", column, spec.Regex())
			}
		}
	}
	return ""
}

func blank(raw any) bool {
	if raw == nil {
		return true
	}
	s, ok := raw.(string)
	return ok && strings.TrimSpace(s) == ""
}
