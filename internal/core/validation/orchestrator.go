package validation

import (
	"fmt"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

// Phase is a state of a validation run.
type Phase string

const (
	PhaseValidatingSchema Phase = "VALIDATING_SCHEMA"
	PhaseValidatingRows   Phase = "VALIDATING_ROWS"
	PhasePassed           Phase = Phase(domain.StatusPassed)
	PhaseFailed           Phase = Phase(domain.StatusFailed)
)

// Input is everything one validation run needs. Inputs are read only.
type Input struct {
	Schema      *domain.Schema
	PrimaryKey  string
	Constraints []domain.Constraint
	Dataset     domain.Dataset

	// OnPhase, when set, is called on every state transition.
	OnPhase func(Phase)
}

// Validate checks the constraint set, then the dataset. A malformed
// constraint set fails the run before any row is looked at.
func Validate(in Input) domain.ValidationResult {
	r := newRun(in)
	r.enter(PhaseValidatingSchema)
	r.errs = append(r.errs, CheckPrimaryKey(in.Schema, in.PrimaryKey)...)
	r.errs = append(r.errs, CheckConstraints(in.Schema, in.Constraints)...)
	return r.finish()
}

// ValidateTable decodes document constraints for one table and validates ds
// with them. Decode failures are reported like any other malformed constraint.
func ValidateTable(table domain.NamedTable, specs []domain.ConstraintSpec, ds domain.Dataset, onPhase func(Phase)) domain.ValidationResult {
	in := Input{Schema: table.Columns, PrimaryKey: table.PrimaryKey, Dataset: ds, OnPhase: onPhase}
	r := newRun(in)
	r.enter(PhaseValidatingSchema)
	r.errs = append(r.errs, CheckPrimaryKey(in.Schema, in.PrimaryKey)...)
	constraints, errs := CheckSpecs(in.Schema, specs)
	r.errs = append(r.errs, errs...)
	r.in.Constraints = constraints
	return r.finish()
}

// run holds the mutable state of a single validation.
type run struct {
	in         Input
	errs       []string
	warnings   []string
	skipped    []int
	violations []domain.ViolationReport
}

func newRun(in Input) *run {
	if in.Schema == nil {
		in.Schema = domain.NewSchema()
	}
	return &run{in: in}
}

func (r *run) enter(p Phase) {
	if r.in.OnPhase != nil {
		r.in.OnPhase(p)
	}
}

func (r *run) finish() domain.ValidationResult {
	if len(r.errs) == 0 {
		r.enter(PhaseValidatingRows)
		r.validateRows()
	}
	res := domain.ValidationResult{
		Errors:     nonNil(r.errs),
		Warnings:   nonNil(r.warnings),
		Skipped:    r.skipped,
		Violations: r.violations,
	}
	if res.Skipped == nil {
		res.Skipped = []int{}
	}
	if res.Violations == nil {
		res.Violations = []domain.ViolationReport{}
	}
	res.Passed = len(res.Errors) == 0 && len(res.Violations) == 0
	if res.Passed {
		res.Status = domain.StatusPassed
		r.enter(PhasePassed)
	} else {
		res.Status = domain.StatusFailed
		r.enter(PhaseFailed)
	}
	return res
}

func (r *run) validateRows() {
	cols := CheckColumns(r.in.Schema, r.in.Dataset)
	r.warnings = append(r.warnings, cols.Warnings...)
	missing := make(map[string]struct{}, len(cols.Missing))
	for _, col := range cols.Missing {
		missing[col] = struct{}{}
		r.errs = append(r.errs, MissingMessage(col))
	}

	for i, c := range r.in.Constraints {
		if col, ok := firstMissing(c, missing); ok {
			r.skipped = append(r.skipped, i)
			r.errs = append(r.errs, fmt.Sprintf("constraint #%d (%s) skipped: column '%s' is missing in the dataset", i+1, c.Kind(), col))
			continue
		}
		report, err := evaluateSafely(r.in.Schema, c, r.in.Dataset)
		if err != nil {
			r.errs = append(r.errs, fmt.Sprintf("constraint #%d (%s) could not be evaluated: %v", i+1, c.Kind(), err))
			continue
		}
		if report.Count() == 0 {
			continue
		}
		report.ConstraintIndex = i
		r.violations = append(r.violations, report)
		r.errs = append(r.errs, fmt.Sprintf("%s (%d of %d rows)", report.Message, report.Count(), r.in.Dataset.Len()))
	}
}

// evaluateSafely turns a panic inside one evaluation into an error so the
// remaining constraints still run.
func evaluateSafely(schema *domain.Schema, c domain.Constraint, ds domain.Dataset) (report domain.ViolationReport, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("internal error: %v", p)
		}
	}()
	return Evaluate(schema, c, ds)
}

func firstMissing(c domain.Constraint, missing map[string]struct{}) (string, bool) {
	if len(missing) == 0 {
		return "", false
	}
	for _, col := range c.Columns() {
		if _, ok := missing[col]; ok {
			return col, true
		}
	}
	return "", false
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
