package domain

// Status is the terminal state of a validation run.
type Status string

const (
	StatusPassed Status = "PASSED"
	StatusFailed Status = "FAILED"
)

// ViolationReport lists the rows of a dataset that break one constraint.
type ViolationReport struct {
	ConstraintIndex int              `json:"constraint_index"`
	ConstraintKind  Kind             `json:"constraint_kind"`
	Columns         []string         `json:"columns"`
	Message         string           `json:"message"`
	Rows            []int            `json:"violating_row_indices"`
	SampleValues    []map[string]any `json:"sample_values"`
}

func (r ViolationReport) Count() int {
	return len(r.Rows)
}

// ValidationResult is the outcome of one validation run.
type ValidationResult struct {
	Passed     bool              `json:"passed"`
	Status     Status            `json:"status"`
	Errors     []string          `json:"errors"`
	Warnings   []string          `json:"warnings"`
	Skipped    []int             `json:"skipped_constraints"`
	Violations []ViolationReport `json:"violations"`
}

// ViolationCount is the number of (constraint, row) violations.
func (r ValidationResult) ViolationCount() int {
	n := 0
	for _, v := range r.Violations {
		n += v.Count()
	}
	return n
}
