package domain

import (
	"encoding/json"
	"time"
)

// RunRequest names the stored files of a validation run.
type RunRequest struct {
	MetadataFile string `json:"metadata_file"`
	DataFile     string `json:"data_file"`
	Table        string `json:"table,omitempty"`
}

func (r RunRequest) Validate() error {
	if err := ValidateFileName(r.MetadataFile); err != nil {
		return err
	}
	return ValidateFileName(r.DataFile)
}

// ValidationRun is a persisted validation outcome.
type ValidationRun struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	MetadataFile   string          `json:"metadata_file"`
	DataFile       string          `json:"data_file"`
	Table          string          `json:"table"`
	Status         Status          `json:"status"`
	Passed         bool            `json:"passed"`
	RowCount       int             `json:"row_count"`
	ViolationCount int             `json:"violation_count"`
	ErrorCount     int             `json:"error_count"`
	Result         json.RawMessage `json:"result"`
	CreatedAt      time.Time       `json:"created_at"`
}

type RunFilter struct {
	AfterID string
	Status  Status
	Limit   int
}

func (f RunFilter) Validate() error {
	switch f.Status {
	case "", StatusPassed, StatusFailed:
		return nil
	}
	return ErrInvalidFilter
}
