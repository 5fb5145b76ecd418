package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/ports"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/validation"
)

// ValidationService runs the validation engine over stored files and keeps a
// history of runs.
type ValidationService struct {
	files    ports.FileRepository
	metadata *MetadataService
	decoder  ports.DatasetDecoder
	runs     ports.RunStore
	log      logrus.FieldLogger

	now   func() time.Time
	newID func() string
}

func NewValidationService(files ports.FileRepository, metadata *MetadataService, decoder ports.DatasetDecoder, runs ports.RunStore, log logrus.FieldLogger) *ValidationService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ValidationService{
		files:    files,
		metadata: metadata,
		decoder:  decoder,
		runs:     runs,
		log:      log.WithField("component", "validation"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
}

// Run validates a stored data file against a stored metadata document and
// records the run together with a validation.completed event.
func (s *ValidationService) Run(ctx context.Context, tenantID string, req domain.RunRequest, meta domain.RequestMetadata) (domain.ValidationRun, domain.ValidationResult, error) {
	if err := req.Validate(); err != nil {
		return domain.ValidationRun{}, domain.ValidationResult{}, err
	}
	meta = meta.Normalize()

	doc, err := s.metadata.Get(ctx, tenantID, req.MetadataFile)
	if err != nil {
		return domain.ValidationRun{}, domain.ValidationResult{}, fmt.Errorf("load metadata: %w", err)
	}
	table, err := doc.Table(req.Table)
	if err != nil {
		return domain.ValidationRun{}, domain.ValidationResult{}, err
	}
	file, err := s.files.Get(ctx, tenantID, req.DataFile)
	if err != nil {
		return domain.ValidationRun{}, domain.ValidationResult{}, fmt.Errorf("load data: %w", err)
	}
	ds, err := s.decoder.Decode(domain.Extension(file.Name), file.Content)
	if err != nil {
		return domain.ValidationRun{}, domain.ValidationResult{}, fmt.Errorf("decode %s: %w", file.Name, err)
	}

	runID := s.newID()
	log := s.log.WithFields(logrus.Fields{
		"run_id":   runID,
		"tenant":   tenantID,
		"metadata": req.MetadataFile,
		"data":     req.DataFile,
		"table":    table.Name,
	})
	result := validation.ValidateTable(table, doc.ConstraintsFor(table.Name), ds, func(p validation.Phase) {
		log.WithField("phase", p).Debug("validation phase")
	})

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return domain.ValidationRun{}, domain.ValidationResult{}, fmt.Errorf("encode result: %w", err)
	}
	run := domain.ValidationRun{
		ID:             runID,
		TenantID:       tenantID,
		MetadataFile:   req.MetadataFile,
		DataFile:       req.DataFile,
		Table:          table.Name,
		Status:         result.Status,
		Passed:         result.Passed,
		RowCount:       ds.Len(),
		ViolationCount: result.ViolationCount(),
		ErrorCount:     len(result.Errors),
		Result:         resultJSON,
		CreatedAt:      meta.OccurredAt,
	}

	event, err := s.completedEvent(run, meta)
	if err != nil {
		return domain.ValidationRun{}, domain.ValidationResult{}, err
	}
	saved, err := s.runs.SaveWithEvent(ctx, run, event)
	if err != nil {
		return domain.ValidationRun{}, domain.ValidationResult{}, fmt.Errorf("save run: %w", err)
	}

	log.WithFields(logrus.Fields{
		"status":     result.Status,
		"rows":       ds.Len(),
		"violations": run.ViolationCount,
		"errors":     run.ErrorCount,
	}).Info("validation finished")
	return saved, result, nil
}

// ValidateInline validates rows against a metadata document without storing
// anything.
func (s *ValidationService) ValidateInline(_ context.Context, metadata json.RawMessage, tableName string, ds domain.Dataset) (domain.ValidationResult, error) {
	doc, err := DecodeMetadata(metadata)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	table, err := doc.Table(tableName)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return validation.ValidateTable(table, doc.ConstraintsFor(table.Name), ds, nil), nil
}

func (s *ValidationService) GetRun(ctx context.Context, tenantID, id string) (domain.ValidationRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ValidationRun{}, domain.ErrNotFound
	}
	return s.runs.Get(ctx, tenantID, id)
}

func (s *ValidationService) ListRuns(ctx context.Context, tenantID string, filter domain.RunFilter) ([]domain.ValidationRun, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.runs.List(ctx, tenantID, filter)
}

func (s *ValidationService) completedEvent(run domain.ValidationRun, meta domain.RequestMetadata) (domain.EventEnvelope, error) {
	payload, err := json.Marshal(domain.ValidationCompletedPayload{
		RunID:          run.ID,
		MetadataFile:   run.MetadataFile,
		DataFile:       run.DataFile,
		Table:          run.Table,
		Status:         run.Status,
		ViolationCount: run.ViolationCount,
		ErrorCount:     run.ErrorCount,
	})
	if err != nil {
		return domain.EventEnvelope{}, fmt.Errorf("encode event payload: %w", err)
	}
	correlation := meta.CorrelationID
	if correlation == "" {
		correlation = meta.RequestID
	}
	return domain.EventEnvelope{
		EventID:       s.newID(),
		EventType:     domain.EventValidationCompleted,
		SchemaVersion: domain.CurrentEventSchemaVersion,
		TenantID:      run.TenantID,
		AggregateType: domain.AggregateValidationRun,
		AggregateID:   run.ID,
		OccurredAt:    meta.OccurredAt,
		CorrelationID: correlation,
		Actor:         meta.Actor,
		Source:        meta.Source,
		Payload:       payload,
	}, nil
}
