package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

type runModel struct {
	Seq            int64     `gorm:"column:seq;primaryKey;autoIncrement"`
	ID             string    `gorm:"column:id;not null;uniqueIndex"`
	TenantID       string    `gorm:"column:tenant_id;not null"`
	MetadataFile   string    `gorm:"column:metadata_file;not null"`
	DataFile       string    `gorm:"column:data_file;not null"`
	Table          string    `gorm:"column:table_name;not null"`
	Status         string    `gorm:"column:status;not null"`
	Passed         bool      `gorm:"column:passed;not null"`
	RowCount       int       `gorm:"column:row_count;not null"`
	ViolationCount int       `gorm:"column:violation_count;not null"`
	ErrorCount     int       `gorm:"column:error_count;not null"`
	ResultJSON     string    `gorm:"column:result_json;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;not null"`
}

func (runModel) TableName() string {
	return "validation_runs"
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

// RunStore writes validation runs and their outbox events atomically.
type RunStore struct {
	db *gormsqlite.DB
}

func NewRunStore(db *gormsqlite.DB) *RunStore {
	return &RunStore{db: db}
}

func (s *RunStore) SaveWithEvent(ctx context.Context, run domain.ValidationRun, envelope domain.EventEnvelope) (domain.ValidationRun, error) {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	model := runToModel(run)

	err := s.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("insert validation run: %w", err)
		}
		return appendOutbox(tx, run.TenantID, envelope)
	})
	if err != nil {
		return domain.ValidationRun{}, err
	}
	return s.Get(ctx, run.TenantID, run.ID)
}

func (s *RunStore) Get(ctx context.Context, tenantID, id string) (domain.ValidationRun, error) {
	var model runModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ValidationRun{}, domain.ErrNotFound
		}
		return domain.ValidationRun{}, fmt.Errorf("get validation run: %w", err)
	}
	return runToDomain(model), nil
}

// List returns runs newest first. AfterID pages past a previously returned run.
func (s *RunStore) List(ctx context.Context, tenantID string, filter domain.RunFilter) ([]domain.ValidationRun, error) {
	var models []runModel
	err := s.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&runModel{}).Where("tenant_id = ?", tenantID)
		if filter.Status != "" {
			query = query.Where("status = ?", string(filter.Status))
		}
		if filter.AfterID != "" {
			query = query.Where("seq < (SELECT seq FROM validation_runs WHERE tenant_id = ? AND id = ?)", tenantID, filter.AfterID)
		}
		return query.Order("seq DESC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list validation runs: %w", err)
	}

	runs := make([]domain.ValidationRun, 0, len(models))
	for _, m := range models {
		runs = append(runs, runToDomain(m))
	}
	return runs, nil
}

func appendOutbox(tx *gormsqlite.Tx, tenantID string, envelope domain.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}
	outbox := outboxEventModel{
		EventID:       envelope.EventID,
		TenantID:      tenantID,
		Topic:         "events." + tenantID + "." + envelope.EventType,
		PayloadJSON:   string(payload),
		Status:        domain.OutboxPending,
		Attempts:      0,
		NextAttemptAt: envelope.OccurredAt,
		LastError:     "",
		CreatedAt:     envelope.OccurredAt,
	}
	if err := tx.Create(&outbox).Error; err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

func runToModel(run domain.ValidationRun) runModel {
	return runModel{
		ID:             run.ID,
		TenantID:       run.TenantID,
		MetadataFile:   run.MetadataFile,
		DataFile:       run.DataFile,
		Table:          run.Table,
		Status:         string(run.Status),
		Passed:         run.Passed,
		RowCount:       run.RowCount,
		ViolationCount: run.ViolationCount,
		ErrorCount:     run.ErrorCount,
		ResultJSON:     string(run.Result),
		CreatedAt:      run.CreatedAt,
	}
}

func runToDomain(m runModel) domain.ValidationRun {
	return domain.ValidationRun{
		ID:             m.ID,
		TenantID:       m.TenantID,
		MetadataFile:   m.MetadataFile,
		DataFile:       m.DataFile,
		Table:          m.Table,
		Status:         domain.Status(m.Status),
		Passed:         m.Passed,
		RowCount:       m.RowCount,
		ViolationCount: m.ViolationCount,
		ErrorCount:     m.ErrorCount,
		Result:         json.RawMessage(m.ResultJSON),
		CreatedAt:      m.CreatedAt,
	}
}
