package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

type stubDecoder struct {
	ds  domain.Dataset
	err error

	formats []string
}

func (d *stubDecoder) Decode(format string, _ []byte) (domain.Dataset, error) {
	d.formats = append(d.formats, format)
	return d.ds, d.err
}

type stubRunStore struct {
	runs   []domain.ValidationRun
	events []domain.EventEnvelope
	saveFn func(run domain.ValidationRun, event domain.EventEnvelope) error

	listFilters []domain.RunFilter
}

func (s *stubRunStore) SaveWithEvent(_ context.Context, run domain.ValidationRun, event domain.EventEnvelope) (domain.ValidationRun, error) {
	if s.saveFn != nil {
		if err := s.saveFn(run, event); err != nil {
			return domain.ValidationRun{}, err
		}
	}
	s.runs = append(s.runs, run)
	s.events = append(s.events, event)
	return run, nil
}

func (s *stubRunStore) Get(_ context.Context, tenantID, id string) (domain.ValidationRun, error) {
	for _, r := range s.runs {
		if r.TenantID == tenantID && r.ID == id {
			return r, nil
		}
	}
	return domain.ValidationRun{}, domain.ErrNotFound
}

func (s *stubRunStore) List(_ context.Context, _ string, filter domain.RunFilter) ([]domain.ValidationRun, error) {
	s.listFilters = append(s.listFilters, filter)
	return s.runs, nil
}

func newTestValidationService(t *testing.T, ds domain.Dataset) (*ValidationService, *stubRunStore, *stubDecoder) {
	t.Helper()
	files := newMemFileRepo()
	metadata := NewMetadataService(files)
	if _, err := metadata.Put(context.Background(), "t1", "orders.json", json.RawMessage(ordersMetadata)); err != nil {
		t.Fatalf("seed metadata: %v", err)
	}
	if _, err := files.Put(context.Background(), domain.NewStoredFile("t1", "orders.csv", []byte("ignored"))); err != nil {
		t.Fatalf("seed data: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	runs := &stubRunStore{}
	decoder := &stubDecoder{ds: ds}
	return NewValidationService(files, metadata, decoder, runs, logger), runs, decoder
}

func ordersRows(rows ...domain.Row) domain.Dataset {
	return domain.NewDataset([]string{"order_id", "amount", "qty"}, rows)
}

func TestValidationServiceRunPersistsRunAndEvent(t *testing.T) {
	svc, runs, decoder := newTestValidationService(t, ordersRows(
		domain.Row{"order_id": "1", "amount": "5", "qty": "5"},
		domain.Row{"order_id": "2", "amount": "50", "qty": "10"},
		domain.Row{"order_id": "3", "amount": "150", "qty": "7"},
	))
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	run, result, err := svc.Run(context.Background(), "t1", domain.RunRequest{MetadataFile: "orders.json", DataFile: "orders.csv"},
		domain.RequestMetadata{Actor: "key-1", RequestID: "req-1", OccurredAt: at})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(decoder.formats) != 1 || decoder.formats[0] != "csv" {
		t.Fatalf("expected csv decode, got %v", decoder.formats)
	}
	if result.Passed || run.Status != domain.StatusFailed {
		t.Fatalf("expected failed run, got %+v", run)
	}
	if len(result.Violations) != 2 {
		t.Fatalf("expected 2 violated constraints, got %d", len(result.Violations))
	}
	if run.ViolationCount != 3 || run.RowCount != 3 || run.Table != "orders" {
		t.Fatalf("unexpected run summary: %+v", run)
	}
	if !run.CreatedAt.Equal(at) {
		t.Fatalf("expected created at %v, got %v", at, run.CreatedAt)
	}

	if len(runs.events) != 1 {
		t.Fatalf("expected one event, got %d", len(runs.events))
	}
	event := runs.events[0]
	if event.EventType != domain.EventValidationCompleted || event.AggregateID != run.ID || event.CorrelationID != "req-1" {
		t.Fatalf("unexpected event: %+v", event)
	}
	var payload domain.ValidationCompletedPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.Status != domain.StatusFailed || payload.ViolationCount != 3 {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	got, err := svc.GetRun(context.Background(), "t1", run.ID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	var stored domain.ValidationResult
	if err := json.Unmarshal(got.Result, &stored); err != nil {
		t.Fatalf("decode stored result: %v", err)
	}
	if stored.Status != domain.StatusFailed {
		t.Fatalf("unexpected stored status %s", stored.Status)
	}
}

func TestValidationServiceRunUnknownTable(t *testing.T) {
	svc, _, _ := newTestValidationService(t, ordersRows())
	_, _, err := svc.Run(context.Background(), "t1", domain.RunRequest{MetadataFile: "orders.json", DataFile: "orders.csv", Table: "nope"}, domain.RequestMetadata{})
	if !errors.Is(err, domain.ErrUnknownTable) {
		t.Fatalf("expected unknown table, got %v", err)
	}
}

func TestValidationServiceRunMissingFile(t *testing.T) {
	svc, runs, _ := newTestValidationService(t, ordersRows())
	_, _, err := svc.Run(context.Background(), "t1", domain.RunRequest{MetadataFile: "orders.json", DataFile: "missing.csv"}, domain.RequestMetadata{})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(runs.runs) != 0 {
		t.Fatal("no run should be stored")
	}
}

func TestValidationServiceRunSaveFailure(t *testing.T) {
	svc, runs, _ := newTestValidationService(t, ordersRows(domain.Row{"order_id": "1", "amount": 50.0, "qty": 5.0}))
	runs.saveFn = func(domain.ValidationRun, domain.EventEnvelope) error { return errors.New("disk full") }
	if _, _, err := svc.Run(context.Background(), "t1", domain.RunRequest{MetadataFile: "orders.json", DataFile: "orders.csv"}, domain.RequestMetadata{}); err == nil {
		t.Fatal("expected save error")
	}
}

func TestValidationServiceValidateInline(t *testing.T) {
	svc, runs, _ := newTestValidationService(t, ordersRows())
	result, err := svc.ValidateInline(context.Background(), json.RawMessage(ordersMetadata), "orders", ordersRows(
		domain.Row{"order_id": "1", "amount": 50.0, "qty": 5.0},
	))
	if err != nil {
		t.Fatalf("inline: %v", err)
	}
	if !result.Passed {
		t.Fatalf("expected pass, got errors %v", result.Errors)
	}
	if len(runs.runs) != 0 {
		t.Fatal("inline validation must not persist runs")
	}
}

func TestValidationServiceListRunsClamp(t *testing.T) {
	svc, runs, _ := newTestValidationService(t, ordersRows())
	if _, err := svc.ListRuns(context.Background(), "t1", domain.RunFilter{Limit: 0}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := svc.ListRuns(context.Background(), "t1", domain.RunFilter{Limit: 9999}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if runs.listFilters[0].Limit != 100 || runs.listFilters[1].Limit != 1000 {
		t.Fatalf("unexpected limits: %+v", runs.listFilters)
	}
	if _, err := svc.ListRuns(context.Background(), "t1", domain.RunFilter{Status: "MAYBE"}); !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected invalid filter, got %v", err)
	}
}

func TestValidationServiceGetRunRejectsMalformedID(t *testing.T) {
	svc, _, _ := newTestValidationService(t, ordersRows())
	if _, err := svc.GetRun(context.Background(), "t1", "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
