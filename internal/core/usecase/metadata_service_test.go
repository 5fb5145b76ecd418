package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

const ordersMetadata = `{
	"METADATA_SPEC_VERSION": "V1",
	"tables": {
		"orders": {
			"primary_key": "order_id",
			"columns": {
				"order_id": {"sdtype": "id"},
				"amount": {"sdtype": "numerical", "computer_representation": "Float"},
				"qty": {"sdtype": "numerical", "computer_representation": "Int64"}
			}
		}
	},
	"constraints": [
		{"constraint_class": "ScalarRange", "table_name": "orders", "constraint_parameters": {"column_name": "amount", "low_value": 10, "high_value": 100, "strict_boundaries": false}},
		{"constraint_class": "FixedIncrements", "constraint_parameters": {"column_name": "qty", "increment_value": 5}}
	]
}`

func TestMetadataServicePutAndGet(t *testing.T) {
	svc := NewMetadataService(newMemFileRepo())

	f, err := svc.Put(context.Background(), "t1", "orders.json", json.RawMessage(ordersMetadata))
	if err != nil {
		t.Fatalf("put metadata: %v", err)
	}
	if f.Category != domain.CategoryMetadata {
		t.Fatalf("unexpected category: %s", f.Category)
	}

	doc, err := svc.Get(context.Background(), "t1", "orders.json")
	if err != nil {
		t.Fatalf("get metadata: %v", err)
	}
	table, err := doc.Table("")
	if err != nil {
		t.Fatalf("first table: %v", err)
	}
	if table.Name != "orders" {
		t.Fatalf("unexpected table: %s", table.Name)
	}
	if got := table.Columns.Columns(); strings.Join(got, ",") != "order_id,amount,qty" {
		t.Fatalf("column order not preserved: %v", got)
	}
	if n := len(doc.ConstraintsFor("orders")); n != 2 {
		t.Fatalf("expected 2 constraints for orders, got %d", n)
	}
}

func TestMetadataServicePutRejectsShape(t *testing.T) {
	svc := NewMetadataService(newMemFileRepo())

	_, err := svc.Put(context.Background(), "t1", "bad.json", json.RawMessage(`{"tables": {"t": {"columns": {"a": {}}}}}`))
	var violation *domain.ErrMetadataViolation
	if !errors.As(err, &violation) {
		t.Fatalf("expected ErrMetadataViolation, got %T: %v", err, err)
	}
	if len(violation.Errors) == 0 {
		t.Fatal("expected at least one violation message")
	}
	if !errors.Is(err, domain.ErrInvalidMetadata) {
		t.Fatal("violation should match ErrInvalidMetadata")
	}
}

func TestMetadataServicePutRejectsInvalidJSON(t *testing.T) {
	svc := NewMetadataService(newMemFileRepo())
	if _, err := svc.Put(context.Background(), "t1", "bad.json", json.RawMessage(`{not json`)); !errors.Is(err, domain.ErrInvalidMetadata) {
		t.Fatalf("expected invalid metadata, got %v", err)
	}
}

func TestMetadataServicePutRequiresJSONName(t *testing.T) {
	svc := NewMetadataService(newMemFileRepo())
	if _, err := svc.Put(context.Background(), "t1", "orders.csv", json.RawMessage(ordersMetadata)); !errors.Is(err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}

func TestMetadataServiceCacheInvalidatedOnPut(t *testing.T) {
	svc := NewMetadataService(newMemFileRepo())
	ctx := context.Background()
	if _, err := svc.Put(ctx, "t1", "orders.json", json.RawMessage(ordersMetadata)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := svc.Get(ctx, "t1", "orders.json"); err != nil {
		t.Fatalf("get: %v", err)
	}

	updated := `{"tables": {"customers": {"columns": {"name": {"sdtype": "name"}}}}}`
	if _, err := svc.Put(ctx, "t1", "orders.json", json.RawMessage(updated)); err != nil {
		t.Fatalf("put updated: %v", err)
	}
	doc, err := svc.Get(ctx, "t1", "orders.json")
	if err != nil {
		t.Fatalf("get updated: %v", err)
	}
	if doc.Tables[0].Name != "customers" {
		t.Fatalf("expected updated document, got table %s", doc.Tables[0].Name)
	}

	if deleted, err := svc.Delete(ctx, "t1", "orders.json"); err != nil || !deleted {
		t.Fatalf("delete: deleted=%v err=%v", deleted, err)
	}
	if _, err := svc.Get(ctx, "t1", "orders.json"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
}

func TestMetadataServiceCacheFollowsFileServiceWrites(t *testing.T) {
	repo := newMemFileRepo()
	meta := NewMetadataService(repo)
	files := NewFileService(repo, 0, meta)
	ctx := context.Background()

	if _, err := meta.Put(ctx, "t1", "m.json", json.RawMessage(ordersMetadata)); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := meta.Get(ctx, "t1", "m.json"); err != nil {
		t.Fatalf("get: %v", err)
	}

	updated := `{"tables": {"orders": {"columns": {"y": {"sdtype": "numerical"}}}}}`
	if _, err := files.Put(ctx, "t1", "m.json", []byte(updated)); err != nil {
		t.Fatalf("overwrite through file store: %v", err)
	}
	doc, err := meta.Get(ctx, "t1", "m.json")
	if err != nil {
		t.Fatalf("get after overwrite: %v", err)
	}
	if got := doc.Tables[0].Columns.Columns(); strings.Join(got, ",") != "y" {
		t.Fatalf("expected overwritten columns [y], got %v", got)
	}

	if _, err := files.Rename(ctx, "t1", "m.json", "n.json"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := meta.Get(ctx, "t1", "m.json"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for old name after rename, got %v", err)
	}
	if _, err := meta.Get(ctx, "t1", "n.json"); err != nil {
		t.Fatalf("get renamed: %v", err)
	}

	if deleted, err := files.Delete(ctx, "t1", "n.json"); err != nil || !deleted {
		t.Fatalf("delete through file store: deleted=%v err=%v", deleted, err)
	}
	if _, err := meta.Get(ctx, "t1", "n.json"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found after file store delete, got %v", err)
	}
}

func TestMetadataServiceRenameOntoCachedName(t *testing.T) {
	repo := newMemFileRepo()
	meta := NewMetadataService(repo)
	files := NewFileService(repo, 0, meta)
	ctx := context.Background()

	if _, err := meta.Put(ctx, "t1", "target.json", json.RawMessage(ordersMetadata)); err != nil {
		t.Fatalf("put target: %v", err)
	}
	if _, err := meta.Get(ctx, "t1", "target.json"); err != nil {
		t.Fatalf("get target: %v", err)
	}
	// removed straight from the repository, so the cached entry survives
	if _, err := repo.Delete(ctx, "t1", "target.json"); err != nil {
		t.Fatalf("delete target: %v", err)
	}
	other := `{"tables": {"customers": {"columns": {"name": {"sdtype": "name"}}}}}`
	if _, err := files.Put(ctx, "t1", "source.json", []byte(other)); err != nil {
		t.Fatalf("put source: %v", err)
	}
	if _, err := files.Rename(ctx, "t1", "source.json", "target.json"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	doc, err := meta.Get(ctx, "t1", "target.json")
	if err != nil {
		t.Fatalf("get target after rename: %v", err)
	}
	if doc.Tables[0].Name != "customers" {
		t.Fatalf("expected renamed document, got table %s", doc.Tables[0].Name)
	}
}

func TestMetadataServiceCheck(t *testing.T) {
	svc := NewMetadataService(newMemFileRepo())
	ctx := context.Background()
	doc := `{
		"tables": {
			"orders": {
				"primary_key": "amount",
				"columns": {"amount": {"sdtype": "numerical"}},
				"constraints": [
					{"constraint_class": "ScalarRange", "constraint_parameters": {"column_name": "amount", "low_value": 100, "high_value": 10}}
				]
			}
		},
		"constraints": [
			{"constraint_class": "Positive", "table_name": "ghost", "constraint_parameters": {"column_name": "x"}}
		]
	}`
	if _, err := svc.Put(ctx, "t1", "orders.json", json.RawMessage(doc)); err != nil {
		t.Fatalf("put: %v", err)
	}

	checks, err := svc.Check(ctx, "t1", "orders.json")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("expected 2 table checks, got %d", len(checks))
	}
	if checks[0].Table != "orders" || len(checks[0].Errors) != 2 {
		t.Fatalf("expected primary key and ordering errors for orders, got %v", checks[0].Errors)
	}
	if checks[1].Table != "ghost" {
		t.Fatalf("expected unknown table report, got %v", checks[1])
	}
}
