package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/events"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

const ordersMetadata = `{
	"tables": {
		"orders": {
			"primary_key": "order_id",
			"columns": {
				"order_id": {"sdtype": "id"},
				"qty": {"sdtype": "numerical", "computer_representation": "Int64"}
			},
			"constraints": [
				{"constraint_class": "FixedIncrements", "constraint_parameters": {"column_name": "qty", "increment": 5}}
			]
		}
	}
}`

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestServerValidatesStoredFilesAndDeliversEvent(t *testing.T) {
	var (
		mu        sync.Mutex
		delivered []domain.EventEnvelope
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if r.Header.Get(events.HeaderSignature) != "sha256="+events.Sign([]byte("s3cret"), body) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var env domain.EventEnvelope
		_ = json.Unmarshal(body, &env)
		mu.Lock()
		delivered = append(delivered, env)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	server, closer, err := NewServer(context.Background(), Config{
		DBPath:           filepath.Join(t.TempDir(), "app.sqlite"),
		BootstrapAPIKey:  "k1",
		BootstrapTenant:  "acme",
		WebhookURL:       hook.URL,
		WebhookSecret:    "s3cret",
		DispatchInterval: 20 * time.Millisecond,
	}, quietLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer closer.Close()

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("X-API-Key", "k1")
		rec := httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := call(http.MethodPut, "/v1/metadata/orders.json", ordersMetadata); rec.Code != http.StatusOK {
		t.Fatalf("put metadata: %d %s", rec.Code, rec.Body.String())
	}
	if rec := call(http.MethodPut, "/v1/files/orders.csv", "order_id,qty\n1,5\n2,7\n3,10\n"); rec.Code != http.StatusOK {
		t.Fatalf("put data: %d %s", rec.Code, rec.Body.String())
	}
	rec := call(http.MethodPost, "/v1/validations", `{"metadata_file":"orders.json","data_file":"orders.csv","table":"orders"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("run validation: %d %s", rec.Code, rec.Body.String())
	}
	var run struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode run: %v", err)
	}
	if run.Status != "FAILED" {
		t.Fatalf("expected FAILED, got %s", run.Status)
	}

	if rec := call(http.MethodGet, "/v1/validations", ""); !strings.Contains(rec.Body.String(), run.ID) {
		t.Fatalf("run missing from list: %s", rec.Body.String())
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		mu.Lock()
		n := len(delivered)
		mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("validation.completed event was not delivered")
		}
		time.Sleep(20 * time.Millisecond)
	}
	mu.Lock()
	defer mu.Unlock()
	if delivered[0].EventType != domain.EventValidationCompleted || delivered[0].AggregateID != run.ID || delivered[0].TenantID != "acme" {
		t.Fatalf("unexpected event: %+v", delivered[0])
	}
}

func TestServerBootstrapKeyScopesTenant(t *testing.T) {
	server, closer, err := NewServer(context.Background(), Config{
		DBPath:          filepath.Join(t.TempDir(), "app.sqlite"),
		BootstrapAPIKey: "k1",
	}, quietLogger())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer closer.Close()

	call := func(key, method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		rec := httptest.NewRecorder()
		server.Handler.ServeHTTP(rec, req)
		return rec
	}

	if rec := call("k2", http.MethodGet, "/v1/files", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown key: expected 401, got %d", rec.Code)
	}
	if rec := call("", http.MethodGet, "/v1/files", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key: expected 401, got %d", rec.Code)
	}
	if rec := call("k1", http.MethodPut, "/v1/files/a.csv", "x\n1\n"); rec.Code != http.StatusOK {
		t.Fatalf("bootstrap key upload: %d %s", rec.Code, rec.Body.String())
	}
	rec := call("k1", http.MethodGet, "/v1/files", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "a.csv") {
		t.Fatalf("bootstrap key list: %d %s", rec.Code, rec.Body.String())
	}
}

func TestServerRejectsInvalidBootstrapTenant(t *testing.T) {
	_, _, err := NewServer(context.Background(), Config{
		DBPath:          filepath.Join(t.TempDir(), "app.sqlite"),
		BootstrapAPIKey: "k1",
		BootstrapTenant: "acme/west",
	}, quietLogger())
	if !errors.Is(err, domain.ErrInvalidAPIKey) {
		t.Fatalf("expected invalid api key, got %v", err)
	}
}

func TestValidateFilesAndCheckFile(t *testing.T) {
	dir := t.TempDir()
	meta := filepath.Join(dir, "orders.json")
	data := filepath.Join(dir, "orders.csv")
	if err := os.WriteFile(meta, []byte(ordersMetadata), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(data, []byte("order_id,qty\n1,5\n2,10\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := ValidateFiles(meta, data, "")
	if err != nil {
		t.Fatalf("validate files: %v", err)
	}
	if !res.Passed {
		t.Fatalf("expected pass, got %+v", res)
	}

	checks, err := CheckFile(meta)
	if err != nil {
		t.Fatalf("check file: %v", err)
	}
	if len(checks) != 1 || len(checks[0].Errors) != 0 {
		t.Fatalf("unexpected checks: %+v", checks)
	}

	if _, err := ValidateFiles(meta, filepath.Join(dir, "orders.pkl"), ""); err == nil {
		t.Fatal("expected error for a missing data file")
	}
}

func TestSetupLoggingFallsBackToInfo(t *testing.T) {
	if got := SetupLogging("loud").GetLevel(); got != logrus.InfoLevel {
		t.Fatalf("expected info, got %s", got)
	}
	if got := SetupLogging("debug").GetLevel(); got != logrus.DebugLevel {
		t.Fatalf("expected debug, got %s", got)
	}
}
