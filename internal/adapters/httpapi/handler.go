package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/tabular"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/usecase"
)

type ctxKey string

const (
	timeFormat             = "2006-01-02T15:04:05.999999999Z07:00"
	tenantIDCtxKey  ctxKey = "tenant_id"
	apiActorCtxKey  ctxKey = "api_actor"
	maxJSONBodySize        = 1 << 20

	defaultMaxUploadBytes = 32 << 20
)

type Handler struct {
	files       *usecase.FileService
	metadata    *usecase.MetadataService
	validations *usecase.ValidationService
	authService *usecase.AuthService
	log         logrus.FieldLogger
	maxUpload   int64
}

// NewHandler builds the API handler. maxUpload bounds file and inline request
// bodies; a non-positive value means 32 MiB.
func NewHandler(files *usecase.FileService, metadata *usecase.MetadataService, validations *usecase.ValidationService, authService *usecase.AuthService, log logrus.FieldLogger, maxUpload int64) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}
	return &Handler{
		files:       files,
		metadata:    metadata,
		validations: validations,
		authService: authService,
		log:         log,
		maxUpload:   maxUpload,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/openapi.json", h.openapi)

	r.Group(func(pr chi.Router) {
		pr.Use(h.requireAPIKey)
		pr.Get("/v1/files", h.listFiles)
		pr.Put("/v1/files/{name}", h.putFile)
		pr.Get("/v1/files/{name}", h.getFile)
		pr.Delete("/v1/files/{name}", h.deleteFile)
		pr.Post("/v1/files/{name}", h.fileAction)

		pr.Put("/v1/metadata/{name}", h.putMetadata)
		pr.Get("/v1/metadata/{name}", h.getMetadata)
		pr.Delete("/v1/metadata/{name}", h.deleteMetadata)
		pr.Post("/v1/metadata/{name}", h.metadataAction)

		pr.Post("/v1/validations", h.runValidation)
		pr.Post("/v1/validations:inline", h.validateInline)
		pr.Get("/v1/validations", h.listRuns)
		pr.Get("/v1/validations/{id}", h.getRun)
	})

	return r
}

type fileResponse struct {
	Name      string `json:"name"`
	Category  string `json:"category"`
	Source    string `json:"source"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type renameRequest struct {
	NewName string `json:"new_name"`
}

type runResponse struct {
	ID             string          `json:"id"`
	MetadataFile   string          `json:"metadata_file"`
	DataFile       string          `json:"data_file"`
	Table          string          `json:"table"`
	Status         string          `json:"status"`
	Passed         bool            `json:"passed"`
	RowCount       int             `json:"row_count"`
	ViolationCount int             `json:"violation_count"`
	ErrorCount     int             `json:"error_count"`
	Result         json.RawMessage `json:"result,omitempty"`
	CreatedAt      string          `json:"created_at"`
}

type inlineRequest struct {
	Metadata json.RawMessage `json:"metadata"`
	Table    string          `json:"table"`
	Rows     json.RawMessage `json:"rows"`
}

func (h *Handler) putFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	content, ok := h.readBody(w, r)
	if !ok {
		return
	}

	file, err := h.files.Put(r.Context(), tenantIDFromContext(r.Context()), name, content)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(file))
}

// getFile returns the raw content of a stored file.
func (h *Handler) getFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	file, err := h.files.Get(r.Context(), tenantIDFromContext(r.Context()), name)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType(file.Category))
	w.Header().Set("Content-Length", strconv.FormatInt(int64(len(file.Content)), 10))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Content); err != nil {
		h.log.WithError(err).Warn("write file response")
	}
}

func (h *Handler) deleteFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	deleted, err := h.files.Delete(r.Context(), tenantIDFromContext(r.Context()), name)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// fileAction serves POST /v1/files/{name}:rename. File names cannot contain a
// colon, so the action suffix is split off the path parameter.
func (h *Handler) fileAction(w http.ResponseWriter, r *http.Request) {
	name, action := splitAction(chi.URLParam(r, "name"))
	if action != "rename" {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	var req renameRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	file, err := h.files.Rename(r.Context(), tenantIDFromContext(r.Context()), name, req.NewName)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(file))
}

func (h *Handler) listFiles(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	files, err := h.files.List(r.Context(), tenantIDFromContext(r.Context()), domain.FileFilter{
		Category: domain.FileCategory(r.URL.Query().Get("category")),
		Prefix:   r.URL.Query().Get("prefix"),
		After:    r.URL.Query().Get("after"),
		Limit:    limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]fileResponse, 0, len(files))
	for _, f := range files {
		result = append(result, toFileResponse(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": result})
}

func (h *Handler) putMetadata(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	var doc json.RawMessage
	if !decodeJSONValue(w, r, &doc) {
		return
	}

	file, err := h.metadata.Put(r.Context(), tenantIDFromContext(r.Context()), name, doc)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponse(file))
}

func (h *Handler) getMetadata(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	doc, err := h.metadata.Get(r.Context(), tenantIDFromContext(r.Context()), name)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *Handler) deleteMetadata(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	deleted, err := h.metadata.Delete(r.Context(), tenantIDFromContext(r.Context()), name)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// metadataAction serves POST /v1/metadata/{name}:check.
func (h *Handler) metadataAction(w http.ResponseWriter, r *http.Request) {
	name, action := splitAction(chi.URLParam(r, "name"))
	if action != "check" {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}

	checks, err := h.metadata.Check(r.Context(), tenantIDFromContext(r.Context()), name)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	valid := true
	for _, c := range checks {
		if len(c.Errors) > 0 {
			valid = false
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"valid": valid, "tables": checks})
}

func (h *Handler) runValidation(w http.ResponseWriter, r *http.Request) {
	var req domain.RunRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	run, _, err := h.validations.Run(r.Context(), tenantIDFromContext(r.Context()), req, requestMetadata(r))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRunResponse(run, true))
}

func (h *Handler) validateInline(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	var req inlineRequest
	if !decodeJSONValue(w, r, &req) {
		return
	}
	if len(req.Metadata) == 0 || len(req.Rows) == 0 {
		writeError(w, http.StatusBadRequest, "metadata and rows are required")
		return
	}
	ds, err := tabular.DecodeJSON(req.Rows)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	result, err := h.validations.ValidateInline(r.Context(), req.Metadata, req.Table, ds)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	runs, err := h.validations.ListRuns(r.Context(), tenantIDFromContext(r.Context()), domain.RunFilter{
		AfterID: r.URL.Query().Get("after"),
		Status:  domain.Status(strings.ToUpper(r.URL.Query().Get("status"))),
		Limit:   limit,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	result := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		result = append(result, toRunResponse(run, false))
	}
	writeJSON(w, http.StatusOK, map[string]any{"validations": result})
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.validations.GetRun(r.Context(), tenantIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(run, true))
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) openapi(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, openapiSpec())
}

func (h *Handler) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get("X-API-Key"))
		if token == "" {
			auth := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}

		apiKey, err := h.authService.Authenticate(r.Context(), token)
		if err != nil {
			if errors.Is(err, usecase.ErrUnauthorized) {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			h.log.WithError(err).Error("authenticate api key")
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := context.WithValue(r.Context(), tenantIDCtxKey, apiKey.TenantID)
		ctx = context.WithValue(ctx, apiActorCtxKey, apiKey.Name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

// readBody reads a raw upload, bounded by the handler limit.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxUpload))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "read body failed")
		return nil, false
	}
	return body, true
}

func toFileResponse(f domain.StoredFile) fileResponse {
	return fileResponse{
		Name:      f.Name,
		Category:  string(f.Category),
		Source:    string(f.Source),
		Size:      f.Size,
		CreatedAt: f.CreatedAt.UTC().Format(timeFormat),
		UpdatedAt: f.UpdatedAt.UTC().Format(timeFormat),
	}
}

func toRunResponse(run domain.ValidationRun, withResult bool) runResponse {
	resp := runResponse{
		ID:             run.ID,
		MetadataFile:   run.MetadataFile,
		DataFile:       run.DataFile,
		Table:          run.Table,
		Status:         string(run.Status),
		Passed:         run.Passed,
		RowCount:       run.RowCount,
		ViolationCount: run.ViolationCount,
		ErrorCount:     run.ErrorCount,
		CreatedAt:      run.CreatedAt.UTC().Format(timeFormat),
	}
	if withResult {
		resp.Result = run.Result
	}
	return resp
}

func contentType(c domain.FileCategory) string {
	switch c {
	case domain.CategoryData:
		return "text/csv"
	case domain.CategoryMetadata:
		return "application/json"
	}
	return "application/octet-stream"
}

func splitAction(param string) (name, action string) {
	if i := strings.LastIndexByte(param, ':'); i >= 0 {
		return param[:i], param[i+1:]
	}
	return param, ""
}

func requestMetadata(r *http.Request) domain.RequestMetadata {
	return domain.RequestMetadata{
		Actor:         actorFromContext(r.Context()),
		Source:        "api",
		RequestID:     middleware.GetReqID(r.Context()),
		CorrelationID: strings.TrimSpace(r.Header.Get("X-Correlation-ID")),
	}
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be integer")
			return 0, false
		}
		limit = parsed
	}
	return limit, true
}

// decodeJSONBody decodes a small strict JSON request body into dst.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	return decodeJSONValue(w, r, dst)
}

func decodeJSONValue(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	if err := ensureEOF(decoder); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		logrus.WithError(err).Error("encode json response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(data, '\n')); err != nil {
		logrus.WithError(err).Warn("write response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

func handleDomainError(w http.ResponseWriter, err error) {
	var violation *domain.ErrMetadataViolation
	switch {
	case errors.As(err, &violation):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"error": "metadata validation failed", "details": violation.Errors})
	case errors.Is(err, domain.ErrInvalidFileName),
		errors.Is(err, domain.ErrInvalidCategory),
		errors.Is(err, domain.ErrInvalidFilter),
		errors.Is(err, domain.ErrUnsupportedFormat),
		errors.Is(err, domain.ErrInvalidMetadata):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownTable), errors.Is(err, domain.ErrInvalidDataset):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, usecase.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	default:
		logrus.WithError(err).Error("unhandled error")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func ensureEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	return errors.New("extra json tokens")
}

func tenantIDFromContext(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantIDCtxKey).(string)
	return tenant
}

func actorFromContext(ctx context.Context) string {
	actor, _ := ctx.Value(apiActorCtxKey).(string)
	if actor == "" {
		return "api"
	}
	return actor
}

func openapiSpec() map[string]any {
	return map[string]any{
		"openapi": "3.0.3",
		"info": map[string]any{
			"title":   "synthcheck",
			"version": "1.0.0",
		},
		"paths": map[string]any{
			"/v1/files": map[string]any{
				"get": map[string]any{"summary": "List files"},
			},
			"/v1/files/{name}": map[string]any{
				"put":    map[string]any{"summary": "Upload file"},
				"get":    map[string]any{"summary": "Download file"},
				"delete": map[string]any{"summary": "Delete file"},
			},
			"/v1/files/{name}:rename": map[string]any{
				"post": map[string]any{"summary": "Rename file"},
			},
			"/v1/metadata/{name}": map[string]any{
				"put":    map[string]any{"summary": "Store metadata document"},
				"get":    map[string]any{"summary": "Get metadata document"},
				"delete": map[string]any{"summary": "Delete metadata document"},
			},
			"/v1/metadata/{name}:check": map[string]any{
				"post": map[string]any{"summary": "Check constraint sets of a metadata document"},
			},
			"/v1/validations": map[string]any{
				"post": map[string]any{"summary": "Validate a stored data file"},
				"get":  map[string]any{"summary": "List validation runs"},
			},
			"/v1/validations:inline": map[string]any{
				"post": map[string]any{"summary": "Validate rows without storing them"},
			},
			"/v1/validations/{id}": map[string]any{
				"get": map[string]any{"summary": "Get validation run"},
			},
		},
	}
}
