package usecase

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	santhosh "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/ports"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/validation"
)

//go:embed metadata_schema.json
var metadataSchemaJSON []byte

var (
	documentSchemaOnce sync.Once
	documentSchema     *santhosh.Schema
	documentSchemaErr  error
)

// TableCheck is the constraint set check of one table.
type TableCheck struct {
	Table  string   `json:"table"`
	Errors []string `json:"errors"`
}

// MetadataService stores metadata documents as files and checks their
// constraint sets. Parsed documents are cached; a FileService sharing the
// repository must be given the service as a FileObserver so its writes drop
// stale entries.
type MetadataService struct {
	files ports.FileRepository
	cache sync.Map // key: cacheKey(tenantID, name) → domain.MetadataDocument
}

func NewMetadataService(files ports.FileRepository) *MetadataService {
	return &MetadataService{files: files}
}

func cacheKey(tenantID, name string) string {
	return tenantID + "/" + name
}

// FileChanged drops the cached document for the file, if any.
func (s *MetadataService) FileChanged(tenantID, name string) {
	s.cache.Delete(cacheKey(tenantID, name))
}

// Put validates the document shape and stores it. Shape failures are returned
// as *domain.ErrMetadataViolation.
func (s *MetadataService) Put(ctx context.Context, tenantID, name string, data json.RawMessage) (domain.StoredFile, error) {
	if err := validateMetadataName(name); err != nil {
		return domain.StoredFile{}, err
	}
	doc, err := DecodeMetadata(data)
	if err != nil {
		return domain.StoredFile{}, err
	}
	file := domain.NewStoredFile(tenantID, name, data)
	if err := file.Validate(); err != nil {
		return domain.StoredFile{}, err
	}
	s.FileChanged(tenantID, name)
	stored, err := s.files.Put(ctx, file)
	if err != nil {
		return domain.StoredFile{}, err
	}
	s.cache.Store(cacheKey(tenantID, name), doc)
	return stored, nil
}

// Get returns the parsed document, from cache when possible.
func (s *MetadataService) Get(ctx context.Context, tenantID, name string) (domain.MetadataDocument, error) {
	if err := validateMetadataName(name); err != nil {
		return domain.MetadataDocument{}, err
	}
	key := cacheKey(tenantID, name)
	if cached, ok := s.cache.Load(key); ok {
		return cached.(domain.MetadataDocument), nil
	}
	file, err := s.files.Get(ctx, tenantID, name)
	if err != nil {
		return domain.MetadataDocument{}, err
	}
	doc, err := DecodeMetadata(file.Content)
	if err != nil {
		return domain.MetadataDocument{}, fmt.Errorf("stored metadata %s: %w", name, err)
	}
	s.cache.Store(key, doc)
	return doc, nil
}

func (s *MetadataService) Delete(ctx context.Context, tenantID, name string) (bool, error) {
	if err := validateMetadataName(name); err != nil {
		return false, err
	}
	defer s.FileChanged(tenantID, name)
	return s.files.Delete(ctx, tenantID, name)
}

// Check runs the constraint set validator on every table of a stored document.
func (s *MetadataService) Check(ctx context.Context, tenantID, name string) ([]TableCheck, error) {
	doc, err := s.Get(ctx, tenantID, name)
	if err != nil {
		return nil, err
	}
	return CheckDocument(doc), nil
}

// CheckDocument checks the primary key and constraint set of each table.
func CheckDocument(doc domain.MetadataDocument) []TableCheck {
	out := make([]TableCheck, 0, len(doc.Tables))
	for _, t := range doc.Tables {
		errs := validation.CheckPrimaryKey(t.Columns, t.PrimaryKey)
		_, constraintErrs := validation.CheckSpecs(t.Columns, doc.ConstraintsFor(t.Name))
		out = append(out, TableCheck{Table: t.Name, Errors: append(nonNilStrings(errs), constraintErrs...)})
	}
	for _, c := range doc.Constraints {
		if c.TableName != "" && !hasTable(doc, c.TableName) {
			out = append(out, TableCheck{Table: c.TableName, Errors: []string{fmt.Sprintf("%s constraint refers to unknown table '%s'", c.Class, c.TableName)}})
		}
	}
	return out
}

// DecodeMetadata checks raw JSON against the document shape and parses it.
func DecodeMetadata(data []byte) (domain.MetadataDocument, error) {
	if !json.Valid(data) {
		return domain.MetadataDocument{}, fmt.Errorf("%w: metadata must be valid json", domain.ErrInvalidMetadata)
	}
	sch, err := metadataSchema()
	if err != nil {
		return domain.MetadataDocument{}, fmt.Errorf("compile metadata schema: %w", err)
	}
	if err := runValidation(sch, data); err != nil {
		return domain.MetadataDocument{}, err
	}
	return domain.ParseMetadata(data)
}

func metadataSchema() (*santhosh.Schema, error) {
	documentSchemaOnce.Do(func() {
		documentSchema, documentSchemaErr = compileSchema(metadataSchemaJSON)
	})
	return documentSchema, documentSchemaErr
}

func validateMetadataName(name string) error {
	if err := domain.ValidateFileName(name); err != nil {
		return err
	}
	if domain.CategoryOf(name) != domain.CategoryMetadata {
		return fmt.Errorf("%w: metadata files must end in .json", domain.ErrUnsupportedFormat)
	}
	return nil
}

func hasTable(doc domain.MetadataDocument, name string) bool {
	_, err := doc.Table(name)
	return err == nil
}

// compileSchema builds a *santhosh.Schema from raw JSON.
func compileSchema(schemaJSON json.RawMessage) (*santhosh.Schema, error) {
	compiler := santhosh.NewCompiler()
	compiler.Draft = santhosh.Draft7
	if err := compiler.AddResource("metadata.json", bytes.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile("metadata.json")
}

// runValidation validates data against a pre-compiled schema.
func runValidation(sch *santhosh.Schema, data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidMetadata, err)
	}
	if err := sch.Validate(v); err != nil {
		var ve *santhosh.ValidationError
		if errors.As(err, &ve) {
			return &domain.ErrMetadataViolation{Errors: collectValidationErrors(ve)}
		}
		return &domain.ErrMetadataViolation{Errors: []string{err.Error()}}
	}
	return nil
}

func collectValidationErrors(ve *santhosh.ValidationError) []string {
	var msgs []string
	for _, cause := range ve.Causes {
		msgs = append(msgs, collectValidationErrors(cause)...)
	}
	if len(ve.Causes) == 0 {
		msgs = append(msgs, ve.Error())
	}
	return msgs
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
