package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidFileName   = errors.New("invalid file name")
	ErrInvalidCategory   = errors.New("invalid category")
	ErrInvalidFilter     = errors.New("invalid filter")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrUnsupportedFormat = errors.New("unsupported format")
)

var fileNamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// FileCategory groups stored files by what they hold.
type FileCategory string

const (
	CategoryData     FileCategory = "data"
	CategoryMetadata FileCategory = "metadata"
	CategoryModel    FileCategory = "model"
	CategoryOther    FileCategory = "other"
)

func (c FileCategory) Valid() bool {
	switch c {
	case CategoryData, CategoryMetadata, CategoryModel, CategoryOther:
		return true
	}
	return false
}

// FileSource tells whether a file was produced by the application or uploaded.
type FileSource string

const (
	SourceGenerated FileSource = "generated"
	SourceUploaded  FileSource = "uploaded"
)

var generatedMarkers = []string{"synthetic", "model_ctgan", "generated"}

type StoredFile struct {
	TenantID  string
	Name      string
	Category  FileCategory
	Source    FileSource
	Size      int64
	Content   []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

func ValidateFileName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || !fileNamePattern.MatchString(name) {
		return ErrInvalidFileName
	}
	return nil
}

// Extension returns the lower-cased extension without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

func CategoryOf(name string) FileCategory {
	switch Extension(name) {
	case "csv":
		return CategoryData
	case "json":
		return CategoryMetadata
	case "pkl":
		return CategoryModel
	}
	return CategoryOther
}

// SourceOf reports metadata files as generated, other files by name markers.
func SourceOf(name string) FileSource {
	if CategoryOf(name) == CategoryMetadata {
		return SourceGenerated
	}
	lower := strings.ToLower(name)
	for _, m := range generatedMarkers {
		if strings.Contains(lower, m) {
			return SourceGenerated
		}
	}
	return SourceUploaded
}

// NewStoredFile fills in category, source and size from the name and content.
func NewStoredFile(tenantID, name string, content []byte) StoredFile {
	return StoredFile{
		TenantID: tenantID,
		Name:     name,
		Category: CategoryOf(name),
		Source:   SourceOf(name),
		Size:     int64(len(content)),
		Content:  content,
	}
}

func (f StoredFile) Validate() error {
	if f.TenantID == "" {
		return fmt.Errorf("%w: tenant is required", ErrInvalidFilter)
	}
	return ValidateFileName(f.Name)
}

type FileFilter struct {
	Category FileCategory
	Prefix   string
	After    string
	Limit    int
}

func (f FileFilter) Validate() error {
	if f.Category != "" && !f.Category.Valid() {
		return ErrInvalidCategory
	}
	if f.Prefix != "" && !fileNamePattern.MatchString(f.Prefix) {
		return ErrInvalidFilter
	}
	if f.After != "" {
		if err := ValidateFileName(f.After); err != nil {
			return err
		}
	}
	return nil
}

// GenerateFileName builds names like "synthetic_sales_orders_20240102_150405".
// At most two source names are used; more are abbreviated with "_etc".
func GenerateFileName(prefix string, sources []string, at time.Time) string {
	stamp := at.Format("20060102_150405")
	var names []string
	for _, s := range sources {
		if s == "" {
			continue
		}
		names = append(names, strings.TrimSuffix(s, filepath.Ext(s)))
	}
	if len(names) == 0 {
		return prefix + "_" + stamp
	}
	joined := strings.Join(names[:min(2, len(names))], "_")
	if len(names) > 2 {
		joined += "_etc"
	}
	return prefix + "_" + joined + "_" + stamp
}
