package app

import (
	"fmt"
	"os"

	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/tabular"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/usecase"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/validation"
)

// ValidateFiles validates a local data file against a local metadata
// document. Nothing is stored.
func ValidateFiles(metadataPath, dataPath, table string) (domain.ValidationResult, error) {
	doc, err := loadMetadata(metadataPath)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	t, err := doc.Table(table)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	content, err := os.ReadFile(dataPath)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("read data: %w", err)
	}
	ds, err := tabular.NewDecoder().Decode(domain.Extension(dataPath), content)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("decode %s: %w", dataPath, err)
	}
	return validation.ValidateTable(t, doc.ConstraintsFor(t.Name), ds, nil), nil
}

// CheckFile runs the constraint set checks of a local metadata document.
func CheckFile(metadataPath string) ([]usecase.TableCheck, error) {
	doc, err := loadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	return usecase.CheckDocument(doc), nil
}

func loadMetadata(path string) (domain.MetadataDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.MetadataDocument{}, fmt.Errorf("read metadata: %w", err)
	}
	doc, err := usecase.DecodeMetadata(data)
	if err != nil {
		return domain.MetadataDocument{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}
