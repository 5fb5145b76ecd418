package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

type fileModel struct {
	TenantID  string    `gorm:"column:tenant_id;primaryKey"`
	Name      string    `gorm:"column:name;primaryKey"`
	Category  string    `gorm:"column:category;not null"`
	Source    string    `gorm:"column:source;not null"`
	Size      int64     `gorm:"column:size;not null"`
	Content   []byte    `gorm:"column:content;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (fileModel) TableName() string {
	return "files"
}

// listColumns leaves out the content blob.
var listColumns = []string{"tenant_id", "name", "category", "source", "size", "created_at", "updated_at"}

type FileRepository struct {
	db *gormsqlite.DB
}

func NewFileRepository(db *gormsqlite.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Put(ctx context.Context, file domain.StoredFile) (domain.StoredFile, error) {
	now := time.Now().UTC()
	model := fileModel{
		TenantID:  file.TenantID,
		Name:      file.Name,
		Category:  string(file.Category),
		Source:    string(file.Source),
		Size:      int64(len(file.Content)),
		Content:   file.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"category", "source", "size", "content", "updated_at"}),
		}).Create(&model).Error
	})
	if err != nil {
		return domain.StoredFile{}, fmt.Errorf("put file: %w", err)
	}
	return r.Get(ctx, file.TenantID, file.Name)
}

func (r *FileRepository) Get(ctx context.Context, tenantID, name string) (domain.StoredFile, error) {
	var model fileModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND name = ?", tenantID, name).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.StoredFile{}, domain.ErrNotFound
		}
		return domain.StoredFile{}, fmt.Errorf("get file: %w", err)
	}
	return fileToDomain(model), nil
}

func (r *FileRepository) Delete(ctx context.Context, tenantID, name string) (bool, error) {
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Where("tenant_id = ? AND name = ?", tenantID, name).Delete(&fileModel{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	return affected > 0, nil
}

// Rename moves a file inside one transaction so a concurrent Put cannot take
// the target name in between.
func (r *FileRepository) Rename(ctx context.Context, tenantID, from, to string) (domain.StoredFile, error) {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var taken int64
		if err := tx.Model(&fileModel{}).Where("tenant_id = ? AND name = ?", tenantID, to).Count(&taken).Error; err != nil {
			return err
		}
		if taken > 0 {
			return domain.ErrAlreadyExists
		}
		res := tx.Model(&fileModel{}).
			Where("tenant_id = ? AND name = ?", tenantID, from).
			Updates(map[string]any{
				"name":       to,
				"category":   string(domain.CategoryOf(to)),
				"source":     string(domain.SourceOf(to)),
				"updated_at": time.Now().UTC(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) || errors.Is(err, domain.ErrNotFound) {
			return domain.StoredFile{}, err
		}
		return domain.StoredFile{}, fmt.Errorf("rename file: %w", err)
	}
	return r.Get(ctx, tenantID, to)
}

func (r *FileRepository) List(ctx context.Context, tenantID string, filter domain.FileFilter) ([]domain.StoredFile, error) {
	var models []fileModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&fileModel{}).Select(listColumns).Where("tenant_id = ?", tenantID)
		if filter.Category != "" {
			query = query.Where("category = ?", string(filter.Category))
		}
		if filter.Prefix != "" {
			prefixUpper := filter.Prefix + "\uffff"
			query = query.Where("name >= ? AND name < ?", filter.Prefix, prefixUpper)
		}
		if filter.After != "" {
			query = query.Where("name > ?", filter.After)
		}
		return query.Order("name ASC").Limit(filter.Limit).Find(&models).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	files := make([]domain.StoredFile, 0, len(models))
	for _, model := range models {
		files = append(files, fileToDomain(model))
	}
	return files, nil
}

func fileToDomain(model fileModel) domain.StoredFile {
	return domain.StoredFile{
		TenantID:  model.TenantID,
		Name:      model.Name,
		Category:  domain.FileCategory(model.Category),
		Source:    domain.FileSource(model.Source),
		Size:      model.Size,
		Content:   model.Content,
		CreatedAt: model.CreatedAt,
		UpdatedAt: model.UpdatedAt,
	}
}
