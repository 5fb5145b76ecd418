package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/synthcheck/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type apiKeyModel struct {
	TokenHash  string     `gorm:"column:token_hash;primaryKey"`
	TenantID   string     `gorm:"column:tenant_id;not null"`
	Name       string     `gorm:"column:name;not null"`
	Active     bool       `gorm:"column:active;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	LastUsedAt *time.Time `gorm:"column:last_used_at"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

func (m apiKeyModel) toDomain() domain.APIKey {
	key := domain.APIKey{
		TokenHash: m.TokenHash,
		TenantID:  m.TenantID,
		Name:      m.Name,
		Active:    m.Active,
		CreatedAt: m.CreatedAt,
	}
	if m.LastUsedAt != nil {
		key.LastUsedAt = *m.LastUsedAt
	}
	return key
}

// APIKeyRepository keeps tenant API keys in the api_keys table.
type APIKeyRepository struct {
	db *gormsqlite.DB
}

func NewAPIKeyRepository(db *gormsqlite.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("token_hash = ?", tokenHash).First(&model).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.APIKey{}, domain.ErrNotFound
		}
		return domain.APIKey{}, fmt.Errorf("find api key: %w", err)
	}
	return model.toDomain(), nil
}

// Upsert inserts the key or, for a known token, moves it to the given tenant
// and name. The creation time and last use of an existing key are kept.
func (r *APIKeyRepository) Upsert(ctx context.Context, key domain.APIKey) error {
	model := apiKeyModel{
		TokenHash: key.TokenHash,
		TenantID:  key.TenantID,
		Name:      key.Name,
		Active:    key.Active,
		CreatedAt: key.CreatedAt.UTC(),
	}
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "name", "active"}),
		}).Create(&model).Error
	})
	if err != nil {
		return fmt.Errorf("upsert api key %s: %w", key.Name, err)
	}
	return nil
}

// Touch sets last_used_at; unknown hashes return domain.ErrNotFound.
func (r *APIKeyRepository) Touch(ctx context.Context, tokenHash string, at time.Time) error {
	at = at.UTC()
	var affected int64
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&apiKeyModel{}).Where("token_hash = ?", tokenHash).Update("last_used_at", &at)
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
