package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

// APIKeyRepository stores tenant API keys by token hash. FindByTokenHash
// returns domain.ErrNotFound for unknown hashes.
type APIKeyRepository interface {
	FindByTokenHash(ctx context.Context, tokenHash string) (domain.APIKey, error)
	Upsert(ctx context.Context, key domain.APIKey) error
	// Touch records a successful authentication.
	Touch(ctx context.Context, tokenHash string, at time.Time) error
}
