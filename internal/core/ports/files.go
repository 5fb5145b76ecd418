package ports

import (
	"context"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

type FileRepository interface {
	Put(ctx context.Context, file domain.StoredFile) (domain.StoredFile, error)
	Get(ctx context.Context, tenantID, name string) (domain.StoredFile, error)
	Delete(ctx context.Context, tenantID, name string) (bool, error)
	Rename(ctx context.Context, tenantID, from, to string) (domain.StoredFile, error)
	List(ctx context.Context, tenantID string, filter domain.FileFilter) ([]domain.StoredFile, error)
}
