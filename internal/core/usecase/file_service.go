package usecase

import (
	"context"
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
	"github.com/atvirokodosprendimai/synthcheck/internal/core/ports"
)

// ErrFileTooLarge is returned when an upload exceeds the configured limit.
var ErrFileTooLarge = errors.New("file too large")

// FileObserver hears about every name a FileService write, delete or rename
// touched, whether or not the repository call succeeded.
type FileObserver interface {
	FileChanged(tenantID, name string)
}

type FileService struct {
	repo      ports.FileRepository
	maxBytes  int64
	observers []FileObserver
}

// NewFileService returns a service storing files up to maxBytes each. A
// non-positive maxBytes disables the limit.
func NewFileService(repo ports.FileRepository, maxBytes int64, observers ...FileObserver) *FileService {
	return &FileService{repo: repo, maxBytes: maxBytes, observers: observers}
}

func (s *FileService) changed(tenantID string, names ...string) {
	for _, o := range s.observers {
		for _, name := range names {
			o.FileChanged(tenantID, name)
		}
	}
}

func (s *FileService) Put(ctx context.Context, tenantID, name string, content []byte) (domain.StoredFile, error) {
	file := domain.NewStoredFile(tenantID, name, content)
	if err := file.Validate(); err != nil {
		return domain.StoredFile{}, err
	}
	if s.maxBytes > 0 && file.Size > s.maxBytes {
		return domain.StoredFile{}, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, file.Size, s.maxBytes)
	}
	defer s.changed(tenantID, name)
	return s.repo.Put(ctx, file)
}

func (s *FileService) Get(ctx context.Context, tenantID, name string) (domain.StoredFile, error) {
	if err := domain.ValidateFileName(name); err != nil {
		return domain.StoredFile{}, err
	}
	return s.repo.Get(ctx, tenantID, name)
}

func (s *FileService) Delete(ctx context.Context, tenantID, name string) (bool, error) {
	if err := domain.ValidateFileName(name); err != nil {
		return false, err
	}
	defer s.changed(tenantID, name)
	return s.repo.Delete(ctx, tenantID, name)
}

// Rename moves a file to a new name. The category and source follow the new name.
func (s *FileService) Rename(ctx context.Context, tenantID, from, to string) (domain.StoredFile, error) {
	if err := domain.ValidateFileName(from); err != nil {
		return domain.StoredFile{}, err
	}
	if err := domain.ValidateFileName(to); err != nil {
		return domain.StoredFile{}, err
	}
	if from == to {
		return s.repo.Get(ctx, tenantID, from)
	}
	defer s.changed(tenantID, from, to)
	return s.repo.Rename(ctx, tenantID, from, to)
}

func (s *FileService) List(ctx context.Context, tenantID string, filter domain.FileFilter) ([]domain.StoredFile, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, tenantID, filter)
}
