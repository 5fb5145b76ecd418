package ports

import (
	"context"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

// RunStore persists validation runs together with their outbox event.
type RunStore interface {
	SaveWithEvent(ctx context.Context, run domain.ValidationRun, event domain.EventEnvelope) (domain.ValidationRun, error)
	Get(ctx context.Context, tenantID, id string) (domain.ValidationRun, error)
	List(ctx context.Context, tenantID string, filter domain.RunFilter) ([]domain.ValidationRun, error)
}

type OutboxRepository interface {
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkDispatched(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt string, errMsg string) error
	MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error
}
