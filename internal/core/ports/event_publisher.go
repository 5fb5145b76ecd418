package ports

import (
	"context"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event domain.EventEnvelope) error
}
