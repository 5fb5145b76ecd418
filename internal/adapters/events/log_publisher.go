package events

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/synthcheck/internal/core/domain"
)

// LogPublisher writes outbox events to the log. It is used when no webhook is
// configured.
type LogPublisher struct {
	log logrus.FieldLogger
}

func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.log.WithFields(logrus.Fields{
		"topic":      topic,
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"tenant":     event.TenantID,
		"aggregate":  event.AggregateType + "/" + event.AggregateID,
		"version":    event.SchemaVersion,
	}).Info("outbox publish")
	return nil
}
