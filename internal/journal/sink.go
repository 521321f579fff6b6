package journal

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/mridulgoel03/ETF-trading-project/internal/basket"
)

// Sink writes committed engine events to an event store. It satisfies the
// engine's event sink contract, so it can be handed to the engine directly
// or combined with other sinks.
type Sink struct {
	store  EventStore
	logger *logrus.Logger
}

// NewSink creates a journaling sink
func NewSink(store EventStore, logger *logrus.Logger) *Sink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Sink{
		store:  store,
		logger: logger,
	}
}

// Publish appends each event in order. A failed append stops the batch; the
// missing tail surfaces as a sequence gap on the next recovery rather than
// as a silently reordered log.
func (s *Sink) Publish(indexID string, events []basket.Event) {
	for _, event := range events {
		if err := s.store.Append(context.Background(), indexID, event); err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"index_id": indexID,
				"sequence": event.Sequence(),
				"type":     event.EventType(),
			}).Error("journal append failed")
			return
		}
	}
}
