package notifications

import (
	"context"

	"github.com/aturkov/custodykeeper/internal/logging"
)

// Notifier delivers outbound events to the indexing/UI side. Implementations
// must not block the caller beyond a single publish attempt.
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// LogNotifier writes events to the structured log instead of a broker. Used
// when no AMQP URL is configured.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier constructs a log-only Notifier.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, event Event) error {
	n.logger.Info(ctx, "notification",
		"kind", string(event.Kind), "seq", event.Seq, "evidence_id", event.EvidenceID)
	return nil
}
