package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hpetrik/styletransfer-be/shared/rabbitmq"
)

// Event is one job lifecycle transition, published for operators. Events
// are notification-only fan-out; job execution never depends on them.
type Event struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	ModelID   string    `json:"model_id,omitempty"`
	Degraded  bool      `json:"degraded,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits job lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// AMQPPublisher publishes events to a RabbitMQ exchange. Publish errors
// are logged and swallowed so a broker outage never affects jobs.
type AMQPPublisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewAMQPPublisher creates a publisher on an established RabbitMQ client.
func NewAMQPPublisher(client *rabbitmq.Client, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		client: client,
		logger: logger,
	}
}

func (p *AMQPPublisher) Publish(ctx context.Context, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to encode job event",
			slog.String("job_id", event.JobID),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.PublishWithRetry(ctx, body, "application/json"); err != nil {
		p.logger.Warn("Failed to publish job event",
			slog.String("job_id", event.JobID),
			slog.String("status", event.Status),
			slog.Any("error", err),
		)
		return
	}

	p.logger.Debug("Job event published",
		slog.String("job_id", event.JobID),
		slog.String("status", event.Status),
	)
}

// NoopPublisher discards events; used when RabbitMQ is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) {}
