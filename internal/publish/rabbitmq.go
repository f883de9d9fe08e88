package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/job-collector/shared/rabbitmq"
)

// EventType is the AMQP type property of published events
const EventType = "job.succeeded"

// Sender is the part of the RabbitMQ client used here
type Sender interface {
	PublishWithRetry(ctx context.Context, msg rabbitmq.Message) error
}

// RabbitMQPublisher sends events as JSON messages to an exchange
type RabbitMQPublisher struct {
	sender Sender
}

// NewRabbitMQPublisher creates a publisher over a connected client
func NewRabbitMQPublisher(sender Sender) *RabbitMQPublisher {
	return &RabbitMQPublisher{sender: sender}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.sender.PublishWithRetry(ctx, rabbitmq.Message{
		Body:        body,
		ContentType: "application/json",
		MessageID:   event.JobID,
		Type:        EventType,
	}); err != nil {
		return fmt.Errorf("failed to publish job %s to RabbitMQ: %w", event.JobID, err)
	}
	return nil
}
