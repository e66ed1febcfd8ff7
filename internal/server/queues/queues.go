package queues

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/aturkov/custodykeeper/internal/logging"
)

const (
	connectRetries = 7
	consumerTag    = "custodykeeper"
)

// ConnectWithRetry dials the broker, doubling the wait between attempts.
// Brokers routinely come up after the server in a compose stack.
func ConnectWithRetry(ctx context.Context, url string, logger logging.Logger) (*amqp.Connection, error) {
	wait := time.Second
	var lastErr error

	for attempt := 1; attempt <= connectRetries; attempt++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Warn(ctx, "amqp connect failed", "attempt", attempt, "retry_in", wait.String(), "error", err.Error())

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return nil, fmt.Errorf("amqp connect: %w", lastErr)
}

// DeclareTopology sets up the durable direct exchange, the command queue,
// and its binding. Notification routing keys bind no queue here; consumers
// of notifications declare their own.
func DeclareTopology(ch *amqp.Channel, exchange, commandQueue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("exchange declare: %w", err)
	}
	if _, err := ch.QueueDeclare(commandQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	if err := ch.QueueBind(commandQueue, commandQueue, exchange, false, nil); err != nil {
		return fmt.Errorf("queue bind: %w", err)
	}
	return nil
}
