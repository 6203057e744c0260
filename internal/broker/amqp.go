package broker

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQP is a Connection backed by a RabbitMQ connection with a single channel.
type AMQP struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

// DialAMQP connects to the broker at the given AMQP URL.
func DialAMQP(url string, logger *slog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}

	return &AMQP{
		conn:   conn,
		ch:     ch,
		logger: logger,
	}, nil
}

// DeclareExchange declares a durable exchange of the given kind.
func (a *AMQP) DeclareExchange(name, kind string) error {
	if err := a.ch.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// DeclareQueue declares a queue and returns the broker-assigned name.
// Exclusive queues are non-durable, auto-deleted and private to this
// connection; named queues are durable.
func (a *AMQP) DeclareQueue(name string, exclusive bool) (string, error) {
	q, err := a.ch.QueueDeclare(name, !exclusive, exclusive, exclusive, false, nil)
	if err != nil {
		return "", fmt.Errorf("declare queue %q: %w", name, err)
	}
	return q.Name, nil
}

// BindQueue binds queue to exchange under routingKey.
func (a *AMQP) BindQueue(queue, exchange, routingKey string) error {
	if err := a.ch.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}
	return nil
}

// Publish sends msg to the exchange under the routing key.
func (a *AMQP) Publish(ctx context.Context, exchange, routingKey string, msg Message) error {
	err := a.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		Headers:         headersToTable(msg.Headers),
		ContentType:     msg.ContentType,
		ContentEncoding: msg.ContentEncoding,
		CorrelationId:   msg.CorrelationID,
		ReplyTo:         msg.ReplyTo,
		Body:            msg.Body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}
	return nil
}

// Subscribe starts an auto-ack consumer on queue. Deliveries are handed to
// handler on a dedicated goroutine until ctx is cancelled or the channel
// closes.
func (a *AMQP) Subscribe(ctx context.Context, queue string, handler Handler) error {
	deliveries, err := a.ch.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queue, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					a.logger.Info("consumer channel closed", "queue", queue)
					return
				}
				handler(Delivery{
					Message: Message{
						Headers:         tableToHeaders(d.Headers),
						Body:            d.Body,
						ContentType:     d.ContentType,
						ContentEncoding: d.ContentEncoding,
						CorrelationID:   d.CorrelationId,
						ReplyTo:         d.ReplyTo,
					},
					Exchange:   d.Exchange,
					RoutingKey: d.RoutingKey,
				})
			}
		}
	}()

	return nil
}

// Close shuts down the channel and connection.
func (a *AMQP) Close() error {
	if a.ch != nil {
		a.ch.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}

func headersToTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}
	table := make(amqp.Table, len(headers))
	for k, v := range headers {
		table[k] = v
	}
	return table
}

// tableToHeaders flattens an AMQP header table to strings. Foreign publishers
// may set non-string values; those are stringified.
func tableToHeaders(table amqp.Table) map[string]string {
	if len(table) == 0 {
		return nil
	}
	headers := make(map[string]string, len(table))
	for k, v := range table {
		if s, ok := v.(string); ok {
			headers[k] = s
			continue
		}
		headers[k] = fmt.Sprintf("%v", v)
	}
	return headers
}
