// Package broker abstracts the message broker behind a small connection
// interface with AMQP and in-process implementations. Connection pooling,
// transport retries and reconnects live here, not in the clients built on top.
package broker

import "context"

// Message is an outbound broker message. Headers are a flat string-to-string
// mapping; CorrelationID and ReplyTo ride in message metadata, not the body.
type Message struct {
	Headers         map[string]string
	Body            []byte
	ContentType     string
	ContentEncoding string
	CorrelationID   string
	ReplyTo         string
}

// Delivery is a consumed message together with how it was routed.
type Delivery struct {
	Message
	Exchange   string
	RoutingKey string
}

// Handler processes one delivery. It runs on the connection's consumer
// goroutine, separate from the goroutines issuing publishes.
type Handler func(Delivery)

// Connection is the broker contract shared by the appender and RPC clients.
type Connection interface {
	// DeclareExchange declares a named exchange of the given kind.
	// Declaring an existing exchange with the same kind is a no-op.
	DeclareExchange(name, kind string) error

	// DeclareQueue declares a queue and returns its name. An empty name asks
	// the broker to generate one; exclusive queues are private to this
	// connection and deleted with it.
	DeclareQueue(name string, exclusive bool) (string, error)

	// BindQueue binds a queue to an exchange under a routing key.
	BindQueue(queue, exchange, routingKey string) error

	// Publish sends msg to the exchange under the routing key. Publishing to
	// the empty exchange routes directly to the queue named by the key.
	Publish(ctx context.Context, exchange, routingKey string, msg Message) error

	// Subscribe registers handler for deliveries on queue. It returns once
	// the consumer is installed; deliveries arrive until ctx is cancelled or
	// the connection closes.
	Subscribe(ctx context.Context, queue string, handler Handler) error

	Close() error
}
