package appender

// Config holds appender settings. Loaded once at construction; the appender
// never mutates it at runtime.
type Config struct {
	// Exchange is the destination exchange name.
	Exchange string
	// ExchangeKind is the exchange type declared on first use.
	ExchangeKind string
	// RoutingKeyPattern builds the per-event routing key: %c expands to the
	// logger name, %p to the level. A pattern without tokens is a fixed key.
	RoutingKeyPattern string
	// ContentType and ContentEncoding are stamped on every message.
	ContentType     string
	ContentEncoding string
	// Format renders an event to the message text. Nil selects the default
	// "timestamp LEVEL logger: message" layout.
	Format func(Event) string
}

// DefaultConfig returns the standard appender settings.
func DefaultConfig() Config {
	return Config{
		Exchange:          "logs",
		ExchangeKind:      "topic",
		RoutingKeyPattern: "%c.%p",
		ContentType:       "text/plain",
		ContentEncoding:   "UTF-8",
	}
}
