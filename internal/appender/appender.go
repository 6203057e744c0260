package appender

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/rabbitbridge/rabbitbridge/internal/broker"
)

// declareState tracks the lazy exchange declaration.
type declareState int

const (
	stateUndeclared declareState = iota
	stateDeclaring
	stateDeclared
)

// Appender publishes log events to a broker exchange.
type Appender struct {
	conn   broker.Connection
	config Config

	mu    sync.Mutex
	state declareState
}

// New creates an appender over conn. Zero config fields fall back to
// DefaultConfig values.
func New(conn broker.Connection, config Config) *Appender {
	defaults := DefaultConfig()
	if config.Exchange == "" {
		config.Exchange = defaults.Exchange
	}
	if config.ExchangeKind == "" {
		config.ExchangeKind = defaults.ExchangeKind
	}
	if config.RoutingKeyPattern == "" {
		config.RoutingKeyPattern = defaults.RoutingKeyPattern
	}
	if config.ContentType == "" {
		config.ContentType = defaults.ContentType
	}
	if config.ContentEncoding == "" {
		config.ContentEncoding = defaults.ContentEncoding
	}
	if config.Format == nil {
		config.Format = defaultFormat
	}
	return &Appender{conn: conn, config: config}
}

// Emit publishes one event. The destination exchange is declared before the
// first publish; if declaration fails the error is returned, the event is not
// published, and the next Emit retries the declaration.
func (a *Appender) Emit(ctx context.Context, e Event) error {
	if err := a.maybeDeclareExchange(); err != nil {
		return fmt.Errorf("declare log exchange: %w", err)
	}

	msg := broker.Message{
		Headers:         maps.Clone(e.Properties),
		Body:            []byte(a.config.Format(e)),
		ContentType:     a.config.ContentType,
		ContentEncoding: a.config.ContentEncoding,
	}
	return a.conn.Publish(ctx, a.config.Exchange, a.routingKey(e), msg)
}

// maybeDeclareExchange declares the exchange at most once. An emit arriving
// while a declaration is in flight — including one re-entered from within the
// declaration itself — does not start a second declaration.
func (a *Appender) maybeDeclareExchange() error {
	a.mu.Lock()
	if a.state != stateUndeclared {
		a.mu.Unlock()
		return nil
	}
	a.state = stateDeclaring
	a.mu.Unlock()

	err := a.conn.DeclareExchange(a.config.Exchange, a.config.ExchangeKind)

	a.mu.Lock()
	if err != nil {
		a.state = stateUndeclared
	} else {
		a.state = stateDeclared
	}
	a.mu.Unlock()
	return err
}

func (a *Appender) routingKey(e Event) string {
	key := strings.ReplaceAll(a.config.RoutingKeyPattern, "%c", e.Logger)
	return strings.ReplaceAll(key, "%p", e.Level.String())
}

func defaultFormat(e Event) string {
	var b strings.Builder
	b.WriteString(e.Time.Format("2006-01-02T15:04:05.000Z07:00"))
	b.WriteByte(' ')
	b.WriteString(e.Level.String())
	b.WriteByte(' ')
	b.WriteString(e.Logger)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != "" {
		b.WriteString(": ")
		b.WriteString(e.Err)
	}
	b.WriteByte('\n')
	return b.String()
}
