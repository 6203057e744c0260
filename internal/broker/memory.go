package broker

import (
	"context"
	"fmt"
	"sync"
)

const memoryQueueDepth = 64

// Memory is an in-process Connection used by tests and local development.
// It implements the same routing semantics the AMQP implementation exposes:
// the empty exchange routes directly to the queue named by the routing key,
// fanout exchanges deliver to every bound queue, and direct/topic exchanges
// deliver on an exact key match (the binding key "#" matches everything).
type Memory struct {
	mu        sync.Mutex
	exchanges map[string]string
	bindings  map[string][]binding
	queues    map[string]chan Delivery
	queueSeq  int
	closed    bool
}

type binding struct {
	key   string
	queue string
}

// NewMemory creates an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{
		exchanges: make(map[string]string),
		bindings:  make(map[string][]binding),
		queues:    make(map[string]chan Delivery),
	}
}

// DeclareExchange declares an exchange. Redeclaring with a different kind
// fails, matching broker behavior.
func (m *Memory) DeclareExchange(name, kind string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("declare exchange %s: connection closed", name)
	}
	if existing, ok := m.exchanges[name]; ok && existing != kind {
		return fmt.Errorf("declare exchange %s: kind mismatch (%s != %s)", name, existing, kind)
	}
	m.exchanges[name] = kind
	return nil
}

// DeclareQueue declares a queue, generating a name when none is given.
func (m *Memory) DeclareQueue(name string, exclusive bool) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return "", fmt.Errorf("declare queue %q: connection closed", name)
	}
	if name == "" {
		m.queueSeq++
		name = fmt.Sprintf("gen-%d", m.queueSeq)
	}
	if _, ok := m.queues[name]; !ok {
		m.queues[name] = make(chan Delivery, memoryQueueDepth)
	}
	return name, nil
}

// BindQueue binds queue to exchange under routingKey.
func (m *Memory) BindQueue(queue, exchange, routingKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.queues[queue]; !ok {
		return fmt.Errorf("bind: unknown queue %q", queue)
	}
	if _, ok := m.exchanges[exchange]; !ok {
		return fmt.Errorf("bind: unknown exchange %q", exchange)
	}
	m.bindings[exchange] = append(m.bindings[exchange], binding{key: routingKey, queue: queue})
	return nil
}

// Publish routes msg to matching queues. Publishing to the empty exchange
// requires the destination queue to exist; unroutable messages on a named
// exchange are dropped, as a real broker would.
func (m *Memory) Publish(_ context.Context, exchange, routingKey string, msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("publish to %s/%s: connection closed", exchange, routingKey)
	}

	var targets []chan Delivery
	if exchange == "" {
		q, ok := m.queues[routingKey]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("publish: no queue %q", routingKey)
		}
		targets = append(targets, q)
	} else {
		kind, ok := m.exchanges[exchange]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("publish: unknown exchange %q", exchange)
		}
		for _, b := range m.bindings[exchange] {
			if kind == "fanout" || b.key == routingKey || b.key == "#" {
				targets = append(targets, m.queues[b.queue])
			}
		}
	}
	m.mu.Unlock()

	d := Delivery{Message: msg, Exchange: exchange, RoutingKey: routingKey}
	for _, q := range targets {
		q <- d
	}
	return nil
}

// Subscribe consumes queue on a new goroutine until ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context, queue string, handler Handler) error {
	m.mu.Lock()
	q, ok := m.queues[queue]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("subscribe: unknown queue %q", queue)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d := <-q:
				handler(d)
			}
		}
	}()

	return nil
}

// Close stops accepting publishes and declarations. Consumers exit when
// their subscribe contexts are cancelled.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
