package rpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rabbitbridge/rabbitbridge/internal/broker"
)

// Config holds client settings.
type Config struct {
	// RequestQueue is the queue the remote service consumes.
	RequestQueue string
	// Timeout bounds how long Call waits for a reply.
	Timeout time.Duration
}

// DefaultConfig returns the standard client settings.
func DefaultConfig() Config {
	return Config{
		RequestQueue: "rpc",
		Timeout:      5 * time.Second,
	}
}

// outcome is what the reply consumer hands to a waiting caller.
type outcome struct {
	resp response
	err  error
}

// Client issues calls over the broker. Each request carries a process-unique
// correlation identifier and the client's private reply queue as its reply-to
// address; replies are matched back to waiting callers through the pending
// table.
type Client struct {
	conn       broker.Connection
	config     Config
	replyQueue string

	mu      sync.Mutex
	pending map[string]chan outcome
}

// Dial creates a client over conn: it declares an exclusive broker-named
// reply queue and installs the reply consumer before any call can be issued.
// ctx bounds the lifetime of the reply subscription.
func Dial(ctx context.Context, conn broker.Connection, config Config) (*Client, error) {
	defaults := DefaultConfig()
	if config.RequestQueue == "" {
		config.RequestQueue = defaults.RequestQueue
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	replyQueue, err := conn.DeclareQueue("", true)
	if err != nil {
		return nil, fmt.Errorf("declare reply queue: %w", err)
	}

	c := &Client{
		conn:       conn,
		config:     config,
		replyQueue: replyQueue,
		pending:    make(map[string]chan outcome),
	}
	if err := conn.Subscribe(ctx, replyQueue, c.handleReply); err != nil {
		return nil, fmt.Errorf("subscribe reply queue: %w", err)
	}
	return c, nil
}

// Call publishes a request and blocks until a correlated reply arrives, the
// timeout elapses, or ctx is cancelled. A non-nil reply receives the decoded
// result. Remote handler failures surface as *RemoteError; an elapsed
// timeout surfaces as ErrNoReply.
func (c *Client) Call(ctx context.Context, method string, args, reply any) error {
	body, err := encodeRequest(method, args)
	if err != nil {
		return err
	}

	// Register before publishing so a reply beating the select cannot be
	// dropped for lack of a pending entry.
	id := xid.New().String()
	ch := make(chan outcome, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	err = c.conn.Publish(ctx, "", c.config.RequestQueue, broker.Message{
		Body:          body,
		ContentType:   contentTypeMsgpack,
		CorrelationID: id,
		ReplyTo:       c.replyQueue,
	})
	if err != nil {
		c.retire(id)
		return fmt.Errorf("publish request %s: %w", method, err)
	}

	timer := time.NewTimer(c.config.Timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return c.finish(method, out, reply)
	case <-timer.C:
		if c.retire(id) {
			return ErrNoReply
		}
		// The reply consumer won the retire race; its send is imminent.
		return c.finish(method, <-ch, reply)
	case <-ctx.Done():
		if c.retire(id) {
			return ctx.Err()
		}
		return c.finish(method, <-ch, reply)
	}
}

// Notify publishes a fire-and-forget request. It carries no correlation
// metadata and returns as soon as the publish completes.
func (c *Client) Notify(ctx context.Context, method string, args any) error {
	body, err := encodeRequest(method, args)
	if err != nil {
		return err
	}
	err = c.conn.Publish(ctx, "", c.config.RequestQueue, broker.Message{
		Body:        body,
		ContentType: contentTypeMsgpack,
	})
	if err != nil {
		return fmt.Errorf("publish notification %s: %w", method, err)
	}
	return nil
}

// handleReply runs on the connection's consumer goroutine. Exactly one of
// handleReply and the caller's timeout retires a pending entry; whichever
// wins fires the caller's continuation. Unmatched and late replies are
// dropped.
func (c *Client) handleReply(d broker.Delivery) {
	if d.CorrelationID == "" {
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[d.CorrelationID]
	if ok {
		delete(c.pending, d.CorrelationID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}

	resp, err := decodeResponse(d.Body)
	ch <- outcome{resp: resp, err: err}
}

// retire removes the pending entry for id, reporting whether this side won
// the removal race.
func (c *Client) retire(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[id]; !ok {
		return false
	}
	delete(c.pending, id)
	return true
}

func (c *Client) finish(method string, out outcome, reply any) error {
	if out.err != nil {
		return out.err
	}
	if out.resp.Err != "" {
		return &RemoteError{Method: method, Message: out.resp.Err}
	}
	if reply == nil || len(out.resp.Result) == 0 {
		return nil
	}
	if err := msgpack.Unmarshal(out.resp.Result, reply); err != nil {
		return fmt.Errorf("decode reply for %s: %w", method, err)
	}
	return nil
}
