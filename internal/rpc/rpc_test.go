package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/rabbitbridge/rabbitbridge/internal/broker"
)

const testQueue = "rpc.test"

func echoHandler(_ context.Context, args msgpack.RawMessage) (any, error) {
	var msg string
	if err := DecodeArgs(args, &msg); err != nil {
		return nil, err
	}
	return "echo:" + msg, nil
}

// newTestRig wires a server and client over an in-process broker. The server
// is consuming before the client is created, so the request queue exists.
func newTestRig(t *testing.T, timeout time.Duration) (*Client, *Server) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := broker.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := NewServer(mem, testQueue, logger)
	srv.Handle("echo", echoHandler)
	require.NoError(t, srv.Serve(ctx))

	client, err := Dial(ctx, mem, Config{RequestQueue: testQueue, Timeout: timeout})
	require.NoError(t, err)
	return client, srv
}

func TestCall_Echo(t *testing.T) {
	client, _ := newTestRig(t, 2*time.Second)

	var reply string
	err := client.Call(context.Background(), "echo", "foo", &reply)
	require.NoError(t, err)
	assert.Equal(t, "echo:foo", reply)
}

func TestCall_RemoteFailure(t *testing.T) {
	client, srv := newTestRig(t, 2*time.Second)
	srv.Handle("explode", func(context.Context, msgpack.RawMessage) (any, error) {
		return nil, errors.New("kaboom")
	})

	err := client.Call(context.Background(), "explode", nil, nil)
	require.Error(t, err)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Equal(t, "explode", remoteErr.Method)
	assert.Contains(t, remoteErr.Message, "kaboom")
	assert.NotErrorIs(t, err, ErrNoReply)
}

func TestCall_UnknownMethod(t *testing.T) {
	client, _ := newTestRig(t, 2*time.Second)

	err := client.Call(context.Background(), "missing", nil, nil)
	require.Error(t, err)

	var remoteErr *RemoteError
	require.ErrorAs(t, err, &remoteErr)
	assert.Contains(t, remoteErr.Message, "unknown method")
}

func TestCall_Timeout(t *testing.T) {
	client, srv := newTestRig(t, 100*time.Millisecond)
	srv.Handle("suspend", func(context.Context, msgpack.RawMessage) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return nil, nil
	})

	start := time.Now()
	err := client.Call(context.Background(), "suspend", nil, nil)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrNoReply)
	var remoteErr *RemoteError
	assert.False(t, errors.As(err, &remoteErr), "timeout must not look like a remote failure")
	assert.Less(t, elapsed, 400*time.Millisecond, "call must not wait past the timeout")

	// The late reply is dropped; the client keeps working.
	var reply string
	require.NoError(t, client.Call(context.Background(), "echo", "bar", &reply))
	assert.Equal(t, "echo:bar", reply)
}

func TestCall_ContextCancelled(t *testing.T) {
	client, srv := newTestRig(t, 5*time.Second)
	srv.Handle("suspend", func(context.Context, msgpack.RawMessage) (any, error) {
		time.Sleep(500 * time.Millisecond)
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.Call(ctx, "suspend", nil, nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNotify_FireAndForget(t *testing.T) {
	client, srv := newTestRig(t, 2*time.Second)

	release := make(chan struct{})
	received := make(chan string, 1)
	srv.Handle("noAnswer", func(_ context.Context, args msgpack.RawMessage) (any, error) {
		<-release
		var msg string
		if err := DecodeArgs(args, &msg); err != nil {
			return nil, err
		}
		received <- "received:" + msg
		return nil, nil
	})

	// Notify returns while the handler is still blocked.
	require.NoError(t, client.Notify(context.Background(), "noAnswer", "foo"))
	close(release)

	select {
	case got := <-received:
		assert.Equal(t, "received:foo", got)
	case <-time.After(2 * time.Second):
		t.Fatal("handler side effect never observed")
	}
}

func TestCall_ConcurrentCallsAreIndependent(t *testing.T) {
	client, srv := newTestRig(t, 150*time.Millisecond)
	srv.Handle("slow", func(context.Context, msgpack.RawMessage) (any, error) {
		time.Sleep(400 * time.Millisecond)
		return "late", nil
	})

	var wg sync.WaitGroup
	var slowErr, fastErr error
	var fastReply string

	wg.Add(2)
	go func() {
		defer wg.Done()
		slowErr = client.Call(context.Background(), "slow", nil, nil)
	}()
	go func() {
		defer wg.Done()
		fastErr = client.Call(context.Background(), "echo", "fast", &fastReply)
	}()
	wg.Wait()

	require.ErrorIs(t, slowErr, ErrNoReply)
	require.NoError(t, fastErr)
	assert.Equal(t, "echo:fast", fastReply)
}

func TestCall_ManyConcurrentEchoes(t *testing.T) {
	client, _ := newTestRig(t, 2*time.Second)

	var wg sync.WaitGroup
	errs := make([]error, 20)
	replies := make([]string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.Call(context.Background(), "echo", fmt.Sprintf("m%d", i), &replies[i])
		}(i)
	}
	wg.Wait()

	for i := 0; i < 20; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("echo:m%d", i), replies[i])
	}
}

func TestCall_StructArguments(t *testing.T) {
	type sumArgs struct {
		A int `msgpack:"a"`
		B int `msgpack:"b"`
	}

	client, srv := newTestRig(t, 2*time.Second)
	srv.Handle("sum", func(_ context.Context, args msgpack.RawMessage) (any, error) {
		var in sumArgs
		if err := DecodeArgs(args, &in); err != nil {
			return nil, err
		}
		return in.A + in.B, nil
	})

	var total int
	require.NoError(t, client.Call(context.Background(), "sum", sumArgs{A: 2, B: 40}, &total))
	assert.Equal(t, 42, total)
}

func TestClient_PendingTableEmptiesAfterCalls(t *testing.T) {
	client, _ := newTestRig(t, 2*time.Second)

	var reply string
	require.NoError(t, client.Call(context.Background(), "echo", "x", &reply))

	client.mu.Lock()
	defer client.mu.Unlock()
	assert.Empty(t, client.pending)
}

func TestEncodeResponse_RemoteErrorWireShape(t *testing.T) {
	body, err := encodeResponse(nil, errors.New("boom"))
	require.NoError(t, err)

	resp, err := decodeResponse(body)
	require.NoError(t, err)
	assert.Equal(t, "boom", resp.Err)
	assert.Empty(t, resp.Result)
}
