package rpc

import (
	"errors"
	"fmt"
)

// ErrNoReply is returned by Call when no correlated reply arrives within the
// configured timeout. It is distinct from a remote handler failure.
var ErrNoReply = errors.New("no reply received within the configured timeout")

// RemoteError reports that the remote handler failed. The caller's request
// reached the service; the service answered with an error.
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote call %s failed: %s", e.Method, e.Message)
}
