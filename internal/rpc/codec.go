// Package rpc provides synchronous request/reply and fire-and-forget calls
// over a broker queue with reply-to correlation.
package rpc

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const contentTypeMsgpack = "application/msgpack"

// request is the wire shape of a call. The correlation identifier and
// reply-to address ride in message metadata, not here.
type request struct {
	Method string             `msgpack:"method"`
	Args   msgpack.RawMessage `msgpack:"args"`
}

// response is the wire shape of a reply. A non-empty Err marks a remote
// handler failure; Result is unset in that case.
type response struct {
	Result msgpack.RawMessage `msgpack:"result"`
	Err    string             `msgpack:"error"`
}

func encodeRequest(method string, args any) ([]byte, error) {
	raw, err := msgpack.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args for %s: %w", method, err)
	}
	body, err := msgpack.Marshal(request{Method: method, Args: raw})
	if err != nil {
		return nil, fmt.Errorf("encode request %s: %w", method, err)
	}
	return body, nil
}

func decodeRequest(body []byte) (request, error) {
	var req request
	if err := msgpack.Unmarshal(body, &req); err != nil {
		return request{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func encodeResponse(result any, handlerErr error) ([]byte, error) {
	var resp response
	if handlerErr != nil {
		resp.Err = handlerErr.Error()
	} else {
		raw, err := msgpack.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("encode result: %w", err)
		}
		resp.Result = raw
	}
	body, err := msgpack.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return body, nil
}

func decodeResponse(body []byte) (response, error) {
	var resp response
	if err := msgpack.Unmarshal(body, &resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}

// DecodeArgs unmarshals a request's argument payload into v. Handlers use it
// to recover their typed arguments.
func DecodeArgs(args msgpack.RawMessage, v any) error {
	if err := msgpack.Unmarshal(args, v); err != nil {
		return fmt.Errorf("decode args: %w", err)
	}
	return nil
}
