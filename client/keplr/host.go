// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package keplr

import (
	"context"
	"encoding/base64"
	"encoding/json"
)

// Host is the wallet's JavaScript API as seen from Go. Implementations are
// transport adapters (see packages jshost and relay) or the in-memory stub in
// keplrtest. Arguments and results are JSON. Host-thrown errors must be
// returned as *HostError.
type Host interface {
	// Available reports whether the wallet object is present. It must not
	// block.
	Available() bool
	// Call invokes a wallet method and awaits its result.
	Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error)
	// Notify invokes a wallet method without waiting for or reporting any
	// result.
	Notify(method string, args ...json.RawMessage)
	// Object invokes a wallet method that returns an object with methods of
	// its own, such as an offline signer, and returns a reference to it.
	Object(ctx context.Context, method string, args ...json.RawMessage) (HostObject, error)
}

// HostObject is a reference to an object owned by the host.
type HostObject interface {
	// Property reads a data property of the object. A missing property is a
	// nil result and a nil error. Property must not block.
	Property(name string) (json.RawMessage, error)
	// Call invokes a method of the object and awaits its result.
	Call(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error)
}

// BytesArgKey is the key of the JSON envelope used for binary arguments.
// Host adapters turn {"$bytes": "<base64>"} into a Uint8Array.
const BytesArgKey = "$bytes"

// BytesArg marks a byte slice argument that the host expects as a
// Uint8Array.
type BytesArg []byte

// MarshalJSON encodes the envelope.
func (b BytesArg) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{BytesArgKey: base64.StdEncoding.EncodeToString(b)})
}

// encodeArgs marshals each argument for a host call.
func encodeArgs(op string, args []interface{}) ([]json.RawMessage, error) {
	encArgs := make([]json.RawMessage, 0, len(args))
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			return nil, serializationError(op, err, "encoding argument %d: %v", i, err)
		}
		encArgs = append(encArgs, b)
	}
	return encArgs, nil
}

// decodeResult unmarshals a host result. A nil result pointer discards the
// value. JSON null, or no value at all, is a decoding failure for any
// non-nil result.
func decodeResult(op string, raw json.RawMessage, result interface{}) error {
	if result == nil {
		return nil
	}
	if len(raw) == 0 || string(raw) == "null" {
		return serializationError(op, nil, "no value returned")
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return serializationError(op, err, "decoding result: %v", err)
	}
	return nil
}

// caller is a host call site: the wallet itself or one of its objects.
type caller func(ctx context.Context, method string, args ...json.RawMessage) (json.RawMessage, error)
