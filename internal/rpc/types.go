// Package rpc provides a JSON-RPC 2.0 client with retry and timeout policy.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Endpoint is an addressable RPC backend. Immutable once constructed.
type Endpoint struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`

	// Optional client certificate / trust material for HTTPS backends.
	TLS *TLSConfig `yaml:"tls,omitempty"`
}

// TLSConfig holds client-side TLS material for an endpoint.
type TLSConfig struct {
	CertFile           string `yaml:"cert_file,omitempty"`
	KeyFile            string `yaml:"key_file,omitempty"`
	CAFile             string `yaml:"ca_file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify,omitempty"`
}

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      uint64 `json:"id"`
}

// Response is a JSON-RPC 2.0 response envelope. Exactly one of Result and
// Error is set on a well-formed response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`

	// Divergence carries the proxy's fan-out divergence annotation when the
	// call was routed through a differential proxy. Empty otherwise.
	Divergence string `json:"-"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// TransportError indicates the call never produced a JSON-RPC response:
// connection failure, timeout, non-2xx HTTP status or a malformed body.
// Only transport errors are retryable.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error calling %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransportError reports whether err is a transport-level failure.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
