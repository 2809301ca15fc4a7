// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"google.golang.org/grpc"
)

// Transport names
const (
	TransportGRPC = "grpc" // JSON-RPC tunneled through a grpc.ClientConn
	TransportHTTP = "http" // JSON-RPC over HTTP POST
)

// DefaultTransports is the order in which transports are probed.
var DefaultTransports = []string{TransportGRPC, TransportHTTP}

// Handle is a single request/response exchange with the server. A handle is
// reusable: after Body returns, Open may be called again.
type Handle interface {
	// Open starts a new request to endpoint
	Open(ctx context.Context, endpoint string) error

	// SetHeader sets a request header
	SetHeader(key, value string)

	// Send transmits the request body
	Send(body []byte) error

	// Status returns the response status code and text without the numeric
	// prefix
	Status() (int, string, error)

	// Header returns the response headers
	Header() http.Header

	// Body returns the full response body
	Body() ([]byte, error)

	// Close releases any resources held by the handle
	Close() error
}

// TransportConfig carries what a Factory may need to build a handle.
type TransportConfig struct {
	HTTPClient *http.Client
	GRPCConn   *grpc.ClientConn
}

// Factory constructs a Handle. It returns ErrTransportUnavailable when the
// transport cannot be used with the given config.
type Factory func(cfg *TransportConfig) (Handle, error)

var (
	transportsMu sync.RWMutex
	transports   = map[string]Factory{
		TransportHTTP: newHTTPHandle,
		TransportGRPC: newGRPCHandle,
	}
)

// RegisterTransport registers a named handle factory. Registering an existing
// name replaces it.
func RegisterTransport(name string, factory Factory) {
	transportsMu.Lock()
	defer transportsMu.Unlock()
	transports[name] = factory
}

func lookupTransport(name string) (Factory, bool) {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	f, ok := transports[name]
	return f, ok
}

// AvailableTransports returns the registered transport names in sorted order
func AvailableTransports() []string {
	transportsMu.RLock()
	defer transportsMu.RUnlock()
	result := make([]string, 0, len(transports))
	for name := range transports {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// HasTransport checks if a transport is registered
func HasTransport(name string) bool {
	_, ok := lookupTransport(name)
	return ok
}
