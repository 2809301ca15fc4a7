// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "luxfi-jsonrpc/1.0"

const (
	defaultMaxConcurrent = 1
	defaultPoolCapacity  = 8
)

// Option configures a Client
type Option func(*options)

type options struct {
	maxConcurrent   int
	poolCapacity    int
	transformDates  bool
	applyFixups     bool
	handler         ExceptionHandler
	profiling       bool
	userAgent       string
	transports      []string
	httpClient      *http.Client
	grpcConn        *grpc.ClientConn
	factory         Factory
	historySize     int
	registerer      prometheus.Registerer
	clock           clock.Clock
	executor        Executor
	logger          *zap.Logger
	codec           Codec
	methodDiscovery bool
}

func newOptions(opts []Option) *options {
	o := &options{
		maxConcurrent: defaultMaxConcurrent,
		poolCapacity:  defaultPoolCapacity,
		applyFixups:   true,
		userAgent:     DefaultUserAgent,
		transports:    append([]string(nil), DefaultTransports...),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.clock == nil {
		o.clock = clock.New()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.codec == nil {
		o.codec = defaultCodec
	}
	return o
}

func (o *options) validate() error {
	return invalidOptions(o.problems())
}

func (o *options) problems() []error {
	var errs []error
	if o.maxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max concurrent must be at least 1, got %d", o.maxConcurrent))
	}
	if o.poolCapacity < 0 {
		errs = append(errs, fmt.Errorf("pool capacity must not be negative, got %d", o.poolCapacity))
	}
	if o.historySize < 0 {
		errs = append(errs, fmt.Errorf("history size must not be negative, got %d", o.historySize))
	}
	if o.factory == nil && len(o.transports) == 0 {
		errs = append(errs, errors.New("no transports configured"))
	}
	return errs
}

func invalidOptions(problems []error) error {
	if len(problems) == 0 {
		return nil
	}
	return errors.Join(ErrInvalidOptions, errors.Join(problems...))
}

// WithMaxConcurrent sets how many non-blocking calls may be on the wire at once
func WithMaxConcurrent(n int) Option {
	return func(o *options) { o.maxConcurrent = n }
}

// WithPoolCapacity sets how many idle transport handles are kept for reuse
func WithPoolCapacity(n int) Option {
	return func(o *options) { o.poolCapacity = n }
}

// WithDateTransform turns serialized dates in results into time.Time values
func WithDateTransform(enabled bool) Option {
	return func(o *options) { o.transformDates = enabled }
}

// WithFixups controls whether shared and circular references are restored
func WithFixups(enabled bool) Option {
	return func(o *options) { o.applyFixups = enabled }
}

// WithExceptionHandler sets the handler for panics raised by callbacks
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(o *options) { o.handler = h }
}

// WithProfiling records a Profile for every non-blocking call
func WithProfiling() Option {
	return func(o *options) { o.profiling = true }
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) Option {
	return func(o *options) { o.userAgent = ua }
}

// WithTransports sets the transport names to probe, in order of preference
func WithTransports(names ...string) Option {
	return func(o *options) { o.transports = append([]string(nil), names...) }
}

// WithHTTPClient sets the client used by the http transport
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithGRPCConn enables the grpc transport over conn. The connection is not
// closed by the client.
func WithGRPCConn(conn *grpc.ClientConn) Option {
	return func(o *options) { o.grpcConn = conn }
}

// WithHandleFactory bypasses the transport registry
func WithHandleFactory(f Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithHistory keeps the last n request and response bodies
func WithHistory(n int) Option {
	return func(o *options) { o.historySize = n }
}

// WithRegisterer registers the client metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithClock sets the clock used for profile timestamps
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithExecutor sets the executor running drain passes. Schedule must not run
// the task before returning.
func WithExecutor(e Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCodec sets a custom codec
func WithCodec(c Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithMethodDiscovery loads the server method list when dialing
func WithMethodDiscovery() Option {
	return func(o *options) { o.methodDiscovery = true }
}
