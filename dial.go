// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"

	"go.uber.org/multierr"
)

// Dial creates a client for endpoint. With WithMethodDiscovery the server
// method list is loaded before Dial returns.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	c, err := New(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	if !c.opts.methodDiscovery {
		return c, nil
	}
	if _, err := c.ListMethods(ctx); err != nil {
		return nil, multierr.Append(err, c.Close())
	}
	return c, nil
}

// DialConfig validates cfg and dials cfg.Endpoint. opts are applied after the
// options derived from cfg.
func DialConfig(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return Dial(ctx, cfg.Endpoint, append(cfg.Options(), opts...)...)
}
