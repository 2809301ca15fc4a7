// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package rpcfx provides a JSON-RPC client to go.uber.org/fx applications.
package rpcfx

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/luxfi/jsonrpc"
)

// Module provides a *jsonrpc.Client built from a jsonrpc.Config. The client is
// closed when the application stops.
func Module() fx.Option {
	return fx.Module("jsonrpc",
		fx.Provide(NewClient),
		fx.Invoke(registerLifecycle),
	)
}

// Params are the dependencies of NewClient.
type Params struct {
	fx.In

	Config     jsonrpc.Config
	Logger     *zap.Logger           `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
	HTTPClient *http.Client          `optional:"true"`
	GRPCConn   *grpc.ClientConn      `optional:"true"`
	Options    []jsonrpc.Option      `group:"jsonrpcOptions"`
}

// NewClient validates the configuration and creates the client.
func NewClient(p Params) (*jsonrpc.Client, error) {
	if err := p.Config.Validate(); err != nil {
		return nil, err
	}
	opts := p.Config.Options()
	if p.Logger != nil {
		opts = append(opts, jsonrpc.WithLogger(p.Logger.Named("jsonrpc")))
	}
	if p.Registerer != nil {
		opts = append(opts, jsonrpc.WithRegisterer(p.Registerer))
	}
	if p.HTTPClient != nil {
		opts = append(opts, jsonrpc.WithHTTPClient(p.HTTPClient))
	}
	if p.GRPCConn != nil {
		opts = append(opts, jsonrpc.WithGRPCConn(p.GRPCConn))
	}
	opts = append(opts, p.Options...)
	return jsonrpc.New(p.Config.Endpoint, opts...)
}

func registerLifecycle(lc fx.Lifecycle, cfg jsonrpc.Config, client *jsonrpc.Client) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.MethodDiscovery {
				return nil
			}
			_, err := client.ListMethods(ctx)
			return err
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
}
