// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import "errors"

// Config is the declarative form of the client options.
type Config struct {
	Endpoint        string   `json:"endpoint"`
	MaxConcurrent   int      `json:"maxConcurrent"`
	PoolCapacity    int      `json:"poolCapacity"`
	TransformDates  bool     `json:"transformDates"`
	ApplyFixups     bool     `json:"applyFixups"`
	Profiling       bool     `json:"profiling"`
	UserAgent       string   `json:"userAgent"`
	Transports      []string `json:"transports"`
	HistorySize     int      `json:"historySize"`
	MethodDiscovery bool     `json:"methodDiscovery"`
}

// DefaultConfig returns the configuration New uses when no option is given.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: defaultMaxConcurrent,
		PoolCapacity:  defaultPoolCapacity,
		ApplyFixups:   true,
		UserAgent:     DefaultUserAgent,
		Transports:    append([]string(nil), DefaultTransports...),
	}
}

// Options converts the configuration into client options.
func (c Config) Options() []Option {
	opts := []Option{
		WithMaxConcurrent(c.MaxConcurrent),
		WithPoolCapacity(c.PoolCapacity),
		WithDateTransform(c.TransformDates),
		WithFixups(c.ApplyFixups),
		WithHistory(c.HistorySize),
	}
	if c.Profiling {
		opts = append(opts, WithProfiling())
	}
	if c.UserAgent != "" {
		opts = append(opts, WithUserAgent(c.UserAgent))
	}
	if len(c.Transports) > 0 {
		opts = append(opts, WithTransports(c.Transports...))
	}
	if c.MethodDiscovery {
		opts = append(opts, WithMethodDiscovery())
	}
	return opts
}

// Validate reports every invalid field, joined with ErrInvalidOptions.
func (c Config) Validate() error {
	problems := newOptions(c.Options()).problems()
	if c.Endpoint == "" {
		problems = append(problems, errors.New("endpoint is required"))
	}
	return invalidOptions(problems)
}
