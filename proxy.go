// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
)

// Method is the shared template for one method of a remote class. Every proxy
// of the class uses the same *Method.
type Method struct {
	Class string
	Name  string
}

// Registry caches the methods of remote classes. Class tables are built on
// first use from the server's method list and are never evicted.
type Registry struct {
	mu       sync.Mutex
	loaded   bool
	listed   []string
	toplevel []string
	classes  map[string]map[string]*Method

	client *Client
}

func newRegistry(c *Client) *Registry {
	return &Registry{
		classes: make(map[string]map[string]*Method),
		client:  c,
	}
}

// parseClassMethod splits a ".ref[Class].method" entry.
func parseClassMethod(name string) (class, method string, ok bool) {
	rest, ok := strings.CutPrefix(name, referenceListPrefix+"[")
	if !ok {
		return "", "", false
	}
	class, method, ok = strings.Cut(rest, "].")
	if !ok || class == "" || method == "" {
		return "", "", false
	}
	return class, method, true
}

// AddMethods loads a server method list. Once a list is loaded, methods
// missing from a class table are reported as ErrNoMethod.
func (r *Registry) AddMethods(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.loaded = true
	r.listed = append(r.listed, names...)
	for _, name := range names {
		class, method, ok := parseClassMethod(name)
		if !ok {
			r.toplevel = append(r.toplevel, name)
			continue
		}
		if table, built := r.classes[class]; built {
			if _, ok := table[method]; !ok {
				table[method] = &Method{Class: class, Name: method}
			}
		}
	}
}

// Methods returns the loaded top-level method names.
func (r *Registry) Methods() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.toplevel...)
}

// tableFor returns the method table of class, building it on first use.
// Callers hold r.mu.
func (r *Registry) tableFor(class string) map[string]*Method {
	if table, ok := r.classes[class]; ok {
		return table
	}
	table := make(map[string]*Method)
	for _, name := range r.listed {
		c, method, ok := parseClassMethod(name)
		if ok && c == class {
			table[method] = &Method{Class: class, Name: method}
		}
	}
	r.classes[class] = table
	return table
}

// Lookup returns the method template for class.name.
func (r *Registry) Lookup(class, name string) (*Method, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.tableFor(class)
	if m, ok := table[name]; ok {
		return m, nil
	}
	if r.loaded {
		return nil, noMethodError(class, name)
	}
	m := &Method{Class: class, Name: name}
	table[name] = m
	return m, nil
}

// NewProxy returns a proxy for the remote object objectID of class.
func (r *Registry) NewProxy(objectID int64, class string) *Proxy {
	return &Proxy{ObjectID: objectID, Class: class, registry: r}
}

// Proxy is a local handle to a remote object.
type Proxy struct {
	ObjectID int64
	Class    string

	registry *Registry
}

// Method returns the shared template for name.
func (p *Proxy) Method(name string) (*Method, error) {
	return p.registry.Lookup(p.Class, name)
}

// Call invokes method on the remote object and waits for the result.
func (p *Proxy) Call(ctx context.Context, method string, args ...interface{}) (interface{}, error) {
	m, err := p.Method(method)
	if err != nil {
		return nil, err
	}
	c, err := p.client()
	if err != nil {
		return nil, err
	}
	return c.call(ctx, m.Name, args, p.ObjectID)
}

// Go invokes method on the remote object without blocking.
func (p *Proxy) Go(method string, cb Callback, args ...interface{}) (*Call, error) {
	m, err := p.Method(method)
	if err != nil {
		return nil, err
	}
	c, err := p.client()
	if err != nil {
		return nil, err
	}
	return c.goCall(m.Name, cb, args, p.ObjectID)
}

// Notify invokes method on the remote object without expecting a reply.
func (p *Proxy) Notify(ctx context.Context, method string, args ...interface{}) error {
	m, err := p.Method(method)
	if err != nil {
		return err
	}
	c, err := p.client()
	if err != nil {
		return err
	}
	return c.notify(ctx, m.Name, args, p.ObjectID)
}

func (p *Proxy) client() (*Client, error) {
	if p.registry == nil || p.registry.client == nil {
		return nil, ErrClosed
	}
	return p.registry.client, nil
}

type remoteRef struct {
	Type     string `json:"JSONRPCType"`
	Class    string `json:"javaClass"`
	ObjectID int64  `json:"objectID"`
}

// MarshalJSON encodes the proxy as the reference the server handed out.
func (p *Proxy) MarshalJSON() ([]byte, error) {
	return json.Marshal(remoteRef{
		Type:     callableRefType,
		Class:    p.Class,
		ObjectID: p.ObjectID,
	})
}
