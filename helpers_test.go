// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/stretchr/testify/require"
)

// Arith is served by the gorilla json2 test server.
type Arith struct{}

type AddArgs struct {
	A, B int
}

func (Arith) Add(_ *http.Request, args *AddArgs, reply *int) error {
	*reply = args.A + args.B
	return nil
}

func (Arith) Fail(_ *http.Request, _ *AddArgs, _ *int) error {
	return &json2.Error{Code: -32001, Message: "boom", Data: "detail"}
}

// Recorder remembers the values it was sent.
type Recorder struct {
	mu     sync.Mutex
	values []string
}

type RecordArgs struct {
	Value string
}

func (r *Recorder) Record(_ *http.Request, args *RecordArgs, reply *int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, args.Value)
	*reply = len(r.values)
	return nil
}

func (r *Recorder) Values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

// newJSON2Handler returns a gorilla JSON-RPC 2.0 server with the Arith and
// Recorder services.
func newJSON2Handler(t *testing.T) (http.Handler, *Recorder) {
	t.Helper()
	s := rpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), jsonRPCContentType)
	require.NoError(t, s.RegisterService(new(Arith), "Arith"))
	recorder := &Recorder{}
	require.NoError(t, s.RegisterService(recorder, "Recorder"))
	return s, recorder
}

func newJSON2Server(t *testing.T) (*httptest.Server, *Recorder) {
	t.Helper()
	h, recorder := newJSON2Handler(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, recorder
}

// incoming is a request as seen by a scripted server.
type incoming struct {
	ID     *uint64           `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// newScriptedServer answers each request with the body returned by reply.
// A string reply is written verbatim; anything else is JSON encoded.
func newScriptedServer(t *testing.T, reply func(req incoming) interface{}) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req incoming
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch body := reply(req).(type) {
		case string:
			_, _ = w.Write([]byte(body))
		default:
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// manualExecutor holds drain passes until the test runs them.
type manualExecutor struct {
	mu    sync.Mutex
	tasks []func()
}

func (e *manualExecutor) Schedule(task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
}

func (e *manualExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

// RunAll runs pending tasks, including ones scheduled while running, until
// none remain.
func (e *manualExecutor) RunAll() {
	for {
		e.mu.Lock()
		if len(e.tasks) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		e.mu.Unlock()
		task()
	}
}
