// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package jsonrpc is a JSON-RPC 2.0 client runtime for the Lux ecosystem.
//
// A single Client is shared by many concurrent callers. Calls are correlated
// with the server's replies by numeric id; notifications carry no id and get
// no result.
//
// # Calling modes
//
//	client, err := jsonrpc.Dial(ctx, "http://localhost:9650/ext/rpc")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Blocking
//	sum, err := client.Call(ctx, "math.add", 1, 2)
//
//	// Non-blocking, with a callback and a future
//	call, err := client.Go("math.add", func(result any, err error, _ *jsonrpc.Profile) {
//	    ...
//	}, 1, 2)
//	result, err := call.Wait(ctx)
//
//	// Fire and forget
//	err = client.Notify(ctx, "log.write", "hello")
//
// Non-blocking calls are queued and sent at most WithMaxConcurrent at a time.
// Their callbacks run one at a time on the scheduler's dispatch goroutine, in
// completion order. Cancel discards a call before its callback runs.
//
// # Transport Selection
//
// Requests travel over a named transport. The default order tries the grpc
// tunnel first, which is only available with WithGRPCConn, then plain HTTP:
//
//	jsonrpc.New(endpoint)                            // HTTP POST
//	jsonrpc.New(endpoint, jsonrpc.WithGRPCConn(cc))  // tunneled through gRPC
//
// RegisterTransport and WithHandleFactory plug in other transports.
//
// # Results
//
// Results are decoded with numbers kept as json.Number. Shared and circular
// references described by the server's fixups are restored, serialized dates
// become time.Time with WithDateTransform, and references to remote objects
// become *Proxy values whose methods can be called like top-level ones.
//
// # Architecture
//
//   - client.go, dial.go: Client, Dial
//   - request.go, call.go: request building and the Call future
//   - scheduler.go, executor.go: queueing and callback dispatch
//   - pool.go, transport.go, http.go, grpc.go: transport handles
//   - response.go, fixup.go, charset.go: result reconstruction
//   - proxy.go: remote object proxies and the class method registry
//   - errors.go: error kinds and codes
package jsonrpc
