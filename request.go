// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"strconv"
	"sync/atomic"

	"github.com/benbjohnson/clock"
)

// Version is the JSON-RPC protocol version sent with every request.
const Version = "2.0"

const (
	objectMethodPrefix  = ".obj["
	constructorSuffix   = ".$constructor"
	listMethodsMethod   = "system.listMethods"
	referenceListPrefix = ".ref"
)

type wireRequest struct {
	Version string        `json:"jsonrpc"`
	ID      *uint64       `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// requestBuilder turns calls into wire requests. It owns the request id
// counter; notify requests never advance it.
type requestBuilder struct {
	nextID  atomic.Uint64
	codec   Codec
	clock   clock.Clock
	profile bool
}

func newRequestBuilder(codec Codec, clk clock.Clock, profile bool) *requestBuilder {
	return &requestBuilder{codec: codec, clock: clk, profile: profile}
}

// wireMethod returns the method name as sent on the wire. A positive objectID
// targets a remote object.
func wireMethod(method string, objectID int64) string {
	if objectID > 0 {
		return objectMethodPrefix + strconv.FormatInt(objectID, 10) + "]." + method
	}
	return method
}

// constructorMethod names the remote constructor of class.
func constructorMethod(class string) string {
	return class + constructorSuffix
}

// build serializes a request. Notify requests get id 0 on the Call and null on
// the wire.
func (b *requestBuilder) build(method string, args []interface{}, objectID int64, notify bool) (*Call, error) {
	if args == nil {
		args = []interface{}{}
	}
	req := wireRequest{
		Version: Version,
		Method:  wireMethod(method, objectID),
		Params:  args,
	}
	call := &Call{
		Method:   method,
		ObjectID: objectID,
		Done:     make(chan *Call, 1),
	}
	if !notify {
		id := b.nextID.Add(1)
		req.ID = &id
		call.ID = id
	}
	body, err := b.codec.Encode(&req)
	if err != nil {
		return nil, marshalError(err)
	}
	call.body = body
	if b.profile {
		call.Profile = &Profile{Submit: b.clock.Now()}
	}
	return call, nil
}
