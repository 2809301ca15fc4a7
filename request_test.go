// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestBuildRequest(t *testing.T) {
	b := newRequestBuilder(JSONCodec{}, clock.NewMock(), false)

	call, err := b.build("math.add", []interface{}{1, "two"}, 0, false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), call.ID)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"math.add","params":[1,"two"]}`, string(call.body))
	require.Nil(t, call.Profile)

	call, err = b.build("math.add", nil, 0, false)
	require.NoError(t, err)
	require.Equal(t, uint64(2), call.ID)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":2,"method":"math.add","params":[]}`, string(call.body))
}

func TestBuildNotifyKeepsCounter(t *testing.T) {
	b := newRequestBuilder(JSONCodec{}, clock.NewMock(), false)

	call, err := b.build("log.write", []interface{}{"hi"}, 0, true)
	require.NoError(t, err)
	require.Zero(t, call.ID)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":null,"method":"log.write","params":["hi"]}`, string(call.body))

	call, err = b.build("math.add", nil, 0, false)
	require.NoError(t, err)
	require.Equal(t, uint64(1), call.ID)
}

func TestBuildObjectMethod(t *testing.T) {
	b := newRequestBuilder(JSONCodec{}, clock.NewMock(), false)

	call, err := b.build("getBalance", nil, 42, false)
	require.NoError(t, err)
	require.Equal(t, "getBalance", call.Method)
	require.Equal(t, int64(42), call.ObjectID)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":".obj[42].getBalance","params":[]}`, string(call.body))

	require.Equal(t, "com.example.Account.$constructor", constructorMethod("com.example.Account"))
}

func TestBuildProxyArgument(t *testing.T) {
	b := newRequestBuilder(JSONCodec{}, clock.NewMock(), false)
	p := newRegistry(nil).NewProxy(3, "com.example.Account")

	call, err := b.build("transfer", []interface{}{p, 10}, 0, false)
	require.NoError(t, err)
	require.JSONEq(t, `{"jsonrpc":"2.0","id":1,"method":"transfer","params":[
		{"JSONRPCType":"CallableReference","javaClass":"com.example.Account","objectID":3},10]}`, string(call.body))
}

func TestBuildMarshalError(t *testing.T) {
	b := newRequestBuilder(JSONCodec{}, clock.NewMock(), false)

	_, err := b.build("bad", []interface{}{make(chan int)}, 0, false)
	require.ErrorIs(t, err, ErrMarshal)

	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, CodeMarshal, rpcErr.Code)
}

func TestBuildProfile(t *testing.T) {
	mock := clock.NewMock()
	b := newRequestBuilder(JSONCodec{}, mock, true)

	call, err := b.build("math.add", nil, 0, false)
	require.NoError(t, err)
	require.NotNil(t, call.Profile)
	require.Equal(t, mock.Now(), call.Profile.Submit)
}
