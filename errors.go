// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/gorilla/rpc/v2/json2"
)

// Error codes shared with the server-side bridge.
const (
	CodeRemoteException json2.ErrorCode = 490
	CodeClient          json2.ErrorCode = 550
	CodeParse           json2.ErrorCode = 590
	CodeNoMethod        json2.ErrorCode = 591
	CodeUnmarshal       json2.ErrorCode = 592
	CodeMarshal         json2.ErrorCode = 593
)

// DefaultErrorName names errors that carry no trace and no name of their own.
const DefaultErrorName = "JSONRpcClientException"

var (
	ErrConnection = errors.New("jsonrpc: connection failed")
	ErrProtocol   = errors.New("jsonrpc: protocol error")
	ErrRemote     = errors.New("jsonrpc: remote error")
	ErrParse      = errors.New("jsonrpc: unable to parse response")
	ErrNoMethod   = errors.New("jsonrpc: no such method")
	ErrUnmarshal  = errors.New("jsonrpc: unable to unmarshal response")
	ErrMarshal    = errors.New("jsonrpc: unable to marshal request")

	ErrCanceled             = errors.New("jsonrpc: request canceled")
	ErrClosed               = errors.New("jsonrpc: client closed")
	ErrInvalidOptions       = errors.New("jsonrpc: invalid options")
	ErrNoTransport          = errors.New("jsonrpc: no transport available")
	ErrTransportUnavailable = errors.New("jsonrpc: transport unavailable")
	ErrCallbackPanic        = errors.New("jsonrpc: callback panicked")
)

// Kind classifies an *Error.
type Kind uint8

const (
	KindConnection Kind = iota + 1
	KindProtocol
	KindRemote
	KindParse
	KindNoMethod
	KindUnmarshal
	KindMarshal
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindRemote:
		return "remote"
	case KindParse:
		return "parse"
	case KindNoMethod:
		return "no method"
	case KindUnmarshal:
		return "unmarshal"
	case KindMarshal:
		return "marshal"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindConnection:
		return ErrConnection
	case KindProtocol:
		return ErrProtocol
	case KindRemote:
		return ErrRemote
	case KindParse:
		return ErrParse
	case KindNoMethod:
		return ErrNoMethod
	case KindUnmarshal:
		return ErrUnmarshal
	case KindMarshal:
		return ErrMarshal
	default:
		return nil
	}
}

// Error is the structured error returned by every client operation.
//
// Remote errors carry the server's code, message and data verbatim, and every
// field of the error object in Fields. Protocol errors carry the HTTP status in
// Status and Code.
type Error struct {
	Kind    Kind
	Code    json2.ErrorCode
	Message string
	Data    interface{}
	Name    string
	Trace   string
	Status  int
	Fields  map[string]interface{}

	cause error
}

func (e *Error) Error() string {
	var str string
	if e.Name != "" {
		str += e.Name
	}
	if e.Message != "" {
		if str != "" {
			str += ": "
		}
		str += e.Message
	}
	if str == "" {
		str = "no exception information given"
	}
	if e.cause != nil {
		str += " (" + e.cause.Error() + ")"
	}
	return str
}

func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if s := e.Kind.sentinel(); s != nil {
		errs = append(errs, s)
	}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// JSON returns the error as a gorilla json2 error object.
func (e *Error) JSON() *json2.Error {
	return &json2.Error{Code: e.Code, Message: e.Message, Data: e.Data}
}

func connectionError(cause error) *Error {
	return &Error{
		Kind:    KindConnection,
		Code:    CodeClient,
		Message: "Connection failed",
		Name:    DefaultErrorName,
		cause:   cause,
	}
}

func protocolError(status int, text string) *Error {
	return &Error{
		Kind:    KindProtocol,
		Code:    json2.ErrorCode(status),
		Message: text,
		Name:    DefaultErrorName,
		Status:  status,
	}
}

func parseError(cause error) *Error {
	return &Error{
		Kind:    KindParse,
		Code:    CodeParse,
		Message: "error parsing result",
		Name:    DefaultErrorName,
		cause:   cause,
	}
}

func unmarshalError(format string, args ...interface{}) *Error {
	return &Error{
		Kind:    KindUnmarshal,
		Code:    CodeUnmarshal,
		Message: fmt.Sprintf(format, args...),
		Name:    DefaultErrorName,
	}
}

func marshalError(cause error) *Error {
	return &Error{
		Kind:    KindMarshal,
		Code:    CodeMarshal,
		Message: "error marshalling params",
		Name:    DefaultErrorName,
		cause:   cause,
	}
}

func noMethodError(class, method string) *Error {
	return &Error{
		Kind:    KindNoMethod,
		Code:    CodeNoMethod,
		Message: fmt.Sprintf("method %s not found on %s", method, class),
		Name:    DefaultErrorName,
	}
}

var traceName = regexp.MustCompile(`^([^:]*)`)

// remoteError builds a remote error from the raw "error" member of a response
// envelope. A member that is not an object still yields a remote error whose
// message is the raw text.
func remoteError(raw json.RawMessage, codec Codec) *Error {
	e := &Error{Kind: KindRemote}

	var obj json2.Error
	if err := codec.Decode(raw, &obj); err != nil {
		e.Code = json2.E_SERVER
		e.Message = string(raw)
		e.Name = DefaultErrorName
		return e
	}
	e.Code = obj.Code
	e.Message = obj.Message
	e.Data = obj.Data

	fields := make(map[string]interface{})
	if err := codec.Decode(raw, &fields); err == nil {
		e.Fields = fields
	}
	if trace, ok := fields["trace"].(string); ok {
		e.Trace = trace
		if m := traceName.FindString(trace); m != "" {
			e.Name = m
		}
	}
	if e.Name == "" {
		if name, ok := fields["name"].(string); ok {
			e.Name = name
		}
	}
	if e.Name == "" {
		e.Name = DefaultErrorName
	}
	return e
}
