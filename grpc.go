// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TunnelMethod is the full gRPC method carrying JSON-RPC bodies.
const TunnelMethod = "/jsonrpc.Tunnel/Call"

// TunnelCodec passes raw JSON-RPC bodies through gRPC untouched.
type TunnelCodec struct{}

func (TunnelCodec) Marshal(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	default:
		return nil, fmt.Errorf("tunnel codec: cannot marshal %T", v)
	}
}

func (TunnelCodec) Unmarshal(data []byte, v interface{}) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("tunnel codec: cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (TunnelCodec) Name() string {
	return "jsonrpc"
}

// grpcHandle tunnels JSON-RPC bodies through a grpc.ClientConn.
type grpcHandle struct {
	conn *grpc.ClientConn

	ctx    context.Context
	md     metadata.MD
	header metadata.MD
	reply  []byte
	status int
	text   string
	sent   bool
}

func newGRPCHandle(cfg *TransportConfig) (Handle, error) {
	if cfg.GRPCConn == nil {
		return nil, fmt.Errorf("%w: no grpc connection configured", ErrTransportUnavailable)
	}
	return &grpcHandle{conn: cfg.GRPCConn}, nil
}

func (h *grpcHandle) Open(ctx context.Context, _ string) error {
	h.ctx = ctx
	h.md = metadata.MD{}
	h.header = nil
	h.reply = nil
	h.status = 0
	h.text = ""
	h.sent = false
	return nil
}

func (h *grpcHandle) SetHeader(key, value string) {
	key = strings.ToLower(key)
	switch key {
	case "content-type", "user-agent":
		// Reserved by gRPC.
		return
	}
	h.md.Set(key, value)
}

func (h *grpcHandle) Send(body []byte) error {
	ctx := metadata.NewOutgoingContext(h.ctx, h.md)
	var reply []byte
	err := h.conn.Invoke(ctx, TunnelMethod, &body, &reply,
		grpc.ForceCodec(TunnelCodec{}),
		grpc.Header(&h.header),
	)
	h.sent = true
	if err == nil {
		h.status = http.StatusOK
		h.text = http.StatusText(http.StatusOK)
		h.reply = reply
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("grpc tunnel: %w", err)
	}
	switch st.Code() {
	case codes.Unavailable, codes.Canceled, codes.DeadlineExceeded:
		return fmt.Errorf("grpc tunnel: %w", err)
	}
	h.status = httpStatus(st.Code())
	h.text = st.Message()
	if h.text == "" {
		h.text = http.StatusText(h.status)
	}
	return nil
}

func (h *grpcHandle) Status() (int, string, error) {
	if !h.sent {
		return 0, "", errNotSent
	}
	return h.status, h.text, nil
}

func (h *grpcHandle) Header() http.Header {
	header := make(http.Header, len(h.header))
	for k, vs := range h.header {
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	return header
}

func (h *grpcHandle) Body() ([]byte, error) {
	if !h.sent {
		return nil, errNotSent
	}
	return h.reply, nil
}

func (h *grpcHandle) Close() error {
	return nil
}

// httpStatus maps a gRPC status code to the equivalent HTTP status.
func httpStatus(code codes.Code) int {
	switch code {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// grpcCode maps an HTTP status to the equivalent gRPC status code.
func grpcCode(status int) codes.Code {
	switch status {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusNotImplemented:
		return codes.Unimplemented
	default:
		return codes.Internal
	}
}

// TunnelServerHandler serves the tunnel method on a grpc.Server by replaying
// each body against an HTTP JSON-RPC handler. Register it with
// grpc.UnknownServiceHandler together with grpc.ForceServerCodec(TunnelCodec{}).
func TunnelServerHandler(h http.Handler) grpc.StreamHandler {
	return func(_ interface{}, stream grpc.ServerStream) error {
		method, ok := grpc.MethodFromServerStream(stream)
		if !ok || method != TunnelMethod {
			return status.Errorf(codes.Unimplemented, "unknown method %s", method)
		}
		var body []byte
		if err := stream.RecvMsg(&body); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(stream.Context(), http.MethodPost, "/", bytes.NewReader(body))
		if err != nil {
			return status.Error(codes.Internal, err.Error())
		}
		if md, ok := metadata.FromIncomingContext(stream.Context()); ok {
			for k, vs := range md {
				if k == "content-type" || strings.HasPrefix(k, ":") || strings.HasPrefix(k, "grpc-") {
					continue
				}
				for _, v := range vs {
					req.Header.Add(k, v)
				}
			}
		}
		req.Header.Set("Content-Type", jsonRPCContentType)

		rec := newTunnelRecorder()
		h.ServeHTTP(rec, req)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		if rec.status != http.StatusOK {
			return status.Error(grpcCode(rec.status), http.StatusText(rec.status))
		}
		md := metadata.MD{}
		for k, vs := range rec.header {
			md.Append(strings.ToLower(k), vs...)
		}
		if err := stream.SendHeader(md); err != nil {
			return err
		}
		reply := rec.body.Bytes()
		return stream.SendMsg(&reply)
	}
}

// tunnelRecorder captures the reply of an HTTP handler served through the
// tunnel.
type tunnelRecorder struct {
	header http.Header
	body   bytes.Buffer
	status int
}

func newTunnelRecorder() *tunnelRecorder {
	return &tunnelRecorder{header: make(http.Header)}
}

func (r *tunnelRecorder) Header() http.Header {
	return r.header
}

func (r *tunnelRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *tunnelRecorder) Write(p []byte) (int, error) {
	r.WriteHeader(http.StatusOK)
	return r.body.Write(p)
}
