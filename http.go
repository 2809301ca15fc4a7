// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const jsonRPCContentType = "application/json-rpc"

var errNotSent = errors.New("request not sent")

// newHTTPClient creates the HTTP client used when none is configured.
func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: 30 * time.Second,
	}
}

// CleanlyCloseBody drains and closes an HTTP response body to prevent
// HTTP/2 GOAWAY errors caused by closing bodies with unread data.
// See: https://github.com/golang/go/issues/46071
func CleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

// httpHandle posts JSON-RPC bodies with an *http.Client.
type httpHandle struct {
	client *http.Client

	ctx      context.Context
	endpoint string
	header   http.Header
	resp     *http.Response
}

func newHTTPHandle(cfg *TransportConfig) (Handle, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	return &httpHandle{client: client}, nil
}

func (h *httpHandle) Open(ctx context.Context, endpoint string) error {
	if h.resp != nil {
		_ = CleanlyCloseBody(h.resp.Body)
		h.resp = nil
	}
	h.ctx = ctx
	h.endpoint = endpoint
	h.header = make(http.Header)
	return nil
}

func (h *httpHandle) SetHeader(key, value string) {
	h.header.Set(key, value)
}

func (h *httpHandle) Send(body []byte) error {
	request, err := http.NewRequestWithContext(
		h.ctx,
		http.MethodPost,
		h.endpoint,
		bytes.NewReader(body),
	)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header = h.header

	resp, err := h.client.Do(request)
	if err != nil {
		return fmt.Errorf("failed to issue request: %w", err)
	}
	h.resp = resp
	return nil
}

func (h *httpHandle) Status() (int, string, error) {
	if h.resp == nil {
		return 0, "", errNotSent
	}
	code := h.resp.StatusCode
	text := strings.TrimPrefix(h.resp.Status, strconv.Itoa(code)+" ")
	if text == "" {
		text = http.StatusText(code)
	}
	return code, text, nil
}

func (h *httpHandle) Header() http.Header {
	if h.resp == nil {
		return nil
	}
	return h.resp.Header
}

func (h *httpHandle) Body() ([]byte, error) {
	if h.resp == nil {
		return nil, errNotSent
	}
	body, err := io.ReadAll(h.resp.Body)
	_ = CleanlyCloseBody(h.resp.Body)
	h.resp = nil
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (h *httpHandle) Close() error {
	if h.resp == nil {
		return nil
	}
	err := CleanlyCloseBody(h.resp.Body)
	h.resp = nil
	return err
}
