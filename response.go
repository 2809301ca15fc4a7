// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"math"
	"time"
)

// Keys of the serialized forms recognised in results.
const (
	classHintKey    = "javaClass"
	objectIDKey     = "objectID"
	rpcTypeKey      = "JSONRPCType"
	timeKey         = "time"
	dateClass       = "java.util.Date"
	callableRefType = "CallableReference"
)

type envelope struct {
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
	Fixups json.RawMessage `json:"fixups"`
}

// reconstructor rebuilds result values from response bodies.
type reconstructor struct {
	codec          Codec
	registry       *Registry
	transformDates bool
	applyFixups    bool
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// unmarshal decodes a UTF-8 response body into its result value.
func (r *reconstructor) unmarshal(body []byte) (interface{}, error) {
	var env envelope
	if err := r.codec.Decode(body, &env); err != nil {
		return nil, parseError(err)
	}
	if !isNull(env.Error) {
		return nil, remoteError(env.Error, r.codec)
	}
	if isNull(env.Result) {
		return nil, nil
	}

	var result interface{}
	if err := r.codec.Decode(env.Result, &result); err != nil {
		return nil, parseError(err)
	}
	if m, ok := result.(map[string]interface{}); ok {
		if id, ok := refObjectID(m); ok && m[rpcTypeKey] == callableRefType {
			class, _ := m[classHintKey].(string)
			return r.registry.NewProxy(id, class), nil
		}
	}

	if r.transformDates {
		result = transformDates(result)
	}
	result = r.replaceRefs(result)

	if r.applyFixups && !isNull(env.Fixups) {
		if err := applyFixups(result, env.Fixups, r.codec); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// refObjectID returns the non-zero objectID of m.
func refObjectID(m map[string]interface{}) (int64, bool) {
	id, ok := toInt64(m[objectIDKey])
	return id, ok && id != 0
}

// transformDates replaces serialized dates in v with time.Time values. A map
// is a date when its class hint names a date, or when it has no class hint and
// its only key is "time".
func transformDates(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		if t, ok := asDate(x); ok {
			return t
		}
		for k, e := range x {
			x[k] = transformDates(e)
		}
	case []interface{}:
		for i, e := range x {
			x[i] = transformDates(e)
		}
	}
	return v
}

func asDate(m map[string]interface{}) (time.Time, bool) {
	if class, ok := m[classHintKey]; ok {
		if class != dateClass {
			return time.Time{}, false
		}
	} else if len(m) != 1 {
		return time.Time{}, false
	}
	if ms, ok := toInt64(m[timeKey]); ok {
		return time.UnixMilli(ms).UTC(), true
	}
	f, ok := toFloat64(m[timeKey])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(f)).UTC(), true
}

// replaceRefs swaps every remote reference in v for a proxy. Replaced nodes are
// not descended into.
func (r *reconstructor) replaceRefs(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		if p := r.refProxy(x); p != nil {
			return p
		}
		for k, e := range x {
			x[k] = r.replaceRefs(e)
		}
	case []interface{}:
		for i, e := range x {
			x[i] = r.replaceRefs(e)
		}
	}
	return v
}

func (r *reconstructor) refProxy(m map[string]interface{}) *Proxy {
	if m[rpcTypeKey] != callableRefType {
		return nil
	}
	class, _ := m[classHintKey].(string)
	if class == "" {
		return nil
	}
	id, ok := refObjectID(m)
	if !ok {
		return nil
	}
	return r.registry.NewProxy(id, class)
}
