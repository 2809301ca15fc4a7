// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package jsonrpc

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// applyFixups restores shared and circular references in root. Each fixup is
// a [target, source] pair of paths; the value at source is stored at target.
// Fixups apply in order, so later sources observe earlier assignments.
func applyFixups(root interface{}, raw json.RawMessage, codec Codec) error {
	var fixups []interface{}
	if err := codec.Decode(raw, &fixups); err != nil {
		return unmarshalError("malformed fixups: %v", err)
	}
	for i, f := range fixups {
		pair, ok := f.([]interface{})
		if !ok || len(pair) != 2 {
			return unmarshalError("fixup %d: expected [target, source]", i)
		}
		target, ok := pair[0].([]interface{})
		if !ok || len(target) == 0 {
			return unmarshalError("fixup %d: target must be a non-empty path", i)
		}
		source, ok := pair[1].([]interface{})
		if !ok {
			return unmarshalError("fixup %d: source must be a path", i)
		}

		value, err := resolvePath(root, source)
		if err != nil {
			return unmarshalError("fixup %d: source: %v", i, err)
		}
		parent, err := resolvePath(root, target[:len(target)-1])
		if err != nil {
			return unmarshalError("fixup %d: target: %v", i, err)
		}
		if err := assign(parent, target[len(target)-1], value); err != nil {
			return unmarshalError("fixup %d: target: %v", i, err)
		}
	}
	return nil
}

// resolvePath follows path from root. Every segment must exist.
func resolvePath(root interface{}, path []interface{}) (interface{}, error) {
	cur := root
	for _, seg := range path {
		switch node := cur.(type) {
		case map[string]interface{}:
			key, err := mapKey(seg)
			if err != nil {
				return nil, err
			}
			next, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("no member %q", key)
			}
			cur = next
		case []interface{}:
			idx, err := sliceIndex(seg, len(node))
			if err != nil {
				return nil, err
			}
			cur = node[idx]
		default:
			return nil, fmt.Errorf("cannot index %T with %v", cur, seg)
		}
	}
	return cur, nil
}

// assign stores value under seg in parent. A map gains the key if missing; a
// slice index must already be in range.
func assign(parent interface{}, seg interface{}, value interface{}) error {
	switch node := parent.(type) {
	case map[string]interface{}:
		key, err := mapKey(seg)
		if err != nil {
			return err
		}
		node[key] = value
	case []interface{}:
		idx, err := sliceIndex(seg, len(node))
		if err != nil {
			return err
		}
		node[idx] = value
	default:
		return fmt.Errorf("cannot assign into %T", parent)
	}
	return nil
}

func mapKey(seg interface{}) (string, error) {
	switch s := seg.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	}
	if i, ok := toInt64(seg); ok {
		return strconv.FormatInt(i, 10), nil
	}
	return "", fmt.Errorf("invalid path segment %v", seg)
}

// sliceIndex accepts any integral number the codec produced. Strings are not
// indices.
func sliceIndex(seg interface{}, n int) (int, error) {
	idx, ok := toInt64(seg)
	if !ok {
		return 0, fmt.Errorf("invalid index %v", seg)
	}
	if idx < 0 || idx >= int64(n) {
		return 0, fmt.Errorf("index %d out of range [0,%d)", idx, n)
	}
	return int(idx), nil
}
