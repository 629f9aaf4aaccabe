// ABOUTME: Helpers for reading structured tool arguments (objects, lists) from MCP requests
// ABOUTME: Type mismatches become invalid-argument errors naming the argument
package mcp

import (
	"fmt"

	"github.com/harper/mediaindex/internal/models"
)

// stringMap reads a required object whose values are all strings
func stringMap(args map[string]interface{}, key string) (map[string]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, models.InvalidArgument(key, key+" argument is required")
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, models.InvalidArgument(key, fmt.Sprintf("%s must be an object, got %T", key, raw))
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		s, ok := v.(string)
		if !ok {
			return nil, models.InvalidArgument(k, fmt.Sprintf("%s.%s must be a string type name, got %T", key, k, v))
		}
		out[k] = s
	}
	return out, nil
}

// object reads an optional object argument
func object(args map[string]interface{}, key string) (map[string]interface{}, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, models.InvalidArgument(key, fmt.Sprintf("%s must be an object, got %T", key, raw))
	}
	return m, nil
}

// objectList reads a required list of objects; a single object counts as a list of one
func objectList(args map[string]interface{}, key string) ([]map[string]interface{}, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, models.InvalidArgument(key, key+" argument is required")
	}
	switch v := raw.(type) {
	case map[string]interface{}:
		return []map[string]interface{}{v}, nil
	case []interface{}:
		out := make([]map[string]interface{}, len(v))
		for i, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, models.InvalidArgument(key, fmt.Sprintf("%s[%d] must be an object, got %T", key, i, item))
			}
			out[i] = m
		}
		return out, nil
	}
	return nil, models.InvalidArgument(key, fmt.Sprintf("%s must be a list of objects, got %T", key, raw))
}

// stringList reads an optional list of strings
func stringList(args map[string]interface{}, key string) ([]string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, models.InvalidArgument(key, fmt.Sprintf("%s must be a list of strings, got %T", key, raw))
	}
	out := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, models.InvalidArgument(key, fmt.Sprintf("%s[%d] must be a string, got %T", key, i, item))
		}
		out[i] = s
	}
	return out, nil
}
