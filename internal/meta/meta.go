// Package meta describes registered endpoints.
package meta

import (
	"reflect"
	"sort"
)

// MethodMetadata holds the runtime metadata for a registered endpoint.
type MethodMetadata struct {
	Service   string
	Method    string
	Primitive string // "query", "exec" or "stream"
	Request   reflect.Type
	Response  reflect.Type
}

// EndpointID returns "Service.Method".
func (m *MethodMetadata) EndpointID() string {
	return m.Service + "." + m.Method
}

// HTTPMethod returns the HTTP method the primitive is served on.
func (m *MethodMetadata) HTTPMethod() string {
	if m.Primitive == "query" {
		return "GET"
	}
	return "POST"
}

// RouteMap maps endpoint IDs to their metadata.
type RouteMap map[string]*MethodMetadata

// Sorted returns the endpoints ordered by ID.
func (r RouteMap) Sorted() []*MethodMetadata {
	out := make([]*MethodMetadata, 0, len(r))
	for _, m := range r {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndpointID() < out[j].EndpointID() })
	return out
}
