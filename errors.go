package neomap

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is a sentinel error returned by load operations when no record
// matching the criteria is found in the database.
var ErrNotFound = errors.New("record not found")

// UnregisteredTypeError reports that a node or relationship record could not
// be matched to any registered domain type. The mapper treats this as a
// non-fatal condition: partial schemas are legal, so the record is skipped
// with a diagnostic and mapping continues.
type UnregisteredTypeError struct {
	// Labels holds the node labels, or the relationship type, that failed
	// to resolve.
	Labels []string
}

func (e *UnregisteredTypeError) Error() string {
	return fmt.Sprintf("no registered domain type for %s", strings.Join(e.Labels, ", "))
}

// MissingEndpointError reports that a relationship-entity type lacks a usable
// start-node or end-node field. Relationship entities are contractually
// required to expose both endpoints, so this indicates a structurally invalid
// domain model and aborts the mapping call, unlike the skippable conditions
// above.
type MissingEndpointError struct {
	// TypeName is the Go type name of the relationship entity.
	TypeName string
	// Endpoint names the missing side, "start node" or "end node".
	Endpoint string
}

func (e *MissingEndpointError) Error() string {
	return fmt.Sprintf("relationship entity %s has no %s field", e.TypeName, e.Endpoint)
}

// MappingError wraps any fatal failure raised while mapping a graph model
// onto domain objects. Best-effort conditions (unknown labels, absent
// endpoints, unresolvable fields) never surface as a MappingError; only
// contract violations such as malformed records or an invalid relationship
// entity do.
type MappingError struct {
	// TypeName names the requested result type of the mapping call.
	TypeName string
	// Err is the originating cause.
	Err error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("mapping graph model into %s: %v", e.TypeName, e.Err)
}

// Unwrap returns the originating cause.
func (e *MappingError) Unwrap() error {
	return e.Err
}
