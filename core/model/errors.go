package model

import "errors"

// Sentinel errors shared by the core services and the repository layer.
// Callers classify failures with errors.Is and map them to transport
// specific responses at the edge.
var (
	// ErrNotFound indicates a missing order, tow truck, user or node.
	ErrNotFound = errors.New("requested resource not found")
	// ErrConflict indicates a duplicate or otherwise conflicting write.
	ErrConflict = errors.New("resource conflict")
	// ErrValidation indicates invalid caller input such as an unknown
	// node id, a bad pagination window or a negative edge weight.
	ErrValidation = errors.New("validation failed")
	// ErrDependency indicates a durable store or cache-load failure.
	ErrDependency = errors.New("dependency failure")
)
