package compiler

import "fmt"

// ErrorKind classifies structural compile failures.
type ErrorKind string

const (
	// MissingPort: a stream endpoint does not resolve to a declared port
	// with the right direction, or a required input port is unconnected.
	MissingPort ErrorKind = "MissingPort"

	// MediumMismatch: the two endpoints of a stream carry different media.
	MediumMismatch ErrorKind = "MediumMismatch"

	// DuplicatePort: identifier reuse — a duplicated unit id, more than
	// one stream into an input port, or fan-out from a non-splitting
	// output port.
	DuplicatePort ErrorKind = "DuplicatePort"

	// UnknownUnitType: a unit's type key is not in the registry.
	UnknownUnitType ErrorKind = "UnknownUnitType"

	// InvalidParam: a unit parameter fails its plugin's schema.
	InvalidParam ErrorKind = "InvalidParam"
)

// CompileError is a fatal structural error. It aborts compilation before
// any numeric work; numerically hopeless but structurally valid graphs
// compile fine and surface later as convergence failures.
type CompileError struct {
	Kind   ErrorKind
	UnitID string
	PortID string
	Detail string
}

func (e *CompileError) Error() string {
	ref := e.UnitID
	if e.PortID != "" {
		ref = e.UnitID + "." + e.PortID
	}
	if ref == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, ref, e.Detail)
}
