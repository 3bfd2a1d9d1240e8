package core

import "fmt"

// Operation is one of the four synchronizer operations.
type Operation string

// Synchronizer operations.
const (
	OpCommit Operation = "commit"
	OpUpdate Operation = "update"
	OpPush   Operation = "push"
	OpReset  Operation = "reset"
)

// Operations lists every operation in display order.
var Operations = []Operation{OpCommit, OpUpdate, OpPush, OpReset}

// ParseOperation validates an operation name.
func ParseOperation(s string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operation %q", s)
}

// Capability is a permission checked by the access guard.
type Capability string

// Capabilities understood by the access guard.
const (
	CapCommit Capability = "commit"
	CapUpdate Capability = "update"
	CapPush   Capability = "push"
	CapReset  Capability = "reset"
	CapEdit   Capability = "edit"

	// CapView reads status, history and events. Every other capability on
	// a project implies it.
	CapView Capability = "view"
)

// Capabilities lists every known capability.
var Capabilities = []Capability{CapCommit, CapUpdate, CapPush, CapReset, CapEdit, CapView}

// ParseCapability validates a capability name.
func ParseCapability(s string) (Capability, error) {
	for _, c := range Capabilities {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

// Capability returns the capability required to run the operation.
func (o Operation) Capability() Capability {
	return Capability(o)
}
