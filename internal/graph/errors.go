package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrNodeNotFound is returned when an edge references an unregistered node
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrDuplicateNode is returned when two nodes share a name
	ErrDuplicateNode = errors.New("graph: duplicate node")

	// ErrInvalidNode is returned for a node with no name or no Run func
	ErrInvalidNode = errors.New("graph: invalid node")

	// ErrCycle is returned when the edges do not form a DAG
	ErrCycle = errors.New("graph: cycle detected")

	// ErrUnreachable is returned when a node cannot be reached from Start
	ErrUnreachable = errors.New("graph: unreachable node")

	// ErrNoEntry is returned when nothing is connected to Start
	ErrNoEntry = errors.New("graph: no edge from start")

	// ErrBranch is returned for a malformed conditional edge
	ErrBranch = errors.New("graph: invalid conditional edge")
)

// NodeError wraps a stage failure that could not be recovered
type NodeError struct {
	Node string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("graph: node %s failed: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// PanicError carries a recovered panic value from a stage
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
