package erl

import "fmt"

// A Process Identifier; wraps the underlying Process so we can reference it
// without exposing Process internals. A PID may also identify a process on
// another [Node], in which case signals to it go through the [Distribution].
type PID struct {
	p    *Process
	id   int64
	node Node
}

var UndefinedPID PID = PID{}

func (pid PID) String() string {
	switch {
	case pid.node != "":
		return fmt.Sprintf("PID<%s.%d>", pid.node, pid.id)
	case pid.p != nil:
		return fmt.Sprintf("PID<%d>", pid.id)
	case pid.id != 0:
		return fmt.Sprintf("PID<%d|dead>", pid.id)
	default:
		return "PID<undefined>"
	}
}

// IsNil is true for PIDs that don't point at a local process. Remote PIDs are never nil.
func (pid PID) IsNil() bool {
	return pid.p == nil && pid.node == ""
}

// IsRemote is true if the PID belongs to another node.
func (pid PID) IsRemote() bool {
	return pid.node != ""
}

// ID is the numeric part of the PID, unique per node and never reused.
func (pid PID) ID() int64 {
	return pid.id
}

// Node is the node hosting the process. Local processes report [LocalNode].
func (pid PID) Node() Node {
	if pid.node == "" {
		return LocalNode()
	}
	return pid.node
}

func (self PID) Equals(pid PID) bool {
	return self.node == pid.node && self.id == pid.id
}

func (p PID) ResolvePID() (PID, error) {
	return p, nil
}

type Name string

func (n Name) ResolvePID() (PID, error) {
	pid, exists := WhereIs(n)
	if !exists {
		return pid, fmt.Errorf("no PID found for name %s", n)
	}
	return pid, nil
}

// Anything that can be resolved to a process: a [PID] or a registered [Name].
type Dest interface {
	ResolvePID() (PID, error)
}
