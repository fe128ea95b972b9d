package supervisor

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/uberbrodt/otp-go/erl"
)

// Strategy decides which children are restarted when one of them terminates.
// The set of strategies is closed; [Strategy.Validate] rejects anything else.
type Strategy string

const (
	// OneForOne restarts only the child that terminated. This is the default.
	OneForOne Strategy = "one_for_one"

	// OneForAll stops every other child (reverse start order) and then restarts
	// all of them in start order. For children that can't work without each other.
	OneForAll Strategy = "one_for_all"

	// RestForOne stops the children started after the one that terminated
	// (reverse order), then restarts the terminated child and those children in
	// start order. Put dependencies before their dependents.
	RestForOne Strategy = "rest_for_one"

	// SimpleOneForOne supervises any number of instances of a single template
	// spec, added with [StartInstance]. Only the instance that terminated is
	// restarted, and instances are stopped in parallel.
	SimpleOneForOne Strategy = "simple_one_for_one"
)

var strategies = []Strategy{OneForOne, OneForAll, RestForOne, SimpleOneForOne}

func (s Strategy) String() string {
	return string(s)
}

// Validate returns an error unless [s] is one of the defined strategies.
func (s Strategy) Validate() error {
	for _, known := range strategies {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("unknown supervisor strategy %q", string(s))
}

func (s Strategy) MarshalYAML() (any, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return string(s), nil
}

func (s *Strategy) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}
	parsed := Strategy(str)
	if err := parsed.Validate(); err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*s = parsed
	return nil
}

// Restart is the per-child policy deciding whether a terminated child is
// started again.
type Restart string

const (
	// Permanent children are restarted whatever the exit reason. The default.
	Permanent Restart = "permanent"

	// Temporary children are never restarted. Their spec is removed when they
	// exit, and their exits don't count towards the restart intensity.
	Temporary Restart = "temporary"

	// Transient children are restarted only after an abnormal exit: anything
	// other than [exitreason.Normal], [exitreason.Shutdown] or
	// [exitreason.SupervisorShutdown]. A kill is abnormal.
	Transient Restart = "transient"
)

// ShutdownOpt is how a child is stopped, whether the supervisor is shutting down,
// restarting siblings under [OneForAll]/[RestForOne] or serving [TerminateChild].
//
// The fields are checked in order: BrutalKill, Infinity, Timeout.
//
//	ShutdownOpt{Timeout: 10_000} // shutdown signal, kill after 10s
//	ShutdownOpt{Infinity: true}  // shutdown signal, wait as long as it takes
//	ShutdownOpt{BrutalKill: true}
type ShutdownOpt struct {
	// send [exitreason.Kill] straight away; Terminate callbacks don't run
	BrutalKill bool

	// milliseconds to wait after sending [exitreason.SupervisorShutdown] before
	// the child is killed. [NewChildSpec] defaults it to 5000.
	Timeout int

	// wait for the child forever. Use it for [SupervisorChild]s so a whole
	// subtree gets to shut down.
	Infinity bool
}

// ChildType is informational, it shows up in [WhichChildren] and [CountChildren].
type ChildType string

const (
	// the child is itself a supervisor. Usually paired with
	// SetShutdown(ShutdownOpt{Infinity: true}).
	SupervisorChild ChildType = "supervisor"

	WorkerChild ChildType = "worker"
)

// ChildStatus is where a child is in its lifecycle: pending until first
// started, running, restarting while the supervisor retries a failed restart,
// terminated once stopped through the API (or after a clean exit that wasn't
// restarted) and undefined when its start function returned [exitreason.Ignore].
type ChildStatus string

const (
	ChildPending    ChildStatus = "pending"
	ChildRunning    ChildStatus = "running"
	ChildRestarting ChildStatus = "restarting"
	ChildTerminated ChildStatus = "terminated"
	ChildUndefined  ChildStatus = "undefined"
)

// ChildInfo describes one child, as returned by [WhichChildren].
type ChildInfo struct {
	ID string
	// zero unless Status is [ChildRunning]
	PID     erl.PID
	Type    ChildType
	Status  ChildStatus
	Restart Restart
}

// ChildCount is returned by [CountChildren].
type ChildCount struct {
	// every spec the supervisor holds, running or not
	Specs       int
	Active      int
	Supervisors int
	Workers     int
}
