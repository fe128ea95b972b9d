package supervisor

import (
	"fmt"
	"time"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/genserver"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

type linkOpts struct {
	name erl.Name
}

// LinkOpts is a functional option for configuring supervisor startup.
type LinkOpts func(flags linkOpts) linkOpts

// SetName registers the supervisor under the given name, allowing it to be
// looked up via [erl.WhereIs] or addressed by name instead of PID.
//
// Example:
//
//	supPID, err := supervisor.StartDefaultLink(self, children, flags,
//		supervisor.SetName("my_supervisor"))
//	// Later:
//	pid := erl.WhereIs("my_supervisor")
func SetName(name erl.Name) LinkOpts {
	return func(flags linkOpts) linkOpts {
		flags.name = name
		return flags
	}
}

// StartDefaultLink starts a supervisor with a static list of children.
// This is the simplest way to create a supervisor when the children are known at compile time.
//
// The supervisor is linked to the calling process (self), meaning if the supervisor
// terminates abnormally, self will receive an exit signal (or an [erl.ExitMsg] if
// self has TrapExit enabled).
//
// Children are started in the order they appear in the slice. If any child fails to start,
// all previously started children are stopped and an error is returned.
//
// Returns the supervisor's PID on success. The error is an
// [exitreason.Shutdown] if the flags or a child spec are invalid, IDs are
// duplicated or a child fails to start (other than with [exitreason.Ignore]).
//
// Example:
//
//	children := []supervisor.ChildSpec{
//		supervisor.NewChildSpec("worker", func(sup erl.PID) (erl.PID, error) {
//			return genserver.StartLink[State](sup, MyServer{}, nil)
//		}),
//	}
//	supFlags := supervisor.NewSupFlags(supervisor.SetStrategy(supervisor.OneForOne))
//	supPID, err := supervisor.StartDefaultLink(self, children, supFlags)
func StartDefaultLink(self erl.PID, children []ChildSpec, supFlags SupFlagsS, optFuns ...LinkOpts) (erl.PID, error) {
	ds := defaultSup{children: children, supflags: supFlags}
	return StartLink(self, ds, nil, optFuns...)
}

// StartLink starts a supervisor with a custom callback module.
// Use this when children need to be determined dynamically based on runtime arguments.
//
// The callback's Init method is invoked with the provided args to obtain the
// [ChildSpec] list and [SupFlagsS]. The supervisor is linked to the calling process (self).
//
// Example:
//
//	type MySupervisor struct{}
//
//	func (s MySupervisor) Init(self erl.PID, args any) supervisor.InitResult {
//		config := args.(MyConfig)
//		children := make([]supervisor.ChildSpec, config.WorkerCount)
//		for i := range children {
//			id := fmt.Sprintf("worker_%d", i)
//			children[i] = supervisor.NewChildSpec(id, workerStartFn)
//		}
//		return supervisor.InitResult{
//			SupFlags:   supervisor.NewSupFlags(),
//			ChildSpecs: children,
//		}
//	}
//
//	supPID, err := supervisor.StartLink(self, MySupervisor{}, myConfig)
func StartLink(self erl.PID, callback Supervisor, args any, optFuns ...LinkOpts) (erl.PID, error) {
	opts := linkOpts{}

	for _, fn := range optFuns {
		opts = fn(opts)
	}

	gsOpts := make([]genserver.StartOpt, 0)

	if opts.name != "" {
		gsOpts = append(gsOpts, genserver.SetName(opts.name))
	}

	gsOpts = append(gsOpts, genserver.SetStartTimeout(timeout.Infinity))

	sup := SupervisorS{
		callback: callback,
	}

	return genserver.StartLink[supervisorState](self, sup, args, gsOpts...)
}


type (
	startChildReq        struct{ spec ChildSpec }
	startInstanceReq     struct{ args any }
	terminateChildReq    struct{ id string }
	terminateInstanceReq struct{ pid erl.PID }
	restartChildReq      struct{ id string }
	deleteChildReq       struct{ id string }
	whichChildrenReq     struct{}
	countChildrenReq     struct{}
)

type childReply struct {
	pid erl.PID
	err error
}

func callSup(sup erl.Dest, request any, tout time.Duration) (childReply, error) {
	result, err := genserver.Call(erl.UndefinedPID, sup, request, tout)
	if err != nil {
		return childReply{}, err
	}
	reply, ok := result.(childReply)
	if !ok {
		return childReply{}, fmt.Errorf("unexpected supervisor reply %T", result)
	}
	return reply, reply.err
}

// StartChild adds [spec] to a running supervisor and starts it. The child is
// appended to the start order. Starting it doesn't count as a restart.
//
// If the start function returns [exitreason.Ignore] the spec is kept with
// status [ChildUndefined] and the returned PID is [erl.UndefinedPID]. If it
// fails, the spec is not added.
//
// Errors: an [AlreadyStartedError] (matching [ErrAlreadyStarted]) if a child
// with that ID is running, [ErrAlreadyPresent] if the ID is taken by a child
// that isn't, [ErrSimpleOneForOne] for a [SimpleOneForOne] supervisor.
func StartChild(sup erl.Dest, spec ChildSpec) (erl.PID, error) {
	reply, err := callSup(sup, startChildReq{spec: spec}, timeout.Infinity)
	return reply.pid, err
}

// TerminateChild stops the child with [id] according to its [ShutdownOpt]. The
// spec is kept with status [ChildTerminated] so it can be restarted with
// [RestartChild], except for [Temporary] children whose spec is removed.
// Stopping a child that isn't running is a no-op.
func TerminateChild(sup erl.Dest, id string) error {
	_, err := callSup(sup, terminateChildReq{id: id}, timeout.Infinity)
	return err
}

// RestartChild starts a terminated or ignored child again from its spec.
// Returns [ErrRunning] if it is running or restarting and [ErrNotFound] if there's
// no such child.
func RestartChild(sup erl.Dest, id string) (erl.PID, error) {
	reply, err := callSup(sup, restartChildReq{id: id}, timeout.Infinity)
	return reply.pid, err
}

// DeleteChild removes the spec of a child that isn't running.
func DeleteChild(sup erl.Dest, id string) error {
	_, err := callSup(sup, deleteChildReq{id: id}, genserver.DefaultCallTimeout())
	return err
}

// StartInstance starts a new instance of the template of a [SimpleOneForOne]
// supervisor, passing [args] to its [TemplateStartFun]. An instance whose start
// returns [exitreason.Ignore] is not kept.
func StartInstance(sup erl.Dest, args any) (erl.PID, error) {
	reply, err := callSup(sup, startInstanceReq{args: args}, timeout.Infinity)
	return reply.pid, err
}

// TerminateInstance stops the instance [pid] of a [SimpleOneForOne] supervisor
// and forgets it.
func TerminateInstance(sup erl.Dest, pid erl.PID) error {
	_, err := callSup(sup, terminateInstanceReq{pid: pid}, timeout.Infinity)
	return err
}

// WhichChildren lists the children in start order.
func WhichChildren(sup erl.Dest) ([]ChildInfo, error) {
	result, err := genserver.Call(erl.UndefinedPID, sup, whichChildrenReq{}, genserver.DefaultCallTimeout())
	if err != nil {
		return nil, err
	}
	return result.([]ChildInfo), nil
}

func CountChildren(sup erl.Dest) (ChildCount, error) {
	result, err := genserver.Call(erl.UndefinedPID, sup, countChildrenReq{}, genserver.DefaultCallTimeout())
	if err != nil {
		return ChildCount{}, err
	}
	return result.(ChildCount), nil
}
