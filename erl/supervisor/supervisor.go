package supervisor

import (
	"errors"
	"fmt"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/genserver"
)

var _ genserver.GenServer[supervisorState] = SupervisorS{}

// SupFlagsS holds the restart strategy and intensity of a supervisor. Build it
// with [NewSupFlags].
type SupFlagsS struct {
	Strategy Strategy `yaml:"strategy"`
	// length in seconds of the window restarts are counted in
	Period int `yaml:"period"`
	// restarts allowed within Period. One more and the supervisor stops all its
	// children and exits with [exitreason.Shutdown] of [ErrRestartIntensity].
	Intensity int `yaml:"intensity"`
}

type SupFlag func(flags SupFlagsS) SupFlagsS

func SetStrategy(strategy Strategy) SupFlag {
	return func(flags SupFlagsS) SupFlagsS {
		flags.Strategy = strategy
		return flags
	}
}

func SetPeriod(period int) SupFlag {
	return func(flags SupFlagsS) SupFlagsS {
		flags.Period = period
		return flags
	}
}

func SetIntensity(intensity int) SupFlag {
	return func(flags SupFlagsS) SupFlagsS {
		flags.Intensity = intensity
		return flags
	}
}

var defaultFlags = atomic.NewPointer(&SupFlagsS{Strategy: OneForOne, Period: 5, Intensity: 1})

// SetDefaultFlags changes what [NewSupFlags] starts from. The built in default
// is [OneForOne] with at most 1 restart every 5 seconds.
func SetDefaultFlags(flags SupFlagsS) error {
	if err := flags.Strategy.Validate(); err != nil {
		return err
	}
	defaultFlags.Store(&flags)
	return nil
}

// DefaultFlags returns the flags [NewSupFlags] starts from.
func DefaultFlags() SupFlagsS {
	return *defaultFlags.Load()
}

// NewSupFlags applies [flags] over the defaults, see [SetDefaultFlags].
//
//	flags := supervisor.NewSupFlags(
//		supervisor.SetStrategy(supervisor.OneForAll),
//		supervisor.SetIntensity(3),
//		supervisor.SetPeriod(10),
//	)
func NewSupFlags(flags ...SupFlag) SupFlagsS {
	f := DefaultFlags()

	for _, x := range flags {
		f = x(f)
	}
	return f
}

// InitResult is returned by [Supervisor.Init].
type InitResult struct {
	SupFlags SupFlagsS
	// started in order and stopped in reverse order. A [SimpleOneForOne]
	// supervisor takes exactly one spec, built with [NewTemplateSpec].
	ChildSpecs []ChildSpec
	// cancels the start; the caller gets [exitreason.Ignore]
	Ignore bool
}

// Supervisor is the callback of a supervisor whose children are decided at
// start. For a fixed list use [StartDefaultLink].
type Supervisor interface {
	// Init returns the flags and children. Don't start children here, the
	// supervisor starts and links them.
	Init(self erl.PID, args any) InitResult
}

// SupervisorS is the [genserver.GenServer] that runs a supervisor. It traps
// exits, starts its children in order and restarts them according to the
// strategy and each child's [Restart] when their exit messages arrive.
// Restarts are decided one at a time in the supervisor's own process.
type SupervisorS struct {
	callback Supervisor
}

// sent to itself when restarting a child failed
type tryAgainRestart struct {
	id string
}

func (s SupervisorS) Init(self erl.PID, args any) (genserver.InitResult[supervisorState], error) {
	erl.ProcessFlag(self, erl.TrapExit, true)
	initResult := s.callback.Init(self, args)
	if initResult.Ignore {
		return genserver.InitResult[supervisorState]{}, exitreason.Ignore
	}

	flags := initResult.SupFlags
	if err := flags.Strategy.Validate(); err != nil {
		return genserver.InitResult[supervisorState]{}, exitreason.Shutdown(err)
	}
	for _, spec := range initResult.ChildSpecs {
		if err := spec.validate(flags.Strategy); err != nil {
			return genserver.InitResult[supervisorState]{}, exitreason.Shutdown(err)
		}
	}

	children, err := newChildSpecs(initResult.ChildSpecs)
	if err != nil {
		return genserver.InitResult[supervisorState]{}, exitreason.Shutdown(err)
	}
	state := supervisorState{children: children, flags: flags}

	if flags.Strategy == SimpleOneForOne {
		if children.len() != 1 {
			return genserver.InitResult[supervisorState]{}, exitreason.Shutdown(
				fmt.Errorf("simple_one_for_one takes exactly one child spec, got %d", children.len()))
		}
		template := children.list()[0]
		state.template = &template
		state.children = &childSpecs{specs: []ChildSpec{}}
		return genserver.InitResult[supervisorState]{State: state}, nil
	}

	if err := s.startChildren(self, state.children); err != nil {
		erl.DebugPrintf("Supervisor[%v] error starting children: %v", self, err)
		return genserver.InitResult[supervisorState]{}, exitreason.Shutdown(err)
	}

	erl.DebugPrintf("Supervisor[%v] done initializing: %+v", self, state.children)
	return genserver.InitResult[supervisorState]{State: state}, nil
}

func (s SupervisorS) HandleCall(self erl.PID, request any, from genserver.From, state supervisorState) (genserver.CallResult[supervisorState], error) {
	var reply any
	switch req := request.(type) {
	case whichChildrenReq:
		reply = state.whichChildren()
	case countChildrenReq:
		reply = state.countChildren()
	case startChildReq:
		reply = s.handleStartChild(self, req.spec, state)
	case startInstanceReq:
		reply = s.handleStartInstance(self, req.args, state)
	case terminateChildReq:
		reply = childReply{err: s.handleTerminateChild(self, req.id, state)}
	case terminateInstanceReq:
		reply = childReply{err: s.handleTerminateInstance(self, req.pid, state)}
	case restartChildReq:
		reply = s.handleRestartChild(self, req.id, state)
	case deleteChildReq:
		reply = childReply{err: s.handleDeleteChild(req.id, state)}
	default:
		reply = childReply{err: fmt.Errorf("unknown supervisor request %T", request)}
	}
	return genserver.CallResult[supervisorState]{Msg: reply, State: state}, nil
}

func (s SupervisorS) HandleInfo(self erl.PID, request any, state supervisorState) (genserver.InfoResult[supervisorState], error) {
	switch msg := request.(type) {
	case erl.ExitMsg:
		newState, err := s.handleChildExit(self, msg, state)
		return genserver.InfoResult[supervisorState]{State: newState}, err
	case tryAgainRestart:
		idx, child, err := state.children.get(msg.id)
		if err != nil || child.status != ChildRestarting {
			return genserver.InfoResult[supervisorState]{State: state}, nil
		}
		newState, err := s.restart(self, idx, state)
		return genserver.InfoResult[supervisorState]{State: newState}, err
	default:
		erl.DebugPrintf("Supervisor[%v] got unknown msg: %+v", self, msg)
	}

	return genserver.InfoResult[supervisorState]{State: state}, nil
}

func (s SupervisorS) HandleCast(self erl.PID, arg any, state supervisorState) (genserver.CastResult[supervisorState], error) {
	erl.DebugPrintf("Supervisor[%v] ignoring cast: %+v", self, arg)
	return genserver.CastResult[supervisorState]{State: state}, nil
}

func (s SupervisorS) HandleContinue(self erl.PID, continuation any, state supervisorState) (supervisorState, any, error) {
	return state, nil, nil
}

// Terminate stops the children in reverse start order, or all at once under
// [SimpleOneForOne], each according to its [ShutdownOpt].
func (s SupervisorS) Terminate(self erl.PID, reason error, state supervisorState) {
	erl.DebugPrintf("Supervisor[%v] stopping: %v", self, reason)
	if err := s.terminateAll(self, state); err != nil {
		erl.Log().Warn("supervisor children did not shut down cleanly",
			zap.Stringer("supervisor", self), zap.Errors("errors", multierr.Errors(err)))
	}
}

func shouldRestart(restart Restart, reason error) bool {
	switch restart {
	case Permanent:
		return true
	case Transient:
		return !exitreason.IsClean(reason)
	default:
		return false
	}
}

func (s SupervisorS) handleChildExit(self erl.PID, msg erl.ExitMsg, state supervisorState) (supervisorState, error) {
	idx, child, ok := state.children.findByPID(msg.Proc)
	if !ok {
		// a child we already stopped or replaced
		erl.DebugPrintf("Supervisor[%v]: no running child matches %v", self, msg.Proc)
		return state, nil
	}

	if !shouldRestart(child.Restart, msg.Reason) {
		erl.DebugPrintf("Supervisor[%v] child %s exited with %v, not restarting", self, child.ID, msg.Reason)
		if child.Restart == Temporary || state.template != nil {
			state.children.deleteAt(idx)
		} else {
			child.status = ChildTerminated
			child.pid = erl.UndefinedPID
			state.children.set(idx, child)
		}
		return state, nil
	}

	erl.Log().Info("supervisor child exited, restarting",
		zap.Stringer("supervisor", self),
		zap.String("child", child.ID),
		zap.Stringer("pid", msg.Proc),
		zap.Error(msg.Reason))
	return s.restart(self, idx, state)
}

// restart applies the strategy after the child at [idx] went down, or after an
// earlier attempt to restart it failed.
func (s SupervisorS) restart(self erl.PID, idx int, state supervisorState) (supervisorState, error) {
	var withinIntensity bool
	state, withinIntensity = state.addRestart()
	recordRestart(state.flags.Strategy)
	if !withinIntensity {
		recordEscalation()
		erl.Log().Error("supervisor restart intensity exceeded, shutting down",
			zap.Stringer("supervisor", self),
			zap.Int("intensity", state.flags.Intensity),
			zap.Int("period", state.flags.Period))
		// Terminate stops whatever is still running
		return state, exitreason.Shutdown(ErrRestartIntensity)
	}

	failed := state.children.list()[idx]
	erl.DebugPrintf("Supervisor[%v] restarting child %s with strategy %s", self, failed.ID, state.flags.Strategy)

	switch state.flags.Strategy {
	case OneForOne, SimpleOneForOne:
		failed.status = ChildRestarting
		failed.pid = erl.UndefinedPID
		state.children.set(idx, failed)
		s.restartFrom(self, state, idx, idx+1)
	case OneForAll:
		from := s.stopForRestart(self, state, 0, idx)
		s.restartFrom(self, state, from, state.children.len())
	case RestForOne:
		from := s.stopForRestart(self, state, idx, idx)
		s.restartFrom(self, state, from, state.children.len())
	}
	return state, nil
}

// stopForRestart stops the children from [from] on in reverse order and marks
// them restarting, dropping temporary ones. [failed] is the child whose exit
// caused this. Returns the new position of [from] once children are dropped.
func (s SupervisorS) stopForRestart(self erl.PID, state supervisorState, from int, failed int) int {
	list := state.children.list()
	for i := len(list) - 1; i >= from; i-- {
		child := list[i]
		if i != failed && child.status == ChildRunning {
			if err := terminate(self, child); err != nil {
				erl.Logger.Printf("Supervisor[%v] child %s: %v", self, child.ID, err)
			}
		}
		if child.status == ChildRunning || child.status == ChildRestarting {
			child.status = ChildRestarting
			child.pid = erl.UndefinedPID
		}
		list[i] = child
	}

	kept := list[:from]
	for _, child := range list[from:] {
		if child.Restart == Temporary && child.status == ChildRestarting {
			continue
		}
		kept = append(kept, child)
	}
	state.children.specs = kept
	return from
}

// restartFrom starts the restarting children in [from, to). If one fails to
// start it and the ones after it stay restarting and the supervisor retries
// through its own mailbox; the retry counts as another restart.
func (s SupervisorS) restartFrom(self erl.PID, state supervisorState, from int, to int) {
	for i := from; i < to && i < state.children.len(); i++ {
		child := state.children.list()[i]
		if child.status != ChildRestarting {
			continue
		}
		started, err := s.startChild(self, child)
		if err != nil {
			erl.Log().Error("supervisor failed to restart child",
				zap.Stringer("supervisor", self),
				zap.String("child", child.ID),
				zap.Error(err))
			erl.Send(self, tryAgainRestart{id: child.ID})
			return
		}
		state.children.set(i, started)
	}
}

// startChild runs the start function of [child]. A panic is an
// [exitreason.Exception]; [exitreason.Ignore] leaves the child undefined.
func (s SupervisorS) startChild(self erl.PID, child ChildSpec) (cs ChildSpec, err error) {
	defer func() {
		if r := recover(); r != nil {
			cs = child
			err = exitreason.Exception(fmt.Errorf("panic starting child %s: %v", child.ID, r))
		}
	}()
	childPID, err := child.start(self)

	switch {
	case err == nil:
		child.pid = childPID
		child.status = ChildRunning
		return child, nil
	case errors.Is(err, exitreason.Ignore):
		erl.DebugPrintf("Supervisor[%v] child %s returned ignore", self, child.ID)
		child.pid = erl.UndefinedPID
		child.status = ChildUndefined
		return child, nil
	default:
		return child, exitreason.Wrap(err)
	}
}

// startChildren starts [children] in order. If one fails, the ones already
// started are stopped in reverse order and the error is returned.
func (s SupervisorS) startChildren(self erl.PID, children *childSpecs) error {
	for idx, childSpec := range children.list() {
		child, err := s.startChild(self, childSpec)
		if err != nil {
			erl.DebugPrintf("Supervisor[%v]: child %s returned an error: %v", self, childSpec.ID, err)
			for i := idx - 1; i >= 0; i-- {
				if stopErr := terminate(self, children.list()[i]); stopErr != nil {
					erl.Logger.Printf("Supervisor[%v] rolling back child %s: %v", self, children.list()[i].ID, stopErr)
				}
			}
			return fmt.Errorf("failed to start child %s: %w", childSpec.ID, err)
		}
		children.set(idx, child)
	}
	return nil
}

func (s SupervisorS) terminateAll(self erl.PID, state supervisorState) error {
	list := state.children.list()
	if state.flags.Strategy == SimpleOneForOne {
		errs := make([]error, len(list))
		var g errgroup.Group
		for i, child := range list {
			g.Go(func() error {
				errs[i] = terminate(self, child)
				return nil
			})
		}
		_ = g.Wait()
		return multierr.Combine(errs...)
	}

	var err error
	for i := len(list) - 1; i >= 0; i-- {
		multierr.AppendInto(&err, terminate(self, list[i]))
	}
	return err
}
