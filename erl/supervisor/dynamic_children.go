package supervisor

import (
	"fmt"

	"github.com/uberbrodt/otp-go/erl"
)

func (s SupervisorS) handleStartChild(self erl.PID, spec ChildSpec, state supervisorState) childReply {
	if state.template != nil {
		return childReply{err: ErrSimpleOneForOne}
	}
	if err := spec.validate(state.flags.Strategy); err != nil {
		return childReply{err: err}
	}
	if _, existing, err := state.children.get(spec.ID); err == nil {
		if existing.status == ChildRunning {
			return childReply{err: AlreadyStartedError{PID: existing.pid}}
		}
		return childReply{err: fmt.Errorf("%w: %s", ErrAlreadyPresent, spec.ID)}
	}

	spec.status = ChildPending
	spec.pid = erl.UndefinedPID
	started, err := s.startChild(self, spec)
	if err != nil {
		return childReply{err: err}
	}
	state.children.add(started)
	return childReply{pid: started.pid}
}

func (s SupervisorS) handleStartInstance(self erl.PID, args any, state supervisorState) childReply {
	if state.template == nil {
		return childReply{err: ErrNotSimpleOneForOne}
	}
	instance := *state.template
	instance.ID = fmt.Sprintf("%s-%s", state.template.ID, erl.MakeRef())
	instance.args = args

	started, err := s.startChild(self, instance)
	if err != nil {
		return childReply{err: err}
	}
	if started.status == ChildRunning {
		state.children.add(started)
	}
	return childReply{pid: started.pid}
}

func (s SupervisorS) handleTerminateChild(self erl.PID, id string, state supervisorState) error {
	if state.template != nil {
		return ErrSimpleOneForOne
	}
	idx, child, err := state.children.get(id)
	if err != nil {
		return err
	}
	if child.status != ChildRunning {
		return nil
	}
	if err := terminate(self, child); err != nil {
		erl.Logger.Printf("Supervisor[%v] child %s: %v", self, id, err)
	}
	if child.Restart == Temporary {
		state.children.deleteAt(idx)
		return nil
	}
	child.status = ChildTerminated
	child.pid = erl.UndefinedPID
	state.children.set(idx, child)
	return nil
}

func (s SupervisorS) handleTerminateInstance(self erl.PID, pid erl.PID, state supervisorState) error {
	if state.template == nil {
		return ErrNotSimpleOneForOne
	}
	idx, child, ok := state.children.findByPID(pid)
	if !ok {
		return fmt.Errorf("%w: %v", ErrNotFound, pid)
	}
	if err := terminate(self, child); err != nil {
		erl.Logger.Printf("Supervisor[%v] instance %v: %v", self, pid, err)
	}
	state.children.deleteAt(idx)
	return nil
}

func (s SupervisorS) handleRestartChild(self erl.PID, id string, state supervisorState) childReply {
	if state.template != nil {
		return childReply{err: ErrSimpleOneForOne}
	}
	idx, child, err := state.children.get(id)
	if err != nil {
		return childReply{err: err}
	}
	if child.status == ChildRunning || child.status == ChildRestarting {
		return childReply{err: fmt.Errorf("%w: %s", ErrRunning, id)}
	}
	started, err := s.startChild(self, child)
	if err != nil {
		return childReply{err: err}
	}
	state.children.set(idx, started)
	return childReply{pid: started.pid}
}

func (s SupervisorS) handleDeleteChild(id string, state supervisorState) error {
	if state.template != nil {
		return ErrSimpleOneForOne
	}
	_, child, err := state.children.get(id)
	if err != nil {
		return err
	}
	if child.status == ChildRunning || child.status == ChildRestarting {
		return fmt.Errorf("%w: %s", ErrRunning, id)
	}
	state.children.delete(id)
	return nil
}
