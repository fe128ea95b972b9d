package supervisor

import (
	"errors"
	"fmt"
	"time"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

// childKiller stops one child for the supervisor according to its
// [ShutdownOpt] and reports on [done] once the child is gone.
type childKiller struct {
	done      chan<- error
	parentPID erl.PID
	child     ChildSpec
}

func (ck *childKiller) Run(self erl.PID, _ any) error {
	result := exitreason.Exception(errors.New("child killer did not finish"))
	defer func() {
		ck.done <- result
	}()

	erl.DebugPrintf("Supervisor[%v] is terminating %s (%v)", ck.parentPID, ck.child.ID, ck.child.pid)
	ref := erl.Monitor(self, ck.child.pid)
	// the supervisor shouldn't get an ExitMsg for a child it is stopping
	erl.Unlink(ck.parentPID, ck.child.pid)

	shutdown := ck.child.Shutdown
	if shutdown.BrutalKill {
		erl.Exit(ck.parentPID, ck.child.pid, exitreason.Kill)
		result = ck.waitDown(self, ref, timeout.Infinity, exitreason.Kill)
		return nil
	}

	erl.Exit(ck.parentPID, ck.child.pid, exitreason.SupervisorShutdown)
	wait := timeout.Infinity
	if !shutdown.Infinity {
		wait = chronos.Millis(shutdown.Timeout)
	}

	result = ck.waitDown(self, ref, wait, exitreason.SupervisorShutdown)
	if errors.Is(result, exitreason.Timeout) {
		erl.Logger.Printf("Supervisor[%v] child %s did not stop within %dms, killing it", ck.parentPID, ck.child.ID, shutdown.Timeout)
		erl.Exit(ck.parentPID, ck.child.pid, exitreason.Kill)
		result = ck.waitDown(self, ref, timeout.Infinity, exitreason.SupervisorShutdown)
	}
	return nil
}

// returns nil if the child went down with [expected], or with a clean reason
// when it isn't permanent
func (ck *childKiller) waitDown(self erl.PID, ref erl.Ref, tout time.Duration, expected *exitreason.S) error {
	msg, err := erl.Receive(self, erl.MatchDown(ref), tout)
	if err != nil {
		return err
	}
	reason := msg.(erl.DownMsg).Reason

	switch {
	case errors.Is(reason, expected):
		return nil
	case errors.Is(reason, exitreason.NoProc):
		// already gone, its exit was reported to the supervisor
		return nil
	case exitreason.IsShutdown(reason):
		return nil
	case exitreason.IsNormal(reason) && ck.child.Restart != Permanent:
		return nil
	default:
		return fmt.Errorf("child %s: %w", ck.child.ID, reason)
	}
}

// terminate stops [child] and waits for it; see [childKiller].
func terminate(sup erl.PID, child ChildSpec) error {
	if child.status != ChildRunning || !erl.IsAlive(child.pid) {
		return nil
	}
	done := make(chan error, 1)
	erl.Spawn(&childKiller{done: done, parentPID: sup, child: child}, nil)
	return <-done
}
