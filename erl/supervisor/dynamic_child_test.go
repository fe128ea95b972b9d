package supervisor

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/genserver"
)

func TestStartChild_AppendsAndStartsChild(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"))

	pid, err := StartChild(sup, log.spec("c2"))
	assert.NilError(t, err)
	assert.Assert(t, erl.IsAlive(pid))
	assert.Assert(t, pid.Equals(log.lastPID("c2")))

	children, err := WhichChildren(sup)
	assert.NilError(t, err)
	assert.Equal(t, len(children), 2)
	assert.Equal(t, children[1].ID, "c2")
	assert.Assert(t, children[1].PID.Equals(pid))

	// dynamic children are stopped with the rest, newest first
	err = genserver.Stop(erl.UndefinedPID, sup)
	assert.NilError(t, err)
	assert.DeepEqual(t, log.stops(), []string{"c2", "c1"})
}

func TestStartChild_IsRestartedLikeStaticChildren(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags())

	pid, err := StartChild(sup, log.spec("c1"))
	assert.NilError(t, err)

	crash(pid)
	log.waitStarts(t, "c1", 2)

	info, ok := findChild(t, sup, "c1")
	assert.Assert(t, ok)
	assert.Assert(t, info.PID.Equals(log.lastPID("c1")))
}

func TestStartChild_AlreadyStarted(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"))

	_, err := StartChild(sup, log.spec("c1"))
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	var started AlreadyStartedError
	assert.Assert(t, errors.As(err, &started))
	assert.Assert(t, started.PID.Equals(log.lastPID("c1")))
	assert.Equal(t, log.startCount("c1"), 1)
}

func TestStartChild_AlreadyPresent(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"))
	assert.NilError(t, TerminateChild(sup, "c1"))

	_, err := StartChild(sup, log.spec("c1"))
	assert.ErrorIs(t, err, ErrAlreadyPresent)
}

func TestStartChild_FailedStartIsNotAdded(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags())

	log.failNext("c1", 1)
	_, err := StartChild(sup, log.spec("c1"))
	assert.ErrorContains(t, err, "start failed")

	_, ok := findChild(t, sup, "c1")
	assert.Assert(t, !ok)
	assert.Assert(t, erl.IsAlive(sup))
}

func TestStartChild_PanicIsAnException(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags())

	_, err := StartChild(sup, NewChildSpec("c1", func(sup erl.PID) (erl.PID, error) {
		panic("boom")
	}))
	assert.Assert(t, exitreason.IsException(err))
	assert.ErrorContains(t, err, "boom")
	assert.Assert(t, erl.IsAlive(sup))
	assert.Equal(t, len(log.starts(0)), 0)
}

func TestStartChild_Ignored(t *testing.T) {
	sup := startSup(t, NewSupFlags())

	pid, err := StartChild(sup, ignoreSpec("c1"))
	assert.NilError(t, err)
	assert.Assert(t, pid.IsNil())

	info, ok := findChild(t, sup, "c1")
	assert.Assert(t, ok)
	assert.Equal(t, info.Status, ChildUndefined)
}

func TestStartChild_InvalidSpec(t *testing.T) {
	sup := startSup(t, NewSupFlags())

	_, err := StartChild(sup, NewChildSpec("c1", nil))
	assert.ErrorContains(t, err, "no start function")
}

func TestStartChild_DoesNotCountAsRestart(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(SetIntensity(0)))

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := StartChild(sup, log.spec(id))
		assert.NilError(t, err)
	}
	assert.Assert(t, erl.IsAlive(sup))
}

func TestTerminateChild_StopsAndKeepsSpec(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"), log.spec("c2"))
	c1 := log.lastPID("c1")

	err := TerminateChild(sup, "c1")
	assert.NilError(t, err)

	assert.Assert(t, !erl.IsAlive(c1))
	assert.DeepEqual(t, log.stops(), []string{"c1"})
	assert.Assert(t, errors.Is(log.stopReason("c1"), exitreason.SupervisorShutdown))

	info, ok := findChild(t, sup, "c1")
	assert.Assert(t, ok)
	assert.Equal(t, info.Status, ChildTerminated)
	assert.Assert(t, info.PID.IsNil())

	// not restarted, and not counted as a restart
	assert.Equal(t, log.startCount("c1"), 1)
	assert.Assert(t, erl.IsAlive(sup))
}

func TestTerminateChild_IsIdempotent(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"), ignoreSpec("c2"))

	assert.NilError(t, TerminateChild(sup, "c1"))
	assert.NilError(t, TerminateChild(sup, "c1"))
	assert.NilError(t, TerminateChild(sup, "c2"))
	assert.Equal(t, len(log.stops()), 1)
}

func TestTerminateChild_TemporaryChildIsRemoved(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1", SetRestart(Temporary)))

	assert.NilError(t, TerminateChild(sup, "c1"))

	_, ok := findChild(t, sup, "c1")
	assert.Assert(t, !ok)
}

func TestTerminateChild_NotFound(t *testing.T) {
	sup := startSup(t, NewSupFlags())

	err := TerminateChild(sup, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestartChild_RestartsTerminatedChild(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"))
	assert.NilError(t, TerminateChild(sup, "c1"))

	pid, err := RestartChild(sup, "c1")
	assert.NilError(t, err)
	assert.Assert(t, erl.IsAlive(pid))
	assert.Equal(t, log.startCount("c1"), 2)

	info, ok := findChild(t, sup, "c1")
	assert.Assert(t, ok)
	assert.Equal(t, info.Status, ChildRunning)
	assert.Assert(t, info.PID.Equals(pid))
}

func TestRestartChild_Running(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"))

	_, err := RestartChild(sup, "c1")
	assert.ErrorIs(t, err, ErrRunning)
}

func TestRestartChild_FailedStartKeepsStatus(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"))
	assert.NilError(t, TerminateChild(sup, "c1"))

	log.failNext("c1", 1)
	_, err := RestartChild(sup, "c1")
	assert.ErrorContains(t, err, "start failed")

	info, ok := findChild(t, sup, "c1")
	assert.Assert(t, ok)
	assert.Equal(t, info.Status, ChildTerminated)
}

func TestRestartChild_NotFound(t *testing.T) {
	sup := startSup(t, NewSupFlags())

	_, err := RestartChild(sup, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteChild(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"), log.spec("c2"))

	assert.ErrorIs(t, DeleteChild(sup, "c1"), ErrRunning)

	assert.NilError(t, TerminateChild(sup, "c1"))
	assert.NilError(t, DeleteChild(sup, "c1"))

	children, err := WhichChildren(sup)
	assert.NilError(t, err)
	assert.Equal(t, len(children), 1)
	assert.Equal(t, children[0].ID, "c2")

	assert.ErrorIs(t, DeleteChild(sup, "c1"), ErrNotFound)

	// the ID can be reused
	_, err = StartChild(sup, log.spec("c1"))
	assert.NilError(t, err)
}

func TestCountChildren(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(),
		log.spec("c1"),
		log.spec("c2", SetChildType(SupervisorChild)),
		ignoreSpec("c3"),
		log.spec("c4"))
	assert.NilError(t, TerminateChild(sup, "c4"))

	count, err := CountChildren(sup)
	assert.NilError(t, err)
	assert.DeepEqual(t, count, ChildCount{Specs: 4, Active: 2, Supervisors: 1, Workers: 3})
}

func TestDynamicAPI_DeadSupervisor(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"))
	assert.NilError(t, genserver.Stop(erl.UndefinedPID, sup))

	_, err := WhichChildren(sup)
	assert.ErrorIs(t, err, exitreason.NoProc)
	_, err = CountChildren(sup)
	assert.ErrorIs(t, err, exitreason.NoProc)
	_, err = StartChild(sup, log.spec("c2"))
	assert.ErrorIs(t, err, exitreason.NoProc)
	assert.ErrorIs(t, TerminateChild(sup, "c1"), exitreason.NoProc)
}
