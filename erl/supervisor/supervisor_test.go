package supervisor

import (
	"errors"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/erltest"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/genserver"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

func TestStartLink_StartsChildrenInOrder(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"), log.spec("c2"), log.spec("c3"))

	assert.DeepEqual(t, log.starts(0), []string{"c1", "c2", "c3"})

	children, err := WhichChildren(sup)
	assert.NilError(t, err)
	assert.Equal(t, len(children), 3)
	for i, id := range []string{"c1", "c2", "c3"} {
		assert.Equal(t, children[i].ID, id)
		assert.Equal(t, children[i].Status, ChildRunning)
		assert.Equal(t, children[i].Type, WorkerChild)
		assert.Equal(t, children[i].Restart, Permanent)
		assert.Assert(t, children[i].PID.Equals(log.lastPID(id)))
		assert.Assert(t, erl.IsAlive(children[i].PID))
	}
}

func TestStartLink_HandlesIgnoredChildren(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"), ignoreSpec("c2"))

	c1, ok := findChild(t, sup, "c1")
	assert.Assert(t, ok)
	assert.Equal(t, c1.Status, ChildRunning)

	c2, ok := findChild(t, sup, "c2")
	assert.Assert(t, ok)
	assert.Equal(t, c2.Status, ChildUndefined)
	assert.Assert(t, c2.PID.IsNil())
}

func TestStartLink_ChildFailureRollsBackStartedChildren(t *testing.T) {
	log := newChildLog()
	failing := NewChildSpec("c3", func(sup erl.PID) (erl.PID, error) {
		return erl.UndefinedPID, errors.New("not today")
	})

	_, err := testStartSupervisor(t, TestSup{
		supFlags:   NewSupFlags(),
		childSpecs: []ChildSpec{log.spec("c1"), log.spec("c2"), failing},
	})

	assert.Assert(t, exitreason.IsShutdown(err))
	assert.ErrorContains(t, err, "not today")
	assert.ErrorContains(t, err, "c3")
	assert.DeepEqual(t, log.stops(), []string{"c2", "c1"})
	assert.Assert(t, errors.Is(log.stopReason("c1"), exitreason.SupervisorShutdown))
	assert.Assert(t, !erl.IsAlive(log.lastPID("c1")))
	assert.Assert(t, !erl.IsAlive(log.lastPID("c2")))
}

func TestStartLink_StartFunPanics(t *testing.T) {
	log := newChildLog()
	panicky := NewChildSpec("c2", func(sup erl.PID) (erl.PID, error) {
		panic("uh-oh")
	})

	_, err := testStartSupervisor(t, TestSup{
		supFlags:   NewSupFlags(),
		childSpecs: []ChildSpec{log.spec("c1"), panicky},
	})

	assert.Assert(t, exitreason.IsShutdown(err))
	assert.ErrorContains(t, err, "uh-oh")
	assert.Assert(t, !erl.IsAlive(log.lastPID("c1")))
}

func TestStartLink_RejectsDuplicateChildIDs(t *testing.T) {
	log := newChildLog()
	_, err := testStartSupervisor(t, TestSup{
		supFlags:   NewSupFlags(),
		childSpecs: []ChildSpec{log.spec("c1"), log.spec("c1")},
	})

	assert.Assert(t, exitreason.IsShutdown(err))
	assert.ErrorContains(t, err, "duplicate childspec id found: c1")
	assert.Equal(t, len(log.starts(0)), 0)
}

func TestStartLink_RejectsInvalidSpecs(t *testing.T) {
	log := newChildLog()
	cases := []struct {
		name     string
		flags    SupFlagsS
		children []ChildSpec
		err      string
	}{
		{"unknown strategy", NewSupFlags(SetStrategy("one_for_some")), nil, `unknown supervisor strategy "one_for_some"`},
		{"no start function", NewSupFlags(), []ChildSpec{NewChildSpec("c1", nil)}, "has no start function"},
		{"no id", NewSupFlags(), []ChildSpec{log.spec("")}, "no ID"},
		{"template without simple_one_for_one", NewSupFlags(), []ChildSpec{log.template("w")}, "has no start function"},
		{"simple_one_for_one without template", NewSupFlags(SetStrategy(SimpleOneForOne)), []ChildSpec{log.spec("c1")}, "needs a template"},
		{"simple_one_for_one with two templates", NewSupFlags(SetStrategy(SimpleOneForOne)), []ChildSpec{log.template("w1"), log.template("w2")}, "exactly one child spec"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := testStartSupervisor(t, TestSup{supFlags: tc.flags, childSpecs: tc.children})
			assert.Assert(t, exitreason.IsShutdown(err))
			assert.ErrorContains(t, err, tc.err)
		})
	}
	assert.Equal(t, len(log.starts(0)), 0)
}

func TestStartLink_Ignore(t *testing.T) {
	_, err := testStartSupervisor(t, TestSup{ignore: true})
	assert.ErrorIs(t, err, exitreason.Ignore)
}

func TestStartLink_SetName(t *testing.T) {
	log := newChildLog()
	sup, err := testStartSupervisor(t, TestSup{
		supFlags:   NewSupFlags(),
		childSpecs: []ChildSpec{log.spec("c1")},
	}, SetName(supName))
	assert.NilError(t, err)

	registered, ok := erl.WhereIs(supName)
	assert.Assert(t, ok)
	assert.Assert(t, registered.Equals(sup))

	children, err := WhichChildren(supName)
	assert.NilError(t, err)
	assert.Equal(t, len(children), 1)
}

func TestStartDefaultLink(t *testing.T) {
	log := newChildLog()
	sup, err := StartDefaultLink(erl.RootPID(), []ChildSpec{log.spec("c1")}, NewSupFlags())
	assert.NilError(t, err)
	t.Cleanup(func() { _ = genserver.Stop(erl.UndefinedPID, sup) })

	assert.DeepEqual(t, log.starts(0), []string{"c1"})
}

func TestStop_StopsChildrenInReverseOrder(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(), log.spec("c1"), log.spec("c2"), log.spec("c3"))

	err := genserver.Stop(erl.UndefinedPID, sup)
	assert.NilError(t, err)

	assert.DeepEqual(t, log.stops(), []string{"c3", "c2", "c1"})
	for _, id := range []string{"c1", "c2", "c3"} {
		assert.Assert(t, errors.Is(log.stopReason(id), exitreason.SupervisorShutdown))
		assert.Assert(t, !erl.IsAlive(log.lastPID(id)))
	}
}

func TestStop_BrutalKillSkipsTerminate(t *testing.T) {
	log := newChildLog()
	sup := startSup(t, NewSupFlags(),
		log.spec("c1"),
		log.spec("c2", SetShutdown(ShutdownOpt{BrutalKill: true})),
		log.spec("c3"))
	c2 := log.lastPID("c2")

	err := genserver.Stop(erl.UndefinedPID, sup)
	assert.NilError(t, err)

	assert.DeepEqual(t, log.stops(), []string{"c3", "c1"})
	assert.Assert(t, !erl.IsAlive(c2))
}

func TestStop_KillsChildAfterShutdownTimeout(t *testing.T) {
	log := newChildLog()
	slow := testChild{id: "slow", log: log, trapExits: true, termDelay: chronos.Dur("10s")}
	sup := startSup(t, NewSupFlags(),
		log.spec("c1"),
		NewChildSpec("slow", log.startFun(slow), SetShutdown(ShutdownOpt{Timeout: 50})))
	slowPID := log.lastPID("slow")

	start := time.Now()
	err := genserver.Stop(erl.UndefinedPID, sup, genserver.StopTimeout(chronos.Dur("10s")))
	assert.NilError(t, err)

	assert.Assert(t, time.Since(start) < chronos.Dur("5s"))
	assert.Assert(t, !erl.IsAlive(slowPID))
	assert.DeepEqual(t, log.stops(), []string{"c1"})
}

func TestStop_InfinityWaitsForChild(t *testing.T) {
	log := newChildLog()
	slow := testChild{id: "slow", log: log, trapExits: true, termDelay: chronos.Dur("200ms")}
	sup := startSup(t, NewSupFlags(),
		NewChildSpec("slow", log.startFun(slow),
			SetShutdown(ShutdownOpt{Infinity: true}), SetChildType(SupervisorChild)))

	err := genserver.Stop(erl.UndefinedPID, sup, genserver.StopTimeout(timeout.Infinity))
	assert.NilError(t, err)

	assert.DeepEqual(t, log.stops(), []string{"slow"})
	assert.Assert(t, errors.Is(log.stopReason("slow"), exitreason.SupervisorShutdown))
}

func TestSupervisor_ExitsWithParent(t *testing.T) {
	log := newChildLog()
	supCh := make(chan erl.PID, 1)

	parent := erl.Spawn(erl.RunFunc(func(self erl.PID, _ any) error {
		sup, err := StartDefaultLink(self, []ChildSpec{log.spec("c1"), log.spec("c2")}, NewSupFlags())
		if err != nil {
			return err
		}
		supCh <- sup
		_, err = erl.Receive(self, erl.MatchAny, timeout.Infinity)
		return err
	}), nil)

	var sup erl.PID
	select {
	case sup = <-supCh:
	case <-time.After(testTimeout):
		t.Fatal("supervisor did not start")
	}
	exited := erltest.WatchExit(t, sup)

	erl.Exit(erl.RootPID(), parent, exitreason.Kill)

	select {
	case reason := <-exited:
		assert.Assert(t, exitreason.IsKill(reason))
	case <-time.After(testTimeout):
		t.Fatal("supervisor did not exit with its parent")
	}
	assert.DeepEqual(t, log.stops(), []string{"c2", "c1"})
}

func TestSupervisor_NestedSupervisorShutsDownSubtree(t *testing.T) {
	log := newChildLog()
	inner := NewChildSpec("inner", func(sup erl.PID) (erl.PID, error) {
		return StartDefaultLink(sup, []ChildSpec{log.spec("leaf1"), log.spec("leaf2")}, NewSupFlags())
	}, SetChildType(SupervisorChild), SetShutdown(ShutdownOpt{Infinity: true}))

	sup := startSup(t, NewSupFlags(), log.spec("c1"), inner)

	count, err := CountChildren(sup)
	assert.NilError(t, err)
	assert.DeepEqual(t, count, ChildCount{Specs: 2, Active: 2, Supervisors: 1, Workers: 1})

	err = genserver.Stop(erl.UndefinedPID, sup)
	assert.NilError(t, err)
	assert.DeepEqual(t, log.stops(), []string{"leaf2", "leaf1", "c1"})
}
