package supervisor

import (
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/erltest"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/genserver"
)

const supName erl.Name = "test-supervisor"

var testTimeout = chronos.Dur("5s")

type TestSup struct {
	childSpecs []ChildSpec
	supFlags   SupFlagsS
	ignore     bool
}

func (s TestSup) Init(self erl.PID, args any) InitResult {
	return InitResult{s.supFlags, s.childSpecs, s.ignore}
}

func testStartSupervisor(t *testing.T, sup Supervisor, opts ...LinkOpts) (erl.PID, error) {
	t.Helper()
	pid, err := StartLink(erl.RootPID(), sup, nil, opts...)

	t.Cleanup(func() {
		if err == nil && erl.IsAlive(pid) {
			_ = genserver.Stop(erl.UndefinedPID, pid, genserver.StopReason(exitreason.SupervisorShutdown))
		}
	})
	return pid, err
}

func startSup(t *testing.T, flags SupFlagsS, children ...ChildSpec) erl.PID {
	t.Helper()
	pid, err := testStartSupervisor(t, TestSup{supFlags: flags, childSpecs: children})
	if err != nil {
		t.Fatalf("starting supervisor: %v", err)
	}
	return pid
}

func crash(pid erl.PID) {
	erl.Exit(erl.RootPID(), pid, exitreason.Kill)
}

type childEvent struct {
	id   string
	pid  erl.PID
	args any
	stop bool
	// only set on stops
	reason error
}

// childLog records the starts and stops of the children built from it, in the
// order they happen.
type childLog struct {
	mx     sync.Mutex
	events []childEvent
	// how many of the next starts of a child fail
	failing map[string]int
}

func newChildLog() *childLog {
	return &childLog{failing: make(map[string]int)}
}

func (l *childLog) record(ev childEvent) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.events = append(l.events, ev)
}

func (l *childLog) failNext(id string, n int) {
	l.mx.Lock()
	defer l.mx.Unlock()
	l.failing[id] = n
}

func (l *childLog) shouldFail(id string) bool {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.failing[id] > 0 {
		l.failing[id]--
		return true
	}
	return false
}

func (l *childLog) filter(keep func(ev childEvent) bool) []childEvent {
	l.mx.Lock()
	defer l.mx.Unlock()
	out := make([]childEvent, 0)
	for _, ev := range l.events {
		if keep(ev) {
			out = append(out, ev)
		}
	}
	return out
}

func ids(events []childEvent) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.id)
	}
	return out
}

// ids of started children, in start order, from the [from]th start on
func (l *childLog) starts(from int) []string {
	all := ids(l.filter(func(ev childEvent) bool { return !ev.stop }))
	if from > len(all) {
		return nil
	}
	return all[from:]
}

func (l *childLog) stops() []string {
	return ids(l.filter(func(ev childEvent) bool { return ev.stop }))
}

func (l *childLog) startCount(id string) int {
	return len(l.filter(func(ev childEvent) bool { return !ev.stop && ev.id == id }))
}

func (l *childLog) startArgs() []any {
	out := make([]any, 0)
	for _, ev := range l.filter(func(ev childEvent) bool { return !ev.stop }) {
		out = append(out, ev.args)
	}
	return out
}

func (l *childLog) lastPID(id string) erl.PID {
	evs := l.filter(func(ev childEvent) bool { return !ev.stop && ev.id == id })
	if len(evs) == 0 {
		return erl.UndefinedPID
	}
	return evs[len(evs)-1].pid
}

func (l *childLog) stopReason(id string) error {
	evs := l.filter(func(ev childEvent) bool { return ev.stop && ev.id == id })
	if len(evs) == 0 {
		return nil
	}
	return evs[len(evs)-1].reason
}

func (l *childLog) waitStarts(t *testing.T, id string, n int) {
	t.Helper()
	erltest.WaitFor(t, testTimeout, func() bool { return l.startCount(id) >= n })
}

func (l *childLog) waitStops(t *testing.T, n int) {
	t.Helper()
	erltest.WaitFor(t, testTimeout, func() bool { return len(l.stops()) >= n })
}

// spec returns a child that traps exits, so its stops are recorded.
func (l *childLog) spec(id string, opts ...ChildSpecOpt) ChildSpec {
	return NewChildSpec(id, l.startFun(testChild{id: id, log: l, trapExits: true}), opts...)
}

func (l *childLog) startFun(child testChild) StartFunSpec {
	return func(sup erl.PID) (erl.PID, error) {
		if l.shouldFail(child.id) {
			return erl.UndefinedPID, errors.New("start failed")
		}
		return genserver.StartLink[childState](sup, child, nil)
	}
}

func (l *childLog) template(id string, opts ...ChildSpecOpt) ChildSpec {
	child := testChild{id: id, log: l, trapExits: true}
	return NewTemplateSpec(id, func(sup erl.PID, args any) (erl.PID, error) {
		if l.shouldFail(id) {
			return erl.UndefinedPID, errors.New("start failed")
		}
		return genserver.StartLink[childState](sup, child, args)
	}, opts...)
}

func ignoreSpec(id string) ChildSpec {
	return NewChildSpec(id, func(sup erl.PID) (erl.PID, error) {
		return erl.UndefinedPID, exitreason.Ignore
	})
}

func findChild(t *testing.T, sup erl.Dest, id string) (ChildInfo, bool) {
	t.Helper()
	children, err := WhichChildren(sup)
	if err != nil {
		t.Fatalf("WhichChildren: %v", err)
	}
	idx := slices.IndexFunc(children, func(ci ChildInfo) bool { return ci.ID == id })
	if idx < 0 {
		return ChildInfo{}, false
	}
	return children[idx], true
}

type childState struct {
	args any
}

// testChild is the worker used by the supervisor tests. Cast "stop" to make it
// exit normally, "shutdown" for a shutdown and "crash" for an error.
type testChild struct {
	id        string
	log       *childLog
	trapExits bool
	// how long Terminate takes
	termDelay time.Duration
}

func (c testChild) Init(self erl.PID, args any) (genserver.InitResult[childState], error) {
	if c.trapExits {
		erl.ProcessFlag(self, erl.TrapExit, true)
	}
	c.log.record(childEvent{id: c.id, pid: self, args: args})
	return genserver.InitResult[childState]{State: childState{args: args}}, nil
}

func (c testChild) HandleCall(self erl.PID, request any, from genserver.From, state childState) (genserver.CallResult[childState], error) {
	return genserver.CallResult[childState]{Msg: state.args, State: state}, nil
}

func (c testChild) HandleCast(self erl.PID, request any, state childState) (genserver.CastResult[childState], error) {
	result := genserver.CastResult[childState]{State: state}
	switch request {
	case "stop":
		return result, exitreason.Normal
	case "shutdown":
		return result, exitreason.Shutdown("done")
	case "crash":
		return result, errors.New("crash")
	}
	return result, nil
}

func (c testChild) HandleInfo(self erl.PID, msg any, state childState) (genserver.InfoResult[childState], error) {
	return genserver.InfoResult[childState]{State: state}, nil
}

func (c testChild) HandleContinue(self erl.PID, continuation any, state childState) (childState, any, error) {
	return state, nil, nil
}

func (c testChild) Terminate(self erl.PID, reason error, state childState) {
	if c.termDelay > 0 {
		time.Sleep(c.termDelay)
	}
	c.log.record(childEvent{id: c.id, pid: self, stop: true, reason: reason})
}
