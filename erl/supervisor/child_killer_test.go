package supervisor

import (
	"errors"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/erltest"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/genserver"
)

// startKillable starts [child] linked to a stand-in supervisor and returns a
// running spec for it.
func startKillable(t *testing.T, child testChild, opts ...ChildSpecOpt) (erl.PID, ChildSpec) {
	t.Helper()
	parent, _ := erl.NewTestReceiver(t)
	pid, err := genserver.StartLink[childState](parent, child, nil)
	assert.NilError(t, err)

	spec := NewChildSpec(child.id, nil, opts...)
	spec.pid = pid
	spec.status = ChildRunning
	return parent, spec
}

func TestTerminate_ShutdownSignal(t *testing.T) {
	log := newChildLog()
	parent, spec := startKillable(t, testChild{id: "c1", log: log, trapExits: true})

	err := terminate(parent, spec)
	assert.NilError(t, err)
	assert.Assert(t, !erl.IsAlive(spec.pid))
	assert.Assert(t, errors.Is(log.stopReason("c1"), exitreason.SupervisorShutdown))
}

func TestTerminate_NotTrappingExits(t *testing.T) {
	log := newChildLog()
	parent, spec := startKillable(t, testChild{id: "c1", log: log})

	err := terminate(parent, spec)
	assert.NilError(t, err)
	assert.Assert(t, !erl.IsAlive(spec.pid))
	assert.Equal(t, len(log.stops()), 0)
}

func TestTerminate_BrutalKill(t *testing.T) {
	log := newChildLog()
	parent, spec := startKillable(t, testChild{id: "c1", log: log, trapExits: true},
		SetShutdown(ShutdownOpt{BrutalKill: true}))

	err := terminate(parent, spec)
	assert.NilError(t, err)
	assert.Assert(t, !erl.IsAlive(spec.pid))
	assert.Equal(t, len(log.stops()), 0)
}

func TestTerminate_KillsAfterTimeout(t *testing.T) {
	log := newChildLog()
	parent, spec := startKillable(t,
		testChild{id: "c1", log: log, trapExits: true, termDelay: chronos.Dur("10s")},
		SetShutdown(ShutdownOpt{Timeout: 20}))

	err := terminate(parent, spec)
	assert.ErrorIs(t, err, exitreason.Kill)
	assert.ErrorContains(t, err, "c1")
	assert.Assert(t, !erl.IsAlive(spec.pid))
}

func TestTerminate_ChildNotRunning(t *testing.T) {
	log := newChildLog()
	parent, spec := startKillable(t, testChild{id: "c1", log: log})

	spec.status = ChildTerminated
	assert.NilError(t, terminate(parent, spec))
	assert.Assert(t, erl.IsAlive(spec.pid))

	spec.status = ChildRunning
	crash(spec.pid)
	erltest.WaitFor(t, testTimeout, func() bool { return !erl.IsAlive(spec.pid) })
	assert.NilError(t, terminate(parent, spec))
}
