package erltest

import (
	"testing"
	"time"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

// Within runs [fn] inside a new process trapping exits and waits for it to
// return. [fn] runs on another goroutine, so it should only use non-fatal
// checks; pass results out and assert on them afterwards.
func Within(t testing.TB, fn func(self erl.PID)) {
	t.Helper()
	done := make(chan struct{})
	pid, _, _ := erl.SpawnOpt(erl.RunFunc(func(self erl.PID, _ any) error {
		defer close(done)
		fn(self)
		return nil
	}), nil, erl.TrapExits())

	select {
	case <-done:
	case <-time.After(DefaultWaitTimeout * 2):
		erl.Exit(erl.RootPID(), pid, exitreason.Kill)
		t.Fatal("erltest.Within: process did not finish in time")
	}
}

// WaitFor polls [cond] until it returns true, failing the test after [tout].
func WaitFor(t testing.TB, tout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(tout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met within %s", tout)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// WatchExit monitors [pid] from a helper process and returns a channel that
// receives the reason [pid] exits with. The monitor is in place when WatchExit
// returns; if [pid] is already dead the reason is noproc.
func WatchExit(t testing.TB, pid erl.PID) <-chan *exitreason.S {
	t.Helper()
	result := make(chan *exitreason.S, 1)
	ready := make(chan struct{})
	watcher := erl.Spawn(erl.RunFunc(func(self erl.PID, _ any) error {
		ref := erl.Monitor(self, pid)
		close(ready)
		msg, err := erl.Receive(self, erl.MatchDown(ref), timeout.Infinity)
		if err != nil {
			return err
		}
		result <- msg.(erl.DownMsg).Reason
		return nil
	}), nil)
	<-ready

	t.Cleanup(func() {
		erl.Exit(erl.RootPID(), watcher, exitreason.Kill)
	})
	return result
}

// WaitExit waits on [WatchExit], failing the test if [pid] is still alive
// after [tout].
func WaitExit(t testing.TB, pid erl.PID, tout time.Duration) *exitreason.S {
	t.Helper()
	select {
	case reason := <-WatchExit(t, pid):
		return reason
	case <-time.After(tout):
		t.Fatalf("%v did not exit within %s", pid, tout)
		return nil
	}
}
