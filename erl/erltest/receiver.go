// Package erltest contains helpers for testing code built on erl processes.
//
// The [TestReceiver] is a process that records everything sent to it and can
// have message expectations set on it, using gomock matchers:
//
//	pid, tr := erltest.NewReceiver(t)
//	tr.Expect(erl.DownMsg{}, erltest.ExitReason(exitreason.Kill))
//	erl.Monitor(pid, worker)
//	erl.Exit(pid, worker, exitreason.Kill)
//	tr.Wait()
package erltest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

var DefaultWaitTimeout time.Duration = chronos.Dur("5s")

type receiverOptions struct {
	waitTimeout time.Duration
	name        erl.Name
}

type ReceiverOpt func(ro receiverOptions) receiverOptions

// Specify how long [TestReceiver.Wait] waits for all expectations to be met.
// See [DefaultWaitTimeout].
func WaitTimeout(t time.Duration) ReceiverOpt {
	return func(ro receiverOptions) receiverOptions {
		ro.waitTimeout = t
		return ro
	}
}

// Register the receiver under [name].
func Name(name erl.Name) ReceiverOpt {
	return func(ro receiverOptions) receiverOptions {
		ro.name = name
		return ro
	}
}

// A TestReceiver is a process trapping exits that matches every message it
// receives against its expectations. It is stopped when the test ends.
type TestReceiver struct {
	t    testing.TB
	self erl.PID
	opts receiverOptions

	mx        sync.Mutex
	expects   []*Expectation
	received  []any
	unmatched []any
	// closed and replaced whenever a message is handled
	changed chan struct{}
}

// NewReceiver spawns a [TestReceiver].
func NewReceiver(t testing.TB, opts ...ReceiverOpt) (erl.PID, *TestReceiver) {
	ro := receiverOptions{waitTimeout: DefaultWaitTimeout}
	for _, o := range opts {
		ro = o(ro)
	}
	tr := &TestReceiver{t: t, opts: ro, changed: make(chan struct{})}

	spawnOpts := []erl.SpawnOption{erl.TrapExits()}
	if ro.name != "" {
		spawnOpts = append(spawnOpts, erl.WithName(ro.name))
	}
	pid, _, err := erl.SpawnOpt(tr, nil, spawnOpts...)
	if err != nil {
		t.Fatalf("could not start test receiver: %v", err)
	}
	tr.self = pid

	t.Cleanup(func() {
		erl.Exit(erl.RootPID(), pid, exitreason.TestExit)
	})
	return pid, tr
}

func (tr *TestReceiver) Run(self erl.PID, _ any) error {
	for {
		msg, err := erl.Receive(self, erl.MatchAny, timeout.Infinity)
		if err != nil {
			return err
		}
		if exit, ok := msg.(erl.ExitMsg); ok && errors.Is(exit.Reason, exitreason.TestExit) {
			return exitreason.Normal
		}
		tr.handle(self, msg)
	}
}

func (tr *TestReceiver) handle(self erl.PID, msg any) {
	tr.mx.Lock()
	tr.received = append(tr.received, msg)
	var matched *Expectation
	for _, ex := range tr.expects {
		if !ex.accepts(msg) {
			continue
		}
		if matched == nil {
			matched = ex
		}
		// prefer an expectation that still needs messages
		if ex.anyTimes || ex.matched < ex.times {
			matched = ex
			break
		}
	}
	if matched != nil {
		matched.matched++
	} else {
		tr.unmatched = append(tr.unmatched, msg)
	}
	close(tr.changed)
	tr.changed = make(chan struct{})
	tr.mx.Unlock()

	if matched != nil && matched.do != nil {
		matched.do(self, msg)
	}
}

// PID of the receiver process.
func (tr *TestReceiver) PID() erl.PID {
	return tr.self
}

// Expect registers an expectation for a message of the same type as [msg]
// accepted by [m]. By default it must match exactly once.
func (tr *TestReceiver) Expect(msg any, m gomock.Matcher) *Expectation {
	ex := &Expectation{msgT: reflect.TypeOf(msg), matcher: m, times: 1}
	tr.mx.Lock()
	defer tr.mx.Unlock()
	tr.expects = append(tr.expects, ex)
	// messages that arrived before the expectation was set count too
	for _, r := range tr.unmatched {
		if ex.accepts(r) {
			ex.matched++
		}
	}
	tr.unmatched = removeMatched(tr.unmatched, ex)
	return ex
}

func removeMatched(msgs []any, ex *Expectation) []any {
	out := msgs[:0]
	for _, m := range msgs {
		if !ex.accepts(m) {
			out = append(out, m)
		}
	}
	return out
}

// Received returns a copy of every message received so far, in order.
func (tr *TestReceiver) Received() []any {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	return append([]any(nil), tr.received...)
}

// Unmatched returns the messages no expectation accepted.
func (tr *TestReceiver) Unmatched() []any {
	tr.mx.Lock()
	defer tr.mx.Unlock()
	return append([]any(nil), tr.unmatched...)
}

// Wait blocks until every expectation has matched the required number of times
// and fails the test if that doesn't happen within the wait timeout.
func (tr *TestReceiver) Wait() {
	tr.t.Helper()
	if err := tr.WaitFor(tr.opts.waitTimeout); err != nil {
		tr.t.Fatal(err)
	}
}

// WaitFor is [Wait] returning an error instead of failing the test.
func (tr *TestReceiver) WaitFor(tout time.Duration) error {
	deadline := time.After(tout)
	for {
		tr.mx.Lock()
		pending, over := tr.status()
		changed := tr.changed
		tr.mx.Unlock()

		if len(over) > 0 {
			return fmt.Errorf("expectations matched too many times:\n%s", strings.Join(over, "\n"))
		}
		if len(pending) == 0 {
			return nil
		}

		select {
		case <-changed:
		case <-deadline:
			return fmt.Errorf("unsatisfied expectations after %s:\n%s\nunmatched messages: %#v",
				tout, strings.Join(pending, "\n"), tr.Unmatched())
		}
	}
}

// must hold tr.mx
func (tr *TestReceiver) status() (pending []string, over []string) {
	for _, ex := range tr.expects {
		switch {
		case ex.anyTimes:
		case ex.matched < ex.times:
			pending = append(pending, ex.String())
		case ex.matched > ex.times:
			over = append(over, ex.String())
		}
	}
	return pending, over
}
