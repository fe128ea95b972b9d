package erl

import (
	"errors"
	"testing"
	"time"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

// default wait used by the package's test helpers
var testTimeout time.Duration = chronos.Dur("10s")

// NewTestReceiver spawns a process trapping exits that forwards everything in its
// mailbox to [TestReceiver.Receiver]. It is stopped when the test finishes.
//
// See erltest.NewReceiver for a receiver with message expectations.
func NewTestReceiver(t testing.TB) (PID, *TestReceiver) {
	tr := &TestReceiver{c: make(chan any, 50), t: t}
	pid, _, _ := SpawnOpt(tr, nil, TrapExits())

	t.Cleanup(func() {
		Exit(RootPID(), pid, exitreason.TestExit)
	})
	return pid, tr
}

type TestReceiver struct {
	c chan any
	t testing.TB
}

func (tr *TestReceiver) Run(self PID, _ any) error {
	for {
		msg, err := Receive(self, MatchAny, timeout.Infinity)
		if err != nil {
			return err
		}
		if exit, ok := msg.(ExitMsg); ok && errors.Is(exit.Reason, exitreason.TestExit) {
			return exitreason.Normal
		}
		tr.c <- msg
	}
}

func (tr *TestReceiver) Receiver() <-chan any {
	return tr.c
}

// LoopFor hands messages to [handler] until it returns true. Returns
// [exitreason.Timeout] if [tout] passes without a message.
func (tr *TestReceiver) LoopFor(tout time.Duration, handler func(msg any) bool) error {
	for {
		select {
		case msg := <-tr.c:
			if handler(msg) {
				return nil
			}
		case <-time.After(tout):
			return exitreason.Timeout
		}
	}
}

// Loop is [LoopFor] with a default timeout that fails the test.
func (tr *TestReceiver) Loop(handler func(msg any) bool) bool {
	if err := tr.LoopFor(testTimeout, handler); err != nil {
		tr.t.Fatal("TestReceiver.Loop test timeout")
		return false
	}
	return true
}
