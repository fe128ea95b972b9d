package erl_test

import (
	"time"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

var testTimeout = chronos.Dur("5s")

type TestMsg struct {
	Name string
}

// blocks until the process is terminated by a signal, returning the reason
var idle = erl.RunFunc(func(self erl.PID, _ any) error {
	_, err := erl.Receive(self, func(erl.Message) bool { return false }, timeout.Infinity)
	return err
})

// waits for a message; an error is returned as the exit reason, anything else
// exits normally
var exitOnMsg = erl.RunFunc(func(self erl.PID, _ any) error {
	msg, err := erl.Receive(self, erl.MatchAny, timeout.Infinity)
	if err != nil {
		return err
	}
	if e, ok := msg.(error); ok {
		return e
	}
	return nil
})

// forwards every message to the pid passed as args
var forwarder = erl.RunFunc(func(self erl.PID, args any) error {
	to := args.(erl.PID)
	for {
		msg, err := erl.Receive(self, erl.MatchAny, timeout.Infinity)
		if err != nil {
			return err
		}
		erl.Send(to, msg)
	}
})

func sleep() {
	time.Sleep(50 * time.Millisecond)
}
