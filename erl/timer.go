package erl

import (
	"errors"
	"time"

	"github.com/uberbrodt/otp-go/erl/exitreason"
)

type TimerRef struct {
	pid PID
}

// CancelTimer stops a timer started with [SendAfter]. Cancelling a timer that
// already fired is a no-op.
func CancelTimer(tr TimerRef) error {
	if tr.pid.IsNil() {
		return exitreason.NoProc
	}
	Send(tr.pid, cancelTimer{})
	return nil
}

type timer struct {
	to   PID
	term any
	tout time.Duration
}

type cancelTimer struct{}

func (t *timer) Run(self PID, _ any) error {
	ref := Monitor(self, t.to)
	deadline := time.Now().Add(t.tout)

	// a negative wait means forever to Receive, so an elapsed deadline polls
	msg, err := Receive(self, func(m Message) bool {
		switch v := m.Term.(type) {
		case cancelTimer:
			return true
		case DownMsg:
			return v.Ref == ref
		}
		return false
	}, max(0, time.Until(deadline)))

	switch {
	case errors.Is(err, exitreason.Timeout):
		Demonitor(self, ref)
		Send(t.to, t.term)
		return exitreason.Normal
	case err != nil:
		return err
	}

	// cancelled, or the receiver died first
	DebugPrintf("%v timer stopped by %T", self, msg)
	return exitreason.Normal
}
