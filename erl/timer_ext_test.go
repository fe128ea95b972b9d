package erl_test

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/erltest"
	"github.com/uberbrodt/otp-go/erl/exitreason"
)

func TestSendAfter_DeliversAfterDelay(t *testing.T) {
	var got any
	var elapsed time.Duration
	erltest.Within(t, func(self erl.PID) {
		start := time.Now()
		erl.SendAfter(self, TestMsg{Name: "later"}, 50*time.Millisecond)
		got, _ = erl.Receive(self, erl.MatchType[TestMsg], testTimeout)
		elapsed = time.Since(start)
	})

	assert.Equal(t, got, TestMsg{Name: "later"})
	assert.Assert(t, elapsed >= 50*time.Millisecond)
}

func TestSendAfter_TinyDelayStillDelivers(t *testing.T) {
	received := 0
	erltest.Within(t, func(self erl.PID) {
		for range 20 {
			erl.SendAfter(self, "tick", time.Nanosecond)
		}
		for range 20 {
			if _, err := erl.Receive(self, erl.MatchAny, 500*time.Millisecond); err == nil {
				received++
			}
		}
	})

	assert.Equal(t, received, 20)
}

func TestCancelTimer_PreventsDelivery(t *testing.T) {
	var err error
	var cancelErr error
	erltest.Within(t, func(self erl.PID) {
		ref := erl.SendAfter(self, TestMsg{Name: "never"}, 100*time.Millisecond)
		cancelErr = erl.CancelTimer(ref)
		_, err = erl.Receive(self, erl.MatchType[TestMsg], 300*time.Millisecond)
	})

	assert.NilError(t, cancelErr)
	assert.ErrorIs(t, err, exitreason.Timeout)
}

func TestSendAfter_DeadTarget(t *testing.T) {
	ref := erl.SendAfter(erl.UndefinedPID, "x", time.Millisecond)
	assert.ErrorIs(t, erl.CancelTimer(ref), exitreason.NoProc)
}
