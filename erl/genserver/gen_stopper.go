package genserver

import (
	"errors"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
)

func doStop(self erl.PID, gensrv erl.PID, opts exitOptS) error {
	erl.DebugPrintf("genStopper[%v]: preparing to stop %v", self, gensrv)
	ref := erl.Monitor(self, gensrv)
	erl.SendFrom(self, gensrv, stopRequest{reason: opts.exitReason})

	msg, err := erl.Receive(self, erl.MatchDown(ref), opts.tout)
	if err != nil {
		erl.Demonitor(self, ref, erl.Flush())
		return err
	}

	reason := msg.(erl.DownMsg).Reason
	switch {
	case errors.Is(reason, exitreason.NoProc):
		return exitreason.NoProc
	case sameReason(reason, opts.exitReason):
		return nil
	default:
		return reason
	}
}

func sameReason(got, want *exitreason.S) bool {
	return errors.Is(got, want) || (got.Kind() == want.Kind() && got.Detail() == want.Detail())
}
