package erl

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

var rootPID PID

// rootProc always exists, traps exits and logs whatever it is sent. It is a
// convenient parent for processes started outside of any process.
func init() {
	rootPID = Spawn(&rootProc{}, nil)
	ProcessFlag(rootPID, TrapExit, true)
}

type rootProc struct{}

func (rp *rootProc) Run(self PID, _ any) error {
	for {
		msg, err := ReceiveMessage(self, MatchAny, timeout.Infinity)
		if err != nil {
			return err
		}
		switch v := msg.Term.(type) {
		case ExitMsg:
			if !v.Link {
				log().Error("root process received an exit signal", zap.Error(v.Reason))
				return exitreason.Exception(fmt.Errorf("root process received an exit signal with reason: %w", v.Reason))
			}
		default:
			log().Info("root process received message", zap.Any("msg", v), zap.Stringer("from", msg.From))
		}
	}
}

func RootPID() PID {
	return rootPID
}
