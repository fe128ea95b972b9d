package genserver

import (
	"github.com/uberbrodt/otp-go/erl"
)

// When you just need core HandleInfo, HandleCall, HandleCast, behaviour. See
// [NewCoreGenServer].
type CoreGenServer[STATE any] interface {
	Init(self erl.PID, args any) (InitResult[STATE], error)
	HandleCall(self erl.PID, request any, from From, state STATE) (CallResult[STATE], error)
	HandleCast(self erl.PID, request any, state STATE) (CastResult[STATE], error)
	HandleInfo(self erl.PID, msg any, state STATE) (InfoResult[STATE], error)
}

type CoreGenServerS[STATE any] struct {
	cgs CoreGenServer[STATE]
}

func (s CoreGenServerS[STATE]) Init(self erl.PID, args any) (InitResult[STATE], error) {
	return s.cgs.Init(self, args)
}

func (s CoreGenServerS[STATE]) HandleCall(self erl.PID, request any, from From, state STATE) (CallResult[STATE], error) {
	return s.cgs.HandleCall(self, request, from, state)
}

func (s CoreGenServerS[STATE]) HandleCast(self erl.PID, request any, state STATE) (CastResult[STATE], error) {
	return s.cgs.HandleCast(self, request, state)
}

func (s CoreGenServerS[STATE]) HandleInfo(self erl.PID, request any, state STATE) (InfoResult[STATE], error) {
	return s.cgs.HandleInfo(self, request, state)
}

func (s CoreGenServerS[STATE]) HandleContinue(self erl.PID, continuation any, state STATE) (STATE, any, error) {
	erl.Logger.Printf("%v returned Continue %+v but does not implement HandleContinue, ignoring", self, continuation)
	return state, nil, nil
}

func (s CoreGenServerS[STATE]) Terminate(self erl.PID, reason error, state STATE) {
}

// Builds a [GenServer] from a [CoreGenServer], with no-op HandleContinue and Terminate.
func NewCoreGenServer[STATE any](cgs CoreGenServer[STATE]) CoreGenServerS[STATE] {
	return CoreGenServerS[STATE]{cgs: cgs}
}
