package genserver

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

// From identifies the caller of a [Call]. Pass it to [Reply] to answer later.
type From struct {
	caller erl.PID
	ref    erl.Ref
}

func (f From) Caller() erl.PID {
	return f.caller
}

// intermediate message sent to [GenServerS] from [Call]. Not normally seen unless
// the receiver process in [Call] is not a [GenServer]
type CallRequest struct {
	From From
	Msg  any
}

// intermediate message sent to [GenServerS] from [Cast]. Not normally seen unless
// the receiver process in [Cast] is not a [GenServer]
type CastRequest struct {
	Msg any
}

// sent by [Stop]
type stopRequest struct {
	reason *exitreason.S
}

type initAck struct {
	ignore bool
	err    error
}

type (
	InitResult[STATE any] struct {
		State    STATE
		Continue any
	}
	CallResult[STATE any] struct {
		// if true, then no reply will be sent to the caller. The genserver should reply with [genserver.Reply]
		// at a later time, otherwise the caller will time out.
		NoReply bool
		// The reply that will be sent to the caller
		Msg any
		// The updated state of the GenServer
		State STATE
		// if not nil, will call [HandleContinue] immmediately after [HandleCall] returns with this as the [continuation]
		Continue any
	}
	CastResult[STATE any] struct {
		State    STATE
		Continue any
	}
	InfoResult[STATE any] struct {
		State    STATE
		Continue any
	}
)

type GenServer[STATE any] interface {
	Init(self erl.PID, args any) (InitResult[STATE], error)
	HandleCall(self erl.PID, request any, from From, state STATE) (CallResult[STATE], error)
	HandleCast(self erl.PID, request any, state STATE) (CastResult[STATE], error)
	HandleInfo(self erl.PID, msg any, state STATE) (InfoResult[STATE], error)
	// Handles Continuation terms from other callbacks. Set the [continueTerm] to re-enter the [HandleContinue]
	// callback with a new state
	HandleContinue(self erl.PID, continuation any, state STATE) (newState STATE, continueTerm any, err error)
	Terminate(self erl.PID, reason error, state STATE)
}

// GenServerS is the [erl.Runnable] driving a [GenServer] callback module. Messages
// are handled one at a time; a call is fully processed, reply included, before
// the next message is taken from the mailbox.
type GenServerS[STATE any] struct {
	callback       GenServer[STATE]
	state          STATE
	opts           StartOpts
	parent         erl.PID
	initAckChan    chan<- initAck
	nameRegistered bool
}

func (gs *GenServerS[STATE]) unregisterName() {
	if gs.nameRegistered {
		_ = erl.Unregister(gs.opts.GetName())
		gs.nameRegistered = false
	}
}

// a failed start must not leave an exit signal behind for the parent, which gets
// the error from the start function instead
func (gs *GenServerS[STATE]) failInit(self erl.PID, ack initAck) {
	gs.unregisterName()
	erl.Unlink(self, gs.parent)
	gs.initAckChan <- ack
}

func (gs *GenServerS[STATE]) Run(self erl.PID, args any) error {
	if gs.opts.GetName() != "" {
		if err := erl.Register(gs.opts.GetName(), self); err != nil {
			gs.failInit(self, initAck{err: err})
			return exitreason.Wrap(err)
		}
		gs.nameRegistered = true
	}

	initReturn, err := gs.handleInit(self, args)
	if err != nil {
		if errors.Is(err, exitreason.Ignore) {
			gs.failInit(self, initAck{ignore: true})
			return exitreason.Normal
		}
		erl.DebugPrintf("GenServer[%v] returned an error from init callback: %v", self, err)
		err = exitreason.Wrap(err)
		gs.failInit(self, initAck{err: err})
		return err
	}

	gs.initAckChan <- initAck{}
	gs.state = initReturn.State

	if initReturn.Continue != nil {
		s, err := gs.doContinue(self, initReturn.Continue, gs.state)
		gs.state = s
		if err != nil {
			return gs.terminate(self, err)
		}
	}

	for {
		msg, err := erl.Receive(self, erl.MatchAny, timeout.Infinity)
		if err != nil {
			// killed by an exit signal
			return err
		}
		if err := gs.handle(self, msg); err != nil {
			return err
		}
	}
}

func (gs *GenServerS[STATE]) handle(self erl.PID, msg any) error {
	switch msgT := msg.(type) {
	case CallRequest:
		return gs.handleCallRequest(self, msgT)
	case CastRequest:
		return gs.handleCastRequest(self, msgT)
	case stopRequest:
		gs.callback.Terminate(self, msgT.reason, gs.state)
		return msgT.reason
	case erl.ExitMsg:
		if msgT.Proc.Equals(gs.parent) {
			erl.DebugPrintf("GenServer[%v] parent %v exited with %v, terminating", self, msgT.Proc, msgT.Reason)
			gs.callback.Terminate(self, msgT.Reason, gs.state)
			return msgT.Reason
		}
		return gs.handleInfoRequest(self, msg)
	default:
		return gs.handleInfoRequest(self, msg)
	}
}

func (gs *GenServerS[STATE]) terminate(self erl.PID, err error) error {
	exit := exitreason.Wrap(err)
	if !exitreason.IsClean(exit) {
		erl.Log().Error("GenServer terminating", zap.Stringer("pid", self), zap.Error(exit))
	}
	gs.callback.Terminate(self, exit, gs.state)
	return exit
}

func (gs *GenServerS[STATE]) handleInit(self erl.PID, args any) (result InitResult[STATE], err error) {
	defer func() {
		// a panic is an exception whatever value it carries
		if r := recover(); r != nil {
			err = exitreason.Exception(fmt.Errorf("panic in init: %v", r))
		}
	}()
	return gs.callback.Init(self, args)
}

func (gs *GenServerS[STATE]) doContinue(self erl.PID, inCont any, inState STATE) (STATE, error) {
	s := inState
	cont := inCont
	var contErr error

	// handlers can return continues in a sort of chain, so follow it until
	// we get an error or a simple return
	for cont != nil {
		s, cont, contErr = gs.callback.HandleContinue(self, cont, s)
		if contErr != nil {
			return s, contErr
		}
	}
	return s, nil
}

func (gs *GenServerS[STATE]) afterCallback(self erl.PID, cont any) error {
	if cont == nil {
		return nil
	}
	state, err := gs.doContinue(self, cont, gs.state)
	gs.state = state
	if err != nil {
		return gs.terminate(self, err)
	}
	return nil
}

func (gs *GenServerS[STATE]) handleInfoRequest(self erl.PID, msg any) error {
	result, err := gs.callback.HandleInfo(self, msg, gs.state)
	gs.state = result.State
	if err != nil {
		return gs.terminate(self, err)
	}
	return gs.afterCallback(self, result.Continue)
}

func (gs *GenServerS[STATE]) handleCallRequest(self erl.PID, msg CallRequest) error {
	result, err := gs.callback.HandleCall(self, msg.Msg, msg.From, gs.state)

	if !result.NoReply {
		Reply(msg.From, result.Msg)
	}
	gs.state = result.State

	if err != nil {
		return gs.terminate(self, err)
	}
	return gs.afterCallback(self, result.Continue)
}

func (gs *GenServerS[STATE]) handleCastRequest(self erl.PID, msg CastRequest) error {
	result, err := gs.callback.HandleCast(self, msg.Msg, gs.state)
	if err != nil {
		return gs.terminate(self, err)
	}
	gs.state = result.State
	return gs.afterCallback(self, result.Continue)
}
