package genserver

import (
	"errors"
	"testing"
	"time"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
)

var testTimeout = chronos.Dur("5s")

func startTestGS(self erl.PID, t *testing.T, cb TestGS, args any, opts ...StartOpt) (erl.PID, error) {
	pid, err := StartLink[TestGS](self, cb, args, opts...)
	if err == nil {
		t.Cleanup(func() {
			erl.Exit(erl.RootPID(), pid, exitreason.Kill)
		})
	}
	return pid, err
}

// waits for an ExitMsg from [pid] on the test receiver
func expectExit(t *testing.T, tr *erl.TestReceiver, pid erl.PID) erl.ExitMsg {
	t.Helper()
	var exit erl.ExitMsg
	tr.Loop(func(msg any) bool {
		xit, ok := msg.(erl.ExitMsg)
		if ok && xit.Proc.Equals(pid) {
			exit = xit
			return true
		}
		return false
	})
	return exit
}

// fails the test if an ExitMsg from [pid] shows up within [wait]
func refuteExit(t *testing.T, tr *erl.TestReceiver, pid erl.PID, wait time.Duration) {
	t.Helper()
	err := tr.LoopFor(wait, func(msg any) bool {
		xit, ok := msg.(erl.ExitMsg)
		return ok && xit.Proc.Equals(pid)
	})
	if err == nil {
		t.Fatalf("unexpected exit signal from %v", pid)
	}
}

type TestGS struct {
	Count          int
	from           From
	terminateProbe func(self erl.PID, arg error, state TestGS)
}

type TestGSArgs struct {
	initProbe func(self erl.PID, args any) (state TestGS, cont any, err error)
	count     int
}

var _ GenServer[TestGS] = TestGS{}

type taggedRequest struct {
	tag   string
	value any
	// probe can be used to inject functionality, reply back in cast requests, etc.
	probe         func(self erl.PID, state TestGS) (newState TestGS)
	callProbe     func(self erl.PID, arg any, from From, state TestGS) (reply any, newState TestGS)
	continueProbe func(self erl.PID, state TestGS) (newState TestGS, continuation any, err error)
	err           error
	cont          bool
}

func (gs TestGS) Init(self erl.PID, args any) (InitResult[TestGS], error) {
	argsT := args.(TestGSArgs)

	if argsT.initProbe != nil {
		state, cont, err := argsT.initProbe(self, args)
		return InitResult[TestGS]{State: state, Continue: cont}, err
	}
	return InitResult[TestGS]{State: TestGS{Count: argsT.count, terminateProbe: gs.terminateProbe}}, nil
}

func getTestGSState(gensrv erl.PID) (TestGS, error) {
	reply, err := Call(erl.UndefinedPID, gensrv, taggedRequest{tag: "get_state"}, testTimeout)
	if err != nil {
		return TestGS{}, err
	}

	state, ok := reply.(TestGS)
	if !ok {
		return TestGS{}, errors.New("returned reply was not the server state")
	}
	return state, nil
}

func (gs TestGS) HandleCall(self erl.PID, request any, from From, state TestGS) (CallResult[TestGS], error) {
	req := request.(taggedRequest)

	if req.tag == "get_state" {
		return CallResult[TestGS]{Msg: state, State: state}, nil
	}

	reply, state := req.callProbe(self, req.value, from, state)
	noreply := reply == nil

	if req.err != nil {
		return CallResult[TestGS]{State: state, NoReply: noreply, Msg: reply}, req.err
	}

	if req.cont {
		return CallResult[TestGS]{State: state, NoReply: noreply, Msg: reply, Continue: request}, nil
	}

	return CallResult[TestGS]{NoReply: noreply, Msg: reply, State: state}, nil
}

func (gs TestGS) HandleCast(self erl.PID, request any, state TestGS) (CastResult[TestGS], error) {
	req := request.(taggedRequest)

	if req.err != nil {
		return CastResult[TestGS]{State: state}, req.err
	}

	if req.probe != nil {
		state = req.probe(self, state)
	}

	if req.cont {
		return CastResult[TestGS]{State: state, Continue: request}, nil
	}

	return CastResult[TestGS]{State: state}, nil
}

func (gs TestGS) HandleInfo(self erl.PID, request any, state TestGS) (InfoResult[TestGS], error) {
	erl.DebugPrintf("%v HandleInfo got msg: %v", self, request)
	req, ok := request.(taggedRequest)
	if !ok {
		return InfoResult[TestGS]{State: state}, nil
	}

	if req.err != nil {
		return InfoResult[TestGS]{State: state}, req.err
	}

	if req.probe != nil {
		state = req.probe(self, state)
	}

	if req.cont {
		return InfoResult[TestGS]{State: state, Continue: request}, nil
	}

	return InfoResult[TestGS]{State: state}, nil
}

func (gs TestGS) Terminate(self erl.PID, arg error, state TestGS) {
	if gs.terminateProbe != nil {
		gs.terminateProbe(self, exitreason.Wrap(arg), state)
	}
}

func (gs TestGS) HandleContinue(self erl.PID, continuation any, state TestGS) (TestGS, any, error) {
	req := continuation.(taggedRequest)
	if req.continueProbe != nil {
		return req.continueProbe(self, state)
	}
	return state, nil, nil
}
