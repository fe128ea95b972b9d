package genserver

import "github.com/uberbrodt/otp-go/erl"

// TestMsg scripts a [TestServer]: whichever callback receives it runs the
// matching probe.
type TestMsg[STATE any] struct {
	// used by HandleCast and HandleInfo
	Probe         func(self erl.PID, arg any, state STATE) (cont any, newState STATE, err error)
	CallProbe     func(self erl.PID, arg any, from From, state STATE) (call CallResult[STATE], err error)
	ContinueProbe func(self erl.PID, state STATE) (newState STATE, cont any, err error)
	Arg           any
}

type TestMsgOpt[STATE any] func(tm TestMsg[STATE]) TestMsg[STATE]

func SetProbe[STATE any](probe func(self erl.PID, arg any, state STATE) (cont any, newState STATE, err error)) TestMsgOpt[STATE] {
	return func(tm TestMsg[STATE]) TestMsg[STATE] {
		tm.Probe = probe
		return tm
	}
}

func SetCallProbe[STATE any](probe func(self erl.PID, arg any, from From, state STATE) (call CallResult[STATE], err error)) TestMsgOpt[STATE] {
	return func(tm TestMsg[STATE]) TestMsg[STATE] {
		tm.CallProbe = probe
		return tm
	}
}

func SetContinueProbe[STATE any](probe func(self erl.PID, state STATE) (newState STATE, cont any, err error)) TestMsgOpt[STATE] {
	return func(tm TestMsg[STATE]) TestMsg[STATE] {
		tm.ContinueProbe = probe
		return tm
	}
}

// SetArg is passed to the probe as [arg].
func SetArg[STATE any](arg any) TestMsgOpt[STATE] {
	return func(tm TestMsg[STATE]) TestMsg[STATE] {
		tm.Arg = arg
		return tm
	}
}

func NewTestMsg[STATE any](opts ...TestMsgOpt[STATE]) TestMsg[STATE] {
	tm := TestMsg[STATE]{}
	for _, opt := range opts {
		tm = opt(tm)
	}
	return tm
}

// TestServer is a [GenServer] for tests. Its behaviour comes from the probes
// set on it and on each [TestMsg] it handles; without probes every callback
// keeps the state and replies with the request.
type TestServer[STATE any] struct {
	InitProbe func(self erl.PID, args any) (STATE, any, error)
	TermProbe func(self erl.PID, reason error, state STATE)
}

type TestServerOpt[STATE any] func(ts TestServer[STATE]) TestServer[STATE]

func SetInitProbe[STATE any](probe func(self erl.PID, args any) (STATE, any, error)) TestServerOpt[STATE] {
	return func(ts TestServer[STATE]) TestServer[STATE] {
		ts.InitProbe = probe
		return ts
	}
}

func SetTermProbe[STATE any](probe func(self erl.PID, reason error, state STATE)) TestServerOpt[STATE] {
	return func(ts TestServer[STATE]) TestServer[STATE] {
		ts.TermProbe = probe
		return ts
	}
}

func NewTestServer[STATE any](opts ...TestServerOpt[STATE]) TestServer[STATE] {
	ts := TestServer[STATE]{}
	for _, opt := range opts {
		ts = opt(ts)
	}
	return ts
}

var _ GenServer[int] = TestServer[int]{}

func (ts TestServer[STATE]) Init(self erl.PID, args any) (InitResult[STATE], error) {
	if ts.InitProbe == nil {
		var zero STATE
		return InitResult[STATE]{State: zero}, nil
	}
	state, cont, err := ts.InitProbe(self, args)
	return InitResult[STATE]{State: state, Continue: cont}, err
}

func (ts TestServer[STATE]) HandleCall(self erl.PID, request any, from From, state STATE) (CallResult[STATE], error) {
	req, ok := request.(TestMsg[STATE])
	if !ok || req.CallProbe == nil {
		return CallResult[STATE]{Msg: request, State: state}, nil
	}
	return req.CallProbe(self, req.Arg, from, state)
}

func (ts TestServer[STATE]) HandleCast(self erl.PID, request any, state STATE) (CastResult[STATE], error) {
	cont, newState, err := runProbe(self, request, state)
	return CastResult[STATE]{State: newState, Continue: cont}, err
}

func (ts TestServer[STATE]) HandleInfo(self erl.PID, msg any, state STATE) (InfoResult[STATE], error) {
	cont, newState, err := runProbe(self, msg, state)
	return InfoResult[STATE]{State: newState, Continue: cont}, err
}

// anything that is not a TestMsg, exit messages from linked children for
// instance, leaves the state alone
func runProbe[STATE any](self erl.PID, msg any, state STATE) (any, STATE, error) {
	req, ok := msg.(TestMsg[STATE])
	if !ok || req.Probe == nil {
		return nil, state, nil
	}
	return req.Probe(self, req.Arg, state)
}

func (ts TestServer[STATE]) HandleContinue(self erl.PID, continuation any, state STATE) (STATE, any, error) {
	req, ok := continuation.(TestMsg[STATE])
	if !ok || req.ContinueProbe == nil {
		return state, nil, nil
	}
	return req.ContinueProbe(self, state)
}

func (ts TestServer[STATE]) Terminate(self erl.PID, reason error, state STATE) {
	if ts.TermProbe != nil {
		ts.TermProbe(self, reason, state)
	}
}
