package supervisor

import (
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/genserver"
)

// NewTestServerChildSpec returns a spec starting [ts], linked to the supervisor.
func NewTestServerChildSpec[STATE any](id string, ts genserver.TestServer[STATE], gsOpts genserver.StartOpts, opts ...ChildSpecOpt) ChildSpec {
	return NewChildSpec(id, func(sup erl.PID) (erl.PID, error) {
		return genserver.StartLink[STATE](sup, ts, nil, genserver.InheritOpts(gsOpts))
	}, opts...)
}

// NewTestServerTemplate returns a [SimpleOneForOne] template starting
// instances of [ts]. The args of [StartInstance] become the server's init args.
func NewTestServerTemplate[STATE any](id string, ts genserver.TestServer[STATE], opts ...ChildSpecOpt) ChildSpec {
	return NewTemplateSpec(id, func(sup erl.PID, args any) (erl.PID, error) {
		return genserver.StartLink[STATE](sup, ts, args)
	}, opts...)
}
