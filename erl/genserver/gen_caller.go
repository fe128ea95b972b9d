package genserver

import (
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
)

type callResult struct {
	term any
	err  error
}

// genCaller runs a request on behalf of code that isn't running in a process,
// so the request has a mailbox to receive its reply or DOWN message in.
type genCaller struct {
	fn  func(self erl.PID) (any, error)
	out chan<- callResult
}

func (gc *genCaller) Run(self erl.PID, _ any) error {
	result := callResult{err: exitreason.NoProc}
	// always answer, even if fn panics
	defer func() {
		gc.out <- result
	}()
	result.term, result.err = gc.fn(self)
	return nil
}

func inProcess(fn func(self erl.PID) (any, error)) (any, error) {
	out := make(chan callResult, 1)
	erl.Spawn(&genCaller{fn: fn, out: out}, nil)
	r := <-out
	return r.term, r.err
}
