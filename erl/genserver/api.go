// Package genserver implements the generic server behaviour: a process that
// keeps state and answers synchronous [Call] and asynchronous [Cast] requests
// through the callbacks of a [GenServer].
package genserver

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/atomic"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/timeout"
)

var defaultCallTimeout = atomic.NewDuration(timeout.Default)

// DefaultCallTimeout is used by [CallDefault].
func DefaultCallTimeout() time.Duration {
	return defaultCallTimeout.Load()
}

// SetDefaultCallTimeout changes [DefaultCallTimeout]. Safe to call while
// servers are running.
func SetDefaultCallTimeout(d time.Duration) {
	defaultCallTimeout.Store(d)
}

// StartLink spawns a GenServer linked to [self] and waits for its Init callback.
//
// If Init fails the error is returned and the link is removed before the server
// exits, so [self] never sees an exit signal for a server that didn't start. If
// Init returns [exitreason.Ignore], so does StartLink.
func StartLink[STATE any](self erl.PID, callbackStruct GenServer[STATE], args any, opts ...StartOpt) (erl.PID, error) {
	result := doStart(self, link, callbackStruct, args, opts...)
	return result.pid, result.err
}

// StartMonitor is like [StartLink] but [self] monitors the server instead.
func StartMonitor[STATE any](self erl.PID, callbackStruct GenServer[STATE], args any, opts ...StartOpt) (erl.PID, erl.Ref, error) {
	result := doStart(self, monitor, callbackStruct, args, opts...)
	return result.pid, result.monref, result.err
}

// Like [StartLink], but no link is created.
//
// [self] is still recorded as the parent: if the GenServer traps exits, an exit
// signal from [self] makes it call [Terminate] and stop.
func Start[STATE any](self erl.PID, callbackStruct GenServer[STATE], args any, opts ...StartOpt) (erl.PID, error) {
	result := doStart(self, noLink, callbackStruct, args, opts...)
	return result.pid, result.err
}

// Reply answers a [Call] whose HandleCall returned with NoReply set. Replying
// to a caller that already gave up is a no-op.
func Reply(client From, reply any) {
	erl.Reply(client.caller, client.ref, reply)
}

// Cast sends an asynchronous request, handled by HandleCast. It never reports
// failure; casting to a dead or unknown server does nothing.
func Cast(gensrv erl.Dest, request any) {
	pid, err := gensrv.ResolvePID()
	if err != nil {
		return
	}
	erl.Send(pid, CastRequest{Msg: request})
}

// Call sends [request] to the server and waits up to [tout] for its reply.
//
// Errors:
//   - [exitreason.NoProc]: the server doesn't exist or was already dead
//   - [exitreason.Stopped]: the server exited normally (or shut down) before replying
//   - [exitreason.Timeout]: no reply in time; a late reply is discarded
//   - [exitreason.Exception]: the server crashed, or [self] is the server
//
// The caller monitors the server for the duration of the call and removes the
// monitor before returning. If [self] is [erl.UndefinedPID] the call is made from
// a short-lived process.
func Call(self erl.PID, gensrv erl.Dest, request any, tout time.Duration) (any, error) {
	pid, err := gensrv.ResolvePID()
	if err != nil {
		return nil, exitreason.NoProc
	}

	if self.IsNil() {
		return inProcess(func(proxy erl.PID) (any, error) {
			return doCall(proxy, pid, request, tout)
		})
	}

	// calling yourself is a deadlock
	if self.Equals(pid) {
		return nil, exitreason.Exception(errors.New("cannot call self"))
	}
	return doCall(self, pid, request, tout)
}

// CallDefault is [Call] with [DefaultCallTimeout].
func CallDefault(self erl.PID, gensrv erl.Dest, request any) (any, error) {
	return Call(self, gensrv, request, DefaultCallTimeout())
}

func doCall(self erl.PID, pid erl.PID, request any, tout time.Duration) (any, error) {
	ref := erl.Monitor(self, pid)
	erl.Alias(self, ref)
	erl.SendFrom(self, pid, CallRequest{From: From{caller: self, ref: ref}, Msg: request})

	msg, err := erl.Receive(self, func(m erl.Message) bool {
		switch v := m.Term.(type) {
		case erl.ReplyMsg:
			return v.Ref == ref
		case erl.DownMsg:
			return v.Ref == ref
		}
		return false
	}, tout)
	if err != nil {
		// timed out, or we're being terminated ourselves
		erl.Demonitor(self, ref, erl.Flush())
		return nil, err
	}

	switch v := msg.(type) {
	case erl.ReplyMsg:
		erl.Demonitor(self, ref, erl.Flush())
		return v.Term, nil
	case erl.DownMsg:
		return nil, callFailure(v.Reason)
	}
	return nil, exitreason.Exception(fmt.Errorf("unexpected call response %T", msg))
}

func callFailure(reason *exitreason.S) error {
	switch {
	case errors.Is(reason, exitreason.NoProc):
		return exitreason.NoProc
	case exitreason.IsClean(reason):
		return exitreason.Stopped
	case exitreason.IsException(reason):
		return reason
	default:
		return exitreason.Exception(reason)
	}
}

// Stop asks the server to call Terminate and exit with the [StopReason] (default
// normal), and waits for it to exit. Returns nil if it exited with that reason,
// [exitreason.NoProc] if it wasn't running, [exitreason.Timeout] if it didn't
// exit within [StopTimeout] (default infinity), or the reason it exited with.
func Stop(self erl.PID, gensrv erl.Dest, opts ...ExitOpt) error {
	myOpts := exitOptS{
		tout:       timeout.Infinity,
		exitReason: exitreason.Normal,
	}
	for _, opt := range opts {
		myOpts = opt(myOpts)
	}

	gensrvPID, err := gensrv.ResolvePID()
	if err != nil {
		return fmt.Errorf("%w detail: %s", exitreason.NoProc, err)
	}
	if !gensrvPID.IsRemote() && !erl.IsAlive(gensrvPID) {
		return exitreason.NoProc
	}

	if self.IsNil() {
		_, err := inProcess(func(proxy erl.PID) (any, error) {
			return nil, doStop(proxy, gensrvPID, myOpts)
		})
		return err
	}
	return doStop(self, gensrvPID, myOpts)
}

type exitOptS struct {
	tout       time.Duration
	exitReason *exitreason.S
}

type ExitOpt func(opts exitOptS) exitOptS

func StopTimeout(tout time.Duration) ExitOpt {
	return func(opts exitOptS) exitOptS {
		opts.tout = tout
		return opts
	}
}

func StopReason(e *exitreason.S) ExitOpt {
	return func(opts exitOptS) exitOptS {
		if e != nil {
			opts.exitReason = e
		}
		return opts
	}
}

type startRet struct {
	pid    erl.PID
	monref erl.Ref
	err    error
}

type startType string

const (
	noLink  startType = "nolink"
	monitor startType = "monitor"
	link    startType = "link"
)

func doStart[STATE any](self erl.PID, start startType, callbackStruct GenServer[STATE], args any, opts ...StartOpt) startRet {
	if self.IsNil() {
		return startRet{err: exitreason.Exception(errors.New("self/parent pid cannot be undefined"))}
	}
	finalOpts := DefaultOpts()
	for _, opt := range opts {
		finalOpts = opt(finalOpts)
	}
	// buffered so a server that finishes Init after we gave up doesn't block
	initAckChan := make(chan initAck, 1)

	gs := &GenServerS[STATE]{
		callback:    callbackStruct,
		opts:        finalOpts,
		parent:      self,
		initAckChan: initAckChan,
	}
	var pid erl.PID
	var monref erl.Ref
	switch start {
	case noLink:
		pid = erl.Spawn(gs, args)
	case monitor:
		pid, monref = erl.SpawnMonitor(self, gs, args)
	case link:
		pid = erl.SpawnLink(self, gs, args)
	}

	select {
	case ack := <-initAckChan:
		erl.DebugPrintf("GenServer[%v] received initAck: %+v", pid, ack)
		if ack.ignore || ack.err != nil {
			// the caller sees the server gone, and its name free, once we return
			erl.AwaitExit(pid, finalOpts.GetStartTimeout())
		}
		if ack.ignore {
			return startRet{pid: pid, err: exitreason.Ignore, monref: monref}
		}
		return startRet{pid: pid, err: ack.err, monref: monref}

	case <-time.After(finalOpts.GetStartTimeout()):
		if start == link {
			erl.Unlink(self, pid)
		}
		erl.Exit(self, pid, exitreason.Kill)
		return startRet{pid: pid, err: exitreason.Timeout, monref: monref}
	}
}
