package erl

import "github.com/uberbrodt/otp-go/erl/exitreason"

// A Signal is the low level communication method between processes. Every process
// has a signal queue, drained in order by its signal loop, which owns the link and
// monitor sets. Runnables never see signals directly: messageSignal, and the
// exit/down/reply signals that survive filtering, are turned into entries in the
// process mailbox.
type Signal interface {
	SignalName() string
}

type exitSignal struct {
	// PID of the process that sent the exit
	sender   PID
	receiver PID
	reason   *exitreason.S
	link     bool
}

func (s exitSignal) SignalName() string {
	return "exit"
}

// Received by a monitoring process when it's monitored process has exited.
// Discarded if the monitor was removed in the meantime.
type downSignal struct {
	proc   PID
	ref    Ref
	reason *exitreason.S
}

func (s downSignal) SignalName() string {
	return "down"
}

// MONITOR
type monitorSignal struct {
	ref       Ref
	monitor   PID
	monitored PID
}

func (s monitorSignal) SignalName() string {
	return "monitor"
}

// DEMONITOR
type demonitorSignal struct {
	ref Ref
	// used by the monitored process to make sure the demonitor call is coming from
	// the process that created the monitor in the first place.
	origin PID
}

func (s demonitorSignal) SignalName() string {
	return "demonitor"
}

// LINK
type linkSignal struct {
	pid PID
}

func (s linkSignal) SignalName() string {
	return "link"
}

// UNLINK
type unlinkSignal struct {
	pid PID
}

func (s unlinkSignal) SignalName() string {
	return "unlink"
}

// MESSAGE
type messageSignal struct {
	from PID
	term any
}

func (s messageSignal) SignalName() string {
	return "msg"
}

// REPLY, only delivered if [ref] is an active alias on the receiver
type replySignal struct {
	ref  Ref
	term any
}

func (s replySignal) SignalName() string {
	return "reply"
}

type infoSignal struct {
	reply chan ProcessInfo
}

func (s infoSignal) SignalName() string {
	return "info"
}

// sent by the runnable goroutine to its own signal loop when Run returns
type runnableExited struct {
	reason *exitreason.S
}

func (s runnableExited) SignalName() string {
	return "runnable_exited"
}
