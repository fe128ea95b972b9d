package erl

import "github.com/uberbrodt/otp-go/erl/exitreason"

// an opaque unique string. Don't rely on structure format or even size for that matter.
type Ref string

// A Runnable is the body of a process. It runs on its own goroutine and reads its
// mailbox with [Receive]. Returning ends the process: nil is a normal exit, an
// [exitreason.S] is used as-is and any other error becomes [exitreason.Exception].
type Runnable interface {
	Run(self PID, args any) error
}

// RunFunc adapts an ordinary function to a [Runnable].
type RunFunc func(self PID, args any) error

func (f RunFunc) Run(self PID, args any) error {
	return f(self, args)
}

type ProcFlag string

var TrapExit ProcFlag = "trap_exit"

// ExitMsg is delivered to a process trapping exits instead of the exit signal
// terminating it.
type ExitMsg struct {
	// the process that sent the exit signal
	Proc   PID
	Reason *exitreason.S
	// true if the signal came from a linked process exiting, false if it was sent with [Exit]
	Link bool
}

// DownMsg is delivered to the monitoring process when the monitored process exits,
// for any reason.
type DownMsg struct {
	Proc   PID
	Ref    Ref
	Reason *exitreason.S
}

// ReplyMsg is delivered when [Reply] targets an active alias of the receiving process.
type ReplyMsg struct {
	Ref  Ref
	Term any
}

// Message is a mailbox entry. From is [UndefinedPID] unless the sender used [SendFrom].
type Message struct {
	From PID
	Term any
}
