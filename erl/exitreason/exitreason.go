// Each process should return a valid [exitreason.S] when its [erl.Runnable] returns.
// The specific kind of return will influence how higher order components such as Supervisors
// and Registries handle process exits.
//
// In the event a process exits unexpectedly (ie. panic), then an Exception reason is returned.
package exitreason

import (
	"errors"
	"fmt"
)

const (
	normal             = "normal"
	shutdown           = "shutdown"
	supervisorShutdown = "supervisor_shutdown"
	exception          = "error"
	noProc             = "noproc"
	timeout            = "timeout"
	kill               = "kill"
	ignore             = "ignore"
	stopped            = "stopped"
	noConnection       = "noconnection"
	// sent to testReceiver to cause it to stop
	testExit = "test_exit"
)

// Opaque return type. Use functions in this package to create new instances and
// test with the `Is*(exitreason) bool` functions.
//
// For convienence it implements the [errors] and [stringer] interfaces.
type S struct {
	short          string
	err            error
	shutdownReason any
	exception      error
}

func (s *S) Error() string {
	switch {
	case s.short == exception:
		return fmt.Sprintf("EXIT{error: %v}", s.exception)
	case s.short == shutdown:
		return fmt.Sprintf("EXIT{shutdown: %v}", s.shutdownReason)
	default:
		return fmt.Sprintf("EXIT{%s}", s.short)
	}
}

// Kind is the short name of the reason ("normal", "kill", "error", ...). It is
// stable and safe to use as a metric attribute or on the wire.
func (s *S) Kind() string {
	return s.short
}

// Shutdown exitreasons include optional information
func (s *S) ShutdownReason() any {
	return s.shutdownReason
}

func (s *S) ExceptionDetail() error {
	return s.exception
}

func (s *S) Unwrap() error {
	return s.err
}

// private Sentinel Errors that get wrapped
var (
	shutdownErr  = &S{short: shutdown}
	exceptionErr = &S{short: exception}
)

// Sentinel errors
var (
	// A normal process exit.
	Normal = &S{short: normal}
	// Indicates a process's Supervisor terminated the process. Also considered a "Normal" exit.
	SupervisorShutdown = &S{short: supervisorShutdown}
	// The pid or name does not identifiy an active process
	NoProc = &S{short: noProc}
	// Returned when a request exceeds it's specified timeout.
	Timeout = &S{short: timeout}
	// This is special type of exit reason that would allow a Supervisor to ignore
	// a genserver that doesn't start while keeping it's child specification around
	// so it can be started later.
	Ignore = &S{short: ignore}
	// Untrappable exit signal when sent directly with [erl.Exit]. Reported as-is to
	// links and monitors of the killed process.
	Kill = &S{short: kill}
	// The process stopped after replying to a Call
	Stopped = &S{short: stopped}
	// The node hosting a remote process could not be reached.
	NoConnection = &S{short: noConnection}
	TestExit     = &S{short: testExit}
)

var sentinels = map[string]*S{
	normal:             Normal,
	supervisorShutdown: SupervisorShutdown,
	noProc:             NoProc,
	timeout:            Timeout,
	ignore:             Ignore,
	kill:               Kill,
	stopped:            Stopped,
	noConnection:       NoConnection,
	testExit:           TestExit,
}

// Tests to see if error is or wraps a *S. If not, returns nil
func IsExitReason(e error) (err *S) {
	ok := errors.As(e, &err)

	if ok {
		return err
	}

	return nil
}

// Test if [exitReason] is "Normal"
func IsNormal(e error) bool {
	return errors.Is(e, Normal)
}

// Test if [exitReason] is "Kill"
func IsKill(e error) bool {
	return errors.Is(e, Kill)
}

// Returned when a process is exiting cleanly. Optionally provide additional info that will
// be returned to monitors/links. Considered a "Normal" exit.
func Shutdown(reason any) error {
	return &S{short: shutdown, shutdownReason: reason, err: shutdownErr}
}

// Test if [exitReason] is "Shutdown"
func IsShutdown(e error) bool {
	return errors.Is(e, shutdownErr)
}

// IsClean reports whether a reason counts as a clean exit: Normal, any Shutdown
// or SupervisorShutdown. Transient children are not restarted after a clean exit.
func IsClean(e error) bool {
	return IsNormal(e) || IsShutdown(e) || errors.Is(e, SupervisorShutdown)
}

// General "error" exitreason. Returned when a process panicks or exits with an error.
func Exception(reason error) error {
	return &S{exception: reason, err: exceptionErr, short: exception}
}

// Test if [exitReason] is "Exception"
func IsException(e error) bool {
	return errors.Is(e, exceptionErr)
}

func To(e error) *S {
	return IsExitReason(e)
}

// Takes any error and if it is not a *S, then wraps it as an [exitreason.Exception]
func Wrap(e error) error {
	if er := IsExitReason(e); er != nil {
		return er
	} else {
		return Exception(e)
	}
}

// From converts any error into a *S. nil is [Normal].
func From(e error) *S {
	if e == nil {
		return Normal
	}
	return To(Wrap(e))
}

// FromKind rebuilds a reason from its [S.Kind] and a detail string, as produced by
// [S.Detail]. Used when a reason crosses a node boundary.
func FromKind(kind string, detail string) *S {
	switch kind {
	case shutdown:
		if detail == "" {
			return To(Shutdown(nil))
		}
		return To(Shutdown(detail))
	case exception:
		return To(Exception(errors.New(detail)))
	}
	if s, ok := sentinels[kind]; ok {
		return s
	}
	return To(Exception(fmt.Errorf("%s: %s", kind, detail)))
}

// Detail is the printable payload of a Shutdown or Exception reason, "" for the rest.
func (s *S) Detail() string {
	switch s.short {
	case exception:
		if s.exception != nil {
			return s.exception.Error()
		}
	case shutdown:
		if s.shutdownReason != nil {
			return fmt.Sprint(s.shutdownReason)
		}
	}
	return ""
}
