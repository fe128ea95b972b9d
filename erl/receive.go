package erl

import (
	"errors"
	"time"

	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/internal/inbox"
)

// A Matcher decides if a mailbox message should be taken by [Receive].
type Matcher func(msg Message) bool

// MatchAny accepts every message.
func MatchAny(Message) bool {
	return true
}

// MatchType accepts messages whose term is a [T].
func MatchType[T any](msg Message) bool {
	_, ok := msg.Term.(T)
	return ok
}

// MatchDown accepts the [DownMsg] for monitor [ref].
func MatchDown(ref Ref) Matcher {
	return func(msg Message) bool {
		down, ok := msg.Term.(DownMsg)
		return ok && down.Ref == ref
	}
}

// MatchExit accepts an [ExitMsg] from [pid].
func MatchExit(pid PID) Matcher {
	return func(msg Message) bool {
		exit, ok := msg.Term.(ExitMsg)
		return ok && exit.Proc.Equals(pid)
	}
}

// ReceiveMessage removes and returns the first message in the mailbox of [self]
// accepted by [match], in arrival order. Messages that don't match stay where
// they are. A nil [match] accepts anything.
//
// [tout] of 0 only checks what is already queued, [timeout.Infinity] waits
// forever. If nothing matches in time [exitreason.Timeout] is returned and the
// mailbox is left untouched. If the process is terminated while waiting, the
// process's exit reason is returned.
func ReceiveMessage(self PID, match Matcher, tout time.Duration) (Message, error) {
	if self.p == nil {
		return Message{}, exitreason.NoProc
	}
	msg, err := self.p.mailbox.Receive(match, tout)
	switch {
	case err == nil:
		return msg, nil
	case errors.Is(err, inbox.ErrTimeout):
		return msg, exitreason.Timeout
	default:
		return msg, self.p.getExitReason()
	}
}

// Receive is [ReceiveMessage] returning only the message term.
func Receive(self PID, match Matcher, tout time.Duration) (any, error) {
	msg, err := ReceiveMessage(self, match, tout)
	return msg.Term, err
}

// ReceiveType waits for the first message of type [T].
func ReceiveType[T any](self PID, tout time.Duration) (T, error) {
	var zero T
	term, err := Receive(self, MatchType[T], tout)
	if err != nil {
		return zero, err
	}
	return term.(T), nil
}

// MailboxLen is the number of messages waiting in the mailbox of [self].
func MailboxLen(self PID) int {
	if self.p == nil {
		return 0
	}
	return self.p.mailbox.Size()
}
