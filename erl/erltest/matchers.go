package erltest

import (
	"errors"
	"fmt"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/mock/gomock"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/exitreason"
)

type reasonMatcher struct {
	reason error
}

// ExitReason matches an [erl.ExitMsg] or [erl.DownMsg] whose reason is
// [reason], using [errors.Is]. A Shutdown or Exception reason without detail
// matches any reason of the same kind.
func ExitReason(reason error) gomock.Matcher {
	return reasonMatcher{reason: reason}
}

func (m reasonMatcher) Matches(x any) bool {
	var got *exitreason.S
	switch v := x.(type) {
	case erl.ExitMsg:
		got = v.Reason
	case erl.DownMsg:
		got = v.Reason
	default:
		return false
	}
	if errors.Is(got, m.reason) {
		return true
	}
	want := exitreason.To(m.reason)
	return got != nil && want != nil && want.Detail() == "" && got.Kind() == want.Kind()
}

func (m reasonMatcher) String() string {
	return fmt.Sprintf("has exit reason %v", m.reason)
}

type fromMatcher struct {
	pid    erl.PID
	reason gomock.Matcher
}

// ExitFrom matches an [erl.ExitMsg] or [erl.DownMsg] about [pid], optionally
// also checking the message against [and].
func ExitFrom(pid erl.PID, and ...gomock.Matcher) gomock.Matcher {
	var m gomock.Matcher = gomock.Any()
	if len(and) > 0 {
		m = gomock.All(and...)
	}
	return fromMatcher{pid: pid, reason: m}
}

func (m fromMatcher) Matches(x any) bool {
	switch v := x.(type) {
	case erl.ExitMsg:
		return v.Proc.Equals(m.pid) && m.reason.Matches(x)
	case erl.DownMsg:
		return v.Proc.Equals(m.pid) && m.reason.Matches(x)
	default:
		return false
	}
}

func (m fromMatcher) String() string {
	return fmt.Sprintf("exit of %v and %v", m.pid, m.reason)
}

type cmpMatcher struct {
	want any
	opts []cmp.Option
}

// CmpEq is like [gomock.Eq] but compares with [cmp.Equal], and prints a diff on
// failure.
func CmpEq(want any, opts ...cmp.Option) gomock.Matcher {
	return cmpMatcher{want: want, opts: opts}
}

func (m cmpMatcher) Matches(x any) bool {
	return cmp.Equal(m.want, x, m.opts...)
}

func (m cmpMatcher) String() string {
	return fmt.Sprintf("is equal to %#v", m.want)
}

func (m cmpMatcher) Got(got any) string {
	return fmt.Sprintf("%#v, diff (-want +got):\n%s", got, cmp.Diff(m.want, got, m.opts...))
}
