package erltest

import (
	"fmt"
	"reflect"

	"go.uber.org/mock/gomock"

	"github.com/uberbrodt/otp-go/erl"
)

// An Expectation is a message type plus a gomock matcher, see [TestReceiver.Expect].
type Expectation struct {
	msgT     reflect.Type
	matcher  gomock.Matcher
	times    int
	anyTimes bool
	matched  int
	do       func(self erl.PID, msg any)
}

// Times sets how many messages must match. Times(0) fails [TestReceiver.Wait]
// if any matching message was received.
func (ex *Expectation) Times(n int) *Expectation {
	ex.times = n
	return ex
}

// AnyTimes accepts matching messages without requiring any.
func (ex *Expectation) AnyTimes() *Expectation {
	ex.anyTimes = true
	return ex
}

// Do runs [fn] in the receiver process for every matching message.
func (ex *Expectation) Do(fn func(self erl.PID, msg any)) *Expectation {
	ex.do = fn
	return ex
}

func (ex *Expectation) accepts(msg any) bool {
	if reflect.TypeOf(msg) != ex.msgT {
		return false
	}
	return ex.matcher == nil || ex.matcher.Matches(msg)
}

func (ex *Expectation) String() string {
	want := fmt.Sprintf("%d", ex.times)
	if ex.anyTimes {
		want = "any"
	}
	return fmt.Sprintf("%v %v: matched %d, want %s", ex.msgT, ex.matcher, ex.matched, want)
}
