package dist

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/uberbrodt/otp-go/erl"
)

type recorder struct {
	mx     sync.Mutex
	frames []string
	downs  []erl.Node
}

func (r *recorder) HandleFrame(from erl.Node, frame []byte) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.frames = append(r.frames, fmt.Sprintf("%s:%s", from, frame))
}

func (r *recorder) NodeDown(node erl.Node) {
	r.mx.Lock()
	defer r.mx.Unlock()
	r.downs = append(r.downs, node)
}

func (r *recorder) snapshot() ([]string, []erl.Node) {
	r.mx.Lock()
	defer r.mx.Unlock()
	return append([]string(nil), r.frames...), append([]erl.Node(nil), r.downs...)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_DeliversInOrder(t *testing.T) {
	hub := NewHub()
	a, err := hub.Join("a", &recorder{})
	assert.NilError(t, err)
	rb := &recorder{}
	_, err = hub.Join("b", rb)
	assert.NilError(t, err)

	want := make([]string, 0, 200)
	for i := 0; i < 200; i++ {
		assert.NilError(t, a.Send(context.Background(), "b", []byte(fmt.Sprint(i))))
		want = append(want, fmt.Sprintf("a:%d", i))
	}

	waitUntil(t, func() bool {
		frames, _ := rb.snapshot()
		return len(frames) == len(want)
	})
	frames, _ := rb.snapshot()
	assert.DeepEqual(t, frames, want)
}

func TestHub_JoinTwice(t *testing.T) {
	hub := NewHub()
	_, err := hub.Join("a", &recorder{})
	assert.NilError(t, err)
	_, err = hub.Join("a", &recorder{})
	assert.ErrorContains(t, err, "already joined")
}

func TestHub_SendToUnknownNode(t *testing.T) {
	hub := NewHub()
	a, err := hub.Join("a", &recorder{})
	assert.NilError(t, err)

	err = a.Send(context.Background(), "zz", []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestHub_CloseNotifiesOthers(t *testing.T) {
	hub := NewHub()
	a, err := hub.Join("a", &recorder{})
	assert.NilError(t, err)
	rb := &recorder{}
	b, err := hub.Join("b", rb)
	assert.NilError(t, err)

	assert.NilError(t, a.Close())

	_, downs := rb.snapshot()
	assert.DeepEqual(t, downs, []erl.Node{"a"})
	assert.ErrorIs(t, a.Send(context.Background(), "b", []byte("x")), ErrClosed)
	assert.ErrorIs(t, b.Send(context.Background(), "a", []byte("x")), ErrUnknownNode)
}

type blocking struct {
	release chan struct{}
}

func (b blocking) HandleFrame(erl.Node, []byte) { <-b.release }
func (b blocking) NodeDown(erl.Node)            {}

func TestHub_SendHonoursContext(t *testing.T) {
	hub := NewHub()
	hub.inboxSize = 1
	a, err := hub.Join("a", &recorder{})
	assert.NilError(t, err)
	release := make(chan struct{})
	defer close(release)
	_, err = hub.Join("b", blocking{release: release})
	assert.NilError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var sendErr error
	for i := 0; i < 3 && sendErr == nil; i++ {
		sendErr = a.Send(ctx, "b", []byte("x"))
	}
	assert.ErrorIs(t, sendErr, context.DeadlineExceeded)
}
