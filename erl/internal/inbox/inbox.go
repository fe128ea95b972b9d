package inbox

import (
	"errors"
	"sync"
	"time"

	"github.com/uberbrodt/otp-go/erl/timeout"
)

var (
	// ErrClosed is returned once the inbox is closed; no further items will be returned.
	ErrClosed = errors.New("inbox closed")
	// ErrTimeout is returned by [Inbox.Receive] when nothing matched in time.
	ErrTimeout = errors.New("inbox receive timed out")
)

type Inbox[M any] struct {
	msgQ   []M
	mx     sync.Mutex
	closed bool
	// closed and replaced every time the queue grows or the inbox is closed
	wake chan struct{}
	// bumped on every removal so an in-progress scan knows to start over
	gen uint64
}

// Create an Inbox that will store messages of type [M].
// An Inbox is written to using the `Enqueue` method, which will
// append itself to the end of a message queue. To read these messages,
// there are three methods:
//
//  1. Calling [Pop], which will return one message or nothing.
//  2. Calling [BlockingPop], which will wait until there is a message available or the inbox is closed.
//  3. Calling [Receive], which returns the first message accepted by a match function,
//     leaving everything before it in place.
//
// All of them are safe for concurrent use.
func New[M any]() *Inbox[M] {
	return &Inbox[M]{
		msgQ: make([]M, 0, 10),
		wake: make(chan struct{}),
	}
}

// Add a message to the end of the queue. Returns false if the inbox is closed.
func (i *Inbox[M]) Enqueue(msg M) bool {
	i.mx.Lock()
	defer i.mx.Unlock()

	if i.closed {
		return false
	}

	i.msgQ = append(i.msgQ, msg)
	i.notify()

	return true
}

// must hold i.mx
func (i *Inbox[M]) notify() {
	close(i.wake)
	i.wake = make(chan struct{})
}

// must hold i.mx
func (i *Inbox[M]) removeAt(idx int) M {
	item := i.msgQ[idx]
	var zero M
	copy(i.msgQ[idx:], i.msgQ[idx+1:])
	i.msgQ[len(i.msgQ)-1] = zero
	i.msgQ = i.msgQ[:len(i.msgQ)-1]
	i.gen++
	return item
}

// get and remove a value from the inbox. This is safe to call from multiple go routines.
// if there was no item returned, [ok] returns false
// if the inbox is closed and will never return a value, [closed] will be not nil
func (i *Inbox[M]) Pop() (item M, ok bool, closed error) {
	i.mx.Lock()
	defer i.mx.Unlock()

	if i.closed {
		return item, false, ErrClosed
	}
	if len(i.msgQ) == 0 {
		return item, false, nil
	}

	return i.removeAt(0), true, nil
}

// Similar to [Pop], but this call will block until it has a value to retrieve.
//
// If the inbox is closed, [closed] will be non-nil and the caller can expect no more
// messages.
func (i *Inbox[M]) BlockingPop() (item M, ok bool, closed error) {
	for {
		i.mx.Lock()
		if i.closed {
			i.mx.Unlock()
			return item, false, ErrClosed
		}
		if len(i.msgQ) > 0 {
			item = i.removeAt(0)
			i.mx.Unlock()
			return item, true, nil
		}
		wake := i.wake
		i.mx.Unlock()

		<-wake
	}
}

// Receive removes and returns the first item, in arrival order, for which [match]
// returns true. Items that don't match stay in the inbox in their original order.
// A nil [match] accepts anything.
//
// [tout] of 0 checks the current contents once, [timeout.Infinity] (or any negative
// value) waits forever. Returns [ErrTimeout] if nothing matched in time and
// [ErrClosed] if the inbox was closed while waiting.
func (i *Inbox[M]) Receive(match func(M) bool, tout time.Duration) (item M, err error) {
	var timer <-chan time.Time
	if tout > 0 && tout != timeout.Infinity {
		t := time.NewTimer(tout)
		defer t.Stop()
		timer = t.C
	}

	// everything before [scanned] has already been rejected by [match]
	scanned := 0
	var gen uint64

	i.mx.Lock()
	gen = i.gen
	for {
		if i.closed {
			i.mx.Unlock()
			return item, ErrClosed
		}
		if gen != i.gen {
			scanned = 0
			gen = i.gen
		}
		for idx := scanned; idx < len(i.msgQ); idx++ {
			if match == nil || i.matchLocked(match, i.msgQ[idx]) {
				item = i.removeAt(idx)
				i.mx.Unlock()
				return item, nil
			}
		}
		scanned = len(i.msgQ)

		if tout == 0 {
			i.mx.Unlock()
			return item, ErrTimeout
		}

		wake := i.wake
		i.mx.Unlock()

		select {
		case <-wake:
		case <-timer:
			return item, ErrTimeout
		}
		i.mx.Lock()
	}
}

// runs [match] with i.mx held, releasing it if [match] panics
func (i *Inbox[M]) matchLocked(match func(M) bool, item M) bool {
	returned := false
	defer func() {
		if !returned {
			i.mx.Unlock()
		}
	}()
	ok := match(item)
	returned = true
	return ok
}

// RemoveFunc deletes every queued item for which [match] returns true and reports
// how many were removed.
func (i *Inbox[M]) RemoveFunc(match func(M) bool) int {
	i.mx.Lock()
	defer i.mx.Unlock()

	kept := i.msgQ[:0]
	removed := 0
	for _, item := range i.msgQ {
		if match(item) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	var zero M
	for idx := len(kept); idx < len(i.msgQ); idx++ {
		i.msgQ[idx] = zero
	}
	i.msgQ = kept
	if removed > 0 {
		i.gen++
	}
	return removed
}

// Return the number of items in the Inbox
func (i *Inbox[M]) Size() int {
	i.mx.Lock()
	defer i.mx.Unlock()

	return len(i.msgQ)
}

// Drain closes the inbox and returns everything that was still queued.
func (i *Inbox[M]) Drain() []M {
	i.mx.Lock()
	defer i.mx.Unlock()
	if i.closed {
		return nil
	}

	result := i.msgQ
	i.msgQ = nil
	i.closed = true
	i.notify()

	return result
}

// closes the inbox, waking up every blocked reader, and prevents any messages from
// being queued/dequeued.
func (i *Inbox[M]) Close() {
	i.mx.Lock()
	defer i.mx.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	i.msgQ = nil
	i.notify()
}

// IsClosed reports whether [Close] or [Drain] has been called.
func (i *Inbox[M]) IsClosed() bool {
	i.mx.Lock()
	defer i.mx.Unlock()
	return i.closed
}
