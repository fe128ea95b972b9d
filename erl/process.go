package erl

import (
	"fmt"
	"runtime/debug"
	"sync"

	goset "github.com/deckarep/golang-set/v2"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/uberbrodt/otp-go/erl/exitreason"
	"github.com/uberbrodt/otp-go/erl/internal/inbox"
)

var nextProcessID atomic.Int64

type processStatus string

var (
	exiting processStatus = "EXITING"
	exited  processStatus = "EXITED"
	running processStatus = "RUNNING"
)

type Process struct {
	id       int64
	runnable Runnable
	args     any
	signals  *inbox.Inbox[Signal]
	mailbox  *inbox.Inbox[Message]
	// closed once Run has returned
	done chan struct{}
	// closed once exit has released names and signalled links and monitors
	gone chan struct{}

	// owned by the signal loop
	links    goset.Set[PID]
	monitors map[Ref]PID

	trapExits atomic.Bool

	// guards everything below. The runnable goroutine touches these through the
	// public API while the signal loop delivers DOWN and reply signals.
	mx         sync.Mutex
	_status    processStatus
	exitReason *exitreason.S
	monitoring map[Ref]PID
	aliases    map[Ref]struct{}
	exitHooks  map[any]func()
}

func NewProcess(r Runnable, args any) *Process {
	return &Process{
		id:         nextProcessID.Inc(),
		runnable:   r,
		args:       args,
		signals:    inbox.New[Signal](),
		mailbox:    inbox.New[Message](),
		done:       make(chan struct{}),
		gone:       make(chan struct{}),
		links:      goset.NewThreadUnsafeSet[PID](),
		monitors:   make(map[Ref]PID),
		monitoring: make(map[Ref]PID),
		aliases:    make(map[Ref]struct{}),
		exitHooks:  make(map[any]func()),
		_status:    running,
	}
}

func (p *Process) String() string {
	return fmt.Sprintf("Process<%d>", p.id)
}

func (p *Process) self() PID {
	return PID{p: p, id: p.id}
}

// start must only be called once, after any relations set up by doSpawn.
func (p *Process) start() {
	go p.loop()
	go p.runBody()
}

func (p *Process) runBody() {
	var reason *exitreason.S
	defer func() {
		if r := recover(); r != nil {
			var err error
			if e, ok := r.(error); ok {
				err = fmt.Errorf("%v Runnable panicked: %w", p, e)
			} else {
				err = fmt.Errorf("%v Runnable panicked: %v", p, r)
			}
			log().Error("process panicked",
				zap.Stringer("pid", p.self()),
				zap.Error(err),
				zap.ByteString("stack", debug.Stack()))
			reason = exitreason.To(exitreason.Exception(err))
		}
		close(p.done)
		// if the loop already exited us this is a no-op
		p.signals.Enqueue(runnableExited{reason: reason})
	}()

	reason = exitreason.From(p.runnable.Run(p.self(), p.args))
}

func (p *Process) loop() {
	for {
		signal, _, closed := p.signals.BlockingPop()
		if closed != nil {
			return
		}
		DebugPrintf("%v received %s signal", p.self(), signal.SignalName())

		switch sig := signal.(type) {
		case runnableExited:
			p.exit(sig.reason)
			return

		case messageSignal:
			p.mailbox.Enqueue(Message{From: sig.from, Term: sig.term})

		case linkSignal:
			p.links.Add(sig.pid)

		case unlinkSignal:
			p.links.Remove(sig.pid)

		case monitorSignal:
			p.monitors[sig.ref] = sig.monitor

		case demonitorSignal:
			if observer, ok := p.monitors[sig.ref]; ok && observer.Equals(sig.origin) {
				delete(p.monitors, sig.ref)
			}

		case downSignal:
			p.deliverDown(sig)

		case replySignal:
			p.deliverReply(sig)

		case infoSignal:
			sig.reply <- p.info()

		case exitSignal:
			if p.handleExit(sig) {
				return
			}

		case nodeDownSignal:
			if p.handleNodeDown(sig.node) {
				return
			}
		}
	}
}

// returns true if the process exited
func (p *Process) handleExit(sig exitSignal) bool {
	if sig.link {
		// in flight from a link that was removed, or a stale notification
		if !p.links.Contains(sig.sender) {
			return false
		}
		p.links.Remove(sig.sender)
	}

	// a kill sent directly can't be trapped; one that arrives over a link can
	if exitreason.IsKill(sig.reason) && !sig.link {
		p.exit(exitreason.Kill)
		return true
	}

	if p.trapExits.Load() {
		DebugPrintf("%v trapped exit signal from %v", p.self(), sig.sender)
		p.mailbox.Enqueue(Message{From: sig.sender, Term: ExitMsg{Proc: sig.sender, Reason: sig.reason, Link: sig.link}})
		return false
	}

	// normal is only a valid reason when a process exits itself
	if exitreason.IsNormal(sig.reason) && !sig.sender.Equals(p.self()) {
		return false
	}

	p.exit(sig.reason)
	return true
}

func (p *Process) deliverDown(sig downSignal) {
	p.mx.Lock()
	defer p.mx.Unlock()

	if _, ok := p.monitoring[sig.ref]; !ok {
		// demonitored while the signal was in flight
		return
	}
	delete(p.monitoring, sig.ref)
	delete(p.aliases, sig.ref)
	p.mailbox.Enqueue(Message{From: sig.proc, Term: DownMsg{Proc: sig.proc, Ref: sig.ref, Reason: sig.reason}})
}

func (p *Process) deliverReply(sig replySignal) {
	p.mx.Lock()
	defer p.mx.Unlock()

	if _, ok := p.aliases[sig.ref]; !ok {
		DebugPrintf("%v dropping reply for inactive alias %s", p.self(), sig.ref)
		return
	}
	delete(p.aliases, sig.ref)
	p.mailbox.Enqueue(Message{Term: ReplyMsg{Ref: sig.ref, Term: sig.term}})
}

// exit only runs on the signal loop.
func (p *Process) exit(reason *exitreason.S) {
	if reason == nil {
		reason = exitreason.Normal
	}
	self := p.self()

	p.mx.Lock()
	p._status = exiting
	p.exitReason = reason
	hooks := p.exitHooks
	p.exitHooks = nil
	monitoring := p.monitoring
	p.monitoring = make(map[Ref]PID)
	p.aliases = make(map[Ref]struct{})
	p.mx.Unlock()

	// name cleanup has to be visible before anyone is told we're gone
	for _, hook := range hooks {
		hook()
	}

	// wakes up a runnable blocked in Receive, it gets [reason] back
	p.mailbox.Close()

	// anyone who tried to link or monitor us after we stopped reading signals
	// is owed a noproc
	for _, pending := range p.signals.Drain() {
		deadLetter(self, pending)
	}

	for linked := range p.links.Iter() {
		sendSignal(linked, exitSignal{sender: self, receiver: linked, reason: reason, link: true})
	}
	for ref, observer := range p.monitors {
		sendSignal(observer, downSignal{proc: self, ref: ref, reason: reason})
	}
	for ref, target := range monitoring {
		sendSignal(target, demonitorSignal{ref: ref, origin: self})
	}

	procs.remove(p.id)
	p.setStatus(exited)
	close(p.gone)
	recordExit(reason)

	if exitreason.IsClean(reason) {
		DebugPrintf("%v exited: %v", self, reason)
	} else {
		log().Debug("process exited", zap.Stringer("pid", self), zap.Error(reason))
	}
}

func (p *Process) send(sig Signal) bool {
	return p.signals.Enqueue(sig)
}

func (p *Process) getStatus() processStatus {
	if p == nil {
		return exited
	}
	p.mx.Lock()
	defer p.mx.Unlock()
	return p._status
}

func (p *Process) setStatus(s processStatus) {
	p.mx.Lock()
	defer p.mx.Unlock()
	p._status = s
}

func (p *Process) getExitReason() *exitreason.S {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.exitReason == nil {
		return exitreason.NoProc
	}
	return p.exitReason
}

// addExitHook registers [fn] to run during exit, before links and monitors are
// notified. Returns false if the process is no longer running.
func (p *Process) addExitHook(key any, fn func()) bool {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p._status != running {
		return false
	}
	p.exitHooks[key] = fn
	return true
}

func (p *Process) removeExitHook(key any) {
	p.mx.Lock()
	defer p.mx.Unlock()
	delete(p.exitHooks, key)
}

// sendSignal routes [signal] to a local or remote process. Signals to processes
// that are gone are answered by deadLetter.
func sendSignal(pid PID, signal Signal) {
	switch {
	case pid.IsRemote():
		forwardRemote(pid, signal)
	case pid.p != nil && pid.p.send(signal):
	default:
		deadLetter(pid, signal)
	}
}

// deadLetter handles a signal that couldn't be delivered to [pid]. Linking to or
// monitoring a dead process still produces an exit/DOWN with reason noproc; every
// other signal is dropped.
func deadLetter(pid PID, signal Signal) {
	switch sig := signal.(type) {
	case linkSignal:
		sendSignal(sig.pid, exitSignal{sender: pid, receiver: sig.pid, reason: exitreason.NoProc, link: true})
	case monitorSignal:
		sendSignal(sig.monitor, downSignal{proc: pid, ref: sig.ref, reason: exitreason.NoProc})
	case infoSignal:
		close(sig.reply)
	case messageSignal:
		recordDropped()
	}
}

type processTable struct {
	mx    sync.RWMutex
	procs map[int64]*Process
}

var procs = &processTable{procs: make(map[int64]*Process)}

func (t *processTable) add(p *Process) {
	t.mx.Lock()
	defer t.mx.Unlock()
	t.procs[p.id] = p
}

func (t *processTable) remove(id int64) {
	t.mx.Lock()
	defer t.mx.Unlock()
	delete(t.procs, id)
}

func (t *processTable) get(id int64) (*Process, bool) {
	t.mx.RLock()
	defer t.mx.RUnlock()
	p, ok := t.procs[id]
	return p, ok
}

func (t *processTable) pids() []PID {
	t.mx.RLock()
	defer t.mx.RUnlock()
	out := make([]PID, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p.self())
	}
	return out
}
