/*
Package erl provides Erlang-style process primitives for Go.

A process is a goroutine running a [Runnable] together with a mailbox and a
signal queue. Processes talk to each other only through asynchronous messages
([Send]) and signals: links ([Link], [SpawnLink]), monitors ([Monitor],
[SpawnMonitor]) and exit signals ([Exit]).

# Mailbox

Messages are appended to the receiver's mailbox in the order they arrive. A
Runnable reads them with [Receive], which removes the first message accepted by
a [Matcher] and leaves everything else queued in order (selective receive):

	msg, err := erl.Receive(self, erl.MatchType[Ping], 5*time.Second)

[Receive] is the only place a process blocks waiting on other processes. If the
process is terminated by an exit signal while blocked, [Receive] returns the
process's exit reason and the Runnable is expected to return.

# Links vs Monitors

Links are symmetric. When a linked process terminates with an abnormal reason
the peer terminates with the same reason, unless it is trapping exits, in which
case it receives an [ExitMsg] instead. A normal exit never cascades.

Monitors are one way. The observer receives exactly one [DownMsg] for every
monitor, whatever the reason the target exited with, including normal and
kill. Monitoring or linking a dead process yields a noproc notification.

# Kill

[exitreason.Kill] sent with [Exit] terminates its target unconditionally, even
a process trapping exits. Links and monitors of the killed process then see
reason kill, which for them is an ordinary, trappable abnormal reason.

# Panic Recovery

A panic inside a Runnable is recovered and turned into an
[exitreason.Exception], so links and monitors are notified as for any other
abnormal exit.

# Erlang Correspondence

	Erlang                  Go (erl package)
	------                  ----------------
	spawn/1                 Spawn
	spawn_link/1            SpawnLink
	spawn_monitor/1         SpawnMonitor
	spawn_opt/2             SpawnOpt
	receive ... after       Receive
	link/1                  Link
	unlink/1                Unlink
	monitor/2               Monitor
	monitor/3 {alias,..}    Alias
	demonitor/2             Demonitor
	!/send                  Send
	exit/2                  Exit
	process_flag/2          ProcessFlag
	process_info/1          Info
	is_process_alive/1      IsAlive
	make_ref/0              MakeRef
	send_after/3            SendAfter
	register/2              Register
	whereis/1               WhereIs
*/
package erl

import (
	"time"

	"github.com/rs/xid"

	"github.com/uberbrodt/otp-go/erl/exitreason"
)

type spawnOpts struct {
	link      *PID
	monitor   *PID
	trapExits bool
	name      Name
}

type SpawnOption func(o spawnOpts) spawnOpts

// LinkTo links the new process to [pid] before it starts running.
func LinkTo(pid PID) SpawnOption {
	return func(o spawnOpts) spawnOpts {
		o.link = &pid
		return o
	}
}

// MonitorBy makes [pid] monitor the new process before it starts running. The
// monitor [Ref] is the second return value of [SpawnOpt].
func MonitorBy(pid PID) SpawnOption {
	return func(o spawnOpts) spawnOpts {
		o.monitor = &pid
		return o
	}
}

// TrapExits starts the process with the [TrapExit] flag already set.
func TrapExits() SpawnOption {
	return func(o spawnOpts) spawnOpts {
		o.trapExits = true
		return o
	}
}

// WithName registers the new process under [name] in the default registry before
// it runs. If the name can't be registered the process is not started and
// SpawnOpt returns [UndefinedPID].
func WithName(name Name) SpawnOption {
	return func(o spawnOpts) spawnOpts {
		o.name = name
		return o
	}
}

// Spawn creates a new process running [r] and returns its PID. [args] is passed
// to [Runnable.Run].
//
// The new process has no relation with the caller; neither is notified when the
// other exits. Use [SpawnLink] for processes that should live and die together.
func Spawn(r Runnable, args any) PID {
	pid, _, _ := doSpawn(r, args, spawnOpts{})
	return pid
}

// SpawnLink creates a new process and links it to [self] in the same step, so the
// child can't exit before the link exists.
//
//	worker := erl.SpawnLink(self, &MyWorker{}, cfg)
func SpawnLink(self PID, r Runnable, args any) PID {
	pid, _, _ := doSpawn(r, args, spawnOpts{link: &self})
	return pid
}

// SpawnMonitor creates a new process monitored by [self]. [self] receives a
// [DownMsg] carrying the returned [Ref] when the process exits.
func SpawnMonitor(self PID, r Runnable, args any) (PID, Ref) {
	pid, ref, _ := doSpawn(r, args, spawnOpts{monitor: &self})
	return pid, ref
}

// SpawnOpt is the general form of [Spawn]. The returned [Ref] is only set when
// [MonitorBy] was given. An error is only returned if [WithName] failed.
func SpawnOpt(r Runnable, args any, opts ...SpawnOption) (PID, Ref, error) {
	o := spawnOpts{}
	for _, opt := range opts {
		o = opt(o)
	}
	return doSpawn(r, args, o)
}

func doSpawn(r Runnable, args any, o spawnOpts) (PID, Ref, error) {
	p := NewProcess(r, args)
	self := p.self()
	p.trapExits.Store(o.trapExits)

	if o.name != "" {
		if err := defaultRegistry.Register(o.name, self); err != nil {
			return UndefinedPID, UndefinedRef, err
		}
	}

	ref := UndefinedRef
	if o.monitor != nil {
		ref = MakeRef()
		p.monitors[ref] = *o.monitor
		if o.monitor.p != nil {
			o.monitor.p.addMonitoring(ref, self)
		}
	}

	if o.link != nil {
		p.links.Add(*o.link)
		// if the parent is already gone, deadLetter answers with an exit signal
		// to the child, which is now in its queue ahead of anything else
		sendSignal(*o.link, linkSignal{pid: self})
	}

	procs.add(p)
	recordSpawn()
	p.start()
	return self, ref, nil
}

// Send delivers [term] to the mailbox of [pid]. It never blocks and never fails:
// if the process doesn't exist or has exited the message is dropped.
//
// Messages from one sender to one receiver arrive in the order they were sent.
func Send(pid PID, term any) {
	sendSignal(pid, messageSignal{term: term})
}

// SendFrom is [Send] with the sender recorded in [Message.From].
func SendFrom(from PID, pid PID, term any) {
	sendSignal(pid, messageSignal{from: from, term: term})
}

// SendTo resolves [dest] and sends [term] to it. Returns [exitreason.NoProc] if a
// name isn't registered.
func SendTo(dest Dest, term any) error {
	pid, err := dest.ResolvePID()
	if err != nil {
		return exitreason.NoProc
	}
	Send(pid, term)
	return nil
}

// Link establishes a bi-directional relationship between [self] and [pid]. Links
// are idempotent.
//
// If [pid] refers to a process that has already exited, [self] receives an exit
// signal with reason [exitreason.NoProc] just as if [pid] had died after the link
// was made, and Link returns [exitreason.NoProc]. A local [pid] that is alive when
// Link returns nil may still die at any moment afterwards.
func Link(self PID, pid PID) error {
	if self.Equals(pid) {
		return nil
	}
	sendSignal(self, linkSignal{pid})
	sendSignal(pid, linkSignal{self})
	if !pid.IsRemote() && !IsAlive(pid) {
		return exitreason.NoProc
	}
	return nil
}

// Unlink removes the link between [self] and [pid], if any. Exit signals already
// in flight from [pid] are discarded once the link is gone.
func Unlink(self PID, pid PID) {
	sendSignal(self, unlinkSignal{pid})
	sendSignal(pid, unlinkSignal{self})
}

// Monitor makes [self] observe [pid]. When [pid] exits [self] receives a
// [DownMsg] carrying the returned [Ref], with the reason [pid] exited with. If
// [pid] is already dead the DownMsg has reason [exitreason.NoProc].
//
// Several monitors on the same process are independent; each one produces its
// own DownMsg.
func Monitor(self PID, pid PID) Ref {
	ref := MakeRef()
	if self.p == nil {
		return ref
	}
	self.p.addMonitoring(ref, pid)
	sendSignal(pid, monitorSignal{ref: ref, monitor: self, monitored: pid})
	return ref
}

type demonitorOpts struct {
	flush bool
}

type DemonitorOpt func(o demonitorOpts) demonitorOpts

// Flush also removes a [DownMsg] or [ReplyMsg] for the monitor that is already
// in the mailbox.
func Flush() DemonitorOpt {
	return func(o demonitorOpts) demonitorOpts {
		o.flush = true
		return o
	}
}

// Demonitor removes the monitor identified by [ref]. Once it returns no [DownMsg]
// for [ref] will be added to the mailbox of [self]; one added before the call is
// only removed if [Flush] is given.
//
// Returns false if [ref] was not an active monitor of [self], ie. it was never
// created, was already removed or already fired.
func Demonitor(self PID, ref Ref, opts ...DemonitorOpt) bool {
	o := demonitorOpts{}
	for _, opt := range opts {
		o = opt(o)
	}
	if self.p == nil {
		return false
	}
	p := self.p

	p.mx.Lock()
	target, active := p.monitoring[ref]
	delete(p.monitoring, ref)
	delete(p.aliases, ref)
	if o.flush {
		p.mailbox.RemoveFunc(func(m Message) bool {
			switch v := m.Term.(type) {
			case DownMsg:
				return v.Ref == ref
			case ReplyMsg:
				return v.Ref == ref
			}
			return false
		})
	}
	p.mx.Unlock()

	if active {
		sendSignal(target, demonitorSignal{ref: ref, origin: self})
	}
	return active
}

func (p *Process) addMonitoring(ref Ref, target PID) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p._status == running {
		p.monitoring[ref] = target
	}
}

// Alias activates [ref], which must be a monitor of [self], as a reply alias:
// the first [Reply] sent to [self] with [ref] is delivered as a [ReplyMsg]. The
// alias is deactivated by that reply, by [Demonitor] or when the monitor fires,
// after which replies for [ref] are silently dropped.
func Alias(self PID, ref Ref) bool {
	if self.p == nil {
		return false
	}
	p := self.p
	p.mx.Lock()
	defer p.mx.Unlock()
	if _, ok := p.monitoring[ref]; !ok {
		return false
	}
	p.aliases[ref] = struct{}{}
	return true
}

// Reply sends [term] to the [Alias] [ref] of [to].
func Reply(to PID, ref Ref, term any) {
	sendSignal(to, replySignal{ref: ref, term: term})
}

// SendAfter sends [term] to [pid] once [tout] has elapsed, unless the timer is
// cancelled with [CancelTimer] first or [pid] exits in the meantime.
//
// The timer is a process of its own. Returns an empty [TimerRef] if [pid] is not
// alive.
func SendAfter(pid PID, term any, tout time.Duration) TimerRef {
	if !IsAlive(pid) {
		return TimerRef{}
	}
	timerPid := Spawn(&timer{to: pid, term: term, tout: tout}, nil)
	return TimerRef{pid: timerPid}
}

// MakeRef generates a reference unique for the lifetime of the program. Don't
// rely on its structure.
func MakeRef() Ref {
	return Ref(xid.New().String())
}

var UndefinedRef Ref = Ref("")

// IsAlive is true if [pid] refers to a local process that has not started
// exiting. This is a point-in-time check; prefer [Monitor] to track lifecycle.
func IsAlive(pid PID) bool {
	return !pid.IsNil() && pid.p.getStatus() == running
}

// AwaitExit blocks until the local process [pid] has finished exiting: its
// names are released and its links and monitors have been signalled. Returns
// false if [tout] elapses first or [pid] is not a local process.
func AwaitExit(pid PID, tout time.Duration) bool {
	if pid.IsNil() || pid.p == nil {
		return false
	}
	select {
	case <-pid.p.gone:
		return true
	case <-time.After(tout):
		return false
	}
}

// ProcessFlag sets a flag on the calling process. The only flag is [TrapExit]
// (bool): when set, exit signals are delivered as [ExitMsg] instead of
// terminating the process. Kill sent directly is never trapped.
//
// Panics if [self] is not a local process.
func ProcessFlag(self PID, flag ProcFlag, value any) {
	if self.IsNil() {
		panic("pid cannot be nil")
	}
	if flag == TrapExit {
		self.p.trapExits.Store(value.(bool))
	}
}

// TrappingExits reports whether [self] has the [TrapExit] flag set.
func TrappingExits(self PID) bool {
	if self.IsNil() {
		return false
	}
	return self.p.trapExits.Load()
}

// Exit sends an exit signal to [pid] with [reason].
//
// If [pid] traps exits, the signal is converted to an [ExitMsg] in its
// mailbox. [exitreason.Kill] is the exception: it always terminates [pid].
// Otherwise a normal reason is ignored (unless [self] is [pid]), and any other
// reason terminates [pid] with that reason. A nil reason is
// [exitreason.Normal].
//
//	erl.Exit(self, worker, exitreason.To(exitreason.Shutdown(nil)))
//	erl.Exit(self, hung, exitreason.Kill)
func Exit(self PID, pid PID, reason *exitreason.S) {
	if reason == nil {
		reason = exitreason.Normal
	}
	sendSignal(pid, exitSignal{sender: self, receiver: pid, reason: reason})
}

// Processes returns the PIDs of all live local processes.
func Processes() []PID {
	return procs.pids()
}
