package erl

import (
	"sync"

	"go.uber.org/zap"

	"github.com/uberbrodt/otp-go/erl/exitreason"
)

// Node names a runtime instance. PIDs of processes on other nodes carry the
// node they live on.
type Node string

const NoNode Node = "nonode@nohost"

// Distribution carries signals to processes on other nodes. Install one with
// [SetDistribution]; inbound signals are handed to [DeliverRemote].
//
// Without a Distribution, or when Forward fails, remote processes behave as if
// they were dead: sends are dropped, links and monitors fire with
// [exitreason.NoProc].
type Distribution interface {
	// Node is the name of the local node.
	Node() Node
	Forward(to PID, sig RemoteSignal) error
}

type SignalKind string

const (
	KindMessage   SignalKind = "message"
	KindExit      SignalKind = "exit"
	KindLink      SignalKind = "link"
	KindUnlink    SignalKind = "unlink"
	KindMonitor   SignalKind = "monitor"
	KindDemonitor SignalKind = "demonitor"
	KindDown      SignalKind = "down"
	KindReply     SignalKind = "reply"
)

// RemoteSignal is the node-independent form of a signal between processes.
type RemoteSignal struct {
	Kind SignalKind
	// sender of the signal; for Down the process that exited
	From   PID
	Ref    Ref
	Term   any
	Reason *exitreason.S
	// exit signals only, true when caused by a linked process exiting
	Link bool
}

var (
	distMx       sync.RWMutex
	distribution Distribution
)

// SetDistribution installs [d]. Pass nil to detach from other nodes.
func SetDistribution(d Distribution) {
	distMx.Lock()
	defer distMx.Unlock()
	distribution = d
}

func getDistribution() Distribution {
	distMx.RLock()
	defer distMx.RUnlock()
	return distribution
}

// LocalNode is the name of this node, [NoNode] when no [Distribution] is installed.
func LocalNode() Node {
	if d := getDistribution(); d != nil {
		return d.Node()
	}
	return NoNode
}

// RemotePID builds the PID for process [id] on [node]. If [node] is the local
// node the result is the local PID, which may already be dead.
func RemotePID(node Node, id int64) PID {
	if node == "" || node == LocalNode() {
		if p, ok := procs.get(id); ok {
			return p.self()
		}
		return PID{id: id}
	}
	return PID{node: node, id: id}
}

func toRemote(sig Signal) (RemoteSignal, bool) {
	switch s := sig.(type) {
	case messageSignal:
		return RemoteSignal{Kind: KindMessage, From: s.from, Term: s.term}, true
	case exitSignal:
		return RemoteSignal{Kind: KindExit, From: s.sender, Reason: s.reason, Link: s.link}, true
	case linkSignal:
		return RemoteSignal{Kind: KindLink, From: s.pid}, true
	case unlinkSignal:
		return RemoteSignal{Kind: KindUnlink, From: s.pid}, true
	case monitorSignal:
		return RemoteSignal{Kind: KindMonitor, From: s.monitor, Ref: s.ref}, true
	case demonitorSignal:
		return RemoteSignal{Kind: KindDemonitor, From: s.origin, Ref: s.ref}, true
	case downSignal:
		return RemoteSignal{Kind: KindDown, From: s.proc, Ref: s.ref, Reason: s.reason}, true
	case replySignal:
		return RemoteSignal{Kind: KindReply, Ref: s.ref, Term: s.term}, true
	default:
		return RemoteSignal{}, false
	}
}

func fromRemote(to PID, rs RemoteSignal) (Signal, bool) {
	switch rs.Kind {
	case KindMessage:
		return messageSignal{from: rs.From, term: rs.Term}, true
	case KindExit:
		reason := rs.Reason
		if reason == nil {
			reason = exitreason.Normal
		}
		return exitSignal{sender: rs.From, receiver: to, reason: reason, link: rs.Link}, true
	case KindLink:
		return linkSignal{pid: rs.From}, true
	case KindUnlink:
		return unlinkSignal{pid: rs.From}, true
	case KindMonitor:
		return monitorSignal{ref: rs.Ref, monitor: rs.From, monitored: to}, true
	case KindDemonitor:
		return demonitorSignal{ref: rs.Ref, origin: rs.From}, true
	case KindDown:
		return downSignal{proc: rs.From, ref: rs.Ref, reason: rs.Reason}, true
	case KindReply:
		return replySignal{ref: rs.Ref, term: rs.Term}, true
	default:
		return nil, false
	}
}

func forwardRemote(to PID, sig Signal) {
	rs, ok := toRemote(sig)
	if !ok {
		return
	}
	d := getDistribution()
	if d == nil {
		deadLetter(to, sig)
		return
	}
	if err := d.Forward(to, rs); err != nil {
		DebugPrintf("forwarding %s to %v failed: %v", sig.SignalName(), to, err)
		deadLetter(to, sig)
	}
}

// DeliverRemote hands a signal that arrived from another node to the local
// process [to]. Signals for processes that are gone get the same treatment as
// local ones: links and monitors are answered with noproc.
func DeliverRemote(to PID, rs RemoteSignal) {
	sig, ok := fromRemote(to, rs)
	if !ok {
		log().Warn("dropping unknown remote signal", zap.String("kind", string(rs.Kind)), zap.Stringer("to", to))
		return
	}
	if to.IsRemote() {
		if to.node != LocalNode() {
			deadLetter(to, sig)
			return
		}
		to = RemotePID(to.node, to.id)
	}
	sendSignal(to, sig)
}

// NodeDown notifies every local process linked to or monitoring a process on
// [node]. Links fire with [exitreason.NoConnection], monitors with a DOWN
// carrying the same reason. Transports call this when they lose a node.
func NodeDown(node Node) {
	for _, pid := range procs.pids() {
		sendSignal(pid, nodeDownSignal{node: node})
	}
}

type nodeDownSignal struct {
	node Node
}

func (s nodeDownSignal) SignalName() string {
	return "nodedown"
}

// runs on the signal loop; returns true if the process exited
func (p *Process) handleNodeDown(node Node) bool {
	self := p.self()
	for _, linked := range p.links.ToSlice() {
		if linked.node == node {
			if p.handleExit(exitSignal{sender: linked, receiver: self, reason: exitreason.NoConnection, link: true}) {
				return true
			}
		}
	}

	p.mx.Lock()
	lost := make(map[Ref]PID)
	for ref, target := range p.monitoring {
		if target.node == node {
			lost[ref] = target
		}
	}
	p.mx.Unlock()
	for ref, target := range lost {
		p.deliverDown(downSignal{proc: target, ref: ref, reason: exitreason.NoConnection})
	}

	for ref, observer := range p.monitors {
		if observer.node == node {
			delete(p.monitors, ref)
		}
	}
	return false
}
