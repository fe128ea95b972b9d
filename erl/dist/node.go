// Package dist connects the runtime to other nodes. A [Node] implements
// [erl.Distribution] on top of a [Transport]: signals for remote PIDs are
// wrapped in an [Envelope], encoded with a [codec.Codec] and sent to the node
// the PID lives on, where they are handed to [erl.DeliverRemote].
//
//	hub := dist.NewHub()
//	node, err := dist.Start("a@localhost", hub.Join)
//	erl.SetDistribution(node)
package dist

import (
	"context"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/google/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/codec"
)

var _ erl.Distribution = (*Node)(nil)

var _ Handler = (*Node)(nil)

type options struct {
	codec       codec.Codec
	sendTimeout time.Duration
}

type Option func(o options) options

func WithCodec(c codec.Codec) Option {
	return func(o options) options {
		o.codec = c
		return o
	}
}

// WithSendTimeout bounds how long a signal may wait on a slow transport before
// it is treated as undeliverable.
func WithSendTimeout(d time.Duration) Option {
	return func(o options) options {
		o.sendTimeout = d
		return o
	}
}

type Node struct {
	name erl.Node
	// new on every start, so peers can tell a restarted node from the old one
	incarnation string
	opts        options
	transport   Transport
	peers       mapset.Set[erl.Node]
	closed      atomic.Bool

	incMx        sync.Mutex
	incarnations map[erl.Node]string
}

// Start creates node [name] and connects it with [dial]. Install it with
// [erl.SetDistribution] to route remote signals through it.
func Start(name erl.Node, dial Dialer, opts ...Option) (*Node, error) {
	o := options{codec: codec.Default(), sendTimeout: chronos.Dur("5s")}
	for _, opt := range opts {
		o = opt(o)
	}
	n := &Node{
		name:         name,
		incarnation:  uuid.NewString(),
		opts:         o,
		peers:        mapset.NewSet[erl.Node](),
		incarnations: make(map[erl.Node]string),
	}
	tr, err := dial(name, n)
	if err != nil {
		return nil, err
	}
	n.transport = tr
	return n, nil
}

func (n *Node) Node() erl.Node {
	return n.name
}

func (n *Node) Incarnation() string {
	return n.incarnation
}

// Peers lists the nodes signals were exchanged with, sorted.
func (n *Node) Peers() []erl.Node {
	peers := n.peers.ToSlice()
	slices.Sort(peers)
	return peers
}

func (n *Node) Forward(to erl.PID, sig erl.RemoteSignal) error {
	if n.closed.Load() {
		return ErrClosed
	}
	env, err := NewEnvelope(n.opts.codec, n.name, n.incarnation, to, sig)
	if err != nil {
		return err
	}
	frame, err := encodeFrame(n.opts.codec, env)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), n.opts.sendTimeout)
	defer cancel()
	if err := n.transport.Send(ctx, to.Node(), frame); err != nil {
		return err
	}
	n.peers.Add(to.Node())
	return nil
}

func (n *Node) HandleFrame(from erl.Node, frame []byte) {
	env, err := decodeFrame(n.opts.codec, frame)
	if err != nil {
		erl.Log().Warn("dropping undecodable frame", zap.String("from", string(from)), zap.Error(err))
		return
	}
	if erl.Node(env.To.Node) != n.name {
		erl.Log().Warn("dropping frame for another node",
			zap.String("from", string(from)), zap.String("to", env.To.Node))
		return
	}
	n.checkIncarnation(from, env.Incarnation)

	to, sig, err := env.Signal(n.opts.codec)
	if err != nil {
		erl.Log().Warn("dropping signal", zap.String("from", string(from)), zap.String("kind", env.Kind), zap.Error(err))
		return
	}
	n.peers.Add(from)
	erl.DeliverRemote(to, sig)
}

// a peer that comes back with a new incarnation lost all its processes
func (n *Node) checkIncarnation(from erl.Node, incarnation string) {
	n.incMx.Lock()
	prev, known := n.incarnations[from]
	n.incarnations[from] = incarnation
	n.incMx.Unlock()

	if known && prev != incarnation {
		erl.Log().Info("node restarted", zap.String("node", string(from)))
		erl.NodeDown(from)
	}
}

func (n *Node) NodeDown(node erl.Node) {
	n.peers.Remove(node)
	n.incMx.Lock()
	delete(n.incarnations, node)
	n.incMx.Unlock()

	erl.Log().Info("node down", zap.String("node", string(node)))
	erl.NodeDown(node)
}

// Close disconnects the node. Signals for remote processes fail from then on.
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}
	return n.transport.Close()
}
