package dist

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/uberbrodt/otp-go/erl"
)

var (
	ErrUnknownNode = errors.New("dist: unknown node")
	ErrClosed      = errors.New("dist: transport closed")
)

// Handler receives what a [Transport] gets from other nodes. Frames from one
// node are delivered in the order they were sent.
type Handler interface {
	HandleFrame(from erl.Node, frame []byte)
	// NodeDown is called once a connected node is gone.
	NodeDown(node erl.Node)
}

// Transport moves frames between nodes. Connection setup and discovery are up
// to the implementation.
type Transport interface {
	Send(ctx context.Context, to erl.Node, frame []byte) error
	Close() error
}

// Dialer connects [local] to its peers, delivering inbound frames to [h].
type Dialer func(local erl.Node, h Handler) (Transport, error)

type hubFrame struct {
	from  erl.Node
	frame []byte
}

// Hub connects nodes inside one OS process. Each node has a bounded inbox
// drained by its own goroutine; [Transport.Send] blocks while it is full.
type Hub struct {
	mx        sync.RWMutex
	members   map[erl.Node]*hubMember
	inboxSize int
}

type hubMember struct {
	hub     *Hub
	node    erl.Node
	handler Handler
	inbox   chan hubFrame
	done    chan struct{}
	once    sync.Once
}

func NewHub() *Hub {
	return &Hub{members: make(map[erl.Node]*hubMember), inboxSize: 1024}
}

// Join is a [Dialer] adding [node] to the hub.
func (h *Hub) Join(node erl.Node, handler Handler) (Transport, error) {
	h.mx.Lock()
	defer h.mx.Unlock()
	if _, ok := h.members[node]; ok {
		return nil, fmt.Errorf("dist: node %s already joined", node)
	}
	m := &hubMember{
		hub:     h,
		node:    node,
		handler: handler,
		inbox:   make(chan hubFrame, h.inboxSize),
		done:    make(chan struct{}),
	}
	h.members[node] = m
	go m.loop()
	return m, nil
}

// Leave disconnects [node]; the others get [Handler.NodeDown].
func (h *Hub) Leave(node erl.Node) {
	h.mx.Lock()
	m, ok := h.members[node]
	delete(h.members, node)
	rest := make([]*hubMember, 0, len(h.members))
	for _, other := range h.members {
		rest = append(rest, other)
	}
	h.mx.Unlock()

	if !ok {
		return
	}
	m.stop()
	for _, other := range rest {
		other.handler.NodeDown(node)
	}
}

func (h *Hub) member(node erl.Node) (*hubMember, bool) {
	h.mx.RLock()
	defer h.mx.RUnlock()
	m, ok := h.members[node]
	return m, ok
}

func (m *hubMember) loop() {
	for {
		select {
		case f := <-m.inbox:
			m.handler.HandleFrame(f.from, f.frame)
		case <-m.done:
			return
		}
	}
}

func (m *hubMember) stop() {
	m.once.Do(func() { close(m.done) })
}

func (m *hubMember) Send(ctx context.Context, to erl.Node, frame []byte) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}
	peer, ok := m.hub.member(to)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	}
	select {
	case peer.inbox <- hubFrame{from: m.node, frame: frame}:
		return nil
	case <-peer.done:
		return fmt.Errorf("%w: %s", ErrUnknownNode, to)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *hubMember) Close() error {
	m.hub.Leave(m.node)
	return nil
}
