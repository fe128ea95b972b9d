package dist

import (
	"fmt"
	"reflect"

	"github.com/uberbrodt/otp-go/erl"
	"github.com/uberbrodt/otp-go/erl/codec"
	"github.com/uberbrodt/otp-go/erl/exitreason"
)

// WirePID is a PID as it travels between nodes.
type WirePID struct {
	Node string `msgpack:"n"`
	ID   int64  `msgpack:"i"`
}

func toWire(pid erl.PID) WirePID {
	if pid.IsNil() {
		return WirePID{}
	}
	return WirePID{Node: string(pid.Node()), ID: pid.ID()}
}

func (w WirePID) PID() erl.PID {
	if w.ID == 0 && w.Node == "" {
		return erl.UndefinedPID
	}
	return erl.RemotePID(erl.Node(w.Node), w.ID)
}

// Envelope carries one [erl.RemoteSignal] from one node to another.
type Envelope struct {
	// sending node and the incarnation of it that sent the signal
	Node        string `msgpack:"node"`
	Incarnation string `msgpack:"inc"`

	To     WirePID `msgpack:"to"`
	Kind   string  `msgpack:"k"`
	From   WirePID `msgpack:"from"`
	Ref    string  `msgpack:"ref,omitempty"`
	Link   bool    `msgpack:"link,omitempty"`
	Reason string  `msgpack:"rk,omitempty"`
	Detail string  `msgpack:"rd,omitempty"`
	// Term encoded on its own so registered types can be restored
	TermType string `msgpack:"tt,omitempty"`
	Term     []byte `msgpack:"t,omitempty"`
}

// NewEnvelope builds the envelope for [sig], encoding its term with [c].
func NewEnvelope(c codec.Codec, node erl.Node, incarnation string, to erl.PID, sig erl.RemoteSignal) (Envelope, error) {
	env := Envelope{
		Node:        string(node),
		Incarnation: incarnation,
		To:          toWire(to),
		Kind:        string(sig.Kind),
		From:        toWire(sig.From),
		Ref:         string(sig.Ref),
		Link:        sig.Link,
	}
	if sig.Reason != nil {
		env.Reason = sig.Reason.Kind()
		env.Detail = sig.Reason.Detail()
	}
	if sig.Term != nil {
		data, err := c.Marshal(sig.Term)
		if err != nil {
			return Envelope{}, fmt.Errorf("encoding %T for %v: %w", sig.Term, to, err)
		}
		env.Term = data
		env.TermType = termName(sig.Term)
	}
	return env, nil
}

// Signal decodes the destination and signal carried by [env].
func (env Envelope) Signal(c codec.Codec) (erl.PID, erl.RemoteSignal, error) {
	sig := erl.RemoteSignal{
		Kind: erl.SignalKind(env.Kind),
		From: env.From.PID(),
		Ref:  erl.Ref(env.Ref),
		Link: env.Link,
	}
	if env.Reason != "" {
		sig.Reason = exitreason.FromKind(env.Reason, env.Detail)
	}
	if len(env.Term) > 0 {
		term, err := decodeTerm(c, env.TermType, env.Term)
		if err != nil {
			return erl.UndefinedPID, sig, err
		}
		sig.Term = term
	}
	return env.To.PID(), sig, nil
}

func decodeTerm(c codec.Codec, typeName string, data []byte) (any, error) {
	if t, ok := termType(typeName); ok {
		ptr := reflect.New(t)
		if err := c.Unmarshal(data, ptr.Interface()); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", typeName, err)
		}
		return ptr.Elem().Interface(), nil
	}
	var term any
	if err := c.Unmarshal(data, &term); err != nil {
		return nil, fmt.Errorf("decoding term: %w", err)
	}
	return term, nil
}

func encodeFrame(c codec.Codec, env Envelope) ([]byte, error) {
	return c.Marshal(env)
}

func decodeFrame(c codec.Codec, frame []byte) (Envelope, error) {
	var env Envelope
	err := c.Unmarshal(frame, &env)
	return env, err
}
