package supervisor

import (
	"errors"
	"fmt"

	"github.com/uberbrodt/otp-go/erl"
)

type ChildSpecOpt func(cs ChildSpec) ChildSpec

func SetRestart(restart Restart) ChildSpecOpt {
	return func(cs ChildSpec) ChildSpec {
		cs.Restart = restart
		return cs
	}
}

func SetShutdown(shutdown ShutdownOpt) ChildSpecOpt {
	return func(cs ChildSpec) ChildSpec {
		cs.Shutdown = shutdown
		return cs
	}
}

func SetChildType(t ChildType) ChildSpecOpt {
	return func(cs ChildSpec) ChildSpec {
		cs.Type = t
		return cs
	}
}

// StartFunSpec starts a child and links it to [sup]. Returning
// [exitreason.Ignore] leaves the child undefined without failing the supervisor.
type StartFunSpec func(sup erl.PID) (erl.PID, error)

// TemplateStartFun starts one instance of a [SimpleOneForOne] template with the
// args given to [StartInstance].
type TemplateStartFun func(sup erl.PID, args any) (erl.PID, error)

func NewChildSpec(id string, start StartFunSpec, opts ...ChildSpecOpt) ChildSpec {
	cs := ChildSpec{
		ID:       id,
		Start:    start,
		Restart:  Permanent,
		Shutdown: ShutdownOpt{Timeout: 5_000},
		Type:     WorkerChild,
	}

	for _, opt := range opts {
		cs = opt(cs)
	}
	return cs
}

// NewTemplateSpec builds the single spec of a [SimpleOneForOne] supervisor.
func NewTemplateSpec(id string, start TemplateStartFun, opts ...ChildSpecOpt) ChildSpec {
	cs := NewChildSpec(id, nil, opts...)
	cs.template = start
	return cs
}

type ChildSpec struct {
	// identifies the child within its supervisor
	ID string
	// must link the new process to the supervisor
	Start    StartFunSpec
	Restart  Restart
	Shutdown ShutdownOpt
	Type     ChildType

	template TemplateStartFun
	// instance args for template children
	args   any
	pid    erl.PID
	status ChildStatus
}

func (cs ChildSpec) validate(strategy Strategy) error {
	if cs.ID == "" {
		return errors.New("child spec has no ID")
	}
	if strategy == SimpleOneForOne {
		if cs.template == nil {
			return fmt.Errorf("child %q: simple_one_for_one needs a template spec, see NewTemplateSpec", cs.ID)
		}
		return nil
	}
	if cs.Start == nil {
		return fmt.Errorf("child %q has no start function", cs.ID)
	}
	return nil
}

func (cs ChildSpec) start(sup erl.PID) (erl.PID, error) {
	if cs.template != nil {
		return cs.template(sup, cs.args)
	}
	return cs.Start(sup)
}

func (cs ChildSpec) info() ChildInfo {
	ci := ChildInfo{ID: cs.ID, Type: cs.Type, Status: cs.status, Restart: cs.Restart}
	if cs.status == ChildRunning {
		ci.PID = cs.pid
	}
	return ci
}
