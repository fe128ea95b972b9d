package supervisor

import (
	"fmt"
	"time"

	"github.com/uberbrodt/fungo/fun"
	"golang.org/x/exp/slices"

	"github.com/uberbrodt/otp-go/chronos"
	"github.com/uberbrodt/otp-go/erl"
)

// children in start order
type childSpecs struct {
	specs []ChildSpec
}

func (cs *childSpecs) get(childID string) (int, ChildSpec, error) {
	for idx, child := range cs.specs {
		if child.ID == childID {
			return idx, child, nil
		}
	}
	return 0, ChildSpec{}, fmt.Errorf("%w: %s", ErrNotFound, childID)
}

func (cs *childSpecs) findByPID(pid erl.PID) (int, ChildSpec, bool) {
	for idx, child := range cs.specs {
		if child.status == ChildRunning && child.pid.Equals(pid) {
			return idx, child, true
		}
	}
	return 0, ChildSpec{}, false
}

// instances of a SimpleOneForOne supervisor share an ID, so they are updated
// by position
func (cs *childSpecs) set(idx int, child ChildSpec) {
	cs.specs[idx] = child
}

// never nil, fun.Reduce rejects nil lists
func (cs *childSpecs) list() []ChildSpec {
	if cs.specs == nil {
		return []ChildSpec{}
	}
	return cs.specs
}

func (cs *childSpecs) len() int {
	return len(cs.specs)
}

func (cs *childSpecs) add(child ChildSpec) {
	cs.specs = append(cs.specs, child)
}

func (cs *childSpecs) delete(childID string) {
	cs.specs = slices.DeleteFunc(cs.specs, func(x ChildSpec) bool {
		return x.ID == childID
	})
}

func (cs *childSpecs) deleteAt(idx int) {
	cs.specs = slices.Delete(cs.specs, idx, idx+1)
}

func (cs *childSpecs) checkDups() error {
	seen := make(map[string]struct{}, len(cs.specs))
	for _, spec := range cs.specs {
		if _, ok := seen[spec.ID]; ok {
			return fmt.Errorf("duplicate childspec id found: %s", spec.ID)
		}
		seen[spec.ID] = struct{}{}
	}
	return nil
}

func newChildSpecs(specs []ChildSpec) (*childSpecs, error) {
	cs := &childSpecs{specs: make([]ChildSpec, len(specs))}
	for idx, spec := range specs {
		spec.status = ChildPending
		spec.pid = erl.UndefinedPID
		cs.specs[idx] = spec
	}

	if err := cs.checkDups(); err != nil {
		return cs, err
	}
	return cs, nil
}

type supervisorState struct {
	children *childSpecs
	flags    SupFlagsS
	// only set for SimpleOneForOne
	template *ChildSpec
	// when each restart inside the current period happened, oldest first
	restarts []time.Time
}

// addRestart records a restart and reports whether the supervisor is still
// within its intensity: at most Intensity restarts inside the last Period seconds.
func (s supervisorState) addRestart() (supervisorState, bool) {
	now := chronos.Now("")
	windowStart := now.Add(-time.Duration(s.flags.Period) * time.Second)

	restarts := append(s.restarts, now)
	s.restarts = fun.Filter(restarts, func(r time.Time) bool {
		return r.After(windowStart)
	})
	return s, len(s.restarts) <= s.flags.Intensity
}

func (s supervisorState) countChildren() ChildCount {
	return fun.Reduce(s.children.list(), ChildCount{}, func(child ChildSpec, acc ChildCount) ChildCount {
		acc.Specs++
		if child.status == ChildRunning {
			acc.Active++
		}
		if child.Type == SupervisorChild {
			acc.Supervisors++
		} else {
			acc.Workers++
		}
		return acc
	})
}

func (s supervisorState) whichChildren() []ChildInfo {
	infos := make([]ChildInfo, 0, s.children.len())
	for _, child := range s.children.list() {
		infos = append(infos, child.info())
	}
	return infos
}
