package erl

import (
	"time"

	"github.com/uberbrodt/otp-go/erl/exitreason"
)

// ProcessInfo is a snapshot of a process, see [Info].
type ProcessInfo struct {
	PID    PID
	Status string
	// processes linked to this one
	Links []PID
	// processes this one monitors, by monitor ref
	Monitors map[Ref]PID
	// processes monitoring this one, by monitor ref
	MonitoredBy map[Ref]PID
	// active reply aliases
	Aliases      []Ref
	MessageQueue int
	TrapExit     bool
	// names in the default registry
	Names []Name
}

var infoTimeout = 5 * time.Second

// Info returns a snapshot of [pid]. The snapshot is taken by the process's own
// signal loop, so it reflects every signal received before the request.
// Returns [exitreason.NoProc] if [pid] is not a live local process.
func Info(pid PID) (ProcessInfo, error) {
	if pid.p == nil {
		return ProcessInfo{}, exitreason.NoProc
	}
	reply := make(chan ProcessInfo, 1)
	if !pid.p.send(infoSignal{reply: reply}) {
		return ProcessInfo{}, exitreason.NoProc
	}

	select {
	case info, ok := <-reply:
		if !ok {
			return ProcessInfo{}, exitreason.NoProc
		}
		info.Names = defaultRegistry.namesOf(pid)
		return info, nil
	case <-time.After(infoTimeout):
		return ProcessInfo{}, exitreason.Timeout
	}
}

// runs on the signal loop
func (p *Process) info() ProcessInfo {
	info := ProcessInfo{
		PID:          p.self(),
		Links:        p.links.ToSlice(),
		MonitoredBy:  make(map[Ref]PID, len(p.monitors)),
		MessageQueue: p.mailbox.Size(),
		TrapExit:     p.trapExits.Load(),
	}
	for ref, observer := range p.monitors {
		info.MonitoredBy[ref] = observer
	}

	p.mx.Lock()
	defer p.mx.Unlock()
	info.Status = string(p._status)
	info.Monitors = make(map[Ref]PID, len(p.monitoring))
	for ref, target := range p.monitoring {
		info.Monitors[ref] = target
	}
	for ref := range p.aliases {
		info.Aliases = append(info.Aliases, ref)
	}
	return info
}
