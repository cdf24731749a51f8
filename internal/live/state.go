package live

import "sync/atomic"

// RunnerState is the lifecycle of a symbol runner:
// STOPPED -> STARTING -> RUNNING -> STOPPING -> STOPPED
type RunnerState int32

const (
	StateStopped RunnerState = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s RunnerState) String() string {
	switch s {
	case StateStopped:
		return "STOPPED"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "UNKNOWN"
	}
}

type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() RunnerState {
	return RunnerState(b.v.Load())
}

func (b *stateBox) store(s RunnerState) {
	b.v.Store(int32(s))
}

func (b *stateBox) transition(from, to RunnerState) bool {
	return b.v.CompareAndSwap(int32(from), int32(to))
}
