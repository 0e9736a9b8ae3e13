package worker

// State is where a worker is in its loop.
type State int32

const (
	StateIdle State = iota
	StateDequeuing
	StateRunning
	StateRecording
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDequeuing:
		return "dequeuing"
	case StateRunning:
		return "running"
	case StateRecording:
		return "recording"
	case StateCancelled:
		return "cancelled"
	}
	return "unknown"
}
