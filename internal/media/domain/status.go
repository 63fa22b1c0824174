package domain

import "fmt"

type Status string

const (
	Queued     Status = "queued"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
)

func CanTransition(from, to Status) bool {
	switch from {
	case Queued:
		return to == Processing || to == Failed
	case Processing:
		return to == Completed || to == Failed
	case Completed:
		return false
	case Failed:
		return false
	default:
		return false
	}
}

// ValidateTransition treats a same-state write as a no-op so a redelivered
// message can re-enter processing without tripping the state machine.
func ValidateTransition(from, to Status) error {
	if from == to {
		return nil
	}
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// IsTerminal reports whether no further transitions can happen from s.
func IsTerminal(s Status) bool {
	return s == Completed || s == Failed
}

// Sources returns the statuses from which to is reachable, including to itself.
func Sources(to Status) []Status {
	out := []Status{to}
	for _, from := range []Status{Queued, Processing, Completed, Failed} {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}
