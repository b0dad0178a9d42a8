// Package rotation decides which worker wallet trades next and when a
// session has to stop. It performs no I/O.
package rotation

// Outcome is the result kind of one trade attempt
type Outcome int

const (
	Success Outcome = iota
	InsufficientBalance
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case InsufficientBalance:
		return "insufficient_balance"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Action tells the driver what to do with the session after an attempt
type Action int

const (
	Continue Action = iota
	StopAllDepleted
	StopTooManyFailures
)

func (a Action) String() string {
	switch a {
	case Continue:
		return "continue"
	case StopAllDepleted:
		return "stop_all_depleted"
	case StopTooManyFailures:
		return "stop_too_many_failures"
	}
	return "unknown"
}

// IsStop reports whether the action ends the session
func (a Action) IsStop() bool {
	return a == StopAllDepleted || a == StopTooManyFailures
}

// MaxConsecutiveFailures is the failure count that terminates a session
const MaxConsecutiveFailures = 5

// State is the rotation cursor and counters carried by a session
type State struct {
	Index       int
	WalletCount int
	Failures    int
	Skips       int
}

// Decision is the state to persist after an attempt. On a stop action
// Next keeps the current index.
type Decision struct {
	Next     int
	Failures int
	Skips    int
	Action   Action
}

// Decide applies one outcome to the rotation state.
// A full loop of skips means the pool is depleted.
func Decide(s State, outcome Outcome) Decision {
	count := s.WalletCount
	if count <= 0 {
		count = 1
	}
	index := normalize(s.Index, count)

	switch outcome {
	case Success:
		return Decision{Next: advance(index, count), Action: Continue}

	case InsufficientBalance:
		skips := s.Skips + 1
		if skips >= count {
			return Decision{Next: index, Skips: skips, Action: StopAllDepleted}
		}
		return Decision{Next: advance(index, count), Skips: skips, Action: Continue}

	default:
		failures := s.Failures + 1
		if failures >= MaxConsecutiveFailures {
			return Decision{Next: index, Failures: failures, Action: StopTooManyFailures}
		}
		return Decision{Next: advance(index, count), Failures: failures, Action: Continue}
	}
}

func advance(index, count int) int {
	return (index + 1) % count
}

func normalize(index, count int) int {
	index %= count
	if index < 0 {
		index += count
	}
	return index
}
