package domain

import "fmt"

// AttemptState is a step of the metered generation state machine.
type AttemptState string

const (
	StateRequested    AttemptState = "requested"
	StateReserved     AttemptState = "reserved"
	StateRejected     AttemptState = "rejected"
	StateDelivered    AttemptState = "delivered"
	StateCompensating AttemptState = "compensating"
	StateRefunded     AttemptState = "refunded"
	// StateRefundFailed is terminal: the credit stays consumed and the failure is only logged.
	StateRefundFailed AttemptState = "refund_failed"
)

var attemptTransitions = map[AttemptState][]AttemptState{
	StateRequested:    {StateReserved, StateRejected},
	StateReserved:     {StateDelivered, StateCompensating},
	StateCompensating: {StateRefunded, StateRefundFailed},
}

// Attempt tracks a single metered generation request. It is never persisted.
type Attempt struct {
	ID            string
	RequestedBy   string
	State         AttemptState
	ChargedCredit bool
}

func NewAttempt(id, email string) *Attempt {
	return &Attempt{ID: id, RequestedBy: email, State: StateRequested}
}

// Advance moves the attempt to next, rejecting transitions the state machine does not allow.
func (a *Attempt) Advance(next AttemptState) error {
	for _, allowed := range attemptTransitions[a.State] {
		if allowed == next {
			a.State = next
			switch next {
			case StateReserved:
				a.ChargedCredit = true
			case StateRefunded:
				a.ChargedCredit = false
			}
			return nil
		}
	}
	return fmt.Errorf("attempt %s: illegal transition %s -> %s", a.ID, a.State, next)
}

// Terminal reports whether no further transition is possible.
func (a *Attempt) Terminal() bool {
	return len(attemptTransitions[a.State]) == 0
}
