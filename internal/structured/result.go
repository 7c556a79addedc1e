package structured

import (
	"encoding/json"
	"errors"
	"fmt"
)

// State is a step of the per-output validation lifecycle:
//
//	received -> extracting -> valid | invalid_retryable -> retried -> valid | invalid_terminal
type State string

const (
	StateReceived         State = "received"
	StateExtracting       State = "extracting"
	StateValid            State = "valid"
	StateInvalidRetryable State = "invalid_retryable"
	StateRetried          State = "retried"
	StateInvalidTerminal  State = "invalid_terminal"
)

var transitions = map[State][]State{
	StateReceived:         {StateExtracting},
	StateExtracting:       {StateValid, StateInvalidRetryable, StateInvalidTerminal},
	StateInvalidRetryable: {StateRetried, StateInvalidTerminal},
	StateRetried:          {StateExtracting},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned by Advance for a move the lifecycle forbids.
var ErrInvalidTransition = errors.New("invalid state transition")

// Advance validates and performs a transition.
func Advance(from, to State) (State, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

// Result is the immutable record of one validated model output. Valid results
// carry a payload and no errors; invalid results carry errors and no payload.
type Result struct {
	Valid         bool            `json:"valid"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	Errors        []string        `json:"errors,omitempty"`
	Raw           string          `json:"raw"`
	Schema        string          `json:"schema"`
	SchemaVersion string          `json:"schema_version"`
	Attempt       int             `json:"attempt"`
	Terminal      bool            `json:"terminal"`
	State         State           `json:"state"`
}

// Decode unmarshals the payload of a valid result.
func (r Result) Decode(target any) error {
	if !r.Valid {
		return errors.New("decode invalid result")
	}
	return json.Unmarshal(r.Payload, target)
}

func (r Result) withAttempt(attempt int, terminal bool) Result {
	r.Attempt = attempt
	switch {
	case r.Valid:
		r.State = StateValid
		r.Terminal = false
	case terminal:
		r.State = StateInvalidTerminal
		r.Terminal = true
	default:
		r.State = StateInvalidRetryable
		r.Terminal = false
	}
	if len(r.Errors) > 0 {
		r.Errors = append([]string(nil), r.Errors...)
	}
	return r
}
