// Package fault classifies the ways a voice turn can fail and tells the turn
// controller how each failure is handled.
package fault

import (
	"context"
	"errors"
	"fmt"
)

// Kind identifies a failure class.
type Kind int

const (
	Unknown Kind = iota
	DeviceUnavailable
	TranscriptionFailed
	DialogueUnavailable
	DialogueFailed
	SynthesisFailed
	Interrupted
)

func (k Kind) String() string {
	switch k {
	case DeviceUnavailable:
		return "device_unavailable"
	case TranscriptionFailed:
		return "transcription_failed"
	case DialogueUnavailable:
		return "dialogue_unavailable"
	case DialogueFailed:
		return "dialogue_failed"
	case SynthesisFailed:
		return "synthesis_failed"
	case Interrupted:
		return "interrupted"
	default:
		return "unknown"
	}
}

// Severity is what the controller does about a failure.
type Severity int

const (
	// Fatal terminates the run loop with the error.
	Fatal Severity = iota
	// TurnAbandoned logs the failure and returns to Idle.
	TurnAbandoned
	// Recovered means the stage substituted a safe result and the turn goes on.
	Recovered
	// Shutdown is a graceful stop.
	Shutdown
)

// Severity reports how failures of kind k are handled.
func (k Kind) Severity() Severity {
	switch k {
	case TranscriptionFailed, DialogueFailed, SynthesisFailed:
		return TurnAbandoned
	case DialogueUnavailable:
		return Recovered
	case Interrupted:
		return Shutdown
	default:
		return Fatal
	}
}

// Error is a classified failure of one pipeline operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err as a failure of kind k in operation op. Context cancellation
// is always classified as Interrupted regardless of k.
func New(k Kind, op string, err error) *Error {
	if errors.Is(err, context.Canceled) {
		k = Interrupted
	}
	return &Error{Kind: k, Op: op, Err: err}
}

// KindOf extracts the failure class of err. Bare context cancellation maps to
// Interrupted; any other unclassified error is Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if errors.Is(err, context.Canceled) {
		return Interrupted
	}
	return Unknown
}

// Is reports whether err is classified as k.
func Is(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
