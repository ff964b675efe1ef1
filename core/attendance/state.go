package attendance

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// errors
	ErrOutsideGeofence = errors.New("outside geofence")
)

// OutsideGeofenceError reports a valid fix beyond the fence radius. It matches ErrOutsideGeofence.
type OutsideGeofenceError struct {
	Distance float64
}

func (e *OutsideGeofenceError) Error() string {
	return fmt.Sprintf("%v: %.2f meters from center", ErrOutsideGeofence, e.Distance)
}

func (e *OutsideGeofenceError) Is(target error) bool { return target == ErrOutsideGeofence }

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAwaitingGeofence
	PhaseSubmitting
	PhaseDone
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAwaitingGeofence:
		return "awaiting_geofence"
	case PhaseSubmitting:
		return "submitting"
	case PhaseDone:
		return "done"
	case PhaseError:
		return "error"
	default:
		return "unknown"
	}
}

// State of an Orchestrator.
// Outcome is set in PhaseDone, and in PhaseError after a retryable registration failure.
// Reason is set in PhaseError.
type State struct {
	Phase   Phase
	Outcome Outcome
	Reason  error
}

// Busy reports whether a scan is being processed.
func (s State) Busy() bool {
	return s.Phase == PhaseAwaitingGeofence || s.Phase == PhaseSubmitting
}

type eventKind int

const (
	scanDetected eventKind = iota
	geofenceResolved
	submissionResolved
)

type event struct {
	kind    eventKind
	err     error   // geofenceResolved: gate failure; submissionResolved: registration error
	outcome Outcome // submissionResolved
}

// apply returns the state reached from s on ev and whether ev was accepted.
// Idle & Error accept new scans; Done accepts nothing.
func (s State) apply(ev event) (State, bool) {
	switch ev.kind {
	case scanDetected:
		if s.Phase == PhaseIdle || s.Phase == PhaseError {
			return State{Phase: PhaseAwaitingGeofence}, true
		}
	case geofenceResolved:
		if s.Phase == PhaseAwaitingGeofence {
			if ev.err != nil {
				return State{Phase: PhaseError, Reason: ev.err}, true
			}
			return State{Phase: PhaseSubmitting}, true
		}
	case submissionResolved:
		if s.Phase == PhaseSubmitting {
			if ev.outcome.Retryable() {
				reason := ev.err
				if reason == nil {
					reason = errors.New(ev.outcome.Kind.String())
				}
				return State{Phase: PhaseError, Outcome: ev.outcome, Reason: reason}, true
			}
			return State{Phase: PhaseDone, Outcome: ev.outcome}, true
		}
	}
	return s, false
}
