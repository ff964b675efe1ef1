package attendance

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core"
	"github.com/campusqr/asistencia/core/geo"
)

var (
	// errors
	ErrMissingDependency = errors.New("missing orchestrator dependency")
)

type Deps struct {
	Geofence  GeofenceChecker
	Registrar Registrar
	Notifier  Notifier
	Validate  *validator.Validate
	Logger    core.Logger
	Metrics   *Metrics // optional
}

// Orchestrator drives check-in attempts for one subject, from a decoded QR payload to one user message.
// At most one attempt is in flight at a time; decode events received meanwhile are dropped.
type Orchestrator struct {
	subjectID int
	deps      Deps

	mu       sync.Mutex
	state    State
	done     chan struct{}
	doneOnce sync.Once
}

// NewOrchestrator requires Geofence, Registrar & Notifier; Logger and Validate are defaulted.
func NewOrchestrator(subjectID int, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Geofence == nil:
		return nil, errors.Wrap(ErrMissingDependency, "geofence")
	case deps.Registrar == nil:
		return nil, errors.Wrap(ErrMissingDependency, "registrar")
	case deps.Notifier == nil:
		return nil, errors.Wrap(ErrMissingDependency, "notifier")
	}
	if deps.Logger == nil {
		deps.Logger = core.NewNopLogger()
	}
	if deps.Validate == nil {
		deps.Validate, _ = core.NewValidator()
	}
	return &Orchestrator{
		subjectID: subjectID,
		deps:      deps,
		done:      make(chan struct{}),
	}, nil
}

// State returns a snapshot of the current state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Done is closed once a terminal outcome has been notified; the host should leave the flow then.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

// fire applies ev to the current state. It reports false when ev is not valid in the current state.
func (o *Orchestrator) fire(ev event) bool {
	o.mu.Lock()
	next, ok := o.state.apply(ev)
	if ok {
		o.state = next
	}
	o.mu.Unlock()

	if ok && next.Phase == PhaseDone {
		o.doneOnce.Do(func() { close(o.done) })
	}
	return ok
}

// HandleScan processes one decoded QR payload. It returns false when the event was dropped
// because an attempt is in flight or the flow is done. Every accepted event produces exactly one message.
func (o *Orchestrator) HandleScan(ctx context.Context, payload string) bool {
	if !o.fire(event{kind: scanDetected}) {
		o.deps.Metrics.scan(false)
		return false
	}
	o.deps.Metrics.scan(true)

	reqID := uuid.New().String()
	ctx = core.WithRequestID(ctx, reqID)

	res, err := o.deps.Geofence.Check(ctx)
	if err == nil && !res.Inside {
		err = &OutsideGeofenceError{Distance: res.Distance}
	}
	o.deps.Metrics.geofenceResult(geofenceLabel(err))
	if err != nil {
		o.deps.Logger.Warn(fmt.Sprintf("check-in %s: geofence gate failed: %v", reqID, err))
		o.deps.Notifier.Notify(geofenceMessage(err))
		o.fire(event{kind: geofenceResolved, err: err})
		return true
	}
	o.fire(event{kind: geofenceResolved})

	outcome, err := o.submit(ctx, reqID, NewSubmission(o.subjectID, payload, res.Point))
	o.deps.Metrics.outcome(outcome)
	o.deps.Notifier.Notify(outcome.Message())
	o.fire(event{kind: submissionResolved, outcome: outcome, err: err})
	return true
}

func (o *Orchestrator) submit(ctx context.Context, reqID string, sub Submission) (Outcome, error) {
	if err := sub.Validate(o.deps.Validate); err != nil {
		o.deps.Logger.Warn(fmt.Sprintf("check-in %s: invalid submission", reqID), err)
		return Outcome{Kind: OtherError, Detail: "Código QR inválido. Intenta escanear nuevamente."}, errors.Wrap(err, "validating submission")
	}

	o.deps.Logger.Debug(
		fmt.Sprintf("check-in %s: submitting", reqID),
		map[string]interface{}{
			"materia_id": sub.SubjectID,
			"qr_code":    sub.QRPayload,
			"latitude":   sub.Latitude,
			"longitude":  sub.Longitude,
		},
	)
	receipt, err := o.deps.Registrar.RegisterQR(ctx, sub)
	outcome := Classify(receipt, err)
	if err != nil {
		err = errors.Wrap(err, "registering attendance")
		if outcome.Retryable() {
			o.deps.Logger.Error(fmt.Sprintf("check-in %s: registration failed", reqID), err)
		} else {
			o.deps.Logger.Info(fmt.Sprintf("check-in %s: registration rejected: %s", reqID, outcome.Kind), err)
		}
		return outcome, err
	}
	o.deps.Logger.Info(fmt.Sprintf("check-in %s: registered for %q (%s)", reqID, receipt.SubjectName, receipt.Status))
	return outcome, nil
}

func geofenceLabel(err error) string {
	switch {
	case err == nil:
		return "inside"
	case errors.Is(err, ErrOutsideGeofence):
		return "outside"
	case errors.Is(err, geo.ErrPermissionDenied):
		return "permission_denied"
	default:
		return "location_unavailable"
	}
}
