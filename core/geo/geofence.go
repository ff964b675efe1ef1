package geo

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core"
)

var (
	// errors
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrLocationUnavailable = errors.New("location unavailable")
)

type PermissionStatus int

const (
	PermissionUndetermined PermissionStatus = iota
	PermissionGranted
	PermissionDenied
)

func (s PermissionStatus) String() string {
	switch s {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "undetermined"
	}
}

// Locator is the device location capability.
type Locator interface {
	// RequestPermission asks for foreground location permission.
	RequestPermission(ctx context.Context) (PermissionStatus, error)
	// CurrentPosition returns a high-accuracy fix.
	CurrentPosition(ctx context.Context) (Point, error)
}

// LocationError reports a failure acquiring a fix. It matches ErrLocationUnavailable.
type LocationError struct {
	Err error
}

func (e *LocationError) Error() string {
	if e.Err == nil {
		return ErrLocationUnavailable.Error()
	}
	return fmt.Sprintf("%v: %v", ErrLocationUnavailable, e.Err)
}

func (e *LocationError) Unwrap() error { return e.Err }

func (e *LocationError) Is(target error) bool { return target == ErrLocationUnavailable }

// Fence is a circular boundary around Center.
type Fence struct {
	Center       Point
	RadiusMeters float64
}

// Contains reports whether p lies within the fence (boundary inclusive) and its distance to the center.
func (f Fence) Contains(p Point) (bool, float64) {
	d := Distance(p, f.Center)
	return d <= f.RadiusMeters, d
}

// Result of one geofence evaluation.
// Point is the fix rounded to 6 decimals and is only set when Inside.
type Result struct {
	Inside   bool
	Point    Point
	Distance float64
}

// Validator decides whether the device currently stands inside a Fence.
// Every Check is a fresh evaluation: fixes are never cached and failures are never retried.
type Validator struct {
	fence   Fence
	locator Locator
	logger  core.Logger
}

func NewValidator(fence Fence, locator Locator, logger core.Logger) *Validator {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &Validator{fence: fence, locator: locator, logger: logger}
}

func (v *Validator) Fence() Fence { return v.fence }

// Check requests permission, acquires a fix and evaluates it against the fence.
// It returns ErrPermissionDenied or a *LocationError on failure.
func (v *Validator) Check(ctx context.Context) (Result, error) {
	status, err := v.locator.RequestPermission(ctx)
	if err != nil {
		return Result{}, &LocationError{Err: errors.Wrap(err, "requesting permission")}
	}
	if status != PermissionGranted {
		return Result{}, ErrPermissionDenied
	}

	fix, err := v.locator.CurrentPosition(ctx)
	if err != nil {
		return Result{}, &LocationError{Err: errors.Wrap(err, "acquiring position")}
	}

	inside, dist := v.fence.Contains(fix)
	if !inside {
		v.logger.Debug(fmt.Sprintf("outside geofence: %.2f meters", dist))
		return Result{Distance: dist}, nil
	}
	v.logger.Debug(fmt.Sprintf("inside geofence: %.2f meters", dist))
	return Result{Inside: true, Point: fix.Rounded(), Distance: dist}, nil
}
