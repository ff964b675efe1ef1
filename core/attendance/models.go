// Package attendance drives one QR check-in: busy gate, geofence gate,
// registration call and the classification of its result.
package attendance

import (
	"context"

	"github.com/go-playground/validator/v10"

	"github.com/campusqr/asistencia/core"
	"github.com/campusqr/asistencia/core/geo"
)

// Submission is the body of one attendance registration attempt.
// It is never reused: every attempt follows a fresh geofence check.
type Submission struct {
	SubjectID int     `json:"materia_id" validate:"gt=0"`
	QRPayload string  `json:"qr_code" validate:"required,notblank"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// NewSubmission builds a Submission with coordinates rounded to 6 decimals.
func NewSubmission(subjectID int, payload string, at geo.Point) Submission {
	at = at.Rounded()
	return Submission{
		SubjectID: subjectID,
		QRPayload: core.CleanString(payload),
		Latitude:  at.Latitude,
		Longitude: at.Longitude,
	}
}

func (s Submission) Validate(validate *validator.Validate) error { return validate.Struct(s) }

// Receipt is the registration success body.
type Receipt struct {
	SubjectName string `json:"materia_nombre"`
	Status      string `json:"estado"`
	Detail      string `json:"detail,omitempty"`
}

type (
	// Registrar submits a registration to the attendance service.
	// Rejections must be returned as a StatusError.
	Registrar interface {
		RegisterQR(ctx context.Context, sub Submission) (Receipt, error)
	}

	// StatusError is a rejection carrying the HTTP status and the server provided detail (may be empty).
	StatusError interface {
		error
		HTTPStatus() int
		Detail() string
	}

	// GeofenceChecker is satisfied by *geo.Validator.
	GeofenceChecker interface {
		Check(ctx context.Context) (geo.Result, error)
	}

	// Notifier shows one message to the user.
	Notifier interface {
		Notify(msg Message)
	}
)

// Message is one user visible message.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}
