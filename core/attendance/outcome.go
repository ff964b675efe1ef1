package attendance

import (
	"net/http"

	"github.com/pkg/errors"
)

type OutcomeKind int

const (
	Registered OutcomeKind = iota + 1
	AlreadyRegistered
	NoActiveSession
	Forbidden
	OtherError
)

func (k OutcomeKind) String() string {
	switch k {
	case Registered:
		return "registered"
	case AlreadyRegistered:
		return "already_registered"
	case NoActiveSession:
		return "no_active_session"
	case Forbidden:
		return "forbidden"
	case OtherError:
		return "other_error"
	default:
		return "unknown"
	}
}

// Outcome is the business meaning of a registration response.
// SubjectName & Status are set for Registered; Detail for Forbidden & OtherError.
type Outcome struct {
	Kind        OutcomeKind
	SubjectName string
	Status      string
	Detail      string
}

// Retryable reports whether the user may scan again without leaving the flow.
func (o Outcome) Retryable() bool { return o.Kind == OtherError }

// Classify maps the result of Registrar.RegisterQR to an Outcome.
func Classify(receipt Receipt, err error) Outcome {
	if err == nil {
		return Outcome{Kind: Registered, SubjectName: receipt.SubjectName, Status: receipt.Status}
	}

	var se StatusError
	if !errors.As(err, &se) {
		return Outcome{Kind: OtherError}
	}
	switch se.HTTPStatus() {
	case http.StatusConflict:
		return Outcome{Kind: AlreadyRegistered}
	case http.StatusNotFound:
		return Outcome{Kind: NoActiveSession}
	case http.StatusForbidden:
		return Outcome{Kind: Forbidden, Detail: se.Detail()}
	default:
		return Outcome{Kind: OtherError, Detail: se.Detail()}
	}
}
