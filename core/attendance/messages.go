package attendance

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core/geo"
)

var (
	msgPermissionDenied = Message{
		Title: "Error",
		Body:  "Permiso de ubicación denegado. No puedes registrar asistencia sin esto.",
	}
	msgOutsideGeofence = Message{
		Title: "Restricción Geográfica",
		Body:  "No estás dentro de la institución. Acércate al campus para registrar asistencia.",
	}
	msgLocationUnavailable = Message{
		Title: "Error",
		Body:  "No se pudo verificar tu ubicación. Intenta de nuevo.",
	}
	msgAlreadyRegistered = Message{
		Title: "Asistencia ya registrada",
		Body:  "Ya registraste tu asistencia para esta sesión.\nNo es necesario volver a escanear el código.",
	}
	msgNoActiveSession = Message{
		Title: "Sin sesión activa",
		Body:  "No hay una sesión activa para esta materia en este momento.\nVerifica el horario o consulta con tu docente.",
	}

	forbiddenFallback  = "No tienes autorización para registrar asistencia en esta materia."
	otherErrorFallback = "Ocurrió un error al registrar la asistencia. Intenta nuevamente."
)

// Message returns the user facing message of o.
func (o Outcome) Message() Message {
	switch o.Kind {
	case Registered:
		body := "Asistencia registrada correctamente."
		if o.SubjectName != "" {
			body = fmt.Sprintf("Asistencia para %q registrada correctamente.", o.SubjectName)
		}
		if o.Status != "" {
			body += "\nEstado: " + o.Status
		}
		return Message{Title: "Asistencia registrada", Body: body}
	case AlreadyRegistered:
		return msgAlreadyRegistered
	case NoActiveSession:
		return msgNoActiveSession
	case Forbidden:
		return Message{Title: "Acceso denegado", Body: orDefault(o.Detail, forbiddenFallback)}
	default:
		return Message{Title: "Error", Body: orDefault(o.Detail, otherErrorFallback)}
	}
}

// geofenceMessage returns the message of a failed geofence gate.
func geofenceMessage(err error) Message {
	switch {
	case errors.Is(err, geo.ErrPermissionDenied):
		return msgPermissionDenied
	case errors.Is(err, ErrOutsideGeofence):
		return msgOutsideGeofence
	default:
		return msgLocationUnavailable
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
