package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core/attendance"
)

var _ attendance.Registrar = (*Client)(nil)

// RegisterQR submits a QR attendance registration.
// Rejections are returned as *Error, unwrapped.
// A 2xx response is a registration even when its body cannot be decoded.
func (c *Client) RegisterQR(ctx context.Context, sub attendance.Submission) (attendance.Receipt, error) {
	var receipt attendance.Receipt
	if err := c.do(ctx, http.MethodPost, "registros-asistencia/registrar-qr/", nil, sub, &receipt); err != nil {
		var de *decodeError
		if errors.As(err, &de) {
			c.logger.Warn("registration accepted with an unreadable body", err)
			return attendance.Receipt{}, nil
		}
		return attendance.Receipt{}, err
	}
	return receipt, nil
}

// MySubjects lists the subjects of the logged in student.
func (c *Client) MySubjects(ctx context.Context) ([]Subject, error) {
	var subjects []Subject
	if err := c.do(ctx, http.MethodGet, "mis-materias-estudiante/", nil, nil, &subjects); err != nil {
		return nil, errors.Wrap(err, "listing subjects")
	}
	return subjects, nil
}

// Subject returns the student's subject with the given subject-semester id.
func (c *Client) Subject(ctx context.Context, id int) (Subject, error) {
	subjects, err := c.MySubjects(ctx)
	if err != nil {
		return Subject{}, err
	}
	for _, s := range subjects {
		if s.ID == id {
			return s, nil
		}
	}
	return Subject{}, &Error{StatusCode: http.StatusNotFound, Message: "materia no encontrada"}
}

// AttendanceSummary returns the per-subject attendance totals of the logged in student.
func (c *Client) AttendanceSummary(ctx context.Context) ([]AttendanceSummary, error) {
	var summary []AttendanceSummary
	if err := c.do(ctx, http.MethodGet, "estudiantes/resumen-asistencias/", nil, nil, &summary); err != nil {
		return nil, errors.Wrap(err, "fetching attendance summary")
	}
	return summary, nil
}

// AttendanceHistory returns the attendance records of the logged in student for one subject.
func (c *Client) AttendanceHistory(ctx context.Context, subjectID int) ([]AttendanceRecord, error) {
	query := url.Values{"materia": {strconv.Itoa(subjectID)}}
	var records []AttendanceRecord
	if err := c.do(ctx, http.MethodGet, "estudiantes/historial-asistencias/", query, nil, &records); err != nil {
		return nil, errors.Wrap(err, "fetching attendance history")
	}
	return records, nil
}
