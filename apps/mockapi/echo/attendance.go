package echoapi

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core"
	"github.com/campusqr/asistencia/core/geo"
)

// QRRequest is the body of a QR attendance registration.
type QRRequest struct {
	SubjectID *int     `json:"materia_id" validate:"required,gt=0"`
	QRCode    string   `json:"qr_code" validate:"required,notblank"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
}

func (r QRRequest) Validate(validate *validator.Validate) error {
	if err := validate.Struct(r); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			flds := make([]core.FieldError, 0, len(vErrs))
			for _, vErr := range vErrs {
				flds = append(flds, core.FieldError{Field: vErr.Field(), Error: vErr.Tag()})
			}
			return core.NewValidationError(errMissingQRFields, flds...)
		}
		return err
	}
	return nil
}

// QRPayload is the content of a student's QR code, base64 encoded JSON.
type QRPayload struct {
	StudentID         int    `json:"e"`
	InstitutionalCode string `json:"c"`
}

func EncodeQRPayload(p QRPayload) string {
	data, _ := json.Marshal(p)
	return base64.StdEncoding.EncodeToString(data)
}

func decodeQRPayload(s string) (QRPayload, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return QRPayload{}, errors.Wrap(err, "decoding base64")
	}
	var p QRPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return QRPayload{}, errors.Wrap(err, "decoding json")
	}
	return p, nil
}

type RegistrationResponse struct {
	Detail      string `json:"detail"`
	SubjectName string `json:"materia_nombre"`
	Status      string `json:"estado"`
}

type attendanceApi struct {
	store    *Store
	validate *validator.Validate
	metrics  *metrics
	logger   core.Logger
}

func registerAttendanceAPI(authed *echo.Group, api *attendanceApi) {
	ag := authed.Group("/registros-asistencia", studentMiddleware)
	ag.POST("/registrar-qr/", api.registerQR)
}

// Handlers

func (api *attendanceApi) registerQR(ctx echo.Context) error {
	if err := api.register(ctx); err != nil {
		ctx.Error(err)
	}
	api.metrics.registration(ctx.Response().Status)
	return nil
}

func (api *attendanceApi) register(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	var data QRRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to QRRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	at := geo.Point{Latitude: *data.Latitude, Longitude: *data.Longitude}
	if inside, dist := api.store.Fence().Contains(at); !inside {
		return echo.NewHTTPError(http.StatusForbidden,
			fmt.Sprintf("No estás dentro de la institución. Distancia: %.2f metros. Acércate al campus.", dist))
	}

	qr, err := decodeQRPayload(data.QRCode)
	if err != nil {
		api.logger.Debug("invalid qr payload", err)
		return errInvalidQRFormat
	}
	if qr.StudentID != acc.StudentID || qr.InstitutionalCode != acc.InstitutionalCode {
		return errQRMismatch
	}

	offering, ok := api.store.offering(*data.SubjectID, acc.SemesterID)
	if !ok {
		return errSubjectNotAllowed
	}

	now := NowFunc()
	if day, ok := api.store.specialDay(now.Format(dateLayout)); ok {
		return echo.NewHTTPError(http.StatusForbidden, echo.Map{
			"detail":            fmt.Sprintf("No se puede registrar asistencia en día especial: %s - %s", day.Kind, day.Description),
			"tipo_dia_especial": day.Kind,
			"descripcion":       day.Description,
		})
	}

	ses, ok := api.store.activeSession(offering.ID, now)
	if !ok {
		return errNoActiveSession
	}

	rec, err := api.store.addRecord(record{
		StudentID:    acc.StudentID,
		SessionID:    ses.ID,
		Status:       attendanceStatus(ses, now),
		RegisteredAt: now,
		Point:        at,
	})
	if err != nil {
		if errors.Is(err, errDuplicateRecord) {
			return errAlreadyRegistered
		}
		return errors.Wrap(err, "adding record")
	}
	api.logger.Info(fmt.Sprintf("attendance registered: student=%d session=%d status=%s", rec.StudentID, rec.SessionID, rec.Status))

	return ctx.JSON(http.StatusCreated, RegistrationResponse{
		Detail:      "Asistencia registrada con éxito.",
		SubjectName: offering.Subject,
		Status:      statusDisplay[rec.Status],
	})
}
