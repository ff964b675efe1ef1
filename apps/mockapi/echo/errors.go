package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "Las credenciales de autenticación no se proveyeron.")
	errInvalidToken         = echo.NewHTTPError(http.StatusUnauthorized, "El token dado no es válido o ha expirado.")
	errBadCredentials       = echo.NewHTTPError(http.StatusUnauthorized, "Credenciales inválidas")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "Usted no tiene permiso para realizar esta acción.")
	errCSRFFailed           = echo.NewHTTPError(http.StatusForbidden, "CSRF Failed: CSRF token missing or incorrect.")
	errMissingQRFields      = errors.New("materia_id, qr_code, latitude y longitude son requeridos.")
	errInvalidQRFormat      = echo.NewHTTPError(http.StatusBadRequest, "Formato de QR inválido.")
	errQRMismatch           = echo.NewHTTPError(http.StatusForbidden, "Datos del QR no coinciden con el usuario autenticado.")
	errSubjectNotAllowed    = echo.NewHTTPError(http.StatusForbidden, "No estás autorizado para esta materia.")
	errNoActiveSession      = echo.NewHTTPError(http.StatusNotFound, "No hay una sesión activa para esta materia.")
	errAlreadyRegistered    = echo.NewHTTPError(http.StatusConflict, "Ya has registrado tu asistencia para esta sesión.")
	errSubjectRequired      = echo.NewHTTPError(http.StatusBadRequest, "Se requiere el ID de la materia")
	errSubjectNotInSemester = echo.NewHTTPError(http.StatusBadRequest, "Materia no encontrada o no pertenece al semestre.")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler rendering errors as {"detail": ...}.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				origErr = errUnauthorized
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
			if code == http.StatusUnauthorized && origErr.Internal != nil { // jwt parsing failed
				message = errInvalidToken.Message
			}
		case validator.ValidationErrors:
			vErr := core.TranslateValidationErrors(origErr, translator).(*core.ValidationError)
			code = http.StatusBadRequest
			message = echo.Map{"detail": "Datos inválidos.", "errors": fieldErrors(vErr)}
		case *core.ValidationError:
			code = http.StatusBadRequest
			if origErr.Fields != nil {
				message = echo.Map{"detail": origErr.Error(), "errors": fieldErrors(origErr)}
			} else {
				message = origErr.Error()
			}
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			fields := map[string]interface{}{"path": ctx.Path()}
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				fields["user_id"] = claims.UserID
			}
			logger.Error(msg, errors.Wrap(err, msg), fields)
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"detail": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func fieldErrors(vErr *core.ValidationError) map[string]string {
	fldErrs := make(map[string]string, len(vErr.Fields))
	for _, fErr := range vErr.Fields {
		fldErrs[fErr.Field] = fErr.Error
	}
	return fldErrs
}
