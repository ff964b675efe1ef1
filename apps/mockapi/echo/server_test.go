package echoapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testFixtures = `
geofence:
  latitude: -17.378676
  longitude: -66.147356
  radius_meters: 500
users:
  - {id: 10, email: Ana@Uni.edu, password: secret1, student_id: 1, institutional_code: A1, semester_id: 1}
  - {id: 11, email: luis@uni.edu, password: secret2, student_id: 2, institutional_code: A2, semester_id: 1}
  - {id: 20, email: carla@uni.edu, password: secret3, role: docente}
offerings:
  - {id: 4, subject_id: 2, subject: Cálculo I, semester_id: 1, semester: Primero, career: Sistemas, start: "08:00:00", end: "10:00:00", teachers: [{first_name: Carla, last_name: Rojas}]}
  - {id: 5, subject_id: 3, subject: Física, semester_id: 1, semester: Primero, career: Sistemas, start: "14:00:00", end: "16:00:00", teachers: [{first_name: Jorge, last_name: Vargas}]}
  - {id: 6, subject_id: 4, subject: Química, semester_id: 2, semester: Segundo, career: Sistemas, teachers: [{first_name: Eva, last_name: Luna}]}
  - {id: 7, subject_id: 5, subject: Taller, semester_id: 1, semester: Primero, career: Sistemas}
sessions:
  - {id: 1, offering_id: 4, date: today, start: "08:00:00", end: "10:00:00", topic: Límites}
  - {id: 2, offering_id: 4, date: "2025-04-28", start: "08:00:00", end: "10:00:00"}
  - {id: 3, offering_id: 5, date: today, start: "14:00:00", end: "16:00:00", topic: Cinemática}
special_days:
  - {date: "2025-05-01", kind: Feriado, description: Día del Trabajo}
records:
  - {student_id: 1, session_id: 2, status: RETRASO}
`

var monday = time.Date(2025, 5, 5, 8, 10, 0, 0, time.Local)

func TestMain(m *testing.M) {
	bcryptCost = bcrypt.MinCost
	os.Exit(m.Run())
}

func setNow(t *testing.T, now time.Time) {
	orig := NowFunc
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = orig })
}

type testApp struct {
	Server
}

func newTestApp(t *testing.T, configure ...func(*Options)) testApp {
	t.Helper()
	fx, err := ParseFixtures([]byte(testFixtures))
	require.NoError(t, err)
	store, err := NewStore(fx)
	require.NoError(t, err)

	opts := &Options{
		DisableReqLogs: true,
		SecretKey:      "test-secret",
		Store:          store,
	}
	for _, c := range configure {
		c(opts)
	}
	return testApp{Server: NewServer(opts)}
}

func withCSRF(opts *Options) { opts.RequireCSRF = true }

func (app testApp) registrations(code int) float64 {
	return testutil.ToFloat64(app.Server.(*server).metrics.registrations.WithLabelValues(fmt.Sprint(code)))
}

func (app testApp) do(method, path, token string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)
	return rec
}

func (app testApp) login(t *testing.T, email, pwd string) LoginResponse {
	t.Helper()
	rec := app.do(http.MethodPost, "/api/login/", "", echoMap{"email": email, "password": pwd})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

type echoMap map[string]interface{}

func qrBody(subjectID int, payload string, lat, lon float64) echoMap {
	return echoMap{"materia_id": subjectID, "qr_code": payload, "latitude": lat, "longitude": lon}
}

var anaQR = EncodeQRPayload(QRPayload{StudentID: 1, InstitutionalCode: "A1"})

func TestLogin(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name     string
		body     interface{}
		wantCode int
		wantData string
	}{
		{
			name:     "bad password",
			body:     echoMap{"email": "ana@uni.edu", "password": "nope"},
			wantCode: http.StatusUnauthorized,
			wantData: `{"detail":"Credenciales inválidas"}`,
		},
		{
			name:     "unknown user",
			body:     echoMap{"email": "who@uni.edu", "password": "secret1"},
			wantCode: http.StatusUnauthorized,
			wantData: `{"detail":"Credenciales inválidas"}`,
		},
		{
			name:     "missing password",
			body:     echoMap{"email": "ana@uni.edu"},
			wantCode: http.StatusBadRequest,
			wantData: `{"detail":"Datos inválidos.","errors":{"password":"this field is required"}}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := app.do(http.MethodPost, "/api/login/", "", tc.body)
			assert.Equal(t, tc.wantCode, rec.Code)
			assert.JSONEq(t, tc.wantData, rec.Body.String())
		})
	}

	t.Run("ok", func(t *testing.T) {
		resp := app.login(t, "  ANA@uni.edu", "secret1")
		assert.Equal(t, 10, resp.UserID)
		assert.Equal(t, "ana@uni.edu", resp.Email)
		assert.Equal(t, roleStudent, resp.Role)
		assert.NotEmpty(t, resp.Access)
		assert.NotEqual(t, resp.Access, resp.Refresh)
	})
}

func TestRegisterQR(t *testing.T) {
	setNow(t, monday)

	tests := []struct {
		name     string
		email    string
		pwd      string
		noToken  bool
		gated    bool // rejected before reaching the handler
		body     interface{}
		wantCode int
		wantData string
	}{
		{
			name:     "registered",
			body:     qrBody(4, anaQR, -17.3787, -66.1474),
			wantCode: http.StatusCreated,
			wantData: `{"detail":"Asistencia registrada con éxito.","materia_nombre":"Cálculo I","estado":"Presente"}`,
		},
		{
			name:     "missing fields",
			body:     echoMap{"materia_id": 4, "qr_code": anaQR},
			wantCode: http.StatusBadRequest,
			wantData: `{"detail":"materia_id, qr_code, latitude y longitude son requeridos.","errors":{"latitude":"required","longitude":"required"}}`,
		},
		{
			name:     "outside geofence",
			body:     qrBody(4, anaQR, -17.373276, -66.147356),
			wantCode: http.StatusForbidden,
		},
		{
			name:     "invalid qr",
			body:     qrBody(4, "%%%not-base64", -17.3787, -66.1474),
			wantCode: http.StatusBadRequest,
			wantData: `{"detail":"Formato de QR inválido."}`,
		},
		{
			name:     "qr of another student",
			body:     qrBody(4, EncodeQRPayload(QRPayload{StudentID: 2, InstitutionalCode: "A2"}), -17.3787, -66.1474),
			wantCode: http.StatusForbidden,
			wantData: `{"detail":"Datos del QR no coinciden con el usuario autenticado."}`,
		},
		{
			name:     "subject of another semester",
			body:     qrBody(6, anaQR, -17.3787, -66.1474),
			wantCode: http.StatusForbidden,
			wantData: `{"detail":"No estás autorizado para esta materia."}`,
		},
		{
			name:     "no active session",
			body:     qrBody(5, anaQR, -17.3787, -66.1474),
			wantCode: http.StatusNotFound,
			wantData: `{"detail":"No hay una sesión activa para esta materia."}`,
		},
		{
			name:     "teacher",
			email:    "carla@uni.edu",
			pwd:      "secret3",
			gated:    true,
			body:     qrBody(4, anaQR, -17.3787, -66.1474),
			wantCode: http.StatusForbidden,
			wantData: `{"detail":"Usted no tiene permiso para realizar esta acción."}`,
		},
		{
			name:     "not logged in",
			noToken:  true,
			gated:    true,
			body:     qrBody(4, anaQR, -17.3787, -66.1474),
			wantCode: http.StatusUnauthorized,
			wantData: `{"detail":"Las credenciales de autenticación no se proveyeron."}`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := newTestApp(t)
			var token string
			if !tc.noToken {
				email, pwd := "ana@uni.edu", "secret1"
				if tc.email != "" {
					email, pwd = tc.email, tc.pwd
				}
				token = app.login(t, email, pwd).Access
			}

			rec := app.do(http.MethodPost, "/api/registros-asistencia/registrar-qr/", token, tc.body)
			assert.Equal(t, tc.wantCode, rec.Code, rec.Body.String())
			if tc.wantData != "" {
				assert.JSONEq(t, tc.wantData, rec.Body.String())
			}
			wantCount := 1.0
			if tc.gated {
				wantCount = 0
			}
			assert.Equal(t, wantCount, app.registrations(tc.wantCode))
		})
	}
}

func TestRegisterQR_outsideGeofenceDetail(t *testing.T) {
	setNow(t, monday)
	app := newTestApp(t)
	token := app.login(t, "ana@uni.edu", "secret1").Access

	rec := app.do(http.MethodPost, "/api/registros-asistencia/registrar-qr/", token, qrBody(4, anaQR, -17.373276, -66.147356))
	require.Equal(t, http.StatusForbidden, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Regexp(t, `^No estás dentro de la institución\. Distancia: 6\d\d\.\d\d metros\. Acércate al campus\.$`, body["detail"])
}

func TestRegisterQR_duplicate(t *testing.T) {
	setNow(t, monday)
	app := newTestApp(t)
	token := app.login(t, "ana@uni.edu", "secret1").Access
	path := "/api/registros-asistencia/registrar-qr/"

	rec := app.do(http.MethodPost, path, token, qrBody(4, anaQR, -17.3787, -66.1474))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = app.do(http.MethodPost, path, token, qrBody(4, anaQR, -17.3787, -66.1474))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"detail":"Ya has registrado tu asistencia para esta sesión."}`, rec.Body.String())
}

func TestRegisterQR_late(t *testing.T) {
	setNow(t, monday.Add(6*time.Minute)) // 08:16
	app := newTestApp(t)
	token := app.login(t, "ana@uni.edu", "secret1").Access

	rec := app.do(http.MethodPost, "/api/registros-asistencia/registrar-qr/", token, qrBody(4, anaQR, -17.3787, -66.1474))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t,
		`{"detail":"Asistencia registrada con éxito.","materia_nombre":"Cálculo I","estado":"Presente con retraso"}`,
		rec.Body.String(),
	)
}

func TestRegisterQR_specialDay(t *testing.T) {
	setNow(t, time.Date(2025, 5, 1, 8, 30, 0, 0, time.Local))
	app := newTestApp(t)
	token := app.login(t, "ana@uni.edu", "secret1").Access

	rec := app.do(http.MethodPost, "/api/registros-asistencia/registrar-qr/", token, qrBody(4, anaQR, -17.3787, -66.1474))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{
		"detail": "No se puede registrar asistencia en día especial: Feriado - Día del Trabajo",
		"tipo_dia_especial": "Feriado",
		"descripcion": "Día del Trabajo"
	}`, rec.Body.String())
}

func TestRegisterQR_csrf(t *testing.T) {
	setNow(t, monday)
	app := newTestApp(t, withCSRF)
	token := app.login(t, "ana@uni.edu", "secret1").Access
	path := "/api/registros-asistencia/registrar-qr/"

	rec := app.do(http.MethodPost, path, token, qrBody(4, anaQR, -17.3787, -66.1474))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"detail":"CSRF Failed: CSRF token missing or incorrect."}`, rec.Body.String())

	rec = app.do(http.MethodGet, "/api/get-csrf-token/", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var csrf map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &csrf))

	rec = app.do(http.MethodPost, path, token, qrBody(4, anaQR, -17.3787, -66.1474), csrfHeader, csrf["csrfToken"])
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestStudentEndpoints(t *testing.T) {
	setNow(t, monday)
	app := newTestApp(t)
	token := app.login(t, "ana@uni.edu", "secret1").Access

	t.Run("subjects", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/mis-materias-estudiante/", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var subjects []SubjectResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subjects))
		require.Len(t, subjects, 2, "other semesters and offerings without teachers are not listed")
		assert.Equal(t, "Cálculo I", subjects[0].Name)
		assert.True(t, subjects[0].ActiveSession)
		assert.Equal(t, []TeacherResponse{{FirstName: "Carla", LastName: "Rojas"}}, subjects[0].Teachers)
		assert.Equal(t, "Física", subjects[1].Name)
		assert.False(t, subjects[1].ActiveSession)
	})

	rec := app.do(http.MethodPost, "/api/registros-asistencia/registrar-qr/", token, qrBody(4, anaQR, -17.3787, -66.1474))
	require.Equal(t, http.StatusCreated, rec.Code)

	t.Run("summary", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/estudiantes/resumen-asistencias/", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[
			{"materia_id":2,"materia_nombre":"Cálculo I","total_clases":2,"asistencias":1,"faltas":0,"tardanzas":1,"porcentaje_asistencia":50},
			{"materia_id":3,"materia_nombre":"Física","total_clases":1,"asistencias":0,"faltas":0,"tardanzas":0,"porcentaje_asistencia":0},
			{"materia_id":5,"materia_nombre":"Taller","total_clases":0,"asistencias":0,"faltas":0,"tardanzas":0,"porcentaje_asistencia":0}
		]`, rec.Body.String())
	})

	t.Run("history", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/estudiantes/historial-asistencias/?materia=2", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var history []HistoryResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
		require.Len(t, history, 2)

		assert.Equal(t, 1, history[0].Session.ID, "newest first")
		assert.Equal(t, statusPresent, history[0].Status)
		require.NotNil(t, history[0].RegisteredAt)
		assert.Equal(t, "Límites", history[0].Session.Topic)

		assert.Equal(t, 2, history[1].Session.ID)
		assert.Equal(t, statusLate, history[1].Status)
		assert.Equal(t, "Sin tema", history[1].Session.Topic)
		assert.Nil(t, history[1].RegisteredAt, "seeded records carry no timestamp")
	})

	t.Run("history without subject", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/estudiantes/historial-asistencias/", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"detail":"Se requiere el ID de la materia"}`, rec.Body.String())
	})

	t.Run("history of a foreign subject", func(t *testing.T) {
		rec := app.do(http.MethodGet, "/api/estudiantes/historial-asistencias/?materia=4", token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutAndRefresh(t *testing.T) {
	setNow(t, monday)
	app := newTestApp(t)
	sess := app.login(t, "ana@uni.edu", "secret1")

	rec := app.do(http.MethodPost, "/api/token/refresh/", "", echoMap{"refresh": sess.Access})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "access tokens cannot refresh")

	rec = app.do(http.MethodGet, "/api/mis-materias-estudiante/", sess.Refresh, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "refresh tokens cannot authenticate")

	rec = app.do(http.MethodPost, "/api/token/refresh/", "", echoMap{"refresh": sess.Refresh})
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &refreshed))
	require.NotEmpty(t, refreshed["access"])

	rec = app.do(http.MethodPost, "/api/logout/", sess.Access, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = app.do(http.MethodGet, "/api/mis-materias-estudiante/", sess.Access, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"El token dado no es válido o ha expirado."}`, rec.Body.String())
}

func TestExpiredToken(t *testing.T) {
	app := newTestApp(t, func(opts *Options) { opts.JWTExpirationDelta = -time.Minute })
	token := app.login(t, "ana@uni.edu", "secret1").Access

	rec := app.do(http.MethodGet, "/api/mis-materias-estudiante/", token, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail":"El token dado no es válido o ha expirado."}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	app := newTestApp(t)
	app.do(http.MethodGet, "/", "", nil)

	rec := app.do(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `mockapi_http_requests_total{code="200",method="GET",route="/"} 1`)
}
