package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

type (
	TeacherResponse struct {
		FirstName string `json:"nombre"`
		LastName  string `json:"apellido"`
	}

	SubjectResponse struct {
		ID            int               `json:"id"`
		SubjectID     int               `json:"materia_id"`
		Name          string            `json:"materia_nombre"`
		Semester      string            `json:"semestre_nombre"`
		Career        string            `json:"carrera_nombre"`
		Term          string            `json:"gestion"`
		Weekday       string            `json:"dia_semana"`
		StartTime     string            `json:"hora_inicio"`
		EndTime       string            `json:"hora_fin"`
		Teachers      []TeacherResponse `json:"docentes"`
		ActiveSession bool              `json:"sesion_activa"`
	}

	SummaryResponse struct {
		SubjectID  int     `json:"materia_id"`
		Subject    string  `json:"materia_nombre"`
		Classes    int     `json:"total_clases"`
		Attended   int     `json:"asistencias"`
		Absences   int     `json:"faltas"`
		Late       int     `json:"tardanzas"`
		Percentage float64 `json:"porcentaje_asistencia"`
	}

	named struct {
		Name string `json:"nombre"`
	}

	OfferingResponse struct {
		Subject  named `json:"materia"`
		Semester named `json:"semestre"`
		Career   named `json:"carrera"`
	}

	SessionResponse struct {
		ID        int              `json:"id"`
		Date      string           `json:"fecha"`
		StartTime string           `json:"hora_inicio"`
		EndTime   string           `json:"hora_fin"`
		Topic     string           `json:"tema"`
		Offering  OfferingResponse `json:"materia_semestre"`
	}

	HistoryResponse struct {
		ID           *int            `json:"id"`
		Session      SessionResponse `json:"sesion"`
		Status       string          `json:"estado"`
		RegisteredAt *string         `json:"fecha_registro"`
	}
)

type studentApi struct {
	store *Store
}

func registerStudentAPI(authed *echo.Group, api *studentApi) {
	authed.GET("/mis-materias-estudiante/", api.subjects, studentMiddleware)

	sg := authed.Group("/estudiantes", studentMiddleware)
	sg.GET("/resumen-asistencias/", api.summary)
	sg.GET("/historial-asistencias/", api.history)
}

// Handlers

// subjects lists the offerings of the student's semester that have teachers assigned.
func (api *studentApi) subjects(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	now := NowFunc()
	resp := make([]SubjectResponse, 0)
	for _, o := range api.store.semesterOfferings(acc.SemesterID) {
		if len(o.Teachers) == 0 {
			continue
		}
		teachers := make([]TeacherResponse, 0, len(o.Teachers))
		for _, t := range o.Teachers {
			teachers = append(teachers, TeacherResponse{FirstName: t.FirstName, LastName: t.LastName})
		}
		_, active := api.store.activeSession(o.ID, now)
		resp = append(resp, SubjectResponse{
			ID:            o.ID,
			SubjectID:     o.SubjectID,
			Name:          o.Subject,
			Semester:      o.Semester,
			Career:        o.Career,
			Term:          o.Term,
			Weekday:       o.Weekday,
			StartTime:     o.Start,
			EndTime:       o.End,
			Teachers:      teachers,
			ActiveSession: active,
		})
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *studentApi) summary(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}

	// offerings grouped by subject, in listing order
	var order []int
	bySubject := make(map[int]map[int]bool)
	names := make(map[int]string)
	for _, o := range api.store.semesterOfferings(acc.SemesterID) {
		if _, ok := bySubject[o.SubjectID]; !ok {
			order = append(order, o.SubjectID)
			bySubject[o.SubjectID] = make(map[int]bool)
			names[o.SubjectID] = o.Subject
		}
		bySubject[o.SubjectID][o.ID] = true
	}

	resp := make([]SummaryResponse, 0, len(order))
	for _, subjectID := range order {
		sum := SummaryResponse{SubjectID: subjectID, Subject: names[subjectID]}
		for _, ses := range api.store.offeringSessions(bySubject[subjectID]) {
			sum.Classes++
			rec, ok := api.store.recordFor(acc.StudentID, ses.ID)
			if !ok {
				continue
			}
			switch rec.Status {
			case statusPresent:
				sum.Attended++
			case statusLate:
				sum.Late++
			case statusAbsent:
				sum.Absences++
			}
		}
		if sum.Classes > 0 {
			sum.Percentage = round2(float64(sum.Attended) / float64(sum.Classes) * 100)
		}
		resp = append(resp, sum)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *studentApi) history(ctx echo.Context) error {
	acc, err := getContextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	subjectID, err := strconv.Atoi(ctx.QueryParam("materia"))
	if err != nil {
		return errSubjectRequired
	}

	offerings := make(map[int]OfferingFixture)
	ids := make(map[int]bool)
	for _, o := range api.store.semesterOfferings(acc.SemesterID) {
		if o.SubjectID == subjectID {
			offerings[o.ID] = o
			ids[o.ID] = true
		}
	}
	if len(offerings) == 0 {
		return errSubjectNotInSemester
	}

	resp := make([]HistoryResponse, 0)
	for _, ses := range api.store.offeringSessions(ids) {
		o := offerings[ses.OfferingID]
		topic := ses.Topic
		if topic == "" {
			topic = "Sin tema"
		}
		item := HistoryResponse{
			Session: SessionResponse{
				ID:        ses.ID,
				Date:      ses.Date,
				StartTime: ses.Start,
				EndTime:   ses.End,
				Topic:     topic,
				Offering: OfferingResponse{
					Subject:  named{o.Subject},
					Semester: named{o.Semester},
					Career:   named{o.Career},
				},
			},
			Status: statusAbsent,
		}
		if rec, ok := api.store.recordFor(acc.StudentID, ses.ID); ok {
			id := rec.ID
			item.ID = &id
			item.Status = rec.Status
			if !rec.RegisteredAt.IsZero() {
				at := rec.RegisteredAt.Format(time.RFC3339)
				item.RegisteredAt = &at
			}
		}
		resp = append(resp, item)
	}
	return ctx.JSON(http.StatusOK, resp)
}
