package apiclient

type Role string

const (
	RoleAdmin   Role = "administrador"
	RoleTeacher Role = "docente"
	RoleStudent Role = "estudiante"
)

// Session is the login result.
type Session struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
	UserID  int    `json:"user_id"`
	Email   string `json:"email"`
	Role    Role   `json:"role"`
}

type Teacher struct {
	FirstName string `json:"nombre"`
	LastName  string `json:"apellido"`
}

// Subject is one subject the student is enrolled in.
// ID is the subject-semester id expected as materia_id by the registration endpoint.
type Subject struct {
	ID            int       `json:"id"`
	SubjectID     int       `json:"materia_id"`
	Name          string    `json:"materia_nombre"`
	Semester      string    `json:"semestre_nombre"`
	Career        string    `json:"carrera_nombre"`
	Term          string    `json:"gestion"`
	Weekday       string    `json:"dia_semana"`
	StartTime     string    `json:"hora_inicio"`
	EndTime       string    `json:"hora_fin"`
	Teachers      []Teacher `json:"docentes"`
	ActiveSession bool      `json:"sesion_activa"`
}

type AttendanceSummary struct {
	SubjectID  int     `json:"materia_id"`
	Subject    string  `json:"materia_nombre"`
	Classes    int     `json:"total_clases"`
	Attended   int     `json:"asistencias"`
	Absences   int     `json:"faltas"`
	Late       int     `json:"tardanzas"`
	Percentage float64 `json:"porcentaje_asistencia"`
}

type RecordStatus string

const (
	StatusPresent        RecordStatus = "PRESENTE"
	StatusLate           RecordStatus = "RETRASO"
	StatusAbsent         RecordStatus = "FALTA"
	StatusExcusedAbsence RecordStatus = "FALTA_JUSTIFICADA"
)

type Named struct {
	Name string `json:"nombre"`
}

type Offering struct {
	Subject  Named `json:"materia"`
	Semester Named `json:"semestre"`
	Career   Named `json:"carrera"`
}

type ClassSession struct {
	ID        int      `json:"id"`
	Date      string   `json:"fecha"`
	StartTime string   `json:"hora_inicio"`
	EndTime   string   `json:"hora_fin"`
	Topic     string   `json:"tema"`
	Offering  Offering `json:"materia_semestre"`
}

// AttendanceRecord is one class session of the history.
// ID & RegisteredAt are nil for sessions without a registration (FALTA).
type AttendanceRecord struct {
	ID           *int         `json:"id"`
	Session      ClassSession `json:"sesion"`
	Status       RecordStatus `json:"estado"`
	RegisteredAt *string      `json:"fecha_registro"`
}
