package echoapi

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/campusqr/asistencia/core/geo"
)

const (
	roleAdmin   = "administrador"
	roleTeacher = "docente"
	roleStudent = "estudiante"

	statusPresent        = "PRESENTE"
	statusLate           = "RETRASO"
	statusAbsent         = "FALTA"
	statusExcusedAbsence = "FALTA_JUSTIFICADA"

	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"

	lateTolerance = 15 * time.Minute
)

var (
	NowFunc = time.Now // mockable

	// errors
	errInvalidCredentials = errors.New("invalid credentials")
	errUserNotFound       = errors.New("user not found")
	errDuplicateRecord    = errors.New("attendance already registered")

	statusDisplay = map[string]string{
		statusPresent:        "Presente",
		statusLate:           "Presente con retraso",
		statusAbsent:         "Falta",
		statusExcusedAbsence: "Falta justificada",
	}
)

type account struct {
	UserFixture
	hash []byte
}

func (a account) isStudent() bool { return a.Role == roleStudent && a.StudentID != 0 }

type record struct {
	ID           int
	StudentID    int
	SessionID    int
	Status       string
	RegisteredAt time.Time
	Point        geo.Point
}

// Store is the in-memory state of the fake API.
type Store struct {
	fence geo.Fence

	mu          sync.Mutex
	accounts    []account
	offerings   []OfferingFixture
	sessions    []SessionFixture
	specialDays map[string]SpecialDayFixture
	records     []record
}

func NewStore(fx *Fixtures) (*Store, error) {
	today := NowFunc().Format(dateLayout)
	s := &Store{
		fence:       fx.fence(),
		offerings:   append([]OfferingFixture(nil), fx.Offerings...),
		specialDays: make(map[string]SpecialDayFixture, len(fx.SpecialDays)),
	}

	for _, u := range fx.Users {
		hash, err := hashPassword(u.Password)
		if err != nil {
			return nil, err
		}
		u.Password = ""
		s.accounts = append(s.accounts, account{UserFixture: u, hash: hash})
	}
	for _, ses := range fx.Sessions {
		if ses.Date == "today" {
			ses.Date = today
		}
		s.sessions = append(s.sessions, ses)
	}
	for _, d := range fx.SpecialDays {
		s.specialDays[d.Date] = d
	}
	for _, r := range fx.Records {
		s.records = append(s.records, record{
			ID:        len(s.records) + 1,
			StudentID: r.StudentID,
			SessionID: r.SessionID,
			Status:    r.Status,
		})
	}
	return s, nil
}

func (s *Store) Fence() geo.Fence { return s.fence }

func (s *Store) authenticate(email, pwd string) (account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			if bcrypt.CompareHashAndPassword(a.hash, []byte(pwd)) != nil {
				return account{}, errInvalidCredentials
			}
			return a, nil
		}
	}
	return account{}, errInvalidCredentials
}

func (s *Store) accountByID(id int) (account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return account{}, errUserNotFound
}

// offering returns the offering id if it belongs to the semester.
func (s *Store) offering(id, semesterID int) (OfferingFixture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.offerings {
		if o.ID == id && o.SemesterID == semesterID {
			return o, true
		}
	}
	return OfferingFixture{}, false
}

func (s *Store) semesterOfferings(semesterID int) []OfferingFixture {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OfferingFixture
	for _, o := range s.offerings {
		if o.SemesterID == semesterID {
			out = append(out, o)
		}
	}
	return out
}

func (s *Store) specialDay(date string) (SpecialDayFixture, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.specialDays[date]
	return d, ok
}

// activeSession returns the session of the offering running at now.
func (s *Store) activeSession(offeringID int, now time.Time) (SessionFixture, bool) {
	date, clock := now.Format(dateLayout), now.Format(timeLayout)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ses := range s.sessions {
		if ses.OfferingID == offeringID && ses.Date == date && ses.Start <= clock && clock <= ses.End {
			return ses, true
		}
	}
	return SessionFixture{}, false
}

// addRecord stores a registration unless the student already has one for the session.
func (s *Store) addRecord(r record) (record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.records {
		if existing.StudentID == r.StudentID && existing.SessionID == r.SessionID {
			return record{}, errDuplicateRecord
		}
	}
	r.ID = len(s.records) + 1
	s.records = append(s.records, r)
	return r, nil
}

func (s *Store) recordFor(studentID, sessionID int) (record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.StudentID == studentID && r.SessionID == sessionID {
			return r, true
		}
	}
	return record{}, false
}

func (s *Store) offeringSessions(offeringIDs map[int]bool) []SessionFixture {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SessionFixture
	for _, ses := range s.sessions {
		if offeringIDs[ses.OfferingID] {
			out = append(out, ses)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

// attendanceStatus is PRESENTE up to lateTolerance after the session start, RETRASO after.
func attendanceStatus(ses SessionFixture, now time.Time) string {
	start, err := time.ParseInLocation(dateLayout+" "+timeLayout, ses.Date+" "+ses.Start, now.Location())
	if err != nil {
		return statusPresent
	}
	if now.Sub(start) <= lateTolerance {
		return statusPresent
	}
	return statusLate
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
