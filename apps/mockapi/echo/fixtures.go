package echoapi

import (
	_ "embed"
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"

	"github.com/campusqr/asistencia/core/geo"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

var bcryptCost = bcrypt.DefaultCost // mockable

// Fixtures is the seed data of the fake API.
// Session dates may be "today", resolved when the Store is built.
type Fixtures struct {
	Geofence struct {
		Latitude     float64 `yaml:"latitude"`
		Longitude    float64 `yaml:"longitude"`
		RadiusMeters float64 `yaml:"radius_meters"`
	} `yaml:"geofence"`
	Users       []UserFixture       `yaml:"users"`
	Offerings   []OfferingFixture   `yaml:"offerings"`
	Sessions    []SessionFixture    `yaml:"sessions"`
	SpecialDays []SpecialDayFixture `yaml:"special_days"`
	Records     []RecordFixture     `yaml:"records"`
}

// UserFixture is an account. Students also carry StudentID, InstitutionalCode & SemesterID.
type UserFixture struct {
	ID                int    `yaml:"id"`
	Email             string `yaml:"email"`
	Password          string `yaml:"password"`
	Role              string `yaml:"role"`
	StudentID         int    `yaml:"student_id"`
	InstitutionalCode string `yaml:"institutional_code"`
	SemesterID        int    `yaml:"semester_id"`
}

type TeacherFixture struct {
	FirstName string `yaml:"first_name"`
	LastName  string `yaml:"last_name"`
}

// OfferingFixture is a subject taught in a semester (the registration's materia_id).
type OfferingFixture struct {
	ID         int              `yaml:"id"`
	SubjectID  int              `yaml:"subject_id"`
	Subject    string           `yaml:"subject"`
	SemesterID int              `yaml:"semester_id"`
	Semester   string           `yaml:"semester"`
	Career     string           `yaml:"career"`
	Term       string           `yaml:"term"`
	Weekday    string           `yaml:"weekday"`
	Start      string           `yaml:"start"`
	End        string           `yaml:"end"`
	Teachers   []TeacherFixture `yaml:"teachers"`
}

type SessionFixture struct {
	ID         int    `yaml:"id"`
	OfferingID int    `yaml:"offering_id"`
	Date       string `yaml:"date"`
	Start      string `yaml:"start"`
	End        string `yaml:"end"`
	Topic      string `yaml:"topic"`
}

type SpecialDayFixture struct {
	Date        string `yaml:"date"`
	Kind        string `yaml:"kind"`
	Description string `yaml:"description"`
}

type RecordFixture struct {
	StudentID int    `yaml:"student_id"`
	SessionID int    `yaml:"session_id"`
	Status    string `yaml:"status"`
}

// LoadFixtures reads fixtures from path, or the bundled ones when path is empty.
func LoadFixtures(path string) (*Fixtures, error) {
	data := defaultFixtures
	if path != "" {
		var err error
		if data, err = ioutil.ReadFile(path); err != nil {
			return nil, errors.Wrap(err, "reading fixtures")
		}
	}
	return ParseFixtures(data)
}

func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, errors.Wrap(err, "parsing fixtures")
	}
	if fx.Geofence.RadiusMeters <= 0 {
		return nil, errors.New("fixtures: geofence.radius_meters must be positive")
	}
	for i, u := range fx.Users {
		if u.Role == "" {
			fx.Users[i].Role = roleStudent
		}
		fx.Users[i].Email = strings.ToLower(strings.TrimSpace(u.Email))
	}
	return &fx, nil
}

func (fx *Fixtures) fence() geo.Fence {
	return geo.Fence{
		Center:       geo.Point{Latitude: fx.Geofence.Latitude, Longitude: fx.Geofence.Longitude},
		RadiusMeters: fx.Geofence.RadiusMeters,
	}
}

func hashPassword(pwd string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcryptCost)
	return hash, errors.Wrap(err, "hashing password")
}
