package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	Debug    bool
	TestMode bool
	AppName  string
	Build    string

	API struct {
		BaseURL string
		Timeout time.Duration
		Token   string
	}

	Geofence struct {
		Latitude     float64
		Longitude    float64
		RadiusMeters float64
	}

	// Location is the fix reported by the fixed location provider.
	Location struct {
		Latitude  float64
		Longitude float64
		Set       bool
		AutoGrant bool
	}

	RollbarToken string

	Notify struct {
		SendgridKey  string
		SendgridHost string
		FromEmail    string
		ToEmail      string
	}

	MockAPI struct {
		Address            string
		SecretKey          string
		Fixtures           string
		JWTExpirationDelta time.Duration
	}
}

// NewConfig loads the configuration of the current ENV (DEV by default).
// Every key can be overridden with an env var prefixed by the ENV name,
// eg. DEV_API_BASEURL or PROD_GEOFENCE_RADIUSMETERS.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Asistencia")
	v.SetDefault("build", "dev")
	v.SetDefault("api.baseURL", "http://localhost:8000/api/")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.token", "")
	v.SetDefault("geofence.latitude", -17.378676)
	v.SetDefault("geofence.longitude", -66.147356)
	v.SetDefault("geofence.radiusMeters", 500.0)
	// location.latitude & location.longitude have no defaults: IsSet tells whether a fix was configured
	v.SetDefault("location.autoGrant", false)
	v.SetDefault("rollbarToken", "")
	v.SetDefault("notify.sendgridKey", "")
	v.SetDefault("notify.sendgridHost", "https://api.sendgrid.com")
	v.SetDefault("notify.fromEmail", "noreply@localhost")
	v.SetDefault("notify.toEmail", "")
	v.SetDefault("mockAPI.address", ":8000")
	v.SetDefault("mockAPI.secretKey", "k2v!x9#q$lm0=asistencia-dev-only")
	v.SetDefault("mockAPI.fixtures", "")
	v.SetDefault("mockAPI.jwtExpirationDelta", 24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(ConfigDir(), ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Build:        v.GetString("build"),
		RollbarToken: v.GetString("rollbarToken"),
	}

	conf.API.BaseURL = v.GetString("api.baseURL")
	conf.API.Timeout = v.GetDuration("api.timeout")
	conf.API.Token = v.GetString("api.token")

	conf.Geofence.Latitude = v.GetFloat64("geofence.latitude")
	conf.Geofence.Longitude = v.GetFloat64("geofence.longitude")
	conf.Geofence.RadiusMeters = v.GetFloat64("geofence.radiusMeters")

	conf.Location.Latitude = v.GetFloat64("location.latitude")
	conf.Location.Longitude = v.GetFloat64("location.longitude")
	conf.Location.Set = v.IsSet("location.latitude") && v.IsSet("location.longitude")
	conf.Location.AutoGrant = v.GetBool("location.autoGrant")

	conf.Notify.SendgridKey = v.GetString("notify.sendgridKey")
	conf.Notify.SendgridHost = v.GetString("notify.sendgridHost")
	conf.Notify.FromEmail = v.GetString("notify.fromEmail")
	conf.Notify.ToEmail = v.GetString("notify.toEmail")

	conf.MockAPI.Address = v.GetString("mockAPI.address")
	conf.MockAPI.SecretKey = v.GetString("mockAPI.secretKey")
	conf.MockAPI.Fixtures = v.GetString("mockAPI.fixtures")
	conf.MockAPI.JWTExpirationDelta = v.GetDuration("mockAPI.jwtExpirationDelta")

	return conf
}
