package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/campusqr/asistencia/apps/mockapi/echo"
	"github.com/campusqr/asistencia/core"
	"github.com/campusqr/asistencia/services/apiclient"
	"github.com/campusqr/asistencia/services/scanner"
)

const (
	anaEmail    = "ana.quispe@uni.edu.bo"
	anaPassword = "asistencia123"
	insideLat   = "-17.3787"
	insideLon   = "-66.1474"
	outsideLat  = "-17.373280"
)

var (
	monday = time.Date(2025, 5, 5, 10, 0, 0, 0, time.Local)
	anaQR  = echoapi.EncodeQRPayload(echoapi.QRPayload{StudentID: 1, InstitutionalCode: "20251001"})
)

type cliTest struct {
	name       string
	args       []string // without program name
	input      string
	tty        string
	wantErr    error
	wantErrStr string
	wantOut    []string
}

func setup(t *testing.T) *commandLine {
	t.Helper()

	origNow := echoapi.NowFunc
	echoapi.NowFunc = func() time.Time { return monday }
	t.Cleanup(func() { echoapi.NowFunc = origNow })

	fx, err := echoapi.LoadFixtures("")
	require.NoError(t, err)
	store, err := echoapi.NewStore(fx)
	require.NoError(t, err)
	srv := httptest.NewServer(echoapi.NewServer(&echoapi.Options{
		DisableReqLogs: true,
		SecretKey:      "test-secret",
		Store:          store,
	}))
	t.Cleanup(srv.Close)

	conf := &core.Config{Env: "TEST", TestMode: true, AppName: "Asistencia"}
	conf.API.BaseURL = srv.URL + "/api/"
	conf.API.Timeout = 5 * time.Second
	conf.Geofence.Latitude = -17.378676
	conf.Geofence.Longitude = -66.147356
	conf.Geofence.RadiusMeters = 500

	return &commandLine{conf: conf, logger: core.NewNopLogger(), baseURL: conf.API.BaseURL}
}

func (cli *commandLine) login(t *testing.T) string {
	t.Helper()
	client, err := cli.client()
	require.NoError(t, err)
	sess, err := client.Login(context.Background(), apiclient.LoginInput{Email: anaEmail, Password: anaPassword})
	require.NoError(t, err)
	return sess.Access
}

func (cli *commandLine) exec(tt cliTest) (string, error) {
	cli.in = strings.NewReader(tt.input)
	cli.tty = nil
	if tt.tty != "" {
		cli.tty = strings.NewReader(tt.tty)
	}

	var out bytes.Buffer
	root := cli.rootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(tt.args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func runCLITests(t *testing.T, cli *commandLine, tests []cliTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := cli.exec(tt)
			switch {
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr), "got error %v, want %v", err, tt.wantErr)
			case tt.wantErrStr != "":
				if assert.Error(t, err) {
					assert.Contains(t, err.Error(), tt.wantErrStr)
				}
			default:
				assert.NoError(t, err)
			}
			for _, want := range tt.wantOut {
				assert.Contains(t, out, want)
			}
		})
	}
}

func Test_commandLine_login(t *testing.T) {
	cli := setup(t)

	origReadPassword := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = origReadPassword })

	password := anaPassword
	readPasswordFunc = func(int) ([]byte, error) { return []byte(password), nil }

	runCLITests(t, cli, []cliTest{
		{name: "no email", args: []string{"login"}, wantErrStr: `required flag(s) "email" not set`},
		{
			name:    "valid credentials",
			args:    []string{"login", "-e", " Ana.Quispe@uni.edu.bo "},
			wantOut: []string{"Sesión iniciada como ana.quispe@uni.edu.bo (usuario 10)", "export TEST_API_TOKEN="},
		},
	})

	password = "wrong"
	runCLITests(t, cli, []cliTest{
		{name: "wrong password", args: []string{"login", "-e", anaEmail}, wantErrStr: "Credenciales inválidas"},
	})

	password = ""
	runCLITests(t, cli, []cliTest{
		{name: "blank password", args: []string{"login", "-e", anaEmail}, wantOut: []string{"password: this field is required"}, wantErrStr: "invalid"},
	})
}

func Test_commandLine_scan(t *testing.T) {
	cli := setup(t)
	token := cli.login(t)

	expired := func() {
		origNow := nowFunc
		nowFunc = func() time.Time { return time.Now().Add(48 * time.Hour) }
		t.Cleanup(func() { nowFunc = origNow })
	}

	runCLITests(t, cli, []cliTest{
		{name: "no token", args: []string{"scan", "-s", "4"}, wantErr: errNotLoggedIn},
		{name: "malformed token", args: []string{"scan", "-s", "4", "--token", "lol"}, wantErr: apiclient.ErrInvalidToken},
		{name: "lat without lon", args: []string{"scan", "-s", "4", "--token", token, "--lat", insideLat}, wantErrStr: "--lat and --lon must be set together"},
		{
			name:       "no active session",
			args:       []string{"scan", "-s", "5", "--token", token, "--lat", insideLat, "--lon", insideLon, "-y"},
			input:      anaQR + "\n",
			wantErrStr: "no hay una sesión activa de Física General",
		},
		{
			name:    "no active session: forced",
			args:    []string{"scan", "-s", "5", "--token", token, "--lat", insideLat, "--lon", insideLon, "-y", "--force"},
			input:   anaQR + "\n",
			wantErr: errNotRegistered,
			wantOut: []string{"Sin sesión activa"},
		},
		{
			name:    "outside the campus",
			args:    []string{"scan", "-s", "4", "--token", token, "--lat", outsideLat, "--lon", insideLon, "-y"},
			input:   anaQR + "\n",
			wantErr: scanner.ErrEndOfInput,
			wantOut: []string{"Restricción Geográfica"},
		},
		{
			name:    "permission denied",
			args:    []string{"scan", "-s", "4", "--token", token, "--lat", insideLat, "--lon", insideLon},
			input:   anaQR + "\n",
			tty:     "n\n",
			wantErr: scanner.ErrEndOfInput,
			wantOut: []string{"[s/N]", "Permiso de ubicación denegado"},
		},
		{
			name:    "no terminal to ask for permission",
			args:    []string{"scan", "-s", "4", "--token", token, "--lat", insideLat, "--lon", insideLon},
			input:   anaQR + "\n",
			wantErr: errNoTerminal,
		},
		{
			name:    "no location fix",
			args:    []string{"scan", "-s", "4", "--token", token, "-y"},
			input:   anaQR + "\n",
			wantErr: scanner.ErrEndOfInput,
			wantOut: []string{"No se pudo verificar tu ubicación"},
		},
		{
			name:    "invalid qr",
			args:    []string{"scan", "-s", "4", "--token", token, "--lat", insideLat, "--lon", insideLon, "-y"},
			input:   "not-a-qr\n",
			wantErr: scanner.ErrEndOfInput,
			wantOut: []string{"Error"},
		},
		{
			name:    "registered",
			args:    []string{"scan", "-s", "4", "--token", token, "--lat", insideLat, "--lon", insideLon, "-y"},
			input:   "\n" + anaQR + "\n",
			wantOut: []string{"Escanea el QR de Cálculo I", "Asistencia registrada", `"Cálculo I"`, "Estado: Presente"},
		},
		{
			name:    "already registered",
			args:    []string{"scan", "-s", "4", "--token", token, "--lat", insideLat, "--lon", insideLon, "-y"},
			input:   anaQR + "\n",
			wantOut: []string{"Asistencia ya registrada"},
		},
	})

	expired()
	runCLITests(t, cli, []cliTest{
		{name: "expired token", args: []string{"scan", "-s", "4", "--token", token}, wantErr: errSessionExpired},
	})
}

func Test_commandLine_queries(t *testing.T) {
	cli := setup(t)
	token := cli.login(t)

	runCLITests(t, cli, []cliTest{
		{
			name:    "subjects",
			args:    []string{"subjects", "--token", token},
			wantOut: []string{"Cálculo I", "Carla Rojas", "Lunes 00:00:00-23:59:59", "Física General"},
		},
		{
			name:    "summary",
			args:    []string{"summary", "--token", token},
			wantOut: []string{"MATERIA", "Cálculo I", "Física General"},
		},
		{name: "history: no subject", args: []string{"history", "--token", token}, wantErrStr: `required flag(s) "subject" not set`},
		{
			name:    "history",
			args:    []string{"history", "-s", "3", "--token", token},
			wantOut: []string{"2025-03-04", "Cinemática", "RETRASO"},
		},
		{name: "logout", args: []string{"logout", "--token", token}, wantOut: []string{"Sesión cerrada."}},
		{name: "revoked token", args: []string{"subjects", "--token", token}, wantErrStr: "401"},
	})
}

func Test_commandLine_distance(t *testing.T) {
	cli := setup(t)

	runCLITests(t, cli, []cliTest{
		{name: "no from", args: []string{"distance"}, wantErrStr: `required flag(s) "from" not set`},
		{name: "malformed point", args: []string{"distance", "--from", "lol"}, wantErrStr: `invalid point "lol"`},
		{name: "out of range", args: []string{"distance", "--from", "91,0"}, wantErrStr: "--from"},
		{
			name:    "to the campus",
			args:    []string{"distance", "--from", "-17.373280,-66.147356"},
			wantOut: []string{"600.", "dentro del campus (radio 500 m): false"},
		},
		{
			name:    "between points",
			args:    []string{"distance", "--from", "0,0", "--to", "0, 1"},
			wantOut: []string{"111194.93 m"},
		},
	})
}
