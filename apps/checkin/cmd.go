package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/campusqr/asistencia/core"
	"github.com/campusqr/asistencia/core/geo"
	"github.com/campusqr/asistencia/services/apiclient"
)

var (
	readPasswordFunc = term.ReadPassword // mockable
	nowFunc          = time.Now          // mockable

	// errors
	errNotLoggedIn    = errors.New("no hay sesión: ejecuta `checkin login` y usa --token")
	errSessionExpired = errors.New("tu sesión expiró: vuelve a iniciar sesión")
	errNotRegistered  = errors.New("la asistencia no fue registrada")
	errNoTerminal     = errors.New("no hay una terminal para pedir el permiso de ubicación: usa --yes")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger
	in     io.Reader // decoder output for scan
	tty    io.Reader // permission prompt answers; nil without a terminal

	// flags
	token   string
	baseURL string
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "checkin",
		Short:         "Registro de asistencia por QR con validación de ubicación",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cli.token, "token", cli.conf.API.Token, "access token of the logged in student")
	root.PersistentFlags().StringVar(&cli.baseURL, "api", cli.conf.API.BaseURL, "attendance API base URL")

	root.AddCommand(
		cli.loginCmd(),
		cli.logoutCmd(),
		cli.subjectsCmd(),
		cli.scanCmd(),
		cli.summaryCmd(),
		cli.historyCmd(),
		cli.distanceCmd(),
	)
	return root
}

func (cli *commandLine) client() (*apiclient.Client, error) {
	return apiclient.New(apiclient.Options{
		BaseURL: cli.baseURL,
		Timeout: cli.conf.API.Timeout,
		Logger:  cli.logger,
	})
}

// authContext returns ctx carrying the access token, checking it is not expired.
func (cli *commandLine) authContext(ctx context.Context) (context.Context, error) {
	if cli.token == "" {
		return nil, errNotLoggedIn
	}
	claims, err := apiclient.ParseTokenClaims(cli.token)
	if err != nil {
		return nil, errors.Wrap(err, "reading token")
	}
	if claims.Expired(nowFunc()) {
		return nil, errSessionExpired
	}
	return apiclient.WithToken(ctx, cli.token), nil
}

func (cli *commandLine) loginCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Inicia sesión y muestra el token de acceso",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprint(out, "Contraseña: ")
			pwd, err := readPasswordFunc(int(syscall.Stdin))
			fmt.Fprintln(out)
			if err != nil {
				return errors.Wrap(err, "reading password")
			}

			client, err := cli.client()
			if err != nil {
				return err
			}
			sess, err := client.Login(cmd.Context(), apiclient.LoginInput{Email: email, Password: string(pwd)})
			if err != nil {
				var vErr *core.ValidationError
				if errors.As(err, &vErr) {
					for _, f := range vErr.Fields {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", f.Field, f.Error)
					}
				}
				return err
			}
			cli.logger.Info("logged in", sess)
			if sess.Role != apiclient.RoleStudent {
				fmt.Fprintf(out, "Aviso: la cuenta tiene el rol %q; solo los estudiantes registran asistencia.\n", sess.Role)
			}
			fmt.Fprintf(out, "Sesión iniciada como %s (usuario %d)\n", sess.Email, sess.UserID)
			fmt.Fprintf(out, "export %s_API_TOKEN=%s\n", cli.conf.Env, sess.Access)
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "institutional e-mail")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (cli *commandLine) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Cierra la sesión del token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := cli.authContext(cmd.Context())
			if err != nil {
				return err
			}
			client, err := cli.client()
			if err != nil {
				return err
			}
			if err := client.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Sesión cerrada.")
			return nil
		},
	}
}

func (cli *commandLine) subjectsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subjects",
		Short: "Lista tus materias y si tienen una sesión activa",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := cli.authContext(cmd.Context())
			if err != nil {
				return err
			}
			client, err := cli.client()
			if err != nil {
				return err
			}
			subjects, err := client.MySubjects(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMATERIA\tHORARIO\tDOCENTES\tSESIÓN ACTIVA")
			for _, s := range subjects {
				teachers := make([]string, 0, len(s.Teachers))
				for _, t := range s.Teachers {
					teachers = append(teachers, t.FirstName+" "+t.LastName)
				}
				active := "no"
				if s.ActiveSession {
					active = "sí"
				}
				fmt.Fprintf(w, "%d\t%s\t%s %s-%s\t%s\t%s\n",
					s.ID, s.Name, s.Weekday, s.StartTime, s.EndTime, strings.Join(teachers, ", "), active)
			}
			return w.Flush()
		},
	}
}

func (cli *commandLine) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Muestra el resumen de asistencias por materia",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := cli.authContext(cmd.Context())
			if err != nil {
				return err
			}
			client, err := cli.client()
			if err != nil {
				return err
			}
			summary, err := client.AttendanceSummary(ctx)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tMATERIA\tCLASES\tASISTENCIAS\tRETRASOS\tFALTAS\t%")
			for _, s := range summary {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\t%d\t%d\t%.2f\n",
					s.SubjectID, s.Subject, s.Classes, s.Attended, s.Late, s.Absences, s.Percentage)
			}
			return w.Flush()
		},
	}
}

func (cli *commandLine) historyCmd() *cobra.Command {
	var subjectID int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Muestra el historial de asistencias de una materia",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := cli.authContext(cmd.Context())
			if err != nil {
				return err
			}
			client, err := cli.client()
			if err != nil {
				return err
			}
			records, err := client.AttendanceHistory(ctx, subjectID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FECHA\tHORARIO\tTEMA\tESTADO")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s-%s\t%s\t%s\n",
					r.Session.Date, r.Session.StartTime, r.Session.EndTime, r.Session.Topic, r.Status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&subjectID, "subject", "s", 0, "subject id (materia_id)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (cli *commandLine) distanceCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "distance",
		Short: "Calcula la distancia a un punto (por defecto, el centro del campus)",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := parsePoint(from)
			if err != nil {
				return errors.Wrap(err, "--from")
			}
			fence := cli.fence()
			b := fence.Center
			if to != "" {
				if b, err = parsePoint(to); err != nil {
					return errors.Wrap(err, "--to")
				}
			}

			d := geo.Distance(a, b)
			fmt.Fprintf(cmd.OutOrStdout(), "%.2f m\n", d)
			if to == "" {
				inside, _ := fence.Contains(a)
				fmt.Fprintf(cmd.OutOrStdout(), "dentro del campus (radio %.0f m): %t\n", fence.RadiusMeters, inside)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "point as LAT,LON")
	cmd.Flags().StringVar(&to, "to", "", "point as LAT,LON (default: campus center)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}

func (cli *commandLine) fence() geo.Fence {
	return geo.Fence{
		Center:       geo.Point{Latitude: cli.conf.Geofence.Latitude, Longitude: cli.conf.Geofence.Longitude},
		RadiusMeters: cli.conf.Geofence.RadiusMeters,
	}
}

// parsePoint parses "LAT,LON".
func parsePoint(s string) (geo.Point, error) {
	var p geo.Point
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%f,%f", &p.Latitude, &p.Longitude); err != nil {
		return geo.Point{}, errors.Errorf("invalid point %q, expected LAT,LON", s)
	}
	validate, translator := core.NewValidator()
	if err := validate.Struct(p); err != nil {
		return geo.Point{}, core.TranslateValidationErrors(err, translator)
	}
	return p, nil
}

// openTTY returns the controlling terminal, or nil when there is none.
// Stdin is never used: it carries the decoder output.
func openTTY() io.Reader {
	f, err := os.Open("/dev/tty")
	if err != nil {
		return nil
	}
	return f
}
