package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/campusqr/asistencia/core/attendance"
	"github.com/campusqr/asistencia/core/geo"
	"github.com/campusqr/asistencia/services/location"
	"github.com/campusqr/asistencia/services/notify"
	"github.com/campusqr/asistencia/services/scanner"
)

type scanFlags struct {
	subjectID   int
	lat, lon    float64
	input       string
	force       bool
	yes         bool
	metricsAddr string
}

func (cli *commandLine) scanCmd() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Registra tu asistencia escaneando el QR de la sesión",
		Long: `Lee los códigos QR decodificados (uno por línea) desde --input
(por defecto la entrada estándar, eg. zbarcam --raw | checkin scan -s 4)
y registra la asistencia cuando el dispositivo está dentro del campus.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lon") {
				return errors.New("--lat and --lon must be set together")
			}
			return cli.scan(cmd, f)
		},
	}
	cmd.Flags().IntVarP(&f.subjectID, "subject", "s", 0, "subject-semester id (see `checkin subjects`)")
	cmd.Flags().Float64Var(&f.lat, "lat", cli.conf.Location.Latitude, "device latitude")
	cmd.Flags().Float64Var(&f.lon, "lon", cli.conf.Location.Longitude, "device longitude")
	cmd.Flags().StringVarP(&f.input, "input", "i", "-", "decoded QR payloads, one per line (- for stdin)")
	cmd.Flags().BoolVar(&f.force, "force", false, "skip the active session check")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", cli.conf.Location.AutoGrant, "grant location permission without asking")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve check-in metrics on this address (eg. :9100)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (cli *commandLine) scan(cmd *cobra.Command, f scanFlags) error {
	out := cmd.OutOrStdout()

	ctx, err := cli.authContext(cmd.Context())
	if err != nil {
		return err
	}
	if !f.yes && cli.tty == nil {
		return errNoTerminal
	}
	client, err := cli.client()
	if err != nil {
		return err
	}

	if !f.force {
		subject, err := client.Subject(ctx, f.subjectID)
		if err != nil {
			return err
		}
		if !subject.ActiveSession {
			return errors.Errorf("no hay una sesión activa de %s en este momento", subject.Name)
		}
		fmt.Fprintf(out, "Escanea el QR de %s (%s-%s)\n", subject.Name, subject.StartTime, subject.EndTime)
	}

	in, closeIn, err := cli.openInput(f.input)
	if err != nil {
		return err
	}
	defer closeIn()

	var locator geo.Locator = location.Fixed{
		Point: geo.Point{Latitude: f.lat, Longitude: f.lon},
		Set:   cli.conf.Location.Set || cmd.Flags().Changed("lat"),
	}
	if !f.yes {
		locator = location.NewPrompt(locator, cli.tty, out)
	}

	notifiers := notify.Multi{notify.NewConsole(out, cli.conf.AppName)}
	if cli.conf.Notify.SendgridKey != "" && cli.conf.Notify.ToEmail != "" {
		sg := notify.NewSendgrid(notify.SendgridOptions{
			Key:       cli.conf.Notify.SendgridKey,
			Host:      cli.conf.Notify.SendgridHost,
			AppName:   cli.conf.AppName,
			FromEmail: cli.conf.Notify.FromEmail,
			ToEmail:   cli.conf.Notify.ToEmail,
		}, cli.logger)
		defer sg.Wait()
		notifiers = append(notifiers, sg)
	}

	reg := prometheus.NewRegistry()
	if f.metricsAddr != "" {
		stop := cli.serveMetrics(f.metricsAddr, reg)
		defer stop()
	}

	orch, err := attendance.NewOrchestrator(f.subjectID, attendance.Deps{
		Geofence:  geo.NewValidator(cli.fence(), locator, cli.logger),
		Registrar: client,
		Notifier:  notifiers,
		Logger:    cli.logger,
		Metrics:   attendance.NewMetrics(reg),
	})
	if err != nil {
		return err
	}

	err = scanner.New(in, cli.logger).Run(ctx, orch)
	state := orch.State()
	switch {
	case err == nil:
		if k := state.Outcome.Kind; k == attendance.Registered || k == attendance.AlreadyRegistered {
			return nil
		}
		return errNotRegistered
	case errors.Is(err, scanner.ErrEndOfInput) && state.Reason != nil:
		return errors.Wrapf(err, "último intento: %v", state.Reason)
	default:
		return err
	}
}

func (cli *commandLine) openInput(name string) (io.Reader, func(), error) {
	if name == "" || name == "-" {
		return cli.in, func() {}, nil
	}
	file, err := os.Open(name)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening input")
	}
	return file, func() { _ = file.Close() }, nil
}

// serveMetrics exposes reg on addr until the returned func is called.
func (cli *commandLine) serveMetrics(addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cli.logger.Error("metrics server", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
