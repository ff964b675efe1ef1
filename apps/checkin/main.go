// Command checkin is the student side of the QR attendance check-in.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/campusqr/asistencia/core"
	logsvc "github.com/campusqr/asistencia/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "checkin ", log.LstdFlags), conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := commandLine{
		conf:   conf,
		logger: logger,
		in:     os.Stdin,
		tty:    openTTY(),
	}
	if err := cli.rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		stop()
		os.Exit(1)
	}
}
