package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/apps/mockapi/echo"
	"github.com/campusqr/asistencia/core"
	logsvc "github.com/campusqr/asistencia/services/logger"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "mockapi ", log.LstdFlags), conf)

	fixtures, err := echoapi.LoadFixtures(conf.MockAPI.Fixtures)
	errAndDie(err)
	store, err := echoapi.NewStore(fixtures)
	errAndDie(err)

	app := echoapi.NewServer(
		&echoapi.Options{
			Address:            conf.MockAPI.Address,
			Debug:              conf.Debug,
			RequireCSRF:        true,
			SecretKey:          conf.MockAPI.SecretKey,
			JWTExpirationDelta: conf.MockAPI.JWTExpirationDelta,
			Store:              store,
			Logger:             logger,
		},
	)

	go func() {
		if err := app.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("starting server", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errAndDie(app.Stop(ctx))
}

func errAndDie(err error) {
	if err != nil {
		log.Fatalf("%+v", err)
	}
}
