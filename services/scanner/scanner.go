// Package scanner feeds decoded QR payloads to a check-in flow.
//
// The camera side is an external decoder (eg. `zbarcam --raw`) writing one
// decoded payload per line; every line is an independent decode event.
package scanner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/campusqr/asistencia/core"
)

var (
	// errors
	ErrEndOfInput = errors.New("decoder input closed before the check-in finished")
)

// Handler is satisfied by *attendance.Orchestrator.
type Handler interface {
	HandleScan(ctx context.Context, payload string) bool
	Done() <-chan struct{}
}

type Surface struct {
	in     io.Reader
	logger core.Logger
}

func New(in io.Reader, logger core.Logger) *Surface {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &Surface{in: in, logger: logger}
}

// Run dispatches decoded payloads to h until h is done, the input ends or ctx is cancelled.
// Each payload is handled on its own goroutine; h drops those arriving while busy.
// Run waits for dispatched payloads before returning.
func (s *Surface) Run(ctx context.Context, h Handler) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		sc := bufio.NewScanner(s.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		readErr <- sc.Err()
		close(lines)
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-h.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				wg.Wait()
				select {
				case <-h.Done():
					return nil
				default:
				}
				if err := <-readErr; err != nil {
					return errors.Wrap(err, "reading decoder output")
				}
				return ErrEndOfInput
			}
			payload := strings.TrimSpace(line)
			if payload == "" {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !h.HandleScan(ctx, payload) {
					s.logger.Debug(fmt.Sprintf("scan ignored: %.12s...", payload))
				}
			}()
		}
	}
}
