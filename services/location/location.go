// Package location provides geo.Locator implementations for hosts without a GPS API.
package location

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/campusqr/asistencia/core/geo"
)

var (
	// errors
	ErrNoFix = errors.New("no location fix configured")

	isTerminalFunc = term.IsTerminal // mockable
)

// Fixed reports a configured fix. Permission is always granted.
type Fixed struct {
	Point geo.Point
	Set   bool
}

var _ geo.Locator = Fixed{}

func (f Fixed) RequestPermission(context.Context) (geo.PermissionStatus, error) {
	return geo.PermissionGranted, nil
}

func (f Fixed) CurrentPosition(ctx context.Context) (geo.Point, error) {
	if err := ctx.Err(); err != nil {
		return geo.Point{}, err
	}
	if !f.Set {
		return geo.Point{}, ErrNoFix
	}
	return f.Point, nil
}

// Prompt asks the user for location permission on a terminal and delegates fixes to Locator.
// The first answer is remembered for the life of the Prompt.
type Prompt struct {
	Locator geo.Locator
	In      io.Reader
	Out     io.Writer

	mu     sync.Mutex
	status geo.PermissionStatus
}

var _ geo.Locator = (*Prompt)(nil)

func NewPrompt(locator geo.Locator, in io.Reader, out io.Writer) *Prompt {
	return &Prompt{Locator: locator, In: in, Out: out}
}

func (p *Prompt) RequestPermission(ctx context.Context) (geo.PermissionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.status != geo.PermissionUndetermined {
		return p.status, nil
	}
	if f, ok := p.In.(*os.File); ok && !isTerminalFunc(int(f.Fd())) {
		// nobody to ask
		return geo.PermissionUndetermined, nil
	}

	fmt.Fprint(p.Out, "¿Permitir que Asistencia acceda a tu ubicación? [s/N]: ")
	answer, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && answer != "") {
		return geo.PermissionUndetermined, errors.Wrap(err, "reading permission answer")
	}

	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "s", "si", "sí", "y", "yes":
		p.status = geo.PermissionGranted
	default:
		p.status = geo.PermissionDenied
	}
	return p.status, nil
}

func (p *Prompt) CurrentPosition(ctx context.Context) (geo.Point, error) {
	return p.Locator.CurrentPosition(ctx)
}
