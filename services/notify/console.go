// Package notify delivers attendance messages to the user.
package notify

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/campusqr/asistencia/core/attendance"
)

var NowFunc = time.Now // mockable

// Console writes messages to a terminal, like a native alert.
type Console struct {
	out    io.Writer
	prefix string

	mu   sync.Mutex
	sent []attendance.Message
}

var _ attendance.Notifier = (*Console)(nil)

func NewConsole(out io.Writer, appName string) *Console {
	return &Console{out: out, prefix: "[" + appName + "] "}
}

func (c *Console) Notify(msg attendance.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	body := new(strings.Builder)
	_, _ = fmt.Fprintf(body, "\n%s%s\n", c.prefix, msg.Title)
	_, _ = fmt.Fprintf(body, "%s\n", strings.Repeat("-", len([]rune(c.prefix+msg.Title))))
	_, _ = fmt.Fprintf(body, "%s\n", msg.Body)
	_, _ = fmt.Fprintf(body, "(%s)\n\n", NowFunc().Format("15:04:05"))
	_, _ = io.WriteString(c.out, body.String())

	c.sent = append(c.sent, msg)
}

// Sent returns the messages notified so far.
func (c *Console) Sent() []attendance.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]attendance.Message(nil), c.sent...)
}

// Multi notifies every notifier in order.
type Multi []attendance.Notifier

func (m Multi) Notify(msg attendance.Message) {
	for _, n := range m {
		n.Notify(msg)
	}
}
