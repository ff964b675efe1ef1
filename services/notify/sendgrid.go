package notify

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/campusqr/asistencia/core"
	"github.com/campusqr/asistencia/core/attendance"
)

const endpoint = "/v3/mail/send"

type SendgridOptions struct {
	Key       string
	Host      string
	AppName   string
	FromEmail string
	ToEmail   string
}

// Sendgrid e-mails every message as a check-in receipt. Sending is asynchronous; call Wait before exiting.
type Sendgrid struct {
	key        string
	host       string
	from       *sgmail.Email
	to         *sgmail.Email
	subjPrefix string
	logger     core.Logger

	wg sync.WaitGroup
}

var _ attendance.Notifier = (*Sendgrid)(nil)

func NewSendgrid(opts SendgridOptions, logger core.Logger) *Sendgrid {
	if logger == nil {
		logger = core.NewNopLogger()
	}
	return &Sendgrid{
		key:        opts.Key,
		host:       opts.Host,
		from:       sgmail.NewEmail(opts.AppName, opts.FromEmail),
		to:         sgmail.NewEmail("", opts.ToEmail),
		subjPrefix: "[" + opts.AppName + "] ",
		logger:     logger,
	}
}

func (svc *Sendgrid) Notify(msg attendance.Message) {
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		svc.send(msg)
	}()
}

// Wait blocks until every pending e-mail has been handed to SendGrid.
func (svc *Sendgrid) Wait() { svc.wg.Wait() }

func (svc *Sendgrid) prepare(msg attendance.Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Title
	p.AddTos(svc.to)

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Body+"\n\n"+NowFunc().Format("02/01/2006 15:04")))
	return m
}

func (svc *Sendgrid) send(msg attendance.Message) {
	req := sendgrid.GetRequest(svc.key, endpoint, svc.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending receipt: %v", err), err)
	} else if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending receipt - status: %d - Body: %s", res.StatusCode, res.Body))
	}
}
