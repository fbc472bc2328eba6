package notify

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Mailer delivers one rendered notification.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer writes notifications to the process log. Used in development and
// whenever no provider key is configured.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, to, subject, body string) error {
	log.Printf("notify: to=%s subject=%q body=%q", to, subject, body)
	return nil
}

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridMailer delivers through the SendGrid v3 API.
type SendgridMailer struct {
	key  string
	from *sgmail.Email
}

func NewSendgridMailer(apiKey, fromName, fromAddr string) *SendgridMailer {
	return &SendgridMailer{key: apiKey, from: sgmail.NewEmail(fromName, fromAddr)}
}

func (m *SendgridMailer) Send(_ context.Context, to, subject, body string) error {
	p := sgmail.NewPersonalization()
	p.Subject = subject
	p.AddTos(sgmail.NewEmail("", to))

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(p)
	v3.AddContent(sgmail.NewContent("text/plain", body))

	req := sendgrid.GetRequest(m.key, sendgridEndpoint, sendgridHost)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(v3)

	res, err := sendgrid.API(req)
	if err != nil {
		return err
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}
