package notify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendGridHost     = "https://api.sendgrid.com"
	sendGridEndpoint = "/v3/mail/send"
	sendGridTimeout  = 15 * time.Second
)

// SendGridChannel delivers messages through the SendGrid v3 mail API.
type SendGridChannel struct {
	key    string
	host   string
	from   *sgmail.Email
	client *rest.Client
}

// NewSendGridChannel builds the channel. An empty host targets the public API.
func NewSendGridChannel(key, host, fromName, fromEmail string) (*SendGridChannel, error) {
	if strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if strings.TrimSpace(fromEmail) == "" {
		return nil, fmt.Errorf("sender address is required")
	}
	if host == "" {
		host = sendGridHost
	}
	return &SendGridChannel{
		key:    key,
		host:   strings.TrimRight(host, "/"),
		from:   sgmail.NewEmail(fromName, fromEmail),
		client: &rest.Client{HTTPClient: &http.Client{Timeout: sendGridTimeout}},
	}, nil
}

func (c *SendGridChannel) Name() string { return "sendgrid" }

func (c *SendGridChannel) Deliver(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To.Email) == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Email))

	m := sgmail.NewV3Mail()
	m.SetFrom(c.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)

	req := sendgrid.GetRequest(c.key, sendGridEndpoint, c.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	httpResp, err := c.client.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sendgrid request: %w", err)
	}
	res, err := rest.BuildResponse(httpResp)
	if err != nil {
		return fmt.Errorf("sendgrid response: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d: %s", res.StatusCode, strings.TrimSpace(res.Body))
	}
	return nil
}

// LogChannel writes messages to the log instead of sending them.
type LogChannel struct {
	logger zerolog.Logger
}

// NewLogChannel is used when no mail provider is configured.
func NewLogChannel(logger zerolog.Logger) *LogChannel {
	return &LogChannel{logger: logger.With().Str("component", "mail_log").Logger()}
}

func (c *LogChannel) Name() string { return "log" }

func (c *LogChannel) Deliver(_ context.Context, msg Message) error {
	if strings.TrimSpace(msg.To.Email) == "" {
		return ErrNoRecipient
	}
	c.logger.Info().
		Str("kind", string(msg.Kind)).
		Str("to", maskEmail(msg.To.Email)).
		Str("subject", msg.Subject).
		Uint("submission_id", msg.SubmissionID).
		Msg(msg.Text)
	return nil
}

// maskEmail keeps the first and last character of the local part.
func maskEmail(email string) string {
	email = strings.TrimSpace(strings.ToLower(email))
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || strings.Contains(domain, "@") {
		return "***"
	}
	if len(local) <= 2 {
		return local[:1] + "***@" + domain
	}
	return local[:1] + "***" + local[len(local)-1:] + "@" + domain
}
