package email

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/jordanlanch/leaddesk/pkg/logger"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const defaultHost = "https://api.sendgrid.com"

// Service handles email sending
type Service struct {
	fromEmail   string
	fromName    string
	sendGridKey string
	host        string
	log         logger.Logger
}

// NewService creates a new email service
// If sendGridAPIKey is provided, emails will be sent via SendGrid
// Otherwise, emails will be logged (development mode)
func NewService(fromEmail, fromName, sendGridAPIKey string, log logger.Logger) *Service {
	if sendGridAPIKey != "" {
		log.Info("email service initialized with SendGrid")
	} else {
		log.Warn("email service in console-only mode, set SENDGRID_API_KEY for production")
	}
	return &Service{
		fromEmail:   fromEmail,
		fromName:    fromName,
		sendGridKey: sendGridAPIKey,
		host:        defaultHost,
		log:         log,
	}
}

// UsesSendGrid reports whether messages leave the process.
func (s *Service) UsesSendGrid() bool {
	return s.sendGridKey != ""
}

// Send delivers one message.
func (s *Service) Send(ctx context.Context, toEmail, toName, subject, htmlBody, plainTextBody string) error {
	if !s.UsesSendGrid() {
		s.log.Info("email (console mode)", "to", toEmail, "name", toName, "subject", subject)
		return nil
	}
	return s.sendViaSendGrid(ctx, toEmail, toName, subject, htmlBody, plainTextBody)
}

// SendLeadMessage sends a free-text message written by the team to a lead.
func (s *Service) SendLeadMessage(ctx context.Context, toEmail, toName, subject, message string) error {
	if strings.TrimSpace(subject) == "" {
		subject = "A message from " + s.fromName
	}

	var body strings.Builder
	body.WriteString("<html><body>")
	fmt.Fprintf(&body, "<p>Hi %s,</p>", html.EscapeString(toName))
	for _, para := range strings.Split(strings.TrimSpace(message), "\n\n") {
		escaped := html.EscapeString(strings.TrimSpace(para))
		fmt.Fprintf(&body, "<p>%s</p>", strings.ReplaceAll(escaped, "\n", "<br>"))
	}
	fmt.Fprintf(&body, "<p>%s</p></body></html>", html.EscapeString(s.fromName))

	plainText := fmt.Sprintf("Hi %s,\n\n%s\n\n%s\n", toName, strings.TrimSpace(message), s.fromName)
	return s.Send(ctx, toEmail, toName, subject, body.String(), plainText)
}

// SendMemberWelcome tells a new team member where to sign in.
func (s *Service) SendMemberWelcome(ctx context.Context, toEmail, toName, loginURL string) error {
	subject := "Your " + s.fromName + " account is ready"
	body := fmt.Sprintf(`
		<html>
		<body>
			<h2>Welcome to the team!</h2>
			<p>Hi %s,</p>
			<p>An administrator created your account. Sign in with this email address to see the leads assigned to you.</p>
			<p><a href="%s" style="background-color: #4CAF50; color: white; padding: 14px 20px; text-decoration: none; border-radius: 4px; display: inline-block;">Sign in</a></p>
			<p>Thanks,<br>%s</p>
		</body>
		</html>
	`, html.EscapeString(toName), html.EscapeString(loginURL), html.EscapeString(s.fromName))

	plainText := fmt.Sprintf(`
Hi %s,

An administrator created your account. Sign in with this email address to see the leads assigned to you:

%s

Thanks,
%s
	`, toName, loginURL, s.fromName)

	return s.Send(ctx, toEmail, toName, subject, body, plainText)
}

func (s *Service) sendViaSendGrid(ctx context.Context, toEmail, toName, subject, htmlBody, plainTextBody string) error {
	from := mail.NewEmail(s.fromName, s.fromEmail)
	to := mail.NewEmail(toName, toEmail)
	message := mail.NewSingleEmail(from, subject, to, plainTextBody, htmlBody)

	request := sendgrid.GetRequest(s.sendGridKey, "/v3/mail/send", s.host)
	request.Method = "POST"
	request.Body = mail.GetRequestBody(message)

	response, err := sendgrid.MakeRequestWithContext(ctx, request)
	if err != nil {
		return fmt.Errorf("failed to send email via sendgrid: %w", err)
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned error status: %d", response.StatusCode)
	}
	s.log.Info("email sent", "to", toEmail, "status", response.StatusCode)
	return nil
}
