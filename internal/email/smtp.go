// Package email delivers lead follow-ups and agent alerts over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"leadflow_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// SMTPSender renders the embedded HTML templates and delivers them through go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender returns nil when SMTP is not configured.
func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	if !cfg.IsSMTPEnabled() {
		return nil
	}
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent, textContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, textContent)
	msg.AddAlternativeString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}
	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// SendLeadFollowUp emails a re-engagement message to a lead.
func (s *SMTPSender) SendLeadFollowUp(ctx context.Context, toEmail, contactName, body string) error {
	if s == nil {
		return nil
	}
	content, err := renderEmailTemplate("lead_followup.html", leadFollowUpEmailData{
		baseEmailData: baseEmailData{Title: subjectLeadFollowUp, Heading: subjectLeadFollowUp},
		ContactName:   contactName,
		Body:          body,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectLeadFollowUp, content, body)
}

// SendAgentAlert emails an agent notification.
func (s *SMTPSender) SendAgentAlert(ctx context.Context, toEmail, priority, title, body string) error {
	if s == nil {
		return nil
	}
	content, err := renderEmailTemplate("agent_alert.html", agentAlertEmailData{
		baseEmailData: baseEmailData{Title: title, Heading: title},
		Priority:      priority,
		Body:          body,
	})
	if err != nil {
		return err
	}
	subject := fmt.Sprintf(subjectAgentAlertFmt, strings.ToUpper(priority), title)
	return s.send(ctx, toEmail, subject, content, body)
}
