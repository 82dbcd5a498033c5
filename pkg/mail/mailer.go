// Package mail composes report emails and hands them to an SMTP transport.
package mail

import (
	"crypto/tls"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/yourusername/report-generator/pkg/config"
	"github.com/yourusername/report-generator/pkg/model"
)

// Transport delivers composed messages. *gomail.Dialer implements it.
type Transport interface {
	DialAndSend(m ...*gomail.Message) error
}

// Attachment is the rendered artifact sent with the email
type Attachment struct {
	Data        []byte
	Format      model.ArtifactFormat
	Disposition model.AttachmentDisposition
}

// Mailer composes and sends report emails
type Mailer struct {
	smtp          config.SMTP
	subjectPrefix string
	transport     Transport
	log           logrus.FieldLogger
}

// NewDialer builds the SMTP dialer. Credentials are only used when both
// user name and password are set.
func NewDialer(cfg config.SMTP) *gomail.Dialer {
	var d *gomail.Dialer
	if cfg.Username != "" && cfg.Password != "" {
		d = gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	} else {
		d = &gomail.Dialer{Host: cfg.Host, Port: cfg.Port}
	}

	switch cfg.Encryption {
	case "ssltls":
		d.SSL = true
		d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	case "starttls":
		d.SSL = false
		d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	default:
		d.SSL = false
	}
	return d
}

// New creates a mailer that sends through transport
func New(smtp config.SMTP, subjectPrefix string, transport Transport, log logrus.FieldLogger) *Mailer {
	return &Mailer{
		smtp:          smtp,
		subjectPrefix: subjectPrefix,
		transport:     transport,
		log:           log,
	}
}

// Send composes the report email and delivers it. It is never retried.
func (m *Mailer) Send(details model.EmailDetails, att Attachment) error {
	msg := m.Compose(details, att)

	m.log.WithFields(logrus.Fields{
		"recipients": len(details.Recipients),
		"format":     att.Format,
		"bytes":      len(att.Data),
	}).Info("[MAIL] Sending report email")

	if err := m.transport.DialAndSend(msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

// Compose builds the message. details.DashboardURL must already be the
// resolved dashboard link.
func (m *Mailer) Compose(details model.EmailDetails, att Attachment) *gomail.Message {
	filename := Filename(details.Title, att.Format)

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.smtp.FromEmail)
	msg.SetHeader("To", details.Recipients...)
	msg.SetHeader("Subject", Subject(m.subjectPrefix, details.Title))
	if m.smtp.ReplyTo != "" {
		msg.SetHeader("Reply-To", m.smtp.ReplyTo)
	}

	link := fmt.Sprintf("<p><a href='%s' target='_blank'>Link to dashboard</a></p>", html.EscapeString(details.DashboardURL))
	copyData := gomail.SetCopyFunc(func(w io.Writer) error {
		_, err := w.Write(att.Data)
		return err
	})

	if att.Disposition == model.DispositionInline {
		img := fmt.Sprintf("<img src=\"cid:%s\" alt=\"%s\">", filename, html.EscapeString(details.Title))
		msg.SetBody("text/html", details.Message+img+link)
		msg.Embed(filename, copyData, gomail.SetHeader(map[string][]string{
			"Content-Type": {att.Format.ContentType()},
		}))
		return msg
	}

	msg.SetBody("text/html", details.Message+link)
	msg.Attach(filename, copyData, gomail.SetHeader(map[string][]string{
		"Content-Type": {att.Format.ContentType()},
	}))
	return msg
}

// Subject is "<prefix> - <title>"
func Subject(prefix, title string) string {
	return prefix + " - " + title
}

// Filename derives the attachment name from the report title
func Filename(title string, format model.ArtifactFormat) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, title)
	if name == "" {
		name = "report"
	}
	return name + format.Extension()
}
