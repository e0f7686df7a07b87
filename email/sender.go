package email

import (
	"crypto/tls"
	"fmt"
	"os"

	mail "github.com/go-mail/mail"

	"github.com/princinho/lmsbackend/utils"
)

// Sender delivers a single message. The token service only depends on
// this interface; tests swap in a recorder.
type Sender interface {
	Send(to, subject, htmlBody, textBody string) error
}

type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	SSL                bool
	InsecureSkipVerify bool
}

func NewSMTPSenderFromEnv() *SMTPSender {
	return &SMTPSender{
		Host: os.Getenv("SMTP_HOST"),
		Port: utils.ParseIntDefault(os.Getenv("SMTP_PORT"), 587),
		From: os.Getenv("SMTP_FROM"),
		User: os.Getenv("SMTP_USER"),
		Pass: os.Getenv("SMTP_PASS"),
		SSL:  os.Getenv("SMTP_SSL") == "true",
	}
}

func (s *SMTPSender) Send(to, subject, htmlBody, textBody string) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.From)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)

	if textBody != "" {
		m.SetBody("text/plain", textBody)
	}
	if htmlBody != "" {
		if textBody == "" {
			m.SetBody("text/html", htmlBody)
		} else {
			m.AddAlternative("text/html", htmlBody)
		}
	}

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.SSL = s.SSL
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify, // dev only
	}

	return d.DialAndSend(m)
}

// Mailer renders the activation / reset messages around a Sender.
type Mailer struct {
	Sender  Sender
	BaseURL string // dashboard origin the token links point at
}

func NewMailer(s Sender) *Mailer {
	return &Mailer{Sender: s, BaseURL: os.Getenv("APP_BASE_URL")}
}

// SendPasswordToken mails the single-use token link. isNewUser selects the
// activation wording (24h window) over the reset wording (1h window).
func (m *Mailer) SendPasswordToken(to, name, token string, isNewUser bool) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", m.BaseURL, token)

	var subject, intro, window string
	if isNewUser {
		subject = "Activate your account"
		intro = "Your account has been created. Set a password to get started."
		window = "24 hours"
	} else {
		subject = "Reset your password"
		intro = "We received a request to reset your password."
		window = "1 hour"
	}

	text := fmt.Sprintf("Hi %s,\n\n%s\n\n%s\n\nThis link expires in %s. If you did not expect this email you can ignore it.\n",
		name, intro, link, window)
	html := fmt.Sprintf(`<p>Hi %s,</p><p>%s</p><p><a href="%s">Set your password</a></p><p>This link expires in %s. If you did not expect this email you can ignore it.</p>`,
		name, intro, link, window)

	return m.Sender.Send(to, subject, html, text)
}
