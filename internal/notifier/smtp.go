package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
)

const otpSubject = "Your verification code"

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends plain-text OTP mails through an SMTP relay.
type SMTPNotifier struct {
	addr     string
	from     string
	auth     smtp.Auth
	sendMail sendMailFunc
}

// NewSMTPNotifier validates the relay settings. server is host:port. When
// username is empty the relay is used without authentication.
func NewSMTPNotifier(server, username, password, from string) (*SMTPNotifier, error) {
	host, _, err := net.SplitHostPort(server)
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP server %q (expected host:port): %w", server, err)
	}
	if from == "" {
		from = username
	}
	if from == "" {
		return nil, errors.New("smtp sender address is not set")
	}

	n := &SMTPNotifier{
		addr:     server,
		from:     from,
		sendMail: smtp.SendMail,
	}
	if username != "" {
		n.auth = smtp.PlainAuth("", username, password, host)
	}
	return n, nil
}

func (n *SMTPNotifier) SendOTP(ctx context.Context, email, otp string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(email, "\r\n") {
		return fmt.Errorf("invalid recipient address")
	}
	msg := otpMessage(n.from, email, otp)
	if err := n.sendMail(n.addr, n.auth, n.from, []string{email}, msg); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", n.addr, err)
	}
	return nil
}

func otpMessage(from, to, otp string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + otpSubject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString("Your one-time password is " + otp + ".\r\n")
	b.WriteString("It can be used once. If you did not ask for it, ignore this message.\r\n")
	return []byte(b.String())
}
