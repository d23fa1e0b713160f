package alert

import (
	"net/smtp"
	"strconv"
	"strings"
)

// SMTPTransport sends mail via net/smtp. No mail-sending library
// appears anywhere in the retrieval pack (see DESIGN.md), so this is
// the documented standard-library exception for the Email Alert
// Engine's outbound transport.
type SMTPTransport struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (t *SMTPTransport) addr() string {
	return t.Host + ":" + strconv.Itoa(t.Port)
}

func (t *SMTPTransport) Send(from string, to, cc []string, subject, body string) error {
	var auth smtp.Auth
	if t.Username != "" {
		auth = smtp.PlainAuth("", t.Username, t.Password, t.Host)
	}

	recipients := make([]string, 0, len(to)+len(cc))
	recipients = append(recipients, to...)
	recipients = append(recipients, cc...)

	msg := buildMessage(from, to, cc, subject, body)
	return smtp.SendMail(t.addr(), auth, from, recipients, msg)
}

func buildMessage(from string, to, cc []string, subject, body string) []byte {
	headers := "From: " + from + "\r\n" +
		"To: " + join(to) + "\r\n"
	if len(cc) > 0 {
		headers += "Cc: " + join(cc) + "\r\n"
	}
	headers += "Subject: " + subject + "\r\n\r\n"
	return []byte(headers + body)
}

func join(ss []string) string {
	return strings.Join(ss, ", ")
}
