package mailer

import (
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/oksasatya/go-account-lifecycle/pkg/mailer/templates"
)

// EmailJob is the JSON payload put on the RabbitMQ queue for sending email.
// Either Template (with Data) or Subject plus a body is set.
type EmailJob struct {
	To       string         `json:"to"`
	Subject  string         `json:"subject,omitempty"`
	Text     string         `json:"text,omitempty"`
	HTML     string         `json:"html,omitempty"`
	Template string         `json:"template,omitempty"` // verify_email, welcome, reset_password, login_notification
	Data     map[string]any `json:"data,omitempty"`
}

var ErrEmptyJob = errors.New("email job has no recipient or content")

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	blankPattern = regexp.MustCompile(`\n\s*\n+`)
)

// Compose renders the job into subject, text and html bodies. A missing text
// body is derived from the html one.
func (j EmailJob) Compose() (subject, text, htmlBody string, err error) {
	if strings.TrimSpace(j.To) == "" {
		return "", "", "", ErrEmptyJob
	}
	subject, text, htmlBody = j.Subject, j.Text, j.HTML
	if j.Template != "" {
		subject, text, htmlBody, err = templates.Render(j.Template, j.Data)
		if err != nil {
			return "", "", "", err
		}
	}
	if subject == "" || (text == "" && htmlBody == "") {
		return "", "", "", ErrEmptyJob
	}
	if text == "" {
		text = StripHTML(htmlBody)
	}
	return subject, text, htmlBody, nil
}

// StripHTML turns an html body into readable plain text.
func StripHTML(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = blankPattern.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
