// Package email sends transactional mail through the SendGrid API.
package email

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

// Links tells the mailer where emailed tokens should send users.
type Links struct {
	ActivationURL string
	RecoveryURL   string
	Validity      time.Duration
}

type Email struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	links      Links
}

func New(key, fromName, fromAddr, appName string, links Links) *Email {
	return &Email{
		key:        key,
		from:       sgmail.NewEmail(fromName, fromAddr),
		subjPrefix: "[" + appName + "] ",
		links:      links,
	}
}

func (e *Email) SendActivationToken(email, uid, token string) error {
	link := fmt.Sprintf("%s?uid=%s&token=%s", e.links.ActivationURL, uid, token)
	hours := int(e.links.Validity.Hours())

	text := fmt.Sprintf(
		"Welcome!\n\nPlease confirm your account by visiting the link below:\n\n%s\n\nThe link expires in %d hours.\n",
		link, hours,
	)
	html := fmt.Sprintf(
		`<p>Welcome!</p><p>Please confirm your account by clicking <a href="%s">here</a>.</p><p>The link expires in %d hours.</p>`,
		link, hours,
	)

	return e.send(email, "Activate your account", text, html)
}

func (e *Email) SendRecoveryToken(email, uid, token string) error {
	link := fmt.Sprintf("%s?uid=%s&token=%s", e.links.RecoveryURL, uid, token)
	hours := int(e.links.Validity.Hours())

	text := fmt.Sprintf(
		"A password reset was requested for your account.\n\nVisit the link below to choose a new password:\n\n%s\n\nThe link expires in %d hours. If you did not request this, ignore this email.\n",
		link, hours,
	)
	html := fmt.Sprintf(
		`<p>A password reset was requested for your account.</p><p>Click <a href="%s">here</a> to choose a new password.</p><p>The link expires in %d hours. If you did not request this, ignore this email.</p>`,
		link, hours,
	)

	return e.send(email, "Reset your password", text, html)
}

// SendReceipt confirms a completed purchase, listing the unlocked courses.
func (e *Email) SendReceipt(email string, courses []string, amount int, ref string) error {
	var tb strings.Builder
	var hb strings.Builder
	for _, c := range courses {
		fmt.Fprintf(&tb, "  - %s\n", c)
		fmt.Fprintf(&hb, "<li>%s</li>", html.EscapeString(c))
	}

	text := fmt.Sprintf(
		"Thank you for your purchase!\n\nCourses:\n%s\nTotal paid: Rs. %d\nPayment reference: %s\n\nThe courses are already available in your dashboard.\n",
		tb.String(), amount, ref,
	)
	htm := fmt.Sprintf(
		`<p>Thank you for your purchase!</p><ul>%s</ul><p>Total paid: Rs. %d<br>Payment reference: %s</p><p>The courses are already available in your dashboard.</p>`,
		hb.String(), amount, html.EscapeString(ref),
	)

	return e.send(email, "Payment received", text, htm)
}

func (e *Email) send(to, subject, text, html string) error {
	p := sgmail.NewPersonalization()
	p.Subject = e.subjPrefix + subject
	p.AddTos(sgmail.NewEmail("", to))

	m := sgmail.NewV3Mail()
	m.SetFrom(e.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", html),
	)

	req := sendgrid.GetRequest(e.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sending email: status %d: %s", res.StatusCode, res.Body)
	}

	return nil
}
