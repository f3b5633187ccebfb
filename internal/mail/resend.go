// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Skycast Contributors

package mail

import (
	"bytes"
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
	"github.com/samber/oops"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// emailSender is the subset of the Resend emails API used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendNotifier sends mail through the Resend API.
type ResendNotifier struct {
	emails  emailSender
	from    string
	baseURL *url.URL
	logger  *slog.Logger
}

// ResendOption configures a ResendNotifier.
type ResendOption func(*ResendNotifier)

// WithLogger sets the notifier logger.
func WithLogger(logger *slog.Logger) ResendOption {
	return func(n *ResendNotifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func withSender(s emailSender) ResendOption {
	return func(n *ResendNotifier) { n.emails = s }
}

// NewResendNotifier creates a notifier sending from the given address.
// Links in the mail point at publicURL, the web frontend.
func NewResendNotifier(apiKey, from, publicURL string, opts ...ResendOption) (*ResendNotifier, error) {
	if apiKey == "" {
		return nil, oops.Code(CodeConfigInvalid).Errorf("resend api key is required")
	}
	if !strings.Contains(from, "@") {
		return nil, oops.Code(CodeConfigInvalid).With("from", from).Errorf("sender address is invalid")
	}
	u, err := url.Parse(strings.TrimRight(publicURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, oops.Code(CodeConfigInvalid).With("public_url", publicURL).Errorf("public url must be absolute")
	}

	n := &ResendNotifier{
		emails:  resend.NewClient(apiKey).Emails,
		from:    from,
		baseURL: u,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

type mailData struct {
	Link string
}

// SendVerification mails the account verification link to to.
func (n *ResendNotifier) SendVerification(ctx context.Context, to, token string) error {
	return n.send(ctx, to, "Verify your Skycast account", "verify_email.html", n.link("verify-email", token))
}

// SendPasswordReset mails the password reset link to to.
func (n *ResendNotifier) SendPasswordReset(ctx context.Context, to, token string) error {
	return n.send(ctx, to, "Reset your Skycast password", "reset_password.html", n.link("reset-password", token))
}

func (n *ResendNotifier) link(page, token string) string {
	u := n.baseURL.JoinPath(page)
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String()
}

func (n *ResendNotifier) send(ctx context.Context, to, subject, tmpl, link string) error {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, tmpl, mailData{Link: link}); err != nil {
		return oops.Code(CodeRenderFailed).With("template", tmpl).Wrap(err)
	}

	resp, err := n.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{to},
		Subject: subject,
		Html:    body.String(),
	})
	if err != nil {
		return oops.Code(CodeSendFailed).With("template", tmpl).Wrap(err)
	}
	n.logger.DebugContext(ctx, "mail sent", "template", tmpl, "id", resp.Id)
	return nil
}
