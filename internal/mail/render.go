// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package mail renders and delivers account emails. Delivery runs on a
// Dispatcher so request handlers never wait on SMTP.
package mail

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/samber/oops"

	"github.com/bugreport/bugreport/internal/auth"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	textTemplates = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/*.txt.tmpl"))
	htmlTemplates = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/*.html.tmpl"))
)

var subjects = map[auth.MailKind]string{
	auth.MailActivate: "Activate your BugReport account",
	auth.MailReset:    "Reset your BugReport password",
}

var linkPaths = map[auth.MailKind]string{
	auth.MailActivate: "/activate/",
	auth.MailReset:    "/reset-password/",
}

// Message is a rendered email ready to send.
type Message struct {
	Kind    auth.MailKind
	To      string
	Name    string
	Subject string
	Text    string
	HTML    string
	// Fingerprint identifies the embedded token in logs.
	Fingerprint string
}

type templateData struct {
	Name      string
	Link      string
	ExpiresIn string
}

// Link builds the absolute URL the user follows for kind.
func Link(baseURL string, kind auth.MailKind, token string) (string, error) {
	path, ok := linkPaths[kind]
	if !ok {
		return "", oops.Code("MAIL_UNKNOWN_KIND").With("kind", string(kind)).Errorf("unknown mail kind")
	}
	return strings.TrimRight(baseURL, "/") + path + token, nil
}

// Render builds the text and HTML bodies for kind.
func Render(baseURL string, kind auth.MailKind, user *auth.User, token string, expiresIn time.Duration) (*Message, error) {
	link, err := Link(baseURL, kind, token)
	if err != nil {
		return nil, err
	}
	name := user.FullName()
	if name == "" {
		name = user.Email
	}
	data := templateData{Name: name, Link: link, ExpiresIn: expiresIn.String()}

	var text, html bytes.Buffer
	if err := textTemplates.ExecuteTemplate(&text, string(kind)+".txt.tmpl", data); err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").With("kind", string(kind)).With("part", "text").Wrap(err)
	}
	if err := htmlTemplates.ExecuteTemplate(&html, string(kind)+".html.tmpl", data); err != nil {
		return nil, oops.Code("MAIL_RENDER_FAILED").With("kind", string(kind)).With("part", "html").Wrap(err)
	}

	return &Message{
		Kind:        kind,
		To:          user.Email,
		Name:        name,
		Subject:     subjects[kind],
		Text:        text.String(),
		HTML:        html.String(),
		Fingerprint: auth.Fingerprint(token),
	}, nil
}
