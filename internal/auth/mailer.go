// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package auth

import "context"

// MailKind selects the email template.
type MailKind string

// Mail kinds.
const (
	MailActivate MailKind = "activate"
	MailReset    MailKind = "reset"
)

// Mailer delivers reset and activation links. Delivery is fire-and-forget:
// implementations log their own failures and never report them back.
type Mailer interface {
	SendPasswordResetEmail(ctx context.Context, user *User, kind MailKind, token string)
}

// EventRecorder receives auth outcomes for metrics.
type EventRecorder interface {
	RecordAuthEvent(event, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordAuthEvent(string, string) {}
