// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

// Package authtest provides in-memory fakes of the auth collaborators for
// tests in this module.
package authtest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bugreport/bugreport/internal/auth"
)

// ManualClock is a Clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock returns a clock frozen at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the current fake time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// PlainHasher is a PasswordHasher that stores passwords with a fixed
// prefix. It keeps service tests fast; never use it outside tests.
type PlainHasher struct{}

const plainPrefix = "plain:"

// Hash implements auth.PasswordHasher.
func (PlainHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", auth.ErrEmptyPassword
	}
	return plainPrefix + password, nil
}

// Verify implements auth.PasswordHasher.
func (PlainHasher) Verify(password, digest string) (bool, error) {
	return digest == plainPrefix+password, nil
}

// NeedsUpgrade implements auth.PasswordHasher.
func (PlainHasher) NeedsUpgrade(string) bool { return false }

// Users is an in-memory auth.UserRepository.
type Users struct {
	mu    sync.Mutex
	byID  map[ulid.ULID]auth.User
	Err   error // returned by every call when set
	Calls int
}

// NewUsers returns an empty Users.
func NewUsers() *Users {
	return &Users{byID: make(map[ulid.ULID]auth.User)}
}

// Put stores u without any checks.
func (r *Users) Put(u *auth.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[u.ID] = *u
}

func (r *Users) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return nil, r.Err
	}
	u, ok := r.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &u, nil
}

func (r *Users) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return nil, r.Err
	}
	for _, u := range r.byID {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *Users) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	if errors.Is(err, auth.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (r *Users) Create(_ context.Context, u *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return r.Err
	}
	for _, existing := range r.byID {
		if existing.Email == u.Email {
			return auth.ErrEmailTaken
		}
	}
	r.byID[u.ID] = *u
	return nil
}

func (r *Users) Update(_ context.Context, u *auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.byID[u.ID]; !ok {
		return auth.ErrNotFound
	}
	for id, existing := range r.byID {
		if id != u.ID && existing.Email == u.Email {
			return auth.ErrEmailTaken
		}
	}
	r.byID[u.ID] = *u
	return nil
}

func (r *Users) Delete(_ context.Context, id ulid.ULID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls++
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.byID[id]; !ok {
		return auth.ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

type resetKey struct {
	user    ulid.ULID
	purpose auth.ResetPurpose
}

// Resets is an in-memory auth.ResetTokenRepository.
type Resets struct {
	mu   sync.Mutex
	rows map[resetKey]auth.ResetToken
	Err  error
}

// NewResets returns an empty Resets.
func NewResets() *Resets {
	return &Resets{rows: make(map[resetKey]auth.ResetToken)}
}

// Len returns the number of stored tokens.
func (r *Resets) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *Resets) Upsert(_ context.Context, t *auth.ResetToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.rows[resetKey{t.UserID, t.Purpose}] = *t
	return nil
}

func (r *Resets) Consume(_ context.Context, hash string, purpose auth.ResetPurpose) (*auth.ResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	for k, t := range r.rows {
		if t.TokenHash == hash && t.Purpose == purpose {
			delete(r.rows, k)
			return &t, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r *Resets) DeleteByUser(_ context.Context, userID ulid.ULID, purpose auth.ResetPurpose) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	delete(r.rows, resetKey{userID, purpose})
	return nil
}

func (r *Resets) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return 0, r.Err
	}
	var n int64
	for k, t := range r.rows {
		if !t.ExpiresAt.After(before) {
			delete(r.rows, k)
			n++
		}
	}
	return n, nil
}

// Sessions is an in-memory auth.RevocationStore.
type Sessions struct {
	mu    sync.Mutex
	rows  map[ulid.ULID]auth.RefreshSession
	clock auth.Clock
	Err   error
}

// NewSessions returns an empty Sessions stamping revocations with clock.
func NewSessions(clock auth.Clock) *Sessions {
	if clock == nil {
		clock = auth.SystemClock{}
	}
	return &Sessions{rows: make(map[ulid.ULID]auth.RefreshSession), clock: clock}
}

// Live returns the number of unrevoked sessions of the user.
func (s *Sessions) Live(userID ulid.ULID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, row := range s.rows {
		if row.UserID == userID && row.RevokedAt == nil {
			n++
		}
	}
	return n
}

func (s *Sessions) Record(_ context.Context, session *auth.RefreshSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.rows[session.ID] = *session
	return nil
}

func (s *Sessions) IsRevoked(_ context.Context, id ulid.ULID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	row, ok := s.rows[id]
	if !ok {
		return true, nil
	}
	return row.RevokedAt != nil, nil
}

func (s *Sessions) Revoke(_ context.Context, id ulid.ULID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	row, ok := s.rows[id]
	if !ok || row.RevokedAt != nil {
		return false, nil
	}
	now := s.clock.Now()
	row.RevokedAt = &now
	s.rows[id] = row
	return true, nil
}

func (s *Sessions) RevokeAll(_ context.Context, userID ulid.ULID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	now := s.clock.Now()
	var n int64
	for id, row := range s.rows {
		if row.UserID == userID && row.RevokedAt == nil {
			row.RevokedAt = &now
			s.rows[id] = row
			n++
		}
	}
	return n, nil
}

func (s *Sessions) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	var n int64
	for id, row := range s.rows {
		if !row.ExpiresAt.After(before) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// SentMail is one message captured by RecordingMailer.
type SentMail struct {
	UserID ulid.ULID
	Email  string
	Kind   auth.MailKind
	Token  string
}

// RecordingMailer captures every message instead of sending it.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []SentMail
}

// SendPasswordResetEmail implements auth.Mailer.
func (m *RecordingMailer) SendPasswordResetEmail(_ context.Context, user *auth.User, kind auth.MailKind, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentMail{UserID: user.ID, Email: user.Email, Kind: kind, Token: token})
}

// Sent returns a copy of the captured messages.
func (m *RecordingMailer) Sent() []SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMail(nil), m.sent...)
}

// Last returns the most recent message, or false if none was sent.
func (m *RecordingMailer) Last() (SentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return SentMail{}, false
	}
	return m.sent[len(m.sent)-1], true
}

// Reset discards the captured messages.
func (m *RecordingMailer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
