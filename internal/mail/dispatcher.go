// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 BugReport Contributors

package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/bugreport/bugreport/internal/auth"
	"github.com/bugreport/bugreport/pkg/errutil"
)

// Dispatch outcomes reported to the Recorder.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

// Recorder receives dispatch outcomes for metrics.
type Recorder interface {
	RecordMailDispatch(kind, outcome string)
}

type noopRecorder struct{}

func (noopRecorder) RecordMailDispatch(string, string) {}

// DispatcherOptions configures a Dispatcher.
type DispatcherOptions struct {
	BaseURL     string
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
	// LinkTTL is quoted in the message body.
	LinkTTL  time.Duration
	Logger   *slog.Logger
	Recorder Recorder
}

// Dispatcher implements auth.Mailer with a bounded queue drained by a fixed
// pool of workers. A full queue drops the message.
type Dispatcher struct {
	sender Sender
	opts   DispatcherOptions
	queue  chan *Message

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
}

// NewDispatcher starts the workers.
func NewDispatcher(sender Sender, opts DispatcherOptions) (*Dispatcher, error) {
	if sender == nil {
		return nil, oops.Code("MAIL_DISPATCHER_INVALID").Errorf("sender is required")
	}
	if opts.BaseURL == "" {
		return nil, oops.Code("MAIL_DISPATCHER_INVALID").Errorf("base url is required")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = auth.ResetTokenExpiry
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Recorder == nil {
		opts.Recorder = noopRecorder{}
	}

	d := &Dispatcher{
		sender: sender,
		opts:   opts,
		queue:  make(chan *Message, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for range opts.Workers {
		go d.worker()
	}
	return d, nil
}

// SendPasswordResetEmail renders the message and queues it. It never
// blocks on delivery.
func (d *Dispatcher) SendPasswordResetEmail(ctx context.Context, user *auth.User, kind auth.MailKind, token string) {
	msg, err := Render(d.opts.BaseURL, kind, user, token, d.opts.LinkTTL)
	if err != nil {
		errutil.LogErrorContext(ctx, d.opts.Logger, "mail render failed", err, "kind", string(kind))
		d.opts.Recorder.RecordMailDispatch(string(kind), OutcomeFailed)
		return
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, msg, "dispatcher closed")
		return
	}
	select {
	case d.queue <- msg:
	default:
		d.drop(ctx, msg, "queue full")
	}
}

func (d *Dispatcher) drop(ctx context.Context, msg *Message, reason string) {
	d.opts.Logger.WarnContext(ctx, "mail dropped",
		"reason", reason,
		"kind", string(msg.Kind),
		"token", msg.Fingerprint)
	d.opts.Recorder.RecordMailDispatch(string(msg.Kind), OutcomeDropped)
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.SendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, msg); err != nil {
		errutil.LogErrorContext(ctx, d.opts.Logger, "mail delivery failed", err,
			"kind", string(msg.Kind), "token", msg.Fingerprint)
		d.opts.Recorder.RecordMailDispatch(string(msg.Kind), OutcomeFailed)
		return
	}
	d.opts.Recorder.RecordMailDispatch(string(msg.Kind), OutcomeSent)
}

// Close stops accepting messages and waits for queued ones to be delivered.
// If ctx ends first, Close returns its error and the workers finish in the
// background.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return oops.Code("MAIL_DRAIN_TIMEOUT").With("pending", len(d.queue)).Wrap(ctx.Err())
	}
}

// Compile-time interface check.
var _ auth.Mailer = (*Dispatcher)(nil)
