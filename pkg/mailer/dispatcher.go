package mailer

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Dispatcher hands a job to whatever delivers it. Callers treat dispatch as
// best effort and only log a returned error.
type Dispatcher interface {
	Dispatch(ctx context.Context, job EmailJob) error
}

// Publisher is satisfied by helpers.RabbitPublisher.
type Publisher interface {
	PublishJSON(ctx context.Context, body any) error
}

// QueueDispatcher enqueues jobs for cmd/email_worker.
type QueueDispatcher struct {
	Pub Publisher
}

func NewQueueDispatcher(pub Publisher) *QueueDispatcher {
	return &QueueDispatcher{Pub: pub}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job EmailJob) error {
	if job.To == "" {
		return ErrEmptyJob
	}
	return d.Pub.PublishJSON(ctx, job)
}

// DirectDispatcher renders and sends in the calling goroutine.
type DirectDispatcher struct {
	Sender Sender
}

func NewDirectDispatcher(sender Sender) *DirectDispatcher {
	return &DirectDispatcher{Sender: sender}
}

func (d *DirectDispatcher) Dispatch(ctx context.Context, job EmailJob) error {
	subject, text, html, err := job.Compose()
	if err != nil {
		return err
	}
	return d.Sender.Send(ctx, job.To, subject, text, html)
}

// LogDispatcher renders the job and logs it instead of sending. Used when
// MAIL_SEND_ENABLED=false so links can be copied from the log in development.
type LogDispatcher struct {
	Logger *logrus.Logger
}

func NewLogDispatcher(logger *logrus.Logger) *LogDispatcher {
	return &LogDispatcher{Logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, job EmailJob) error {
	subject, text, _, err := job.Compose()
	if err != nil {
		return err
	}
	d.Logger.WithFields(logrus.Fields{
		"to":       job.To,
		"subject":  subject,
		"template": job.Template,
	}).Debug("email not sent (sending disabled)\n" + text)
	return nil
}

var (
	_ Dispatcher = (*QueueDispatcher)(nil)
	_ Dispatcher = (*DirectDispatcher)(nil)
	_ Dispatcher = (*LogDispatcher)(nil)
)
