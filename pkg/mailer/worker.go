package mailer

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"
)

// Outcome tells the queue consumer what to do with a delivery.
type Outcome int

const (
	Ack Outcome = iota
	// Drop discards a message that can never be sent.
	Drop
	// Retry hands the message back to the broker.
	Retry
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Drop:
		return "drop"
	default:
		return "retry"
	}
}

// Process decodes one queued EmailJob and sends it. Malformed or unrenderable
// jobs are dropped; send failures are retried.
func Process(ctx context.Context, body []byte, sender Sender) (Outcome, error) {
	var job EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		return Drop, oops.Code("EMAIL_JOB_DECODE_FAILED").Wrap(err)
	}
	subject, text, html, err := job.Compose()
	if err != nil {
		return Drop, oops.Code("EMAIL_JOB_RENDER_FAILED").With("template", job.Template).Wrap(err)
	}
	if err := sender.Send(ctx, job.To, subject, text, html); err != nil {
		return Retry, oops.Code("EMAIL_SEND_FAILED").With("template", job.Template).Wrap(err)
	}
	return Ack, nil
}
