package mail

import (
	"context"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// FailoverMailer tries a primary transport and, if it errors, retries the
// same message on a secondary one. A message is never sent twice: the
// secondary runs only after the primary has failed.
type FailoverMailer struct {
	primary   Mailer
	secondary Mailer
	logger    log.Logger
}

// NewFailover wraps primary with secondary. Secondary may be nil, in which
// case primary errors propagate unchanged.
func NewFailover(primary, secondary Mailer, logger log.Logger) *FailoverMailer {
	return &FailoverMailer{primary: primary, secondary: secondary, logger: logger}
}

func (f *FailoverMailer) Send(ctx context.Context, msg Message) error {
	err := f.primary.Send(ctx, msg)
	if err == nil {
		return nil
	}
	if f.secondary == nil {
		return err
	}
	level.Warn(f.logger).Log(
		"msg", "primary mail transport failed, retrying on secondary",
		"subject", msg.Subject,
		"err", err,
	)
	return f.secondary.Send(ctx, msg)
}
