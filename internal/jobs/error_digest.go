package jobs

import (
	"context"
	"fmt"

	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"
)

const ErrorDigestMsgType = "error_digest"

// DigestSender delivers an error digest somewhere a human reads it.
type DigestSender interface {
	SendDigest(ctx context.Context, entries []logger.AggregatedLogEntry) error
}

// ErrorDigestJob consumes digests flushed by the log collector.
type ErrorDigestJob struct {
	sender DigestSender
	log    *logger.Logger
}

// NewErrorDigestJob builds the job. A nil sender logs the digest size and drops it.
func NewErrorDigestJob(sender DigestSender, log *logger.Logger) *ErrorDigestJob {
	return &ErrorDigestJob{sender: sender, log: log}
}

func (j *ErrorDigestJob) Name() string { return "error_digest" }

func (j *ErrorDigestJob) Type() string { return ErrorDigestMsgType }

func (j *ErrorDigestJob) Handle(ctx context.Context, payload interface{}) error {
	entries, err := queue.ParsePayload[[]logger.AggregatedLogEntry](payload)
	if err != nil {
		return fmt.Errorf("error_digest payload: %w", err)
	}
	if j.sender == nil {
		// logged at info so the digest itself is not fed back into the collector
		j.log.Info("error digest dropped", logger.Int("entries", len(*entries)))
		return nil
	}
	return j.sender.SendDigest(ctx, *entries)
}

var _ queue.Job = (*ErrorDigestJob)(nil)
