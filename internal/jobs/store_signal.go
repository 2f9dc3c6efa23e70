package jobs

import (
	"context"
	"fmt"

	"SignalDesk/internal/usecase"
	"SignalDesk/pkg/logger"
	"SignalDesk/pkg/queue"
)

const (
	StoreSignalJobName = "store_signal"
	StoreSignalMsgType = "store_signal"
)

// SignalCreator persists a priced signal.
type SignalCreator interface {
	Submit(ctx context.Context, p usecase.CreateSignalParams) error
}

// StoreSignalJob persists signals the generator enqueued.
type StoreSignalJob struct {
	creator SignalCreator
	log     *logger.Logger
}

func NewStoreSignalJob(creator SignalCreator, log *logger.Logger) *StoreSignalJob {
	return &StoreSignalJob{creator: creator, log: log}
}

func (j *StoreSignalJob) Name() string { return StoreSignalJobName }

func (j *StoreSignalJob) Type() string { return StoreSignalMsgType }

func (j *StoreSignalJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[usecase.CreateSignalParams](payload)
	if err != nil {
		return fmt.Errorf("store_signal payload: %w", err)
	}
	if err := j.creator.Submit(ctx, *p); err != nil {
		j.log.Error("store signal failed",
			logger.String("symbol", p.Symbol),
			logger.String("timeframe", string(p.Timeframe)),
			logger.Error(err),
		)
		return err
	}
	return nil
}

// QueueSink hands generated signals to the store_signal job instead of persisting inline.
type QueueSink struct {
	q queue.QueueService
}

func NewQueueSink(q queue.QueueService) *QueueSink {
	return &QueueSink{q: q}
}

func (s *QueueSink) Submit(ctx context.Context, p usecase.CreateSignalParams) error {
	return s.q.PublishMessage(ctx, StoreSignalMsgType, p)
}

var (
	_ queue.Job          = (*StoreSignalJob)(nil)
	_ usecase.SignalSink = (*QueueSink)(nil)
)
