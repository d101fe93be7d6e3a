package main

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/logger"
	"github.com/suPer8Hu/canvas-platform/internal/store/rabbitmq"
)

const (
	maxRetries = 3
	retryDelay = 10 * time.Second
)

type jobRunner interface {
	RunJob(ctx context.Context, jobID string) error
	FailJob(ctx context.Context, jobID, reason string) error
}

type retrier interface {
	Retry(ctx context.Context, body []byte, attempt int, delay time.Duration) error
}

type processor struct {
	runner  jobRunner
	retrier retrier
	log     *logger.Logger
}

// handle settles one delivery. Jobs whose failure is already recorded on the
// job row are acked; infrastructure errors go through the retry queue and
// end in the DLQ.
func (p *processor) handle(ctx context.Context, log *logger.Logger, d amqp.Delivery) {
	m, err := rabbitmq.DecodeTurn(d.Body)
	if err != nil {
		log.Warn("bad message", "error", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err = p.runner.RunJob(ctx, m.JobID)
	switch apperr.KindOf(err) {
	case "":
		log.Info("job done", "job_id", m.JobID, "cost", time.Since(start))
	case apperr.KindNotFound:
		log.Warn("job vanished", "job_id", m.JobID)
	case apperr.KindGateway, apperr.KindTimeout:
		log.Warn("job failed", "job_id", m.JobID, "cost", time.Since(start), "error", err)
	default:
		attempt := rabbitmq.Attempts(d.Headers) + 1
		if attempt > maxRetries {
			log.Error("job dead-lettered", "job_id", m.JobID, "attempts", attempt-1, "error", err)
			p.deadLetter(ctx, log, d, m.JobID, "retries exhausted")
			return
		}
		if rerr := p.retrier.Retry(ctx, d.Body, attempt, retryDelay); rerr != nil {
			log.Error("retry publish failed", "job_id", m.JobID, "error", rerr)
			p.deadLetter(ctx, log, d, m.JobID, "retry not scheduled")
			return
		}
		log.Warn("job retry scheduled", "job_id", m.JobID, "attempt", attempt, "error", err)
	}

	if err := d.Ack(false); err != nil {
		log.Error("ack failed", "job_id", m.JobID, "error", err)
	}
}

// deadLetter records the job as failed so pollers stop waiting, then routes
// the delivery to the DLQ.
func (p *processor) deadLetter(ctx context.Context, log *logger.Logger, d amqp.Delivery, jobID, reason string) {
	if err := p.runner.FailJob(ctx, jobID, reason); err != nil {
		log.Error("mark job failed", "job_id", jobID, "error", err)
	}
	_ = d.Nack(false, false)
}
