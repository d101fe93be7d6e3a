package canvas

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/common"
	"github.com/suPer8Hu/canvas-platform/internal/models"
)

const maxIdempotencyKeyLen = 128

var ErrAsyncDisabled = apperr.New(apperr.KindInternal, "async turns are not enabled")

// PostMessageAsync stores the user message and a queued job in one
// transaction, then publishes the job. Repeating a call with the same
// idempotency key returns the first job and stores nothing new.
func (s *Service) PostMessageAsync(ctx context.Context, ownerID uint64, chatID, content, idempotencyKey string) (*models.TurnJob, bool, error) {
	if s.publisher == nil {
		return nil, false, ErrAsyncDisabled
	}
	if err := validateTurn(chatID, content); err != nil {
		return nil, false, err
	}
	key := strings.TrimSpace(idempotencyKey)
	if len(key) > maxIdempotencyKeyLen {
		return nil, false, apperr.Validation("idempotency key too long")
	}

	if key != "" {
		existing, err := s.repo.GetJobByIdempotencyKey(ctx, nil, ownerID, key)
		if err == nil {
			return existing, false, nil
		}
		if !isNotFound(err) {
			return nil, false, err
		}
	}

	job := &models.TurnJob{
		ID:     common.NewULID(),
		UserID: ownerID,
		ChatID: chatID,
		Status: models.JobQueued,
	}
	if key != "" {
		job.IdempotencyKey = &key
	}

	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		msg, _, err := s.insertUserTurn(ctx, tx, ownerID, chatID, content)
		if err != nil {
			return err
		}
		job.UserMessageID = msg.ID
		return s.repo.CreateJob(ctx, tx, job)
	})
	if err != nil {
		// lost a race on the same key
		if key != "" && errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, getErr := s.repo.GetJobByIdempotencyKey(ctx, nil, ownerID, key)
			if getErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, err
	}

	if err := s.publisher.PublishTurn(ctx, job.ID); err != nil {
		_ = s.repo.MarkJobFailed(ctx, nil, job.ID, "enqueue failed")
		s.log.Error("publish turn job failed", "job_id", job.ID, "chat_id", chatID, "error", err)
		return nil, false, apperr.Wrap(apperr.KindInternal, "enqueue failed", err)
	}
	return job, true, nil
}

// GetJob hides other users' jobs as not found.
func (s *Service) GetJob(ctx context.Context, ownerID uint64, jobID string) (*models.TurnJob, error) {
	if err := requireID("job id", jobID); err != nil {
		return nil, err
	}
	j, err := s.repo.GetJob(ctx, nil, jobID)
	if err != nil {
		if isNotFound(err) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, err
	}
	if j.UserID != ownerID {
		return nil, apperr.NotFound("job not found")
	}
	return j, nil
}

// RunJob generates the model reply for a queued job. A job another worker
// holds is skipped, so redelivery is harmless. Gateway failures are final and
// recorded on the job; other errors put the job back in the queue state and
// are returned for the caller to retry.
func (s *Service) RunJob(ctx context.Context, jobID string) error {
	started, err := s.repo.MarkJobRunning(ctx, nil, jobID, time.Now().Add(-s.jobLease))
	if err != nil {
		return err
	}
	j, err := s.repo.GetJob(ctx, nil, jobID)
	if err != nil {
		if isNotFound(err) {
			return apperr.NotFound("job not found")
		}
		return err
	}
	if !started {
		s.log.Info("turn job skipped", "job_id", jobID, "status", j.Status)
		return nil
	}

	fail := func(err error) error {
		switch apperr.KindOf(err) {
		case apperr.KindGateway, apperr.KindTimeout, apperr.KindNotFound:
			if markErr := s.repo.MarkJobFailed(ctx, nil, jobID, err.Error()); markErr != nil {
				s.log.Error("mark job failed", "job_id", jobID, "error", markErr)
			}
			s.metrics.ObserveJob(string(models.JobFailed))
		default:
			if markErr := s.repo.MarkJobQueued(ctx, nil, jobID, err.Error()); markErr != nil {
				s.log.Error("requeue job", "job_id", jobID, "error", markErr)
			}
		}
		return err
	}

	userMsg, err := s.repo.GetMessage(ctx, nil, j.UserMessageID)
	if err != nil {
		if isNotFound(err) {
			return fail(apperr.NotFound("user message not found"))
		}
		return fail(fmt.Errorf("load user message: %w", err))
	}
	history, err := s.repo.RecentMessages(ctx, nil, j.ChatID, s.historySize, userMsg.OrderIndex)
	if err != nil {
		return fail(err)
	}

	reply, err := s.gateway.Reply(ctx, toAIMessages(history), userMsg.Content)
	if err != nil {
		return fail(gatewayError(err))
	}

	// the reply and the job result commit together, so a retry never answers twice
	err = s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		modelMsg, err := s.appendModelMessageTx(ctx, tx, j.ChatID, reply)
		if err != nil {
			return err
		}
		return s.repo.MarkJobSucceeded(ctx, tx, jobID, modelMsg.ID)
	})
	if err != nil {
		return fail(err)
	}
	s.metrics.ObserveJob(string(models.JobSucceeded))
	return nil
}

// FailJob records a job as failed once it will not be retried again.
func (s *Service) FailJob(ctx context.Context, jobID, reason string) error {
	if err := s.repo.MarkJobFailed(ctx, nil, jobID, reason); err != nil {
		return err
	}
	s.metrics.ObserveJob(string(models.JobFailed))
	return nil
}
