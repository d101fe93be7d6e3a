package main

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/suPer8Hu/canvas-platform/internal/apperr"
	"github.com/suPer8Hu/canvas-platform/internal/logger"
)

type fakeAck struct {
	acks, nacks int
}

func (a *fakeAck) Ack(tag uint64, multiple bool) error { a.acks++; return nil }
func (a *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	a.nacks++
	return nil
}
func (a *fakeAck) Reject(tag uint64, requeue bool) error { a.nacks++; return nil }

type fakeRunner struct {
	err    error
	jobs   []string
	failed []string
}

func (r *fakeRunner) RunJob(_ context.Context, jobID string) error {
	r.jobs = append(r.jobs, jobID)
	return r.err
}

func (r *fakeRunner) FailJob(_ context.Context, jobID, _ string) error {
	r.failed = append(r.failed, jobID)
	return nil
}

type fakeRetrier struct {
	attempts []int
	err      error
}

func (r *fakeRetrier) Retry(_ context.Context, _ []byte, attempt int, _ time.Duration) error {
	r.attempts = append(r.attempts, attempt)
	return r.err
}

func delivery(ack *fakeAck, body string, headers amqp.Table) amqp.Delivery {
	return amqp.Delivery{Acknowledger: ack, Body: []byte(body), Headers: headers}
}

func TestHandle(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		headers   amqp.Table
		runErr    error
		retryErr  error
		wantAcks  int
		wantNacks int
		wantRetry []int
		wantFail  bool
	}{
		{name: "success", body: `{"job_id":"j1"}`, wantAcks: 1},
		{name: "bad body", body: `{}`, wantNacks: 1},
		{name: "job gone", body: `{"job_id":"j1"}`, runErr: apperr.NotFound("job not found"), wantAcks: 1},
		{name: "gateway failure recorded", body: `{"job_id":"j1"}`, runErr: apperr.New(apperr.KindGateway, "down"), wantAcks: 1},
		{name: "db error retried", body: `{"job_id":"j1"}`, runErr: errors.New("db gone"), wantAcks: 1, wantRetry: []int{1}},
		{name: "second retry", body: `{"job_id":"j1"}`, headers: amqp.Table{"x-retries": int32(1)}, runErr: errors.New("db gone"), wantAcks: 1, wantRetry: []int{2}},
		{name: "retries exhausted", body: `{"job_id":"j1"}`, headers: amqp.Table{"x-retries": int32(3)}, runErr: errors.New("db gone"), wantNacks: 1, wantFail: true},
		{name: "retry publish fails", body: `{"job_id":"j1"}`, runErr: errors.New("db gone"), retryErr: errors.New("broker"), wantNacks: 1, wantRetry: []int{1}, wantFail: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ack := &fakeAck{}
			rt := &fakeRetrier{err: tc.retryErr}
			run := &fakeRunner{err: tc.runErr}
			p := &processor{runner: run, retrier: rt, log: logger.Nop()}

			p.handle(context.Background(), p.log, delivery(ack, tc.body, tc.headers))

			if ack.acks != tc.wantAcks || ack.nacks != tc.wantNacks {
				t.Fatalf("acks=%d nacks=%d, want %d/%d", ack.acks, ack.nacks, tc.wantAcks, tc.wantNacks)
			}
			if got := len(run.failed) == 1; got != tc.wantFail {
				t.Fatalf("failed=%v, want marked failed %v", run.failed, tc.wantFail)
			}
			if len(rt.attempts) != len(tc.wantRetry) {
				t.Fatalf("retries=%v, want %v", rt.attempts, tc.wantRetry)
			}
			for i := range tc.wantRetry {
				if rt.attempts[i] != tc.wantRetry[i] {
					t.Fatalf("retries=%v, want %v", rt.attempts, tc.wantRetry)
				}
			}
		})
	}
}
