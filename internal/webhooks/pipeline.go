package webhooks

import (
	"context"
	"fmt"

	"hookrelay/internal/metrics"
	"hookrelay/internal/model"
)

// pipeline is the lifecycle of attempts for one (subscription, payload)
// pair. Attempt n+1 never starts before attempt n completes, and only when
// retries remain. maxAttempts is fixed at creation: retryCount + 1.
type pipeline struct {
	d           *Dispatcher
	sub         model.Subscription
	event       string
	body        []byte
	timestamp   string
	maxAttempts int
}

func (d *Dispatcher) newPipeline(sub model.Subscription, event string, body []byte, timestamp string) *pipeline {
	return &pipeline{
		d:           d,
		sub:         sub,
		event:       event,
		body:        body,
		timestamp:   timestamp,
		maxAttempts: sub.RetryCount + 1,
	}
}

// run executes attempt n: pending record, signed POST, record finalization,
// then retry-or-terminal. It returns the finalized attempt record so
// TestDelivery can hand attempt 1 back to its caller.
func (pl *pipeline) run(ctx context.Context, attempt int) (model.DeliveryAttempt, error) {
	rec := model.DeliveryAttempt{
		WebhookID: pl.sub.ID,
		TenantID:  pl.sub.TenantID,
		Event:     pl.event,
		Payload:   pl.body,
		Status:    model.StatusPending,
		Attempt:   attempt,
		CreatedAt: pl.d.Clock.Now().UTC(),
	}
	rec, err := pl.d.Store.AppendAttempt(ctx, rec)
	if err != nil {
		return rec, fmt.Errorf("append attempt: %w", err)
	}

	out := pl.d.Transport.Deliver(ctx, pl.sub, pl.body, pl.event, pl.timestamp)

	done := pl.d.Clock.Now().UTC()
	status := model.StatusFailed
	if out.Success() {
		status = model.StatusSuccess
	}
	patch := model.AttemptPatch{
		Status:       status,
		StatusCode:   out.StatusCode,
		ResponseBody: out.Body,
		CompletedAt:  &done,
	}
	if out.Err != nil {
		patch.Error = out.Err.Error()
	}
	if err := pl.d.Store.UpdateAttempt(ctx, rec.ID, patch); err != nil {
		pl.d.log(pl.sub, pl.event, attempt).WithError(err).Error("finalize attempt record")
	}
	rec.Status = status
	rec.StatusCode = out.StatusCode
	rec.ResponseBody = out.Body
	rec.Error = patch.Error
	rec.CompletedAt = &done

	metrics.Deliveries.WithLabelValues(pl.event, status).Inc()
	metrics.DeliveryLatency.WithLabelValues(pl.event, status).Observe(float64(out.LatencyMs))
	pl.d.notify(rec)

	switch {
	case status == model.StatusSuccess:
		// terminal
	case attempt < pl.maxAttempts:
		pl.scheduleNext(attempt)
	default:
		pl.d.log(pl.sub, pl.event, attempt).Warn("delivery failed, retries exhausted")
	}
	return rec, nil
}

// scheduleNext defers attempt n+1 without blocking the caller. The
// subscription is re-read before the retry runs: a deleted or deactivated
// subscription ends the pipeline.
func (pl *pipeline) scheduleNext(attempt int) {
	delay := Backoff(attempt)
	metrics.Retries.WithLabelValues(pl.event).Inc()
	pl.d.log(pl.sub, pl.event, attempt).WithField("delay", delay.String()).Info("scheduling retry")
	pl.d.Scheduler.AfterFunc(delay, func() {
		pl.d.supervise(pl.sub.ID, pl.event, func() {
			ctx := context.Background()
			sub, err := pl.d.Store.GetSubscription(ctx, pl.sub.TenantID, pl.sub.ID)
			if err != nil || !sub.IsActive {
				pl.d.log(pl.sub, pl.event, attempt).Info("subscription gone or inactive, dropping retry")
				return
			}
			// Pick up endpoint changes (url, headers, timeout); the payload
			// and attempt budget stay fixed for the pipeline's lifetime.
			pl.sub = sub
			if _, err := pl.run(ctx, attempt+1); err != nil {
				pl.d.log(pl.sub, pl.event, attempt+1).WithError(err).Error("retry attempt")
			}
		})
	})
}
