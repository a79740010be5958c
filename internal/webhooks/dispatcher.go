// Package webhooks implements outbound webhook delivery: registry,
// signing, fan-out dispatch, per-attempt transport and retry scheduling.
package webhooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"hookrelay/internal/model"
	"hookrelay/internal/store"
)

// EventTest is the synthetic event used by TestDelivery.
const EventTest = "webhook.test"

// Dispatcher fans internal domain events out to matching subscriptions, one
// independent delivery pipeline per subscription. Trigger is fire-and-forget:
// it returns after one registry read, before any network I/O.
type Dispatcher struct {
	Store     store.Store
	Transport *Transport
	Log       *logrus.Logger
	Clock     Clock
	Scheduler Scheduler

	// OnResult, when set, observes every finalized attempt record. Used to
	// feed the live delivery stream; never called concurrently for the same
	// pipeline.
	OnResult func(model.DeliveryAttempt)
}

func NewDispatcher(s store.Store, t *Transport, log *logrus.Logger) *Dispatcher {
	if t == nil {
		t = NewTransport(0, 0)
	}
	if log == nil {
		log = logrus.New()
	}
	return &Dispatcher{
		Store:     s,
		Transport: t,
		Log:       log,
		Clock:     realClock{},
		Scheduler: timerScheduler{},
	}
}

// Trigger notifies every active subscription of tenantID that listens for
// event. Each matched subscription gets its own goroutine; a failure in one
// pipeline never reaches another pipeline or the caller.
func (d *Dispatcher) Trigger(ctx context.Context, tenantID, event string, data map[string]any) {
	subs, err := d.Store.ListActiveForEvent(ctx, tenantID, event)
	if err != nil {
		d.Log.WithError(err).WithFields(logrus.Fields{"tenant": tenantID, "event": event}).Error("list subscriptions")
		return
	}
	if len(subs) == 0 {
		return
	}
	body, ts, err := d.buildPayload(tenantID, event, data)
	if err != nil {
		d.Log.WithError(err).WithField("event", event).Error("marshal payload")
		return
	}
	for _, sub := range subs {
		pl := d.newPipeline(sub, event, body, ts)
		go d.supervise(sub.ID, event, func() {
			if _, err := pl.run(context.Background(), 1); err != nil {
				d.log(sub, event, 1).WithError(err).Error("delivery pipeline")
			}
		})
	}
}

// TestDelivery runs one pipeline for a synthetic webhook.test event and
// returns the first attempt's record synchronously. Retries, if warranted,
// continue in the background under normal rules.
func (d *Dispatcher) TestDelivery(ctx context.Context, tenantID, webhookID string) (model.DeliveryAttempt, error) {
	sub, err := d.Store.GetSubscription(ctx, tenantID, webhookID)
	if err != nil {
		return model.DeliveryAttempt{}, err
	}
	data := map[string]any{"webhookId": sub.ID, "name": sub.Name}
	body, ts, err := d.buildPayload(tenantID, EventTest, data)
	if err != nil {
		return model.DeliveryAttempt{}, err
	}
	pl := d.newPipeline(sub, EventTest, body, ts)
	return pl.run(ctx, 1)
}

// buildPayload serializes the event envelope once; all pipelines of a
// trigger share (and sign) these exact bytes.
func (d *Dispatcher) buildPayload(tenantID, event string, data map[string]any) ([]byte, string, error) {
	ts := d.Clock.Now().UTC().Format(time.RFC3339)
	payload := model.EventPayload{Event: event, Data: data, Timestamp: ts, TenantID: tenantID}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return body, ts, nil
}

// supervise is the error boundary around a pipeline: panics are logged,
// never propagated to Trigger's caller or the scheduler goroutine.
func (d *Dispatcher) supervise(webhookID, event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.Log.WithFields(logrus.Fields{"webhook_id": webhookID, "event": event}).Errorf("delivery pipeline panic: %v", r)
		}
	}()
	fn()
}

func (d *Dispatcher) notify(rec model.DeliveryAttempt) {
	if d.OnResult != nil {
		d.OnResult(rec)
	}
}

func (d *Dispatcher) log(sub model.Subscription, event string, attempt int) *logrus.Entry {
	return d.Log.WithFields(logrus.Fields{
		"webhook_id": sub.ID,
		"tenant":     sub.TenantID,
		"event":      event,
		"attempt":    attempt,
	})
}
