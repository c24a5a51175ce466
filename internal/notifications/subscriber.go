package notifications

import (
	"context"
	"time"

	"slidecast/internal/progress"
)

// Subscriber adapts a Service to the pipeline event stream, pushing a
// notification on job start, completion and failure. Delivery errors are
// dropped; notifications never affect orchestration.
func Subscriber(service Service) progress.Subscriber {
	return progress.SubscriberFunc(func(event progress.Event) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		switch event.Type {
		case progress.EventPhaseStarted:
			if event.Phase == progress.PhaseInitialization {
				_ = service.NotifyJobStarted(ctx, event.JobID, event.ScenesTotal)
			}
		case progress.EventJobCompleted:
			_ = service.NotifyJobCompleted(ctx, event.JobID, event.ScenesCompleted, event.Elapsed)
		case progress.EventJobFailed:
			_ = service.NotifyJobFailed(ctx, event.JobID, event.Message)
		}
	})
}
