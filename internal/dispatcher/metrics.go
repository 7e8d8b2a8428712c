package dispatcher

import (
	"time"

	"github.com/ulugbek-dev/broadcast-gateway/internal/model"
	"github.com/ulugbek-dev/broadcast-gateway/pkg/prom"
)

func observeDelivery(outcome model.DeliveryOutcome, started time.Time) {
	label := "failed"
	if outcome.OK {
		label = "sent"
	}
	prom.IncCounterVec(prom.SystemBroadcast, prom.MetricMessagesTotal, label)
	prom.ObserveHistogramVec(prom.SystemBroadcast, prom.MetricDeliveryDurationSecond, time.Since(started).Seconds(), label)
}

func observeJobStarted() {
	prom.AddGauge(prom.SystemBroadcast, prom.MetricJobsActive, 1)
}

func observeJobFinished(status model.BroadcastStatus) {
	prom.AddGauge(prom.SystemBroadcast, prom.MetricJobsActive, -1)
	// A shutdown leaves the job in_progress for the next sweep; only
	// terminal outcomes count towards the totals.
	if status.Terminal() {
		prom.IncCounterVec(prom.SystemBroadcast, prom.MetricJobsTotal, string(status))
	}
}
