// Package metrics holds the prometheus collectors for the download client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ControlCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reeldl",
		Name:      "control_calls_total",
		Help:      "Job control calls by operation and result (ok or error kind).",
	}, []string{"op", "result"})

	StreamConnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reeldl",
		Name:      "stream_connects_total",
		Help:      "Successful event stream (re)connections.",
	})

	StreamFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reeldl",
		Name:      "stream_failures_total",
		Help:      "Event stream connection attempts or connections that failed.",
	})

	StreamGiveUpsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reeldl",
		Name:      "stream_give_ups_total",
		Help:      "Event streams that stopped reconnecting after exhausting retries.",
	})

	EventsReceivedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reeldl",
		Name:      "events_received_total",
		Help:      "Progress events received by kind.",
	}, []string{"kind"})

	TrackedJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reeldl",
		Name:      "tracked_jobs",
		Help:      "Jobs currently in the tracker working set.",
	})

	LiveSubscriptions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reeldl",
		Name:      "live_subscriptions",
		Help:      "Tracker event streams that are open or reconnecting; exhausted streams are not counted.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		ControlCallsTotal,
		StreamConnectsTotal,
		StreamFailuresTotal,
		StreamGiveUpsTotal,
		EventsReceivedTotal,
		TrackedJobs,
		LiveSubscriptions,
	)
}
