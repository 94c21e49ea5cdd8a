// Package metrics holds the Prometheus collectors for walstore stores and
// the deferred write scheduler.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Keys for result labels.
const (
	Fail = "fail"
	Ok   = "ok"
)

// Collectors for walstore.Store activity. Every store-scoped collector is
// labeled by store name.
var (
	StoreInitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "walstore_init_total",
		Help: "Cumulative number of store initializations (no snapshot file existed).",
	}, []string{"store", "result"})
	StoreReadTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "walstore_read_total",
		Help: "Cumulative number of snapshot reads.",
	}, []string{"store", "result"})
	StoreWriteTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "walstore_write_total",
		Help: "Cumulative number of full snapshot rewrites.",
	}, []string{"store", "result"})
	StoreWriteSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "walstore_write_seconds",
		Help:    "Duration of successful full snapshot rewrites.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
	}, []string{"store"})
	StoreWriteBytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "walstore_write_bytes_total",
		Help: "Cumulative number of snapshot bytes written.",
	}, []string{"store"})
	WALFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "walstore_wal_frames_total",
		Help: "Cumulative number of WAL frames appended.",
	}, []string{"store", "action", "result"})
	WALReplayedRecordsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "walstore_wal_replayed_records_total",
		Help: "Cumulative number of records replayed from WAL sidecars during recovery.",
	}, []string{"store", "action"})
	StorePendingChanges = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "walstore_pending_changes",
		Help: "1 if the in-memory state diverged from the last written snapshot.",
	}, []string{"store"})
)

// Collectors for the deferred write scheduler.
var (
	SchedulerJobsScheduledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walstore_scheduler_jobs_scheduled_total",
		Help: "Cumulative number of deferred write jobs created.",
	})
	SchedulerJobsCoalescedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "walstore_scheduler_jobs_coalesced_total",
		Help: "Cumulative number of registrations absorbed by an already pending job.",
	})
	SchedulerJobsRunTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "walstore_scheduler_jobs_run_total",
		Help: "Cumulative number of deferred write jobs executed.",
	}, []string{"trigger"})
	SchedulerPendingJobs = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "walstore_scheduler_pending_jobs",
		Help: "Number of deferred write jobs waiting for their timer.",
	})
)

// Trigger label values for SchedulerJobsRunTotal.
const (
	TriggerTimer    = "timer"
	TriggerShutdown = "shutdown"
	TriggerManual   = "manual"
)

// Collectors returns every collector of this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		StoreInitTotal,
		StoreReadTotal,
		StoreWriteTotal,
		StoreWriteSeconds,
		StoreWriteBytesTotal,
		WALFramesTotal,
		WALReplayedRecordsTotal,
		StorePendingChanges,
		SchedulerJobsScheduledTotal,
		SchedulerJobsCoalescedTotal,
		SchedulerJobsRunTotal,
		SchedulerPendingJobs,
	}
}

// Register registers all collectors with reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

// Result maps an error to the Ok / Fail label value.
func Result(err error) string {
	if err != nil {
		return Fail
	}

	return Ok
}
