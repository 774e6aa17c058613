package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics for vaxtrack
type Metrics struct {
	ChildrenRegistered prometheus.Counter
	DoseSetsSaved      prometheus.Counter
	Logins             prometheus.Counter
	BackupsTaken       prometheus.Counter
	RestoreRuns        prometheus.Counter
	SaveDuration       prometheus.Histogram
	ErrorsCount        *prometheus.CounterVec
}

// New creates the vaxtrack prometheus metrics
func New(namespace string) *Metrics {
	return &Metrics{
		ChildrenRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "children_registered_total",
			Help:      "The total number of children registered",
		}),
		DoseSetsSaved: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dose_sets_saved_total",
			Help:      "The total number of vaccination dose-set saves",
		}),
		Logins: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "The total number of successful facility logins",
		}),
		BackupsTaken: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backups_taken_total",
			Help:      "The total number of backup documents produced",
		}),
		RestoreRuns: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "restore_runs_total",
			Help:      "The total number of restore operations applied",
		}),
		SaveDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dose_set_save_seconds",
			Help:      "Time taken to replace a child's dose set",
			Buckets:   prometheus.DefBuckets,
		}),
		ErrorsCount: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "The total number of errors",
		}, []string{"operation"}),
	}
}
