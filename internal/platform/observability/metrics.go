package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Task kinds and outcomes used as label values.
const (
	KindMessage = "message"
	KindEdit    = "edit"
	KindAlbum   = "album"

	OutcomeDelivered = "delivered"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeSkipped   = "skipped"
	OutcomeEmpty     = "empty"
	OutcomeFailed    = "failed"
	OutcomePanic     = "panic"

	SetMessages = "messages"
	SetGroups   = "groups"
)

var (
	UpdatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_updates_received_total",
		Help: "The total number of channel updates received from source chats",
	}, []string{"kind"})

	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tasks_enqueued_total",
		Help: "The total number of tasks pushed onto the ingestion queue",
	}, []string{"kind"})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_queue_depth",
		Help: "Number of tasks waiting in the ingestion queue",
	})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_tasks_total",
		Help: "The total number of processed tasks by kind and outcome",
	}, []string{"kind", "outcome"})

	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_delivery_total",
		Help: "The total number of successful deliveries by path",
	}, []string{"path"})

	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_delivery_failures_total",
		Help: "The total number of failed delivery attempts by path",
	}, []string{"kind"})

	WhitelistRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_whitelist_rejections_total",
		Help: "The total number of messages rejected by the link whitelist",
	}, []string{"source"})

	DedupEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "relay_dedup_entries",
		Help: "Number of keys held by the deduplication store",
	}, []string{"set"})

	TaskDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_task_duration_seconds",
		Help:    "Duration in seconds to process one relay task",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
)
