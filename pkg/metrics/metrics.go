package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketplace"

type Metrics struct {
	Kafka  KafkaMetrics
	API    APIMetrics
	Outbox OutboxMetrics
	Bus    BusMetrics
	Go     GoMetrics
}

type KafkaMetrics struct {
	// Producer
	ProducerAttemptLatencySeconds *prometheus.HistogramVec
	ProducerOperationsTotal       *prometheus.CounterVec
	ProducerSuccessAttempts       *prometheus.HistogramVec

	// Consumer
	ConsumerMessagesTotal   *prometheus.CounterVec
	ConsumerProcessDuration *prometheus.HistogramVec
	ConsumerRebalancesTotal *prometheus.CounterVec
	ConsumerInFlight        *prometheus.GaugeVec
}

type APIMetrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

type OutboxMetrics struct {
	MessagesTotal        *prometheus.CounterVec
	BatchDurationSeconds prometheus.Histogram
	BatchSize            prometheus.Histogram
	DeadLetters          prometheus.Gauge
}

type BusMetrics struct {
	DispatchTotal          *prometheus.CounterVec
	HandlerDurationSeconds *prometheus.HistogramVec
	PublishedTotal         *prometheus.CounterVec
}

type GoMetrics struct {
	InternalGoroutines *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		Kafka: KafkaMetrics{
			ProducerAttemptLatencySeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "producer_attempt_latency_seconds",
				Help:      "Latency per single produce attempt.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic", "result"}), // ok|error

			ProducerOperationsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "producer_operations_total",
				Help:      "Total produce operations (one call) by result.",
			}, []string{"topic", "result"}), // success|failed|permanent|canceled

			ProducerSuccessAttempts: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "producer_success_attempts",
				Help:      "Attempt number on which produce operation succeeded.",
				Buckets:   []float64{1, 2, 3, 4, 5},
			}, []string{"topic"}),

			ConsumerMessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "consumer_messages_total",
				Help:      "Total consumed Kafka messages by topic and result.",
			}, []string{"topic", "result"}), // ok|retry|poison|gave_up

			ConsumerProcessDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "consumer_process_duration_seconds",
				Help:      "Kafka message processing duration in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"topic"}),

			ConsumerRebalancesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "consumer_rebalances_total",
				Help:      "Consumer rebalance lifecycle events.",
			}, []string{"event"}),

			ConsumerInFlight: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "kafka",
				Name:      "consumer_inflight_messages",
				Help:      "Messages currently being processed.",
			}, []string{"topic"}),
		},

		API: APIMetrics{
			HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total HTTP requests by method, path and status.",
			}, []string{"method", "path", "status"}),

			HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			}, []string{"method", "path", "status"}),
		},

		Outbox: OutboxMetrics{
			MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "messages_total",
				Help:      "Outbox messages handled by the relay, by event type and result.",
			}, []string{"event_type", "result"}), // published|failed|dead_lettered|undecodable

			BatchDurationSeconds: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "batch_duration_seconds",
				Help:      "Time spent on one relay batch.",
				Buckets:   prometheus.DefBuckets,
			}),

			BatchSize: f.NewHistogram(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "batch_size",
				Help:      "Rows claimed per relay poll.",
				Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
			}),

			DeadLetters: f.NewGauge(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "outbox",
				Name:      "dead_letters",
				Help:      "Unprocessed outbox rows that exhausted their retries.",
			}),
		},

		Bus: BusMetrics{
			DispatchTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "dispatch_total",
				Help:      "Handler invocations by event type, consumer and result.",
			}, []string{"event_type", "consumer", "result"}), // ok|skipped|error

			HandlerDurationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "handler_duration_seconds",
				Help:      "Handler execution time including its transaction.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"event_type", "consumer"}),

			PublishedTotal: f.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "published_total",
				Help:      "Events published to the bus by backend and event type.",
			}, []string{"backend", "event_type"}),
		},

		Go: GoMetrics{
			InternalGoroutines: f.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "go",
				Name:      "internal_goroutines",
				Help:      "Number of running internal goroutines by name.",
			}, []string{"name"}),
		},
	}
}
