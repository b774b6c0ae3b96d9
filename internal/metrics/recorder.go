package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "takerflow"

// Recorder owns a private registry so several instances can coexist in tests.
type Recorder struct {
	reg *prometheus.Registry

	tradesReceived  prometheus.Counter
	tradesAbsorbed  prometheus.Counter
	liveDeltas      prometheus.Counter
	flushes         *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	feedState       *prometheus.GaugeVec
	subscribers     prometheus.Gauge
	subscriberDrops prometheus.Counter
	ratio           *prometheus.GaugeVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates a recorder with Go runtime and process collectors registered.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Recorder{
		reg: reg,
		tradesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_received_total",
			Help:      "Trades read from the feed",
		}),
		tradesAbsorbed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_absorbed_total",
			Help:      "Trades at or above the minimum size",
		}),
		liveDeltas: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_deltas_total",
			Help:      "Live bucket frames broadcast",
		}),
		flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flushes_total",
			Help:      "Persistence flushes by result (written, skipped, failed)",
		}, []string{"result"}),
		taskDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Duration of scheduled task runs",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task", "status"}),
		feedState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_state",
			Help:      "1 for the current feed supervisor state",
		}, []string{"state"}),
		subscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Connected websocket subscribers",
		}),
		subscriberDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "subscriber_drops_total",
			Help:      "Subscribers removed after a failed send",
		}),
		ratio: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "taker_ratio_percent",
			Help:      "Taker buy share per period",
		}, []string{"period"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route", "method"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}


func (r *Recorder) RecordBatch(received, absorbed int) {
	r.tradesReceived.Add(float64(received))
	r.tradesAbsorbed.Add(float64(absorbed))
}

func (r *Recorder) RecordLiveDelta() { r.liveDeltas.Inc() }

// RecordFlush counts a flush outcome: "written", "skipped" or "failed".
func (r *Recorder) RecordFlush(result string) {
	r.flushes.WithLabelValues(result).Inc()
}

func (r *Recorder) RecordTask(task string, took time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	r.taskDuration.WithLabelValues(task, status).Observe(took.Seconds())
}

// SetFeedState marks state as current and clears the previous one.
func (r *Recorder) SetFeedState(from, to string) {
	if from != "" {
		r.feedState.WithLabelValues(from).Set(0)
	}
	r.feedState.WithLabelValues(to).Set(1)
}

func (r *Recorder) SetSubscribers(n int) { r.subscribers.Set(float64(n)) }

func (r *Recorder) RecordSubscriberDrop() { r.subscriberDrops.Inc() }

func (r *Recorder) SetRatio(period string, pct int) {
	r.ratio.WithLabelValues(period).Set(float64(pct))
}

func (r *Recorder) RecordHTTP(route, method string, status int, took time.Duration) {
	r.httpRequests.WithLabelValues(route, method, statusLabel(status)).Inc()
	r.httpDuration.WithLabelValues(route, method).Observe(took.Seconds())
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
