package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IdoEfroni/Grocery/pkg/storage"
)

// Recorder owns the Prometheus collectors for the thumbnail pipeline. All
// instrumentation goes through it so tests can register against a private
// registry.
type Recorder struct {
	requests   *prometheus.CounterVec
	duration   prometheus.Histogram
	imageBytes *prometheus.HistogramVec
	storageOps *prometheus.CounterVec
	queueDepth prometheus.Gauge
}

// NewRecorder creates the pipeline collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grocery",
			Subsystem: "thumbnailer",
			Name:      "requests_total",
			Help:      "Thumbnail requests handled, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "grocery",
			Subsystem: "thumbnailer",
			Name:      "process_duration_seconds",
			Help:      "Time spent handling one thumbnail request.",
			Buckets:   prometheus.DefBuckets,
		}),
		imageBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grocery",
			Subsystem: "thumbnailer",
			Name:      "image_bytes",
			Help:      "Image sizes seen by the pipeline, by kind (original or thumbnail).",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 8),
		}, []string{"kind"}),
		storageOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grocery",
			Subsystem: "thumbnailer",
			Name:      "storage_operations_total",
			Help:      "Storage operations issued by the pipeline, by operation and status.",
		}, []string{"op", "status"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "grocery",
			Subsystem: "thumbnailer",
			Name:      "queue_depth",
			Help:      "Requests waiting on the thumbnail queue at the last poll.",
		}),
	}

	reg.MustRegister(r.requests, r.duration, r.imageBytes, r.storageOps, r.queueDepth)
	return r
}

// ObserveRequest records one handled request and how long it took.
func (r *Recorder) ObserveRequest(outcome string, d time.Duration) {
	r.requests.WithLabelValues(outcome).Inc()
	r.duration.Observe(d.Seconds())
}

// ObserveImageBytes records the size of an image flowing through the
// pipeline. kind is "original" or "thumbnail".
func (r *Recorder) ObserveImageBytes(kind string, n int) {
	r.imageBytes.WithLabelValues(kind).Observe(float64(n))
}

// SetQueueDepth records the work queue backlog from the latest poll.
func (r *Recorder) SetQueueDepth(n int) {
	r.queueDepth.Set(float64(n))
}

func (r *Recorder) observeStorageOp(op string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrNotExist):
		status = "missing"
	default:
		status = "error"
	}
	r.storageOps.WithLabelValues(op, status).Inc()
}
