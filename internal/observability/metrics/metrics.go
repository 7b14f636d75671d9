package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

type requestLabel struct {
	method string
	path   string
	status string
}

// Recorder aggregates in-memory metrics counters for HTTP requests and the
// video ingest lifecycle (uploads, the processing queue, the abandoned-upload
// collector, and the status fan-out). It coordinates concurrent writers via
// an RWMutex.
type Recorder struct {
	mu              sync.RWMutex
	requestCount    map[requestLabel]uint64
	requestDuration map[requestLabel]time.Duration

	uploadsCreated     uint64
	uploadsCompleted   uint64
	checksumMismatches uint64
	queueEnqueued      uint64
	queueEnqueueFailed uint64
	collectorAborted   uint64
	fanoutSlowConsumer uint64
}

var defaultRecorder = New()

// New constructs an empty Recorder with initialized backing maps so callers can
// immediately record metrics without additional setup.
func New() *Recorder {
	return &Recorder{
		requestCount:    make(map[requestLabel]uint64),
		requestDuration: make(map[requestLabel]time.Duration),
	}
}

// Default returns the singleton Recorder instance shared across helper
// functions for packages that do not require custom instrumentation pipelines.
func Default() *Recorder {
	return defaultRecorder
}

// ObserveRequest normalizes the request label set and accumulates totals for
// request count and cumulative duration by HTTP method, normalized path, and
// status code.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	label := requestLabel{
		method: strings.ToUpper(method),
		path:   normalizePath(path),
		status: fmt.Sprintf("%d", status),
	}
	r.mu.Lock()
	r.requestCount[label]++
	r.requestDuration[label] += duration
	r.mu.Unlock()
}

// UploadCreated records that an upload session was minted for a new video
// (POST /uploads).
func (r *Recorder) UploadCreated() {
	r.mu.Lock()
	r.uploadsCreated++
	r.mu.Unlock()
}

// UploadCompleted records that an upload session was finalized and its
// video advanced to processing.
func (r *Recorder) UploadCompleted() {
	r.mu.Lock()
	r.uploadsCompleted++
	r.mu.Unlock()
}

// ChecksumMismatch records a part or whole-file checksum verification
// failure detected during upload completion.
func (r *Recorder) ChecksumMismatch() {
	r.mu.Lock()
	r.checksumMismatches++
	r.mu.Unlock()
}

// QueueEnqueued records a job successfully published to the processing
// queue by the outbox dispatcher.
func (r *Recorder) QueueEnqueued() {
	r.mu.Lock()
	r.queueEnqueued++
	r.mu.Unlock()
}

// QueueEnqueueFailed records a failed attempt to publish a job, left for
// the outbox dispatcher to retry on its next tick.
func (r *Recorder) QueueEnqueueFailed() {
	r.mu.Lock()
	r.queueEnqueueFailed++
	r.mu.Unlock()
}

// CollectorAborted records the abandoned-upload collector aborting one
// expired multipart upload or session.
func (r *Recorder) CollectorAborted() {
	r.mu.Lock()
	r.collectorAborted++
	r.mu.Unlock()
}

// FanoutSlowConsumer records a status fan-out subscriber falling behind
// and having its oldest queued event dropped.
func (r *Recorder) FanoutSlowConsumer() {
	r.mu.Lock()
	r.fanoutSlowConsumer++
	r.mu.Unlock()
}

// Reset clears all counters on the recorder. It is intended for test setups.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requestCount = make(map[requestLabel]uint64)
	r.requestDuration = make(map[requestLabel]time.Duration)
	r.uploadsCreated = 0
	r.uploadsCompleted = 0
	r.checksumMismatches = 0
	r.queueEnqueued = 0
	r.queueEnqueueFailed = 0
	r.collectorAborted = 0
	r.fanoutSlowConsumer = 0
}

// Handler exposes the Recorder as an http.Handler that writes Prometheus text
// exposition data with the appropriate content type.
func (r *Recorder) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		r.Write(w)
	})
}

// Write renders the Recorder's metrics in Prometheus text format, sorting label
// sets to provide stable output for scrapes and tests.
func (r *Recorder) Write(w io.Writer) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	requestLabels := r.sortedRequestLabels()

	fmt.Fprintln(w, "# HELP videoingest_http_requests_total Total number of HTTP requests processed by the API")
	fmt.Fprintln(w, "# TYPE videoingest_http_requests_total counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "videoingest_http_requests_total{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP videoingest_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds")
	fmt.Fprintln(w, "# TYPE videoingest_http_request_duration_seconds_sum counter")
	for _, label := range requestLabels {
		duration := r.requestDuration[label].Seconds()
		fmt.Fprintf(w, "videoingest_http_request_duration_seconds_sum{method=\"%s\",path=\"%s\",status=\"%s\"} %f\n", label.method, label.path, label.status, duration)
	}

	fmt.Fprintln(w, "# HELP videoingest_http_request_duration_seconds_count Total number of observations for request durations")
	fmt.Fprintln(w, "# TYPE videoingest_http_request_duration_seconds_count counter")
	for _, label := range requestLabels {
		count := r.requestCount[label]
		fmt.Fprintf(w, "videoingest_http_request_duration_seconds_count{method=\"%s\",path=\"%s\",status=\"%s\"} %d\n", label.method, label.path, label.status, count)
	}

	fmt.Fprintln(w, "# HELP videoingest_uploads_created_total Total upload sessions created")
	fmt.Fprintln(w, "# TYPE videoingest_uploads_created_total counter")
	fmt.Fprintf(w, "videoingest_uploads_created_total %d\n", r.uploadsCreated)

	fmt.Fprintln(w, "# HELP videoingest_uploads_completed_total Total uploads finalized into processing")
	fmt.Fprintln(w, "# TYPE videoingest_uploads_completed_total counter")
	fmt.Fprintf(w, "videoingest_uploads_completed_total %d\n", r.uploadsCompleted)

	fmt.Fprintln(w, "# HELP videoingest_checksum_mismatch_total Total checksum verification failures at upload completion")
	fmt.Fprintln(w, "# TYPE videoingest_checksum_mismatch_total counter")
	fmt.Fprintf(w, "videoingest_checksum_mismatch_total %d\n", r.checksumMismatches)

	fmt.Fprintln(w, "# HELP videoingest_queue_enqueued_total Total processing jobs published to the job queue")
	fmt.Fprintln(w, "# TYPE videoingest_queue_enqueued_total counter")
	fmt.Fprintf(w, "videoingest_queue_enqueued_total %d\n", r.queueEnqueued)

	fmt.Fprintln(w, "# HELP videoingest_queue_enqueue_failed_total Total failed attempts to publish a processing job")
	fmt.Fprintln(w, "# TYPE videoingest_queue_enqueue_failed_total counter")
	fmt.Fprintf(w, "videoingest_queue_enqueue_failed_total %d\n", r.queueEnqueueFailed)

	fmt.Fprintln(w, "# HELP videoingest_collector_aborted_total Total abandoned uploads aborted by the collector sweep")
	fmt.Fprintln(w, "# TYPE videoingest_collector_aborted_total counter")
	fmt.Fprintf(w, "videoingest_collector_aborted_total %d\n", r.collectorAborted)

	fmt.Fprintln(w, "# HELP videoingest_fanout_slow_consumer_total Total status events dropped from a slow fan-out subscriber's queue")
	fmt.Fprintln(w, "# TYPE videoingest_fanout_slow_consumer_total counter")
	fmt.Fprintf(w, "videoingest_fanout_slow_consumer_total %d\n", r.fanoutSlowConsumer)
}

func (r *Recorder) sortedRequestLabels() []requestLabel {
	labels := make([]requestLabel, 0, len(r.requestCount))
	for label := range r.requestCount {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool {
		if labels[i].method != labels[j].method {
			return labels[i].method < labels[j].method
		}
		if labels[i].path != labels[j].path {
			return labels[i].path < labels[j].path
		}
		return labels[i].status < labels[j].status
	})
	return labels
}

func normalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "" {
			continue
		}
		if looksLikeIdentifier(part) {
			parts[i] = ":id"
			continue
		}
	}
	normalized := strings.Join(parts, "/")
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if strings.HasSuffix(normalized, "/") && len(normalized) > 1 {
		normalized = strings.TrimSuffix(normalized, "/")
	}
	return normalized
}

func looksLikeIdentifier(segment string) bool {
	if len(segment) >= 8 {
		return true
	}
	digitCount := 0
	for _, r := range segment {
		if r >= '0' && r <= '9' {
			digitCount++
		}
	}
	return digitCount >= 3
}

// ObserveRequest is a helper on the default recorder.
func ObserveRequest(method, path string, status int, duration time.Duration) {
	defaultRecorder.ObserveRequest(method, path, status, duration)
}

// UploadCreated increments the upload-created counter on the default recorder.
func UploadCreated() {
	defaultRecorder.UploadCreated()
}

// UploadCompleted increments the upload-completed counter on the default recorder.
func UploadCompleted() {
	defaultRecorder.UploadCompleted()
}

// ChecksumMismatch increments the checksum-mismatch counter on the default recorder.
func ChecksumMismatch() {
	defaultRecorder.ChecksumMismatch()
}

// QueueEnqueued increments the queue-enqueued counter on the default recorder.
func QueueEnqueued() {
	defaultRecorder.QueueEnqueued()
}

// QueueEnqueueFailed increments the queue-enqueue-failed counter on the default recorder.
func QueueEnqueueFailed() {
	defaultRecorder.QueueEnqueueFailed()
}

// CollectorAborted increments the collector-aborted counter on the default recorder.
func CollectorAborted() {
	defaultRecorder.CollectorAborted()
}

// FanoutSlowConsumer increments the fanout-slow-consumer counter on the default recorder.
func FanoutSlowConsumer() {
	defaultRecorder.FanoutSlowConsumer()
}

// Handler exposes the default recorder as an HTTP handler.
func Handler() http.Handler {
	return defaultRecorder.Handler()
}
