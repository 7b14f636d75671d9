package metrics

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"
)

func TestObserveRequestAndNormalizePath(t *testing.T) {
	recorder := New()

	type testCase struct {
		name     string
		method   string
		path     string
		status   int
		duration time.Duration
	}

	cases := []testCase{
		{
			name:     "root path",
			method:   "get",
			path:     "/",
			status:   200,
			duration: 50 * time.Millisecond,
		},
		{
			name:     "empty path",
			method:   "GET",
			path:     "",
			status:   200,
			duration: 25 * time.Millisecond,
		},
		{
			name:     "id segment",
			method:   "post",
			path:     "/uploads/123",
			status:   201,
			duration: 100 * time.Millisecond,
		},
		{
			name:     "trailing slash and alpha id",
			method:   "POST",
			path:     "/uploads/abc123def/",
			status:   201,
			duration: 50 * time.Millisecond,
		},
		{
			name:     "multi ids",
			method:   "PATCH",
			path:     "videos/abc/456/extra",
			status:   404,
			duration: 10 * time.Millisecond,
		},
	}

	expectedCounts := make(map[requestLabel]struct {
		count    uint64
		duration time.Duration
	})

	for _, tc := range cases {
		recorder.ObserveRequest(tc.method, tc.path, tc.status, tc.duration)

		label := requestLabel{
			method: strings.ToUpper(tc.method),
			path:   normalizePath(tc.path),
			status: fmt.Sprintf("%d", tc.status),
		}
		current := expectedCounts[label]
		current.count++
		current.duration += tc.duration
		expectedCounts[label] = current
	}

	if len(recorder.requestCount) != len(expectedCounts) {
		t.Fatalf("unexpected number of labels: got %d want %d", len(recorder.requestCount), len(expectedCounts))
	}

	for label, expected := range expectedCounts {
		gotCount := recorder.requestCount[label]
		gotDuration := recorder.requestDuration[label]
		if gotCount != expected.count {
			t.Errorf("count mismatch for %+v: got %d want %d", label, gotCount, expected.count)
		}
		if gotDuration != expected.duration {
			t.Errorf("duration mismatch for %+v: got %s want %s", label, gotDuration, expected.duration)
		}
	}

	labels := recorder.sortedRequestLabels()
	sortedExpected := make([]requestLabel, 0, len(expectedCounts))
	for label := range expectedCounts {
		sortedExpected = append(sortedExpected, label)
	}
	sort.Slice(sortedExpected, func(i, j int) bool {
		if sortedExpected[i].method != sortedExpected[j].method {
			return sortedExpected[i].method < sortedExpected[j].method
		}
		if sortedExpected[i].path != sortedExpected[j].path {
			return sortedExpected[i].path < sortedExpected[j].path
		}
		return sortedExpected[i].status < sortedExpected[j].status
	})

	if len(labels) != len(sortedExpected) {
		t.Fatalf("sorted labels length mismatch: got %d want %d", len(labels), len(sortedExpected))
	}

	for i := range labels {
		if labels[i] != sortedExpected[i] {
			t.Errorf("sorted label %d mismatch: got %+v want %+v", i, labels[i], sortedExpected[i])
		}
	}
}

func TestLifecycleCountersConcurrent(t *testing.T) {
	recorder := New()

	const n = 50
	done := make(chan struct{}, n*6)
	for i := 0; i < n; i++ {
		go func() { recorder.UploadCreated(); done <- struct{}{} }()
		go func() { recorder.UploadCompleted(); done <- struct{}{} }()
		go func() { recorder.ChecksumMismatch(); done <- struct{}{} }()
		go func() { recorder.QueueEnqueued(); done <- struct{}{} }()
		go func() { recorder.QueueEnqueueFailed(); done <- struct{}{} }()
		go func() { recorder.CollectorAborted(); done <- struct{}{} }()
	}
	for i := 0; i < n*6; i++ {
		<-done
	}

	if recorder.uploadsCreated != n {
		t.Fatalf("uploadsCreated: got %d want %d", recorder.uploadsCreated, n)
	}
	if recorder.uploadsCompleted != n {
		t.Fatalf("uploadsCompleted: got %d want %d", recorder.uploadsCompleted, n)
	}
	if recorder.checksumMismatches != n {
		t.Fatalf("checksumMismatches: got %d want %d", recorder.checksumMismatches, n)
	}
	if recorder.queueEnqueued != n {
		t.Fatalf("queueEnqueued: got %d want %d", recorder.queueEnqueued, n)
	}
	if recorder.queueEnqueueFailed != n {
		t.Fatalf("queueEnqueueFailed: got %d want %d", recorder.queueEnqueueFailed, n)
	}
	if recorder.collectorAborted != n {
		t.Fatalf("collectorAborted: got %d want %d", recorder.collectorAborted, n)
	}
}

func TestWriteAndHandlerOutput(t *testing.T) {
	recorder := New()

	recorder.ObserveRequest("GET", "/uploads/abc123", 200, 150*time.Millisecond)
	recorder.ObserveRequest("get", "/uploads/456/", 200, 50*time.Millisecond)
	recorder.ObserveRequest("POST", "/uploads", 201, time.Second)

	recorder.UploadCreated()
	recorder.UploadCreated()
	recorder.UploadCompleted()
	recorder.ChecksumMismatch()
	recorder.QueueEnqueued()
	recorder.QueueEnqueueFailed()
	recorder.CollectorAborted()
	recorder.FanoutSlowConsumer()

	var buf bytes.Buffer
	recorder.Write(&buf)

	expected := `# HELP videoingest_http_requests_total Total number of HTTP requests processed by the API
# TYPE videoingest_http_requests_total counter
videoingest_http_requests_total{method="GET",path="/uploads/:id",status="200"} 2
videoingest_http_requests_total{method="POST",path="/uploads",status="201"} 1
# HELP videoingest_http_request_duration_seconds_sum Cumulative duration of HTTP requests in seconds
# TYPE videoingest_http_request_duration_seconds_sum counter
videoingest_http_request_duration_seconds_sum{method="GET",path="/uploads/:id",status="200"} 0.200000
videoingest_http_request_duration_seconds_sum{method="POST",path="/uploads",status="201"} 1.000000
# HELP videoingest_http_request_duration_seconds_count Total number of observations for request durations
# TYPE videoingest_http_request_duration_seconds_count counter
videoingest_http_request_duration_seconds_count{method="GET",path="/uploads/:id",status="200"} 2
videoingest_http_request_duration_seconds_count{method="POST",path="/uploads",status="201"} 1
# HELP videoingest_uploads_created_total Total upload sessions created
# TYPE videoingest_uploads_created_total counter
videoingest_uploads_created_total 2
# HELP videoingest_uploads_completed_total Total uploads finalized into processing
# TYPE videoingest_uploads_completed_total counter
videoingest_uploads_completed_total 1
# HELP videoingest_checksum_mismatch_total Total checksum verification failures at upload completion
# TYPE videoingest_checksum_mismatch_total counter
videoingest_checksum_mismatch_total 1
# HELP videoingest_queue_enqueued_total Total processing jobs published to the job queue
# TYPE videoingest_queue_enqueued_total counter
videoingest_queue_enqueued_total 1
# HELP videoingest_queue_enqueue_failed_total Total failed attempts to publish a processing job
# TYPE videoingest_queue_enqueue_failed_total counter
videoingest_queue_enqueue_failed_total 1
# HELP videoingest_collector_aborted_total Total abandoned uploads aborted by the collector sweep
# TYPE videoingest_collector_aborted_total counter
videoingest_collector_aborted_total 1
# HELP videoingest_fanout_slow_consumer_total Total status events dropped from a slow fan-out subscriber's queue
# TYPE videoingest_fanout_slow_consumer_total counter
videoingest_fanout_slow_consumer_total 1`

	if diff := compareLines(buf.String(), expected); diff != "" {
		t.Fatalf("unexpected write output:\n%s", diff)
	}

	res := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(res, httptest.NewRequest("GET", "/metrics", nil))

	if contentType := res.Result().Header.Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Fatalf("unexpected content type: %s", contentType)
	}

	if diff := compareLines(res.Body.String(), expected); diff != "" {
		t.Fatalf("unexpected handler output:\n%s", diff)
	}
}

func compareLines(actual, expected string) string {
	actualLines := strings.Split(strings.TrimSpace(actual), "\n")
	expectedLines := strings.Split(strings.TrimSpace(expected), "\n")
	if len(actualLines) != len(expectedLines) {
		return formatDiff(actualLines, expectedLines)
	}
	for i := range actualLines {
		if actualLines[i] != expectedLines[i] {
			return formatDiff(actualLines, expectedLines)
		}
	}
	return ""
}

func formatDiff(actual, expected []string) string {
	var b strings.Builder
	b.WriteString("expected\n")
	for _, line := range expected {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString("got\n")
	for _, line := range actual {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
