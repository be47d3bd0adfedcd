package observability

import (
	"strconv"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu            sync.Mutex
	requestCount  map[string]int64
	errorCount    map[string]int64
	upstreamCount map[string]int64
	upstreamTime  map[string]time.Duration
}

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Requests        map[string]int64 `json:"requests"`
	Errors          map[string]int64 `json:"errors"`
	Upstream        map[string]int64 `json:"upstream"`
	UpstreamAvgMsec map[string]int64 `json:"upstream_avg_ms"`
}

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:  make(map[string]int64),
		errorCount:    make(map[string]int64),
		upstreamCount: make(map[string]int64),
		upstreamTime:  make(map[string]time.Duration),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordUpstream counts a call to the complaint API. status is 0 when the
// call never produced a response.
func (m *Metrics) RecordUpstream(endpoint, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(endpoint, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upstreamCount[key]++
	m.upstreamTime[key] += duration
}

// Snapshot copies the current counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Requests:        map[string]int64{},
		Errors:          map[string]int64{},
		Upstream:        map[string]int64{},
		UpstreamAvgMsec: map[string]int64{},
	}
	if m == nil {
		return snap
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range m.requestCount {
		snap.Requests[k] = v
	}
	for k, v := range m.errorCount {
		snap.Errors[k] = v
	}
	for k, v := range m.upstreamCount {
		snap.Upstream[k] = v
		snap.UpstreamAvgMsec[k] = (m.upstreamTime[k] / time.Duration(v)).Milliseconds()
	}
	return snap
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
