package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/warden/internal/audit"
	"github.com/MEKXH/warden/internal/executor"
)

const runtimeMetricsFileName = "runtime_metrics.json"

// commandOp is the audit event type that carries process latency.
const commandOp = "command_exec"

var latencyBucketUpperBoundsMs = []int64{
	10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000,
}

// RuntimeSnapshot aggregates policy decisions and command executions.
type RuntimeSnapshot struct {
	UpdatedAt   time.Time                 `json:"updated_at"`
	Requests    RequestStats              `json:"requests"`
	Command     CommandStats              `json:"command"`
	Operations  map[string]OperationStats `json:"operations,omitempty"`
	DenyReasons map[string]int64          `json:"deny_reasons,omitempty"`
	ErrorKinds  map[string]int64          `json:"error_kinds,omitempty"`
}

// RequestStats counts every audited request by outcome.
type RequestStats struct {
	Total  int64 `json:"total"`
	OK     int64 `json:"ok"`
	Denied int64 `json:"denied"`
	Errors int64 `json:"errors"`
}

// DenyRatio returns denied/total in [0,1].
func (r RequestStats) DenyRatio() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Denied) / float64(r.Total)
}

// ErrorRatio returns errors/total in [0,1].
func (r RequestStats) ErrorRatio() float64 {
	if r.Total <= 0 {
		return 0
	}
	return float64(r.Errors) / float64(r.Total)
}

// OperationStats counts requests for one operation type.
type OperationStats struct {
	Total  int64 `json:"total"`
	Denied int64 `json:"denied"`
	Errors int64 `json:"errors"`
}

// CommandStats tracks spawned command latency. Denied commands never spawn
// and are not counted here.
type CommandStats struct {
	Runs              int64 `json:"runs"`
	Timeouts          int64 `json:"timeouts"`
	TotalLatencyMs    int64 `json:"total_latency_ms"`
	MaxLatencyMs      int64 `json:"max_latency_ms"`
	LastLatencyMs     int64 `json:"last_latency_ms"`
	P95ProxyLatencyMs int64 `json:"p95_proxy_latency_ms"`
}

// TimeoutRatio returns timeouts/runs in [0,1].
func (c CommandStats) TimeoutRatio() float64 {
	if c.Runs <= 0 {
		return 0
	}
	return float64(c.Timeouts) / float64(c.Runs)
}

// AvgLatencyMs returns average latency in milliseconds.
func (c CommandStats) AvgLatencyMs() float64 {
	if c.Runs <= 0 {
		return 0
	}
	return float64(c.TotalLatencyMs) / float64(c.Runs)
}

// HasData reports whether any runtime metrics were recorded.
func (s RuntimeSnapshot) HasData() bool {
	return s.Requests.Total > 0
}

// RuntimeMetrics is an audit.Recorder that aggregates events and persists
// the snapshot after each one. Persistence happens under the lock so the file
// never goes backwards.
type RuntimeMetrics struct {
	path string

	mu      sync.Mutex
	snap    RuntimeSnapshot
	buckets []int64
}

var _ audit.Recorder = (*RuntimeMetrics)(nil)

// NewRuntimeMetrics creates a recorder persisting to <stateDir>/state/runtime_metrics.json.
// An empty stateDir keeps metrics in memory only.
func NewRuntimeMetrics(stateDir string) *RuntimeMetrics {
	path := ""
	if strings.TrimSpace(stateDir) != "" {
		path = runtimeMetricsPath(stateDir)
	}
	return &RuntimeMetrics{
		path:    path,
		buckets: make([]int64, len(latencyBucketUpperBoundsMs)+1),
	}
}

// Snapshot returns a copy of the latest in-memory snapshot.
func (m *RuntimeMetrics) Snapshot() RuntimeSnapshot {
	if m == nil {
		return RuntimeSnapshot{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.clone()
}

// Record implements audit.Recorder. Persist failures are logged, never
// returned, so metrics cannot fail a request.
func (m *RuntimeMetrics) Record(_ context.Context, event audit.Event) {
	if _, err := m.RecordEvent(event); err != nil {
		slog.Warn("persist runtime metrics failed", "error", err)
	}
}

// RecordEvent updates the aggregates and persists the snapshot.
func (m *RuntimeMetrics) RecordEvent(event audit.Event) (RuntimeSnapshot, error) {
	if m == nil {
		return RuntimeSnapshot{}, nil
	}

	m.mu.Lock()
	m.snap.UpdatedAt = time.Now().UTC()
	m.snap.Requests.Total++
	op := m.operation(event.Type)
	op.Total++

	switch event.Result {
	case audit.ResultDeny:
		m.snap.Requests.Denied++
		op.Denied++
		m.snap.DenyReasons = increment(m.snap.DenyReasons, event.Reason)
	case audit.ResultError:
		m.snap.Requests.Errors++
		op.Errors++
		m.snap.ErrorKinds = increment(m.snap.ErrorKinds, event.Reason)
	default:
		m.snap.Requests.OK++
	}
	m.snap.Operations[event.Type] = op

	if event.Type == commandOp && event.Result != audit.ResultDeny && event.Duration > 0 {
		m.recordLatency(event.Duration)
		if event.Result == audit.ResultError && event.Reason == executor.KindExecutionTimeout {
			m.snap.Command.Timeouts++
		}
	}

	snapshot := m.snap.clone()
	err := persistRuntimeSnapshot(m.path, snapshot)
	m.mu.Unlock()

	return snapshot, err
}

func (m *RuntimeMetrics) operation(name string) OperationStats {
	if m.snap.Operations == nil {
		m.snap.Operations = map[string]OperationStats{}
	}
	return m.snap.Operations[name]
}

func (m *RuntimeMetrics) recordLatency(d time.Duration) {
	latencyMs := d.Milliseconds()
	if latencyMs < 0 {
		latencyMs = 0
	}
	c := &m.snap.Command
	c.Runs++
	c.TotalLatencyMs += latencyMs
	c.LastLatencyMs = latencyMs
	if latencyMs > c.MaxLatencyMs {
		c.MaxLatencyMs = latencyMs
	}
	m.buckets[latencyBucketIndex(latencyMs)]++
	c.P95ProxyLatencyMs = p95ProxyFromBuckets(m.buckets, c.Runs)
}

func increment(counts map[string]int64, key string) map[string]int64 {
	if key == "" {
		key = "unknown"
	}
	if counts == nil {
		counts = map[string]int64{}
	}
	counts[key]++
	return counts
}

func (s RuntimeSnapshot) clone() RuntimeSnapshot {
	out := s
	if s.Operations != nil {
		out.Operations = make(map[string]OperationStats, len(s.Operations))
		for k, v := range s.Operations {
			out.Operations[k] = v
		}
	}
	out.DenyReasons = cloneCounts(s.DenyReasons)
	out.ErrorKinds = cloneCounts(s.ErrorKinds)
	return out
}

func cloneCounts(in map[string]int64) map[string]int64 {
	if in == nil {
		return nil
	}
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// ReadRuntimeSnapshot reads the persisted snapshot under stateDir.
// If no file exists yet, it returns a zero-value snapshot and nil error.
func ReadRuntimeSnapshot(stateDir string) (RuntimeSnapshot, error) {
	path := runtimeMetricsPath(stateDir)
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return RuntimeSnapshot{}, nil
		}
		return RuntimeSnapshot{}, fmt.Errorf("read runtime metrics: %w", err)
	}

	var snap RuntimeSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return RuntimeSnapshot{}, fmt.Errorf("decode runtime metrics: %w", err)
	}
	return snap, nil
}

func runtimeMetricsPath(stateDir string) string {
	return filepath.Join(stateDir, "state", runtimeMetricsFileName)
}

func persistRuntimeSnapshot(path string, snapshot RuntimeSnapshot) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create runtime metrics dir: %w", err)
	}

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode runtime metrics: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, payload, 0o644); err != nil {
		return fmt.Errorf("write runtime metrics temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("rename runtime metrics file: %w", err)
	}
	return nil
}

func latencyBucketIndex(latencyMs int64) int {
	for i, upper := range latencyBucketUpperBoundsMs {
		if latencyMs <= upper {
			return i
		}
	}
	return len(latencyBucketUpperBoundsMs)
}

func p95ProxyFromBuckets(buckets []int64, total int64) int64 {
	if total <= 0 {
		return 0
	}
	target := int64(float64(total) * 0.95)
	if target <= 0 {
		target = 1
	}

	var cumulative int64
	for i, count := range buckets {
		cumulative += count
		if cumulative < target {
			continue
		}
		if i >= len(latencyBucketUpperBoundsMs) {
			return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
		}
		return latencyBucketUpperBoundsMs[i]
	}
	return latencyBucketUpperBoundsMs[len(latencyBucketUpperBoundsMs)-1]
}
