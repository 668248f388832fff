// Package trace appends request-scoped diagnostic events to a JSONL file.
// Tracing is best effort: a recorder never fails the request it observes.
package trace

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultPath is where events land unless PAYMENT_SYNC_V2_TRACE_PATH
	// points elsewhere.
	DefaultPath = "logs/payment_sync_v2_trace.jsonl"

	defaultMaxChars = 20000
	clipSentinel    = "...[clipped]"
)

// Event is one trace line. Data holds step-specific payloads and is clipped
// per value before writing.
type Event struct {
	Timestamp string         `json:"ts"`
	RID       string         `json:"rid"`
	Step      string         `json:"step"`
	User      string         `json:"user,omitempty"`
	Path      string         `json:"path,omitempty"`
	Method    string         `json:"method,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Recorder serializes events to a single JSONL file. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	path     string
	enabled  bool
	full     bool
	maxChars int
}

// NewFromEnv builds a recorder configured by environment variables. Tracing
// is on by default; PAYMENT_SYNC_V2_TRACE=0/false/no/off disables it,
// PAYMENT_SYNC_V2_TRACE_FULL disables payload clipping,
// PAYMENT_SYNC_V2_TRACE_PATH overrides the file location and
// PAYMENT_SYNC_V2_TRACE_MAX_CHARS overrides the per-value clip limit.
func NewFromEnv() *Recorder {
	r := &Recorder{
		path:     DefaultPath,
		enabled:  !envDisabled("PAYMENT_SYNC_V2_TRACE"),
		full:     envEnabled("PAYMENT_SYNC_V2_TRACE_FULL"),
		maxChars: defaultMaxChars,
	}
	if p := os.Getenv("PAYMENT_SYNC_V2_TRACE_PATH"); p != "" {
		r.path = p
	}
	if raw := os.Getenv("PAYMENT_SYNC_V2_TRACE_MAX_CHARS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			r.maxChars = n
		}
	}
	return r
}

// New builds an always-on recorder writing to path. Used by tests and the
// trace viewer.
func New(path string) *Recorder {
	return &Recorder{path: path, enabled: true, maxChars: defaultMaxChars}
}

// Enabled reports whether events will actually be written.
func (r *Recorder) Enabled() bool { return r != nil && r.enabled }

// Record appends one event. Any failure is swallowed; tracing must never
// break the request path.
func (r *Recorder) Record(ev Event) {
	if !r.Enabled() {
		return
	}
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if !r.full {
		ev.Data = r.clipMap(ev.Data)
	}
	line, err := json.Marshal(ev)
	if err != nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(r.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.Write(append(line, '\n'))
}

// Step records a step with structured data under a request id.
func (r *Recorder) Step(rid, step string, data map[string]any) {
	r.Record(Event{RID: rid, Step: step, Data: data})
}

func (r *Recorder) clipMap(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = r.clipValue(v)
	}
	return out
}

// clipValue bounds the serialized size of one payload value. Anything that
// marshals longer than the limit is replaced by its truncated JSON text.
func (r *Recorder) clipValue(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if len(raw) <= r.maxChars {
		return v
	}
	return string(raw[:r.maxChars]) + clipSentinel
}

// NewRID returns a fresh 10 character hex request id.
func NewRID() string {
	var b [5]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("%010x", time.Now().UnixNano()%0xffffffffff)
	}
	return hex.EncodeToString(b[:])
}

// Tail reads up to n most recent events from the trace file, optionally
// filtered by request id. Blank lines and broken lines are skipped.
func Tail(path string, n int, rid string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			continue
		}
		if rid != "" && ev.RID != rid {
			continue
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if n > 0 && len(events) > n {
		events = events[len(events)-n:]
	}
	return events, nil
}

func envEnabled(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func envDisabled(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "0", "false", "no", "off":
		return true
	}
	return false
}
