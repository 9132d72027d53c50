// Package trace implements the Trace Journal (C1): an append-only,
// per-session JSONL event log with redaction and a monotonic timestamp
// guarantee, adapted from a debug trace plugin design into a
// closed TraceEvent shape.
package trace

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Kind is the closed set of trace event kinds.
type Kind string

const (
	KindRunStart        Kind = "run_start"
	KindRunEnd          Kind = "run_end"
	KindNodeEnter       Kind = "node_enter"
	KindNodeExit        Kind = "node_exit"
	KindToolRequest     Kind = "tool_request"
	KindToolResponse    Kind = "tool_response"
	KindLLMPrompt       Kind = "llm_prompt"
	KindLLMOutput       Kind = "llm_output"
	KindStateTransition Kind = "state_transition"
)

// maxFieldLength is the truncation threshold for prompt/output/metadata
// string values.
const maxFieldLength = 2000

// redactedSentinel replaces the value of a key recognized as sensitive.
const redactedSentinel = "[REDACTED]"

// sensitiveKeySubstrings are matched case-insensitively against metadata
// keys; any match redacts the whole value.
var sensitiveKeySubstrings = []string{
	"api_key", "token", "password", "authorization", "cookie", "secret",
}

// TraceEvent is one record in a session's trace journal.
type TraceEvent struct {
	Timestamp  time.Time      `json:"ts"`
	Kind       Kind           `json:"kind"`
	SessionID  string         `json:"session_id"`
	RunID      string         `json:"run_id"`
	Node       string         `json:"node,omitempty"`
	Tool       string         `json:"tool,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	Prompt     string         `json:"prompt,omitempty"`
	Output     string         `json:"output,omitempty"`
	DurationMS *int64         `json:"duration_ms,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Header is the first line written to a session's journal file.
type Header struct {
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// Journal appends TraceEvents to an underlying writer, one JSON object per
// line, redacting sensitive fields and enforcing non-decreasing timestamps
// before each record is flushed.
type Journal struct {
	mu        sync.Mutex
	writer    io.Writer
	file      *os.File
	header    *Header
	started   bool
	lastStamp time.Time
}

// NewJournal creates a Journal writing to w for the given session.
func NewJournal(w io.Writer, sessionID string) *Journal {
	return &Journal{
		writer: w,
		header: &Header{Version: 1, SessionID: sessionID, StartedAt: time.Now()},
	}
}

// NewJournalFile creates a Journal backed by a file at path, one file per
// session_id. The file is created or truncated; the caller
// must Close it.
func NewJournalFile(path, sessionID string) (*Journal, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create journal file: %w", err)
	}
	j := NewJournal(f, sessionID)
	j.file = f
	return j, nil
}

// Record appends event to the journal. Writes are atomic at record
// granularity: the header (written lazily on the first call), the redacted
// event, and the trailing sync all happen under one lock before Record
// returns.
func (j *Journal) Record(event TraceEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.started {
		j.started = true
		if err := j.writeLine(j.header); err != nil {
			return err
		}
	}

	if !event.Timestamp.After(j.lastStamp) && !j.lastStamp.IsZero() {
		// Equal timestamps keep insertion order; earlier
		// timestamps are bumped forward to preserve the monotonic
		// non-decreasing invariant rather than silently reordering.
		event.Timestamp = j.lastStamp
	}
	j.lastStamp = event.Timestamp

	redact(&event)

	if err := j.writeLine(&event); err != nil {
		return err
	}
	return nil
}

func (j *Journal) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal trace record: %w", err)
	}
	if _, err := j.writer.Write(data); err != nil {
		return err
	}
	if _, err := j.writer.Write([]byte("\n")); err != nil {
		return err
	}
	if j.file != nil {
		return j.file.Sync()
	}
	return nil
}

// Close closes the underlying file, if the Journal opened one itself.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// redact applies the key-substring and length-truncation rules in place.
func redact(e *TraceEvent) {
	e.Prompt = truncateField(e.Prompt)
	e.Output = truncateField(e.Output)

	if e.Metadata == nil {
		return
	}
	for k, v := range e.Metadata {
		if isSensitiveKey(k) {
			e.Metadata[k] = redactedSentinel
			continue
		}
		if s, ok := v.(string); ok {
			e.Metadata[k] = truncateField(s)
		}
	}
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, substr := range sensitiveKeySubstrings {
		if strings.Contains(lower, substr) {
			return true
		}
	}
	return false
}

// truncateField cuts s to its first maxFieldLength bytes when it is longer,
// appending a marker that keeps the original length visible for debugging.
func truncateField(s string) string {
	if len(s) <= maxFieldLength {
		return s
	}
	return fmt.Sprintf("%s...[truncated, original length %d]", s[:maxFieldLength], len(s))
}

// Reader reads TraceEvents back from a journal written by Journal.
type Reader struct {
	scanner *bufio.Scanner
	header  *Header
}

// NewReader parses the header line from r and returns a Reader positioned
// at the first event.
func NewReader(r io.Reader) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read journal header: %w", err)
		}
		return nil, fmt.Errorf("read journal header: empty journal")
	}

	var header Header
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, fmt.Errorf("parse journal header: %w", err)
	}
	if header.Version != 1 {
		return nil, fmt.Errorf("unsupported journal version: %d", header.Version)
	}

	return &Reader{scanner: scanner, header: &header}, nil
}

// Header returns the parsed journal header.
func (r *Reader) Header() *Header { return r.header }

// ReadAll reads every remaining event.
func (r *Reader) ReadAll() ([]TraceEvent, error) {
	var events []TraceEvent
	for r.scanner.Scan() {
		var event TraceEvent
		if err := json.Unmarshal(r.scanner.Bytes(), &event); err != nil {
			return events, fmt.Errorf("parse journal event: %w", err)
		}
		events = append(events, event)
	}
	if err := r.scanner.Err(); err != nil {
		return events, err
	}
	return events, nil
}
