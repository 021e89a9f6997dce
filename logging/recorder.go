package logging

import "sync"

// Entry is a single log line captured by a Recorder.
type Entry struct {
	Level LogLevel
	Msg   string
	Attrs map[string]any
}

// Recorder is a Logger that keeps every entry in memory. Tests inject it in
// place of a real logger to assert on emitted events.
type Recorder struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Debug records a debug entry.
func (r *Recorder) Debug(msg string, args ...any) { r.record(LogLevelDebug, msg, args) }

// Info records an info entry.
func (r *Recorder) Info(msg string, args ...any) { r.record(LogLevelInfo, msg, args) }

// Warn records a warning entry.
func (r *Recorder) Warn(msg string, args ...any) { r.record(LogLevelWarn, msg, args) }

// Error records an error entry.
func (r *Recorder) Error(msg string, args ...any) { r.record(LogLevelError, msg, args) }

func (r *Recorder) record(level LogLevel, msg string, args []any) {
	attrs := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if k, ok := args[i].(string); ok {
			attrs[k] = args[i+1]
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Msg: msg, Attrs: attrs})
}

// Entries returns a copy of all captured entries in emission order.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Count returns how many entries carry msg.
func (r *Recorder) Count(msg string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if e.Msg == msg {
			n++
		}
	}
	return n
}

// Find returns the first entry carrying msg.
func (r *Recorder) Find(msg string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.Msg == msg {
			return e, true
		}
	}
	return Entry{}, false
}

// Reset drops all captured entries.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
