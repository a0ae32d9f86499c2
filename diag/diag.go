// Package diag carries diagnostics from the generator to whoever is
// presenting them: the log, a test, or the CLI exit status.
package diag

import (
	"fmt"
	"log/slog"
	"sync"
)

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityNote    Severity = "note"
)

// Location points at the source of a diagnostic. The zero value means
// no location.
type Location struct {
	File string
	Line int
}

// IsZero reports whether the location is empty.
func (l Location) IsZero() bool {
	return l.File == "" && l.Line == 0
}

func (l Location) String() string {
	if l.Line > 0 {
		return fmt.Sprintf("%s:%d", l.File, l.Line)
	}
	return l.File
}

// Diagnostic is a single reported message.
type Diagnostic struct {
	Severity Severity
	Message  string
	Location Location
}

func (d Diagnostic) String() string {
	if d.Location.IsZero() {
		return fmt.Sprintf("%s: %s", d.Severity, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.Location, d.Severity, d.Message)
}

// Sink receives diagnostics.
type Sink interface {
	Report(d Diagnostic)
}

// Errorf reports an error diagnostic.
func Errorf(s Sink, loc Location, format string, args ...any) {
	s.Report(Diagnostic{Severity: SeverityError, Message: fmt.Sprintf(format, args...), Location: loc})
}

// Warnf reports a warning diagnostic.
func Warnf(s Sink, loc Location, format string, args ...any) {
	s.Report(Diagnostic{Severity: SeverityWarning, Message: fmt.Sprintf(format, args...), Location: loc})
}

// Notef reports a note diagnostic.
func Notef(s Sink, loc Location, format string, args ...any) {
	s.Report(Diagnostic{Severity: SeverityNote, Message: fmt.Sprintf(format, args...), Location: loc})
}

// LogSink writes diagnostics to a slog logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink that logs through logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Report logs the diagnostic at the level matching its severity.
func (s *LogSink) Report(d Diagnostic) {
	attrs := []any{}
	if !d.Location.IsZero() {
		attrs = append(attrs, "location", d.Location.String())
	}
	switch d.Severity {
	case SeverityError:
		s.logger.Error(d.Message, attrs...)
	case SeverityWarning:
		s.logger.Warn(d.Message, attrs...)
	default:
		s.logger.Info(d.Message, attrs...)
	}
}

// Recorder keeps every diagnostic it receives. Safe for concurrent use.
type Recorder struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Report records the diagnostic.
func (r *Recorder) Report(d Diagnostic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, d)
}

// All returns a copy of the recorded diagnostics in report order.
func (r *Recorder) All() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diagnostics))
	copy(out, r.diagnostics)
	return out
}

// BySeverity returns the recorded diagnostics of one severity.
func (r *Recorder) BySeverity(sev Severity) []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Diagnostic
	for _, d := range r.diagnostics {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// ErrorCount returns the number of error diagnostics.
func (r *Recorder) ErrorCount() int {
	return len(r.BySeverity(SeverityError))
}

// Reset drops all recorded diagnostics.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = nil
}

// Multi fans a diagnostic out to several sinks.
type Multi []Sink

// Report forwards d to every sink.
func (m Multi) Report(d Diagnostic) {
	for _, s := range m {
		if s != nil {
			s.Report(d)
		}
	}
}

// Discard drops every diagnostic.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(Diagnostic) {}
