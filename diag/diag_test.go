package diag

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiagnosticString(t *testing.T) {
	tests := []struct {
		name string
		d    Diagnostic
		want string
	}{
		{
			name: "without location",
			d:    Diagnostic{Severity: SeverityNote, Message: "writing META-INF/services/a.B"},
			want: "note: writing META-INF/services/a.B",
		},
		{
			name: "with file and line",
			d:    Diagnostic{Severity: SeverityError, Message: "bad", Location: Location{File: "x/y.go", Line: 12}},
			want: "x/y.go:12: error: bad",
		},
		{
			name: "with file only",
			d:    Diagnostic{Severity: SeverityWarning, Message: "skipped", Location: Location{File: "x/y.go"}},
			want: "x/y.go: warning: skipped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.d.String())
		})
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	Errorf(r, Location{}, "first %d", 1)
	Warnf(r, Location{File: "a.go"}, "second")
	Notef(r, Location{}, "third")
	Errorf(r, Location{}, "fourth")

	all := r.All()
	require.Len(t, all, 4)
	assert.Equal(t, "first 1", all[0].Message)
	assert.Equal(t, 2, r.ErrorCount())
	assert.Len(t, r.BySeverity(SeverityNote), 1)

	r.Reset()
	assert.Empty(t, r.All())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := NewLogSink(logger)

	Errorf(s, Location{File: "a.go", Line: 3}, "cannot infer contract type")
	Notef(s, Location{}, "writing")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "cannot infer contract type")
	assert.Contains(t, out, "location=a.go:3")
	assert.Contains(t, out, "level=INFO")
}

func TestMulti(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	m := Multi{a, nil, b, Discard}

	Warnf(m, Location{}, "shared")

	assert.Len(t, a.All(), 1)
	assert.Len(t, b.All(), 1)
}
