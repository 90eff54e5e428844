package logger

import (
	"io"
	"regexp"
)

// Redactor masks provider credentials before log lines reach any sink.
// Covered: OpenAI-style keys (sk-...), Anthropic keys (sk-ant-...), and
// bearer tokens embedded in dumped request headers.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the built-in credential patterns
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{8,}`),
			regexp.MustCompile(`sk-[A-Za-z0-9_\-]{16,}`),
			regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.]{16,}`),
		},
	}
}

// Redact replaces every credential occurrence in the line
func (r *Redactor) Redact(line []byte) []byte {
	for _, p := range r.patterns {
		line = p.ReplaceAll(line, []byte("[REDACTED]"))
	}
	return line
}

// Wrap returns a writer that redacts each write before forwarding
func (r *Redactor) Wrap(w io.Writer) io.Writer {
	return &redactingWriter{redactor: r, next: w}
}

type redactingWriter struct {
	redactor *Redactor
	next     io.Writer
}

func (w *redactingWriter) Write(p []byte) (int, error) {
	redacted := w.redactor.Redact(p)
	if _, err := w.next.Write(redacted); err != nil {
		return 0, err
	}
	// Report the original length so zerolog does not treat the write as short.
	return len(p), nil
}
