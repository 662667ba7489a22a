// Package logger provides log output helpers, including a secret-masking writer.
package logger

import (
	"io"
	"regexp"
)

var redactPatterns = []struct {
	re          *regexp.Regexp
	replacement []byte
}{
	// Credentials embedded in redis:// and rediss:// URLs.
	{regexp.MustCompile(`(?i)(rediss?://)[^@\s/]*@`), []byte("${1}[REDACTED]@")},
	// password=..., "password":"..." and the REDIS_PASSWORD variants.
	{regexp.MustCompile(`(?i)("?[a-z_]*password"?\s*[:=]\s*"?)[^"\s,}]+`), []byte("${1}[REDACTED]")},
	// Bearer tokens in Authorization headers or log fields.
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`), []byte("bearer [REDACTED]")},
}

// RedactWriter masks secrets before they reach the underlying writer.
type RedactWriter struct{ w io.Writer }

func NewRedactWriter(w io.Writer) *RedactWriter { return &RedactWriter{w: w} }

func (r *RedactWriter) Write(p []byte) (int, error) {
	out := p
	for _, pat := range redactPatterns {
		out = pat.re.ReplaceAll(out, pat.replacement)
	}
	_, err := r.w.Write(out)
	return len(p), err
}
