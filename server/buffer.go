package server

import (
	"bytes"
	"net/http"
)

// bufferedResponseWriter captures a downstream handler's status, headers,
// and body in memory instead of writing them to the client. Per spec.md
// §4.4's critical invariant, the handler's output must be emitted iff
// both verification and settlement succeed; buffering is how the gate
// enforces that without the handler needing any awareness of payment
// state. Shaped like httptest.ResponseRecorder but purpose-built since
// flush() commits to a real http.ResponseWriter rather than a test double.
type bufferedResponseWriter struct {
	header     http.Header
	body       bytes.Buffer
	statusCode int
	wroteHeader bool
}

func newBufferedResponseWriter() *bufferedResponseWriter {
	return &bufferedResponseWriter{header: make(http.Header), statusCode: http.StatusOK}
}

func (w *bufferedResponseWriter) Header() http.Header { return w.header }

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(b)
}

func (w *bufferedResponseWriter) WriteHeader(statusCode int) {
	if w.wroteHeader {
		return
	}
	w.statusCode = statusCode
	w.wroteHeader = true
}

// flush commits the buffered response to the real writer: headers first,
// then status, then body, matching the ordering http.ResponseWriter
// requires (headers must be set before WriteHeader is called).
func (w *bufferedResponseWriter) flush(dst http.ResponseWriter) {
	for k, values := range w.header {
		for _, v := range values {
			dst.Header().Add(k, v)
		}
	}
	dst.WriteHeader(w.statusCode)
	dst.Write(w.body.Bytes())
}

// discard is a no-op named for call-site clarity: a suppressed response
// simply never calls flush, so its buffer is garbage-collected unread.
func (w *bufferedResponseWriter) discard() {}
