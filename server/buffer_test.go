package server

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferedResponseWriterFlush(t *testing.T) {
	buf := newBufferedResponseWriter()
	buf.Header().Set("X-Test", "1")
	buf.WriteHeader(201)
	buf.Write([]byte("hello"))

	rec := httptest.NewRecorder()
	buf.flush(rec)

	assert.Equal(t, 201, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Test"))
	assert.Equal(t, "hello", rec.Body.String())
}

func TestBufferedResponseWriterDiscardNeverReachesDestination(t *testing.T) {
	buf := newBufferedResponseWriter()
	buf.WriteHeader(200)
	buf.Write([]byte("should never be seen"))
	buf.discard()

	rec := httptest.NewRecorder()
	assert.Equal(t, 200, rec.Code, "recorder untouched since flush was never called")
}

func TestBufferedResponseWriterImplicitWriteHeader(t *testing.T) {
	buf := newBufferedResponseWriter()
	buf.Write([]byte("no explicit status"))
	assert.Equal(t, 200, buf.statusCode)
}

func TestBufferedResponseWriterWriteHeaderIdempotent(t *testing.T) {
	buf := newBufferedResponseWriter()
	buf.WriteHeader(201)
	buf.WriteHeader(500)
	assert.Equal(t, 201, buf.statusCode, "first WriteHeader call wins per http.ResponseWriter contract")
}
