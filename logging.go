package main

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log"
)

func newLogger(w io.Writer) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

// statusRecorder remembers the status code written through it, and
// whether the headers have gone out.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

// Flush lets streaming handlers push bytes out early.
func (s *statusRecorder) Flush() {
	s.wroteHeader = true
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap is for http.ResponseController.
func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Log is the access log, and turns handler panics into 500s when the
// headers have not been sent yet.
func Log(handler http.Handler, logger log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		t0 := time.Now()
		defer func() {
			if rc := recover(); rc != nil {
				_ = logger.Log("level", "ERR", "msg", "Server Error", "url", r.URL.String(),
					"error", fmt.Sprintf("%v", rc))
				if !rec.wroteHeader {
					http.Error(rec, "internal server error", http.StatusInternalServerError)
				}
			}
			_ = logger.Log("level", "INFO", "remote", r.RemoteAddr, "method", r.Method,
				"url", r.URL.String(), "status", rec.status, "time", time.Since(t0))
		}()
		handler.ServeHTTP(rec, r)
	})
}
