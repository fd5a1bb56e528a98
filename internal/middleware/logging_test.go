package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLoggerRecordsStatusAndSize(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte("payload"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/invitations", nil))

	line := buf.String()
	if !strings.Contains(line, "status=201") {
		t.Errorf("expected status=201 in %q", line)
	}
	if !strings.Contains(line, "bytes=7") {
		t.Errorf("expected bytes=7 in %q", line)
	}
	if !strings.Contains(line, "level=INFO") {
		t.Errorf("expected level=INFO in %q", line)
	}
}

func TestRequestLoggerLevels(t *testing.T) {
	cases := []struct {
		path   string
		status int
		want   string
	}{
		{"/health", http.StatusOK, "level=DEBUG"},
		{"/otp/send", http.StatusTooManyRequests, "level=WARN"},
		{"/otp/send", http.StatusInternalServerError, "level=ERROR"},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
		h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", c.path, nil))
		if !strings.Contains(buf.String(), c.want) {
			t.Errorf("%s %d: expected %s in %q", c.path, c.status, c.want, buf.String())
		}
	}
}
