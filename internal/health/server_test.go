package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
)

type stubMongoChecker struct {
	err   error
	calls *int
}

func (s stubMongoChecker) Ping(context.Context) error {
	if s.calls != nil {
		*s.calls++
	}
	return s.err
}

func serve(t *testing.T, server *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rr := httptest.NewRecorder()
	server.server.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthzIsLivenessOnly(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	calls := 0
	server := NewServer(0, stubMongoChecker{err: errors.New("mongo down"), calls: &calls}, logrus.NewEntry(logger))

	rr := serve(t, server, http.MethodGet, "/healthz")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %s", body)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected content-type application/json, got %s", ct)
	}
	if calls != 0 {
		t.Fatalf("expected liveness probe not to ping mongo")
	}
}

func TestReadyzOK(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{}, logrus.NewEntry(logger))

	rr := serve(t, server, http.MethodGet, "/readyz")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"status":"ok"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestReadyzMongoError(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{err: errors.New("mongo down")}, logrus.NewEntry(logger))

	rr := serve(t, server, http.MethodGet, "/readyz")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected HTTP 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != `{"status":"degraded","mongo":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}

	found := false
	for _, entry := range hook.AllEntries() {
		if entry.Data["event"] == "health_mongo_error" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected health_mongo_error log")
	}
}

func TestReadyzMissingMongoChecker(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, nil, logrus.NewEntry(logger))

	rr := serve(t, server, http.MethodGet, "/readyz")

	if body := strings.TrimSpace(rr.Body.String()); body != `{"status":"degraded","mongo":"error"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestOptionalRoutes(t *testing.T) {
	logger, _ := logtest.NewNullLogger()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})
	webhook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	server := NewServer(0, stubMongoChecker{}, logrus.NewEntry(logger),
		WithMetrics(metrics),
		WithWebhook("/webhook", webhook),
	)

	if rr := serve(t, server, http.MethodGet, "/metrics"); rr.Code != http.StatusOK || rr.Body.String() != "metrics" {
		t.Fatalf("expected metrics route, got %d %q", rr.Code, rr.Body.String())
	}
	if rr := serve(t, server, http.MethodPost, "/webhook"); rr.Code != http.StatusOK || rr.Body.String() != "OK" {
		t.Fatalf("expected webhook route, got %d %q", rr.Code, rr.Body.String())
	}
	if rr := serve(t, server, http.MethodGet, "/webhook"); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET webhook, got %d", rr.Code)
	}
}

func TestOptionalRoutesAbsentByDefault(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	server := NewServer(0, stubMongoChecker{}, logrus.NewEntry(logger))

	if rr := serve(t, server, http.MethodGet, "/metrics"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rr.Code)
	}
	if rr := serve(t, server, http.MethodPost, "/webhook"); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without webhook handler, got %d", rr.Code)
	}
}

func TestRecovererCatchesPanics(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	boom := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	server := NewServer(0, stubMongoChecker{}, logrus.NewEntry(logger), WithWebhook("/webhook", boom))

	if rr := serve(t, server, http.MethodPost, "/webhook"); rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rr.Code)
	}
}

func TestShutdownNilServer(t *testing.T) {
	var server *Server
	if err := server.Shutdown(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}
