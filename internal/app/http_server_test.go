package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/shop-orders/internal/health"
	"github.com/vladislavdragonenkov/shop-orders/internal/version"
)

// startTestMetricsServer поднимает служебный сервер на свободном порту и ждёт /livez.
func startTestMetricsServer(t *testing.T, handler *healthcheck.Handler) (string, context.CancelFunc, *http.Server) {
	t.Helper()

	port := findFreePort(t)
	ctx, cancel := context.WithCancel(context.Background())
	srv := startMetricsServer(ctx, fmt.Sprintf("127.0.0.1:%d", port), log.WithField("test", t.Name()), handler)
	t.Cleanup(cancel)

	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	waitForHTTP(t, base+"/livez")
	return base, cancel, srv
}

func getBody(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestStartMetricsServer_Endpoints(t *testing.T) {
	handler := healthcheck.NewHandler(version.GetVersion())
	handler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error { return nil }))
	base, _, srv := startTestMetricsServer(t, handler)
	if srv == nil {
		t.Fatal("metrics server must not be nil")
	}

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/livez", wantCode: http.StatusOK, wantBody: "ok"},
		{path: "/readyz", wantCode: http.StatusOK, wantBody: "ready"},
		{path: "/healthz", wantCode: http.StatusOK},
		{path: "/metrics", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			code, body := getBody(t, base+tt.path)
			if code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, code)
			}
			if tt.wantBody != "" && body != tt.wantBody {
				t.Fatalf("expected body %q, got %q", tt.wantBody, body)
			}
			if body == "" {
				t.Fatal("empty response body")
			}
		})
	}
}

func TestStartMetricsServer_StorageDownIsNotReady(t *testing.T) {
	handler := healthcheck.NewHandler("test")
	handler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error {
		return errors.New("connection refused")
	}))
	base, _, _ := startTestMetricsServer(t, handler)

	code, body := getBody(t, base+"/readyz")
	if code != http.StatusServiceUnavailable || body != "not ready" {
		t.Fatalf("expected 503 not ready, got %d %q", code, body)
	}

	code, body = getBody(t, base+"/healthz")
	if code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from /healthz, got %d", code)
	}
	var report healthcheck.Response
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		t.Fatalf("decode health report: %v", err)
	}
	if report.Status != healthcheck.StatusUnhealthy || report.Checks["storage"].Message != "connection refused" {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestStartMetricsServer_OptionalRedisDegraded(t *testing.T) {
	handler := healthcheck.NewHandler("test")
	handler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error { return nil }))
	handler.RegisterChecker("idempotency", healthcheck.NewPingChecker("redis", func(context.Context) error {
		return errors.New("redis: nil pool")
	}, healthcheck.WithTimeout(100*time.Millisecond), healthcheck.Optional()))
	base, _, _ := startTestMetricsServer(t, handler)

	if code, _ := getBody(t, base+"/readyz"); code != http.StatusOK {
		t.Fatalf("degraded dependency must not remove readiness, got %d", code)
	}
	code, body := getBody(t, base+"/healthz")
	if code != http.StatusOK {
		t.Fatalf("expected 200 for degraded, got %d", code)
	}
	var report healthcheck.Response
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		t.Fatalf("decode health report: %v", err)
	}
	if report.Status != healthcheck.StatusDegraded {
		t.Fatalf("expected degraded, got %s", report.Status)
	}
}

func TestStartMetricsServer_StopsOnContextCancel(t *testing.T) {
	base, cancel, _ := startTestMetricsServer(t, healthcheck.NewHandler("test"))

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/livez")
		if err != nil {
			return
		}
		resp.Body.Close()
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("metrics server still serving after context cancellation")
}

func TestStartMetricsServer_InvalidAddrDoesNotPanic(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := startMetricsServer(ctx, "invalid:address:99999", log.WithField("test", "invalid-addr"), healthcheck.NewHandler("test"))
	if srv == nil {
		t.Fatal("server must be returned even for a bad address")
	}
	time.Sleep(50 * time.Millisecond)
}

func TestShutdownHTTP(t *testing.T) {
	logger := log.WithField("test", "shutdown-http")
	shutdownHTTP(nil, logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: http.HandlerFunc(healthcheck.LivenessHandler), ReadHeaderTimeout: time.Second}
	go func() { _ = srv.Serve(listener) }()
	url := "http://" + listener.Addr().String()
	waitForHTTP(t, url)

	shutdownHTTP(srv, logger)
	if _, err := http.Get(url); err == nil {
		t.Fatal("server should be stopped after shutdownHTTP")
	}
}

// findFreePort находит свободный порт для тестов
func findFreePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find free port: %v", err)
	}
	defer listener.Close()

	return listener.Addr().(*net.TCPAddr).Port
}
