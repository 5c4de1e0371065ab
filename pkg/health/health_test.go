package health

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cuemby/cadence/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker_HealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("healthy"))
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())

	assert.True(t, result.Healthy, result.Message)
	assert.Equal(t, "HTTP 200 OK", result.Message)
	assert.Positive(t, result.Duration)
}

func TestHTTPChecker_UnhealthyEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "expected 200-399")
}

func TestHTTPChecker_CustomStatusRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	assert.True(t, NewHTTPChecker(server.URL).WithStatusRange(200, 299).Check(context.Background()).Healthy)
	assert.False(t, NewHTTPChecker(server.URL).WithStatusRange(200, 200).Check(context.Background()).Healthy)
}

func TestHTTPChecker_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gw-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	checker := NewHTTPChecker(server.URL).WithHeader("Authorization", "Bearer gw-token")
	assert.True(t, checker.Check(context.Background()).Healthy)
	assert.False(t, NewHTTPChecker(server.URL).Check(context.Background()).Healthy)
}

func TestHTTPChecker_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	result := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond).Check(context.Background())

	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "request failed")
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.False(t, NewHTTPChecker(server.URL).Check(ctx).Healthy)
}

func TestTCPChecker(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()

	checker := NewTCPChecker(addr).WithTimeout(time.Second)
	assert.Equal(t, CheckTypeTCP, checker.Type())
	assert.True(t, checker.Check(context.Background()).Healthy)

	require.NoError(t, lis.Close())
	result := checker.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "connection failed")
}

func TestAddressFromURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{"https://api.openai.com/v1", "api.openai.com:443", false},
		{"http://localhost:8081/v1", "localhost:8081", false},
		{"http://gateway.internal", "gateway.internal:80", false},
		{"ftp://files.example.com", "", true},
		{"/relative/path", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := AddressFromURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_Update(t *testing.T) {
	cfg := Config{Retries: 3}
	status := NewStatus()
	assert.True(t, status.Healthy)

	fail := Result{Healthy: false, Message: "down"}
	status.Update(fail, cfg)
	status.Update(fail, cfg)
	assert.True(t, status.Healthy, "below retry threshold")
	assert.Equal(t, 2, status.ConsecutiveFailures)

	status.Update(fail, cfg)
	assert.False(t, status.Healthy)

	status.Update(Result{Healthy: true}, cfg)
	assert.True(t, status.Healthy)
	assert.Equal(t, 0, status.ConsecutiveFailures)
	assert.Equal(t, 1, status.ConsecutiveSuccesses)
}

type stubChecker struct {
	results []bool
	calls   int
}

func (s *stubChecker) Check(ctx context.Context) Result {
	healthy := s.results[s.calls]
	s.calls++
	msg := "ok"
	if !healthy {
		msg = "unreachable"
	}
	return Result{Healthy: healthy, Message: msg, CheckedAt: time.Now()}
}

func (s *stubChecker) Type() CheckType { return CheckTypeHTTP }

func TestProbe_ReportsComponentHealth(t *testing.T) {
	reg := metrics.NewProcessRegistry(nil)
	state := func() string {
		c, ok := reg.Component("gateway")
		require.True(t, ok)
		return c.String()
	}

	checker := &stubChecker{results: []bool{false, false, true}}
	probe := NewProbe("gateway", checker, Config{Retries: 2}, reg)
	assert.Equal(t, "gateway", probe.Name())
	assert.Equal(t, "healthy", state())

	ctx := context.Background()

	require.NoError(t, probe.Run(ctx), "one failure is tolerated")
	assert.Equal(t, "healthy", state())

	err := probe.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway unhealthy")
	assert.Equal(t, "unhealthy: unreachable", state())
	assert.Equal(t, 2, probe.Status().ConsecutiveFailures)

	require.NoError(t, probe.Run(ctx))
	assert.Equal(t, "healthy", state())
	assert.True(t, probe.Status().Healthy)
}

func TestProbe_DoesNotAffectReadiness(t *testing.T) {
	reg := metrics.NewProcessRegistry(nil)
	reg.Update(metrics.ComponentStore, true, "")
	reg.Update(metrics.ComponentScheduler, true, "")

	probe := NewProbe("genai", &stubChecker{results: []bool{false}}, Config{Retries: 1}, reg)
	require.Error(t, probe.Run(context.Background()))

	assert.Equal(t, metrics.StatusUnhealthy, reg.Health().Status)
	assert.Equal(t, metrics.StatusReady, reg.Readiness().Status)
}
