package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestCounters(t *testing.T) {
	m := Discard()
	m.Commits.WithLabelValues("timer").Inc()
	m.Commits.WithLabelValues("timer").Inc()
	m.Deliveries.WithLabelValues("success").Inc()

	if got := counterValue(t, m.Commits.WithLabelValues("timer")); got != 2 {
		t.Errorf("commits{timer} = %v, want 2", got)
	}
	if got := counterValue(t, m.Deliveries.WithLabelValues("success")); got != 1 {
		t.Errorf("deliveries{success} = %v, want 1", got)
	}
}

func TestServe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.SessionsTotal.WithLabelValues("toggle").Inc()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := l.Addr().String()
	l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, reg) }()

	var body string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			body = string(b)
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(body, `dictate_sessions_total{mode="toggle"} 1`) {
		t.Errorf("metrics output missing session counter:\n%s", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
