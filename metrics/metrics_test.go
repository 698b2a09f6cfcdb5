package metrics

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"ledtools/bus"
	"ledtools/core"
	"ledtools/events"
)

func eventually(t *testing.T, c prometheus.Collector, want float64) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if testutil.ToFloat64(c) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Errorf("metric = %v, want %v", testutil.ToFloat64(c), want)
}

func TestRecordTransaction(t *testing.T) {
	sim := bus.NewSim(core.DefaultAddress)
	exp := core.NewExpander(sim)
	exp.OnTransaction = RecordTransaction

	okWrites := registerTransactions.WithLabelValues("write", resultOK)
	failedReads := registerTransactions.WithLabelValues("read", resultError)
	writes, reads := testutil.ToFloat64(okWrites), testutil.ToFloat64(failedReads)

	if err := exp.WriteRegister(0xFE); err != nil {
		t.Fatal(err)
	}
	sim.FailNext(errors.New("nack"), 1)
	if _, err := exp.ReadRegister(); err == nil {
		t.Fatal("read succeeded")
	}

	if got := testutil.ToFloat64(okWrites) - writes; got != 1 {
		t.Errorf("ok writes += %v, want 1", got)
	}
	if got := testutil.ToFloat64(failedReads) - reads; got != 1 {
		t.Errorf("failed reads += %v, want 1", got)
	}
}

func TestObserve(t *testing.T) {
	b := events.New()
	stop := Observe(b)
	defer stop()

	shine := commandsTotal.WithLabelValues("shine", "ok")
	ticks := timerTicks.WithLabelValues("Blink")
	completed := demoSessions.WithLabelValues("completed")
	base := []float64{testutil.ToFloat64(shine), testutil.ToFloat64(ticks), testutil.ToFloat64(completed)}

	b.Publish(events.CommandExecutedEvent{Command: "shine", Args: "R", Result: "ok"})
	b.Publish(events.TimerTickEvent{Timer: "Blink"})
	b.Publish(events.DemoEndedEvent{Reason: "completed", Step: 6})
	// red and green lit, blue dark
	b.Publish(events.LEDChangedEvent{Register: 0xFA, Cause: "shine"})

	eventually(t, shine, base[0]+1)
	eventually(t, ticks, base[1]+1)
	eventually(t, completed, base[2]+1)
	eventually(t, registerValue, 0xFA)

	tests := map[string]float64{"green": 1, "blue": 0, "red": 1}
	for color, want := range tests {
		eventually(t, ledOn.WithLabelValues(color), want)
	}
}

func TestHandler(t *testing.T) {
	RecordTransaction("write", nil)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `ledtools_expander_transactions_total{op="write",result="ok"}`) {
		t.Error("transactions counter missing from exposition")
	}
}

func TestServeStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0") }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
