// Package metrics exports ledtools counters and gauges to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ledtools/core"
	"ledtools/events"
	"ledtools/logging"
)

const (
	resultOK    = "ok"
	resultError = "error"
)

var (
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledtools",
		Name:      "commands_total",
		Help:      "Controller commands by name and result",
	}, []string{"command", "result"})

	registerTransactions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledtools",
		Subsystem: "expander",
		Name:      "transactions_total",
		Help:      "Register reads and writes by outcome",
	}, []string{"op", "result"})

	timerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledtools",
		Name:      "timer_ticks_total",
		Help:      "Timer callbacks run",
	}, []string{"timer"})

	demoSessions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledtools",
		Subsystem: "demo",
		Name:      "sessions_total",
		Help:      "Finished demo sessions by reason",
	}, []string{"reason"})

	// LED gauges.
	ledOn = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "ledtools",
		Name:      "led_on",
		Help:      "1 while the LED is lit",
	}, []string{"color"})

	registerValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ledtools",
		Subsystem: "expander",
		Name:      "register",
		Help:      "Last value written to the output register",
	})
)

// RecordTransaction counts one register transaction. It has the signature
// of core.Expander.OnTransaction.
func RecordTransaction(op string, err error) {
	registerTransactions.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return resultError
	}
	return resultOK
}

// Observe feeds the collectors from bus. The returned function
// unsubscribes.
func Observe(bus *events.Bus) func() {
	unsubs := []func(){
		events.Subscribe(bus, func(e events.CommandExecutedEvent) {
			commandsTotal.WithLabelValues(e.Command, e.Result).Inc()
		}),
		events.Subscribe(bus, func(e events.TimerTickEvent) {
			timerTicks.WithLabelValues(e.Timer).Inc()
		}),
		events.Subscribe(bus, func(e events.DemoEndedEvent) {
			demoSessions.WithLabelValues(e.Reason).Inc()
		}),
		events.Subscribe(bus, func(e events.LEDChangedEvent) {
			setRegister(e.Register)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

func setRegister(v byte) {
	registerValue.Set(float64(v))
	for _, c := range core.Colors {
		lit := 0.0
		if v&c.Mask() == 0 {
			lit = 1
		}
		ledOn.WithLabelValues(c.String()).Set(lit)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	logger := logging.GetLogger("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Metrics listener started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
