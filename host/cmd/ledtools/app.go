package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"ledtools/bus"
	"ledtools/config"
	"ledtools/console"
	"ledtools/core"
	"ledtools/events"
	"ledtools/indicator"
	"ledtools/logging"
	"ledtools/metrics"
)

// app is everything the console needs, started and ready.
type app struct {
	registry *console.Registry
	service  *indicator.Service

	logger  *slog.Logger
	bus     io.Closer
	watcher *config.Watcher[config.Options]
	cancel  context.CancelFunc
	loopErr chan error
	cleanup []func()
}

func loadOptions(cmd *cobra.Command, opts *config.Options) error {
	if err := config.LoadConfig(opts, cmd); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	logCfg := config.LoadLoggingConfig(opts.Config)
	logCfg.Level = opts.LoggingLevel
	logCfg.Format = opts.LoggingFormat
	logging.Initialize(logCfg)
	return nil
}

func start(parent context.Context, cmd *cobra.Command, opts *config.Options) (*app, error) {
	if err := loadOptions(cmd, opts); err != nil {
		return nil, err
	}
	logger := logging.GetLogger("main")

	driver, closer, err := bus.New(parent, busConfig(opts))
	if err != nil {
		return nil, err
	}
	logger.Info("Bus opened", "driver", opts.BusDriver, "address", opts.BusAddress)

	exp := core.NewExpander(driver,
		core.WithAddress(uint16(opts.BusAddress)),
		core.WithTimeout(time.Duration(opts.BusTimeoutMs)*time.Millisecond))
	exp.OnTransaction = metrics.RecordTransaction

	eventBus := events.New()
	timers := core.NewTimers(core.SystemClock{})
	loop := core.NewLoop(timers)
	ctrl := indicator.New(exp, timers, ledOptions(opts), eventBus)
	svc := indicator.NewService(loop, ctrl)

	reg := console.NewRegistry()
	if err := console.RegisterLEDCommands(reg, svc, cmd.OutOrStdout()); err != nil {
		closer.Close()
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	a := &app{
		registry: reg,
		service:  svc,
		logger:   logger,
		bus:      closer,
		cancel:   cancel,
		loopErr:  make(chan error, 1),
	}
	a.cleanup = append(a.cleanup, metrics.Observe(eventBus))

	go func() {
		a.loopErr <- loop.Run(ctx)
	}()

	if opts.MetricsListen != "" {
		go func() {
			if err := metrics.Serve(ctx, opts.MetricsListen); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics listener failed", "addr", opts.MetricsListen, "error", err)
			}
		}()
	}

	a.watch(ctx, opts.Config)
	return a, nil
}

// watch applies LED switches and log levels from the config file as it
// changes. Bus settings need a restart.
func (a *app) watch(ctx context.Context, path string) {
	w := config.NewWatcher(path, config.LoadFile, logging.GetLogger("config"))
	w.OnReload(func(o config.Options) {
		if err := a.service.SetOptions(ctx, ledOptions(&o)); err != nil {
			a.logger.Warn("Failed to apply reloaded options", "error", err)
		}
		logging.SetLevels(o.LoggingLevel, config.LoadLoggingConfig(path).Modules)
	})
	if err := w.Start(); err != nil {
		a.logger.Debug("Config watcher not started", "path", path, "error", err)
		return
	}
	a.watcher = w
}

// Close stops the watcher and the loop, then releases the bus. The LEDs
// keep their last state.
func (a *app) Close() error {
	if a.watcher != nil {
		a.watcher.Stop()
	}
	a.cancel()
	err := <-a.loopErr
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	for _, fn := range a.cleanup {
		fn()
	}
	return errors.Join(err, a.bus.Close())
}

func busConfig(opts *config.Options) bus.Config {
	return bus.Config{
		Driver:      opts.BusDriver,
		Name:        opts.BusName,
		Address:     uint16(opts.BusAddress),
		FrequencyHz: opts.BusFrequencyHz,
		MCU: bus.MCUConfig{
			Device: opts.MCUDevice,
			Baud:   opts.MCUBaud,
			I2CBus: opts.MCUI2CBus,
			OID:    uint8(opts.MCUOID),
		},
	}
}

func ledOptions(opts *config.Options) indicator.Options {
	return indicator.Options{
		ClearAllBeforeSwitch:  opts.ClearAllBeforeSwitch,
		TrackDemoInterference: opts.TrackDemoInterference,
		DemoStep:              time.Duration(opts.DemoStepMs) * time.Millisecond,
	}
}
