//go:build rp2040

package main

import (
	"context"
	"machine"
	"time"

	"ledtools/console"
	"ledtools/core"
	"ledtools/indicator"
	"ledtools/logging"
)

// Expander wiring on the indicator board.
const (
	pinSDA       = machine.GPIO12
	pinSCL       = machine.GPIO13
	busFrequency = 1 * machine.MHz
)

func main() {
	InitUSB()
	logging.SetOutput(usbWriter{})
	logging.Initialize(logging.Config{Level: "info", Format: "text"})
	logger := logging.GetLogger("main")

	i2c := machine.I2C0
	if err := i2c.Configure(machine.I2CConfig{SDA: pinSDA, SCL: pinSCL, Frequency: busFrequency}); err != nil {
		// Nothing works without the bus. Keep reporting so a terminal
		// attached later still sees why.
		for {
			logger.Error("I2C configure failed", "error", err)
			time.Sleep(5 * time.Second)
		}
	}

	exp := core.NewExpander(core.StaticDriver{Bus: i2c})
	timers := core.NewTimers(core.SystemClock{})
	loop := core.NewLoop(timers)
	ctrl := indicator.New(exp, timers, indicator.DefaultOptions(), nil)
	svc := indicator.NewService(loop, ctrl)

	ctx := context.Background()
	go loop.Run(ctx)

	reg := console.NewRegistry()
	if err := console.RegisterLEDCommands(reg, svc, usbWriter{}); err != nil {
		logger.Error("Register commands failed", "error", err)
		return
	}
	c, err := console.New(reg, usbReader{}, usbWriter{})
	if err != nil {
		logger.Error("Console setup failed", "error", err)
		return
	}

	// quit has nowhere to go on the board, so start over
	for {
		if err := c.Run(ctx); err != nil {
			logger.Warn("Console stopped", "error", err)
		}
	}
}
