package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ledtools/config"
	"ledtools/console"
	"ledtools/core"
	"ledtools/host/mcu"
	"ledtools/host/serial"
	"ledtools/indicator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := config.Defaults()
	opts.Config = "ledtools.toml"

	root := &cobra.Command{
		Use:   "ledtools",
		Short: "Drive the RGB indicator on a PCA9570 expander",
		Long: `Interactive console for the three LEDs behind a PCA9570 I2C expander.
Type help at the led> prompt for the command list.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := start(ctx, cmd, &opts)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := console.New(a.registry, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.Config, "config", "c", opts.Config, "path to the TOML configuration file")
	bindFlags(root.PersistentFlags(), &opts)

	root.AddCommand(newRunCmd(&opts), newMCUInfoCmd(&opts))
	return root
}

func newRunCmd(opts *config.Options) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "run <command> [args...]",
		Short: "Execute one console command and exit",
		Example: `  ledtools run shine red
  ledtools --bus sim run --wait demo`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := start(ctx, cmd, opts)
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := console.New(a.registry, cmd.InOrStdin(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer c.Close()
			if err := exitError(c.Exec(ctx, strings.Join(args, " "))); err != nil {
				return err
			}
			if wait {
				return waitIdle(ctx, a.service)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "wait until no timer is running before exiting")
	// everything after the command name belongs to the console, "-1" included
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// exitError decides what a one-shot command reports as its exit status.
// Bus failures have been logged and leave the status at zero, like they
// do in the console. Bad input still fails the process.
func exitError(err error) error {
	if core.IsHardware(err) {
		return nil
	}
	return err
}

// waitIdle returns once the demo has ended and nothing blinks. A blink
// never ends on its own, so this only returns for it on cancellation.
func waitIdle(ctx context.Context, svc *indicator.Service) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		st, err := svc.Status(ctx)
		if err != nil {
			return err
		}
		if st.State == indicator.Idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func newMCUInfoCmd(opts *config.Options) *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "mcu-info",
		Short: "Print the data dictionary of the bridge MCU",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadOptions(cmd, opts); err != nil {
				return err
			}

			sc := serial.DefaultConfig(opts.MCUDevice)
			sc.Baud = opts.MCUBaud
			m, err := mcu.Connect(sc)
			if err != nil {
				return err
			}
			defer m.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()
			if err := m.RetrieveDictionary(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				_, err := fmt.Fprintf(out, "%s\n", m.RawDictionary())
				return err
			}
			m.WriteSummary(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the dictionary JSON as received")
	return cmd
}

// bindFlags declares one flag per tagged Options field, named the way
// config.LoadConfig expects.
func bindFlags(flags *pflag.FlagSet, opts *config.Options) {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		key := field.Tag.Get("toml")
		if key == "" {
			continue
		}
		name := config.FlagName(field)
		usage := fmt.Sprintf("%s (env %s%s)", key, config.EnvPrefix, field.Tag.Get("env"))

		switch p := v.Field(i).Addr().Interface().(type) {
		case *string:
			flags.StringVar(p, name, *p, usage)
		case *int:
			flags.IntVar(p, name, *p, usage)
		case *bool:
			flags.BoolVar(p, name, *p, usage)
		}
	}
}
