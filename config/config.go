// Package config loads ledtools settings from flags, LEDTOOLS_ environment
// variables and a TOML file, and watches that file for changes.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"ledtools/logging"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "LEDTOOLS_"

// Options is the full set of settings. Each field names its TOML key with
// a dotted toml tag, its environment variable with an env tag and, when
// the derived name would be awkward, its flag with a flag tag.
type Options struct {
	Config string

	BusDriver      string `toml:"bus.driver" env:"BUS_DRIVER" flag:"bus"`
	BusName        string `toml:"bus.name" env:"BUS_NAME"`
	BusAddress     int    `toml:"bus.address" env:"BUS_ADDRESS"`
	BusTimeoutMs   int    `toml:"bus.timeout_ms" env:"BUS_TIMEOUT_MS"`
	BusFrequencyHz int    `toml:"bus.frequency_hz" env:"BUS_FREQUENCY_HZ"`

	MCUDevice string `toml:"mcu.device" env:"MCU_DEVICE" flag:"mcu-device"`
	MCUBaud   int    `toml:"mcu.baud" env:"MCU_BAUD" flag:"mcu-baud"`
	MCUI2CBus string `toml:"mcu.i2c_bus" env:"MCU_I2C_BUS" flag:"mcu-i2c-bus"`
	MCUOID    int    `toml:"mcu.oid" env:"MCU_OID" flag:"mcu-oid"`

	ClearAllBeforeSwitch  bool `toml:"leds.clear_all_before_switch" env:"LEDS_CLEAR_ALL_BEFORE_SWITCH"`
	TrackDemoInterference bool `toml:"leds.track_demo_interference" env:"LEDS_TRACK_DEMO_INTERFERENCE"`
	DemoStepMs            int  `toml:"leds.demo_step_ms" env:"LEDS_DEMO_STEP_MS"`

	MetricsListen string `toml:"metrics.listen" env:"METRICS_LISTEN"`

	LoggingLevel  string `toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat string `toml:"logging.format" env:"LOGGING_FORMAT"`
}

// Defaults returns the settings used when nothing overrides them.
func Defaults() Options {
	return Options{
		BusDriver:      "periph",
		BusAddress:     0x24,
		BusTimeoutMs:   1000,
		BusFrequencyHz: 1000000,

		MCUDevice: "/dev/ttyACM0",
		MCUBaud:   250000,
		MCUI2CBus: "i2c0a",

		ClearAllBeforeSwitch:  true,
		TrackDemoInterference: true,
		DemoStepMs:            3000,

		LoggingLevel:  "info",
		LoggingFormat: "text",
	}
}

// Validate rejects settings no backend can run with.
func (o *Options) Validate() error {
	var errs []error
	switch o.BusDriver {
	case "periph", "mcu", "sim":
	default:
		errs = append(errs, fmt.Errorf("bus.driver %q: want periph, mcu or sim", o.BusDriver))
	}
	if o.BusAddress < 0 || o.BusAddress > 0x7F {
		errs = append(errs, fmt.Errorf("bus.address %#x is not a 7-bit address", o.BusAddress))
	}
	if o.BusTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("bus.timeout_ms must be positive, got %d", o.BusTimeoutMs))
	}
	if o.DemoStepMs <= 0 {
		errs = append(errs, fmt.Errorf("leds.demo_step_ms must be positive, got %d", o.DemoStepMs))
	}
	if o.MCUOID < 0 || o.MCUOID > 255 {
		errs = append(errs, fmt.Errorf("mcu.oid %d out of range", o.MCUOID))
	}
	return errors.Join(errs...)
}

// LoadConfig fills opts with precedence CLI flag > env > TOML file >
// existing value. opts.Config names the TOML file; a missing file is not
// an error. Fields whose flag was set on cmd are left alone.
func LoadConfig(opts *Options, cmd *cobra.Command) error {
	doc, err := readTOML(opts.Config)
	if err != nil {
		return err
	}

	v := reflect.ValueOf(opts).Elem()
	t := v.Type()
	for i := range t.NumField() {
		ft := t.Field(i)
		if cmd != nil {
			if f := cmd.Flags().Lookup(FlagName(ft)); f != nil && f.Changed {
				continue
			}
		}

		if env := ft.Tag.Get("env"); env != "" {
			if s := os.Getenv(EnvPrefix + env); s != "" {
				if err := setField(v.Field(i), s); err != nil {
					return fmt.Errorf("%s%s: %w", EnvPrefix, env, err)
				}
				continue
			}
		}
		if key := ft.Tag.Get("toml"); key != "" {
			if value, ok := lookup(doc, key); ok {
				if err := setField(v.Field(i), value); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
			}
		}
	}
	return nil
}

// readTOML decodes the file at path into nested tables. An empty path or
// a missing file yields no tables.
func readTOML(path string) (map[string]any, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var doc map[string]any
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// lookup follows a dotted key such as "bus.address" through doc.
func lookup(doc map[string]any, key string) (any, bool) {
	table := doc
	for {
		head, rest, nested := strings.Cut(key, ".")
		if !nested {
			value, ok := table[head]
			return value, ok
		}
		next, ok := table[head].(map[string]any)
		if !ok {
			return nil, false
		}
		table, key = next, rest
	}
}

// setField stores a TOML value or an env string in field. Strings are
// parsed for bool and int fields; integers accept a 0x prefix.
func setField(field reflect.Value, value any) error {
	s, isString := value.(string)
	switch field.Kind() {
	case reflect.String:
		if !isString {
			return fmt.Errorf("want a string, got %T", value)
		}
		field.SetString(s)

	case reflect.Bool:
		switch b := value.(type) {
		case bool:
			field.SetBool(b)
		case string:
			parsed, err := strconv.ParseBool(b)
			if err != nil {
				return err
			}
			field.SetBool(parsed)
		default:
			return fmt.Errorf("want a boolean, got %T", value)
		}

	case reflect.Int:
		switch n := value.(type) {
		case int64:
			field.SetInt(n)
		case string:
			parsed, err := strconv.ParseInt(n, 0, 64)
			if err != nil {
				return err
			}
			field.SetInt(parsed)
		default:
			return fmt.Errorf("want an integer, got %T", value)
		}
	}
	return nil
}

// LoadFile returns Defaults overlaid with the file at path and the
// environment. It is the loader used on reload.
func LoadFile(path string) (Options, error) {
	opts := Defaults()
	opts.Config = path
	if err := LoadConfig(&opts, nil); err != nil {
		return Options{}, err
	}
	return opts, opts.Validate()
}

// FlagName returns the CLI flag bound to a field: its flag tag, or the
// field name in kebab case ("BusTimeoutMs" becomes "bus-timeout-ms").
func FlagName(f reflect.StructField) string {
	if name := f.Tag.Get("flag"); name != "" {
		return name
	}
	return kebab(f.Name)
}

// kebab turns "BusTimeoutMs" into "bus-timeout-ms".
func kebab(name string) string {
	var b strings.Builder
	for i, r := range name {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LoadLoggingConfig reads the [logging] table. Keys other than level and
// format set per-module levels. A missing or broken file yields defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{Level: "info", Format: "text", Modules: map[string]string{}}

	doc, err := readTOML(configPath)
	if err != nil {
		return cfg
	}
	table, _ := doc["logging"].(map[string]any)
	for key, value := range table {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = s
		case "format":
			cfg.Format = s
		default:
			cfg.Modules[key] = s
		}
	}
	return cfg
}
