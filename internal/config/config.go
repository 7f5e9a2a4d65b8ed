// Package config loads the sipstackd configuration.
//
// Values are merged in order: defaults, YAML file, environment variables
// with the SIPSTACK_ prefix. Nested keys in environment variables are
// separated with a double underscore, e.g. SIPSTACK_TRANSACTION__T1=1s.
package config

//go:generate go tool errtrace -w .

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"braces.dev/errtrace"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ghettovoice/sipstack/internal/errorutil"
	"github.com/ghettovoice/sipstack/log"
	"github.com/ghettovoice/sipstack/sip"
	"github.com/ghettovoice/sipstack/transaction"
)

const envPrefix = "SIPSTACK_"

// Config is the sipstackd configuration.
type Config struct {
	Log         LogConfig         `koanf:"log"`
	SIP         SIPConfig         `koanf:"sip"`
	HTTP        HTTPConfig        `koanf:"http"`
	Transaction TransactionConfig `koanf:"transaction"`
	App         AppConfig         `koanf:"app"`
}

type LogConfig struct {
	// Format is one of console, dev, json.
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

type SIPConfig struct {
	// Listen is the UDP address to receive SIP messages on.
	Listen string `koanf:"listen"`
}

type HTTPConfig struct {
	// Listen is the address of the metrics and debug endpoints.
	// Empty disables the HTTP server.
	Listen string `koanf:"listen"`
}

type TransactionConfig struct {
	T1                       time.Duration `koanf:"t1"`
	T2                       time.Duration `koanf:"t2"`
	T4                       time.Duration `koanf:"t4"`
	Time100                  time.Duration `koanf:"time100"`
	TimeL                    time.Duration `koanf:"time_l"`
	Send100TryingImmediately bool          `koanf:"send_100_trying_immediately"`
	StaleTimeout             time.Duration `koanf:"stale_timeout"`
}

// AppConfig configures the built-in application that answers every request.
type AppConfig struct {
	// Statuses are sent in order in response to every request except ACK.
	Statuses []uint `koanf:"statuses"`
}

var defaults = map[string]any{
	"log.format":          "console",
	"log.level":           "info",
	"sip.listen":          "127.0.0.1:5060",
	"http.listen":         "127.0.0.1:9060",
	"transaction.t1":      sip.T1,
	"transaction.t2":      sip.T2,
	"transaction.t4":      sip.T4,
	"transaction.time100": sip.Time100,
	"app.statuses":        []uint{uint(sip.ResponseStatusOK)},
}

// Load reads the configuration.
// The optional envFile is loaded into the process environment first,
// variables that are already set are not overridden. Missing envFile is ignored.
// The optional path points to a YAML file.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, errtrace.Wrap(err)
		}
	}

	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errtrace.Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return &cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error
	if c.SIP.Listen == "" {
		errs = append(errs, errtrace.Wrap(sip.NewInvalidArgumentError("empty SIP listen address")))
	}
	if _, err := c.Log.level(); err != nil {
		errs = append(errs, errtrace.Wrap(sip.NewInvalidArgumentError(err)))
	}
	switch c.Log.Format {
	case "console", "dev", "json":
	default:
		errs = append(errs, errtrace.Wrap(sip.NewInvalidArgumentError("unknown log format %q", c.Log.Format)))
	}
	for _, sts := range c.App.Statuses {
		if !sip.ResponseStatus(sts).IsValid() {
			errs = append(errs, errtrace.Wrap(sip.NewInvalidArgumentError("invalid response status %d", sts)))
		}
	}
	return errtrace.Wrap(errorutil.JoinPrefix("invalid config:", errs...))
}

// TransactionConfig builds the configuration of server transactions.
func (c *Config) TransactionConfig() transaction.Config {
	t := c.Transaction
	return transaction.Config{
		Timings:                  sip.NewTimings(t.T1, t.T2, t.T4, t.Time100).WithTimeL(t.TimeL),
		Send100TryingImmediately: t.Send100TryingImmediately,
		StaleTimeout:             t.StaleTimeout,
	}
}

// Statuses returns statuses of the built-in application.
func (c *Config) Statuses() []sip.ResponseStatus {
	sts := make([]sip.ResponseStatus, len(c.App.Statuses))
	for i, s := range c.App.Statuses {
		sts[i] = sip.ResponseStatus(s)
	}
	return sts
}

func (c LogConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return lvl, errtrace.Wrap(err)
	}
	return lvl, nil
}

// Logger creates the logger writing to w.
func (c LogConfig) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	switch c.Format {
	case "dev":
		return log.NewDev(w, lvl)
	case "json":
		return log.NewJSON(w, lvl)
	default:
		return log.NewConsole(w, lvl)
	}
}
