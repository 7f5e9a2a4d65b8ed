package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/sipstack/internal/config"
	"github.com/ghettovoice/sipstack/sip"
	"github.com/ghettovoice/sipstack/transaction"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("os.WriteFile(%q) error = %v, want nil", path, err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", "")
	if err != nil {
		t.Fatalf("config.Load(\"\", \"\") error = %v, want nil", err)
	}

	want := &config.Config{
		Log:  config.LogConfig{Format: "console", Level: "info"},
		SIP:  config.SIPConfig{Listen: "127.0.0.1:5060"},
		HTTP: config.HTTPConfig{Listen: "127.0.0.1:9060"},
		Transaction: config.TransactionConfig{
			T1:      sip.T1,
			T2:      sip.T2,
			T4:      sip.T4,
			Time100: sip.Time100,
		},
		App: config.AppConfig{Statuses: []uint{200}},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config.Load(\"\", \"\") mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]sip.ResponseStatus{sip.ResponseStatusOK}, cfg.Statuses()); diff != "" {
		t.Errorf("cfg.Statuses() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeFile(t, "sipstack.yaml", `
log:
  format: json
  level: debug
sip:
  listen: 0.0.0.0:5070
transaction:
  t1: 250ms
  time_l: 10s
  send_100_trying_immediately: true
  stale_timeout: 2m
app:
  statuses: [180, 486]
`)
	envFile := writeFile(t, ".env", "SIPSTACK_HTTP__LISTEN=0.0.0.0:9999\n")
	t.Cleanup(func() { os.Unsetenv("SIPSTACK_HTTP__LISTEN") })
	t.Setenv("SIPSTACK_TRANSACTION__STALE_TIMEOUT", "30s")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		t.Fatalf("config.Load(path, envFile) error = %v, want nil", err)
	}

	if got, want := cfg.HTTP.Listen, "0.0.0.0:9999"; got != want {
		t.Errorf("cfg.HTTP.Listen = %q, want %q", got, want)
	}
	if got, want := cfg.SIP.Listen, "0.0.0.0:5070"; got != want {
		t.Errorf("cfg.SIP.Listen = %q, want %q", got, want)
	}
	if diff := cmp.Diff([]sip.ResponseStatus{sip.ResponseStatusRinging, sip.ResponseStatusBusyHere}, cfg.Statuses()); diff != "" {
		t.Errorf("cfg.Statuses() mismatch (-want +got):\n%s", diff)
	}

	txCfg := cfg.TransactionConfig()
	want := transaction.Config{
		Timings:                  sip.NewTimings(250*time.Millisecond, sip.T2, sip.T4, sip.Time100).WithTimeL(10 * time.Second),
		Send100TryingImmediately: true,
		StaleTimeout:             30 * time.Second,
	}
	if diff := cmp.Diff(want, txCfg, cmp.AllowUnexported(sip.TimingConfig{})); diff != "" {
		t.Errorf("cfg.TransactionConfig() mismatch (-want +got):\n%s", diff)
	}
	if got, want := txCfg.Timings.TimeH(), 16*time.Second; got != want {
		t.Errorf("cfg.TransactionConfig().Timings.TimeH() = %v, want %v", got, want)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"log level", "log:\n  level: loud\n"},
		{"log format", "log:\n  format: xml\n"},
		{"status", "app:\n  statuses: [42]\n"},
		{"listen", "sip:\n  listen: \"\"\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg, err := config.Load(writeFile(t, "sipstack.yaml", c.yaml), "")
			if diff := cmp.Diff(sip.ErrInvalidArgument, err, cmpopts.EquateErrors()); diff != "" {
				t.Errorf("config.Load(path, \"\") error mismatch (-want +got):\n%s", diff)
			}
			if cfg != nil {
				t.Errorf("config.Load(path, \"\") = %+v, want nil", cfg)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("config.Load(missing, \"\") error = nil, want error")
	}
	if _, err := config.Load("", filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("config.Load(\"\", missing) error = %v, want nil", err)
	}
}
