package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ghettovoice/sipstack/metrics"
	"github.com/ghettovoice/sipstack/transaction"
)

type staticStats transaction.Stats

func (s staticStats) Stats() transaction.Stats { return transaction.Stats(s) }

var stats = staticStats{
	InviteServerTransactions:         2,
	NonInviteServerTransactions:      5,
	InviteServerTransactionsTotal:    10,
	NonInviteServerTransactionsTotal: 50,
	OrphanedResponses:                1,
	PassedAcks:                       3,
}

func TestCollector(t *testing.T) {
	t.Parallel()

	reg, err := metrics.NewRegistry(stats)
	if err != nil {
		t.Fatalf("metrics.NewRegistry(src) error = %v, want nil", err)
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("reg.Gather() error = %v, want nil", err)
	}

	got := make(map[string]float64)
	for _, mf := range mfs {
		if !strings.HasPrefix(mf.GetName(), "sipstack_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			switch {
			case m.GetGauge() != nil:
				got[key] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				got[key] = m.GetCounter().GetValue()
			}
		}
	}

	want := map[string]float64{
		"sipstack_server_transactions_active{type=server_invite}":            2,
		"sipstack_server_transactions_active{type=server_non_invite}":        5,
		"sipstack_server_transactions_created_total{type=server_invite}":     10,
		"sipstack_server_transactions_created_total{type=server_non_invite}": 50,
		"sipstack_supervisor_orphaned_responses_total":                       1,
		"sipstack_supervisor_passed_acks_total":                              3,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("gathered metrics mismatch (-want +got):\n%s", diff)
	}
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg, err := metrics.NewRegistry(stats)
	if err != nil {
		t.Fatalf("metrics.NewRegistry(src) error = %v, want nil", err)
	}
	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()

	res, err := http.Get(srv.URL) //nolint:noctx
	if err != nil {
		t.Fatalf("http.Get(url) error = %v, want nil", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("res.StatusCode = %d, want %d", res.StatusCode, http.StatusOK)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("io.ReadAll(res.Body) error = %v, want nil", err)
	}
	if want := "sipstack_supervisor_passed_acks_total 3"; !strings.Contains(string(body), want) {
		t.Errorf("metrics page does not contain %q", want)
	}
}
