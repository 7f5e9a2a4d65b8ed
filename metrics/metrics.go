// Package metrics exports transaction layer counters to Prometheus.
package metrics

import (
	"net/http"

	"braces.dev/errtrace"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ghettovoice/sipstack/transaction"
)

const namespace = "sipstack"

// StatsSource provides snapshots of transaction counters.
// [transaction.Supervisor] implements it.
type StatsSource interface {
	Stats() transaction.Stats
}

// Collector is a [prometheus.Collector] that reads counters on every scrape.
type Collector struct {
	src StatsSource

	active,
	created,
	orphanedRes,
	passedAcks *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector over the source.
func NewCollector(src StatsSource) *Collector {
	return &Collector{
		src: src,
		active: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "server_transactions", "active"),
			"Number of live server transactions.",
			[]string{"type"}, nil,
		),
		created: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "server_transactions", "created_total"),
			"Total number of created server transactions.",
			[]string{"type"}, nil,
		),
		orphanedRes: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "supervisor", "orphaned_responses_total"),
			"Total number of responses dropped because no transaction matched.",
			nil, nil,
		),
		passedAcks: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "supervisor", "passed_acks_total"),
			"Total number of ACK requests passed upstream outside of any transaction.",
			nil, nil,
		),
	}
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.created
	ch <- c.orphanedRes
	ch <- c.passedAcks
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()

	inv, nonInv := string(transaction.TypeServerInvite), string(transaction.TypeServerNonInvite)
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(st.InviteServerTransactions), inv)
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(st.NonInviteServerTransactions), nonInv)
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(st.InviteServerTransactionsTotal), inv)
	ch <- prometheus.MustNewConstMetric(c.created, prometheus.CounterValue, float64(st.NonInviteServerTransactionsTotal), nonInv)
	ch <- prometheus.MustNewConstMetric(c.orphanedRes, prometheus.CounterValue, float64(st.OrphanedResponses))
	ch <- prometheus.MustNewConstMetric(c.passedAcks, prometheus.CounterValue, float64(st.PassedAcks))
}

// NewRegistry creates a registry with the collector and the Go runtime collectors.
func NewRegistry(src StatsSource) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		NewCollector(src),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := reg.Register(c); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}
	return reg, nil
}

// Handler returns the HTTP handler that serves the registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}
