package main

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghettovoice/sipstack/metrics"
	"github.com/ghettovoice/sipstack/sip"
	"github.com/ghettovoice/sipstack/transaction"
)

type txView struct {
	ID    sip.TransactionID `json:"id"`
	Type  transaction.Type  `json:"type"`
	State string            `json:"state"`
}

func newRouter(sup *transaction.Supervisor, reg *prometheus.Registry, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, logger, sup.Stats())
	})
	r.Get("/transactions", func(w http.ResponseWriter, r *http.Request) {
		txs := make([]txView, 0, sup.Len())
		for tx := range sup.Transactions() {
			if typ := r.URL.Query().Get("type"); typ != "" && typ != string(tx.Type()) {
				continue
			}
			txs = append(txs, txView{ID: tx.ID(), Type: tx.Type(), State: tx.State().String()})
		}
		writeJSON(w, r, logger, txs)
	})
	return r
}

func writeJSON(w http.ResponseWriter, r *http.Request, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogAttrs(r.Context(), slog.LevelWarn,
			"failed to write response",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("error", err),
		)
	}
}
