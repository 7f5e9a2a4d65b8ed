package main

import (
	"context"
	"log/slog"

	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/sip"
)

// responder is the upstream end of transaction pipelines.
// It answers every request except ACK with the statuses in order.
type responder struct {
	statuses []sip.ResponseStatus
	dispatch func(ctx context.Context, ev event.Event)
	log      *slog.Logger
}

func (r *responder) Tell(ev event.Event) bool {
	ctx := context.Background()
	switch ev := ev.(type) {
	case event.SipMessage:
		req, ok := ev.Request()
		if !ok {
			return true
		}
		if sip.IsAck(req) {
			r.log.LogAttrs(ctx, slog.LevelDebug, "ACK received", slog.Any("request", req))
			return true
		}

		r.log.LogAttrs(ctx, slog.LevelInfo, "request received", slog.Any("request", req))

		for _, sts := range r.statuses {
			res, err := req.NewResponse(sts)
			if err != nil {
				r.log.LogAttrs(ctx, slog.LevelError,
					"failed to create response",
					slog.Any("request", req),
					slog.Any("status", sts),
					slog.Any("error", err),
				)
				return true
			}
			r.dispatch(ctx, event.NewSipMessage(res, ev.Conn))
		}
	case event.Error:
		r.log.LogAttrs(ctx, slog.LevelWarn,
			"transaction failed",
			slog.Any("transaction", ev.ID),
			slog.Any("error", ev.Err),
		)
	}
	return true
}
