package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/sipstack/codec/sipgo"
	"github.com/ghettovoice/sipstack/event"
	"github.com/ghettovoice/sipstack/internal/config"
	"github.com/ghettovoice/sipstack/internal/errorutil"
	"github.com/ghettovoice/sipstack/metrics"
	"github.com/ghettovoice/sipstack/sip"
	"github.com/ghettovoice/sipstack/transaction"
)

const (
	maxDatagramSize = 65535
	shutdownTimeout = 5 * time.Second
)

// server glues the UDP socket, the supervisor, the application and the HTTP endpoints.
type server struct {
	log *slog.Logger

	conn  *net.UDPConn
	local netip.AddrPort
	sup   *transaction.Supervisor

	http   *http.Server
	httpLn net.Listener
}

func newServer(cfg *config.Config, logger *slog.Logger) (*server, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.SIP.Listen)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}

	s := &server{
		log:   logger,
		conn:  conn,
		local: unmap(conn.LocalAddr().(*net.UDPAddr).AddrPort()), //nolint:forcetypeassert
	}

	down := &udpSender{conn: conn, log: logger, onErr: s.dispatch}
	up := &responder{statuses: cfg.Statuses(), dispatch: s.dispatch, log: logger}
	s.sup, err = transaction.NewSupervisor(down, up, &transaction.SupervisorOptions{
		Config: cfg.TransactionConfig(),
		Log:    logger,
	})
	if err != nil {
		conn.Close()
		return nil, errtrace.Wrap(err)
	}

	if cfg.HTTP.Listen != "" {
		reg, err := metrics.NewRegistry(s.sup)
		if err != nil {
			return nil, errtrace.Wrap(errors.Join(err, s.close()))
		}
		ln, err := net.Listen("tcp", cfg.HTTP.Listen)
		if err != nil {
			return nil, errtrace.Wrap(errors.Join(err, s.close()))
		}
		s.httpLn = ln
		s.http = &http.Server{
			Handler:           newRouter(s.sup, reg, logger),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s, nil
}

func (s *server) serve(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		errc = make(chan error, 2)
	)
	wg.Go(func() {
		if err := s.readLoop(ctx); err != nil {
			errc <- err
		}
	})
	attrs := []slog.Attr{slog.Any("sip_addr", s.local)}
	if s.http != nil {
		wg.Go(func() {
			if err := s.http.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errc <- errtrace.Wrap(err)
			}
		})
		attrs = append(attrs, slog.Any("http_addr", s.httpLn.Addr()))
	}

	s.log.LogAttrs(ctx, slog.LevelInfo, "sipstackd started", attrs...)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errc:
	}
	closeErr := s.close()
	wg.Wait()

	s.log.LogAttrs(context.Background(), slog.LevelInfo, "sipstackd stopped", slog.Any("stats", s.sup.Stats()))
	return errtrace.Wrap(errorutil.JoinPrefix("sipstackd:", runErr, closeErr))
}

func (s *server) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.conn.Close(); err != nil && !errorutil.IsClosedErr(err) {
		errs = append(errs, errtrace.Wrap(err))
	}
	if err := s.sup.Close(ctx); err != nil {
		errs = append(errs, errtrace.Wrap(err))
	}
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, errtrace.Wrap(err))
		}
	}
	return errtrace.Wrap(errorutil.JoinPrefix("failed to close server:", errs...))
}

func (s *server) readLoop(ctx context.Context) error {
	buf := make([]byte, maxDatagramSize)
	for {
		n, raddr, err := s.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			switch {
			case errorutil.IsClosedErr(err):
				return nil
			case errorutil.IsTimeoutErr(err):
				continue
			default:
				return errtrace.Wrap(err)
			}
		}

		conn := sip.Connection{
			ID:         "udp:" + raddr.String(),
			Transport:  sip.TransportProtoUDP,
			LocalAddr:  s.local,
			RemoteAddr: unmap(raddr),
		}
		msg, err := sipgo.Parse(bytes.Clone(buf[:n]))
		if err != nil {
			s.log.LogAttrs(ctx, slog.LevelDebug,
				"discard malformed message",
				slog.Any("conn", conn),
				slog.Any("error", err),
			)
			continue
		}
		s.dispatch(ctx, event.NewSipMessage(msg, conn))
	}
}

func (s *server) dispatch(ctx context.Context, ev event.Event) {
	if err := s.sup.Dispatch(ctx, ev); err != nil {
		s.log.LogAttrs(ctx, slog.LevelDebug,
			"event not admitted",
			slog.Any("event", ev),
			slog.Any("error", err),
		)
	}
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

// udpSender is the downstream end of transaction pipelines.
// It writes responses to the remote address of the connection they belong to.
type udpSender struct {
	conn  *net.UDPConn
	log   *slog.Logger
	onErr func(ctx context.Context, ev event.Event)
}

func (s *udpSender) Tell(ev event.Event) bool {
	m, ok := ev.(event.SipMessage)
	if !ok {
		s.log.LogAttrs(context.Background(), slog.LevelWarn, "unexpected downstream event, dropped", slog.Any("event", ev))
		return true
	}

	data, err := sipgo.Encode(m.Msg)
	if err == nil {
		_, err = s.conn.WriteToUDPAddrPort(data, m.Conn.RemoteAddr)
	}
	if err != nil {
		s.onErr(context.Background(), event.TransportError{Conn: m.Conn, Msg: m.Msg, Err: err})
	}
	return true
}
