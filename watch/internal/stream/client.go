package stream

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nusantararadius/notifyhub/pkg/types"
	"github.com/nusantararadius/notifyhub/watch/internal/config"
)

const writeTimeout = 5 * time.Second

// Handler receives every envelope read from the server, in order.
type Handler func(types.Envelope)

// Client is a reconnecting subscriber.
type Client struct {
	cfg    *config.Config
	dialer *websocket.Dialer
	header http.Header
	handle Handler

	sessions atomic.Int64
}

// New builds a Client for cfg.
func New(cfg *config.Config, handle Handler) (*Client, error) {
	tlsCfg, err := buildTLS(cfg.TLS)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	if cfg.Origin != "" {
		header.Set("Origin", cfg.Origin)
	}

	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
			TLSClientConfig:  tlsCfg,
		},
		header: header,
		handle: handle,
	}, nil
}

// Sessions returns how many connections have been established so far.
func (c *Client) Sessions() int64 { return c.sessions.Load() }

// Run keeps a session open until ctx is cancelled. It always returns nil
// once ctx is done; dial and read failures only trigger a reconnect.
func (c *Client) Run(ctx context.Context) error {
	bo := newBackoff(c.cfg.Backoff.Initial, c.cfg.Backoff.Max)

	for {
		if ctx.Err() != nil {
			return nil
		}

		conn, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attrs := []any{"url", c.cfg.URL, "err", err}
			if resp != nil {
				attrs = append(attrs, "status", resp.StatusCode)
			}
			wait := bo.next()
			slog.Error("stream: dial failed, will retry", append(attrs, "retry_in", wait)...)
			if !sleep(ctx, wait) {
				return nil
			}
			continue
		}

		n := c.sessions.Add(1)
		slog.Info("stream: connected", "url", c.cfg.URL, "session", n)
		bo.reset()

		err = c.session(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			return nil
		}

		wait := bo.next()
		slog.Warn("stream: connection lost, will reconnect",
			"url", c.cfg.URL,
			"err", err,
			"retry_in", wait)
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// session reads until the connection fails or ctx is cancelled. This
// goroutine is the connection's only writer.
func (c *Client) session(ctx context.Context, conn *websocket.Conn) error {
	readErr := make(chan error, 1)
	go func() {
		for {
			var env types.Envelope
			if err := conn.ReadJSON(&env); err != nil {
				readErr <- err
				return
			}
			c.handle(env)
		}
	}()

	var tick <-chan time.Time
	if c.cfg.RequestMetricsEvery > 0 {
		t := time.NewTicker(c.cfg.RequestMetricsEvery)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout)) //nolint:errcheck
			return nil

		case err := <-readErr:
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return fmt.Errorf("server closed: %d %s", ce.Code, ce.Text)
			}
			return err

		case <-tick:
			frame, err := types.Encode(types.EventRequestMetrics, nil)
			if err != nil {
				return err
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write request_metrics: %w", err)
			}
		}
	}
}

func buildTLS(cfg config.TLSConfig) (*tls.Config, error) {
	if cfg.CAFile == "" && cfg.ServerName == "" && !cfg.InsecureSkipVerify {
		return nil, nil
	}
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         cfg.ServerName,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for lab setups
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse CA file %q: no certificates found", cfg.CAFile)
		}
		out.RootCAs = pool
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
