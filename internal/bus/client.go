package bus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/loqalabs/loqa-converse/internal/config"
	"github.com/nats-io/nats.go"
)

// HeaderSession carries the conversation session ID on every turn event so
// consumers can filter without decoding the payload.
const HeaderSession = "Loqa-Session"

const (
	flushTimeout = 5 * time.Second
	drainTimeout = 5 * time.Second
)

// Client publishes turn events over NATS and manages the JetStream stream
// that retains them.
type Client struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	log    *slog.Logger
	closed chan struct{}
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}
	log = log.With(slog.String("component", "bus"))
	closed := make(chan struct{})

	timeout := time.Duration(cfg.ConnectTimeout) * time.Millisecond
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	options := []nats.Option{
		nats.Name("loqa-converse"),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected from NATS", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected to NATS", slog.String("server", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(*nats.Conn) { close(closed) }),
		nats.DrainTimeout(drainTimeout),
	}
	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))
	return &Client{conn: conn, js: js, log: log, closed: closed}, nil
}

// Close flushes pending publishes, drains the connection and returns once
// it is closed, so an embedded server can be stopped right after.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.log.Info("closing NATS connection")
	if err := c.conn.FlushTimeout(flushTimeout); err != nil {
		c.log.Warn("flush before close failed", slog.String("error", err.Error()))
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return
	}
	select {
	case <-c.closed:
	case <-time.After(drainTimeout + time.Second):
		c.log.Warn("drain did not finish, closing")
		c.conn.Close()
	}
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

// EnsureStream creates the stream retaining subjects for maxAge, or updates
// it when a stream with that name already exists.
func (c *Client) EnsureStream(name string, subjects []string, maxAge time.Duration) error {
	cfg := &nats.StreamConfig{
		Name:      name,
		Subjects:  subjects,
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    maxAge,
	}
	_, err := c.js.StreamInfo(name)
	switch {
	case err == nil:
		if _, err := c.js.UpdateStream(cfg); err != nil {
			return fmt.Errorf("update stream %s: %w", name, err)
		}
		return nil
	case !errors.Is(err, nats.ErrStreamNotFound):
		return fmt.Errorf("stream info %s: %w", name, err)
	}
	if _, err := c.js.AddStream(cfg); err != nil {
		return fmt.Errorf("add stream %s: %w", name, err)
	}
	c.log.Info("created event stream", slog.String("stream", name), slog.Duration("max_age", maxAge))
	return nil
}

// Publish encodes v with sonic and publishes it on subject, tagged with the
// session header when sessionID is set.
func (c *Client) Publish(subject, sessionID string, v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", subject, err)
	}
	msg := nats.NewMsg(subject)
	msg.Data = data
	if sessionID != "" {
		msg.Header.Set(HeaderSession, sessionID)
	}
	return c.conn.PublishMsg(msg)
}

// Flush waits until the server has processed everything published so far.
// A ctx without a deadline is bounded by a default timeout.
func (c *Client) Flush(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return c.conn.FlushWithContext(ctx)
}

func (c *Client) JetStream() nats.JetStreamContext {
	return c.js
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}
