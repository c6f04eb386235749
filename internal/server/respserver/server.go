package respserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/time/rate"

	"github.com/solask/emberdb/internal/pubsub"
	"github.com/solask/emberdb/internal/storage"
	"github.com/solask/emberdb/internal/telemetry/metric"
	"github.com/solask/emberdb/pkg/cmap"
)

// Config holds the server configuration.
type Config struct {
	// Address is the listen address, host:port.
	Address string
	// Password gates every command except AUTH, PING, and QUIT when
	// non-empty.
	Password string
	// ReadTimeout bounds reading a command once its first byte arrived.
	ReadTimeout time.Duration
	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration
	// IdleTimeout bounds the gap between commands. Subscriber-mode
	// connections are exempt: they legitimately sit idle.
	IdleTimeout time.Duration
	// RateLimit is commands per second per client IP. Zero disables it.
	RateLimit int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
		RateLimit:    0,
	}
}

// Server is the RESP protocol server.
type Server struct {
	cfg     *Config
	handler *commandHandler
	broker  *pubsub.Broker
	logger  *slog.Logger
	metrics *metric.Registry

	ln        net.Listener
	running   atomic.Bool
	connCount atomic.Int64
	wg        sync.WaitGroup
}

// Conn is a single client connection. Writes to bw happen either from
// the command loop or from the subscriber pump, always under writeMu.
type Conn struct {
	id      string
	netConn net.Conn
	br      *bufio.Reader

	writeMu sync.Mutex
	bw      *bufio.Writer

	authenticated atomic.Bool

	// sub is non-nil once the connection issued its first subscribe.
	// Only the connection's own command loop mutates it.
	sub *pubsub.Subscriber

	closed atomic.Bool
}

func newConn(c net.Conn) *Conn {
	return &Conn{
		id:      ulid.Make().String(),
		netConn: c,
		br:      bufio.NewReader(c),
		bw:      bufio.NewWriter(c),
	}
}

// ID returns the connection's ulid, used for log correlation.
func (c *Conn) ID() string { return c.id }

func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

// ipLimiter tracks a token-bucket limiter per client IP. The sharded
// map keeps limiter lookups off the hot path's single lock.
type ipLimiter struct {
	limiters *cmap.Map[*rate.Limiter]
	limit    int
}

func newIPLimiter(commandsPerSecond int) *ipLimiter {
	return &ipLimiter{
		limiters: cmap.New[*rate.Limiter](),
		limit:    commandsPerSecond,
	}
}

func (l *ipLimiter) allow(ip string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	lim, ok := l.limiters.Get(ip)
	if !ok {
		lim, _ = l.limiters.GetOrSet(ip, rate.NewLimiter(rate.Limit(l.limit), l.limit))
	}
	return lim.Allow()
}

// New creates a RESP server over the given engine and broker.
func New(cfg *Config, engine *storage.Engine, broker *pubsub.Broker, metrics *metric.Registry, logger *slog.Logger) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		broker:  broker,
		logger:  logger,
		metrics: metrics,
	}
	s.handler = newCommandHandler(s, engine, broker, metrics, cfg, logger)
	return s
}

// ConnCount returns the number of currently open client connections.
func (s *Server) ConnCount() int64 {
	return s.connCount.Load()
}

// Start begins accepting connections. It returns once the listener is
// bound; serving happens on background goroutines.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.ln = ln
	s.running.Store(true)
	s.logger.Info("resp server listening", "address", ln.Addr().String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.logger.Error("resp server accept loop failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound listener address, for tests that listen on
// port zero.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting and waits for in-flight connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.running.Store(false)

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil {
			firstErr = err
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		c, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(newConn(c))
		}()
	}
}

func (s *Server) serveConn(c *Conn) {
	defer func() {
		if c.sub != nil {
			s.broker.RemoveSubscriber(c.sub)
		}
		c.Close()
		s.connCount.Add(-1)
		if s.metrics != nil {
			s.metrics.ConnectionsActive.Dec()
		}
		s.logger.Debug("connection closed", "conn", c.id)
	}()

	s.connCount.Add(1)
	if s.metrics != nil {
		s.metrics.ConnectionsTotal.Inc()
		s.metrics.ConnectionsActive.Inc()
	}
	s.logger.Debug("connection accepted", "conn", c.id, "remote", c.RemoteAddr())

	for {
		// Idle timeout between commands; connections parked in
		// subscriber mode are allowed to sit.
		if c.sub == nil || s.broker.Count(c.sub) == 0 {
			if err := c.netConn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout)); err != nil {
				return
			}
		} else {
			if err := c.netConn.SetReadDeadline(time.Time{}); err != nil {
				return
			}
		}
		if _, err := c.br.Peek(1); err != nil {
			s.logReadError(c, err)
			return
		}

		// First byte arrived: tighten to the per-command read timeout.
		if err := c.netConn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout)); err != nil {
			return
		}

		args, err := ReadCommand(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				s.logger.Debug("connection timed out", "conn", c.id)
				return
			}
			if errors.Is(err, ErrLimitExceeded) {
				s.logger.Warn("protocol limit exceeded", "conn", c.id, "remote", c.RemoteAddr(), "error", err)
				s.writeFatal(c, "ERR protocol limit exceeded")
				return
			}
			s.writeFatal(c, "ERR protocol error: "+err.Error())
			return
		}
		if len(args) == 0 {
			continue
		}

		c.writeMu.Lock()
		s.handler.handle(c, args)
		flushErr := s.flushLocked(c)
		c.writeMu.Unlock()
		if flushErr != nil || c.closed.Load() {
			return
		}
	}
}

func (s *Server) logReadError(c *Conn, err error) {
	if errors.Is(err, io.EOF) {
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		s.logger.Debug("connection idle timeout", "conn", c.id)
		return
	}
	s.logger.Debug("connection read error", "conn", c.id, "error", err)
}

// flushLocked flushes the write buffer under the connection write lock.
func (s *Server) flushLocked(c *Conn) error {
	if err := c.netConn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout)); err != nil {
		return err
	}
	return c.bw.Flush()
}

// writeFatal emits a final error reply before closing the connection.
func (s *Server) writeFatal(c *Conn, msg string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.netConn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	_ = WriteError(c.bw, msg)
	_ = c.bw.Flush()
}

// startPump launches the goroutine that drains the subscriber queue
// onto the wire. It exits when the queue closes, which happens when the
// connection's subscriber is removed.
func (s *Server) startPump(c *Conn) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		q := c.sub.Queue()
		for {
			msg, ok := q.Pop()
			if !ok {
				return
			}
			c.writeMu.Lock()
			writeDeliveredMessage(c.bw, msg)
			err := s.flushLocked(c)
			c.writeMu.Unlock()
			if err != nil {
				c.Close()
				return
			}
		}
	}()
}

func writeDeliveredMessage(w *bufio.Writer, msg pubsub.Message) {
	if msg.Pattern != "" {
		_ = WriteArrayHeader(w, 4)
		_ = WriteBulkString(w, "pmessage")
		_ = WriteBulkString(w, msg.Pattern)
		_ = WriteBulkString(w, msg.Channel)
		_ = WriteBulkString(w, msg.Payload)
		return
	}
	_ = WriteArrayHeader(w, 3)
	_ = WriteBulkString(w, "message")
	_ = WriteBulkString(w, msg.Channel)
	_ = WriteBulkString(w, msg.Payload)
}
