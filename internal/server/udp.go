package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime/debug"
	"strconv"
	"sync"
	"time"

	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/config"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/form"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/metrics"
	"github.com/LesyaTkachuk/goit-cs-hw-06/internal/storage"
)

// Sink consumes relayed form bodies
type Sink interface {
	Save(ctx context.Context, payload []byte) error
}

// RelayServer receives form bodies over UDP and stores them one at a time.
// While a message is being stored nothing is read from the socket, so
// datagrams arriving in that window wait in the kernel buffer or are dropped.
type RelayServer struct {
	config  config.RelayConfig
	logger  *slog.Logger
	sink    Sink
	metrics *metrics.Metrics

	mu   sync.Mutex
	conn *net.UDPConn
}

// NewRelayServer creates a new relay server instance
func NewRelayServer(cfg config.RelayConfig, logger *slog.Logger, sink Sink, m *metrics.Metrics) *RelayServer {
	return &RelayServer{
		config:  cfg,
		logger:  logger.With(slog.String("component", "relay")),
		sink:    sink,
		metrics: m,
	}
}

// Listen binds the UDP socket. Serve calls it when it has not been called.
func (s *RelayServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn != nil {
		return nil
	}

	addr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.conn = conn
	return nil
}

// Addr returns the bound address, or nil before Listen
func (s *RelayServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// Serve runs the receive loop until ctx is cancelled or the socket fails.
// Cancellation returns nil; any other read error is logged and returned.
// The socket is closed on return.
func (s *RelayServer) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	// Closing the socket is what unblocks ReadFromUDP on cancellation
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	defer func() {
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		s.logger.Info("Socket server stopped")
	}()

	s.logger.Info("Socket server started",
		slog.String("address", conn.LocalAddr().String()),
		slog.Int("buffer_size", s.config.BufferSize),
	)

	buffer := make([]byte, s.config.BufferSize)

	for {
		n, remoteAddr, err := conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("Failed to read UDP packet", slog.String("error", err.Error()))
			return fmt.Errorf("relay receive: %w", err)
		}

		// Copy out, the buffer is reused for the next read
		payload := append([]byte(nil), buffer[:n]...)
		s.handlePacket(ctx, payload, remoteAddr)
	}
}

// handlePacket stores a single message and logs the outcome. Errors never
// leave this function so the receive loop keeps going.
func (s *RelayServer) handlePacket(ctx context.Context, payload []byte, remoteAddr *net.UDPAddr) {
	defer func() {
		if r := recover(); r != nil {
			s.metrics.RecordStoreError(0)
			s.logger.Error("Panic while saving message",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	truncated := len(payload) == s.config.BufferSize
	s.metrics.RecordPacketReceived(len(payload), truncated)

	s.logger.Info("Received message",
		slog.String("remote_addr", remoteAddr.String()),
		slog.String("payload", string(payload)),
	)
	if truncated {
		s.logger.Warn("Packet filled the receive buffer and may be truncated",
			slog.String("remote_addr", remoteAddr.String()),
			slog.Int("buffer_size", s.config.BufferSize),
		)
	}

	start := time.Now()
	err := s.sink.Save(ctx, payload)
	elapsed := time.Since(start).Seconds()

	var parseErr *form.ParseError
	var storeErr *storage.StoreError

	switch {
	case err == nil:
		s.metrics.RecordMessageStored(elapsed)
		s.logger.Info("Message saved to database")
	case errors.As(err, &parseErr):
		s.metrics.RecordParseError()
		s.logger.Error("Parsing error",
			slog.String("remote_addr", remoteAddr.String()),
			slog.String("error", parseErr.Error()),
		)
	case errors.As(err, &storeErr):
		s.metrics.RecordStoreError(elapsed)
		s.logger.Error("Failed to save message",
			slog.String("op", storeErr.Op),
			slog.String("error", storeErr.Err.Error()),
		)
	default:
		s.metrics.RecordStoreError(elapsed)
		s.logger.Error("Unexpected error while saving message", slog.String("error", err.Error()))
	}
}
