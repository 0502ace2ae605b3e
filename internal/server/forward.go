package server

import (
	"context"
	"fmt"
	"net"
)

// MaxDatagramSize is the largest payload a single UDP datagram can carry
const MaxDatagramSize = 65507

// Forwarder hands a raw form body to the relay
type Forwarder interface {
	Forward(ctx context.Context, payload []byte) error
}

// ForwardError reports a body that could not be sent to the relay
type ForwardError struct {
	Addr string
	Err  error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward to %s: %v", e.Addr, e.Err)
}

func (e *ForwardError) Unwrap() error {
	return e.Err
}

// UDPForwarder sends each payload as one datagram from a fresh socket.
// Delivery is best effort and at most once: a successful Forward only means
// the datagram left this process.
type UDPForwarder struct {
	addr   string
	dialer net.Dialer
}

// NewUDPForwarder creates a forwarder targeting addr (host:port)
func NewUDPForwarder(addr string) *UDPForwarder {
	return &UDPForwarder{addr: addr}
}

// Forward opens a socket, writes payload once and closes the socket
func (f *UDPForwarder) Forward(ctx context.Context, payload []byte) error {
	if len(payload) > MaxDatagramSize {
		return &ForwardError{Addr: f.addr, Err: fmt.Errorf("payload of %d bytes exceeds datagram limit", len(payload))}
	}

	conn, err := f.dialer.DialContext(ctx, "udp", f.addr)
	if err != nil {
		return &ForwardError{Addr: f.addr, Err: err}
	}
	defer conn.Close()

	if _, err := conn.Write(payload); err != nil {
		return &ForwardError{Addr: f.addr, Err: err}
	}

	return nil
}
