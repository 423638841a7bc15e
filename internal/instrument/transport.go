package instrument

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"time"
)

// Transport is a byte-level request/response channel to an instrument.
// Commands and replies are single ASCII lines.
type Transport interface {
	Write(ctx context.Context, cmd string) error
	Query(ctx context.Context, cmd string) (string, error)
	Read(ctx context.Context) (string, error)
	Close() error
}

// Opener dials a transport for a VISA-style resource identifier.
type Opener func(resource string, timeout time.Duration) (Transport, error)

// SocketTransport speaks SCPI over a raw TCP socket. It accepts
// VISA-style resources ("TCPIP0::10.0.0.5::5025::SOCKET") as well as
// plain "host:port" addresses.
type SocketTransport struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// OpenSocket dials the resource and applies timeout as both the dial
// deadline and the per-operation I/O deadline.
func OpenSocket(resource string, timeout time.Duration) (Transport, error) {
	addr, err := resourceAddress(resource)
	if err != nil {
		return nil, err
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("instrument: dial %s: %w", addr, err)
	}

	return &SocketTransport{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		timeout: timeout,
	}, nil
}

func resourceAddress(resource string) (string, error) {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return "", fmt.Errorf("instrument: empty resource identifier")
	}

	if strings.Contains(resource, "::") {
		parts := strings.Split(resource, "::")
		if len(parts) < 3 || !strings.HasPrefix(strings.ToUpper(parts[0]), "TCPIP") {
			return "", fmt.Errorf("instrument: unsupported resource %q", resource)
		}
		return net.JoinHostPort(parts[1], parts[2]), nil
	}

	if _, _, err := net.SplitHostPort(resource); err != nil {
		return "", fmt.Errorf("instrument: unsupported resource %q", resource)
	}
	return resource, nil
}

// Write sends one command line.
func (t *SocketTransport) Write(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.conn.SetWriteDeadline(deadline(ctx, t.timeout)); err != nil {
		return err
	}
	if _, err := t.conn.Write([]byte(cmd + "\n")); err != nil {
		return fmt.Errorf("instrument: write %q: %w", cmd, err)
	}
	return nil
}

// Read blocks for one reply line and returns it trimmed.
func (t *SocketTransport) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := t.conn.SetReadDeadline(deadline(ctx, t.timeout)); err != nil {
		return "", err
	}
	line, err := t.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("instrument: read reply: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Query writes a command and reads its reply.
func (t *SocketTransport) Query(ctx context.Context, cmd string) (string, error) {
	if err := t.Write(ctx, cmd); err != nil {
		return "", err
	}
	return t.Read(ctx)
}

// Close releases the underlying connection.
func (t *SocketTransport) Close() error {
	return t.conn.Close()
}

func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}
	return d
}
