package nameserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/scribefs/scribefs/internal/logger"
	"github.com/scribefs/scribefs/pkg/catalog"
	"github.com/scribefs/scribefs/pkg/protocol"
)

// ErrSSUnreachable marks a failed connection to a storage server. The
// catalog is never mutated when a transaction fails.
var ErrSSUnreachable = errors.New("storage server unreachable")

// SSError is a structured failure reported by a storage server in its
// reply stream.
type SSError struct {
	Message string
}

func (e *SSError) Error() string {
	return fmt.Sprintf("storage server error: %s", e.Message)
}

// Transactor runs one mediated command against a storage server. The
// interface exists so router tests can substitute a fake.
type Transactor interface {
	// Transact dials the endpoint, writes a single framed command, reads
	// until the SS end marker, and returns the payload with the marker
	// stripped. A reply starting with the error prefix becomes an
	// *SSError.
	Transact(ctx context.Context, ep catalog.Endpoint, verb string, args ...string) (string, error)
}

// defaultSSTimeout bounds a whole mediated transaction: dial, write,
// and reply.
const defaultSSTimeout = 10 * time.Second

// TCPTransactor is the production Transactor: one transient TCP
// connection per transaction.
type TCPTransactor struct {
	// Timeout bounds the whole transaction. Zero means defaultSSTimeout.
	Timeout time.Duration
}

func (t *TCPTransactor) Transact(ctx context.Context, ep catalog.Endpoint, verb string, args ...string) (string, error) {
	timeout := t.Timeout
	if timeout == 0 {
		timeout = defaultSSTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", ep.String())
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSSUnreachable, ep, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	start := time.Now()
	if err := protocol.WriteFrame(conn, verb, args...); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSSUnreachable, ep, err)
	}
	payload, err := protocol.ReadUntilMarker(bufio.NewReader(conn), protocol.SSEndMarker)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSSUnreachable, ep, err)
	}

	logger.Debug("storage transaction",
		logger.Endpoint(ep.String()), logger.Verb(verb),
		logger.DurationMs(float64(time.Since(start).Microseconds())/1000))

	if msg, ok := strings.CutPrefix(payload, protocol.ErrorPrefix+protocol.FieldSep); ok {
		return "", &SSError{Message: strings.TrimRight(msg, "\n")}
	}
	return payload, nil
}

// expectAck verifies that a transaction payload carries the verb-specific
// acknowledgement token.
func expectAck(payload, token string) error {
	if strings.HasPrefix(payload, token) {
		return nil
	}
	return &SSError{Message: fmt.Sprintf("expected %s, got %q", token, payload)}
}
